package reconcile

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/desertthunder/tubesync/internal/models"
	"github.com/desertthunder/tubesync/internal/repositories"
	"github.com/desertthunder/tubesync/internal/services"
	"github.com/desertthunder/tubesync/internal/shared"
)

const channelExternalID = "UCaaaaaaaaaaaaaaaaaaaaaa"

type fixture struct {
	store   *repositories.Store
	engine  *Engine
	channel *models.Channel
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := shared.NewTestDatabase()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store := repositories.NewStore(db)
	ctx := context.Background()
	user, err := store.Users.Ensure(ctx, "owner@example.com")
	require.NoError(t, err)

	channel := &models.Channel{OwnerID: user.ID, ExternalID: channelExternalID, Title: "Before"}
	require.NoError(t, store.Channels.Create(ctx, channel))

	return &fixture{store: store, engine: NewEngine(log.New(io.Discard)), channel: channel}
}

func (f *fixture) videos(t *testing.T, snaps ...services.VideoSnapshot) *VideoResult {
	t.Helper()
	var result *VideoResult
	err := f.store.WithTx(context.Background(), func(tx *repositories.Tx) error {
		var err error
		result, err = f.engine.ReconcileVideos(context.Background(), tx, f.channel, snaps)
		return err
	})
	require.NoError(t, err)
	return result
}

func (f *fixture) playlists(t *testing.T, complete bool, snaps ...services.PlaylistSnapshot) *PlaylistResult {
	t.Helper()
	var result *PlaylistResult
	err := f.store.WithTx(context.Background(), func(tx *repositories.Tx) error {
		var err error
		result, err = f.engine.ReconcilePlaylists(context.Background(), tx, f.channel, snaps, complete)
		return err
	})
	require.NoError(t, err)
	return result
}

func (f *fixture) video(t *testing.T, externalID string) *models.Video {
	t.Helper()
	v, err := f.store.Videos.GetByExternalID(context.Background(), f.channel.OwnerID, f.channel.ID, externalID)
	require.NoError(t, err)
	return v
}

func (f *fixture) itemExternalIDs(t *testing.T, playlistID string) []string {
	t.Helper()
	items, err := f.store.Playlists.Items(context.Background(), f.channel.OwnerID, playlistID)
	require.NoError(t, err)
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.VideoExternalID)
	}
	return ids
}

func apiVideo(id, title string) services.VideoSnapshot {
	published := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	return services.VideoSnapshot{
		ExternalID:      id,
		Source:          models.SourceAPI,
		Fields:          models.APIFields,
		Title:           title,
		Description:     "desc " + id,
		PublishedAt:     &published,
		DurationSeconds: 600,
		ThumbnailURL:    "https://img/" + id,
		Tags:            []string{"go"},
	}
}

func feedVideo(id, title string) services.VideoSnapshot {
	return services.VideoSnapshot{ExternalID: id, Source: models.SourceFeed, Fields: models.FeedFields, Title: title}
}

func entries(ids ...string) []services.PlaylistEntry {
	out := make([]services.PlaylistEntry, 0, len(ids))
	for _, id := range ids {
		out = append(out, services.PlaylistEntry{VideoExternalID: id, OwnerChannelID: channelExternalID})
	}
	return out
}

func TestReconcileChannel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	apply := func(meta *services.ChannelMetadata) bool {
		var changed bool
		require.NoError(t, f.store.WithTx(ctx, func(tx *repositories.Tx) error {
			var err error
			changed, err = f.engine.ReconcileChannel(ctx, tx, f.channel, meta)
			return err
		}))
		return changed
	}

	assert.True(t, apply(&services.ChannelMetadata{Title: "After", Handle: "@after"}))
	assert.False(t, apply(&services.ChannelMetadata{Title: "After", Handle: "@after"}), "second apply is a no-op")
	assert.False(t, apply(&services.ChannelMetadata{Title: "After"}), "empty fields are ignored")
	assert.False(t, apply(nil))

	stored, err := f.store.Channels.Get(ctx, f.channel.OwnerID, f.channel.ID)
	require.NoError(t, err)
	assert.Equal(t, "After", stored.Title)
	assert.Equal(t, "@after", stored.Handle)
}

func TestReconcileVideos(t *testing.T) {
	t.Run("same snapshot twice is idempotent", func(t *testing.T) {
		f := newFixture(t)
		snaps := []services.VideoSnapshot{apiVideo("v1", "One"), apiVideo("v2", "Two")}

		first := f.videos(t, snaps...)
		assert.Equal(t, 2, first.Inserted)
		assert.Zero(t, first.Updated)

		second := f.videos(t, snaps...)
		assert.Zero(t, second.Inserted)
		assert.Zero(t, second.Updated)
		assert.Equal(t, 2, second.Unchanged)
		assert.Empty(t, second.Errors)
	})

	t.Run("duplicate ids in one snapshot count once", func(t *testing.T) {
		f := newFixture(t)
		result := f.videos(t, apiVideo("v1", "One"), apiVideo("v1", "One again"))
		assert.Equal(t, 1, result.Inserted)
		assert.Equal(t, "One", f.video(t, "v1").Title)
	})

	t.Run("lower rank never overwrites higher rank", func(t *testing.T) {
		f := newFixture(t)
		f.videos(t, apiVideo("v1", "From API"))

		result := f.videos(t, feedVideo("v1", "From feed"))
		assert.Equal(t, 1, result.Unchanged)

		v := f.video(t, "v1")
		assert.Equal(t, "From API", v.Title)
		assert.Equal(t, models.SourceAPI, v.SourceRank)
	})

	t.Run("higher rank fills fields and raises rank", func(t *testing.T) {
		f := newFixture(t)
		f.videos(t, feedVideo("v1", "Title"))
		assert.Equal(t, models.SourceFeed, f.video(t, "v1").SourceRank)

		result := f.videos(t, apiVideo("v1", "Title"))
		assert.Equal(t, 1, result.Updated)

		v := f.video(t, "v1")
		assert.Equal(t, models.SourceAPI, v.SourceRank)
		assert.Equal(t, 600, v.DurationSeconds)
		assert.Equal(t, []string{"go"}, v.Tags)
	})

	t.Run("partial source leaves fields it does not carry", func(t *testing.T) {
		f := newFixture(t)
		f.videos(t, feedVideo("v1", "Old"))

		// a feed snapshot at equal rank only compares feed fields
		snap := feedVideo("v1", "New")
		snap.DurationSeconds = 999
		result := f.videos(t, snap)
		assert.Equal(t, 1, result.Updated)

		v := f.video(t, "v1")
		assert.Equal(t, "New", v.Title)
		assert.Zero(t, v.DurationSeconds)
	})

	t.Run("tombstoned videos are not resurrected", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		f.videos(t, apiVideo("v1", "One"))
		require.NoError(t, f.store.Videos.Delete(ctx, f.channel.OwnerID, f.video(t, "v1").ID))

		result := f.videos(t, apiVideo("v1", "One, edited"))
		assert.Zero(t, result.Inserted)
		assert.Zero(t, result.Updated)
		assert.Equal(t, 1, result.Suppressed)

		v := f.video(t, "v1")
		assert.True(t, v.Tombstoned())
		assert.Equal(t, "One", v.Title)
	})

	t.Run("bad item is isolated", func(t *testing.T) {
		f := newFixture(t)
		result := f.videos(t, apiVideo("v1", "One"), services.VideoSnapshot{Source: models.SourceAPI}, apiVideo("v2", "Two"))
		assert.Equal(t, 2, result.Inserted)
		require.Len(t, result.Errors, 1)
		assert.ErrorIs(t, result.Errors[0], shared.ErrValidation)
	})
}

func TestReconcilePlaylists(t *testing.T) {
	t.Run("first sync inserts, second is unchanged", func(t *testing.T) {
		f := newFixture(t)
		f.videos(t, apiVideo("v1", "One"), apiVideo("v2", "Two"))
		snap := services.PlaylistSnapshot{ExternalID: "PL1", Title: "Best of", Entries: entries("v1", "v2")}

		first := f.playlists(t, true, snap)
		assert.Equal(t, 1, first.Inserted)
		assert.Zero(t, first.StubsCreated)

		second := f.playlists(t, true, snap)
		assert.Zero(t, second.Inserted)
		assert.Zero(t, second.Updated)
		assert.Equal(t, 1, second.Unchanged)
	})

	t.Run("external reorder is mirrored", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		f.videos(t, apiVideo("v1", "One"), apiVideo("v2", "Two"))

		f.playlists(t, true, services.PlaylistSnapshot{ExternalID: "PL1", Title: "Mix", Entries: entries("v1", "v2")})
		result := f.playlists(t, true, services.PlaylistSnapshot{ExternalID: "PL1", Title: "Mix", Entries: entries("v2", "v1")})
		assert.Equal(t, 1, result.Updated)

		p, err := f.store.Playlists.GetSystem(ctx, f.channel.OwnerID, f.channel.ID, "PL1")
		require.NoError(t, err)
		assert.Equal(t, []string{"v2", "v1"}, f.itemExternalIDs(t, p.ID))
	})

	t.Run("unknown entries become stubs and foreign entries are dropped", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		snap := services.PlaylistSnapshot{ExternalID: "PL1", Title: "Mix", Entries: []services.PlaylistEntry{
			{VideoExternalID: "v1", OwnerChannelID: channelExternalID},
			{VideoExternalID: "x9", OwnerChannelID: "UCsomeoneelse"},
			{VideoExternalID: "v2"},
			{VideoExternalID: "v1", OwnerChannelID: channelExternalID},
		}}

		result := f.playlists(t, true, snap)
		assert.Equal(t, 2, result.StubsCreated)

		p, err := f.store.Playlists.GetSystem(ctx, f.channel.OwnerID, f.channel.ID, "PL1")
		require.NoError(t, err)
		assert.Equal(t, []string{"v1", "v2"}, f.itemExternalIDs(t, p.ID))
		assert.Equal(t, models.SourceStub, f.video(t, "v2").SourceRank)

		_, err = f.store.Videos.GetByExternalID(ctx, f.channel.OwnerID, f.channel.ID, "x9")
		assert.True(t, errors.Is(err, shared.ErrNotFound))

		// a later upload sync fills the stub in
		videos := f.videos(t, apiVideo("v2", "Two"))
		assert.Equal(t, 1, videos.Updated)
	})

	t.Run("tombstoned videos stay out of membership", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		f.videos(t, apiVideo("v1", "One"), apiVideo("v2", "Two"))
		require.NoError(t, f.store.Videos.Delete(ctx, f.channel.OwnerID, f.video(t, "v1").ID))

		f.playlists(t, true, services.PlaylistSnapshot{ExternalID: "PL1", Title: "Mix", Entries: entries("v1", "v2")})
		p, err := f.store.Playlists.GetSystem(ctx, f.channel.OwnerID, f.channel.ID, "PL1")
		require.NoError(t, err)
		assert.Equal(t, []string{"v2"}, f.itemExternalIDs(t, p.ID))
	})

	t.Run("missing playlists are deactivated only on complete listings", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		f.playlists(t, true,
			services.PlaylistSnapshot{ExternalID: "PL1", Title: "Keep"},
			services.PlaylistSnapshot{ExternalID: "PL2", Title: "Gone"},
		)

		partial := f.playlists(t, false, services.PlaylistSnapshot{ExternalID: "PL1", Title: "Keep"})
		assert.Zero(t, partial.Deactivated)

		deactivatedAt := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
		f.engine.now = func() time.Time { return deactivatedAt }
		complete := f.playlists(t, true, services.PlaylistSnapshot{ExternalID: "PL1", Title: "Keep"})
		assert.Equal(t, 1, complete.Deactivated)

		again := f.playlists(t, true, services.PlaylistSnapshot{ExternalID: "PL1", Title: "Keep"})
		assert.Zero(t, again.Deactivated)

		gone, err := f.store.Playlists.GetSystem(ctx, f.channel.OwnerID, f.channel.ID, "PL2")
		require.NoError(t, err)
		assert.False(t, gone.SourceActive)
		require.NotNil(t, gone.LastSyncedAt)
		assert.True(t, gone.LastSyncedAt.Equal(deactivatedAt), "deactivation stamps the sync time")

		// reappearing upstream reactivates it
		back := f.playlists(t, true,
			services.PlaylistSnapshot{ExternalID: "PL1", Title: "Keep"},
			services.PlaylistSnapshot{ExternalID: "PL2", Title: "Gone"},
		)
		assert.Equal(t, 1, back.Updated)
	})

	t.Run("manual playlists are untouched", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		f.videos(t, apiVideo("v1", "One"))

		manual := &models.Playlist{OwnerID: f.channel.OwnerID, Title: "Mine"}
		require.NoError(t, f.store.Playlists.CreateManual(ctx, manual))
		require.NoError(t, f.store.Playlists.AddItem(ctx, f.channel.OwnerID, manual.ID, f.video(t, "v1").ID))

		result := f.playlists(t, true)
		assert.Zero(t, result.Deactivated)

		stored, err := f.store.Playlists.Get(ctx, f.channel.OwnerID, manual.ID)
		require.NoError(t, err)
		assert.True(t, stored.SourceActive)
		assert.Equal(t, []string{"v1"}, f.itemExternalIDs(t, manual.ID))
	})
}

func TestConcurrentChannels(t *testing.T) {
	t.Run("overlapping runs for two channels both commit", func(t *testing.T) {
		db, err := shared.NewDatabase(filepath.Join(t.TempDir(), "tubesync.db"))
		require.NoError(t, err)
		t.Cleanup(func() { db.Close() })
		shared.ConfigureDatabase(db, 4, 4)
		require.NoError(t, shared.RunMigrations(db))

		store := repositories.NewStore(db)
		engine := NewEngine(log.New(io.Discard))
		ctx := context.Background()
		user, err := store.Users.Ensure(ctx, "owner@example.com")
		require.NoError(t, err)
		first := &models.Channel{OwnerID: user.ID, ExternalID: "UCaaaaaaaaaaaaaaaaaaaaaa", Title: "A"}
		second := &models.Channel{OwnerID: user.ID, ExternalID: "UCbbbbbbbbbbbbbbbbbbbbbb", Title: "B"}
		require.NoError(t, store.Channels.Create(ctx, first))
		require.NoError(t, store.Channels.Create(ctx, second))

		run := func(channel *models.Channel, before func(), snaps ...services.VideoSnapshot) (*VideoResult, error) {
			var result *VideoResult
			err := store.WithTx(ctx, func(tx *repositories.Tx) error {
				if _, err := tx.Channels.GetByExternalID(ctx, user.ID, channel.ExternalID); err != nil {
					return err
				}
				before()
				var err error
				if result, err = engine.ReconcileVideos(ctx, tx, channel, snaps); err != nil {
					return err
				}
				return tx.Channels.MarkSynced(ctx, user.ID, channel.ID, time.Now())
			})
			return result, err
		}

		var (
			wg          sync.WaitGroup
			reading     = make(chan struct{})
			started     = make(chan struct{})
			slow, quick *VideoResult
			slowErr     error
			quickErr    error
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			slow, slowErr = run(second, func() {
				close(reading)
				<-started
				time.Sleep(100 * time.Millisecond)
			}, apiVideo("b1", "B one"), apiVideo("b2", "B two"))
		}()
		go func() {
			defer wg.Done()
			<-reading
			close(started)
			quick, quickErr = run(first, func() {}, apiVideo("a1", "A one"))
		}()
		wg.Wait()

		require.NoError(t, slowErr)
		require.NoError(t, quickErr)
		assert.Equal(t, 2, slow.Inserted)
		assert.Empty(t, slow.Errors)
		assert.Equal(t, 1, quick.Inserted)
		assert.Empty(t, quick.Errors)

		for _, channel := range []*models.Channel{first, second} {
			stored, err := store.Channels.Get(ctx, user.ID, channel.ID)
			require.NoError(t, err)
			assert.NotNil(t, stored.LastSyncedAt, channel.Title)
		}
	})
}
