package main

import (
	"bytes"
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/desertthunder/tubesync/internal/models"
	"github.com/desertthunder/tubesync/internal/repositories"
	"github.com/desertthunder/tubesync/internal/services"
	"github.com/desertthunder/tubesync/internal/shared"
	"github.com/desertthunder/tubesync/internal/tasks"
	tu "github.com/desertthunder/tubesync/internal/testing"
)

const (
	testOwner   = "owner@example.com"
	testChannel = "UCabcdefghijklmnopqrstuv"
)

type staticResolver struct{ calls []string }

func (s *staticResolver) ResolveChannel(ctx context.Context, ref string) (*services.ChannelMetadata, error) {
	s.calls = append(s.calls, ref)
	return &services.ChannelMetadata{
		ExternalID: testChannel, Title: "Go Talks", Handle: "@gotalks", UploadsPlaylistID: "UUabcdefghijklmnopqrstuv",
	}, nil
}

type cliFixture struct {
	t        *testing.T
	db       *sql.DB
	store    *repositories.Store
	output   *bytes.Buffer
	resolver *staticResolver
	source   *tu.MockSource
	runner   *Runner
	config   string
}

func newCLIFixture(t *testing.T) *cliFixture {
	db := tu.NewTestDB(t)
	f := &cliFixture{
		t:        t,
		db:       db,
		store:    repositories.NewStore(db),
		output:   &bytes.Buffer{},
		resolver: &staticResolver{},
		source:   &tu.MockSource{},
		config:   filepath.Join(t.TempDir(), "missing.toml"),
	}
	f.runner = NewRunner(RunnerOpts{
		Logger:   shared.NewLogger(&bytes.Buffer{}),
		Output:   f.output,
		DB:       db,
		Resolver: f.resolver,
		Sources:  &tasks.Sources{API: f.source, Refresh: f.source},
	})
	return f
}

// run executes one CLI invocation and returns what it printed.
func (f *cliFixture) run(args ...string) (string, error) {
	f.t.Helper()
	f.output.Reset()
	argv := append([]string{"tubesync", "--config", f.config, "--owner", testOwner}, args...)
	err := newApp(f.runner).Run(context.Background(), argv)
	return f.output.String(), err
}

func (f *cliFixture) mustRun(args ...string) string {
	f.t.Helper()
	out, err := f.run(args...)
	require.NoError(f.t, err, "tubesync %s", strings.Join(args, " "))
	return out
}

func (f *cliFixture) owner() *models.User {
	user, err := f.store.Users.GetByEmail(context.Background(), testOwner)
	require.NoError(f.t, err)
	return user
}

func (f *cliFixture) pending() map[models.JobState]int {
	counts, err := repositories.NewJobQueue(f.db, 0, 0).Pending(context.Background())
	require.NoError(f.t, err)
	return counts
}

func TestRunner(t *testing.T) {
	t.Run("NewRunner", func(t *testing.T) {
		t.Run("with all dependencies provided", func(t *testing.T) {
			config := shared.DefaultConfig()
			logger := shared.NewLogger(nil)
			output := &bytes.Buffer{}
			resolver := &staticResolver{}

			runner := NewRunner(RunnerOpts{Config: config, Logger: logger, Output: output, Resolver: resolver})

			assert.Same(t, config, runner.config)
			assert.Same(t, logger, runner.logger)
			assert.Equal(t, output, runner.output)
			assert.Equal(t, resolver, runner.resolver)
			assert.Nil(t, runner.store, "store opens lazily")
		})

		t.Run("with nil options uses defaults", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{})

			assert.NotNil(t, runner.config)
			assert.NotNil(t, runner.logger)
			assert.Equal(t, os.Stdout, runner.output)
		})

		t.Run("injected database is not closed", func(t *testing.T) {
			db := tu.NewTestDB(t)
			runner := NewRunner(RunnerOpts{DB: db})

			require.NoError(t, runner.Close())
			assert.NoError(t, db.Ping())
		})
	})

	t.Run("writeJSON", func(t *testing.T) {
		t.Run("writes formatted JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			require.NoError(t, runner.writeJSON(map[string]string{"key": "value"}, true))
			assert.Contains(t, output.String(), `"key": "value"`)
			assert.True(t, strings.HasSuffix(output.String(), "\n"))
		})

		t.Run("writes compact JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			require.NoError(t, runner.writeJSON(map[string]string{"key": "value"}, false))
			assert.Equal(t, `{"key":"value"}`+"\n", output.String())
		})

		t.Run("handles marshal error with non-serializable data", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &bytes.Buffer{}})

			err := runner.writeJSON(make(chan int), false)
			assert.ErrorContains(t, err, "failed to marshal JSON")
		})

		t.Run("handles write failure", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &tu.FWriter{}})

			err := runner.writeJSON(map[string]string{"key": "value"}, false)
			assert.ErrorContains(t, err, "failed to write output")
		})

		t.Run("handles newline write failure", func(t *testing.T) {
			limitedWriter := tu.NewLimitedWriter(1, 0, &bytes.Buffer{})
			runner := NewRunner(RunnerOpts{Output: &limitedWriter})

			err := runner.writeJSON(map[string]string{"key": "value"}, false)
			assert.ErrorContains(t, err, "failed to write newline")
		})
	})

	t.Run("writePlain", func(t *testing.T) {
		output := &bytes.Buffer{}
		runner := NewRunner(RunnerOpts{Output: output})

		require.NoError(t, runner.writePlain("hello %s", "world"))
		assert.Equal(t, "hello world", output.String())

		runner = NewRunner(RunnerOpts{Output: &tu.FWriter{}})
		assert.ErrorContains(t, runner.writePlain("test"), "failed to write output")
	})

	t.Run("register", func(t *testing.T) {
		commands := NewRunner(RunnerOpts{}).register()
		require.NotEmpty(t, commands)

		names := map[string]bool{}
		for i, cmd := range commands {
			require.NotNil(t, cmd, "command at index %d", i)
			names[cmd.Name] = true
		}
		for _, want := range []string{"setup", "auth", "channels", "folders", "tags", "videos", "playlists", "sync", "tui"} {
			assert.True(t, names[want], "missing command %s", want)
		}
	})
}

func TestChannelsCommands(t *testing.T) {
	t.Run("add stores the channel and queues the initial sync", func(t *testing.T) {
		f := newCLIFixture(t)

		out := f.mustRun("channels", "add", "@gotalks")
		assert.Contains(t, out, "initial sync queued")
		assert.Equal(t, []string{"@gotalks"}, f.resolver.calls)

		channel, err := f.store.Channels.GetByExternalID(context.Background(), f.owner().ID, testChannel)
		require.NoError(t, err)
		assert.Equal(t, "Go Talks", channel.Title)
		assert.Nil(t, channel.LastSyncedAt)
		assert.Equal(t, 2, f.pending()[models.JobQueued], "full_fetch and sync_playlists")
	})

	t.Run("adding twice is a conflict", func(t *testing.T) {
		f := newCLIFixture(t)
		f.mustRun("channels", "add", testChannel)

		_, err := f.run("channels", "add", testChannel)
		assert.ErrorIs(t, err, shared.ErrConflict)
	})

	t.Run("list renders the requested format", func(t *testing.T) {
		f := newCLIFixture(t)
		f.mustRun("channels", "add", testChannel)

		out := f.mustRun("channels", "list", "--format", "csv")
		assert.Contains(t, out, "Go Talks")
		assert.Contains(t, out, "@gotalks")

		out = f.mustRun("channels", "list", "--unreachable")
		assert.NotContains(t, out, "Go Talks")
	})

	t.Run("refresh queues a job", func(t *testing.T) {
		f := newCLIFixture(t)
		f.mustRun("channels", "add", testChannel)

		out := f.mustRun("channels", "refresh", testChannel)
		assert.Contains(t, out, "queued")
		assert.Equal(t, 3, f.pending()[models.JobQueued])
	})

	t.Run("refresh --now reconciles in process", func(t *testing.T) {
		f := newCLIFixture(t)
		f.mustRun("channels", "add", testChannel)
		f.source.Snapshots = []*services.ChannelSnapshot{{
			Source:  models.SourceFeed,
			Channel: &services.ChannelMetadata{ExternalID: testChannel, Title: "Go Talks"},
			Videos: []services.VideoSnapshot{
				{ExternalID: "vid1", Source: models.SourceFeed, Fields: models.FeedFields, Title: "First"},
				{ExternalID: "vid2", Source: models.SourceFeed, Fields: models.FeedFields, Title: "Second"},
			},
		}}

		out := f.mustRun("channels", "refresh", "--now", testChannel)
		assert.Contains(t, out, "videos +2")
		assert.Equal(t, 1, f.source.Calls())

		out = f.mustRun("videos", "list", "--channel", testChannel)
		assert.Contains(t, out, "First")
		assert.Contains(t, out, "Second")

		out = f.mustRun("sync", "runs", "--format", "csv")
		assert.Contains(t, out, "refresh")
		assert.Contains(t, out, "succeeded")
	})

	t.Run("refresh --now reports failures", func(t *testing.T) {
		f := newCLIFixture(t)
		f.mustRun("channels", "add", testChannel)
		f.source.Errors = []error{shared.ErrQuotaExceeded}

		_, err := f.run("channels", "refresh", "--now", testChannel)
		assert.ErrorIs(t, err, shared.ErrQuotaExceeded)
	})

	t.Run("favorite, move and remove", func(t *testing.T) {
		f := newCLIFixture(t)
		ctx := context.Background()
		f.mustRun("channels", "add", testChannel)
		f.mustRun("folders", "create", "Tech")

		folders, err := f.store.Folders.List(ctx, f.owner().ID)
		require.NoError(t, err)
		require.Len(t, folders, 1)

		f.mustRun("channels", "favorite", testChannel)
		f.mustRun("channels", "move", testChannel, folders[0].ID)

		channel, err := f.store.Channels.GetByExternalID(ctx, f.owner().ID, testChannel)
		require.NoError(t, err)
		assert.True(t, channel.IsFavorited)
		assert.Equal(t, folders[0].ID, channel.FolderID)

		f.mustRun("channels", "remove", channel.ID)
		_, err = f.store.Channels.Get(ctx, f.owner().ID, channel.ID)
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("unknown channel", func(t *testing.T) {
		f := newCLIFixture(t)
		_, err := f.run("channels", "refresh", "UCnope")
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}

func TestLibraryCommands(t *testing.T) {
	f := newCLIFixture(t)
	ctx := context.Background()
	f.mustRun("channels", "add", testChannel)
	f.source.Snapshots = []*services.ChannelSnapshot{{
		Source: models.SourceAPI,
		Videos: []services.VideoSnapshot{
			{ExternalID: "vid1", Source: models.SourceAPI, Fields: models.APIFields, Title: "Keeper"},
			{ExternalID: "vid2", Source: models.SourceAPI, Fields: models.APIFields, Title: "Doomed"},
		},
	}}
	f.mustRun("channels", "refresh", "--now", testChannel)

	channel, err := f.store.Channels.GetByExternalID(ctx, f.owner().ID, testChannel)
	require.NoError(t, err)
	keeper, err := f.store.Videos.GetByExternalID(ctx, f.owner().ID, channel.ID, "vid1")
	require.NoError(t, err)
	doomed, err := f.store.Videos.GetByExternalID(ctx, f.owner().ID, channel.ID, "vid2")
	require.NoError(t, err)

	t.Run("tags attach creates the tag", func(t *testing.T) {
		f.mustRun("tags", "attach", "later", keeper.ID)

		out := f.mustRun("videos", "list", "--tag", "later")
		assert.Contains(t, out, "Keeper")
		assert.NotContains(t, out, "Doomed")
		assert.Contains(t, f.mustRun("tags", "list"), "later")
	})

	t.Run("videos delete tombstones", func(t *testing.T) {
		f.mustRun("videos", "delete", doomed.ID)

		assert.NotContains(t, f.mustRun("videos", "list"), "Doomed")
		assert.Contains(t, f.mustRun("videos", "list", "--deleted"), "[deleted] Doomed")

		_, err := f.run("videos", "delete", doomed.ID)
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("tags detach", func(t *testing.T) {
		f.mustRun("tags", "attach", "skip", keeper.ID)
		f.mustRun("tags", "detach", "skip", keeper.ID)

		assert.NotContains(t, f.mustRun("videos", "list", "--tag", "skip"), "Keeper")
		_, err := f.run("tags", "detach", "skip", keeper.ID)
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("watched and favorite flags", func(t *testing.T) {
		f.mustRun("videos", "watched", keeper.ID)
		f.mustRun("videos", "favorite", keeper.ID)

		v, err := f.store.Videos.Get(ctx, f.owner().ID, keeper.ID)
		require.NoError(t, err)
		assert.True(t, v.IsWatched)
		assert.True(t, v.IsFavorited)

		out := f.mustRun("videos", "watched", "--off", keeper.ID)
		assert.Contains(t, out, "Cleared watched")
		v, err = f.store.Videos.Get(ctx, f.owner().ID, keeper.ID)
		require.NoError(t, err)
		assert.False(t, v.IsWatched)

		_, err = f.run("videos", "favorite", doomed.ID)
		assert.ErrorIs(t, err, shared.ErrNotFound, "tombstoned videos cannot be marked")
	})

	t.Run("folders rename and delete", func(t *testing.T) {
		f.mustRun("folders", "create", "Music")
		folders, err := f.store.Folders.List(ctx, f.owner().ID)
		require.NoError(t, err)
		require.Len(t, folders, 1)
		id := folders[0].ID

		f.mustRun("channels", "move", testChannel, id)
		f.mustRun("folders", "rename", id, "Concerts")
		assert.Contains(t, f.mustRun("folders", "list"), "Concerts")

		f.mustRun("folders", "delete", id)
		moved, err := f.store.Channels.Get(ctx, f.owner().ID, channel.ID)
		require.NoError(t, err)
		assert.Empty(t, moved.FolderID)
	})

	t.Run("conflicting shorts flags", func(t *testing.T) {
		_, err := f.run("videos", "list", "--shorts", "--no-shorts")
		assert.ErrorIs(t, err, shared.ErrInvalidArgument)
	})

	t.Run("sweep queues one refresh per channel", func(t *testing.T) {
		before := f.pending()[models.JobQueued]
		out := f.mustRun("sync", "sweep")
		assert.Contains(t, out, "Swept 1 channels")
		assert.Equal(t, before+1, f.pending()[models.JobQueued])
	})
}

func TestPlaylistsCommands(t *testing.T) {
	f := newCLIFixture(t)
	ctx := context.Background()
	f.mustRun("channels", "add", testChannel)

	owner := f.owner()
	channel, err := f.store.Channels.GetByExternalID(ctx, owner.ID, testChannel)
	require.NoError(t, err)

	var playlist *models.Playlist
	err = f.store.WithTx(ctx, func(tx *repositories.Tx) error {
		v1, err := tx.Videos.InsertStub(ctx, owner.ID, channel.ID, "vid1")
		if err != nil {
			return err
		}
		v2, err := tx.Videos.InsertStub(ctx, owner.ID, channel.ID, "vid2")
		if err != nil {
			return err
		}
		playlist = &models.Playlist{
			OwnerID: owner.ID, Kind: models.PlaylistSystem, Title: "Best of", ChannelID: channel.ID,
			ExternalID: "PLbest", SourceActive: true,
		}
		if err := tx.Playlists.InsertSystem(ctx, playlist); err != nil {
			return err
		}
		return tx.Playlists.ReplaceItems(ctx, owner.ID, playlist.ID, []string{v2.ID, v1.ID}, f.runner.now())
	})
	require.NoError(t, err)

	t.Run("list", func(t *testing.T) {
		out := f.mustRun("playlists", "list", "--channel", testChannel)
		assert.Contains(t, out, "Best of")
	})

	t.Run("items keep order", func(t *testing.T) {
		out := f.mustRun("playlists", "items", playlist.ID, "--format", "csv")
		assert.Less(t, strings.Index(out, "vid2"), strings.Index(out, "vid1"))
	})

	t.Run("manual playlists", func(t *testing.T) {
		out := f.mustRun("playlists", "create", "Queue", "--description", "for later")
		assert.Contains(t, out, "Created playlist Queue")

		manual, err := f.store.Playlists.List(ctx, owner.ID, map[string]any{"kind": "manual"})
		require.NoError(t, err)
		require.Len(t, manual, 1)
		id := manual[0].ID

		video, err := f.store.Videos.GetByExternalID(ctx, f.owner().ID, channel.ID, "vid1")
		require.NoError(t, err)
		f.mustRun("playlists", "add", id, video.ID)
		assert.Contains(t, f.mustRun("playlists", "items", id), "vid1")

		f.mustRun("playlists", "remove", id, video.ID)
		assert.NotContains(t, f.mustRun("playlists", "items", id), "vid1")

		f.mustRun("playlists", "delete", id)
		_, err = f.store.Playlists.Get(ctx, owner.ID, id)
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("system playlists are read-only", func(t *testing.T) {
		video, err := f.store.Videos.GetByExternalID(ctx, f.owner().ID, channel.ID, "vid1")
		require.NoError(t, err)

		_, err = f.run("playlists", "add", playlist.ID, video.ID)
		assert.ErrorIs(t, err, shared.ErrInvalidInput)
		_, err = f.run("playlists", "delete", playlist.ID)
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})

	t.Run("create needs a title", func(t *testing.T) {
		_, err := f.run("playlists", "create")
		assert.ErrorIs(t, err, shared.ErrMissingArgument)
	})

	t.Run("export", func(t *testing.T) {
		dir := t.TempDir()
		out := f.mustRun("playlists", "items", playlist.ID, "--format", "markdown", "--export", dir)
		assert.Contains(t, out, "Exported 2 videos")

		path := filepath.Join(dir, playlist.ID+".md")
		tu.AssertFileExists(t, path)
		assert.Contains(t, tu.MustReadFile(t, path), "# Best of")
	})
}
