package reconcile

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/tubesync/internal/models"
	"github.com/desertthunder/tubesync/internal/repositories"
	"github.com/desertthunder/tubesync/internal/services"
	"github.com/desertthunder/tubesync/internal/shared"
)

// Engine applies channel snapshots to the store.
//
// Every method runs inside the caller's transaction and isolates each item in its own savepoint,
// so one bad video or playlist is recorded and skipped without losing the rest of the run.
type Engine struct {
	logger *log.Logger
	now    func() time.Time
}

// NewEngine creates an [Engine] logging to logger.
func NewEngine(logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.Default()
	}
	return &Engine{logger: logger, now: time.Now}
}

// ItemError records one item that could not be reconciled.
type ItemError struct {
	Kind       string // "video" or "playlist"
	ExternalID string
	Err        error
}

func (e ItemError) Error() string {
	return fmt.Sprintf("reconcile %s %s: %v", e.Kind, e.ExternalID, e.Err)
}

func (e ItemError) Unwrap() error {
	return e.Err
}

// VideoResult counts what [Engine.ReconcileVideos] did.
//
// Suppressed counts tombstoned videos that were seen again; they are also counted as unchanged.
type VideoResult struct {
	Inserted   int
	Updated    int
	Unchanged  int
	Suppressed int
	Errors     []ItemError
}

// PlaylistResult counts what [Engine.ReconcilePlaylists] did.
type PlaylistResult struct {
	Inserted     int
	Updated      int
	Unchanged    int
	Deactivated  int
	StubsCreated int
	Errors       []ItemError
}

type outcome int

const (
	outcomeUnchanged outcome = iota
	outcomeInserted
	outcomeUpdated
	outcomeSuppressed
)

// ReconcileChannel copies non-empty metadata fields onto channel when they differ and reports whether it wrote.
func (e *Engine) ReconcileChannel(
	ctx context.Context, tx *repositories.Tx, channel *models.Channel, meta *services.ChannelMetadata,
) (bool, error) {
	if meta == nil {
		return false, nil
	}

	changed := false
	assign := func(dst *string, src string) {
		if src != "" && *dst != src {
			*dst = src
			changed = true
		}
	}
	assign(&channel.Title, meta.Title)
	assign(&channel.Handle, meta.Handle)
	assign(&channel.Description, meta.Description)
	assign(&channel.ThumbnailURL, meta.ThumbnailURL)
	assign(&channel.UploadsPlaylistID, meta.UploadsPlaylistID)

	if !changed {
		return false, nil
	}
	if err := tx.Channels.UpdateMetadata(ctx, channel); err != nil {
		return false, err
	}
	return true, nil
}

// ReconcileVideos upserts snapshot videos by (channel, external id).
//
// Existing rows are only overwritten by data of equal or higher source rank, and only the fields the
// snapshot populated are compared and written. Tombstoned rows are never written. Nothing is deleted.
func (e *Engine) ReconcileVideos(
	ctx context.Context, tx *repositories.Tx, channel *models.Channel, videos []services.VideoSnapshot,
) (*VideoResult, error) {
	result := &VideoResult{}
	seen := make(map[string]struct{}, len(videos))

	for _, snap := range videos {
		if _, dup := seen[snap.ExternalID]; dup {
			continue
		}
		seen[snap.ExternalID] = struct{}{}

		if err := ctx.Err(); err != nil {
			return result, err
		}

		var out outcome
		err := tx.Savepoint(ctx, func() error {
			var err error
			out, err = e.upsertVideo(ctx, tx, channel, snap)
			return err
		})
		if err != nil {
			e.logger.Warn("video not reconciled", "channel", channel.ID, "video", snap.ExternalID, "err", err)
			result.Errors = append(result.Errors, ItemError{Kind: "video", ExternalID: snap.ExternalID, Err: err})
			continue
		}

		switch out {
		case outcomeInserted:
			result.Inserted++
		case outcomeUpdated:
			result.Updated++
		case outcomeSuppressed:
			result.Suppressed++
			result.Unchanged++
		default:
			result.Unchanged++
		}
	}
	return result, nil
}

func (e *Engine) upsertVideo(
	ctx context.Context, tx *repositories.Tx, channel *models.Channel, snap services.VideoSnapshot,
) (outcome, error) {
	if snap.ExternalID == "" {
		return outcomeUnchanged, fmt.Errorf("%w: video without external id", shared.ErrValidation)
	}

	existing, err := tx.Videos.GetByExternalID(ctx, channel.OwnerID, channel.ID, snap.ExternalID)
	if errors.Is(err, shared.ErrNotFound) {
		video := &models.Video{OwnerID: channel.OwnerID, ChannelID: channel.ID, ExternalID: snap.ExternalID}
		applyFields(video, snap)
		video.SourceRank = snap.Source
		if err := tx.Videos.Insert(ctx, video); err != nil {
			return outcomeUnchanged, err
		}
		return outcomeInserted, nil
	}
	if err != nil {
		return outcomeUnchanged, err
	}

	switch {
	case existing.Tombstoned():
		return outcomeSuppressed, nil
	case snap.Source < existing.SourceRank:
		return outcomeUnchanged, nil
	case !applyFields(existing, snap):
		return outcomeUnchanged, nil
	}

	existing.SourceRank = max(existing.SourceRank, snap.Source)
	if err := tx.Videos.UpdateSynced(ctx, existing); err != nil {
		return outcomeUnchanged, err
	}
	return outcomeUpdated, nil
}

// applyFields copies the fields named by snap.Fields onto v and reports whether any of them differed.
func applyFields(v *models.Video, snap services.VideoSnapshot) bool {
	changed := false
	if snap.Fields.Has(models.FieldTitle) && v.Title != snap.Title {
		v.Title, changed = snap.Title, true
	}
	if snap.Fields.Has(models.FieldDescription) && v.Description != snap.Description {
		v.Description, changed = snap.Description, true
	}
	if snap.Fields.Has(models.FieldPublishedAt) && !sameTime(v.PublishedAt, snap.PublishedAt) {
		v.PublishedAt, changed = snap.PublishedAt, true
	}
	if snap.Fields.Has(models.FieldDuration) && v.DurationSeconds != snap.DurationSeconds {
		v.DurationSeconds, changed = snap.DurationSeconds, true
	}
	if snap.Fields.Has(models.FieldThumbnail) && v.ThumbnailURL != snap.ThumbnailURL {
		v.ThumbnailURL, changed = snap.ThumbnailURL, true
	}
	if snap.Fields.Has(models.FieldTags) && !sameTags(v.Tags, snap.Tags) {
		v.Tags, changed = slices.Clone(snap.Tags), true
	}
	if snap.Fields.Has(models.FieldShort) && v.IsShort != snap.IsShort {
		v.IsShort, changed = snap.IsShort, true
	}
	return changed
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func sameTags(a, b []string) bool {
	return len(a) == len(b) && (len(a) == 0 || slices.Equal(a, b))
}

// ReconcilePlaylists mirrors a channel's external playlists into system playlists.
//
// Membership keeps only entries uploaded by this channel, first occurrence wins, and videos not stored
// yet are created as stubs. Tombstoned videos are left out. When complete is true, system playlists
// missing from the snapshot are deactivated. Manual playlists are never touched.
func (e *Engine) ReconcilePlaylists(
	ctx context.Context, tx *repositories.Tx, channel *models.Channel, playlists []services.PlaylistSnapshot, complete bool,
) (*PlaylistResult, error) {
	result := &PlaylistResult{}
	seen := make(map[string]struct{}, len(playlists))

	for _, snap := range playlists {
		if _, dup := seen[snap.ExternalID]; dup {
			continue
		}
		seen[snap.ExternalID] = struct{}{}

		if err := ctx.Err(); err != nil {
			return result, err
		}

		var (
			out   outcome
			stubs int
		)
		err := tx.Savepoint(ctx, func() error {
			var err error
			out, stubs, err = e.upsertPlaylist(ctx, tx, channel, snap)
			return err
		})
		if err != nil {
			e.logger.Warn("playlist not reconciled", "channel", channel.ID, "playlist", snap.ExternalID, "err", err)
			result.Errors = append(result.Errors, ItemError{Kind: "playlist", ExternalID: snap.ExternalID, Err: err})
			continue
		}

		result.StubsCreated += stubs
		switch out {
		case outcomeInserted:
			result.Inserted++
		case outcomeUpdated:
			result.Updated++
		default:
			result.Unchanged++
		}
	}

	if !complete {
		return result, nil
	}

	stored, err := tx.Playlists.ListSystemForChannel(ctx, channel.OwnerID, channel.ID)
	if err != nil {
		return result, err
	}
	for _, p := range stored {
		if _, ok := seen[p.ExternalID]; ok || !p.SourceActive {
			continue
		}
		if err := tx.Playlists.SetSourceActive(ctx, channel.OwnerID, p.ID, false, e.now()); err != nil {
			result.Errors = append(result.Errors, ItemError{Kind: "playlist", ExternalID: p.ExternalID, Err: err})
			continue
		}
		result.Deactivated++
	}
	return result, nil
}

func (e *Engine) upsertPlaylist(
	ctx context.Context, tx *repositories.Tx, channel *models.Channel, snap services.PlaylistSnapshot,
) (outcome, int, error) {
	if snap.ExternalID == "" {
		return outcomeUnchanged, 0, fmt.Errorf("%w: playlist without external id", shared.ErrValidation)
	}
	now := e.now().UTC()

	out := outcomeUnchanged
	playlist, err := tx.Playlists.GetSystem(ctx, channel.OwnerID, channel.ID, snap.ExternalID)
	switch {
	case errors.Is(err, shared.ErrNotFound):
		playlist = &models.Playlist{
			OwnerID:      channel.OwnerID,
			ChannelID:    channel.ID,
			ExternalID:   snap.ExternalID,
			Title:        snap.Title,
			Description:  snap.Description,
			ThumbnailURL: snap.ThumbnailURL,
			LastSyncedAt: &now,
		}
		if err := tx.Playlists.InsertSystem(ctx, playlist); err != nil {
			return outcomeUnchanged, 0, err
		}
		out = outcomeInserted
	case err != nil:
		return outcomeUnchanged, 0, err
	case playlist.Title != snap.Title || playlist.Description != snap.Description ||
		playlist.ThumbnailURL != snap.ThumbnailURL || !playlist.SourceActive:
		playlist.Title = snap.Title
		playlist.Description = snap.Description
		playlist.ThumbnailURL = snap.ThumbnailURL
		if err := tx.Playlists.UpdateSystemMetadata(ctx, playlist, now); err != nil {
			return outcomeUnchanged, 0, err
		}
		out = outcomeUpdated
	}

	desired, stubs, err := e.desiredOrder(ctx, tx, channel, snap.Entries)
	if err != nil {
		return outcomeUnchanged, 0, err
	}

	items, err := tx.Playlists.Items(ctx, channel.OwnerID, playlist.ID)
	if err != nil {
		return outcomeUnchanged, 0, err
	}
	current := make([]string, 0, len(items))
	for _, item := range items {
		current = append(current, item.VideoID)
	}

	if !slices.Equal(current, desired) {
		if err := tx.Playlists.ReplaceItems(ctx, channel.OwnerID, playlist.ID, desired, now); err != nil {
			return outcomeUnchanged, 0, err
		}
		if out == outcomeUnchanged {
			if err := tx.Playlists.Touch(ctx, channel.OwnerID, playlist.ID, now); err != nil {
				return outcomeUnchanged, 0, err
			}
			out = outcomeUpdated
		}
	}
	return out, stubs, nil
}

// desiredOrder resolves playlist entries to stored video IDs, creating stubs for unknown uploads.
func (e *Engine) desiredOrder(
	ctx context.Context, tx *repositories.Tx, channel *models.Channel, entries []services.PlaylistEntry,
) ([]string, int, error) {
	var (
		ids   = make([]string, 0, len(entries))
		seen  = make(map[string]struct{}, len(entries))
		stubs int
	)
	for _, entry := range entries {
		if entry.VideoExternalID == "" {
			continue
		}
		if entry.OwnerChannelID != "" && entry.OwnerChannelID != channel.ExternalID {
			continue
		}
		if _, dup := seen[entry.VideoExternalID]; dup {
			continue
		}
		seen[entry.VideoExternalID] = struct{}{}

		video, err := tx.Videos.GetByExternalID(ctx, channel.OwnerID, channel.ID, entry.VideoExternalID)
		if errors.Is(err, shared.ErrNotFound) {
			video, err = tx.Videos.InsertStub(ctx, channel.OwnerID, channel.ID, entry.VideoExternalID)
			if err != nil {
				return nil, 0, err
			}
			stubs++
		} else if err != nil {
			return nil, 0, err
		}

		if video.Tombstoned() {
			continue
		}
		ids = append(ids, video.ID)
	}
	return ids, stubs, nil
}
