package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/tubesync/internal/formatter"
	"github.com/desertthunder/tubesync/internal/models"
	"github.com/desertthunder/tubesync/internal/shared"
)

// ChannelsAdd resolves a channel reference, stores the channel and queues its initial full fetch and playlist sync.
func (r *Runner) ChannelsAdd(ctx context.Context, cmd *cli.Command) error {
	ref := cmd.StringArg("ref")
	if ref == "" {
		return fmt.Errorf("%w: channel reference", shared.ErrMissingArgument)
	}

	store, owner, err := r.owner(ctx, cmd)
	if err != nil {
		return err
	}

	resolver, err := r.channelResolver(ctx)
	if err != nil {
		return err
	}
	meta, err := resolver.ResolveChannel(ctx, ref)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", ref, err)
	}

	channel := &models.Channel{
		OwnerID:           owner.ID,
		ExternalID:        meta.ExternalID,
		Title:             meta.Title,
		Handle:            meta.Handle,
		Description:       meta.Description,
		ThumbnailURL:      meta.ThumbnailURL,
		UploadsPlaylistID: meta.UploadsPlaylistID,
	}
	if err := store.Channels.Create(ctx, channel); err != nil {
		if errors.Is(err, shared.ErrConflict) {
			return fmt.Errorf("%w: already subscribed to %s", shared.ErrConflict, meta.ExternalID)
		}
		return err
	}

	if folderID := cmd.String("folder"); folderID != "" {
		if err := store.Channels.MoveToFolder(ctx, owner.ID, channel.ID, folderID); err != nil {
			r.logger.Warn("channel added but not moved", "folder", folderID, "error", err)
		} else {
			channel.FolderID = folderID
		}
	}

	if err := r.scheduler(store, r.queue()).OnChannelCreated(ctx, owner.ID, channel.ID); err != nil {
		r.logger.Error("channel added but initial sync was not queued", "channel", channel.ID, "error", err)
		return r.writePlain("✓ Added %s (%s); initial sync not queued, run `tubesync channels refresh %s`\n",
			channel.Title, channel.ExternalID, channel.ID)
	}

	r.logger.Info("channel added", "channel", channel.ID, "external_id", channel.ExternalID)
	return r.writePlain("✓ Added %s (%s) as %s; initial sync queued\n", channel.Title, channel.ExternalID, channel.ID)
}

// ChannelsList prints the owner's channels with their last sync time.
func (r *Runner) ChannelsList(ctx context.Context, cmd *cli.Command) error {
	store, owner, err := r.owner(ctx, cmd)
	if err != nil {
		return err
	}

	criteria := map[string]any{"folder_id": cmd.String("folder")}
	if cmd.Bool("favorites") {
		criteria["is_favorited"] = true
	}
	if cmd.IsSet("unreachable") {
		criteria["unreachable"] = cmd.Bool("unreachable")
	}

	channels, err := store.Channels.List(ctx, owner.ID, criteria)
	if err != nil {
		return err
	}
	return r.render(cmd, channels, func(w io.Writer, f formatter.Format) error {
		return formatter.Channels(w, f, channels, r.now())
	})
}

// ChannelsRemove deletes a channel; its videos and system playlists go with it.
func (r *Runner) ChannelsRemove(ctx context.Context, cmd *cli.Command) error {
	store, owner, err := r.owner(ctx, cmd)
	if err != nil {
		return err
	}
	channel, err := r.channel(ctx, store, owner.ID, cmd.StringArg("ref"))
	if err != nil {
		return err
	}

	if err := store.Channels.Delete(ctx, owner.ID, channel.ID); err != nil {
		return err
	}
	r.logger.Info("channel removed", "channel", channel.ID)
	return r.writePlain("✓ Removed %s\n", channel.Title)
}

// ChannelsRefresh queues a refresh, or with --now runs it in this process and prints the outcome.
func (r *Runner) ChannelsRefresh(ctx context.Context, cmd *cli.Command) error {
	store, owner, err := r.owner(ctx, cmd)
	if err != nil {
		return err
	}
	channel, err := r.channel(ctx, store, owner.ID, cmd.StringArg("ref"))
	if err != nil {
		return err
	}

	queue := r.queue()
	if !cmd.Bool("now") {
		if err := r.scheduler(store, queue).OnManualRefreshRequested(ctx, owner.ID, channel.ID); err != nil {
			return err
		}
		return r.writePlain("✓ Refresh of %s queued\n", channel.Title)
	}

	executor, err := r.executor(ctx, store, queue)
	if err != nil {
		return err
	}
	job := models.NewSyncJob(models.JobRefresh, owner.ID, channel.ID, r.now(), 0)
	out := executor.Execute(ctx, job)

	switch out.State {
	case models.JobSucceeded:
	case models.JobRetrying:
		return fmt.Errorf("refresh failed (%s), retry queued in %s: %w", out.ErrorClass, out.RetryIn, out.Err)
	default:
		return fmt.Errorf("refresh failed (%s): %w", out.ErrorClass, out.Err)
	}
	return r.writePlain("✓ %s: %s\n", channel.Title, out.Summary())
}

// ChannelsFavorite sets or clears the favorite mark.
func (r *Runner) ChannelsFavorite(ctx context.Context, cmd *cli.Command) error {
	store, owner, err := r.owner(ctx, cmd)
	if err != nil {
		return err
	}
	channel, err := r.channel(ctx, store, owner.ID, cmd.StringArg("ref"))
	if err != nil {
		return err
	}

	favorite := !cmd.Bool("off")
	if err := store.Channels.SetFavorite(ctx, owner.ID, channel.ID, favorite); err != nil {
		return err
	}
	if favorite {
		return r.writePlain("★ %s\n", channel.Title)
	}
	return r.writePlain("☆ %s\n", channel.Title)
}

// ChannelsMove puts a channel into a folder; without a folder argument it leaves every folder.
func (r *Runner) ChannelsMove(ctx context.Context, cmd *cli.Command) error {
	store, owner, err := r.owner(ctx, cmd)
	if err != nil {
		return err
	}
	channel, err := r.channel(ctx, store, owner.ID, cmd.StringArg("ref"))
	if err != nil {
		return err
	}

	folderID := cmd.StringArg("folder")
	if err := store.Channels.MoveToFolder(ctx, owner.ID, channel.ID, folderID); err != nil {
		return err
	}
	if folderID == "" {
		return r.writePlain("✓ %s removed from its folder\n", channel.Title)
	}
	return r.writePlain("✓ %s moved to %s\n", channel.Title, folderID)
}
