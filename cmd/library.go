package main

import (
	"context"
	"fmt"
	"io"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/tubesync/internal/formatter"
	"github.com/desertthunder/tubesync/internal/models"
	"github.com/desertthunder/tubesync/internal/shared"
)

// FoldersCreate creates a folder, optionally nested under --parent.
func (r *Runner) FoldersCreate(ctx context.Context, cmd *cli.Command) error {
	store, owner, err := r.owner(ctx, cmd)
	if err != nil {
		return err
	}

	folder := &models.Folder{OwnerID: owner.ID, Name: cmd.StringArg("name"), ParentID: cmd.String("parent")}
	if err := store.Folders.Create(ctx, folder); err != nil {
		return err
	}
	return r.writePlain("✓ Created folder %s (%s)\n", folder.Name, folder.ID)
}

func (r *Runner) FoldersList(ctx context.Context, cmd *cli.Command) error {
	store, owner, err := r.owner(ctx, cmd)
	if err != nil {
		return err
	}
	folders, err := store.Folders.List(ctx, owner.ID)
	if err != nil {
		return err
	}
	return r.render(cmd, folders, func(w io.Writer, f formatter.Format) error {
		return formatter.Folders(w, f, folders)
	})
}

func (r *Runner) FoldersRename(ctx context.Context, cmd *cli.Command) error {
	store, owner, err := r.owner(ctx, cmd)
	if err != nil {
		return err
	}

	id, name := cmd.StringArg("folder"), cmd.StringArg("name")
	if err := store.Folders.Rename(ctx, owner.ID, id, name); err != nil {
		return err
	}
	return r.writePlain("✓ Renamed folder %s to %s\n", id, name)
}

// FoldersDelete removes a folder. Channels inside it move back to the top level.
func (r *Runner) FoldersDelete(ctx context.Context, cmd *cli.Command) error {
	store, owner, err := r.owner(ctx, cmd)
	if err != nil {
		return err
	}

	id := cmd.StringArg("folder")
	if err := store.Folders.Delete(ctx, owner.ID, id); err != nil {
		return err
	}
	return r.writePlain("✓ Deleted folder %s\n", id)
}

func (r *Runner) TagsCreate(ctx context.Context, cmd *cli.Command) error {
	store, owner, err := r.owner(ctx, cmd)
	if err != nil {
		return err
	}

	tag := &models.Tag{OwnerID: owner.ID, Name: cmd.StringArg("name")}
	if err := store.Tags.Create(ctx, tag); err != nil {
		return err
	}
	return r.writePlain("✓ Created tag %s\n", tag.Name)
}

// TagsAttach labels a video, creating the tag on first use.
func (r *Runner) TagsAttach(ctx context.Context, cmd *cli.Command) error {
	name, videoID := cmd.StringArg("tag"), cmd.StringArg("video")
	if name == "" || videoID == "" {
		return fmt.Errorf("%w: tag and video", shared.ErrMissingArgument)
	}

	store, owner, err := r.owner(ctx, cmd)
	if err != nil {
		return err
	}
	tag, err := store.Tags.Ensure(ctx, owner.ID, name)
	if err != nil {
		return err
	}
	if err := store.Tags.Attach(ctx, owner.ID, videoID, tag.ID); err != nil {
		return err
	}
	return r.writePlain("✓ Tagged %s with %s\n", videoID, tag.Name)
}

func (r *Runner) TagsDetach(ctx context.Context, cmd *cli.Command) error {
	name, videoID := cmd.StringArg("tag"), cmd.StringArg("video")
	if name == "" || videoID == "" {
		return fmt.Errorf("%w: tag and video", shared.ErrMissingArgument)
	}

	store, owner, err := r.owner(ctx, cmd)
	if err != nil {
		return err
	}
	tag, err := store.Tags.GetByName(ctx, owner.ID, name)
	if err != nil {
		return err
	}
	if err := store.Tags.Detach(ctx, owner.ID, videoID, tag.ID); err != nil {
		return err
	}
	return r.writePlain("✓ Removed %s from %s\n", tag.Name, videoID)
}

func (r *Runner) TagsList(ctx context.Context, cmd *cli.Command) error {
	store, owner, err := r.owner(ctx, cmd)
	if err != nil {
		return err
	}
	tags, err := store.Tags.List(ctx, owner.ID)
	if err != nil {
		return err
	}
	return r.render(cmd, tags, func(w io.Writer, f formatter.Format) error {
		return formatter.Tags(w, f, tags)
	})
}

// VideosList prints videos newest first, filtered by channel, tag and shorts flags.
func (r *Runner) VideosList(ctx context.Context, cmd *cli.Command) error {
	store, owner, err := r.owner(ctx, cmd)
	if err != nil {
		return err
	}

	criteria := map[string]any{
		"tag":             cmd.String("tag"),
		"include_deleted": cmd.Bool("deleted"),
		"limit":           cmd.Int("limit"),
	}
	switch {
	case cmd.Bool("shorts") && cmd.Bool("no-shorts"):
		return fmt.Errorf("%w: --shorts and --no-shorts", shared.ErrInvalidArgument)
	case cmd.Bool("shorts"):
		criteria["is_short"] = true
	case cmd.Bool("no-shorts"):
		criteria["is_short"] = false
	}
	if ref := cmd.String("channel"); ref != "" {
		channel, err := r.channel(ctx, store, owner.ID, ref)
		if err != nil {
			return err
		}
		criteria["channel_id"] = channel.ID
	}

	videos, err := store.Videos.List(ctx, owner.ID, criteria)
	if err != nil {
		return err
	}
	return r.render(cmd, videos, func(w io.Writer, f formatter.Format) error {
		return formatter.Videos(w, f, videos)
	})
}

// VideosDelete tombstones a video so no later sync re-creates it.
func (r *Runner) VideosDelete(ctx context.Context, cmd *cli.Command) error {
	videoID := cmd.StringArg("video")
	if videoID == "" {
		return fmt.Errorf("%w: video", shared.ErrMissingArgument)
	}

	store, owner, err := r.owner(ctx, cmd)
	if err != nil {
		return err
	}
	if err := store.Videos.Delete(ctx, owner.ID, videoID); err != nil {
		return err
	}
	return r.writePlain("✓ Deleted video %s\n", videoID)
}

func (r *Runner) VideosWatched(ctx context.Context, cmd *cli.Command) error {
	return r.markVideo(ctx, cmd, "watched", func(store videoMarker, ownerID, id string, on bool) error {
		return store.SetWatched(ctx, ownerID, id, on)
	})
}

func (r *Runner) VideosFavorite(ctx context.Context, cmd *cli.Command) error {
	return r.markVideo(ctx, cmd, "favorite", func(store videoMarker, ownerID, id string, on bool) error {
		return store.SetFavorite(ctx, ownerID, id, on)
	})
}

type videoMarker interface {
	SetWatched(ctx context.Context, ownerID, id string, watched bool) error
	SetFavorite(ctx context.Context, ownerID, id string, favorite bool) error
}

// markVideo toggles a user flag on a live video; --off clears it.
func (r *Runner) markVideo(
	ctx context.Context, cmd *cli.Command, label string,
	set func(store videoMarker, ownerID, id string, on bool) error,
) error {
	videoID := cmd.StringArg("video")
	if videoID == "" {
		return fmt.Errorf("%w: video", shared.ErrMissingArgument)
	}

	store, owner, err := r.owner(ctx, cmd)
	if err != nil {
		return err
	}
	on := !cmd.Bool("off")
	if err := set(store.Videos, owner.ID, videoID, on); err != nil {
		return err
	}
	if on {
		return r.writePlain("✓ Marked %s %s\n", videoID, label)
	}
	return r.writePlain("✓ Cleared %s on %s\n", label, videoID)
}

func (r *Runner) PlaylistsList(ctx context.Context, cmd *cli.Command) error {
	store, owner, err := r.owner(ctx, cmd)
	if err != nil {
		return err
	}

	criteria := map[string]any{"kind": cmd.String("kind")}
	if ref := cmd.String("channel"); ref != "" {
		channel, err := r.channel(ctx, store, owner.ID, ref)
		if err != nil {
			return err
		}
		criteria["channel_id"] = channel.ID
	}

	playlists, err := store.Playlists.List(ctx, owner.ID, criteria)
	if err != nil {
		return err
	}
	return r.render(cmd, playlists, func(w io.Writer, f formatter.Format) error {
		return formatter.Playlists(w, f, playlists)
	})
}

// PlaylistsItems prints a playlist's videos in position order, or exports them with --export.
func (r *Runner) PlaylistsItems(ctx context.Context, cmd *cli.Command) error {
	store, owner, err := r.owner(ctx, cmd)
	if err != nil {
		return err
	}

	playlist, err := store.Playlists.Get(ctx, owner.ID, cmd.StringArg("playlist"))
	if err != nil {
		return err
	}
	items, err := store.Playlists.Items(ctx, owner.ID, playlist.ID)
	if err != nil {
		return err
	}

	if dir := cmd.String("export"); dir != "" {
		format, err := formatter.ParseFormat(cmd.String("format"))
		if err != nil {
			return err
		}
		path, err := formatter.WritePlaylistExport(dir, format, playlist, items)
		if err != nil {
			return err
		}
		r.logger.Info("playlist exported", "playlist", playlist.ID, "path", path)
		return r.writePlain("✓ Exported %d videos to %s\n", len(items), path)
	}

	return r.render(cmd, items, func(w io.Writer, f formatter.Format) error {
		return formatter.PlaylistItems(w, f, items)
	})
}

func (r *Runner) PlaylistsCreate(ctx context.Context, cmd *cli.Command) error {
	if cmd.StringArg("title") == "" {
		return fmt.Errorf("%w: title", shared.ErrMissingArgument)
	}

	store, owner, err := r.owner(ctx, cmd)
	if err != nil {
		return err
	}

	playlist := &models.Playlist{
		OwnerID:     owner.ID,
		Title:       cmd.StringArg("title"),
		Description: cmd.String("description"),
	}
	if err := store.Playlists.CreateManual(ctx, playlist); err != nil {
		return err
	}
	return r.writePlain("✓ Created playlist %s (%s)\n", playlist.Title, playlist.ID)
}

// PlaylistsAdd appends a video to a manual playlist. System playlists only change through sync.
func (r *Runner) PlaylistsAdd(ctx context.Context, cmd *cli.Command) error {
	store, owner, err := r.owner(ctx, cmd)
	if err != nil {
		return err
	}

	playlistID, videoID := cmd.StringArg("playlist"), cmd.StringArg("video")
	if err := store.Playlists.AddItem(ctx, owner.ID, playlistID, videoID); err != nil {
		return err
	}
	return r.writePlain("✓ Added %s to %s\n", videoID, playlistID)
}

func (r *Runner) PlaylistsRemove(ctx context.Context, cmd *cli.Command) error {
	store, owner, err := r.owner(ctx, cmd)
	if err != nil {
		return err
	}

	playlistID, videoID := cmd.StringArg("playlist"), cmd.StringArg("video")
	if err := store.Playlists.RemoveItem(ctx, owner.ID, playlistID, videoID); err != nil {
		return err
	}
	return r.writePlain("✓ Removed %s from %s\n", videoID, playlistID)
}

func (r *Runner) PlaylistsDelete(ctx context.Context, cmd *cli.Command) error {
	store, owner, err := r.owner(ctx, cmd)
	if err != nil {
		return err
	}

	id := cmd.StringArg("playlist")
	if err := store.Playlists.Delete(ctx, owner.ID, id); err != nil {
		return err
	}
	return r.writePlain("✓ Deleted playlist %s\n", id)
}
