package ui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/list"

	"github.com/desertthunder/tubesync/internal/models"
	"github.com/desertthunder/tubesync/internal/shared"
)

var (
	_ list.Item = channelItem{}
	_ list.Item = runItem{}
)

// channelItem wraps [models.Channel] to implement [list.Item].
type channelItem struct {
	channel *models.Channel
	now     time.Time
	pending bool
}

func (i channelItem) FilterValue() string { return i.channel.Title }
func (i channelItem) Title() string {
	title := i.channel.Title
	if title == "" {
		title = i.channel.ExternalID
	}
	if i.channel.IsFavorited {
		title = "★ " + title
	}
	return title
}

func (i channelItem) Description() string {
	desc := "synced " + shared.FormatSince(i.channel.LastSyncedAt, i.now)
	if !i.channel.Reachable() {
		desc = fmt.Sprintf("%s • %s", desc, styles.err.Render("unreachable"))
	}
	if i.pending {
		desc = fmt.Sprintf("%s • %s", desc, styles.warn.Render("refresh queued"))
	}
	return desc
}

// runItem wraps [models.SyncRun] to implement [list.Item].
type runItem struct {
	run *models.SyncRun
	now time.Time
}

func (i runItem) FilterValue() string { return string(i.run.Kind) }
func (i runItem) Title() string {
	return fmt.Sprintf("%s #%d %s", i.run.Kind, i.run.Attempt, styles.state(i.run.State).Render(string(i.run.State)))
}

func (i runItem) Description() string {
	finished := i.run.FinishedAt
	desc := fmt.Sprintf("%s • videos +%d ~%d • playlists +%d ~%d -%d",
		shared.FormatSince(&finished, i.now),
		i.run.VideosInserted, i.run.VideosUpdated,
		i.run.PlaylistsInserted, i.run.PlaylistsUpdated, i.run.PlaylistsDeactivated,
	)
	if i.run.ErrorClass != models.ClassNone {
		desc = fmt.Sprintf("%s • %s: %s", desc, i.run.ErrorClass, i.run.ErrorMessage)
	}
	return desc
}
