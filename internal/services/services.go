package services

import (
	"context"
	"time"

	"github.com/desertthunder/tubesync/internal/models"
	"github.com/desertthunder/tubesync/internal/shared"
)

// Source produces a point-in-time snapshot of an external channel.
//
// Failures wrap one of [shared.ErrNotFound], [shared.ErrRateLimited], [shared.ErrTransient]
// or [shared.ErrQuotaExceeded] so callers can classify them with errors.Is.
type Source interface {
	FetchChannelSnapshot(ctx context.Context, req SnapshotRequest) (*ChannelSnapshot, error)
}

// Mode selects how much of a channel a snapshot covers.
type Mode int

const (
	ModeFull      Mode = iota // channel metadata plus the upload history, up to the full-fetch limit
	ModeLatest                // channel metadata plus the newest uploads page
	ModePlaylists             // the channel's public playlists and their entries
)

func (m Mode) String() string {
	switch m {
	case ModeFull:
		return "full"
	case ModeLatest:
		return "latest"
	case ModePlaylists:
		return "playlists"
	default:
		return "unknown"
	}
}

// SnapshotRequest identifies the channel to fetch.
type SnapshotRequest struct {
	ExternalChannelID string
	UploadsPlaylistID string // optional; saves a channels.list call when known
	Mode              Mode
	KnownVideoIDs     map[string]struct{} // read by [RefreshSource] only
}

// ChannelSnapshot is what a source saw for one channel.
type ChannelSnapshot struct {
	Source            models.SourceRank
	Channel           *ChannelMetadata // nil when not fetched
	Videos            []VideoSnapshot  // source order, newest first for uploads
	Playlists         []PlaylistSnapshot
	PlaylistsComplete bool // true only when every playlist of the channel was listed
}

// ChannelMetadata is the sync-owned part of a channel.
type ChannelMetadata struct {
	ExternalID        string
	Title             string
	Handle            string
	Description       string
	ThumbnailURL      string
	UploadsPlaylistID string
}

// VideoSnapshot is one video as reported by a source.
//
// Fields lists exactly which of the value fields the source populated; the others are zero and must be ignored.
type VideoSnapshot struct {
	ExternalID      string
	Source          models.SourceRank
	Fields          models.FieldSet
	Title           string
	Description     string
	PublishedAt     *time.Time
	DurationSeconds int
	ThumbnailURL    string
	Tags            []string
	IsShort         bool
}

// PlaylistSnapshot is one external playlist with its ordered entries.
type PlaylistSnapshot struct {
	ExternalID   string
	Title        string
	Description  string
	ThumbnailURL string
	Entries      []PlaylistEntry
}

// PlaylistEntry is one position of an external playlist.
type PlaylistEntry struct {
	VideoExternalID string
	OwnerChannelID  string // channel that uploaded the video; empty when the source does not say
}

// IDs returns the external IDs of s's videos in order.
func (s *ChannelSnapshot) IDs() []string {
	ids := make([]string, 0, len(s.Videos))
	for _, v := range s.Videos {
		ids = append(ids, v.ExternalID)
	}
	return ids
}

// Limits caps how much a source fetches per snapshot.
type Limits struct {
	FullFetch    int
	Refresh      int
	Playlists    int
	PlaylistItem int
}

// ShortsPolicy decides whether a video is a short.
type ShortsPolicy struct {
	MaxSeconds int
	Default    bool
}

// LimitsFromConfig reads fetch limits from the sync section.
func LimitsFromConfig(cfg shared.SyncConfig) Limits {
	return Limits{
		FullFetch:    cfg.FullFetchLimit,
		Refresh:      cfg.RefreshLimit,
		Playlists:    cfg.PlaylistLimit,
		PlaylistItem: cfg.PlaylistItemLimit,
	}
}

// ShortsPolicyFromConfig reads the shorts heuristic settings from the sync section.
func ShortsPolicyFromConfig(cfg shared.SyncConfig) ShortsPolicy {
	return ShortsPolicy{MaxSeconds: cfg.ShortsMaxSeconds, Default: cfg.ShortsDefault}
}
