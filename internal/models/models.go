package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/desertthunder/tubesync/internal/shared"
)

// Model is implemented by every persisted entity.
type Model interface {
	Validate() error // Validate checks the entity's data before it is written
}

var (
	_ Model = (*User)(nil)
	_ Model = (*Channel)(nil)
	_ Model = (*Video)(nil)
	_ Model = (*Playlist)(nil)
	_ Model = (*Folder)(nil)
	_ Model = (*Tag)(nil)
)

// PositionGap is the spacing between consecutive playlist positions.
//
// Sparse keys let a manual insert land between two items without renumbering.
const PositionGap int64 = 1024

// User owns every other entity.
type User struct {
	ID        string
	Sequence  int
	Email     string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewUser creates a [User] with timestamps set to now.
func NewUser(email, name string) *User {
	now := time.Now().UTC()
	return &User{Email: email, Name: name, CreatedAt: now, UpdatedAt: now}
}

func (u *User) Validate() error {
	if u.Email == "" || !strings.Contains(u.Email, "@") {
		return fmt.Errorf("%w: user email %q", shared.ErrValidation, u.Email)
	}
	return nil
}

// Channel is a saved external channel, owned by exactly one user.
type Channel struct {
	ID                string
	Sequence          int
	OwnerID           string
	ExternalID        string
	Title             string
	Handle            string
	Description       string
	ThumbnailURL      string
	UploadsPlaylistID string
	IsFavorited       bool
	FolderID          string
	LastSyncedAt      *time.Time
	UnreachableAt     *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (c *Channel) Validate() error {
	switch {
	case c.OwnerID == "":
		return fmt.Errorf("%w: channel owner is required", shared.ErrValidation)
	case c.ExternalID == "":
		return fmt.Errorf("%w: channel external id is required", shared.ErrValidation)
	}
	return nil
}

// Reachable reports whether the last sync attempt found the channel upstream.
func (c *Channel) Reachable() bool {
	return c.UnreachableAt == nil
}

// ChannelRef is the minimal identity the scheduler needs to enqueue a job.
type ChannelRef struct {
	ID       string
	OwnerID  string
	Sequence int
}

// Video is a single upload of a channel.
//
// Metadata fields are written only by sync. IsFavorited, IsWatched and tags belong to the user.
type Video struct {
	ID              string
	OwnerID         string
	ChannelID       string
	ExternalID      string
	Title           string
	Description     string
	PublishedAt     *time.Time
	DurationSeconds int
	ThumbnailURL    string
	Tags            []string
	IsShort         bool
	SourceRank      SourceRank
	IsFavorited     bool
	IsWatched       bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
	DeletedAt       *time.Time
}

func (v *Video) Validate() error {
	switch {
	case v.OwnerID == "" || v.ChannelID == "":
		return fmt.Errorf("%w: video owner and channel are required", shared.ErrValidation)
	case v.ExternalID == "":
		return fmt.Errorf("%w: video external id is required", shared.ErrValidation)
	}
	return nil
}

// Tombstoned reports whether the user deleted this video.
func (v *Video) Tombstoned() bool {
	return v.DeletedAt != nil
}

// PlaylistKind distinguishes user-curated playlists from mirrors of external ones.
type PlaylistKind string

const (
	PlaylistManual PlaylistKind = "manual"
	PlaylistSystem PlaylistKind = "system"
)

// Playlist is an ordered list of videos.
//
// System playlists carry ChannelID and ExternalID and are only written by sync.
type Playlist struct {
	ID              string
	OwnerID         string
	Kind            PlaylistKind
	Title           string
	Description     string
	ThumbnailURL    string
	ChannelID       string
	ExternalID      string
	SourceActive    bool
	CurrentPosition int
	LastSyncedAt    *time.Time
	ItemCount       int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (p *Playlist) Validate() error {
	if p.OwnerID == "" {
		return fmt.Errorf("%w: playlist owner is required", shared.ErrValidation)
	}

	switch p.Kind {
	case PlaylistManual:
		if p.ChannelID != "" || p.ExternalID != "" {
			return fmt.Errorf("%w: manual playlists cannot mirror a channel playlist", shared.ErrValidation)
		}
	case PlaylistSystem:
		if p.ChannelID == "" || p.ExternalID == "" {
			return fmt.Errorf("%w: system playlists need a channel and external id", shared.ErrValidation)
		}
	default:
		return fmt.Errorf("%w: unknown playlist kind %q", shared.ErrValidation, p.Kind)
	}
	return nil
}

// PlaylistItem is one membership row. VideoExternalID and VideoTitle are filled on reads.
type PlaylistItem struct {
	PlaylistID      string
	VideoID         string
	Position        int64
	AddedAt         time.Time
	VideoExternalID string
	VideoTitle      string
}

// Folder groups channels. A channel is in at most one folder.
type Folder struct {
	ID        string
	OwnerID   string
	ParentID  string
	Name      string
	IconKey   string
	Position  int
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (f *Folder) Validate() error {
	switch {
	case f.OwnerID == "":
		return fmt.Errorf("%w: folder owner is required", shared.ErrValidation)
	case strings.TrimSpace(f.Name) == "":
		return fmt.Errorf("%w: folder name is required", shared.ErrValidation)
	case f.ParentID != "" && f.ParentID == f.ID:
		return fmt.Errorf("%w: folder cannot be its own parent", shared.ErrValidation)
	}
	return nil
}

// Tag is a user-defined label for videos.
type Tag struct {
	ID        string
	OwnerID   string
	Name      string
	CreatedAt time.Time
}

func (t *Tag) Validate() error {
	if t.OwnerID == "" || strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("%w: tag owner and name are required", shared.ErrValidation)
	}
	return nil
}
