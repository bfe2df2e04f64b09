package models

import (
	"fmt"
	"time"

	"github.com/desertthunder/tubesync/internal/shared"
)

// SourceRank orders snapshot sources by how authoritative their data is.
type SourceRank int

const (
	SourceStub SourceRank = iota // placeholder row created for playlist membership
	SourceFeed                   // Atom feed: partial metadata
	SourceAPI                    // Data API: full metadata
)

func (r SourceRank) String() string {
	switch r {
	case SourceStub:
		return "stub"
	case SourceFeed:
		return "feed"
	case SourceAPI:
		return "api"
	default:
		return fmt.Sprintf("source(%d)", int(r))
	}
}

// FieldSet is a bitset of the video fields a source populated.
type FieldSet uint16

const (
	FieldTitle FieldSet = 1 << iota
	FieldDescription
	FieldPublishedAt
	FieldDuration
	FieldThumbnail
	FieldTags
	FieldShort
)

const (
	// FeedFields is everything an Atom feed entry carries.
	FeedFields = FieldTitle | FieldDescription | FieldPublishedAt | FieldThumbnail
	// APIFields is everything the Data API returns for a video.
	APIFields = FeedFields | FieldDuration | FieldTags | FieldShort
)

func (f FieldSet) Has(field FieldSet) bool {
	return f&field == field
}

// JobKind is the tag of a [SyncJob].
type JobKind string

const (
	JobFullFetch     JobKind = "full_fetch"
	JobRefresh       JobKind = "refresh"
	JobSyncPlaylists JobKind = "sync_playlists"
)

// Valid reports whether k is one of the known job kinds.
func (k JobKind) Valid() bool {
	switch k {
	case JobFullFetch, JobRefresh, JobSyncPlaylists:
		return true
	}
	return false
}

// JobState is a node of the job state machine: queued -> running -> succeeded | failed | retrying.
type JobState string

const (
	JobQueued    JobState = "queued"
	JobRunning   JobState = "running"
	JobSucceeded JobState = "succeeded"
	JobFailed    JobState = "failed"
	JobRetrying  JobState = "retrying"
)

// Terminal reports whether no further transition follows s for this attempt.
func (s JobState) Terminal() bool {
	return s == JobSucceeded || s == JobFailed || s == JobRetrying
}

// ErrorClass labels why a job attempt did not succeed.
type ErrorClass string

const (
	ClassNone          ErrorClass = ""
	ClassNotFound      ErrorClass = "not_found"
	ClassRateLimited   ErrorClass = "rate_limited"
	ClassTransient     ErrorClass = "transient"
	ClassQuotaExceeded ErrorClass = "quota_exceeded"
	ClassCommitFailure ErrorClass = "commit_failure"
	ClassInternal      ErrorClass = "internal"
)

// SyncJob is the queue payload.
type SyncJob struct {
	ID         string    `json:"id"`
	Kind       JobKind   `json:"type"`
	ChannelID  string    `json:"channel_id"`
	OwnerID    string    `json:"owner_id"`
	EnqueuedAt time.Time `json:"enqueued_at"`
	RunAt      time.Time `json:"run_at"`
	Attempt    int       `json:"attempt"`
}

// NewSyncJob creates the first attempt of a job, runnable at now+delay.
func NewSyncJob(kind JobKind, ownerID, channelID string, now time.Time, delay time.Duration) SyncJob {
	return SyncJob{
		ID:         shared.GenerateID(),
		Kind:       kind,
		ChannelID:  channelID,
		OwnerID:    ownerID,
		EnqueuedAt: now.UTC(),
		RunAt:      now.Add(delay).UTC(),
		Attempt:    1,
	}
}

// Next returns the follow-up attempt of j, runnable at now+delay.
//
// The follow-up gets a fresh ID because the current attempt is acknowledged after it is enqueued.
func (j SyncJob) Next(now time.Time, delay time.Duration) SyncJob {
	next := NewSyncJob(j.Kind, j.OwnerID, j.ChannelID, now, delay)
	next.Attempt = j.Attempt + 1
	return next
}

func (j SyncJob) Validate() error {
	switch {
	case !j.Kind.Valid():
		return fmt.Errorf("%w: unknown job kind %q", shared.ErrValidation, j.Kind)
	case j.ChannelID == "" || j.OwnerID == "":
		return fmt.Errorf("%w: job needs channel and owner", shared.ErrValidation)
	case j.Attempt < 1:
		return fmt.Errorf("%w: job attempt must start at 1", shared.ErrValidation)
	}
	return nil
}

func (j SyncJob) String() string {
	return fmt.Sprintf("%s(%s)#%d", j.Kind, j.ChannelID, j.Attempt)
}

// SyncRun records one executed attempt for operators.
type SyncRun struct {
	ID                   string
	Sequence             int
	JobID                string
	Kind                 JobKind
	ChannelID            string
	OwnerID              string
	Attempt              int
	State                JobState
	ErrorClass           ErrorClass
	ErrorMessage         string
	VideosInserted       int
	VideosUpdated        int
	VideosUnchanged      int
	PlaylistsInserted    int
	PlaylistsUpdated     int
	PlaylistsUnchanged   int
	PlaylistsDeactivated int
	ItemErrors           int
	StartedAt            time.Time
	FinishedAt           time.Time
}

func (r *SyncRun) Validate() error {
	if r.JobID == "" || r.ChannelID == "" || r.OwnerID == "" {
		return fmt.Errorf("%w: sync run needs job, channel and owner", shared.ErrValidation)
	}
	return nil
}
