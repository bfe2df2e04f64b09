package tasks

import (
	"fmt"
	"time"

	"github.com/desertthunder/tubesync/internal/models"
)

// JobEvent reports a finished job attempt to the CLI or UI layer.
type JobEvent struct {
	Job     models.SyncJob
	Outcome Outcome
	At      time.Time
}

// Message renders the event as a single human-readable line.
func (e JobEvent) Message() string {
	o := e.Outcome
	switch {
	case o.Skipped:
		return fmt.Sprintf("%s skipped: channel no longer exists", e.Job)
	case o.State == models.JobSucceeded:
		return fmt.Sprintf("%s succeeded: %s", e.Job, o.Summary())
	case o.State == models.JobRetrying:
		return fmt.Sprintf("%s retrying in %s (%s)", e.Job, o.RetryIn.Round(time.Second), o.ErrorClass)
	default:
		return fmt.Sprintf("%s failed (%s): %v", e.Job, o.ErrorClass, o.Err)
	}
}

// sendEvent delivers an event without blocking; events are dropped when nobody is keeping up.
func sendEvent(events chan<- JobEvent, event JobEvent) {
	if events == nil {
		return
	}
	select {
	case events <- event:
	default:
	}
}
