package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/desertthunder/tubesync/internal/models"
)

// QueueStats reports how many jobs sit in each state. [repositories.JobQueue] implements it.
type QueueStats interface {
	Pending(ctx context.Context) (map[models.JobState]int, error)
}

// HealthHandler serves GET /healthz for a sync worker.
//
// The response is 200 while the queue can be read and 503 otherwise.
type HealthHandler struct {
	queue     QueueStats
	nextSweep func() time.Time
	started   time.Time
}

// NewHealthHandler creates a [HealthHandler]. Either argument may be nil.
func NewHealthHandler(queue QueueStats, nextSweep func() time.Time) *HealthHandler {
	return &HealthHandler{queue: queue, nextSweep: nextSweep, started: time.Now()}
}

func (h *HealthHandler) Routes() []string {
	return []string{"/healthz"}
}

type healthResponse struct {
	Status    string                  `json:"status"`
	Uptime    string                  `json:"uptime"`
	Queue     map[models.JobState]int `json:"queue,omitempty"`
	NextSweep *time.Time              `json:"next_sweep,omitempty"`
	Error     string                  `json:"error,omitempty"`
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Uptime: time.Since(h.started).Round(time.Second).String()}
	code := http.StatusOK

	if h.queue != nil {
		pending, err := h.queue.Pending(r.Context())
		if err != nil {
			resp.Status, resp.Error = "degraded", err.Error()
			code = http.StatusServiceUnavailable
		}
		resp.Queue = pending
	}
	if h.nextSweep != nil {
		if next := h.nextSweep(); !next.IsZero() {
			resp.NextSweep = &next
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(resp)
}
