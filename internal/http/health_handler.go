package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/example/digital-lending/internal/scheduler"
)

// JobReporter exposes the recurring jobs' health.
type JobReporter interface {
	Snapshot() []scheduler.JobStatus
}

// Pinger verifies storage connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// degradedFailureThreshold is how many consecutive failures of one job flip
// the health report to degraded.
const degradedFailureThreshold = 3

// HealthHandler answers GET /healthz with storage and job health.
type HealthHandler struct {
	jobs      JobReporter
	storage   Pinger
	responder responder
}

// NewHealthHandler wires a health handler. Either dependency may be nil when
// the corresponding subsystem is not running.
func NewHealthHandler(jobs JobReporter, storage Pinger, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{jobs: jobs, storage: storage, responder: newResponder(logger)}
}

type jobStatusResponse struct {
	Name                string `json:"name"`
	LastRun             string `json:"last_run,omitempty"`
	LastError           string `json:"last_error,omitempty"`
	ConsecutiveFailures int    `json:"consecutive_failures"`
	Runs                uint64 `json:"runs"`
	SkippedTicks        uint64 `json:"skipped_ticks"`
}

type healthResponse struct {
	Status  string              `json:"status"`
	Storage string              `json:"storage,omitempty"`
	Jobs    []jobStatusResponse `json:"jobs,omitempty"`
}

// Report serves the health summary. Degraded states answer 503 so load
// balancers rotate the instance out.
func (h *HealthHandler) Report(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok"}

	if h.storage != nil {
		if err := h.storage.Ping(r.Context()); err != nil {
			resp.Status = "degraded"
			resp.Storage = "unreachable"
		} else {
			resp.Storage = "ok"
		}
	}

	if h.jobs != nil {
		for _, status := range h.jobs.Snapshot() {
			entry := jobStatusResponse{
				Name:                status.Name,
				LastError:           status.LastError,
				ConsecutiveFailures: status.ConsecutiveFailures,
				Runs:                status.Runs,
				SkippedTicks:        status.SkippedTicks,
			}
			if !status.LastRun.IsZero() {
				entry.LastRun = status.LastRun.Format(time.RFC3339)
			}
			if status.ConsecutiveFailures >= degradedFailureThreshold {
				resp.Status = "degraded"
			}
			resp.Jobs = append(resp.Jobs, entry)
		}
	}

	code := http.StatusOK
	if resp.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	h.responder.writeJSON(r.Context(), w, code, resp)
}
