package handlers

import (
	"net/http"
	"time"

	"github.com/nomis52/nodeflow/server/runner"
	"github.com/nomis52/nodeflow/server/types"
)

// NextRunResponse is the JSON response for the next run information.
type NextRunResponse struct {
	Scheduled bool       `json:"scheduled"`
	NextRun   *time.Time `json:"next_run,omitempty"`
}

// APIStatusResponse is the consolidated response for /api/status.
type APIStatusResponse struct {
	Server  types.ServerProperties `json:"server"`
	Run     runner.Status          `json:"run"` // live node records while running
	NextRun NextRunResponse        `json:"next_run"`
}

// APIStatusHandler handles requests for the consolidated status endpoint.
type APIStatusHandler struct {
	provider APIStatusProvider
}

// NewAPIStatusHandler creates a new APIStatusHandler.
func NewAPIStatusHandler(provider APIStatusProvider) *APIStatusHandler {
	return &APIStatusHandler{
		provider: provider,
	}
}

// ServeHTTP implements http.Handler.
func (h *APIStatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	nextRun := NextRunResponse{NextRun: h.provider.NextRun()}
	nextRun.Scheduled = nextRun.NextRun != nil

	writeJSON(w, http.StatusOK, APIStatusResponse{
		Server:  h.provider.Properties(),
		Run:     h.provider.Status(),
		NextRun: nextRun,
	})
}
