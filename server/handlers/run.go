package handlers

import (
	"errors"
	"net/http"

	"github.com/nomis52/nodeflow/server/runner"
)

// RunResponse is returned when a run was started.
type RunResponse struct {
	RunID string `json:"run_id"`
}

// RunHandler handles requests to trigger a run.
type RunHandler struct {
	runner GraphRunner
}

// NewRunHandler creates a new RunHandler.
func NewRunHandler(r GraphRunner) *RunHandler {
	return &RunHandler{
		runner: r,
	}
}

// ServeHTTP implements http.Handler.
func (h *RunHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id, err := h.runner.Run(runner.TriggerManual)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, runner.ErrRunInProgress) {
			status = http.StatusConflict
		}
		writeError(w, status, "run not started: %v", err)
		return
	}

	writeJSON(w, http.StatusAccepted, RunResponse{RunID: id})
}
