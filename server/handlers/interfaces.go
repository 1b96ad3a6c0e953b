// Package handlers provides HTTP handlers for the nodeflow server.
//
// Each handler is in its own file and implements http.Handler.
// Handlers use interfaces to access server dependencies, avoiding
// circular imports.
package handlers

import (
	"time"

	"github.com/nomis52/nodeflow/config"
	"github.com/nomis52/nodeflow/history"
	"github.com/nomis52/nodeflow/server/runner"
	"github.com/nomis52/nodeflow/server/types"
)

// ConfigProvider provides access to the current configuration.
type ConfigProvider interface {
	Config() *config.Config
}

// GraphReloader re-reads the config file and exposes the result.
type GraphReloader interface {
	ConfigProvider
	Reload() error
}

// GraphRunner can start runs in the background.
type GraphRunner interface {
	Run(trigger string) (string, error)
}

// HistoryProvider provides access to finished runs.
type HistoryProvider interface {
	History() []history.Summary
	Get(id string) (history.Run, error)
}

// APIStatusProvider aggregates everything shown by the status endpoint.
type APIStatusProvider interface {
	Properties() types.ServerProperties
	Status() runner.Status
	NextRun() *time.Time
}
