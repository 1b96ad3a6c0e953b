// Package server provides the HTTP server for nodeflow.
//
// The server runs the configured node graph on demand or on a cron schedule
// and exposes its state over a small JSON API.
//
// # Endpoints
//
//   - GET /health - Simple health check, returns "ok"
//   - GET /api/status - Server properties, current or last run with live node states, next run
//   - GET /api/config - Current configuration as YAML with node environments redacted
//   - POST /api/reload - Reloads configuration from disk
//   - POST /api/run - Starts a run, returns its ID
//   - GET /api/history - Summaries of finished runs, most recent first
//   - GET /api/history/{id} - A finished run with node logs and its checkpoint ledger
//   - POST /api/history/reload - Re-reads the history directory (disk history only)
//   - GET /metrics - Prometheus metrics
//
// The configuration is swapped atomically on reload. Every run builds its
// graph from the configuration current at the time it starts, so changes take
// effect on the next run without disturbing one in progress. The listen
// address, history store and cron schedule are fixed at startup.
//
// # Example
//
//	srv, err := server.New("/etc/nodeflow/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := srv.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/nomis52/nodeflow/buildinfo"
	"github.com/nomis52/nodeflow/config"
	"github.com/nomis52/nodeflow/history"
	"github.com/nomis52/nodeflow/logging"
	"github.com/nomis52/nodeflow/metrics"
	"github.com/nomis52/nodeflow/server/cron"
	"github.com/nomis52/nodeflow/server/handlers"
	"github.com/nomis52/nodeflow/server/runner"
	"github.com/nomis52/nodeflow/server/types"
)

const (
	defaultReadTimeout     = 10 * time.Second
	defaultWriteTimeout    = 10 * time.Second
	defaultShutdownTimeout = 30 * time.Second
)

// Server is the nodeflow HTTP server.
type Server struct {
	addr       string
	configPath string
	logger     *slog.Logger
	logLevel   *slog.LevelVar
	logCloser  io.Closer
	properties types.ServerProperties
	cfg        atomic.Pointer[config.Config]
	runnerOpts []runner.Option

	store    history.Store
	registry *metrics.ScrapeRegistry
	runner   *runner.Runner
	trigger  *cron.Trigger
	certs    *CertLoader
}

// Option configures a Server.
type Option func(*Server)

// WithListenAddr overrides the listen address from the configuration.
func WithListenAddr(addr string) Option {
	return func(s *Server) {
		s.addr = addr
	}
}

// WithLogger sets the logger instead of building one from the configuration.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithRunnerOptions passes extra options to the runner.
func WithRunnerOptions(opts ...runner.Option) Option {
	return func(s *Server) {
		s.runnerOpts = append(s.runnerOpts, opts...)
	}
}

// New loads the configuration at configPath and builds the server.
func New(configPath string, opts ...Option) (*Server, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	s := &Server{
		configPath: configPath,
		logLevel:   &slog.LevelVar{},
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		logger, closer, err := logging.NewWithLevel(cfg.Logging, s.logLevel)
		if err != nil {
			return nil, fmt.Errorf("creating logger: %w", err)
		}
		s.logger = logger
		s.logCloser = closer
	}
	if s.addr == "" {
		s.addr = cfg.Server.Listen
	}
	s.cfg.Store(&cfg)

	hostname, _ := os.Hostname()
	s.properties = types.ServerProperties{
		Build:      buildinfo.Get(),
		StartedAt:  time.Now(),
		Hostname:   hostname,
		ConfigPath: configPath,
	}

	if cfg.History.Dir != "" {
		store, err := history.NewDiskStore(cfg.History.Dir, cfg.History.MaxRuns, s.logger)
		if err != nil {
			return nil, err
		}
		s.store = store
	} else {
		s.store = history.NewMemoryStore(cfg.History.MaxRuns)
	}

	s.registry, err = metrics.NewScrapeRegistry(metrics.WithPrefix(cfg.Monitoring.MetricsPrefix))
	if err != nil {
		return nil, fmt.Errorf("creating metrics registry: %w", err)
	}

	runnerOpts := append([]runner.Option{
		runner.WithStore(s.store),
		runner.WithMetrics(s.registry),
	}, s.runnerOpts...)
	s.runner = runner.New(s.logger, s, runnerOpts...)

	if cfg.Server.Cron != "" {
		s.trigger, err = cron.NewTrigger(cfg.Server.Cron, func() error {
			_, err := s.runner.Run(runner.TriggerCron)
			return err
		}, s.logger)
		if err != nil {
			return nil, fmt.Errorf("creating cron trigger: %w", err)
		}
	}

	if cfg.Server.TLSCert != "" {
		s.certs, err = NewCertLoader(cfg.Server.TLSCert, cfg.Server.TLSKey, s.logger)
		if err != nil {
			return nil, err
		}
	}

	return s, nil
}

// Logger returns the server's logger.
func (s *Server) Logger() *slog.Logger {
	return s.logger
}

// Reload reads the config from disk. The log level follows the new config
// unless the logger was supplied with WithLogger.
func (s *Server) Reload() error {
	cfg, err := config.LoadConfig(s.configPath)
	if err != nil {
		return err
	}
	if level, err := logging.ParseLevel(cfg.Logging.Level); err == nil {
		s.logLevel.Set(level)
	}
	s.cfg.Store(&cfg)
	s.logger.Info("configuration loaded", "config_path", s.configPath, "nodes", len(cfg.Nodes))
	return nil
}

// Config returns the current configuration.
func (s *Server) Config() *config.Config {
	return s.cfg.Load()
}

// Properties returns metadata about this server instance.
func (s *Server) Properties() types.ServerProperties {
	return s.properties
}

// NextRun returns the next scheduled run time, or nil if no cron is configured.
func (s *Server) NextRun() *time.Time {
	if s.trigger == nil {
		return nil
	}
	next := s.trigger.NextRun()
	return &next
}

// Status returns the current run status by delegating to the runner.
func (s *Server) Status() runner.Status {
	return s.runner.Status()
}

// History returns run summaries by delegating to the runner.
func (s *Server) History() []history.Summary {
	return s.runner.History()
}

// Get returns a finished run by delegating to the runner.
func (s *Server) Get(id string) (history.Run, error) {
	return s.runner.Get(id)
}

// Handler returns the HTTP handler serving all endpoints.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", handlers.HandleHealth)
	mux.Handle("GET /api/status", handlers.NewAPIStatusHandler(s))
	mux.Handle("GET /api/config", handlers.NewConfigHandler(s))
	mux.Handle("POST /api/reload", handlers.NewReloadHandler(s.logger, s))
	mux.Handle("POST /api/run", handlers.NewRunHandler(s.runner))
	mux.Handle("GET /api/history", handlers.NewHistoryHandler(s))
	mux.Handle("GET /api/history/{id}", handlers.NewRunDetailHandler(s))
	if store, ok := s.store.(handlers.ReloadableStore); ok {
		mux.Handle("POST /api/history/reload", handlers.NewStoreReloadHandler(s.logger, store))
	}
	mux.Handle("GET /metrics", s.registry.Handler())

	return mux
}

// Run starts the HTTP server and blocks until the context is cancelled.
// On shutdown it stops accepting requests and waits for a run in progress
// to finish. If a cron schedule is configured it is started as well.
func (s *Server) Run(ctx context.Context) error {
	if s.logCloser != nil {
		defer s.logCloser.Close()
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.addr, err)
	}

	httpServer := &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  defaultReadTimeout,
		WriteTimeout: defaultWriteTimeout,
	}
	if s.certs != nil {
		httpServer.TLSConfig = s.certs.TLSConfig()
	}

	if s.trigger != nil {
		s.logger.Info("starting cron trigger", "schedule", s.trigger.Spec(), "next_run", s.trigger.NextRun())
		s.trigger.Start(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting server",
			"addr", ln.Addr().String(),
			"tls", s.certs != nil,
			"config_path", s.configPath,
		)
		var err error
		if s.certs != nil {
			err = httpServer.ServeTLS(ln, "", "")
		} else {
			err = httpServer.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()

	err = httpServer.Shutdown(shutdownCtx)
	if s.runner.IsRunning() {
		s.logger.Info("waiting for run in progress")
	}
	return errors.Join(err, s.runner.Wait(shutdownCtx))
}
