// Package runner executes the configured node graph for the nodeflow server
// and the command line.
//
// The runner handles:
//   - Building a fresh graph from the current configuration for every run
//   - Preventing concurrent runs
//   - Resuming from the checkpoint ledger of the latest failed run
//   - Tracking the live status of the current run
//   - Recording finished runs in a history.Store
//
// # Example
//
//	r := runner.New(logger, provider, runner.WithStore(store))
//
//	if _, err := r.Run(runner.TriggerManual); err != nil {
//	    if errors.Is(err, runner.ErrRunInProgress) {
//	        // Handle concurrent run attempt
//	    }
//	}
//
//	status := r.Status()
//	for _, n := range status.Nodes {
//	    fmt.Printf("%s [%s]\n", n.Name, n.Status)
//	}
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nomis52/nodeflow/config"
	"github.com/nomis52/nodeflow/history"
	"github.com/nomis52/nodeflow/logging"
	"github.com/nomis52/nodeflow/metrics"
	"github.com/nomis52/nodeflow/orchestrator"
	"github.com/nomis52/nodeflow/status"
	"github.com/nomis52/nodeflow/tasks"
)

// Triggers recorded with each run.
const (
	TriggerManual = "manual"
	TriggerCron   = "cron"
	TriggerCLI    = "cli"
)

// ErrRunInProgress is returned when attempting to start a run while one is already running.
var ErrRunInProgress = errors.New("run already in progress")

// ConfigProvider provides access to the current configuration.
type ConfigProvider interface {
	Config() *config.Config
}

// StaticConfig is a ConfigProvider that always returns the same configuration.
type StaticConfig struct {
	Cfg *config.Config
}

func (s StaticConfig) Config() *config.Config {
	return s.Cfg
}

// flusher is implemented by registries that buffer samples, such as
// metrics.PushRegistry.
type flusher interface {
	Flush(ctx context.Context) error
}

// Runner manages run execution.
type Runner struct {
	logger         *slog.Logger
	configProvider ConfigProvider
	store          history.Store
	registry       metrics.Registry
	buildOpts      []tasks.BuildOption

	mu        sync.Mutex
	status    Status
	orch      *orchestrator.Orchestrator // current or last run
	collector *logging.LogCollector      // logs of the current run
	board     *status.Board              // status messages of the current run
	done      chan struct{}              // closed when the current run ends
}

// Option configures a Runner.
type Option func(*Runner)

// WithStore sets where finished runs are recorded. The default is an
// in-memory store.
func WithStore(store history.Store) Option {
	return func(r *Runner) {
		r.store = store
	}
}

// WithMetrics sets the registry handed to every run. If it buffers samples,
// it is flushed once the run ends.
func WithMetrics(reg metrics.Registry) Option {
	return func(r *Runner) {
		r.registry = reg
	}
}

// WithBuildOptions passes options to tasks.Build.
func WithBuildOptions(opts ...tasks.BuildOption) Option {
	return func(r *Runner) {
		r.buildOpts = append(r.buildOpts, opts...)
	}
}

// New creates a new Runner.
func New(logger *slog.Logger, provider ConfigProvider, opts ...Option) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Runner{
		logger:         logger,
		configProvider: provider,
		store:          history.NewMemoryStore(0),
		registry:       metrics.Discard(),
		status:         Status{State: StateIdle},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run starts a run in the background and returns its ID.
// Returns ErrRunInProgress if a run is already in progress.
func (r *Runner) Run(trigger string) (string, error) {
	id, err := r.tryStart(trigger)
	if err != nil {
		return "", err
	}
	go r.execute(context.Background(), id, trigger)
	return id, nil
}

// RunOnce executes a run and waits for it to finish. The returned error is
// ErrRunInProgress or a problem preparing the run; node failures are
// reported in the returned history.Run.
func (r *Runner) RunOnce(ctx context.Context, trigger string) (history.Run, error) {
	id, err := r.tryStart(trigger)
	if err != nil {
		return history.Run{}, err
	}
	return r.execute(ctx, id, trigger)
}

// Wait blocks until no run is in progress or ctx is done.
func (r *Runner) Wait(ctx context.Context) error {
	r.mu.Lock()
	done := r.done
	r.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status returns the current run status. While a run is in progress it
// includes live node records and the logs captured so far.
func (r *Runner) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := r.status
	if st.State == StateRunning && r.orch != nil {
		st.Nodes = liveNodes(r.orch.Progress(), r.collector, r.board)
	}
	return st
}

// IsRunning returns true if a run is in progress.
func (r *Runner) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status.State == StateRunning
}

// History returns summaries of finished runs, most recent first.
func (r *Runner) History() []history.Summary {
	return r.store.Runs()
}

// Get returns a finished run.
func (r *Runner) Get(id string) (history.Run, error) {
	return r.store.Get(id)
}

func (r *Runner) tryStart(trigger string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status.State == StateRunning {
		return "", ErrRunInProgress
	}

	now := time.Now()
	id := history.NewID()
	r.status = Status{
		State:     StateRunning,
		RunID:     id,
		Trigger:   trigger,
		StartedAt: &now,
	}
	r.orch = nil
	r.collector = nil
	r.board = nil
	r.done = make(chan struct{})
	return id, nil
}

func (r *Runner) execute(ctx context.Context, id, trigger string) (history.Run, error) {
	logger := r.logger.With("run_id", id, "trigger", trigger)
	logger.Info("starting run")

	run, err := r.executeRun(ctx, id, trigger, logger)
	if err != nil {
		run.Error = err.Error()
	}
	r.finish(run, logger)

	if f, ok := r.registry.(flusher); ok {
		if err := f.Flush(ctx); err != nil {
			logger.Warn("failed to push metrics", "error", err)
		}
	}
	return run, err
}

func (r *Runner) executeRun(ctx context.Context, id, trigger string, logger *slog.Logger) (history.Run, error) {
	r.mu.Lock()
	started := *r.status.StartedAt
	r.mu.Unlock()

	run := history.Run{ID: id, Trigger: trigger, StartedAt: started}

	cfg := r.configProvider.Config()
	if cfg == nil {
		return run, errors.New("no configuration available")
	}

	nodes, err := tasks.Build(*cfg, r.buildOpts...)
	if err != nil {
		return run, fmt.Errorf("failed to build graph: %w", err)
	}

	board := status.NewBoard()
	ec, err := orchestrator.NewExecutionContext(nil, board)
	if err != nil {
		return run, err
	}
	if cfg.Orchestrator.Resume {
		if from, ledger, ok := r.store.LatestLedger(); ok {
			logger.Info("resuming from failed run", "resumed_from", from, "checkpoints", ledger.Len())
			ec.Metadata.Executed = ledger
			run.ResumedFrom = from
		}
	}

	collector := logging.NewLogCollector()
	orch := orchestrator.New(
		orchestrator.WithBackoff(cfg.Orchestrator.Backoff),
		orchestrator.WithIdentityScheme(cfg.IdentityScheme()),
		orchestrator.WithFailurePolicy(cfg.FailurePolicy()),
		orchestrator.WithExecutionContext(ec),
		orchestrator.WithLogger(logger),
		orchestrator.WithLoggerHook(logging.NewCapturingLoggerHook(collector)),
		orchestrator.WithMetrics(r.registry),
	)
	if err := orch.Register(nodes...); err != nil {
		return run, err
	}

	r.mu.Lock()
	r.orch = orch
	r.collector = collector
	r.board = board
	r.mu.Unlock()

	result, err := orch.Run(ctx, nil)
	if err != nil {
		return run, err
	}

	finished := history.FromResult(id, trigger, result, collector, board)
	finished.ResumedFrom = run.ResumedFrom
	return finished, nil
}

// finish records run and returns the runner to idle.
func (r *Runner) finish(run history.Run, logger *slog.Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()

	end := time.Now()
	if run.EndedAt.IsZero() {
		run.EndedAt = end
	}
	duration := end.Sub(*r.status.StartedAt)

	switch {
	case run.Error != "":
		logger.Error("run failed", "error", run.Error, "duration", duration)
	case !run.Success:
		logger.Error("run failed", "reason", run.Reason, "last_node", run.LastNode, "duration", duration)
	default:
		logger.Info("run completed", "duration", duration)
	}

	if err := r.store.Save(run); err != nil {
		logger.Error("failed to save run to store", "error", err)
	}

	success := run.Success
	r.status.State = StateIdle
	r.status.EndedAt = &end
	r.status.Success = &success
	r.status.Reason = run.Reason
	r.status.Error = run.Error
	r.status.Nodes = run.Nodes

	close(r.done)
}

func liveNodes(records []orchestrator.NodeRecord, collector *logging.LogCollector, board *status.Board) []history.NodeResult {
	out := make([]history.NodeResult, len(records))
	for i, rec := range records {
		out[i] = history.NodeResult{NodeRecord: rec, Message: board.Get(rec.Name)}
		if collector != nil {
			out[i].Logs = collector.GetLogs(rec.Name)
		}
	}
	return out
}
