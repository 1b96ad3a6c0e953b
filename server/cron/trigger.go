// Package cron triggers runs on a cron schedule.
//
// A Trigger calls a function according to a standard 5-field cron
// specification. It is started once and runs until its context is cancelled:
//
//	trigger, err := cron.NewTrigger("0 2 * * *", func() error {
//	    _, err := r.Run(runner.TriggerCron)
//	    return err
//	}, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	trigger.Start(ctx) // Returns immediately, runs in background
package cron

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// ErrInvalidCronSpec is returned when the cron specification cannot be parsed.
var ErrInvalidCronSpec = errors.New("invalid cron spec")

// Trigger calls a function according to a cron schedule.
type Trigger struct {
	spec     string
	schedule cron.Schedule
	fire     func() error
	logger   *slog.Logger
	now      func() time.Time
}

// NewTrigger creates a Trigger for spec (minute, hour, day of month, month,
// day of week). Returns ErrInvalidCronSpec if spec cannot be parsed.
func NewTrigger(spec string, fire func() error, logger *slog.Logger) (*Trigger, error) {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, errors.Join(ErrInvalidCronSpec, err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Trigger{
		spec:     spec,
		schedule: schedule,
		fire:     fire,
		logger:   logger.With("component", "cron", "schedule", spec),
		now:      time.Now,
	}, nil
}

// Spec returns the cron specification.
func (t *Trigger) Spec() string {
	return t.spec
}

// Start launches a goroutine that fires according to the schedule.
// Returns immediately. The goroutine exits when ctx is cancelled.
func (t *Trigger) Start(ctx context.Context) {
	go t.loop(ctx)
}

// NextRun returns the next scheduled time after now.
func (t *Trigger) NextRun() time.Time {
	return t.schedule.Next(t.now())
}

func (t *Trigger) loop(ctx context.Context) {
	for {
		next := t.NextRun()
		wait := next.Sub(t.now())

		t.logger.Debug("waiting for next scheduled run", "next_run", next, "wait_duration", wait)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			t.logger.Info("cron trigger shutting down")
			return
		case <-timer.C:
			t.execute()
		}
	}
}

func (t *Trigger) execute() {
	t.logger.Info("starting scheduled run")
	if err := t.fire(); err != nil {
		t.logger.Warn("scheduled run could not start", "error", err)
	}
}
