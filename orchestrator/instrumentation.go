package orchestrator

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nomis52/nodeflow/metrics"
)

// instruments holds the orchestrator metrics for one registry.
type instruments struct {
	executions  metrics.CounterVec
	duration    metrics.GaugeVec
	runSuccess  metrics.Gauge
	runDuration metrics.Gauge
	ledgerSize  metrics.Gauge
}

func newInstruments(reg metrics.Registry) (*instruments, error) {
	executions, err := reg.NewCounterVec(prometheus.CounterOpts{
		Name: "node_executions_total",
		Help: "Number of node executions by final status.",
	}, []string{"node", "status"})
	if err != nil {
		return nil, fmt.Errorf("creating node_executions_total: %w", err)
	}

	duration, err := reg.NewGaugeVec(prometheus.GaugeOpts{
		Name: "node_duration_seconds",
		Help: "Duration of the last execution of a node.",
	}, []string{"node"})
	if err != nil {
		return nil, fmt.Errorf("creating node_duration_seconds: %w", err)
	}

	runSuccess, err := reg.NewGauge(prometheus.GaugeOpts{
		Name: "run_success",
		Help: "1 if the last run succeeded, 0 otherwise.",
	})
	if err != nil {
		return nil, fmt.Errorf("creating run_success: %w", err)
	}

	runDuration, err := reg.NewGauge(prometheus.GaugeOpts{
		Name: "run_duration_seconds",
		Help: "Duration of the last run.",
	})
	if err != nil {
		return nil, fmt.Errorf("creating run_duration_seconds: %w", err)
	}

	ledgerSize, err := reg.NewGauge(prometheus.GaugeOpts{
		Name: "checkpoint_ledger_size",
		Help: "Number of checkpointed nodes after the last run.",
	})
	if err != nil {
		return nil, fmt.Errorf("creating checkpoint_ledger_size: %w", err)
	}

	return &instruments{
		executions:  executions,
		duration:    duration,
		runSuccess:  runSuccess,
		runDuration: runDuration,
		ledgerSize:  ledgerSize,
	}, nil
}

func (m *instruments) nodeFinished(rec *NodeRecord) {
	m.executions.With(prometheus.Labels{"node": rec.Name, "status": rec.Status.String()}).Inc()
	if rec.Status == Completed || rec.Status == Failed {
		m.duration.With(prometheus.Labels{"node": rec.Name}).Set(rec.Duration().Seconds())
	}
}

func (m *instruments) runFinished(success bool, d time.Duration, ledgerSize int) {
	if success {
		m.runSuccess.Set(1)
	} else {
		m.runSuccess.Set(0)
	}
	m.runDuration.Set(d.Seconds())
	m.ledgerSize.Set(float64(ledgerSize))
}
