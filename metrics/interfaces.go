// Package metrics provides Prometheus-compatible metrics for nodeflow runs.
//
// Two registries implement Registry:
//   - ScrapeRegistry (server): metrics live in a Prometheus registry exposed over HTTP.
//   - PushRegistry (CLI): samples are buffered and sent to a Prometheus remote
//     write endpoint (VictoriaMetrics, Prometheus) when Flush is called.
//
// Discard returns a Registry whose metrics do nothing.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Gauge is a metric that represents a single numerical value that can go up and down.
type Gauge interface {
	// Set sets the Gauge to the given value.
	Set(float64)
}

// Counter is a metric that represents a single monotonically increasing counter.
type Counter interface {
	// Inc increments the counter by 1.
	Inc()
	// Add adds the given value to the counter. It panics if the value is negative.
	Add(float64)
}

// GaugeVec is a Gauge with labels.
type GaugeVec interface {
	// With returns the Gauge for the given Labels.
	With(prometheus.Labels) Gauge
}

// CounterVec is a Counter with labels.
type CounterVec interface {
	// With returns the Counter for the given Labels.
	With(prometheus.Labels) Counter
}

// Registry creates and registers metrics.
// Implementations handle the differences between push and scrape modes.
type Registry interface {
	NewGauge(opts prometheus.GaugeOpts) (Gauge, error)
	NewGaugeVec(opts prometheus.GaugeOpts, labels []string) (GaugeVec, error)
	NewCounter(opts prometheus.CounterOpts) (Counter, error)
	NewCounterVec(opts prometheus.CounterOpts, labels []string) (CounterVec, error)
}

// Discard returns a Registry whose metrics drop every update.
func Discard() Registry {
	return discardRegistry{}
}

type discardRegistry struct{}

type discardMetric struct{}

func (discardMetric) Set(float64) {}

func (discardMetric) Inc() {}

func (discardMetric) Add(float64) {}

func (discardMetric) With(prometheus.Labels) Gauge { return discardMetric{} }

func (d discardRegistry) NewGauge(prometheus.GaugeOpts) (Gauge, error) {
	return discardMetric{}, nil
}

func (d discardRegistry) NewGaugeVec(prometheus.GaugeOpts, []string) (GaugeVec, error) {
	return discardMetric{}, nil
}

func (d discardRegistry) NewCounter(prometheus.CounterOpts) (Counter, error) {
	return discardMetric{}, nil
}

func (d discardRegistry) NewCounterVec(prometheus.CounterOpts, []string) (CounterVec, error) {
	return discardCounterVec{}, nil
}

type discardCounterVec struct{}

func (discardCounterVec) With(prometheus.Labels) Counter { return discardMetric{} }
