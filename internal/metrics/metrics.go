// Package metrics exposes Prometheus instrumentation for the logging loop.
//
// A nil *Metrics is valid and records nothing, so components can be built
// without instrumentation in tests and one-shot commands.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sensorlog"

// Metrics holds every collector registered by sensorlog.
type Metrics struct {
	registry *prometheus.Registry

	Cycles         prometheus.Counter
	CyclesAbandon  prometheus.Counter
	SampleFailures *prometheus.CounterVec
	Buffered       prometheus.Gauge
	RecordsWritten *prometheus.CounterVec
	RecordsDropped prometheus.Counter
	FlushFailures  prometheus.Counter
	FlushDuration  prometheus.Histogram
	ChannelValue   *prometheus.GaugeVec
}

// New creates the collectors and registers them on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Completed sampling cycles.",
		}),
		CyclesAbandon: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_abandoned_total",
			Help:      "Sampling cycles interrupted before producing a record.",
		}),
		SampleFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_failed_total",
			Help:      "Raw readings that were missing or invalid, per channel.",
		}, []string{"channel"}),
		Buffered: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "records_buffered",
			Help:      "Records waiting for the next flush.",
		}),
		RecordsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_written_total",
			Help:      "Records committed to the store, per table.",
		}, []string{"table"}),
		RecordsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_rejected_total",
			Help:      "Records rejected because they can never be written.",
		}),
		FlushFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flush_failures_total",
			Help:      "Flushes that failed after all retries.",
		}),
		FlushDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "flush_seconds",
			Help:      "Time spent committing one flush.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
		ChannelValue: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "channel_value",
			Help:      "Most recent aggregated value per channel.",
		}, []string{"table", "channel"}),
	}

	m.registry.MustRegister(
		m.Cycles,
		m.CyclesAbandon,
		m.SampleFailures,
		m.Buffered,
		m.RecordsWritten,
		m.RecordsDropped,
		m.FlushFailures,
		m.FlushDuration,
		m.ChannelValue,
	)

	return m
}

// Registry returns the registry holding sensorlog's collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// CycleDone records a completed cycle.
func (m *Metrics) CycleDone() {
	if m == nil {
		return
	}
	m.Cycles.Inc()
}

// CycleAbandoned records a cycle interrupted by shutdown.
func (m *Metrics) CycleAbandoned() {
	if m == nil {
		return
	}
	m.CyclesAbandon.Inc()
}

// SampleFailed records a missing raw reading for a channel.
func (m *Metrics) SampleFailed(channel string) {
	if m == nil {
		return
	}
	m.SampleFailures.WithLabelValues(channel).Inc()
}

// SetBuffered sets the number of pending records.
func (m *Metrics) SetBuffered(n int) {
	if m == nil {
		return
	}
	m.Buffered.Set(float64(n))
}

// Written records committed rows for a table.
func (m *Metrics) Written(table string, n int) {
	if m == nil {
		return
	}
	m.RecordsWritten.WithLabelValues(table).Add(float64(n))
}

// Rejected records rows that were dropped as unwritable.
func (m *Metrics) Rejected(n int) {
	if m == nil {
		return
	}
	m.RecordsDropped.Add(float64(n))
}

// FlushFailed records a flush that exhausted its retries.
func (m *Metrics) FlushFailed() {
	if m == nil {
		return
	}
	m.FlushFailures.Inc()
}

// ObserveFlush records how long a flush took.
func (m *Metrics) ObserveFlush(d time.Duration) {
	if m == nil {
		return
	}
	m.FlushDuration.Observe(d.Seconds())
}

// SetChannel publishes the latest aggregated value for a channel.
func (m *Metrics) SetChannel(table, channel string, v float64) {
	if m == nil {
		return
	}
	m.ChannelValue.WithLabelValues(table, channel).Set(v)
}
