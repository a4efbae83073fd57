package sinks

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/difflog/internal/progress"
)

// SinkMetrics owns the per-sink collectors shared by every InstrumentedSink.
type SinkMetrics struct {
	lines   *prometheus.CounterVec
	bytes   *prometheus.CounterVec
	errors  *prometheus.CounterVec
	latency *prometheus.HistogramVec
}

// NewSinkMetrics registers the collectors against the provided registry.
func NewSinkMetrics(reg prometheus.Registerer) (*SinkMetrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &SinkMetrics{
		lines: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "difflog_sink_lines_total",
			Help: "Lines delivered per sink partitioned by level.",
		}, []string{"sink", "level"}),
		bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "difflog_sink_bytes_total",
			Help: "Bytes delivered per sink.",
		}, []string{"sink"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "difflog_sink_errors_total",
			Help: "Failed Log calls per sink.",
		}, []string{"sink"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "difflog_sink_log_duration_seconds",
			Help:    "Time spent in Log per sink.",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"sink"}),
	}
	for _, collector := range []prometheus.Collector{m.lines, m.bytes, m.errors, m.latency} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register sink collector: %w", err)
		}
	}
	return m, nil
}

// Wrap returns next instrumented under the given sink label.
func (m *SinkMetrics) Wrap(name string, next progress.Sink) *InstrumentedSink {
	return &InstrumentedSink{name: name, next: next, metrics: m}
}

// InstrumentedSink records delivery counts and latency around another sink.
type InstrumentedSink struct {
	name    string
	next    progress.Sink
	metrics *SinkMetrics
}

// Log forwards to the wrapped sink and records the outcome.
func (s *InstrumentedSink) Log(ctx context.Context, level progress.Level, text string) error {
	start := time.Now()
	err := s.next.Log(ctx, level, text)
	s.metrics.latency.WithLabelValues(s.name).Observe(time.Since(start).Seconds())
	if err != nil {
		s.metrics.errors.WithLabelValues(s.name).Inc()
		return err
	}
	s.metrics.lines.WithLabelValues(s.name, level.String()).Inc()
	s.metrics.bytes.WithLabelValues(s.name).Add(float64(len(text)))
	return nil
}

// Close closes the wrapped sink.
func (s *InstrumentedSink) Close(ctx context.Context) error {
	return s.next.Close(ctx)
}
