// Package metrics exposes Prometheus collectors for the publisher and its
// HTTP surface.
package metrics

import (
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/JakeFAU/difflog/internal/progress"
)

var (
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the HTTP collectors on the default registry.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "difflog_http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "difflog_http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// PublisherMetrics records publisher activity. It implements progress.Observer.
type PublisherMetrics struct {
	frames     *prometheus.CounterVec
	frameBytes *prometheus.CounterVec
	patchOps   prometheus.Histogram
	unchanged  prometheus.Counter
	failures   prometheus.Counter
}

var _ progress.Observer = (*PublisherMetrics)(nil)

// NewPublisherMetrics registers the publisher collectors against reg.
func NewPublisherMetrics(reg prometheus.Registerer) (*PublisherMetrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &PublisherMetrics{
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "difflog_frames_total",
			Help: "Frames transmitted, labeled by kind (baseline or patch).",
		}, []string{"kind"}),
		frameBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "difflog_frame_bytes_total",
			Help: "Encoded frame bytes transmitted, labeled by kind.",
		}, []string{"kind"}),
		patchOps: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "difflog_patch_ops",
			Help:    "Operations per transmitted patch.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
		unchanged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "difflog_ticks_unchanged_total",
			Help: "Ticks that found nothing new to transmit.",
		}),
		failures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "difflog_flush_failures_total",
			Help: "Background flushes that failed to encode or transmit.",
		}),
	}
	for _, c := range []prometheus.Collector{m.frames, m.frameBytes, m.patchOps, m.unchanged, m.failures} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register publisher collector: %w", err)
		}
	}
	return m, nil
}

// FrameSent implements progress.Observer.
func (m *PublisherMetrics) FrameSent(kind string, bytes, ops int) {
	m.frames.WithLabelValues(kind).Inc()
	m.frameBytes.WithLabelValues(kind).Add(float64(bytes))
	if kind == progress.FramePatch {
		m.patchOps.Observe(float64(ops))
	}
}

// TickUnchanged implements progress.Observer.
func (m *PublisherMetrics) TickUnchanged() {
	m.unchanged.Inc()
}

// FlushFailed implements progress.Observer.
func (m *PublisherMetrics) FlushFailed() {
	m.failures.Inc()
}
