// Package metrics holds the prometheus collectors of the extension.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is safe to use as a nil pointer; every method is then a no-op.
type Metrics struct {
	registry *prometheus.Registry

	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	chunks   prometheus.Counter
	streams  *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "groq_extension",
			Name:      "dispatch_requests_total",
			Help:      "Tool dispatches by tool id and HTTP status.",
		}, []string{"tool", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "groq_extension",
			Name:      "dispatch_duration_seconds",
			Help:      "Time spent running a tool.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"tool"}),
		chunks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "groq_extension",
			Name:      "stream_chunks_total",
			Help:      "Chunks relayed to streaming callers.",
		}),
		streams: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "groq_extension",
			Name:      "streams_total",
			Help:      "Streaming responses by final state.",
		}, []string{"state"}),
	}
	m.registry.MustRegister(
		m.requests, m.duration, m.chunks, m.streams,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveDispatch records one dispatch. tool is empty when resolution failed.
func (m *Metrics) ObserveDispatch(tool string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	if tool == "" {
		tool = "none"
	}
	m.requests.WithLabelValues(tool, strconv.Itoa(status)).Inc()
	m.duration.WithLabelValues(tool).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveChunk() {
	if m == nil {
		return
	}
	m.chunks.Inc()
}

func (m *Metrics) ObserveStream(state string) {
	if m == nil {
		return
	}
	m.streams.WithLabelValues(state).Inc()
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
