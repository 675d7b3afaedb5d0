// Package observability owns the prometheus registry and the service metrics.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics methods are safe on a nil receiver so components can run without
// instrumentation.
type Metrics struct {
	registry *prometheus.Registry

	turns          *prometheus.CounterVec
	stateDuration  *prometheus.HistogramVec
	ingestJobs     *prometheus.CounterVec
	ingestedChunks prometheus.Counter
	cleanupErrors  *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		turns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "notebookrag",
			Subsystem: "rag",
			Name:      "turns_total",
			Help:      "Question turns by final state.",
		}, []string{"outcome"}),
		stateDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "notebookrag",
			Subsystem: "rag",
			Name:      "state_duration_seconds",
			Help:      "Time spent in each turn state.",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"state"}),
		ingestJobs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "notebookrag",
			Subsystem: "ingest",
			Name:      "jobs_total",
			Help:      "Ingestion jobs by result.",
		}, []string{"result"}),
		ingestedChunks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "notebookrag",
			Subsystem: "ingest",
			Name:      "chunks_total",
			Help:      "Chunks written to the store and search index.",
		}),
		cleanupErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "notebookrag",
			Subsystem: "session",
			Name:      "cleanup_errors_total",
			Help:      "Failed external cleanup steps during session delete.",
		}, []string{"step"}),
	}
}

func (m *Metrics) ObserveTurn(outcome string) {
	if m == nil {
		return
	}
	m.turns.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveState(state string, d time.Duration) {
	if m == nil {
		return
	}
	m.stateDuration.WithLabelValues(state).Observe(d.Seconds())
}

func (m *Metrics) ObserveIngest(result string, chunks int) {
	if m == nil {
		return
	}
	m.ingestJobs.WithLabelValues(result).Inc()
	if chunks > 0 {
		m.ingestedChunks.Add(float64(chunks))
	}
}

func (m *Metrics) ObserveCleanupError(step string) {
	if m == nil {
		return
	}
	m.cleanupErrors.WithLabelValues(step).Inc()
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
