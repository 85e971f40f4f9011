// Package metrics provides Prometheus metrics for Kortex.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Ingestion outcomes.
const (
	IngestHit   = "hit"
	IngestMiss  = "miss"
	IngestEmpty = "empty"
	IngestError = "error"
)

// Turn outcomes.
const (
	TurnOK     = "ok"
	TurnSetup  = "setup_error"
	TurnStream = "stream_error"
)

// Metrics holds all Prometheus collectors. A nil *Metrics records nothing.
type Metrics struct {
	IngestTotal        *prometheus.CounterVec
	IngestDuration     prometheus.Histogram
	ChunksIndexed      prometheus.Counter
	TurnsTotal         *prometheus.CounterVec
	TurnDuration       *prometheus.HistogramVec
	TurnsInFlight      prometheus.Gauge
	SearchQueriesTotal *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		IngestTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kortex_ingest_total",
				Help: "Document uploads by cache outcome",
			},
			[]string{"result"},
		),
		IngestDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "kortex_ingest_duration_seconds",
				Help:    "Time spent extracting, chunking and embedding new documents",
				Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
			},
		),
		ChunksIndexed: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "kortex_chunks_indexed_total",
				Help: "Chunks embedded into new retrieval indexes",
			},
		),
		TurnsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kortex_turns_total",
				Help: "Conversation turns by mode and outcome",
			},
			[]string{"mode", "outcome"},
		),
		TurnDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "kortex_turn_duration_seconds",
				Help:    "End-to-end turn latency",
				Buckets: []float64{.25, .5, 1, 2.5, 5, 10, 20, 40, 80, 160, 300},
			},
			[]string{"mode"},
		),
		TurnsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "kortex_turns_in_flight",
				Help: "Turns currently streaming",
			},
		),
		SearchQueriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kortex_search_queries_total",
				Help: "Web search calls made during deep dives",
			},
			[]string{"status"},
		),
	}
}

// RecordIngest records one upload outcome. Duration is only observed for misses.
func (m *Metrics) RecordIngest(result string, chunks int, duration time.Duration) {
	if m == nil {
		return
	}
	m.IngestTotal.WithLabelValues(result).Inc()
	if result == IngestMiss {
		m.IngestDuration.Observe(duration.Seconds())
		m.ChunksIndexed.Add(float64(chunks))
	}
}

// TurnStarted marks a turn as in flight and returns a func that records its outcome.
func (m *Metrics) TurnStarted(mode string) func(outcome string) {
	if m == nil {
		return func(string) {}
	}
	start := time.Now()
	m.TurnsInFlight.Inc()
	return func(outcome string) {
		m.TurnsInFlight.Dec()
		m.TurnsTotal.WithLabelValues(mode, outcome).Inc()
		m.TurnDuration.WithLabelValues(mode).Observe(time.Since(start).Seconds())
	}
}

// RecordSearch records one web search call.
func (m *Metrics) RecordSearch(err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.SearchQueriesTotal.WithLabelValues(status).Inc()
}
