package world

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the prometheus collectors of one world. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	placements  prometheus.Counter
	destroys    prometheus.Counter
	blocked     prometheus.Counter
	highlights  prometheus.Gauge
	tick        prometheus.Gauge
	chunks      prometheus.Gauge
	neighbors   prometheus.Counter
	stepSeconds prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer, worldID string) (*Metrics, error) {
	labels := prometheus.Labels{"world": worldID}
	m := &Metrics{
		placements: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "multipart", Name: "placements_total",
			Help: "Structure placements that passed the survivability probe.", ConstLabels: labels,
		}),
		destroys: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "multipart", Name: "cells_destroyed_total",
			Help: "Cells turned back into air.", ConstLabels: labels,
		}),
		blocked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "multipart", Name: "placements_blocked_total",
			Help: "Placements rejected by the survivability probe.", ConstLabels: labels,
		}),
		highlights: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "multipart", Name: "highlights_active",
			Help: "Blocked cells currently highlighted.", ConstLabels: labels,
		}),
		tick: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "multipart", Name: "tick",
			Help: "Current world tick.", ConstLabels: labels,
		}),
		chunks: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "multipart", Name: "loaded_chunks",
			Help: "Chunks allocated in the cell store.", ConstLabels: labels,
		}),
		neighbors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "multipart", Name: "neighbor_updates_total",
			Help: "Writes that requested a neighbour update.", ConstLabels: labels,
		}),
		stepSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "multipart", Name: "step_seconds",
			Help:    "Wall time of one world tick.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8), ConstLabels: labels,
		}),
	}
	for _, c := range []prometheus.Collector{m.placements, m.destroys, m.blocked, m.highlights, m.tick, m.chunks, m.neighbors, m.stepSeconds} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) placed() {
	if m != nil {
		m.placements.Inc()
	}
}

func (m *Metrics) destroyed() {
	if m != nil {
		m.destroys.Inc()
	}
}

func (m *Metrics) rejected() {
	if m != nil {
		m.blocked.Inc()
	}
}

func (m *Metrics) neighborUpdate() {
	if m != nil {
		m.neighbors.Inc()
	}
}

func (m *Metrics) observeStep(tick uint64, highlights, chunks int, d time.Duration) {
	if m == nil {
		return
	}
	m.tick.Set(float64(tick))
	m.highlights.Set(float64(highlights))
	m.chunks.Set(float64(chunks))
	m.stepSeconds.Observe(d.Seconds())
}
