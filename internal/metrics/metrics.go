// Package metrics collects the composer's operational counters. All methods
// are nil-safe so callers can run without a collector wired.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Turn statuses for the turns_total counter.
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
	StatusError    = "error"
)

// Collector holds the composer's prometheus instruments.
type Collector struct {
	turnsTotal          *prometheus.CounterVec
	inferenceErrors     *prometheus.CounterVec
	turnDuration        *prometheus.HistogramVec
	sessionsActive      prometheus.Gauge
	fieldsCapturedTotal *prometheus.CounterVec
}

// NewCollector registers the composer instruments with reg. Pass
// prometheus.DefaultRegisterer outside tests.
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		turnsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "composer",
				Name:      "turns_total",
				Help:      "Total conversation turns handled, by topic and outcome",
			},
			[]string{"topic", "status"},
		),
		inferenceErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "composer",
				Name:      "inference_errors_total",
				Help:      "Completion-service failures that took the degraded path",
			},
			[]string{"provider"},
		),
		turnDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "composer",
				Name:      "turn_duration_seconds",
				Help:      "End-to-end turn latency, including the completion call",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"topic"},
		),
		sessionsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "composer",
				Name:      "sessions_active",
				Help:      "Sessions with a live websocket or recent turn activity",
			},
		),
		fieldsCapturedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "composer",
				Name:      "fields_captured_total",
				Help:      "Fields newly written into state by the merge step",
			},
			[]string{"topic"},
		),
	}
}

// RecordTurn counts one handled turn and observes its latency.
func (c *Collector) RecordTurn(topic, status string, duration time.Duration) {
	if c == nil {
		return
	}
	c.turnsTotal.WithLabelValues(topic, status).Inc()
	c.turnDuration.WithLabelValues(topic).Observe(duration.Seconds())
}

// RecordInferenceError counts one completion failure.
func (c *Collector) RecordInferenceError(provider string) {
	if c == nil {
		return
	}
	c.inferenceErrors.WithLabelValues(provider).Inc()
}

// RecordFieldsCaptured counts newly merged fields.
func (c *Collector) RecordFieldsCaptured(topic string, n int) {
	if c == nil || n <= 0 {
		return
	}
	c.fieldsCapturedTotal.WithLabelValues(topic).Add(float64(n))
}

// SessionOpened increments the active-session gauge.
func (c *Collector) SessionOpened() {
	if c == nil {
		return
	}
	c.sessionsActive.Inc()
}

// SessionClosed decrements the active-session gauge.
func (c *Collector) SessionClosed() {
	if c == nil {
		return
	}
	c.sessionsActive.Dec()
}

// SetSessionsActive sets the active-session gauge, for callers that track
// totals rather than deltas.
func (c *Collector) SetSessionsActive(n int) {
	if c == nil {
		return
	}
	c.sessionsActive.Set(float64(n))
}
