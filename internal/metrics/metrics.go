// Package metrics exposes recognizer counters in Prometheus format.
package metrics

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all recognizer metrics on a private registry.
type Metrics struct {
	ActiveSessions   atomic.Int64
	ReferenceSamples atomic.Int64

	frames      prometheus.Counter
	outcomes    *prometheus.CounterVec
	lighting    *prometheus.CounterVec
	phases      *prometheus.CounterVec
	transitions *prometheus.CounterVec
	latency     prometheus.Histogram
	sessions    prometheus.Counter

	registry *prometheus.Registry
}

// New creates a Metrics instance with its collectors registered.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		frames: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mudra_frames_processed_total",
			Help: "Frames run through the recognition pipeline",
		}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mudra_classifier_outcomes_total",
			Help: "Raw classifier outcomes by kind",
		}, []string{"outcome"}),
		lighting: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mudra_lighting_status_total",
			Help: "Lighting gate verdicts by status",
		}, []string{"status"}),
		phases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mudra_stabilizer_phase_total",
			Help: "Stabilizer outputs by phase",
		}, []string{"phase"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mudra_stable_transitions_total",
			Help: "Changes of the stable output, by whether a sign or idle was entered",
		}, []string{"entered"}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "mudra_frame_process_seconds",
			Help:    "Time spent processing one frame",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1},
		}),
		sessions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mudra_sessions_opened_total",
			Help: "Sessions created since start",
		}),
	}

	m.registry.MustRegister(m.frames, m.outcomes, m.lighting, m.phases, m.transitions, m.latency, m.sessions)
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "mudra_active_sessions",
			Help: "Number of open recognition sessions",
		},
		func() float64 { return float64(m.ActiveSessions.Load()) },
	))
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "mudra_reference_samples",
			Help: "Reference samples loaded into the classifier",
		},
		func() float64 { return float64(m.ReferenceSamples.Load()) },
	))
	return m
}

// ObserveFrame records one processed frame.
func (m *Metrics) ObserveFrame(outcome, status, phase string, took time.Duration) {
	m.frames.Inc()
	m.outcomes.WithLabelValues(outcome).Inc()
	m.lighting.WithLabelValues(status).Inc()
	m.phases.WithLabelValues(phase).Inc()
	m.latency.Observe(took.Seconds())
}

// StableTransition records a change of the stable output. entered is
// "sign" or "idle"; sign names are kept out of the label set.
func (m *Metrics) StableTransition(entered string) {
	m.transitions.WithLabelValues(entered).Inc()
}

// SessionOpened increments the open session gauge.
func (m *Metrics) SessionOpened() {
	m.sessions.Inc()
	m.ActiveSessions.Add(1)
}

// SessionClosed decrements the open session gauge.
func (m *Metrics) SessionClosed() {
	m.ActiveSessions.Add(-1)
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the Prometheus HTTP handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
