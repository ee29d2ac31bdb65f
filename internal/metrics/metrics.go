// Package metrics exposes the viewer's Prometheus metrics.
package metrics

import (
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application metrics. Hot-path counters are plain
// atomics read by gauge funcs at scrape time.
type Metrics struct {
	// Render loop
	Ticks          atomic.Uint64
	FramesRendered atomic.Uint64
	RawFrames      atomic.Uint64
	Detections     atomic.Uint64
	HandsDetected  atomic.Uint64
	DetectErrors   atomic.Uint64
	ParticlesLive  atomic.Int64

	// Signaling
	SignalPeers atomic.Int64

	sourceSwitches *prometheus.CounterVec
	sourceErrors   *prometheus.CounterVec
	pairingEnded   *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates a Metrics instance with its own registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		sourceSwitches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fingerglow_source_switches_total",
				Help: "Source switches by target kind",
			},
			[]string{"kind"},
		),
		sourceErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fingerglow_source_errors_total",
				Help: "Source acquisition failures by kind",
			},
			[]string{"kind"},
		),
		pairingEnded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fingerglow_pairing_sessions_total",
				Help: "Finished pairing sessions by role and reason (empty reason for a clean close)",
			},
			[]string{"role", "reason"},
		),
	}

	m.registerPrometheusMetrics()
	return m
}

func (m *Metrics) registerPrometheusMetrics() {
	counter := func(name, help string, v *atomic.Uint64) prometheus.Collector {
		return prometheus.NewCounterFunc(
			prometheus.CounterOpts{Name: name, Help: help},
			func() float64 { return float64(v.Load()) },
		)
	}

	m.registry.MustRegister(
		counter("fingerglow_render_ticks_total", "Render ticks with a ready stream", &m.Ticks),
		counter("fingerglow_frames_rendered_total", "Frames published with the particle overlay", &m.FramesRendered),
		counter("fingerglow_frames_raw_total", "Frames published without an overlay", &m.RawFrames),
		counter("fingerglow_detections_total", "Successful landmark detection calls", &m.Detections),
		counter("fingerglow_hands_detected_total", "Hands returned by the detector", &m.HandsDetected),
		counter("fingerglow_detect_errors_total", "Failed or panicking landmark detection calls", &m.DetectErrors),
	)

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "fingerglow_particles_live",
			Help: "Particles alive after the last tick",
		},
		func() float64 { return float64(m.ParticlesLive.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "fingerglow_signal_peers",
			Help: "Peers connected to the signaling server",
		},
		func() float64 { return float64(m.SignalPeers.Load()) },
	))

	m.registry.MustRegister(m.sourceSwitches, m.sourceErrors, m.pairingEnded)
}

// SourceSwitched counts a switch to the given source kind.
func (m *Metrics) SourceSwitched(kind string) {
	m.sourceSwitches.WithLabelValues(kind).Inc()
}

// SourceFailed counts an acquisition failure.
func (m *Metrics) SourceFailed(kind string) {
	m.sourceErrors.WithLabelValues(kind).Inc()
}

// PairingEnded counts a closed pairing session.
func (m *Metrics) PairingEnded(role, reason string) {
	m.pairingEnded.WithLabelValues(role, reason).Inc()
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the Prometheus HTTP handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
