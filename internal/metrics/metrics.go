// Package metrics exposes Prometheus collectors for dispatch activity.
package metrics

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "stardispatch"

// Dispatch reports dispatcher runs, frames and heartbeats.
// A nil *Dispatch is valid and records nothing.
type Dispatch struct {
	runs        *prometheus.CounterVec
	runDuration *prometheus.HistogramVec
	active      prometheus.Gauge
	frames      prometheus.Counter
	frameBytes  prometheus.Counter
	heartbeats  prometheus.Counter
	streamers   prometheus.Histogram
	registry    prometheus.Gatherer
}

var (
	defaultOnce sync.Once
	shared      *Dispatch
)

// Default returns the collectors registered with the global Prometheus registry.
func Default() *Dispatch {
	defaultOnce.Do(func() {
		shared = MustNew(prometheus.DefaultRegisterer)
	})
	return shared
}

// MustNew registers the dispatch collectors with reg. Collectors that are
// already registered are reused; any other registration error panics.
func MustNew(reg prometheus.Registerer) *Dispatch {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Dispatch{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "runs_total",
			Help:      "Dispatcher runs by outcome.",
		}, []string{"outcome"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "run_duration_seconds",
			Help:      "Wall time of a dispatcher run, connect to teardown.",
			Buckets:   []float64{.01, .05, .1, .5, 1, 5, 15, 60, 300, 900},
		}, []string{"outcome"}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "active",
			Help:      "Dispatcher runs currently streaming.",
		}),
		frames: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "frames_total",
			Help:      "SSE frames written to client sinks.",
		}),
		frameBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "frame_bytes_total",
			Help:      "Bytes of SSE frames written to client sinks.",
		}),
		heartbeats: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "heartbeats_total",
			Help:      "Heartbeat probes written to client sinks.",
		}),
		streamers: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "streamers",
			Help:      "Streamers registered per run, heartbeat excluded.",
			Buckets:   []float64{1, 2, 3, 5, 8, 13},
		}),
	}

	m.runs = register(reg, m.runs)
	m.runDuration = register(reg, m.runDuration)
	m.active = register(reg, m.active)
	m.frames = register(reg, m.frames)
	m.frameBytes = register(reg, m.frameBytes)
	m.heartbeats = register(reg, m.heartbeats)
	m.streamers = register(reg, m.streamers)

	if g, ok := reg.(prometheus.Gatherer); ok {
		m.registry = g
	}
	return m
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

// RunStarted marks a run as streaming.
func (m *Dispatch) RunStarted(streamers int) {
	if m == nil {
		return
	}
	m.active.Inc()
	m.streamers.Observe(float64(streamers))
}

// RunFinished records the outcome of a run started with RunStarted.
func (m *Dispatch) RunFinished(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.active.Dec()
	m.runs.WithLabelValues(outcome).Inc()
	m.runDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

// FrameWritten counts one frame delivered to a sink.
func (m *Dispatch) FrameWritten(size int, heartbeat bool) {
	if m == nil {
		return
	}
	if heartbeat {
		m.heartbeats.Inc()
		return
	}
	m.frames.Inc()
	m.frameBytes.Add(float64(size))
}

// Handler serves the registry the collectors were registered with, falling
// back to the default gatherer.
func (m *Dispatch) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
