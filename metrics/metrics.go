// Package metrics registers the engine's counters and gauges on an
// injectable Prometheus registry. An engine created with a nil registry
// gets a Set wired to a private registry that nothing ever scrapes, so
// instrumentation is always safe to call and never panics on a missing
// collector.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Set is the engine's full collection of metrics. One Set is created per
// engine instance so that multiple engines in the same process (each
// single-threaded, each with its own heap) don't share counters.
type Set struct {
	GCCycles       prometheus.Counter
	GCPauseSeconds prometheus.Histogram
	LiveHeapBytes  prometheus.Gauge
	AllocBytes     prometheus.Counter

	ICHits        *prometheus.CounterVec
	ICMisses      *prometheus.CounterVec
	ICMegamorphic *prometheus.CounterVec

	CallFrameDepth prometheus.Gauge
}

// NewSet creates a Set and registers it on reg. If reg is nil, a private
// registry is used so the returned Set is always safe to use but
// observable only by the caller holding it (via the Registry field is
// intentionally not exposed — hosts that want to scrape pass their own
// registry).
func NewSet(reg prometheus.Registerer) *Set {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	s := &Set{
		GCCycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lumen",
			Subsystem: "gc",
			Name:      "cycles_total",
			Help:      "Number of mark-and-sweep collection cycles run.",
		}),
		GCPauseSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "lumen",
			Subsystem: "gc",
			Name:      "pause_seconds",
			Help:      "Stop-the-world pause duration of each collection cycle.",
			Buckets:   prometheus.ExponentialBuckets(0.00005, 2, 16),
		}),
		LiveHeapBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "lumen",
			Subsystem: "heap",
			Name:      "live_bytes",
			Help:      "Bytes occupied by cells reachable as of the last sweep.",
		}),
		AllocBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lumen",
			Subsystem: "heap",
			Name:      "allocated_bytes_total",
			Help:      "Cumulative bytes requested via allocate().",
		}),
		ICHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lumen",
			Subsystem: "ic",
			Name:      "hits_total",
			Help:      "Inline cache hits by site kind.",
		}, []string{"kind"}),
		ICMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lumen",
			Subsystem: "ic",
			Name:      "misses_total",
			Help:      "Inline cache misses by site kind.",
		}, []string{"kind"}),
		ICMegamorphic: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lumen",
			Subsystem: "ic",
			Name:      "megamorphic_total",
			Help:      "Sites transitioned to megamorphic by site kind.",
		}, []string{"kind"}),
		CallFrameDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "lumen",
			Subsystem: "vm",
			Name:      "call_frame_depth",
			Help:      "High-water mark of the call stack depth.",
		}),
	}
	collectors := []prometheus.Collector{
		s.GCCycles, s.GCPauseSeconds, s.LiveHeapBytes, s.AllocBytes,
		s.ICHits, s.ICMisses, s.ICMegamorphic, s.CallFrameDepth,
	}
	for _, c := range collectors {
		// A Set reused across engines in tests may double-register;
		// ignore AlreadyRegisteredError so instrumentation never panics
		// the mutator.
		if err := reg.Register(c); err != nil {
			if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
				_ = are
				continue
			}
		}
	}
	return s
}

// ObserveGCCycle records one completed collection cycle.
func (s *Set) ObserveGCCycle(pause time.Duration, liveBytes uint64) {
	s.GCCycles.Inc()
	s.GCPauseSeconds.Observe(pause.Seconds())
	s.LiveHeapBytes.Set(float64(liveBytes))
}

// SiteKind names the three kinds of inline-cache sites for metric labels.
type SiteKind string

const (
	SiteProperty SiteKind = "property"
	SiteGlobal   SiteKind = "global"
	SiteMethod   SiteKind = "method"
)

func (s *Set) ObserveICHit(kind SiteKind)        { s.ICHits.WithLabelValues(string(kind)).Inc() }
func (s *Set) ObserveICMiss(kind SiteKind)       { s.ICMisses.WithLabelValues(string(kind)).Inc() }
func (s *Set) ObserveICMegamorphic(kind SiteKind) {
	s.ICMegamorphic.WithLabelValues(string(kind)).Inc()
}
