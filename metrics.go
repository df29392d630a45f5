package goAccount

import (
	"sync/atomic"
	"time"
)

// MetricID names one console counter or histogram.
type MetricID uint16

const (
	// MetricPageRendered counts authenticated dispatches that produced a page.
	MetricPageRendered MetricID = iota
	// MetricLoginRedirect counts unauthenticated dispatches handed to the login redirect.
	MetricLoginRedirect
	// MetricAccessDenied counts principals rejected for lacking the console permission.
	MetricAccessDenied
	// MetricStateCheckerRejected counts form posts with a mismatched state checker.
	MetricStateCheckerRejected
	MetricSessionsListed
	MetricPasswordUpdateSuccess
	// MetricPasswordUpdateInvalidCurrent counts updates whose current password did not verify.
	MetricPasswordUpdateInvalidCurrent
	// MetricPasswordUpdateRejected counts updates refused by form checks or the password policy.
	MetricPasswordUpdateRejected
	MetricTOTPUpdateSuccess
	MetricTOTPUpdateFailure
	MetricTOTPRemoved
	// MetricSessionsLoggedOut counts sessions ended by "log out other sessions".
	MetricSessionsLoggedOut
	// MetricRateLimitHit counts updates refused by the attempt limiter.
	MetricRateLimitHit
	// MetricCollaboratorFailure counts dispatches that returned a collaborator error.
	MetricCollaboratorFailure
	// MetricDispatchLatency is the only histogram.
	MetricDispatchLatency
	metricIDCount
)

// latencyBounds are the inclusive upper bounds of the finite latency
// buckets. One overflow bucket follows.
var latencyBounds = [...]time.Duration{
	5 * time.Millisecond,
	10 * time.Millisecond,
	25 * time.Millisecond,
	50 * time.Millisecond,
	100 * time.Millisecond,
	250 * time.Millisecond,
	500 * time.Millisecond,
}

const latencyBuckets = len(latencyBounds) + 1

// counter sits alone on a cache line so hot counters do not contend.
type counter struct {
	atomic.Uint64
	_ [56]byte
}

// Metrics holds the console counters. All methods are safe on a nil
// receiver and become no-ops when the metrics are disabled.
type Metrics struct {
	enabled bool
	latency bool

	counters [metricIDCount]counter
	buckets  [latencyBuckets]atomic.Uint64
}

// MetricsSnapshot is a point-in-time copy of every counter. Histograms maps
// to raw per-bucket counts, not running totals.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled: cfg.Enabled,
		latency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

// Enabled reports whether counters are recorded.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// LatencyEnabled reports whether the dispatch latency histogram is recorded.
func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.latency
}

func (m *Metrics) Inc(id MetricID) { m.Add(id, 1) }

func (m *Metrics) Add(id MetricID, n uint64) {
	if !m.Enabled() || id >= MetricDispatchLatency || n == 0 {
		return
	}
	m.counters[id].Add(n)
}

// Observe records d in the latency histogram. Ids other than
// [MetricDispatchLatency] are ignored.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if !m.LatencyEnabled() || id != MetricDispatchLatency {
		return
	}
	i := 0
	for i < len(latencyBounds) && d > latencyBounds[i] {
		i++
	}
	m.buckets[i].Add(1)
}

// Value returns the current count for id.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= MetricDispatchLatency {
		return 0
	}
	return m.counters[id].Load()
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	s := MetricsSnapshot{
		Counters:   map[MetricID]uint64{},
		Histograms: map[MetricID][]uint64{},
	}
	if !m.Enabled() {
		return s
	}
	for id := range MetricDispatchLatency {
		s.Counters[id] = m.counters[id].Load()
	}
	if m.latency {
		raw := make([]uint64, latencyBuckets)
		for i := range raw {
			raw[i] = m.buckets[i].Load()
		}
		s.Histograms[MetricDispatchLatency] = raw
	}
	return s
}
