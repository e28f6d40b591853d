package driver

import (
	"sync/atomic"
	"time"
)

// Metrics tracks runtime-level counters across all sessions. Counters are
// atomics so adapters can record from any goroutine.
type Metrics struct {
	SessionsCreated atomic.Int64
	SessionsClosed  atomic.Int64
	ActiveSessions  atomic.Int64

	NavigateCount atomic.Int64
	QueryCount    atomic.Int64
	ActionCount   atomic.Int64

	ActionSuccessCount atomic.Int64
	ActionFailureCount atomic.Int64

	ActionLatencySum   atomic.Int64 // nanoseconds, for averaging
	ActionLatencyCount atomic.Int64
}

// NewMetrics creates a metrics collector.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// RecordSessionCreated increments session creation counters.
func (m *Metrics) RecordSessionCreated() {
	if m == nil {
		return
	}
	m.SessionsCreated.Add(1)
	m.ActiveSessions.Add(1)
}

// RecordSessionClosed increments session close counters.
func (m *Metrics) RecordSessionClosed() {
	if m == nil {
		return
	}
	m.SessionsClosed.Add(1)
	m.ActiveSessions.Add(-1)
}

// RecordNavigate counts a navigation.
func (m *Metrics) RecordNavigate() {
	if m == nil {
		return
	}
	m.NavigateCount.Add(1)
}

// RecordQuery counts a locate/predicate call.
func (m *Metrics) RecordQuery() {
	if m == nil {
		return
	}
	m.QueryCount.Add(1)
}

// RecordAction counts an interaction and its outcome.
func (m *Metrics) RecordAction(success bool, latency time.Duration) {
	if m == nil {
		return
	}
	m.ActionCount.Add(1)
	if success {
		m.ActionSuccessCount.Add(1)
	} else {
		m.ActionFailureCount.Add(1)
	}
	m.ActionLatencySum.Add(latency.Nanoseconds())
	m.ActionLatencyCount.Add(1)
}

// Snapshot returns a point-in-time copy of all counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	avg := time.Duration(0)
	if n := m.ActionLatencyCount.Load(); n > 0 {
		avg = time.Duration(m.ActionLatencySum.Load() / n)
	}
	return MetricsSnapshot{
		SessionsCreated:      m.SessionsCreated.Load(),
		SessionsClosed:       m.SessionsClosed.Load(),
		ActiveSessions:       m.ActiveSessions.Load(),
		NavigateCount:        m.NavigateCount.Load(),
		QueryCount:           m.QueryCount.Load(),
		ActionCount:          m.ActionCount.Load(),
		ActionSuccessCount:   m.ActionSuccessCount.Load(),
		ActionFailureCount:   m.ActionFailureCount.Load(),
		AverageActionLatency: avg,
	}
}

// MetricsSnapshot is a point-in-time copy of driver metrics.
type MetricsSnapshot struct {
	SessionsCreated      int64
	SessionsClosed       int64
	ActiveSessions       int64
	NavigateCount        int64
	QueryCount           int64
	ActionCount          int64
	ActionSuccessCount   int64
	ActionFailureCount   int64
	AverageActionLatency time.Duration
}
