// concurrency/metrics.go
package concurrency

import (
	"sync/atomic"
	"time"
)

// Metrics counts what a client did. All methods are safe for concurrent use.
type Metrics struct {
	totalRequests     atomic.Int64
	totalRetries      atomic.Int64
	totalRefreshes    atomic.Int64
	refreshFailures   atomic.Int64
	swallowedFailures atomic.Int64
	permitWaitTime    atomic.Int64
	inFlight          atomic.Int64
}

// MetricsSnapshot is a point-in-time copy of Metrics.
type MetricsSnapshot struct {
	TotalRequests     int64
	TotalRetries      int64
	TotalRefreshes    int64
	RefreshFailures   int64
	SwallowedFailures int64
	PermitWaitTime    time.Duration
	InFlight          int64
}

// IncRetries records a request re-issued after a token refresh.
func (m *Metrics) IncRetries() { m.totalRetries.Add(1) }

// IncRefreshes records a refresh round-trip; failed marks it unsuccessful.
func (m *Metrics) IncRefreshes(failed bool) {
	m.totalRefreshes.Add(1)
	if failed {
		m.refreshFailures.Add(1)
	}
}

// IncSwallowed records a failure returned to the caller as an empty result.
func (m *Metrics) IncSwallowed() { m.swallowedFailures.Add(1) }

func (m *Metrics) permitAcquired(wait time.Duration) int64 {
	m.totalRequests.Add(1)
	m.permitWaitTime.Add(int64(wait))
	return m.inFlight.Add(1)
}

func (m *Metrics) permitReleased() int64 {
	return m.inFlight.Add(-1)
}

// Snapshot returns the current values.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		TotalRequests:     m.totalRequests.Load(),
		TotalRetries:      m.totalRetries.Load(),
		TotalRefreshes:    m.totalRefreshes.Load(),
		RefreshFailures:   m.refreshFailures.Load(),
		SwallowedFailures: m.swallowedFailures.Load(),
		PermitWaitTime:    time.Duration(m.permitWaitTime.Load()),
		InFlight:          m.inFlight.Load(),
	}
}
