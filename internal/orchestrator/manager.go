// Package orchestrator routes trading and read operations to the
// correct venue adapter, guards each venue behind its own circuit
// breaker, and runs the periodic health-monitor tick (spec.md §4.3).
//
// Grounded on internal/infrastructure/providers/circuitbreakers.go's
// CircuitBreakerManager.InitializeProvider/Execute pattern, adapted
// from a provider-fallback-chain use case (first healthy provider
// wins) to explicit per-venue routing: this gateway never silently
// reroutes an order to a different venue.
package orchestrator

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker"

	"github.com/tradefabric/gateway/internal/model"
	"github.com/tradefabric/gateway/internal/venue"
)

// managerCounters tracks the rolling request/success/error counts and
// latency a VenueManager reports in its system-event snapshot.
type managerCounters struct {
	requests     int64
	successes    int64
	errors       int64
	latencySumMS int64
}

func (c *managerCounters) record(d time.Duration, err error) {
	atomic.AddInt64(&c.requests, 1)
	atomic.AddInt64(&c.latencySumMS, d.Milliseconds())
	if err != nil {
		atomic.AddInt64(&c.errors, 1)
	} else {
		atomic.AddInt64(&c.successes, 1)
	}
}

// snapshot is an immutable read of managerCounters at one instant.
type snapshot struct {
	Requests    int64
	Successes   int64
	Errors      int64
	SuccessRate float64
	AvgLatency  time.Duration
}

func (c *managerCounters) snapshot() snapshot {
	reqs := atomic.LoadInt64(&c.requests)
	succ := atomic.LoadInt64(&c.successes)
	errs := atomic.LoadInt64(&c.errors)
	latSum := atomic.LoadInt64(&c.latencySumMS)
	s := snapshot{Requests: reqs, Successes: succ, Errors: errs}
	if reqs > 0 {
		s.SuccessRate = float64(succ) / float64(reqs)
		s.AvgLatency = time.Duration(latSum/reqs) * time.Millisecond
	}
	return s
}

// VenueManager pairs one venue.Adapter with its own circuit breaker
// and request counters, per spec.md §4.3.
type VenueManager struct {
	Venue   model.Venue
	adapter venue.Adapter
	breaker *gobreaker.CircuitBreaker
	counts  managerCounters

	mu     sync.RWMutex
	status model.VenueStatus
}

func newVenueManager(v model.Venue, a venue.Adapter) *VenueManager {
	m := &VenueManager{Venue: v, adapter: a}
	m.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        string(v),
		MaxRequests: 1,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= 5 },
	})
	return m
}

// Execute runs fn through the manager's circuit breaker, recording
// request counters and latency regardless of outcome.
func (m *VenueManager) Execute(fn func() (interface{}, error)) (interface{}, error) {
	start := time.Now()
	result, err := m.breaker.Execute(fn)
	m.counts.record(time.Since(start), err)
	return result, err
}

// BreakerState reports the underlying gobreaker state as a string.
func (m *VenueManager) BreakerState() string {
	switch m.breaker.State() {
	case gobreaker.StateOpen:
		return "open"
	case gobreaker.StateHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

func (m *VenueManager) Snapshot() snapshot { return m.counts.snapshot() }

func (m *VenueManager) updateStatus(s model.VenueStatus) {
	m.mu.Lock()
	m.status = s
	m.mu.Unlock()
}

func (m *VenueManager) Status() model.VenueStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// Healthy reports whether the manager's venue is eligible for routing:
// adapter-reported health and a closed (or half-open) breaker.
func (m *VenueManager) Healthy() bool {
	return m.adapter.HealthCheck(context.Background()) && m.BreakerState() != "open"
}
