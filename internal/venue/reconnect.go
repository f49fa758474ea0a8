package venue

import (
	"context"
	"math"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/tradefabric/gateway/internal/model"
)

// Reconnector drives a venue adapter's WebSocket reconnect loop
// (spec.md §4.1): on disconnect, backoff base*2^attempt capped at 60s
// with full jitter, reconnect, and re-arm every subscription that was
// live at disconnect. After MaxAttempts consecutive failures the
// adapter is marked "error" and the loop stops until externally
// kicked via Reset.
type Reconnector struct {
	base    time.Duration
	cap     time.Duration
	maxAtt  int
	connect func(ctx context.Context) error
	resub   func(ctx context.Context) error
	onState func(model.ConnStatus)
	logger  zerolog.Logger

	attempt int32
	stopped int32
}

func NewReconnector(base, capDur time.Duration, maxAttempts int,
	connect func(ctx context.Context) error, resubscribe func(ctx context.Context) error,
	onState func(model.ConnStatus), logger zerolog.Logger) *Reconnector {
	return &Reconnector{
		base: base, cap: capDur, maxAtt: maxAttempts,
		connect: connect, resub: resubscribe, onState: onState, logger: logger,
	}
}

// Backoff returns the delay for the given zero-based attempt number:
// min(base * 2^attempt, cap), before full jitter is applied.
func (r *Reconnector) Backoff(attempt int) time.Duration {
	d := float64(r.base) * math.Pow(2, float64(attempt))
	if d > float64(r.cap) {
		d = float64(r.cap)
	}
	return time.Duration(d)
}

// jitter applies full jitter: a uniform random duration in [0, d).
func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(d)))
}

// Run drives the reconnect loop until ctx is cancelled, the adapter is
// reconnected successfully, or MaxAttempts is exhausted. It is called
// once per disconnect event from the adapter's read loop.
func (r *Reconnector) Run(ctx context.Context) error {
	atomic.StoreInt32(&r.stopped, 0)
	if r.onState != nil {
		r.onState(model.ConnReconnecting)
	}
	for attempt := 0; attempt < r.maxAtt; attempt++ {
		atomic.StoreInt32(&r.attempt, int32(attempt))
		delay := jitter(r.Backoff(attempt))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		if err := r.connect(ctx); err != nil {
			r.logger.Warn().Err(err).Int("attempt", attempt).Dur("delay", delay).Msg("reconnect attempt failed")
			continue
		}
		if r.resub != nil {
			if err := r.resub(ctx); err != nil {
				r.logger.Warn().Err(err).Msg("re-subscribe after reconnect failed")
				continue
			}
		}
		if r.onState != nil {
			r.onState(model.ConnConnected)
		}
		return nil
	}

	atomic.StoreInt32(&r.stopped, 1)
	if r.onState != nil {
		r.onState(model.ConnError)
	}
	return context.DeadlineExceeded
}

// Stopped reports whether the loop exhausted MaxAttempts and gave up.
func (r *Reconnector) Stopped() bool { return atomic.LoadInt32(&r.stopped) == 1 }

// Reset clears the stopped flag so a kicked adapter can retry.
func (r *Reconnector) Reset() { atomic.StoreInt32(&r.stopped, 0) }
