package venue

import (
	"golang.org/x/time/rate"
)

// defaultOrderRPS and defaultOrderBurst bound outbound order
// placements per venue, grounded on
// internal/net/ratelimit/limiter.go's token-bucket-per-host shape —
// simplified to one bucket per adapter since an Adapter already scopes
// to a single venue/host.
const (
	defaultOrderRPS   = 10.0
	defaultOrderBurst = 20
)

// NewOrderLimiter builds the token bucket each venue adapter applies
// to PlaceOrder before the call reaches its circuit breaker, so a burst
// of client order requests throttles locally instead of tripping the
// venue's own rate limit. CancelOrder is not throttled.
func NewOrderLimiter() *rate.Limiter {
	return rate.NewLimiter(rate.Limit(defaultOrderRPS), defaultOrderBurst)
}
