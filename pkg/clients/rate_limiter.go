package clients

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter defines the interface for rate limiting
type RateLimiter interface {
	// Wait blocks until a request is allowed or ctx is done
	Wait(ctx context.Context) error
	// Allow reports whether a request may happen now
	Allow() bool
}

// NewRateLimiter creates a token bucket limiter allowing perSecond requests
// per second with the given burst (at least 1).
func NewRateLimiter(perSecond float64, burst int) RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

// Every returns the requests-per-second value for one request per interval.
func Every(interval time.Duration) float64 {
	return float64(rate.Every(interval))
}
