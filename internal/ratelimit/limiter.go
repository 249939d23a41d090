package ratelimit

import "context"

// RateLimiter bounds outbound webhook throughput per business.
type RateLimiter interface {
	// Allow reports whether one more send for businessID fits the current window.
	Allow(ctx context.Context, businessID string) (bool, error)
	// Wait blocks until a send for businessID is allowed or ctx is done.
	Wait(ctx context.Context, businessID string) error
}
