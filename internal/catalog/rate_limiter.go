package catalog

import (
	"context"
	"sync"
	"time"
)

// RateLimiter spaces calls at least 1/rps apart across goroutines.
type RateLimiter struct {
	mu            sync.Mutex
	nextAllowedAt time.Time
	interval      time.Duration
}

func NewRateLimiter(requestsPerSecond int) *RateLimiter {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 1
	}
	return &RateLimiter{interval: time.Second / time.Duration(requestsPerSecond)}
}

// WaitTurn blocks until the caller's slot and returns how long it waited.
// A cancelled ctx returns early; the slot stays consumed.
func (r *RateLimiter) WaitTurn(ctx context.Context) (time.Duration, error) {
	r.mu.Lock()
	now := time.Now()
	scheduled := now
	if r.nextAllowedAt.After(now) {
		scheduled = r.nextAllowedAt
	}
	r.nextAllowedAt = scheduled.Add(r.interval)
	r.mu.Unlock()

	sleep := time.Until(scheduled)
	if sleep <= 0 {
		return 0, nil
	}
	if err := sleepContext(ctx, sleep); err != nil {
		return 0, err
	}
	return sleep, nil
}
