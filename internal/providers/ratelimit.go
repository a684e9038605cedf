package providers

import (
	"context"
	"sync"
	"time"
)

// RateLimiter enforces a minimum interval between consecutive requests.
// Slots are reserved under the lock so concurrent callers queue in order.
type RateLimiter struct {
	mu sync.Mutex

	interval time.Duration
	next     time.Time

	// Statistics
	totalConsumed int64
	totalWaited   time.Duration
	last429Time   time.Time
}

// RateLimiterStatus reports current limiter state.
type RateLimiterStatus struct {
	Interval       time.Duration `json:"interval"`
	TimeUntilToken time.Duration `json:"time_until_token"`
	TotalConsumed  int64         `json:"total_consumed"`
	TotalWaited    time.Duration `json:"total_waited"`
	Last429Time    time.Time     `json:"last_429_time,omitempty"`
}

// NewRateLimiter creates a limiter allowing one request per interval.
// A zero interval disables pacing.
func NewRateLimiter(interval time.Duration) *RateLimiter {
	if interval < 0 {
		interval = 0
	}
	return &RateLimiter{interval: interval}
}

// Wait blocks until the caller's slot arrives or the context is cancelled.
func (r *RateLimiter) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	now := time.Now()
	slot := r.next
	if slot.Before(now) {
		slot = now
	}
	r.next = slot.Add(r.interval)
	r.totalConsumed++
	wait := slot.Sub(now)
	r.mu.Unlock()

	if wait <= 0 {
		return nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		r.mu.Lock()
		r.totalWaited += wait
		r.mu.Unlock()
		return nil
	}
}

// Record429 should be called when a 429 error is received.
// It pushes the next slot out by retryAfter.
func (r *RateLimiter) Record429(retryAfter time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	r.last429Time = now
	if retryAfter > 0 && now.Add(retryAfter).After(r.next) {
		r.next = now.Add(retryAfter)
	}
}

// Status returns current limiter status.
func (r *RateLimiter) Status() RateLimiterStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	var until time.Duration
	if d := time.Until(r.next); d > 0 {
		until = d
	}
	return RateLimiterStatus{
		Interval:       r.interval,
		TimeUntilToken: until,
		TotalConsumed:  r.totalConsumed,
		TotalWaited:    r.totalWaited,
		Last429Time:    r.last429Time,
	}
}
