// Package notify provides best-effort, process-local notification
// dispatch: a bounded queue drained by a single consumer behind a
// sliding-window rate limiter. The queue is not a source of truth;
// losing queued notifications on restart is acceptable.
package notify

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// LimiterConfig defines the sliding-window rate limit.
type LimiterConfig struct {
	// MaxPerWindow is the maximum number of sends per window. Must be > 0.
	MaxPerWindow int
	// Window is the sliding window duration. Must be > 0.
	Window time.Duration
}

// Validate checks that the LimiterConfig has valid values.
func (c LimiterConfig) Validate() error {
	if c.MaxPerWindow <= 0 {
		return fmt.Errorf("MaxPerWindow must be > 0 (got %d)", c.MaxPerWindow)
	}
	if c.Window <= 0 {
		return fmt.Errorf("Window must be > 0 (got %s)", c.Window)
	}
	return nil
}

// SlidingWindowLimiter tracks send timestamps over a sliding window.
// It is an injected, instance-scoped object: one shared instance per
// deployed service, no process-wide singleton.
type SlidingWindowLimiter struct {
	config LimiterConfig

	mu     sync.Mutex
	stamps []time.Time

	// now is replaceable in tests.
	now func() time.Time
}

// NewSlidingWindowLimiter creates a limiter for the given config.
func NewSlidingWindowLimiter(config LimiterConfig) *SlidingWindowLimiter {
	return &SlidingWindowLimiter{
		config: config,
		now:    time.Now,
	}
}

// reserve records a send if the window has room and returns zero wait.
// Otherwise it returns how long until the oldest timestamp exits the
// window.
func (l *SlidingWindowLimiter) reserve() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.config.Window)

	// Drop timestamps that have left the window.
	kept := l.stamps[:0]
	for _, stamp := range l.stamps {
		if stamp.After(cutoff) {
			kept = append(kept, stamp)
		}
	}
	l.stamps = kept

	if len(l.stamps) < l.config.MaxPerWindow {
		l.stamps = append(l.stamps, now)
		return 0
	}

	return l.stamps[0].Sub(cutoff)
}

// Acquire blocks until a send slot is available or the context is
// cancelled. When the limit is hit it sleeps until the oldest timestamp
// exits the window; it never drops or reorders callers' work.
func (l *SlidingWindowLimiter) Acquire(ctx context.Context) error {
	for {
		wait := l.reserve()
		if wait <= 0 {
			return nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
