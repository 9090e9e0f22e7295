// Package ratelimit spaces requests per origin so workers stay polite to
// individual hosts without serializing unrelated domains.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/brandsignal/harvester/internal/collector"
	"github.com/brandsignal/harvester/internal/metrics"
)

// Config holds rate limiter configuration.
type Config struct {
	// DefaultInterval is the minimum spacing between two requests to the
	// same origin. Zero disables throttling entirely.
	DefaultInterval time.Duration
	// Overrides maps an origin to a custom interval. Zero disables
	// throttling for that origin.
	Overrides map[string]time.Duration
}

// Limiter reserves request slots per origin on a strictly increasing
// schedule. Concurrent callers for the same origin serialize onto
// successive slots instead of all waking at once; callers for different
// origins never wait on each other.
type Limiter struct {
	mu        sync.Mutex
	origins   map[string]*originState
	interval  time.Duration
	overrides map[string]time.Duration
}

type originState struct {
	mu sync.Mutex
	// nextFree is the earliest instant the next request may be issued.
	nextFree time.Time
}

// New creates a Limiter.
func New(cfg Config) *Limiter {
	return &Limiter{
		origins:   make(map[string]*originState),
		interval:  cfg.DefaultInterval,
		overrides: cfg.Overrides,
	}
}

// WaitForOrigin blocks until it is safe to issue a request to the URL's
// origin, having reserved the next slot for that origin. The top-level
// lock is held only while locating or creating the per-origin state; the
// sleep itself happens outside every lock.
func (l *Limiter) WaitForOrigin(ctx context.Context, rawURL string) error {
	origin := collector.Origin(rawURL)
	if origin == "" {
		return nil
	}
	interval := l.intervalFor(origin)
	if interval <= 0 {
		return nil
	}

	l.mu.Lock()
	state, ok := l.origins[origin]
	if !ok {
		state = &originState{}
		l.origins[origin] = state
	}
	l.mu.Unlock()

	now := time.Now()
	state.mu.Lock()
	reserved := now
	if state.nextFree.After(now) {
		reserved = state.nextFree
	}
	state.nextFree = reserved.Add(interval)
	state.mu.Unlock()

	wait := reserved.Sub(now)
	if wait <= 0 {
		return nil
	}
	metrics.ObserveRateLimitDelay(origin, wait)

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("rate limit wait: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

// Reset clears all origin state. Useful between runs and in tests.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.origins = make(map[string]*originState)
}

func (l *Limiter) intervalFor(origin string) time.Duration {
	if custom, ok := l.overrides[origin]; ok {
		return custom
	}
	return l.interval
}
