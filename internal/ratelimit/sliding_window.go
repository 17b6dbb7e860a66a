// Package ratelimit provides sliding window rate limiting. The gateway
// uses it to throttle API requests per client address.
package ratelimit

import (
	"sync"
	"time"
)

// Decision is the outcome of a single Allow call.
type Decision struct {
	Allowed    bool
	Remaining  int           // slots left in the window after this call
	ResetAt    time.Time     // when the oldest tracked event leaves the window
	RetryAfter time.Duration // how long to wait when not allowed, at least 1s
}

// bucket tracks event timestamps within the window for one key.
type bucket struct {
	mu         sync.Mutex
	timestamps []time.Time
	lastAccess time.Time
}

// Limiter implements the sliding window algorithm over arbitrary string
// keys. Idle buckets are reaped by a background loop.
type Limiter struct {
	buckets   sync.Map // string -> *bucket
	window    time.Duration
	limit     int
	now       func() time.Time
	reapTick  *time.Ticker
	stopReap  chan struct{}
	reapGroup sync.WaitGroup
}

// NewLimiter creates a limiter allowing limit events per window. Buckets
// idle for two windows are removed on the cleanup interval.
func NewLimiter(window time.Duration, limit int, cleanupInterval time.Duration) *Limiter {
	l := &Limiter{
		window:   window,
		limit:    limit,
		now:      time.Now,
		reapTick: time.NewTicker(cleanupInterval),
		stopReap: make(chan struct{}),
	}

	l.reapGroup.Add(1)
	go l.reapLoop()
	return l
}

// Allow records an event for key if it fits in the window.
func (l *Limiter) Allow(key string) Decision {
	now := l.now()

	v, _ := l.buckets.LoadOrStore(key, &bucket{lastAccess: now})
	b := v.(*bucket)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastAccess = now

	// Drop timestamps that left the window.
	cutoff := now.Add(-l.window)
	valid := b.timestamps[:0]
	for _, ts := range b.timestamps {
		if ts.After(cutoff) {
			valid = append(valid, ts)
		}
	}
	b.timestamps = valid

	if len(b.timestamps) >= l.limit {
		resetAt := b.timestamps[0].Add(l.window)
		retryAfter := resetAt.Sub(now)
		if retryAfter < time.Second {
			retryAfter = time.Second
		}
		return Decision{ResetAt: resetAt, RetryAfter: retryAfter}
	}

	b.timestamps = append(b.timestamps, now)
	return Decision{
		Allowed:   true,
		Remaining: l.limit - len(b.timestamps),
		ResetAt:   b.timestamps[0].Add(l.window),
	}
}

// Stop halts the background reaper.
func (l *Limiter) Stop() {
	l.reapTick.Stop()
	close(l.stopReap)
	l.reapGroup.Wait()
}

// Stats describes the limiter's current tracking state.
type Stats struct {
	ActiveBuckets  int           `json:"active_buckets"`
	TrackedEvents  int           `json:"tracked_events"`
	WindowDuration time.Duration `json:"window_duration"`
	Limit          int           `json:"limit"`
}

// GetStats returns current statistics about the limiter.
func (l *Limiter) GetStats() Stats {
	stats := Stats{WindowDuration: l.window, Limit: l.limit}
	l.buckets.Range(func(key, value interface{}) bool {
		b := value.(*bucket)
		b.mu.Lock()
		stats.ActiveBuckets++
		stats.TrackedEvents += len(b.timestamps)
		b.mu.Unlock()
		return true
	})
	return stats
}

func (l *Limiter) reapLoop() {
	defer l.reapGroup.Done()
	for {
		select {
		case <-l.reapTick.C:
			l.reap()
		case <-l.stopReap:
			return
		}
	}
}

// reap removes buckets idle for two full windows.
func (l *Limiter) reap() {
	cutoff := l.now().Add(-2 * l.window)

	var stale []string
	l.buckets.Range(func(key, value interface{}) bool {
		b := value.(*bucket)
		b.mu.Lock()
		idle := b.lastAccess.Before(cutoff)
		b.mu.Unlock()
		if idle {
			stale = append(stale, key.(string))
		}
		return true
	})
	for _, key := range stale {
		l.buckets.Delete(key)
	}
}
