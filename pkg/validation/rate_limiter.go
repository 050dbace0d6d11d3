// pkg/validation/rate_limiter.go
package validation

import (
	"sync"
	"time"
)

// RateLimiter keeps one token bucket per pilot session. A bucket holds up to
// burst tokens and refills continuously at burst per window.
type RateLimiter struct {
	burst  float64
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket

	sweep     *time.Ticker
	done      chan struct{}
	closeOnce sync.Once
}

type bucket struct {
	tokens float64
	seen   time.Time
}

// NewRateLimiter allows burst inputs per window for each session. Idle
// sessions are swept every window.
func NewRateLimiter(burst int, window time.Duration) *RateLimiter {
	rl := &RateLimiter{
		burst:   float64(burst),
		window:  window,
		now:     time.Now,
		buckets: make(map[string]*bucket),
		sweep:   time.NewTicker(window),
		done:    make(chan struct{}),
	}
	go rl.sweepLoop()
	return rl
}

// Allow takes one token from the session's bucket.
func (rl *RateLimiter) Allow(sessionID string) bool {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[sessionID]
	if !ok {
		b = &bucket{tokens: rl.burst, seen: now}
		rl.buckets[sessionID] = b
	}
	rl.refill(b, now)

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

func (rl *RateLimiter) refill(b *bucket, now time.Time) {
	if elapsed := now.Sub(b.seen); elapsed > 0 {
		b.tokens += rl.burst * float64(elapsed) / float64(rl.window)
		if b.tokens > rl.burst {
			b.tokens = rl.burst
		}
	}
	b.seen = now
}

// Tokens returns the tokens the session could spend now, burst for an unknown session.
func (rl *RateLimiter) Tokens(sessionID string) float64 {
	now := rl.now()
	rl.mu.Lock()
	defer rl.mu.Unlock()
	b, ok := rl.buckets[sessionID]
	if !ok {
		return rl.burst
	}
	rl.refill(b, now)
	return b.tokens
}

// Forget drops the bucket of a disconnected session.
func (rl *RateLimiter) Forget(sessionID string) {
	rl.mu.Lock()
	delete(rl.buckets, sessionID)
	rl.mu.Unlock()
}

// Clients returns the number of tracked sessions.
func (rl *RateLimiter) Clients() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.buckets)
}

// Sweep drops sessions idle for more than two windows before now.
func (rl *RateLimiter) Sweep(now time.Time) int {
	cutoff := now.Add(-2 * rl.window)
	removed := 0

	rl.mu.Lock()
	defer rl.mu.Unlock()
	for id, b := range rl.buckets {
		if b.seen.Before(cutoff) {
			delete(rl.buckets, id)
			removed++
		}
	}
	return removed
}

func (rl *RateLimiter) sweepLoop() {
	for {
		select {
		case <-rl.sweep.C:
			rl.Sweep(time.Now())
		case <-rl.done:
			return
		}
	}
}

// Close stops the sweeper. It is safe to call twice.
func (rl *RateLimiter) Close() {
	rl.closeOnce.Do(func() {
		close(rl.done)
		rl.sweep.Stop()
	})
}
