// Package relay throttles inbound frames per connection so a single
// chatty client cannot monopolize its room's share of hub time.
package relay

import (
	"sync"
	"time"
)

// rateLimiter is a token bucket sized for short bursts. The bucket
// starts full and earns its full burst back over one refill interval.
type rateLimiter struct {
	mu         sync.Mutex
	tokens     float64
	burst      float64
	perSecond  float64
	lastRefill time.Time
}

func newRateLimiter(burst int, interval time.Duration) *rateLimiter {
	if burst <= 0 {
		burst = 1
	}
	if interval <= 0 {
		interval = time.Second
	}

	return &rateLimiter{
		tokens:     float64(burst),
		burst:      float64(burst),
		perSecond:  float64(burst) / interval.Seconds(),
		lastRefill: time.Now(),
	}
}

// allow consumes one token, reporting false when the bucket is empty.
// Callers decide what happens to a rejected frame; the limiter itself
// never blocks.
func (rl *rateLimiter) allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	if elapsed := now.Sub(rl.lastRefill).Seconds(); elapsed > 0 {
		rl.tokens = min(rl.tokens+elapsed*rl.perSecond, rl.burst)
	}
	rl.lastRefill = now

	if rl.tokens < 1 {
		return false
	}
	rl.tokens--
	return true
}
