package signal

import (
	"sync"

	"github.com/dkeye/RandomVoice/internal/core"
	"golang.org/x/time/rate"
)

// RateLimiter bounds inbound frames per connection. A nil *RateLimiter
// allows everything.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[core.ConnID]*rate.Limiter
	limit    rate.Limit
	burst    int
}

func NewRateLimiter(perSecond float64) *RateLimiter {
	if perSecond <= 0 {
		return nil
	}
	return &RateLimiter{
		limiters: make(map[core.ConnID]*rate.Limiter),
		limit:    rate.Limit(perSecond),
		burst:    max(1, int(perSecond)),
	}
}

func (rl *RateLimiter) Allow(id core.ConnID) bool {
	if rl == nil {
		return true
	}
	rl.mu.Lock()
	l, ok := rl.limiters[id]
	if !ok {
		l = rate.NewLimiter(rl.limit, rl.burst)
		rl.limiters[id] = l
	}
	rl.mu.Unlock()
	return l.Allow()
}

func (rl *RateLimiter) Forget(id core.ConnID) {
	if rl == nil {
		return
	}
	rl.mu.Lock()
	delete(rl.limiters, id)
	rl.mu.Unlock()
}
