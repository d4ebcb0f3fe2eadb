package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// PublicInterval is the venue's allowance for unauthenticated calls.
const PublicInterval = time.Second

// PublicLimiter gates public endpoints: one shared bucket plus one bucket per pair for the
// endpoints the venue meters per pair.
type PublicLimiter struct {
	every rate.Limit
	burst int

	global *rate.Limiter

	mu      sync.Mutex
	perPair map[string]*rate.Limiter
}

// NewPublicLimiter allows one call per interval, globally and per pair.
func NewPublicLimiter(interval time.Duration) *PublicLimiter {
	if interval <= 0 {
		interval = PublicInterval
	}
	every := rate.Every(interval)
	return &PublicLimiter{
		every:   every,
		burst:   1,
		global:  rate.NewLimiter(every, 1),
		perPair: make(map[string]*rate.Limiter),
	}
}

// Wait blocks until the call may proceed. A non-empty pair additionally consumes that pair's bucket.
func (p *PublicLimiter) Wait(ctx context.Context, pair string) error {
	if pair != "" {
		if err := p.pairLimiter(pair).Wait(ctx); err != nil {
			return err
		}
	}
	return p.global.Wait(ctx)
}

func (p *PublicLimiter) pairLimiter(pair string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	limiter, ok := p.perPair[pair]
	if !ok {
		limiter = rate.NewLimiter(p.every, p.burst)
		p.perPair[pair] = limiter
	}
	return limiter
}
