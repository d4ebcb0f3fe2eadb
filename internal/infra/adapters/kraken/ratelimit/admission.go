// Package ratelimit implements Kraken's decaying-penalty admission control.
//
// Every private call adds a cost to a per-account counter that decays continuously at a
// tier-specific rate. A call whose cost would push the counter above the tier ceiling waits
// until enough of the counter has decayed. Admission never drops a request.
package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Tier is the account verification level that selects ceilings and decay rates.
type Tier uint8

const (
	TierStarter Tier = iota + 1
	TierIntermediate
	TierPro
)

func (t Tier) String() string {
	switch t {
	case TierStarter:
		return "starter"
	case TierIntermediate:
		return "intermediate"
	case TierPro:
		return "pro"
	default:
		return "unknown"
	}
}

// ParseTier maps a configuration string onto a Tier.
func ParseTier(raw string) (Tier, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "starter":
		return TierStarter, nil
	case "", "intermediate":
		return TierIntermediate, nil
	case "pro":
		return TierPro, nil
	default:
		return 0, fmt.Errorf("unknown verification tier %q", raw)
	}
}

// Limits describes one decaying counter. Units are the venue's costs scaled by 100.
type Limits struct {
	Ceiling        decimal.Decimal
	DecayPerSecond decimal.Decimal
}

func limits(ceiling, decay int64) Limits {
	return Limits{Ceiling: decimal.NewFromInt(ceiling), DecayPerSecond: decimal.NewFromInt(decay)}
}

// PrivateLimits returns the private endpoint counter for the tier.
func PrivateLimits(tier Tier) Limits {
	switch tier {
	case TierStarter:
		return limits(1500, 33)
	case TierPro:
		return limits(2000, 100)
	default:
		return limits(2000, 50)
	}
}

// TradingLimits returns the order-placement counter for the tier.
func TradingLimits(tier Tier) Limits {
	switch tier {
	case TierStarter:
		return limits(6000, 100)
	case TierPro:
		return limits(18000, 375)
	default:
		return limits(12500, 234)
	}
}

// SleepFunc suspends for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Option customises a Controller.
type Option func(*Controller)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// WithSleeper overrides how the controller waits for decay.
func WithSleeper(sleep SleepFunc) Option {
	return func(c *Controller) {
		if sleep != nil {
			c.sleep = sleep
		}
	}
}

// Controller is a decaying penalty counter shared by every caller of one client.
type Controller struct {
	limits Limits
	now    func() time.Time
	sleep  SleepFunc

	mu        sync.Mutex
	penalty   decimal.Decimal
	lastDecay time.Time
}

// NewController constructs a counter starting at zero penalty.
func NewController(l Limits, opts ...Option) *Controller {
	c := &Controller{
		limits: l,
		now:    time.Now,
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	c.lastDecay = c.now()
	return c
}

// Limits returns the configured ceiling and decay rate.
func (c *Controller) Limits() Limits { return c.limits }

// Admit charges cost against the counter, waiting for decay when the ceiling would be exceeded.
// It returns the total time spent waiting. The only error is the context's, in which case
// nothing was charged.
func (c *Controller) Admit(ctx context.Context, cost int64) (time.Duration, error) {
	if cost <= 0 {
		return 0, nil
	}
	charge := decimal.NewFromInt(cost)
	if charge.GreaterThan(c.limits.Ceiling) {
		charge = c.limits.Ceiling
	}

	var waited time.Duration
	for {
		wait, ok := c.tryAdmit(charge)
		if ok {
			return waited, nil
		}
		if err := c.sleep(ctx, wait); err != nil {
			return waited, err
		}
		waited += wait
	}
}

// tryAdmit performs one check-and-update. It returns the wait required when the charge does not fit.
func (c *Controller) tryAdmit(charge decimal.Decimal) (time.Duration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.decayLocked()
	next := c.penalty.Add(charge)
	if next.LessThanOrEqual(c.limits.Ceiling) {
		c.penalty = next
		return 0, true
	}
	if !c.limits.DecayPerSecond.IsPositive() {
		return time.Second, false
	}
	excess := next.Sub(c.limits.Ceiling)
	nanos := excess.Div(c.limits.DecayPerSecond).Mul(decimal.NewFromInt(int64(time.Second))).Ceil()
	wait := time.Duration(nanos.IntPart())
	if wait <= 0 {
		wait = time.Millisecond
	}
	return wait, false
}

func (c *Controller) decayLocked() {
	now := c.now()
	elapsed := now.Sub(c.lastDecay)
	c.lastDecay = now
	if elapsed <= 0 || c.penalty.IsZero() {
		return
	}
	seconds := decimal.NewFromInt(elapsed.Nanoseconds()).Div(decimal.NewFromInt(int64(time.Second)))
	c.penalty = c.penalty.Sub(seconds.Mul(c.limits.DecayPerSecond))
	if c.penalty.IsNegative() {
		c.penalty = decimal.Zero
	}
}

// Penalty reports the current counter value after applying decay.
func (c *Controller) Penalty() decimal.Decimal {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.decayLocked()
	return c.penalty
}
