package ratelimit

import (
	"context"
	"time"

	"github.com/coachpo/krakenbridge/internal/observability"
)

// Request describes one call for admission purposes.
type Request struct {
	Category Category
	// Pair selects the per-pair public bucket.
	Pair string
	// OrderRef identifies the order being amended or cancelled.
	OrderRef string
	// BatchSize is the number of orders in an AddOrderBatch call.
	BatchSize int
}

// PolicyConfig assembles a Policy.
type PolicyConfig struct {
	Tier           Tier
	PublicInterval time.Duration
	OrderAges      OrderAges
	Logger         observability.Logger
	ControllerOpts []Option
}

// Policy routes each request to the limiter that governs its category.
type Policy struct {
	tier    Tier
	private *Controller
	trading *TradingLimiter
	public  *PublicLimiter
}

// NewPolicy builds the private, trading and public limiters for one client instance.
func NewPolicy(cfg PolicyConfig) *Policy {
	tier := cfg.Tier
	if tier == 0 {
		tier = TierIntermediate
	}
	tradingCounter := NewController(TradingLimits(tier), cfg.ControllerOpts...)
	return &Policy{
		tier:    tier,
		private: NewController(PrivateLimits(tier), cfg.ControllerOpts...),
		trading: NewTradingLimiter(tradingCounter, cfg.OrderAges, cfg.Logger),
		public:  NewPublicLimiter(cfg.PublicInterval),
	}
}

// Tier reports the configured verification tier.
func (p *Policy) Tier() Tier { return p.tier }

// Private exposes the private endpoint counter.
func (p *Policy) Private() *Controller { return p.private }

// Trading exposes the trading limiter.
func (p *Policy) Trading() *TradingLimiter { return p.trading }

// Admit waits until req may be sent and returns the time spent waiting.
func (p *Policy) Admit(ctx context.Context, req Request) (time.Duration, error) {
	switch req.Category {
	case CategoryPublic:
		return timed(func() error { return p.public.Wait(ctx, "") })
	case CategoryPublicPerPair:
		return timed(func() error { return p.public.Wait(ctx, req.Pair) })
	case CategoryAccount, CategoryHistory:
		return p.private.Admit(ctx, PrivateCost(req.Category))
	case CategoryAddOrder:
		return p.trading.AddOrder(ctx)
	case CategoryAddOrderBatch:
		return p.trading.AddOrderBatch(ctx, req.BatchSize)
	case CategoryEditOrder:
		return p.trading.EditOrder(ctx, req.OrderRef)
	case CategoryCancelOrder:
		return p.trading.CancelOrder(ctx, req.OrderRef)
	case CategoryTradingFree:
		return 0, nil
	default:
		return p.private.Admit(ctx, PrivateCost(CategoryAccount))
	}
}

func timed(fn func() error) (time.Duration, error) {
	start := time.Now()
	err := fn()
	return time.Since(start), err
}
