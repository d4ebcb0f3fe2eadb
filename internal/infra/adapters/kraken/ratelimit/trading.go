package ratelimit

import (
	"context"
	"math"
	"time"

	"github.com/coachpo/krakenbridge/internal/observability"
)

// TradingLimiter prices order placement, amendment and cancellation against the trading counter.
type TradingLimiter struct {
	counter *Controller
	ages    OrderAges
	now     func() time.Time
	logger  observability.Logger
}

// NewTradingLimiter wires a trading counter to an order-age store. A nil store uses memory.
func NewTradingLimiter(counter *Controller, ages OrderAges, logger observability.Logger) *TradingLimiter {
	if ages == nil {
		ages = NewMemoryOrderAges(OrderTTL, counter.now)
	}
	return &TradingLimiter{counter: counter, ages: ages, now: counter.now, logger: observability.Or(logger)}
}

// Counter exposes the underlying decaying counter.
func (t *TradingLimiter) Counter() *Controller { return t.counter }

// AddOrder admits one order placement.
func (t *TradingLimiter) AddOrder(ctx context.Context) (time.Duration, error) {
	return t.counter.Admit(ctx, AddOrderCost)
}

// AddOrderBatch admits a batch of n orders.
func (t *TradingLimiter) AddOrderBatch(ctx context.Context, n int) (time.Duration, error) {
	return t.counter.Admit(ctx, BatchCost(n))
}

// EditOrder admits an amendment of the order identified by ref.
func (t *TradingLimiter) EditOrder(ctx context.Context, ref string) (time.Duration, error) {
	return t.counter.Admit(ctx, EditCost(t.lifetime(ctx, ref)))
}

// CancelOrder admits a cancellation of the order identified by ref.
func (t *TradingLimiter) CancelOrder(ctx context.Context, ref string) (time.Duration, error) {
	return t.counter.Admit(ctx, CancelCost(t.lifetime(ctx, ref)))
}

// NotifyPlaced records placement time under every provided reference (txid, userref key).
func (t *TradingLimiter) NotifyPlaced(ctx context.Context, placedAt time.Time, refs ...string) {
	for _, ref := range refs {
		if ref == "" {
			continue
		}
		if err := t.ages.RecordPlacement(ctx, ref, placedAt); err != nil {
			t.logger.Error("record order placement", observability.F("ref", ref), observability.F("error", err))
		}
	}
}

// lifetime returns the order's age in seconds, or MaxInt64 when unknown so no penalty applies.
func (t *TradingLimiter) lifetime(ctx context.Context, ref string) int64 {
	if ref == "" {
		return math.MaxInt64
	}
	placed, ok, err := t.ages.PlacedAt(ctx, ref)
	if err != nil {
		t.logger.Error("lookup order placement", observability.F("ref", ref), observability.F("error", err))
		return math.MaxInt64
	}
	if !ok {
		return math.MaxInt64
	}
	age := t.now().Sub(placed)
	if age < 0 {
		return 0
	}
	return int64(age / time.Second)
}
