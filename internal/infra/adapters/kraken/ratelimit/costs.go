package ratelimit

// Category groups endpoints that share an admission rule.
type Category uint8

const (
	// CategoryPublic covers unauthenticated market data endpoints.
	CategoryPublic Category = iota + 1
	// CategoryPublicPerPair covers public endpoints additionally limited per pair (OHLC, Trades).
	CategoryPublicPerPair
	// CategoryAccount covers ordinary private queries such as Balance or OpenOrders.
	CategoryAccount
	// CategoryHistory covers ledger and history queries that cost double.
	CategoryHistory
	// CategoryAddOrder covers single order placement.
	CategoryAddOrder
	// CategoryAddOrderBatch covers batch placement; cost grows with batch size.
	CategoryAddOrderBatch
	// CategoryEditOrder covers amendments; cost depends on the order's age.
	CategoryEditOrder
	// CategoryCancelOrder covers cancellation; cost depends on the order's age.
	CategoryCancelOrder
	// CategoryTradingFree covers trading-side calls that carry no counter cost (CancelAll).
	CategoryTradingFree
)

func (c Category) String() string {
	switch c {
	case CategoryPublic:
		return "public"
	case CategoryPublicPerPair:
		return "public_pair"
	case CategoryAccount:
		return "account"
	case CategoryHistory:
		return "history"
	case CategoryAddOrder:
		return "add_order"
	case CategoryAddOrderBatch:
		return "add_order_batch"
	case CategoryEditOrder:
		return "edit_order"
	case CategoryCancelOrder:
		return "cancel_order"
	case CategoryTradingFree:
		return "trading_free"
	default:
		return "unknown"
	}
}

// Private reports whether the category requires a signed request.
func (c Category) Private() bool {
	return c != CategoryPublic && c != CategoryPublicPerPair
}

// Trading reports whether the category is charged to the trading counter.
func (c Category) Trading() bool {
	switch c {
	case CategoryAddOrder, CategoryAddOrderBatch, CategoryEditOrder, CategoryCancelOrder, CategoryTradingFree:
		return true
	default:
		return false
	}
}

// PrivateCost is the charge on the private counter. Trading and public categories return 0.
func PrivateCost(c Category) int64 {
	switch c {
	case CategoryAccount:
		return 100
	case CategoryHistory:
		return 200
	default:
		return 0
	}
}

// AddOrderCost is the trading counter charge for one order.
const AddOrderCost int64 = 100

// BatchCost is the trading counter charge for a batch of n orders: (1 + n/2) * 100.
func BatchCost(n int) int64 {
	if n <= 0 {
		return 0
	}
	return 100 + int64(n)*50
}

// EditPenalty returns the venue's amend penalty for an order that has lived lifetimeSeconds.
func EditPenalty(lifetimeSeconds int64) int64 {
	switch {
	case lifetimeSeconds < 5:
		return 6
	case lifetimeSeconds < 10:
		return 5
	case lifetimeSeconds < 15:
		return 4
	case lifetimeSeconds < 45:
		return 3
	case lifetimeSeconds < 90:
		return 2
	default:
		return 0
	}
}

// CancelPenalty returns the venue's cancel penalty for an order that has lived lifetimeSeconds.
func CancelPenalty(lifetimeSeconds int64) int64 {
	switch {
	case lifetimeSeconds < 5:
		return 8
	case lifetimeSeconds < 10:
		return 6
	case lifetimeSeconds < 15:
		return 5
	case lifetimeSeconds < 45:
		return 4
	case lifetimeSeconds < 90:
		return 2
	case lifetimeSeconds < 300:
		return 1
	default:
		return 0
	}
}

// EditCost is the trading counter charge for amending an order of the given age.
func EditCost(lifetimeSeconds int64) int64 {
	return (EditPenalty(lifetimeSeconds) + 1) * 100
}

// CancelCost is the trading counter charge for cancelling an order of the given age.
func CancelCost(lifetimeSeconds int64) int64 {
	return CancelPenalty(lifetimeSeconds) * 100
}
