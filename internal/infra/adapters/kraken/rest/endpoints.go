package rest

import "github.com/coachpo/krakenbridge/internal/infra/adapters/kraken/ratelimit"

// Endpoint names a venue method and the admission category it is charged to.
type Endpoint struct {
	Name     string
	Path     string
	Category ratelimit.Category
}

// Private reports whether the endpoint needs a signed request.
func (e Endpoint) Private() bool { return e.Category.Private() }

func public(name string, category ratelimit.Category) Endpoint {
	return Endpoint{Name: name, Path: "/0/public/" + name, Category: category}
}

func private(name string, category ratelimit.Category) Endpoint {
	return Endpoint{Name: name, Path: "/0/private/" + name, Category: category}
}

var (
	EndpointTime         = public("Time", ratelimit.CategoryPublic)
	EndpointSystemStatus = public("SystemStatus", ratelimit.CategoryPublic)
	EndpointTicker       = public("Ticker", ratelimit.CategoryPublic)
	EndpointDepth        = public("Depth", ratelimit.CategoryPublic)
	EndpointOHLC         = public("OHLC", ratelimit.CategoryPublicPerPair)
	EndpointTrades       = public("Trades", ratelimit.CategoryPublicPerPair)

	EndpointBalance              = private("Balance", ratelimit.CategoryAccount)
	EndpointTradeBalance         = private("TradeBalance", ratelimit.CategoryAccount)
	EndpointOpenOrders           = private("OpenOrders", ratelimit.CategoryAccount)
	EndpointClosedOrders         = private("ClosedOrders", ratelimit.CategoryHistory)
	EndpointTradesHistory        = private("TradesHistory", ratelimit.CategoryHistory)
	EndpointLedgers              = private("Ledgers", ratelimit.CategoryHistory)
	EndpointWebSocketsToken      = private("GetWebSocketsToken", ratelimit.CategoryAccount)
	EndpointAddOrder             = private("AddOrder", ratelimit.CategoryAddOrder)
	EndpointAddOrderBatch        = private("AddOrderBatch", ratelimit.CategoryAddOrderBatch)
	EndpointEditOrder            = private("EditOrder", ratelimit.CategoryEditOrder)
	EndpointCancelOrder          = private("CancelOrder", ratelimit.CategoryCancelOrder)
	EndpointCancelAll            = private("CancelAll", ratelimit.CategoryTradingFree)
	EndpointCancelAllOrdersAfter = private("CancelAllOrdersAfter", ratelimit.CategoryTradingFree)
)
