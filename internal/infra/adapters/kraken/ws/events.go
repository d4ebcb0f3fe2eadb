package ws

import "github.com/coachpo/krakenbridge/internal/infra/adapters/kraken/book"

// Event is delivered to the consumer by Next. The set of implementations is closed; consumers
// switch over the concrete types.
type Event interface {
	event()
}

// SubscriptionAckEvent reports a subscription the venue accepted.
type SubscriptionAckEvent struct {
	Channel string
	Symbol  string
	ReqID   int64
}

// SubscriptionFailedEvent reports a rejected subscription. Err carries CodeSubscription.
type SubscriptionFailedEvent struct {
	Channel string
	Symbol  string
	ReqID   int64
	Err     error
}

// UnsubscribedEvent reports a confirmed unsubscribe; the entry is gone from the registry.
type UnsubscribedEvent struct {
	Channel string
	Symbol  string
	ReqID   int64
}

// BookEvent carries the verified book after a snapshot or update.
type BookEvent struct {
	Type      string
	Symbol    string
	View      book.View
	Timestamp string
}

// DesyncEvent reports a checksum mismatch. The book was discarded and a fresh snapshot requested.
type DesyncEvent struct {
	Symbol   string
	Expected uint32
	Computed uint32
	Err      error
}

type TickerEvent struct {
	Type   string
	Ticker Ticker
}

type TradeEvent struct {
	Type   string
	Symbol string
	Trades []Trade
}

type OHLCEvent struct {
	Type    string
	Symbol  string
	Candles []Candle
}

type Level3Event struct {
	Type string
	Data Level3Data
}

type InstrumentEvent struct {
	Type string
	Data InstrumentData
}

type ExecutionsEvent struct {
	Type       string
	Executions []Execution
}

type BalancesEvent struct {
	Type     string
	Balances []Balance
}

// StatusEvent relays the venue's system status.
type StatusEvent struct {
	Type   string
	Status SystemStatus
}

// DisconnectedEvent reports a lost connection. Replay lists what will be resubscribed.
type DisconnectedEvent struct {
	Err    error
	Replay []Key
}

// ReconnectedEvent reports a new connection after Replayed subscriptions were resent.
type ReconnectedEvent struct {
	Attempts int
	Replayed int
}

func (SubscriptionAckEvent) event()    {}
func (SubscriptionFailedEvent) event() {}
func (UnsubscribedEvent) event()       {}
func (BookEvent) event()               {}
func (DesyncEvent) event()             {}
func (TickerEvent) event()             {}
func (TradeEvent) event()              {}
func (OHLCEvent) event()               {}
func (Level3Event) event()             {}
func (InstrumentEvent) event()         {}
func (ExecutionsEvent) event()         {}
func (BalancesEvent) event()           {}
func (StatusEvent) event()             {}
func (DisconnectedEvent) event()       {}
func (ReconnectedEvent) event()        {}
