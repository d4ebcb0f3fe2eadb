package rest

import (
	"github.com/shopspring/decimal"
)

// ServerTime is the result of Time.
type ServerTime struct {
	UnixTime int64  `json:"unixtime"`
	RFC1123  string `json:"rfc1123"`
}

// SystemStatus is the result of SystemStatus.
type SystemStatus struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// Online reports whether the venue accepts trading.
func (s SystemStatus) Online() bool { return s.Status == "online" }

// TickerInfo holds one pair's ticker. Array fields are [price, whole lot volume, lot volume]
// or [today, last 24h] as the venue documents them.
type TickerInfo struct {
	Ask          []string `json:"a"`
	Bid          []string `json:"b"`
	LastTrade    []string `json:"c"`
	Volume       []string `json:"v"`
	VWAP         []string `json:"p"`
	TradeCount   []int64  `json:"t"`
	Low          []string `json:"l"`
	High         []string `json:"h"`
	OpeningPrice string   `json:"o"`
}

// BookLevel is one depth entry.
type BookLevel struct {
	Price     decimal.Decimal
	Volume    decimal.Decimal
	Timestamp int64
}

// Depth is one pair's order book snapshot.
type Depth struct {
	Asks []BookLevel
	Bids []BookLevel
}

// Candle is one OHLC entry.
type Candle struct {
	Time   int64
	Open   decimal.Decimal
	High   decimal.Decimal
	Low    decimal.Decimal
	Close  decimal.Decimal
	VWAP   decimal.Decimal
	Volume decimal.Decimal
	Count  int64
}

// OHLCPage is the result of OHLC for one pair.
type OHLCPage struct {
	Candles []Candle
	Last    int64
}

// PublicTrade is one Trades entry.
type PublicTrade struct {
	Price     decimal.Decimal
	Volume    decimal.Decimal
	Time      float64
	Side      string
	OrderType string
	Misc      string
	TradeID   int64
}

// TradesPage is the result of Trades for one pair. Last is the cursor for the next page.
type TradesPage struct {
	Trades []PublicTrade
	Last   string
}

// TradeBalance summarises margin and equity.
type TradeBalance struct {
	EquivalentBalance decimal.Decimal `json:"eb"`
	TradeBalance      decimal.Decimal `json:"tb"`
	MarginAmount      decimal.Decimal `json:"m"`
	UnrealizedPnL     decimal.Decimal `json:"n"`
	CostBasis         decimal.Decimal `json:"c"`
	FloatingValuation decimal.Decimal `json:"v"`
	Equity            decimal.Decimal `json:"e"`
	FreeMargin        decimal.Decimal `json:"mf"`
	MarginLevel       decimal.Decimal `json:"ml"`
}

// OrderDescription is the venue's textual order summary.
type OrderDescription struct {
	Pair      string `json:"pair"`
	Side      string `json:"type"`
	OrderType string `json:"ordertype"`
	Price     string `json:"price"`
	Price2    string `json:"price2"`
	Leverage  string `json:"leverage"`
	Order     string `json:"order"`
	Close     string `json:"close"`
}

// Order is an open or closed order.
type Order struct {
	RefID      *string          `json:"refid"`
	UserRef    *int64           `json:"userref"`
	ClientID   string           `json:"cl_ord_id,omitempty"`
	Status     string           `json:"status"`
	OpenTime   float64          `json:"opentm"`
	StartTime  float64          `json:"starttm"`
	ExpireTime float64          `json:"expiretm"`
	CloseTime  float64          `json:"closetm,omitempty"`
	Reason     *string          `json:"reason,omitempty"`
	Descr      OrderDescription `json:"descr"`
	Volume     decimal.Decimal  `json:"vol"`
	VolumeExec decimal.Decimal  `json:"vol_exec"`
	Cost       decimal.Decimal  `json:"cost"`
	Fee        decimal.Decimal  `json:"fee"`
	Price      decimal.Decimal  `json:"price"`
	StopPrice  decimal.Decimal  `json:"stopprice"`
	LimitPrice decimal.Decimal  `json:"limitprice"`
	Misc       string           `json:"misc"`
	Flags      string           `json:"oflags"`
	Trades     []string         `json:"trades,omitempty"`
}

// OpenOrders is the result of OpenOrders keyed by txid.
type OpenOrders struct {
	Open map[string]Order `json:"open"`
}

// ClosedOrders is one page of ClosedOrders keyed by txid.
type ClosedOrders struct {
	Closed map[string]Order `json:"closed"`
	Count  int              `json:"count"`
}

// TradeInfo is one private trade.
type TradeInfo struct {
	OrderTxID string          `json:"ordertxid"`
	PosTxID   string          `json:"postxid"`
	Pair      string          `json:"pair"`
	Time      float64         `json:"time"`
	Side      string          `json:"type"`
	OrderType string          `json:"ordertype"`
	Price     decimal.Decimal `json:"price"`
	Cost      decimal.Decimal `json:"cost"`
	Fee       decimal.Decimal `json:"fee"`
	Volume    decimal.Decimal `json:"vol"`
	Margin    decimal.Decimal `json:"margin"`
	Misc      string          `json:"misc"`
	Maker     bool            `json:"maker"`
}

// TradesHistory is one page of TradesHistory keyed by trade id.
type TradesHistory struct {
	Trades map[string]TradeInfo `json:"trades"`
	Count  int                  `json:"count"`
}

// LedgerEntry is one ledger movement.
type LedgerEntry struct {
	RefID   string          `json:"refid"`
	Time    float64         `json:"time"`
	Type    string          `json:"type"`
	Subtype string          `json:"subtype"`
	Class   string          `json:"aclass"`
	Asset   string          `json:"asset"`
	Amount  decimal.Decimal `json:"amount"`
	Fee     decimal.Decimal `json:"fee"`
	Balance decimal.Decimal `json:"balance"`
}

// Ledgers is one page of Ledgers keyed by ledger id.
type Ledgers struct {
	Ledger map[string]LedgerEntry `json:"ledger"`
	Count  int                    `json:"count"`
}

// WebSocketsToken authorises private WebSocket channels.
type WebSocketsToken struct {
	Token   string `json:"token"`
	Expires int64  `json:"expires"`
}

// AddOrderResult is the result of AddOrder.
type AddOrderResult struct {
	Descr struct {
		Order string `json:"order"`
		Close string `json:"close,omitempty"`
	} `json:"descr"`
	TxID []string `json:"txid"`
}

// BatchOrderResult is one entry of an AddOrderBatch result.
type BatchOrderResult struct {
	TxID  string `json:"txid"`
	Descr struct {
		Order string `json:"order"`
	} `json:"descr"`
	Error string `json:"error,omitempty"`
}

// AddOrderBatchResult is the result of AddOrderBatch.
type AddOrderBatchResult struct {
	Orders []BatchOrderResult `json:"orders"`
}

// EditOrderResult is the result of EditOrder.
type EditOrderResult struct {
	Status          string `json:"status"`
	TxID            string `json:"txid"`
	OriginalTxID    string `json:"originaltxid"`
	Volume          string `json:"volume"`
	Price           string `json:"price"`
	OrdersCancelled int    `json:"orders_cancelled"`
	Descr           struct {
		Order string `json:"order"`
	} `json:"descr"`
}

// CancelResult is the result of CancelOrder and CancelAll.
type CancelResult struct {
	Count   int  `json:"count"`
	Pending bool `json:"pending,omitempty"`
}

// CancelAfterResult is the result of CancelAllOrdersAfter.
type CancelAfterResult struct {
	CurrentTime string `json:"currentTime"`
	TriggerTime string `json:"triggerTime"`
}
