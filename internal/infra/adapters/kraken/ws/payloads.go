package ws

import (
	"github.com/shopspring/decimal"

	"github.com/coachpo/krakenbridge/internal/infra/adapters/kraken/book"
)

// PriceLevel is one book entry as sent on the book channel.
type PriceLevel struct {
	Price decimal.Decimal `json:"price"`
	Qty   decimal.Decimal `json:"qty"`
}

func toLevels(in []PriceLevel) []book.Level {
	out := make([]book.Level, len(in))
	for i, lvl := range in {
		out[i] = book.Level{Price: lvl.Price, Qty: lvl.Qty}
	}
	return out
}

// BookData is one symbol's snapshot or update.
type BookData struct {
	Symbol    string       `json:"symbol"`
	Bids      []PriceLevel `json:"bids"`
	Asks      []PriceLevel `json:"asks"`
	Checksum  uint32       `json:"checksum"`
	Timestamp string       `json:"timestamp,omitempty"`
}

// Ticker is a level 1 summary.
type Ticker struct {
	Symbol    string          `json:"symbol"`
	Bid       decimal.Decimal `json:"bid"`
	BidQty    decimal.Decimal `json:"bid_qty"`
	Ask       decimal.Decimal `json:"ask"`
	AskQty    decimal.Decimal `json:"ask_qty"`
	Last      decimal.Decimal `json:"last"`
	Volume    decimal.Decimal `json:"volume"`
	VWAP      decimal.Decimal `json:"vwap"`
	Low       decimal.Decimal `json:"low"`
	High      decimal.Decimal `json:"high"`
	Change    decimal.Decimal `json:"change"`
	ChangePct decimal.Decimal `json:"change_pct"`
}

// Trade is one public fill.
type Trade struct {
	Symbol    string          `json:"symbol"`
	Side      string          `json:"side"`
	Price     decimal.Decimal `json:"price"`
	Qty       decimal.Decimal `json:"qty"`
	OrderType string          `json:"ord_type"`
	TradeID   int64           `json:"trade_id"`
	Timestamp string          `json:"timestamp"`
}

// Candle is one OHLC interval.
type Candle struct {
	Symbol        string          `json:"symbol"`
	Open          decimal.Decimal `json:"open"`
	High          decimal.Decimal `json:"high"`
	Low           decimal.Decimal `json:"low"`
	Close         decimal.Decimal `json:"close"`
	VWAP          decimal.Decimal `json:"vwap"`
	Volume        decimal.Decimal `json:"volume"`
	Trades        int64           `json:"trades"`
	IntervalBegin string          `json:"interval_begin"`
	Interval      int             `json:"interval"`
	Timestamp     string          `json:"timestamp"`
}

// L3Order is one order on the level3 channel. Event is set on updates (add, modify, delete).
type L3Order struct {
	Event      string          `json:"event,omitempty"`
	OrderID    string          `json:"order_id"`
	LimitPrice decimal.Decimal `json:"limit_price"`
	OrderQty   decimal.Decimal `json:"order_qty"`
	Timestamp  string          `json:"timestamp"`
}

// Level3Data is one symbol's order-level snapshot or update.
type Level3Data struct {
	Symbol   string    `json:"symbol"`
	Bids     []L3Order `json:"bids"`
	Asks     []L3Order `json:"asks"`
	Checksum uint32    `json:"checksum"`
}

// InstrumentAsset describes one asset.
type InstrumentAsset struct {
	ID               string          `json:"id"`
	Status           string          `json:"status"`
	Precision        int32           `json:"precision"`
	PrecisionDisplay int32           `json:"precision_display"`
	Borrowable       bool            `json:"borrowable"`
	CollateralValue  decimal.Decimal `json:"collateral_value"`
	MarginRate       decimal.Decimal `json:"margin_rate"`
}

// InstrumentPair describes one tradable pair.
type InstrumentPair struct {
	Symbol         string          `json:"symbol"`
	Base           string          `json:"base"`
	Quote          string          `json:"quote"`
	Status         string          `json:"status"`
	QtyPrecision   int32           `json:"qty_precision"`
	QtyIncrement   decimal.Decimal `json:"qty_increment"`
	PricePrecision int32           `json:"price_precision"`
	PriceIncrement decimal.Decimal `json:"price_increment"`
	CostPrecision  int32           `json:"cost_precision"`
	QtyMin         decimal.Decimal `json:"qty_min"`
	Marginable     bool            `json:"marginable"`
}

// Precision is the checksum precision the venue uses for the pair.
func (p InstrumentPair) Precision() book.Precision {
	return book.Precision{Price: p.PricePrecision, Qty: p.QtyPrecision}
}

// InstrumentData is the instrument channel payload.
type InstrumentData struct {
	Assets []InstrumentAsset `json:"assets"`
	Pairs  []InstrumentPair  `json:"pairs"`
}

// Execution is one order status or fill report.
type Execution struct {
	ExecType     string          `json:"exec_type"`
	OrderID      string          `json:"order_id"`
	ClOrdID      string          `json:"cl_ord_id,omitempty"`
	OrderUserref int64           `json:"order_userref"`
	Symbol       string          `json:"symbol"`
	Side         string          `json:"side"`
	OrderType    string          `json:"order_type"`
	OrderStatus  string          `json:"order_status"`
	OrderQty     decimal.Decimal `json:"order_qty"`
	CumQty       decimal.Decimal `json:"cum_qty"`
	LimitPrice   decimal.Decimal `json:"limit_price"`
	AvgPrice     decimal.Decimal `json:"avg_price"`
	ExecID       string          `json:"exec_id,omitempty"`
	LastQty      decimal.Decimal `json:"last_qty"`
	LastPrice    decimal.Decimal `json:"last_price"`
	Cost         decimal.Decimal `json:"cost"`
	Timestamp    string          `json:"timestamp"`
}

// Wallet is one balance location of an asset.
type Wallet struct {
	Type    string          `json:"type"`
	ID      string          `json:"id"`
	Balance decimal.Decimal `json:"balance"`
}

// Balance is one asset balance.
type Balance struct {
	Asset      string          `json:"asset"`
	AssetClass string          `json:"asset_class"`
	Balance    decimal.Decimal `json:"balance"`
	Wallets    []Wallet        `json:"wallets,omitempty"`
}

// SystemStatus is the status channel payload.
type SystemStatus struct {
	System       string `json:"system"`
	APIVersion   string `json:"api_version"`
	ConnectionID uint64 `json:"connection_id"`
	Version      string `json:"version"`
}
