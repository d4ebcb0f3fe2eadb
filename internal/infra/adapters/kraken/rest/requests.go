package rest

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/coachpo/krakenbridge/errs"
	"github.com/coachpo/krakenbridge/internal/infra/adapters/kraken/ratelimit"
)

// Side is the order direction.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// OrderType is the venue order type.
type OrderType string

const (
	OrderTypeMarket          OrderType = "market"
	OrderTypeLimit           OrderType = "limit"
	OrderTypeIceberg         OrderType = "iceberg"
	OrderTypeStopLoss        OrderType = "stop-loss"
	OrderTypeTakeProfit      OrderType = "take-profit"
	OrderTypeStopLossLimit   OrderType = "stop-loss-limit"
	OrderTypeTakeProfitLimit OrderType = "take-profit-limit"
	OrderTypeTrailingStop    OrderType = "trailing-stop"
	OrderTypeSettlePosition  OrderType = "settle-position"
)

func (t OrderType) needsPrice() bool {
	return t != OrderTypeMarket && t != OrderTypeSettlePosition
}

func (t OrderType) needsPrice2() bool {
	return t == OrderTypeStopLossLimit || t == OrderTypeTakeProfitLimit
}

// TimeInForce controls order lifetime.
type TimeInForce string

const (
	TimeInForceGTC TimeInForce = "GTC"
	TimeInForceIOC TimeInForce = "IOC"
	TimeInForceGTD TimeInForce = "GTD"
)

// OrderFlag is an entry of the oflags list.
type OrderFlag string

const (
	FlagPostOnly        OrderFlag = "post"
	FlagFeeInBase       OrderFlag = "fcib"
	FlagFeeInQuote      OrderFlag = "fciq"
	FlagNoMarketProtect OrderFlag = "nompp"
	FlagVolumeInQuote   OrderFlag = "viqc"
)

func joinFlags(flags []OrderFlag) string {
	parts := make([]string, 0, len(flags))
	for _, f := range flags {
		parts = append(parts, string(f))
	}
	return strings.Join(parts, ",")
}

// AddOrderRequest is a validated order placement. Build it with NewAddOrder.
type AddOrderRequest struct {
	Pair          string
	Side          Side
	OrderType     OrderType
	Volume        decimal.Decimal
	Price         *decimal.Decimal
	Price2        *decimal.Decimal
	Leverage      string
	Flags         []OrderFlag
	TimeInForce   TimeInForce
	UserRef       *int64
	ClientOrderID string
	ReduceOnly    bool
	Validate      bool
	Deadline      *time.Time
}

func (r AddOrderRequest) fill(values url.Values, key func(string) string) {
	values.Set(key("ordertype"), string(r.OrderType))
	values.Set(key("type"), string(r.Side))
	values.Set(key("volume"), r.Volume.String())
	if r.Price != nil {
		values.Set(key("price"), r.Price.String())
	}
	if r.Price2 != nil {
		values.Set(key("price2"), r.Price2.String())
	}
	if r.Leverage != "" {
		values.Set(key("leverage"), r.Leverage)
	}
	if len(r.Flags) > 0 {
		values.Set(key("oflags"), joinFlags(r.Flags))
	}
	if r.TimeInForce != "" {
		values.Set(key("timeinforce"), string(r.TimeInForce))
	}
	if r.UserRef != nil {
		values.Set(key("userref"), strconv.FormatInt(*r.UserRef, 10))
	}
	if r.ClientOrderID != "" {
		values.Set(key("cl_ord_id"), r.ClientOrderID)
	}
	if r.ReduceOnly {
		values.Set(key("reduce_only"), "true")
	}
}

// Values encodes the order as form parameters.
func (r AddOrderRequest) Values() (url.Values, error) {
	values := url.Values{}
	values.Set("pair", r.Pair)
	r.fill(values, func(k string) string { return k })
	if r.Validate {
		values.Set("validate", "true")
	}
	if r.Deadline != nil {
		values.Set("deadline", r.Deadline.UTC().Format(time.RFC3339))
	}
	return values, nil
}

const (
	fieldPair = 1 << iota
	fieldSide
	fieldType
	fieldVolume
)

var requiredAddOrderFields = []struct {
	bit  int
	name string
}{
	{fieldPair, "pair"},
	{fieldSide, "type"},
	{fieldType, "ordertype"},
	{fieldVolume, "volume"},
}

// AddOrderBuilder tracks which required fields were supplied and refuses to build until all are.
type AddOrderBuilder struct {
	req  AddOrderRequest
	set  int
	errs []string
}

// NewAddOrder starts an order placement.
func NewAddOrder() *AddOrderBuilder {
	return &AddOrderBuilder{}
}

func (b *AddOrderBuilder) Pair(pair string) *AddOrderBuilder {
	pair = strings.TrimSpace(pair)
	if pair == "" {
		b.errs = append(b.errs, "pair empty")
		return b
	}
	b.req.Pair = pair
	b.set |= fieldPair
	return b
}

func (b *AddOrderBuilder) Side(side Side) *AddOrderBuilder {
	if side != SideBuy && side != SideSell {
		b.errs = append(b.errs, fmt.Sprintf("side %q invalid", side))
		return b
	}
	b.req.Side = side
	b.set |= fieldSide
	return b
}

func (b *AddOrderBuilder) OrderType(t OrderType) *AddOrderBuilder {
	if strings.TrimSpace(string(t)) == "" {
		b.errs = append(b.errs, "ordertype empty")
		return b
	}
	b.req.OrderType = t
	b.set |= fieldType
	return b
}

func (b *AddOrderBuilder) Volume(v decimal.Decimal) *AddOrderBuilder {
	if !v.IsPositive() {
		b.errs = append(b.errs, "volume must be positive")
		return b
	}
	b.req.Volume = v
	b.set |= fieldVolume
	return b
}

// Price sets the limit price, or the trigger price for stop and take-profit types.
func (b *AddOrderBuilder) Price(p decimal.Decimal) *AddOrderBuilder {
	b.req.Price = &p
	return b
}

// Price2 sets the limit price of stop-loss-limit and take-profit-limit orders.
func (b *AddOrderBuilder) Price2(p decimal.Decimal) *AddOrderBuilder {
	b.req.Price2 = &p
	return b
}

func (b *AddOrderBuilder) Leverage(l string) *AddOrderBuilder {
	b.req.Leverage = strings.TrimSpace(l)
	return b
}

func (b *AddOrderBuilder) Flags(flags ...OrderFlag) *AddOrderBuilder {
	b.req.Flags = append(b.req.Flags, flags...)
	return b
}

func (b *AddOrderBuilder) TimeInForce(tif TimeInForce) *AddOrderBuilder {
	b.req.TimeInForce = tif
	return b
}

func (b *AddOrderBuilder) UserRef(ref int64) *AddOrderBuilder {
	b.req.UserRef = &ref
	return b
}

func (b *AddOrderBuilder) ClientOrderID(id string) *AddOrderBuilder {
	b.req.ClientOrderID = strings.TrimSpace(id)
	return b
}

// NewClientOrderID assigns a random UUID as cl_ord_id.
func (b *AddOrderBuilder) NewClientOrderID() *AddOrderBuilder {
	b.req.ClientOrderID = uuid.NewString()
	return b
}

func (b *AddOrderBuilder) ReduceOnly() *AddOrderBuilder {
	b.req.ReduceOnly = true
	return b
}

// ValidateOnly asks the venue to validate without placing.
func (b *AddOrderBuilder) ValidateOnly() *AddOrderBuilder {
	b.req.Validate = true
	return b
}

func (b *AddOrderBuilder) Deadline(t time.Time) *AddOrderBuilder {
	b.req.Deadline = &t
	return b
}

// Build returns the request or a CodeInvalid error naming every problem.
func (b *AddOrderBuilder) Build() (AddOrderRequest, error) {
	problems := append([]string(nil), b.errs...)
	for _, field := range requiredAddOrderFields {
		if b.set&field.bit == 0 {
			problems = append(problems, "missing "+field.name)
		}
	}
	if b.set&fieldType != 0 {
		if b.req.OrderType.needsPrice() && b.req.Price == nil {
			problems = append(problems, "missing price for "+string(b.req.OrderType))
		}
		if b.req.OrderType.needsPrice2() && b.req.Price2 == nil {
			problems = append(problems, "missing price2 for "+string(b.req.OrderType))
		}
	}
	if b.req.UserRef != nil && b.req.ClientOrderID != "" {
		problems = append(problems, "userref and cl_ord_id are mutually exclusive")
	}
	if len(problems) > 0 {
		return AddOrderRequest{}, errs.New(venue, errs.CodeInvalid,
			errs.WithEndpoint(EndpointAddOrder.Path),
			errs.WithMessage(strings.Join(problems, "; ")))
	}
	return b.req, nil
}

// AddOrderBatchRequest places 2-15 orders on one pair.
type AddOrderBatchRequest struct {
	Pair     string
	Orders   []AddOrderRequest
	Validate bool
	Deadline *time.Time
}

func (r AddOrderBatchRequest) Values() (url.Values, error) {
	if strings.TrimSpace(r.Pair) == "" {
		return nil, errors.New("batch pair empty")
	}
	if len(r.Orders) < 2 || len(r.Orders) > 15 {
		return nil, fmt.Errorf("batch size %d outside 2..15", len(r.Orders))
	}
	values := url.Values{}
	values.Set("pair", r.Pair)
	for i, order := range r.Orders {
		if order.Pair != "" && order.Pair != r.Pair {
			return nil, fmt.Errorf("order %d pair %s differs from batch pair %s", i, order.Pair, r.Pair)
		}
		prefix := "orders[" + strconv.Itoa(i) + "]"
		order.fill(values, func(k string) string { return prefix + "[" + k + "]" })
	}
	if r.Validate {
		values.Set("validate", "true")
	}
	if r.Deadline != nil {
		values.Set("deadline", r.Deadline.UTC().Format(time.RFC3339))
	}
	return values, nil
}

func (r AddOrderBatchRequest) admissionHint(req *ratelimit.Request) {
	req.BatchSize = len(r.Orders)
}

// EditOrderRequest amends a live order. Build it with NewEditOrder.
type EditOrderRequest struct {
	TxID     string
	Pair     string
	Volume   *decimal.Decimal
	Price    *decimal.Decimal
	Price2   *decimal.Decimal
	Flags    []OrderFlag
	UserRef  *int64
	Validate bool
}

func (r EditOrderRequest) Values() (url.Values, error) {
	values := url.Values{}
	values.Set("txid", r.TxID)
	values.Set("pair", r.Pair)
	if r.Volume != nil {
		values.Set("volume", r.Volume.String())
	}
	if r.Price != nil {
		values.Set("price", r.Price.String())
	}
	if r.Price2 != nil {
		values.Set("price2", r.Price2.String())
	}
	if len(r.Flags) > 0 {
		values.Set("oflags", joinFlags(r.Flags))
	}
	if r.UserRef != nil {
		values.Set("userref", strconv.FormatInt(*r.UserRef, 10))
	}
	if r.Validate {
		values.Set("validate", "true")
	}
	return values, nil
}

func (r EditOrderRequest) admissionHint(req *ratelimit.Request) {
	req.OrderRef = r.TxID
}

// EditOrderBuilder requires txid and pair.
type EditOrderBuilder struct {
	req EditOrderRequest
}

func NewEditOrder(txid, pair string) *EditOrderBuilder {
	return &EditOrderBuilder{req: EditOrderRequest{TxID: strings.TrimSpace(txid), Pair: strings.TrimSpace(pair)}}
}

func (b *EditOrderBuilder) Volume(v decimal.Decimal) *EditOrderBuilder {
	b.req.Volume = &v
	return b
}

func (b *EditOrderBuilder) Price(p decimal.Decimal) *EditOrderBuilder {
	b.req.Price = &p
	return b
}

func (b *EditOrderBuilder) Price2(p decimal.Decimal) *EditOrderBuilder {
	b.req.Price2 = &p
	return b
}

func (b *EditOrderBuilder) Flags(flags ...OrderFlag) *EditOrderBuilder {
	b.req.Flags = append(b.req.Flags, flags...)
	return b
}

func (b *EditOrderBuilder) UserRef(ref int64) *EditOrderBuilder {
	b.req.UserRef = &ref
	return b
}

func (b *EditOrderBuilder) ValidateOnly() *EditOrderBuilder {
	b.req.Validate = true
	return b
}

func (b *EditOrderBuilder) Build() (EditOrderRequest, error) {
	var problems []string
	if b.req.TxID == "" {
		problems = append(problems, "missing txid")
	}
	if b.req.Pair == "" {
		problems = append(problems, "missing pair")
	}
	if b.req.Volume == nil && b.req.Price == nil && b.req.Price2 == nil && len(b.req.Flags) == 0 {
		problems = append(problems, "nothing to amend")
	}
	if len(problems) > 0 {
		return EditOrderRequest{}, errs.New(venue, errs.CodeInvalid,
			errs.WithEndpoint(EndpointEditOrder.Path),
			errs.WithMessage(strings.Join(problems, "; ")))
	}
	return b.req, nil
}

// CancelOrderRequest cancels by txid, userref or cl_ord_id.
type CancelOrderRequest struct {
	TxID          string
	UserRef       *int64
	ClientOrderID string
}

func (r CancelOrderRequest) Values() (url.Values, error) {
	values := url.Values{}
	switch {
	case r.TxID != "":
		values.Set("txid", r.TxID)
	case r.UserRef != nil:
		values.Set("txid", strconv.FormatInt(*r.UserRef, 10))
	case r.ClientOrderID != "":
		values.Set("cl_ord_id", r.ClientOrderID)
	default:
		return nil, errors.New("cancel requires txid, userref or cl_ord_id")
	}
	return values, nil
}

func (r CancelOrderRequest) admissionHint(req *ratelimit.Request) {
	switch {
	case r.TxID != "":
		req.OrderRef = r.TxID
	case r.UserRef != nil:
		req.OrderRef = ratelimit.UserRefKey(*r.UserRef)
	case r.ClientOrderID != "":
		req.OrderRef = r.ClientOrderID
	}
}

// pairParams carries a pair for public calls metered per pair.
type pairParams struct {
	pair   string
	values url.Values
}

func (p pairParams) Values() (url.Values, error) { return p.values, nil }

func (p pairParams) admissionHint(req *ratelimit.Request) { req.Pair = p.pair }

// rawParams wraps prebuilt values.
type rawParams url.Values

func (p rawParams) Values() (url.Values, error) { return url.Values(p), nil }

// HistoryQuery pages through ClosedOrders, TradesHistory and Ledgers.
type HistoryQuery struct {
	Start  *time.Time
	End    *time.Time
	Offset int
	// Asset filters Ledgers by a comma-separated asset list.
	Asset []string
	// Trades includes related trade ids in order listings.
	Trades bool
}

func (q HistoryQuery) Values() (url.Values, error) {
	values := url.Values{}
	if q.Start != nil {
		values.Set("start", strconv.FormatInt(q.Start.Unix(), 10))
	}
	if q.End != nil {
		values.Set("end", strconv.FormatInt(q.End.Unix(), 10))
	}
	if q.Start != nil && q.End != nil && q.End.Before(*q.Start) {
		return nil, errors.New("end precedes start")
	}
	if q.Offset > 0 {
		values.Set("ofs", strconv.Itoa(q.Offset))
	}
	if len(q.Asset) > 0 {
		assets := append([]string(nil), q.Asset...)
		sort.Strings(assets)
		values.Set("asset", strings.Join(assets, ","))
	}
	if q.Trades {
		values.Set("trades", "true")
	}
	return values, nil
}
