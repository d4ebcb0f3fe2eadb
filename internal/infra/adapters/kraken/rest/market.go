package rest

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"github.com/coachpo/krakenbridge/errs"
)

// ServerTime returns the venue clock.
func (c *Client) ServerTime(ctx context.Context) (ServerTime, error) {
	var out ServerTime
	err := c.Do(ctx, EndpointTime, nil, &out)
	return out, err
}

// SystemStatus reports whether the venue is online, in maintenance or cancel-only.
func (c *Client) SystemStatus(ctx context.Context) (SystemStatus, error) {
	var out SystemStatus
	err := c.Do(ctx, EndpointSystemStatus, nil, &out)
	return out, err
}

// Ticker returns tickers keyed by the venue's pair name.
func (c *Client) Ticker(ctx context.Context, pairs ...string) (map[string]TickerInfo, error) {
	values := url.Values{}
	if len(pairs) > 0 {
		values.Set("pair", strings.Join(pairs, ","))
	}
	out := map[string]TickerInfo{}
	if err := c.Do(ctx, EndpointTicker, rawParams(values), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Depth returns the order book for pair, keyed by the venue's pair name. count <= 0 uses the
// venue default.
func (c *Client) Depth(ctx context.Context, pair string, count int) (map[string]Depth, error) {
	values := url.Values{}
	values.Set("pair", pair)
	if count > 0 {
		values.Set("count", strconv.Itoa(count))
	}
	var raw json.RawMessage
	if err := c.Do(ctx, EndpointDepth, rawParams(values), &raw); err != nil {
		return nil, err
	}
	return parseDepth(raw, EndpointDepth.Path)
}

// OHLC returns candles for pair. interval is in minutes; since is the cursor of a previous page.
func (c *Client) OHLC(ctx context.Context, pair string, interval int, since int64) (OHLCPage, error) {
	values := url.Values{}
	values.Set("pair", pair)
	if interval > 0 {
		values.Set("interval", strconv.Itoa(interval))
	}
	if since > 0 {
		values.Set("since", strconv.FormatInt(since, 10))
	}
	var raw json.RawMessage
	if err := c.Do(ctx, EndpointOHLC, pairParams{pair: pair, values: values}, &raw); err != nil {
		return OHLCPage{}, err
	}
	return parseOHLC(raw, EndpointOHLC.Path)
}

// Trades returns recent public trades for pair. since is the cursor of a previous page.
func (c *Client) Trades(ctx context.Context, pair, since string) (TradesPage, error) {
	values := url.Values{}
	values.Set("pair", pair)
	if since != "" {
		values.Set("since", since)
	}
	var raw json.RawMessage
	if err := c.Do(ctx, EndpointTrades, pairParams{pair: pair, values: values}, &raw); err != nil {
		return TradesPage{}, err
	}
	return parseTrades(raw, EndpointTrades.Path)
}

func malformed(endpoint, format string, args ...any) error {
	return errs.New(venue, errs.CodeNetwork,
		errs.WithEndpoint(endpoint),
		errs.WithMessage(fmt.Sprintf(format, args...)))
}

func decimalAt(row gjson.Result, idx int) (decimal.Decimal, error) {
	return decimal.NewFromString(row.Get(strconv.Itoa(idx)).String())
}

func parseLevels(arr gjson.Result) ([]BookLevel, error) {
	rows := arr.Array()
	levels := make([]BookLevel, 0, len(rows))
	for _, row := range rows {
		price, err := decimalAt(row, 0)
		if err != nil {
			return nil, err
		}
		volume, err := decimalAt(row, 1)
		if err != nil {
			return nil, err
		}
		levels = append(levels, BookLevel{Price: price, Volume: volume, Timestamp: row.Get("2").Int()})
	}
	return levels, nil
}

func parseDepth(raw []byte, endpoint string) (map[string]Depth, error) {
	if !gjson.ValidBytes(raw) {
		return nil, malformed(endpoint, "depth result is not json")
	}
	out := map[string]Depth{}
	var parseErr error
	gjson.ParseBytes(raw).ForEach(func(key, value gjson.Result) bool {
		asks, err := parseLevels(value.Get("asks"))
		if err != nil {
			parseErr = malformed(endpoint, "depth %s asks: %v", key.String(), err)
			return false
		}
		bids, err := parseLevels(value.Get("bids"))
		if err != nil {
			parseErr = malformed(endpoint, "depth %s bids: %v", key.String(), err)
			return false
		}
		out[key.String()] = Depth{Asks: asks, Bids: bids}
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}
	return out, nil
}

func parseOHLC(raw []byte, endpoint string) (OHLCPage, error) {
	if !gjson.ValidBytes(raw) {
		return OHLCPage{}, malformed(endpoint, "ohlc result is not json")
	}
	var page OHLCPage
	var parseErr error
	gjson.ParseBytes(raw).ForEach(func(key, value gjson.Result) bool {
		if key.String() == "last" {
			page.Last = value.Int()
			return true
		}
		for _, row := range value.Array() {
			candle := Candle{Time: row.Get("0").Int(), Count: row.Get("7").Int()}
			fields := []*decimal.Decimal{&candle.Open, &candle.High, &candle.Low, &candle.Close, &candle.VWAP, &candle.Volume}
			for i, field := range fields {
				d, err := decimalAt(row, i+1)
				if err != nil {
					parseErr = malformed(endpoint, "ohlc %s column %d: %v", key.String(), i+1, err)
					return false
				}
				*field = d
			}
			page.Candles = append(page.Candles, candle)
		}
		return true
	})
	if parseErr != nil {
		return OHLCPage{}, parseErr
	}
	return page, nil
}

func parseTrades(raw []byte, endpoint string) (TradesPage, error) {
	if !gjson.ValidBytes(raw) {
		return TradesPage{}, malformed(endpoint, "trades result is not json")
	}
	var page TradesPage
	var parseErr error
	gjson.ParseBytes(raw).ForEach(func(key, value gjson.Result) bool {
		if key.String() == "last" {
			page.Last = value.String()
			return true
		}
		for _, row := range value.Array() {
			price, err := decimalAt(row, 0)
			if err != nil {
				parseErr = malformed(endpoint, "trades %s price: %v", key.String(), err)
				return false
			}
			volume, err := decimalAt(row, 1)
			if err != nil {
				parseErr = malformed(endpoint, "trades %s volume: %v", key.String(), err)
				return false
			}
			page.Trades = append(page.Trades, PublicTrade{
				Price:     price,
				Volume:    volume,
				Time:      row.Get("2").Float(),
				Side:      row.Get("3").String(),
				OrderType: row.Get("4").String(),
				Misc:      row.Get("5").String(),
				TradeID:   row.Get("6").Int(),
			})
		}
		return true
	})
	if parseErr != nil {
		return TradesPage{}, parseErr
	}
	return page, nil
}
