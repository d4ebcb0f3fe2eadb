package rest

import (
	"context"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
)

// Balance returns the account balance per asset.
func (c *Client) Balance(ctx context.Context) (map[string]decimal.Decimal, error) {
	out := map[string]decimal.Decimal{}
	if err := c.Do(ctx, EndpointBalance, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// TradeBalance returns margin and equity figures denominated in asset ("" for the venue default).
func (c *Client) TradeBalance(ctx context.Context, asset string) (TradeBalance, error) {
	values := url.Values{}
	if asset = strings.TrimSpace(asset); asset != "" {
		values.Set("asset", asset)
	}
	var out TradeBalance
	err := c.Do(ctx, EndpointTradeBalance, rawParams(values), &out)
	return out, err
}

// OpenOrders lists open orders. withTrades includes related trade ids.
func (c *Client) OpenOrders(ctx context.Context, withTrades bool) (OpenOrders, error) {
	values := url.Values{}
	if withTrades {
		values.Set("trades", "true")
	}
	var out OpenOrders
	err := c.Do(ctx, EndpointOpenOrders, rawParams(values), &out)
	return out, err
}

// ClosedOrders returns one page of closed orders.
func (c *Client) ClosedOrders(ctx context.Context, q HistoryQuery) (ClosedOrders, error) {
	var out ClosedOrders
	err := c.Do(ctx, EndpointClosedOrders, q, &out)
	return out, err
}

// TradesHistory returns one page of private trades.
func (c *Client) TradesHistory(ctx context.Context, q HistoryQuery) (TradesHistory, error) {
	var out TradesHistory
	err := c.Do(ctx, EndpointTradesHistory, q, &out)
	return out, err
}

// Ledgers returns one page of ledger entries.
func (c *Client) Ledgers(ctx context.Context, q HistoryQuery) (Ledgers, error) {
	var out Ledgers
	err := c.Do(ctx, EndpointLedgers, q, &out)
	return out, err
}

// WebSocketsToken fetches a token for private WebSocket channels.
func (c *Client) WebSocketsToken(ctx context.Context) (WebSocketsToken, error) {
	var out WebSocketsToken
	err := c.Do(ctx, EndpointWebSocketsToken, nil, &out)
	return out, err
}

// Token implements the streaming session's token source.
func (c *Client) Token(ctx context.Context) (string, error) {
	tok, err := c.WebSocketsToken(ctx)
	if err != nil {
		return "", err
	}
	return tok.Token, nil
}
