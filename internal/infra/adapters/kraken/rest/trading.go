package rest

import (
	"context"
	"net/url"
	"strconv"

	"github.com/coachpo/krakenbridge/errs"
	"github.com/coachpo/krakenbridge/internal/infra/adapters/kraken/ratelimit"
)

// AddOrder places one order and records its placement time for later edit and cancel costs.
func (c *Client) AddOrder(ctx context.Context, req AddOrderRequest) (AddOrderResult, error) {
	var out AddOrderResult
	if err := c.Do(ctx, EndpointAddOrder, req, &out); err != nil {
		return out, err
	}
	if req.Validate {
		return out, nil
	}
	refs := append([]string(nil), out.TxID...)
	if req.UserRef != nil {
		refs = append(refs, ratelimit.UserRefKey(*req.UserRef))
	}
	if req.ClientOrderID != "" {
		refs = append(refs, req.ClientOrderID)
	}
	c.notifyPlaced(ctx, refs)
	return out, nil
}

// AddOrderBatch places several orders on one pair.
func (c *Client) AddOrderBatch(ctx context.Context, req AddOrderBatchRequest) (AddOrderBatchResult, error) {
	var out AddOrderBatchResult
	if err := c.Do(ctx, EndpointAddOrderBatch, req, &out); err != nil {
		return out, err
	}
	if req.Validate {
		return out, nil
	}
	refs := make([]string, 0, len(out.Orders))
	for i, order := range out.Orders {
		if order.TxID != "" {
			refs = append(refs, order.TxID)
		}
		if i < len(req.Orders) && req.Orders[i].UserRef != nil {
			refs = append(refs, ratelimit.UserRefKey(*req.Orders[i].UserRef))
		}
	}
	c.notifyPlaced(ctx, refs)
	return out, nil
}

// EditOrder amends a live order. The replacement txid inherits a fresh placement time.
func (c *Client) EditOrder(ctx context.Context, req EditOrderRequest) (EditOrderResult, error) {
	var out EditOrderResult
	if err := c.Do(ctx, EndpointEditOrder, req, &out); err != nil {
		return out, err
	}
	if !req.Validate && out.TxID != "" {
		c.notifyPlaced(ctx, []string{out.TxID})
	}
	return out, nil
}

// CancelOrder cancels by txid, userref or client order id.
func (c *Client) CancelOrder(ctx context.Context, req CancelOrderRequest) (CancelResult, error) {
	var out CancelResult
	err := c.Do(ctx, EndpointCancelOrder, req, &out)
	return out, err
}

// CancelAll cancels every open order.
func (c *Client) CancelAll(ctx context.Context) (CancelResult, error) {
	var out CancelResult
	err := c.Do(ctx, EndpointCancelAll, nil, &out)
	return out, err
}

// CancelAllOrdersAfter arms the dead man's switch. A zero timeout disarms it.
func (c *Client) CancelAllOrdersAfter(ctx context.Context, timeoutSeconds int) (CancelAfterResult, error) {
	if timeoutSeconds < 0 {
		return CancelAfterResult{}, errs.New(venue, errs.CodeInvalid,
			errs.WithEndpoint(EndpointCancelAllOrdersAfter.Path),
			errs.WithMessage("timeout must not be negative"))
	}
	values := url.Values{}
	values.Set("timeout", strconv.Itoa(timeoutSeconds))
	var out CancelAfterResult
	err := c.Do(ctx, EndpointCancelAllOrdersAfter, rawParams(values), &out)
	return out, err
}

func (c *Client) notifyPlaced(ctx context.Context, refs []string) {
	if len(refs) == 0 {
		return
	}
	c.limits.Trading().NotifyPlaced(ctx, c.now(), refs...)
}
