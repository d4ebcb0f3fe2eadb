package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/coachpo/krakenbridge/internal/infra/adapters/kraken/ws"
	"github.com/coachpo/krakenbridge/internal/infra/config"
	"github.com/coachpo/krakenbridge/internal/infra/persistence/postgres"
	"github.com/coachpo/krakenbridge/internal/observability"
)

type recorder interface {
	Record(ctx context.Context, evt postgres.IntegrityEvent) (int64, error)
}

type runner struct {
	logger   observability.Logger
	recorder recorder
	sessions []*ws.Session
}

func publicSubscriptions(cfg config.SessionConfig) []ws.Subscribe {
	var subs []ws.Subscribe
	if cfg.Instrument {
		subs = append(subs, ws.Subscribe{Channel: "instrument"})
	}
	if len(cfg.Book.Symbols) > 0 {
		subs = append(subs, ws.Subscribe{Channel: "book", Symbols: cfg.Book.Symbols, Depth: cfg.Book.Depth})
	}
	if len(cfg.Ticker.Symbols) > 0 {
		subs = append(subs, ws.Subscribe{Channel: "ticker", Symbols: cfg.Ticker.Symbols})
	}
	if len(cfg.Trade.Symbols) > 0 {
		subs = append(subs, ws.Subscribe{Channel: "trade", Symbols: cfg.Trade.Symbols})
	}
	return subs
}

func privateSubscriptions() []ws.Subscribe {
	return []ws.Subscribe{{Channel: "executions"}, {Channel: "balances"}}
}

// open connects s and sends subs. A failed subscribe is logged; the venue reports the rest.
func (r *runner) open(ctx context.Context, s *ws.Session, subs []ws.Subscribe) error {
	if err := s.Connect(ctx); err != nil {
		return fmt.Errorf("connect session: %w", err)
	}
	r.sessions = append(r.sessions, s)
	for _, sub := range subs {
		reqID, err := s.Subscribe(ctx, sub)
		if err != nil {
			r.logger.Error("subscribe", observability.F("channel", sub.Channel), observability.F("error", err))
			continue
		}
		r.logger.Info("subscribe sent",
			observability.F("channel", sub.Channel),
			observability.F("symbols", sub.Symbols),
			observability.F("req_id", reqID))
	}
	return nil
}

func (r *runner) close() error {
	closeErrs := make([]error, 0, len(r.sessions))
	for _, s := range r.sessions {
		closeErrs = append(closeErrs, s.Close())
	}
	return observability.AggregateErrors("close sessions", closeErrs)
}

// consume drains s until ctx ends or the session stops for good.
func (r *runner) consume(ctx context.Context, s *ws.Session) {
	for {
		ev, err := s.Next(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, ws.ErrClosed) {
				return
			}
			r.logger.Error("session terminated", observability.F("error", err))
			if rerr := s.Restart(ctx); rerr != nil {
				r.logger.Error("session restart", observability.F("error", rerr))
				return
			}
			continue
		}
		r.handle(ctx, ev)
	}
}

func (r *runner) handle(ctx context.Context, ev ws.Event) {
	switch e := ev.(type) {
	case ws.BookEvent:
		bid, _ := e.View.BestBid()
		ask, _ := e.View.BestAsk()
		r.logger.Debug("book",
			observability.F("symbol", e.Symbol),
			observability.F("type", e.Type),
			observability.F("bid", bid.Price.String()),
			observability.F("ask", ask.Price.String()),
			observability.F("checksum", e.View.Checksum))
	case ws.DesyncEvent:
		r.logger.Error("book desync", observability.F("symbol", e.Symbol), observability.F("error", e.Err))
		if r.recorder == nil {
			return
		}
		if _, err := r.recorder.Record(ctx, postgres.IntegrityEvent{
			Symbol:   e.Symbol,
			Expected: e.Expected,
			Computed: e.Computed,
		}); err != nil {
			r.logger.Error("record desync", observability.F("symbol", e.Symbol), observability.F("error", err))
		}
	case ws.TickerEvent:
		r.logger.Info("ticker",
			observability.F("symbol", e.Ticker.Symbol),
			observability.F("bid", e.Ticker.Bid.String()),
			observability.F("ask", e.Ticker.Ask.String()),
			observability.F("last", e.Ticker.Last.String()))
	case ws.TradeEvent:
		r.logger.Info("trades", observability.F("symbol", e.Symbol), observability.F("count", len(e.Trades)))
	case ws.SubscriptionAckEvent:
		r.logger.Info("subscribed", observability.F("channel", e.Channel), observability.F("symbol", e.Symbol))
	case ws.SubscriptionFailedEvent:
		r.logger.Error("subscription failed", observability.F("channel", e.Channel), observability.F("symbol", e.Symbol), observability.F("error", e.Err))
	case ws.DisconnectedEvent:
		r.logger.Error("disconnected", observability.F("replay", len(e.Replay)), observability.F("error", e.Err))
	case ws.ReconnectedEvent:
		r.logger.Info("reconnected", observability.F("attempts", e.Attempts), observability.F("replayed", e.Replayed))
	case ws.StatusEvent:
		r.logger.Info("venue status", observability.F("system", e.Status.System), observability.F("version", e.Status.Version))
	case ws.ExecutionsEvent:
		for _, x := range e.Executions {
			r.logger.Info("execution",
				observability.F("order_id", x.OrderID),
				observability.F("exec_type", x.ExecType),
				observability.F("status", x.OrderStatus))
		}
	case ws.BalancesEvent:
		r.logger.Info("balances", observability.F("type", e.Type), observability.F("count", len(e.Balances)))
	default:
		r.logger.Debug("event", observability.F("type", fmt.Sprintf("%T", ev)))
	}
}
