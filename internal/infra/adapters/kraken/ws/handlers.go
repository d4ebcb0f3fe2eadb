package ws

import (
	"context"
	"fmt"

	json "github.com/goccy/go-json"

	"github.com/coachpo/krakenbridge/errs"
	"github.com/coachpo/krakenbridge/internal/infra/adapters/kraken/book"
	"github.com/coachpo/krakenbridge/internal/observability"
)

func (s *Session) handle(ctx context.Context, msg Message) {
	switch m := msg.(type) {
	case Heartbeat:
		s.metrics.RecordFrame(ctx, "heartbeat")
	case Pong:
		s.metrics.RecordFrame(ctx, "pong")
	case StatusMessage:
		s.metrics.RecordFrame(ctx, "status")
		for _, st := range m.Data {
			s.emit(StatusEvent{Type: m.Type, Status: st})
		}
	case MethodResponse:
		s.metrics.RecordFrame(ctx, m.Method)
		s.handleResponse(ctx, m)
	case ChannelMessage:
		s.metrics.RecordFrame(ctx, m.Channel)
		s.handleChannel(ctx, m)
	}
}

func (s *Session) handleResponse(ctx context.Context, m MethodResponse) {
	switch m.Method {
	case "subscribe":
		if m.Success {
			s.onSubscribed(ctx, m)
		} else {
			s.onRejected(ctx, m)
		}
	case "unsubscribe":
		if m.Success {
			s.onUnsubscribed(ctx, m)
		} else {
			s.logger.Error("unsubscribe rejected",
				observability.F("req_id", m.ReqID),
				observability.F("symbol", m.Symbol),
				observability.F("error", m.Error))
		}
	default:
		s.logger.Debug("unhandled method response", observability.F("method", m.Method), observability.F("req_id", m.ReqID))
	}
}

func (s *Session) onSubscribed(ctx context.Context, m MethodResponse) {
	key := Key{Channel: m.Result.Channel, Symbol: m.Result.Symbol}
	s.mu.Lock()
	e := s.registry.get(key)
	if e == nil || e.sub.ReqID != m.ReqID || (e.sub.Status != StatusRequested && !e.resync) {
		s.mu.Unlock()
		s.logger.Debug("ack without pending subscription",
			observability.F("channel", key.Channel),
			observability.F("symbol", key.Symbol),
			observability.F("req_id", m.ReqID))
		return
	}
	e.sub.Status = StatusAcknowledged
	e.resync = false
	e.carry = false
	s.mu.Unlock()

	s.metrics.RecordTransition(ctx, key.Channel, StatusAcknowledged.String())
	s.emit(SubscriptionAckEvent{Channel: key.Channel, Symbol: key.Symbol, ReqID: m.ReqID})
}

func (s *Session) onRejected(ctx context.Context, m MethodResponse) {
	s.mu.Lock()
	var failed []Subscription
	for _, e := range s.registry.byReqID(m.ReqID) {
		if m.Symbol != "" && e.sub.Symbol != m.Symbol {
			continue
		}
		if e.sub.Status != StatusRequested && !e.resync {
			continue
		}
		e.sub.Status = StatusFailed
		e.resync = false
		e.carry = false
		failed = append(failed, e.sub)
	}
	s.mu.Unlock()

	if len(failed) == 0 {
		s.logger.Error("subscribe rejected without pending entry",
			observability.F("req_id", m.ReqID),
			observability.F("error", m.Error))
		return
	}
	sortSubscriptions(failed)
	for _, sub := range failed {
		s.metrics.RecordTransition(ctx, sub.Channel, StatusFailed.String())
		s.emit(SubscriptionFailedEvent{
			Channel: sub.Channel,
			Symbol:  sub.Symbol,
			ReqID:   m.ReqID,
			Err: errs.New(venue, errs.CodeSubscription,
				errs.WithMessage(m.Error),
				errs.WithVenueField("channel", sub.Channel),
				errs.WithVenueField("symbol", sub.Symbol)),
		})
	}
}

func (s *Session) onUnsubscribed(ctx context.Context, m MethodResponse) {
	key := Key{Channel: m.Result.Channel, Symbol: m.Result.Symbol}
	s.mu.Lock()
	e := s.registry.get(key)
	if e == nil {
		s.mu.Unlock()
		return
	}
	if e.unsubReqID != 0 && e.unsubReqID == m.ReqID {
		e.unsubReqID = 0
		s.mu.Unlock()
		return
	}
	e.sub.Status = StatusUnsubscribed
	s.registry.remove(key)
	if key.Channel == channelBook {
		delete(s.books, key.Symbol)
	}
	s.mu.Unlock()

	s.metrics.RecordTransition(ctx, key.Channel, StatusUnsubscribed.String())
	s.emit(UnsubscribedEvent{Channel: key.Channel, Symbol: key.Symbol, ReqID: m.ReqID})
}

// route reports whether data for key should reach the consumer, promoting an acknowledged
// entry to Active on its first data frame.
func (s *Session) route(ctx context.Context, key Key) bool {
	s.mu.Lock()
	e := s.registry.get(key)
	if e == nil || !e.sub.Status.Live() {
		s.mu.Unlock()
		s.countUnmatched(ctx, key.Channel)
		return false
	}
	promoted := e.sub.Status == StatusAcknowledged
	if promoted {
		e.sub.Status = StatusActive
	}
	s.mu.Unlock()
	if promoted {
		s.metrics.RecordTransition(ctx, key.Channel, StatusActive.String())
	}
	return true
}

func (s *Session) handleChannel(ctx context.Context, m ChannelMessage) {
	var err error
	switch m.Channel {
	case channelBook:
		err = s.onBook(ctx, m)
	case channelTicker:
		var items []Ticker
		if err = json.Unmarshal(m.Data, &items); err == nil {
			for _, item := range items {
				if s.route(ctx, Key{Channel: m.Channel, Symbol: item.Symbol}) {
					s.emit(TickerEvent{Type: m.Type, Ticker: item})
				}
			}
		}
	case channelTrade:
		var items []Trade
		if err = json.Unmarshal(m.Data, &items); err == nil {
			for _, group := range groupBySymbol(items, func(t Trade) string { return t.Symbol }) {
				if s.route(ctx, Key{Channel: m.Channel, Symbol: group[0].Symbol}) {
					s.emit(TradeEvent{Type: m.Type, Symbol: group[0].Symbol, Trades: group})
				}
			}
		}
	case channelOHLC:
		var items []Candle
		if err = json.Unmarshal(m.Data, &items); err == nil {
			for _, group := range groupBySymbol(items, func(c Candle) string { return c.Symbol }) {
				if s.route(ctx, Key{Channel: m.Channel, Symbol: group[0].Symbol}) {
					s.emit(OHLCEvent{Type: m.Type, Symbol: group[0].Symbol, Candles: group})
				}
			}
		}
	case channelLevel3:
		var items []Level3Data
		if err = json.Unmarshal(m.Data, &items); err == nil {
			for _, item := range items {
				if s.route(ctx, Key{Channel: m.Channel, Symbol: item.Symbol}) {
					s.emit(Level3Event{Type: m.Type, Data: item})
				}
			}
		}
	case channelInstrument:
		var data InstrumentData
		if err = json.Unmarshal(m.Data, &data); err == nil {
			s.learnPrecision(data.Pairs)
			if s.route(ctx, Key{Channel: m.Channel}) {
				s.emit(InstrumentEvent{Type: m.Type, Data: data})
			}
		}
	case channelExecutions:
		var items []Execution
		if err = json.Unmarshal(m.Data, &items); err == nil && s.route(ctx, Key{Channel: m.Channel}) {
			s.emit(ExecutionsEvent{Type: m.Type, Executions: items})
		}
	case channelBalances:
		var items []Balance
		if err = json.Unmarshal(m.Data, &items); err == nil && s.route(ctx, Key{Channel: m.Channel}) {
			s.emit(BalancesEvent{Type: m.Type, Balances: items})
		}
	default:
		s.countUnmatched(ctx, m.Channel)
	}
	if err != nil {
		s.logger.Error("decode channel payload",
			observability.F("channel", m.Channel),
			observability.F("type", m.Type),
			observability.F("error", err))
	}
}

func groupBySymbol[T any](items []T, symbol func(T) string) [][]T {
	var groups [][]T
	index := make(map[string]int)
	for _, item := range items {
		sym := symbol(item)
		i, ok := index[sym]
		if !ok {
			i = len(groups)
			index[sym] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], item)
	}
	return groups
}

func (s *Session) learnPrecision(pairs []InstrumentPair) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, pair := range pairs {
		s.precisions[pair.Symbol] = pair.Precision()
		b := s.books[pair.Symbol]
		if b == nil {
			continue
		}
		if e := s.registry.get(Key{Channel: channelBook, Symbol: pair.Symbol}); e != nil && e.sub.Params.Precision == nil {
			b.SetPrecision(pair.Precision())
		}
	}
}

func (s *Session) newBookLocked(e *entry) *book.Book {
	b := book.New(e.sub.Symbol, e.sub.Params.Depth)
	if p := e.sub.Params.Precision; p != nil {
		b.SetPrecision(*p)
	} else if p, ok := s.precisions[e.sub.Symbol]; ok {
		b.SetPrecision(p)
	}
	return b
}

func (s *Session) onBook(ctx context.Context, m ChannelMessage) error {
	var items []BookData
	if err := json.Unmarshal(m.Data, &items); err != nil {
		return err
	}
	for _, item := range items {
		key := Key{Channel: channelBook, Symbol: item.Symbol}
		if !s.route(ctx, key) {
			continue
		}

		s.mu.Lock()
		e := s.registry.get(key)
		if e == nil {
			s.mu.Unlock()
			continue
		}
		b := s.books[item.Symbol]
		switch {
		case m.Type == "snapshot":
			b = s.newBookLocked(e)
			s.books[item.Symbol] = b
			b.ApplySnapshot(toLevels(item.Bids), toLevels(item.Asks))
		case b == nil:
			s.mu.Unlock()
			s.countUnmatched(ctx, channelBook)
			continue
		default:
			b.ApplyUpdate(toLevels(item.Bids), toLevels(item.Asks))
		}

		computed := b.Checksum()
		if computed != item.Checksum {
			delete(s.books, item.Symbol)
			unsubID, subID := s.nextReqID(), s.nextReqID()
			e.sub.Status = StatusFailed
			e.sub.ReqID = subID
			e.resync = true
			e.carry = true
			e.unsubReqID = unsubID
			params := e.sub.Params
			s.mu.Unlock()

			s.desync(ctx, item, computed, params, unsubID, subID)
			continue
		}
		view := b.View()
		s.mu.Unlock()
		s.emit(BookEvent{Type: m.Type, Symbol: item.Symbol, View: view, Timestamp: item.Timestamp})
	}
	return nil
}

// desync reports the mismatch and requests a fresh snapshot with unsubscribe then subscribe.
func (s *Session) desync(ctx context.Context, item BookData, computed uint32, params Subscribe, unsubID, subID int64) {
	s.metrics.RecordDesync(ctx, item.Symbol)
	s.metrics.RecordTransition(ctx, channelBook, StatusFailed.String())
	s.logger.Error("book checksum mismatch",
		observability.F("symbol", item.Symbol),
		observability.F("expected", item.Checksum),
		observability.F("computed", computed))
	s.emit(DesyncEvent{
		Symbol:   item.Symbol,
		Expected: item.Checksum,
		Computed: computed,
		Err: errs.New(venue, errs.CodeIntegrity,
			errs.WithMessage(fmt.Sprintf("book checksum mismatch: expected %d computed %d", item.Checksum, computed)),
			errs.WithVenueField("symbol", item.Symbol)),
	})

	symbols := []string{item.Symbol}
	unsub := request{Method: "unsubscribe", Params: unsubscribeFrame(channelBook, symbols, params, ""), ReqID: unsubID}
	if err := s.send(ctx, unsub, true); err != nil {
		s.logger.Error("resync unsubscribe", observability.F("symbol", item.Symbol), observability.F("error", err))
		return
	}
	snapshot := true
	params.Snapshot = &snapshot
	params.Symbols = symbols
	sub := request{Method: "subscribe", Params: subscribeFrame(params, ""), ReqID: subID}
	if err := s.send(ctx, sub, true); err != nil {
		s.logger.Error("resync subscribe", observability.F("symbol", item.Symbol), observability.F("error", err))
	}
}
