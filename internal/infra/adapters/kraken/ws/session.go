// Package ws runs one Kraken v2 WebSocket session: subscription bookkeeping, frame routing,
// order book integrity checks and reconnection.
package ws

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/coder/websocket"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/sourcegraph/conc"

	"github.com/coachpo/krakenbridge/errs"
	"github.com/coachpo/krakenbridge/internal/infra/adapters/kraken/book"
	"github.com/coachpo/krakenbridge/internal/observability"
	"github.com/coachpo/krakenbridge/internal/telemetry"
)

const (
	venue       = "kraken"
	dialTimeout = 10 * time.Second

	channelBook       = "book"
	channelTicker     = "ticker"
	channelTrade      = "trade"
	channelOHLC       = "ohlc"
	channelLevel3     = "level3"
	channelInstrument = "instrument"
	channelExecutions = "executions"
	channelBalances   = "balances"
)

// ErrClosed is returned by every operation after Close.
var ErrClosed = errors.New("ws: session closed")

var symbolChannels = map[string]bool{
	channelBook:   true,
	channelTicker: true,
	channelTrade:  true,
	channelOHLC:   true,
	channelLevel3: true,
}

var privateChannels = map[string]bool{
	channelExecutions: true,
	channelBalances:   true,
	channelLevel3:     true,
}

// Session owns one connection at a time. Reads happen on a single goroutine; writes go
// through one mutex-guarded path.
type Session struct {
	opts    Options
	logger  observability.Logger
	metrics *telemetry.SessionMetrics

	ctx    context.Context
	cancel context.CancelFunc
	wg     conc.WaitGroup

	reqID     atomic.Int64
	unmatched atomic.Uint64

	events    chan Event
	closed    chan struct{}
	closeOnce sync.Once

	writeMu     sync.Mutex
	lastControl time.Time

	mu         sync.Mutex
	conn       *websocket.Conn
	connID     string
	running    bool
	registry   *registry
	books      map[string]*book.Book
	precisions map[string]book.Precision
	recorded   []Subscription
	done       chan struct{}
	termErr    error
}

// NewSession prepares a session; Connect opens it.
func NewSession(opts Options) *Session {
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		opts:       opts,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
		ctx:        ctx,
		cancel:     cancel,
		events:     make(chan Event, opts.QueueSize),
		closed:     make(chan struct{}),
		registry:   newRegistry(),
		books:      make(map[string]*book.Book),
		precisions: make(map[string]book.Precision),
		done:       make(chan struct{}),
	}
}

// Connect dials the venue and starts the read and ping loops.
func (s *Session) Connect(ctx context.Context) error {
	if s.isClosed() {
		return ErrClosed
	}
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errs.New(venue, errs.CodeInvalid, errs.WithMessage("session already connected"))
	}
	s.running = true
	s.mu.Unlock()

	conn, err := s.dial(ctx)
	if err != nil {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return err
	}
	s.start(conn)
	return nil
}

// Restart redials a terminated session. The live set recorded at termination is
// resubscribed on the session goroutine, followed by a ReconnectedEvent.
func (s *Session) Restart(ctx context.Context) error {
	if s.isClosed() {
		return ErrClosed
	}
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errs.New(venue, errs.CodeInvalid, errs.WithMessage("session is running"))
	}
	s.running = true
	replay := s.recorded
	s.mu.Unlock()

	conn, err := s.dial(ctx)
	if err != nil {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	s.recorded = nil
	s.termErr = nil
	s.done = make(chan struct{})
	s.mu.Unlock()

	s.attach(conn)
	s.wg.Go(func() {
		s.resubscribe(replay, 1)
		s.run(conn)
	})
	return nil
}

func (s *Session) start(conn *websocket.Conn) {
	s.attach(conn)
	s.wg.Go(func() { s.run(conn) })
}

// resubscribe replays subs and reports the reconnect. Callers run it on the session goroutine.
func (s *Session) resubscribe(subs []Subscription, attempts int) {
	replayed := s.replay(subs)
	s.emit(ReconnectedEvent{Attempts: attempts, Replayed: replayed})
}

// Close disconnects, clears the registry and stops every session goroutine.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.cancel()
		s.mu.Lock()
		conn := s.conn
		s.conn = nil
		s.registry.clear()
		s.books = make(map[string]*book.Book)
		s.mu.Unlock()
		if conn != nil {
			_ = conn.Close(websocket.StatusNormalClosure, "client closing")
		}
		s.wg.Wait()
	})
	return nil
}

func (s *Session) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

// Next blocks until an event is available. After termination it drains queued events and
// then returns the terminal CodeNetwork error; after Close it returns ErrClosed.
func (s *Session) Next(ctx context.Context) (Event, error) {
	if s.isClosed() {
		return nil, ErrClosed
	}
	select {
	case ev := <-s.events:
		return ev, nil
	default:
	}
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()

	select {
	case ev := <-s.events:
		return ev, nil
	case <-s.closed:
		return nil, ErrClosed
	case <-done:
		select {
		case ev := <-s.events:
			return ev, nil
		default:
		}
		return nil, s.Err()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Events exposes the consumer queue. It is never closed; use Done and Err for termination.
func (s *Session) Events() <-chan Event { return s.events }

// Done is closed when the session terminates without Close.
func (s *Session) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Err returns the terminal error, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.termErr
}

// UnmatchedFrames counts data frames dropped because no live subscription matched.
func (s *Session) UnmatchedFrames() uint64 { return s.unmatched.Load() }

// Subscriptions returns a copy of the registry.
func (s *Session) Subscriptions() []Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registry.snapshot()
}

// Lookup returns the entry for (channel, symbol).
func (s *Session) Lookup(channel, symbol string) (Subscription, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.registry.get(Key{Channel: channel, Symbol: symbol})
	if e == nil {
		return Subscription{}, false
	}
	return e.sub, true
}

// Subscribe registers one Requested entry per symbol and sends the request. It returns the
// request id without waiting for the acknowledgement.
func (s *Session) Subscribe(ctx context.Context, sub Subscribe) (int64, error) {
	if s.isClosed() {
		return 0, ErrClosed
	}
	if err := validateSubscribe(sub); err != nil {
		return 0, err
	}
	token, err := s.token(ctx, sub.Channel)
	if err != nil {
		return 0, err
	}

	keys := keysFor(sub.Channel, sub.Symbols)
	reqID := s.nextReqID()

	s.mu.Lock()
	if s.conn == nil {
		s.mu.Unlock()
		return 0, errs.New(venue, errs.CodeNetwork, errs.WithMessage("session not connected"))
	}
	for _, key := range keys {
		if e := s.registry.get(key); e != nil && (e.sub.Status == StatusRequested || e.sub.Status.Live() || e.carry) {
			s.mu.Unlock()
			return 0, errs.New(venue, errs.CodeInvalid,
				errs.WithMessage("already subscribed"),
				errs.WithVenueField("channel", key.Channel),
				errs.WithVenueField("symbol", key.Symbol))
		}
	}
	for _, key := range keys {
		s.registry.put(key, reqID, sub.forSymbol(key.Symbol))
	}
	s.mu.Unlock()

	for _, key := range keys {
		s.metrics.RecordTransition(ctx, key.Channel, StatusRequested.String())
	}

	frame := request{Method: "subscribe", Params: subscribeFrame(sub, token), ReqID: reqID}
	if err := s.send(ctx, frame, true); err != nil {
		s.mu.Lock()
		for _, key := range keys {
			if e := s.registry.get(key); e != nil && e.sub.ReqID == reqID {
				s.registry.remove(key)
			}
		}
		s.mu.Unlock()
		return 0, err
	}
	return reqID, nil
}

// Unsubscribe sends an unsubscribe request. Entries leave the registry when the venue confirms.
func (s *Session) Unsubscribe(ctx context.Context, channel string, symbols ...string) (int64, error) {
	if s.isClosed() {
		return 0, ErrClosed
	}
	keys := keysFor(channel, symbols)
	s.mu.Lock()
	var params Subscribe
	found := false
	for _, key := range keys {
		if e := s.registry.get(key); e != nil {
			params = e.sub.Params
			found = true
			break
		}
	}
	s.mu.Unlock()
	if !found {
		return 0, errs.New(venue, errs.CodeInvalid,
			errs.WithMessage("not subscribed"),
			errs.WithVenueField("channel", channel))
	}
	token, err := s.token(ctx, channel)
	if err != nil {
		return 0, err
	}
	reqID := s.nextReqID()
	frame := request{Method: "unsubscribe", Params: unsubscribeFrame(channel, symbols, params, token), ReqID: reqID}
	if err := s.send(ctx, frame, true); err != nil {
		return 0, err
	}
	return reqID, nil
}

func validateSubscribe(sub Subscribe) error {
	invalid := func(msg string) error {
		return errs.New(venue, errs.CodeInvalid, errs.WithMessage(msg), errs.WithVenueField("channel", sub.Channel))
	}
	if sub.Channel == "" {
		return invalid("channel required")
	}
	if symbolChannels[sub.Channel] && len(sub.Symbols) == 0 {
		return invalid("channel requires at least one symbol")
	}
	seen := make(map[string]struct{}, len(sub.Symbols))
	for _, sym := range sub.Symbols {
		if sym == "" {
			return invalid("empty symbol")
		}
		if _, dup := seen[sym]; dup {
			return invalid("duplicate symbol " + sym)
		}
		seen[sym] = struct{}{}
	}
	return nil
}

func keysFor(channel string, symbols []string) []Key {
	if len(symbols) == 0 {
		return []Key{{Channel: channel}}
	}
	keys := make([]Key, 0, len(symbols))
	for _, sym := range symbols {
		keys = append(keys, Key{Channel: channel, Symbol: sym})
	}
	return keys
}

func subscribeFrame(sub Subscribe, token string) subscribeParams {
	return subscribeParams{
		Channel:      sub.Channel,
		Symbol:       sub.Symbols,
		Depth:        sub.Depth,
		Snapshot:     sub.Snapshot,
		Interval:     sub.Interval,
		EventTrigger: sub.EventTrigger,
		SnapOrders:   sub.SnapOrders,
		SnapTrades:   sub.SnapTrades,
		Token:        token,
	}
}

func unsubscribeFrame(channel string, symbols []string, params Subscribe, token string) unsubscribeParams {
	return unsubscribeParams{
		Channel:  channel,
		Symbol:   symbols,
		Depth:    params.Depth,
		Interval: params.Interval,
		Token:    token,
	}
}

func (s *Session) token(ctx context.Context, channel string) (string, error) {
	if !privateChannels[channel] {
		return "", nil
	}
	if s.opts.Tokens == nil {
		return "", errs.New(venue, errs.CodeAuth,
			errs.WithMessage("private channel requires a token source"),
			errs.WithVenueField("channel", channel))
	}
	tok, err := s.opts.Tokens.Token(ctx)
	if err != nil {
		return "", errs.New(venue, errs.CodeAuth, errs.WithVenueField("channel", channel), errs.WithCause(err))
	}
	return tok, nil
}

func (s *Session) nextReqID() int64 { return s.reqID.Add(1) }

func (s *Session) dial(ctx context.Context) (*websocket.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	conn, _, err := websocket.Dial(dialCtx, s.opts.URL, nil)
	if err != nil {
		return nil, errs.New(venue, errs.CodeNetwork,
			errs.WithEndpoint(s.opts.URL),
			errs.WithMessage("dial failed"),
			errs.WithCause(err))
	}
	conn.SetReadLimit(readLimit)
	return conn, nil
}

func (s *Session) attach(conn *websocket.Conn) {
	s.writeMu.Lock()
	s.lastControl = time.Time{}
	s.writeMu.Unlock()

	s.mu.Lock()
	s.conn = conn
	s.connID = uuid.NewString()
	connID := s.connID
	s.mu.Unlock()
	s.logger.Info("websocket connected", observability.F("url", s.opts.URL), observability.F("conn_id", connID))
}

// send marshals and writes one frame. Control frames are spaced by ControlInterval.
func (s *Session) send(ctx context.Context, frame request, control bool) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return errs.New(venue, errs.CodeInvalid, errs.WithMessage("encode "+frame.Method), errs.WithCause(err))
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if control {
		if wait := time.Until(s.lastControl.Add(s.opts.ControlInterval)); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
		s.lastControl = time.Now()
	}

	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return errs.New(venue, errs.CodeNetwork, errs.WithMessage("session not connected"))
	}

	writeCtx, cancel := context.WithTimeout(ctx, s.opts.WriteTimeout)
	defer cancel()
	if err := conn.Write(writeCtx, websocket.MessageText, data); err != nil {
		return errs.New(venue, errs.CodeNetwork, errs.WithMessage("write "+frame.Method), errs.WithCause(err))
	}
	return nil
}

// emit blocks until the consumer has room or the session closes.
func (s *Session) emit(ev Event) {
	select {
	case s.events <- ev:
	case <-s.ctx.Done():
	}
}

func (s *Session) countUnmatched(ctx context.Context, channel string) {
	s.unmatched.Add(1)
	s.metrics.RecordUnmatched(ctx, channel)
}

func (s *Session) run(conn *websocket.Conn) {
	for {
		err := s.serve(conn)
		if s.ctx.Err() != nil {
			return
		}
		replay := s.detach(conn, err)
		s.emit(DisconnectedEvent{Err: err, Replay: subscriptionKeys(replay)})

		if s.opts.DisableReconnect {
			s.terminate(err, replay)
			return
		}
		next, attempts, dialErr := s.redial()
		if dialErr != nil {
			if s.ctx.Err() != nil {
				return
			}
			s.terminate(dialErr, replay)
			return
		}
		conn = next
		s.attach(conn)
		s.resubscribe(replay, attempts)
	}
}

func (s *Session) serve(conn *websocket.Conn) error {
	connCtx, cancel := context.WithCancel(s.ctx)
	defer cancel()

	var wg conc.WaitGroup
	wg.Go(func() { s.pingLoop(connCtx, conn) })
	err := s.readLoop(connCtx, conn)
	cancel()
	wg.Wait()
	return err
}

func (s *Session) detach(conn *websocket.Conn, cause error) []Subscription {
	s.mu.Lock()
	if s.conn == conn {
		s.conn = nil
	}
	connID := s.connID
	replay := s.registry.replaySet()
	s.registry.clear()
	s.books = make(map[string]*book.Book)
	s.mu.Unlock()

	_ = conn.CloseNow()
	s.logger.Error("websocket disconnected",
		observability.F("conn_id", connID),
		observability.F("replay", len(replay)),
		observability.F("error", cause))
	return replay
}

func (s *Session) terminate(cause error, replay []Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	s.recorded = replay
	s.termErr = errs.New(venue, errs.CodeNetwork,
		errs.WithEndpoint(s.opts.URL),
		errs.WithMessage("session terminated"),
		errs.WithCause(cause))
	close(s.done)
}

func (s *Session) redial() (*websocket.Conn, int, error) {
	policy := s.opts.Backoff
	policy.Reset()
	var lastErr error
	attempt := 0
	for attempt < s.opts.ReconnectAttempts {
		wait := policy.NextBackOff()
		if wait == backoff.Stop {
			break
		}
		attempt++
		timer := time.NewTimer(wait)
		select {
		case <-s.ctx.Done():
			timer.Stop()
			return nil, attempt, s.ctx.Err()
		case <-timer.C:
		}
		conn, err := s.dial(s.ctx)
		if err == nil {
			s.metrics.RecordReconnect(s.ctx, telemetry.ResultSuccess)
			return conn, attempt, nil
		}
		lastErr = err
		s.metrics.RecordReconnect(s.ctx, telemetry.ResultError)
		s.logger.Error("websocket redial failed", observability.F("attempt", attempt), observability.F("error", err))
	}
	if lastErr == nil {
		lastErr = errors.New("reconnect attempts exhausted")
	}
	return nil, attempt, fmt.Errorf("redial after %d attempts: %w", attempt, lastErr)
}

// replay resubscribes subs on the current connection, one request per entry.
func (s *Session) replay(subs []Subscription) int {
	replayed := 0
	for _, sub := range subs {
		token, err := s.token(s.ctx, sub.Channel)
		if err != nil {
			s.logger.Error("replay token", observability.F("channel", sub.Channel), observability.F("error", err))
			continue
		}
		reqID := s.nextReqID()
		s.mu.Lock()
		e := s.registry.put(sub.Key, reqID, sub.Params)
		e.carry = true
		s.mu.Unlock()
		s.metrics.RecordTransition(s.ctx, sub.Channel, StatusRequested.String())

		frame := request{Method: "subscribe", Params: subscribeFrame(sub.Params, token), ReqID: reqID}
		if err := s.send(s.ctx, frame, true); err != nil {
			s.logger.Error("replay subscribe", observability.F("channel", sub.Channel), observability.F("symbol", sub.Symbol), observability.F("error", err))
			continue
		}
		replayed++
	}
	return replayed
}

func subscriptionKeys(subs []Subscription) []Key {
	keys := make([]Key, len(subs))
	for i, sub := range subs {
		keys[i] = sub.Key
	}
	return keys
}

func (s *Session) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(s.opts.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.send(ctx, request{Method: "ping", ReqID: s.nextReqID()}, false); err != nil {
				if ctx.Err() == nil {
					s.logger.Error("websocket ping failed", observability.F("error", err))
					_ = conn.CloseNow()
				}
				return
			}
		}
	}
}

func (s *Session) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return fmt.Errorf("read websocket: %w", err)
		}
		msg, err := Decode(data)
		if err != nil {
			s.metrics.RecordFrame(ctx, "invalid")
			s.logger.Error("decode websocket frame", observability.F("error", err))
			continue
		}
		s.handle(ctx, msg)
	}
}
