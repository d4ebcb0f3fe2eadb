package ws

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/coachpo/krakenbridge/internal/observability"
	"github.com/coachpo/krakenbridge/internal/telemetry"
)

const (
	// PublicURL serves market data channels.
	PublicURL = "wss://ws.kraken.com/v2"
	// PrivateURL serves channels that need a token.
	PrivateURL = "wss://ws-auth.kraken.com/v2"

	defaultQueueSize        = 1024
	defaultPingInterval     = 30 * time.Second
	defaultWriteTimeout     = 5 * time.Second
	defaultControlInterval  = 50 * time.Millisecond
	defaultReconnectTries   = 10
	defaultMaxReconnectWait = 20 * time.Second
	readLimit               = 4 << 20
)

// TokenSource supplies the token private channels subscribe with.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// TokenFunc adapts a function to TokenSource.
type TokenFunc func(ctx context.Context) (string, error)

func (f TokenFunc) Token(ctx context.Context) (string, error) { return f(ctx) }

// Options configures a Session.
type Options struct {
	URL string
	// QueueSize bounds the consumer queue; the read loop blocks when it is full.
	QueueSize       int
	PingInterval    time.Duration
	WriteTimeout    time.Duration
	ControlInterval time.Duration

	// DisableReconnect terminates the session on the first connection loss.
	DisableReconnect bool
	// ReconnectAttempts caps redials per connection loss.
	ReconnectAttempts int
	// Backoff spaces redials. Nil uses an exponential policy capped at 20s.
	Backoff backoff.BackOff

	Tokens  TokenSource
	Logger  observability.Logger
	Metrics *telemetry.SessionMetrics
}

func (o Options) withDefaults() Options {
	if o.URL == "" {
		o.URL = PublicURL
	}
	if o.QueueSize <= 0 {
		o.QueueSize = defaultQueueSize
	}
	if o.PingInterval <= 0 {
		o.PingInterval = defaultPingInterval
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = defaultWriteTimeout
	}
	if o.ControlInterval < 0 {
		o.ControlInterval = 0
	} else if o.ControlInterval == 0 {
		o.ControlInterval = defaultControlInterval
	}
	if o.ReconnectAttempts <= 0 {
		o.ReconnectAttempts = defaultReconnectTries
	}
	if o.Backoff == nil {
		exp := backoff.NewExponentialBackOff()
		exp.MaxInterval = defaultMaxReconnectWait
		o.Backoff = exp
	}
	o.Logger = observability.Or(o.Logger)
	return o
}
