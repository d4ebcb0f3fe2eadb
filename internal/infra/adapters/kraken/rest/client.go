// Package rest implements the authenticated, rate-limited Kraken REST dispatcher.
package rest

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/coachpo/krakenbridge/errs"
	"github.com/coachpo/krakenbridge/internal/infra/adapters/kraken/auth"
	"github.com/coachpo/krakenbridge/internal/infra/adapters/kraken/ratelimit"
	"github.com/coachpo/krakenbridge/internal/infra/secrets"
	"github.com/coachpo/krakenbridge/internal/observability"
	"github.com/coachpo/krakenbridge/internal/telemetry"
)

const (
	venue = "kraken"

	// DefaultBaseURL is the production REST root.
	DefaultBaseURL = "https://api.kraken.com"
	// DefaultTimeout bounds a single HTTP round trip.
	DefaultTimeout = 10 * time.Second

	userAgent     = "krakenbridge/0.3"
	errorBodyCap  = 4 << 10
	formMediaType = "application/x-www-form-urlencoded"
)

// Params is implemented by every request type. Values returns the endpoint parameters
// without the nonce.
type Params interface {
	Values() (url.Values, error)
}

// admissionHinter lets request types refine the admission request (pair, order ref, batch size).
type admissionHinter interface {
	admissionHint(req *ratelimit.Request)
}

// Options configures a Client.
type Options struct {
	BaseURL     string
	HTTPClient  *http.Client
	Timeout     time.Duration
	Credentials secrets.Provider
	Nonce       auth.Source
	// Limits overrides the admission policy. When nil one is built from Tier and OrderAges.
	Limits    *ratelimit.Policy
	Tier      ratelimit.Tier
	OrderAges ratelimit.OrderAges
	Logger    observability.Logger
	Metrics   *telemetry.RESTMetrics
	Now       func() time.Time
}

func (o Options) withDefaults() Options {
	o.BaseURL = strings.TrimRight(strings.TrimSpace(o.BaseURL), "/")
	if o.BaseURL == "" {
		o.BaseURL = DefaultBaseURL
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{Timeout: o.Timeout}
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Nonce == nil {
		o.Nonce = auth.NewClockNonce(o.Now)
	}
	o.Logger = observability.Or(o.Logger)
	if o.Limits == nil {
		o.Limits = ratelimit.NewPolicy(ratelimit.PolicyConfig{
			Tier:      o.Tier,
			OrderAges: o.OrderAges,
			Logger:    o.Logger,
		})
	}
	return o
}

// Client dispatches public and private calls. One Client owns one nonce source and one
// admission policy; both are shared by every concurrent call on it.
type Client struct {
	baseURL string
	http    *http.Client
	creds   secrets.Provider
	nonce   auth.Source
	limits  *ratelimit.Policy
	logger  observability.Logger
	metrics *telemetry.RESTMetrics
	now     func() time.Time
}

// NewClient constructs a dispatcher. Credentials may be nil for public-only use.
func NewClient(opts Options) *Client {
	opts = opts.withDefaults()
	return &Client{
		baseURL: opts.BaseURL,
		http:    opts.HTTPClient,
		creds:   opts.Credentials,
		nonce:   opts.Nonce,
		limits:  opts.Limits,
		logger:  opts.Logger,
		metrics: opts.Metrics,
		now:     opts.Now,
	}
}

// Limits exposes the admission policy.
func (c *Client) Limits() *ratelimit.Policy { return c.limits }

// Do admits, signs when required, sends and classifies one call. The result is decoded into
// out when out is non-nil. No retries are attempted; callers that retry issue a new Do, which
// draws a fresh nonce and signature.
func (c *Client) Do(ctx context.Context, ep Endpoint, params Params, out any) error {
	admission := ratelimit.Request{Category: ep.Category}
	if hinter, ok := params.(admissionHinter); ok {
		hinter.admissionHint(&admission)
	}

	waited, err := c.limits.Admit(ctx, admission)
	c.metrics.RecordAdmissionWait(ctx, ep.Category.String(), waited)
	if err != nil {
		return errs.New(venue, errs.CodeNetwork,
			errs.WithEndpoint(ep.Path),
			errs.WithMessage("admission wait abandoned"),
			errs.WithCause(err))
	}
	if waited > 0 {
		c.logger.Debug("admission delayed request",
			observability.F("endpoint", ep.Path),
			observability.F("waited", waited.String()))
	}

	values := url.Values{}
	if params != nil {
		v, err := params.Values()
		if err != nil {
			return errs.New(venue, errs.CodeInvalid, errs.WithEndpoint(ep.Path), errs.WithCause(err))
		}
		if v != nil {
			values = v
		}
	}

	start := time.Now()
	var req *http.Request
	if ep.Private() {
		req, err = c.privateRequest(ctx, ep, values)
	} else {
		req, err = c.publicRequest(ctx, ep, values)
	}
	if err != nil {
		c.metrics.RecordRequest(ctx, ep.Path, ep.Category.String(), errorType(err), time.Since(start))
		return err
	}

	err = c.send(req, ep, out)
	c.metrics.RecordRequest(ctx, ep.Path, ep.Category.String(), errorType(err), time.Since(start))
	if err != nil {
		c.logger.Debug("request failed", observability.F("endpoint", ep.Path), observability.F("error", err))
	}
	return err
}

func (c *Client) publicRequest(ctx context.Context, ep Endpoint, values url.Values) (*http.Request, error) {
	target := c.baseURL + ep.Path
	if len(values) > 0 {
		target += "?" + values.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, errs.New(venue, errs.CodeInvalid, errs.WithEndpoint(ep.Path), errs.WithCause(err))
	}
	req.Header.Set("User-Agent", userAgent)
	return req, nil
}

func (c *Client) privateRequest(ctx context.Context, ep Endpoint, values url.Values) (*http.Request, error) {
	if c.creds == nil {
		return nil, errs.New(venue, errs.CodeAuth, errs.WithEndpoint(ep.Path), errs.WithMessage("credentials not configured"))
	}
	creds, err := c.creds.Credentials(ctx)
	if err != nil {
		return nil, errs.New(venue, errs.CodeAuth, errs.WithEndpoint(ep.Path), errs.WithCause(err))
	}
	defer creds.Wipe()

	nonce := c.nonce.Next()
	values.Set("nonce", strconv.FormatUint(nonce, 10))
	body := values.Encode()

	signature, err := auth.Sign(creds.Secret, ep.Path, nonce, []byte(body))
	if err != nil {
		return nil, errs.New(venue, errs.CodeAuth, errs.WithEndpoint(ep.Path), errs.WithCause(err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+ep.Path, strings.NewReader(body))
	if err != nil {
		return nil, errs.New(venue, errs.CodeInvalid, errs.WithEndpoint(ep.Path), errs.WithCause(err))
	}
	req.Header.Set("API-Key", creds.Key)
	req.Header.Set("API-Sign", signature)
	req.Header.Set("Content-Type", formMediaType+"; charset=utf-8")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	return req, nil
}

func (c *Client) send(req *http.Request, ep Endpoint, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return errs.New(venue, errs.CodeNetwork, errs.WithEndpoint(ep.Path), errs.WithCause(err))
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyCap))
		return errs.New(venue, errs.CodeHTTP,
			errs.WithEndpoint(ep.Path),
			errs.WithHTTP(resp.StatusCode),
			errs.WithMessage(strings.TrimSpace(string(body))))
	}
	return DecodeEnvelope(resp.Body, ep.Path, out)
}

func errorType(err error) string {
	if err == nil {
		return ""
	}
	var e *errs.E
	if errors.As(err, &e) {
		return string(e.Code)
	}
	return "unknown"
}
