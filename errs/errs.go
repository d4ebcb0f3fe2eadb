// Package errs provides structured error types and helpers for krakenbridge.
package errs

import (
	"errors"
	"sort"
	"strconv"
	"strings"
)

// Code identifies the failure class of an error.
type Code string

const (
	// CodeNetwork indicates a connection-level transport failure.
	CodeNetwork Code = "network"
	// CodeHTTP indicates a non-success HTTP status from the venue.
	CodeHTTP Code = "http"
	// CodeAPI indicates the venue reported one or more business errors in the response envelope.
	CodeAPI Code = "api"
	// CodeSubscription indicates the venue rejected a streaming subscription request.
	CodeSubscription Code = "subscription"
	// CodeIntegrity indicates locally maintained state diverged from the venue checksum.
	CodeIntegrity Code = "integrity"
	// CodeInvalid indicates invalid input provided by the caller.
	CodeInvalid Code = "invalid_request"
	// CodeAuth indicates credentials were unavailable or malformed.
	CodeAuth Code = "auth"
)

// CanonicalCode captures venue-agnostic categories for API errors.
type CanonicalCode string

const (
	CanonicalUnknown             CanonicalCode = "unknown"
	CanonicalInvalidNonce        CanonicalCode = "invalid_nonce"
	CanonicalInvalidKey          CanonicalCode = "invalid_key"
	CanonicalInvalidSignature    CanonicalCode = "invalid_signature"
	CanonicalPermissionDenied    CanonicalCode = "permission_denied"
	CanonicalRateLimited         CanonicalCode = "rate_limited"
	CanonicalLockout             CanonicalCode = "lockout"
	CanonicalUnavailable         CanonicalCode = "unavailable"
	CanonicalInsufficientBalance CanonicalCode = "insufficient_balance"
	CanonicalInvalidSymbol       CanonicalCode = "invalid_symbol"
	CanonicalInvalidArguments    CanonicalCode = "invalid_arguments"
	CanonicalOrderNotFound       CanonicalCode = "order_not_found"
)

// E captures structured error information produced across the client.
type E struct {
	Venue         string
	Code          Code
	HTTP          int
	Endpoint      string
	APIErrors     []string
	Message       string
	Canonical     CanonicalCode
	VenueMetadata map[string]string

	cause error
}

// Option configures an error envelope.
type Option func(*E)

// New constructs an error envelope for the venue and error code.
func New(venue string, code Code, opts ...Option) *E {
	e := &E{
		Venue:     strings.TrimSpace(venue),
		Code:      code,
		Canonical: CanonicalUnknown,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// WithMessage attaches a human-readable message to the error.
func WithMessage(message string) Option {
	trimmed := strings.TrimSpace(message)
	return func(e *E) {
		e.Message = trimmed
	}
}

// WithHTTP records the associated HTTP status code.
func WithHTTP(status int) Option {
	return func(e *E) {
		e.HTTP = status
	}
}

// WithEndpoint records the venue endpoint path that produced the error.
func WithEndpoint(path string) Option {
	trimmed := strings.TrimSpace(path)
	return func(e *E) {
		e.Endpoint = trimmed
	}
}

// WithAPIErrors records the venue's literal error strings. They are kept verbatim.
func WithAPIErrors(list []string) Option {
	return func(e *E) {
		if len(list) == 0 {
			return
		}
		e.APIErrors = append([]string(nil), list...)
	}
}

// WithCause sets the underlying cause error.
func WithCause(err error) Option {
	return func(e *E) {
		e.cause = err
	}
}

// WithCanonicalCode sets the canonical error code describing the failure category.
func WithCanonicalCode(code CanonicalCode) Option {
	trimmed := strings.TrimSpace(string(code))
	return func(e *E) {
		if trimmed == "" {
			e.Canonical = CanonicalUnknown
			return
		}
		e.Canonical = CanonicalCode(trimmed)
	}
}

// WithVenueField appends a single venue metadata key/value pair.
func WithVenueField(key, value string) Option {
	return func(e *E) {
		trimmedKey := strings.TrimSpace(key)
		if trimmedKey == "" {
			return
		}
		if e.VenueMetadata == nil {
			e.VenueMetadata = make(map[string]string, 1)
		}
		e.VenueMetadata[trimmedKey] = strings.TrimSpace(value)
	}
}

func (e *E) Error() string {
	if e == nil {
		return "<nil>"
	}
	var parts []string

	venue := e.Venue
	if venue == "" {
		venue = "unknown"
	}
	parts = append(parts, "venue="+venue)

	code := strings.TrimSpace(string(e.Code))
	if code == "" {
		code = "unknown"
	}
	parts = append(parts, "code="+code)

	if cc := strings.TrimSpace(string(e.Canonical)); cc != "" && cc != string(CanonicalUnknown) {
		parts = append(parts, "canonical="+cc)
	}
	if e.HTTP > 0 {
		parts = append(parts, "http="+strconv.Itoa(e.HTTP))
	}
	if e.Endpoint != "" {
		parts = append(parts, "endpoint="+e.Endpoint)
	}
	if e.Message != "" {
		parts = append(parts, "message="+strconv.Quote(e.Message))
	}
	if len(e.APIErrors) > 0 {
		quoted := make([]string, 0, len(e.APIErrors))
		for _, item := range e.APIErrors {
			quoted = append(quoted, strconv.Quote(item))
		}
		parts = append(parts, "api_errors=["+strings.Join(quoted, ",")+"]")
	}
	if len(e.VenueMetadata) > 0 {
		keys := make([]string, 0, len(e.VenueMetadata))
		for k := range e.VenueMetadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		pairs := make([]string, 0, len(keys))
		for _, k := range keys {
			pairs = append(pairs, k+"="+strconv.Quote(e.VenueMetadata[k]))
		}
		parts = append(parts, "meta="+strings.Join(pairs, ","))
	}
	if e.cause != nil {
		parts = append(parts, "cause="+strconv.Quote(e.cause.Error()))
	}

	return strings.Join(parts, " ")
}

func (e *E) Unwrap() error { return e.cause }

// Is reports whether err carries an *E with the provided code anywhere in its chain.
func Is(err error, code Code) bool {
	var target *E
	if !errors.As(err, &target) {
		return false
	}
	return target.Code == code
}

// HasCanonical reports whether err carries an *E classified with the canonical code.
func HasCanonical(err error, code CanonicalCode) bool {
	var target *E
	if !errors.As(err, &target) {
		return false
	}
	return target.Canonical == code
}
