package rest

import (
	"bytes"
	"fmt"
	"io"

	json "github.com/goccy/go-json"
	"github.com/tidwall/gjson"

	"github.com/coachpo/krakenbridge/errs"
)

// Envelope is the venue's generic response wrapper. Status and Symbol are kept raw
// because the venue sends them as either strings or numbers.
type Envelope struct {
	Error  []string        `json:"error"`
	Result json.RawMessage `json:"result"`
	Status json.RawMessage `json:"status,omitempty"`
	Symbol json.RawMessage `json:"symbol,omitempty"`
}

// StatusText renders the optional status tag, or "" when absent.
func (e Envelope) StatusText() string { return rawText(e.Status) }

// SymbolText renders the optional venue symbol tag, or "" when absent.
func (e Envelope) SymbolText() string { return rawText(e.Symbol) }

func rawText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	return gjson.ParseBytes(raw).String()
}

// HasResult reports whether a non-null result was present.
func (e Envelope) HasResult() bool {
	trimmed := bytes.TrimSpace(e.Result)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

// DecodeEnvelope reads an envelope from r and classifies it. A non-empty error list wins over
// any result. On success the result is decoded into out when out is non-nil.
func DecodeEnvelope(r io.Reader, endpoint string, out any) error {
	var env Envelope
	if err := json.NewDecoder(r).Decode(&env); err != nil {
		return errs.New(venue, errs.CodeNetwork,
			errs.WithEndpoint(endpoint),
			errs.WithMessage("malformed response body"),
			errs.WithCause(err))
	}
	return env.Classify(endpoint, out)
}

// Classify turns a decoded envelope into either a decoded result or an API error.
func (e Envelope) Classify(endpoint string, out any) error {
	if len(e.Error) > 0 {
		opts := []errs.Option{
			errs.WithEndpoint(endpoint),
			errs.WithAPIErrors(e.Error),
			errs.WithCanonicalCode(Canonicalize(e.Error[0])),
		}
		if status := e.StatusText(); status != "" {
			opts = append(opts, errs.WithVenueField("status", status))
		}
		if symbol := e.SymbolText(); symbol != "" {
			opts = append(opts, errs.WithVenueField("symbol", symbol))
		}
		return errs.New(venue, errs.CodeAPI, opts...)
	}
	if out == nil || !e.HasResult() {
		return nil
	}
	if err := json.Unmarshal(e.Result, out); err != nil {
		return errs.New(venue, errs.CodeNetwork,
			errs.WithEndpoint(endpoint),
			errs.WithMessage(fmt.Sprintf("decode result into %T", out)),
			errs.WithCause(err))
	}
	return nil
}
