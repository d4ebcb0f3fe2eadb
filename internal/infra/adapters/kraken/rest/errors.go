package rest

import (
	"strings"

	"github.com/coachpo/krakenbridge/errs"
)

// APIError is one venue error string split into its parts, e.g. "EOrder:Insufficient funds".
type APIError struct {
	Raw      string
	Severity string
	Category string
	Message  string
}

// Warning reports whether the venue marked the entry as a warning rather than an error.
func (e APIError) Warning() bool { return e.Severity == "W" }

// ParseAPIError splits "<E|W><Category>:<Message>". Unrecognised shapes keep Raw as Message.
func ParseAPIError(raw string) APIError {
	out := APIError{Raw: raw, Message: raw}
	head, msg, ok := strings.Cut(raw, ":")
	if !ok || len(head) < 2 {
		return out
	}
	switch head[0] {
	case 'E', 'W':
		out.Severity = head[:1]
		out.Category = head[1:]
		out.Message = msg
	}
	return out
}

var canonicalPrefixes = []struct {
	prefix string
	code   errs.CanonicalCode
}{
	{"EAPI:Invalid nonce", errs.CanonicalInvalidNonce},
	{"EGeneral:Invalid nonce", errs.CanonicalInvalidNonce},
	{"EAPI:Invalid key", errs.CanonicalInvalidKey},
	{"EAPI:Invalid signature", errs.CanonicalInvalidSignature},
	{"EGeneral:Permission denied", errs.CanonicalPermissionDenied},
	{"EAPI:Feature disabled", errs.CanonicalPermissionDenied},
	{"EAPI:Rate limit exceeded", errs.CanonicalRateLimited},
	{"EOrder:Rate limit exceeded", errs.CanonicalRateLimited},
	{"EGeneral:Too many requests", errs.CanonicalRateLimited},
	{"EGeneral:Temporary lockout", errs.CanonicalLockout},
	{"EService:Unavailable", errs.CanonicalUnavailable},
	{"EService:Busy", errs.CanonicalUnavailable},
	{"EService:Deadline elapsed", errs.CanonicalUnavailable},
	{"EGeneral:Internal error", errs.CanonicalUnavailable},
	{"ETrade:Locked", errs.CanonicalUnavailable},
	{"EOrder:Insufficient funds", errs.CanonicalInsufficientBalance},
	{"EFunding:Insufficient funds", errs.CanonicalInsufficientBalance},
	{"EQuery:Unknown asset pair", errs.CanonicalInvalidSymbol},
	{"EQuery:Unknown asset", errs.CanonicalInvalidSymbol},
	{"EGeneral:Invalid arguments", errs.CanonicalInvalidArguments},
	{"EAPI:Bad request", errs.CanonicalInvalidArguments},
	{"EGeneral:Unknown Method", errs.CanonicalInvalidArguments},
	{"EOrder:Unknown order", errs.CanonicalOrderNotFound},
}

// Canonicalize maps a venue error string onto a canonical code. Prefixes match
// case-insensitively.
func Canonicalize(raw string) errs.CanonicalCode {
	for _, entry := range canonicalPrefixes {
		if len(raw) >= len(entry.prefix) && strings.EqualFold(raw[:len(entry.prefix)], entry.prefix) {
			return entry.code
		}
	}
	return errs.CanonicalUnknown
}
