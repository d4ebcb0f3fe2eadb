// Package auth implements request nonces and Kraken request signatures.
package auth

import (
	"sync/atomic"
	"time"
)

// Source issues nonces for signed requests. Implementations must be safe for concurrent use
// and return strictly increasing values.
type Source interface {
	Next() uint64
}

// ClockNonce derives nonces from wall-clock milliseconds, bumping past the last issued value
// when the clock stalls or steps backwards.
type ClockNonce struct {
	now  func() time.Time
	last atomic.Uint64
}

// NewClockNonce returns a millisecond nonce source. A nil clock uses time.Now.
func NewClockNonce(now func() time.Time) *ClockNonce {
	if now == nil {
		now = time.Now
	}
	return &ClockNonce{now: now}
}

// Next returns max(now_ms, last+1) and records it atomically.
func (n *ClockNonce) Next() uint64 {
	for {
		last := n.last.Load()
		next := uint64(n.now().UnixMilli())
		if next <= last {
			next = last + 1
		}
		if n.last.CompareAndSwap(last, next) {
			return next
		}
	}
}

// SequenceNonce counts up from a fixed start. Useful for reproducible signatures in tests.
type SequenceNonce struct {
	v atomic.Uint64
}

// NewSequenceNonce returns a source whose first value is start.
func NewSequenceNonce(start uint64) *SequenceNonce {
	s := new(SequenceNonce)
	s.v.Store(start - 1)
	return s
}

func (s *SequenceNonce) Next() uint64 {
	return s.v.Add(1)
}
