package ws

import (
	"sort"

	"github.com/coachpo/krakenbridge/internal/infra/adapters/kraken/book"
)

// Status is a subscription's lifecycle state.
type Status int

const (
	StatusRequested Status = iota + 1
	StatusAcknowledged
	StatusActive
	StatusFailed
	StatusUnsubscribed
)

func (s Status) String() string {
	switch s {
	case StatusRequested:
		return "requested"
	case StatusAcknowledged:
		return "acknowledged"
	case StatusActive:
		return "active"
	case StatusFailed:
		return "failed"
	case StatusUnsubscribed:
		return "unsubscribed"
	default:
		return "unknown"
	}
}

// Live reports whether data for the subscription is routed to the consumer.
func (s Status) Live() bool { return s == StatusAcknowledged || s == StatusActive }

// Key identifies a subscription. Symbol is empty for channels without symbols.
type Key struct {
	Channel string
	Symbol  string
}

// Subscribe describes a subscription request. One registry entry is created per symbol.
type Subscribe struct {
	Channel string
	Symbols []string
	// Depth applies to book and level3.
	Depth    int
	Snapshot *bool
	// Interval is the ohlc candle width in minutes.
	Interval     int
	EventTrigger string
	SnapOrders   *bool
	SnapTrades   *bool
	// Precision pins book checksum precision; otherwise instrument data or inference is used.
	Precision *book.Precision
}

func (s Subscribe) forSymbol(symbol string) Subscribe {
	out := s
	if symbol == "" {
		out.Symbols = nil
	} else {
		out.Symbols = []string{symbol}
	}
	return out
}

// Subscription is a read-only copy of a registry entry.
type Subscription struct {
	Key
	ReqID  int64
	Status Status
	Params Subscribe
}

type entry struct {
	sub Subscription
	// resync is set while a desynced book waits for its fresh subscription ack.
	resync bool
	// unsubReqID is the resync unsubscribe whose ack must not remove the entry.
	unsubReqID int64
	// carry marks entries restored by a reconnect or resync; they survive another
	// reconnect before their ack arrives.
	carry bool
}

type registry struct {
	entries map[Key]*entry
}

func newRegistry() *registry {
	return &registry{entries: make(map[Key]*entry)}
}

func (r *registry) get(key Key) *entry { return r.entries[key] }

func (r *registry) put(key Key, reqID int64, params Subscribe) *entry {
	e := &entry{sub: Subscription{Key: key, ReqID: reqID, Status: StatusRequested, Params: params}}
	r.entries[key] = e
	return e
}

func (r *registry) remove(key Key) { delete(r.entries, key) }

func (r *registry) byReqID(reqID int64) []*entry {
	var out []*entry
	for _, e := range r.entries {
		if e.sub.ReqID == reqID {
			out = append(out, e)
		}
	}
	return out
}

// replaySet returns entries worth restoring after a reconnect: live ones plus carried entries
// still waiting on their ack.
func (r *registry) replaySet() []Subscription {
	var out []Subscription
	for _, e := range r.entries {
		if e.sub.Status.Live() || e.carry {
			out = append(out, e.sub)
		}
	}
	sortSubscriptions(out)
	return out
}

func (r *registry) snapshot() []Subscription {
	out := make([]Subscription, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.sub)
	}
	sortSubscriptions(out)
	return out
}

func (r *registry) clear() { r.entries = make(map[Key]*entry) }

func sortSubscriptions(subs []Subscription) {
	sort.Slice(subs, func(i, j int) bool {
		if subs[i].Channel != subs[j].Channel {
			return subs[i].Channel < subs[j].Channel
		}
		return subs[i].Symbol < subs[j].Symbol
	})
}
