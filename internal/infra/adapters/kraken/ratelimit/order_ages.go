package ratelimit

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// OrderTTL bounds how long placement times matter: penalties reach zero after 300s.
const OrderTTL = 300 * time.Second

// OrderAges records when orders were placed so amend and cancel costs can be priced.
type OrderAges interface {
	RecordPlacement(ctx context.Context, ref string, placedAt time.Time) error
	PlacedAt(ctx context.Context, ref string) (time.Time, bool, error)
}

// UserRefKey is the OrderAges key for a numeric user reference.
func UserRefKey(userRef int64) string {
	return "userref:" + strconv.FormatInt(userRef, 10)
}

// MemoryOrderAges is an in-process TTL cache of placement times.
type MemoryOrderAges struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]time.Time
	inserts int
}

// NewMemoryOrderAges returns a cache dropping entries older than ttl. A nil clock uses time.Now.
func NewMemoryOrderAges(ttl time.Duration, now func() time.Time) *MemoryOrderAges {
	if ttl <= 0 {
		ttl = OrderTTL
	}
	if now == nil {
		now = time.Now
	}
	return &MemoryOrderAges{ttl: ttl, now: now, entries: make(map[string]time.Time)}
}

func (m *MemoryOrderAges) RecordPlacement(_ context.Context, ref string, placedAt time.Time) error {
	if ref == "" {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[ref] = placedAt
	m.inserts++
	if m.inserts%256 == 0 {
		m.sweepLocked()
	}
	return nil
}

func (m *MemoryOrderAges) PlacedAt(_ context.Context, ref string) (time.Time, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	placed, ok := m.entries[ref]
	if !ok {
		return time.Time{}, false, nil
	}
	if m.now().Sub(placed) >= m.ttl {
		delete(m.entries, ref)
		return time.Time{}, false, nil
	}
	return placed, true, nil
}

// Len reports the number of live entries.
func (m *MemoryOrderAges) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweepLocked()
	return len(m.entries)
}

func (m *MemoryOrderAges) sweepLocked() {
	now := m.now()
	for ref, placed := range m.entries {
		if now.Sub(placed) >= m.ttl {
			delete(m.entries, ref)
		}
	}
}
