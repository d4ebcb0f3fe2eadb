package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	defaultIntegrityLimit = 50
	maxIntegrityLimit     = 500
)

// IntegrityEvent is one recorded order book checksum mismatch.
type IntegrityEvent struct {
	ID         int64
	Venue      string
	Symbol     string
	Expected   uint32
	Computed   uint32
	OccurredAt time.Time
}

// IntegrityLog appends book desync events for later inspection.
type IntegrityLog struct {
	pool *pgxpool.Pool
}

// NewIntegrityLog constructs an IntegrityLog backed by the provided pool.
func NewIntegrityLog(pool *pgxpool.Pool) *IntegrityLog {
	return &IntegrityLog{pool: pool}
}

const (
	integrityInsertSQL = `
INSERT INTO book_integrity_events (venue, symbol, expected_checksum, computed_checksum, occurred_at)
VALUES ($1, $2, $3, $4, $5)
RETURNING id;
`

	integrityRecentSQL = `
SELECT id, venue, symbol, expected_checksum, computed_checksum, occurred_at
FROM book_integrity_events
WHERE symbol = $1
ORDER BY occurred_at DESC, id DESC
LIMIT $2;
`
)

// Record appends evt and returns its identifier.
func (l *IntegrityLog) Record(ctx context.Context, evt IntegrityEvent) (int64, error) {
	if l.pool == nil {
		return 0, fmt.Errorf("integrity log: nil pool")
	}
	symbol := strings.TrimSpace(evt.Symbol)
	if symbol == "" {
		return 0, fmt.Errorf("integrity log: symbol required")
	}
	venue := strings.TrimSpace(evt.Venue)
	if venue == "" {
		venue = "kraken"
	}
	occurred := evt.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now()
	}
	var id int64
	err := l.pool.QueryRow(ctx, integrityInsertSQL,
		venue, symbol, int64(evt.Expected), int64(evt.Computed), occurred.UTC()).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("integrity log: record %s: %w", symbol, err)
	}
	return id, nil
}

// Recent returns the newest events for symbol, newest first.
func (l *IntegrityLog) Recent(ctx context.Context, symbol string, limit int) ([]IntegrityEvent, error) {
	if l.pool == nil {
		return nil, fmt.Errorf("integrity log: nil pool")
	}
	if limit <= 0 {
		limit = defaultIntegrityLimit
	} else if limit > maxIntegrityLimit {
		limit = maxIntegrityLimit
	}
	rows, err := l.pool.Query(ctx, integrityRecentSQL, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("integrity log: recent: %w", err)
	}
	events, err := pgx.CollectRows(rows, scanIntegrityEvent)
	if err != nil {
		return nil, fmt.Errorf("integrity log: scan: %w", err)
	}
	return events, nil
}

func scanIntegrityEvent(row pgx.CollectableRow) (IntegrityEvent, error) {
	var (
		evt                IntegrityEvent
		expected, computed int64
	)
	if err := row.Scan(&evt.ID, &evt.Venue, &evt.Symbol, &expected, &computed, &evt.OccurredAt); err != nil {
		return IntegrityEvent{}, err
	}
	evt.Expected = uint32(expected)
	evt.Computed = uint32(computed)
	return evt, nil
}
