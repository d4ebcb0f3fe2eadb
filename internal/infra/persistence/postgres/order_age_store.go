package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coachpo/krakenbridge/internal/infra/adapters/kraken/ratelimit"
)

// OrderAgeStore persists order placement times so amend and cancel penalties survive restarts.
// It satisfies ratelimit.OrderAges.
type OrderAgeStore struct {
	pool *pgxpool.Pool
	ttl  time.Duration
	now  func() time.Time
}

var _ ratelimit.OrderAges = (*OrderAgeStore)(nil)

// NewOrderAgeStore constructs an OrderAgeStore. Non-positive ttl defaults to ratelimit.OrderTTL.
func NewOrderAgeStore(pool *pgxpool.Pool, ttl time.Duration, now func() time.Time) *OrderAgeStore {
	if ttl <= 0 {
		ttl = ratelimit.OrderTTL
	}
	if now == nil {
		now = time.Now
	}
	return &OrderAgeStore{pool: pool, ttl: ttl, now: now}
}

const (
	placementUpsertSQL = `
INSERT INTO order_placements (ref, placed_at, recorded_at)
VALUES (@ref, @placed_at, NOW())
ON CONFLICT (ref) DO UPDATE SET
    placed_at = EXCLUDED.placed_at,
    recorded_at = EXCLUDED.recorded_at;
`

	placementSelectSQL = `
SELECT placed_at
FROM order_placements
WHERE ref = $1 AND placed_at > $2;
`

	placementPruneSQL = `
DELETE FROM order_placements
WHERE placed_at <= $1;
`
)

// RecordPlacement stores or replaces the placement time for ref.
func (s *OrderAgeStore) RecordPlacement(ctx context.Context, ref string, placedAt time.Time) error {
	if s.pool == nil {
		return fmt.Errorf("order age store: nil pool")
	}
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil
	}
	_, err := s.pool.Exec(ctx, placementUpsertSQL, pgx.NamedArgs{
		"ref":       ref,
		"placed_at": placedAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("order age store: record %s: %w", ref, err)
	}
	return nil
}

// PlacedAt returns the placement time for ref when it is younger than the store ttl.
func (s *OrderAgeStore) PlacedAt(ctx context.Context, ref string) (time.Time, bool, error) {
	if s.pool == nil {
		return time.Time{}, false, fmt.Errorf("order age store: nil pool")
	}
	var placed time.Time
	err := s.pool.QueryRow(ctx, placementSelectSQL, ref, s.cutoff()).Scan(&placed)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("order age store: lookup %s: %w", ref, err)
	}
	return placed, true, nil
}

// Prune deletes placements older than the ttl and reports how many were removed.
func (s *OrderAgeStore) Prune(ctx context.Context) (int64, error) {
	if s.pool == nil {
		return 0, fmt.Errorf("order age store: nil pool")
	}
	tag, err := s.pool.Exec(ctx, placementPruneSQL, s.cutoff())
	if err != nil {
		return 0, fmt.Errorf("order age store: prune: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *OrderAgeStore) cutoff() time.Time {
	return s.now().Add(-s.ttl).UTC()
}
