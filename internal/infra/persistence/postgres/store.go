package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coachpo/krakenbridge/internal/infra/persistence"
)

// Store exposes the PostgreSQL-backed repositories used by the client.
type Store struct {
	*persistence.Store
	orderAges *OrderAgeStore
	integrity *IntegrityLog
}

// New constructs a PostgreSQL persistence store.
func New(pool *pgxpool.Pool) *Store {
	return &Store{
		Store:     persistence.NewStore(pool),
		orderAges: NewOrderAgeStore(pool, 0, nil),
		integrity: NewIntegrityLog(pool),
	}
}

// PoolOptions sizes the pgx pool. Zero values keep the pgx defaults.
type PoolOptions struct {
	DSN               string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

// Open dials the database, verifies connectivity and registers pool gauges.
func Open(ctx context.Context, opts PoolOptions) (*Store, error) {
	if strings.TrimSpace(opts.DSN) == "" {
		return nil, fmt.Errorf("postgres: dsn required")
	}
	cfg, err := pgxpool.ParseConfig(opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse dsn: %w", err)
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}
	if opts.MinConns > 0 {
		cfg.MinConns = opts.MinConns
	}
	if opts.MaxConnLifetime > 0 {
		cfg.MaxConnLifetime = opts.MaxConnLifetime
	}
	if opts.MaxConnIdleTime > 0 {
		cfg.MaxConnIdleTime = opts.MaxConnIdleTime
	}
	if opts.HealthCheckPeriod > 0 {
		cfg.HealthCheckPeriod = opts.HealthCheckPeriod
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	ObservePoolMetrics(pool, "primary")
	return New(pool), nil
}

// OrderAges returns the placement-time repository.
func (s *Store) OrderAges() *OrderAgeStore { return s.orderAges }

// Integrity returns the book integrity event log.
func (s *Store) Integrity() *IntegrityLog { return s.integrity }
