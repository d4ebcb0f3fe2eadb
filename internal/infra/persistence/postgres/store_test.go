package postgres

import (
	"context"
	"testing"
	"time"
)

func TestOrderAgeStoreNilPool(t *testing.T) {
	store := NewOrderAgeStore(nil, 0, nil)
	ctx := context.Background()
	if err := store.RecordPlacement(ctx, "OABC12-DEF34-GHI56J", time.Now()); err == nil {
		t.Fatalf("expected error when pool nil")
	}
	if _, _, err := store.PlacedAt(ctx, "OABC12-DEF34-GHI56J"); err == nil {
		t.Fatalf("expected error when pool nil")
	}
	if _, err := store.Prune(ctx); err == nil {
		t.Fatalf("expected error when pool nil")
	}
}

func TestOrderAgeStoreCutoffUsesTTL(t *testing.T) {
	now := time.Date(2024, 5, 19, 16, 30, 0, 0, time.UTC)
	store := NewOrderAgeStore(nil, 0, func() time.Time { return now })
	if got, want := store.cutoff(), now.Add(-300*time.Second); !got.Equal(want) {
		t.Fatalf("cutoff: got %s want %s", got, want)
	}
}

func TestIntegrityLogNilPool(t *testing.T) {
	log := NewIntegrityLog(nil)
	ctx := context.Background()
	if _, err := log.Record(ctx, IntegrityEvent{Symbol: "BTC/USD", Expected: 1, Computed: 2}); err == nil {
		t.Fatalf("expected error when pool nil")
	}
	if _, err := log.Recent(ctx, "BTC/USD", 10); err == nil {
		t.Fatalf("expected error when pool nil")
	}
}

func TestStoreExposesRepositories(t *testing.T) {
	store := New(nil)
	if store.OrderAges() == nil || store.Integrity() == nil {
		t.Fatalf("expected repositories to be constructed")
	}
	if store.Pool() != nil {
		t.Fatalf("expected nil pool")
	}
	store.Close()
}

func TestOpenRequiresDSN(t *testing.T) {
	if _, err := Open(context.Background(), PoolOptions{DSN: "  "}); err == nil {
		t.Fatalf("expected error for empty dsn")
	}
}
