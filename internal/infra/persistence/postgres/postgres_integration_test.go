package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/coachpo/krakenbridge/internal/infra/persistence/migrations"
)

func startPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("postgres integration test skipped in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		Env:          map[string]string{"POSTGRES_PASSWORD": "secret", "POSTGRES_USER": "postgres", "POSTGRES_DB": "krakenbridge"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("postgres container unavailable: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)
	dsn := fmt.Sprintf("postgres://postgres:secret@%s:%s/krakenbridge?sslmode=disable", host, port.Port())

	// The listening port opens before postgres accepts queries; retry the migration briefly.
	require.Eventually(t, func() bool {
		return migrations.Apply(ctx, dsn, migrations.Embedded(), nil) == nil
	}, 30*time.Second, 500*time.Millisecond)

	store, err := Open(ctx, PoolOptions{DSN: dsn, MaxConns: 4})
	require.NoError(t, err)
	t.Cleanup(store.Close)
	return store.Pool()
}

func TestPostgresOrderAgesAndIntegrity(t *testing.T) {
	pool := startPostgres(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Millisecond)
	ages := NewOrderAgeStore(pool, 0, func() time.Time { return now })

	require.NoError(t, ages.RecordPlacement(ctx, "OQCLML-BW3P3-BUCMWZ", now.Add(-10*time.Second)))
	require.NoError(t, ages.RecordPlacement(ctx, "userref:42", now.Add(-400*time.Second)))

	placed, ok, err := ages.PlacedAt(ctx, "OQCLML-BW3P3-BUCMWZ")
	require.NoError(t, err)
	require.True(t, ok)
	require.WithinDuration(t, now.Add(-10*time.Second), placed, time.Millisecond)

	_, ok, err = ages.PlacedAt(ctx, "userref:42")
	require.NoError(t, err)
	require.False(t, ok, "placements older than the ttl are ignored")

	_, ok, err = ages.PlacedAt(ctx, "missing")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, ages.RecordPlacement(ctx, "userref:42", now))
	_, ok, err = ages.PlacedAt(ctx, "userref:42")
	require.NoError(t, err)
	require.True(t, ok, "re-recording replaces the placement time")

	require.NoError(t, ages.RecordPlacement(ctx, "OLD", now.Add(-time.Hour)))
	pruned, err := ages.Prune(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), pruned)

	integrity := NewIntegrityLog(pool)
	first, err := integrity.Record(ctx, IntegrityEvent{Symbol: "BTC/USD", Expected: 3979123481, Computed: 12345, OccurredAt: now.Add(-time.Minute)})
	require.NoError(t, err)
	second, err := integrity.Record(ctx, IntegrityEvent{Symbol: "BTC/USD", Expected: 1, Computed: 2, OccurredAt: now})
	require.NoError(t, err)
	_, err = integrity.Record(ctx, IntegrityEvent{Symbol: "ETH/USD", Expected: 5, Computed: 6})
	require.NoError(t, err)

	events, err := integrity.Recent(ctx, "BTC/USD", 0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, second, events[0].ID)
	require.Equal(t, first, events[1].ID)
	require.Equal(t, uint32(3979123481), events[1].Expected)
	require.Equal(t, "kraken", events[1].Venue)
}
