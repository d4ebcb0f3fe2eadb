package postgres

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/coachpo/krakenbridge/internal/telemetry"
)

// ObservePoolMetrics registers an observable gauge reporting pgx pool connections by state
// (idle, acquired, constructing).
func ObservePoolMetrics(pool *pgxpool.Pool, poolName string) {
	if pool == nil {
		return
	}
	normalized := strings.TrimSpace(poolName)
	if normalized == "" {
		normalized = "primary"
	}
	base := []attribute.KeyValue{
		telemetry.AttrEnvironment.String(telemetry.Environment()),
		attribute.String("db_pool", normalized),
	}
	withState := func(state string) metric.ObserveOption {
		attrs := append(append([]attribute.KeyValue(nil), base...), telemetry.AttrConnection.String(state))
		return metric.WithAttributes(attrs...)
	}
	idle, acquired, constructing := withState("idle"), withState("acquired"), withState("constructing")

	meter := otel.Meter("krakenbridge.postgres")
	_, _ = meter.Int64ObservableGauge(telemetry.MetricDBPoolConnections,
		metric.WithDescription("Pool connections by state"),
		metric.WithUnit("{connection}"),
		metric.WithInt64Callback(func(_ context.Context, observer metric.Int64Observer) error {
			stat := pool.Stat()
			observer.Observe(int64(stat.IdleConns()), idle)
			observer.Observe(int64(stat.AcquiredConns()), acquired)
			observer.Observe(int64(stat.ConstructingConns()), constructing)
			return nil
		}),
	)
}
