// Package migrations wires golang-migrate execution for the krakenbridge persistence layer.
package migrations

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/golang-migrate/migrate/v4"
	pgxv5 "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/source/file" // file:// migrations loader
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	dbmigrations "github.com/coachpo/krakenbridge/db/migrations"
	"github.com/coachpo/krakenbridge/internal/observability"
	"github.com/coachpo/krakenbridge/internal/telemetry"
)

var (
	errNotDirectory = errors.New("migrations path must be a directory")
	errInvalidSteps = errors.New("rollback steps must be positive")

	migrationsCounter   metric.Int64Counter
	migrationsCounterMu sync.Once
)

// Source locates a set of SQL migrations.
type Source struct {
	dir  string
	fsys fs.FS
}

// Dir reads migrations from a directory on disk.
func Dir(path string) Source { return Source{dir: path} }

// Embedded reads the migrations compiled into the binary.
func Embedded() Source { return Source{fsys: dbmigrations.Files} }

// FS reads migrations from the root of fsys.
func FS(fsys fs.FS) Source { return Source{fsys: fsys} }

func (s Source) label() string {
	if s.fsys != nil {
		return "embedded"
	}
	return s.dir
}

// resolve validates the source without touching the database.
func (s Source) resolve() (Source, error) {
	if s.fsys != nil {
		return s, nil
	}
	dir, err := resolveDir(s.dir)
	if err != nil {
		return Source{}, err
	}
	return Source{dir: dir}, nil
}

// Apply migrates the Postgres instance reachable via dsn to the latest version.
func Apply(ctx context.Context, dsn string, src Source, logger observability.Logger) error {
	logger = observability.Or(logger)
	src, err := src.resolve()
	if err != nil {
		return err
	}
	return withMigrate(ctx, dsn, src, logger, func(m *migrate.Migrate) error {
		logger.Info("running database migrations", observability.F("source", src.label()))
		if err := m.Up(); err != nil {
			if errors.Is(err, migrate.ErrNoChange) {
				recordMigrationMetric(ctx, "noop", "up")
				logger.Info("database migrations up-to-date")
				return nil
			}
			recordMigrationMetric(ctx, "failed", "up")
			return fmt.Errorf("apply migrations: %w", err)
		}
		recordMigrationMetric(ctx, "applied", "up")
		logger.Info("database migrations applied successfully")
		return nil
	})
}

// Rollback reverts the newest steps migrations.
func Rollback(ctx context.Context, dsn string, src Source, steps int, logger observability.Logger) error {
	logger = observability.Or(logger)
	if steps <= 0 {
		return fmt.Errorf("rollback %d: %w", steps, errInvalidSteps)
	}
	src, err := src.resolve()
	if err != nil {
		return err
	}
	return withMigrate(ctx, dsn, src, logger, func(m *migrate.Migrate) error {
		logger.Info("rolling back database migrations",
			observability.F("source", src.label()),
			observability.F("steps", steps))
		if err := m.Steps(-steps); err != nil {
			if errors.Is(err, migrate.ErrNoChange) {
				recordMigrationMetric(ctx, "noop", "down")
				return nil
			}
			recordMigrationMetric(ctx, "failed", "down")
			return fmt.Errorf("rollback migrations: %w", err)
		}
		recordMigrationMetric(ctx, "applied", "down")
		return nil
	})
}

func withMigrate(ctx context.Context, dsn string, src Source, logger observability.Logger, fn func(*migrate.Migrate) error) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("open migrations connection: %w", err)
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			logger.Error("database migrations close", observability.F("error", cerr))
		}
	}()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping migrations database: %w", err)
	}

	var driverConfig pgxv5.Config
	driver, err := pgxv5.WithInstance(db, &driverConfig)
	if err != nil {
		return fmt.Errorf("initialise pgx v5 driver: %w", err)
	}

	var m *migrate.Migrate
	if src.fsys != nil {
		files, ferr := iofs.New(src.fsys, ".")
		if ferr != nil {
			return fmt.Errorf("open embedded migrations: %w", ferr)
		}
		m, err = migrate.NewWithInstance("iofs", files, "pgx5", driver)
	} else {
		m, err = migrate.NewWithDatabaseInstance(fileURL(src.dir), "pgx5", driver)
	}
	if err != nil {
		return fmt.Errorf("initialise migrate instance: %w", err)
	}
	defer func() {
		sourceErr, dbErr := m.Close()
		if sourceErr != nil {
			logger.Error("database migrations source close", observability.F("error", sourceErr))
		}
		if dbErr != nil {
			logger.Error("database migrations db close", observability.F("error", dbErr))
		}
	}()

	return fn(m)
}

func resolveDir(dir string) (string, error) {
	clean := strings.TrimSpace(dir)
	if clean == "" {
		return "", fmt.Errorf("migrations path required")
	}

	abs, err := filepath.Abs(clean)
	if err != nil {
		return "", fmt.Errorf("resolve migrations path: %w", err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("migrations directory: %w", err)
		}
		return "", fmt.Errorf("stat migrations directory: %w", err)
	}

	if !info.IsDir() {
		return "", fmt.Errorf("migrations directory: %w", errNotDirectory)
	}

	return abs, nil
}

func fileURL(path string) string {
	slashed := filepath.ToSlash(path)
	if !strings.HasPrefix(slashed, "/") {
		slashed = "/" + slashed
	}
	u := new(url.URL)
	u.Scheme = "file"
	u.Path = slashed
	return u.String()
}

func recordMigrationMetric(ctx context.Context, result, direction string) {
	migrationsCounterMu.Do(func() {
		meter := otel.Meter("krakenbridge.migrations")
		counter, err := meter.Int64Counter(telemetry.MetricDBMigrations,
			metric.WithDescription("Migration runs executed via golang-migrate"),
			metric.WithUnit("{run}"))
		if err == nil {
			migrationsCounter = counter
		}
	})
	if migrationsCounter == nil {
		return
	}
	migrationsCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("environment", telemetry.Environment()),
		attribute.String("result", result),
		attribute.String("direction", direction),
	))
}
