// Command krakenbridge streams Kraken market data and logs it until interrupted.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/coachpo/krakenbridge/internal/infra/adapters/kraken/ratelimit"
	"github.com/coachpo/krakenbridge/internal/infra/adapters/kraken/rest"
	"github.com/coachpo/krakenbridge/internal/infra/adapters/kraken/ws"
	"github.com/coachpo/krakenbridge/internal/infra/config"
	"github.com/coachpo/krakenbridge/internal/infra/persistence/migrations"
	"github.com/coachpo/krakenbridge/internal/infra/persistence/postgres"
	"github.com/coachpo/krakenbridge/internal/infra/secrets"
	"github.com/coachpo/krakenbridge/internal/observability"
	"github.com/coachpo/krakenbridge/internal/telemetry"
)

const (
	defaultConfigPath        = "config/app.yaml"
	shutdownTimeout          = 15 * time.Second
	statusTimeout            = 10 * time.Second
	telemetryShutdownTimeout = 5 * time.Second
	prunePeriod              = time.Minute
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfgPath := flag.String("config", defaultConfigPath, "Path to application configuration file")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, loaded, err := config.LoadOrDefault(ctx, *cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := observability.NewLogrusLogger(cfg.Logging.LogConfig("krakenbridge"))
	if err != nil {
		return fmt.Errorf("initialise logger: %w", err)
	}
	observability.SetLogger(logger)
	if !loaded {
		logger.Info("configuration file not found, using defaults", observability.F("path", *cfgPath))
	}
	logger.Info("configuration initialised",
		observability.F("env", cfg.Environment),
		observability.F("tier", cfg.REST.Tier),
		observability.F("book_symbols", cfg.Session.Book.Symbols))

	provider, err := telemetry.NewProvider(ctx, cfg.Telemetry.Apply(telemetry.DefaultConfig(), cfg.Environment))
	if err != nil {
		return fmt.Errorf("initialise telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, done := context.WithTimeout(context.Background(), telemetryShutdownTimeout)
		defer done()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Error("telemetry shutdown", observability.F("error", err))
		}
	}()

	store, err := openStore(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}

	creds, err := cfg.Credentials.Provider()
	if err != nil {
		return fmt.Errorf("credentials: %w", err)
	}

	client := newRESTClient(cfg, creds, store, logger)
	checkStatus(ctx, client, logger)

	r := &runner{
		logger:   logger,
		recorder: integrityRecorder(store),
		sessions: make([]*ws.Session, 0, 2),
	}

	public := ws.NewSession(sessionOptions(cfg.WS, cfg.WS.PublicURL, nil, logger))
	if err := r.open(ctx, public, publicSubscriptions(cfg.Session)); err != nil {
		return err
	}
	if cfg.Session.Private {
		private := ws.NewSession(sessionOptions(cfg.WS, cfg.WS.PrivateURL, client, logger))
		if err := r.open(ctx, private, privateSubscriptions()); err != nil {
			_ = r.close()
			return err
		}
	}

	var lifecycle conc.WaitGroup
	for _, s := range r.sessions {
		lifecycle.Go(func() { r.consume(ctx, s) })
	}
	if store != nil {
		lifecycle.Go(func() { prunePlacements(ctx, store.OrderAges(), logger) })
	}

	logger.Info("krakenbridge started; awaiting shutdown signal")
	<-ctx.Done()
	logger.Info("shutdown signal received, initiating graceful shutdown")

	shutdownStart := time.Now()
	done := make(chan struct{})
	go func() {
		if err := r.close(); err != nil {
			logger.Error("close sessions", observability.F("error", err))
		}
		lifecycle.Wait()
		close(done)
	}()
	select {
	case <-done:
		logger.Info("shutdown completed", observability.F("took", time.Since(shutdownStart).String()))
	case <-time.After(shutdownTimeout):
		logger.Error("shutdown timed out", observability.F("timeout", shutdownTimeout.String()))
	}
	return nil
}

func openStore(ctx context.Context, cfg config.DatabaseConfig, logger observability.Logger) (*postgres.Store, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if cfg.RunMigrations {
		if err := migrations.Apply(ctx, cfg.DSN, migrations.Embedded(), logger); err != nil {
			return nil, fmt.Errorf("apply migrations: %w", err)
		}
	}
	store, err := postgres.Open(ctx, cfg.PoolOptions())
	if err != nil {
		return nil, err
	}
	logger.Info("postgres connected", observability.F("max_conns", cfg.MaxConns))
	return store, nil
}

func newRESTClient(cfg config.AppConfig, creds secrets.Provider, store *postgres.Store, logger observability.Logger) *rest.Client {
	var ages ratelimit.OrderAges
	if store != nil {
		ages = store.OrderAges()
	}
	policy := ratelimit.NewPolicy(ratelimit.PolicyConfig{
		Tier:           cfg.REST.TierValue(),
		PublicInterval: cfg.REST.PublicInterval,
		OrderAges:      ages,
		Logger:         logger,
	})
	return rest.NewClient(rest.Options{
		BaseURL:     cfg.REST.BaseURL,
		Timeout:     cfg.REST.Timeout,
		Credentials: creds,
		Limits:      policy,
		Logger:      logger,
		Metrics:     telemetry.NewRESTMetrics(nil, "kraken"),
	})
}

func checkStatus(ctx context.Context, client *rest.Client, logger observability.Logger) {
	statusCtx, cancel := context.WithTimeout(ctx, statusTimeout)
	defer cancel()
	status, err := client.SystemStatus(statusCtx)
	if err != nil {
		logger.Error("system status unavailable", observability.F("error", err))
		return
	}
	if !status.Online() {
		logger.Error("venue not online", observability.F("status", status.Status))
		return
	}
	logger.Info("venue online", observability.F("timestamp", status.Timestamp))
}

func sessionOptions(cfg config.WSConfig, url string, tokens ws.TokenSource, logger observability.Logger) ws.Options {
	opts := cfg.SessionOptions(url)
	opts.Tokens = tokens
	opts.Logger = logger
	opts.Metrics = telemetry.NewSessionMetrics(nil, "kraken")
	return opts
}

func integrityRecorder(store *postgres.Store) recorder {
	if store == nil {
		return nil
	}
	return store.Integrity()
}

func prunePlacements(ctx context.Context, ages *postgres.OrderAgeStore, logger observability.Logger) {
	ticker := time.NewTicker(prunePeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := ages.Prune(ctx)
			if err != nil {
				if ctx.Err() == nil {
					logger.Error("prune order placements", observability.F("error", err))
				}
				continue
			}
			if n > 0 {
				logger.Debug("pruned order placements", observability.F("count", n))
			}
		}
	}
}
