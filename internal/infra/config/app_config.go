// Package config manages application configuration loading and validation.
package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"gopkg.in/yaml.v3"

	"github.com/coachpo/krakenbridge/internal/infra/adapters/kraken/ratelimit"
	"github.com/coachpo/krakenbridge/internal/infra/adapters/kraken/rest"
	"github.com/coachpo/krakenbridge/internal/infra/adapters/kraken/ws"
	"github.com/coachpo/krakenbridge/internal/infra/persistence/postgres"
	"github.com/coachpo/krakenbridge/internal/infra/secrets"
	"github.com/coachpo/krakenbridge/internal/observability"
	"github.com/coachpo/krakenbridge/internal/telemetry"
)

// RESTConfig configures the REST dispatcher.
type RESTConfig struct {
	BaseURL        string        `yaml:"baseURL"`
	Timeout        time.Duration `yaml:"timeout"`
	Tier           string        `yaml:"tier"`
	PublicInterval time.Duration `yaml:"publicInterval"`
}

// TierValue parses Tier. Call after Validate.
func (c RESTConfig) TierValue() ratelimit.Tier {
	tier, err := ratelimit.ParseTier(c.Tier)
	if err != nil {
		return ratelimit.TierIntermediate
	}
	return tier
}

// WSConfig configures streaming sessions.
type WSConfig struct {
	PublicURL         string        `yaml:"publicURL"`
	PrivateURL        string        `yaml:"privateURL"`
	QueueSize         int           `yaml:"queueSize"`
	PingInterval      time.Duration `yaml:"pingInterval"`
	WriteTimeout      time.Duration `yaml:"writeTimeout"`
	ControlInterval   time.Duration `yaml:"controlInterval"`
	DisableReconnect  bool          `yaml:"disableReconnect"`
	ReconnectAttempts int           `yaml:"reconnectAttempts"`
	MaxReconnectWait  time.Duration `yaml:"maxReconnectWait"`
}

// SessionOptions builds ws.Options for url. Tokens, Logger and Metrics are left to the caller.
func (c WSConfig) SessionOptions(url string) ws.Options {
	policy := backoff.NewExponentialBackOff()
	policy.MaxInterval = c.MaxReconnectWait
	return ws.Options{
		Backoff:           policy,
		URL:               url,
		QueueSize:         c.QueueSize,
		PingInterval:      c.PingInterval,
		WriteTimeout:      c.WriteTimeout,
		ControlInterval:   c.ControlInterval,
		DisableReconnect:  c.DisableReconnect,
		ReconnectAttempts: c.ReconnectAttempts,
	}
}

// StreamConfig lists the symbols to stream on one channel.
type StreamConfig struct {
	Symbols []string `yaml:"symbols"`
	Depth   int      `yaml:"depth"`
}

// SessionConfig selects what the runner subscribes to.
type SessionConfig struct {
	Book   StreamConfig `yaml:"book"`
	Ticker StreamConfig `yaml:"ticker"`
	Trade  StreamConfig `yaml:"trade"`
	// Instrument subscribes to reference data so book checksums use venue precision.
	Instrument bool `yaml:"instrument"`
	// Private streams executions and balances over the authenticated endpoint.
	Private bool `yaml:"private"`
}

// TelemetryConfig configures OTLP exporters (metrics only).
type TelemetryConfig struct {
	OTLPEndpoint  string `yaml:"otlpEndpoint"`
	ServiceName   string `yaml:"serviceName"`
	OTLPInsecure  bool   `yaml:"otlpInsecure"`
	EnableMetrics bool   `yaml:"enableMetrics"`
}

// Apply overlays configured values on base.
func (c TelemetryConfig) Apply(base telemetry.Config, env Environment) telemetry.Config {
	if c.OTLPEndpoint != "" {
		base.OTLPEndpoint = c.OTLPEndpoint
	}
	if c.ServiceName != "" {
		base.ServiceName = c.ServiceName
	}
	base.OTLPInsecure = base.OTLPInsecure || c.OTLPInsecure
	base.EnableMetrics = c.EnableMetrics
	base.Environment = string(env)
	return base
}

// DatabaseConfig controls PostgreSQL connectivity and migration behaviour.
type DatabaseConfig struct {
	Enabled           bool          `yaml:"enabled"`
	DSN               string        `yaml:"dsn"`
	MaxConns          int32         `yaml:"maxConns"`
	MinConns          int32         `yaml:"minConns"`
	MaxConnLifetime   time.Duration `yaml:"maxConnLifetime"`
	MaxConnIdleTime   time.Duration `yaml:"maxConnIdleTime"`
	HealthCheckPeriod time.Duration `yaml:"healthCheckPeriod"`
	RunMigrations     bool          `yaml:"runMigrations"`
}

func (c *DatabaseConfig) applyDefaults() {
	c.DSN = strings.TrimSpace(c.DSN)
	if c.DSN == "" {
		c.DSN = "postgresql://localhost:5432/krakenbridge"
	}
	if c.MaxConns <= 0 {
		c.MaxConns = 8
	}
	if c.MinConns <= 0 {
		c.MinConns = 1
	}
	if c.MinConns > c.MaxConns {
		c.MinConns = c.MaxConns
	}
	if c.MaxConnLifetime <= 0 {
		c.MaxConnLifetime = 30 * time.Minute
	}
	if c.MaxConnIdleTime <= 0 {
		c.MaxConnIdleTime = 5 * time.Minute
	}
	if c.HealthCheckPeriod <= 0 {
		c.HealthCheckPeriod = 30 * time.Second
	}
}

func (c DatabaseConfig) validate() error {
	if strings.TrimSpace(c.DSN) == "" {
		return fmt.Errorf("dsn required")
	}
	if c.MaxConns <= 0 {
		return fmt.Errorf("maxConns must be >0")
	}
	if c.MinConns < 0 {
		return fmt.Errorf("minConns must be >=0")
	}
	if c.MinConns > c.MaxConns {
		return fmt.Errorf("minConns must be <= maxConns")
	}
	return nil
}

// PoolOptions converts the section for postgres.Open.
func (c DatabaseConfig) PoolOptions() postgres.PoolOptions {
	return postgres.PoolOptions{
		DSN:               c.DSN,
		MaxConns:          c.MaxConns,
		MinConns:          c.MinConns,
		MaxConnLifetime:   c.MaxConnLifetime,
		MaxConnIdleTime:   c.MaxConnIdleTime,
		HealthCheckPeriod: c.HealthCheckPeriod,
	}
}

// LoggingConfig configures the logrus logger.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"maxSizeMB"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
}

// LogConfig converts the section for observability.NewLogrusLogger.
func (c LoggingConfig) LogConfig(component string) observability.LogConfig {
	return observability.LogConfig{
		Level:      c.Level,
		Format:     c.Format,
		File:       c.File,
		MaxSizeMB:  c.MaxSizeMB,
		MaxAgeDays: c.MaxAgeDays,
		Component:  component,
	}
}

// CredentialsConfig names where API credentials come from. Values never live in the file.
type CredentialsConfig struct {
	KeyEnv      string   `yaml:"keyEnv"`
	SecretEnv   string   `yaml:"secretEnv"`
	DotenvFiles []string `yaml:"dotenvFiles"`
}

// Provider builds the env-backed credential provider.
func (c CredentialsConfig) Provider() (*secrets.EnvProvider, error) {
	return secrets.NewEnv(c.KeyEnv, c.SecretEnv, c.DotenvFiles...)
}

// AppConfig is the unified krakenbridge configuration sourced from YAML.
type AppConfig struct {
	Environment Environment       `yaml:"environment"`
	REST        RESTConfig        `yaml:"rest"`
	WS          WSConfig          `yaml:"ws"`
	Session     SessionConfig     `yaml:"session"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
	Database    DatabaseConfig    `yaml:"database"`
	Logging     LoggingConfig     `yaml:"logging"`
	Credentials CredentialsConfig `yaml:"credentials"`
}

// Default returns a configuration that streams the BTC/USD book and ticker from production.
func Default() AppConfig {
	cfg := AppConfig{
		Environment: EnvDev,
		Session: SessionConfig{
			Book:       StreamConfig{Symbols: []string{"BTC/USD"}, Depth: 10},
			Ticker:     StreamConfig{Symbols: []string{"BTC/USD"}},
			Instrument: true,
		},
		Telemetry: TelemetryConfig{ServiceName: "krakenbridge"},
		Credentials: CredentialsConfig{
			DotenvFiles: []string{".env"},
		},
	}
	_ = cfg.normalise()
	return cfg
}

// Load reads and validates an AppConfig from the provided YAML file.
func Load(ctx context.Context, configPath string) (AppConfig, error) {
	_ = ctx

	reader, closer, err := openConfigFile(configPath)
	if err != nil {
		return AppConfig{}, err
	}
	defer closer()

	bytes, err := io.ReadAll(reader)
	if err != nil {
		return AppConfig{}, fmt.Errorf("read config: %w", err)
	}

	cfg := AppConfig{Telemetry: TelemetryConfig{ServiceName: "krakenbridge"}}
	if err := yaml.Unmarshal(bytes, &cfg); err != nil {
		return AppConfig{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.normalise(); err != nil {
		return AppConfig{}, err
	}

	if err := cfg.Validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

// LoadOrDefault loads configPath, falling back to Default when the path is empty or absent.
// The boolean reports whether the file was read.
func LoadOrDefault(ctx context.Context, configPath string) (AppConfig, bool, error) {
	if strings.TrimSpace(configPath) == "" {
		return Default(), false, nil
	}
	cfg, err := Load(ctx, configPath)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), false, nil
	}
	if err != nil {
		return AppConfig{}, false, err
	}
	return cfg, true, nil
}

func (c *AppConfig) normalise() error {
	c.Environment = Environment(strings.ToLower(strings.TrimSpace(string(c.Environment))))
	if c.Environment == "" {
		c.Environment = EnvDev
	}

	c.REST.BaseURL = strings.TrimRight(strings.TrimSpace(c.REST.BaseURL), "/")
	if c.REST.BaseURL == "" {
		c.REST.BaseURL = rest.DefaultBaseURL
	}
	if c.REST.Timeout <= 0 {
		c.REST.Timeout = rest.DefaultTimeout
	}
	c.REST.Tier = strings.ToLower(strings.TrimSpace(c.REST.Tier))
	if c.REST.Tier == "" {
		c.REST.Tier = ratelimit.TierIntermediate.String()
	}
	if c.REST.PublicInterval <= 0 {
		c.REST.PublicInterval = time.Second
	}

	c.WS.PublicURL = strings.TrimSpace(c.WS.PublicURL)
	if c.WS.PublicURL == "" {
		c.WS.PublicURL = ws.PublicURL
	}
	c.WS.PrivateURL = strings.TrimSpace(c.WS.PrivateURL)
	if c.WS.PrivateURL == "" {
		c.WS.PrivateURL = ws.PrivateURL
	}
	if c.WS.MaxReconnectWait <= 0 {
		c.WS.MaxReconnectWait = 20 * time.Second
	}

	c.Session.Book.Symbols = normalizeSymbols(c.Session.Book.Symbols)
	c.Session.Ticker.Symbols = normalizeSymbols(c.Session.Ticker.Symbols)
	c.Session.Trade.Symbols = normalizeSymbols(c.Session.Trade.Symbols)
	if len(c.Session.Book.Symbols) > 0 && c.Session.Book.Depth == 0 {
		c.Session.Book.Depth = 10
	}

	c.Telemetry.OTLPEndpoint = strings.TrimSpace(c.Telemetry.OTLPEndpoint)
	c.Telemetry.ServiceName = strings.TrimSpace(c.Telemetry.ServiceName)

	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.File != "" {
		c.Logging.File = filepath.Clean(strings.TrimSpace(c.Logging.File))
	}

	c.Credentials.KeyEnv = strings.TrimSpace(c.Credentials.KeyEnv)
	if c.Credentials.KeyEnv == "" {
		c.Credentials.KeyEnv = secrets.DefaultKeyEnv
	}
	c.Credentials.SecretEnv = strings.TrimSpace(c.Credentials.SecretEnv)
	if c.Credentials.SecretEnv == "" {
		c.Credentials.SecretEnv = secrets.DefaultSecretEnv
	}

	c.Database.applyDefaults()

	return nil
}

var validDepths = map[int]bool{10: true, 25: true, 100: true, 500: true, 1000: true}

// Validate performs semantic validation on the configuration.
func (c AppConfig) Validate() error {
	switch c.Environment {
	case EnvDev, EnvStaging, EnvProd:
	default:
		return fmt.Errorf("environment must be one of dev, staging, prod")
	}

	if !strings.HasPrefix(c.REST.BaseURL, "http://") && !strings.HasPrefix(c.REST.BaseURL, "https://") {
		return fmt.Errorf("rest baseURL must be an http(s) url")
	}
	if _, err := ratelimit.ParseTier(c.REST.Tier); err != nil {
		return fmt.Errorf("rest tier: %w", err)
	}

	for _, u := range []string{c.WS.PublicURL, c.WS.PrivateURL} {
		if !strings.HasPrefix(u, "ws://") && !strings.HasPrefix(u, "wss://") {
			return fmt.Errorf("ws url %q must use ws or wss", u)
		}
	}
	if c.WS.QueueSize < 0 {
		return fmt.Errorf("ws queueSize must be >=0")
	}
	if c.WS.ReconnectAttempts < 0 {
		return fmt.Errorf("ws reconnectAttempts must be >=0")
	}

	if len(c.Session.Book.Symbols) > 0 && !validDepths[c.Session.Book.Depth] {
		return fmt.Errorf("session book depth must be one of 10, 25, 100, 500, 1000")
	}

	if c.Logging.Format != "" && c.Logging.Format != "json" && c.Logging.Format != "text" {
		return fmt.Errorf("logging format must be json or text")
	}

	if strings.TrimSpace(c.Telemetry.ServiceName) == "" {
		return fmt.Errorf("telemetry serviceName required")
	}

	if c.Database.Enabled {
		if err := c.Database.validate(); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}

	return nil
}

func openConfigFile(path string) (io.Reader, func(), error) {
	candidate := strings.TrimSpace(path)
	candidate = filepath.Clean(candidate)

	file, err := os.Open(candidate) // #nosec G304 -- path is operator controlled.
	if err != nil {
		return nil, nil, fmt.Errorf("open app config: %w", err)
	}
	return file, func() { _ = file.Close() }, nil
}
