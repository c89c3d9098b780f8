// Package config loads and validates the engine configuration from a YAML
// file with environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Default service configuration values.
const (
	defaultServiceName    = "ingest-engine"
	defaultServiceVersion = "1.0.0"
	defaultServicePort    = 8090
	defaultLogLevel       = "info"
	defaultLogFormat      = "json"
)

// Default database configuration values.
const (
	defaultDBHost         = "localhost"
	defaultDBPort         = 5432
	defaultDBUser         = "postgres"
	defaultDBName         = "archgee"
	defaultDBSSLMode      = "disable"
	defaultDBMaxConns     = 25
	defaultDBMaxIdleConns = 5
	defaultDBConnLifetime = time.Hour
)

// Default enrichment configuration values.
const (
	defaultEnrichMode        = ModeAsync
	defaultEnrichWorkers     = 4
	defaultEnrichPoll        = 5 * time.Second
	defaultEnrichBatchSize   = 20
	defaultEnrichMaxAttempts = 3
	defaultEnrichBackoffBase = 30 * time.Second
	defaultEnrichBackoffCap  = 15 * time.Minute
	defaultEnrichStaleAge    = 10 * time.Minute
	defaultReviewThreshold   = 0.6
	defaultApproveThreshold  = 0.8
	defaultJobTTL            = 30 * 24 * time.Hour
)

// Default provider configuration values.
const (
	defaultAnthropicModel = "claude-3-5-haiku-latest"
	defaultProviderRPS    = 2
	defaultMaxInputChars  = 2000
)

// defaultSweepInterval is how often the expiry sweeper runs.
const defaultSweepInterval = time.Hour

// defaultBatchLimit caps the number of records in one bulk ingest request.
const defaultBatchLimit = 100

// Enrichment scheduling modes.
const (
	// ModeAsync enqueues enrichment tasks consumed by the worker pool.
	ModeAsync = "async"
	// ModeInline runs the enrichment chain synchronously at ingest time.
	ModeInline = "inline"
)

// Config holds the application configuration.
type Config struct {
	Service    ServiceConfig    `yaml:"service"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Auth       AuthConfig       `yaml:"auth"`
	Enrichment EnrichmentConfig `yaml:"enrichment"`
	Providers  ProvidersConfig  `yaml:"providers"`
	Sweeper    SweeperConfig    `yaml:"sweeper"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ServiceConfig holds service identity and runtime settings.
type ServiceConfig struct {
	Name       string `yaml:"name"`
	Version    string `yaml:"version"`
	Port       int    `yaml:"port"`
	Debug      bool   `yaml:"debug"`
	BatchLimit int    `yaml:"batch_limit"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"sslmode"`
	MaxConnections  int           `yaml:"max_connections"`
	MaxIdleConns    int           `yaml:"max_idle_connections"`
	ConnMaxLifetime time.Duration `yaml:"connection_max_lifetime"`
}

// RedisConfig holds the moderation event stream settings. A missing address
// disables event publishing.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	Stream   string `yaml:"stream"`
}

// AuthConfig holds the ingestion capability token.
type AuthConfig struct {
	IngestToken string `yaml:"ingest_token"`
}

// EnrichmentConfig holds the orchestrator and worker pool settings.
type EnrichmentConfig struct {
	Mode             string        `yaml:"mode"`
	Workers          int           `yaml:"workers"`
	PollInterval     time.Duration `yaml:"poll_interval"`
	BatchSize        int           `yaml:"batch_size"`
	MaxAttempts      int           `yaml:"max_attempts"`
	BackoffBase      time.Duration `yaml:"backoff_base"`
	BackoffCap       time.Duration `yaml:"backoff_cap"`
	ReviewThreshold  float64       `yaml:"review_threshold"`
	ApproveThreshold float64       `yaml:"approve_threshold"`
	JobTTL           time.Duration `yaml:"job_ttl"`
	// StaleAge is how long a task may sit in running before the recovery
	// loop returns it to pending.
	StaleAge time.Duration `yaml:"stale_age"`
}

// ProvidersConfig holds the classification provider chain settings.
type ProvidersConfig struct {
	// MaxInputChars caps the description length submitted to any provider.
	MaxInputChars int             `yaml:"max_input_chars"`
	Anthropic     AnthropicConfig `yaml:"anthropic"`
	MLService     MLServiceConfig `yaml:"ml_service"`
}

// AnthropicConfig holds the primary provider settings. The API key comes
// from the environment only.
type AnthropicConfig struct {
	APIKey string  `yaml:"-"`
	Model  string  `yaml:"model"`
	RPS    float64 `yaml:"rps"`
}

// MLServiceConfig holds the fallback HTTP classification service settings.
// An empty base URL disables the fallback.
type MLServiceConfig struct {
	BaseURL string  `yaml:"base_url"`
	RPS     float64 `yaml:"rps"`
}

// SweeperConfig holds the expiry sweeper settings.
type SweeperConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads the YAML file at path, applies defaults, then environment
// overrides. A missing file is not an error; defaults plus environment
// variables produce a runnable configuration.
func Load(path string) (*Config, error) {
	// Optional .env for local development.
	_ = godotenv.Load()

	cfg := &Config{}

	data, readErr := os.ReadFile(path)
	if readErr == nil {
		if unmarshalErr := yaml.Unmarshal(data, cfg); unmarshalErr != nil {
			return nil, fmt.Errorf("parse config: %w", unmarshalErr)
		}
	} else if !os.IsNotExist(readErr) {
		return nil, fmt.Errorf("read config: %w", readErr)
	}

	setDefaults(cfg)
	applyEnvOverrides(cfg)

	if validateErr := cfg.Validate(); validateErr != nil {
		return nil, fmt.Errorf("validate config: %w", validateErr)
	}

	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Service.Port <= 0 || c.Service.Port > 65535 {
		return fmt.Errorf("service.port %d out of range", c.Service.Port)
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}

	if c.Database.Database == "" {
		return fmt.Errorf("database.database is required")
	}

	if c.Enrichment.Mode != ModeAsync && c.Enrichment.Mode != ModeInline {
		return fmt.Errorf("enrichment.mode %q must be %q or %q", c.Enrichment.Mode, ModeAsync, ModeInline)
	}

	if c.Enrichment.ReviewThreshold < 0 || c.Enrichment.ReviewThreshold > 1 {
		return fmt.Errorf("enrichment.review_threshold must be within [0,1]")
	}

	if c.Enrichment.ApproveThreshold < c.Enrichment.ReviewThreshold || c.Enrichment.ApproveThreshold > 1 {
		return fmt.Errorf("enrichment.approve_threshold must be within [review_threshold,1]")
	}

	return nil
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Database, d.SSLMode,
	)
}

func setDefaults(cfg *Config) {
	setServiceDefaults(&cfg.Service)
	setDatabaseDefaults(&cfg.Database)
	setEnrichmentDefaults(&cfg.Enrichment)
	setProviderDefaults(&cfg.Providers)

	if cfg.Sweeper.Interval == 0 {
		cfg.Sweeper.Interval = defaultSweepInterval
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = defaultLogLevel
	}

	if cfg.Logging.Format == "" {
		cfg.Logging.Format = defaultLogFormat
	}

	if cfg.Redis.Stream == "" {
		cfg.Redis.Stream = "archgee:jobs:moderation"
	}
}

func setServiceDefaults(s *ServiceConfig) {
	if s.Name == "" {
		s.Name = defaultServiceName
	}

	if s.Version == "" {
		s.Version = defaultServiceVersion
	}

	if s.Port == 0 {
		s.Port = defaultServicePort
	}

	if s.BatchLimit == 0 {
		s.BatchLimit = defaultBatchLimit
	}
}

func setDatabaseDefaults(d *DatabaseConfig) {
	if d.Host == "" {
		d.Host = defaultDBHost
	}

	if d.Port == 0 {
		d.Port = defaultDBPort
	}

	if d.User == "" {
		d.User = defaultDBUser
	}

	if d.Database == "" {
		d.Database = defaultDBName
	}

	if d.SSLMode == "" {
		d.SSLMode = defaultDBSSLMode
	}

	if d.MaxConnections == 0 {
		d.MaxConnections = defaultDBMaxConns
	}

	if d.MaxIdleConns == 0 {
		d.MaxIdleConns = defaultDBMaxIdleConns
	}

	if d.ConnMaxLifetime == 0 {
		d.ConnMaxLifetime = defaultDBConnLifetime
	}
}

func setEnrichmentDefaults(e *EnrichmentConfig) {
	if e.Mode == "" {
		e.Mode = defaultEnrichMode
	}

	if e.Workers == 0 {
		e.Workers = defaultEnrichWorkers
	}

	if e.PollInterval == 0 {
		e.PollInterval = defaultEnrichPoll
	}

	if e.BatchSize == 0 {
		e.BatchSize = defaultEnrichBatchSize
	}

	if e.MaxAttempts == 0 {
		e.MaxAttempts = defaultEnrichMaxAttempts
	}

	if e.BackoffBase == 0 {
		e.BackoffBase = defaultEnrichBackoffBase
	}

	if e.BackoffCap == 0 {
		e.BackoffCap = defaultEnrichBackoffCap
	}

	if e.StaleAge == 0 {
		e.StaleAge = defaultEnrichStaleAge
	}

	if e.ReviewThreshold == 0 {
		e.ReviewThreshold = defaultReviewThreshold
	}

	if e.ApproveThreshold == 0 {
		e.ApproveThreshold = defaultApproveThreshold
	}

	if e.JobTTL == 0 {
		e.JobTTL = defaultJobTTL
	}
}

func setProviderDefaults(p *ProvidersConfig) {
	if p.MaxInputChars == 0 {
		p.MaxInputChars = defaultMaxInputChars
	}

	if p.Anthropic.Model == "" {
		p.Anthropic.Model = defaultAnthropicModel
	}

	if p.Anthropic.RPS == 0 {
		p.Anthropic.RPS = defaultProviderRPS
	}

	if p.MLService.RPS == 0 {
		p.MLService.RPS = defaultProviderRPS
	}
}

// applyEnvOverrides lets operators override file settings without editing
// the config, matching how the services are deployed.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ENGINE_PORT"); v != "" {
		if port, convErr := strconv.Atoi(v); convErr == nil {
			cfg.Service.Port = port
		}
	}

	if v := os.Getenv("APP_DEBUG"); v != "" {
		cfg.Service.Debug = v == "true" || v == "1"
	}

	if v := os.Getenv("POSTGRES_HOST"); v != "" {
		cfg.Database.Host = v
	}

	if v := os.Getenv("POSTGRES_PORT"); v != "" {
		if port, convErr := strconv.Atoi(v); convErr == nil {
			cfg.Database.Port = port
		}
	}

	if v := os.Getenv("POSTGRES_USER"); v != "" {
		cfg.Database.User = v
	}

	if v := os.Getenv("POSTGRES_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}

	if v := os.Getenv("POSTGRES_DB"); v != "" {
		cfg.Database.Database = v
	}

	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}

	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}

	if v := os.Getenv("INGEST_API_TOKEN"); v != "" {
		cfg.Auth.IngestToken = v
	}

	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		cfg.Providers.Anthropic.APIKey = v
	}

	if v := os.Getenv("ML_SERVICE_URL"); v != "" {
		cfg.Providers.MLService.BaseURL = v
	}

	if v := os.Getenv("ENRICHMENT_MODE"); v != "" {
		cfg.Enrichment.Mode = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}
