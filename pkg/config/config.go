package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/sunup/pkg/models"
	"github.com/platinummonkey/sunup/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Redis         RedisConfig         `yaml:"redis"`
	Auth          AuthConfig          `yaml:"auth"`
	Events        EventsConfig        `yaml:"events"`
	Pipeline      PipelineConfig      `yaml:"pipeline"`
	Jobs          JobsConfig          `yaml:"jobs"`
	RateLimit     RateLimitConfig     `yaml:"rate_limit"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// Health/metrics server (separate port for k8s probes)
	HealthPort string `yaml:"health_port"`

	AllowedOrigins []string `yaml:"allowed_origins"`
	MaxBodyBytes   int64    `yaml:"max_body_bytes"`
}

// DatabaseConfig holds SQL connection settings
type DatabaseConfig struct {
	Driver          string        `yaml:"driver"`
	URL             string        `yaml:"url"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	MaxTxRetries    int           `yaml:"max_tx_retries"`
}

// RedisConfig configures the pipeline event stream. An empty URL disables it.
type RedisConfig struct {
	URL          string `yaml:"url"`
	Stream       string `yaml:"stream"`
	StreamMaxLen int64  `yaml:"stream_max_len"`
}

// Identity source modes
const (
	AuthModeOIDC   = "oidc"
	AuthModeHeader = "header"
)

// AuthConfig selects how caller identities are established
type AuthConfig struct {
	Mode             string        `yaml:"mode"`
	OIDCIssuerURL    string        `yaml:"oidc_issuer_url"`
	OIDCClientID     string        `yaml:"oidc_client_id"`
	SubjectHeader    string        `yaml:"subject_header"`
	IdentityCacheTTL time.Duration `yaml:"identity_cache_ttl"`
	IdentityCacheMax int           `yaml:"identity_cache_size"`
}

// EventsConfig controls handler dispatch after commit
type EventsConfig struct {
	Async          bool          `yaml:"async"`
	Workers        int           `yaml:"workers"`
	HandlerTimeout time.Duration `yaml:"handler_timeout"`
}

// PipelineConfig holds the stage template used when a tenant is initialized
// without its own stage settings.
type PipelineConfig struct {
	DefaultStages []models.StageTemplate `yaml:"default_stages"`
}

// JobsConfig controls periodic background jobs
type JobsConfig struct {
	StatsEnabled  bool   `yaml:"stats_enabled"`
	StatsSchedule string `yaml:"stats_schedule"`

	// AuditRetentionDays of zero keeps audit rows forever.
	AuditRetentionDays int    `yaml:"audit_retention_days"`
	AuditPruneSchedule string `yaml:"audit_prune_schedule"`
}

// RateLimitConfig limits API requests per caller. Limits are shared through
// Redis when it is configured and kept in process otherwise.
type RateLimitConfig struct {
	Enabled bool          `yaml:"enabled"`
	Window  time.Duration `yaml:"window"`

	// Identified callers are keyed by identity subject, anonymous ones by IP.
	IdentifiedRequests int `yaml:"identified_requests"`
	AnonymousRequests  int `yaml:"anonymous_requests"`
	Burst              int `yaml:"burst"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel string `yaml:"log_level"`

	MetricsEnabled bool `yaml:"metrics_enabled"`

	OTelEnabled        bool    `yaml:"otel_enabled"`
	OTelEndpoint       string  `yaml:"otel_endpoint"`
	OTelServiceName    string  `yaml:"otel_service_name"`
	OTelServiceVersion string  `yaml:"otel_service_version"`
	OTelInsecure       bool    `yaml:"otel_insecure"`
	OTelSampleRatio    float64 `yaml:"otel_sample_ratio"`
}

// Level returns the parsed log level
func (o ObservabilityConfig) Level() observability.LogLevel {
	return observability.ParseLogLevel(o.LogLevel)
}

// DefaultStages is the stage template every new tenant starts from
func DefaultStages() []models.StageTemplate {
	return []models.StageTemplate{
		{Name: "Lead", Order: 1, Category: models.CategorySales, Description: "New lead, not yet contacted"},
		{Name: "Set", Order: 2, Category: models.CategorySales, Description: "Appointment set"},
		{Name: "Met", Order: 3, Category: models.CategorySales, Description: "Consultation held"},
		{Name: "QMet", Order: 4, Category: models.CategorySales, Description: "Qualified meeting"},
		{Name: "Sale", Order: 5, Category: models.CategorySales, Description: "Contract signed"},
		{Name: "Installation", Order: 6, Category: models.CategoryInstallation, Description: "System installation"},
	}
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			HealthPort:      "9090",
			MaxBodyBytes:    1 << 20,
		},
		Database: DatabaseConfig{
			Driver:          "postgres",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
			MaxTxRetries:    3,
		},
		Redis: RedisConfig{
			Stream:       "sunup:pipeline-events",
			StreamMaxLen: 100000,
		},
		Auth: AuthConfig{
			Mode:             AuthModeOIDC,
			SubjectHeader:    "X-Sunup-Subject",
			IdentityCacheTTL: 5 * time.Minute,
			IdentityCacheMax: 10000,
		},
		Events: EventsConfig{
			Async:          true,
			Workers:        4,
			HandlerTimeout: 10 * time.Second,
		},
		Pipeline: PipelineConfig{
			DefaultStages: DefaultStages(),
		},
		Jobs: JobsConfig{
			StatsEnabled:       true,
			StatsSchedule:      "@every 1m",
			AuditPruneSchedule: "30 3 * * *",
		},
		RateLimit: RateLimitConfig{
			Enabled:            true,
			Window:             time.Minute,
			IdentifiedRequests: 600,
			AnonymousRequests:  60,
			Burst:              20,
		},
		Observability: ObservabilityConfig{
			LogLevel:           "info",
			MetricsEnabled:     true,
			OTelEndpoint:       "localhost:4317",
			OTelServiceName:    "sunup",
			OTelServiceVersion: "1.0.0",
			OTelInsecure:       true,
			OTelSampleRatio:    1,
		},
	}
}

// LoadConfig builds the configuration from defaults, then the YAML file named
// by SUNUP_CONFIG_FILE (if any), then environment variables.
func LoadConfig() (*Config, error) {
	return Load(os.Getenv("SUNUP_CONFIG_FILE"))
}

// Load is LoadConfig with an explicit file path. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Server.Host = getEnv("SUNUP_HOST", c.Server.Host)
	c.Server.Port = getEnv("SUNUP_PORT", c.Server.Port)
	c.Server.HealthPort = getEnv("SUNUP_HEALTH_PORT", c.Server.HealthPort)
	c.Server.ReadTimeout = getEnvDuration("SUNUP_READ_TIMEOUT", c.Server.ReadTimeout)
	c.Server.WriteTimeout = getEnvDuration("SUNUP_WRITE_TIMEOUT", c.Server.WriteTimeout)
	c.Server.IdleTimeout = getEnvDuration("SUNUP_IDLE_TIMEOUT", c.Server.IdleTimeout)
	c.Server.ShutdownTimeout = getEnvDuration("SUNUP_SHUTDOWN_TIMEOUT", c.Server.ShutdownTimeout)
	c.Server.MaxBodyBytes = getEnvInt64("SUNUP_MAX_BODY_BYTES", c.Server.MaxBodyBytes)
	if origins := getEnv("SUNUP_ALLOWED_ORIGINS", ""); origins != "" {
		c.Server.AllowedOrigins = splitList(origins)
	}

	c.Database.Driver = getEnv("SUNUP_DATABASE_DRIVER", c.Database.Driver)
	c.Database.URL = getEnv("SUNUP_DATABASE_URL", c.Database.URL)
	c.Database.MaxOpenConns = getEnvInt("SUNUP_DB_MAX_OPEN_CONNS", c.Database.MaxOpenConns)
	c.Database.MaxIdleConns = getEnvInt("SUNUP_DB_MAX_IDLE_CONNS", c.Database.MaxIdleConns)
	c.Database.ConnMaxLifetime = getEnvDuration("SUNUP_DB_CONN_MAX_LIFETIME", c.Database.ConnMaxLifetime)
	c.Database.MaxTxRetries = getEnvInt("SUNUP_DB_MAX_TX_RETRIES", c.Database.MaxTxRetries)

	c.Redis.URL = getEnv("SUNUP_REDIS_URL", c.Redis.URL)
	c.Redis.Stream = getEnv("SUNUP_REDIS_STREAM", c.Redis.Stream)
	c.Redis.StreamMaxLen = getEnvInt64("SUNUP_REDIS_STREAM_MAXLEN", c.Redis.StreamMaxLen)

	c.Auth.Mode = strings.ToLower(getEnv("SUNUP_AUTH_MODE", c.Auth.Mode))
	c.Auth.OIDCIssuerURL = getEnv("SUNUP_OIDC_ISSUER_URL", c.Auth.OIDCIssuerURL)
	c.Auth.OIDCClientID = getEnv("SUNUP_OIDC_CLIENT_ID", c.Auth.OIDCClientID)
	c.Auth.SubjectHeader = getEnv("SUNUP_AUTH_SUBJECT_HEADER", c.Auth.SubjectHeader)
	c.Auth.IdentityCacheTTL = getEnvDuration("SUNUP_IDENTITY_CACHE_TTL", c.Auth.IdentityCacheTTL)
	c.Auth.IdentityCacheMax = getEnvInt("SUNUP_IDENTITY_CACHE_SIZE", c.Auth.IdentityCacheMax)

	c.Events.Async = getEnvBool("SUNUP_EVENTS_ASYNC", c.Events.Async)
	c.Events.Workers = getEnvInt("SUNUP_EVENTS_WORKERS", c.Events.Workers)
	c.Events.HandlerTimeout = getEnvDuration("SUNUP_EVENTS_HANDLER_TIMEOUT", c.Events.HandlerTimeout)

	c.Jobs.StatsEnabled = getEnvBool("SUNUP_JOBS_STATS_ENABLED", c.Jobs.StatsEnabled)
	c.Jobs.StatsSchedule = getEnv("SUNUP_JOBS_STATS_SCHEDULE", c.Jobs.StatsSchedule)
	c.Jobs.AuditRetentionDays = getEnvInt("SUNUP_JOBS_AUDIT_RETENTION_DAYS", c.Jobs.AuditRetentionDays)
	c.Jobs.AuditPruneSchedule = getEnv("SUNUP_JOBS_AUDIT_PRUNE_SCHEDULE", c.Jobs.AuditPruneSchedule)

	c.RateLimit.Enabled = getEnvBool("SUNUP_RATE_LIMIT_ENABLED", c.RateLimit.Enabled)
	c.RateLimit.Window = getEnvDuration("SUNUP_RATE_LIMIT_WINDOW", c.RateLimit.Window)
	c.RateLimit.IdentifiedRequests = getEnvInt("SUNUP_RATE_LIMIT_IDENTIFIED", c.RateLimit.IdentifiedRequests)
	c.RateLimit.AnonymousRequests = getEnvInt("SUNUP_RATE_LIMIT_ANONYMOUS", c.RateLimit.AnonymousRequests)
	c.RateLimit.Burst = getEnvInt("SUNUP_RATE_LIMIT_BURST", c.RateLimit.Burst)

	c.Observability.LogLevel = getEnv("SUNUP_LOG_LEVEL", c.Observability.LogLevel)
	c.Observability.MetricsEnabled = getEnvBool("SUNUP_METRICS_ENABLED", c.Observability.MetricsEnabled)
	c.Observability.OTelEnabled = getEnvBool("SUNUP_OTEL_ENABLED", c.Observability.OTelEnabled)
	c.Observability.OTelEndpoint = getEnv("SUNUP_OTEL_ENDPOINT", c.Observability.OTelEndpoint)
	c.Observability.OTelServiceName = getEnv("SUNUP_OTEL_SERVICE_NAME", c.Observability.OTelServiceName)
	c.Observability.OTelServiceVersion = getEnv("SUNUP_OTEL_SERVICE_VERSION", c.Observability.OTelServiceVersion)
	c.Observability.OTelInsecure = getEnvBool("SUNUP_OTEL_INSECURE", c.Observability.OTelInsecure)
	c.Observability.OTelSampleRatio = getEnvFloat("SUNUP_OTEL_SAMPLE_RATIO", c.Observability.OTelSampleRatio)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	switch c.Database.Driver {
	case "postgres", "sqlite3":
	default:
		return fmt.Errorf("invalid database driver: %s (must be postgres or sqlite3)", c.Database.Driver)
	}
	if c.Database.URL == "" {
		return fmt.Errorf("database URL is required")
	}
	if c.Database.MaxTxRetries < 0 {
		return fmt.Errorf("max tx retries must not be negative")
	}

	switch c.Auth.Mode {
	case AuthModeOIDC:
		if c.Auth.OIDCIssuerURL == "" || c.Auth.OIDCClientID == "" {
			return fmt.Errorf("OIDC issuer URL and client id are required in oidc auth mode")
		}
	case AuthModeHeader:
		if c.Auth.SubjectHeader == "" {
			return fmt.Errorf("subject header is required in header auth mode")
		}
	default:
		return fmt.Errorf("invalid auth mode: %s (must be oidc or header)", c.Auth.Mode)
	}

	if c.Redis.URL != "" && c.Redis.Stream == "" {
		return fmt.Errorf("redis stream name is required when redis is configured")
	}

	if err := ValidateStages(c.Pipeline.DefaultStages); err != nil {
		return fmt.Errorf("invalid default pipeline stages: %w", err)
	}

	if c.Jobs.StatsEnabled {
		if _, err := cron.ParseStandard(c.Jobs.StatsSchedule); err != nil {
			return fmt.Errorf("invalid stats schedule %q: %w", c.Jobs.StatsSchedule, err)
		}
	}

	if c.Jobs.AuditRetentionDays < 0 {
		return fmt.Errorf("audit retention days cannot be negative")
	}
	if c.Jobs.AuditRetentionDays > 0 {
		if _, err := cron.ParseStandard(c.Jobs.AuditPruneSchedule); err != nil {
			return fmt.Errorf("invalid audit prune schedule %q: %w", c.Jobs.AuditPruneSchedule, err)
		}
	}

	if c.RateLimit.Enabled {
		if c.RateLimit.Window <= 0 {
			return fmt.Errorf("rate limit window must be positive")
		}
		if c.RateLimit.IdentifiedRequests <= 0 || c.RateLimit.AnonymousRequests <= 0 {
			return fmt.Errorf("rate limit request counts must be positive")
		}
		if c.RateLimit.Burst < 0 {
			return fmt.Errorf("rate limit burst must not be negative")
		}
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// ValidateStages checks a stage template for unique names and orders and
// known categories.
func ValidateStages(stages []models.StageTemplate) error {
	if len(stages) == 0 {
		return fmt.Errorf("at least one stage is required")
	}
	names := make(map[string]bool, len(stages))
	orders := make(map[int]bool, len(stages))
	for _, s := range stages {
		if strings.TrimSpace(s.Name) == "" {
			return fmt.Errorf("stage name is required")
		}
		if names[s.Name] {
			return fmt.Errorf("duplicate stage name %q", s.Name)
		}
		if orders[s.Order] {
			return fmt.Errorf("duplicate stage order %d", s.Order)
		}
		if !s.Category.Valid() {
			return fmt.Errorf("stage %q has invalid category %q", s.Name, s.Category)
		}
		names[s.Name] = true
		orders[s.Order] = true
	}
	return nil
}

// getEnv returns an environment variable value or a default
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvInt64 returns an int64 environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat returns a float environment variable or a default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
