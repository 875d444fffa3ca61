package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Redis         RedisConfig         `yaml:"redis"`
	Archive       ArchiveConfig       `yaml:"archive"`
	Notify        NotifyConfig        `yaml:"notify"`
	Billing       BillingConfig       `yaml:"billing"`
	Invoices      InvoicesConfig      `yaml:"invoices"`
	Membership    MembershipConfig    `yaml:"membership"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds the ops HTTP server configuration (/healthz, /readyz,
// /metrics).
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL settings
type DatabaseConfig struct {
	URL         string        `yaml:"url"`
	ReplicaURLs []string      `yaml:"replica_urls"`
	MaxConns    int           `yaml:"max_conns"`
	MinConns    int           `yaml:"min_conns"`
	Timeout     time.Duration `yaml:"timeout"`
}

// RedisConfig holds Redis settings. An empty URL disables the Redis roster
// and notification relay.
type RedisConfig struct {
	URL          string `yaml:"url"`
	Password     string `yaml:"password"`
	DB           int    `yaml:"db"`
	MaxRetries   int    `yaml:"max_retries"`
	PoolSize     int    `yaml:"pool_size"`
	RosterPrefix string `yaml:"roster_prefix"`
	NotifyPrefix string `yaml:"notify_prefix"`
}

// Enabled reports whether Redis is configured.
func (c RedisConfig) Enabled() bool { return c.URL != "" }

// ArchiveConfig holds the S3 document archive settings. An empty bucket
// disables archival.
type ArchiveConfig struct {
	Endpoint     string `yaml:"endpoint"`
	Region       string `yaml:"region"`
	Bucket       string `yaml:"bucket"`
	AccessKey    string `yaml:"access_key"`
	SecretKey    string `yaml:"secret_key"`
	UsePathStyle bool   `yaml:"use_path_style"`
}

// Enabled reports whether a bucket is configured.
func (c ArchiveConfig) Enabled() bool { return c.Bucket != "" }

// NotifyConfig holds the outbound webhook settings. An empty URL disables
// webhook delivery.
type NotifyConfig struct {
	WebhookURL         string        `yaml:"webhook_url"`
	WebhookSecret      string        `yaml:"webhook_secret"`
	WebhookTimeout     time.Duration `yaml:"webhook_timeout"`
	WebhookMaxAttempts int           `yaml:"webhook_max_attempts"`
}

// BillingConfig holds the monthly billing job settings
type BillingConfig struct {
	VATRate          decimal.Decimal `yaml:"vat_rate"`
	PaymentTermsDays int             `yaml:"payment_terms_days"`
	Workers          int             `yaml:"workers"`
	ItemTimeout      time.Duration   `yaml:"item_timeout"`
	Schedule         string          `yaml:"schedule"`
}

// InvoicesConfig holds the expiry sweep settings
type InvoicesConfig struct {
	ExpiryGraceDays int           `yaml:"expiry_grace_days"`
	SweepSchedule   string        `yaml:"sweep_schedule"`
	Workers         int           `yaml:"workers"`
	ItemTimeout     time.Duration `yaml:"item_timeout"`
}

// MembershipConfig holds roster reconciliation and authorization cache settings
type MembershipConfig struct {
	ReconcileSchedule string        `yaml:"reconcile_schedule"`
	Workers           int           `yaml:"workers"`
	ItemTimeout       time.Duration `yaml:"item_timeout"`
	GateCacheTTL      time.Duration `yaml:"gate_cache_ttl"`
	GateCacheSize     int           `yaml:"gate_cache_size"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Metrics
	MetricsEnabled bool `yaml:"metrics_enabled"`

	// OpenTelemetry
	OTelEnabled        bool   `yaml:"otel_enabled"`
	OTelEndpoint       string `yaml:"otel_endpoint"`
	OTelServiceName    string `yaml:"otel_service_name"`
	OTelServiceVersion string `yaml:"otel_service_version"`
	OTelInsecure       bool   `yaml:"otel_insecure"` // Use insecure gRPC connection
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "9090",
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			MaxConns: 20,
			MinConns: 5,
			Timeout:  10 * time.Second,
		},
		Redis: RedisConfig{
			MaxRetries:   3,
			PoolSize:     10,
			RosterPrefix: "carehub:roster",
			NotifyPrefix: "carehub:notify",
		},
		Archive: ArchiveConfig{
			Region: "us-east-1",
		},
		Notify: NotifyConfig{
			WebhookTimeout:     10 * time.Second,
			WebhookMaxAttempts: 3,
		},
		Billing: BillingConfig{
			VATRate:          decimal.NewFromInt(21),
			PaymentTermsDays: 30,
			Workers:          4,
			ItemTimeout:      30 * time.Second,
			Schedule:         "0 2 1 * *",
		},
		Invoices: InvoicesConfig{
			ExpiryGraceDays: 30,
			SweepSchedule:   "30 3 * * *",
			Workers:         4,
			ItemTimeout:     10 * time.Second,
		},
		Membership: MembershipConfig{
			ReconcileSchedule: "*/15 * * * *",
			Workers:           4,
			ItemTimeout:       10 * time.Second,
			GateCacheTTL:      30 * time.Second,
			GateCacheSize:     10000,
		},
		Observability: ObservabilityConfig{
			LogLevel:           "info",
			LogFormat:          "json",
			MetricsEnabled:     true,
			OTelEndpoint:       "localhost:4317",
			OTelServiceName:    "carehub",
			OTelServiceVersion: "1.0.0",
			OTelInsecure:       true,
		},
	}
}

// LoadConfig loads configuration from the YAML file named by
// CAREHUB_CONFIG_FILE, if any, and then from CAREHUB_* environment
// variables. Environment variables win over the file.
func LoadConfig() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("CAREHUB_CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

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

func (c *Config) applyEnv() error {
	// Server
	c.Server.Host = getEnv("CAREHUB_HOST", c.Server.Host)
	c.Server.Port = getEnv("CAREHUB_PORT", c.Server.Port)
	c.Server.ShutdownTimeout = getEnvDuration("CAREHUB_SHUTDOWN_TIMEOUT", c.Server.ShutdownTimeout)

	// Database
	c.Database.URL = getEnv("CAREHUB_POSTGRES_URL", c.Database.URL)
	if replicas := getEnv("CAREHUB_POSTGRES_REPLICA_URLS", ""); replicas != "" {
		c.Database.ReplicaURLs = splitList(replicas)
	}
	c.Database.MaxConns = getEnvInt("CAREHUB_POSTGRES_MAX_CONNS", c.Database.MaxConns)
	c.Database.MinConns = getEnvInt("CAREHUB_POSTGRES_MIN_CONNS", c.Database.MinConns)
	c.Database.Timeout = getEnvDuration("CAREHUB_POSTGRES_TIMEOUT", c.Database.Timeout)

	// Redis
	c.Redis.URL = getEnv("CAREHUB_REDIS_URL", c.Redis.URL)
	c.Redis.Password = getEnv("CAREHUB_REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = getEnvInt("CAREHUB_REDIS_DB", c.Redis.DB)
	c.Redis.MaxRetries = getEnvInt("CAREHUB_REDIS_MAX_RETRIES", c.Redis.MaxRetries)
	c.Redis.PoolSize = getEnvInt("CAREHUB_REDIS_POOL_SIZE", c.Redis.PoolSize)
	c.Redis.RosterPrefix = getEnv("CAREHUB_ROSTER_PREFIX", c.Redis.RosterPrefix)
	c.Redis.NotifyPrefix = getEnv("CAREHUB_NOTIFY_PREFIX", c.Redis.NotifyPrefix)

	// Archive
	c.Archive.Endpoint = getEnv("CAREHUB_S3_ENDPOINT", c.Archive.Endpoint)
	c.Archive.Region = getEnv("CAREHUB_S3_REGION", c.Archive.Region)
	c.Archive.Bucket = getEnv("CAREHUB_S3_BUCKET", c.Archive.Bucket)
	c.Archive.AccessKey = getEnv("CAREHUB_S3_ACCESS_KEY", c.Archive.AccessKey)
	c.Archive.SecretKey = getEnv("CAREHUB_S3_SECRET_KEY", c.Archive.SecretKey)
	c.Archive.UsePathStyle = getEnvBool("CAREHUB_S3_USE_PATH_STYLE", c.Archive.UsePathStyle)

	// Notify
	c.Notify.WebhookURL = getEnv("CAREHUB_WEBHOOK_URL", c.Notify.WebhookURL)
	c.Notify.WebhookSecret = getEnv("CAREHUB_WEBHOOK_SECRET", c.Notify.WebhookSecret)
	c.Notify.WebhookTimeout = getEnvDuration("CAREHUB_WEBHOOK_TIMEOUT", c.Notify.WebhookTimeout)
	c.Notify.WebhookMaxAttempts = getEnvInt("CAREHUB_WEBHOOK_MAX_ATTEMPTS", c.Notify.WebhookMaxAttempts)

	// Billing
	vat, err := getEnvDecimal("CAREHUB_VAT_RATE", c.Billing.VATRate)
	if err != nil {
		return err
	}
	c.Billing.VATRate = vat
	c.Billing.PaymentTermsDays = getEnvInt("CAREHUB_PAYMENT_TERMS_DAYS", c.Billing.PaymentTermsDays)
	c.Billing.Workers = getEnvInt("CAREHUB_BILLING_WORKERS", c.Billing.Workers)
	c.Billing.ItemTimeout = getEnvDuration("CAREHUB_BILLING_ITEM_TIMEOUT", c.Billing.ItemTimeout)
	c.Billing.Schedule = getEnv("CAREHUB_BILLING_SCHEDULE", c.Billing.Schedule)

	// Invoices
	c.Invoices.ExpiryGraceDays = getEnvInt("CAREHUB_EXPIRY_GRACE_DAYS", c.Invoices.ExpiryGraceDays)
	c.Invoices.SweepSchedule = getEnv("CAREHUB_SWEEP_SCHEDULE", c.Invoices.SweepSchedule)
	c.Invoices.Workers = getEnvInt("CAREHUB_SWEEP_WORKERS", c.Invoices.Workers)
	c.Invoices.ItemTimeout = getEnvDuration("CAREHUB_SWEEP_ITEM_TIMEOUT", c.Invoices.ItemTimeout)

	// Membership
	c.Membership.ReconcileSchedule = getEnv("CAREHUB_RECONCILE_SCHEDULE", c.Membership.ReconcileSchedule)
	c.Membership.Workers = getEnvInt("CAREHUB_RECONCILE_WORKERS", c.Membership.Workers)
	c.Membership.ItemTimeout = getEnvDuration("CAREHUB_RECONCILE_ITEM_TIMEOUT", c.Membership.ItemTimeout)
	c.Membership.GateCacheTTL = getEnvDuration("CAREHUB_GATE_CACHE_TTL", c.Membership.GateCacheTTL)
	c.Membership.GateCacheSize = getEnvInt("CAREHUB_GATE_CACHE_SIZE", c.Membership.GateCacheSize)

	// Observability
	c.Observability.LogLevel = getEnv("CAREHUB_LOG_LEVEL", c.Observability.LogLevel)
	c.Observability.LogFormat = getEnv("CAREHUB_LOG_FORMAT", c.Observability.LogFormat)
	c.Observability.MetricsEnabled = getEnvBool("CAREHUB_METRICS_ENABLED", c.Observability.MetricsEnabled)
	c.Observability.OTelEnabled = getEnvBool("CAREHUB_OTEL_ENABLED", c.Observability.OTelEnabled)
	c.Observability.OTelEndpoint = getEnv("CAREHUB_OTEL_ENDPOINT", c.Observability.OTelEndpoint)
	c.Observability.OTelServiceName = getEnv("CAREHUB_OTEL_SERVICE_NAME", c.Observability.OTelServiceName)
	c.Observability.OTelServiceVersion = getEnv("CAREHUB_OTEL_SERVICE_VERSION", c.Observability.OTelServiceVersion)
	c.Observability.OTelInsecure = getEnvBool("CAREHUB_OTEL_INSECURE", c.Observability.OTelInsecure)

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return errors.New("ops server port is required")
	}
	if c.Database.URL == "" {
		return errors.New("postgres URL is required")
	}
	if c.Database.Timeout <= 0 {
		return errors.New("postgres timeout must be positive")
	}

	if c.Billing.VATRate.IsNegative() {
		return fmt.Errorf("VAT rate must not be negative, got %s", c.Billing.VATRate)
	}
	if !c.Billing.VATRate.Equal(c.Billing.VATRate.Round(2)) {
		return fmt.Errorf("VAT rate must have at most two decimals, got %s", c.Billing.VATRate)
	}
	if c.Billing.PaymentTermsDays < 0 {
		return errors.New("payment terms must not be negative")
	}
	if c.Invoices.ExpiryGraceDays < 0 {
		return errors.New("expiry grace days must not be negative")
	}

	for name, workers := range map[string]int{
		"billing":   c.Billing.Workers,
		"sweep":     c.Invoices.Workers,
		"reconcile": c.Membership.Workers,
	} {
		if workers <= 0 {
			return fmt.Errorf("%s workers must be positive", name)
		}
	}
	for name, timeout := range map[string]time.Duration{
		"billing":   c.Billing.ItemTimeout,
		"sweep":     c.Invoices.ItemTimeout,
		"reconcile": c.Membership.ItemTimeout,
	} {
		if timeout <= 0 {
			return fmt.Errorf("%s item timeout must be positive", name)
		}
	}

	for name, spec := range map[string]string{
		"billing":   c.Billing.Schedule,
		"sweep":     c.Invoices.SweepSchedule,
		"reconcile": c.Membership.ReconcileSchedule,
	} {
		if _, err := cron.ParseStandard(spec); err != nil {
			return fmt.Errorf("invalid %s schedule %q: %w", name, spec, err)
		}
	}

	if c.Archive.Enabled() && c.Archive.Region == "" {
		return errors.New("S3 region is required when an archive bucket is set")
	}

	if c.Notify.WebhookURL != "" {
		u, err := url.Parse(c.Notify.WebhookURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("invalid webhook URL %q", c.Notify.WebhookURL)
		}
		if c.Notify.WebhookMaxAttempts <= 0 {
			return errors.New("webhook max attempts must be positive")
		}
	}

	switch strings.ToLower(c.Observability.LogFormat) {
	case "json", "text":
	default:
		return fmt.Errorf("invalid log format: %s (must be json or text)", c.Observability.LogFormat)
	}

	// Validate OpenTelemetry config
	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return errors.New("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return errors.New("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// getEnv returns an environment variable value or a default
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

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvDecimal returns a decimal environment variable or a default. A
// malformed value is an error.
func getEnvDecimal(key string, defaultValue decimal.Decimal) (decimal.Decimal, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
