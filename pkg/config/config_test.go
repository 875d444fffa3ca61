package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetEnv(t *testing.T) {
	t.Setenv("CAREHUB_TEST_VAR", "custom")
	assert.Equal(t, "custom", getEnv("CAREHUB_TEST_VAR", "default"))
	assert.Equal(t, "default", getEnv("CAREHUB_TEST_VAR_NOT_SET", "default"))
}

func TestGetEnvBool(t *testing.T) {
	tests := []struct {
		name         string
		envValue     string
		defaultValue bool
		want         bool
	}{
		{"true", "true", false, true},
		{"one", "1", false, true},
		{"uppercase", "TRUE", false, true},
		{"false", "false", true, false},
		{"garbage is false", "yes", true, false},
		{"unset uses default", "", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				t.Setenv("CAREHUB_TEST_BOOL", tt.envValue)
			}
			assert.Equal(t, tt.want, getEnvBool("CAREHUB_TEST_BOOL", tt.defaultValue))
		})
	}
}

func TestGetEnvIntAndDuration(t *testing.T) {
	t.Setenv("CAREHUB_TEST_INT", "42")
	t.Setenv("CAREHUB_TEST_BAD_INT", "forty-two")
	t.Setenv("CAREHUB_TEST_DURATION", "90s")
	t.Setenv("CAREHUB_TEST_BAD_DURATION", "soon")

	assert.Equal(t, 42, getEnvInt("CAREHUB_TEST_INT", 1))
	assert.Equal(t, 1, getEnvInt("CAREHUB_TEST_BAD_INT", 1))
	assert.Equal(t, 90*time.Second, getEnvDuration("CAREHUB_TEST_DURATION", time.Second))
	assert.Equal(t, time.Second, getEnvDuration("CAREHUB_TEST_BAD_DURATION", time.Second))
}

func TestGetEnvDecimal(t *testing.T) {
	t.Setenv("CAREHUB_TEST_DECIMAL", "9.5")
	got, err := getEnvDecimal("CAREHUB_TEST_DECIMAL", decimal.Zero)
	require.NoError(t, err)
	assert.Equal(t, "9.5", got.String())

	t.Setenv("CAREHUB_TEST_DECIMAL", "nine")
	_, err = getEnvDecimal("CAREHUB_TEST_DECIMAL", decimal.Zero)
	assert.Error(t, err)
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("CAREHUB_POSTGRES_URL", "postgres://localhost/carehub")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "21", cfg.Billing.VATRate.String())
	assert.Equal(t, 30, cfg.Invoices.ExpiryGraceDays)
	assert.Equal(t, 4, cfg.Billing.Workers)
	assert.Equal(t, 30*time.Second, cfg.Billing.ItemTimeout)
	assert.False(t, cfg.Redis.Enabled())
	assert.False(t, cfg.Archive.Enabled())
}

func TestLoadConfig_Environment(t *testing.T) {
	t.Setenv("CAREHUB_POSTGRES_URL", "postgres://primary/carehub")
	t.Setenv("CAREHUB_POSTGRES_REPLICA_URLS", "postgres://r1/carehub, postgres://r2/carehub,")
	t.Setenv("CAREHUB_REDIS_URL", "redis://localhost:6379/1")
	t.Setenv("CAREHUB_S3_BUCKET", "invoices")
	t.Setenv("CAREHUB_VAT_RATE", "9")
	t.Setenv("CAREHUB_BILLING_WORKERS", "8")
	t.Setenv("CAREHUB_GATE_CACHE_TTL", "0s")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, []string{"postgres://r1/carehub", "postgres://r2/carehub"}, cfg.Database.ReplicaURLs)
	assert.True(t, cfg.Redis.Enabled())
	assert.True(t, cfg.Archive.Enabled())
	assert.Equal(t, "9", cfg.Billing.VATRate.String())
	assert.Equal(t, 8, cfg.Billing.Workers)
	assert.Zero(t, cfg.Membership.GateCacheTTL)
}

func TestLoadConfig_FileWithEnvironmentOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "carehub.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database:
  url: postgres://from-file/carehub
billing:
  vat_rate: "6"
  item_timeout: 45s
  schedule: "0 4 1 * *"
invoices:
  expiry_grace_days: 60
observability:
  log_format: text
`), 0o600))

	t.Setenv("CAREHUB_CONFIG_FILE", path)
	t.Setenv("CAREHUB_EXPIRY_GRACE_DAYS", "45")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "postgres://from-file/carehub", cfg.Database.URL)
	assert.Equal(t, "6", cfg.Billing.VATRate.String())
	assert.Equal(t, 45*time.Second, cfg.Billing.ItemTimeout)
	assert.Equal(t, "0 4 1 * *", cfg.Billing.Schedule)
	assert.Equal(t, 45, cfg.Invoices.ExpiryGraceDays)
	assert.Equal(t, "text", cfg.Observability.LogFormat)
	assert.Equal(t, 4, cfg.Billing.Workers, "unset file keys keep their defaults")
}

func TestLoadConfig_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		t.Setenv("CAREHUB_CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
		_, err := LoadConfig()
		assert.ErrorContains(t, err, "failed to read config file")
	})

	t.Run("bad VAT", func(t *testing.T) {
		t.Setenv("CAREHUB_POSTGRES_URL", "postgres://localhost/carehub")
		t.Setenv("CAREHUB_VAT_RATE", "lots")
		_, err := LoadConfig()
		assert.ErrorContains(t, err, "CAREHUB_VAT_RATE")
	})

	t.Run("no database", func(t *testing.T) {
		_, err := LoadConfig()
		assert.ErrorContains(t, err, "postgres URL is required")
	})
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := Default()
		cfg.Database.URL = "postgres://localhost/carehub"
		return cfg
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"no port", func(c *Config) { c.Server.Port = "" }, "ops server port is required"},
		{"negative VAT", func(c *Config) { c.Billing.VATRate = decimal.NewFromInt(-1) }, "VAT rate"},
		{"sub-cent VAT", func(c *Config) { c.Billing.VATRate = decimal.RequireFromString("21.125") }, "at most two decimals"},
		{"zero workers", func(c *Config) { c.Invoices.Workers = 0 }, "sweep workers must be positive"},
		{"zero timeout", func(c *Config) { c.Membership.ItemTimeout = 0 }, "reconcile item timeout must be positive"},
		{"bad schedule", func(c *Config) { c.Billing.Schedule = "every monday" }, "invalid billing schedule"},
		{"negative grace", func(c *Config) { c.Invoices.ExpiryGraceDays = -1 }, "expiry grace"},
		{"archive without region", func(c *Config) { c.Archive.Bucket = "b"; c.Archive.Region = "" }, "S3 region"},
		{"relative webhook URL", func(c *Config) { c.Notify.WebhookURL = "/hooks" }, "invalid webhook URL"},
		{"webhook without attempts", func(c *Config) {
			c.Notify.WebhookURL = "https://hooks.example.com/carehub"
			c.Notify.WebhookMaxAttempts = 0
		}, "webhook max attempts"},
		{"bad log format", func(c *Config) { c.Observability.LogFormat = "xml" }, "invalid log format"},
		{"otel without endpoint", func(c *Config) {
			c.Observability.OTelEnabled = true
			c.Observability.OTelEndpoint = ""
		}, "OpenTelemetry endpoint"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.wantErr)
		})
	}
}
