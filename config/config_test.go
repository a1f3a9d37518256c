package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig_FileAndDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", writeConfig(t, `
jwt:
  secret: file-secret
broker:
  type: amqp
outbox:
  batch_size: 25
  retry_delay: 2s
rate_limit:
  burst: 7
`))

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "file-secret", cfg.JWT.Secret)
	assert.Equal(t, "servicebook", cfg.JWT.Issuer)
	assert.Equal(t, "amqp", cfg.Broker.Type)
	assert.Equal(t, 25, cfg.Outbox.BatchSize)
	assert.Equal(t, 2*time.Second, cfg.Outbox.RetryDelay)
	assert.Equal(t, 168*time.Hour, cfg.Outbox.Retention)
	assert.Equal(t, 7, cfg.RateLimit.Burst)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "servicebook.events", cfg.AMQP.Exchange)
}

func TestLoadConfig_EnvironmentOverrides(t *testing.T) {
	t.Setenv("CONFIG_FILE", writeConfig(t, `
jwt:
  secret: file-secret
database:
  host: from-file
`))
	t.Setenv("SERVICEBOOK_DATABASE_HOST", "db.internal")
	t.Setenv("SERVICEBOOK_JWT_SECRET", "env-secret")
	t.Setenv("SERVICEBOOK_RATE_LIMIT_ENABLED", "false")
	t.Setenv("SERVICEBOOK_OUTBOX_POLL_INTERVAL", "250ms")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, "env-secret", cfg.JWT.Secret)
	assert.False(t, cfg.RateLimit.Enabled)
	assert.Equal(t, 250*time.Millisecond, cfg.Outbox.PollInterval)
}

func TestLoadConfig_Errors(t *testing.T) {
	t.Run("missing explicit file", func(t *testing.T) {
		t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "absent.yml"))
		_, err := LoadConfig()
		assert.Error(t, err)
	})

	t.Run("no secret", func(t *testing.T) {
		t.Setenv("CONFIG_FILE", writeConfig(t, "log:\n  level: debug\n"))
		_, err := LoadConfig()
		assert.ErrorContains(t, err, "jwt.secret")
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"redis", Config{JWT: JWTConfig{Secret: "s"}, Broker: BrokerConfig{Type: "redis"}}, false},
		{"memory upper case", Config{JWT: JWTConfig{Secret: "s"}, Broker: BrokerConfig{Type: "MEMORY"}}, false},
		{"unknown broker", Config{JWT: JWTConfig{Secret: "s"}, Broker: BrokerConfig{Type: "kafka"}}, true},
		{"missing secret", Config{Broker: BrokerConfig{Type: "redis"}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConverters(t *testing.T) {
	rl := RateLimitConfig{RequestsPerSecond: 5, Burst: 10}
	limiter := rl.ToLimiterConfig()
	assert.Equal(t, 10, limiter.Burst)
	assert.InDelta(t, 5, float64(limiter.Rate), 0.0001)

	cors := (&CORSConfig{AllowedOrigins: []string{"https://app.example.com"}}).ToCORSConfig()
	assert.Equal(t, []string{"https://app.example.com"}, cors.AllowOrigins)

	outbox := (&OutboxConfig{BatchSize: 3, MaxRetries: 4}).ToWorkerConfig()
	assert.Equal(t, 3, outbox.BatchSize)
	assert.Equal(t, 4, outbox.MaxRetries)
}
