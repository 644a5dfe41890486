package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		App:      AppConfig{Environment: "development", Port: 8080, HistoryDays: 30},
		Stripe:   StripeConfig{Timeout: 10 * time.Second},
		Sessions: SessionsConfig{TTL: 24 * time.Hour},
	}
}

func TestValidateDevelopmentAllowsMissingSecrets(t *testing.T) {
	cfg := validConfig()
	cfg.Database.Memory = true
	assert.NoError(t, cfg.Validate())
}

func TestValidateProductionRequiresWebhookSecret(t *testing.T) {
	cfg := validConfig()
	cfg.App.Environment = "production"
	cfg.Database.URL = "postgres://x"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "webhook_secret")

	cfg.Stripe.WebhookSecret = "whsec_test"
	assert.NoError(t, cfg.Validate())
}

func TestValidateProductionRejectsDisabledAuth(t *testing.T) {
	cfg := validConfig()
	cfg.App.Environment = "production"
	cfg.Database.URL = "postgres://x"
	cfg.Stripe.WebhookSecret = "whsec_test"
	cfg.Auth.Disabled = true
	assert.Error(t, cfg.Validate())
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("APP_ENVIRONMENT", "development")
	t.Setenv("APP_PORT", "9090")
	t.Setenv("SESSIONS_TTL", "2h")
	t.Setenv("DATABASE_MEMORY", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.App.Port)
	assert.Equal(t, 2*time.Hour, cfg.Sessions.TTL)
	assert.True(t, cfg.Database.Memory)
	assert.Equal(t, 10*time.Second, cfg.Stripe.Timeout)
}
