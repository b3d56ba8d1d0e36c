package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setRequiredEnv(t *testing.T) {
	t.Setenv("POSTGRES_USER", "qb")
	t.Setenv("POSTGRES_PASSWORD", "secret")
	t.Setenv("POSTGRES_DB", "queenbee")
	t.Setenv("POSTGRES_HOST", "db")
	t.Setenv("STRIPE_SECRET_KEY", "sk_test_123")
	for _, key := range []string{
		"AWS_USE_SECRETS", "APP_ENV", "POSTGRES_PORT", "JWT_SECRET",
		"RATE_LIMIT_PER_MINUTE", "RATE_LIMIT_BURST", "REQUEST_TIMEOUT",
		"KAFKA_BROKERS", "ALLOWED_ORIGINS",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("PORT", "")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")
	t.Setenv("ALLOWED_ORIGINS", "https://queenbeecandles.co.nz, http://localhost:3000")

	cfg, err := LoadConfig(zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, "5000", cfg.Port)
	assert.Equal(t, "5432", cfg.Database.Port)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, []string{"https://queenbeecandles.co.nz", "http://localhost:3000"}, cfg.AllowedOrigins)
	assert.Equal(t, 30, cfg.RateLimitPerMinute)
	assert.Equal(t, 15*time.Second, cfg.RequestTimeout)
}

func TestLoadConfig_Validation(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("POSTGRES_PASSWORD", "")
	_, err := LoadConfig(zap.NewNop())
	assert.ErrorContains(t, err, "database config incomplete")

	setRequiredEnv(t)
	t.Setenv("STRIPE_SECRET_KEY", "")
	_, err = LoadConfig(zap.NewNop())
	assert.ErrorContains(t, err, "STRIPE_SECRET_KEY")

	setRequiredEnv(t)
	t.Setenv("APP_ENV", "production")
	t.Setenv("STRIPE_WEBHOOK_SECRET", "whsec_1")
	t.Setenv("JWT_SECRET", "")
	_, err = LoadConfig(zap.NewNop())
	assert.ErrorContains(t, err, "JWT_SECRET")

	setRequiredEnv(t)
	t.Setenv("APP_ENV", "development")
	t.Setenv("RATE_LIMIT_PER_MINUTE", "lots")
	_, err = LoadConfig(zap.NewNop())
	assert.ErrorContains(t, err, "RATE_LIMIT_PER_MINUTE")
}

type fakeSecrets struct {
	values map[string]string
	maps   map[string]map[string]string
}

func (f *fakeSecrets) GetSecret(_ context.Context, name string) (string, error) {
	if v, ok := f.values[name]; ok {
		return v, nil
	}
	return "", errors.New("not found")
}

func (f *fakeSecrets) GetSecretMap(_ context.Context, name string) (map[string]string, error) {
	if m, ok := f.maps[name]; ok {
		return m, nil
	}
	return nil, errors.New("not found")
}

func TestApplySecrets_OverridesNonEmptyValues(t *testing.T) {
	cfg := &Config{StripeSecretKey: "sk_env", StripeWebhookSecret: "whsec_env"}
	cfg.Database.User = "env_user"
	cfg.Database.Host = "env_host"

	applySecrets(context.Background(), cfg, &fakeSecrets{
		values: map[string]string{"queenbee/STRIPE_SECRET_KEY": " sk_live_1\n"},
		maps: map[string]map[string]string{
			"queenbee/DB_CREDENTIALS": {"POSTGRES_USER": "sm_user", "POSTGRES_HOST": ""},
		},
	}, zap.NewNop())

	assert.Equal(t, "sm_user", cfg.Database.User)
	assert.Equal(t, "env_host", cfg.Database.Host)
	assert.Equal(t, "sk_live_1", cfg.StripeSecretKey)
	assert.Equal(t, "whsec_env", cfg.StripeWebhookSecret)
}
