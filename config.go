package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"queenbee-api/database"
	aws_pkg "queenbee-api/pkg/aws"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

const serviceName = "queenbee-api"

type Config struct {
	Port   string
	AppEnv string

	Database database.Config
	RedisURL string

	StripeSecretKey     string
	StripeWebhookSecret string

	OrderSNSTopicARN string
	KafkaBrokers     []string
	OrderEventsTopic string

	JWTSecret      string
	AllowedOrigins []string

	RateLimitPerMinute int
	RateLimitBurst     int
	RequestTimeout     time.Duration

	MetricsEnabled     bool
	CloudWatchLogs     bool
	CloudWatchLogGroup string
}

// LoadConfig reads configuration from the environment, optionally loading a
// .env file first and overriding credentials from Secrets Manager.
func LoadConfig(logger *zap.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Info("No .env file found, using system environment variables")
	}

	cfg := &Config{
		Port:   getEnv("PORT", "5000"),
		AppEnv: getEnv("APP_ENV", "development"),
		Database: database.Config{
			User:     os.Getenv("POSTGRES_USER"),
			Password: os.Getenv("POSTGRES_PASSWORD"),
			Name:     os.Getenv("POSTGRES_DB"),
			Host:     getEnv("POSTGRES_HOST", "localhost"),
			Port:     getEnv("POSTGRES_PORT", "5432"),
			SSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
			TimeZone: getEnv("POSTGRES_TIMEZONE", "Pacific/Auckland"),
		},
		RedisURL:            os.Getenv("REDIS_URL"),
		StripeSecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		OrderSNSTopicARN:    os.Getenv("ORDER_SNS_TOPIC_ARN"),
		KafkaBrokers:        splitList(os.Getenv("KAFKA_BROKERS")),
		OrderEventsTopic:    getEnv("ORDER_EVENTS_TOPIC", "order-events"),
		JWTSecret:           os.Getenv("JWT_SECRET"),
		AllowedOrigins:      splitList(getEnv("ALLOWED_ORIGINS", "http://localhost:3000")),
		MetricsEnabled:      getEnv("METRICS_ENABLED", "false") == "true",
		CloudWatchLogs:      getEnv("CLOUDWATCH_LOGS_ENABLED", "false") == "true",
		CloudWatchLogGroup:  getEnv("CLOUDWATCH_LOG_GROUP", "/queenbee/api"),
	}

	var err error
	if cfg.RateLimitPerMinute, err = getEnvInt("RATE_LIMIT_PER_MINUTE", 30); err != nil {
		return nil, err
	}
	if cfg.RateLimitBurst, err = getEnvInt("RATE_LIMIT_BURST", 10); err != nil {
		return nil, err
	}
	if cfg.RequestTimeout, err = time.ParseDuration(getEnv("REQUEST_TIMEOUT", "15s")); err != nil {
		return nil, fmt.Errorf("REQUEST_TIMEOUT: %w", err)
	}

	if os.Getenv("AWS_USE_SECRETS") == "true" {
		if awsCfg, err := aws_pkg.LoadAWSConfig(context.Background()); err != nil {
			logger.Warn("AWS config unavailable, skipping Secrets Manager", zap.Error(err))
		} else {
			applySecrets(context.Background(), cfg, aws_pkg.NewSecretsClient(awsCfg), logger)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SecretSource is the subset of the Secrets Manager client used by config.
type SecretSource interface {
	GetSecret(ctx context.Context, name string) (string, error)
	GetSecretMap(ctx context.Context, name string) (map[string]string, error)
}

func applySecrets(ctx context.Context, cfg *Config, sm SecretSource, logger *zap.Logger) {
	if m, err := sm.GetSecretMap(ctx, "queenbee/DB_CREDENTIALS"); err == nil {
		override(&cfg.Database.User, m["POSTGRES_USER"])
		override(&cfg.Database.Password, m["POSTGRES_PASSWORD"])
		override(&cfg.Database.Name, m["POSTGRES_DB"])
		override(&cfg.Database.Host, m["POSTGRES_HOST"])
		override(&cfg.Database.Port, m["POSTGRES_PORT"])
	} else {
		logger.Warn("DB credentials secret unavailable", zap.Error(err))
	}

	if v, err := sm.GetSecret(ctx, "queenbee/STRIPE_SECRET_KEY"); err == nil {
		override(&cfg.StripeSecretKey, strings.TrimSpace(v))
	} else {
		logger.Warn("Stripe secret key unavailable", zap.Error(err))
	}
	if v, err := sm.GetSecret(ctx, "queenbee/STRIPE_WEBHOOK_SECRET"); err == nil {
		override(&cfg.StripeWebhookSecret, strings.TrimSpace(v))
	} else {
		logger.Warn("Stripe webhook secret unavailable", zap.Error(err))
	}
}

func override(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func (c *Config) validate() error {
	if c.Database.User == "" || c.Database.Password == "" || c.Database.Name == "" || c.Database.Host == "" {
		return fmt.Errorf("database config incomplete")
	}
	if c.StripeSecretKey == "" {
		return fmt.Errorf("STRIPE_SECRET_KEY is required")
	}
	if c.AppEnv == "production" {
		if c.StripeWebhookSecret == "" {
			return fmt.Errorf("STRIPE_WEBHOOK_SECRET is required in production")
		}
		if c.JWTSecret == "" {
			return fmt.Errorf("JWT_SECRET is required in production")
		}
	}
	return nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return v, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
