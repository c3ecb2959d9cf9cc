package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/pricing"
	"github.com/fjod/storefront/internal/repository"
	"github.com/shopspring/decimal"
)

type Config struct {
	HTTPPort        string
	LogLevel        string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	// WriteTimeout must outlast the longest gateway wait.
	WriteTimeout time.Duration

	DB repository.Credentials

	RedisAddr     string
	RedisPassword string
	StateTTL      time.Duration

	KafkaBrokers []string
	KafkaTopic   string

	Currency    string
	TaxRate     decimal.Decimal
	StaleAfter  time.Duration
	ExpireAfter time.Duration

	QRPollInterval       time.Duration
	QRMaxDuration        time.Duration
	BreakerMaxFailures   uint32
	BreakerOpenTimeout   time.Duration
	SandboxApproveAfter  int
	SandboxActionBaseURL string
}

func loadConfig() (*Config, error) {
	port, err := strconv.Atoi(getEnv("DB_PORT", "5432"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_PORT: %w", err)
	}

	taxRate, err := decimal.NewFromString(getEnv("TAX_RATE", pricing.DefaultTaxRate.String()))
	if err != nil {
		return nil, fmt.Errorf("invalid TAX_RATE: %w", err)
	}
	if taxRate.IsNegative() {
		return nil, fmt.Errorf("invalid TAX_RATE: %s is negative", taxRate)
	}

	maxFailures, err := strconv.ParseUint(getEnv("BREAKER_MAX_FAILURES", "5"), 10, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid BREAKER_MAX_FAILURES: %w", err)
	}
	approveAfter, err := strconv.Atoi(getEnv("SANDBOX_APPROVE_AFTER", "2"))
	if err != nil {
		return nil, fmt.Errorf("invalid SANDBOX_APPROVE_AFTER: %w", err)
	}

	cfg := &Config{
		HTTPPort: getEnv("HTTP_PORT", "8080"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		DB: repository.Credentials{
			Driver:     getEnv("DB_DRIVER", repository.DriverPostgres),
			Host:       getEnv("DB_HOST", "localhost"),
			Port:       port,
			User:       getEnv("DB_USER", "postgres"),
			Password:   getEnv("DB_PASSWORD", "postgres"),
			DBName:     getEnv("DB_NAME", "storefront"),
			SQLitePath: getEnv("SQLITE_PATH", "storefront.db"),
		},
		RedisAddr:            getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:        getEnv("REDIS_PASSWORD", ""),
		KafkaBrokers:         strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ","),
		KafkaTopic:           getEnv("KAFKA_TOPIC", "checkout-outbox"),
		Currency:             getEnv("CURRENCY", domain.DefaultCurrency),
		TaxRate:              taxRate,
		BreakerMaxFailures:   uint32(maxFailures),
		SandboxApproveAfter:  approveAfter,
		SandboxActionBaseURL: getEnv("SANDBOX_ACTION_BASE_URL", "http://localhost:8080/sandbox/"),
	}

	durations := []struct {
		key string
		def string
		dst *time.Duration
	}{
		{"REQUEST_TIMEOUT", "30s", &cfg.RequestTimeout},
		{"SHUTDOWN_TIMEOUT", "10s", &cfg.ShutdownTimeout},
		{"WRITE_TIMEOUT", "6m", &cfg.WriteTimeout},
		{"CHECKOUT_STATE_TTL", "30m", &cfg.StateTTL},
		{"STALE_AFTER", "1m", &cfg.StaleAfter},
		{"EXPIRE_AFTER", "30m", &cfg.ExpireAfter},
		{"QR_POLL_INTERVAL", "3s", &cfg.QRPollInterval},
		{"QR_MAX_DURATION", "5m", &cfg.QRMaxDuration},
		{"BREAKER_OPEN_TIMEOUT", "30s", &cfg.BreakerOpenTimeout},
	}
	for _, d := range durations {
		v, err := time.ParseDuration(getEnv(d.key, d.def))
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", d.key, err)
		}
		*d.dst = v
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
