// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"tradebybarter-ledger/pkg/db"
)

// AppConfig holds all application-wide configurations.
type AppConfig struct {
	ServerPort     string
	LogLevel       string
	RequestTimeout time.Duration
	JWTSecret      string
	DB             db.Config
	DBAutoMigrate  bool
	Redis          RedisConfig
	Events         EventsConfig
	Escrow         EscrowConfig
	Sweep          SweepConfig
}

// RedisConfig configures the idempotency store and the sweep lock. An empty Addr disables both.
type RedisConfig struct {
	Addr           string
	Password       string
	DB             int
	IdempotencyTTL time.Duration
}

// Enabled reports whether a Redis address was configured.
func (c RedisConfig) Enabled() bool { return c.Addr != "" }

// EventsConfig configures the RabbitMQ publisher. An empty URL disables publishing.
type EventsConfig struct {
	RabbitMQURL string
	Exchange    string
}

// EscrowConfig holds the escrow business parameters.
type EscrowConfig struct {
	FeeRate                 decimal.Decimal // Fraction, 0.05 for 5%
	MinAmountKobo           int64
	AutoReleaseAfter        time.Duration
	DisputeResolutionWindow time.Duration
}

// SweepConfig controls the background expiry sweep.
type SweepConfig struct {
	Interval  time.Duration
	BatchSize int
}

// LoadConfig loads configuration from environment variables, after an optional .env file.
func LoadConfig() (*AppConfig, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	// Tokens are HMAC-signed, so a default secret would let anyone mint them.
	jwtSecret := getEnv("JWT_SECRET", "")
	if jwtSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	dbPort, err := getEnvAsInt("DB_PORT", 5432)
	if err != nil {
		return nil, err
	}
	redisDB, err := getEnvAsInt("REDIS_DB", 0)
	if err != nil {
		return nil, err
	}
	requestTimeout, err := getEnvAsDuration("REQUEST_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}
	idempotencyTTL, err := getEnvAsDuration("IDEMPOTENCY_TTL", 24*time.Hour)
	if err != nil {
		return nil, err
	}
	sweepInterval, err := getEnvAsDuration("SWEEP_INTERVAL", 15*time.Minute)
	if err != nil {
		return nil, err
	}
	sweepBatch, err := getEnvAsInt("SWEEP_BATCH_SIZE", 100)
	if err != nil {
		return nil, err
	}
	autoMigrate, err := getEnvAsBool("DB_AUTO_MIGRATE", true)
	if err != nil {
		return nil, err
	}

	feePercent, err := decimal.NewFromString(getEnv("ESCROW_FEE_PERCENTAGE", "5"))
	if err != nil {
		return nil, fmt.Errorf("invalid ESCROW_FEE_PERCENTAGE: %w", err)
	}
	if feePercent.IsNegative() || feePercent.GreaterThan(decimal.NewFromInt(100)) {
		return nil, fmt.Errorf("invalid ESCROW_FEE_PERCENTAGE: %s is outside 0..100", feePercent)
	}
	minAmount, err := getEnvAsInt("ESCROW_MIN_AMOUNT_KOBO", 10000)
	if err != nil {
		return nil, err
	}
	autoReleaseDays, err := getEnvAsInt("ESCROW_AUTO_RELEASE_DAYS", 7)
	if err != nil {
		return nil, err
	}
	disputeHours, err := getEnvAsInt("DISPUTE_RESOLUTION_HOURS", 72)
	if err != nil {
		return nil, err
	}

	return &AppConfig{
		ServerPort:     getEnv("SERVER_PORT", "8080"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		RequestTimeout: requestTimeout,
		JWTSecret:      jwtSecret,
		DB: db.Config{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     dbPort,
			User:     getEnv("DB_USER", "user"),
			Password: getEnv("DB_PASSWORD", "password"),
			DBName:   getEnv("DB_NAME", "tradebybarter"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		DBAutoMigrate: autoMigrate,
		Redis: RedisConfig{
			Addr:           getEnv("REDIS_ADDR", ""),
			Password:       getEnv("REDIS_PASSWORD", ""),
			DB:             redisDB,
			IdempotencyTTL: idempotencyTTL,
		},
		Events: EventsConfig{
			RabbitMQURL: getEnv("RABBITMQ_URL", ""),
			Exchange:    getEnv("EVENTS_EXCHANGE", "tradebybarter.ledger"),
		},
		Escrow: EscrowConfig{
			FeeRate:                 feePercent.Div(decimal.NewFromInt(100)),
			MinAmountKobo:           int64(minAmount),
			AutoReleaseAfter:        time.Duration(autoReleaseDays) * 24 * time.Hour,
			DisputeResolutionWindow: time.Duration(disputeHours) * time.Hour,
		},
		Sweep: SweepConfig{
			Interval:  sweepInterval,
			BatchSize: sweepBatch,
		},
	}, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) (int, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func getEnvAsBool(key string, fallback bool) (bool, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func getEnvAsDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}
