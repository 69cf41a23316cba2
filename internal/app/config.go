package app

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Storage drivers, поддерживаемые приложением.
const (
	StorageDriverMemory   = "memory"
	StorageDriverPostgres = "postgres"
)

// Config описывает настройки запуска приложения.
type Config struct {
	MetricsAddr string

	StorageDriver string
	PostgresDSN   string
	AutoMigrate   bool

	KafkaBrokers string

	RedisAddr        string
	CustomerCacheTTL time.Duration

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int

	IdempotencyTTL             time.Duration
	IdempotencyCleanupInterval time.Duration

	CommitRetries        int
	CommitRetryBaseDelay time.Duration
}

// DefaultConfig возвращает базовые настройки: in-memory storage без брокера.
func DefaultConfig() Config {
	return Config{
		MetricsAddr:                ":9090",
		StorageDriver:              StorageDriverMemory,
		AutoMigrate:                true,
		CustomerCacheTTL:           10 * time.Minute,
		OutboxPollInterval:         time.Second,
		OutboxBatchSize:            100,
		OutboxMaxAttempts:          3,
		IdempotencyTTL:             24 * time.Hour,
		IdempotencyCleanupInterval: 5 * time.Minute,
		CommitRetries:              3,
		CommitRetryBaseDelay:       10 * time.Millisecond,
	}
}

// ReadConfig строит конфигурацию из окружения поверх DefaultConfig.
func ReadConfig() (Config, error) {
	cfg := DefaultConfig()

	if v := os.Getenv("OPS_METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
	if v := os.Getenv("OPS_STORAGE_DRIVER"); v != "" {
		driver := strings.ToLower(strings.TrimSpace(v))
		if driver != StorageDriverMemory && driver != StorageDriverPostgres {
			return Config{}, fmt.Errorf("unsupported OPS_STORAGE_DRIVER: %s (use memory|postgres)", v)
		}
		cfg.StorageDriver = driver
	}
	cfg.PostgresDSN = strings.TrimSpace(os.Getenv("OPS_POSTGRES_DSN"))
	if cfg.StorageDriver == StorageDriverPostgres && cfg.PostgresDSN == "" {
		return Config{}, fmt.Errorf("OPS_POSTGRES_DSN is required for postgres storage driver")
	}

	var err error
	if cfg.AutoMigrate, err = readBool("OPS_AUTO_MIGRATE", cfg.AutoMigrate); err != nil {
		return Config{}, err
	}

	cfg.KafkaBrokers = strings.TrimSpace(os.Getenv("KAFKA_BROKERS"))
	cfg.RedisAddr = strings.TrimSpace(os.Getenv("REDIS_ADDR"))

	if cfg.CustomerCacheTTL, err = readDuration("OPS_CUSTOMER_CACHE_TTL", cfg.CustomerCacheTTL); err != nil {
		return Config{}, err
	}
	if cfg.OutboxPollInterval, err = readDuration("OPS_OUTBOX_POLL_INTERVAL", cfg.OutboxPollInterval); err != nil {
		return Config{}, err
	}
	if cfg.OutboxBatchSize, err = readInt("OPS_OUTBOX_BATCH_SIZE", cfg.OutboxBatchSize); err != nil {
		return Config{}, err
	}
	if cfg.OutboxMaxAttempts, err = readInt("OPS_OUTBOX_MAX_ATTEMPTS", cfg.OutboxMaxAttempts); err != nil {
		return Config{}, err
	}
	if cfg.IdempotencyTTL, err = readDuration("OPS_IDEMPOTENCY_TTL", cfg.IdempotencyTTL); err != nil {
		return Config{}, err
	}
	if cfg.IdempotencyCleanupInterval, err = readDuration("OPS_IDEMPOTENCY_CLEANUP_INTERVAL", cfg.IdempotencyCleanupInterval); err != nil {
		return Config{}, err
	}
	if cfg.CommitRetries, err = readInt("OPS_COMMIT_RETRIES", cfg.CommitRetries); err != nil {
		return Config{}, err
	}
	if cfg.CommitRetryBaseDelay, err = readDuration("OPS_COMMIT_RETRY_BASE_DELAY", cfg.CommitRetryBaseDelay); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func readBool(name string, fallback bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return fallback, nil
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("parse %s: %w", name, err)
	}
	return parsed, nil
}

func readInt(name string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", name, err)
	}
	return parsed, nil
}

func readDuration(name string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return fallback, nil
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", name, err)
	}
	return parsed, nil
}
