package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

type Config struct {
	DatabaseURL  string
	StoreBackend string
	Port         string

	RedisAddr     string
	RedisPassword string
	CacheTTL      time.Duration

	FCMCredentialsFile string
	ClerkSecretKey     string
	ServiceToken       string

	LogLevel string
	LogFile  string
	Location *time.Location

	NotifySweepInterval time.Duration
	NotifySweepBatch    int
	NotifyClaimLease    time.Duration
	TxMaxAttempts       int

	MetricsUser string
	MetricsPass string
}

// Load reads .env when present, then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv()
}

func FromEnv() (*Config, error) {
	cfg := &Config{
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		StoreBackend:       getEnv("STORE_BACKEND", BackendPostgres),
		Port:               getEnv("PORT", "3333"),
		RedisAddr:          os.Getenv("REDIS_ADDR"),
		RedisPassword:      os.Getenv("REDIS_PASSWORD"),
		FCMCredentialsFile: getEnv("FCM_CREDENTIALS_FILE", "./serviceAccountKey.json"),
		ClerkSecretKey:     os.Getenv("CLERK_SECRET_KEY"),
		ServiceToken:       os.Getenv("SERVICE_TOKEN"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		LogFile:            os.Getenv("LOG_FILE"),
		MetricsUser:        os.Getenv("METRICS_USER"),
		MetricsPass:        os.Getenv("METRICS_PASS"),
	}

	var err error
	if cfg.CacheTTL, err = getDuration("CACHE_TTL", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.NotifySweepInterval, err = getDuration("NOTIFY_SWEEP_INTERVAL", time.Minute); err != nil {
		return nil, err
	}
	if cfg.NotifyClaimLease, err = getDuration("NOTIFY_CLAIM_LEASE", 2*time.Minute); err != nil {
		return nil, err
	}
	if cfg.NotifySweepBatch, err = getInt("NOTIFY_SWEEP_BATCH", 100); err != nil {
		return nil, err
	}
	if cfg.TxMaxAttempts, err = getInt("TX_MAX_ATTEMPTS", 3); err != nil {
		return nil, err
	}

	tz := getEnv("TIMEZONE", "UTC")
	if cfg.Location, err = time.LoadLocation(tz); err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", tz, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.StoreBackend {
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL environment variable is not set")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}
	if c.TxMaxAttempts < 1 {
		return fmt.Errorf("TX_MAX_ATTEMPTS must be at least 1")
	}
	if c.NotifyClaimLease <= 0 {
		return fmt.Errorf("NOTIFY_CLAIM_LEASE must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return d, nil
}

func getInt(key string, defaultValue int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return n, nil
}
