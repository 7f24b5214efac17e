// Package config loads and validates client config from env and an optional .env file using Viper.
package config

import (
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Storage backends accepted by STORAGE_BACKEND.
const (
	StorageFile   = "file"
	StorageRedis  = "redis"
	StorageMemory = "memory"
)

// Config holds client configuration loaded from the environment.
type Config struct {
	// IdentityAPIURL is the base URL of the identity backend (login, send-otp, verify-otp, me, check-account-status).
	IdentityAPIURL string `mapstructure:"IDENTITY_API_URL"`
	// CartAPIURL is the base URL of the cart backend (GET/PATCH /users/:id). Defaults to IdentityAPIURL.
	CartAPIURL string `mapstructure:"CART_API_URL"`
	// HTTPTimeout is the transport timeout for backend calls (e.g. "30s").
	HTTPTimeout string `mapstructure:"HTTP_TIMEOUT"`

	// OTPTTL is the client-side countdown for a verification code (e.g. "300s").
	OTPTTL string `mapstructure:"OTP_TTL"`
	// OTPResendInterval is the minimum spacing between code sends for one email/purpose. "0s" disables the throttle.
	OTPResendInterval string `mapstructure:"OTP_RESEND_INTERVAL"`

	// InactivityWarnAfter is the idle time before the expiry warning is shown (e.g. "10m").
	InactivityWarnAfter string `mapstructure:"INACTIVITY_WARN_AFTER"`
	// InactivityCountdown is the length of the warning countdown before logout (e.g. "60s").
	InactivityCountdown string `mapstructure:"INACTIVITY_COUNTDOWN"`

	// StorageBackend selects durable storage: file, redis, or memory.
	StorageBackend string `mapstructure:"STORAGE_BACKEND"`
	// StoragePath is the state file used by the file backend.
	StoragePath string `mapstructure:"STORAGE_PATH"`
	// RedisAddr is host:port for the redis backend.
	RedisAddr string `mapstructure:"REDIS_ADDR"`
	// RedisKeyPrefix namespaces keys in the redis backend.
	RedisKeyPrefix string `mapstructure:"REDIS_KEY_PREFIX"`
	// StorageSealKey is an optional hex-encoded 32-byte key; when set, persisted values are encrypted at rest.
	StorageSealKey string `mapstructure:"STORAGE_SEAL_KEY"`

	// LogLevel is debug, info, warn, or error.
	LogLevel string `mapstructure:"LOG_LEVEL"`
	// OTLPEndpoint is the collector endpoint; empty disables export.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// OTLPInsecure forces plaintext to the collector even for https endpoints.
	OTLPInsecure bool `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	// KafkaBrokers is a comma-separated broker list; when set, session lifecycle events are published to Kafka.
	KafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// SessionEventsTopic is the Kafka topic for session lifecycle events.
	SessionEventsTopic string `mapstructure:"SESSION_EVENTS_TOPIC"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored. Env vars override .env.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("IDENTITY_API_URL", "")
	v.SetDefault("CART_API_URL", "")
	v.SetDefault("HTTP_TIMEOUT", "30s")
	v.SetDefault("OTP_TTL", "300s")
	v.SetDefault("OTP_RESEND_INTERVAL", "30s")
	v.SetDefault("INACTIVITY_WARN_AFTER", "10m")
	v.SetDefault("INACTIVITY_COUNTDOWN", "60s")
	v.SetDefault("STORAGE_BACKEND", StorageFile)
	v.SetDefault("STORAGE_PATH", defaultStoragePath())
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_KEY_PREFIX", "storefront:")
	v.SetDefault("STORAGE_SEAL_KEY", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("SESSION_EVENTS_TOPIC", "storefront-session-events")
	v.SetDefault("APP_ENV", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.IdentityAPIURL = strings.TrimRight(strings.TrimSpace(cfg.IdentityAPIURL), "/")
	if cfg.IdentityAPIURL == "" {
		return nil, errors.New("config: IDENTITY_API_URL must be set")
	}
	cfg.CartAPIURL = strings.TrimRight(strings.TrimSpace(cfg.CartAPIURL), "/")
	if cfg.CartAPIURL == "" {
		cfg.CartAPIURL = cfg.IdentityAPIURL
	}

	cfg.StorageBackend = strings.ToLower(strings.TrimSpace(cfg.StorageBackend))
	switch cfg.StorageBackend {
	case StorageFile:
		if cfg.StoragePath == "" {
			return nil, errors.New("config: STORAGE_PATH must be set for the file backend")
		}
	case StorageRedis:
		if cfg.RedisAddr == "" {
			return nil, errors.New("config: REDIS_ADDR must be set for the redis backend")
		}
	case StorageMemory:
	default:
		return nil, errors.New("config: STORAGE_BACKEND must be one of file, redis, memory")
	}

	if cfg.StorageSealKey != "" {
		if _, err := cfg.SealKey(); err != nil {
			return nil, err
		}
	}
	if cfg.StorageSealKey == "" && cfg.Env == "production" {
		return nil, errors.New("config: STORAGE_SEAL_KEY must be set when APP_ENV=production")
	}

	return &cfg, nil
}

func defaultStoragePath() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return filepath.Join(".storefront", "state.json")
	}
	return filepath.Join(home, ".storefront", "state.json")
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// Timeout parses HTTPTimeout. Returns 30s if unset or invalid.
func (c *Config) Timeout() time.Duration {
	return parseDuration(c.HTTPTimeout, 30*time.Second)
}

// ChallengeTTL parses OTPTTL. Returns 300s if unset or invalid.
func (c *Config) ChallengeTTL() time.Duration {
	return parseDuration(c.OTPTTL, 300*time.Second)
}

// ResendInterval parses OTPResendInterval. "0s" returns 0 (throttle off); invalid returns 30s.
func (c *Config) ResendInterval() time.Duration {
	d, err := time.ParseDuration(c.OTPResendInterval)
	if err != nil || d < 0 {
		return 30 * time.Second
	}
	return d
}

// WarnAfter parses InactivityWarnAfter. Returns 10m if unset or invalid.
func (c *Config) WarnAfter() time.Duration {
	return parseDuration(c.InactivityWarnAfter, 10*time.Minute)
}

// Countdown parses InactivityCountdown. Returns 60s if unset or invalid.
func (c *Config) Countdown() time.Duration {
	return parseDuration(c.InactivityCountdown, 60*time.Second)
}

// SealKey decodes StorageSealKey. Returns nil, nil when sealing is disabled.
func (c *Config) SealKey() ([]byte, error) {
	if c.StorageSealKey == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(strings.TrimSpace(c.StorageSealKey))
	if err != nil || len(key) != 32 {
		return nil, errors.New("config: STORAGE_SEAL_KEY must be 64 hex characters")
	}
	return key, nil
}

// KafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// An empty list disables the Kafka event sink.
func (c *Config) KafkaBrokersList() []string {
	if c == nil || c.KafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.KafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
