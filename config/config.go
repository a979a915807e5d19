package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	defaultJWTSecret     = "your-secret-key-change-in-production"
	defaultEncryptionKey = "MicroFinGo2025SecureKey123456789"
)

type Config struct {
	DatabaseURL   string `env:"DATABASE_URL" envDefault:"microfin.db"`
	JWTSecret     string `env:"JWT_SECRET" envDefault:"your-secret-key-change-in-production"`
	JWTIssuer     string `env:"JWT_ISSUER"`
	JWTAudience   string `env:"JWT_AUDIENCE"`
	EncryptionKey string `env:"ENCRYPTION_KEY" envDefault:"MicroFinGo2025SecureKey123456789"`
	Port          string `env:"PORT" envDefault:"8080"`
	Environment   string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`
	SeedDemoData  bool   `env:"SEED_DEMO_DATA" envDefault:"false"`

	RateLimit RateLimitConfig
	CORS      CORSConfig

	RedisAddr     string        `env:"REDIS_ADDR"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	LoanLockTTL   time.Duration `env:"LOAN_LOCK_TTL" envDefault:"10s"`

	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string   `env:"KAFKA_TOPIC" envDefault:"microfin.loans"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `env:"RATE_LIMIT_RPS" envDefault:"10"`
	Burst             int     `env:"RATE_LIMIT_BURST" envDefault:"50"`
}

type CORSConfig struct {
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`
}

// Load reads the configuration from the process environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.Environment, "development")
}

// ValidateConfig returns an error for settings the service cannot start with and
// a list of warnings for settings that are merely unsafe.
func ValidateConfig(cfg *Config) ([]string, error) {
	var warnings []string

	if len(cfg.EncryptionKey) != 32 {
		return nil, fmt.Errorf("ENCRYPTION_KEY must be exactly 32 characters, got %d", len(cfg.EncryptionKey))
	}
	if cfg.RateLimit.RequestsPerSecond <= 0 || cfg.RateLimit.Burst <= 0 {
		return nil, fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive")
	}
	if cfg.LoanLockTTL <= 0 {
		return nil, fmt.Errorf("LOAN_LOCK_TTL must be positive")
	}
	if len(cfg.KafkaBrokers) > 0 && cfg.KafkaTopic == "" {
		return nil, fmt.Errorf("KAFKA_TOPIC is required when KAFKA_BROKERS is set")
	}

	if len(cfg.JWTSecret) < 32 {
		warnings = append(warnings, "JWT_SECRET should be at least 32 characters for security")
	}
	if cfg.IsProduction() {
		if cfg.JWTSecret == defaultJWTSecret {
			return warnings, fmt.Errorf("JWT_SECRET must be changed in production")
		}
		if cfg.EncryptionKey == defaultEncryptionKey {
			return warnings, fmt.Errorf("ENCRYPTION_KEY must be changed in production")
		}
		if cfg.SeedDemoData {
			warnings = append(warnings, "SEED_DEMO_DATA is enabled in production")
		}
	}

	return warnings, nil
}
