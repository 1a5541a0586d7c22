package bootstrap

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/datamed/datamed-api/config"
	"github.com/joho/godotenv"
)

// InitLogger initializes the structured logger.
func InitLogger() *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)
	return logger
}

// ConfigureLogger applies the loaded configuration to the logger created by
// InitLogger. Development mode switches to text output at debug level.
func ConfigureLogger(cfg *config.AppConfig) *slog.Logger {
	if cfg == nil || !cfg.IsDev {
		return slog.Default()
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)
	return logger
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (config.AppConfig, error) {
	// Load .env file if it exists (development)
	if err := godotenv.Load(); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			return config.AppConfig{}, fmt.Errorf("load .env file: %w", err)
		}
	}

	var cfg config.AppConfig
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}

	cfg.Sanitize()
	return cfg, nil
}

// ValidateConfig checks that the selected auth mode and rate-limit backend
// have what they need to start.
func ValidateConfig(cfg *config.AppConfig) error {
	if cfg == nil {
		return errors.New("config is required")
	}

	var errs []error
	switch cfg.Auth.Mode {
	case config.AuthModeLocal:
		if _, err := cfg.Auth.TokenSecret(); err != nil {
			errs = append(errs, fmt.Errorf("local auth: %w", err))
		}
	case config.AuthModeKeycloak:
		if cfg.Auth.Keycloak.URL == "" {
			errs = append(errs, errors.New("keycloak auth: KEYCLOAK_URL is required"))
		}
		if cfg.Auth.Keycloak.Realm == "" {
			errs = append(errs, errors.New("keycloak auth: KEYCLOAK_REALM is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown auth mode %q", cfg.Auth.Mode))
	}

	if cfg.Gate.RateLimitBackend == config.RateLimitBackendRedis &&
		cfg.Redis.URI == "" && !cfg.Redis.UseSentinel {
		errs = append(errs, errors.New("redis rate limiting: REDIS_URI is required"))
	}

	return errors.Join(errs...)
}
