package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/datamed/datamed-api/config"
	"github.com/datamed/datamed-api/internal/core"
	"github.com/datamed/datamed-api/internal/data"
	"github.com/datamed/datamed-api/internal/data/cryptoutil"
	"github.com/datamed/datamed-api/internal/observability/statsd"
	"github.com/datamed/datamed-api/internal/ports"
	"github.com/datamed/datamed-api/internal/service"
	"github.com/redis/go-redis/v9"
)

const shutdownWaitTimeout = 30 * time.Second

// ServiceContainer holds the wired services shared by the HTTP server and
// the admin CLI.
type ServiceContainer struct {
	Auth      *service.AuthService
	Accounts  *service.AccountService
	Limiters  Limiters
	Issuer    ports.TokenIssuer
	Directory ports.AccountDirectory
	Health    map[string]core.HealthChecker
	Metrics   statsd.Sink

	closers []func() error
}

// Close releases resources owned by the container.
func (c ServiceContainer) Close() error {
	var errs []error
	for _, fn := range c.closers {
		if err := fn(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// NewServices wires repositories, the token verifier, rate limiters and the
// account service from configuration.
func NewServices(deps *ServiceDeps) (ServiceContainer, error) {
	if deps == nil || deps.Config == nil {
		return ServiceContainer{}, errors.New("service deps with config are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := deps.Config

	var c ServiceContainer
	sink, closeSink := BuildMetricsSink(cfg.Observability.Metrics, map[string]string{
		"service":   "datamed-api",
		"auth_mode": string(cfg.Auth.Mode),
	}, logger)
	c.Metrics = sink
	if closeSink != nil {
		c.closers = append(c.closers, closeSink)
	}

	tokens, err := BuildTokenVerifier(AuthConfig{Auth: cfg.Auth, Logger: logger})
	if err != nil {
		return c, err
	}
	c.Issuer = tokens.Issuer
	c.Auth = service.NewAuthService(service.AuthServiceOptions{
		Verifier: tokens.Verifier,
		Mode:     string(cfg.Auth.Mode),
		Metrics:  sink,
		Logger:   logger,
	})

	c.Directory, err = BuildAccountDirectory(AuthConfig{Auth: cfg.Auth, Logger: logger})
	if err != nil {
		return c, err
	}

	c.Limiters, err = BuildLimiters(LimiterConfig{Gate: cfg.Gate, RedisClient: deps.RedisClient, Logger: logger})
	if err != nil {
		return c, err
	}

	hasher, err := cryptoutil.NewBcryptHasher(cfg.Auth.PasswordHashCost)
	if err != nil {
		return c, fmt.Errorf("build password hasher: %w", err)
	}

	c.Health = make(map[string]core.HealthChecker, 2)
	var users core.UserRepository
	if deps.DB != nil {
		repo := data.NewUserRepo(deps.DB, &data.RealTimeProvider{})
		users = repo
		c.Health["postgres"] = repo
	}
	if deps.RedisClient != nil {
		c.Health["redis"] = redisHealth{client: deps.RedisClient}
	}

	if users != nil {
		c.Accounts = service.NewAccountService(service.AccountServiceOptions{
			Users:     users,
			Hasher:    hasher,
			Directory: c.Directory,
			Issuer:    tokens.Issuer,
			Metrics:   sink,
			Logger:    logger,
		})
	}
	return c, nil
}

// BuildMetricsSink returns a StatsD client when metrics are enabled. The
// returned sink is nil otherwise, and so is the close function.
//
//nolint:ireturn // a nil Sink disables emission downstream.
func BuildMetricsSink(
	cfg config.ObservabilityMetricsConfig,
	globalTags map[string]string,
	logger *slog.Logger,
) (statsd.Sink, func() error) {
	if !cfg.IsEnabled() {
		return nil, nil
	}
	obsLogger := logger.With("component", "observability")
	client, err := statsd.NewClient(statsd.Config{
		Enabled:    true,
		Address:    cfg.StatsdAddress,
		Prefix:     cfg.Prefix,
		GlobalTags: globalTags,
		Logger:     obsLogger,
	})
	if err != nil {
		obsLogger.Error("failed to initialise statsd client", "error", err)
		return nil, nil
	}
	return client, client.Close
}

type redisHealth struct {
	client redis.UniversalClient
}

func (h redisHealth) Health(ctx context.Context) error {
	return h.client.Ping(ctx).Err()
}

// ServiceOrchestrationConfig contains everything RunWithShutdown needs.
type ServiceOrchestrationConfig struct {
	Config   *config.AppConfig
	Services ServiceContainer
	Logger   *slog.Logger
}

// RunWithShutdown starts the HTTP server and blocks until SIGINT/SIGTERM or
// a server error, then shuts down gracefully.
func RunWithShutdown(cfg *ServiceOrchestrationConfig) error {
	if cfg == nil || cfg.Config == nil {
		return errors.New("service orchestration config is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	errCh := make(chan error, 1)
	server := StartHTTPServer(&HTTPServerConfig{
		Config:   cfg.Config,
		Services: cfg.Services,
		Logger:   logger,
		ErrCh:    errCh,
	})

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	var runErr error
	select {
	case <-quit:
		logger.Info("shutting down services...")
	case runErr = <-errCh:
		logger.Error("service error", "error", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownWaitTimeout)
	defer cancel()
	stopErr := ShutdownHTTPServer(ShutdownConfig{
		Context: shutdownCtx,
		Server:  server,
		Timeout: cfg.Config.HTTP.ShutdownTimeout,
		Logger:  logger,
	})
	if cerr := cfg.Services.Close(); cerr != nil {
		logger.Error("close services failed", "error", cerr)
	}
	if runErr != nil {
		return runErr
	}
	return stopErr
}
