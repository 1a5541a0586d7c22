package bootstrap

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/datamed/datamed-api/config"
	"github.com/datamed/datamed-api/internal/adapters/keycloak"
	"github.com/datamed/datamed-api/internal/adapters/localjwt"
	redisadapter "github.com/datamed/datamed-api/internal/adapters/redis"
	"github.com/datamed/datamed-api/internal/domain/ratelimit"
	"github.com/datamed/datamed-api/internal/ports"
	"github.com/redis/go-redis/v9"
)

// AuthConfig contains configuration for the token verifier and account directory.
type AuthConfig struct {
	Auth   config.AuthConfig
	Logger *slog.Logger
}

// TokenComponents holds the verifier selected for the configured mode and,
// in local mode, the issuer that mints tokens on login.
type TokenComponents struct {
	Verifier ports.TokenVerifier
	// Issuer is nil in keycloak mode.
	Issuer ports.TokenIssuer
	// Keys is set in keycloak mode.
	Keys *keycloak.RealmKeySource
}

// BuildTokenVerifier selects the token verifier once for the process lifetime.
func BuildTokenVerifier(cfg AuthConfig) (TokenComponents, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.Auth.Mode {
	case config.AuthModeLocal:
		secret, err := cfg.Auth.TokenSecret()
		if err != nil {
			return TokenComponents{}, err
		}
		engine, err := localjwt.NewEngine(secret, localjwt.WithTTL(cfg.Auth.TokenTTL))
		if err != nil {
			return TokenComponents{}, fmt.Errorf("build token engine: %w", err)
		}
		logger.Info("token verification configured", "mode", cfg.Auth.Mode, "ttl", cfg.Auth.TokenTTL)
		return TokenComponents{Verifier: engine, Issuer: engine}, nil

	case config.AuthModeKeycloak:
		kc := cfg.Auth.Keycloak
		keys, err := keycloak.NewRealmKeySource(keycloak.KeySourceConfig{
			BaseURL:  kc.BaseURL(),
			Realm:    kc.Realm,
			CacheTTL: kc.PublicKeyCacheTTL,
			Timeout:  kc.HTTPTimeout,
			Logger:   logger,
		})
		if err != nil {
			return TokenComponents{}, fmt.Errorf("build keycloak key source: %w", err)
		}
		verifier, err := keycloak.NewVerifier(keys,
			keycloak.WithRolesClaim(kc.RolesClaim),
			keycloak.WithVerifierLogger(logger),
		)
		if err != nil {
			return TokenComponents{}, fmt.Errorf("build keycloak verifier: %w", err)
		}
		logger.Info("token verification configured",
			"mode", cfg.Auth.Mode,
			"realm_url", keycloak.RealmURL(kc.BaseURL(), kc.Realm),
			"key_cache_ttl", kc.PublicKeyCacheTTL,
		)
		return TokenComponents{Verifier: verifier, Keys: keys}, nil

	default:
		return TokenComponents{}, fmt.Errorf("unknown auth mode %q", cfg.Auth.Mode)
	}
}

// BuildAccountDirectory returns the Keycloak admin client when running in
// keycloak mode with admin credentials, or nil otherwise.
//
//nolint:ireturn // nil interface signals "no directory" to the account service.
func BuildAccountDirectory(cfg AuthConfig) (ports.AccountDirectory, error) {
	if cfg.Auth.Mode != config.AuthModeKeycloak {
		return nil, nil
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	kc := cfg.Auth.Keycloak
	if !kc.AdminEnabled() {
		logger.Warn("keycloak admin credentials not configured; accounts will be local only")
		return nil, nil
	}
	client, err := keycloak.NewAdminClient(keycloak.AdminConfig{
		BaseURL:    kc.BaseURL(),
		Realm:      kc.Realm,
		AdminRealm: kc.AdminRealm,
		ClientID:   kc.AdminClientID,
		Username:   kc.AdminUsername,
		Password:   kc.AdminPassword,
		Timeout:    kc.HTTPTimeout,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build keycloak admin client: %w", err)
	}
	return client, nil
}

// LimiterConfig configures BuildLimiters.
type LimiterConfig struct {
	Gate        config.GateConfig
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// Limiters are the two rate limit policies applied by the router.
type Limiters struct {
	Default *ratelimit.Limiter
	Auth    *ratelimit.Limiter
}

// BuildLimiters creates the default and auth limiters on the configured store.
// Both share one store; keys are namespaced by scope.
func BuildLimiters(cfg LimiterConfig) (Limiters, error) {
	var store ratelimit.Store
	switch cfg.Gate.RateLimitBackend {
	case config.RateLimitBackendRedis:
		if cfg.RedisClient == nil {
			return Limiters{}, errors.New("redis rate limit backend requires a redis client")
		}
		store = redisadapter.NewRateLimitStoreWithPrefix(cfg.RedisClient, cfg.Gate.RateLimitKeyPrefix)
	default:
		store = ratelimit.NewMemoryStore()
	}

	def, err := ratelimit.NewLimiter(store, ratelimit.Policy{
		MaxRequests: cfg.Gate.Default.MaxRequests,
		Window:      cfg.Gate.Default.Window,
	})
	if err != nil {
		return Limiters{}, fmt.Errorf("default rate limit: %w", err)
	}
	auth, err := ratelimit.NewLimiter(store, ratelimit.Policy{
		MaxRequests: cfg.Gate.Auth.MaxRequests,
		Window:      cfg.Gate.Auth.Window,
	})
	if err != nil {
		return Limiters{}, fmt.Errorf("auth rate limit: %w", err)
	}

	if cfg.Logger != nil {
		cfg.Logger.Info("rate limits configured",
			"backend", cfg.Gate.RateLimitBackend,
			"default_max", def.Policy().MaxRequests, "default_window", def.Policy().Window,
			"auth_max", auth.Policy().MaxRequests, "auth_window", auth.Policy().Window,
		)
	}
	return Limiters{Default: def, Auth: auth}, nil
}
