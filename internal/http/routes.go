package httpx

import (
	"log/slog"
	"net/http"

	"github.com/datamed/datamed-api/internal/core"
	domainauth "github.com/datamed/datamed-api/internal/domain/auth"
	"github.com/datamed/datamed-api/internal/observability/statsd"
)

// Rate limit scopes.
const (
	ScopeDefault = "default"
	ScopeAuth    = "auth"
)

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	Accounts      AccountServiceInterface
	Authenticator Authenticator

	// DefaultLimiter guards authenticated routes; AuthLimiter guards register
	// and login. A nil limiter disables that stage.
	DefaultLimiter    RateLimiter
	AuthLimiter       RateLimiter
	TrustForwardedFor bool

	Upload UploadPolicy

	// AdminLookup mounts GET /admin/accounts. Only meaningful when an
	// identity provider directory is configured.
	AdminLookup bool

	Health  map[string]core.HealthChecker
	Metrics statsd.Sink
	Logger  *slog.Logger
}

// NewRouter creates and configures the HTTP router.
func NewRouter(services RouterServices) http.Handler {
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()

	health := &HealthHandlers{Checks: services.Health, Logger: logger}
	mux.HandleFunc("GET /healthz", health.Health)
	mux.HandleFunc("HEAD /healthz", health.Health)

	if services.Accounts != nil {
		registerAuthRoutes(mux, services, logger)
	}
	if services.Authenticator != nil {
		registerUploadRoutes(mux, services, logger)
	}

	mux.Handle("/", http.HandlerFunc(notFound))

	var handler http.Handler = mux
	handler = Logging(logger)(handler)
	handler = Recover(logger)(handler)
	return handler
}

func registerAuthRoutes(mux *http.ServeMux, s RouterServices, logger *slog.Logger) {
	h := &AuthHandlers{Svc: s.Accounts, Logger: logger}

	open := NewGate().WithRateLimit(rateLimitStage(s, s.AuthLimiter, ScopeAuth, logger))
	mux.Handle("POST /auth/register", open.ThenFunc(h.Register))
	mux.Handle("POST /auth/login", open.ThenFunc(h.Login))

	limited := NewGate().WithRateLimit(rateLimitStage(s, s.DefaultLimiter, ScopeDefault, logger))
	mux.Handle("PUT /auth/password", limited.ThenFunc(h.ChangePassword))
	mux.Handle("DELETE /auth/account", limited.ThenFunc(h.DeleteAccount))

	if s.Authenticator == nil {
		return
	}
	authed := limited.WithAuth(s.Authenticator)
	mux.Handle("GET /auth/me", authed.Then(Authed(h.Me)))
	if s.AdminLookup {
		mux.Handle("GET /admin/accounts", authed.WithRole(domainauth.RoleAdmin).Then(Authed(h.FindAccount)))
	}
}

func registerUploadRoutes(mux *http.ServeMux, s RouterServices, logger *slog.Logger) {
	gate := NewGate().
		WithRateLimit(rateLimitStage(s, s.DefaultLimiter, ScopeDefault, logger)).
		WithAuth(s.Authenticator).
		WithValidation(ValidateUpload(s.Upload))
	mux.Handle("POST /uploads/validate", gate.Then(Authed(ValidateUploadHandler)))
}

func rateLimitStage(s RouterServices, l RateLimiter, scope string, logger *slog.Logger) func(http.Handler) http.Handler {
	if l == nil {
		return nil
	}
	return RateLimit(RateLimitOptions{
		Limiter:           l,
		Scope:             scope,
		TrustForwardedFor: s.TrustForwardedFor,
		Metrics:           s.Metrics,
		Logger:            logger,
	})
}

func notFound(w http.ResponseWriter, _ *http.Request) {
	WriteError(w, ErrorParams{Code: http.StatusNotFound, ErrCode: "not_found", Message: "Not found"})
}
