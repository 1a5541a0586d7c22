package httpx

import (
	"context"
	"log/slog"
	"math"
	"net"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	domainauth "github.com/datamed/datamed-api/internal/domain/auth"
	"github.com/datamed/datamed-api/internal/domain/ratelimit"
	apperrors "github.com/datamed/datamed-api/internal/errors"
	"github.com/datamed/datamed-api/internal/observability/metrics"
	"github.com/datamed/datamed-api/internal/observability/statsd"
)

// Logging returns a middleware that logs HTTP requests and responses.
func Logging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			const defaultHTTPStatus = 200
			ww := &respWriter{ResponseWriter: w, status: defaultHTTPStatus}
			next.ServeHTTP(ww, r)
			logger.InfoContext(r.Context(), "http",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.status),
				slog.Duration("duration", time.Since(start)),
				slog.String("remote", r.RemoteAddr),
			)
		})
	}
}

type respWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *respWriter) WriteHeader(status int) {
	if !w.wroteHeader {
		w.status = status
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(status)
}

// Recover returns a middleware that recovers from panics and logs them.
func Recover(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					if err == http.ErrAbortHandler {
						panic(err)
					}
					logger.Error("panic",
						slog.Any("error", err),
						slog.String("path", r.URL.Path),
						slog.String("method", r.Method),
						slog.String("stack", string(debug.Stack())))
					WriteAppError(w, apperrors.Internal("panic"))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// Authenticator turns an Authorization header value into an Identity.
type Authenticator interface {
	Authenticate(ctx context.Context, header string) (domainauth.Identity, error)
}

// RequireAuth returns a middleware that requires a valid bearer token.
// Header and token failures get 401; an unreachable key source gets 503.
func RequireAuth(authn Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ident, err := authn.Authenticate(r.Context(), r.Header.Get("Authorization"))
			if err != nil {
				if apperrors.IsAuthentication(err) {
					w.Header().Set("WWW-Authenticate", `Bearer realm="datamed"`)
				}
				WriteAppError(w, err)
				return
			}

			ctx := SetIdentityInContext(r.Context(), ident)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole returns a middleware that requires the authenticated identity to
// hold role. It must run after RequireAuth.
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ident, ok := IdentityFromContext(r.Context())
			if !ok {
				WriteAppError(w, apperrors.Unauthorized("Authentication required"))
				return
			}
			if !ident.HasRole(role) {
				WriteAppError(w, apperrors.Forbidden(role))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// IdentityHandlerFunc is a handler that receives the authenticated identity
// as its leading argument.
type IdentityHandlerFunc func(w http.ResponseWriter, r *http.Request, ident domainauth.Identity)

// Authed adapts fn to an http.Handler. Requests without an identity in their
// context are answered with 401.
func Authed(fn IdentityHandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ident, ok := IdentityFromContext(r.Context())
		if !ok {
			WriteAppError(w, apperrors.Unauthorized("Authentication required"))
			return
		}
		fn(w, r, ident)
	})
}

// RateLimiter records an attempt for a key.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (ratelimit.Decision, error)
}

// RateLimitOptions configures the RateLimit middleware.
type RateLimitOptions struct {
	Limiter RateLimiter
	// Scope names the policy on metrics and logs, e.g. "default" or "auth".
	Scope string
	// TrustForwardedFor keys clients by the first X-Forwarded-For entry.
	TrustForwardedFor bool
	Metrics           statsd.Sink
	Logger            *slog.Logger
}

// RateLimit returns a middleware that admits at most the limiter's policy
// worth of requests per client. Rejected requests get 429 with Retry-After and
// are not counted against the client; a failing store gets 503.
func RateLimit(opts RateLimitOptions) func(http.Handler) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "rate_limit", "scope", opts.Scope)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := ClientKey(r, opts.TrustForwardedFor)
			d, err := opts.Limiter.Allow(r.Context(), opts.Scope+":"+key)
			metrics.EmitRateLimit(opts.Metrics, metrics.RateLimitMetric{Scope: opts.Scope, Allowed: d.Allowed, Err: err})
			if err != nil {
				logger.ErrorContext(r.Context(), "rate limit store failed", "client", key, "error", err)
				WriteAppError(w, apperrors.StorageUnavailable(err))
				return
			}
			if !d.Allowed {
				logger.WarnContext(r.Context(), "rate limit exceeded", "client", key, "count", d.Count)
				w.Header().Set("Retry-After", retryAfterSeconds(d.RetryAfter))
				WriteAppError(w, apperrors.RateLimited())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientKey identifies the caller for rate limiting. When trustForwarded is
// set the first X-Forwarded-For entry wins; otherwise the remote host is used.
func ClientKey(r *http.Request, trustForwarded bool) string {
	if trustForwarded {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if first = strings.TrimSpace(first); first != "" {
				return first
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func retryAfterSeconds(d time.Duration) string {
	secs := int64(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return strconv.FormatInt(secs, 10)
}
