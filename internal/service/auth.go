package service

import (
	"context"
	"log/slog"

	domainauth "github.com/datamed/datamed-api/internal/domain/auth"
	apperrors "github.com/datamed/datamed-api/internal/errors"
	"github.com/datamed/datamed-api/internal/observability/metrics"
	"github.com/datamed/datamed-api/internal/observability/statsd"
	"github.com/datamed/datamed-api/internal/ports"
)

// AuthServiceOptions groups dependencies for AuthService.
type AuthServiceOptions struct {
	Verifier ports.TokenVerifier
	Mode     string // reported on metrics only
	Metrics  statsd.Sink
	Logger   *slog.Logger
}

// AuthService turns an Authorization header into an Identity using the
// verifier selected at startup.
type AuthService struct {
	verifier ports.TokenVerifier
	mode     string
	metrics  statsd.Sink
	logger   *slog.Logger
}

// NewAuthService constructs a new AuthService.
func NewAuthService(opts AuthServiceOptions) *AuthService {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthService{
		verifier: opts.Verifier,
		mode:     opts.Mode,
		metrics:  opts.Metrics,
		logger:   logger.With("component", "auth_service"),
	}
}

// Authenticate parses a "Bearer <token>" header value and verifies the token.
func (s *AuthService) Authenticate(ctx context.Context, header string) (domainauth.Identity, error) {
	ident, err := s.authenticate(ctx, header)
	metrics.EmitAuthDecision(s.metrics, metrics.AuthMetric{Mode: s.mode, Err: err})
	if err != nil {
		if apperrors.IsAuthentication(err) {
			s.logger.DebugContext(ctx, "authentication rejected", "code", apperrors.GetCode(err))
		} else {
			s.logger.WarnContext(ctx, "authentication failed", "error", err)
		}
		return domainauth.Identity{}, err
	}
	return ident, nil
}

func (s *AuthService) authenticate(ctx context.Context, header string) (domainauth.Identity, error) {
	token, herr := domainauth.ParseBearer(header)
	switch herr {
	case domainauth.HeaderMissing:
		return domainauth.Identity{}, apperrors.HeaderMissing()
	case domainauth.HeaderMalformed:
		return domainauth.Identity{}, apperrors.HeaderMalformed()
	}
	if s.verifier == nil {
		return domainauth.Identity{}, apperrors.Internal("token verifier not configured")
	}
	return s.verifier.Verify(ctx, token)
}
