package keycloak

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/datamed/datamed-api/internal/adapters/jwtutil"
	domainauth "github.com/datamed/datamed-api/internal/domain/auth"
	apperrors "github.com/datamed/datamed-api/internal/errors"
	"github.com/datamed/datamed-api/internal/ports"
	"github.com/golang-jwt/jwt/v5"
	jmespath "github.com/jmespath-community/go-jmespath"
)

// DefaultRolesClaim locates realm roles in a Keycloak access token.
const DefaultRolesClaim = "realm_access.roles"

// Verifier implements ports.TokenVerifier for RS256 tokens issued by a realm.
// The audience claim is not checked.
type Verifier struct {
	keys       ports.PublicKeySource
	rolesClaim string
	rolesExpr  searcher
	now        func() time.Time
	logger     *slog.Logger
}

var _ ports.TokenVerifier = (*Verifier)(nil)

// searcher is a compiled JMESPath expression.
type searcher interface {
	Search(data any) (any, error)
}

// VerifierOption configures a Verifier.
type VerifierOption func(*Verifier)

// WithRolesClaim sets the JMESPath expression used to read roles from the claims.
func WithRolesClaim(expr string) VerifierOption {
	return func(v *Verifier) {
		if expr != "" {
			v.rolesClaim = expr
		}
	}
}

// WithVerifierClock overrides the time source.
func WithVerifierClock(now func() time.Time) VerifierOption {
	return func(v *Verifier) {
		if now != nil {
			v.now = now
		}
	}
}

// WithVerifierLogger sets the logger.
func WithVerifierLogger(l *slog.Logger) VerifierOption {
	return func(v *Verifier) {
		if l != nil {
			v.logger = l
		}
	}
}

// NewVerifier builds a Verifier. The roles expression is compiled up front so
// a bad KEYCLOAK_ROLES_CLAIM fails at startup.
func NewVerifier(keys ports.PublicKeySource, opts ...VerifierOption) (*Verifier, error) {
	if keys == nil {
		return nil, errors.New("public key source is required")
	}
	v := &Verifier{
		keys:       keys,
		rolesClaim: DefaultRolesClaim,
		now:        time.Now,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(v)
	}
	expr, err := jmespath.Compile(v.rolesClaim)
	if err != nil {
		return nil, fmt.Errorf("compile roles claim %q: %w", v.rolesClaim, err)
	}
	v.rolesExpr = expr
	return v, nil
}

// keyInvalidator is implemented by key sources that cache the realm key.
type keyInvalidator interface {
	Invalidate()
}

func newMapClaims() jwt.Claims { return jwt.MapClaims{} }

// Verify fetches the realm key, checks the RS256 signature and expiry, and
// returns the subject with its realm roles.
func (v *Verifier) Verify(ctx context.Context, token string) (domainauth.Identity, error) {
	key, err := v.keys.PublicKey(ctx)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrCodeKeyUnavailable) {
			return domainauth.Identity{}, err
		}
		return domainauth.Identity{}, apperrors.KeyUnavailable(err)
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	claims := jwt.MapClaims{}
	if _, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return key, nil
	}); err != nil {
		verr := jwtutil.Classify(parser, token, newMapClaims, err)
		if apperrors.Is(verr, apperrors.ErrCodeTokenInvalidSignature) {
			// The realm may have rotated its key; refetch on the next request.
			if inv, ok := v.keys.(keyInvalidator); ok {
				inv.Invalidate()
			}
		}
		return domainauth.Identity{}, verr
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return domainauth.Identity{}, apperrors.MissingSubject()
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil || !v.now().Before(exp.Time) {
		return domainauth.Identity{}, apperrors.TokenExpired(err)
	}

	return domainauth.Identity{UserID: sub, Roles: v.roles(ctx, claims)}, nil
}

// roles evaluates the roles expression; anything but a list of strings yields no roles.
func (v *Verifier) roles(ctx context.Context, claims jwt.MapClaims) []string {
	out := []string{}
	res, err := v.rolesExpr.Search(map[string]any(claims))
	if err != nil {
		v.logger.DebugContext(ctx, "roles claim evaluation failed", "expr", v.rolesClaim, "error", err)
		return out
	}
	list, ok := res.([]any)
	if !ok {
		return out
	}
	for _, r := range list {
		if s, isStr := r.(string); isStr && s != "" {
			out = append(out, s)
		}
	}
	return out
}
