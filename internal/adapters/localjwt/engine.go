package localjwt

// Package localjwt issues and verifies self-issued HS256 tokens carrying {user_id, exp}.

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/datamed/datamed-api/internal/adapters/jwtutil"
	domainauth "github.com/datamed/datamed-api/internal/domain/auth"
	apperrors "github.com/datamed/datamed-api/internal/errors"
	"github.com/datamed/datamed-api/internal/ports"
	"github.com/golang-jwt/jwt/v5"
)

// DefaultTTL is the lifetime of an issued token.
const DefaultTTL = 24 * time.Hour

// Engine implements ports.TokenIssuer and ports.TokenVerifier with a shared secret.
type Engine struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

var (
	_ ports.TokenIssuer   = (*Engine)(nil)
	_ ports.TokenVerifier = (*Engine)(nil)
)

// Option configures an Engine.
type Option func(*Engine)

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(e *Engine) {
		if ttl > 0 {
			e.ttl = ttl
		}
	}
}

// WithClock overrides the time source used for issuing and verifying.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine creates an Engine. The secret must not be empty.
func NewEngine(secret []byte, opts ...Option) (*Engine, error) {
	if len(secret) == 0 {
		return nil, errors.New("token secret is required")
	}
	e := &Engine{
		secret: append([]byte(nil), secret...),
		ttl:    DefaultTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// subjectID accepts the user_id claim as either a JSON string or number.
type subjectID string

func (s *subjectID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = subjectID(v)
		return nil
	}
	if bytes.Equal(b, []byte("null")) {
		*s = ""
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("user_id must be a string or number: %w", err)
	}
	if _, err := strconv.ParseInt(n.String(), 10, 64); err != nil {
		return fmt.Errorf("user_id must be an integer: %w", err)
	}
	*s = subjectID(n.String())
	return nil
}

type claims struct {
	UserID subjectID `json:"user_id"`
	jwt.RegisteredClaims
}

func newClaims() jwt.Claims { return &claims{} }

// Issue signs {user_id: userID, exp: now + ttl} with HS256.
func (e *Engine) Issue(userID string) (string, error) {
	if userID == "" {
		return "", apperrors.MissingSubject()
	}
	c := jwt.MapClaims{
		"user_id": userID,
		"exp":     jwt.NewNumericDate(e.now().Add(e.ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(e.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify checks the HS256 signature and expiry and returns the subject as an Identity with no roles.
func (e *Engine) Verify(_ context.Context, token string) (domainauth.Identity, error) {
	parser := e.parser()
	var c claims
	_, err := parser.ParseWithClaims(token, &c, func(*jwt.Token) (any, error) {
		return e.secret, nil
	})
	if err != nil {
		return domainauth.Identity{}, jwtutil.Classify(parser, token, newClaims, err)
	}

	if c.ExpiresAt == nil || !e.now().Before(c.ExpiresAt.Time) {
		return domainauth.Identity{}, apperrors.TokenExpired(nil)
	}
	if c.UserID == "" {
		return domainauth.Identity{}, apperrors.MissingSubject()
	}
	return domainauth.Identity{UserID: string(c.UserID), Roles: []string{}}, nil
}

func (e *Engine) parser() *jwt.Parser {
	return jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithStrictDecoding(),
		jwt.WithTimeFunc(e.now),
	)
}
