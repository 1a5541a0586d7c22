package ports

// Package ports defines interfaces (hexagonal ports) for auth-related behavior.
// Implementations live in internal/adapters; orchestration in internal/service.

import (
	"context"
	"crypto/rsa"

	domainauth "github.com/datamed/datamed-api/internal/domain/auth"
)

// TokenVerifier turns a bearer token into an Identity.
// Exactly one implementation is selected at startup.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (domainauth.Identity, error)
}

// TokenIssuer mints self-issued tokens for a subject.
type TokenIssuer interface {
	Issue(subjectID string) (string, error)
}

// PublicKeySource yields the IdP realm signing key.
type PublicKeySource interface {
	PublicKey(ctx context.Context) (*rsa.PublicKey, error)
}

// AccountInput is the account record sent to the identity provider.
type AccountInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// AccountDirectory manages accounts in the external identity provider.
type AccountDirectory interface {
	// CreateAccount creates an account and returns the provider's id for it.
	CreateAccount(ctx context.Context, in AccountInput) (string, error)
	// DeleteAccount removes an account. It never returns an error; false means
	// the removal did not happen and the failure was logged.
	DeleteAccount(ctx context.Context, externalID string) bool
	// FindAccountByEmail returns the provider id of the account with email.
	FindAccountByEmail(ctx context.Context, email string) (string, error)
}

// PasswordHasher hashes and checks credentials.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(hash, password string) bool
	// NeedsRehash reports whether hash was produced with outdated parameters.
	NeedsRehash(hash string) bool
}
