package auth

// Package auth contains simple hand-written test doubles for auth ports.
// These are lightweight and suitable for unit tests without codegen.

import (
	"context"
	"crypto/rsa"
	"fmt"
	"strings"
	"sync"

	domainauth "github.com/datamed/datamed-api/internal/domain/auth"
	apperrors "github.com/datamed/datamed-api/internal/errors"
	"github.com/datamed/datamed-api/internal/ports"
)

// Ensure compile-time conformance to ports.
var (
	_ ports.TokenVerifier    = (*StaticVerifier)(nil)
	_ ports.AccountDirectory = (*MemoryDirectory)(nil)
	_ ports.PasswordHasher   = PlainHasher{}
	_ ports.PublicKeySource  = StaticKeySource{}
)

// StaticVerifier maps known tokens to identities. Unknown tokens are
// reported as invalid signatures unless Err is set.
type StaticVerifier struct {
	Tokens map[string]domainauth.Identity
	Err    error

	mu    sync.Mutex
	calls int
}

// NewStaticVerifier creates a StaticVerifier with the given token table.
func NewStaticVerifier(tokens map[string]domainauth.Identity) *StaticVerifier {
	return &StaticVerifier{Tokens: tokens}
}

func (v *StaticVerifier) Verify(_ context.Context, token string) (domainauth.Identity, error) {
	v.mu.Lock()
	v.calls++
	v.mu.Unlock()

	if v.Err != nil {
		return domainauth.Identity{}, v.Err
	}
	ident, ok := v.Tokens[token]
	if !ok {
		return domainauth.Identity{}, apperrors.TokenInvalidSignature(nil)
	}
	return ident, nil
}

// Calls returns how many times Verify ran.
func (v *StaticVerifier) Calls() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.calls
}

// MemoryDirectory is an in-memory identity provider account directory.
type MemoryDirectory struct {
	// CreateErr and FindErr force failures.
	CreateErr error
	FindErr   error
	// FailDelete makes DeleteAccount report false.
	FailDelete bool

	mu      sync.Mutex
	next    int
	byID    map[string]ports.AccountInput
	deleted []string
}

// NewMemoryDirectory returns an empty MemoryDirectory.
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{byID: map[string]ports.AccountInput{}}
}

func (d *MemoryDirectory) CreateAccount(_ context.Context, in ports.AccountInput) (string, error) {
	if d.CreateErr != nil {
		return "", d.CreateErr
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, existing := range d.byID {
		if strings.EqualFold(existing.Email, in.Email) {
			return "", apperrors.CreateFailed(fmt.Errorf("account %s exists", in.Email))
		}
	}
	d.next++
	id := fmt.Sprintf("idp-%d", d.next)
	d.byID[id] = in
	return id, nil
}

func (d *MemoryDirectory) DeleteAccount(_ context.Context, externalID string) bool {
	if d.FailDelete {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.byID[externalID]; !ok {
		return false
	}
	delete(d.byID, externalID)
	d.deleted = append(d.deleted, externalID)
	return true
}

func (d *MemoryDirectory) FindAccountByEmail(_ context.Context, email string) (string, error) {
	if d.FindErr != nil {
		return "", d.FindErr
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for id, in := range d.byID {
		if strings.EqualFold(in.Email, email) {
			return id, nil
		}
	}
	return "", apperrors.NotFoundf("no identity provider account for %s", email)
}

// Accounts returns the number of live accounts.
func (d *MemoryDirectory) Accounts() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.byID)
}

// Deleted returns the ids removed through DeleteAccount, in order.
func (d *MemoryDirectory) Deleted() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.deleted...)
}

// PlainHasher is a reversible, fast stand-in for bcrypt.
type PlainHasher struct{}

func (PlainHasher) Hash(password string) (string, error) { return "plain:" + password, nil }

func (PlainHasher) Verify(hash, password string) bool { return hash == "plain:"+password }

func (PlainHasher) NeedsRehash(string) bool { return false }

// StaticKeySource returns a fixed key or error.
type StaticKeySource struct {
	Key *rsa.PublicKey
	Err error
}

func (s StaticKeySource) PublicKey(context.Context) (*rsa.PublicKey, error) { return s.Key, s.Err }
