package ports_test

import (
	"testing"

	mocks "github.com/datamed/datamed-api/internal/mocks/auth"
	"github.com/datamed/datamed-api/internal/ports"
)

// This test only verifies that our doubles conform to the ports at compile time.
func TestMocksImplementPorts(t *testing.T) {
	t.Helper()

	var _ ports.TokenVerifier = (*mocks.StaticVerifier)(nil)
	var _ ports.AccountDirectory = (*mocks.MemoryDirectory)(nil)
	var _ ports.PasswordHasher = mocks.PlainHasher{}
	var _ ports.PublicKeySource = mocks.StaticKeySource{}
}
