// Package mocks provides gomock-generated doubles for the repository and port interfaces.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	users := mocks.NewMockUserRepository(ctrl)
//	users.EXPECT().GetByEmail(gomock.Any(), "jan@example.com").Return(user, nil)
package mocks

// UserRepository: Create, GetByID, GetByEmail, ExistsByEmail, UpdatePasswordHash, Delete
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=user_repository_mock.go github.com/datamed/datamed-api/internal/core UserRepository

// Auth ports: TokenVerifier, TokenIssuer, PublicKeySource, AccountDirectory, PasswordHasher
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=ports_mock.go github.com/datamed/datamed-api/internal/ports TokenVerifier,TokenIssuer,PublicKeySource,AccountDirectory,PasswordHasher
