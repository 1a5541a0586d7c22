package testutil

import (
	"time"

	"github.com/datamed/datamed-api/internal/domain/model"
)

// UserBuilder provides a fluent interface for building User objects for testing.
type UserBuilder struct {
	user *model.User
}

// NewUser creates a new UserBuilder with sensible defaults.
func NewUser() *UserBuilder {
	return &UserBuilder{
		user: &model.User{
			ID:           "11111111-1111-1111-1111-111111111111",
			Email:        "jan.kowalski@example.com",
			PasswordHash: "plain:Secret1!",
			CreatedAt:    TestTime(),
			UpdatedAt:    TestTime(),
		},
	}
}

// WithID sets the user id.
func (b *UserBuilder) WithID(id string) *UserBuilder {
	b.user.ID = id
	return b
}

// WithEmail sets the email.
func (b *UserBuilder) WithEmail(email string) *UserBuilder {
	b.user.Email = email
	return b
}

// WithPasswordHash sets the stored hash.
func (b *UserBuilder) WithPasswordHash(hash string) *UserBuilder {
	b.user.PasswordHash = hash
	return b
}

// WithExternalID links the user to an identity provider account.
func (b *UserBuilder) WithExternalID(id string) *UserBuilder {
	b.user.ExternalID = &id
	return b
}

// WithName sets first and last name.
func (b *UserBuilder) WithName(first, last string) *UserBuilder {
	b.user.FirstName = &first
	b.user.LastName = &last
	return b
}

// WithCreatedAt sets both timestamps.
func (b *UserBuilder) WithCreatedAt(at time.Time) *UserBuilder {
	b.user.CreatedAt = at
	b.user.UpdatedAt = at
	return b
}

// Build returns the user.
func (b *UserBuilder) Build() *model.User {
	u := *b.user
	return &u
}

// CreateRequest returns the repository input matching the user.
func (b *UserBuilder) CreateRequest() model.CreateUserRequest {
	return model.CreateUserRequest{
		Email:        b.user.Email,
		PasswordHash: b.user.PasswordHash,
		ExternalID:   b.user.ExternalID,
		FirstName:    b.user.FirstName,
		LastName:     b.user.LastName,
	}
}
