//revive:disable-next-line:var-naming // legacy package name used across the project
package model

import (
	"strings"
	"time"
)

// User is a locally registered account. ExternalID links it to the
// identity provider account when one was created.
type User struct {
	ID           string    `json:"id"                    db:"id"`
	Email        string    `json:"email"                 db:"email"`
	PasswordHash string    `json:"-"                     db:"password_hash"`
	ExternalID   *string   `json:"external_id,omitempty" db:"external_id"`
	FirstName    *string   `json:"first_name,omitempty"  db:"first_name"`
	LastName     *string   `json:"last_name,omitempty"   db:"last_name"`
	CreatedAt    time.Time `json:"created_at"            db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"            db:"updated_at"`
}

// CreateUserRequest contains the fields persisted for a new user.
// PasswordHash must already be hashed.
type CreateUserRequest struct {
	Email        string
	PasswordHash string
	ExternalID   *string
	FirstName    *string
	LastName     *string
}

// NormalizeEmail lowercases and trims an email for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// RegisterRequest is the body of POST /auth/register.
type RegisterRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// ChangePasswordRequest is the body of PUT /auth/password.
type ChangePasswordRequest struct {
	Email       string `json:"email"`
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

// DeleteAccountRequest is the body of DELETE /auth/account.
type DeleteAccountRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
