package auth

// Package auth contains domain-level types for request authentication.
// It is pure and free of framework/adapter concerns.

import (
	"slices"
	"strings"
)

// Well-known realm roles used by route gates.
const (
	RoleAdmin   = "admin"
	RoleDoctor  = "doctor"
	RolePatient = "patient"
)

// Identity is the authenticated principal attached to a request.
// It lives only for the duration of that request.
type Identity struct {
	UserID string   // local user id (self-issued tokens) or IdP subject
	Roles  []string // realm roles; empty for self-issued tokens
}

// HasRole reports whether the identity carries role (exact match).
func (i Identity) HasRole(role string) bool {
	return slices.Contains(i.Roles, role)
}

// HeaderError classifies why an Authorization header was rejected.
type HeaderError int

const (
	HeaderOK HeaderError = iota
	HeaderMissing
	HeaderMalformed
)

// ParseBearer extracts the token from an Authorization header value.
// The value must be exactly two whitespace-separated parts and the first must
// equal "bearer" case-insensitively.
func ParseBearer(header string) (string, HeaderError) {
	if strings.TrimSpace(header) == "" {
		return "", HeaderMissing
	}
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", HeaderMalformed
	}
	return parts[1], HeaderOK
}
