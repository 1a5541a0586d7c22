// Package jwtutil maps golang-jwt parse failures onto the application's auth error codes.
package jwtutil

import (
	"errors"

	apperrors "github.com/datamed/datamed-api/internal/errors"
	"github.com/golang-jwt/jwt/v5"
)

// Classify converts a parse error from parser into an AppError.
//
// golang-jwt reports an undecodable signature segment as malformed. When the
// header and payload still decode into a fresh value from newClaims, the
// signature is what was damaged and the token is reported as an invalid
// signature instead.
func Classify(parser *jwt.Parser, token string, newClaims func() jwt.Claims, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, jwt.ErrTokenExpired):
		return apperrors.TokenExpired(err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return apperrors.TokenInvalidSignature(err)
	case errors.Is(err, jwt.ErrTokenMalformed):
		if _, _, uerr := parser.ParseUnverified(token, newClaims()); uerr == nil {
			return apperrors.TokenInvalidSignature(err)
		}
		return apperrors.TokenMalformed(err)
	default:
		return apperrors.TokenMalformed(err)
	}
}
