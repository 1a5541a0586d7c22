package errors

import "fmt"

// Caller-facing messages for authentication failures.
const (
	MsgHeaderMissing         = "Authorization header is missing"
	MsgHeaderMalformed       = "Invalid authorization header format"
	MsgTokenExpired          = "Token has expired"
	MsgTokenInvalid          = "Invalid token"
	MsgTokenInvalidSignature = "Invalid token signature"
	MsgMissingSubject        = "Invalid token: missing subject"
	MsgKeyUnavailable        = "Could not retrieve Keycloak public key"
	MsgRateLimited           = "Rate limit exceeded"
	MsgAdminUnavailable      = "Identity provider admin session unavailable"
	MsgCreateFailed          = "Failed to create account in identity provider"
	MsgStorageUnavailable    = "Rate limit storage unavailable"
)

// HeaderMissing reports an absent or empty Authorization header.
func HeaderMissing() *AppError {
	return New(ErrCodeHeaderMissing, MsgHeaderMissing)
}

// HeaderMalformed reports an Authorization header that is not "Bearer <token>".
func HeaderMalformed() *AppError {
	return New(ErrCodeHeaderMalformed, MsgHeaderMalformed)
}

// TokenMalformed reports a token that could not be decoded.
func TokenMalformed(cause error) *AppError {
	return &AppError{Code: ErrCodeTokenMalformed, Message: MsgTokenInvalid, Cause: cause}
}

// TokenExpired reports a token whose exp has passed.
func TokenExpired(cause error) *AppError {
	return &AppError{Code: ErrCodeTokenExpired, Message: MsgTokenExpired, Cause: cause}
}

// TokenInvalidSignature reports a token whose signature did not verify.
func TokenInvalidSignature(cause error) *AppError {
	return &AppError{Code: ErrCodeTokenInvalidSignature, Message: MsgTokenInvalidSignature, Cause: cause}
}

// MissingSubject reports a verified token that carries no subject.
func MissingSubject() *AppError {
	return New(ErrCodeMissingSubject, MsgMissingSubject)
}

// KeyUnavailable reports that the IdP public key could not be fetched or parsed.
func KeyUnavailable(cause error) *AppError {
	return &AppError{Code: ErrCodeKeyUnavailable, Message: MsgKeyUnavailable, Cause: cause}
}

// Forbidden reports that the identity lacks the named role.
func Forbidden(role string) *AppError {
	return New(ErrCodeForbidden, fmt.Sprintf("Role %s required", role))
}

// RateLimited reports an exhausted request budget.
func RateLimited() *AppError {
	return New(ErrCodeRateLimited, MsgRateLimited)
}

// AdminUnavailable reports a failure to reach or authenticate against the IdP admin API.
func AdminUnavailable(cause error) *AppError {
	return &AppError{Code: ErrCodeAdminUnavailable, Message: MsgAdminUnavailable, Cause: cause}
}

// CreateFailed reports a failed IdP account creation.
func CreateFailed(cause error) *AppError {
	return &AppError{Code: ErrCodeCreateFailed, Message: MsgCreateFailed, Cause: cause}
}

// StorageUnavailable reports a failed backing store.
func StorageUnavailable(cause error) *AppError {
	return &AppError{Code: ErrCodeStorageUnavailable, Message: MsgStorageUnavailable, Cause: cause}
}

// IsAuthentication reports whether err is one of the token or header failures
// that should be answered with 401.
func IsAuthentication(err error) bool {
	switch GetCode(err) {
	case ErrCodeHeaderMissing, ErrCodeHeaderMalformed, ErrCodeTokenMalformed,
		ErrCodeTokenExpired, ErrCodeTokenInvalidSignature, ErrCodeMissingSubject,
		ErrCodeUnauthorized:
		return true
	default:
		return false
	}
}
