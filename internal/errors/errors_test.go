package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *AppError
		want string
	}{
		{
			name: "error without cause",
			err:  &AppError{Code: ErrCodeNotFound, Message: "resource not found"},
			want: "resource not found",
		},
		{
			name: "error with cause",
			err: &AppError{
				Code:    ErrCodeKeyUnavailable,
				Message: MsgKeyUnavailable,
				Cause:   errors.New("connection refused"),
			},
			want: "Could not retrieve Keycloak public key: connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("AppError.Error() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	cause := errors.New("underlying error")
	err := TokenMalformed(cause)

	if !errors.Is(err, cause) {
		t.Errorf("errors.Is(TokenMalformed(cause), cause) = false, want true")
	}
}

func TestWrap_NilError(t *testing.T) {
	if err := Wrap(nil, ErrCodeInternal, "wrapped error"); err != nil {
		t.Errorf("Wrap(nil) = %v, want nil", err)
	}
}

func TestWrapf(t *testing.T) {
	cause := errors.New("boom")
	err := Wrapf(cause, ErrCodeInternal, "insert %s", "user")
	if err.Message != "insert user" {
		t.Errorf("Wrapf().Message = %q, want %q", err.Message, "insert user")
	}
	if !errors.Is(err, cause) {
		t.Errorf("Wrapf() lost its cause")
	}
}

func TestAuthConstructors(t *testing.T) {
	tests := []struct {
		name    string
		err     *AppError
		code    ErrorCode
		message string
	}{
		{"header missing", HeaderMissing(), ErrCodeHeaderMissing, "Authorization header is missing"},
		{"header malformed", HeaderMalformed(), ErrCodeHeaderMalformed, "Invalid authorization header format"},
		{"token malformed", TokenMalformed(nil), ErrCodeTokenMalformed, "Invalid token"},
		{"token expired", TokenExpired(nil), ErrCodeTokenExpired, "Token has expired"},
		{"bad signature", TokenInvalidSignature(nil), ErrCodeTokenInvalidSignature, "Invalid token signature"},
		{"missing subject", MissingSubject(), ErrCodeMissingSubject, "Invalid token: missing subject"},
		{"key unavailable", KeyUnavailable(nil), ErrCodeKeyUnavailable, "Could not retrieve Keycloak public key"},
		{"forbidden", Forbidden("doctor"), ErrCodeForbidden, "Role doctor required"},
		{"rate limited", RateLimited(), ErrCodeRateLimited, "Rate limit exceeded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.code {
				t.Errorf("Code = %v, want %v", tt.err.Code, tt.code)
			}
			if tt.err.Message != tt.message {
				t.Errorf("Message = %q, want %q", tt.err.Message, tt.message)
			}
		})
	}
}

func TestIsAuthentication(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"header missing", HeaderMissing(), true},
		{"expired wrapped", fmt.Errorf("verify: %w", TokenExpired(nil)), true},
		{"missing subject", MissingSubject(), true},
		{"key unavailable", KeyUnavailable(nil), false},
		{"forbidden", Forbidden("admin"), false},
		{"plain error", errors.New("x"), false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsAuthentication(tt.err); got != tt.want {
				t.Errorf("IsAuthentication() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsHelpers(t *testing.T) {
	if !IsNotFound(NotFound("x")) {
		t.Error("IsNotFound(NotFound) = false")
	}
	if IsNotFound(Conflict("x")) {
		t.Error("IsNotFound(Conflict) = true")
	}
	if !IsConflict(fmt.Errorf("wrap: %w", Conflict("x"))) {
		t.Error("IsConflict(wrapped Conflict) = false")
	}
	if !IsValidation(ValidationField("email", "bad")) {
		t.Error("IsValidation(ValidationField) = false")
	}
	if !Is(RateLimited(), ErrCodeRateLimited) {
		t.Error("Is(RateLimited, rate_limited) = false")
	}
	if IsInternal(nil) {
		t.Error("IsInternal(nil) = true")
	}
}

func TestGetters(t *testing.T) {
	err := fmt.Errorf("outer: %w", ValidationField("pesel", "Invalid PESEL"))

	if got := GetCode(err); got != ErrCodeValidation {
		t.Errorf("GetCode() = %v, want %v", got, ErrCodeValidation)
	}
	if got := GetField(err); got != "pesel" {
		t.Errorf("GetField() = %v, want pesel", got)
	}
	if got := GetMessage(err); got != "Invalid PESEL" {
		t.Errorf("GetMessage() = %v, want Invalid PESEL", got)
	}
	if got := GetCode(errors.New("plain")); got != "" {
		t.Errorf("GetCode(plain) = %v, want empty", got)
	}
}
