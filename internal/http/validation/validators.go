package validation

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	apperrors "github.com/datamed/datamed-api/internal/errors"
)

// Validator is a function that validates a string value and returns an error message if invalid.
type Validator func(v string) string

// Required validates that a field is not empty and does not exceed maxLen characters.
// Uses rune count for proper Unicode support.
func Required(fieldName string, maxLen int) Validator {
	return func(v string) string {
		v = strings.TrimSpace(v)
		if v == "" {
			return fieldName + " is required."
		}
		if utf8.RuneCountInString(v) > maxLen {
			return fmt.Sprintf("%s cannot exceed %d characters.", fieldName, maxLen)
		}
		return ""
	}
}

// MaxBytes validates that a value is at most n bytes once encoded as UTF-8.
func MaxBytes(fieldName string, n int) Validator {
	return func(v string) string {
		if len(v) > n {
			return fmt.Sprintf("%s cannot exceed %d bytes.", fieldName, n)
		}
		return ""
	}
}

var (
	emailRe = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	nameRe  = regexp.MustCompile(`^[\p{L}\s'-]+$`)

	upperRe  = regexp.MustCompile(`[A-Z]`)
	lowerRe  = regexp.MustCompile(`[a-z]`)
	digitRe  = regexp.MustCompile(`[0-9]`)
	symbolRe = regexp.MustCompile(`[!@#$%^&*(),.?":{}|<>]`)

	peselWeights = [10]int{1, 3, 7, 9, 1, 3, 7, 9, 1, 3}
)

// Password strength messages, in the order the rules are checked.
const (
	MsgPasswordLength = "Password must be at least 8 characters long"
	MsgPasswordUpper  = "Password must contain at least one uppercase letter"
	MsgPasswordLower  = "Password must contain at least one lowercase letter"
	MsgPasswordDigit  = "Password must contain at least one digit"
	MsgPasswordSymbol = "Password must contain at least one special character"
)

// MinPasswordLength is the shortest accepted password, in characters.
const MinPasswordLength = 8

// ValidPESEL reports whether s is an 11-digit PESEL whose last digit matches
// the weighted checksum of the first ten.
func ValidPESEL(s string) bool {
	if len(s) != 11 {
		return false
	}
	sum := 0
	for i := range 11 {
		c := s[i]
		if c < '0' || c > '9' {
			return false
		}
		if i < 10 {
			sum += int(c-'0') * peselWeights[i]
		}
	}
	return (10-sum%10)%10 == int(s[10]-'0')
}

// ValidEmail reports whether s looks like local@domain.tld.
func ValidEmail(s string) bool {
	return emailRe.MatchString(s)
}

// ValidName reports whether s is 2 to 50 characters of letters, spaces, hyphens and apostrophes.
func ValidName(s string) bool {
	n := utf8.RuneCountInString(s)
	if n < 2 || n > 50 {
		return false
	}
	return nameRe.MatchString(s)
}

// PasswordStrength returns the message for the first rule password breaks,
// or "" when it is strong enough.
func PasswordStrength(password string) string {
	switch {
	case utf8.RuneCountInString(password) < MinPasswordLength:
		return MsgPasswordLength
	case !upperRe.MatchString(password):
		return MsgPasswordUpper
	case !lowerRe.MatchString(password):
		return MsgPasswordLower
	case !digitRe.MatchString(password):
		return MsgPasswordDigit
	case !symbolRe.MatchString(password):
		return MsgPasswordSymbol
	}
	return ""
}

var sanitizer = strings.NewReplacer("<", "", ">", "", `"`, "", "'", "", ";", "", `\`, "")

// Sanitize trims s and strips < > " ' ; and backslash.
func Sanitize(s string) string {
	return sanitizer.Replace(strings.TrimSpace(s))
}

// PESEL validates a required national identification number.
func PESEL(fieldName string) Validator {
	return func(v string) string {
		if !ValidPESEL(strings.TrimSpace(v)) {
			return fieldName + " is not a valid PESEL."
		}
		return ""
	}
}

// Email validates a required email address.
func Email(fieldName string) Validator {
	return func(v string) string {
		v = strings.TrimSpace(v)
		if v == "" {
			return fieldName + " is required."
		}
		if !ValidEmail(v) {
			return "Invalid email format"
		}
		return ""
	}
}

// PersonName validates an optional first or last name.
func PersonName(fieldName string) Validator {
	return func(v string) string {
		v = strings.TrimSpace(v)
		if v == "" {
			return ""
		}
		if !ValidName(v) {
			return fmt.Sprintf("Invalid %s format", strings.ToLower(fieldName))
		}
		return ""
	}
}

// StrongPassword applies PasswordStrength.
func StrongPassword() Validator {
	return PasswordStrength
}

// FieldValidator provides a fluent API for validating multiple fields.
type FieldValidator struct {
	errors map[string]string
}

// New creates a new FieldValidator instance.
func New() *FieldValidator {
	return &FieldValidator{errors: make(map[string]string)}
}

// Validate validates a field with one or more validators.
// It stops at the first error for each field.
func (fv *FieldValidator) Validate(field, value string, validators ...Validator) *FieldValidator {
	for _, v := range validators {
		if err := v(value); err != "" {
			fv.errors[field] = err
			break // Stop at first error per field
		}
	}
	return fv
}

// Errors returns the accumulated validation errors.
func (fv *FieldValidator) Errors() map[string]string {
	return fv.errors
}

// Err returns nil when every field passed, otherwise a validation AppError for
// the first failing field in the order given by fields. Fields not listed are
// reported in name order.
func (fv *FieldValidator) Err(fields ...string) error {
	if len(fv.errors) == 0 {
		return nil
	}
	for _, f := range fields {
		if msg, ok := fv.errors[f]; ok {
			return apperrors.ValidationField(f, msg)
		}
	}
	keys := make([]string, 0, len(fv.errors))
	for k := range fv.errors {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return apperrors.ValidationField(keys[0], fv.errors[keys[0]])
}
