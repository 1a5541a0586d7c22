package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// AuthMode selects which token verifier the process uses. It is fixed at startup.
type AuthMode string

const (
	// AuthModeLocal verifies self-issued HS256 tokens signed with TOKEN_KEY.
	AuthModeLocal AuthMode = "local"
	// AuthModeKeycloak verifies RS256 tokens issued by a Keycloak realm.
	AuthModeKeycloak AuthMode = "keycloak"
)

// UnmarshalText implements encoding.TextUnmarshaler for AuthMode.
func (a *AuthMode) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	switch v {
	case "local", "keycloak":
		*a = AuthMode(v)
		return nil
	default:
		return fmt.Errorf("invalid AuthMode: %q (valid options: local, keycloak)", v)
	}
}

// KeycloakConfig describes the realm used for token verification and the
// admin API used for account management.
type KeycloakConfig struct {
	URL        string `env:"URL"         envDefault:"http://keycloak:8080"`
	PathPrefix string `env:"PATH_PREFIX" envDefault:"/auth"`
	Realm      string `env:"REALM"       envDefault:"datamed"`
	ClientID   string `env:"CLIENT_ID"   envDefault:"datamed-client"`
	// RolesClaim is a JMESPath expression evaluated against the token claims.
	RolesClaim string `env:"ROLES_CLAIM" envDefault:"realm_access.roles"`
	// PublicKeyCacheTTL caches the realm key; 0 fetches it on every request.
	PublicKeyCacheTTL time.Duration `env:"PUBLIC_KEY_CACHE_TTL" envDefault:"0s"`
	HTTPTimeout       time.Duration `env:"HTTP_TIMEOUT"         envDefault:"5s"`

	AdminRealm    string `env:"ADMIN_REALM"     envDefault:"master"`
	AdminClientID string `env:"ADMIN_CLIENT_ID" envDefault:"admin-cli"`
	AdminUsername string `env:"ADMIN_USERNAME"`
	AdminPassword string `env:"ADMIN_PASSWORD"`
}

// BaseURL returns URL joined with PathPrefix, without a trailing slash.
func (k KeycloakConfig) BaseURL() string {
	return strings.TrimRight(k.URL, "/") + k.PathPrefix
}

// AdminEnabled reports whether admin credentials were configured.
func (k KeycloakConfig) AdminEnabled() bool {
	return k.AdminUsername != "" && k.AdminPassword != ""
}

// Sanitize normalises URL pieces and clamps durations.
func (k *KeycloakConfig) Sanitize() {
	k.URL = strings.TrimRight(strings.TrimSpace(k.URL), "/")
	k.PathPrefix = strings.TrimRight(strings.TrimSpace(k.PathPrefix), "/")
	if k.PathPrefix != "" && !strings.HasPrefix(k.PathPrefix, "/") {
		k.PathPrefix = "/" + k.PathPrefix
	}
	if strings.TrimSpace(k.RolesClaim) == "" {
		k.RolesClaim = "realm_access.roles"
	}
	if k.PublicKeyCacheTTL < 0 {
		k.PublicKeyCacheTTL = 0
	}
	if k.HTTPTimeout <= 0 {
		k.HTTPTimeout = 5 * time.Second
	}
}

// AuthConfig groups all authentication-related configuration.
type AuthConfig struct {
	Mode AuthMode `env:"AUTH_MODE" envDefault:"local"`

	// TokenKey is the HS256 shared secret. TokenKeyFile, when set, wins and is
	// read from a secret mount.
	TokenKey     string        `env:"TOKEN_KEY"`
	TokenKeyFile string        `env:"TOKEN_KEY_FILE"`
	TokenTTL     time.Duration `env:"TOKEN_TTL" envDefault:"24h"`

	// PasswordHashCost is the bcrypt cost; 0 selects the library default.
	PasswordHashCost int `env:"PASSWORD_HASH_COST" envDefault:"0"`

	Keycloak KeycloakConfig `envPrefix:"KEYCLOAK_"`
}

// ErrTokenKeyMissing is returned when local mode has no signing secret.
var ErrTokenKeyMissing = errors.New("TOKEN_KEY or TOKEN_KEY_FILE is required")

// TokenSecret resolves the HS256 secret from the file or the inline value.
func (a AuthConfig) TokenSecret() ([]byte, error) {
	if a.TokenKeyFile != "" {
		b, err := os.ReadFile(a.TokenKeyFile)
		if err != nil {
			return nil, fmt.Errorf("read token key file: %w", err)
		}
		if s := strings.TrimSpace(string(b)); s != "" {
			return []byte(s), nil
		}
		return nil, ErrTokenKeyMissing
	}
	if a.TokenKey == "" {
		return nil, ErrTokenKeyMissing
	}
	return []byte(a.TokenKey), nil
}

// Sanitize applies guardrails to auth configuration.
func (a *AuthConfig) Sanitize() {
	if a.Mode == "" {
		a.Mode = AuthModeLocal
	}
	if a.TokenTTL <= 0 {
		a.TokenTTL = 24 * time.Hour
	}
	a.TokenKeyFile = strings.TrimSpace(a.TokenKeyFile)
	if a.PasswordHashCost < 0 {
		a.PasswordHashCost = 0
	}
	a.Keycloak.Sanitize()
}
