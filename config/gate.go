package config

import (
	"fmt"
	"strings"
	"time"
)

// RateLimitBackend selects where sliding logs are stored.
type RateLimitBackend string

const (
	// RateLimitBackendMemory keeps logs in process; limits are per instance.
	RateLimitBackendMemory RateLimitBackend = "memory"
	// RateLimitBackendRedis shares logs across instances through Redis.
	RateLimitBackendRedis RateLimitBackend = "redis"
)

// UnmarshalText implements encoding.TextUnmarshaler for RateLimitBackend.
func (b *RateLimitBackend) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	switch v {
	case "memory", "redis":
		*b = RateLimitBackend(v)
		return nil
	default:
		return fmt.Errorf("invalid RateLimitBackend: %q (valid options: memory, redis)", v)
	}
}

// RateLimitPolicyConfig is one (max requests, window) pair.
type RateLimitPolicyConfig struct {
	MaxRequests int           `env:"MAX_REQUESTS"`
	Window      time.Duration `env:"WINDOW"`
}

// GateConfig configures the request gates in front of protected routes.
type GateConfig struct {
	RateLimitBackend RateLimitBackend `env:"RATE_LIMIT_BACKEND" envDefault:"memory"`
	// RateLimitKeyPrefix namespaces Redis keys.
	RateLimitKeyPrefix string `env:"RATE_LIMIT_KEY_PREFIX" envDefault:"datamed:ratelimit:"`

	Default RateLimitPolicyConfig `envPrefix:"RATE_LIMIT_"`
	Auth    RateLimitPolicyConfig `envPrefix:"AUTH_RATE_LIMIT_"`

	// TrustForwardedFor keys clients by the first X-Forwarded-For entry.
	TrustForwardedFor bool `env:"TRUST_FORWARDED_FOR" envDefault:"true"`

	MaxFileSize       int64    `env:"MAX_FILE_SIZE"      envDefault:"10485760"`
	AllowedExtensions []string `env:"ALLOWED_EXTENSIONS" envDefault:"pdf"`
}

// Sanitize fills policy defaults and normalises extensions.
func (g *GateConfig) Sanitize() {
	if g.RateLimitBackend == "" {
		g.RateLimitBackend = RateLimitBackendMemory
	}
	if g.Default.MaxRequests <= 0 {
		g.Default.MaxRequests = 60
	}
	if g.Default.Window <= 0 {
		g.Default.Window = 60 * time.Second
	}
	if g.Auth.MaxRequests <= 0 {
		g.Auth.MaxRequests = 5
	}
	if g.Auth.Window <= 0 {
		g.Auth.Window = 300 * time.Second
	}
	if g.MaxFileSize <= 0 {
		g.MaxFileSize = 10 * 1024 * 1024
	}

	exts := make([]string, 0, len(g.AllowedExtensions))
	for _, e := range g.AllowedExtensions {
		e = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(e)), ".")
		if e != "" {
			exts = append(exts, e)
		}
	}
	if len(exts) == 0 {
		exts = []string{"pdf"}
	}
	g.AllowedExtensions = exts
}
