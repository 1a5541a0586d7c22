// Package keycloak adapts a Keycloak realm: public-key retrieval, RS256 token
// verification and the admin REST API used for account management.
package keycloak

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/datamed/datamed-api/internal/errors"
	"github.com/datamed/datamed-api/internal/ports"
	"github.com/golang-jwt/jwt/v5"
	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
)

const (
	realmKeyCacheKey = "realm_public_key"
	maxRealmDocBytes = 1 << 20
)

// RealmKeySource fetches the realm signing key from <base>/realms/<realm>.
// With a positive TTL the parsed key is cached; concurrent fetches are collapsed.
type RealmKeySource struct {
	realmURL string
	client   *http.Client
	timeout  time.Duration
	cache    *gocache.Cache
	ttl      time.Duration
	group    singleflight.Group
	logger   *slog.Logger
}

var _ ports.PublicKeySource = (*RealmKeySource)(nil)

// KeySourceConfig configures a RealmKeySource.
type KeySourceConfig struct {
	BaseURL    string // e.g. http://keycloak:8080/auth
	Realm      string
	CacheTTL   time.Duration // 0 disables caching
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// NewRealmKeySource validates cfg and builds a RealmKeySource.
func NewRealmKeySource(cfg KeySourceConfig) (*RealmKeySource, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("keycloak base URL is required")
	}
	if strings.TrimSpace(cfg.Realm) == "" {
		return nil, errors.New("keycloak realm is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &RealmKeySource{
		realmURL: RealmURL(cfg.BaseURL, cfg.Realm),
		client:   client,
		timeout:  cfg.Timeout,
		ttl:      cfg.CacheTTL,
		logger:   logger.With("component", "keycloak_keys"),
	}
	if cfg.CacheTTL > 0 {
		s.cache = gocache.New(cfg.CacheTTL, 2*cfg.CacheTTL)
	}
	return s, nil
}

// RealmURL joins base and realm into the realm metadata URL.
func RealmURL(base, realm string) string {
	return strings.TrimRight(base, "/") + "/realms/" + realm
}

// PublicKey returns the realm's RSA public key. Every failure is reported as key_unavailable.
func (s *RealmKeySource) PublicKey(ctx context.Context) (*rsa.PublicKey, error) {
	if s.cache != nil {
		if v, ok := s.cache.Get(realmKeyCacheKey); ok {
			if key, isKey := v.(*rsa.PublicKey); isKey {
				return key, nil
			}
		}
	}

	ch := s.group.DoChan(s.realmURL, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()
		key, err := s.fetch(fctx)
		if err != nil {
			return nil, err
		}
		if s.cache != nil {
			s.cache.Set(realmKeyCacheKey, key, s.ttl)
		}
		return key, nil
	})

	select {
	case <-ctx.Done():
		return nil, apperrors.KeyUnavailable(ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			s.logger.WarnContext(ctx, "realm public key unavailable", "url", s.realmURL, "error", res.Err)
			return nil, apperrors.KeyUnavailable(res.Err)
		}
		key, ok := res.Val.(*rsa.PublicKey)
		if !ok {
			return nil, apperrors.KeyUnavailable(errors.New("unexpected key type"))
		}
		return key, nil
	}
}

// Invalidate drops a cached key so the next call refetches it.
func (s *RealmKeySource) Invalidate() {
	if s.cache != nil {
		s.cache.Delete(realmKeyCacheKey)
	}
}

type realmDocument struct {
	Realm     string `json:"realm"`
	PublicKey string `json:"public_key"`
}

func (s *RealmKeySource) fetch(ctx context.Context) (*rsa.PublicKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.realmURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create realm request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch realm: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch realm returned status %d", resp.StatusCode)
	}

	var doc realmDocument
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxRealmDocBytes)).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode realm: %w", err)
	}
	if strings.TrimSpace(doc.PublicKey) == "" {
		return nil, errors.New("realm document has no public_key")
	}
	return ParsePublicKey(doc.PublicKey)
}

// ParsePublicKey wraps a bare base64 SubjectPublicKeyInfo in PEM armour and parses it.
func ParsePublicKey(b64 string) (*rsa.PublicKey, error) {
	pemText := "-----BEGIN PUBLIC KEY-----\n" + strings.TrimSpace(b64) + "\n-----END PUBLIC KEY-----"
	key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(pemText))
	if err != nil {
		return nil, fmt.Errorf("parse realm public key: %w", err)
	}
	return key, nil
}
