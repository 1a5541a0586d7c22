package keycloak

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	apperrors "github.com/datamed/datamed-api/internal/errors"
	"github.com/datamed/datamed-api/internal/ports"
	"golang.org/x/oauth2"
)

// AdminConfig configures an AdminClient.
type AdminConfig struct {
	BaseURL    string // e.g. http://keycloak:8080/auth
	Realm      string // realm whose users are managed
	AdminRealm string // realm the admin user authenticates against
	ClientID   string // public client used for the password grant
	Username   string
	Password   string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// AdminClient implements ports.AccountDirectory on the Keycloak admin REST API.
// The admin access token is obtained with a password grant against the admin
// realm, whose token endpoint is found through OIDC discovery, and reused until
// it expires.
type AdminClient struct {
	cfg    AdminConfig
	client *http.Client
	logger *slog.Logger

	mu    sync.Mutex
	oauth *oauth2.Config
	token *oauth2.Token
}

var _ ports.AccountDirectory = (*AdminClient)(nil)

// NewAdminClient validates cfg. No network calls are made until first use.
func NewAdminClient(cfg AdminConfig) (*AdminClient, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("keycloak base URL is required")
	}
	if cfg.Realm == "" {
		return nil, errors.New("keycloak realm is required")
	}
	if cfg.Username == "" || cfg.Password == "" {
		return nil, errors.New("keycloak admin credentials are required")
	}
	if cfg.AdminRealm == "" {
		cfg.AdminRealm = "master"
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "admin-cli"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminClient{
		cfg:    cfg,
		client: client,
		logger: logger.With("component", "keycloak_admin"),
	}, nil
}

type credentialRepresentation struct {
	Type      string `json:"type"`
	Value     string `json:"value"`
	Temporary bool   `json:"temporary"`
}

type userRepresentation struct {
	ID            string                     `json:"id,omitempty"`
	Username      string                     `json:"username,omitempty"`
	Email         string                     `json:"email,omitempty"`
	Enabled       bool                       `json:"enabled"`
	EmailVerified bool                       `json:"emailVerified"`
	FirstName     string                     `json:"firstName,omitempty"`
	LastName      string                     `json:"lastName,omitempty"`
	Credentials   []credentialRepresentation `json:"credentials,omitempty"`
}

// CreateAccount creates an enabled, verified user whose username is its email
// and returns the id Keycloak assigned.
func (c *AdminClient) CreateAccount(ctx context.Context, in ports.AccountInput) (string, error) {
	body := userRepresentation{
		Username:      in.Email,
		Email:         in.Email,
		Enabled:       true,
		EmailVerified: true,
		FirstName:     in.FirstName,
		LastName:      in.LastName,
		Credentials: []credentialRepresentation{
			{Type: "password", Value: in.Password, Temporary: false},
		},
	}

	resp, err := c.do(ctx, http.MethodPost, c.usersURL(), body)
	if err != nil {
		return "", err
	}
	defer drain(resp)

	if resp.StatusCode != http.StatusCreated {
		return "", apperrors.CreateFailed(statusError(resp))
	}
	id := path.Base(resp.Header.Get("Location"))
	if id == "" || id == "." || id == "/" {
		return "", apperrors.CreateFailed(errors.New("create user response has no Location"))
	}
	c.logger.InfoContext(ctx, "created identity provider account", "external_id", id)
	return id, nil
}

// DeleteAccount removes a user. Failures are logged and reported as false.
func (c *AdminClient) DeleteAccount(ctx context.Context, externalID string) bool {
	if externalID == "" {
		return false
	}
	resp, err := c.do(ctx, http.MethodDelete, c.usersURL()+"/"+url.PathEscape(externalID), nil)
	if err != nil {
		c.logger.ErrorContext(ctx, "delete identity provider account failed", "external_id", externalID, "error", err)
		return false
	}
	defer drain(resp)

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		c.logger.ErrorContext(ctx, "delete identity provider account failed",
			"external_id", externalID, "error", statusError(resp))
		return false
	}
	c.logger.InfoContext(ctx, "deleted identity provider account", "external_id", externalID)
	return true
}

// FindAccountByEmail returns the id of the first user whose email matches exactly.
// No match is NotFound; transport and API failures are AdminUnavailable.
func (c *AdminClient) FindAccountByEmail(ctx context.Context, email string) (string, error) {
	q := url.Values{}
	q.Set("email", email)
	q.Set("exact", "true")

	resp, err := c.do(ctx, http.MethodGet, c.usersURL()+"?"+q.Encode(), nil)
	if err != nil {
		return "", err
	}
	defer drain(resp)

	if resp.StatusCode != http.StatusOK {
		return "", apperrors.AdminUnavailable(statusError(resp))
	}
	var users []userRepresentation
	if decodeErr := json.NewDecoder(resp.Body).Decode(&users); decodeErr != nil {
		return "", apperrors.AdminUnavailable(fmt.Errorf("decode users: %w", decodeErr))
	}
	if len(users) == 0 || users[0].ID == "" {
		return "", apperrors.NotFoundf("no identity provider account for %s", email)
	}
	return users[0].ID, nil
}

func (c *AdminClient) usersURL() string {
	return c.cfg.BaseURL + "/admin/realms/" + url.PathEscape(c.cfg.Realm) + "/users"
}

// do sends an authorised admin request, retrying once with a fresh token on 401.
func (c *AdminClient) do(ctx context.Context, method, target string, body any) (*http.Response, error) {
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode admin request: %w", err)
		}
		payload = b
	}

	for attempt := 0; ; attempt++ {
		tok, err := c.accessToken(ctx)
		if err != nil {
			return nil, err
		}

		rctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
		req, err := http.NewRequestWithContext(rctx, method, target, bytes.NewReader(payload))
		if err != nil {
			cancel()
			return nil, fmt.Errorf("create admin request: %w", err)
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		tok.SetAuthHeader(req)

		resp, err := c.client.Do(req)
		if err != nil {
			cancel()
			return nil, apperrors.AdminUnavailable(err)
		}
		resp.Body = cancelOnClose{ReadCloser: resp.Body, cancel: cancel}

		if resp.StatusCode == http.StatusUnauthorized && attempt == 0 {
			drain(resp)
			c.dropToken()
			continue
		}
		return resp, nil
	}
}

func (c *AdminClient) accessToken(ctx context.Context) (*oauth2.Token, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token.Valid() {
		return c.token, nil
	}

	octx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()
	octx = context.WithValue(octx, oauth2.HTTPClient, c.client)

	if c.oauth == nil {
		provider, err := gooidc.NewProvider(octx, RealmURL(c.cfg.BaseURL, c.cfg.AdminRealm))
		if err != nil {
			return nil, apperrors.AdminUnavailable(fmt.Errorf("discover admin realm: %w", err))
		}
		c.oauth = &oauth2.Config{ClientID: c.cfg.ClientID, Endpoint: provider.Endpoint()}
	}

	tok, err := c.oauth.PasswordCredentialsToken(octx, c.cfg.Username, c.cfg.Password)
	if err != nil {
		return nil, apperrors.AdminUnavailable(fmt.Errorf("admin login: %w", err))
	}
	c.token = tok
	return tok, nil
}

func (c *AdminClient) dropToken() {
	c.mu.Lock()
	c.token = nil
	c.mu.Unlock()
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}

func statusError(resp *http.Response) error {
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if len(bytes.TrimSpace(msg)) == 0 {
		return fmt.Errorf("keycloak admin returned status %d", resp.StatusCode)
	}
	return fmt.Errorf("keycloak admin returned status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
}
