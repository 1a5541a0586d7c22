package httpx

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/datamed/datamed-api/internal/adapters/localjwt"
	domainauth "github.com/datamed/datamed-api/internal/domain/auth"
	"github.com/datamed/datamed-api/internal/domain/model"
	"github.com/datamed/datamed-api/internal/service"
	"github.com/datamed/datamed-api/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type routerFixture struct {
	srv    *httptest.Server
	engine *localjwt.Engine
}

func newRouterFixture(t *testing.T, mutate func(*RouterServices)) *routerFixture {
	t.Helper()
	engine, err := localjwt.NewEngine([]byte("router-test-secret"))
	require.NoError(t, err)

	accounts := &fakeAccounts{
		loginFunc: func(_ context.Context, req model.LoginRequest) (*service.LoginResult, error) {
			user := testutil.NewUser().WithID("17").WithEmail(req.Email).Build()
			tok, ierr := engine.Issue(user.ID)
			if ierr != nil {
				return nil, ierr
			}
			return &service.LoginResult{User: user, Token: tok}, nil
		},
	}

	svcs := RouterServices{
		Accounts:       accounts,
		Authenticator:  service.NewAuthService(service.AuthServiceOptions{Verifier: engine, Mode: "local"}),
		DefaultLimiter: newMemoryLimiter(t, 60, time.Minute, nil),
		AuthLimiter:    newMemoryLimiter(t, 5, 300*time.Second, nil),
		Upload:         UploadPolicy{MaxBytes: 1 << 16},
	}
	if mutate != nil {
		mutate(&svcs)
	}

	srv := httptest.NewServer(NewRouter(svcs))
	t.Cleanup(srv.Close)
	return &routerFixture{srv: srv, engine: engine}
}

func TestRouter_LoginThenMe(t *testing.T) {
	f := newRouterFixture(t, nil)

	resp := DoJSON(t, JSONRequest{
		Method:  http.MethodPost,
		URL:     f.srv.URL + "/auth/login",
		Payload: map[string]string{"email": "jan@example.com", "password": "Secret1!"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var login struct {
		UserID string `json:"user_id"`
		Token  string `json:"token"`
	}
	DecodeBody(t, resp, &login)
	require.NotEmpty(t, login.Token)

	resp = DoJSON(t, JSONRequest{Method: http.MethodGet, URL: f.srv.URL + "/auth/me", Token: login.Token})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var me struct {
		UserID string   `json:"user_id"`
		Roles  []string `json:"roles"`
	}
	DecodeBody(t, resp, &me)
	assert.Equal(t, "17", me.UserID)
	assert.Empty(t, me.Roles)
}

func TestRouter_MeRequiresToken(t *testing.T) {
	f := newRouterFixture(t, nil)

	resp := DoJSON(t, JSONRequest{Method: http.MethodGet, URL: f.srv.URL + "/auth/me"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	var body ErrorBody
	DecodeBody(t, resp, &body)
	assert.Equal(t, "header_missing", body.Code)

	resp = DoJSON(t, JSONRequest{Method: http.MethodGet, URL: f.srv.URL + "/auth/me", Token: "not.a.jwt"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	DecodeBody(t, resp, &body)
	assert.Equal(t, "token_malformed", body.Code)
}

func TestRouter_LoginRateLimited(t *testing.T) {
	f := newRouterFixture(t, func(s *RouterServices) { s.TrustForwardedFor = true })

	login := func(client string) *http.Response {
		return DoJSON(t, JSONRequest{
			Method:  http.MethodPost,
			URL:     f.srv.URL + "/auth/login",
			Payload: map[string]string{"email": "jan@example.com", "password": "Secret1!"},
			Header:  http.Header{"X-Forwarded-For": []string{client}},
		})
	}

	for i := range 5 {
		resp := login("198.51.100.1")
		_ = resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode, "attempt %d", i+1)
	}

	resp := login("198.51.100.1")
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
	_ = resp.Body.Close()

	resp = login("198.51.100.2")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestRouter_AdminLookup(t *testing.T) {
	admin := map[string]domainauth.Identity{
		"admin-token":  {UserID: "kc-admin", Roles: []string{"admin"}},
		"doctor-token": {UserID: "kc-doc", Roles: []string{"doctor"}},
	}

	t.Run("not mounted without directory", func(t *testing.T) {
		f := newRouterFixture(t, nil)
		resp := DoJSON(t, JSONRequest{Method: http.MethodGet, URL: f.srv.URL + "/admin/accounts?email=a@b.pl"})
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		_ = resp.Body.Close()
	})

	f := newRouterFixture(t, func(s *RouterServices) {
		s.AdminLookup = true
		s.Authenticator = newTestAuthenticator(admin)
	})

	resp := DoJSON(t, JSONRequest{Method: http.MethodGet, URL: f.srv.URL + "/admin/accounts?email=a@b.pl", Token: "doctor-token"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	var body ErrorBody
	DecodeBody(t, resp, &body)
	assert.Equal(t, "Role admin required", body.Error)

	resp = DoJSON(t, JSONRequest{Method: http.MethodGet, URL: f.srv.URL + "/admin/accounts?email=a@b.pl", Token: "admin-token"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var found map[string]string
	DecodeBody(t, resp, &found)
	assert.Equal(t, "kc-a@b.pl", found["id"])
}

func TestRouter_UploadValidate(t *testing.T) {
	f := newRouterFixture(t, nil)
	tok, err := f.engine.Issue("5")
	require.NoError(t, err)

	upload := func(name string, content []byte, token string) *http.Response {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		fw, werr := mw.CreateFormFile(UploadField, name)
		require.NoError(t, werr)
		_, werr = fw.Write(content)
		require.NoError(t, werr)
		require.NoError(t, mw.Close())

		req, rerr := http.NewRequestWithContext(t.Context(), http.MethodPost, f.srv.URL+"/uploads/validate", &buf)
		require.NoError(t, rerr)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		resp, derr := http.DefaultClient.Do(req)
		require.NoError(t, derr)
		return resp
	}

	resp := upload("recepta.pdf", []byte("%PDF-1.4 body"), tok)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var ok uploadResponse
	DecodeBody(t, resp, &ok)
	assert.Equal(t, uploadResponse{Filename: "recepta.pdf", Size: 13}, ok)

	resp = upload("recepta.pdf", []byte("GIF89a"), tok)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var body ErrorBody
	DecodeBody(t, resp, &body)
	assert.Equal(t, "Invalid PDF file", body.Error)

	// Authentication runs before upload validation.
	resp = upload("recepta.pdf", []byte("GIF89a"), "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestRouter_HealthAndNotFound(t *testing.T) {
	f := newRouterFixture(t, nil)

	resp := DoJSON(t, JSONRequest{Method: http.MethodGet, URL: f.srv.URL + "/healthz"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()

	resp = DoJSON(t, JSONRequest{Method: http.MethodGet, URL: f.srv.URL + "/nope"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	var body ErrorBody
	DecodeBody(t, resp, &body)
	assert.Equal(t, "not_found", body.Code)
}
