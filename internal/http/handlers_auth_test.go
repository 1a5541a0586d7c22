package httpx

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	domainauth "github.com/datamed/datamed-api/internal/domain/auth"
	"github.com/datamed/datamed-api/internal/domain/model"
	apperrors "github.com/datamed/datamed-api/internal/errors"
	"github.com/datamed/datamed-api/internal/service"
	"github.com/datamed/datamed-api/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAccounts is a test double for AccountServiceInterface.
type fakeAccounts struct {
	registerFunc func(ctx context.Context, req model.RegisterRequest) (*model.User, error)
	loginFunc    func(ctx context.Context, req model.LoginRequest) (*service.LoginResult, error)
	changeFunc   func(ctx context.Context, req model.ChangePasswordRequest) error
	deleteFunc   func(ctx context.Context, req model.DeleteAccountRequest) error
	findFunc     func(ctx context.Context, email string) (string, error)
}

func (f *fakeAccounts) Register(ctx context.Context, req model.RegisterRequest) (*model.User, error) {
	if f.registerFunc != nil {
		return f.registerFunc(ctx, req)
	}
	return testutil.NewUser().WithEmail(req.Email).Build(), nil
}

func (f *fakeAccounts) Login(ctx context.Context, req model.LoginRequest) (*service.LoginResult, error) {
	if f.loginFunc != nil {
		return f.loginFunc(ctx, req)
	}
	return &service.LoginResult{User: testutil.NewUser().WithEmail(req.Email).Build()}, nil
}

func (f *fakeAccounts) ChangePassword(ctx context.Context, req model.ChangePasswordRequest) error {
	if f.changeFunc != nil {
		return f.changeFunc(ctx, req)
	}
	return nil
}

func (f *fakeAccounts) DeleteAccount(ctx context.Context, req model.DeleteAccountRequest) error {
	if f.deleteFunc != nil {
		return f.deleteFunc(ctx, req)
	}
	return nil
}

func (f *fakeAccounts) FindAccount(ctx context.Context, email string) (string, error) {
	if f.findFunc != nil {
		return f.findFunc(ctx, email)
	}
	return "kc-" + email, nil
}

func serveJSON(h http.HandlerFunc, method, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, "/", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func TestAuthHandlers_Register(t *testing.T) {
	var got model.RegisterRequest
	h := &AuthHandlers{Svc: &fakeAccounts{
		registerFunc: func(_ context.Context, req model.RegisterRequest) (*model.User, error) {
			got = req
			return testutil.NewUser().WithID("u-1").Build(), nil
		},
	}}

	rec := serveJSON(h.Register, http.MethodPost,
		`{"email":"anna@example.com","password":"Secret1!","first_name":"Anna","last_name":"Nowak"}`)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"message":"Account created successfully","user_id":"u-1"}`, rec.Body.String())
	assert.Equal(t, model.RegisterRequest{Email: "anna@example.com", Password: "Secret1!", FirstName: "Anna", LastName: "Nowak"}, got)
}

func TestAuthHandlers_RegisterErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantBody string
	}{
		{
			name:     "duplicate",
			err:      apperrors.ValidationField("email", "Email already exists"),
			wantCode: http.StatusBadRequest,
			wantBody: `{"error":"Email already exists","code":"validation"}`,
		},
		{
			name:     "identity provider refused",
			err:      apperrors.CreateFailed(nil),
			wantCode: http.StatusInternalServerError,
			wantBody: `{"error":"Failed to create account in identity provider","code":"create_failed"}`,
		},
		{
			name:     "admin session down",
			err:      apperrors.AdminUnavailable(nil),
			wantCode: http.StatusServiceUnavailable,
			wantBody: `{"error":"Identity provider admin session unavailable","code":"admin_unavailable"}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &AuthHandlers{Svc: &fakeAccounts{
				registerFunc: func(context.Context, model.RegisterRequest) (*model.User, error) { return nil, tt.err },
			}}
			rec := serveJSON(h.Register, http.MethodPost, `{"email":"a@b.pl","password":"x"}`)
			assert.Equal(t, tt.wantCode, rec.Code)
			assert.JSONEq(t, tt.wantBody, rec.Body.String())
		})
	}
}

func TestAuthHandlers_Login(t *testing.T) {
	t.Run("with token", func(t *testing.T) {
		h := &AuthHandlers{Svc: &fakeAccounts{
			loginFunc: func(_ context.Context, req model.LoginRequest) (*service.LoginResult, error) {
				return &service.LoginResult{
					User:  testutil.NewUser().WithID("u-9").WithEmail(req.Email).Build(),
					Token: "jwt",
				}, nil
			},
		}}
		rec := serveJSON(h.Login, http.MethodPost, `{"email":"jan@example.com","password":"Secret1!"}`)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"message":"Login successful","user_id":"u-9","email":"jan@example.com","token":"jwt"}`, rec.Body.String())
	})

	t.Run("without token", func(t *testing.T) {
		h := &AuthHandlers{Svc: &fakeAccounts{}}
		rec := serveJSON(h.Login, http.MethodPost, `{"email":"jan@example.com","password":"Secret1!"}`)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.NotContains(t, rec.Body.String(), "token")
	})

	t.Run("bad credentials", func(t *testing.T) {
		h := &AuthHandlers{Svc: &fakeAccounts{
			loginFunc: func(context.Context, model.LoginRequest) (*service.LoginResult, error) {
				return nil, apperrors.Unauthorized("Invalid email or password")
			},
		}}
		rec := serveJSON(h.Login, http.MethodPost, `{"email":"jan@example.com","password":"nope"}`)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.JSONEq(t, `{"error":"Invalid email or password","code":"unauthorized"}`, rec.Body.String())
	})

	t.Run("unknown field", func(t *testing.T) {
		h := &AuthHandlers{Svc: &fakeAccounts{}}
		rec := serveJSON(h.Login, http.MethodPost, `{"email":"jan@example.com","password":"x","admin":true}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestAuthHandlers_ChangePasswordAndDelete(t *testing.T) {
	var change model.ChangePasswordRequest
	var del model.DeleteAccountRequest
	h := &AuthHandlers{Svc: &fakeAccounts{
		changeFunc: func(_ context.Context, req model.ChangePasswordRequest) error { change = req; return nil },
		deleteFunc: func(_ context.Context, req model.DeleteAccountRequest) error { del = req; return nil },
	}}

	rec := serveJSON(h.ChangePassword, http.MethodPut, `{"email":"a@b.pl","old_password":"Old1!aaa","new_password":"New1!bbb"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"Password updated successfully"}`, rec.Body.String())
	assert.Equal(t, "New1!bbb", change.NewPassword)

	rec = serveJSON(h.DeleteAccount, http.MethodDelete, `{"email":"a@b.pl","password":"Old1!aaa"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"Account deleted successfully"}`, rec.Body.String())
	assert.Equal(t, "a@b.pl", del.Email)
}

func TestAuthHandlers_Me(t *testing.T) {
	h := &AuthHandlers{Svc: &fakeAccounts{}}

	rec := httptest.NewRecorder()
	h.Me(rec, httptest.NewRequest(http.MethodGet, "/auth/me", nil), domainauth.Identity{UserID: "42"})
	assert.JSONEq(t, `{"user_id":"42","roles":[]}`, rec.Body.String())

	rec = httptest.NewRecorder()
	h.Me(rec, httptest.NewRequest(http.MethodGet, "/auth/me", nil), domainauth.Identity{UserID: "kc-1", Roles: []string{"doctor"}})
	assert.JSONEq(t, `{"user_id":"kc-1","roles":["doctor"]}`, rec.Body.String())
}

func TestAuthHandlers_FindAccount(t *testing.T) {
	h := &AuthHandlers{Svc: &fakeAccounts{
		findFunc: func(_ context.Context, email string) (string, error) {
			if email == "ghost@example.com" {
				return "", apperrors.NotFoundf("no account for %s", email)
			}
			return "kc-77", nil
		},
	}}

	rec := httptest.NewRecorder()
	h.FindAccount(rec, httptest.NewRequest(http.MethodGet, "/admin/accounts?email=doc@example.com", nil), domainauth.Identity{UserID: "a"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"email":"doc@example.com","id":"kc-77"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	h.FindAccount(rec, httptest.NewRequest(http.MethodGet, "/admin/accounts?email=ghost@example.com", nil), domainauth.Identity{UserID: "a"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decodeError(t, rec).Code)
}
