package httpx

import (
	"context"
	"log/slog"
	"net/http"

	domainauth "github.com/datamed/datamed-api/internal/domain/auth"
	"github.com/datamed/datamed-api/internal/domain/model"
	"github.com/datamed/datamed-api/internal/service"
)

// AccountServiceInterface defines the account operations exposed over HTTP.
type AccountServiceInterface interface {
	Register(ctx context.Context, req model.RegisterRequest) (*model.User, error)
	Login(ctx context.Context, req model.LoginRequest) (*service.LoginResult, error)
	ChangePassword(ctx context.Context, req model.ChangePasswordRequest) error
	DeleteAccount(ctx context.Context, req model.DeleteAccountRequest) error
	FindAccount(ctx context.Context, email string) (string, error)
}

var _ AccountServiceInterface = (*service.AccountService)(nil)

// AuthHandlers provides HTTP handlers for account and identity operations.
type AuthHandlers struct {
	Svc    AccountServiceInterface
	Logger *slog.Logger
}

func (h *AuthHandlers) logger() *slog.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

type messageResponse struct {
	Message string `json:"message"`
}

type registerResponse struct {
	Message string `json:"message"`
	UserID  string `json:"user_id"`
}

type loginResponse struct {
	Message string `json:"message"`
	UserID  string `json:"user_id"`
	Email   string `json:"email"`
	Token   string `json:"token,omitempty"`
}

type meResponse struct {
	UserID string   `json:"user_id"`
	Roles  []string `json:"roles"`
}

type accountLookupResponse struct {
	Email string `json:"email"`
	ID    string `json:"id"`
}

// Register creates an account.
// POST /auth/register.
func (h *AuthHandlers) Register(w http.ResponseWriter, r *http.Request) {
	var req model.RegisterRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	user, err := h.Svc.Register(r.Context(), req)
	if err != nil {
		h.fail(w, r, "register", err)
		return
	}
	WriteJSON(w, http.StatusCreated, registerResponse{Message: "Account created successfully", UserID: user.ID})
}

// Login checks credentials and, in local mode, returns a token.
// POST /auth/login.
func (h *AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	var req model.LoginRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	res, err := h.Svc.Login(r.Context(), req)
	if err != nil {
		h.fail(w, r, "login", err)
		return
	}
	WriteJSON(w, http.StatusOK, loginResponse{
		Message: "Login successful",
		UserID:  res.User.ID,
		Email:   res.User.Email,
		Token:   res.Token,
	})
}

// ChangePassword replaces the caller's password.
// PUT /auth/password.
func (h *AuthHandlers) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req model.ChangePasswordRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if err := h.Svc.ChangePassword(r.Context(), req); err != nil {
		h.fail(w, r, "change_password", err)
		return
	}
	WriteJSON(w, http.StatusOK, messageResponse{Message: "Password updated successfully"})
}

// DeleteAccount removes the caller's account.
// DELETE /auth/account.
func (h *AuthHandlers) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	var req model.DeleteAccountRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if err := h.Svc.DeleteAccount(r.Context(), req); err != nil {
		h.fail(w, r, "delete_account", err)
		return
	}
	WriteJSON(w, http.StatusOK, messageResponse{Message: "Account deleted successfully"})
}

// Me echoes the authenticated identity.
// GET /auth/me.
func (h *AuthHandlers) Me(w http.ResponseWriter, _ *http.Request, ident domainauth.Identity) {
	roles := ident.Roles
	if roles == nil {
		roles = []string{}
	}
	WriteJSON(w, http.StatusOK, meResponse{UserID: ident.UserID, Roles: roles})
}

// FindAccount looks up an identity provider account by email.
// GET /admin/accounts?email=<email>.
func (h *AuthHandlers) FindAccount(w http.ResponseWriter, r *http.Request, _ domainauth.Identity) {
	email := r.URL.Query().Get("email")
	id, err := h.Svc.FindAccount(r.Context(), email)
	if err != nil {
		h.fail(w, r, "find_account", err)
		return
	}
	WriteJSON(w, http.StatusOK, accountLookupResponse{Email: email, ID: id})
}

func (h *AuthHandlers) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	if StatusFor(err) >= http.StatusInternalServerError {
		h.logger().ErrorContext(r.Context(), "request failed", "op", op, "error", err)
	}
	WriteAppError(w, err)
}
