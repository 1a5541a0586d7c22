package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/datamed/datamed-api/internal/core"
	"github.com/datamed/datamed-api/internal/domain/model"
	apperrors "github.com/datamed/datamed-api/internal/errors"
	"github.com/datamed/datamed-api/internal/http/validation"
	"github.com/datamed/datamed-api/internal/observability/metrics"
	"github.com/datamed/datamed-api/internal/observability/statsd"
	"github.com/datamed/datamed-api/internal/ports"
)

const (
	defaultCompensationTimeout = 10 * time.Second
	maxPasswordLength          = 72 // bcrypt input limit in bytes
	maxEmailLength             = 254

	msgEmailExists        = "Email already exists"
	msgInvalidLogin       = "Invalid email or password"
	msgInvalidCredentials = "Invalid credentials"
)

// AccountServiceOptions groups dependencies for AccountService.
type AccountServiceOptions struct {
	Users  core.UserRepository
	Hasher ports.PasswordHasher
	// Directory is the identity provider account directory. Nil in local mode.
	Directory ports.AccountDirectory
	// Issuer mints self-issued tokens on login. Nil in keycloak mode.
	Issuer              ports.TokenIssuer
	CompensationTimeout time.Duration
	Metrics             statsd.Sink
	Logger              *slog.Logger
}

// AccountService manages local accounts and, when configured, their identity
// provider counterparts.
type AccountService struct {
	users       core.UserRepository
	hasher      ports.PasswordHasher
	directory   ports.AccountDirectory
	issuer      ports.TokenIssuer
	compTimeout time.Duration
	metrics     statsd.Sink
	logger      *slog.Logger
}

// NewAccountService constructs a new AccountService.
func NewAccountService(opts AccountServiceOptions) *AccountService {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := opts.CompensationTimeout
	if timeout <= 0 {
		timeout = defaultCompensationTimeout
	}
	return &AccountService{
		users:       opts.Users,
		hasher:      opts.Hasher,
		directory:   opts.Directory,
		issuer:      opts.Issuer,
		compTimeout: timeout,
		metrics:     opts.Metrics,
		logger:      logger.With("component", "account_service"),
	}
}

// LoginResult is returned by Login. Token is empty when no issuer is configured.
type LoginResult struct {
	User  *model.User
	Token string
}

// Register creates an account. With a directory configured the identity
// provider account is created first; if the local insert then fails it is
// deleted again and the local error is returned.
func (s *AccountService) Register(ctx context.Context, req model.RegisterRequest) (user *model.User, err error) {
	defer s.observe("register", time.Now(), &err)

	if verr := validation.New().
		Validate("email", req.Email, validation.Email("Email")).
		Validate("password", req.Password, validation.Required("Password", maxPasswordLength), validation.MaxBytes("Password", maxPasswordLength), validation.StrongPassword()).
		Validate("first_name", req.FirstName, validation.PersonName("First name")).
		Validate("last_name", req.LastName, validation.PersonName("Last name")).
		Err("email", "password", "first_name", "last_name"); verr != nil {
		return nil, verr
	}

	email := model.NormalizeEmail(req.Email)
	firstName := validation.Sanitize(req.FirstName)
	lastName := validation.Sanitize(req.LastName)

	exists, err := s.users.ExistsByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, apperrors.ValidationField("email", msgEmailExists)
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to hash password")
	}

	create := model.CreateUserRequest{
		Email:        email,
		PasswordHash: hash,
		FirstName:    optional(firstName),
		LastName:     optional(lastName),
	}

	if s.directory != nil {
		externalID, cerr := s.directory.CreateAccount(ctx, ports.AccountInput{
			Email:     email,
			Password:  req.Password,
			FirstName: firstName,
			LastName:  lastName,
		})
		if cerr != nil {
			return nil, cerr
		}
		create.ExternalID = &externalID
	}

	user, err = s.users.Create(ctx, create)
	if err != nil {
		if create.ExternalID != nil {
			s.compensate(ctx, *create.ExternalID, err)
		}
		return nil, err
	}

	s.logger.InfoContext(ctx, "account registered", "user_id", user.ID, "linked", create.ExternalID != nil)
	return user, nil
}

// compensate removes an identity provider account whose local counterpart
// could not be stored. It runs detached from ctx so a cancelled request still
// cleans up.
func (s *AccountService) compensate(ctx context.Context, externalID string, cause error) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.compTimeout)
	defer cancel()

	if s.directory.DeleteAccount(cctx, externalID) {
		s.logger.WarnContext(ctx, "rolled back identity provider account after local insert failure",
			"external_id", externalID, "error", cause)
		return
	}
	s.logger.ErrorContext(ctx, "compensating delete failed; identity provider account is orphaned",
		"external_id", externalID, "error", cause)
}

// Login checks credentials and, in local mode, issues a token.
func (s *AccountService) Login(ctx context.Context, req model.LoginRequest) (res *LoginResult, err error) {
	defer s.observe("login", time.Now(), &err)

	if verr := validation.New().
		Validate("email", req.Email, validation.Required("Email", maxEmailLength)).
		Validate("password", req.Password, validation.Required("Password", maxPasswordLength)).
		Err("email", "password"); verr != nil {
		return nil, verr
	}

	user, err := s.checkCredentials(ctx, req.Email, req.Password, msgInvalidLogin)
	if err != nil {
		return nil, err
	}
	s.rehash(ctx, user, req.Password)

	res = &LoginResult{User: user}
	if s.issuer != nil {
		tok, ierr := s.issuer.Issue(user.ID)
		if ierr != nil {
			return nil, apperrors.Wrap(ierr, apperrors.ErrCodeInternal, "failed to issue token")
		}
		res.Token = tok
	}
	return res, nil
}

// ChangePassword replaces the local password hash after checking the old password.
func (s *AccountService) ChangePassword(ctx context.Context, req model.ChangePasswordRequest) (err error) {
	defer s.observe("change_password", time.Now(), &err)

	if verr := validation.New().
		Validate("email", req.Email, validation.Required("Email", maxEmailLength)).
		Validate("old_password", req.OldPassword, validation.Required("Old password", maxPasswordLength)).
		Validate("new_password", req.NewPassword, validation.Required("New password", maxPasswordLength), validation.MaxBytes("New password", maxPasswordLength), validation.StrongPassword()).
		Err("email", "old_password", "new_password"); verr != nil {
		return verr
	}

	user, err := s.checkCredentials(ctx, req.Email, req.OldPassword, msgInvalidCredentials)
	if err != nil {
		return err
	}

	hash, err := s.hasher.Hash(req.NewPassword)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to hash password")
	}
	if err := s.users.UpdatePasswordHash(ctx, user.ID, hash); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "password changed", "user_id", user.ID)
	return nil
}

// DeleteAccount removes the local account after checking credentials, then
// removes the linked identity provider account on a best-effort basis.
func (s *AccountService) DeleteAccount(ctx context.Context, req model.DeleteAccountRequest) (err error) {
	defer s.observe("delete", time.Now(), &err)

	if verr := validation.New().
		Validate("email", req.Email, validation.Required("Email", maxEmailLength)).
		Validate("password", req.Password, validation.Required("Password", maxPasswordLength)).
		Err("email", "password"); verr != nil {
		return verr
	}

	user, err := s.checkCredentials(ctx, req.Email, req.Password, msgInvalidCredentials)
	if err != nil {
		return err
	}

	deleted, err := s.users.Delete(ctx, user.ID)
	if err != nil {
		return err
	}
	if !deleted {
		return apperrors.NotFound("account not found")
	}

	if s.directory != nil && user.ExternalID != nil && *user.ExternalID != "" {
		if !s.directory.DeleteAccount(ctx, *user.ExternalID) {
			s.logger.WarnContext(ctx, "identity provider account not removed", "user_id", user.ID, "external_id", *user.ExternalID)
		}
	}
	s.logger.InfoContext(ctx, "account deleted", "user_id", user.ID)
	return nil
}

// FindAccount looks up the identity provider id for email.
func (s *AccountService) FindAccount(ctx context.Context, email string) (id string, err error) {
	defer s.observe("find", time.Now(), &err)

	if verr := validation.New().Validate("email", email, validation.Email("Email")).Err(); verr != nil {
		return "", verr
	}
	if s.directory == nil {
		return "", apperrors.AdminUnavailable(errors.New("identity provider admin client not configured"))
	}
	return s.directory.FindAccountByEmail(ctx, model.NormalizeEmail(email))
}

// checkCredentials loads the user by email and verifies password. Unknown
// users and wrong passwords produce the same unauthorized error.
func (s *AccountService) checkCredentials(ctx context.Context, email, password, failMsg string) (*model.User, error) {
	user, err := s.users.GetByEmail(ctx, model.NormalizeEmail(email))
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, apperrors.Unauthorized(failMsg)
		}
		return nil, err
	}
	if !s.hasher.Verify(user.PasswordHash, password) {
		return nil, apperrors.Unauthorized(failMsg)
	}
	return user, nil
}

// rehash upgrades a hash produced with an outdated cost. Failures only log.
func (s *AccountService) rehash(ctx context.Context, user *model.User, password string) {
	if !s.hasher.NeedsRehash(user.PasswordHash) {
		return
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		s.logger.WarnContext(ctx, "password rehash failed", "user_id", user.ID, "error", err)
		return
	}
	if err := s.users.UpdatePasswordHash(ctx, user.ID, hash); err != nil {
		s.logger.WarnContext(ctx, "password rehash not stored", "user_id", user.ID, "error", err)
		return
	}
	user.PasswordHash = hash
	s.logger.DebugContext(ctx, "password rehashed", "user_id", user.ID)
}

func (s *AccountService) observe(op string, start time.Time, err *error) {
	metrics.EmitAccountOp(s.metrics, metrics.AccountMetric{
		Operation: op,
		Duration:  time.Since(start),
		Err:       *err,
	})
}

func optional(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}
