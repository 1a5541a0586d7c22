package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/datamed/datamed-api/internal/core"
	"github.com/datamed/datamed-api/internal/data/pgxutil"
	"github.com/datamed/datamed-api/internal/domain/model"
	apperrors "github.com/datamed/datamed-api/internal/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const userColumns = `id, email, password_hash, external_id, first_name, last_name, created_at, updated_at`

// UserRepo provides persistence for local user accounts.
type UserRepo struct {
	DB   *sql.DB
	Time TimeProvider
}

var _ core.UserRepository = (*UserRepo)(nil)

// NewUserRepo creates a new UserRepo. A nil TimeProvider uses the system clock.
func NewUserRepo(db *sql.DB, tp TimeProvider) *UserRepo {
	if tp == nil {
		tp = &RealTimeProvider{}
	}
	return &UserRepo{DB: db, Time: tp}
}

// Create inserts a user. A duplicate email maps to a Conflict error.
func (r *UserRepo) Create(ctx context.Context, req model.CreateUserRequest) (*model.User, error) {
	email := model.NormalizeEmail(req.Email)
	if email == "" || req.PasswordHash == "" {
		return nil, apperrors.Validation("email and password hash are required")
	}

	now := r.Time.Now().UTC()
	out, err := pgxutil.QueryOne[model.User](ctx, r.DB, `
		INSERT INTO users (id, email, password_hash, external_id, first_name, last_name, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		RETURNING `+userColumns,
		uuid.NewString(), email, req.PasswordHash, req.ExternalID, req.FirstName, req.LastName, now,
	)
	if err != nil {
		return nil, fmt.Errorf("create user: %w", apperrors.MapDBError(err))
	}
	return &out, nil
}

// GetByID returns the user with id or a NotFound error.
func (r *UserRepo) GetByID(ctx context.Context, id string) (*model.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, apperrors.NotFoundf("user %s not found", id)
	}
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

// GetByEmail returns the user with email or a NotFound error.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, model.NormalizeEmail(email))
}

// ExistsByEmail reports whether a user with email is registered.
func (r *UserRepo) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.DB.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM users WHERE email = $1)`, model.NormalizeEmail(email),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check user email: %w", apperrors.MapDBError(err))
	}
	return exists, nil
}

// UpdatePasswordHash replaces the stored hash for id.
func (r *UserRepo) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1`,
		id, hash, r.Time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("update password: %w", apperrors.MapDBError(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update password rows affected: %w", err)
	}
	if n == 0 {
		return apperrors.NotFoundf("user %s not found", id)
	}
	return nil
}

// Delete removes the user with id and reports whether a row was deleted.
func (r *UserRepo) Delete(ctx context.Context, id string) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete user: %w", apperrors.MapDBError(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete user rows affected: %w", err)
	}
	return n > 0, nil
}

// Health pings the database.
func (r *UserRepo) Health(ctx context.Context) error {
	return r.DB.PingContext(ctx)
}

func (r *UserRepo) getOne(ctx context.Context, query string, arg any) (*model.User, error) {
	u, err := pgxutil.QueryOne[model.User](ctx, r.DB, query, arg)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NotFound("user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", apperrors.MapDBError(err))
	}
	return &u, nil
}
