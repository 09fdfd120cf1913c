package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/canalenergetico/canal-web/internal/store"
)

const userColumns = `id, nombre, email, password_hash, verified_at, role, is_active, created_at`

func scanUser(row pgx.Row) (store.User, error) {
	var (
		u    store.User
		role string
	)
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.VerifiedAt, &role, &u.IsActive, &u.CreatedAt); err != nil {
		return store.User{}, err
	}
	parsed, ok := store.ParseRole(role)
	if !ok {
		return store.User{}, fmt.Errorf("unknown role %q for user %d", role, u.ID)
	}
	u.Role = parsed
	return u, nil
}

// CreateUser implements store.UserRepository.
func (s *Store) CreateUser(ctx context.Context, u *store.User) error {
	role := u.Role
	if role == "" {
		role = store.RoleLector
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO users (nombre, email, password_hash, verified_at, role, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`,
		u.Name, strings.ToLower(strings.TrimSpace(u.Email)), u.PasswordHash, u.VerifiedAt, string(role), u.IsActive,
	).Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		return mapErr(err, "insert user")
	}
	u.Role = role
	return nil
}

// GetUser implements store.UserRepository.
func (s *Store) GetUser(ctx context.Context, id int64) (store.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return store.User{}, mapErr(err, "get user")
	}
	return u, nil
}

// GetUserByEmail implements store.UserRepository.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (store.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`, strings.ToLower(strings.TrimSpace(email))))
	if err != nil {
		return store.User{}, mapErr(err, "get user by email")
	}
	return u, nil
}

// UpdatePassword implements store.UserRepository.
func (s *Store) UpdatePassword(ctx context.Context, id int64, hash string) error {
	return s.updateUser(ctx, "update password", `UPDATE users SET password_hash = $1 WHERE id = $2`, hash, id)
}

// MarkVerified implements store.UserRepository.
func (s *Store) MarkVerified(ctx context.Context, id int64, at time.Time) error {
	return s.updateUser(ctx, "mark verified", `UPDATE users SET verified_at = $1 WHERE id = $2`, at, id)
}

// UpdateRole implements store.UserRepository.
func (s *Store) UpdateRole(ctx context.Context, id int64, role store.Role) error {
	return s.updateUser(ctx, "update role", `UPDATE users SET role = $1 WHERE id = $2`, string(role), id)
}

func (s *Store) updateUser(ctx context.Context, action, query string, args ...any) error {
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return mapErr(err, action)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}
