package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"scorecard.org/internal/auth"
)

func (s *Store) CreateUser(ctx context.Context, u *auth.User) error {
	_, err := s.db.ExecContext(ctx, `
		insert into users (id, code, email, password_hash, role, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7)
	`, u.ID, u.Code, u.Email, u.PasswordHash, string(u.Role), u.CreatedAt, u.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return auth.ErrConflict
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *Store) FindUser(ctx context.Context, id string) (*auth.User, error) {
	return s.findUserBy(ctx, "id", id)
}

func (s *Store) FindUserByCode(ctx context.Context, code string) (*auth.User, error) {
	return s.findUserBy(ctx, "code", code)
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (*auth.User, error) {
	return s.findUserBy(ctx, "email", email)
}

func (s *Store) findUserBy(ctx context.Context, column, value string) (*auth.User, error) {
	var (
		u    auth.User
		role string
	)
	err := s.db.QueryRowContext(ctx, `
		select id, code, email, password_hash, role, created_at, updated_at
		from users where `+column+` = $1
	`, value).Scan(&u.ID, &u.Code, &u.Email, &u.PasswordHash, &role, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	u.Role = auth.Role(role)
	return &u, nil
}
