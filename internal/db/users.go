package db

import (
	"context"
	"database/sql"
	"errors"

	"github.com/Spok95/campus-maintenance/internal/apperr"
	"github.com/Spok95/campus-maintenance/internal/ctxutil"
	"github.com/Spok95/campus-maintenance/internal/models"
)

const userColumns = `id, name, email, phone, password_hash, role, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*models.User, error) {
	var u models.User
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.Phone, &u.PasswordHash, &u.Role, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

// UserByEmail returns apperr.ErrNotFound when no user has this email.
func (s *Store) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()

	u, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, apperr.Store("user by email", err)
	}
	return u, nil
}

func (s *Store) CreateUser(ctx context.Context, u models.User) (int64, error) {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()

	if u.Role == "" {
		u.Role = models.Teacher
	}
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO users (name, email, phone, password_hash, role)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`, u.Name, u.Email, u.Phone, u.PasswordHash, string(u.Role)).Scan(&id)
	if err != nil {
		return 0, apperr.Store("create user", err)
	}
	return id, nil
}

func (s *Store) HasAdmin(ctx context.Context) (bool, error) {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()

	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE role = 'admin')`).Scan(&exists)
	if err != nil {
		return false, apperr.Store("has admin", err)
	}
	return exists, nil
}
