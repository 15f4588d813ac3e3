package db

import (
	"context"
	"fmt"

	"github.com/Spok95/campus-maintenance/internal/models"
)

// EnsureDefaultAdmin creates the bootstrap admin when the users table has no
// admin yet. It reports whether a user was created.
func EnsureDefaultAdmin(ctx context.Context, s *Store, name, email, phone string, hash func(string) (string, error), password string) (bool, error) {
	ok, err := s.HasAdmin(ctx)
	if err != nil {
		return false, err
	}
	if ok {
		return false, nil
	}
	if password == "" {
		return false, fmt.Errorf("no admin exists and ADMIN_DEFAULT_PASSWORD is empty")
	}
	h, err := hash(password)
	if err != nil {
		return false, fmt.Errorf("hash default admin password: %w", err)
	}
	if _, err := s.CreateUser(ctx, models.User{
		Name:         name,
		Email:        email,
		Phone:        phone,
		PasswordHash: h,
		Role:         models.Admin,
	}); err != nil {
		return false, err
	}
	return true, nil
}
