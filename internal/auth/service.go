package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Spok95/campus-maintenance/internal/apperr"
	"github.com/Spok95/campus-maintenance/internal/models"
)

type UserStore interface {
	UserByEmail(ctx context.Context, email string) (*models.User, error)
}

type Session struct {
	Token     string
	ExpiresAt time.Time
	User      models.User
}

type Service struct {
	users  UserStore
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func NewService(users UserStore, secret, issuer string, ttl time.Duration) *Service {
	return &Service{
		users:  users,
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Authenticate checks the email/password pair and issues a session token.
// Unknown email and wrong password fail the same way.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, apperr.Validation("Email and password are required")
	}

	user, err := s.users.UserByEmail(ctx, email)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, apperr.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if err := CheckPassword(user.PasswordHash, password); err != nil {
		return nil, apperr.ErrInvalidCredentials
	}

	token, exp, err := NewToken(s.secret, s.issuer, s.ttl, s.now(), Claims{
		UserID: user.ID,
		Email:  user.Email,
		Role:   user.Role,
	})
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}
	return &Session{Token: token, ExpiresAt: exp, User: *user}, nil
}

// Verify needs no store lookup: signature, issuer and expiry only.
func (s *Service) Verify(token string) (*Claims, error) {
	claims, err := ParseToken(s.secret, s.issuer, token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrInvalidToken, err)
	}
	return claims, nil
}

func RequireRole(claims *Claims, role models.Role) error {
	if claims == nil || claims.Role != role {
		return apperr.ErrForbiddenRole
	}
	return nil
}
