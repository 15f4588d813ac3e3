package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Spok95/campus-maintenance/internal/apperr"
	"github.com/Spok95/campus-maintenance/internal/models"
)

type memUsers map[string]models.User

func (m memUsers) UserByEmail(_ context.Context, email string) (*models.User, error) {
	u, ok := m[email]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return &u, nil
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	hash, err := HashPassword("teach123")
	if err != nil {
		t.Fatal(err)
	}
	users := memUsers{
		"t@campus.edu": {ID: 3, Name: "Teacher", Email: "t@campus.edu", PasswordHash: hash, Role: models.Teacher},
	}
	return NewService(users, "secret", "campus-maintenance", time.Hour)
}

func TestAuthenticate(t *testing.T) {
	svc := newTestService(t)

	sess, err := svc.Authenticate(context.Background(), "  T@Campus.edu ", "teach123")
	if err != nil {
		t.Fatalf("expected login to succeed: %v", err)
	}
	if sess.Token == "" || sess.User.ID != 3 {
		t.Fatalf("unexpected session %+v", sess)
	}
	claims, err := svc.Verify(sess.Token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.UserID != 3 || claims.Role != models.Teacher || claims.Email != "t@campus.edu" {
		t.Fatalf("unexpected claims %+v", claims)
	}
	if d := time.Until(claims.ExpiresAt.Time); d <= 59*time.Minute || d > time.Hour {
		t.Fatalf("expected ~1h expiry, got %s", d)
	}
}

func TestAuthenticateWrongPassword(t *testing.T) {
	svc := newTestService(t)
	sess, err := svc.Authenticate(context.Background(), "t@campus.edu", "nope")
	if !errors.Is(err, apperr.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if sess != nil {
		t.Fatal("no session may be issued on failure")
	}
}

func TestAuthenticateUnknownEmail(t *testing.T) {
	svc := newTestService(t)
	if _, err := svc.Authenticate(context.Background(), "ghost@campus.edu", "teach123"); !errors.Is(err, apperr.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestAuthenticateMissingFields(t *testing.T) {
	svc := newTestService(t)
	if _, err := svc.Authenticate(context.Background(), "", "x"); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestVerifyTampered(t *testing.T) {
	svc := newTestService(t)
	sess, err := svc.Authenticate(context.Background(), "t@campus.edu", "teach123")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Verify(sess.Token + "x"); !errors.Is(err, apperr.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestRequireRole(t *testing.T) {
	admin := &Claims{UserID: 1, Role: models.Admin}
	teacher := &Claims{UserID: 2, Role: models.Teacher}
	if err := RequireRole(admin, models.Admin); err != nil {
		t.Fatalf("admin must pass: %v", err)
	}
	if err := RequireRole(teacher, models.Admin); !errors.Is(err, apperr.ErrForbiddenRole) {
		t.Fatalf("expected ErrForbiddenRole, got %v", err)
	}
	if err := RequireRole(nil, models.Admin); !errors.Is(err, apperr.ErrForbiddenRole) {
		t.Fatalf("nil claims must be forbidden, got %v", err)
	}
}
