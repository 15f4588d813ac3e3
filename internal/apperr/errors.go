package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrValidation         = errors.New("validation failed")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrForbiddenRole      = errors.New("forbidden for role")
	ErrNotFound           = errors.New("not found")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrStore              = errors.New("store failure")
	ErrChannelDelivery    = errors.New("channel delivery failed")
)

// ValidationError carries a message that is safe to show to the client.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return ErrValidation.Error() + ": " + e.Msg }

func (e *ValidationError) Unwrap() error { return ErrValidation }

func Validation(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// Message returns the client-facing text of a validation error, or "" for
// any other error.
func Message(err error) string {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Msg
	}
	return ""
}

// Store wraps a persistence failure so callers can match ErrStore while the
// driver error is still reachable for logs.
func Store(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStore, err)
}
