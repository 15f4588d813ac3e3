package apperr

import (
	"database/sql"
	"errors"
	"testing"
)

func TestValidationMatchesSentinel(t *testing.T) {
	err := Validation("image must be ≤%dMB", 1)
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if got := Message(err); got != "image must be ≤1MB" {
		t.Fatalf("unexpected message %q", got)
	}
	if Message(ErrNotFound) != "" {
		t.Fatal("non-validation error must have no client message")
	}
}

func TestStoreKeepsCause(t *testing.T) {
	err := Store("insert request", sql.ErrConnDone)
	if !errors.Is(err, ErrStore) || !errors.Is(err, sql.ErrConnDone) {
		t.Fatalf("expected both ErrStore and cause, got %v", err)
	}
	if Store("noop", nil) != nil {
		t.Fatal("nil cause must stay nil")
	}
}
