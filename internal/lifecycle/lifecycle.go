// Package lifecycle holds the request status machine:
//
//	pending -> notified -> in_progress -> completed
//
// pending -> notified belongs to the dispatcher alone. Admins move requests
// into in_progress (from pending or notified) and then to completed.
package lifecycle

import (
	"fmt"

	"github.com/Spok95/campus-maintenance/internal/apperr"
	"github.com/Spok95/campus-maintenance/internal/models"
)

type Actor int

const (
	Member Actor = iota
	Admin
	System
)

func (a Actor) String() string {
	switch a {
	case Admin:
		return "admin"
	case System:
		return "system"
	}
	return "member"
}

// ActorFor maps a session role to the actor that may drive transitions.
func ActorFor(role models.Role) Actor {
	if role == models.Admin {
		return Admin
	}
	return Member
}

type edge struct{ from, to models.Status }

var allowed = map[edge]Actor{
	{models.StatusPending, models.StatusNotified}:     System,
	{models.StatusPending, models.StatusInProgress}:   Admin,
	{models.StatusNotified, models.StatusInProgress}:  Admin,
	{models.StatusInProgress, models.StatusCompleted}: Admin,
}

// Check returns apperr.ErrForbiddenRole when the actor may not make this kind
// of move at all, and apperr.ErrInvalidTransition when the move is not legal
// from the current state.
func Check(from, to models.Status, actor Actor) error {
	if actor == Member {
		return apperr.ErrForbiddenRole
	}
	if actor == Admin && to == models.StatusNotified {
		return fmt.Errorf("%w: %s is set by the dispatcher only", apperr.ErrForbiddenRole, to)
	}
	if Terminal(from) {
		return fmt.Errorf("%w: %s requests are closed", apperr.ErrInvalidTransition, from)
	}
	need, ok := allowed[edge{from, to}]
	if !ok {
		return fmt.Errorf("%w: %s -> %s", apperr.ErrInvalidTransition, from, to)
	}
	if need != actor {
		return fmt.Errorf("%w: %s may not move %s -> %s", apperr.ErrForbiddenRole, actor, from, to)
	}
	return nil
}

// Terminal reports whether no transition leaves s.
func Terminal(s models.Status) bool { return s == models.StatusCompleted }
