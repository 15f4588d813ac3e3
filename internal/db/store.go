package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/Spok95/campus-maintenance/internal/metrics"
)

// Store is the only mutator of request state. Every method bounds itself
// with ctxutil.WithDBTimeout.
type Store struct {
	db *sql.DB
}

func NewStore(database *sql.DB) *Store { return &Store{db: database} }

func (s *Store) Ping(ctx context.Context) error {
	t0 := time.Now()
	if err := s.db.PingContext(ctx); err != nil {
		return err
	}
	metrics.ObserveDBPing(time.Since(t0))
	return nil
}
