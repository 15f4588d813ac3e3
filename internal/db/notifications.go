package db

import (
	"context"
	"database/sql"
	"errors"

	"github.com/Spok95/campus-maintenance/internal/apperr"
	"github.com/Spok95/campus-maintenance/internal/ctxutil"
	"github.com/Spok95/campus-maintenance/internal/models"
)

// NextPending returns the newest pending request with its owner's name and
// phone, or nil when nothing is pending.
func (s *Store) NextPending(ctx context.Context) (*models.PendingRequest, error) {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()

	var p models.PendingRequest
	dest := append(requestDest(&p.MaintenanceRequest), &p.OwnerName, &p.OwnerPhone)
	err := s.db.QueryRowContext(ctx, `
		SELECT `+requestColumns+`, u.name, u.phone
		FROM maintenance_requests mr
		JOIN users u ON u.id = mr.user_id
		WHERE mr.status = 'pending'
		ORDER BY mr.created_at DESC, mr.id DESC
		LIMIT 1`).Scan(dest...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Store("next pending", err)
	}
	return &p, nil
}

// RecordDelivery marks the request notified and appends the sent entry in one
// transaction. If an admin moved the request meanwhile the status is left
// alone, the entry is still written, and transitioned is false.
func (s *Store) RecordDelivery(ctx context.Context, e models.NotificationLogEntry) (transitioned bool, err error) {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return false, apperr.Store("begin delivery tx", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE maintenance_requests
		SET status = 'notified', updated_at = now()
		WHERE id = $1 AND status = 'pending'`, e.RequestID)
	if err != nil {
		return false, apperr.Store("mark notified", err)
	}
	n, _ := res.RowsAffected()

	if err := insertNotification(ctx, tx, e); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, apperr.Store("commit delivery tx", err)
	}
	return n == 1, nil
}

// RecordFailure appends a failed entry; the request keeps its status.
func (s *Store) RecordFailure(ctx context.Context, e models.NotificationLogEntry) error {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()
	return insertNotification(ctx, s.db, e)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertNotification(ctx context.Context, x execer, e models.NotificationLogEntry) error {
	var sid sql.NullString
	if e.MessageSID != nil {
		sid = sql.NullString{String: *e.MessageSID, Valid: true}
	}
	_, err := x.ExecContext(ctx, `
		INSERT INTO notifications (request_id, message_sid, status, recipient)
		VALUES ($1, $2, $3, $4)`, e.RequestID, sid, string(e.Status), e.Recipient)
	if err != nil {
		return apperr.Store("insert notification", err)
	}
	return nil
}

// NotificationsForRequest lists the log for one request, newest first.
func (s *Store) NotificationsForRequest(ctx context.Context, requestID int64) ([]models.NotificationLogEntry, error) {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, request_id, message_sid, status, recipient, created_at
		FROM notifications
		WHERE request_id = $1
		ORDER BY created_at DESC, id DESC`, requestID)
	if err != nil {
		return nil, apperr.Store("notifications for request", err)
	}
	defer func() { _ = rows.Close() }()

	out := []models.NotificationLogEntry{}
	for rows.Next() {
		var e models.NotificationLogEntry
		var sid sql.NullString
		if err := rows.Scan(&e.ID, &e.RequestID, &sid, &e.Status, &e.Recipient, &e.CreatedAt); err != nil {
			return nil, apperr.Store("scan notification", err)
		}
		if sid.Valid {
			v := sid.String
			e.MessageSID = &v
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Store("notifications for request", err)
	}
	return out, nil
}
