package db

import (
	"context"
	"database/sql"
	"errors"

	"github.com/Spok95/campus-maintenance/internal/apperr"
	"github.com/Spok95/campus-maintenance/internal/ctxutil"
	"github.com/Spok95/campus-maintenance/internal/models"
)

const requestColumns = `mr.id, mr.user_id, mr.building_name, mr.room_number, mr.priority,
	mr.issue_description, mr.photo, COALESCE(mr.photo_mime, ''), mr.status, mr.created_at, mr.updated_at`

func requestDest(r *models.MaintenanceRequest) []any {
	return []any{&r.ID, &r.UserID, &r.BuildingName, &r.RoomNumber, &r.Priority,
		&r.IssueDescription, &r.Photo, &r.PhotoMIME, &r.Status, &r.CreatedAt, &r.UpdatedAt}
}

// CreateRequest inserts a pending request and returns its id.
func (s *Store) CreateRequest(ctx context.Context, r models.MaintenanceRequest) (int64, error) {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()

	var photoMIME sql.NullString
	if len(r.Photo) > 0 {
		photoMIME = sql.NullString{String: r.PhotoMIME, Valid: true}
	}
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO maintenance_requests
			(user_id, building_name, room_number, priority, issue_description, photo, photo_mime, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'pending')
		RETURNING id`,
		r.UserID, r.BuildingName, r.RoomNumber, string(r.Priority), r.IssueDescription, nullBytes(r.Photo), photoMIME,
	).Scan(&id)
	if err != nil {
		return 0, apperr.Store("create request", err)
	}
	return id, nil
}

// RequestsByOwner lists one user's requests, newest first.
func (s *Store) RequestsByOwner(ctx context.Context, ownerID int64) ([]models.MaintenanceRequest, error) {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+requestColumns+`
		FROM maintenance_requests mr
		WHERE mr.user_id = $1
		ORDER BY mr.created_at DESC, mr.id DESC`, ownerID)
	if err != nil {
		return nil, apperr.Store("requests by owner", err)
	}
	defer func() { _ = rows.Close() }()

	out := []models.MaintenanceRequest{}
	for rows.Next() {
		var r models.MaintenanceRequest
		if err := rows.Scan(requestDest(&r)...); err != nil {
			return nil, apperr.Store("scan request", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Store("requests by owner", err)
	}
	return out, nil
}

// AllRequests lists every request with its owner's name, newest first. A nil
// status means no filter.
func (s *Store) AllRequests(ctx context.Context, status *models.Status) ([]models.RequestWithOwner, error) {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()

	q := `
		SELECT ` + requestColumns + `, u.name
		FROM maintenance_requests mr
		JOIN users u ON u.id = mr.user_id`
	var args []any
	if status != nil {
		q += ` WHERE mr.status = $1`
		args = append(args, string(*status))
	}
	q += ` ORDER BY mr.created_at DESC, mr.id DESC`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, apperr.Store("all requests", err)
	}
	defer func() { _ = rows.Close() }()

	out := []models.RequestWithOwner{}
	for rows.Next() {
		var r models.RequestWithOwner
		dest := append(requestDest(&r.MaintenanceRequest), &r.UserName)
		if err := rows.Scan(dest...); err != nil {
			return nil, apperr.Store("scan request", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Store("all requests", err)
	}
	return out, nil
}

func (s *Store) RequestByID(ctx context.Context, id int64) (*models.MaintenanceRequest, error) {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()

	var r models.MaintenanceRequest
	err := s.db.QueryRowContext(ctx, `
		SELECT `+requestColumns+`
		FROM maintenance_requests mr
		WHERE mr.id = $1`, id).Scan(requestDest(&r)...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, apperr.Store("request by id", err)
	}
	return &r, nil
}

// CompareAndSetStatus moves a request from `from` to `to` only if it is still
// in `from`. It reports whether the row changed.
func (s *Store) CompareAndSetStatus(ctx context.Context, id int64, from, to models.Status) (bool, error) {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx, `
		UPDATE maintenance_requests
		SET status = $1, updated_at = now()
		WHERE id = $2 AND status = $3`, string(to), id, string(from))
	if err != nil {
		return false, apperr.Store("compare and set status", err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

// SetStatus overwrites the status unconditionally; false means no such row.
func (s *Store) SetStatus(ctx context.Context, id int64, to models.Status) (bool, error) {
	ctx, cancel := ctxutil.WithDBTimeout(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx, `
		UPDATE maintenance_requests
		SET status = $1, updated_at = now()
		WHERE id = $2`, string(to), id)
	if err != nil {
		return false, apperr.Store("set status", err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

func nullBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}
