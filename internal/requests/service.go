package requests

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/Spok95/campus-maintenance/internal/apperr"
	"github.com/Spok95/campus-maintenance/internal/auth"
	"github.com/Spok95/campus-maintenance/internal/lifecycle"
	"github.com/Spok95/campus-maintenance/internal/metrics"
	"github.com/Spok95/campus-maintenance/internal/models"
)

// MaxPhotoBytes is the 1 MiB photo ceiling.
const MaxPhotoBytes = 1 << 20

const (
	maxBuilding    = 100
	maxRoom        = 20
	maxDescription = 5000
)

type Store interface {
	CreateRequest(ctx context.Context, r models.MaintenanceRequest) (int64, error)
	RequestsByOwner(ctx context.Context, ownerID int64) ([]models.MaintenanceRequest, error)
	AllRequests(ctx context.Context, status *models.Status) ([]models.RequestWithOwner, error)
	RequestByID(ctx context.Context, id int64) (*models.MaintenanceRequest, error)
	CompareAndSetStatus(ctx context.Context, id int64, from, to models.Status) (bool, error)
	SetStatus(ctx context.Context, id int64, to models.Status) (bool, error)
	NotificationsForRequest(ctx context.Context, requestID int64) ([]models.NotificationLogEntry, error)
}

type NewRequest struct {
	BuildingName     string
	RoomNumber       string
	Priority         string
	IssueDescription string
	Photo            []byte
	PhotoMIME        string // declared by the client
}

type Service struct {
	store    Store
	log      *zap.Logger
	override bool
}

// NewService builds the request service. With override set, admins may write
// any known status without lifecycle checks.
func NewService(store Store, log *zap.Logger, override bool) *Service {
	return &Service{store: store, log: log, override: override}
}

func (s *Service) Create(ctx context.Context, caller *auth.Claims, in NewRequest) (int64, error) {
	if caller == nil {
		return 0, apperr.ErrForbiddenRole
	}
	r, err := validate(in)
	if err != nil {
		return 0, err
	}
	r.UserID = caller.UserID

	id, err := s.store.CreateRequest(ctx, r)
	if err != nil {
		return 0, err
	}
	metrics.RequestsCreated.WithLabelValues(string(r.Priority)).Inc()
	s.log.Info("maintenance request created",
		zap.Int64("request_id", id),
		zap.Int64("user_id", caller.UserID),
		zap.String("priority", string(r.Priority)),
		zap.Bool("photo", len(r.Photo) > 0),
	)
	return id, nil
}

func validate(in NewRequest) (models.MaintenanceRequest, error) {
	building := strings.TrimSpace(in.BuildingName)
	room := strings.TrimSpace(in.RoomNumber)
	desc := strings.TrimSpace(in.IssueDescription)

	switch {
	case building == "":
		return models.MaintenanceRequest{}, apperr.Validation("Building name is required")
	case utf8.RuneCountInString(building) > maxBuilding:
		return models.MaintenanceRequest{}, apperr.Validation("Building name must be at most %d characters", maxBuilding)
	case room == "":
		return models.MaintenanceRequest{}, apperr.Validation("Room number is required")
	case utf8.RuneCountInString(room) > maxRoom:
		return models.MaintenanceRequest{}, apperr.Validation("Room number must be at most %d characters", maxRoom)
	case desc == "":
		return models.MaintenanceRequest{}, apperr.Validation("Issue description is required")
	case utf8.RuneCountInString(desc) > maxDescription:
		return models.MaintenanceRequest{}, apperr.Validation("Issue description must be at most %d characters", maxDescription)
	}

	prio, ok := models.ParsePriority(strings.ToLower(strings.TrimSpace(in.Priority)))
	if !ok {
		return models.MaintenanceRequest{}, apperr.Validation("Priority must be low, medium or high")
	}

	r := models.MaintenanceRequest{
		BuildingName:     building,
		RoomNumber:       room,
		Priority:         prio,
		IssueDescription: desc,
		Status:           models.StatusPending,
	}
	if len(in.Photo) > 0 {
		mime, err := checkPhoto(in.Photo, in.PhotoMIME)
		if err != nil {
			return models.MaintenanceRequest{}, err
		}
		r.Photo = in.Photo
		r.PhotoMIME = mime
	}
	return r, nil
}

// checkPhoto enforces the size ceiling and that both the declared type and
// the sniffed content are images.
func checkPhoto(photo []byte, declared string) (string, error) {
	if len(photo) > MaxPhotoBytes {
		return "", apperr.Validation("Image must be ≤1MB")
	}
	declared = strings.ToLower(strings.TrimSpace(declared))
	if declared != "" && !strings.HasPrefix(declared, "image/") {
		return "", apperr.Validation("Only images are allowed")
	}
	sniffed := http.DetectContentType(photo)
	if !strings.HasPrefix(sniffed, "image/") {
		return "", apperr.Validation("Only images are allowed")
	}
	if declared == "" {
		return sniffed, nil
	}
	return declared, nil
}

func (s *Service) ListByOwner(ctx context.Context, caller *auth.Claims) ([]models.MaintenanceRequest, error) {
	if caller == nil {
		return nil, apperr.ErrForbiddenRole
	}
	return s.store.RequestsByOwner(ctx, caller.UserID)
}

// ParseStatusFilter maps "" and "all" to no filter.
func ParseStatusFilter(raw string) (*models.Status, error) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" || raw == "all" {
		return nil, nil
	}
	st, ok := models.ParseStatus(raw)
	if !ok {
		return nil, apperr.Validation("Unknown status %q", raw)
	}
	return &st, nil
}

func (s *Service) ListAll(ctx context.Context, caller *auth.Claims, statusFilter string) ([]models.RequestWithOwner, error) {
	if err := auth.RequireRole(caller, models.Admin); err != nil {
		return nil, err
	}
	st, err := ParseStatusFilter(statusFilter)
	if err != nil {
		return nil, err
	}
	return s.store.AllRequests(ctx, st)
}

// Get returns a request to its owner or an admin. Others get ErrNotFound so
// ids of foreign requests are not confirmed.
func (s *Service) Get(ctx context.Context, caller *auth.Claims, id int64) (*models.MaintenanceRequest, error) {
	if caller == nil {
		return nil, apperr.ErrForbiddenRole
	}
	r, err := s.store.RequestByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if caller.Role != models.Admin && r.UserID != caller.UserID {
		return nil, apperr.ErrNotFound
	}
	return r, nil
}

func (s *Service) UpdateStatus(ctx context.Context, caller *auth.Claims, id int64, rawStatus string) error {
	if err := auth.RequireRole(caller, models.Admin); err != nil {
		return err
	}
	to, ok := models.ParseStatus(strings.TrimSpace(rawStatus))
	if !ok {
		return apperr.Validation("Unknown status %q", rawStatus)
	}

	if s.override {
		changed, err := s.store.SetStatus(ctx, id, to)
		if err != nil {
			return err
		}
		if !changed {
			return apperr.ErrNotFound
		}
		s.logStatus(caller, id, "", to)
		return nil
	}

	cur, err := s.store.RequestByID(ctx, id)
	if err != nil {
		return err
	}
	if err := lifecycle.Check(cur.Status, to, lifecycle.ActorFor(caller.Role)); err != nil {
		return err
	}
	changed, err := s.store.CompareAndSetStatus(ctx, id, cur.Status, to)
	if err != nil {
		return err
	}
	if !changed {
		// Someone else (usually the dispatcher) moved it after we read it.
		return errors.Join(apperr.ErrInvalidTransition, errors.New("status changed concurrently, reload and retry"))
	}
	s.logStatus(caller, id, cur.Status, to)
	return nil
}

func (s *Service) logStatus(caller *auth.Claims, id int64, from, to models.Status) {
	s.log.Info("request status updated",
		zap.Int64("request_id", id),
		zap.Int64("admin_id", caller.UserID),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)
}

func (s *Service) Notifications(ctx context.Context, caller *auth.Claims, id int64) ([]models.NotificationLogEntry, error) {
	if err := auth.RequireRole(caller, models.Admin); err != nil {
		return nil, err
	}
	if _, err := s.store.RequestByID(ctx, id); err != nil {
		return nil, err
	}
	return s.store.NotificationsForRequest(ctx, id)
}
