// Package memstore is an in-memory stand-in for db.Store used by unit tests.
// Ordering and compare-and-set semantics follow the SQL in internal/db.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Spok95/campus-maintenance/internal/apperr"
	"github.com/Spok95/campus-maintenance/internal/models"
)

type Store struct {
	mu            sync.Mutex
	clock         time.Time
	users         map[int64]models.User
	requests      map[int64]models.MaintenanceRequest
	notifications []models.NotificationLogEntry
	nextID        int64

	// Err, when set, is returned by every call.
	Err error
}

func New() *Store {
	return &Store{
		clock:    time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC),
		users:    map[int64]models.User{},
		requests: map[int64]models.MaintenanceRequest{},
	}
}

func (s *Store) tick() time.Time {
	s.clock = s.clock.Add(time.Second)
	return s.clock
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *Store) AddUser(u models.User) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	u.ID = s.id()
	if u.Role == "" {
		u.Role = models.Teacher
	}
	u.CreatedAt = s.tick()
	u.UpdatedAt = u.CreatedAt
	s.users[u.ID] = u
	return u.ID
}

func (s *Store) UserByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	for _, u := range s.users {
		if u.Email == email {
			u := u
			return &u, nil
		}
	}
	return nil, apperr.ErrNotFound
}

func (s *Store) CreateRequest(_ context.Context, r models.MaintenanceRequest) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return 0, s.Err
	}
	if _, ok := s.users[r.UserID]; !ok {
		return 0, apperr.Store("create request", apperr.ErrNotFound)
	}
	r.ID = s.id()
	r.Status = models.StatusPending
	r.CreatedAt = s.tick()
	r.UpdatedAt = r.CreatedAt
	s.requests[r.ID] = r
	return r.ID, nil
}

func (s *Store) sorted() []models.MaintenanceRequest {
	out := make([]models.MaintenanceRequest, 0, len(s.requests))
	for _, r := range s.requests {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func (s *Store) RequestsByOwner(_ context.Context, ownerID int64) ([]models.MaintenanceRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	out := []models.MaintenanceRequest{}
	for _, r := range s.sorted() {
		if r.UserID == ownerID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *Store) AllRequests(_ context.Context, status *models.Status) ([]models.RequestWithOwner, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	out := []models.RequestWithOwner{}
	for _, r := range s.sorted() {
		if status != nil && r.Status != *status {
			continue
		}
		out = append(out, models.RequestWithOwner{MaintenanceRequest: r, UserName: s.users[r.UserID].Name})
	}
	return out, nil
}

func (s *Store) RequestByID(_ context.Context, id int64) (*models.MaintenanceRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	r, ok := s.requests[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return &r, nil
}

func (s *Store) CompareAndSetStatus(_ context.Context, id int64, from, to models.Status) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return false, s.Err
	}
	r, ok := s.requests[id]
	if !ok || r.Status != from {
		return false, nil
	}
	r.Status = to
	r.UpdatedAt = s.tick()
	s.requests[id] = r
	return true, nil
}

func (s *Store) SetStatus(_ context.Context, id int64, to models.Status) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return false, s.Err
	}
	r, ok := s.requests[id]
	if !ok {
		return false, nil
	}
	r.Status = to
	r.UpdatedAt = s.tick()
	s.requests[id] = r
	return true, nil
}

func (s *Store) NextPending(_ context.Context) (*models.PendingRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	for _, r := range s.sorted() {
		if r.Status == models.StatusPending {
			u := s.users[r.UserID]
			return &models.PendingRequest{MaintenanceRequest: r, OwnerName: u.Name, OwnerPhone: u.Phone}, nil
		}
	}
	return nil, nil
}

func (s *Store) RecordDelivery(_ context.Context, e models.NotificationLogEntry) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return false, s.Err
	}
	transitioned := false
	if r, ok := s.requests[e.RequestID]; ok && r.Status == models.StatusPending {
		r.Status = models.StatusNotified
		r.UpdatedAt = s.tick()
		s.requests[e.RequestID] = r
		transitioned = true
	}
	s.appendNotification(e)
	return transitioned, nil
}

func (s *Store) RecordFailure(_ context.Context, e models.NotificationLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.appendNotification(e)
	return nil
}

func (s *Store) appendNotification(e models.NotificationLogEntry) {
	e.ID = s.id()
	e.CreatedAt = s.tick()
	s.notifications = append(s.notifications, e)
}

func (s *Store) NotificationsForRequest(_ context.Context, requestID int64) ([]models.NotificationLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	out := []models.NotificationLogEntry{}
	for i := len(s.notifications) - 1; i >= 0; i-- {
		if s.notifications[i].RequestID == requestID {
			out = append(out, s.notifications[i])
		}
	}
	return out, nil
}

// Notifications returns a copy of the whole log in insertion order.
func (s *Store) Notifications() []models.NotificationLogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.NotificationLogEntry(nil), s.notifications...)
}

// RequestCount is the number of stored requests.
func (s *Store) RequestCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func (s *Store) Ping(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Err
}
