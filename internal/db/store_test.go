//go:build testutil
// +build testutil

package db_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/Spok95/campus-maintenance/internal/apperr"
	"github.com/Spok95/campus-maintenance/internal/db"
	"github.com/Spok95/campus-maintenance/internal/models"
	"github.com/Spok95/campus-maintenance/internal/testutil/testdb"
)

var handle *testdb.DBHandle

func TestMain(m *testing.M) {
	h, err := testdb.Start(context.Background())
	if err != nil {
		fmt.Fprintln(os.Stderr, "start test db:", err)
		os.Exit(1)
	}
	handle = h
	code := m.Run()
	h.Close()
	os.Exit(code)
}

func freshStore(t *testing.T) *db.Store {
	t.Helper()
	if err := handle.Reset(context.Background()); err != nil {
		t.Fatal(err)
	}
	return db.NewStore(handle.DB)
}

func mustUser(t *testing.T, s *db.Store, name string, role models.Role) int64 {
	t.Helper()
	id, err := s.CreateUser(context.Background(), models.User{
		Name: name, Email: name + "@mit.edu", Phone: "555", PasswordHash: "x", Role: role,
	})
	if err != nil {
		t.Fatal(err)
	}
	return id
}

func mustRequest(t *testing.T, s *db.Store, userID int64, room string) int64 {
	t.Helper()
	id, err := s.CreateRequest(context.Background(), models.MaintenanceRequest{
		UserID: userID, BuildingName: "Main", RoomNumber: room, Priority: models.PriorityMedium,
		IssueDescription: "leak", Photo: []byte("\x89PNG"), PhotoMIME: "image/png",
	})
	if err != nil {
		t.Fatal(err)
	}
	return id
}

func TestCreateAndListNewestFirst(t *testing.T) {
	s := freshStore(t)
	ctx := context.Background()
	ivy := mustUser(t, s, "ivy", models.Teacher)
	other := mustUser(t, s, "other", models.Teacher)

	a := mustRequest(t, s, ivy, "1")
	b := mustRequest(t, s, ivy, "2")
	c := mustRequest(t, s, other, "3")

	mine, err := s.RequestsByOwner(ctx, ivy)
	if err != nil {
		t.Fatal(err)
	}
	if len(mine) != 2 || mine[0].ID != b || mine[1].ID != a {
		t.Fatalf("unexpected owner listing %+v", mine)
	}
	if mine[0].Status != models.StatusPending || string(mine[0].Photo) != "\x89PNG" || mine[0].PhotoMIME != "image/png" {
		t.Fatalf("unexpected stored row %+v", mine[0])
	}

	all, err := s.AllRequests(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 || all[0].ID != c || all[0].UserName != "other" {
		t.Fatalf("unexpected admin listing %+v", all)
	}
	pending := models.StatusPending
	filtered, err := s.AllRequests(ctx, &pending)
	if err != nil || len(filtered) != 3 {
		t.Fatalf("filtered listing: %d rows (%v)", len(filtered), err)
	}
}

func TestRequestByIDNotFound(t *testing.T) {
	s := freshStore(t)
	if _, err := s.RequestByID(context.Background(), 404); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.UserByEmail(context.Background(), "ghost@mit.edu"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCompareAndSetStatus(t *testing.T) {
	s := freshStore(t)
	ctx := context.Background()
	id := mustRequest(t, s, mustUser(t, s, "ivy", models.Teacher), "1")

	ok, err := s.CompareAndSetStatus(ctx, id, models.StatusNotified, models.StatusInProgress)
	if err != nil || ok {
		t.Fatalf("stale compare must not apply: ok=%v err=%v", ok, err)
	}
	ok, err = s.CompareAndSetStatus(ctx, id, models.StatusPending, models.StatusInProgress)
	if err != nil || !ok {
		t.Fatalf("expected transition: ok=%v err=%v", ok, err)
	}
	r, err := s.RequestByID(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if r.Status != models.StatusInProgress || !r.UpdatedAt.After(r.CreatedAt) {
		t.Fatalf("unexpected row after update %+v", r)
	}

	ok, err = s.SetStatus(ctx, 9999, models.StatusCompleted)
	if err != nil || ok {
		t.Fatalf("SetStatus on missing row: ok=%v err=%v", ok, err)
	}
}

func TestConcurrentCompareAndSetOneWinner(t *testing.T) {
	s := freshStore(t)
	ctx := context.Background()
	id := mustRequest(t, s, mustUser(t, s, "ivy", models.Teacher), "1")

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.CompareAndSetStatus(ctx, id, models.StatusPending, models.StatusNotified)
			if err != nil {
				t.Error(err)
				return
			}
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins)
	}
}

func TestNextPendingAndRecordDelivery(t *testing.T) {
	s := freshStore(t)
	ctx := context.Background()

	p, err := s.NextPending(ctx)
	if err != nil || p != nil {
		t.Fatalf("empty table: p=%v err=%v", p, err)
	}

	ivy := mustUser(t, s, "ivy", models.Teacher)
	older := mustRequest(t, s, ivy, "1")
	newer := mustRequest(t, s, ivy, "2")

	p, err = s.NextPending(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if p.ID != newer || p.OwnerName != "ivy" || p.OwnerPhone != "555" {
		t.Fatalf("unexpected pending row %+v", p)
	}

	sid := "SM123"
	ok, err := s.RecordDelivery(ctx, models.NotificationLogEntry{
		RequestID: newer, MessageSID: &sid, Status: models.DeliverySent, Recipient: "+1",
	})
	if err != nil || !ok {
		t.Fatalf("record delivery: ok=%v err=%v", ok, err)
	}
	ok, err = s.RecordDelivery(ctx, models.NotificationLogEntry{
		RequestID: newer, MessageSID: &sid, Status: models.DeliverySent, Recipient: "+1",
	})
	if err != nil || ok {
		t.Fatalf("second delivery must not transition again: ok=%v err=%v", ok, err)
	}

	p, err = s.NextPending(ctx)
	if err != nil || p == nil || p.ID != older {
		t.Fatalf("next pending must be the older request, got %+v (%v)", p, err)
	}

	if err := s.RecordFailure(ctx, models.NotificationLogEntry{
		RequestID: older, Status: models.DeliveryFailed, Recipient: "+1",
	}); err != nil {
		t.Fatal(err)
	}
	log, err := s.NotificationsForRequest(ctx, older)
	if err != nil || len(log) != 1 || log[0].MessageSID != nil || log[0].Status != models.DeliveryFailed {
		t.Fatalf("unexpected failure log %+v (%v)", log, err)
	}
	r, _ := s.RequestByID(ctx, older)
	if r.Status != models.StatusPending {
		t.Fatalf("failure must leave request pending, got %s", r.Status)
	}
}

func TestDeleteUserCascades(t *testing.T) {
	s := freshStore(t)
	ctx := context.Background()
	ivy := mustUser(t, s, "ivy", models.Teacher)
	id := mustRequest(t, s, ivy, "1")
	if err := s.RecordFailure(ctx, models.NotificationLogEntry{RequestID: id, Status: models.DeliveryFailed, Recipient: "+1"}); err != nil {
		t.Fatal(err)
	}

	if _, err := handle.DB.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, ivy); err != nil {
		t.Fatal(err)
	}
	var n int
	if err := handle.DB.QueryRowContext(ctx, `SELECT count(*) FROM maintenance_requests`).Scan(&n); err != nil || n != 0 {
		t.Fatalf("requests must cascade: %d (%v)", n, err)
	}
	if err := handle.DB.QueryRowContext(ctx, `SELECT count(*) FROM notifications`).Scan(&n); err != nil || n != 0 {
		t.Fatalf("notifications must cascade: %d (%v)", n, err)
	}
}

func TestEnsureDefaultAdmin(t *testing.T) {
	s := freshStore(t)
	ctx := context.Background()
	hash := func(p string) (string, error) { return "hashed:" + p, nil }

	if _, err := db.EnsureDefaultAdmin(ctx, s, "Administrator", "admin@mit.edu", "", hash, ""); err == nil {
		t.Fatal("missing password must be an error when no admin exists")
	}
	created, err := db.EnsureDefaultAdmin(ctx, s, "Administrator", "admin@mit.edu", "", hash, "pw")
	if err != nil || !created {
		t.Fatalf("expected admin to be created: %v %v", created, err)
	}
	created, err = db.EnsureDefaultAdmin(ctx, s, "Administrator", "admin@mit.edu", "", hash, "pw")
	if err != nil || created {
		t.Fatalf("second call must be a no-op: %v %v", created, err)
	}
	u, err := s.UserByEmail(ctx, "admin@mit.edu")
	if err != nil || u.Role != models.Admin || u.PasswordHash != "hashed:pw" {
		t.Fatalf("unexpected admin %+v (%v)", u, err)
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	if err := db.Migrate(context.Background(), handle.DB); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}
