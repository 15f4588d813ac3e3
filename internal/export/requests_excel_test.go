package export

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/Spok95/campus-maintenance/internal/models"
)

func TestRequestsWorkbook(t *testing.T) {
	created := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	rows := []models.RequestWithOwner{
		{
			MaintenanceRequest: models.MaintenanceRequest{
				ID: 7, BuildingName: "Main Block", RoomNumber: "204", Priority: models.PriorityHigh,
				IssueDescription: "Projector flickers", Photo: []byte{1}, Status: models.StatusNotified,
				CreatedAt: created, UpdatedAt: created.Add(time.Hour),
			},
			UserName: "Ivy Teacher",
		},
		{
			MaintenanceRequest: models.MaintenanceRequest{
				ID: 3, BuildingName: "Library", RoomNumber: "1", Priority: models.PriorityLow,
				IssueDescription: "Door squeaks", Status: models.StatusPending,
				CreatedAt: created, UpdatedAt: created,
			},
			UserName: "Other",
		},
	}
	loc := time.FixedZone("MSK", 3*3600)
	wb, err := NewRequestsWorkbook(rows, loc)
	if err != nil {
		t.Fatal(err)
	}
	defer wb.Close()

	var buf bytes.Buffer
	if _, err := wb.WriteTo(&buf); err != nil {
		t.Fatal(err)
	}
	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	got, err := f.GetRows(requestsSheet)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("expected header plus 2 rows, got %d", len(got))
	}
	if got[0][0] != "ID" || got[0][9] != "Updated" {
		t.Fatalf("unexpected header %v", got[0])
	}
	first := got[1]
	if first[0] != "7" || first[1] != "Ivy Teacher" || first[5] != "notified" || first[7] != "yes" {
		t.Fatalf("unexpected row %v", first)
	}
	if first[8] != "2026-03-02 12:30" {
		t.Fatalf("time must be rendered in the configured zone, got %q", first[8])
	}
	if got[2][7] != "" {
		t.Fatalf("row without photo must have an empty photo cell, got %q", got[2][7])
	}
}

func TestRequestsWorkbookEmpty(t *testing.T) {
	wb, err := NewRequestsWorkbook(nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer wb.Close()
	var buf bytes.Buffer
	if _, err := wb.WriteTo(&buf); err != nil {
		t.Fatal(err)
	}
	if buf.Len() == 0 {
		t.Fatal("empty export must still be a valid workbook")
	}
}

func TestRequestsWorkbookClosesOnError(t *testing.T) {
	boom := errors.New("disk full")
	closed := 0
	origWrite, origClose := writeRow, closeFile
	t.Cleanup(func() { writeRow, closeFile = origWrite, origClose })
	writeRow = func(f *excelize.File, row int, values []string) error {
		if row == 2 {
			return boom
		}
		return setRow(f, row, values)
	}
	closeFile = func(f *excelize.File) error {
		closed++
		return f.Close()
	}

	wb, err := NewRequestsWorkbook([]models.RequestWithOwner{{}}, nil)
	if !errors.Is(err, boom) || wb != nil {
		t.Fatalf("expected row error and no workbook, got %v %v", wb, err)
	}
	if closed != 1 {
		t.Fatalf("file closed %d times, want 1", closed)
	}

	closed = 0
	wb, err = NewRequestsWorkbook(nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer wb.Close()
	if closed != 0 {
		t.Fatal("a built workbook stays open for the caller")
	}
}

func TestRequestsFilename(t *testing.T) {
	now := time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		filter string
		want   string
	}{
		{"", "maintenance-requests_all_2026-10-15.xlsx"},
		{"in_progress", "maintenance-requests_in_progress_2026-10-15.xlsx"},
		{"a/b", "maintenance-requests_a_b_2026-10-15.xlsx"},
	}
	for _, tc := range cases {
		if got := RequestsFilename(tc.filter, now); got != tc.want {
			t.Fatalf("RequestsFilename(%q) = %q, want %q", tc.filter, got, tc.want)
		}
	}
}

func TestColumnName(t *testing.T) {
	cases := []struct {
		n    int
		want string
	}{
		{1, "A"},
		{26, "Z"},
		{27, "AA"},
		{52, "AZ"},
	}
	for _, tc := range cases {
		if got := columnName(tc.n); got != tc.want {
			t.Fatalf("columnName(%d) = %q, want %q", tc.n, got, tc.want)
		}
	}
}
