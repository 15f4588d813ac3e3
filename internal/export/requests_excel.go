package export

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/Spok95/campus-maintenance/internal/models"
)

const requestsSheet = "Requests"

var requestsHeader = []string{
	"ID", "Submitted by", "Building", "Room", "Priority", "Status", "Description", "Photo", "Created", "Updated",
}

// RequestsWorkbook lays the admin listing out on one sheet. Times are
// rendered in loc.
type RequestsWorkbook struct {
	file *excelize.File
}

func NewRequestsWorkbook(rows []models.RequestWithOwner, loc *time.Location) (_ *RequestsWorkbook, err error) {
	if loc == nil {
		loc = time.UTC
	}
	f := excelize.NewFile()
	defer func() {
		if err != nil {
			_ = closeFile(f)
		}
	}()
	if err := f.SetSheetName("Sheet1", requestsSheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	if err := writeRow(f, 1, requestsHeader); err != nil {
		return nil, err
	}
	for i, r := range rows {
		photo := ""
		if len(r.Photo) > 0 {
			photo = "yes"
		}
		if err := writeRow(f, i+2, []string{
			strconv.FormatInt(r.ID, 10),
			r.UserName,
			r.BuildingName,
			r.RoomNumber,
			string(r.Priority),
			string(r.Status),
			r.IssueDescription,
			photo,
			r.CreatedAt.In(loc).Format("2006-01-02 15:04"),
			r.UpdatedAt.In(loc).Format("2006-01-02 15:04"),
		}); err != nil {
			return nil, err
		}
	}
	if err := applyFormatting(f, requestsSheet); err != nil {
		return nil, fmt.Errorf("format sheet: %w", err)
	}
	return &RequestsWorkbook{file: f}, nil
}

// Swapped in tests.
var (
	writeRow  = setRow
	closeFile = (*excelize.File).Close
)

func setRow(f *excelize.File, row int, values []string) error {
	for c, v := range values {
		cell := fmt.Sprintf("%s%d", columnName(c+1), row)
		if err := f.SetCellStr(requestsSheet, cell, v); err != nil {
			return fmt.Errorf("set cell %s: %w", cell, err)
		}
	}
	return nil
}

func (w *RequestsWorkbook) WriteTo(out io.Writer) (int64, error) {
	return w.file.WriteTo(out)
}

func (w *RequestsWorkbook) Close() error { return w.file.Close() }
