package app

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/Spok95/campus-maintenance/internal/apperr"
	"github.com/Spok95/campus-maintenance/internal/export"
	"github.com/Spok95/campus-maintenance/internal/models"
	"github.com/Spok95/campus-maintenance/internal/requests"
)

// maxUploadBytes bounds the whole multipart body; the photo itself is held
// to requests.MaxPhotoBytes.
const maxUploadBytes = 4 << 20

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 800*time.Millisecond)
	defer cancel()
	if err := s.health.Ping(ctx); err != nil {
		s.log.Warn("health check failed", zap.Error(err))
		http.Error(w, "db not ok", http.StatusServiceUnavailable)
		return
	}
	_, _ = w.Write([]byte("ok"))
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Success   bool        `json:"success"`
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expires_at"`
	User      models.User `json:"user"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Email and password are required")
		return
	}
	sess, err := s.auth.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, apperr.ErrInvalidCredentials) {
			s.log.Info("login failed")
		}
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{
		Success:   true,
		Token:     sess.Token,
		ExpiresAt: sess.ExpiresAt,
		User:      sess.User,
	})
}

func (s *Server) handleCreateRequest(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	in, err := readNewRequest(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	id, err := s.reqs.Create(r.Context(), claimsFromContext(r.Context()), in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "requestId": id})
}

// readNewRequest accepts multipart (with an optional "photo" part) or a
// plain urlencoded form.
func readNewRequest(r *http.Request) (requests.NewRequest, error) {
	err := r.ParseMultipartForm(requests.MaxPhotoBytes + 64<<10)
	if errors.Is(err, http.ErrNotMultipart) {
		err = r.ParseForm()
	}
	var tooBig *http.MaxBytesError
	if errors.As(err, &tooBig) {
		return requests.NewRequest{}, apperr.Validation("Image must be ≤1MB")
	}
	if err != nil {
		return requests.NewRequest{}, apperr.Validation("Malformed form data")
	}

	in := requests.NewRequest{
		BuildingName:     r.FormValue("buildingName"),
		RoomNumber:       r.FormValue("roomNumber"),
		Priority:         r.FormValue("priority"),
		IssueDescription: r.FormValue("issueDescription"),
	}
	if r.MultipartForm == nil {
		return in, nil
	}
	file, hdr, err := r.FormFile("photo")
	if errors.Is(err, http.ErrMissingFile) {
		return in, nil
	}
	if err != nil {
		return requests.NewRequest{}, apperr.Validation("Malformed photo upload")
	}
	defer file.Close()

	// One byte past the ceiling is enough for the service to reject it.
	photo, err := io.ReadAll(io.LimitReader(file, requests.MaxPhotoBytes+1))
	if err != nil {
		return requests.NewRequest{}, apperr.Validation("Malformed photo upload")
	}
	in.Photo = photo
	in.PhotoMIME = hdr.Header.Get("Content-Type")
	return in, nil
}

func (s *Server) handleMyRequests(w http.ResponseWriter, r *http.Request) {
	list, err := s.reqs.ListByOwner(r.Context(), claimsFromContext(r.Context()))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	req, err := s.reqs.Get(r.Context(), claimsFromContext(r.Context()), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (s *Server) handleListAll(w http.ResponseWriter, r *http.Request) {
	list, err := s.reqs.ListAll(r.Context(), claimsFromContext(r.Context()), r.URL.Query().Get("status"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

type statusUpdate struct {
	Status string `json:"status"`
}

func (s *Server) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var body statusUpdate
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := s.reqs.UpdateStatus(r.Context(), claimsFromContext(r.Context()), id, body.Status); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	log, err := s.reqs.Notifications(r.Context(), claimsFromContext(r.Context()), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, log)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	filter := r.URL.Query().Get("status")
	list, err := s.reqs.ListAll(r.Context(), claimsFromContext(r.Context()), filter)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	wb, err := export.NewRequestsWorkbook(list, s.loc)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	defer wb.Close()

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+export.RequestsFilename(filter, s.now().In(s.loc))+`"`)
	if _, err := wb.WriteTo(w); err != nil {
		// Headers are gone by now; the client sees a truncated file.
		s.log.Error("write export", zap.Error(err))
	}
}
