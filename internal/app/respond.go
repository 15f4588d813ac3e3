package app

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/Spok95/campus-maintenance/internal/apperr"
	"github.com/Spok95/campus-maintenance/internal/ctxutil"
	"github.com/Spok95/campus-maintenance/internal/metrics"
	"github.com/Spok95/campus-maintenance/internal/observability"
)

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func decodeJSON(r *http.Request, out interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "error": msg})
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Validation("Invalid request id")
	}
	return id, nil
}

// fail maps a service error onto a status code. Anything unrecognised is a
// 500 whose cause stays in the logs.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, apperr.ErrValidation):
		msg := apperr.Message(err)
		if msg == "" {
			msg = "Invalid request"
		}
		writeError(w, http.StatusBadRequest, msg)
	case errors.Is(err, apperr.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
	case errors.Is(err, apperr.ErrInvalidToken):
		writeError(w, http.StatusForbidden, "Invalid or expired token")
	case errors.Is(err, apperr.ErrForbiddenRole):
		writeError(w, http.StatusForbidden, "Access restricted to admins only")
	case errors.Is(err, apperr.ErrNotFound):
		writeError(w, http.StatusNotFound, "Request not found")
	case errors.Is(err, apperr.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "Status change not allowed")
	default:
		metrics.HandlerErrors.Inc()
		fields := []zap.Field{
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		}
		if uid, ok := ctxutil.UserID(r.Context()); ok {
			fields = append(fields, zap.Int64("user_id", uid))
		}
		s.log.Error("request failed", fields...)
		observability.CaptureWith(err, map[string]string{"path": r.URL.Path})
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}
