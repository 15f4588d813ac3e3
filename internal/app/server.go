package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/Spok95/campus-maintenance/internal/auth"
	"github.com/Spok95/campus-maintenance/internal/metrics"
	"github.com/Spok95/campus-maintenance/internal/requests"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type Deps struct {
	Auth     *auth.Service
	Requests *requests.Service
	Health   Pinger
	Log      *zap.Logger
	Location *time.Location // export timestamps
	Now      func() time.Time
}

type Server struct {
	auth   *auth.Service
	reqs   *requests.Service
	health Pinger
	log    *zap.Logger
	loc    *time.Location
	now    func() time.Time
}

func NewServer(d Deps) *Server {
	s := &Server{
		auth:   d.Auth,
		reqs:   d.Requests,
		health: d.Health,
		log:    d.Log,
		loc:    d.Location,
		now:    d.Now,
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Routes lists what Router serves, for the startup log.
var Routes = []string{
	"POST /login",
	"POST /maintenance",
	"GET /my-requests",
	"GET /requests/{id}",
	"GET /admin/requests",
	"GET /admin/requests/export",
	"PUT /admin/requests/{id}",
	"GET /admin/requests/{id}/notifications",
	"GET /healthz",
	"GET /metrics",
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, s.accessLog, s.recoverPanic)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", metrics.Handler())
	r.Post("/login", s.handleLogin)

	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)
		r.Post("/maintenance", s.handleCreateRequest)
		r.Get("/my-requests", s.handleMyRequests)
		r.Get("/requests/{id}", s.handleGetRequest)

		r.Route("/admin", func(r chi.Router) {
			r.Use(s.requireAdmin)
			r.Get("/requests", s.handleListAll)
			r.Get("/requests/export", s.handleExport)
			r.Put("/requests/{id}", s.handleUpdateStatus)
			r.Get("/requests/{id}/notifications", s.handleNotifications)
		})
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "Not found")
	})
	return r
}
