package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"vahan-ops/api/handlers"
	"vahan-ops/config"
	"vahan-ops/core/auth"
	"vahan-ops/core/incidents"
	"vahan-ops/core/rbac"
	"vahan-ops/core/screening"
	"vahan-ops/core/store"
)

// ServerDeps bundles everything the router needs; composition happens in cmd.
type ServerDeps struct {
	Users          store.UsersStore
	Sessions       store.SessionStore
	Audits         store.AuditStore
	IncidentsSvc   *incidents.Service
	ScreeningStore screening.BatchStore
	Policy         *rbac.Policy
	SessionManager *auth.SessionManager
	Logger         *logrus.Logger
}

type Server struct {
	cfg            *config.AppConfig
	users          store.UsersStore
	sessions       store.SessionStore
	audits         store.AuditStore
	incidentsSvc   *incidents.Service
	screeningStore screening.BatchStore
	policy         *rbac.Policy
	sessionManager *auth.SessionManager
	logger         *logrus.Logger
}

func NewServer(cfg *config.AppConfig, deps ServerDeps) *Server {
	return &Server{
		cfg:            cfg,
		users:          deps.Users,
		sessions:       deps.Sessions,
		audits:         deps.Audits,
		incidentsSvc:   deps.IncidentsSvc,
		screeningStore: deps.ScreeningStore,
		policy:         deps.Policy,
		sessionManager: deps.SessionManager,
		logger:         deps.Logger,
	}
}

type routeHandlers struct {
	auth      *handlers.AuthHandler
	incidents *handlers.IncidentsHandler
	screening *handlers.ScreeningHandler
	logs      *handlers.LogsHandler
}

func (s *Server) newRouteHandlers() routeHandlers {
	return routeHandlers{
		auth:      handlers.NewAuthHandler(s.cfg, s.sessionManager, s.audits, s.logger),
		incidents: handlers.NewIncidentsHandler(s.cfg, s.incidentsSvc, s.logger),
		screening: handlers.NewScreeningHandler(s.screeningStore, s.incidentsSvc, s.logger),
		logs:      handlers.NewLogsHandler(s.audits),
	}
}

func (s *Server) Router() http.Handler {
	h := s.newRouteHandlers()
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	if s.cfg.Metrics.Enabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Post("/api/auth/login", h.auth.Login)
	r.Post("/api/auth/logout", h.auth.Logout)

	r.Group(func(r chi.Router) {
		r.Use(s.sessionMiddleware)

		r.Get("/api/auth/me", h.auth.Me)

		view := s.requirePermission(rbac.PermIncidentsView)
		manage := s.requirePermission(rbac.PermIncidentsManage)
		screen := s.requirePermission(rbac.PermScreeningRun)
		admin := s.requirePermission(rbac.PermAdmin)

		r.Get("/api/incidents", view(h.incidents.List))
		r.Get("/api/incidents/queue-counts", view(h.incidents.QueueCounts))
		r.Get("/api/incidents/bulk-update/template", view(h.incidents.BulkUpdateTemplate))
		r.Post("/api/incidents", manage(h.incidents.Create))
		r.Get("/api/incidents/{id}", view(h.incidents.Get))
		r.Patch("/api/incidents/{id}", manage(h.incidents.Update))

		r.Post("/api/incidents/move-queue", manage(h.incidents.MoveQueue))
		r.Post("/api/incidents/assign-agent", manage(h.incidents.AssignAgent))
		r.Post("/api/incidents/assign-lawyer", manage(h.incidents.AssignLawyer))
		r.Post("/api/incidents/bulk-update", manage(h.incidents.BulkUpdateFile))

		r.Get("/api/incidents/{id}/follow-ups", view(h.incidents.ListFollowUps))
		r.Post("/api/incidents/{id}/follow-ups", manage(h.incidents.AddFollowUp))
		r.Get("/api/incidents/{id}/timeline", view(h.incidents.Timeline))
		r.Get("/api/incidents/{id}/documents", view(h.incidents.ListDocuments))
		r.Post("/api/incidents/{id}/documents", manage(h.incidents.UploadDocument))

		r.Post("/api/screening/sessions", screen(h.screening.Start))
		r.Get("/api/screening/sessions/{id}", screen(h.screening.Get))
		r.Post("/api/screening/sessions/{id}/toggle", screen(h.screening.Toggle))
		r.Post("/api/screening/sessions/{id}/toggle-all", screen(h.screening.ToggleAll))
		r.Post("/api/screening/sessions/{id}/confirm", screen(h.screening.Confirm))
		r.Delete("/api/screening/sessions/{id}", screen(h.screening.Cancel))

		r.Get("/api/logs", admin(h.logs.List))
		r.Get("/api/logs/export", admin(h.logs.Export))
	})

	return r
}
