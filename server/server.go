// Package server exposes the module runtime over HTTP: module
// installation and CRUD, per-module record CRUD with hook dispatch around
// mutations, dynamic form models, and the UI contribution feeds (sidebar,
// dashboard widgets, header actions).
//
// Authentication is external; handlers consume an already resolved
// company/user pair from the X-Company-ID and X-User-ID request headers.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/robfig/cron/v3"

	hogarfix "github.com/hogarfix/hogarfix"
	"github.com/hogarfix/hogarfix/config"
	"github.com/hogarfix/hogarfix/render"
)

// Server hosts the runtime's HTTP API plus two background facilities: the
// manifest directory watcher (hot install) and the periodic module re-sync.
type Server struct {
	runtime  *hogarfix.ModuleRuntime
	renderer *render.Renderer
	cfg      *config.AppConfig
	logger   hogarfix.Logger

	router chi.Router
	http   *http.Server
	cron   *cron.Cron
}

// New builds a server over the given runtime and renderer.
func New(runtime *hogarfix.ModuleRuntime, renderer *render.Renderer, cfg *config.AppConfig, logger hogarfix.Logger) *Server {
	if logger == nil {
		logger = hogarfix.NopLogger{}
	}
	s := &Server{
		runtime:  runtime,
		renderer: renderer,
		cfg:      cfg,
		logger:   logger,
		cron:     cron.New(),
	}
	s.router = s.routes()
	s.http = &http.Server{
		Addr:              cfg.Listen,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Router returns the HTTP handler, mainly for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.identity)

		r.Route("/modules", func(r chi.Router) {
			r.Post("/", s.handleInstallModule)
			r.Get("/", s.handleListModules)
			r.Get("/{slug}/form", s.handleModuleForm)

			r.Route("/{id}", func(r chi.Router) {
				r.Patch("/", s.handleUpdateModule)
				r.Delete("/", s.handleDeleteModule)
				r.Post("/toggle", s.handleToggleModule)

				r.Route("/data", func(r chi.Router) {
					r.Get("/", s.handleListModuleData)
					r.Post("/", s.handleCreateModuleData)
					r.Patch("/{dataID}", s.handleUpdateModuleData)
					r.Delete("/{dataID}", s.handleDeleteModuleData)
				})
			})
		})

		r.Get("/ui/sidebar", s.handleSidebar)
		r.Get("/ui/widgets", s.handleWidgets)
		r.Get("/ui/header-actions", s.handleHeaderActions)
		r.Get("/stats", s.handleStats)
	})

	return r
}

// identity resolves the tenant pair from request headers. Requests without
// a company are rejected; the runtime never guesses a tenant.
func (s *Server) identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		companyID := r.Header.Get("X-Company-ID")
		if companyID == "" {
			respondError(w, http.StatusUnauthorized, "missing X-Company-ID header")
			return
		}
		id := hogarfix.Identity{
			CompanyID: hogarfix.CompanyID(companyID),
			UserID:    r.Header.Get("X-User-ID"),
		}
		next.ServeHTTP(w, r.WithContext(hogarfix.WithIdentity(r.Context(), id)))
	})
}

// Start begins serving and launches the background facilities. It blocks
// until the listener fails or Shutdown is called.
func (s *Server) Start(ctx context.Context) error {
	if s.cfg.ManifestDir != "" {
		if err := s.watchManifests(ctx); err != nil {
			return err
		}
	}

	if s.cfg.ResyncSchedule != "" {
		_, err := s.cron.AddFunc(s.cfg.ResyncSchedule, func() {
			syncCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			if err := s.runtime.Manager.InitializeFromStore(syncCtx, ""); err != nil {
				s.logger.Error("module re-sync failed", "error", err)
			}
		})
		if err != nil {
			return err
		}
		s.cron.Start()
	}

	s.logger.Info("http server listening", "addr", s.cfg.Listen)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the HTTP listener and background facilities.
func (s *Server) Shutdown(ctx context.Context) error {
	cronCtx := s.cron.Stop()
	select {
	case <-cronCtx.Done():
	case <-ctx.Done():
	}
	return s.http.Shutdown(ctx)
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
