// Package gateway implements the HTTP control plane: log ingestion, alert
// management, configuration, and the audit trail API.
package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/logwarden/logwarden/internal/audit"
	"github.com/logwarden/logwarden/internal/config"
	"github.com/logwarden/logwarden/internal/engine"
	"github.com/logwarden/logwarden/internal/storage"
	"github.com/logwarden/logwarden/internal/types"
)

const roleAdmin = "admin"

// Server is the HTTP gateway.
type Server struct {
	cfg        config.Config
	store      *storage.SQLite
	eng        *engine.Engine
	audit      *audit.Recorder
	jwt        *JWTService
	lockout    *lockoutTracker
	logger     zerolog.Logger
	startTime  time.Time
	httpServer *http.Server
	version    string
}

// NewServer wires the gateway over its collaborators.
func NewServer(cfg config.Config, store *storage.SQLite, eng *engine.Engine, rec *audit.Recorder, logger zerolog.Logger, version string) *Server {
	return &Server{
		cfg:       cfg,
		store:     store,
		eng:       eng,
		audit:     rec,
		jwt:       NewJWTService([]byte(config.ResolveEnv(cfg.Auth.JWTSecret)), cfg.Auth.TokenTTL),
		lockout:   newLockoutTracker(cfg.Auth.MaxLoginAttempts, cfg.Auth.LockoutDuration),
		logger:    logger.With().Str("component", "gateway").Logger(),
		startTime: time.Now(),
		version:   version,
	}
}

// Router assembles the route tree. Exposed for tests.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(s.requestLogger)
	r.Use(chimw.Recoverer)

	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login", s.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)

			r.Route("/logs", func(r chi.Router) {
				r.Post("/", s.handleIngestLog)
				r.Get("/", s.handleListLogs)
				r.Get("/{id}", s.handleLogByID)
			})

			r.Route("/alerts", func(r chi.Router) {
				r.Get("/", s.handleListAlerts)
				r.Get("/stats", s.handleAlertStats)
				r.Get("/{id}", s.handleAlertByID)
				r.Patch("/{id}/status", s.handleAlertStatus)
				r.With(s.requireRole(roleAdmin)).Patch("/{id}", s.handleUpdateAlert)
			})

			r.Route("/stats", func(r chi.Router) {
				r.Get("/logs-by-time", s.handleLogsByTime)
				r.Get("/logs-by-level", s.handleLogsByLevel)
				r.Get("/logs-by-source", s.handleLogsBySource)
				r.Get("/top-ips", s.handleTopIPs)
				r.Get("/alerts-trend", s.handleAlertsTrend)
				r.Get("/dashboard", s.handleDashboard)
			})

			r.Get("/configs", s.handleListConfigs)
			r.Get("/oplogs", s.handleListOplogs)
			r.Get("/oplogs/{id}", s.handleOplogByID)

			r.Group(func(r chi.Router) {
				r.Use(s.requireRole(roleAdmin))
				r.Put("/configs", s.handleUpsertConfig)
			})
		})
	})

	return r
}

// Start serves HTTP until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.cfg.Server.ListenAddr,
		Handler:      s.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info().Str("addr", s.cfg.Server.ListenAddr).Msg("starting http server")

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutCtx); err != nil {
			s.logger.Error().Err(err).Msg("server shutdown failed")
		}
	}()

	var err error
	if s.cfg.Server.TLSCert != "" && s.cfg.Server.TLSKey != "" {
		err = s.httpServer.ListenAndServeTLS(s.cfg.Server.TLSCert, s.cfg.Server.TLSKey)
	} else {
		err = s.httpServer.ListenAndServe()
	}
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	totalLogs, _ := s.store.LogCount()
	openAlerts, _ := s.store.OpenAlertCount()

	writeAPISuccess(w, types.SystemHealth{
		Uptime:      time.Since(s.startTime),
		TotalLogs:   totalLogs,
		OpenAlerts:  openAlerts,
		ActiveRules: s.eng.RuleCount(),
		Version:     s.version,
	})
}

// requestLogger emits one structured line per request.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Str("remote", clientIP(r)).
			Msg("request")
	})
}
