package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Coldaine/ShortcutSage/internal/daemon"
	"github.com/Coldaine/ShortcutSage/internal/store"
)

// maxBodyBytes bounds request bodies; events are small.
const maxBodyBytes = 64 << 10

// Server is the shortcut-sage HTTP API server.
type Server struct {
	daemon    *daemon.Daemon
	db        *store.DB
	router    chi.Router
	version   string
	started   time.Time
	heartbeat time.Duration
}

// New creates a Server over d. db is optional and only used for health
// reporting.
func New(d *daemon.Daemon, db *store.DB, version string) *Server {
	s := &Server{
		daemon:    d,
		db:        db,
		version:   version,
		started:   time.Now(),
		heartbeat: 15 * time.Second,
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Post("/events", s.handleEvent)
		r.Post("/accept", s.handleAccept)
		r.Get("/acceptances/{action}", s.handleAcceptances)
		r.Get("/buffer", s.handleBuffer)
		r.Post("/reload", s.handleReload)
		r.Get("/metrics", s.handleMetrics)
		r.Get("/suggestions/stream", s.handleStream)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"status":     "ok",
		"ping":       "pong",
		"version":    s.version,
		"uptime":     time.Since(s.started).Seconds(),
		"config_dir": s.daemon.ConfigDir(),
		"engine":     s.daemon.Stats(),
		"db":         false,
	}
	if s.db != nil {
		body["db"] = s.db.Healthy()
		body["db_path"] = s.db.Path
	}
	writeJSON(w, http.StatusOK, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
