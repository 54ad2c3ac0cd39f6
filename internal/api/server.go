// Package api exposes the read-only ops endpoints: liveness, session
// statistics, and the live user table. It carries no chat logic; everything
// it reports comes from the registry and the journal.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"parley/internal/registry"
	"parley/pkg/protocol"
)

// Registry is the slice of the session registry the API reads.
type Registry interface {
	Len() int
	Stats() map[string]int
	Sessions() []*registry.Session
}

// Journal is the health-check surface of the lifecycle journal.
type Journal interface {
	Ping(ctx context.Context) error
}

// Server handles the ops routes. All endpoints are GET; the chat protocol
// is the only write surface this server has.
type Server struct {
	registry Registry
	journal  Journal
	logger   *slog.Logger
	router   *http.ServeMux
	started  time.Time
}

// NewServer wires the ops routes. journal may be nil when the server runs
// without one.
func NewServer(reg Registry, journal Journal, logger *slog.Logger) *Server {
	s := &Server{
		registry: reg,
		journal:  journal,
		logger:   logger,
		router:   http.NewServeMux(),
		started:  time.Now(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Handle("/health", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleHealth))))
	s.router.Handle("/api/stats", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleStats))))
	s.router.Handle("/api/users", s.corsMiddleware(s.jsonMiddleware(http.HandlerFunc(s.handleUsers))))
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// HealthResponse is the GET /health body.
type HealthResponse struct {
	Status      string `json:"status"`
	Connections int    `json:"connections"`
	Uptime      string `json:"uptime"`
}

// StatsResponse is the GET /api/stats body. Connections carries "total"
// plus one bucket per presence status.
type StatsResponse struct {
	Connections map[string]int `json:"connections"`
	Journal     string         `json:"journal"`
	Uptime      string         `json:"uptime"`
}

// UserSummary is one row of the GET /api/users body.
type UserSummary struct {
	Name        string `json:"name"`
	Status      string `json:"status"`
	Remote      string `json:"remote_addr"`
	ConnectedAt string `json:"connected_at"`
}

// ErrorResponse is the error body shared by all endpoints.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// handleHealth reports liveness. A configured but unreachable journal turns
// the report unhealthy with 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "healthy"
	code := http.StatusOK
	if s.journal != nil {
		if err := s.journal.Ping(ctx); err != nil {
			s.logger.Warn("health check failed", "component", "journal", "error", err)
			status = "unhealthy"
			code = http.StatusServiceUnavailable
		}
	}

	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(HealthResponse{
		Status:      status,
		Connections: s.registry.Len(),
		Uptime:      s.uptime(),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	journalStatus := "disabled"
	if s.journal != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := s.journal.Ping(ctx); err != nil {
			journalStatus = "error"
		} else {
			journalStatus = "ok"
		}
	}

	_ = json.NewEncoder(w).Encode(StatsResponse{
		Connections: s.registry.Stats(),
		Journal:     journalStatus,
		Uptime:      s.uptime(),
	})
}

// handleUsers lists live sessions sorted by name. The remote address is the
// same value user_info reports to chat peers.
func (s *Server) handleUsers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sessions := s.registry.Sessions()
	users := make([]UserSummary, 0, len(sessions))
	for _, sess := range sessions {
		users = append(users, UserSummary{
			Name:        sess.Name,
			Status:      sess.Status(),
			Remote:      sess.RemoteAddr,
			ConnectedAt: sess.ConnectedAt().Format(protocol.TimeLayout),
		})
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Name < users[j].Name })

	_ = json.NewEncoder(w).Encode(users)
}

func (s *Server) uptime() string {
	return time.Since(s.started).Round(time.Second).String()
}

func (s *Server) sendError(w http.ResponseWriter, message string, code int) {
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:   http.StatusText(code),
		Code:    code,
		Message: message,
	})
}

// corsMiddleware opens the ops endpoints to browser dashboards. All routes
// are read-only GET, OPTIONS answers preflight.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}
