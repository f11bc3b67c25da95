// Package health provides a lightweight HTTP server for container health checks.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// DatabasePinger defines the interface for checking database connectivity.
type DatabasePinger interface {
	Ping(ctx context.Context) error
}

// FeedStatus reports whether the timing feed connection is up.
type FeedStatus interface {
	Connected() bool
}

// HealthResponse is the body of /health and /live.
type HealthResponse struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Timestamp string `json:"timestamp,omitempty"`
	Version   string `json:"version,omitempty"`
	Commit    string `json:"commit,omitempty"`
}

// ReadyResponse is the body of /ready.
type ReadyResponse struct {
	Status   string            `json:"status"`
	Service  string            `json:"service"`
	Checks   map[string]string `json:"checks,omitempty"`
	Duration string            `json:"duration,omitempty"`
}

// check probes one dependency; only critical failures fail readiness
type check struct {
	name     string
	critical bool
	probe    func(ctx context.Context) (string, error)
}

// Server serves /health, /live and /ready.
type Server struct {
	cfg    Config
	port   string
	checks []check
	ready  atomic.Bool
	server *http.Server
}

// Config holds the configuration for the health server.
type Config struct {
	ServiceName string
	Version     string
	Commit      string
	Port        string
	Logger      *logrus.Logger
	DB          DatabasePinger
	Feed        FeedStatus
}

// NewServer creates a new health check server. The port falls back to
// KART_TIMING_HEALTH_PORT and then 8080.
func NewServer(cfg Config) *Server {
	port := cfg.Port
	if port == "" {
		port = os.Getenv("KART_TIMING_HEALTH_PORT")
	}
	if port == "" {
		port = "8080"
	}

	s := &Server{cfg: cfg, port: port}
	if cfg.DB != nil {
		s.checks = append(s.checks, check{name: "database", critical: true, probe: pingDatabase(cfg.DB)})
	}
	// a dropped feed is reported but the reader is already reconnecting
	if cfg.Feed != nil {
		s.checks = append(s.checks, check{name: "feed", probe: feedState(cfg.Feed)})
	}
	return s
}

func pingDatabase(db DatabasePinger) func(context.Context) (string, error) {
	return func(ctx context.Context) (string, error) {
		ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if err := db.Ping(ctx); err != nil {
			return "", err
		}
		return "ok", nil
	}
}

func feedState(feed FeedStatus) func(context.Context) (string, error) {
	return func(context.Context) (string, error) {
		if feed.Connected() {
			return "connected", nil
		}
		return "reconnecting", nil
	}
}

// SetReady marks the server as ready to accept traffic.
func (s *Server) SetReady(ready bool) {
	s.ready.Store(ready)
}

// IsReady returns whether the server is ready.
func (s *Server) IsReady() bool {
	return s.ready.Load()
}

// Handler returns the mux serving the health endpoints.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /live", s.handleLive)
	mux.HandleFunc("GET /ready", s.handleReady)
	return mux
}

// Start binds the port and serves in the background until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", ":"+s.port)
	if err != nil {
		return fmt.Errorf("failed to listen on port %s: %w", s.port, err)
	}

	s.server = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	s.logf(logrus.InfoLevel, nil, "Health check server listening on %s", ln.Addr())

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logf(logrus.ErrorLevel, err, "Health check server error")
		}
	}()

	context.AfterFunc(ctx, func() {
		if err := s.Shutdown(); err != nil {
			s.logf(logrus.WarnLevel, err, "Health check server shutdown failed")
		}
	})
	return nil
}

// Shutdown gracefully shuts down the health check server.
func (s *Server) Shutdown() error {
	if s.server == nil {
		return nil
	}
	s.logf(logrus.InfoLevel, nil, "Health check server shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Service:   s.cfg.ServiceName,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   s.cfg.Version,
		Commit:    s.cfg.Commit,
	})
}

func (s *Server) handleLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Service: s.cfg.ServiceName})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	resp := ReadyResponse{
		Status:  "ok",
		Service: s.cfg.ServiceName,
		Checks:  make(map[string]string, len(s.checks)+1),
	}

	healthy := s.IsReady()
	resp.Checks["service"] = "ok"
	if !healthy {
		resp.Checks["service"] = "not_ready"
	}

	for _, c := range s.checks {
		state, err := c.probe(r.Context())
		if err != nil {
			state = fmt.Sprintf("error: %v", err)
			healthy = healthy && !c.critical
		}
		resp.Checks[c.name] = state
	}
	resp.Duration = time.Since(start).String()

	code := http.StatusOK
	if !healthy {
		resp.Status = "not_ready"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

func (s *Server) logf(level logrus.Level, err error, format string, args ...any) {
	if s.cfg.Logger == nil {
		return
	}
	entry := s.cfg.Logger.WithField("service", s.cfg.ServiceName)
	if err != nil {
		entry = entry.WithError(err)
	}
	entry.Logf(level, format, args...)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
