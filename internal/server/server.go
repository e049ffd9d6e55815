// Package server exposes the miner's control and observability surface
// over HTTP: a JSON status/control API, the OAuth login flow, Prometheus
// metrics, and a WebSocket event feed.
package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/dropforge/twitch-drops-go/internal/auth"
	"github.com/dropforge/twitch-drops-go/internal/constants"
	"github.com/dropforge/twitch-drops-go/internal/events"
	"github.com/dropforge/twitch-drops-go/internal/logger"
	"github.com/dropforge/twitch-drops-go/internal/metrics"
	"github.com/dropforge/twitch-drops-go/internal/miner"
	"github.com/dropforge/twitch-drops-go/internal/model"
)

// Config holds the HTTP server settings.
type Config struct {
	Addr string
	// TargetGames is the default game filter applied when a start request
	// does not carry its own.
	TargetGames []string
}

// Server serves the JSON API and the WebSocket event feed for one miner.
type Server struct {
	addr string

	mu          sync.Mutex
	targetGames []string

	miner *miner.Orchestrator
	auth  *auth.Manager
	hub   *hub
	log   *logger.Logger
	srv   *http.Server
}

// New creates a Server and subscribes its event feed to the dispatcher.
func New(cfg Config, m *miner.Orchestrator, authMgr *auth.Manager, dispatcher *events.Dispatcher, met *metrics.Metrics, log *logger.Logger) *Server {
	s := &Server{
		addr:        cfg.Addr,
		targetGames: append([]string(nil), cfg.TargetGames...),
		miner:       m,
		auth:        authMgr,
		log:         log.WithScope("server"),
	}

	s.hub = newHub(s.log, func() events.Event {
		snap := m.Status()
		return events.Event{
			Type:   events.TypeStatusChange,
			Time:   time.Now(),
			Status: &model.StatusChange{State: snap.State, Err: snap.LastError},
		}
	})
	dispatcher.Subscribe(s.hub)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", met.Handler())

	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/campaigns", s.handleCampaigns)
	mux.HandleFunc("GET /api/sessions", s.handleSessions)
	mux.HandleFunc("POST /api/start", s.handleStart)
	mux.HandleFunc("POST /api/stop", s.handleStop)
	mux.HandleFunc("POST /api/pause", s.handlePause)
	mux.HandleFunc("POST /api/resume", s.handleResume)

	mux.HandleFunc("GET /auth/login", s.handleAuthLogin)
	mux.HandleFunc("GET /auth/callback", s.handleAuthCallback)
	mux.HandleFunc("GET /api/auth", s.handleAuthStatus)
	mux.HandleFunc("POST /api/auth/revoke", s.handleAuthRevoke)

	mux.HandleFunc("GET /ws", s.hub.serveWS)

	s.srv = &http.Server{
		Addr:              cfg.Addr,
		Handler:           withLogging(s.log, mux),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return context.Background()
		},
	}

	return s
}

// Run starts the HTTP server and blocks until the context is cancelled.
// It performs graceful shutdown when the context is done.
func (s *Server) Run(ctx context.Context) error {
	s.log.Info("API server starting", "addr", s.addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("api server: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.log.Info("API server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.DefaultGracefulShutdownTimeout)
		defer cancel()
		err := s.srv.Shutdown(shutdownCtx)
		// Shutdown ignores hijacked connections, so the feed closes its
		// own clients.
		s.hub.close()
		if err != nil {
			return fmt.Errorf("api server shutdown: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// SetTargetGames replaces the default game filter applied to start
// requests that carry no filter of their own. Used by config hot-reload.
func (s *Server) SetTargetGames(games []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.targetGames = append([]string(nil), games...)
}

func (s *Server) defaultTargetGames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.targetGames...)
}

func withLogging(log *logger.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)
		log.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rw.statusCode,
			"duration", time.Since(start).String(),
		)
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

// WriteHeader captures the status code before writing it.
func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Unwrap exposes the underlying writer so the WebSocket upgrade can
// hijack the connection through the logging middleware.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
