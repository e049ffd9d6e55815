package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/dropforge/twitch-drops-go/internal/auth"
	"github.com/dropforge/twitch-drops-go/internal/miner"
	"github.com/dropforge/twitch-drops-go/internal/model"
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"state":         s.miner.State(),
		"authenticated": s.auth.Authenticated(),
		"timestamp":     time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.miner.Status())
}

func (s *Server) handleCampaigns(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.miner.Campaigns())
}

func (s *Server) handleSessions(w http.ResponseWriter, _ *http.Request) {
	sessions := s.miner.Status().Sessions
	if sessions == nil {
		sessions = []*model.WatchSession{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

type startRequest struct {
	TargetGames []string `json:"target_games"`
}

// handleStart begins a mining session. An empty or absent target_games
// list falls back to the server's configured default filter.
func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}

	games := req.TargetGames
	if len(games) == 0 {
		games = s.defaultTargetGames()
	}

	if err := s.miner.Start(r.Context(), games...); err != nil {
		writeJSON(w, minerStatusCode(err), errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "started", "state": s.miner.State()})
}

func (s *Server) handleStop(w http.ResponseWriter, _ *http.Request) {
	if err := s.miner.Stop(); err != nil {
		writeJSON(w, minerStatusCode(err), errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "stopped", "state": s.miner.State()})
}

func (s *Server) handlePause(w http.ResponseWriter, _ *http.Request) {
	if err := s.miner.Pause(); err != nil {
		writeJSON(w, minerStatusCode(err), errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "paused", "state": s.miner.State()})
}

func (s *Server) handleResume(w http.ResponseWriter, _ *http.Request) {
	if err := s.miner.Resume(); err != nil {
		writeJSON(w, minerStatusCode(err), errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "resumed", "state": s.miner.State()})
}

// handleAuthLogin redirects the browser into the OAuth authorization flow.
func (s *Server) handleAuthLogin(w http.ResponseWriter, r *http.Request) {
	url, _ := s.auth.BuildAuthorizationURL()
	http.Redirect(w, r, url, http.StatusFound)
}

// handleAuthCallback completes the OAuth flow with the code and state the
// identity provider appended to the redirect.
func (s *Server) handleAuthCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if errMsg := q.Get("error"); errMsg != "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "authorization denied: " + errMsg})
		return
	}

	code, state := q.Get("code"), q.Get("state")
	if code == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing authorization code"})
		return
	}

	if err := s.auth.ExchangeCode(r.Context(), code, state); err != nil {
		writeJSON(w, authStatusCode(err), errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "authenticated"})
}

func (s *Server) handleAuthStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"authenticated": s.auth.Authenticated(),
		"login":         s.auth.Login(),
		"user_id":       s.auth.UserID(),
	})
}

func (s *Server) handleAuthRevoke(w http.ResponseWriter, r *http.Request) {
	if err := s.auth.Revoke(r.Context()); err != nil {
		writeJSON(w, authStatusCode(err), errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "revoked"})
}

// minerStatusCode maps orchestrator errors to HTTP status codes.
func minerStatusCode(err error) int {
	switch {
	case errors.Is(err, miner.ErrAlreadyRunning), errors.Is(err, miner.ErrNotRunning):
		return http.StatusConflict
	case errors.Is(err, miner.ErrNoCampaigns):
		return http.StatusNotFound
	case errors.Is(err, auth.ErrNotAuthenticated), errors.Is(err, auth.ErrRefreshFailed):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// authStatusCode maps token manager errors to HTTP status codes.
func authStatusCode(err error) int {
	switch {
	case errors.Is(err, auth.ErrStateMismatch):
		return http.StatusBadRequest
	case errors.Is(err, auth.ErrNotAuthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, auth.ErrProviderRejected):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(v) //nolint:errcheck
}
