package auth

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropforge/twitch-drops-go/internal/logger"
	"github.com/dropforge/twitch-drops-go/internal/metrics"
)

// memStore is an in-memory Store used by tests.
type memStore struct {
	mu      sync.Mutex
	token   *Token
	saves   int
	saveErr error
}

func (s *memStore) Load() (*Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token, nil
}

func (s *memStore) Save(token *Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.token = token
	s.saves++
	return nil
}

func (s *memStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = nil
	return nil
}

func (s *memStore) snapshot() *Token {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

func (s *memStore) saveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.Setup(logger.Config{Level: slog.LevelError})
	require.NoError(t, err)
	return log
}

// newTestManager builds a Manager pointed at a fake identity provider.
func newTestManager(t *testing.T, store Store, handler http.Handler) *Manager {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	m := NewManager("client-id", "client-secret", "http://localhost:5000/auth/callback",
		store, metrics.NewMetrics("test"), testLogger(t))
	m.authorizeURL = srv.URL + "/oauth2/authorize"
	m.tokenURL = srv.URL + "/oauth2/token"
	m.validateURL = srv.URL + "/oauth2/validate"
	m.revokeURL = srv.URL + "/oauth2/revoke"
	return m
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func staleToken() *Token {
	return &Token{
		AccessToken:  "old-access",
		RefreshToken: "refresh-1",
		ObtainedAt:   time.Now().Add(-3700 * time.Second).Unix(),
		ExpiresIn:    3600,
	}
}

func freshToken() *Token {
	return &Token{
		AccessToken:  "fresh-access",
		RefreshToken: "refresh-1",
		ObtainedAt:   time.Now().Unix(),
		ExpiresIn:    3600,
	}
}

func TestBuildAuthorizationURL(t *testing.T) {
	m := newTestManager(t, &memStore{}, http.NotFoundHandler())

	rawURL, state := m.BuildAuthorizationURL()
	require.NotEmpty(t, state)

	parsed, err := url.Parse(rawURL)
	require.NoError(t, err)

	query := parsed.Query()
	assert.Equal(t, "client-id", query.Get("client_id"))
	assert.Equal(t, "http://localhost:5000/auth/callback", query.Get("redirect_uri"))
	assert.Equal(t, "code", query.Get("response_type"))
	assert.NotEmpty(t, query.Get("scope"))
	assert.Equal(t, state, query.Get("state"))

	_, second := m.BuildAuthorizationURL()
	assert.NotEqual(t, state, second, "each authorization URL must carry a fresh state")
}

func TestExchangeCode(t *testing.T) {
	t.Run("redeems code and persists token", func(t *testing.T) {
		var gotForm url.Values
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, r.ParseForm())
			gotForm = r.PostForm
			writeJSON(t, w, map[string]any{
				"access_token":  "access-1",
				"refresh_token": "refresh-1",
				"expires_in":    3600,
				"token_type":    "bearer",
			})
		})

		store := &memStore{}
		m := newTestManager(t, store, handler)
		_, state := m.BuildAuthorizationURL()

		require.NoError(t, m.ExchangeCode(context.Background(), "the-code", state))

		assert.Equal(t, "authorization_code", gotForm.Get("grant_type"))
		assert.Equal(t, "the-code", gotForm.Get("code"))
		assert.Equal(t, "client-id", gotForm.Get("client_id"))

		saved := store.snapshot()
		require.NotNil(t, saved, "token must be persisted before success is reported")
		assert.Equal(t, "access-1", saved.AccessToken)
		assert.Equal(t, "refresh-1", saved.RefreshToken)
		assert.Equal(t, 3600, saved.ExpiresIn)
		assert.InDelta(t, time.Now().Unix(), saved.ObtainedAt, 5)
		assert.True(t, m.Authenticated())
	})

	t.Run("state mismatch makes no network call", func(t *testing.T) {
		var hits atomic.Int32
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			writeJSON(t, w, map[string]any{"access_token": "x", "expires_in": 3600})
		})

		store := &memStore{}
		m := newTestManager(t, store, handler)
		m.BuildAuthorizationURL()

		err := m.ExchangeCode(context.Background(), "the-code", "wrong-state")
		require.ErrorIs(t, err, ErrStateMismatch)
		assert.Zero(t, hits.Load(), "mismatched state must be rejected before any provider traffic")
		assert.Nil(t, store.snapshot())
		assert.False(t, m.Authenticated())
	})

	t.Run("no outstanding state", func(t *testing.T) {
		m := newTestManager(t, &memStore{}, http.NotFoundHandler())
		err := m.ExchangeCode(context.Background(), "the-code", "any")
		require.ErrorIs(t, err, ErrStateMismatch)
	})

	t.Run("provider rejection", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"message":"invalid code"}`, http.StatusBadRequest)
		})

		store := &memStore{}
		m := newTestManager(t, store, handler)
		_, state := m.BuildAuthorizationURL()

		err := m.ExchangeCode(context.Background(), "bad-code", state)
		require.ErrorIs(t, err, ErrProviderRejected)
		assert.Nil(t, store.snapshot())
	})

	t.Run("store failure blocks success", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeJSON(t, w, map[string]any{"access_token": "x", "expires_in": 3600})
		})

		store := &memStore{saveErr: assert.AnError}
		m := newTestManager(t, store, handler)
		_, state := m.BuildAuthorizationURL()

		err := m.ExchangeCode(context.Background(), "the-code", state)
		require.Error(t, err)
	})
}

func TestEnsureFreshToken(t *testing.T) {
	t.Run("fresh token is a no-op", func(t *testing.T) {
		var hits atomic.Int32
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
		})

		m := newTestManager(t, &memStore{token: freshToken()}, handler)

		require.NoError(t, m.EnsureFreshToken(context.Background()))
		require.NoError(t, m.EnsureFreshToken(context.Background()))
		assert.Zero(t, hits.Load(), "a fresh token must not trigger a refresh")
	})

	t.Run("stale token refreshed exactly once", func(t *testing.T) {
		var hits atomic.Int32
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			require.NoError(t, r.ParseForm())
			assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
			assert.Equal(t, "refresh-1", r.PostForm.Get("refresh_token"))
			writeJSON(t, w, map[string]any{
				"access_token":  "new-access",
				"refresh_token": "refresh-2",
				"expires_in":    3600,
			})
		})

		store := &memStore{token: staleToken()}
		m := newTestManager(t, store, handler)

		require.NoError(t, m.EnsureFreshToken(context.Background()))
		require.NoError(t, m.EnsureFreshToken(context.Background()))

		assert.Equal(t, int32(1), hits.Load())

		saved := store.snapshot()
		require.NotNil(t, saved)
		assert.Equal(t, "new-access", saved.AccessToken)
		assert.Equal(t, "refresh-2", saved.RefreshToken)
		assert.InDelta(t, time.Now().Unix(), saved.ObtainedAt, 5, "obtained_at must be reset on refresh")
	})

	t.Run("retains refresh token when provider omits it", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeJSON(t, w, map[string]any{
				"access_token": "new-access",
				"expires_in":   3600,
			})
		})

		store := &memStore{token: staleToken()}
		m := newTestManager(t, store, handler)

		require.NoError(t, m.EnsureFreshToken(context.Background()))

		saved := store.snapshot()
		require.NotNil(t, saved)
		assert.Equal(t, "new-access", saved.AccessToken)
		assert.Equal(t, "refresh-1", saved.RefreshToken, "previous refresh token must survive a renewal that omits one")
	})

	t.Run("refresh without refresh token fails", func(t *testing.T) {
		token := staleToken()
		token.RefreshToken = ""
		m := newTestManager(t, &memStore{token: token}, http.NotFoundHandler())

		err := m.EnsureFreshToken(context.Background())
		require.ErrorIs(t, err, ErrRefreshFailed)
	})

	t.Run("unauthenticated", func(t *testing.T) {
		m := newTestManager(t, &memStore{}, http.NotFoundHandler())
		err := m.EnsureFreshToken(context.Background())
		require.ErrorIs(t, err, ErrNotAuthenticated)
	})

	t.Run("provider rejection wraps refresh failure", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"message":"invalid refresh token"}`, http.StatusUnauthorized)
		})

		m := newTestManager(t, &memStore{token: staleToken()}, handler)

		err := m.EnsureFreshToken(context.Background())
		require.ErrorIs(t, err, ErrRefreshFailed)
		require.ErrorIs(t, err, ErrProviderRejected)
	})

	t.Run("survives caller cancellation", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeJSON(t, w, map[string]any{"access_token": "new-access", "expires_in": 3600})
		})

		m := newTestManager(t, &memStore{token: staleToken()}, handler)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		require.NoError(t, m.EnsureFreshToken(ctx), "refresh must run to completion even when the caller's context is done")
	})
}

func TestValidate(t *testing.T) {
	t.Run("valid token", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "OAuth fresh-access", r.Header.Get("Authorization"))
			writeJSON(t, w, map[string]any{
				"client_id":  "client-id",
				"login":      "strimmer",
				"user_id":    "12345",
				"expires_in": 5000,
			})
		})

		m := newTestManager(t, &memStore{token: freshToken()}, handler)

		assert.True(t, m.Validate(context.Background()))
		assert.Equal(t, "strimmer", m.Login())
		assert.Equal(t, "12345", m.UserID())
	})

	t.Run("expired lifetime", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeJSON(t, w, map[string]any{"expires_in": 0})
		})

		m := newTestManager(t, &memStore{token: freshToken()}, handler)
		assert.False(t, m.Validate(context.Background()))
	})

	t.Run("provider rejects token", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"message":"invalid access token"}`, http.StatusUnauthorized)
		})

		m := newTestManager(t, &memStore{token: freshToken()}, handler)
		assert.False(t, m.Validate(context.Background()))
	})

	t.Run("no token skips the provider", func(t *testing.T) {
		var hits atomic.Int32
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
		})

		m := newTestManager(t, &memStore{}, handler)
		assert.False(t, m.Validate(context.Background()))
		assert.Zero(t, hits.Load())
	})
}

func TestRevoke(t *testing.T) {
	t.Run("clears local state", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, r.ParseForm())
			assert.Equal(t, "fresh-access", r.PostForm.Get("token"))
			w.WriteHeader(http.StatusOK)
		})

		store := &memStore{token: freshToken()}
		m := newTestManager(t, store, handler)

		require.NoError(t, m.Revoke(context.Background()))
		assert.False(t, m.Authenticated())
		assert.Nil(t, store.snapshot())

		err := m.EnsureFreshToken(context.Background())
		require.ErrorIs(t, err, ErrNotAuthenticated)
	})

	t.Run("provider failure still clears local state", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		})

		store := &memStore{token: freshToken()}
		m := newTestManager(t, store, handler)

		err := m.Revoke(context.Background())
		require.ErrorIs(t, err, ErrProviderRejected)
		assert.False(t, m.Authenticated())
		assert.Nil(t, store.snapshot())
	})

	t.Run("without token", func(t *testing.T) {
		m := newTestManager(t, &memStore{}, http.NotFoundHandler())
		err := m.Revoke(context.Background())
		require.ErrorIs(t, err, ErrNotAuthenticated)
	})
}

func TestAuthHeaders(t *testing.T) {
	t.Run("returns bearer and client id", func(t *testing.T) {
		m := newTestManager(t, &memStore{token: freshToken()}, http.NotFoundHandler())

		headers, err := m.AuthHeaders(context.Background())
		require.NoError(t, err)
		assert.Equal(t, map[string]string{
			"Authorization": "Bearer fresh-access",
			"Client-Id":     "client-id",
		}, headers)
	})

	t.Run("refreshes a stale token first", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeJSON(t, w, map[string]any{"access_token": "new-access", "expires_in": 3600})
		})

		m := newTestManager(t, &memStore{token: staleToken()}, handler)

		headers, err := m.AuthHeaders(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "Bearer new-access", headers["Authorization"])
	})

	t.Run("unauthenticated", func(t *testing.T) {
		m := newTestManager(t, &memStore{}, http.NotFoundHandler())
		_, err := m.AuthHeaders(context.Background())
		require.ErrorIs(t, err, ErrNotAuthenticated)
	})
}

func TestGenerateHex(t *testing.T) {
	first := GenerateHex(16)
	second := GenerateHex(16)

	assert.Len(t, first, 32)
	assert.NotEqual(t, first, second)

	_, err := hex.DecodeString(first)
	assert.NoError(t, err)
}
