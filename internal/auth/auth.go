package auth

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/dropforge/twitch-drops-go/internal/constants"
	"github.com/dropforge/twitch-drops-go/internal/logger"
	"github.com/dropforge/twitch-drops-go/internal/metrics"
	"github.com/dropforge/twitch-drops-go/internal/model"
)

var (
	// ErrStateMismatch means the callback state did not match the issued one.
	ErrStateMismatch = errors.New("authorization state mismatch")
	// ErrRefreshFailed means the access token could not be refreshed.
	ErrRefreshFailed = errors.New("token refresh failed")
	// ErrNotAuthenticated means no credentials are available.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrProviderRejected means the identity provider rejected the request.
	ErrProviderRejected = errors.New("identity provider rejected request")
)

// tokenResponse is the provider's token endpoint payload.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

// validateResponse is the provider's token introspection payload.
type validateResponse struct {
	ClientID  string   `json:"client_id"`
	Login     string   `json:"login"`
	Scopes    []string `json:"scopes"`
	UserID    string   `json:"user_id"`
	ExpiresIn int      `json:"expires_in"`
}

// Manager drives the OAuth2 authorization-code flow and keeps the
// credential snapshot fresh. Every mutation is persisted to the Store
// before the operation reports success. It is safe for concurrent use.
type Manager struct {
	mu sync.RWMutex

	clientID    string
	secret      string
	redirectURI string

	store      Store
	met        *metrics.Metrics
	log        *logger.Logger
	httpClient *http.Client

	authorizeURL string
	tokenURL     string
	validateURL  string
	revokeURL    string

	token  *Token
	state  string
	login  string
	userID string
}

// NewManager creates a Manager and loads any persisted token from the
// store. A store read failure is logged and treated as an
// unauthenticated start.
func NewManager(clientID, clientSecret, redirectURI string, store Store, met *metrics.Metrics, log *logger.Logger) *Manager {
	m := &Manager{
		clientID:     clientID,
		secret:       clientSecret,
		redirectURI:  redirectURI,
		store:        store,
		met:          met,
		log:          log.WithScope("auth"),
		authorizeURL: constants.AuthorizeURL,
		tokenURL:     constants.TokenURL,
		validateURL:  constants.ValidateURL,
		revokeURL:    constants.RevokeURL,
		httpClient: &http.Client{
			Timeout: constants.DefaultHTTPTimeout,
		},
	}

	token, err := store.Load()
	if err != nil {
		m.log.Warn("Failed to load stored token, starting unauthenticated", "error", err)
	} else if token != nil && token.AccessToken != "" {
		m.token = token
		m.log.Debug("Loaded stored token", "expires_at", token.ExpiresAt().Format(time.RFC3339))
	}
	return m
}

// BuildAuthorizationURL returns the provider consent URL and the opaque
// state value embedded in it. The state is held for the next
// ExchangeCode call; issuing a new URL supersedes any previous state.
func (m *Manager) BuildAuthorizationURL() (string, string) {
	state := GenerateHex(16)

	m.mu.Lock()
	m.state = state
	m.mu.Unlock()

	query := url.Values{}
	query.Set("client_id", m.clientID)
	query.Set("redirect_uri", m.redirectURI)
	query.Set("response_type", "code")
	query.Set("scope", constants.OAuthScopes)
	query.Set("state", state)

	return m.authorizeURL + "?" + query.Encode(), state
}

// ExchangeCode redeems an authorization code for a token pair. The
// state is checked before any network traffic; a mismatch fails with
// ErrStateMismatch and the issued state stays valid for a retry with
// the correct value.
func (m *Manager) ExchangeCode(ctx context.Context, code, state string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == "" || state != m.state {
		return ErrStateMismatch
	}
	m.state = ""

	form := url.Values{}
	form.Set("client_id", m.clientID)
	form.Set("client_secret", m.secret)
	form.Set("code", code)
	form.Set("grant_type", "authorization_code")
	form.Set("redirect_uri", m.redirectURI)

	resp, err := m.postTokenForm(ctx, form)
	if err != nil {
		return err
	}

	m.token = &Token{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ObtainedAt:   time.Now().Unix(),
		ExpiresIn:    resp.ExpiresIn,
	}
	if err := m.store.Save(m.token); err != nil {
		return fmt.Errorf("persisting token: %w", err)
	}

	m.log.Info("Authorization code exchanged", "expires_in", resp.ExpiresIn)
	return nil
}

// EnsureFreshToken guarantees a usable access token, refreshing it when
// it is within the expiry skew. It returns ErrNotAuthenticated when no
// credentials exist and ErrRefreshFailed when the refresh cannot be
// performed.
func (m *Manager) EnsureFreshToken(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ensureFreshLocked(ctx)
}

// ensureFreshLocked implements EnsureFreshToken; callers hold m.mu.
func (m *Manager) ensureFreshLocked(ctx context.Context) error {
	if m.token == nil || m.token.AccessToken == "" {
		return ErrNotAuthenticated
	}
	if m.token.Fresh(constants.TokenRefreshSkew) {
		return nil
	}
	if m.token.RefreshToken == "" {
		return fmt.Errorf("%w: no refresh token available", ErrRefreshFailed)
	}

	form := url.Values{}
	form.Set("client_id", m.clientID)
	form.Set("client_secret", m.secret)
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", m.token.RefreshToken)

	// A refresh triggered mid-cycle must survive engine shutdown, so it
	// runs on its own timeout detached from the caller's cancellation.
	refreshCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), constants.DefaultHTTPTimeout)
	defer cancel()

	resp, err := m.postTokenForm(refreshCtx, form)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}

	refreshed := &Token{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ObtainedAt:   time.Now().Unix(),
		ExpiresIn:    resp.ExpiresIn,
	}
	// The provider may omit the refresh token on renewal; keep the old one.
	if refreshed.RefreshToken == "" {
		refreshed.RefreshToken = m.token.RefreshToken
	}

	m.token = refreshed
	if err := m.store.Save(m.token); err != nil {
		return fmt.Errorf("persisting refreshed token: %w", err)
	}

	m.met.TokenRefreshes.Inc()
	m.log.Event(ctx, model.EventAuthRefresh, "Access token refreshed",
		"expires_at", refreshed.ExpiresAt().Format(time.RFC3339))
	return nil
}

// Validate introspects the current access token against the provider.
// It returns true only when the provider recognizes the token and
// reports a nonzero remaining lifetime.
func (m *Manager) Validate(ctx context.Context) bool {
	m.mu.RLock()
	token := m.token
	m.mu.RUnlock()

	if token == nil || token.AccessToken == "" {
		return false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.validateURL, nil)
	if err != nil {
		return false
	}
	req.Header.Set("Authorization", "OAuth "+token.AccessToken)

	resp, err := m.httpClient.Do(req)
	if err != nil {
		m.log.Debug("Token validation request failed", "error", err)
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return false
	}

	var result validateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		m.log.Debug("Failed to decode validate response", "error", err)
		return false
	}
	if result.ExpiresIn <= 0 {
		return false
	}

	m.mu.Lock()
	m.login = result.Login
	m.userID = result.UserID
	m.mu.Unlock()
	return true
}

// Revoke invalidates the token at the provider and clears local
// credential state. Local state is cleared even when the provider call
// fails, so a dead provider cannot keep stale credentials alive.
func (m *Manager) Revoke(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.token == nil || m.token.AccessToken == "" {
		return ErrNotAuthenticated
	}

	form := url.Values{}
	form.Set("client_id", m.clientID)
	form.Set("token", m.token.AccessToken)

	revokeErr := m.postForm(ctx, m.revokeURL, form)

	m.token = nil
	m.state = ""
	m.login = ""
	m.userID = ""
	if err := m.store.Clear(); err != nil {
		return fmt.Errorf("clearing stored token: %w", err)
	}

	if revokeErr != nil {
		return revokeErr
	}
	m.log.Info("Token revoked")
	return nil
}

// AuthHeaders refreshes the token if needed and returns the headers
// required on authenticated API requests.
func (m *Manager) AuthHeaders(ctx context.Context) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.ensureFreshLocked(ctx); err != nil {
		return nil, err
	}

	return map[string]string{
		"Authorization": "Bearer " + m.token.AccessToken,
		"Client-Id":     m.clientID,
	}, nil
}

// AccessToken refreshes the token if needed and returns the raw access
// token for subsystems that authenticate outside the API client, such
// as IRC.
func (m *Manager) AccessToken(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.ensureFreshLocked(ctx); err != nil {
		return "", err
	}
	return m.token.AccessToken, nil
}

// Authenticated reports whether a credential snapshot is held.
func (m *Manager) Authenticated() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token != nil && m.token.AccessToken != ""
}

// Login returns the account login captured by the last successful
// Validate call, or "" when unknown.
func (m *Manager) Login() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.login
}

// UserID returns the account's numeric ID captured by the last
// successful Validate call, or "" when unknown.
func (m *Manager) UserID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.userID
}

// postTokenForm posts a form to the token endpoint and decodes the
// token payload. Non-200 responses map to ErrProviderRejected.
func (m *Manager) postTokenForm(ctx context.Context, form url.Values) (*tokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.tokenURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("creating token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: status %d: %s",
			ErrProviderRejected, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decoding token response: %w", err)
	}
	if payload.AccessToken == "" {
		return nil, fmt.Errorf("%w: token response missing access_token", ErrProviderRejected)
	}
	return &payload, nil
}

// postForm posts a form and discards the response body, mapping
// non-200 responses to ErrProviderRejected.
func (m *Manager) postForm(ctx context.Context, endpoint string, form url.Values) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint,
		strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrProviderRejected, resp.StatusCode)
	}
	return nil
}

// GenerateHex creates a random hex string of the given byte length.
// It is exported for use by other packages that need opaque IDs.
func GenerateHex(numBytes int) string {
	randomBytes := make([]byte, numBytes)
	if _, err := rand.Read(randomBytes); err != nil {
		return strings.Repeat("0", numBytes*2)
	}
	return fmt.Sprintf("%x", randomBytes)
}
