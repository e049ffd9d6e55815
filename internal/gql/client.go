// Package gql provides a typed GraphQL client for the platform API.
// It handles request building, auth header injection, retries with
// exponential backoff, and a circuit breaker for persistent outages.
package gql

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/dropforge/twitch-drops-go/internal/auth"
	"github.com/dropforge/twitch-drops-go/internal/constants"
	"github.com/dropforge/twitch-drops-go/internal/logger"
	"github.com/dropforge/twitch-drops-go/internal/metrics"
)

var (
	// ErrTransport covers network, HTTP status, and malformed-body
	// failures, as opposed to errors the GraphQL layer itself reports.
	ErrTransport = errors.New("transport error")
	// ErrCircuitOpen is returned when the circuit breaker is open and
	// requests are being skipped to avoid hammering a failing API.
	ErrCircuitOpen = errors.New("circuit breaker open: API requests temporarily suspended")
)

// GraphQLError carries the messages from a GQL response errors array.
// The request reached the API; the operation itself was refused.
type GraphQLError struct {
	Operation string
	Messages  []string
}

func (e *GraphQLError) Error() string {
	return fmt.Sprintf("GQL operation %s returned errors: %s", e.Operation, strings.Join(e.Messages, "; "))
}

// circuitBreaker tracks consecutive failures and backs off when the API
// looks down.
type circuitBreaker struct {
	mu               sync.Mutex
	consecutiveFails int
	lastFailure      time.Time
	cooldownUntil    time.Time
}

func (cb *circuitBreaker) recordSuccess() {
	cb.mu.Lock()
	cb.consecutiveFails = 0
	cb.mu.Unlock()
}

// recordFailure increments the failure counter and, at the threshold,
// opens the breaker with a cooldown that grows per extra failure.
func (cb *circuitBreaker) recordFailure() {
	cb.mu.Lock()
	cb.consecutiveFails++
	cb.lastFailure = time.Now()
	if cb.consecutiveFails >= constants.BreakerThreshold {
		backoff := time.Duration(cb.consecutiveFails-constants.BreakerThreshold+1) * constants.BreakerCooldown
		if backoff > 5*time.Minute {
			backoff = 5 * time.Minute
		}
		cb.cooldownUntil = time.Now().Add(backoff)
	}
	cb.mu.Unlock()
}

// shouldSkip returns true while the breaker is open.
func (cb *circuitBreaker) shouldSkip() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return time.Now().Before(cb.cooldownUntil)
}

// Client is the GQL HTTP client with connection pooling, circuit
// breaker, and retry logic.
type Client struct {
	httpClient *http.Client
	auth       auth.Provider
	met        *metrics.Metrics
	log        *logger.Logger
	breaker    *circuitBreaker

	endpoint   string
	maxRetries int
}

// NewClient creates a GQL Client with a shared HTTP client configured
// for connection pooling and the given credential provider.
func NewClient(authenticator auth.Provider, met *metrics.Metrics, log *logger.Logger) *Client {
	transport := &http.Transport{
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 5,
		IdleConnTimeout:     90 * time.Second,
	}

	return &Client{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   constants.DefaultHTTPTimeout,
		},
		auth:       authenticator,
		met:        met,
		log:        log.WithScope("gql"),
		breaker:    &circuitBreaker{},
		endpoint:   constants.GQLURL,
		maxRetries: constants.DefaultMaxRetries,
	}
}

type gqlRequest struct {
	OperationName string         `json:"operationName"`
	Variables     map[string]any `json:"variables,omitempty"`
	Query         string         `json:"query"`
}

type gqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []gqlError      `json:"errors,omitempty"`
}

type gqlError struct {
	Message string `json:"message"`
	Path    []any  `json:"path,omitempty"`
}

// Execute sends a single GQL operation and returns the "data" portion
// of the response. Failures at the HTTP layer wrap ErrTransport; a
// response carrying an errors array yields a *GraphQLError.
func (c *Client) Execute(ctx context.Context, op constants.GQLOperation, variables map[string]any) (json.RawMessage, error) {
	start := time.Now()
	defer func() {
		c.met.ObserveGQLRequest(op.OperationName, time.Since(start).Seconds())
	}()

	jsonBody, err := json.Marshal(gqlRequest{
		OperationName: op.OperationName,
		Variables:     variables,
		Query:         op.Query,
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling GQL request: %w", err)
	}

	respBody, err := c.doHTTPRequest(ctx, jsonBody, op.OperationName)
	if err != nil {
		return nil, err
	}

	var response gqlResponse
	if err := json.Unmarshal(respBody, &response); err != nil {
		return nil, fmt.Errorf("%w: parsing response for %s: %w", ErrTransport, op.OperationName, err)
	}

	if len(response.Errors) > 0 {
		messages := make([]string, len(response.Errors))
		for i, e := range response.Errors {
			messages[i] = e.Message
		}
		c.log.Warn("GQL operation returned errors",
			"operation", op.OperationName,
			"errors", strings.Join(messages, "; "))
		return nil, &GraphQLError{Operation: op.OperationName, Messages: messages}
	}

	return response.Data, nil
}

// doHTTPRequest performs the HTTP POST with auth headers and retry
// logic for transient errors (429, 5xx, network failures).
//
// Individual retries are logged at DEBUG to reduce noise; only the
// final failure after all retries is logged at WARN.
func (c *Client) doHTTPRequest(ctx context.Context, jsonBody []byte, opName string) ([]byte, error) {
	if c.breaker.shouldSkip() {
		c.log.Debug("Circuit breaker open, skipping request", "operation", opName)
		return nil, ErrCircuitOpen
	}

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * time.Second
			c.log.Debug("Retrying GQL request",
				"operation", opName,
				"attempt", fmt.Sprintf("%d/%d", attempt, c.maxRetries),
				"backoff", backoff)

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		// Headers are fetched per attempt so a token refreshed between
		// retries is picked up.
		headers, err := c.auth.AuthHeaders(ctx)
		if err != nil {
			return nil, fmt.Errorf("fetching auth headers for %s: %w", opName, err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint,
			bytes.NewReader(jsonBody))
		if err != nil {
			return nil, fmt.Errorf("creating GQL request: %w", err)
		}

		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", constants.DefaultUserAgent)
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if attempt < c.maxRetries {
				c.log.Debug("GQL request failed, will retry",
					"operation", opName,
					"attempt", fmt.Sprintf("%d/%d", attempt+1, c.maxRetries),
					"error", err)
				continue
			}
			c.breaker.recordFailure()
			c.log.Warn("GQL request failed after all retries",
				"operation", opName,
				"attempts", c.maxRetries+1,
				"error", err)
			return nil, fmt.Errorf("%w: request for %s failed: %w", ErrTransport, opName, err)
		}

		body, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		resp.Body.Close()

		if readErr != nil {
			if attempt < c.maxRetries {
				c.log.Debug("Failed to read GQL response, will retry",
					"operation", opName,
					"attempt", fmt.Sprintf("%d/%d", attempt+1, c.maxRetries),
					"error", readErr)
				continue
			}
			c.breaker.recordFailure()
			return nil, fmt.Errorf("%w: reading response for %s: %w", ErrTransport, opName, readErr)
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			if attempt < c.maxRetries {
				c.log.Debug("GQL request returned retryable status, will retry",
					"operation", opName,
					"status", resp.StatusCode,
					"attempt", fmt.Sprintf("%d/%d", attempt+1, c.maxRetries))
				continue
			}
			c.breaker.recordFailure()
			c.log.Warn("GQL request returned retryable status after all retries",
				"operation", opName,
				"status", resp.StatusCode,
				"attempts", c.maxRetries+1)
			return nil, fmt.Errorf("%w: request for %s returned status %d after %d retries",
				ErrTransport, opName, resp.StatusCode, c.maxRetries)
		}

		if resp.StatusCode != http.StatusOK {
			c.breaker.recordFailure()
			return nil, fmt.Errorf("%w: request for %s returned status %d: %s",
				ErrTransport, opName, resp.StatusCode, strings.TrimSpace(string(body)))
		}

		c.breaker.recordSuccess()
		c.log.Debug("GQL request completed",
			"operation", opName,
			"status", resp.StatusCode)

		return body, nil
	}

	c.breaker.recordFailure()
	return nil, fmt.Errorf("%w: request for %s exhausted retries", ErrTransport, opName)
}
