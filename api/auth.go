package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/jpillora/backoff"
	"github.com/rs/zerolog"

	"github.com/wricardo/simutrador-go/observability"
)

const (
	authTimeout = 10 * time.Second
	tokenPath   = "/auth/token"

	// Tokens this close to expiry are treated as already expired so a
	// connection opened with them does not outlive its credential.
	expiryBuffer = 5 * time.Minute
)

// AuthError reports an authentication failure. StatusCode is zero when the
// request never reached the server.
type AuthError struct {
	StatusCode int
	Message    string
}

func (e *AuthError) Error() string {
	if e.StatusCode == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s (status %d)", e.Message, e.StatusCode)
}

// TokenResponse is the body of a successful token exchange.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	UserID      string `json:"user_id"`
}

// TokenInfo describes the cached token for display. Token is truncated so
// it can be logged.
type TokenInfo struct {
	Token     string
	UserID    string
	ExpiresAt time.Time
}

// AuthClient exchanges an API key for a JWT with the auth server and caches
// the token until shortly before it expires. Safe for concurrent use.
type AuthClient struct {
	serverURL   string
	httpClient  *http.Client
	log         zerolog.Logger
	maxAttempts int

	mu        sync.Mutex
	token     string
	userID    string
	expiresAt time.Time
}

// AuthOption customizes an AuthClient.
type AuthOption func(*AuthClient)

// WithAuthLogger sets the client's logger. Defaults to a disabled logger.
func WithAuthLogger(log zerolog.Logger) AuthOption {
	return func(a *AuthClient) { a.log = log }
}

// WithAuthHTTPClient replaces the underlying HTTP client.
func WithAuthHTTPClient(c *http.Client) AuthOption {
	return func(a *AuthClient) { a.httpClient = c }
}

// WithAuthMaxAttempts sets how many times a retryable failure is attempted.
func WithAuthMaxAttempts(n int) AuthOption {
	return func(a *AuthClient) {
		if n > 0 {
			a.maxAttempts = n
		}
	}
}

// NewAuthClient builds a client for the given auth server base URL.
func NewAuthClient(serverURL string, opts ...AuthOption) *AuthClient {
	a := &AuthClient{
		serverURL:   strings.TrimRight(serverURL, "/"),
		httpClient:  &http.Client{Timeout: authTimeout},
		log:         zerolog.Nop(),
		maxAttempts: 3,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Login exchanges the API key for a JWT and caches it. Invalid keys and
// rate limits fail immediately; network errors and 5xx replies are retried
// with exponential backoff up to the configured attempt limit.
func (a *AuthClient) Login(ctx context.Context, apiKey string) (*TokenResponse, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, &AuthError{Message: "API key cannot be empty"}
	}

	retry := &backoff.Backoff{
		Min:    200 * time.Millisecond,
		Max:    5 * time.Second,
		Jitter: true,
	}

	var lastErr error
	for attempt := 1; attempt <= a.maxAttempts; attempt++ {
		if attempt > 1 {
			wait := retry.Duration()
			a.log.Debug().Int("attempt", attempt).Dur("wait", wait).Msg("Retrying token exchange")
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		tr, retryable, err := a.exchange(ctx, apiKey)
		if err == nil {
			a.cache(tr)
			a.log.Info().Str("user_id", tr.UserID).Msg("Authentication successful")
			return tr, nil
		}
		lastErr = err
		if !retryable {
			return nil, err
		}
	}
	return nil, lastErr
}

// exchange performs one POST /auth/token round trip. The bool reports
// whether the failure is worth retrying.
func (a *AuthClient) exchange(ctx context.Context, apiKey string) (*TokenResponse, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.serverURL+tokenPath, strings.NewReader("{}"))
	if err != nil {
		return nil, false, &AuthError{Message: fmt.Sprintf("failed to build token request: %v", err)}
	}
	req.Header.Set("X-API-Key", apiKey)
	req.Header.Set("Content-Type", "application/json")

	started := time.Now()
	resp, err := a.httpClient.Do(req)
	if err != nil {
		observability.RecordHTTPRequest("auth", 0, time.Since(started))
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		a.log.Warn().Err(err).Msg("Network error during authentication")
		return nil, true, &AuthError{Message: fmt.Sprintf("network error: %v", err)}
	}
	defer resp.Body.Close()
	observability.RecordHTTPRequest("auth", resp.StatusCode, time.Since(started))

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, false, &AuthError{StatusCode: resp.StatusCode, Message: "invalid API key"}
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, false, &AuthError{StatusCode: resp.StatusCode, Message: "rate limit exceeded"}
	case resp.StatusCode >= 500:
		return nil, true, &AuthError{StatusCode: resp.StatusCode, Message: "authentication failed"}
	case resp.StatusCode != http.StatusOK:
		return nil, false, &AuthError{StatusCode: resp.StatusCode, Message: "authentication failed"}
	}

	var tr TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, false, &AuthError{Message: "invalid response from auth server"}
	}
	if tr.AccessToken == "" {
		return nil, false, &AuthError{Message: "auth server returned no token"}
	}
	return &tr, false, nil
}

func (a *AuthClient) cache(tr *TokenResponse) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.token = tr.AccessToken
	a.userID = tr.UserID
	a.expiresAt = time.Now().UTC().Add(time.Duration(tr.ExpiresIn) * time.Second)
}

// CachedToken returns the cached JWT when it is still comfortably inside
// its lifetime. Nearly expired tokens are dropped and reported as absent.
func (a *AuthClient) CachedToken() (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.token == "" {
		return "", false
	}
	if time.Now().UTC().After(a.expiresAt.Add(-expiryBuffer)) {
		a.token = ""
		a.userID = ""
		a.expiresAt = time.Time{}
		return "", false
	}
	return a.token, true
}

// IsAuthenticated reports whether a valid token is cached.
func (a *AuthClient) IsAuthenticated() bool {
	_, ok := a.CachedToken()
	return ok
}

// TokenInfo returns display information about the cached token, or false
// when no valid token is cached.
func (a *AuthClient) TokenInfo() (TokenInfo, bool) {
	token, ok := a.CachedToken()
	if !ok {
		return TokenInfo{}, false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	display := token
	if len(display) > 20 {
		display = display[:20] + "..."
	}
	return TokenInfo{Token: display, UserID: a.userID, ExpiresAt: a.expiresAt}, true
}

// Logout clears the cached token.
func (a *AuthClient) Logout() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.log.Info().Msg("Clearing cached authentication token")
	a.token = ""
	a.userID = ""
	a.expiresAt = time.Time{}
}

// Refresh drops the cached token and performs a fresh exchange.
func (a *AuthClient) Refresh(ctx context.Context, apiKey string) (*TokenResponse, error) {
	a.Logout()
	return a.Login(ctx, apiKey)
}

// WebSocketURL appends the cached token to a WebSocket endpoint as a query
// parameter. Fails when no valid token is cached.
func (a *AuthClient) WebSocketURL(baseWSURL string) (string, error) {
	token, ok := a.CachedToken()
	if !ok {
		return "", &AuthError{Message: "not authenticated, login first"}
	}
	sep := "?"
	if strings.Contains(baseWSURL, "?") {
		sep = "&"
	}
	return baseWSURL + sep + "token=" + token, nil
}
