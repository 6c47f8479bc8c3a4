// Package auth manages OAuth bearer credentials for channels that need
// them: it hands out a valid access token on demand, transparently
// refreshing before expiry.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// expiryMargin is how long before the recorded expiry a token is
// already treated as stale, so outbound calls never race the deadline.
const expiryMargin = 60 * time.Second

var (
	// ErrNoAccessToken means no token is configured and none can be obtained.
	ErrNoAccessToken = errors.New("no access token configured")
	// ErrTokenRefresh means the refresh call failed; the stored tokens are unchanged.
	ErrTokenRefresh = errors.New("token refresh failed")
)

// Credentials holds one channel's OAuth state. Owned by exactly one
// TokenManager; never shared across channel instances.
type Credentials struct {
	AccessToken  string
	RefreshToken string
	ClientID     string
	ClientSecret string
	ExpiresAt    time.Time
}

// TokenManager issues valid bearer tokens, renewing them through the
// refresh_token grant when they go stale. Concurrent callers during a
// refresh await the same in-flight call instead of issuing duplicates.
type TokenManager struct {
	tokenURL string
	client   *http.Client
	now      func() time.Time

	mu    sync.Mutex
	creds Credentials

	group singleflight.Group
}

// NewTokenManager creates a manager around the given credentials.
// tokenURL is the provider's refresh endpoint.
func NewTokenManager(tokenURL string, creds Credentials) *TokenManager {
	return &TokenManager{
		tokenURL: tokenURL,
		client:   &http.Client{Timeout: 30 * time.Second},
		creds:    creds,
		now:      time.Now,
	}
}

// EnsureValid returns a token safe to use for an outbound call. Called
// before every network call; refreshes synchronously when the token is
// stale and a refresh credential is configured.
func (m *TokenManager) EnsureValid(ctx context.Context) (string, error) {
	m.mu.Lock()
	if m.fresh() {
		token := m.creds.AccessToken
		m.mu.Unlock()
		return token, nil
	}
	token := m.creds.AccessToken
	refreshable := m.creds.RefreshToken != ""
	m.mu.Unlock()

	if !refreshable {
		// Without a refresh credential the manager cannot leave Stale:
		// use whatever is configured as-is.
		if token == "" {
			return "", ErrNoAccessToken
		}
		return token, nil
	}

	v, err, _ := m.group.Do("refresh", func() (any, error) {
		return m.refresh(ctx)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// fresh reports whether the stored token is still more than the safety
// margin away from expiry. Callers must hold m.mu.
func (m *TokenManager) fresh() bool {
	if m.creds.AccessToken == "" || m.creds.ExpiresAt.IsZero() {
		return false
	}
	return m.now().Add(expiryMargin).Before(m.creds.ExpiresAt)
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	Error        string `json:"error"`
	ErrorDesc    string `json:"error_description"`
}

// refresh performs one refresh_token grant and records the rotated
// credentials atomically.
func (m *TokenManager) refresh(ctx context.Context) (string, error) {
	m.mu.Lock()
	// A caller that queued behind a completed refresh sees fresh state here.
	if m.fresh() {
		token := m.creds.AccessToken
		m.mu.Unlock()
		return token, nil
	}
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {m.creds.RefreshToken},
		"client_id":     {m.creds.ClientID},
	}
	if m.creds.ClientSecret != "" {
		form.Set("client_secret", m.creds.ClientSecret)
	}
	m.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTokenRefresh, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTokenRefresh, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("%w: read response: %v", ErrTokenRefresh, err)
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrTokenRefresh, err)
	}
	if resp.StatusCode >= 300 || tr.Error != "" {
		return "", fmt.Errorf("%w: status %d: %s %s", ErrTokenRefresh, resp.StatusCode, tr.Error, tr.ErrorDesc)
	}
	if tr.AccessToken == "" {
		return "", fmt.Errorf("%w: provider returned no access_token", ErrTokenRefresh)
	}

	m.mu.Lock()
	m.creds.AccessToken = tr.AccessToken
	if tr.RefreshToken != "" {
		m.creds.RefreshToken = tr.RefreshToken
	}
	m.creds.ExpiresAt = m.now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	m.mu.Unlock()

	slog.Debug("access token refreshed", "expiresIn", tr.ExpiresIn, "rotated", tr.RefreshToken != "")
	return tr.AccessToken, nil
}
