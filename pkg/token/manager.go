// Package token owns the Kiro credential lifecycle: it hands out a
// valid access token to concurrent callers and serializes refreshes so
// that at most one refresh call is in flight at any time.
package token

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/karthick-kk/kiro-gateway/pkg/credential"
	"github.com/karthick-kk/kiro-gateway/pkg/observability"
)

// DefaultRefreshLead is how long before expiry a token is treated as
// needing refresh.
const DefaultRefreshLead = 600 * time.Second

// forceCoalesceWindow suppresses a forced refresh when another caller
// completed one this recently. Keeps a burst of 403-triggered retries
// from hammering the refresh endpoint.
const forceCoalesceWindow = 10 * time.Second

// AuthError indicates that a token refresh failed and no valid
// credential is available.
type AuthError struct {
	Cause error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("token refresh failed: %s", e.Cause.Error())
}

func (e *AuthError) Unwrap() error { return e.Cause }

// Manager refreshes the credential ahead of expiry and persists every
// successful refresh. It is safe for concurrent use; the fast path does
// not block.
type Manager struct {
	store      *credential.Store
	httpClient *http.Client
	refreshURL string
	lead       time.Duration
	logger     *slog.Logger
	now        func() time.Time

	mu          sync.Mutex
	lastRefresh time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithHTTPClient sets the HTTP client used for refresh calls.
func WithHTTPClient(c *http.Client) Option {
	return func(m *Manager) { m.httpClient = c }
}

// WithRefreshLead overrides the refresh lead time.
func WithRefreshLead(d time.Duration) Option {
	return func(m *Manager) { m.lead = d }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithClock overrides the time source. Used in tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a Manager around a loaded credential store.
// refreshURL is the full refresh endpoint, e.g.
// https://prod.us-east-1.auth.desktop.kiro.dev/refreshToken.
func NewManager(store *credential.Store, refreshURL string, opts ...Option) *Manager {
	m := &Manager{
		store:      store,
		refreshURL: refreshURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		lead:       DefaultRefreshLead,
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Token returns a valid access token, refreshing first when the current
// credential expires within the lead window. When N callers race on an
// expired credential, exactly one performs the network refresh; the
// rest wait on the critical section and reuse the result.
func (m *Manager) Token(ctx context.Context) (string, error) {
	cred := m.current()
	if !cred.ExpiresWithin(m.lead, m.now()) {
		return cred.AccessToken, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Re-check under the lock: another caller may have refreshed while
	// we waited.
	cred = m.store.Current()
	if !cred.ExpiresWithin(m.lead, m.now()) {
		return cred.AccessToken, nil
	}

	if err := m.refreshLocked(ctx); err != nil {
		return "", &AuthError{Cause: err}
	}
	return m.store.Current().AccessToken, nil
}

// ForceRefresh refreshes the credential regardless of its recorded
// expiry. It is used after an upstream 403, where the token is known
// bad even though it looks fresh. A refresh completed by another caller
// within the coalescing window is reused instead.
func (m *Manager) ForceRefresh(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.now().Sub(m.lastRefresh) < forceCoalesceWindow {
		return m.store.Current().AccessToken, nil
	}

	if err := m.refreshLocked(ctx); err != nil {
		return "", &AuthError{Cause: err}
	}
	return m.store.Current().AccessToken, nil
}

// current reads the credential without taking the refresh lock.
func (m *Manager) current() credential.Credential {
	return m.store.Current()
}

// refreshRequest is the body sent to the refresh endpoint.
type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// refreshResponse is the body returned by the refresh endpoint.
type refreshResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int    `json:"expiresIn"`
	ProfileArn   string `json:"profileArn"`
}

// refreshLocked performs the network refresh and persists the result.
// Caller must hold m.mu.
func (m *Manager) refreshLocked(ctx context.Context) error {
	cred := m.store.Current()

	body, err := json.Marshal(refreshRequest{RefreshToken: cred.RefreshToken})
	if err != nil {
		return fmt.Errorf("encoding refresh request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.refreshURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		observability.TokenRefreshTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("refresh call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		observability.TokenRefreshTotal.WithLabelValues("error").Inc()
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("refresh endpoint returned HTTP %d: %s", resp.StatusCode, string(data))
	}

	var rr refreshResponse
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
		observability.TokenRefreshTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("parsing refresh response: %w", err)
	}
	if rr.AccessToken == "" {
		observability.TokenRefreshTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("refresh response has no access token")
	}

	next := cred
	next.AccessToken = rr.AccessToken
	if rr.RefreshToken != "" {
		next.RefreshToken = rr.RefreshToken
	}
	if rr.ProfileArn != "" {
		next.ProfileArn = rr.ProfileArn
	}
	if rr.ExpiresIn > 0 {
		next.ExpiresAt = m.now().Add(time.Duration(rr.ExpiresIn) * time.Second)
	}

	if err := m.store.Save(next); err != nil {
		// The refreshed token is still usable for this process even if
		// persisting it failed.
		m.logger.Warn("persisting refreshed credential failed", "error", err.Error())
	}

	m.lastRefresh = m.now()
	observability.TokenRefreshTotal.WithLabelValues("success").Inc()
	m.logger.Info("credential refreshed", "expires_at", next.ExpiresAt)
	return nil
}
