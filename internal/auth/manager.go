// Package auth owns the access/refresh token pair for the backend. It hands
// out access tokens that are still comfortably inside their lifetime,
// refreshes expired ones through a single shared network call no matter how
// many callers need one at once, and keeps the pair mirrored between the
// credentials file and the cookie jar.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// ErrUnauthenticated means no usable credential exists and none can be
// obtained without a new login. Callers should send the user to `login`.
var ErrUnauthenticated = errors.New("not authenticated (run 'term-agent login')")

// RefreshError is returned when the backend rejected or failed a token
// refresh. The stored pair is cleared before this is returned, so every
// caller that shared the refresh sees the same terminal failure.
type RefreshError struct {
	StatusCode int
	Err        error
}

func (e *RefreshError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("token refresh failed: %v", e.Err)
	}
	return fmt.Sprintf("token refresh failed: server returned %d", e.StatusCode)
}

func (e *RefreshError) Unwrap() error { return e.Err }

const refreshTimeout = 30 * time.Second

// Manager implements the credential lifecycle: load, expiry check, refresh,
// logout. At most one refresh request is in flight at any time; concurrent
// callers wait on it and share its outcome.
type Manager struct {
	store   *Store
	baseURL string
	client  *http.Client

	group singleflight.Group

	mu    sync.Mutex
	creds *Credentials
}

// NewManager creates a Manager that refreshes against baseURL using client.
// A nil client falls back to http.DefaultClient.
func NewManager(baseURL string, store *Store, client *http.Client) *Manager {
	if client == nil {
		client = http.DefaultClient
	}
	return &Manager{store: store, baseURL: baseURL, client: client}
}

// Jar returns the cookie jar shared with the credential store.
func (m *Manager) Jar() http.CookieJar { return m.store.Jar() }

// AccessToken returns an access token that is valid for at least the safety
// margin. When the stored token still has lifetime left this returns
// immediately with no I/O. Otherwise the token is refreshed; concurrent
// callers coalesce onto one refresh request and all receive its result.
func (m *Manager) AccessToken(ctx context.Context) (string, error) {
	creds, err := m.current()
	if err != nil {
		return "", err
	}
	if creds == nil || creds.AccessToken == "" {
		return "", ErrUnauthenticated
	}

	if claims, err := DecodeClaims(creds.AccessToken); err == nil && claims.Usable(time.Now()) {
		return creds.AccessToken, nil
	}

	// Expired or undecodable: refresh. Undecodable access tokens go the
	// same route because the refresh token is what decides recoverability.
	return m.refresh(ctx)
}

// Refresh forces a refresh regardless of the stored token's remaining
// lifetime. Used after the server rejects a request with 401: the local
// expiry prediction was wrong, so a new token is fetched before the single
// permitted retry.
func (m *Manager) Refresh(ctx context.Context) (string, error) {
	return m.refresh(ctx)
}

// SetPair replaces the stored credential pair, e.g. after login or register.
func (m *Manager) SetPair(access, refresh string) error {
	creds := &Credentials{AccessToken: access, RefreshToken: refresh}
	if err := m.store.Save(creds); err != nil {
		return err
	}
	m.mu.Lock()
	m.creds = creds
	m.mu.Unlock()
	return nil
}

// Clear drops the credential pair from memory and both storage locations.
func (m *Manager) Clear() error {
	m.mu.Lock()
	m.creds = nil
	m.mu.Unlock()
	return m.store.Clear()
}

// Authenticated reports whether any credential pair is stored. It does not
// guarantee the pair is still accepted by the server.
func (m *Manager) Authenticated() bool {
	creds, err := m.current()
	return err == nil && creds != nil && creds.AccessToken != ""
}

// current returns the cached pair, loading it from the store on first use.
func (m *Manager) current() (*Credentials, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.creds != nil {
		return m.creds, nil
	}
	creds, err := m.store.Load()
	if err != nil {
		return nil, err
	}
	m.creds = creds
	return creds, nil
}

// refresh coalesces concurrent refresh attempts into one network call via
// singleflight. All waiters receive the same token or the same error.
func (m *Manager) refresh(ctx context.Context) (string, error) {
	token, err, _ := m.group.Do("refresh", func() (interface{}, error) {
		return m.doRefresh()
	})
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return token.(string), nil
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// doRefresh performs the one refresh round trip. It runs under singleflight,
// with its own timeout rather than any single caller's context, because its
// result is shared by every waiter. Any failure clears stored credentials:
// a pair the server refused to renew is dead weight.
func (m *Manager) doRefresh() (string, error) {
	creds, err := m.current()
	if err != nil {
		return "", err
	}
	if creds == nil || creds.RefreshToken == "" {
		m.Clear()
		return "", ErrUnauthenticated
	}

	// A refresh token that is itself expired cannot succeed; skip the
	// network call entirely.
	if claims, err := DecodeClaims(creds.RefreshToken); err != nil || claims.Expired(time.Now()) {
		m.Clear()
		return "", ErrUnauthenticated
	}

	body, err := json.Marshal(refreshRequest{RefreshToken: creds.RefreshToken})
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/auth/refresh", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		m.Clear()
		return "", &RefreshError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		m.Clear()
		return "", &RefreshError{StatusCode: resp.StatusCode}
	}

	var pair tokenPair
	if err := json.NewDecoder(resp.Body).Decode(&pair); err != nil {
		m.Clear()
		return "", &RefreshError{Err: fmt.Errorf("parse refresh response: %w", err)}
	}
	if pair.AccessToken == "" {
		m.Clear()
		return "", &RefreshError{Err: errors.New("refresh response missing access token")}
	}

	if err := m.SetPair(pair.AccessToken, pair.RefreshToken); err != nil {
		return "", err
	}
	return pair.AccessToken, nil
}
