package auth

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"path/filepath"
	"time"
)

const (
	credentialsFile = "credentials.json"
	cookiesFile     = "cookies.json"

	accessCookie  = "access_token"
	refreshCookie = "refresh_token"
)

// Credentials is the access/refresh token pair issued by the backend.
type Credentials struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Store persists the credential pair in two places: a JSON file (the
// authoritative copy) and a cookie jar scoped to the backend host, mirroring
// how the web client carries the same tokens as cookies. Every write goes
// through sync so the two locations cannot drift; on read the file wins and
// the jar is only consulted when the file is missing.
type Store struct {
	dir    string
	server *url.URL
	jar    http.CookieJar
}

// NewStore creates a credential store rooted at dir for the given backend
// base URL. The cookie jar is seeded from any previously persisted cookies.
func NewStore(dir string, server *url.URL) (*Store, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	s := &Store{dir: dir, server: server, jar: jar}
	if err := s.loadCookies(); err != nil {
		// A corrupt cookie file should not lock the user out; the
		// credentials file is authoritative anyway.
		fmt.Fprintf(os.Stderr, "warning: failed to load cookies: %v\n", err)
	}
	return s, nil
}

// DefaultDir returns the XDG data directory for term-agent.
// Uses $XDG_DATA_HOME if set, otherwise ~/.local/share
func DefaultDir() (string, error) {
	if xdgData := os.Getenv("XDG_DATA_HOME"); xdgData != "" {
		return filepath.Join(xdgData, "term-agent"), nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "term-agent"), nil
}

// Jar exposes the cookie jar so the HTTP client talking to the backend
// carries the same cookies the web client would.
func (s *Store) Jar() http.CookieJar {
	return s.jar
}

// Load returns the stored credential pair, or nil if none exists. When the
// credentials file is absent but the cookie jar still holds a pair, the pair
// is recovered from the jar and mirrored back into the file.
func (s *Store) Load() (*Credentials, error) {
	creds, err := s.readFile()
	if err != nil {
		return nil, err
	}
	if creds != nil && creds.AccessToken != "" {
		return creds, nil
	}

	recovered := s.cookieCredentials()
	if recovered == nil {
		return nil, nil
	}
	if err := s.writeFile(recovered); err != nil {
		return nil, fmt.Errorf("mirror recovered credentials: %w", err)
	}
	return recovered, nil
}

// Save stores the pair in the credentials file and syncs the cookie mirror.
func (s *Store) Save(creds *Credentials) error {
	if err := s.writeFile(creds); err != nil {
		return err
	}
	return s.sync(creds)
}

// Clear removes the pair from both locations.
func (s *Store) Clear() error {
	path := filepath.Join(s.dir, credentialsFile)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove credentials: %w", err)
	}
	// Expire the cookies in the live jar, then persist the empty state.
	s.jar.SetCookies(s.server, []*http.Cookie{
		{Name: accessCookie, Value: "", Path: "/", MaxAge: -1},
		{Name: refreshCookie, Value: "", Path: "/", MaxAge: -1},
	})
	cookiePath := filepath.Join(s.dir, cookiesFile)
	if err := os.Remove(cookiePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove cookies: %w", err)
	}
	return nil
}

// sync rewrites the cookie jar and its on-disk copy from the given pair.
// The jar API strips attributes on read, so the disk copy is written from
// the pair directly to keep real expiries.
func (s *Store) sync(creds *Credentials) error {
	expires := time.Now().Add(7 * 24 * time.Hour)
	if claims, err := DecodeClaims(creds.RefreshToken); err == nil && !claims.ExpiresAt.IsZero() {
		expires = claims.ExpiresAt
	}
	s.jar.SetCookies(s.server, []*http.Cookie{
		{Name: accessCookie, Value: creds.AccessToken, Path: "/", Expires: expires},
		{Name: refreshCookie, Value: creds.RefreshToken, Path: "/", Expires: expires},
	})
	return s.writeCookies(creds, expires)
}

func (s *Store) readFile() (*Credentials, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, credentialsFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read credentials: %w", err)
	}
	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}
	return &creds, nil
}

func (s *Store) writeFile(creds *Credentials) error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}
	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return err
	}
	path := filepath.Join(s.dir, credentialsFile)
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write credentials: %w", err)
	}
	return nil
}

// storedCookie is the on-disk form of one jar cookie.
type storedCookie struct {
	Name    string    `json:"name"`
	Value   string    `json:"value"`
	Path    string    `json:"path,omitempty"`
	Expires time.Time `json:"expires,omitempty"`
}

func (s *Store) cookieCredentials() *Credentials {
	creds := &Credentials{}
	for _, c := range s.jar.Cookies(s.server) {
		switch c.Name {
		case accessCookie:
			creds.AccessToken = c.Value
		case refreshCookie:
			creds.RefreshToken = c.Value
		}
	}
	if creds.AccessToken == "" && creds.RefreshToken == "" {
		return nil
	}
	return creds
}

func (s *Store) loadCookies() error {
	data, err := os.ReadFile(filepath.Join(s.dir, cookiesFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	var stored []storedCookie
	if err := json.Unmarshal(data, &stored); err != nil {
		return err
	}
	now := time.Now()
	cookies := make([]*http.Cookie, 0, len(stored))
	for _, c := range stored {
		if !c.Expires.IsZero() && c.Expires.Before(now) {
			continue
		}
		cookies = append(cookies, &http.Cookie{
			Name:    c.Name,
			Value:   c.Value,
			Path:    c.Path,
			Expires: c.Expires,
		})
	}
	s.jar.SetCookies(s.server, cookies)
	return nil
}

func (s *Store) writeCookies(creds *Credentials, expires time.Time) error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}
	stored := []storedCookie{
		{Name: accessCookie, Value: creds.AccessToken, Path: "/", Expires: expires},
		{Name: refreshCookie, Value: creds.RefreshToken, Path: "/", Expires: expires},
	}
	data, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		return err
	}
	path := filepath.Join(s.dir, cookiesFile)
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write cookies: %w", err)
	}
	return nil
}
