package auth

import (
	"encoding/json"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func testServerURL(t *testing.T) *url.URL {
	t.Helper()
	u, err := url.Parse("http://localhost:8000")
	if err != nil {
		t.Fatalf("failed to parse url: %v", err)
	}
	return u
}

func TestStoreSaveLoad(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir, testServerURL(t))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	creds := &Credentials{
		AccessToken:  signToken(t, "access", 30*time.Minute),
		RefreshToken: signToken(t, "refresh", 7*24*time.Hour),
	}
	if err := store.Save(creds); err != nil {
		t.Fatalf("failed to save credentials: %v", err)
	}

	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("failed to load credentials: %v", err)
	}
	if loaded == nil {
		t.Fatal("expected credentials, got nil")
	}
	if loaded.AccessToken != creds.AccessToken {
		t.Errorf("access token mismatch")
	}
	if loaded.RefreshToken != creds.RefreshToken {
		t.Errorf("refresh token mismatch")
	}

	// Both storage locations must exist after a save.
	if _, err := os.Stat(filepath.Join(dir, credentialsFile)); err != nil {
		t.Errorf("expected credentials file: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, cookiesFile)); err != nil {
		t.Errorf("expected cookies file: %v", err)
	}
}

func TestStoreLoadEmpty(t *testing.T) {
	store, err := NewStore(t.TempDir(), testServerURL(t))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	creds, err := store.Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if creds != nil {
		t.Errorf("expected nil credentials, got %+v", creds)
	}
}

func TestStoreRecoversFromCookies(t *testing.T) {
	dir := t.TempDir()
	server := testServerURL(t)

	access := signToken(t, "access", 30*time.Minute)
	refresh := signToken(t, "refresh", 7*24*time.Hour)

	// Simulate a surviving cookie file with no credentials file, as after
	// a partial wipe or a copy from another machine.
	cookies := []storedCookie{
		{Name: accessCookie, Value: access, Path: "/", Expires: time.Now().Add(24 * time.Hour)},
		{Name: refreshCookie, Value: refresh, Path: "/", Expires: time.Now().Add(24 * time.Hour)},
	}
	data, err := json.Marshal(cookies)
	if err != nil {
		t.Fatalf("failed to marshal cookies: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, cookiesFile), data, 0600); err != nil {
		t.Fatalf("failed to write cookie file: %v", err)
	}

	store, err := NewStore(dir, server)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("failed to load credentials: %v", err)
	}
	if loaded == nil {
		t.Fatal("expected credentials recovered from cookies")
	}
	if loaded.AccessToken != access {
		t.Errorf("expected access token recovered from cookie")
	}

	// Recovery must mirror the pair back into the primary store.
	if _, err := os.Stat(filepath.Join(dir, credentialsFile)); err != nil {
		t.Errorf("expected credentials file after recovery: %v", err)
	}
}

func TestStoreIgnoresExpiredCookies(t *testing.T) {
	dir := t.TempDir()
	cookies := []storedCookie{
		{Name: accessCookie, Value: "stale", Path: "/", Expires: time.Now().Add(-time.Hour)},
		{Name: refreshCookie, Value: "stale", Path: "/", Expires: time.Now().Add(-time.Hour)},
	}
	data, _ := json.Marshal(cookies)
	if err := os.WriteFile(filepath.Join(dir, cookiesFile), data, 0600); err != nil {
		t.Fatalf("failed to write cookie file: %v", err)
	}

	store, err := NewStore(dir, testServerURL(t))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loaded != nil {
		t.Errorf("expected expired cookies to be ignored, got %+v", loaded)
	}
}

func TestStoreClear(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir, testServerURL(t))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	creds := &Credentials{
		AccessToken:  signToken(t, "access", 30*time.Minute),
		RefreshToken: signToken(t, "refresh", 7*24*time.Hour),
	}
	if err := store.Save(creds); err != nil {
		t.Fatalf("failed to save credentials: %v", err)
	}
	if err := store.Clear(); err != nil {
		t.Fatalf("failed to clear credentials: %v", err)
	}

	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loaded != nil {
		t.Errorf("expected no credentials after clear, got %+v", loaded)
	}
	if _, err := os.Stat(filepath.Join(dir, credentialsFile)); !os.IsNotExist(err) {
		t.Errorf("expected credentials file removed, stat err=%v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, cookiesFile)); !os.IsNotExist(err) {
		t.Errorf("expected cookies file removed, stat err=%v", err)
	}
}
