package update

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNormalizeVersion(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "trim v prefix", input: "v1.2.3", want: "1.2.3"},
		{name: "strip suffix", input: "1.2.3-beta1", want: "1.2.3"},
		{name: "whitespace", input: "  v2.0  ", want: "2.0"},
		{name: "non-numeric", input: "dev", want: ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := NormalizeVersion(tc.input); got != tc.want {
				t.Fatalf("NormalizeVersion(%q)=%q, want %q", tc.input, got, tc.want)
			}
		})
	}
}

func TestCompareVersionStrings(t *testing.T) {
	tests := []struct {
		name     string
		a        string
		b        string
		wantCmp  int
		wantOkay bool
	}{
		{name: "equal different lengths", a: "1.2", b: "1.2.0", wantCmp: 0, wantOkay: true},
		{name: "less than", a: "1.2.3", b: "1.10.0", wantCmp: -1, wantOkay: true},
		{name: "greater than", a: "2.0", b: "1.9.9", wantCmp: 1, wantOkay: true},
		{name: "invalid", a: "1.a", b: "1.2.3", wantCmp: 0, wantOkay: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cmp, ok := CompareVersionStrings(tc.a, tc.b)
			if ok != tc.wantOkay {
				t.Fatalf("CompareVersionStrings(%q,%q) ok=%v, want %v", tc.a, tc.b, ok, tc.wantOkay)
			}
			if !ok {
				return
			}
			if cmp != tc.wantCmp {
				t.Fatalf("CompareVersionStrings(%q,%q)=%d, want %d", tc.a, tc.b, cmp, tc.wantCmp)
			}
		})
	}
}

func TestIsVersionOutdated(t *testing.T) {
	tests := []struct {
		name    string
		current string
		latest  string
		want    bool
	}{
		{name: "older", current: "v1.0.0", latest: "v1.1.0", want: true},
		{name: "same", current: "v1.1.0", latest: "v1.1.0", want: false},
		{name: "newer", current: "v1.2.0", latest: "v1.1.0", want: false},
		{name: "dev build", current: "dev", latest: "v1.1.0", want: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsVersionOutdated(tc.current, tc.latest); got != tc.want {
				t.Fatalf("IsVersionOutdated(%q,%q)=%v, want %v", tc.current, tc.latest, got, tc.want)
			}
		})
	}
}

func TestShouldCheckForUpdates(t *testing.T) {
	if !ShouldCheckForUpdates(nil) {
		t.Error("nil state should trigger a check")
	}
	if !ShouldCheckForUpdates(&State{}) {
		t.Error("zero LastChecked should trigger a check")
	}
	if ShouldCheckForUpdates(&State{LastChecked: time.Now()}) {
		t.Error("recent check should not trigger another")
	}
	if !ShouldCheckForUpdates(&State{LastChecked: time.Now().Add(-25 * time.Hour)}) {
		t.Error("day-old check should trigger another")
	}
}

func TestFetchLatestRelease(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Location",
			"https://github.com/"+RepoOwner+"/"+RepoName+"/releases/tag/v1.4.2")
		w.WriteHeader(http.StatusFound)
	}))
	defer srv.Close()

	old := releaseBaseURL
	releaseBaseURL = srv.URL
	defer func() { releaseBaseURL = old }()

	info, err := FetchLatestRelease(context.Background())
	if err != nil {
		t.Fatalf("FetchLatestRelease: %v", err)
	}
	if info.TagName != "v1.4.2" {
		t.Fatalf("tag = %q, want v1.4.2", info.TagName)
	}
}

func TestFetchLatestReleaseRejectsNonRedirect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	old := releaseBaseURL
	releaseBaseURL = srv.URL
	defer func() { releaseBaseURL = old }()

	if _, err := FetchLatestRelease(context.Background()); err == nil {
		t.Fatal("expected error for 200 response")
	}
}

func TestStateRoundTrip(t *testing.T) {
	dir := t.TempDir()

	state := &State{
		LastChecked:   time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		LatestVersion: "v1.4.2",
	}
	if err := saveStateToDir(dir, state); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := loadStateFromDir(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !loaded.LastChecked.Equal(state.LastChecked) || loaded.LatestVersion != state.LatestVersion {
		t.Fatalf("round trip mismatch: %+v", loaded)
	}
}

func TestLoadStateMissingFile(t *testing.T) {
	state, err := loadStateFromDir(t.TempDir())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !state.LastChecked.IsZero() {
		t.Fatal("expected empty state")
	}
}
