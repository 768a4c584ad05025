package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
)

func TestCreateSession(t *testing.T) {
	client, _ := newTestClient(t, true, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/chat/sessions" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var req struct {
			Title string `json:"title"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode body: %v", err)
		}
		if req.Title != "Trip planning" {
			t.Errorf("expected title, got %q", req.Title)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, envelope(`{"id":"s1","user_id":"42","title":"Trip planning","is_archived":false,"created_at":"2026-01-02T10:00:00","updated_at":"2026-01-02T10:00:00"}`))
	})

	session, err := client.CreateSession(context.Background(), "Trip planning")
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if session.ID != "s1" || session.Title != "Trip planning" {
		t.Errorf("unexpected session %+v", session)
	}
}

func TestRenameSessionSendsPatch(t *testing.T) {
	client, _ := newTestClient(t, true, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch || r.URL.Path != "/chat/sessions/s1" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var req map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode body: %v", err)
		}
		if req["title"] != "Renamed" {
			t.Errorf("unexpected body %v", req)
		}
		if _, ok := req["is_archived"]; ok {
			t.Error("rename must not send is_archived")
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, envelope(`{"id":"s1","user_id":"42","title":"Renamed","is_archived":false,"created_at":"2026-01-02T10:00:00","updated_at":"2026-01-02T11:00:00"}`))
	})

	session, err := client.RenameSession(context.Background(), "s1", "Renamed")
	if err != nil {
		t.Fatalf("RenameSession failed: %v", err)
	}
	if session.Title != "Renamed" {
		t.Errorf("expected renamed session, got %+v", session)
	}
}

func TestArchiveSessionSendsFlag(t *testing.T) {
	client, _ := newTestClient(t, true, func(w http.ResponseWriter, r *http.Request) {
		var req map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode body: %v", err)
		}
		if req["is_archived"] != true {
			t.Errorf("expected is_archived true, got %v", req)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, envelope(`{"id":"s1","user_id":"42","is_archived":true,"created_at":"2026-01-02T10:00:00","updated_at":"2026-01-02T11:00:00"}`))
	})

	session, err := client.ArchiveSession(context.Background(), "s1", true)
	if err != nil {
		t.Fatalf("ArchiveSession failed: %v", err)
	}
	if !session.IsArchived {
		t.Error("expected archived session")
	}
}

func TestSessionMessages(t *testing.T) {
	client, _ := newTestClient(t, true, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/sessions/s1/messages" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.URL.Query().Get("limit"); got != "20" {
			t.Errorf("expected limit=20, got %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, envelope(`[
			{"id":"m1","session_id":"s1","role":"user","content":"hi","created_at":"2026-01-02T10:00:00"},
			{"id":"m2","session_id":"s1","role":"assistant","content":"hello","meta":{"total_tokens":3},"created_at":"2026-01-02T10:00:05"}
		]`))
	})

	messages, err := client.SessionMessages(context.Background(), "s1", 20, 0)
	if err != nil {
		t.Fatalf("SessionMessages failed: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(messages))
	}
	if messages[0].Role != "user" || messages[1].Role != "assistant" {
		t.Errorf("unexpected roles %q %q", messages[0].Role, messages[1].Role)
	}
	if messages[1].Meta["total_tokens"] != float64(3) {
		t.Errorf("expected meta to survive, got %v", messages[1].Meta)
	}
}

func TestDeleteSession(t *testing.T) {
	client, _ := newTestClient(t, true, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete || r.URL.Path != "/chat/sessions/s1" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, envelope(`{"session_id":"s1"}`))
	})

	if err := client.DeleteSession(context.Background(), "s1"); err != nil {
		t.Fatalf("DeleteSession failed: %v", err)
	}
}
