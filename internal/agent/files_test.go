package agent

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
)

const uploadedFileJSON = `{"id":"f1","user_id":"42","session_id":"s1","filename":"notes.md","file_type":"text/markdown","file_size":11,"processing_status":"processing","uploaded_at":"2026-01-02T10:00:00"}`

func TestUploadFile(t *testing.T) {
	client, _ := newTestClient(t, true, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/files/upload" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.URL.Query().Get("session_id"); got != "s1" {
			t.Errorf("expected session_id s1, got %q", got)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("failed to read multipart file: %v", err)
			http.Error(w, "bad upload", http.StatusBadRequest)
			return
		}
		defer file.Close()
		if header.Filename != "notes.md" {
			t.Errorf("expected filename notes.md, got %q", header.Filename)
		}
		content, _ := io.ReadAll(file)
		if string(content) != "hello world" {
			t.Errorf("unexpected file content %q", content)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, envelope(uploadedFileJSON))
	})

	uploaded, err := client.UploadFile(context.Background(), "s1", "/tmp/dir/notes.md", strings.NewReader("hello world"))
	if err != nil {
		t.Fatalf("UploadFile failed: %v", err)
	}
	if uploaded.ID != "f1" || uploaded.Filename != "notes.md" {
		t.Errorf("unexpected upload record %+v", uploaded)
	}
	if uploaded.ProcessingStatus != FileProcessing {
		t.Errorf("expected processing status, got %q", uploaded.ProcessingStatus)
	}
}

func TestUploadFileReplaysBodyAfter401(t *testing.T) {
	var calls atomic.Int32
	client, refreshCalls := newTestClient(t, true, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"detail":"Invalid or expired token"}`)
			return
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			t.Errorf("retried upload lost its body: %v", err)
			http.Error(w, "bad upload", http.StatusBadRequest)
			return
		}
		defer file.Close()
		content, _ := io.ReadAll(file)
		if string(content) != "hello world" {
			t.Errorf("retried upload body changed: %q", content)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, envelope(uploadedFileJSON))
	})

	_, err := client.UploadFile(context.Background(), "", "notes.md", strings.NewReader("hello world"))
	if err != nil {
		t.Fatalf("UploadFile failed: %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("expected 2 upload attempts, got %d", got)
	}
	if got := refreshCalls.Load(); got != 1 {
		t.Errorf("expected 1 refresh, got %d", got)
	}
}

func TestListFiles(t *testing.T) {
	client, _ := newTestClient(t, true, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/files" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("session_id") != "s1" || q.Get("limit") != "5" || q.Get("offset") != "10" {
			t.Errorf("unexpected query %q", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, envelope("["+uploadedFileJSON+"]"))
	})

	files, err := client.ListFiles(context.Background(), "s1", 5, 10)
	if err != nil {
		t.Fatalf("ListFiles failed: %v", err)
	}
	if len(files) != 1 || files[0].Filename != "notes.md" {
		t.Errorf("unexpected files %+v", files)
	}
}

func TestDeleteFile(t *testing.T) {
	client, _ := newTestClient(t, true, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete || r.URL.Path != "/files/f1" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, envelope(`{"file_id":"f1"}`))
	})

	if err := client.DeleteFile(context.Background(), "f1"); err != nil {
		t.Fatalf("DeleteFile failed: %v", err)
	}
}
