package apiclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestSubmitUploadsFileAndFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "meeting.wav")
	if err := os.WriteFile(path, []byte("audio"), 0o644); err != nil {
		t.Fatal(err)
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/transcribe" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatal(err)
		}
		if r.FormValue("language") != "en-US" {
			t.Errorf("language = %q", r.FormValue("language"))
		}
		file, header, err := r.FormFile("audio")
		if err != nil {
			t.Fatal(err)
		}
		file.Close()
		if header.Filename != "meeting.wav" {
			t.Errorf("filename = %q", header.Filename)
		}
		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte(`{"job_id":"abc","status":"queued"}`))
	}))
	defer server.Close()

	client := New(server.URL)
	result, err := client.Submit(context.Background(), path, map[string]string{"language": "en-US"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if result.JobID != "abc" {
		t.Errorf("job id = %q", result.JobID)
	}
}

func TestSubmitMissingFile(t *testing.T) {
	client := New("127.0.0.1:0")
	if _, err := client.Submit(context.Background(), "/does/not/exist.wav", nil); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestErrorPayloadSurfaced(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"job not found"}`))
	}))
	defer server.Close()

	client := New(server.URL)
	_, err := client.Job(context.Background(), "missing")
	if err == nil {
		t.Fatal("expected error")
	}
	if got := err.Error(); got != "daemon returned 404: job not found" {
		t.Errorf("err = %q", got)
	}
}

func TestNewPromotesBareHostPort(t *testing.T) {
	client := New("127.0.0.1:7823")
	if client.baseURL != "http://127.0.0.1:7823" {
		t.Errorf("baseURL = %q", client.baseURL)
	}
}
