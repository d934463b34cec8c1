package generation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"readcast/internal/config"
	"readcast/internal/services"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := New(config.Generation{
		BaseURL:        server.URL,
		SessionToken:   "session-token",
		Language:       "en",
		RequestTimeout: 5,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return client, server
}

func TestCreateReturnsJobID(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/jobs" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer session-token" {
			t.Errorf("authorization = %q", got)
		}
		var req struct {
			Title    string `json:"title"`
			Content  string `json:"content"`
			Language string `json:"language"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Title != "Sample" || req.Content == "" || req.Language != "en" {
			t.Errorf("unexpected request body: %+v", req)
		}
		w.Write([]byte(`{"job_id": "job-42", "status": "pending"}`))
	}))

	job, err := client.Create(context.Background(), "Sample", "article text")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if job.ID != "job-42" || job.Status != StatusPending {
		t.Fatalf("unexpected job: %+v", job)
	}
}

func TestCreateRejectedInput(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"detail": "content too short"}`))
	}))

	_, err := client.Create(context.Background(), "Sample", "x")
	if !errors.Is(err, services.ErrRejected) {
		t.Fatalf("error = %v, want ErrRejected", err)
	}
}

func TestCreateAuthFailure(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))

	_, err := client.Create(context.Background(), "Sample", "article text")
	if !errors.Is(err, services.ErrAuth) {
		t.Fatalf("error = %v, want ErrAuth", err)
	}
	if !services.IsSystemic(err) {
		t.Fatal("auth failure should be systemic")
	}
}

func TestPollStatusMapping(t *testing.T) {
	cases := []struct {
		remote string
		want   JobStatus
	}{
		{"pending", StatusPending},
		{"processing", StatusPending},
		{"ready", StatusReady},
		{"completed", StatusReady},
		{"failed", StatusFailed},
	}
	for _, tc := range cases {
		t.Run(tc.remote, func(t *testing.T) {
			client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/jobs/job-42" {
					t.Errorf("path = %s", r.URL.Path)
				}
				w.Write([]byte(`{"job_id": "job-42", "status": "` + tc.remote + `"}`))
			}))

			job, err := client.Poll(context.Background(), "job-42")
			if err != nil {
				t.Fatalf("Poll: %v", err)
			}
			if job.Status != tc.want {
				t.Fatalf("status = %s, want %s", job.Status, tc.want)
			}
		})
	}
}

func TestPollUnknownJob(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	_, err := client.Poll(context.Background(), "ghost")
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestDownloadWritesArtifact(t *testing.T) {
	payload := make([]byte, 4096)
	for i := range payload {
		payload[i] = byte(i)
	}
	client, server := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/artifacts/job-42.mp3" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Write(payload)
	}))

	dest := filepath.Join(t.TempDir(), "nested", "job-42.mp3")
	job := &Job{ID: "job-42", Status: StatusReady, ArtifactURL: server.URL + "/artifacts/job-42.mp3"}

	size, err := client.Download(context.Background(), job, dest)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if size != int64(len(payload)) {
		t.Fatalf("size = %d, want %d", size, len(payload))
	}
	written, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	if len(written) != len(payload) {
		t.Fatalf("artifact bytes = %d, want %d", len(written), len(payload))
	}

	// No temp files should remain next to the artifact.
	entries, err := os.ReadDir(filepath.Dir(dest))
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("leftover files in artifact dir: %d entries", len(entries))
	}
}

func TestDownloadMissingURL(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	_, err := client.Download(context.Background(), &Job{ID: "job-42"}, filepath.Join(t.TempDir(), "out.mp3"))
	if err == nil {
		t.Fatal("expected error for job without artifact url")
	}
}
