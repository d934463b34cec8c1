package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"readcast/internal/config"
	"readcast/internal/services"
)

// JobStatus is the lifecycle of a generation job on the backend.
type JobStatus string

const (
	StatusPending JobStatus = "pending"
	StatusReady   JobStatus = "ready"
	StatusFailed  JobStatus = "failed"
)

// Job describes the backend's view of one audio generation request.
type Job struct {
	ID          string
	Status      JobStatus
	ArtifactURL string
	Detail      string
}

// Backend defines the generation operations the pipeline uses. Create is not
// idempotent on the remote side; callers must persist the returned job ID
// before any further call.
type Backend interface {
	Create(ctx context.Context, title, content string) (*Job, error)
	Poll(ctx context.Context, jobID string) (*Job, error)
	Download(ctx context.Context, job *Job, destPath string) (int64, error)
	Ping(ctx context.Context) error
}

// Client talks to the audio generation service over HTTP JSON.
type Client struct {
	baseURL    string
	token      string
	language   string
	httpClient *http.Client
}

var _ Backend = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// New creates a generation client from the generation configuration.
func New(cfg config.Generation, opts ...Option) (*Client, error) {
	token := strings.TrimSpace(cfg.SessionToken)
	if token == "" {
		return nil, errors.New("generation session token required")
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		return nil, errors.New("generation base url required")
	}
	timeout := time.Duration(cfg.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	client := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		language:   strings.TrimSpace(cfg.Language),
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

type createRequest struct {
	Title    string `json:"title"`
	Content  string `json:"content"`
	Language string `json:"language,omitempty"`
}

type jobPayload struct {
	JobID       string `json:"job_id"`
	Status      string `json:"status"`
	ArtifactURL string `json:"artifact_url"`
	Detail      string `json:"detail"`
}

// Create submits article content for audio generation and returns the new
// job. The remote call is billable and not idempotent; a second Create for
// the same article produces a second job.
func (c *Client) Create(ctx context.Context, title, content string) (*Job, error) {
	if strings.TrimSpace(content) == "" {
		return nil, services.Wrap(services.ErrRejected, "generation", "create", "empty content", nil)
	}

	body, err := json.Marshal(createRequest{Title: title, Content: content, Language: c.language})
	if err != nil {
		return nil, fmt.Errorf("encode create request: %w", err)
	}

	payload, err := c.doJSON(ctx, http.MethodPost, "/jobs", bytes.NewReader(body), "create")
	if err != nil {
		return nil, err
	}
	if payload.JobID == "" {
		return nil, services.Wrap(services.ErrTransient, "generation", "create", "backend returned no job id", nil)
	}
	return jobFromPayload(payload), nil
}

// Poll reports the current status of a generation job.
func (c *Client) Poll(ctx context.Context, jobID string) (*Job, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return nil, errors.New("job id required")
	}
	payload, err := c.doJSON(ctx, http.MethodGet, "/jobs/"+jobID, nil, "poll")
	if err != nil {
		return nil, err
	}
	return jobFromPayload(payload), nil
}

// Download streams the finished artifact to destPath and returns its size.
// The write goes through a temp file so a partial download never looks like a
// finished artifact.
func (c *Client) Download(ctx context.Context, job *Job, destPath string) (int64, error) {
	if job == nil || job.ArtifactURL == "" {
		return 0, services.Wrap(services.ErrTransient, "generation", "download", "job has no artifact url", nil)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, job.ArtifactURL, nil)
	if err != nil {
		return 0, fmt.Errorf("build download request: %w", err)
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, services.Wrap(services.ErrTransient, "generation", "download", "request failed", err)
	}
	defer resp.Body.Close()

	if err := c.checkStatus(resp, "download"); err != nil {
		return 0, err
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return 0, fmt.Errorf("create artifact dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(destPath), ".download-*")
	if err != nil {
		return 0, fmt.Errorf("create temp artifact: %w", err)
	}
	size, err := io.Copy(tmp, resp.Body)
	closeErr := tmp.Close()
	if err != nil {
		_ = os.Remove(tmp.Name())
		return 0, services.Wrap(services.ErrTransient, "generation", "download", "stream artifact", err)
	}
	if closeErr != nil {
		_ = os.Remove(tmp.Name())
		return 0, fmt.Errorf("close temp artifact: %w", closeErr)
	}
	if err := os.Rename(tmp.Name(), destPath); err != nil {
		_ = os.Remove(tmp.Name())
		return 0, fmt.Errorf("finalize artifact: %w", err)
	}
	return size, nil
}

// Ping verifies the backend is reachable and the session is valid.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/jobs?limit=1", nil)
	if err != nil {
		return fmt.Errorf("build ping request: %w", err)
	}
	c.authorize(req)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return services.Wrap(services.ErrTransient, "generation", "ping", "request failed", err)
	}
	defer resp.Body.Close()
	return c.checkStatus(resp, "ping")
}

func (c *Client) doJSON(ctx context.Context, method, path string, body io.Reader, operation string) (*jobPayload, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", operation, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "generation", operation, "request failed", err)
	}
	defer resp.Body.Close()

	if err := c.checkStatus(resp, operation); err != nil {
		return nil, err
	}

	var payload jobPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, services.Wrap(services.ErrTransient, "generation", operation, "decode response", err)
	}
	return &payload, nil
}

func (c *Client) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
}

func (c *Client) checkStatus(resp *http.Response, operation string) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return services.Wrap(services.ErrAuth, "generation", operation,
			fmt.Sprintf("backend returned %d; session token likely expired", resp.StatusCode), nil)
	case resp.StatusCode == http.StatusUnprocessableEntity:
		detail := readDetail(resp.Body)
		return services.Wrap(services.ErrRejected, "generation", operation, detail, nil)
	case resp.StatusCode == http.StatusNotFound:
		return services.Wrap(services.ErrNotFound, "generation", operation,
			fmt.Sprintf("backend returned %d", resp.StatusCode), nil)
	default:
		return services.Wrap(services.ErrTransient, "generation", operation,
			fmt.Sprintf("backend returned %d", resp.StatusCode), nil)
	}
}

func readDetail(body io.Reader) string {
	var payload struct {
		Detail string `json:"detail"`
	}
	if err := json.NewDecoder(io.LimitReader(body, 4096)).Decode(&payload); err == nil && payload.Detail != "" {
		return payload.Detail
	}
	return "backend rejected the input"
}

func jobFromPayload(payload *jobPayload) *Job {
	job := &Job{
		ID:          payload.JobID,
		ArtifactURL: payload.ArtifactURL,
		Detail:      payload.Detail,
	}
	switch strings.ToLower(strings.TrimSpace(payload.Status)) {
	case "ready", "complete", "completed", "succeeded":
		job.Status = StatusReady
	case "failed", "error":
		job.Status = StatusFailed
	default:
		job.Status = StatusPending
	}
	return job
}
