// Package apiclient provides programmatic access to a running meetscribed
// instance over its HTTP API. The CLI is its primary consumer.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"meetscribe/internal/archive"
	"meetscribe/internal/jobs"
)

// Client talks to the daemon API at a fixed base URL.
type Client struct {
	baseURL string
	http    *http.Client
}

// New constructs a client for the given bind address or URL. A bare
// host:port is promoted to http://host:port.
func New(address string) *Client {
	address = strings.TrimSpace(address)
	if address != "" && !strings.Contains(address, "://") {
		address = "http://" + address
	}
	return &Client{
		baseURL: strings.TrimRight(address, "/"),
		http:    &http.Client{Timeout: 30 * time.Minute},
	}
}

// Health mirrors the daemon status endpoint.
type Health struct {
	Running      bool         `json:"running"`
	PID          int          `json:"pid"`
	JobCount     int          `json:"job_count"`
	StorePath    string       `json:"store_path"`
	Dependencies []Dependency `json:"dependencies"`
}

// Dependency reports availability of an external tool on the daemon host.
type Dependency struct {
	Name      string `json:"name"`
	Available bool   `json:"available"`
	Detail    string `json:"detail,omitempty"`
}

// JobSummary is the abbreviated job view returned by the list endpoint.
type JobSummary struct {
	ID        string      `json:"id"`
	Filename  string      `json:"filename"`
	Status    jobs.Status `json:"status"`
	Error     string      `json:"error,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// SubmitResult carries the identifier of an accepted transcription job.
type SubmitResult struct {
	JobID  string      `json:"job_id"`
	Status jobs.Status `json:"status"`
}

func (c *Client) Health(ctx context.Context) (*Health, error) {
	var health Health
	if err := c.getJSON(ctx, "/api/health", &health); err != nil {
		return nil, err
	}
	return &health, nil
}

// Submit uploads one audio file for transcription. fields override the
// daemon's default job options (method, language, diarization and so on).
func (c *Client) Submit(ctx context.Context, path string, fields map[string]string) (*SubmitResult, error) {
	body, contentType, err := buildUploadBody([]string{path}, fields)
	if err != nil {
		return nil, err
	}
	var result SubmitResult
	if err := c.postMultipart(ctx, "/api/transcribe", body, contentType, http.StatusAccepted, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SubmitBatch uploads several audio files in one request. Returned IDs align
// with the input order.
func (c *Client) SubmitBatch(ctx context.Context, paths []string, fields map[string]string, maxConcurrency int) ([]string, error) {
	if maxConcurrency > 0 {
		if fields == nil {
			fields = map[string]string{}
		}
		fields["max_concurrency"] = strconv.Itoa(maxConcurrency)
	}
	body, contentType, err := buildUploadBody(paths, fields)
	if err != nil {
		return nil, err
	}
	var result struct {
		JobIDs []string `json:"job_ids"`
	}
	if err := c.postMultipart(ctx, "/api/batch", body, contentType, http.StatusAccepted, &result); err != nil {
		return nil, err
	}
	return result.JobIDs, nil
}

func (c *Client) Jobs(ctx context.Context) ([]JobSummary, error) {
	var payload struct {
		Jobs []JobSummary `json:"jobs"`
	}
	if err := c.getJSON(ctx, "/api/jobs", &payload); err != nil {
		return nil, err
	}
	return payload.Jobs, nil
}

func (c *Client) Job(ctx context.Context, id string) (*jobs.Job, error) {
	var job jobs.Job
	if err := c.getJSON(ctx, "/api/jobs/"+url.PathEscape(id), &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (c *Client) DeleteJob(ctx context.Context, id string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/api/jobs/"+url.PathEscape(id), nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("connect to daemon at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}
	return nil
}

// Export fetches the rendered transcript for a completed job in the given
// format (txt, srt or json).
func (c *Client) Export(ctx context.Context, id, format string) ([]byte, error) {
	target := c.baseURL + "/api/export/" + url.PathEscape(id)
	if format != "" {
		target += "?format=" + url.QueryEscape(format)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("connect to daemon at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}
	return io.ReadAll(resp.Body)
}

func (c *Client) History(ctx context.Context, limit int) ([]archive.Entry, error) {
	path := "/api/history"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var payload struct {
		Entries []archive.Entry `json:"entries"`
	}
	if err := c.getJSON(ctx, path, &payload); err != nil {
		return nil, err
	}
	return payload.Entries, nil
}

// NotifyTest asks the daemon to publish a test notification.
func (c *Client) NotifyTest(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/notify/test", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("connect to daemon at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("connect to daemon at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) postMultipart(ctx context.Context, path string, body io.Reader, contentType string, wantStatus int, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("connect to daemon at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != wantStatus {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func buildUploadBody(paths []string, fields map[string]string) (io.Reader, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for _, path := range paths {
		file, err := os.Open(path)
		if err != nil {
			return nil, "", fmt.Errorf("open audio file: %w", err)
		}
		part, err := writer.CreateFormFile("audio", filepath.Base(path))
		if err == nil {
			_, err = io.Copy(part, file)
		}
		file.Close()
		if err != nil {
			return nil, "", fmt.Errorf("stage upload %q: %w", path, err)
		}
	}
	for name, value := range fields {
		if value == "" {
			continue
		}
		if err := writer.WriteField(name, value); err != nil {
			return nil, "", err
		}
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return &buf, writer.FormDataContentType(), nil
}

func decodeError(resp *http.Response) error {
	var payload struct {
		Error string `json:"error"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err := json.Unmarshal(raw, &payload); err == nil && payload.Error != "" {
		return fmt.Errorf("daemon returned %d: %s", resp.StatusCode, payload.Error)
	}
	return fmt.Errorf("daemon returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
}
