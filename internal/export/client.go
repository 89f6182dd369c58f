// Package export talks to the backend export service: it submits the parquet
// and manifest jobs and polls them until they serve their artifacts.
package export

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"mime"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/timmy/hubexport/internal/domain"
)

// ClientConfig holds configuration for the export service client.
type ClientConfig struct {
	SubmitURL string
	BaseURL   string
	Timeout   time.Duration
}

// Client is the submit/poll HTTP contract of the export service.
type Client struct {
	client    *resty.Client
	submitURL string
	baseURL   string
}

// NewClient creates a new export service client.
// Parameters:
//   - cfg: submit URL, status base URL and request timeout.
// Returns:
//   - *Client: resty-backed client for the export service.
func NewClient(cfg *ClientConfig) *Client {
	client := resty.New()
	client.SetHeader("Accept", "application/json")
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	} else {
		client.SetTimeout(30 * time.Second)
	}

	return &Client{
		client:    client,
		submitURL: cfg.SubmitURL,
		baseURL:   strings.TrimSuffix(cfg.BaseURL, "/"),
	}
}

type submitRequest struct {
	SourceAPIURL string         `json:"source_api_url"`
	DataType     domain.JobKind `json:"data_type"`
}

type submitResponse struct {
	TaskID string `json:"task_id"`
}

// Submit creates one export job of kind and returns its task ID.
func (c *Client) Submit(ctx context.Context, sourceURL string, kind domain.JobKind) (string, error) {
	var result submitResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(submitRequest{SourceAPIURL: sourceURL, DataType: kind}).
		SetResult(&result).
		Post(c.submitURL)
	if err != nil {
		return "", fmt.Errorf("failed to call submit endpoint: %w", err)
	}
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return "", fmt.Errorf("submit endpoint returned HTTP %d: %s", resp.StatusCode(), string(resp.Body()))
	}
	if result.TaskID == "" {
		return "", fmt.Errorf("submit response has no task_id: %s", string(resp.Body()))
	}
	return result.TaskID, nil
}

// StatusURL is the deterministic status/download URL of a job. Once the job
// is terminal the same URL serves the artifact.
func (c *Client) StatusURL(jobID string, kind domain.JobKind) string {
	return fmt.Sprintf("%s/download/%s/%s", c.baseURL, url.PathEscape(jobID), url.PathEscape(string(kind)))
}

// Status is one observation of a job.
type Status struct {
	Terminal  bool
	Completed int64
	Total     int64
}

// Percent returns round(100*completed/total) clamped to [0,100]; a zero total yields 0.
func (s Status) Percent() int {
	if s.Terminal {
		return 100
	}
	if s.Total <= 0 {
		return 0
	}
	p := int(math.Round(100 * float64(s.Completed) / float64(s.Total)))
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// Status fetches the job's status URL. An application/json object carrying
// progress counters is progress; anything else means the artifact is being
// served, and its body is closed so the publish step can stream it from the URL.
func (c *Client) Status(ctx context.Context, jobID string, kind domain.JobKind) (Status, error) {
	resp, err := c.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(c.StatusURL(jobID, kind))
	if err != nil {
		return Status{}, fmt.Errorf("failed to call status endpoint: %w", err)
	}
	body := resp.RawBody()
	defer body.Close()

	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(body, 512))
		return Status{}, fmt.Errorf("status endpoint returned HTTP %d: %s", resp.StatusCode(), string(snippet))
	}

	if !isProgressType(resp.Header().Get("Content-Type")) {
		return Status{Terminal: true}, nil
	}

	var payload progressPayload
	if err := json.NewDecoder(body).Decode(&payload); err != nil {
		// A top-level array or scalar is a JSON artifact, not a progress object.
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field == "" {
			return Status{Terminal: true}, nil
		}
		return Status{}, fmt.Errorf("decode status payload: %w", err)
	}
	if !payload.hasCounters() {
		return Status{Terminal: true}, nil
	}
	completed, total := payload.counters()
	return Status{Completed: completed, Total: total}, nil
}

// isProgressType reports whether contentType is the status media type.
// Structured suffixes such as application/ld+json are artifacts.
func isProgressType(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "application/json"
}

// progressPayload accepts completed/total as well as the legacy
// progress_ids/hit_count counters of older export service builds.
type progressPayload struct {
	Completed   *int64          `json:"completed"`
	Total       *int64          `json:"total"`
	ProgressIDs json.RawMessage `json:"progress_ids"`
	HitCount    *int64          `json:"hit_count"`
}

func (p progressPayload) hasCounters() bool {
	return p.Completed != nil || p.Total != nil || len(p.ProgressIDs) > 0 || p.HitCount != nil
}

func (p progressPayload) counters() (int64, int64) {
	var completed, total int64
	switch {
	case p.Completed != nil:
		completed = *p.Completed
	case len(p.ProgressIDs) > 0:
		completed = countOrValue(p.ProgressIDs)
	}
	switch {
	case p.Total != nil:
		total = *p.Total
	case p.HitCount != nil:
		total = *p.HitCount
	}
	return completed, total
}

// countOrValue reads a JSON number as-is or a JSON array as its length.
func countOrValue(raw json.RawMessage) int64 {
	var n int64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err == nil {
		return int64(len(items))
	}
	return 0
}
