package snapmatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

const defaultTimeout = 120 * time.Second

// Client talks to a snapmatch server over HTTP.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New creates a snapmatch client for the given base URL.
func New(baseURL string, opts ...Option) *Client {
	cfg := &clientConfig{}
	for _, o := range opts {
		o.apply(cfg)
	}
	if cfg.httpClient == nil {
		cfg.httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     cfg.apiKey,
		httpClient: cfg.httpClient,
	}
}

// File is one image upload.
type File struct {
	Name string
	Data []byte
}

// IngestItem is the per-file ingestion outcome.
type IngestItem struct {
	Status      string `json:"status"`
	URL         string `json:"url,omitempty"`
	Description string `json:"description,omitempty"`
	Reason      string `json:"reason,omitempty"`
	Error       string `json:"error,omitempty"`
}

// OK reports whether the file was fully ingested.
func (i IngestItem) OK() bool { return i.Status == "ok" }

// IngestResult aggregates per-file outcomes of one batch.
type IngestResult struct {
	Items     []IngestItem `json:"items"`
	Succeeded int          `json:"succeeded"`
	Failed    int          `json:"failed"`
}

// MatchedRecord is the stored image a title resolved to.
type MatchedRecord struct {
	ID          string    `json:"id"`
	URL         string    `json:"url"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// MatchItem is the per-title matching result. Match is nil when the
// store held no candidate or the title failed to resolve.
type MatchItem struct {
	Title string         `json:"title"`
	Match *MatchedRecord `json:"match,omitempty"`
	Score *float64       `json:"score,omitempty"`
	Error string         `json:"error,omitempty"`
}

// HealthStatus represents the aggregated system health.
type HealthStatus struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// Ingest uploads a batch of images and returns one outcome per file,
// in input order.
func (c *Client) Ingest(ctx context.Context, files []File) (*IngestResult, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("snapmatch: ingest: %w", ErrEmptyBatch)
	}

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for _, f := range files {
		part, err := w.CreateFormFile("files", f.Name)
		if err != nil {
			return nil, fmt.Errorf("snapmatch: build multipart: %w", err)
		}
		if _, err := part.Write(f.Data); err != nil {
			return nil, fmt.Errorf("snapmatch: build multipart: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("snapmatch: build multipart: %w", err)
	}

	var result IngestResult
	if err := c.do(ctx, http.MethodPost, "/v1/images", &body, w.FormDataContentType(), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Match resolves each non-blank title to at most one stored image.
func (c *Client) Match(ctx context.Context, titles []string) ([]MatchItem, error) {
	payload, err := json.Marshal(map[string][]string{"titles": titles})
	if err != nil {
		return nil, fmt.Errorf("snapmatch: encode request: %w", err)
	}

	var result struct {
		Matches []MatchItem `json:"matches"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/match",
		bytes.NewReader(payload), "application/json", &result); err != nil {
		return nil, err
	}
	return result.Matches, nil
}

// Delete removes a previously ingested record by ID.
// A missing record fails with ErrNotFound.
func (c *Client) Delete(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("snapmatch: delete: record id is required")
	}
	return c.do(ctx, http.MethodDelete, "/v1/images/"+id, http.NoBody, "application/json", nil)
}

// Health checks the health of all server components.
// A degraded server still returns a status rather than an error.
func (c *Client) Health(ctx context.Context) (*HealthStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("snapmatch: build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("snapmatch: health request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var status HealthStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("snapmatch: decode health response: %w", err)
	}
	return &status, nil
}

func (c *Client) do(
	ctx context.Context, method, path string,
	body io.Reader, contentType string, out any,
) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("snapmatch: build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("snapmatch: %s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return apiError(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("snapmatch: decode response: %w", err)
	}
	return nil
}

// apiError maps a server error response to a sentinel error.
func apiError(resp *http.Response) error {
	var errResp struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
		return fmt.Errorf("snapmatch: server returned %d", resp.StatusCode)
	}

	sentinel := sentinelForCode(errResp.Code)
	if sentinel != nil {
		return fmt.Errorf("snapmatch: %s: %w", errResp.Message, sentinel)
	}
	return fmt.Errorf("snapmatch: server returned %d (%s): %s",
		resp.StatusCode, errResp.Code, errResp.Message)
}

func sentinelForCode(code string) error {
	switch code {
	case "empty_batch":
		return ErrEmptyBatch
	case "quota_exceeded":
		return ErrQuotaExceeded
	case "rate_limited":
		return ErrRateLimited
	case "not_found":
		return ErrNotFound
	default:
		return nil
	}
}
