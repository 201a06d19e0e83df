package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/sirupsen/logrus"
)

// HTTPClient talks JSON over HTTP to the hosted backend. No timeout is
// layered on top of the injected http.Client's defaults; a hung call
// delays the fallback-to-cache decision (known limitation).
type HTTPClient struct {
	baseURL  string
	token    string
	tenantID string
	httpc    *http.Client
	log      *logrus.Logger
}

// NewHTTPClient creates a client for the backend at baseURL. A nil
// httpc falls back to http.DefaultClient.
func NewHTTPClient(baseURL, token, tenantID string, httpc *http.Client, log *logrus.Logger) *HTTPClient {
	if httpc == nil {
		httpc = http.DefaultClient
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &HTTPClient{
		baseURL:  baseURL,
		token:    token,
		tenantID: tenantID,
		httpc:    httpc,
		log:      log,
	}
}

func (c *HTTPClient) do(ctx context.Context, method, path string, query url.Values, body any, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-ID", c.tenantID)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Remote rejections and connectivity failures deliberately
		// look the same to callers; the queue retries both.
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("%s %s: remote returned %d: %s", method, path, resp.StatusCode, snippet)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%s %s: failed to decode response: %w", method, path, err)
		}
	}
	return nil
}

// FetchJobs implements Client.
func (c *HTTPClient) FetchJobs(ctx context.Context, scope Scope) ([]map[string]any, error) {
	query := url.Values{}
	if scope.TechnicianID != "" {
		query.Set("technician_id", scope.TechnicianID)
	}
	if scope.TenantID != "" {
		query.Set("tenant_id", scope.TenantID)
	}

	var out struct {
		Jobs []map[string]any `json:"jobs"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/jobs", query, nil, &out); err != nil {
		return nil, err
	}
	return out.Jobs, nil
}

// FetchChecklist implements Client.
func (c *HTTPClient) FetchChecklist(ctx context.Context, jobID string) ([]map[string]any, error) {
	var out struct {
		Items []map[string]any `json:"items"`
	}
	path := fmt.Sprintf("/api/v1/jobs/%s/checklist", url.PathEscape(jobID))
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// UpdateJobStatus implements Client.
func (c *HTTPClient) UpdateJobStatus(ctx context.Context, jobID, status string) error {
	path := fmt.Sprintf("/api/v1/jobs/%s/status", url.PathEscape(jobID))
	return c.do(ctx, http.MethodPatch, path, nil, map[string]any{"status": status}, nil)
}

// UpdateChecklistItem implements Client.
func (c *HTTPClient) UpdateChecklistItem(ctx context.Context, jobID, itemID string, completed bool) error {
	path := fmt.Sprintf("/api/v1/jobs/%s/checklist/%s", url.PathEscape(jobID), url.PathEscape(itemID))
	return c.do(ctx, http.MethodPatch, path, nil, map[string]any{"completed": completed}, nil)
}

// UpdateNotes implements Client.
func (c *HTTPClient) UpdateNotes(ctx context.Context, jobID, notes string) error {
	path := fmt.Sprintf("/api/v1/jobs/%s/notes", url.PathEscape(jobID))
	return c.do(ctx, http.MethodPatch, path, nil, map[string]any{"notes": notes}, nil)
}
