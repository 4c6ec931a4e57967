// Package client is a Go client for the leadfinder HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/FranksOps/leadfinder/pkg/httpclient"
)

// DefaultTimeout covers a full synchronous scrape job.
const DefaultTimeout = 10 * time.Minute

// ErrNotFound is returned for unknown business ids.
var ErrNotFound = errors.New("client: business not found")

// APIError is a non-2xx response.
type APIError struct {
	StatusCode int
	Kind       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("client: %d %s: %s", e.StatusCode, e.Kind, e.Message)
	}
	return fmt.Sprintf("client: %d: %s", e.StatusCode, e.Message)
}

// Audit mirrors the audit_summary object.
type Audit struct {
	Status      string         `json:"status"`
	Issues      []string       `json:"issues"`
	IssueCodes  []string       `json:"issue_codes"`
	Signals     map[string]any `json:"signals"`
	AuditedAt   time.Time      `json:"audited_at"`
	AuditFailed bool           `json:"audit_failed"`
	FailureKind string         `json:"failure_kind,omitempty"`
}

// Business mirrors a stored lead.
type Business struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Category      string    `json:"category,omitempty"`
	Address       string    `json:"address,omitempty"`
	Phone         string    `json:"phone,omitempty"`
	Website       string    `json:"website,omitempty"`
	Rating        *float64  `json:"rating,omitempty"`
	ReviewCount   int       `json:"review_count"`
	LeadScore     *int      `json:"lead_score"`
	Audit         *Audit    `json:"audit_summary,omitempty"`
	DiscoveredAt  time.Time `json:"discovered_at"`
	LastUpdatedAt time.Time `json:"last_updated_at"`
}

// JobError is one business a job could not process.
type JobError struct {
	BusinessID string `json:"business_id,omitempty"`
	Name       string `json:"name,omitempty"`
	Stage      string `json:"stage"`
	Message    string `json:"message"`
}

// ScrapeResult is the response of a scrape job.
type ScrapeResult struct {
	JobID      string     `json:"job_id"`
	State      string     `json:"state"`
	Count      int        `json:"count"`
	Businesses []Business `json:"businesses"`
	Errors     []JobError `json:"errors"`
}

// Filter narrows lead listings and exports.
type Filter struct {
	MinScore int
	Category string
	Limit    int
}

func (f Filter) values() url.Values {
	v := url.Values{}
	if f.MinScore > 0 {
		v.Set("min_score", strconv.Itoa(f.MinScore))
	}
	if f.Category != "" {
		v.Set("category", f.Category)
	}
	if f.Limit > 0 {
		v.Set("limit", strconv.Itoa(f.Limit))
	}
	return v
}

// Client talks to one leadfinder server.
type Client struct {
	base *url.URL
	http *httpclient.Client
}

// New creates a client for the server at baseURL, e.g. "http://localhost:8080".
func New(baseURL string, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("client: invalid base URL %q", baseURL)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	hc, err := httpclient.New(httpclient.Config{
		Timeout:      timeout,
		MaxRedirects: 3,
		Headers:      http.Header{"Accept": {"application/json"}, "User-Agent": {"leadfinder-client/1"}},
	})
	if err != nil {
		return nil, fmt.Errorf("client: %w", err)
	}
	return &Client{base: u, http: hc}, nil
}

func (c *Client) url(path string, q url.Values) string {
	u := *c.base
	u.Path = c.base.Path + path
	u.RawQuery = q.Encode()
	return u.String()
}

func (c *Client) do(ctx context.Context, method, path string, q url.Values, body any) (*http.Response, error) {
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("client: encode request: %w", err)
		}
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.url(path, q), rd)
	if err != nil {
		return nil, fmt.Errorf("client: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("client: %s %s: %w", method, path, err)
	}
	if resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, decodeError(resp)
	}
	return resp, nil
}

func decodeError(resp *http.Response) error {
	if resp.StatusCode == http.StatusNotFound && strings.Contains(resp.Request.URL.Path, "/api/business/") {
		return ErrNotFound
	}
	raw, _, _ := httpclient.ReadBody(resp.Body, 64<<10)
	var body struct {
		Error string `json:"error"`
		Kind  string `json:"kind"`
	}
	apiErr := &APIError{StatusCode: resp.StatusCode}
	if json.Unmarshal(raw, &body) == nil && body.Error != "" {
		apiErr.Kind = body.Kind
		apiErr.Message = body.Error
	} else {
		apiErr.Message = strings.TrimSpace(string(raw))
	}
	return apiErr
}

func decode[T any](resp *http.Response) (T, error) {
	defer resp.Body.Close()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		return v, fmt.Errorf("client: decode response: %w", err)
	}
	return v, nil
}

// Health returns nil when the server and its database are up.
func (c *Client) Health(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, "/health", nil, nil)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// Scrape runs a job and blocks until it completes.
func (c *Client) Scrape(ctx context.Context, query string, maxResults int) (*ScrapeResult, error) {
	body := map[string]any{"query": query, "max_results": maxResults}
	resp, err := c.do(ctx, http.MethodPost, "/api/scrape", nil, body)
	if err != nil {
		return nil, err
	}
	res, err := decode[ScrapeResult](resp)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// Leads lists scored leads, best first.
func (c *Client) Leads(ctx context.Context, f Filter) ([]Business, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/leads", f.values(), nil)
	if err != nil {
		return nil, err
	}
	return decode[[]Business](resp)
}

// Business fetches one lead.
func (c *Client) Business(ctx context.Context, id string) (*Business, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/business/"+url.PathEscape(id), nil, nil)
	if err != nil {
		return nil, err
	}
	b, err := decode[Business](resp)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// Delete removes one lead.
func (c *Client) Delete(ctx context.Context, id string) error {
	resp, err := c.do(ctx, http.MethodDelete, "/api/business/"+url.PathEscape(id), nil, nil)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// Export streams an export in format ("csv" or "json") to w.
func (c *Client) Export(ctx context.Context, f Filter, format string, w io.Writer) error {
	q := f.values()
	if format != "" {
		q.Set("format", format)
	}
	resp, err := c.do(ctx, http.MethodGet, "/api/export", q, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("client: read export: %w", err)
	}
	return nil
}
