// CLAUDE:SUMMARY HTTP client for the generation/edit backend: generate, list, fetch, edit-by-prompt and visual-edit save, FastAPI error decoding.
// Package backend talks to the page generation and storage service over
// HTTP. Page IDs are positions in the service's page list.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hazyhaar/visedit/page"
)

// MinPromptLength is the shortest edit prompt the service accepts.
const MinPromptLength = 5

var (
	// ErrInvalidPageID rejects negative page IDs before any request.
	ErrInvalidPageID = errors.New("backend: invalid page ID")
	// ErrPromptTooShort rejects edit prompts under MinPromptLength characters.
	ErrPromptTooShort = errors.New("backend: edit prompt must be at least 5 characters")
)

// APIError is a non-2xx answer. Detail carries the service's "detail".
type APIError struct {
	Status int
	Detail string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("backend: status %d", e.Status)
	}
	return fmt.Sprintf("backend: status %d: %s", e.Status, e.Detail)
}

// IsNotFound reports whether err is a 404 from the service.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// Client calls the backend service.
type Client struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client (60s timeout).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New returns a client for the service at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		// Generation waits on an LLM.
		client: &http.Client{Timeout: 60 * time.Second},
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type pageJSON struct {
	Name string `json:"name"`
	HTML string `json:"html"`
	CSS  string `json:"css"`
}

func (p pageJSON) page(id int) page.Page {
	return page.Page{ID: id, Name: p.Name, HTML: p.HTML, CSS: p.CSS}
}

func pages(in []pageJSON) []page.Page {
	out := make([]page.Page, len(in))
	for i, p := range in {
		out[i] = p.page(i)
	}
	return out
}

// Generate asks for a new site from a description. It replaces every page
// on the service.
func (c *Client) Generate(ctx context.Context, description string) ([]page.Page, error) {
	var resp struct {
		Pages []pageJSON `json:"pages"`
	}
	if err := c.do(ctx, http.MethodPost, "/generate", map[string]string{"description": description}, &resp); err != nil {
		return nil, fmt.Errorf("backend: generate: %w", err)
	}
	return pages(resp.Pages), nil
}

// ListPages returns every stored page.
func (c *Client) ListPages(ctx context.Context) ([]page.Page, error) {
	var resp struct {
		Pages []pageJSON `json:"pages"`
	}
	if err := c.do(ctx, http.MethodGet, "/pages", nil, &resp); err != nil {
		return nil, fmt.Errorf("backend: list pages: %w", err)
	}
	return pages(resp.Pages), nil
}

// FetchPage returns one stored page.
func (c *Client) FetchPage(ctx context.Context, id int) (page.Page, error) {
	if id < 0 {
		return page.Page{}, ErrInvalidPageID
	}
	var resp pageJSON
	if err := c.do(ctx, http.MethodGet, "/page/"+strconv.Itoa(id), nil, &resp); err != nil {
		return page.Page{}, fmt.Errorf("backend: fetch page %d: %w", id, err)
	}
	return resp.page(id), nil
}

// EditByPrompt asks the service to rewrite a page from a natural-language
// instruction. The returned page may carry an empty Name.
func (c *Client) EditByPrompt(ctx context.Context, id int, prompt, html, css string) (page.Page, error) {
	if id < 0 {
		return page.Page{}, ErrInvalidPageID
	}
	if len([]rune(strings.TrimSpace(prompt))) < MinPromptLength {
		return page.Page{}, ErrPromptTooShort
	}
	req := struct {
		PageID      int    `json:"page_id"`
		EditPrompt  string `json:"edit_prompt"`
		CurrentHTML string `json:"current_html"`
		CurrentCSS  string `json:"current_css"`
	}{id, prompt, html, css}

	var resp struct {
		Page pageJSON `json:"page"`
	}
	if err := c.do(ctx, http.MethodPost, "/edit", req, &resp); err != nil {
		return page.Page{}, fmt.Errorf("backend: edit page %d: %w", id, err)
	}
	return resp.Page.page(id), nil
}

// SaveVisualEdit stores the patched html and css of a page.
func (c *Client) SaveVisualEdit(ctx context.Context, id int, html, css string) error {
	if id < 0 {
		return ErrInvalidPageID
	}
	body := map[string]string{"html": html, "css": css}
	if err := c.do(ctx, http.MethodPatch, "/pages/"+strconv.Itoa(id), body, nil); err != nil {
		return fmt.Errorf("backend: save page %d: %w", id, err)
	}
	return nil
}

// Health checks the service.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	c.logger.Debug("backend: request", "method", method, "path", path, "status", resp.StatusCode, "elapsed", time.Since(start))

	data, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{Status: resp.StatusCode, Detail: detail(data)}
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// detail extracts the error message of an error body. FastAPI sends a
// string for HTTP errors and a list of issues for validation errors.
func detail(data []byte) string {
	var body struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(data, &body); err != nil || len(body.Detail) == 0 {
		return strings.TrimSpace(string(data))
	}
	var s string
	if err := json.Unmarshal(body.Detail, &s); err == nil {
		return s
	}
	var issues []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(body.Detail, &issues); err == nil && len(issues) > 0 {
		msgs := make([]string, 0, len(issues))
		for _, i := range issues {
			msgs = append(msgs, i.Msg)
		}
		return strings.Join(msgs, "; ")
	}
	return string(body.Detail)
}
