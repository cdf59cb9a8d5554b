// Package tabs lists the pages open in a Chrome started with
// --remote-debugging-port, using the DevTools HTTP endpoint.
package tabs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// DefaultEndpoint is where Chrome serves DevTools by default.
const DefaultEndpoint = "http://127.0.0.1:9222"

// ErrNoTabs is returned by Current when no web page is open.
var ErrNoTabs = errors.New("no open tabs")

// Tab is an open browser page.
type Tab struct {
	ID         string `json:"id"`
	URL        string `json:"url"`
	Title      string `json:"title"`
	FavIconURL string `json:"favIconUrl,omitempty"`
	Index      int    `json:"index"`
	Active     bool   `json:"active"`
}

// target is one entry of /json/list.
type target struct {
	ID         string `json:"id"`
	Type       string `json:"type"`
	Title      string `json:"title"`
	URL        string `json:"url"`
	FaviconURL string `json:"faviconUrl"`
}

// Client reads tabs from a DevTools endpoint.
type Client struct {
	endpoint   string
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.httpClient = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(cl *Client) {
		if l != nil {
			cl.logger = l
		}
	}
}

// New returns a Client for endpoint, or DefaultEndpoint when it is empty.
func New(endpoint string, opts ...Option) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	c := &Client{
		endpoint:   strings.TrimRight(endpoint, "/"),
		httpClient: &http.Client{Timeout: 5 * time.Second},
		logger:     slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// All returns the open http and https pages. Chrome lists the most recently
// focused page first, so that entry is marked active.
func (c *Client) All(ctx context.Context) ([]Tab, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/json/list", nil)
	if err != nil {
		return []Tab{}, fmt.Errorf("create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return []Tab{}, fmt.Errorf("list tabs: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return []Tab{}, fmt.Errorf("list tabs: unexpected status %d", resp.StatusCode)
	}

	var targets []target
	if err := json.NewDecoder(resp.Body).Decode(&targets); err != nil {
		return []Tab{}, fmt.Errorf("decode tab list: %w", err)
	}
	tabs := []Tab{}
	for _, t := range targets {
		if t.Type != "page" || !strings.HasPrefix(t.URL, "http") {
			continue
		}
		tabs = append(tabs, Tab{
			ID:         t.ID,
			URL:        t.URL,
			Title:      t.Title,
			FavIconURL: t.FaviconURL,
			Index:      len(tabs),
			Active:     len(tabs) == 0,
		})
	}
	c.logger.DebugContext(ctx, "listed tabs", "targets", len(targets), "pages", len(tabs))
	return tabs, nil
}

// Current returns the active tab.
func (c *Client) Current(ctx context.Context) (Tab, error) {
	tabs, err := c.All(ctx)
	if err != nil {
		return Tab{}, err
	}
	if len(tabs) == 0 {
		return Tab{}, ErrNoTabs
	}
	return tabs[0], nil
}
