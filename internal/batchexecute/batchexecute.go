// Package batchexecute implements the wire side of Google's batchexecute RPC
// gateway as used by NotebookLM: request encoding, transport and the
// payload frame locator.
package batchexecute

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ErrUnauthorized represent an unauthorized request.
var ErrUnauthorized = errors.New("unauthorized")

const (
	// DefaultHost is the NotebookLM host.
	DefaultHost = "notebooklm.google.com"
	// DefaultApp is the batchexecute application path segment.
	DefaultApp = "LabsTailwindUi"
)

// RPC represents a single RPC call
type RPC struct {
	ID         string        // RPC endpoint ID
	Args       []interface{} // Arguments for the call
	SourcePath string        // "/" or "/notebook/<id>"
}

// Auth carries the per-account values that authorize a call.
type Auth struct {
	SecurityToken string // sent as the bl URL parameter
	SessionToken  string // sent as the at body field
	AuthUser      int    // account index; omitted from the URL when 0
}

// Config holds the configuration for batch execute
type Config struct {
	Host    string
	App     string
	Cookies string
	Headers map[string]string
	UseHTTP bool

	// Retries are off unless MaxRetries is set.
	MaxRetries    int
	RetryDelay    time.Duration
	RetryMaxDelay time.Duration
}

// Client handles batchexecute operations
type Client struct {
	config     Config
	httpClient *http.Client
	logger     *slog.Logger
	reqid      *ReqIDGenerator
}

// NewClient creates a new batchexecute client
func NewClient(config Config, opts ...Option) *Client {
	if config.Host == "" {
		config.Host = DefaultHost
	}
	if config.App == "" {
		config.App = DefaultApp
	}
	if config.RetryDelay == 0 {
		config.RetryDelay = 1 * time.Second
	}
	if config.RetryMaxDelay == 0 {
		config.RetryMaxDelay = 10 * time.Second
	}

	c := &Client{
		config:     config,
		httpClient: http.DefaultClient,
		logger:     slog.New(slog.DiscardHandler),
		reqid:      NewReqIDGenerator(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Config() Config {
	return c.config
}

// Endpoint returns the batchexecute URL without query parameters.
func (c *Client) Endpoint() string {
	scheme := "https"
	if c.config.UseHTTP {
		scheme = "http"
	}
	return fmt.Sprintf("%s://%s/_/%s/data/batchexecute", scheme, c.config.Host, c.config.App)
}

func buildRPCData(rpc RPC) ([]interface{}, error) {
	args := rpc.Args
	if args == nil {
		args = []interface{}{}
	}
	argsJSON, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("marshal args: %w", err)
	}
	return []interface{}{
		rpc.ID,
		string(argsJSON),
		nil,
		"generic",
	}, nil
}

// EncodeRequest returns the query and form body for rpc.
func (c *Client) EncodeRequest(rpc RPC, auth Auth) (url.Values, url.Values, error) {
	sourcePath := rpc.SourcePath
	if sourcePath == "" {
		sourcePath = "/"
	}

	q := url.Values{}
	q.Set("rpcids", rpc.ID)
	q.Set("source-path", sourcePath)
	q.Set("bl", auth.SecurityToken)
	q.Set("_reqid", c.reqid.Next())
	q.Set("rt", "c")
	if auth.AuthUser > 0 {
		q.Set("authuser", strconv.Itoa(auth.AuthUser))
	}

	data, err := buildRPCData(rpc)
	if err != nil {
		return nil, nil, err
	}
	reqBody, err := json.Marshal([]interface{}{[]interface{}{data}})
	if err != nil {
		return nil, nil, fmt.Errorf("marshal request body: %w", err)
	}

	form := url.Values{}
	form.Set("f.req", string(reqBody))
	form.Set("at", auth.SessionToken)
	return q, form, nil
}

// Do sends rpc and returns the raw response body. Parsing is left to the
// caller since every procedure has its own payload shape.
func (c *Client) Do(ctx context.Context, rpc RPC, auth Auth) (string, error) {
	q, form, err := c.EncodeRequest(rpc, auth)
	if err != nil {
		return "", err
	}
	u := c.Endpoint() + "?" + q.Encode()
	body := form.Encode()

	if c.logger.Enabled(ctx, slog.LevelDebug) {
		masked := url.Values{}
		for k, v := range form {
			masked[k] = v
		}
		masked.Set("at", maskSensitiveValue(auth.SessionToken))
		c.logger.DebugContext(ctx, "batchexecute request",
			"rpc", rpc.ID,
			"source_path", q.Get("source-path"),
			"reqid", q.Get("_reqid"),
			"authuser", auth.AuthUser,
			"bl", maskSensitiveValue(auth.SecurityToken),
			"cookies", maskCookieValues(c.config.Cookies),
			"body", masked.Encode(),
		)
	}

	var (
		resp    *http.Response
		lastErr error
	)
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := c.retryDelay(attempt)
			c.logger.DebugContext(ctx, "retrying request", "attempt", attempt, "max", c.config.MaxRetries, "delay", delay)
			if err := sleep(ctx, delay); err != nil {
				return "", err
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, strings.NewReader(body))
		if err != nil {
			return "", fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("content-type", "application/x-www-form-urlencoded;charset=UTF-8")
		for k, v := range c.config.Headers {
			req.Header.Set(k, v)
		}
		if c.config.Cookies != "" {
			req.Header.Set("cookie", c.config.Cookies)
		}

		resp, err = c.httpClient.Do(req)
		if err != nil {
			lastErr = &TransportError{
				Message: fmt.Sprintf("execute request: %v", err),
				Type:    ErrorTypeNetworkError,
				Err:     err,
			}
			if ctx.Err() == nil && isRetryableError(err) && attempt < c.config.MaxRetries {
				continue
			}
			return "", lastErr
		}

		if isRetryableStatus(resp.StatusCode) && attempt < c.config.MaxRetries {
			resp.Body.Close()
			lastErr = newTransportError(resp.StatusCode)
			continue
		}
		break
	}
	if resp == nil {
		return "", fmt.Errorf("all retry attempts failed: %w", lastErr)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	c.logger.DebugContext(ctx, "batchexecute response", "rpc", rpc.ID, "status", resp.StatusCode, "bytes", len(raw))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", newTransportError(resp.StatusCode)
	}
	return string(raw), nil
}

func (c *Client) retryDelay(attempt int) time.Duration {
	delay := c.config.RetryDelay * time.Duration(1<<uint(attempt-1))
	if delay > c.config.RetryMaxDelay {
		delay = c.config.RetryMaxDelay
	}
	return delay
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// maskSensitiveValue masks sensitive values like tokens for debug output
func maskSensitiveValue(value string) string {
	switch {
	case len(value) <= 8:
		return strings.Repeat("*", len(value))
	case len(value) <= 16:
		return value[:2] + strings.Repeat("*", len(value)-4) + value[len(value)-2:]
	default:
		return value[:3] + strings.Repeat("*", len(value)-6) + value[len(value)-3:]
	}
}

// maskCookieValues masks cookie values in cookie header for debug output
func maskCookieValues(cookies string) string {
	if cookies == "" {
		return ""
	}
	var masked []string
	for _, part := range strings.Split(cookies, ";") {
		part = strings.TrimSpace(part)
		if name, value, found := strings.Cut(part, "="); found {
			masked = append(masked, name+"="+maskSensitiveValue(value))
		} else {
			masked = append(masked, part)
		}
	}
	return strings.Join(masked, "; ")
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient sets the HTTP client
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithLogger sets the logger used for request tracing.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithTimeout sets the HTTP client timeout
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if c.httpClient == http.DefaultClient {
			c.httpClient = &http.Client{Timeout: timeout}
		} else {
			c.httpClient.Timeout = timeout
		}
	}
}

// WithHeaders adds additional headers
func WithHeaders(headers map[string]string) Option {
	return func(c *Client) {
		if c.config.Headers == nil {
			c.config.Headers = make(map[string]string)
		}
		for k, v := range headers {
			c.config.Headers[k] = v
		}
	}
}

// WithReqIDGenerator sets the request ID generator
func WithReqIDGenerator(reqid *ReqIDGenerator) Option {
	return func(c *Client) {
		c.reqid = reqid
	}
}

// ReqIDGenerator produces random six digit request IDs. The host tolerates
// duplicates, so no uniqueness is tracked.
type ReqIDGenerator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewReqIDGenerator creates a new request ID generator
func NewReqIDGenerator() *ReqIDGenerator {
	return NewSeededReqIDGenerator(rand.Uint64(), rand.Uint64())
}

// NewSeededReqIDGenerator returns a deterministic generator, for tests.
func NewSeededReqIDGenerator(seed1, seed2 uint64) *ReqIDGenerator {
	return &ReqIDGenerator{rng: rand.New(rand.NewPCG(seed1, seed2))}
}

// Next returns a value in [100000, 999999].
func (g *ReqIDGenerator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return strconv.Itoa(100000 + g.rng.IntN(900000))
}

// isRetryableError checks if an error is retryable
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	errStr := err.Error()
	retryablePatterns := []string{
		"connection refused",
		"connection reset",
		"i/o timeout",
		"TLS handshake timeout",
		"EOF",
		"broken pipe",
		"no such host",
		"network is unreachable",
		"temporary failure",
	}
	for _, pattern := range retryablePatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}

// isRetryableStatus checks if an HTTP status code is retryable
func isRetryableStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
