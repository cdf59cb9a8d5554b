// Package auth acquires the session tokens NotebookLM embeds in its landing
// page, stores the browser cookies those requests need, and drives a browser
// sign-in to capture them.
package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

// DefaultBaseURL is the NotebookLM origin the landing page is fetched from.
const DefaultBaseURL = "https://notebooklm.google.com"

// ErrAuthRequired means the landing page did not expose the tokens, which
// happens when the user is not signed in to NotebookLM.
var ErrAuthRequired = errors.New("Please login to NotebookLM first")

// Tokens is the pair of values that authorize batchexecute calls for one
// account.
type Tokens struct {
	SecurityToken string // "cfb2h", sent as bl
	SessionToken  string // "SNlM0e", sent as at
	AccountIndex  int
}

// ExtractToken returns the quoted value following "key": in html, or "".
func ExtractToken(key, html string) string {
	re := regexp.MustCompile(`"` + regexp.QuoteMeta(key) + `":"([^"]+)"`)
	m := re.FindStringSubmatch(html)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

// ParseTokens extracts both tokens from a landing page.
func ParseTokens(html string, accountIndex int) (*Tokens, error) {
	bl := ExtractToken("cfb2h", html)
	at := ExtractToken("SNlM0e", html)
	if bl == "" || at == "" {
		return nil, ErrAuthRequired
	}
	return &Tokens{SecurityToken: bl, SessionToken: at, AccountIndex: accountIndex}, nil
}

// TokenManager owns the single cached token set. It is safe for concurrent
// use.
type TokenManager struct {
	baseURL    string
	cookies    string
	httpClient *http.Client
	logger     *slog.Logger

	mu     sync.Mutex
	tokens *Tokens
}

// TokenOption configures a TokenManager.
type TokenOption func(*TokenManager)

// WithBaseURL overrides the NotebookLM origin, for tests.
func WithBaseURL(u string) TokenOption {
	return func(tm *TokenManager) { tm.baseURL = strings.TrimSuffix(u, "/") }
}

// WithHTTPClient sets the client used to fetch the landing page. Redirects
// are never followed regardless of the client's own policy.
func WithHTTPClient(c *http.Client) TokenOption {
	return func(tm *TokenManager) { tm.httpClient = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) TokenOption {
	return func(tm *TokenManager) {
		if l != nil {
			tm.logger = l
		}
	}
}

// NewTokenManager returns a manager that authenticates with cookies.
func NewTokenManager(cookies string, opts ...TokenOption) *TokenManager {
	tm := &TokenManager{
		baseURL:    DefaultBaseURL,
		cookies:    cookies,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		logger:     slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(tm)
	}
	return tm
}

// Cookies returns the cookie header the manager authenticates with.
func (tm *TokenManager) Cookies() string {
	return tm.cookies
}

// LandingURL returns the page that carries the tokens for accountIndex.
func (tm *TokenManager) LandingURL(accountIndex int) string {
	if accountIndex > 0 {
		return tm.baseURL + "/?authuser=" + strconv.Itoa(accountIndex) + "&pageId=none"
	}
	return tm.baseURL
}

// Acquire fetches fresh tokens for accountIndex and replaces the cached set.
// Every failure is reported as ErrAuthRequired, wrapped with its cause.
func (tm *TokenManager) Acquire(ctx context.Context, accountIndex int) (*Tokens, error) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	html, err := tm.fetchLanding(ctx, accountIndex)
	if err != nil {
		tm.logger.DebugContext(ctx, "token fetch failed", "authuser", accountIndex, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrAuthRequired, err)
	}
	tokens, err := ParseTokens(html, accountIndex)
	if err != nil {
		tm.logger.DebugContext(ctx, "tokens missing from landing page", "authuser", accountIndex, "bytes", len(html))
		return nil, err
	}
	tm.tokens = tokens
	tm.logger.DebugContext(ctx, "acquired tokens", "authuser", accountIndex)
	return tokens, nil
}

// Current returns the cached tokens when they belong to accountIndex and
// acquires new ones otherwise.
func (tm *TokenManager) Current(ctx context.Context, accountIndex int) (*Tokens, error) {
	if t := tm.Tokens(); t != nil && t.AccountIndex == accountIndex {
		return t, nil
	}
	return tm.Acquire(ctx, accountIndex)
}

// Tokens returns the cached set, or nil.
func (tm *TokenManager) Tokens() *Tokens {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	if tm.tokens == nil {
		return nil
	}
	t := *tm.tokens
	return &t
}

// Invalidate drops the cached set so the next call re-acquires.
func (tm *TokenManager) Invalidate() {
	tm.mu.Lock()
	tm.tokens = nil
	tm.mu.Unlock()
}

func (tm *TokenManager) fetchLanding(ctx context.Context, accountIndex int) (string, error) {
	client := *tm.httpClient
	client.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, tm.LandingURL(accountIndex), nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	if tm.cookies != "" {
		req.Header.Set("Cookie", tm.cookies)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch page: %w", err)
	}
	defer resp.Body.Close()

	// A redirect usually points at the sign-in page; its body will not
	// carry tokens.
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("fetch page: %s", resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	return string(body), nil
}

const userAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/139.0.0.0 Safari/537.36"

// extractCookieValue extracts a specific cookie value from a cookie string
func extractCookieValue(cookies, name string) string {
	for _, part := range strings.Split(cookies, ";") {
		part = strings.TrimSpace(part)
		if strings.HasPrefix(part, name+"=") {
			return strings.TrimPrefix(part, name+"=")
		}
	}
	return ""
}

// HasSessionCookies reports whether cookies carry at least one of the Google
// session cookies a signed-in browser holds.
func HasSessionCookies(cookies string) bool {
	for _, name := range []string{"SID", "HSID", "SSID", "APISID", "SAPISID"} {
		if extractCookieValue(cookies, name) != "" {
			return true
		}
	}
	return false
}
