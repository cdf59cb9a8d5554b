package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

// cookieURLs are the origins whose cookies the client replays.
var cookieURLs = []string{
	"https://notebooklm.google.com",
	"https://accounts.google.com",
}

// BrowserLogin opens a visible Chrome window on NotebookLM with a dedicated
// profile, waits until the user is signed in, and returns the cookie header.
type BrowserLogin struct {
	profileDir string
	execPath   string
	timeout    time.Duration
	logger     *slog.Logger
}

// LoginOption configures BrowserLogin.
type LoginOption func(*BrowserLogin)

// WithExecPath selects the browser binary.
func WithExecPath(p string) LoginOption { return func(b *BrowserLogin) { b.execPath = p } }

// WithLoginTimeout bounds how long to wait for the user to sign in.
func WithLoginTimeout(d time.Duration) LoginOption { return func(b *BrowserLogin) { b.timeout = d } }

// WithLoginLogger sets the logger.
func WithLoginLogger(l *slog.Logger) LoginOption {
	return func(b *BrowserLogin) {
		if l != nil {
			b.logger = l
		}
	}
}

// NewBrowserLogin returns a login flow that keeps its Chrome profile in
// profileDir, so later runs are already signed in.
func NewBrowserLogin(profileDir string, opts ...LoginOption) *BrowserLogin {
	b := &BrowserLogin{
		profileDir: profileDir,
		timeout:    5 * time.Minute,
		logger:     slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Run drives the browser and returns the cookies once NotebookLM has
// rendered a signed-in page.
func (b *BrowserLogin) Run(ctx context.Context) (string, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserDataDir(b.profileDir),
		chromedp.Flag("headless", false),
		chromedp.Flag("window-size", "1280,800"),
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
	)
	if b.execPath != "" {
		opts = append(opts, chromedp.ExecPath(b.execPath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	if err := chromedp.Run(browserCtx,
		chromedp.Navigate(DefaultBaseURL),
		chromedp.WaitVisible("body", chromedp.ByQuery),
	); err != nil {
		return "", fmt.Errorf("failed to load page: %w", err)
	}

	pollCtx, cancel := context.WithTimeout(browserCtx, b.timeout)
	defer cancel()
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-pollCtx.Done():
			var finalURL string
			_ = chromedp.Run(browserCtx, chromedp.Location(&finalURL))
			return "", fmt.Errorf("sign-in not completed before timeout (URL: %s)", finalURL)
		case <-ticker.C:
			cookies, err := b.tryExtract(browserCtx)
			if err != nil {
				b.logger.Debug("waiting for sign-in", "reason", err)
				continue
			}
			return cookies, nil
		}
	}
}

var errNotSignedIn = errors.New("not signed in")

func (b *BrowserLogin) tryExtract(ctx context.Context) (string, error) {
	var currentURL string
	if err := chromedp.Run(ctx, chromedp.Location(&currentURL)); err != nil {
		return "", fmt.Errorf("read location: %w", err)
	}
	if !strings.HasPrefix(currentURL, DefaultBaseURL) {
		return "", fmt.Errorf("%w: on %s", errNotSignedIn, currentURL)
	}

	var hasToken bool
	if err := chromedp.Run(ctx, chromedp.Evaluate(
		`typeof WIZ_global_data === 'object' && typeof WIZ_global_data.SNlM0e === 'string' && WIZ_global_data.SNlM0e.length > 10`,
		&hasToken,
	)); err != nil {
		return "", fmt.Errorf("check token presence: %w", err)
	}
	if !hasToken {
		return "", errNotSignedIn
	}

	var cookies string
	err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		cks, err := network.GetCookies().WithUrls(cookieURLs).Do(ctx)
		if err != nil {
			return fmt.Errorf("get cookies: %w", err)
		}
		cookies = joinCookies(cks)
		return nil
	}))
	if err != nil {
		return "", err
	}
	if !HasSessionCookies(cookies) {
		return "", fmt.Errorf("missing essential authentication cookies")
	}
	return cookies, nil
}

// joinCookies builds a cookie header, keeping the first cookie of each name.
func joinCookies(cks []*network.Cookie) string {
	seen := make(map[string]bool)
	var parts []string
	for _, ck := range cks {
		if seen[ck.Name] {
			continue
		}
		seen[ck.Name] = true
		parts = append(parts, ck.Name+"="+ck.Value)
	}
	return strings.Join(parts, "; ")
}
