// Package accounts lists the Google identities signed in to the browser
// session, so notebook calls can be scoped with authuser.
package accounts

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"
)

// DefaultListURL is Google's account chooser feed.
const DefaultListURL = "https://accounts.google.com/ListAccounts?json=standard&source=ogb&md=1&cc=1&mn=1&mo=1&gpsia=1&fwput=860&listPages=1&origin=https%3A%2F%2Fwww.google.com"

// Account is one signed-in identity. Index is its position among the
// accounts that have an email address, and is the authuser value for it.
// It is only meaningful for the listing it came from.
type Account struct {
	Name      *string `json:"name"`
	Email     string  `json:"email"`
	AvatarURL *string `json:"avatar"`
	IsActive  bool    `json:"isActive"`
	IsDefault bool    `json:"isDefault"`
	Index     int     `json:"index"`
}

// Directory fetches the account list.
type Directory struct {
	listURL    string
	cookies    string
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures a Directory.
type Option func(*Directory)

// WithListURL overrides the feed URL, for tests.
func WithListURL(u string) Option { return func(d *Directory) { d.listURL = u } }

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(c *http.Client) Option { return func(d *Directory) { d.httpClient = c } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Directory) {
		if l != nil {
			d.logger = l
		}
	}
}

// NewDirectory returns a Directory that authenticates with cookies.
func NewDirectory(cookies string, opts ...Option) *Directory {
	d := &Directory{
		listURL:    DefaultListURL,
		cookies:    cookies,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// List returns the signed-in accounts. Any failure yields an empty list;
// the error is logged at debug level only.
func (d *Directory) List(ctx context.Context) []Account {
	body, err := d.fetch(ctx)
	if err != nil {
		d.logger.DebugContext(ctx, "list accounts", "error", err)
		return []Account{}
	}
	return ParseAccounts(body)
}

func (d *Directory) fetch(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.listURL, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	if d.cookies != "" {
		req.Header.Set("Cookie", d.cookies)
	}
	resp, err := d.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch accounts: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	return string(body), nil
}

var postMessagePattern = regexp.MustCompile(`postMessage\('(.*)'\s*,\s*'https:`)

var hexUnescaper = strings.NewReplacer(`\x5b`, "[", `\x5d`, "]", `\x22`, `"`)

// ParseAccounts extracts the account array embedded in the feed's
// postMessage call. Entries without an email address (YouTube channels and
// brand profiles) are dropped before indices are assigned.
func ParseAccounts(body string) []Account {
	accounts := []Account{}
	m := postMessagePattern.FindStringSubmatch(body)
	if m == nil {
		return accounts
	}
	var parsed []interface{}
	if err := json.Unmarshal([]byte(hexUnescaper.Replace(m[1])), &parsed); err != nil {
		return accounts
	}
	if len(parsed) < 2 {
		return accounts
	}
	entries, _ := parsed[1].([]interface{})
	for _, v := range entries {
		acc, ok := v.([]interface{})
		if !ok {
			continue
		}
		email := field[string](acc, 3)
		if !strings.Contains(email, "@") {
			continue
		}
		accounts = append(accounts, Account{
			Name:      optional(field[string](acc, 2)),
			Email:     email,
			AvatarURL: optional(field[string](acc, 4)),
			IsActive:  truthy(at(acc, 5)),
			IsDefault: truthy(at(acc, 6)),
			Index:     len(accounts),
		})
	}
	return accounts
}

func at(arr []interface{}, i int) interface{} {
	if i < 0 || i >= len(arr) {
		return nil
	}
	return arr[i]
}

func field[T any](arr []interface{}, i int) T {
	v, _ := at(arr, i).(T)
	return v
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// truthy treats 1 and true as set; the feed uses both.
func truthy(v interface{}) bool {
	switch t := v.(type) {
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		return t != ""
	default:
		return v != nil
	}
}
