// Package rpc binds NotebookLM procedure ids to the batchexecute transport
// and the account's session tokens.
package rpc

import (
	"context"
	"errors"
	"sync"

	"github.com/tmc/nlmsend/internal/auth"
	"github.com/tmc/nlmsend/internal/batchexecute"
)

// RPC endpoint IDs for NotebookLM services
const (
	RPCListRecentlyViewedProjects = "wXbhsf" // ListRecentlyViewedProjects
	RPCCreateProject              = "CCqFvf" // CreateProject
	RPCGetProject                 = "rLM1Ne" // GetProject, also polled for ingestion status
	RPCAddSources                 = "izAoDd" // AddSources
	RPCDeleteSources              = "tGMBJ"  // DeleteSources
)

// Call represents a NotebookLM RPC call
type Call struct {
	ID         string        // RPC endpoint ID
	Args       []interface{} // Arguments for the call
	NotebookID string        // Optional notebook ID for context
}

// SourcePath returns the source-path the host expects for a call about
// notebookID, or the root path when it is empty.
func SourcePath(notebookID string) string {
	if notebookID == "" {
		return "/"
	}
	return "/notebook/" + notebookID
}

// TokenSource hands out tokens for an account and forgets them on demand.
// *auth.TokenManager implements it.
type TokenSource interface {
	Current(ctx context.Context, accountIndex int) (*auth.Tokens, error)
	Invalidate()
}

// Client handles NotebookLM RPC communication
type Client struct {
	client *batchexecute.Client
	tokens TokenSource

	mu      sync.Mutex
	account int
}

// New creates a new NotebookLM RPC client
func New(tokens TokenSource, cookies string, options ...batchexecute.Option) *Client {
	config := batchexecute.Config{
		Host:    batchexecute.DefaultHost,
		App:     batchexecute.DefaultApp,
		Cookies: cookies,
		Headers: map[string]string{
			"origin":          "https://notebooklm.google.com",
			"referer":         "https://notebooklm.google.com/",
			"x-same-domain":   "1",
			"accept":          "*/*",
			"accept-language": "en-US,en;q=0.9",
			"cache-control":   "no-cache",
			"pragma":          "no-cache",
		},
	}
	return NewWithConfig(tokens, config, options...)
}

// NewWithConfig creates a client for an explicit transport configuration.
func NewWithConfig(tokens TokenSource, config batchexecute.Config, options ...batchexecute.Option) *Client {
	return &Client{
		client: batchexecute.NewClient(config, options...),
		tokens: tokens,
	}
}

// SetAccount scopes subsequent calls to the account at index n.
func (c *Client) SetAccount(n int) {
	c.mu.Lock()
	c.account = n
	c.mu.Unlock()
}

// Account returns the current account index.
func (c *Client) Account() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.account
}

// Do executes a NotebookLM RPC call and returns the raw response text.
// Token failures are returned unchanged. An authorization failure from the
// host drops the cached tokens so the next call re-acquires them.
func (c *Client) Do(ctx context.Context, call Call) (string, error) {
	account := c.Account()
	tokens, err := c.tokens.Current(ctx, account)
	if err != nil {
		return "", err
	}

	raw, err := c.client.Do(ctx, batchexecute.RPC{
		ID:         call.ID,
		Args:       call.Args,
		SourcePath: SourcePath(call.NotebookID),
	}, batchexecute.Auth{
		SecurityToken: tokens.SecurityToken,
		SessionToken:  tokens.SessionToken,
		AuthUser:      account,
	})
	if err != nil {
		if errors.Is(err, batchexecute.ErrUnauthorized) {
			c.tokens.Invalidate()
		}
		return "", err
	}
	return raw, nil
}
