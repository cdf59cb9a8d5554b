package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/samber/lo"
	"github.com/tmc/nlmsend/internal/batchexecute"
	"github.com/tmc/nlmsend/internal/rpc"
)

const (
	// DefaultBaseURL is the NotebookLM web origin.
	DefaultBaseURL = "https://notebooklm.google.com"
	// DefaultWaitAttempts bounds WaitUntilReady.
	DefaultWaitAttempts = 30
	// DefaultDeleteBatchSize is the most source ids the host accepts in one
	// delete call.
	DefaultDeleteBatchSize = 20
)

// Doer executes one RPC and returns the raw response text. *rpc.Client
// implements it.
type Doer interface {
	Do(ctx context.Context, call rpc.Call) (string, error)
}

// Client handles NotebookLM API interactions.
type Client struct {
	rpc             Doer
	logger          *slog.Logger
	pollInterval    time.Duration
	baseURL         string
	deleteBatchSize int
}

// New creates a new NotebookLM API client.
func New(r Doer, opts ...Option) *Client {
	c := &Client{
		rpc:             r,
		logger:          slog.New(slog.DiscardHandler),
		pollInterval:    time.Second,
		baseURL:         DefaultBaseURL,
		deleteBatchSize: DefaultDeleteBatchSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Notebook operations

// ListNotebooks returns the account's own notebooks. On failure it returns
// an empty list along with the error.
func (c *Client) ListNotebooks(ctx context.Context) ([]Notebook, error) {
	raw, err := c.rpc.Do(ctx, rpc.Call{
		ID:   rpc.RPCListRecentlyViewedProjects,
		Args: []interface{}{nil, 1, nil, []interface{}{2}},
	})
	if err != nil {
		return []Notebook{}, fmt.Errorf("list notebooks: %w", err)
	}
	notebooks := ParseNotebookList(raw)
	if len(notebooks) == 0 {
		c.dumpPayload(ctx, "empty notebook list", raw)
	}
	return notebooks, nil
}

// CreateNotebook creates a notebook titled title. The emoji is not sent to
// the host; it is echoed back for display.
func (c *Client) CreateNotebook(ctx context.Context, title, emoji string) (*Notebook, error) {
	raw, err := c.rpc.Do(ctx, rpc.Call{
		ID:   rpc.RPCCreateProject,
		Args: []interface{}{title},
	})
	if err != nil {
		return nil, fmt.Errorf("create notebook: %w", err)
	}
	id, err := ExtractNotebookID(raw)
	if err != nil {
		c.dumpPayload(ctx, "create response without id", raw)
		return nil, err
	}
	return &Notebook{ID: id, Name: title, Emoji: emoji}, nil
}

// GetNotebook returns a notebook and its sources.
func (c *Client) GetNotebook(ctx context.Context, notebookID string) (*NotebookDetail, error) {
	if notebookID == "" {
		return nil, fmt.Errorf("%w: notebook id required", ErrInvalidInput)
	}
	raw, err := c.rpc.Do(ctx, rpc.Call{
		ID:         rpc.RPCGetProject,
		Args:       []interface{}{notebookID, nil, []interface{}{2}, nil, 0},
		NotebookID: notebookID,
	})
	if err != nil {
		return nil, fmt.Errorf("get notebook: %w", err)
	}
	detail := ParseNotebookDetail(raw)
	return &detail, nil
}

// GetSources returns the sources of a notebook.
func (c *Client) GetSources(ctx context.Context, notebookID string) ([]Source, error) {
	detail, err := c.GetNotebook(ctx, notebookID)
	if err != nil {
		return nil, err
	}
	return detail.Sources, nil
}

// NotebookReady polls the status procedure once.
func (c *Client) NotebookReady(ctx context.Context, notebookID string) (bool, error) {
	raw, err := c.rpc.Do(ctx, rpc.Call{
		ID:         rpc.RPCGetProject,
		Args:       []interface{}{notebookID, nil, []interface{}{2}},
		NotebookID: notebookID,
	})
	if err != nil {
		return false, fmt.Errorf("notebook status: %w", err)
	}
	return IsNotebookReady(raw, notebookID), nil
}

// WaitUntilReady polls NotebookReady up to maxAttempts times, pausing the
// poll interval after each negative answer. Running out of attempts is not
// an error: it returns false and callers carry on.
func (c *Client) WaitUntilReady(ctx context.Context, notebookID string, maxAttempts int) (bool, error) {
	if maxAttempts <= 0 {
		maxAttempts = DefaultWaitAttempts
	}
	for i := 0; i < maxAttempts; i++ {
		ready, err := c.NotebookReady(ctx, notebookID)
		if err != nil {
			return false, err
		}
		if ready {
			c.logger.DebugContext(ctx, "notebook ready", "notebook", notebookID, "polls", i+1)
			return true, nil
		}
		t := time.NewTimer(c.pollInterval)
		select {
		case <-ctx.Done():
			t.Stop()
			return false, ctx.Err()
		case <-t.C:
		}
	}
	c.logger.DebugContext(ctx, "notebook not ready", "notebook", notebookID, "polls", maxAttempts)
	return false, nil
}

// NotebookURL returns the web address of a notebook for an account.
func (c *Client) NotebookURL(notebookID string, authUser int) string {
	base := c.baseURL + "/notebook/" + url.PathEscape(notebookID)
	if authUser > 0 {
		return base + "?authuser=" + strconv.Itoa(authUser)
	}
	return base
}

// Source operations

// IsYouTubeURL reports whether u points at YouTube.
func IsYouTubeURL(u string) bool {
	return strings.Contains(u, "youtube.com") || strings.Contains(u, "youtu.be")
}

// sourceEntry wraps a URL the way AddSources expects it: videos in an
// eight slot tuple, everything else in a three slot tuple.
func sourceEntry(u string) []interface{} {
	if IsYouTubeURL(u) {
		return []interface{}{nil, nil, nil, nil, nil, nil, nil, []interface{}{u}}
	}
	return []interface{}{nil, nil, []interface{}{u}}
}

// AddSources adds every URL to the notebook in a single call.
func (c *Client) AddSources(ctx context.Context, notebookID string, urls []string) error {
	if notebookID == "" {
		return fmt.Errorf("%w: notebook id required", ErrInvalidInput)
	}
	if len(urls) == 0 {
		return fmt.Errorf("%w: no URLs", ErrInvalidInput)
	}
	sources := lo.Map(urls, func(u string, _ int) interface{} { return sourceEntry(u) })
	_, err := c.rpc.Do(ctx, rpc.Call{
		ID:         rpc.RPCAddSources,
		Args:       []interface{}{sources, notebookID},
		NotebookID: notebookID,
	})
	if err != nil {
		return fmt.Errorf("add sources: %w", err)
	}
	return nil
}

// AddSource adds one URL.
func (c *Client) AddSource(ctx context.Context, notebookID, u string) error {
	return c.AddSources(ctx, notebookID, []string{u})
}

// AddTextSource adds pasted text as a source. An empty title becomes
// DefaultTextTitle.
func (c *Client) AddTextSource(ctx context.Context, notebookID, text, title string) error {
	if notebookID == "" {
		return fmt.Errorf("%w: notebook id required", ErrInvalidInput)
	}
	if title == "" {
		title = DefaultTextTitle
	}
	_, err := c.rpc.Do(ctx, rpc.Call{
		ID:         rpc.RPCAddSources,
		Args:       []interface{}{[]interface{}{[]interface{}{text, title}}, notebookID},
		NotebookID: notebookID,
	})
	if err != nil {
		return fmt.Errorf("add text source: %w", err)
	}
	return nil
}

// DeleteSource removes one source.
func (c *Client) DeleteSource(ctx context.Context, notebookID, sourceID string) error {
	_, err := c.DeleteSources(ctx, notebookID, []string{sourceID})
	return err
}

// DeleteSources removes sources in sequential chunks. The first failing
// chunk stops the run; the returned *DeleteError carries how many were
// removed before it.
func (c *Client) DeleteSources(ctx context.Context, notebookID string, sourceIDs []string) (DeleteResult, error) {
	if len(sourceIDs) == 0 {
		return DeleteResult{Success: true}, nil
	}
	deleted := 0
	for _, batch := range lo.Chunk(sourceIDs, c.deleteBatchSize) {
		ids := lo.Map(batch, func(id string, _ int) interface{} { return []interface{}{id} })
		_, err := c.rpc.Do(ctx, rpc.Call{
			ID:         rpc.RPCDeleteSources,
			Args:       []interface{}{ids},
			NotebookID: notebookID,
		})
		if err != nil {
			return DeleteResult{DeletedCount: deleted}, &DeleteError{
				Deleted:   deleted,
				Remaining: len(sourceIDs) - deleted,
				Err:       err,
			}
		}
		deleted += len(batch)
		c.logger.DebugContext(ctx, "deleted sources", "notebook", notebookID, "deleted", deleted, "total", len(sourceIDs))
	}
	return DeleteResult{Success: true, DeletedCount: deleted}, nil
}

func (c *Client) dumpPayload(ctx context.Context, msg, raw string) {
	if !c.logger.Enabled(ctx, slog.LevelDebug) {
		return
	}
	payload, err := batchexecute.DecodePayload(raw)
	if err != nil {
		c.logger.DebugContext(ctx, msg, "decode_error", err, "bytes", len(raw))
		return
	}
	c.logger.DebugContext(ctx, msg, "payload", spew.Sdump(payload))
}
