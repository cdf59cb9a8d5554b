package api

import (
	"log/slog"
	"strings"
	"time"
)

// Option configures a Client
type Option func(*Client)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithPollInterval sets the pause between WaitUntilReady polls
func WithPollInterval(d time.Duration) Option {
	return func(c *Client) {
		c.pollInterval = d
	}
}

// WithBaseURL sets the origin used by NotebookURL
func WithBaseURL(u string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(u, "/")
	}
}

// WithDeleteBatchSize sets how many sources one delete call carries
func WithDeleteBatchSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.deleteBatchSize = n
		}
	}
}
