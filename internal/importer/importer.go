// Package importer sends many URLs to a notebook in fixed-size batches.
package importer

import (
	"context"
	"log/slog"
	"net/url"
	"strings"

	"github.com/samber/lo"
	"github.com/tmc/nlmsend/internal/api"
)

// DefaultBatchSize is how many URLs go into one add-sources call.
const DefaultBatchSize = 10

// ParseLinks returns the http and https URLs in text, one per line, in
// first-seen order without duplicates. Lines that do not parse are skipped.
func ParseLinks(text string) []string {
	links := []string{}
	for _, line := range strings.Split(text, "\n") {
		s := strings.TrimSpace(line)
		if !strings.HasPrefix(s, "http://") && !strings.HasPrefix(s, "https://") {
			continue
		}
		u, err := url.Parse(s)
		if err != nil || u.Host == "" {
			continue
		}
		links = append(links, s)
	}
	return lo.Uniq(links)
}

// SourceAdder adds URL sources to a notebook and waits for the host to
// ingest them. *api.Client implements it.
type SourceAdder interface {
	AddSources(ctx context.Context, notebookID string, urls []string) error
	WaitUntilReady(ctx context.Context, notebookID string, maxAttempts int) (bool, error)
}

// Progress reports how many URLs have been attempted so far.
type Progress struct {
	Current int
	Total   int
}

// Result counts the outcome of an import.
type Result struct {
	Imported int `json:"imported"`
	Failed   int `json:"failed"`
}

// Importer runs bulk imports.
type Importer struct {
	adder        SourceAdder
	batchSize    int
	waitAttempts int
	onProgress   func(Progress)
	logger       *slog.Logger
}

// Option configures an Importer.
type Option func(*Importer)

// WithBatchSize overrides DefaultBatchSize.
func WithBatchSize(n int) Option {
	return func(i *Importer) {
		if n > 0 {
			i.batchSize = n
		}
	}
}

// WithWaitAttempts bounds the readiness poll after each batch.
func WithWaitAttempts(n int) Option {
	return func(i *Importer) {
		if n > 0 {
			i.waitAttempts = n
		}
	}
}

// WithProgress registers fn to be called after every batch.
func WithProgress(fn func(Progress)) Option {
	return func(i *Importer) { i.onProgress = fn }
}

// WithLogger sets the logger for batch failures.
func WithLogger(l *slog.Logger) Option {
	return func(i *Importer) {
		if l != nil {
			i.logger = l
		}
	}
}

// New returns an Importer that sends batches through adder.
func New(adder SourceAdder, opts ...Option) *Importer {
	i := &Importer{
		adder:        adder,
		batchSize:    DefaultBatchSize,
		waitAttempts: api.DefaultWaitAttempts,
		logger:       slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Import adds urls to the notebook batch by batch. After each accepted batch
// it polls until the notebook reports ready before sending the next one; a
// notebook that never settles is logged and the import carries on. A failing
// batch counts every URL in it as failed and the import moves on to the next
// one. Only a cancelled context stops the run early; the result so far is
// returned with the context error.
func (i *Importer) Import(ctx context.Context, notebookID string, urls []string) (Result, error) {
	var res Result
	done := 0
	for _, batch := range lo.Chunk(urls, i.batchSize) {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := i.adder.AddSources(ctx, notebookID, batch); err != nil {
			i.logger.WarnContext(ctx, "batch failed", "notebook", notebookID, "size", len(batch), "error", err)
			res.Failed += len(batch)
		} else {
			res.Imported += len(batch)
			if err := i.wait(ctx, notebookID); err != nil {
				return res, err
			}
		}
		done += len(batch)
		if i.onProgress != nil {
			i.onProgress(Progress{Current: done, Total: len(urls)})
		}
	}
	return res, nil
}

// wait returns only context errors; everything else is logged.
func (i *Importer) wait(ctx context.Context, notebookID string) error {
	ready, err := i.adder.WaitUntilReady(ctx, notebookID, i.waitAttempts)
	switch {
	case ctx.Err() != nil:
		return ctx.Err()
	case err != nil:
		i.logger.WarnContext(ctx, "readiness check failed", "notebook", notebookID, "error", err)
	case !ready:
		i.logger.InfoContext(ctx, "notebook still processing", "notebook", notebookID, "polls", i.waitAttempts)
	}
	return nil
}
