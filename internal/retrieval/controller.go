package retrieval

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"JarvisChat/internal/backend"
)

var ErrBusy = errors.New("a search is already in flight")

// SearchClient is the part of the backend the controller needs
type SearchClient interface {
	Search(ctx context.Context, query string, topK int, category *string) (*backend.SearchResponse, error)
}

// Outcome is the latest search. Exactly one of Response and Err is set.
type Outcome struct {
	Query    string
	TopK     int
	Response *backend.SearchResponse
	Err      error
}

// Controller runs knowledge-base searches. It holds only the latest
// outcome and never touches the conversation.
type Controller struct {
	client   SearchClient
	logger   *slog.Logger
	inFlight atomic.Bool

	mu   sync.RWMutex
	last *Outcome
}

// NewController creates a retrieval controller
func NewController(client SearchClient, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		client: client,
		logger: logger.With("component", "retrieval"),
	}
}

// Search issues one query. The previous outcome is replaced whether the
// call succeeds or fails.
func (c *Controller) Search(ctx context.Context, query string, topK int, category string) (*backend.SearchResponse, error) {
	if !c.inFlight.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer c.inFlight.Store(false)

	topK = backend.ClampTopK(topK)
	var categoryParam *string
	if trimmed := strings.TrimSpace(category); trimmed != "" {
		categoryParam = &trimmed
	}

	resp, err := c.client.Search(ctx, query, topK, categoryParam)

	outcome := &Outcome{Query: query, TopK: topK}
	if err != nil {
		outcome.Err = err
		c.logger.Warn("search failed", "query", query, "kind", backend.KindOf(err).String(), "error", err)
	} else {
		outcome.Response = resp
		c.logger.Debug("search completed", "query", query, "top_k", topK, "total_results", resp.TotalResults)
	}

	c.mu.Lock()
	c.last = outcome
	c.mu.Unlock()

	return resp, err
}

// Last returns the most recent outcome, or nil before the first search
func (c *Controller) Last() *Outcome {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.last
}

// Busy reports whether a search is in flight
func (c *Controller) Busy() bool {
	return c.inFlight.Load()
}
