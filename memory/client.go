// Package memory is the thin client side of the semantic search collaborator.
//
// Ranking is a black box that lives behind the Searcher interface; this
// package only filters, caps and orders what the collaborator returns, and
// shields the send pipeline from the collaborator's failures.
package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"pulse/config"
	"pulse/model"
)

// Searcher is the external semantic-search collaborator.
type Searcher interface {
	// Search returns snippets ranked by similarity descending.
	Search(ctx context.Context, query string, topK int, threshold float64, scope string) ([]model.MemorySnippet, error)
}

const (
	DefaultTopK             = 5
	DefaultAugmentTopK      = 3
	DefaultAugmentThreshold = 0.4
	DefaultAugmentTimeout   = 2 * time.Second
	DefaultMinQueryLength   = 2
)

// Options tunes the retrieval client. Zero values fall back to defaults.
type Options struct {
	AugmentTopK      int
	AugmentThreshold float64
	AugmentTimeout   time.Duration
	MinQueryLength   int
}

// Client wraps a Searcher with the two usage modes the conversation core
// needs: interactive lookup and per-turn best-effort augmentation.
type Client struct {
	searcher Searcher
	opts     Options
}

// NewClient creates a retrieval client. A nil searcher is allowed and turns
// every operation into a no-op, which is how "memory disabled" is modeled.
func NewClient(searcher Searcher, opts Options) *Client {
	if opts.AugmentTopK <= 0 {
		opts.AugmentTopK = DefaultAugmentTopK
	}
	if opts.AugmentThreshold <= 0 {
		opts.AugmentThreshold = DefaultAugmentThreshold
	}
	if opts.AugmentTimeout <= 0 {
		opts.AugmentTimeout = DefaultAugmentTimeout
	}
	if opts.MinQueryLength <= 0 {
		opts.MinQueryLength = DefaultMinQueryLength
	}
	return &Client{searcher: searcher, opts: opts}
}

// Query performs an interactive search. Queries shorter than the minimum
// length short-circuit to an empty result without calling the collaborator.
// Results are capped at topK, restricted to similarity > threshold and
// ordered similarity-descending.
func (c *Client) Query(ctx context.Context, text string, topK int, threshold float64, scope string) ([]model.MemorySnippet, error) {
	if c == nil || c.searcher == nil {
		return nil, nil
	}

	text = strings.TrimSpace(text)
	if len([]rune(text)) < c.opts.MinQueryLength {
		return nil, nil
	}
	if topK <= 0 {
		topK = DefaultTopK
	}

	snippets, err := c.searcher.Search(ctx, text, topK, threshold, scope)
	if err != nil {
		return nil, err
	}

	filtered := snippets[:0:0]
	for _, s := range snippets {
		if s.Similarity > threshold {
			filtered = append(filtered, s)
		}
	}

	// The collaborator promises descending order; re-sort anyway so a sloppy
	// backend cannot break the window builder's ordering guarantee.
	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].Similarity > filtered[j].Similarity
	})

	if len(filtered) > topK {
		filtered = filtered[:topK]
	}
	return filtered, nil
}

// Augment retrieves context for one outgoing turn. Best-effort: failures and
// timeouts degrade to "no context available" and are only debug-logged; the
// send path never sees an error from here.
func (c *Client) Augment(ctx context.Context, prompt, scope string) []model.MemorySnippet {
	if c == nil || c.searcher == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.opts.AugmentTimeout)
	defer cancel()

	snippets, err := c.Query(ctx, prompt, c.opts.AugmentTopK, c.opts.AugmentThreshold, scope)
	if err != nil {
		if config.Debug && config.DebugLog != nil {
			config.DebugLog.Printf("[Memory] augmentation lookup failed, continuing without context: %v", err)
		}
		return nil
	}
	return snippets
}
