package model

import "time"

// MemorySnippet is a ranked piece of previously stored text returned by the
// semantic search collaborator. Snippets are read-only: the core consumes them
// transiently per request and never creates or mutates them.
type MemorySnippet struct {
	Text       string
	Similarity float64 // in [0, 1], higher is closer
	Tags       []string
	CreatedAt  time.Time
}
