// Package content fetches candidate reference passages for question
// synthesis. Retrieval is read-only; an empty result is a valid outcome,
// not a fault.
package content

import (
	"log/slog"

	"github.com/examforge/examforge/internal/model"
)

// ChunkSource is the read surface of the content store.
type ChunkSource interface {
	SearchChunks(subject string, topics []string, language string, limit int) ([]model.ContentChunk, error)
}

// Query selects chunks by subject and optional topic set. Topics empty
// means no topic filter.
type Query struct {
	Subject  string
	Topics   []string
	Language string
	Limit    int
}

// DefaultLimit bounds retrieval when the caller does not set one.
const DefaultLimit = 20

// Retriever performs relevance-ordered chunk lookup.
type Retriever struct {
	source ChunkSource
	logger *slog.Logger
}

// New creates a Retriever over the given source.
func New(source ChunkSource, logger *slog.Logger) *Retriever {
	return &Retriever{source: source, logger: logger.With("component", "retriever")}
}

// Search returns chunks ordered by relevance. A nil or empty slice with a
// nil error means nothing matched; callers must treat that as a distinct,
// recoverable condition.
func (r *Retriever) Search(q Query) ([]model.ContentChunk, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	chunks, err := r.source.SearchChunks(q.Subject, q.Topics, q.Language, limit)
	if err != nil {
		return nil, err
	}
	r.logger.Debug("content retrieved",
		"subject", q.Subject, "topics", q.Topics, "language", q.Language, "count", len(chunks))
	return chunks, nil
}
