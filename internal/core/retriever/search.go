package retriever

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"book-indexer/config"
	"book-indexer/internal/core/ingest"
	"book-indexer/internal/core/keyword"
	"book-indexer/pkg/logger"
)

const (
	DefaultTopK = 8
	MaxTopK     = 64
)

var ErrNotConfigured = errors.New("search index not configured")

// ClampTopK applies the default and the upper bound.
func ClampTopK(k int) int {
	if k <= 0 {
		return DefaultTopK
	}
	return min(k, MaxTopK)
}

// Search embeds the question and returns the closest chunks.
func (r *Retriever) Search(ctx context.Context, question string, topK int, filters Filters) ([]ingest.Hit, error) {
	if r.vectors == nil || r.embedder == nil {
		return nil, ErrNotConfigured
	}
	vec, err := r.EmbedQuestion(ctx, question)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	hits, err := r.vectors.Search(ctx, vec, ClampTopK(topK), buildExpr(filters))
	if err != nil {
		logger.Error(err, "%v: vector search failed", config.ModuleRetriever)
		return nil, err
	}
	logger.Debug("%v: vector search done in %dms", config.ModuleRetriever, time.Since(start).Milliseconds())
	return hits, nil
}

// Keyword runs an exact-match page search.
func (r *Retriever) Keyword(ctx context.Context, query string, limit int, filters Filters) ([]keyword.Hit, error) {
	if r.keywords == nil {
		return nil, ErrNotConfigured
	}
	return r.keywords.Search(ctx, keyword.SearchParams{
		Query:         query,
		BookID:        filters.BookID,
		BookVersionID: filters.BookVersionID,
		Limit:         ClampTopK(limit),
	})
}

// buildExpr renders filters as a Milvus boolean expression.
func buildExpr(f Filters) string {
	var parts []string
	if f.BookID != "" {
		parts = append(parts, "book_id == "+quote(f.BookID))
	}
	if f.BookVersionID != "" {
		parts = append(parts, "book_version_id == "+quote(f.BookVersionID))
	}
	return strings.Join(parts, " && ")
}

func quote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
