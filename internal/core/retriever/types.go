package retriever

import (
	"context"

	"book-indexer/internal/core/ingest"
	"book-indexer/internal/core/keyword"
)

// Filters represents optional constraints applied during search.
type Filters struct {
	BookID        string
	BookVersionID string
}

type Embedder interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
}

type VectorSearcher interface {
	Search(ctx context.Context, vector []float32, topK int, expr string) ([]ingest.Hit, error)
}

type KeywordSearcher interface {
	Search(ctx context.Context, p keyword.SearchParams) ([]keyword.Hit, error)
}

// Retriever answers semantic and exact-match queries over the indexed books.
// Either searcher may be nil when that index is not configured.
type Retriever struct {
	embedder Embedder
	vectors  VectorSearcher
	keywords KeywordSearcher
}

func New(embedder Embedder, vectors VectorSearcher, keywords KeywordSearcher) *Retriever {
	return &Retriever{embedder: embedder, vectors: vectors, keywords: keywords}
}
