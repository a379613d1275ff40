package ingest

import (
	"encoding/base64"
	"fmt"
	"strconv"

	"book-indexer/internal/core/book"
)

// ChunkRecord is one row of the vector index.
type ChunkRecord struct {
	ID            string         `json:"id"`
	BookID        string         `json:"book_id"`
	BookVersionID string         `json:"book_version_id"`
	PrevID        string         `json:"prev_id,omitempty"`
	NextID        string         `json:"next_id,omitempty"`
	Content       string         `json:"chunk_content"`
	Embedding     []float32      `json:"chunk_embedding,omitempty"`
	Chapters      []int          `json:"chapters"`
	Pages         []book.PageRef `json:"pages"`
}

// MakeChunkID is stable across runs as long as the chunk sequence is.
func MakeChunkID(bookID string, v book.Version, idx int) string {
	raw := bookID + ":" + string(v.Source) + ":" + v.Value + ":" + strconv.Itoa(idx)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// BuildRecords turns the chunks of one version into records linked to their
// neighbours. vectors may be nil when embeddings are attached later.
func BuildRecords(bookID string, v book.Version, chunks []book.Chunk, vectors [][]float32) ([]ChunkRecord, error) {
	if vectors != nil && len(vectors) != len(chunks) {
		return nil, fmt.Errorf("got %d vectors for %d chunks", len(vectors), len(chunks))
	}

	records := make([]ChunkRecord, len(chunks))
	for i, c := range chunks {
		r := ChunkRecord{
			ID:            MakeChunkID(bookID, v, i),
			BookID:        bookID,
			BookVersionID: v.ID(),
			Content:       c.Text,
			Chapters:      c.Metadata.ChaptersIndices,
			Pages:         c.Metadata.Pages,
		}
		if i > 0 {
			r.PrevID = MakeChunkID(bookID, v, i-1)
		}
		if i < len(chunks)-1 {
			r.NextID = MakeChunkID(bookID, v, i+1)
		}
		if vectors != nil {
			r.Embedding = vectors[i]
		}
		records[i] = r
	}
	return records, nil
}

// Batches splits items into consecutive slices of at most size elements.
func Batches[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = len(items)
	}
	var out [][]T
	for start := 0; start < len(items); start += size {
		out = append(out, items[start:min(start+size, len(items))])
	}
	return out
}
