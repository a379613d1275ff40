package keyword

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var ErrEmptyQuery = errors.New("empty query")

type SearchParams struct {
	Query         string
	BookID        string
	BookVersionID string
	Limit         int
}

// Hit is a matching page. Lower Rank is better.
type Hit struct {
	PageRecord
	Snippet string  `json:"snippet"`
	Rank    float64 `json:"rank"`
}

// Search returns pages containing every query term, best match first.
func (s *Store) Search(ctx context.Context, p SearchParams) ([]Hit, error) {
	match := ftsQuery(p.Query)
	if match == "" {
		return nil, ErrEmptyQuery
	}
	limit := p.Limit
	if limit <= 0 {
		limit = 20
	}

	where := []string{"pages_fts MATCH ?"}
	args := []interface{}{match}
	if p.BookID != "" {
		where = append(where, "p.book_id = ?")
		args = append(args, p.BookID)
	}
	if p.BookVersionID != "" {
		where = append(where, "p.book_version_id = ?")
		args = append(args, p.BookVersionID)
	}
	args = append(args, limit)

	query := fmt.Sprintf(`
		SELECT p.id, p.book_id, p.book_version_id, p.content, p.chapters, p.page, p.volume, p.idx,
		       snippet(pages_fts, 0, '<em>', '</em>', '…', 24), bm25(pages_fts)
		FROM pages_fts
		JOIN pages p ON p.rowid = pages_fts.rowid
		WHERE %s
		ORDER BY bm25(pages_fts), p.idx
		LIMIT ?`, strings.Join(where, " AND "))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	hits := []Hit{}
	for rows.Next() {
		var (
			h        Hit
			chapters string
			page     sql.NullInt64
			volume   sql.NullString
		)
		if err := rows.Scan(&h.ID, &h.BookID, &h.BookVersionID, &h.Content, &chapters, &page, &volume, &h.Index, &h.Snippet, &h.Rank); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(chapters), &h.Chapters); err != nil {
			return nil, fmt.Errorf("decode chapters of %s: %w", h.ID, err)
		}
		if page.Valid {
			v := int(page.Int64)
			h.Page = &v
		}
		h.Volume = volume.String
		hits = append(hits, h)
	}
	return hits, rows.Err()
}
