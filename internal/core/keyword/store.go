// Package keyword keeps a page-level full-text index of book versions in
// SQLite FTS5.
package keyword

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"book-indexer/internal/core/book"

	_ "modernc.org/sqlite"
)

// PageRecord is one indexed page. Content is the page text as published.
type PageRecord struct {
	ID            string `json:"id"`
	BookID        string `json:"book_id"`
	BookVersionID string `json:"book_version_id"`
	Content       string `json:"content"`
	Chapters      []int  `json:"chapters"`
	Page          *int   `json:"page"`
	Volume        string `json:"volume,omitempty"`
	Index         int    `json:"index"`
}

// Store is the SQLite keyword index.
type Store struct {
	db *sql.DB
}

// Open opens or creates the index at path. ":memory:" keeps it in memory.
func Open(path string) (*Store, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create index dir: %w", err)
		}
		dsn = path + "?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	if path == ":memory:" {
		// every connection would get its own empty database
		db.SetMaxOpenConns(1)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS pages (
		id              TEXT NOT NULL UNIQUE,
		book_id         TEXT NOT NULL,
		book_version_id TEXT NOT NULL,
		content         TEXT NOT NULL,
		chapters        TEXT NOT NULL DEFAULT '[]',
		page            INTEGER,
		volume          TEXT,
		idx             INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_pages_book ON pages(book_id);
	CREATE INDEX IF NOT EXISTS idx_pages_version ON pages(book_version_id, idx);

	CREATE VIRTUAL TABLE IF NOT EXISTS pages_fts USING fts5(
		content,
		content=pages,
		content_rowid=rowid,
		tokenize='unicode61 remove_diacritics 0'
	);

	CREATE TRIGGER IF NOT EXISTS pages_ai AFTER INSERT ON pages BEGIN
		INSERT INTO pages_fts(rowid, content) VALUES (new.rowid, new.content);
	END;
	CREATE TRIGGER IF NOT EXISTS pages_ad AFTER DELETE ON pages BEGIN
		INSERT INTO pages_fts(pages_fts, rowid, content) VALUES('delete', old.rowid, old.content);
	END;
	CREATE TRIGGER IF NOT EXISTS pages_au AFTER UPDATE ON pages BEGIN
		INSERT INTO pages_fts(pages_fts, rowid, content) VALUES('delete', old.rowid, old.content);
		INSERT INTO pages_fts(rowid, content) VALUES (new.rowid, new.content);
	END;
	`
	_, err := s.db.Exec(schema)
	return err
}

// Records converts prepared pages of one version into index records.
func Records(bookID string, v book.Version, pages []book.PreparedPage, id func(idx int) string) []PageRecord {
	out := make([]PageRecord, len(pages))
	for i, p := range pages {
		out[i] = PageRecord{
			ID:            id(p.Index),
			BookID:        bookID,
			BookVersionID: v.ID(),
			Content:       p.Text,
			Chapters:      p.ChaptersIndices,
			Page:          p.Page,
			Volume:        p.Volume,
			Index:         p.Index,
		}
	}
	return out
}

// UpsertPages writes records in one transaction, replacing rows with the same id.
func (s *Store) UpsertPages(ctx context.Context, records []PageRecord) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO pages (id, book_id, book_version_id, content, chapters, page, volume, idx)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			book_id = excluded.book_id,
			book_version_id = excluded.book_version_id,
			content = excluded.content,
			chapters = excluded.chapters,
			page = excluded.page,
			volume = excluded.volume,
			idx = excluded.idx`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range records {
		chapters := r.Chapters
		if chapters == nil {
			chapters = []int{}
		}
		ch, err := json.Marshal(chapters)
		if err != nil {
			return err
		}
		var page sql.NullInt64
		if r.Page != nil {
			page = sql.NullInt64{Int64: int64(*r.Page), Valid: true}
		}
		var volume sql.NullString
		if r.Volume != "" {
			volume = sql.NullString{String: r.Volume, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, r.ID, r.BookID, r.BookVersionID, r.Content, string(ch), page, volume, r.Index); err != nil {
			return fmt.Errorf("upsert page %s: %w", r.ID, err)
		}
	}
	return tx.Commit()
}

// DeleteVersion removes every page of a book version and returns how many
// rows went away.
func (s *Store) DeleteVersion(ctx context.Context, bookVersionID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM pages WHERE book_version_id = ?`, bookVersionID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CountVersion returns the number of indexed pages of a book version.
func (s *Store) CountVersion(ctx context.Context, bookVersionID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pages WHERE book_version_id = ?`, bookVersionID).Scan(&n)
	return n, err
}

// ftsQuery turns free text into an FTS5 query matching every term literally.
func ftsQuery(q string) string {
	fields := strings.Fields(q)
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		terms = append(terms, `"`+strings.ReplaceAll(f, `"`, `""`)+`"`)
	}
	return strings.Join(terms, " ")
}
