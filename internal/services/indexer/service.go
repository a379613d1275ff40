// Package indexer runs one book version through fetching, chunking and the
// search indexes.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"book-indexer/config"
	"book-indexer/internal/core/book"
	"book-indexer/internal/core/chunker"
	"book-indexer/internal/core/ingest"
	"book-indexer/internal/core/keyword"
	"book-indexer/internal/core/prepare"
	"book-indexer/internal/core/splitter"
	"book-indexer/internal/core/version"
	"book-indexer/internal/database"
	"book-indexer/internal/database/model"
	"book-indexer/internal/sources"
	"book-indexer/pkg/logger"
	"book-indexer/pkg/retry"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// ErrNotIndexable is returned for versions that carry no text of their own.
var ErrNotIndexable = errors.New("version is not indexable")

// ErrIndexNotConfigured is returned when the index a run writes to was not opened.
var ErrIndexNotConfigured = errors.New("index not configured")

type Books interface {
	GetBook(ctx context.Context, id string) (*model.Book, error)
	MarkVersion(ctx context.Context, bookID, value string, kind database.Support) error
}

type Fetcher interface {
	Fetch(ctx context.Context, ref sources.Ref, v book.Version) (book.Content, error)
}

type Embedder interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
}

type VectorIndex interface {
	Upsert(ctx context.Context, records []ingest.ChunkRecord) error
	DeleteVersion(ctx context.Context, bookVersionID string) error
}

type KeywordIndex interface {
	UpsertPages(ctx context.Context, records []keyword.PageRecord) error
	DeleteVersion(ctx context.Context, bookVersionID string) (int64, error)
}

type Options struct {
	BatchSize        int
	ParallelBatches  int
	KeywordBatchSize int
	MaxAttempts      int
	RetryDelay       time.Duration
}

// OptionsFromSettings maps config.Cfg.Ingest onto Options.
func OptionsFromSettings() Options {
	c := config.Cfg.Ingest
	return Options{
		BatchSize:        c.BatchSize,
		ParallelBatches:  c.ParallelBatches,
		KeywordBatchSize: c.KeywordBatchSize,
		MaxAttempts:      c.MaxRetries,
		RetryDelay:       time.Duration(c.RetryDelaySeconds) * time.Second,
	}
}

// Service wires the collaborators of an indexing run. Vectors and Embedder
// are only needed by IndexVectors, Keywords only by IndexKeywords.
type Service struct {
	Books    Books
	Fetcher  Fetcher
	Embedder Embedder
	Vectors  VectorIndex
	Keywords KeywordIndex
	Splitter *splitter.Splitter
	Options  Options
}

type Params struct {
	BookID string `json:"bookId"`
	// VersionID is a version value. Empty picks the default version.
	VersionID string `json:"versionId,omitempty"`
	Force     bool   `json:"force,omitempty"`
}

// Preview is the dry-run output of BuildChunks.
type Preview struct {
	BookID  string       `json:"bookId"`
	Version book.Version `json:"version"`
	Pages   int          `json:"pages"`
	Chunks  []book.Chunk `json:"chunks"`
}

// IndexVectors chunks, embeds and upserts one version, then marks it as AI
// supported. PDF and external versions are skipped.
func (s *Service) IndexVectors(ctx context.Context, p Params) Result {
	log := logger.Job(string(KindVector), p.BookID, p.VersionID)

	b, v, err := s.load(ctx, p)
	if err != nil {
		return failed(err, "")
	}
	switch {
	case v.Source == book.SourceExternal || v.Source == book.SourcePDF:
		return skipped(v, fmt.Sprintf("%s versions are not vector indexed", v.Source))
	case v.AISupported && !p.Force:
		return skipped(v, "already indexed")
	}
	if s.Embedder == nil || s.Vectors == nil {
		return failed(fmt.Errorf("%w: vectors", ErrIndexNotConfigured), "")
	}

	log.Infof("preparing pages for %s", v.ID())
	content, err := s.fetch(ctx, b, v)
	if err != nil {
		return failed(err, "fetch failed")
	}

	chunks, err := s.chunk(content)
	if err != nil {
		return failed(err, "failed to attach metadata")
	}
	if len(chunks) == 0 {
		return skipped(v, "no content")
	}

	records, err := ingest.BuildRecords(b.ID, v, chunks, nil)
	if err != nil {
		return failed(err, "build records")
	}

	if p.Force {
		if err := s.Vectors.DeleteVersion(ctx, v.ID()); err != nil {
			return failed(err, "delete previous chunks")
		}
	}

	if err := s.embedAndUpsert(ctx, log.WithField("chunks", len(records)), records); err != nil {
		return failed(err, "embed or upsert failed")
	}

	if err := s.Books.MarkVersion(ctx, b.ID, v.Value, database.SupportAI); err != nil {
		return failed(err, "mark version")
	}
	log.WithField("chunks", len(records)).Info("vector indexing done")
	return Result{Status: StatusSuccess, Version: &v, Count: len(records)}
}

// IndexKeywords writes one record per page, with the page text as published,
// then marks the version as keyword supported.
func (s *Service) IndexKeywords(ctx context.Context, p Params) Result {
	log := logger.Job(string(KindKeyword), p.BookID, p.VersionID)

	b, v, err := s.load(ctx, p)
	if err != nil {
		return failed(err, "")
	}
	switch {
	case v.Source == book.SourceExternal:
		return skipped(v, "external versions are not keyword indexed")
	case v.KeywordSupported && !p.Force:
		return skipped(v, "already indexed")
	}
	if s.Keywords == nil {
		return failed(fmt.Errorf("%w: keywords", ErrIndexNotConfigured), "")
	}

	content, err := s.fetch(ctx, b, v)
	if err != nil {
		return failed(err, "fetch failed")
	}
	pages := prepare.Pages(content.Pages, content.Headings, prepare.KeywordOptions())
	records := keyword.Records(b.ID, v, pages, func(idx int) string {
		return ingest.MakeChunkID(b.ID, v, idx)
	})

	if p.Force {
		if _, err := s.Keywords.DeleteVersion(ctx, v.ID()); err != nil {
			return failed(err, "delete previous pages")
		}
	}

	policy := s.policy("keyword upsert", nil)
	batches := ingest.Batches(records, s.Options.KeywordBatchSize)
	for i, batch := range batches {
		log.Debugf("upserting batch %d / %d", i+1, len(batches))
		_, err := retry.Do(ctx, policy, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, s.Keywords.UpsertPages(ctx, batch)
		})
		if err != nil {
			return failed(err, fmt.Sprintf("upsert batch %d", i+1))
		}
	}

	if err := s.Books.MarkVersion(ctx, b.ID, v.Value, database.SupportKeyword); err != nil {
		return failed(err, "mark version")
	}
	log.WithField("pages", len(records)).Info("keyword indexing done")
	return Result{Status: StatusSuccess, Version: &v, Count: len(records)}
}

// BuildChunks runs the vector chunking pipeline without touching any index.
func (s *Service) BuildChunks(ctx context.Context, p Params) (*Preview, error) {
	b, v, err := s.load(ctx, p)
	if err != nil {
		return nil, err
	}
	content, err := s.fetch(ctx, b, v)
	if err != nil {
		return nil, err
	}
	chunks, err := s.chunk(content)
	if err != nil {
		return nil, err
	}
	return &Preview{BookID: b.ID, Version: v, Pages: len(content.Pages), Chunks: chunks}, nil
}

func (s *Service) load(ctx context.Context, p Params) (*model.Book, book.Version, error) {
	b, err := s.Books.GetBook(ctx, p.BookID)
	if err != nil {
		return nil, book.Version{}, err
	}
	v, err := pickVersion(b.Versions, p.VersionID)
	if err != nil {
		return nil, book.Version{}, err
	}
	return b, v, nil
}

// pickVersion is strict about explicit requests: an unknown value is not
// replaced by the default version. When the default is an OpenITI version the
// best ranked OpenITI edition is used instead.
func pickVersion(versions []book.Version, requested string) (book.Version, error) {
	if requested == "" {
		v, err := version.Select(versions, "")
		if err != nil || v.Source != book.SourceOpenITI {
			return v, err
		}
		return version.SelectFromSource(versions, book.SourceOpenITI, "")
	}
	for _, v := range versions {
		if v.Value == requested {
			return v, nil
		}
	}
	return book.Version{}, fmt.Errorf("%w: %s", database.ErrVersionNotFound, requested)
}

func (s *Service) fetch(ctx context.Context, b *model.Book, v book.Version) (*book.PagedContent, error) {
	content, err := s.Fetcher.Fetch(ctx, sources.Ref{BookID: b.ID, AuthorID: b.AuthorID}, v)
	if err != nil {
		return nil, err
	}
	paged, ok := content.(*book.PagedContent)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotIndexable, v.ID())
	}
	return paged, nil
}

func (s *Service) chunk(content *book.PagedContent) ([]book.Chunk, error) {
	if s.Splitter == nil {
		return nil, errors.New("indexer: no splitter")
	}
	pages := prepare.Pages(content.Pages, content.Headings, prepare.VectorOptions(s.Splitter))
	return chunker.New(s.Splitter).Chunk(pages, content.Headings)
}

// embedAndUpsert processes batches concurrently. The first failing batch
// cancels the others.
func (s *Service) embedAndUpsert(ctx context.Context, log *logrus.Entry, records []ingest.ChunkRecord) error {
	embedPolicy := s.policy("embed", func(err error) bool { return !ingest.IsInputTooLarge(err) })
	upsertPolicy := s.policy("vector upsert", func(err error) bool { return !ingest.IsStorageQuotaError(err) })

	batches := ingest.Batches(records, s.Options.BatchSize)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, s.Options.ParallelBatches))

	for i, batch := range batches {
		g.Go(func() error {
			log.Debugf("embedding batch %d / %d", i+1, len(batches))
			inputs := make([]string, len(batch))
			for k, r := range batch {
				inputs[k] = r.Content
			}

			vectors, err := retry.Do(ctx, embedPolicy, func(ctx context.Context) ([][]float32, error) {
				return s.Embedder.Embed(ctx, inputs)
			})
			if err != nil {
				return fmt.Errorf("batch %d: %w", i+1, err)
			}
			if len(vectors) != len(batch) {
				return fmt.Errorf("batch %d: got %d vectors for %d chunks", i+1, len(vectors), len(batch))
			}
			for k := range batch {
				batch[k].Embedding = vectors[k]
			}

			_, err = retry.Do(ctx, upsertPolicy, func(ctx context.Context) (struct{}, error) {
				return struct{}{}, s.Vectors.Upsert(ctx, batch)
			})
			if err != nil {
				return fmt.Errorf("batch %d: %w", i+1, err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (s *Service) policy(name string, retryable func(error) bool) retry.Policy {
	return retry.Policy{
		MaxAttempts: s.Options.MaxAttempts,
		Delay:       s.Options.RetryDelay,
		Retryable:   retryable,
		Name:        name,
	}
}
