package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"book-indexer/config"
	"book-indexer/internal/core/book"
	"book-indexer/pkg/logger"

	milvusclient "github.com/milvus-io/milvus-sdk-go/v2/client"
	milvusentity "github.com/milvus-io/milvus-sdk-go/v2/entity"
)

// PrimaryFullFlag is set once the primary collection rejects writes for lack
// of storage. Every later run writes to the fallback collection.
const PrimaryFullFlag = "vector-index:primary-full"

const (
	fieldID            = "id"
	fieldBookID        = "book_id"
	fieldBookVersionID = "book_version_id"
	fieldPrevID        = "prev_id"
	fieldNextID        = "next_id"
	fieldContent       = "content"
	fieldChapters      = "chapters"
	fieldPages         = "pages"
	fieldEmbedding     = "embedding"

	maxContentLength = 65535
)

// FlagStore persists flags shared across runs.
type FlagStore interface {
	GetFlag(ctx context.Context, key string) (string, bool, error)
	SetFlag(ctx context.Context, key, value string) error
}

type HNSWConfig struct {
	MetricType     string
	M              int
	EfConstruction int
	Ef             int
}

type MilvusConfig struct {
	Collection         string
	FallbackCollection string
	Dimensions         int
	HNSW               HNSWConfig
}

// MilvusConfigFromSettings maps config.Cfg onto MilvusConfig.
func MilvusConfigFromSettings() MilvusConfig {
	m := config.Cfg.Milvus
	return MilvusConfig{
		Collection:         m.Collection,
		FallbackCollection: m.FallbackCollection,
		Dimensions:         config.Cfg.OpenAI.Dimensions,
		HNSW: HNSWConfig{
			MetricType:     m.IndexHNSWConfig.MetricType,
			M:              m.IndexHNSWConfig.M,
			EfConstruction: m.IndexHNSWConfig.EfConstruction,
			Ef:             m.IndexHNSWConfig.Ef,
		},
	}
}

// DialMilvus connects to the configured Milvus address.
func DialMilvus(ctx context.Context) (milvusclient.Client, error) {
	return milvusclient.NewClient(ctx, milvusclient.Config{Address: config.Cfg.Milvus.Address})
}

// MilvusIndex writes chunk records to the primary collection, or to the
// fallback collection once the primary is full.
type MilvusIndex struct {
	cli   milvusclient.Client
	cfg   MilvusConfig
	flags FlagStore

	mu      sync.Mutex
	ensured map[string]bool
}

func NewMilvusIndex(cli milvusclient.Client, cfg MilvusConfig, flags FlagStore) *MilvusIndex {
	return &MilvusIndex{cli: cli, cfg: cfg, flags: flags, ensured: make(map[string]bool)}
}

// Target returns the collection writes currently go to.
func (m *MilvusIndex) Target(ctx context.Context) (string, error) {
	if m.flags == nil {
		return m.cfg.Collection, nil
	}
	if _, full, err := m.flags.GetFlag(ctx, PrimaryFullFlag); err != nil {
		return "", fmt.Errorf("%v: read %s: %w", config.ModuleMilvus, PrimaryFullFlag, err)
	} else if full {
		return m.cfg.FallbackCollection, nil
	}
	return m.cfg.Collection, nil
}

// Upsert writes records keyed by id, so a re-run overwrites earlier chunks. A
// storage quota error on the primary collection sets PrimaryFullFlag; the
// batch still fails.
func (m *MilvusIndex) Upsert(ctx context.Context, records []ChunkRecord) error {
	if len(records) == 0 {
		return nil
	}
	collection, err := m.Target(ctx)
	if err != nil {
		return err
	}
	if err := m.ensureCollection(ctx, collection); err != nil {
		return err
	}

	columns, err := m.columns(records)
	if err != nil {
		return err
	}
	if _, err := m.cli.Upsert(ctx, collection, "", columns...); err != nil {
		if IsStorageQuotaError(err) && collection == m.cfg.Collection && m.flags != nil {
			logger.Error(err, "%v: primary collection %s is full, switching to %s", config.ModuleMilvus, collection, m.cfg.FallbackCollection)
			if ferr := m.flags.SetFlag(ctx, PrimaryFullFlag, "true"); ferr != nil {
				logger.Error(ferr, "%v: failed to persist %s", config.ModuleMilvus, PrimaryFullFlag)
			}
		}
		return fmt.Errorf("%v: upsert %d records into %s: %w", config.ModuleMilvus, len(records), collection, err)
	}
	return nil
}

// DeleteVersion removes every chunk of a book version from both collections.
func (m *MilvusIndex) DeleteVersion(ctx context.Context, bookVersionID string) error {
	expr := fmt.Sprintf("%s == %s", fieldBookVersionID, quote(bookVersionID))
	for _, collection := range []string{m.cfg.Collection, m.cfg.FallbackCollection} {
		exists, err := m.cli.HasCollection(ctx, collection)
		if err != nil {
			return err
		}
		if !exists {
			continue
		}
		if err := m.cli.Delete(ctx, collection, "", expr); err != nil {
			return fmt.Errorf("%v: delete from %s: %w", config.ModuleMilvus, collection, err)
		}
	}
	return nil
}

// IsStorageQuotaError recognizes the messages Milvus and managed vector
// stores return when a collection runs out of space. Rate limits and storage
// connectivity errors are not capacity errors.
func IsStorageQuotaError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"disk quota exceeded",
		"storage quota exceeded",
		"out of storage",
		"maximum allowed size",
		"partition limit",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

func quote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func (m *MilvusIndex) columns(records []ChunkRecord) ([]milvusentity.Column, error) {
	n := len(records)
	ids := make([]string, n)
	bookIDs := make([]string, n)
	versionIDs := make([]string, n)
	prevIDs := make([]string, n)
	nextIDs := make([]string, n)
	contents := make([]string, n)
	chapters := make([][]byte, n)
	pages := make([][]byte, n)
	vectors := make([][]float32, n)

	for i, r := range records {
		if len(r.Embedding) != m.cfg.Dimensions {
			return nil, fmt.Errorf("%v: record %s has %d dimensions, want %d", config.ModuleMilvus, r.ID, len(r.Embedding), m.cfg.Dimensions)
		}
		ch, err := json.Marshal(r.Chapters)
		if err != nil {
			return nil, err
		}
		pg, err := json.Marshal(r.Pages)
		if err != nil {
			return nil, err
		}
		ids[i] = r.ID
		bookIDs[i] = r.BookID
		versionIDs[i] = r.BookVersionID
		prevIDs[i] = r.PrevID
		nextIDs[i] = r.NextID
		contents[i] = r.Content
		chapters[i] = ch
		pages[i] = pg
		vectors[i] = r.Embedding
	}

	return []milvusentity.Column{
		milvusentity.NewColumnVarChar(fieldID, ids),
		milvusentity.NewColumnVarChar(fieldBookID, bookIDs),
		milvusentity.NewColumnVarChar(fieldBookVersionID, versionIDs),
		milvusentity.NewColumnVarChar(fieldPrevID, prevIDs),
		milvusentity.NewColumnVarChar(fieldNextID, nextIDs),
		milvusentity.NewColumnVarChar(fieldContent, contents),
		milvusentity.NewColumnJSONBytes(fieldChapters, chapters),
		milvusentity.NewColumnJSONBytes(fieldPages, pages),
		milvusentity.NewColumnFloatVector(fieldEmbedding, m.cfg.Dimensions, vectors),
	}, nil
}

func (m *MilvusIndex) ensureCollection(ctx context.Context, collection string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ensured[collection] {
		return nil
	}

	exists, err := m.cli.HasCollection(ctx, collection)
	if err != nil {
		return err
	}
	if !exists {
		if err := m.createCollection(ctx, collection); err != nil {
			return fmt.Errorf("%v: create %s: %w", config.ModuleMilvus, collection, err)
		}
		logger.Info("%v: created collection %s", config.ModuleMilvus, collection)
	}
	if err := m.cli.LoadCollection(ctx, collection, false); err != nil {
		return err
	}
	m.ensured[collection] = true
	return nil
}

func varChar(name string, maxLen int) *milvusentity.Field {
	return milvusentity.NewField().WithName(name).WithDataType(milvusentity.FieldTypeVarChar).WithMaxLength(int64(maxLen))
}

func (m *MilvusIndex) createCollection(ctx context.Context, collection string) error {
	schema := milvusentity.NewSchema().WithName(collection).WithDescription("book chunks")
	schema.WithField(varChar(fieldID, 256).WithIsPrimaryKey(true))
	schema.WithField(varChar(fieldBookID, 128))
	schema.WithField(varChar(fieldBookVersionID, 512))
	schema.WithField(varChar(fieldPrevID, 256))
	schema.WithField(varChar(fieldNextID, 256))
	schema.WithField(varChar(fieldContent, maxContentLength))
	schema.WithField(milvusentity.NewField().WithName(fieldChapters).WithDataType(milvusentity.FieldTypeJSON))
	schema.WithField(milvusentity.NewField().WithName(fieldPages).WithDataType(milvusentity.FieldTypeJSON))
	schema.WithField(milvusentity.NewField().WithName(fieldEmbedding).WithDataType(milvusentity.FieldTypeFloatVector).WithDim(int64(m.cfg.Dimensions)))

	if err := m.cli.CreateCollection(ctx, schema, 2); err != nil {
		return err
	}

	idx, err := milvusentity.NewIndexHNSW(milvusentity.MetricType(m.cfg.HNSW.MetricType), m.cfg.HNSW.M, m.cfg.HNSW.EfConstruction)
	if err != nil {
		return err
	}
	return m.cli.CreateIndex(ctx, collection, fieldEmbedding, idx, false)
}

// Hit is one search result.
type Hit struct {
	ID            string         `json:"id"`
	Score         float32        `json:"score"`
	BookID        string         `json:"book_id"`
	BookVersionID string         `json:"book_version_id"`
	Content       string         `json:"content"`
	Chapters      []int          `json:"chapters"`
	Pages         []book.PageRef `json:"pages"`
}

// Search queries every existing collection and merges the hits by score.
func (m *MilvusIndex) Search(ctx context.Context, vector []float32, topK int, expr string) ([]Hit, error) {
	if len(vector) == 0 {
		return []Hit{}, nil
	}
	param, err := milvusentity.NewIndexHNSWSearchParam(max(m.cfg.HNSW.Ef, topK))
	if err != nil {
		return nil, err
	}
	metric := milvusentity.MetricType(m.cfg.HNSW.MetricType)
	outputFields := []string{fieldBookID, fieldBookVersionID, fieldContent, fieldChapters, fieldPages}

	var hits []Hit
	for _, collection := range []string{m.cfg.Collection, m.cfg.FallbackCollection} {
		exists, err := m.cli.HasCollection(ctx, collection)
		if err != nil {
			return nil, err
		}
		if !exists {
			continue
		}
		if err := m.ensureCollection(ctx, collection); err != nil {
			return nil, err
		}
		results, err := m.cli.Search(ctx, collection, nil, expr, outputFields,
			[]milvusentity.Vector{milvusentity.FloatVector(vector)}, fieldEmbedding, metric, topK, param)
		if err != nil {
			logger.Error(err, "%v: search %s failed", config.ModuleRetriever, collection)
			return nil, err
		}
		for _, rs := range results {
			parsed, err := parseHits(rs)
			if err != nil {
				return nil, err
			}
			hits = append(hits, parsed...)
		}
	}

	lowerIsBetter := metric == milvusentity.L2
	sort.SliceStable(hits, func(a, b int) bool {
		if lowerIsBetter {
			return hits[a].Score < hits[b].Score
		}
		return hits[a].Score > hits[b].Score
	})
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

func parseHits(rs milvusclient.SearchResult) ([]Hit, error) {
	ids, ok := rs.IDs.(*milvusentity.ColumnVarChar)
	if !ok {
		return nil, fmt.Errorf("%v: unexpected id column %T", config.ModuleRetriever, rs.IDs)
	}
	hits := make([]Hit, 0, rs.ResultCount)
	for i := 0; i < rs.ResultCount; i++ {
		h := Hit{ID: ids.Data()[i], Score: rs.Scores[i]}
		for _, field := range rs.Fields {
			switch col := field.(type) {
			case *milvusentity.ColumnVarChar:
				switch col.Name() {
				case fieldBookID:
					h.BookID = col.Data()[i]
				case fieldBookVersionID:
					h.BookVersionID = col.Data()[i]
				case fieldContent:
					h.Content = col.Data()[i]
				}
			case *milvusentity.ColumnJSONBytes:
				var err error
				switch col.Name() {
				case fieldChapters:
					err = json.Unmarshal(col.Data()[i], &h.Chapters)
				case fieldPages:
					err = json.Unmarshal(col.Data()[i], &h.Pages)
				}
				if err != nil {
					return nil, fmt.Errorf("%v: decode %s: %w", config.ModuleRetriever, col.Name(), err)
				}
			}
		}
		hits = append(hits, h)
	}
	return hits, nil
}
