package indexer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"book-indexer/internal/core/book"
	"book-indexer/internal/core/ingest"
	"book-indexer/internal/core/keyword"
	"book-indexer/internal/core/splitter"
	"book-indexer/internal/database"
	"book-indexer/internal/database/model"
	"book-indexer/internal/sources"
)

type fakeBooks struct {
	mu     sync.Mutex
	books  map[string]*model.Book
	marked []string
}

func (f *fakeBooks) GetBook(_ context.Context, id string) (*model.Book, error) {
	b, ok := f.books[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", database.ErrBookNotFound, id)
	}
	return b, nil
}

func (f *fakeBooks) MarkVersion(_ context.Context, bookID, value string, kind database.Support) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marked = append(f.marked, fmt.Sprintf("%s/%s/%s", bookID, value, kind))
	return nil
}

type fakeFetcher struct {
	mu      sync.Mutex
	calls   int
	content map[string]*book.PagedContent
	block   chan struct{}
}

func (f *fakeFetcher) Fetch(ctx context.Context, _ sources.Ref, v book.Version) (book.Content, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if v.Source == book.SourceExternal {
		return &book.ExternalContent{BookVersion: v}, nil
	}
	c, ok := f.content[v.Value]
	if !ok {
		return nil, fmt.Errorf("%w: %s", sources.ErrNotFound, v.Value)
	}
	out := *c
	out.BookVersion = v
	return &out, nil
}

type fakeEmbedder struct {
	mu       sync.Mutex
	calls    int
	failures []error
}

func (f *fakeEmbedder) Embed(_ context.Context, inputs []string) ([][]float32, error) {
	f.mu.Lock()
	f.calls++
	if len(f.failures) > 0 {
		err := f.failures[0]
		f.failures = f.failures[1:]
		f.mu.Unlock()
		return nil, err
	}
	f.mu.Unlock()

	out := make([][]float32, len(inputs))
	for i, in := range inputs {
		out[i] = []float32{float32(len(in)), 1, 0}
	}
	return out, nil
}

type fakeVectors struct {
	mu      sync.Mutex
	records map[string]ingest.ChunkRecord
	deleted []string
}

func (f *fakeVectors) Upsert(_ context.Context, records []ingest.ChunkRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.records == nil {
		f.records = map[string]ingest.ChunkRecord{}
	}
	for _, r := range records {
		f.records[r.ID] = r
	}
	return nil
}

func (f *fakeVectors) DeleteVersion(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	return nil
}

type fakeKeywords struct {
	batches [][]keyword.PageRecord
	deleted []string
}

func (f *fakeKeywords) UpsertPages(_ context.Context, records []keyword.PageRecord) error {
	f.batches = append(f.batches, records)
	return nil
}

func (f *fakeKeywords) DeleteVersion(_ context.Context, id string) (int64, error) {
	f.deleted = append(f.deleted, id)
	return 0, nil
}

const bookID = "0179MalikIbnAnas.Muwatta"

func testContent() *book.PagedContent {
	return &book.PagedContent{
		Pages: []book.Page{
			{Text: "بَابُ الطهارة. الوضوء من الماء الطاهر. والغسل من الجنابة.", Page: book.IntPtr(1), Volume: "1"},
			{Text: "باب الصلاة. أوقات الصلاة خمسة. والجماعة أفضل.", Page: book.IntPtr(2), Volume: "1"},
			{Text: "<p>باب الزكاة. تجب في المال إذا بلغ النصاب.</p>", Page: book.IntPtr(3), Volume: "1"},
		},
		Headings: []book.Heading{
			{Title: "الطهارة", Level: 1, PageIndex: 0},
			{Title: "الصلاة", Level: 1, PageIndex: 1},
			{Title: "الزكاة", Level: 2, PageIndex: 2},
		},
	}
}

type harness struct {
	svc      *Service
	books    *fakeBooks
	fetcher  *fakeFetcher
	embedder *fakeEmbedder
	vectors  *fakeVectors
	keywords *fakeKeywords
}

func newHarness(t *testing.T, versions ...book.Version) *harness {
	t.Helper()
	h := &harness{
		books: &fakeBooks{books: map[string]*model.Book{
			bookID: {ID: bookID, AuthorID: "0179MalikIbnAnas", Versions: versions},
			"empty": {ID: "empty", AuthorID: "x"},
		}},
		fetcher:  &fakeFetcher{content: map[string]*book.PagedContent{"42": testContent(), "43": testContent()}},
		embedder: &fakeEmbedder{},
		vectors:  &fakeVectors{},
		keywords: &fakeKeywords{},
	}
	h.svc = &Service{
		Books:    h.books,
		Fetcher:  h.fetcher,
		Embedder: h.embedder,
		Vectors:  h.vectors,
		Keywords: h.keywords,
		Splitter: splitter.MustNew(splitter.Options{ChunkSize: 40, ChunkOverlap: 0}),
		Options: Options{
			BatchSize:        2,
			ParallelBatches:  3,
			KeywordBatchSize: 2,
			MaxAttempts:      3,
		},
	}
	return h
}

func turath(value string) book.Version {
	return book.Version{Source: book.SourceTurath, Value: value}
}

func TestIndexVectors(t *testing.T) {
	h := newHarness(t, turath("42"))
	res := h.svc.IndexVectors(context.Background(), Params{BookID: bookID})

	if res.Status != StatusSuccess {
		t.Fatalf("status = %s (%s): %v", res.Status, res.Reason, res.Err)
	}
	if res.Count == 0 || res.Count != len(h.vectors.records) {
		t.Fatalf("count = %d, upserted %d", res.Count, len(h.vectors.records))
	}

	v := turath("42")
	for i := 0; i < res.Count; i++ {
		r, ok := h.vectors.records[ingest.MakeChunkID(bookID, v, i)]
		if !ok {
			t.Fatalf("chunk %d missing", i)
		}
		if len(r.Embedding) != 3 || r.BookVersionID != "turath:42" {
			t.Errorf("chunk %d = %+v", i, r)
		}
		if len(r.Pages) == 0 {
			t.Errorf("chunk %d has no pages", i)
		}
		if strings.ContainsRune(r.Content, '\u064E') || strings.Contains(r.Content, "<p>") {
			t.Errorf("chunk %d not normalized: %q", i, r.Content)
		}
		if (i == 0) != (r.PrevID == "") || (i == res.Count-1) != (r.NextID == "") {
			t.Errorf("chunk %d links prev=%q next=%q", i, r.PrevID, r.NextID)
		}
	}

	if len(h.books.marked) != 1 || h.books.marked[0] != bookID+"/42/ai" {
		t.Errorf("marked = %v", h.books.marked)
	}
}

func TestIndexVectorsSkips(t *testing.T) {
	indexed := turath("42")
	indexed.AISupported = true

	tests := []struct {
		name    string
		version book.Version
	}{
		{"already indexed", indexed},
		{"external", book.Version{Source: book.SourceExternal, Value: "https://example.org"}},
		{"pdf", book.Version{Source: book.SourcePDF, Value: "s3://books/a.pdf"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.version)
			res := h.svc.IndexVectors(context.Background(), Params{BookID: bookID})
			if res.Status != StatusSkipped {
				t.Errorf("status = %s (%s)", res.Status, res.Reason)
			}
			if h.fetcher.calls != 0 || len(h.books.marked) != 0 {
				t.Errorf("fetched %d times, marked %v", h.fetcher.calls, h.books.marked)
			}
		})
	}
}

func TestIndexVectorsForceReindexes(t *testing.T) {
	v := turath("42")
	v.AISupported = true
	h := newHarness(t, v)

	res := h.svc.IndexVectors(context.Background(), Params{BookID: bookID, VersionID: "42", Force: true})
	if res.Status != StatusSuccess {
		t.Fatalf("status = %s (%s)", res.Status, res.Reason)
	}
	if len(h.vectors.deleted) != 1 || h.vectors.deleted[0] != "turath:42" {
		t.Errorf("deleted = %v", h.vectors.deleted)
	}
}

func TestIndexVectorsLookupFailures(t *testing.T) {
	h := newHarness(t, turath("42"), book.Version{Source: book.SourceTurath, Value: "404"})
	ctx := context.Background()

	tests := []struct {
		name   string
		params Params
		want   Status
	}{
		{"unknown book", Params{BookID: "nope"}, StatusNotFound},
		{"unknown version", Params{BookID: bookID, VersionID: "7"}, StatusNotFound},
		{"no versions", Params{BookID: "empty"}, StatusNoVersion},
		{"source missing", Params{BookID: bookID, VersionID: "404"}, StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := h.svc.IndexVectors(ctx, tt.params)
			if res.Status != tt.want {
				t.Errorf("status = %s, want %s (%v)", res.Status, tt.want, res.Err)
			}
			if res.Err == nil {
				t.Error("Err not set")
			}
		})
	}
	if len(h.books.marked) != 0 {
		t.Errorf("marked = %v", h.books.marked)
	}
}

func TestIndexVectorsDefaultVersion(t *testing.T) {
	// two leading turath versions: the second one is indexed
	h := newHarness(t, turath("42"), turath("43"))
	res := h.svc.IndexVectors(context.Background(), Params{BookID: bookID})
	if res.Status != StatusSuccess || res.Version == nil || res.Version.Value != "43" {
		t.Fatalf("result = %+v", res)
	}
}

func TestIndexVectorsRetriesTransientErrors(t *testing.T) {
	h := newHarness(t, turath("42"))
	h.embedder.failures = []error{errors.New("502 bad gateway")}

	res := h.svc.IndexVectors(context.Background(), Params{BookID: bookID})
	if res.Status != StatusSuccess {
		t.Fatalf("status = %s (%v)", res.Status, res.Err)
	}
	batches := (res.Count + 1) / 2
	if h.embedder.calls != batches+1 {
		t.Errorf("embed calls = %d, want %d", h.embedder.calls, batches+1)
	}
}

func TestIndexVectorsDoesNotRetryOversizedInput(t *testing.T) {
	h := newHarness(t, turath("42"))
	h.svc.Options.ParallelBatches = 1
	h.svc.Options.BatchSize = 1000
	h.embedder.failures = []error{fmt.Errorf("%w: 400 This model's maximum context length is 8192 tokens", ingest.ErrInputTooLarge)}

	res := h.svc.IndexVectors(context.Background(), Params{BookID: bookID})
	if res.Status != StatusError {
		t.Fatalf("status = %s", res.Status)
	}
	if !errors.Is(res.Err, ingest.ErrInputTooLarge) {
		t.Errorf("err = %v", res.Err)
	}
	if h.embedder.calls != 1 {
		t.Errorf("embed calls = %d, want 1", h.embedder.calls)
	}
	if len(h.books.marked) != 0 {
		t.Errorf("failed run marked the version: %v", h.books.marked)
	}
}

func TestIndexKeywords(t *testing.T) {
	h := newHarness(t, turath("42"))
	res := h.svc.IndexKeywords(context.Background(), Params{BookID: bookID, VersionID: "42"})
	if res.Status != StatusSuccess || res.Count != 3 {
		t.Fatalf("result = %+v", res)
	}
	if len(h.keywords.batches) != 2 || len(h.keywords.batches[0]) != 2 || len(h.keywords.batches[1]) != 1 {
		t.Fatalf("batches = %v", h.keywords.batches)
	}

	first := h.keywords.batches[0][0]
	if !strings.HasPrefix(first.Content, "بَابُ") {
		t.Errorf("keyword content was normalized: %q", first.Content)
	}
	if first.ID != ingest.MakeChunkID(bookID, turath("42"), 0) || first.BookVersionID != "turath:42" {
		t.Errorf("record = %+v", first)
	}
	if last := h.keywords.batches[1][0]; strings.Contains(last.Content, "<p>") || last.Index != 2 {
		t.Errorf("last record = %+v", last)
	}
	if len(h.books.marked) != 1 || h.books.marked[0] != bookID+"/42/keyword" {
		t.Errorf("marked = %v", h.books.marked)
	}
}

func TestIndexKeywordsIndexesPDF(t *testing.T) {
	pdf := book.Version{Source: book.SourcePDF, Value: "42"}
	h := newHarness(t, pdf)
	res := h.svc.IndexKeywords(context.Background(), Params{BookID: bookID})
	if res.Status != StatusSuccess {
		t.Fatalf("status = %s (%v)", res.Status, res.Err)
	}
}

func TestBuildChunks(t *testing.T) {
	h := newHarness(t, turath("42"))
	preview, err := h.svc.BuildChunks(context.Background(), Params{BookID: bookID})
	if err != nil {
		t.Fatal(err)
	}
	if preview.Pages != 3 || len(preview.Chunks) == 0 {
		t.Errorf("preview = %+v", preview)
	}
	if len(h.vectors.records) != 0 || len(h.books.marked) != 0 {
		t.Error("dry run wrote state")
	}

	if _, err := h.svc.BuildChunks(context.Background(), Params{BookID: "nope"}); !errors.Is(err, database.ErrBookNotFound) {
		t.Errorf("err = %v", err)
	}
}

func TestRunner(t *testing.T) {
	h := newHarness(t, turath("42"))
	h.fetcher.block = make(chan struct{})
	r := NewRunner(h.svc, 1, time.Minute)

	results := make(chan Result, 1)
	job := Job{Kind: KindKeyword, Params: Params{BookID: bookID}}
	if err := r.Submit(job, func(res Result) { results <- res }); err != nil {
		t.Fatal(err)
	}
	if err := r.Submit(job, nil); !errors.Is(err, ErrBusy) {
		t.Errorf("second submit err = %v, want ErrBusy", err)
	}
	if err := r.Submit(Job{Kind: "pdf"}, nil); !errors.Is(err, ErrUnknownJob) {
		t.Errorf("unknown kind err = %v", err)
	}

	close(h.fetcher.block)
	select {
	case res := <-results:
		if res.Status != StatusSuccess {
			t.Errorf("status = %s (%v)", res.Status, res.Err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("job did not finish")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.Shutdown(ctx); err != nil {
		t.Fatal(err)
	}
	if err := r.Submit(job, nil); !errors.Is(err, ErrClosed) {
		t.Errorf("submit after shutdown err = %v", err)
	}
}

func TestParseKind(t *testing.T) {
	if k, err := ParseKind("vector"); err != nil || k != KindVector {
		t.Errorf("ParseKind(vector) = %v, %v", k, err)
	}
	if _, err := ParseKind("semantic"); !errors.Is(err, ErrUnknownJob) {
		t.Errorf("err = %v", err)
	}
}

func TestIndexNotConfigured(t *testing.T) {
	h := newHarness(t, turath("42"))
	h.svc.Vectors = nil
	h.svc.Keywords = nil

	if res := h.svc.IndexVectors(context.Background(), Params{BookID: bookID}); res.Status != StatusError || !errors.Is(res.Err, ErrIndexNotConfigured) {
		t.Errorf("vectors: %+v", res)
	}
	if res := h.svc.IndexKeywords(context.Background(), Params{BookID: bookID}); res.Status != StatusError || !errors.Is(res.Err, ErrIndexNotConfigured) {
		t.Errorf("keywords: %+v", res)
	}
	if h.fetcher.calls != 0 {
		t.Errorf("fetched %d times", h.fetcher.calls)
	}
}

func TestIndexPicksBestOpenITIEdition(t *testing.T) {
	jk := book.Version{Source: book.SourceOpenITI, Value: "0179MalikIbnAnas.Muwatta.JK001"}
	sham := book.Version{Source: book.SourceOpenITI, Value: "0179MalikIbnAnas.Muwatta.Sham19Y002"}
	h := newHarness(t, jk, turath("42"), sham)
	h.fetcher.content[sham.Value] = testContent()

	res := h.svc.IndexKeywords(context.Background(), Params{BookID: bookID})
	if res.Status != StatusSuccess {
		t.Fatalf("status = %s (%v)", res.Status, res.Err)
	}
	if res.Version.Value != sham.Value {
		t.Errorf("indexed %s, want %s", res.Version.Value, sham.Value)
	}

	// an explicit request still wins over the ranking
	res = h.svc.IndexKeywords(context.Background(), Params{BookID: bookID, VersionID: "42", Force: true})
	if res.Status != StatusSuccess || res.Version.Value != "42" {
		t.Errorf("explicit version: %+v", res)
	}
}
