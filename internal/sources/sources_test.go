package sources

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"book-indexer/internal/core/book"
	"book-indexer/pkg/s3"
)

type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemStore() *memStore { return &memStore{objects: map[string][]byte{}} }

func (m *memStore) Get(ctx context.Context, key string) ([]byte, error) {
	return m.GetFrom(ctx, "default", key)
}

func (m *memStore) GetFrom(_ context.Context, bucket, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.objects[bucket+"/"+key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", s3.ErrNotFound, key)
	}
	return b, nil
}

func (m *memStore) Put(_ context.Context, key string, body []byte, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects["default/"+key] = body
	return nil
}

const turathFixture = `{
	"meta": {"id": 42, "name": "كتاب"},
	"indexes": {
		"headings": [
			{"title": "الطهارة", "level": 1, "page": 2},
			{"title": "الصلاة", "level": 1, "page": 5}
		],
		"print_pg_to_pg": {"1,1": 1, "1,2": 2, "1,3": 3},
		"page_headings": {"2": [1], "4": [2]}
	},
	"pages": [
		{"text": "<a href=\"#x\">مقدمة</a> الكتاب", "vol": "1", "page": 1},
		{"text": "باب الطهارة", "vol": "1", "page": 2},
		{"text": "تتمة", "vol": "1", "page": 2},
		{"text": "باب الصلاة", "vol": "1", "page": 3}
	]
}`

func obfuscate(s string) string {
	pairs := make([]string, 0, 2*len(turathKeys))
	for i, k := range turathKeys {
		pairs = append(pairs, `"`+k+`":`, `"`+string(rune(0x064B+i))+`":`)
	}
	return strings.NewReplacer(pairs...).Replace(s)
}

func TestUnobfuscateKeys(t *testing.T) {
	in := `{"ً": {"ٌ": 1}, "ٟ": true, "x": "ً"}`
	want := `{"meta": {"id": 1}, "non_author": true, "x": "ً"}`
	if got := unobfuscateKeys(in); got != want {
		t.Errorf("unobfuscateKeys = %s, want %s", got, want)
	}
}

func TestParseTurath(t *testing.T) {
	c, err := parseTurath([]byte(turathFixture))
	if err != nil {
		t.Fatal(err)
	}

	if len(c.Pages) != 3 {
		t.Fatalf("got %d pages, want 3", len(c.Pages))
	}
	if c.Pages[0].Text != "مقدمة الكتاب" {
		t.Errorf("anchor not stripped: %q", c.Pages[0].Text)
	}
	if c.Pages[1].Text != "باب الطهارة<br>تتمة" {
		t.Errorf("merged page = %q", c.Pages[1].Text)
	}

	wantIdx := []int{1, 2}
	for i, h := range c.Headings {
		if h.PageIndex != wantIdx[i] {
			t.Errorf("heading %d PageIndex = %d, want %d", i, h.PageIndex, wantIdx[i])
		}
		// heading 1 has no print page of its own and borrows the last one
		if h.Page == nil || *h.Page != 2 || h.Volume != "1" {
			t.Errorf("heading %d page = %v vol %q", i, h.Page, h.Volume)
		}
	}
}

func TestParseTurathResolvesHeadingsByPrintPage(t *testing.T) {
	raw := `{
		"indexes": {
			"headings": [
				{"title": "الطهارة", "level": 1, "page": 1},
				{"title": "الصلاة", "level": 1, "page": 3}
			],
			"print_pg_to_pg": {"1,1": 1, "1,2": 2, "1,3": 3},
			"page_headings": {"1": [1]}
		},
		"pages": [
			{"text": "باب الطهارة", "vol": "1", "page": 1},
			{"text": "تتمة", "vol": "1", "page": 2},
			{"text": "باب الصلاة", "vol": "1", "page": 3}
		]
	}`
	c, err := parseTurath([]byte(raw))
	if err != nil {
		t.Fatal(err)
	}
	for i, want := range []int{0, 2} {
		if got := c.Headings[i].PageIndex; got != want {
			t.Errorf("heading %d PageIndex = %d, want %d", i, got, want)
		}
	}
}

func TestParseTurathMergeAfterSentence(t *testing.T) {
	raw := `{"indexes": {}, "pages": [
		{"text": "<span>قال</span>.", "vol": "1", "page": 1},
		{"text": "تتمة", "vol": "1", "page": 1}
	]}`
	c, err := parseTurath([]byte(raw))
	if err != nil {
		t.Fatal(err)
	}
	if len(c.Pages) != 1 || c.Pages[0].Text != "<span>قال</span>.تتمة" {
		t.Errorf("pages = %+v", c.Pages)
	}
}

const markdownFixture = `######OpenITI#
#META# 000.SortField	:: Shamela_0023790
#META#Header#End#

### | المقدمة
# الحمد لله رب العالمين PageV01P001
# قال الشاعر %~% بيت ثان
~~ تتمة ms1 PageV01P002 ثم بعد
### || فصل
# نص الفصل PageV01P003
`

func TestParseMARkdown(t *testing.T) {
	c := ParseMARkdown(markdownFixture)

	if len(c.Pages) != 3 {
		t.Fatalf("got %d pages, want 3", len(c.Pages))
	}
	for i, p := range c.Pages {
		if p.Page == nil || *p.Page != i+1 || p.Volume != "1" {
			t.Errorf("page %d = %v vol %q", i, p.Page, p.Volume)
		}
	}

	first := c.Pages[0].Blocks
	if len(first) != 2 || first[0].Type != book.BlockHeader || first[0].Content != "المقدمة" || first[1].Content != "الحمد لله رب العالمين" {
		t.Errorf("page 0 blocks = %+v", first)
	}

	verse := c.Pages[1].Blocks
	if len(verse) != 1 || verse[0].Type != book.BlockVerse {
		t.Fatalf("page 1 blocks = %+v", verse)
	}
	if got := strings.Join(verse[0].Verse, "|"); got != "قال الشاعر|بيت ثان تتمة" {
		t.Errorf("hemistichs = %q", got)
	}

	third := c.Pages[2].Blocks
	if len(third) != 3 || third[0].Type != book.BlockVerse || third[1].Level != 2 || third[2].Content != "نص الفصل" {
		t.Errorf("page 2 blocks = %+v", third)
	}

	if len(c.Headings) != 2 {
		t.Fatalf("got %d headings", len(c.Headings))
	}
	if h := c.Headings[0]; h.Title != "المقدمة" || h.Level != 1 || h.PageIndex != 0 {
		t.Errorf("heading 0 = %+v", h)
	}
	if h := c.Headings[1]; h.Title != "فصل" || h.Level != 2 || h.PageIndex != 2 {
		t.Errorf("heading 1 = %+v", h)
	}
}

func TestParseMARkdownTrailingHeading(t *testing.T) {
	c := ParseMARkdown("# نص PageV01P001\n### | خاتمة\n# بلا رقم\n")
	if len(c.Pages) != 2 {
		t.Fatalf("got %d pages", len(c.Pages))
	}
	if c.Pages[1].Page != nil {
		t.Errorf("trailing page number = %v", *c.Pages[1].Page)
	}
	if c.Headings[0].PageIndex != book.Unresolved {
		t.Errorf("PageIndex = %d, want unresolved", c.Headings[0].PageIndex)
	}
}

func newTestFetcher(url string, store ObjectStore) *Fetcher {
	return New(Config{
		OpenITIBaseURL: url + "/openiti",
		TurathBaseURL:  url,
		Timeout:        5 * time.Second,
		SnapshotPrefix: "snapshots",
	}, store)
}

func TestFetchTurathUsesSnapshot(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/books-v3/42.json" {
			http.NotFound(w, r)
			return
		}
		hits.Add(1)
		fmt.Fprint(w, obfuscate(turathFixture))
	}))
	defer srv.Close()

	store := newMemStore()
	f := newTestFetcher(srv.URL, store)
	v := book.Version{Source: book.SourceTurath, Value: "42"}

	for i := 0; i < 2; i++ {
		c, err := f.Fetch(context.Background(), Ref{}, v)
		if err != nil {
			t.Fatalf("Fetch %d: %v", i, err)
		}
		pc, ok := c.(*book.PagedContent)
		if !ok {
			t.Fatalf("content is %T", c)
		}
		if len(pc.Pages) != 3 || pc.Version() != v {
			t.Errorf("fetch %d: %d pages, version %+v", i, len(pc.Pages), pc.Version())
		}
		if pc.RawURL != srv.URL+"/books-v3/42.json" {
			t.Errorf("RawURL = %s", pc.RawURL)
		}
	}
	if hits.Load() != 1 {
		t.Errorf("source hit %d times, want 1", hits.Load())
	}
	if _, err := store.Get(context.Background(), "snapshots/turath/42.json"); err != nil {
		t.Errorf("snapshot not stored: %v", err)
	}
}

func TestFetchOpenITIFallsBackToSuffix(t *testing.T) {
	var paths []string
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.URL.Path)
		mu.Unlock()
		if strings.HasSuffix(r.URL.Path, ".mARkdown") {
			fmt.Fprint(w, markdownFixture)
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	f := newTestFetcher(srv.URL, nil)
	v := book.Version{Source: book.SourceOpenITI, Value: "0179MalikIbnAnas.Muwatta.Shamela0001699-ara1"}
	c, err := f.Fetch(context.Background(), Ref{AuthorID: "0179MalikIbnAnas", BookID: "0179MalikIbnAnas.Muwatta"}, v)
	if err != nil {
		t.Fatal(err)
	}
	pc := c.(*book.PagedContent)
	if !strings.HasSuffix(pc.RawURL, ".mARkdown") || len(pc.Pages) != 3 {
		t.Errorf("RawURL = %s, pages = %d", pc.RawURL, len(pc.Pages))
	}
	if len(paths) != 3 || !strings.HasSuffix(paths[1], ".completed") {
		t.Errorf("requested paths = %v", paths)
	}
}

func TestFetchNotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	f := newTestFetcher(srv.URL, nil)
	_, err := f.Fetch(context.Background(), Ref{}, book.Version{Source: book.SourceTurath, Value: "1"})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("turath err = %v, want ErrNotFound", err)
	}
	_, err = f.Fetch(context.Background(), Ref{AuthorID: "a", BookID: "b"}, book.Version{Source: book.SourceOpenITI, Value: "c"})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("openiti err = %v, want ErrNotFound", err)
	}
}

func TestFetchExternalAndUnknown(t *testing.T) {
	f := New(Config{}, nil)
	v := book.Version{Source: book.SourceExternal, Value: "https://example.org/book"}
	c, err := f.Fetch(context.Background(), Ref{}, v)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := c.(*book.ExternalContent); !ok {
		t.Errorf("content is %T", c)
	}
	if _, err := f.Fetch(context.Background(), Ref{}, book.Version{Source: "scroll"}); !errors.Is(err, ErrUnsupportedSource) {
		t.Errorf("err = %v", err)
	}
}

func TestFetchPDFErrors(t *testing.T) {
	store := newMemStore()
	f := New(Config{}, store)

	_, err := f.Fetch(context.Background(), Ref{}, book.Version{Source: book.SourcePDF, Value: "s3://default/missing.pdf"})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("missing object err = %v", err)
	}

	store.objects["default/bad.pdf"] = []byte("not a pdf")
	if _, err := f.Fetch(context.Background(), Ref{}, book.Version{Source: book.SourcePDF, Value: "s3://default/bad.pdf"}); err == nil {
		t.Error("expected error for invalid pdf")
	}

	if _, err := New(Config{}, nil).Fetch(context.Background(), Ref{}, book.Version{Source: book.SourcePDF, Value: "s3://b/k"}); err == nil {
		t.Error("expected error without object store")
	}
}

func TestSanitizePDFText(t *testing.T) {
	if got := sanitizePDFText("\uFEFF  سطر\x00\n\tثان\uFFFD  "); got != "سطر\n\tثان" {
		t.Errorf("sanitizePDFText = %q", got)
	}
}
