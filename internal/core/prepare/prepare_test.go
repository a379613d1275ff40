package prepare

import (
	"reflect"
	"testing"

	"book-indexer/internal/core/book"
	"book-indexer/internal/core/splitter"
)

func TestPages(t *testing.T) {
	pages := []book.Page{
		{Text: "<p>بِسْمِ اللَّهِ.   الحمد لله</p>", Page: book.IntPtr(1), Volume: "1"},
		{Blocks: []book.Block{
			{Type: book.BlockHeader, Content: "بابُ", Level: 2},
			{Type: book.BlockParagraph, Content: "نصٌّ"},
		}, Page: book.IntPtr(2), Volume: "1"},
		{Text: "خاتمة", Volume: "2"},
	}
	headings := []book.Heading{
		{Title: "كتاب", Level: 1, PageIndex: 0},
		{Title: "باب", Level: 2, PageIndex: 1},
	}

	got := Pages(pages, headings, VectorOptions(splitter.MustNew(splitter.DefaultOptions())))
	if len(got) != len(pages) {
		t.Fatalf("expected %d pages, got %d", len(pages), len(got))
	}

	wantText := []string{"بسم الله.الحمد لله", "باب نص", "خاتمة"}
	wantChapters := [][]int{{0}, {0, 1}, {0, 1}}
	for i, p := range got {
		if p.Index != i {
			t.Errorf("page %d has index %d", i, p.Index)
		}
		if p.Text != wantText[i] {
			t.Errorf("page %d text = %q, want %q", i, p.Text, wantText[i])
		}
		if !reflect.DeepEqual(p.ChaptersIndices, wantChapters[i]) {
			t.Errorf("page %d chapters = %v, want %v", i, p.ChaptersIndices, wantChapters[i])
		}
	}
	if got[2].Page != nil || got[2].Volume != "2" {
		t.Errorf("page provenance lost: %+v", got[2])
	}
}

func TestPagesKeywordOptionsKeepText(t *testing.T) {
	pages := []book.Page{{Text: "<p>بِسْمِ اللَّهِ.   الحمد</p>"}}

	got := Pages(pages, nil, KeywordOptions())
	if got[0].Text != "بِسْمِ اللَّهِ.   الحمد" {
		t.Fatalf("keyword text = %q", got[0].Text)
	}
	if got[0].ChaptersIndices == nil || len(got[0].ChaptersIndices) != 0 {
		t.Fatalf("expected empty chapters, got %#v", got[0].ChaptersIndices)
	}
}

func TestPagesIsDeterministic(t *testing.T) {
	pages := []book.Page{{Text: "أ. ب. ج."}, {Text: "د"}}
	headings := []book.Heading{{Level: 1, PageIndex: 1}}
	opts := VectorOptions(splitter.MustNew(splitter.DefaultOptions()))

	if a, b := Pages(pages, headings, opts), Pages(pages, headings, opts); !reflect.DeepEqual(a, b) {
		t.Fatalf("two runs differ:\n%+v\n%+v", a, b)
	}
}
