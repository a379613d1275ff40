package sources

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"book-indexer/internal/core/book"
	"book-indexer/pkg/s3"

	"github.com/ledongthuc/pdf"
)

var ErrNoPDFText = errors.New("pdf has no extractable text")

func (f *Fetcher) fetchPDF(ctx context.Context, v book.Version) (book.Content, error) {
	if f.objects == nil {
		return nil, fmt.Errorf("pdf %s: no object store configured", v.Value)
	}
	bucket, key, err := s3.ParseURI(v.Value)
	if err != nil {
		return nil, fmt.Errorf("pdf %s: %w", v.Value, err)
	}
	raw, err := f.objects.GetFrom(ctx, bucket, key)
	if err != nil {
		if errors.Is(err, s3.ErrNotFound) {
			return nil, fmt.Errorf("%w: %v", ErrNotFound, err)
		}
		return nil, fmt.Errorf("pdf %s: %w", v.Value, err)
	}

	pages, err := ReadPDFPages(raw)
	if err != nil {
		return nil, fmt.Errorf("pdf %s: %w", v.Value, err)
	}
	return &book.PagedContent{BookVersion: v, Pages: pages, RawURL: v.Value}, nil
}

// ReadPDFPages extracts the plain text of every page. Page numbers are the
// 1-based physical page; empty pages are kept so numbering stays aligned.
func ReadPDFPages(raw []byte) ([]book.Page, error) {
	r, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}

	total := r.NumPage()
	pages := make([]book.Page, 0, total)
	hasText := false
	for i := 1; i <= total; i++ {
		p := r.Page(i)
		var text string
		if !p.V.IsNull() {
			text, err = p.GetPlainText(nil)
			if err != nil {
				return nil, fmt.Errorf("page %d: %w", i, err)
			}
			text = sanitizePDFText(text)
		}
		if text != "" {
			hasText = true
		}
		pages = append(pages, book.Page{Text: text, Page: book.IntPtr(i)})
	}
	if !hasText {
		return nil, ErrNoPDFText
	}
	return pages, nil
}

// sanitizePDFText drops the BOM and non-printable runes, keeping line breaks
// and tabs.
func sanitizePDFText(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\uFEFF' || r == unicode.ReplacementChar:
			continue
		case r == '\n' || r == '\t' || r == '\r':
		case !unicode.IsPrint(r):
			continue
		}
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}
