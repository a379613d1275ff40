// Package prepare turns source pages into normalized pages that carry the
// chapter indices in effect at them.
package prepare

import (
	"book-indexer/internal/core/book"
	"book-indexer/internal/core/chapters"
	"book-indexer/internal/core/splitter"
	"book-indexer/internal/core/text"
)

type Options struct {
	RemoveDiacritics bool
	// Reflow normalizes whitespace through Splitter. It needs a Splitter.
	Reflow   bool
	Splitter *splitter.Splitter
}

// VectorOptions normalizes aggressively to reduce embedding noise.
func VectorOptions(s *splitter.Splitter) Options {
	return Options{RemoveDiacritics: true, Reflow: true, Splitter: s}
}

// KeywordOptions keeps page text as published for exact-match search.
func KeywordOptions() Options {
	return Options{}
}

// Pages prepares every page in order. The result has one entry per input page
// and Index i for the i-th page.
func Pages(pages []book.Page, headings []book.Heading, opts Options) []book.PreparedPage {
	resolver := chapters.NewResolver(chapters.BuildOutline(headings))

	out := make([]book.PreparedPage, len(pages))
	for i, p := range pages {
		out[i] = book.PreparedPage{
			Index:           i,
			Page:            p.Page,
			Volume:          p.Volume,
			Text:            PageText(p, opts),
			ChaptersIndices: resolver.ChaptersForPage(i),
		}
	}
	return out
}

// PageText renders and normalizes the text of a single page.
func PageText(p book.Page, opts Options) string {
	raw := p.Text
	if len(p.Blocks) > 0 {
		raw = text.RenderBlocks(p.Blocks)
	}
	if opts.RemoveDiacritics {
		raw = text.RemoveDiacritics(raw)
	}
	out := text.StripMarkup(raw)
	if opts.Reflow && opts.Splitter != nil {
		out = opts.Splitter.Reflow(out)
	}
	return out
}
