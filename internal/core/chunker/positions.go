package chunker

import "book-indexer/internal/core/book"

// Position is the byte range [Start, End) that pages[Idx].Text occupies in the
// pages joined with a delimiter.
type Position struct {
	Idx   int
	Start int
	End   int
}

// Positions walks the pages once. Callers recompute it for every page set; a
// table built for other pages or another delimiter is meaningless.
func Positions(pages []book.PreparedPage, delimiter string) []Position {
	out := make([]Position, len(pages))
	start := 0
	for i, p := range pages {
		if i > 0 {
			start = out[i-1].End + len(delimiter)
		}
		out[i] = Position{Idx: i, Start: start, End: start + len(p.Text)}
	}
	return out
}

func joinText(pages []book.PreparedPage, delimiter string) string {
	n := 0
	for _, p := range pages {
		n += len(p.Text) + len(delimiter)
	}
	buf := make([]byte, 0, n)
	for i, p := range pages {
		if i > 0 {
			buf = append(buf, delimiter...)
		}
		buf = append(buf, p.Text...)
	}
	return string(buf)
}
