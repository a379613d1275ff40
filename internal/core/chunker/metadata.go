package chunker

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"book-indexer/internal/core/book"
	"book-indexer/internal/core/text"
)

// ErrAlignment means a chunk could not be traced back to any source page.
var ErrAlignment = errors.New("could not link metadata")

// AttachByOffset sets the metadata of every chunk from its offsets into the
// joined pages. A page matches when its range touches the chunk range, ends
// included.
func AttachByOffset(chunks []book.Chunk, pages []book.PreparedPage) error {
	positions := Positions(pages, JoinDelimiter)
	for i := range chunks {
		c := &chunks[i]
		if !c.HasOffsets {
			return fmt.Errorf("%w: chunk %d has no offsets", ErrAlignment, i)
		}

		matched := make([]int, 0, 2)
		for _, pos := range positions {
			if pos.Start <= c.End && pos.End >= c.Start {
				matched = append(matched, pos.Idx)
			}
		}
		if len(matched) == 0 {
			return fmt.Errorf("%w: chunk %d [%d,%d)", ErrAlignment, i, c.Start, c.End)
		}
		c.Metadata = metadataFor(pages, matched)
	}
	return nil
}

// AttachBySubstring is used when chunk offsets are unknown, such as chunk text
// read back from an index. Chunker itself always has offsets and uses
// AttachByOffset. Each chunk is searched for in the joined pages, scanning
// forward from the previous hit, and every page that contains the chunk
// verbatim is added as well.
func AttachBySubstring(chunks []book.Chunk, pages []book.PreparedPage, delimiter string) error {
	cleaned := make([]book.PreparedPage, len(pages))
	for i, p := range pages {
		p.Text = text.StripReplacementChars(p.Text)
		cleaned[i] = p
	}
	positions := Positions(cleaned, delimiter)
	full := joinText(cleaned, delimiter)

	cursor := 0
	for i := range chunks {
		c := &chunks[i]
		needle := text.StripReplacementChars(c.Text)
		if needle == "" {
			return fmt.Errorf("%w: chunk %d is empty", ErrAlignment, i)
		}

		start := indexFrom(full, needle, cursor)
		if start < 0 {
			start = strings.Index(full, needle)
		}
		if start < 0 {
			return fmt.Errorf("%w: chunk %d not found in book text", ErrAlignment, i)
		}
		end := start + len(needle)
		cursor = start

		seen := make(map[int]bool)
		matched := make([]int, 0, 2)
		for _, pos := range positions {
			if pos.Start <= end && pos.End >= start {
				matched = append(matched, pos.Idx)
				seen[pos.Idx] = true
			}
		}
		for j, p := range cleaned {
			if !seen[j] && strings.Contains(p.Text, needle) {
				matched = append(matched, j)
				seen[j] = true
			}
		}
		c.Metadata = metadataFor(pages, matched)
	}
	return nil
}

func indexFrom(s, substr string, from int) int {
	if from >= len(s) {
		return -1
	}
	if i := strings.Index(s[from:], substr); i >= 0 {
		return from + i
	}
	return -1
}

// metadataFor unions the chapters of the matched pages in first-seen order and
// lists each physical page once. Pages without a page number are kept apart by
// their index.
func metadataFor(pages []book.PreparedPage, matched []int) book.ChunkMetadata {
	md := book.ChunkMetadata{
		Pages:           make([]book.PageRef, 0, len(matched)),
		ChaptersIndices: make([]int, 0),
	}
	seenPages := make(map[string]bool, len(matched))
	seenChapters := make(map[int]bool)
	for _, idx := range matched {
		p := pages[idx]
		ref := p.Ref()
		key := ref.Key()
		if ref.Page == nil {
			key = "#" + strconv.Itoa(ref.Index)
		}
		if !seenPages[key] {
			seenPages[key] = true
			md.Pages = append(md.Pages, ref)
		}
		for _, ch := range p.ChaptersIndices {
			if !seenChapters[ch] {
				seenChapters[ch] = true
				md.ChaptersIndices = append(md.ChaptersIndices, ch)
			}
		}
	}
	return md
}
