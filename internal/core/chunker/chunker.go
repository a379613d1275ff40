// Package chunker splits prepared pages into chunks scoped to one top-level
// chapter and attaches page and chapter provenance to each chunk.
package chunker

import (
	"errors"
	"fmt"
	"slices"

	"book-indexer/internal/core/book"
	"book-indexer/internal/core/splitter"
)

// JoinDelimiter joins the pages of a chapter. Pages are adjacent narrative.
const JoinDelimiter = ""

type Chunker struct {
	Splitter *splitter.Splitter
}

func New(s *splitter.Splitter) *Chunker {
	return &Chunker{Splitter: s}
}

// Group is the set of pages chunked together.
type Group struct {
	// Heading is the level-1 heading index, or book.Unresolved for pages that
	// precede every level-1 heading.
	Heading int
	Pages   []book.PreparedPage
}

// Groups partitions pages by level-1 heading in outline order. A page that
// straddles two chapters belongs to both. Pages under no level-1 heading form
// a leading group.
func Groups(pages []book.PreparedPage, headings []book.Heading) []Group {
	level1 := book.Level1Indices(headings)

	var preamble []book.PreparedPage
	for _, p := range pages {
		if !slices.ContainsFunc(p.ChaptersIndices, func(ch int) bool { return slices.Contains(level1, ch) }) {
			preamble = append(preamble, p)
		}
	}

	groups := make([]Group, 0, len(level1)+1)
	if len(preamble) > 0 {
		groups = append(groups, Group{Heading: book.Unresolved, Pages: preamble})
	}
	for _, h := range level1 {
		var members []book.PreparedPage
		for _, p := range pages {
			if slices.Contains(p.ChaptersIndices, h) {
				members = append(members, p)
			}
		}
		if len(members) > 0 {
			groups = append(groups, Group{Heading: h, Pages: members})
		}
	}
	return groups
}

// Chunk returns the chunks of every group in group order. Pages that precede
// every level-1 heading, or all pages of a book without level-1 headings, are
// chunked first as a group whose Heading is book.Unresolved; their chunks carry
// no level-1 chapter index. If any chunk cannot be aligned to its pages no
// chunks are returned.
func (c *Chunker) Chunk(pages []book.PreparedPage, headings []book.Heading) ([]book.Chunk, error) {
	if c.Splitter == nil {
		return nil, errors.New("chunker: no splitter")
	}

	var out []book.Chunk
	for _, g := range Groups(pages, headings) {
		chunks, err := c.chunkGroup(g.Pages)
		if err != nil {
			return nil, fmt.Errorf("chapter %d: %w", g.Heading, err)
		}
		out = append(out, chunks...)
	}
	return out, nil
}

func (c *Chunker) chunkGroup(pages []book.PreparedPage) ([]book.Chunk, error) {
	spans := c.Splitter.Split(joinText(pages, JoinDelimiter))
	chunks := make([]book.Chunk, len(spans))
	for i, sp := range spans {
		chunks[i] = book.Chunk{Text: sp.Text, Start: sp.Start, End: sp.End, HasOffsets: true}
	}
	if err := AttachByOffset(chunks, pages); err != nil {
		return nil, err
	}
	return chunks, nil
}
