// Package splitter cuts text into size-bounded chunks that end on sentence
// boundaries and reports the byte range each chunk covers.
package splitter

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync/atomic"
	"unicode/utf8"

	"book-indexer/internal/core/text"
)

const (
	DefaultChunkSize    = 512
	DefaultChunkOverlap = 24

	// DefaultPrimary matches sentence endings and paragraph breaks. Whitespace
	// after the ending is optional since Reflow removes it.
	DefaultPrimary = `[.!?؟؛…]+\s*|\n\n+`
	// DefaultSecondary matches clause delimiters inside a long sentence.
	DefaultSecondary = `[,.;،؛؟!?…]+\s*`
)

var whitespace = regexp.MustCompile(`\s+`)

var ErrInvalidOptions = errors.New("splitter: invalid options")

type Options struct {
	ChunkSize    int
	ChunkOverlap int
	Primary      string
	Secondary    string
}

// DefaultOptions returns the sizes used for embedding chunks.
func DefaultOptions() Options {
	return Options{ChunkSize: DefaultChunkSize, ChunkOverlap: DefaultChunkOverlap}
}

// Span is one chunk. Text is always Source[Start:End].
type Span struct {
	Text  string
	Start int
	End   int
}

// Stats counts how often the degraded split paths ran.
type Stats struct {
	SecondarySplits  int64
	WhitespaceSplits int64
	HardCuts         int64
}

type Splitter struct {
	size      int
	overlap   int
	primary   *regexp.Regexp
	secondary *regexp.Regexp

	secondarySplits  atomic.Int64
	whitespaceSplits atomic.Int64
	hardCuts         atomic.Int64
}

func New(opts Options) (*Splitter, error) {
	if opts.ChunkSize == 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.ChunkSize < 0 || opts.ChunkOverlap < 0 || opts.ChunkOverlap >= opts.ChunkSize {
		return nil, fmt.Errorf("%w: chunk size %d, overlap %d", ErrInvalidOptions, opts.ChunkSize, opts.ChunkOverlap)
	}
	if opts.Primary == "" {
		opts.Primary = DefaultPrimary
	}
	if opts.Secondary == "" {
		opts.Secondary = DefaultSecondary
	}

	primary, err := regexp.Compile(opts.Primary)
	if err != nil {
		return nil, fmt.Errorf("%w: primary delimiter: %v", ErrInvalidOptions, err)
	}
	secondary, err := regexp.Compile(opts.Secondary)
	if err != nil {
		return nil, fmt.Errorf("%w: secondary delimiter: %v", ErrInvalidOptions, err)
	}

	return &Splitter{
		size:      opts.ChunkSize,
		overlap:   opts.ChunkOverlap,
		primary:   primary,
		secondary: secondary,
	}, nil
}

// MustNew is New for options known to be valid.
func MustNew(opts Options) *Splitter {
	s, err := New(opts)
	if err != nil {
		panic(err)
	}
	return s
}

func (s *Splitter) ChunkSize() int    { return s.size }
func (s *Splitter) ChunkOverlap() int { return s.overlap }

func (s *Splitter) Stats() Stats {
	return Stats{
		SecondarySplits:  s.secondarySplits.Load(),
		WhitespaceSplits: s.whitespaceSplits.Load(),
		HardCuts:         s.hardCuts.Load(),
	}
}

// Split returns the chunks of src in order. Consecutive spans overlap by at
// most ChunkOverlap runes; dropping src[Start:prev.End] from every span but the
// first rebuilds src exactly.
func (s *Splitter) Split(src string) []Span {
	return s.split(src, s.overlap)
}

// SplitText returns only the chunk texts.
func (s *Splitter) SplitText(src string) []string {
	spans := s.Split(src)
	out := make([]string, len(spans))
	for i, sp := range spans {
		out[i] = sp.Text
	}
	return out
}

// Reflow normalizes the whitespace of a page by splitting it without overlap,
// trimming every chunk and gluing them back.
func (s *Splitter) Reflow(src string) string {
	spans := s.split(src, 0)
	parts := make([]string, 0, len(spans))
	for _, sp := range spans {
		if p := strings.TrimSpace(sp.Text); p != "" {
			parts = append(parts, p)
		}
	}
	return text.TrimSpacesAfterSentenceEndings(strings.Join(parts, " "))
}

type piece struct {
	start, end int
	runes      int
}

func (s *Splitter) split(src string, overlap int) []Span {
	if src == "" {
		return nil
	}
	if utf8.RuneCountInString(src) <= s.size {
		return []Span{{Text: src, Start: 0, End: len(src)}}
	}

	pieces := s.segment(src, 0, len(src), 0, nil)
	return s.merge(src, pieces, overlap)
}

// segment cuts src[start:end] at the delimiters of the given level, descending
// to finer delimiters for pieces that are still too long.
func (s *Splitter) segment(src string, start, end, level int, out []piece) []piece {
	var re *regexp.Regexp
	switch level {
	case 0:
		re = s.primary
	case 1:
		re = s.secondary
		s.secondarySplits.Add(1)
	case 2:
		re = whitespace
		s.whitespaceSplits.Add(1)
	default:
		return s.hardCut(src, start, end, out)
	}

	for _, r := range cut(re, src, start, end) {
		n := utf8.RuneCountInString(src[r[0]:r[1]])
		if n <= s.size {
			out = append(out, piece{start: r[0], end: r[1], runes: n})
			continue
		}
		out = s.segment(src, r[0], r[1], level+1, out)
	}
	return out
}

// cut returns the ranges of src[start:end] that end right after each match.
func cut(re *regexp.Regexp, src string, start, end int) [][2]int {
	var ranges [][2]int
	from := start
	for _, m := range re.FindAllStringIndex(src[start:end], -1) {
		to := start + m[1]
		if to <= from {
			continue
		}
		ranges = append(ranges, [2]int{from, to})
		from = to
	}
	if from < end {
		ranges = append(ranges, [2]int{from, end})
	}
	return ranges
}

func (s *Splitter) hardCut(src string, start, end int, out []piece) []piece {
	s.hardCuts.Add(1)
	from, n := start, 0
	for i := range src[start:end] {
		if n == s.size {
			out = append(out, piece{start: from, end: start + i, runes: n})
			from, n = start+i, 0
		}
		n++
	}
	return append(out, piece{start: from, end: end, runes: n})
}

// merge packs pieces greedily into chunks of at most s.size runes. A new chunk
// re-includes the trailing whole pieces of the previous one that fit in overlap.
func (s *Splitter) merge(src string, pieces []piece, overlap int) []Span {
	var spans []Span
	first := 0
	for first < len(pieces) {
		last, total := first, pieces[first].runes
		for last+1 < len(pieces) && total+pieces[last+1].runes <= s.size {
			last++
			total += pieces[last].runes
		}

		start, end := pieces[first].start, pieces[last].end
		spans = append(spans, Span{Text: src[start:end], Start: start, End: end})
		if last == len(pieces)-1 {
			break
		}

		next, carried := last+1, 0
		for next-1 > first {
			r := pieces[next-1].runes
			if carried+r > overlap || carried+r+pieces[last+1].runes > s.size {
				break
			}
			carried += r
			next--
		}
		first = next
	}
	return spans
}
