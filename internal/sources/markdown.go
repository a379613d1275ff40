package sources

import (
	"regexp"
	"strconv"
	"strings"

	"book-indexer/internal/core/book"
)

const (
	metaHeaderEnd = "#META#Header#End#"
	hemistichSep  = "%~%"
)

var (
	pageMarker = regexp.MustCompile(`PageV(\d+)P(\d+)`)
	milestone  = regexp.MustCompile(`\bms[A-Z]?\d+\b`)
	headerLine = regexp.MustCompile(`^###\s*(\|+)\s*(.*)$`)
	spaceRuns  = regexp.MustCompile(`\s+`)
)

// mdParser accumulates OpenITI mARkdown into pages. Page markers close the
// page whose content precedes them.
type mdParser struct {
	pages    []book.Page
	headings []book.Heading

	blocks  []book.Block
	open    int
	carry   book.BlockType
	pending []int
}

// ParseMARkdown converts an OpenITI mARkdown text into pages and a flat
// outline. Pages without blocks are dropped. Headings point at the page their
// header sits on, or book.Unresolved when it has no page number.
func ParseMARkdown(s string) *book.PagedContent {
	if i := strings.Index(s, metaHeaderEnd); i >= 0 {
		s = s[i+len(metaHeaderEnd):]
	}

	p := &mdParser{open: -1}
	for _, line := range strings.Split(s, "\n") {
		p.line(strings.TrimRight(line, "\r "))
	}
	p.flush(nil, "")

	index := make(map[string]int, len(p.pages))
	for i, pg := range p.pages {
		index[pageKey(pg.Volume, pg.Page)] = i
	}
	for i := range p.headings {
		h := &p.headings[i]
		h.PageIndex = book.Unresolved
		if h.Page == nil {
			continue
		}
		if idx, found := index[pageKey(h.Volume, h.Page)]; found {
			h.PageIndex = idx
		}
	}

	return &book.PagedContent{Pages: p.pages, Headings: p.headings}
}

func pageKey(vol string, page *int) string {
	if page == nil {
		return vol + "-"
	}
	return vol + "-" + strconv.Itoa(*page)
}

func (p *mdParser) line(l string) {
	switch {
	case l == "" || strings.HasPrefix(l, "######OpenITI#") || strings.HasPrefix(l, "#META#"):
		p.close()
	case headerLine.MatchString(l):
		m := headerLine.FindStringSubmatch(l)
		level := len(m[1])
		p.close()
		title := strings.TrimSpace(spaceRuns.ReplaceAllString(milestone.ReplaceAllString(pageMarker.ReplaceAllString(m[2], " "), " "), " "))
		p.headings = append(p.headings, book.Heading{Title: title, Level: level, PageIndex: book.Unresolved})
		p.pending = append(p.pending, len(p.headings)-1)
		p.start(book.BlockHeader, level)
		p.write(m[2])
		p.close()
	case strings.HasPrefix(l, "# "):
		p.close()
		body := l[2:]
		if strings.Contains(body, hemistichSep) {
			p.start(book.BlockVerse, 0)
		} else {
			p.start(book.BlockParagraph, 0)
		}
		p.write(body)
	case strings.HasPrefix(l, "~~"):
		p.write(l[2:])
	case strings.HasPrefix(l, "#"):
		// other tagged lines (e.g. "#~:") start a new paragraph
		p.close()
		p.start(book.BlockParagraph, 0)
		p.write(strings.TrimLeft(l, "#~: "))
	default:
		p.write(l)
	}
}

func (p *mdParser) start(t book.BlockType, level int) {
	p.blocks = append(p.blocks, book.Block{Type: t, Level: level})
	p.open = len(p.blocks) - 1
	p.carry = ""
}

func (p *mdParser) close() {
	p.open = -1
	p.carry = ""
}

// write appends text to the open block, closing pages at every marker.
func (p *mdParser) write(s string) {
	for {
		loc := pageMarker.FindStringSubmatchIndex(s)
		if loc == nil {
			p.append(s)
			return
		}
		p.append(s[:loc[0]])
		vol, _ := strconv.Atoi(s[loc[2]:loc[3]])
		page, _ := strconv.Atoi(s[loc[4]:loc[5]])
		p.flush(book.IntPtr(page), strconv.Itoa(vol))
		s = s[loc[1]:]
	}
}

func (p *mdParser) append(s string) {
	s = strings.TrimSpace(milestone.ReplaceAllString(s, ""))
	if s == "" {
		return
	}
	if p.open < 0 {
		t := p.carry
		if t == "" {
			t = book.BlockParagraph
		}
		p.start(t, 0)
	}
	b := &p.blocks[p.open]
	if b.Content == "" {
		b.Content = s
	} else {
		b.Content += " " + s
	}
}

// flush closes the current page. A paragraph or verse that runs over the
// marker continues as a new block on the next page.
func (p *mdParser) flush(page *int, vol string) {
	var carry book.BlockType
	if p.open >= 0 {
		if t := p.blocks[p.open].Type; t == book.BlockParagraph || t == book.BlockVerse {
			carry = t
		}
	}

	blocks := make([]book.Block, 0, len(p.blocks))
	for _, b := range p.blocks {
		if b.Content == "" {
			continue
		}
		if b.Type == book.BlockVerse {
			b.Verse = splitHemistichs(b.Content)
			b.Content = ""
		}
		blocks = append(blocks, b)
	}

	for _, hi := range p.pending {
		p.headings[hi].Page = page
		p.headings[hi].Volume = vol
	}
	p.pending = p.pending[:0]

	if len(blocks) > 0 {
		p.pages = append(p.pages, book.Page{Blocks: blocks, Page: page, Volume: vol})
	}
	p.blocks = nil
	p.open = -1
	p.carry = carry
}

func splitHemistichs(s string) []string {
	parts := strings.Split(s, hemistichSep)
	out := make([]string, 0, len(parts))
	for _, h := range parts {
		if h = strings.TrimSpace(h); h != "" {
			out = append(out, h)
		}
	}
	return out
}
