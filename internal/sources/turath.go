package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"book-indexer/internal/core/book"
	"book-indexer/internal/core/chapters"
	"book-indexer/internal/core/text"
)

// Turath payloads replace their JSON keys with single Arabic marks, in this
// order starting at U+064B.
var turathKeys = strings.Fields(`meta id name type printed pdf_links info info_long version
	author_id cat_id date_built author_page_start indexes volumes
	headings print_pg_to_pg volume_bounds page_map page_headings non_author`)

var obfuscatedKey = regexp.MustCompile(`"([\x{064B}-\x{065F}])":`)

func unobfuscateKeys(s string) string {
	return obfuscatedKey.ReplaceAllStringFunc(s, func(m string) string {
		r := []rune(m)[1]
		i := int(r - 0x064B)
		if i < 0 || i >= len(turathKeys) {
			return m
		}
		return `"` + turathKeys[i] + `":`
	})
}

type turathBook struct {
	Meta struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	} `json:"meta"`
	Indexes struct {
		Headings []struct {
			Title string `json:"title"`
			Level int    `json:"level"`
			Page  int    `json:"page"`
		} `json:"headings"`
		PrintPageToPage map[string]int   `json:"print_pg_to_pg"`
		PageHeadings    map[string][]int `json:"page_headings"`
	} `json:"indexes"`
	Pages []turathPage `json:"pages"`
}

type turathPage struct {
	Text string `json:"text"`
	Vol  string `json:"vol"`
	Page *int   `json:"page"`
}

type printPage struct {
	vol  string
	page int
}

func (f *Fetcher) fetchTurath(ctx context.Context, v book.Version) (book.Content, error) {
	url := fmt.Sprintf("%s/books-v3/%s.json", strings.TrimRight(f.cfg.TurathBaseURL, "/"), v.Value)
	snap, err := f.cached(ctx, v, func() (snapshot, error) {
		body, status, err := f.get(ctx, url)
		if err != nil {
			return snapshot{}, fmt.Errorf("turath %s: %w", v.Value, err)
		}
		if !ok(status) {
			return snapshot{}, fmt.Errorf("%w: turath %s: status %d", ErrNotFound, v.Value, status)
		}
		return snapshot{URL: url, Body: string(body)}, nil
	})
	if err != nil {
		return nil, err
	}

	content, err := parseTurath([]byte(unobfuscateKeys(snap.Body)))
	if err != nil {
		return nil, fmt.Errorf("turath %s: %w", v.Value, err)
	}
	content.BookVersion = v
	content.RawURL = snap.URL
	return content, nil
}

func parseTurath(raw []byte) (*book.PagedContent, error) {
	var res turathBook
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	// print page number -> (volume, page)
	printed := make(map[int]printPage, len(res.Indexes.PrintPageToPage))
	for key, headerPage := range res.Indexes.PrintPageToPage {
		vol, page, found := strings.Cut(key, ",")
		if !found || vol == "" || page == "" {
			continue
		}
		n, err := strconv.Atoi(page)
		if err != nil {
			continue
		}
		printed[headerPage] = printPage{vol: vol, page: n}
	}

	headingPages := make([]int, len(res.Indexes.Headings))
	for i, h := range res.Indexes.Headings {
		headingPages[i] = h.Page
	}
	inferred := chapters.InferPages(headingPages, func(p int) bool {
		_, found := printed[p]
		return found
	})

	headings := make([]book.Heading, len(res.Indexes.Headings))
	for i, h := range res.Indexes.Headings {
		headings[i] = book.Heading{Title: h.Title, Level: h.Level, PageIndex: book.Unresolved}
		if pp, found := printed[inferred[i]]; found {
			headings[i].Page = book.IntPtr(pp.page)
			headings[i].Volume = pp.vol
		}
	}

	pages, oldToNew, err := mergeTurathPages(res.Pages)
	if err != nil {
		return nil, err
	}

	// ascending page order, so a heading listed twice keeps its later page
	pageNos := make([]int, 0, len(res.Indexes.PageHeadings))
	byPage := make(map[int][]int, len(res.Indexes.PageHeadings))
	for pageKey, indices := range res.Indexes.PageHeadings {
		pageNo, err := strconv.Atoi(pageKey)
		if err != nil {
			continue
		}
		pageNos = append(pageNos, pageNo)
		byPage[pageNo] = indices
	}
	sort.Ints(pageNos)

	for _, pageNo := range pageNos {
		for _, hi := range byPage[pageNo] {
			if hi < 1 || hi > len(headings) {
				continue
			}
			if idx := pageNo - 1; idx >= 0 && idx < len(oldToNew) {
				headings[hi-1].PageIndex = oldToNew[idx]
			} else {
				headings[hi-1].PageIndex = book.Unresolved
			}
		}
	}

	// Headings missing from page_headings fall back to their print page.
	byPrintPage := make(map[string]int, len(pages))
	for i := len(pages) - 1; i >= 0; i-- {
		byPrintPage[book.PageRef{Page: pages[i].Page, Volume: pages[i].Volume}.Key()] = i
	}
	for i := range headings {
		h := &headings[i]
		if h.PageIndex != book.Unresolved || h.Page == nil {
			continue
		}
		if idx, found := byPrintPage[book.PageRef{Page: h.Page, Volume: h.Volume}.Key()]; found {
			h.PageIndex = idx
		}
	}

	return &book.PagedContent{Pages: pages, Headings: headings}, nil
}

// mergeTurathPages drops anchor tags and joins consecutive pages that share
// a (volume, page) pair. It returns the merged pages and, for each input
// page, its merged index.
func mergeTurathPages(in []turathPage) ([]book.Page, []int, error) {
	merged := make([]book.Page, 0, len(in))
	oldToNew := make([]int, len(in))

	for i, p := range in {
		body, err := text.StripTags(p.Text, "a")
		if err != nil {
			return nil, nil, fmt.Errorf("page %d: %w", i, err)
		}

		if n := len(merged); n > 0 && samePage(merged[n-1], p) {
			last := &merged[n-1]
			if strings.HasSuffix(last.Text, "</span>.") {
				last.Text += body
			} else {
				last.Text += "<br>" + body
			}
		} else {
			merged = append(merged, book.Page{Text: body, Page: p.Page, Volume: p.Vol})
		}
		oldToNew[i] = len(merged) - 1
	}
	return merged, oldToNew, nil
}

func samePage(a book.Page, b turathPage) bool {
	if a.Volume != b.Vol {
		return false
	}
	if a.Page == nil || b.Page == nil {
		return a.Page == nil && b.Page == nil
	}
	return *a.Page == *b.Page
}
