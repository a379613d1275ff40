// Package chapters maps pages to the outline headings in effect at them.
package chapters

import (
	"slices"
	"sort"

	"book-indexer/internal/core/book"
)

// PageHeadings maps a page index to the heading indices that take effect at
// that page. It is sparse: pages without an entry inherit the previous one.
type PageHeadings map[int][]int

func (p PageHeadings) sortedKeys() []int {
	keys := make([]int, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

// ChaptersForPage returns the entry of the greatest key not above pageIndex.
// A later entry replaces an earlier one, it is never merged with it.
func ChaptersForPage(pageIndex int, idx PageHeadings) []int {
	current := []int{}
	for _, k := range idx.sortedKeys() {
		if k > pageIndex {
			break
		}
		current = idx[k]
	}
	return slices.Clone(current)
}

// Resolver answers ChaptersForPage with keys sorted once per book.
type Resolver struct {
	idx  PageHeadings
	keys []int
}

func NewResolver(idx PageHeadings) *Resolver {
	return &Resolver{idx: idx, keys: idx.sortedKeys()}
}

func (r *Resolver) ChaptersForPage(pageIndex int) []int {
	i := sort.SearchInts(r.keys, pageIndex+1)
	if i == 0 {
		return []int{}
	}
	return slices.Clone(r.idx[r.keys[i-1]])
}

// BuildOutline walks the headings by page and records, for every page that
// opens a heading, the path of open headings from the top level down. When
// several headings open on one page the page gets the union of their paths,
// in first-seen order. A heading of level L closes every open heading of
// level L or deeper. Unresolved headings are skipped.
func BuildOutline(headings []book.Heading) PageHeadings {
	order := make([]int, 0, len(headings))
	for i, h := range headings {
		if h.PageIndex >= 0 {
			order = append(order, i)
		}
	}
	sort.SliceStable(order, func(a, b int) bool {
		return headings[order[a]].PageIndex < headings[order[b]].PageIndex
	})

	out := make(PageHeadings)
	path := make([]int, 0, 8)
	for _, i := range order {
		h := headings[i]
		level := max(1, h.Level)
		for len(path) > 0 && max(1, headings[path[len(path)-1]].Level) >= level {
			path = path[:len(path)-1]
		}
		path = append(path, i)
		for _, hi := range path {
			if !slices.Contains(out[h.PageIndex], hi) {
				out[h.PageIndex] = append(out[h.PageIndex], hi)
			}
		}
	}
	return out
}

// InferPages picks, for each heading print page, the page key to use for it.
// A page that resolves is used as is. Otherwise the last resolved page is
// reused when the heading comes after it, or the closest earlier page that
// resolves is searched for. Headings left without a page get book.Unresolved.
func InferPages(headingPages []int, resolve func(page int) bool) []int {
	out := make([]int, len(headingPages))
	last, hasLast := 0, false
	for i, page := range headingPages {
		if resolve(page) {
			out[i] = page
			last, hasLast = page, true
			continue
		}

		out[i] = book.Unresolved
		if hasLast && page > last {
			out[i] = last
			continue
		}
		for p := page - 1; p > 0; p-- {
			if resolve(p) {
				out[i] = p
				last, hasLast = p, true
				break
			}
		}
	}
	return out
}
