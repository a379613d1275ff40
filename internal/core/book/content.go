package book

// Content is the fetched payload of one book version. It is a closed set:
// *PagedContent for sources with page text, *ExternalContent for versions that
// only link elsewhere.
type Content interface {
	Version() Version
	content()
}

// PagedContent is the source-independent shape every paged source normalizes to.
type PagedContent struct {
	BookVersion Version
	Pages       []Page
	Headings    []Heading
	RawURL      string
}

func (c *PagedContent) Version() Version { return c.BookVersion }
func (c *PagedContent) content()         {}

// ExternalContent is a version hosted outside the pipeline; there is nothing to index.
type ExternalContent struct {
	BookVersion Version
}

func (c *ExternalContent) Version() Version { return c.BookVersion }
func (c *ExternalContent) content()         {}

// Level1Indices returns the indices of top-level headings, in outline order.
func Level1Indices(headings []Heading) []int {
	out := make([]int, 0)
	for i, h := range headings {
		if h.Level == 1 {
			out = append(out, i)
		}
	}
	return out
}
