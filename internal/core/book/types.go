package book

import "strconv"

// Source identifies the system a book version was published by.
type Source string

const (
	SourceOpenITI  Source = "openiti"
	SourceTurath   Source = "turath"
	SourcePDF      Source = "pdf"
	SourceExternal Source = "external"
)

// Version is one published edition of a book.
type Version struct {
	Source           Source `json:"source"`
	Value            string `json:"value"`
	AISupported      bool   `json:"aiSupported,omitempty"`
	KeywordSupported bool   `json:"keywordSupported,omitempty"`
}

// ID is the "source:value" form used as book_version_id in the indexes.
func (v Version) ID() string {
	return string(v.Source) + ":" + v.Value
}

type BlockType string

const (
	BlockParagraph  BlockType = "paragraph"
	BlockHeader     BlockType = "header"
	BlockTitle      BlockType = "title"
	BlockBlockquote BlockType = "blockquote"
	BlockVerse      BlockType = "verse"
)

// Block is one typed unit of page content.
type Block struct {
	Type    BlockType
	Content string
	Level   int
	Verse   []string
}

// Page is one physical page as supplied by a source. Either Text or Blocks is set.
type Page struct {
	Text   string
	Blocks []Block
	Page   *int
	Volume string
}

// Unresolved marks a heading whose page index could not be determined.
const Unresolved = -1

// Heading is an entry of the flat, leveled outline of a book.
type Heading struct {
	Title     string
	Level     int
	PageIndex int
	Page      *int
	Volume    string
}

// PreparedPage is a normalized page plus the heading indices in effect at it.
type PreparedPage struct {
	Index           int
	Page            *int
	Volume          string
	Text            string
	ChaptersIndices []int
}

// Ref returns the provenance reference of the page.
func (p PreparedPage) Ref() PageRef {
	return PageRef{Index: p.Index, Page: p.Page, Volume: p.Volume}
}

// PageRef is the provenance attached to a chunk for each page it overlaps.
type PageRef struct {
	Index  int    `json:"index"`
	Page   *int   `json:"page,omitempty"`
	Volume string `json:"volume,omitempty"`
}

// Key identifies the physical page by its (volume, page) pair.
func (r PageRef) Key() string {
	page := ""
	if r.Page != nil {
		page = strconv.Itoa(*r.Page)
	}
	return r.Volume + "-" + page
}

type ChunkMetadata struct {
	Pages           []PageRef `json:"pages"`
	ChaptersIndices []int     `json:"chaptersIndices"`
}

// Chunk is a contiguous passage scoped to one chapter group. Start and End are
// byte offsets into the group's concatenated text; HasOffsets is false when the
// chunk was rebuilt from emitted text.
type Chunk struct {
	Text       string        `json:"text"`
	Start      int           `json:"start"`
	End        int           `json:"end"`
	HasOffsets bool          `json:"hasOffsets"`
	Metadata   ChunkMetadata `json:"metadata"`
}

// IntPtr is a helper for optional page numbers.
func IntPtr(v int) *int {
	return &v
}
