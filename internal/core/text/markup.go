package text

import (
	"fmt"
	"regexp"
	"strings"

	"book-indexer/internal/core/book"

	"github.com/PuerkitoBio/goquery"
)

var lineBreak = regexp.MustCompile(`(?i)<br\s*/?>`)

// StripMarkup removes every HTML tag and decodes entities. A <br> becomes a
// newline so that merged pages keep their line break.
func StripMarkup(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return strings.TrimSpace(s)
	}
	s = lineBreak.ReplaceAllString(s, "\n")
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(doc.Text())
}

// StripTags removes only the named elements, keeping their text, and returns
// the remaining markup.
func StripTags(s string, tags ...string) (string, error) {
	if !strings.Contains(s, "<") || len(tags) == 0 {
		return s, nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return "", err
	}
	for _, tag := range tags {
		doc.Find(tag).Each(func(_ int, sel *goquery.Selection) {
			sel.ReplaceWithSelection(sel.Contents())
		})
	}
	return doc.Find("body").Html()
}

// RenderBlocks flattens typed blocks into markup so that every source goes
// through the same stripping step.
func RenderBlocks(blocks []book.Block) string {
	parts := make([]string, 0, len(blocks))
	for _, b := range blocks {
		switch b.Type {
		case book.BlockHeader, book.BlockTitle:
			level := 1
			if b.Type == book.BlockHeader {
				level = min(6, max(1, b.Level))
			}
			parts = append(parts, fmt.Sprintf("<h%d>%s</h%d>", level, b.Content, level))
		case book.BlockBlockquote:
			parts = append(parts, "<blockquote>"+b.Content+"</blockquote>")
		case book.BlockVerse:
			parts = append(parts, "<p>"+strings.Join(b.Verse, "\t")+"</p>")
		default:
			parts = append(parts, "<p>"+b.Content+"</p>")
		}
	}
	return strings.Join(parts, " ")
}
