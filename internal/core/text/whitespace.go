package text

import (
	"regexp"
	"strings"
)

var (
	sentenceEndSpaces = regexp.MustCompile(`([.?!…])\s+`)
	bracketSpaces     = regexp.MustCompile(`([{}\[\]()])\s+|\s+([{}\[\]()])`)
	quoteSpaces       = regexp.MustCompile(`(["'])\s+|\s+(["'])`)
)

// TrimSpacesAfterSentenceEndings drops whitespace after sentence-ending
// punctuation and around brackets and quotes.
func TrimSpacesAfterSentenceEndings(s string) string {
	s = sentenceEndSpaces.ReplaceAllString(s, "$1")
	s = bracketSpaces.ReplaceAllString(s, "$1$2")
	return quoteSpaces.ReplaceAllString(s, "$1$2")
}

// mojibake is U+FFFD after a UTF-8 -> Latin-1 -> UTF-8 round trip.
const mojibake = "ï¿½"

// StripReplacementChars removes replacement characters left by broken decoding.
func StripReplacementChars(s string) string {
	s = strings.ReplaceAll(s, mojibake, "")
	return strings.ReplaceAll(s, "�", "")
}
