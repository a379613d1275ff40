package text

import (
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// arabicMarks covers tashkeel, Quranic annotation signs and tatweel.
var arabicMarks = &unicode.RangeTable{
	R16: []unicode.Range16{
		{Lo: 0x0610, Hi: 0x061A, Stride: 1},
		{Lo: 0x0640, Hi: 0x0640, Stride: 1},
		{Lo: 0x064B, Hi: 0x065F, Stride: 1},
		{Lo: 0x0670, Hi: 0x0670, Stride: 1},
		{Lo: 0x06D6, Hi: 0x06DC, Stride: 1},
		{Lo: 0x06DF, Hi: 0x06E4, Stride: 1},
		{Lo: 0x06E7, Hi: 0x06E8, Stride: 1},
		{Lo: 0x06EA, Hi: 0x06ED, Stride: 1},
	},
}

// RemoveDiacritics strips Arabic diacritical marks and tatweel and returns the
// NFC form of what is left. Input is composed first so that a decomposed
// hamza or madda stays attached to its letter.
func RemoveDiacritics(s string) string {
	t := transform.Chain(norm.NFC, runes.Remove(runes.In(arabicMarks)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// IsDiacritic reports whether r is removed by RemoveDiacritics.
func IsDiacritic(r rune) bool {
	return unicode.Is(arabicMarks, r)
}
