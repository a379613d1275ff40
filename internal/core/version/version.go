// Package version picks which published edition of a book gets indexed.
package version

import (
	"errors"
	"regexp"
	"slices"
	"sort"
	"strings"

	"book-indexer/internal/core/book"
)

var ErrNoVersion = errors.New("book has no matching version")

// Priority ranks OpenITI edition families, best first.
var Priority = []string{
	"Shamela",
	"Sham19Y",
	"JK",
	"Sham30K",
	"Shia",
	"Zaydiyya",
	"ShamIbadiyya",
	"Tafsir",
	"ShamAY",
	"GRAR",
	"BibleCorpus",
	"Filaha",
	"Hindawi",
}

var trailingDigits = regexp.MustCompile(`\d+$`)

// Select returns the version to index. A requested value wins when present.
// Otherwise, when the first two versions both come from turath the second is
// used, and in every other case the first one is.
func Select(versions []book.Version, requested string) (book.Version, error) {
	if len(versions) == 0 {
		return book.Version{}, ErrNoVersion
	}
	if v, ok := find(versions, requested); ok {
		return v, nil
	}
	if len(versions) >= 2 &&
		versions[0].Source == book.SourceTurath &&
		versions[1].Source == book.SourceTurath {
		return versions[1], nil
	}
	return versions[0], nil
}

// SelectFromSource is Select restricted to one source. OpenITI versions are
// ranked by edition family instead of list position.
func SelectFromSource(versions []book.Version, source book.Source, requested string) (book.Version, error) {
	filtered := make([]book.Version, 0, len(versions))
	for _, v := range versions {
		if v.Source == source {
			filtered = append(filtered, v)
		}
	}
	if len(filtered) == 0 {
		return book.Version{}, ErrNoVersion
	}
	if v, ok := find(filtered, requested); ok {
		return v, nil
	}
	if source != book.SourceOpenITI {
		return Select(filtered, "")
	}

	values := make([]string, len(filtered))
	for i, v := range filtered {
		values[i] = v.Value
	}
	best, _ := HighestPriority(values)
	v, _ := find(filtered, best)
	return v, nil
}

func find(versions []book.Version, value string) (book.Version, bool) {
	if value == "" {
		return book.Version{}, false
	}
	i := slices.IndexFunc(versions, func(v book.Version) bool { return v.Value == value })
	if i < 0 {
		return book.Version{}, false
	}
	return versions[i], true
}

// FamilyName extracts the edition family of an OpenITI version id, e.g.
// "0179MalikIbnAnas.Muwatta.Shamela0001697-ara1" gives "Shamela".
func FamilyName(value string) string {
	name := value[strings.LastIndex(value, ".")+1:]
	name, _, _ = strings.Cut(name, "-")
	name = strings.Replace(name, "Vols", "", 1)
	return trailingDigits.ReplaceAllString(name, "")
}

// Rank is the position of the family in Priority, or len(Priority) when it is
// not ranked.
func Rank(value string) int {
	if i := slices.Index(Priority, FamilyName(value)); i >= 0 {
		return i
	}
	return len(Priority)
}

// HighestPriority returns the best ranked value. Ties, including unranked
// families, keep their input order.
func HighestPriority(values []string) (string, bool) {
	if len(values) == 0 {
		return "", false
	}
	sorted := slices.Clone(values)
	sort.SliceStable(sorted, func(a, b int) bool {
		return Rank(sorted[a]) < Rank(sorted[b])
	})
	return sorted[0], true
}
