package sources

import (
	"context"
	"fmt"
	"strings"

	"book-indexer/internal/core/book"
)

// openITISuffixes are tried in order after the bare version path.
var openITISuffixes = []string{"", ".completed", ".mARkdown"}

func (f *Fetcher) fetchOpenITI(ctx context.Context, ref Ref, v book.Version) (book.Content, error) {
	if ref.AuthorID == "" || ref.BookID == "" {
		return nil, fmt.Errorf("openiti %s: author and book ids are required", v.Value)
	}
	base := fmt.Sprintf("%s/%s/%s/%s", strings.TrimRight(f.cfg.OpenITIBaseURL, "/"), ref.AuthorID, ref.BookID, v.Value)

	snap, err := f.cached(ctx, v, func() (snapshot, error) {
		var lastStatus int
		for _, suffix := range openITISuffixes {
			url := base + suffix
			body, status, err := f.get(ctx, url)
			if err != nil {
				return snapshot{}, fmt.Errorf("openiti %s: %w", v.Value, err)
			}
			if ok(status) {
				return snapshot{URL: url, Body: string(body)}, nil
			}
			lastStatus = status
		}
		return snapshot{}, fmt.Errorf("%w: openiti %s: status %d", ErrNotFound, v.Value, lastStatus)
	})
	if err != nil {
		return nil, err
	}

	content := ParseMARkdown(snap.Body)
	content.BookVersion = v
	content.RawURL = snap.URL
	return content, nil
}
