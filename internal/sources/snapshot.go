package sources

import (
	"context"
	"encoding/json"
	"errors"
	"path"

	"book-indexer/config"
	"book-indexer/internal/core/book"
	"book-indexer/pkg/logger"
	"book-indexer/pkg/s3"
)

// snapshot is a raw source payload together with the URL it came from.
type snapshot struct {
	URL  string `json:"url"`
	Body string `json:"body"`
}

func (f *Fetcher) snapshotsEnabled() bool {
	return f.objects != nil && f.cfg.SnapshotPrefix != ""
}

func (f *Fetcher) snapshotKey(v book.Version) string {
	return path.Join(f.cfg.SnapshotPrefix, string(v.Source), v.Value+".json")
}

// cached returns the stored payload of v, or calls fetch and stores its
// result. Snapshot storage failures only cost the cache.
func (f *Fetcher) cached(ctx context.Context, v book.Version, fetch func() (snapshot, error)) (snapshot, error) {
	if !f.snapshotsEnabled() {
		return fetch()
	}

	key := f.snapshotKey(v)
	if raw, err := f.objects.Get(ctx, key); err == nil {
		var snap snapshot
		if err := json.Unmarshal(raw, &snap); err == nil {
			logger.Debug("%v: snapshot hit %s", config.ModuleSources, key)
			return snap, nil
		}
		logger.Warn("%v: corrupt snapshot %s, refetching", config.ModuleSources, key)
	} else if !errors.Is(err, s3.ErrNotFound) {
		logger.Warn("%v: read snapshot %s: %v", config.ModuleSources, key, err)
	}

	snap, err := fetch()
	if err != nil {
		return snap, err
	}
	raw, err := json.Marshal(snap)
	if err == nil {
		err = f.objects.Put(ctx, key, raw, "application/json")
	}
	if err != nil {
		logger.Warn("%v: write snapshot %s: %v", config.ModuleSources, key, err)
	}
	return snap, nil
}
