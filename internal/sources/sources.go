// Package sources fetches book versions from their publishing systems and
// normalizes them to book.Content.
package sources

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"book-indexer/config"
	"book-indexer/internal/core/book"

	"github.com/gofiber/fiber/v3/client"
)

var (
	ErrNotFound          = errors.New("book content not found")
	ErrUnsupportedSource = errors.New("unsupported source")
)

// Ref identifies the book a version belongs to. OpenITI paths are built from
// both ids.
type Ref struct {
	BookID   string
	AuthorID string
}

// ObjectStore is the object storage used for snapshots and PDF versions.
type ObjectStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	GetFrom(ctx context.Context, bucket, key string) ([]byte, error)
	Put(ctx context.Context, key string, body []byte, contentType string) error
}

type Config struct {
	OpenITIBaseURL string
	TurathBaseURL  string
	Timeout        time.Duration
	// SnapshotPrefix enables the snapshot cache when set and an ObjectStore
	// is given.
	SnapshotPrefix string
}

// ConfigFromSettings maps config.Cfg onto Config.
func ConfigFromSettings() Config {
	return Config{
		OpenITIBaseURL: config.Cfg.Sources.OpenITIBaseURL,
		TurathBaseURL:  config.Cfg.Sources.TurathBaseURL,
		Timeout:        time.Duration(config.Cfg.Sources.TimeoutSeconds) * time.Second,
		SnapshotPrefix: config.Cfg.S3.SnapshotPrefix,
	}
}

// Fetcher downloads and parses book versions. Safe for concurrent use.
type Fetcher struct {
	cfg     Config
	http    *client.Client
	objects ObjectStore
}

// New returns a Fetcher. objects may be nil, which disables snapshots and
// PDF versions.
func New(cfg Config, objects ObjectStore) *Fetcher {
	cc := client.New()
	if cfg.Timeout > 0 {
		cc.SetTimeout(cfg.Timeout)
	}
	return &Fetcher{cfg: cfg, http: cc, objects: objects}
}

// Fetch loads one version of a book.
func (f *Fetcher) Fetch(ctx context.Context, ref Ref, v book.Version) (book.Content, error) {
	switch v.Source {
	case book.SourceExternal:
		return &book.ExternalContent{BookVersion: v}, nil
	case book.SourceTurath:
		return f.fetchTurath(ctx, v)
	case book.SourceOpenITI:
		return f.fetchOpenITI(ctx, ref, v)
	case book.SourcePDF:
		return f.fetchPDF(ctx, v)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedSource, v.Source)
	}
}

// get performs a GET and returns a copy of the body.
func (f *Fetcher) get(ctx context.Context, url string) ([]byte, int, error) {
	resp, err := f.http.Get(url, client.Config{Ctx: ctx})
	if err != nil {
		return nil, 0, err
	}
	defer resp.Close()
	return bytes.Clone(resp.Body()), resp.StatusCode(), nil
}

func ok(status int) bool {
	return status >= 200 && status < 300
}
