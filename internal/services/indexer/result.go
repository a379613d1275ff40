package indexer

import (
	"errors"

	"book-indexer/internal/core/book"
	"book-indexer/internal/core/version"
	"book-indexer/internal/database"
	"book-indexer/internal/sources"
)

type Status string

const (
	StatusSuccess   Status = "success"
	StatusSkipped   Status = "skipped"
	StatusNotFound  Status = "not-found"
	StatusNoVersion Status = "no-version"
	StatusError     Status = "error"
)

// Result is the outcome of one run. Runs never panic or return bare errors so
// that a batch can move on to the next book.
type Result struct {
	Status  Status        `json:"status"`
	Reason  string        `json:"reason,omitempty"`
	Version *book.Version `json:"version,omitempty"`
	// Count is the number of chunks or pages written.
	Count int   `json:"count,omitempty"`
	Err   error `json:"-"`
}

// OK reports whether the run needs no retry.
func (r Result) OK() bool {
	return r.Status == StatusSuccess || r.Status == StatusSkipped
}

// ErrorMessage is Err as text, for logs and JSON.
func (r Result) ErrorMessage() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

func skipped(v book.Version, reason string) Result {
	return Result{Status: StatusSkipped, Reason: reason, Version: &v}
}

// failed maps err onto the status taxonomy.
func failed(err error, reason string) Result {
	switch {
	case errors.Is(err, database.ErrBookNotFound),
		errors.Is(err, database.ErrVersionNotFound),
		errors.Is(err, sources.ErrNotFound):
		return Result{Status: StatusNotFound, Reason: err.Error(), Err: err}
	case errors.Is(err, version.ErrNoVersion):
		return Result{Status: StatusNoVersion, Reason: err.Error(), Err: err}
	case errors.Is(err, ErrNotIndexable):
		return Result{Status: StatusSkipped, Reason: err.Error()}
	}
	if reason == "" {
		reason = err.Error()
	}
	return Result{Status: StatusError, Reason: reason, Err: err}
}

// ResultOf classifies an error returned by BuildChunks or a lookup.
func ResultOf(err error) Result {
	return failed(err, "")
}
