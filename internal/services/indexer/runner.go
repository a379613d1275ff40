package indexer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"book-indexer/pkg/logger"
)

var (
	ErrBusy       = errors.New("indexer: all job slots are taken")
	ErrClosed     = errors.New("indexer: runner is shut down")
	ErrUnknownJob = errors.New("indexer: unknown job kind")
)

type Kind string

const (
	KindVector  Kind = "vector"
	KindKeyword Kind = "keyword"
)

// ParseKind validates a job kind coming from a URL or flag.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindVector, KindKeyword:
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownJob, s)
}

type Job struct {
	Kind   Kind
	Params Params
}

// Run executes a job synchronously.
func (s *Service) Run(ctx context.Context, job Job) Result {
	switch job.Kind {
	case KindVector:
		return s.IndexVectors(ctx, job.Params)
	case KindKeyword:
		return s.IndexKeywords(ctx, job.Params)
	}
	return failed(fmt.Errorf("%w: %q", ErrUnknownJob, job.Kind), "")
}

// Runner executes jobs in the background with at most limit running at once.
// Jobs over the limit are rejected rather than queued.
type Runner struct {
	svc     *Service
	slots   chan struct{}
	timeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewRunner returns a Runner. timeout bounds every job; zero means none.
func NewRunner(svc *Service, limit int, timeout time.Duration) *Runner {
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		svc:     svc,
		slots:   make(chan struct{}, max(1, limit)),
		timeout: timeout,
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (r *Runner) acquire() bool {
	select {
	case r.slots <- struct{}{}:
		return true
	default:
		return false
	}
}

func (r *Runner) release() {
	select {
	case <-r.slots:
	default:
	}
}

// Submit starts job in the background. done, when not nil, receives the
// result.
func (r *Runner) Submit(job Job, done func(Result)) error {
	if _, err := ParseKind(string(job.Kind)); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	if !r.acquire() {
		return ErrBusy
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.release()

		res := r.run(job)
		if done != nil {
			done(res)
		}
	}()
	return nil
}

func (r *Runner) run(job Job) (res Result) {
	log := logger.Job(string(job.Kind), job.Params.BookID, job.Params.VersionID)

	ctx := r.ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	defer func() {
		if p := recover(); p != nil {
			res = Result{Status: StatusError, Reason: "panic", Err: fmt.Errorf("panic: %v", p)}
			log.WithField("panic", p).Error("indexing job panicked")
		}
	}()

	start := time.Now()
	res = r.svc.Run(ctx, job)
	entry := log.WithFields(map[string]interface{}{
		"status":  res.Status,
		"reason":  res.Reason,
		"count":   res.Count,
		"elapsed": time.Since(start).String(),
	})
	if res.OK() {
		entry.Info("indexing job finished")
	} else {
		entry.WithField("error", res.ErrorMessage()).Warn("indexing job failed")
	}
	return res
}

// Running returns the number of jobs in flight.
func (r *Runner) Running() int {
	return len(r.slots)
}

// Shutdown stops accepting jobs and waits for running ones. When ctx ends
// first the running jobs are cancelled.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.cancel()
		return nil
	case <-ctx.Done():
		r.cancel()
		<-done
		return ctx.Err()
	}
}
