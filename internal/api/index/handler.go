package index

import (
	"errors"

	"book-indexer/config"
	"book-indexer/internal/api/request"
	"book-indexer/internal/core/book"
	"book-indexer/internal/services/indexer"
	"book-indexer/pkg/apperror"
	"book-indexer/pkg/apperror/status"

	"github.com/gofiber/fiber/v3"
)

// Runner is the part of indexer.Runner the handlers use.
type Runner interface {
	Submit(job indexer.Job, done func(indexer.Result)) error
}

type Handler struct {
	svc    *indexer.Service
	runner Runner
}

func NewHandler(svc *indexer.Service, runner Runner) *Handler {
	return &Handler{svc: svc, runner: runner}
}

type indexQuery struct {
	Version string `query:"version"`
	Force   bool   `query:"force"`
	// Wait runs the job in the request instead of the background.
	Wait bool `query:"wait"`
}

type indexResponse struct {
	Kind   indexer.Kind    `json:"kind"`
	BookID string          `json:"book_id"`
	Result *indexer.Result `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// HandleIndex starts a vector or keyword run for one book version.
func (h *Handler) HandleIndex(c fiber.Ctx) error {
	kind, err := indexer.ParseKind(c.Params("kind"))
	if err != nil {
		return apperror.BadRequest(config.ModuleIngest, c, status.IndexInvalidKind, err.Error())
	}
	bookID := c.Params("bookID")
	if bookID == "" {
		return apperror.BadRequest(config.ModuleIngest, c, status.IndexInvalidParams, "bookID is required")
	}
	var q indexQuery
	if err := request.Query(c, &q); err != nil {
		return apperror.BadRequest(config.ModuleIngest, c, status.IndexInvalidParams, err.Error())
	}

	job := indexer.Job{Kind: kind, Params: indexer.Params{BookID: bookID, VersionID: q.Version, Force: q.Force}}

	if q.Wait {
		res := h.svc.Run(c.Context(), job)
		return writeResult(c, kind, bookID, res)
	}

	if err := h.runner.Submit(job, nil); err != nil {
		if errors.Is(err, indexer.ErrBusy) || errors.Is(err, indexer.ErrClosed) {
			return apperror.Unavailable(config.ModuleIngest, c, status.IndexBusy, err.Error())
		}
		return apperror.InternalError(config.ModuleIngest, c, status.New(status.IndexInternal, err))
	}
	return apperror.Accepted(config.ModuleIngest, c, apperror.FiberSuccessMessage{
		Code:    status.Accepted,
		Message: "index started",
		Data:    indexResponse{Kind: kind, BookID: bookID},
	})
}

func writeResult(c fiber.Ctx, kind indexer.Kind, bookID string, res indexer.Result) error {
	data := indexResponse{Kind: kind, BookID: bookID, Result: &res, Error: res.ErrorMessage()}
	switch res.Status {
	case indexer.StatusSuccess, indexer.StatusSkipped:
		return apperror.Success(config.ModuleIngest, c, apperror.FiberSuccessMessage{
			Code:    status.OK,
			Message: "index " + string(res.Status),
			Data:    data,
		})
	case indexer.StatusNotFound:
		return apperror.NotFound(config.ModuleIngest, c, status.BookNotFound, res.Reason)
	case indexer.StatusNoVersion:
		return apperror.NotFound(config.ModuleIngest, c, status.NoVersion, res.Reason)
	}
	return apperror.InternalError(config.ModuleIngest, c, status.New(status.IndexInternal, res.Err))
}

type chunksQuery struct {
	Version string `query:"version"`
	Limit   int    `query:"limit" validate:"gte=0,lte=1000"`
}

type chunksResponse struct {
	BookID  string       `json:"book_id"`
	Version book.Version `json:"version"`
	Pages   int          `json:"pages"`
	Total   int          `json:"total"`
	Chunks  []book.Chunk `json:"chunks"`
}

// HandleChunks previews the chunks a vector run would write.
func (h *Handler) HandleChunks(c fiber.Ctx) error {
	var q chunksQuery
	if err := request.Query(c, &q); err != nil {
		return apperror.BadRequest(config.ModuleIngest, c, status.IndexInvalidParams, err.Error())
	}

	preview, err := h.svc.BuildChunks(c.Context(), indexer.Params{BookID: c.Params("bookID"), VersionID: q.Version})
	if err != nil {
		res := indexer.ResultOf(err)
		if res.Status == indexer.StatusError {
			return apperror.InternalError(config.ModuleIngest, c, status.New(status.IndexAlignment, err))
		}
		return writeResult(c, indexer.KindVector, c.Params("bookID"), res)
	}

	chunks := preview.Chunks
	if q.Limit > 0 && len(chunks) > q.Limit {
		chunks = chunks[:q.Limit]
	}
	return apperror.Success(config.ModuleIngest, c, apperror.FiberSuccessMessage{
		Code:    status.OK,
		Message: "chunks ok",
		Data: chunksResponse{
			BookID:  preview.BookID,
			Version: preview.Version,
			Pages:   preview.Pages,
			Total:   len(preview.Chunks),
			Chunks:  chunks,
		},
	})
}
