package retriever

import (
	"context"
	"errors"
	"time"

	"book-indexer/config"
	"book-indexer/internal/api/request"
	"book-indexer/internal/core/ingest"
	"book-indexer/internal/core/keyword"
	"book-indexer/internal/core/retriever"
	"book-indexer/pkg/apperror"
	"book-indexer/pkg/apperror/status"

	"github.com/gofiber/fiber/v3"
)

type Searcher interface {
	Search(ctx context.Context, question string, topK int, filters retriever.Filters) ([]ingest.Hit, error)
	Keyword(ctx context.Context, query string, limit int, filters retriever.Filters) ([]keyword.Hit, error)
}

type Handler struct {
	searcher Searcher
	timeout  time.Duration
}

func NewHandler(searcher Searcher, timeout time.Duration) *Handler {
	return &Handler{searcher: searcher, timeout: timeout}
}

type searchQuery struct {
	Q             string `query:"q" validate:"required"`
	TopK          int    `query:"top_k" validate:"gte=0,lte=64"`
	BookID        string `query:"book_id"`
	BookVersionID string `query:"book_version_id"`
}

func (q searchQuery) filters() retriever.Filters {
	return retriever.Filters{BookID: q.BookID, BookVersionID: q.BookVersionID}
}

type searchResponse struct {
	Hits []ingest.Hit `json:"hits"`
}

type keywordResponse struct {
	Hits []keyword.Hit `json:"hits"`
}

func (h *Handler) HandleSearch(c fiber.Ctx) error {
	var q searchQuery
	if err := request.Query(c, &q); err != nil {
		return apperror.BadRequest(config.ModuleRetriever, c, status.RetrieverInvalidParams, err.Error())
	}

	ctx, cancel := h.context(c)
	defer cancel()
	hits, err := h.searcher.Search(ctx, q.Q, q.TopK, q.filters())
	if err != nil {
		return h.fail(c, err)
	}
	return apperror.Success(config.ModuleRetriever, c, apperror.FiberSuccessMessage{
		Code:    status.OK,
		Message: "search ok",
		Data:    searchResponse{Hits: hits},
	})
}

func (h *Handler) HandleKeyword(c fiber.Ctx) error {
	var q searchQuery
	if err := request.Query(c, &q); err != nil {
		return apperror.BadRequest(config.ModuleRetriever, c, status.RetrieverInvalidParams, err.Error())
	}

	ctx, cancel := h.context(c)
	defer cancel()
	hits, err := h.searcher.Keyword(ctx, q.Q, q.TopK, q.filters())
	if err != nil {
		return h.fail(c, err)
	}
	return apperror.Success(config.ModuleRetriever, c, apperror.FiberSuccessMessage{
		Code:    status.OK,
		Message: "keyword ok",
		Data:    keywordResponse{Hits: hits},
	})
}

func (h *Handler) context(c fiber.Ctx) (context.Context, context.CancelFunc) {
	if h.timeout <= 0 {
		return context.WithCancel(c.Context())
	}
	return context.WithTimeout(c.Context(), h.timeout)
}

func (h *Handler) fail(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, retriever.ErrEmptyQuestion), errors.Is(err, keyword.ErrEmptyQuery):
		return apperror.BadRequest(config.ModuleRetriever, c, status.RetrieverMissingQuery, err.Error())
	case errors.Is(err, retriever.ErrNotConfigured):
		return apperror.Unavailable(config.ModuleRetriever, c, status.RetrieverInternal, err.Error())
	}
	return apperror.InternalError(config.ModuleRetriever, c, status.New(status.RetrieverInternal, err))
}
