package upload

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"book-indexer/config"
	"book-indexer/internal/core/book"
	"book-indexer/internal/database"
	"book-indexer/internal/database/model"
	"book-indexer/pkg/apperror"
	"book-indexer/pkg/apperror/status"

	"github.com/gofiber/fiber/v3"
)

var pdfMagic = []byte("%PDF-")

type Objects interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
	URI(key string) string
}

type Books interface {
	GetBook(ctx context.Context, id string) (*model.Book, error)
	AddVersion(ctx context.Context, bookID string, v book.Version) error
}

type Handler struct {
	objects Objects
	books   Books
}

func NewHandler(objects Objects, books Books) *Handler {
	return &Handler{objects: objects, books: books}
}

type uploadResponse struct {
	BookID  string       `json:"book_id"`
	Version book.Version `json:"version"`
	SHA256  string       `json:"sha256"`
	Added   bool         `json:"added"`
}

// HandleUpload stores a PDF scan and registers it as a pdf version of the book.
// Uploading the same file twice is a no-op on the version list.
func (h *Handler) HandleUpload(c fiber.Ctx) error {
	bookID := c.Params("bookID")
	fh, err := c.FormFile("file")
	if err != nil || fh == nil {
		return apperror.BadRequest(config.ModuleUpload, c, status.UploadMissingFile, "file is required")
	}
	if fh.Size == 0 {
		return apperror.BadRequest(config.ModuleUpload, c, status.UploadMissingFile, "empty file")
	}

	file, err := fh.Open()
	if err != nil {
		return apperror.BadRequest(config.ModuleUpload, c, status.UploadMissingFile, "cannot open file")
	}
	defer file.Close()

	body, err := io.ReadAll(file)
	if err != nil {
		return apperror.InternalError(config.ModuleUpload, c, status.New(status.UploadInternal, err))
	}
	if !bytes.HasPrefix(body, pdfMagic) {
		return apperror.BadRequest(config.ModuleUpload, c, status.UploadInvalidFile, "file is not a PDF")
	}

	ctx := c.Context()
	b, err := h.books.GetBook(ctx, bookID)
	if errors.Is(err, database.ErrBookNotFound) {
		return apperror.NotFound(config.ModuleUpload, c, status.BookNotFound, err.Error())
	}
	if err != nil {
		return apperror.InternalError(config.ModuleUpload, c, status.New(status.UploadInternal, err))
	}

	sum := sha256.Sum256(body)
	shaHex := hex.EncodeToString(sum[:])
	key := fmt.Sprintf("pdf/%s/%s.pdf", b.ID, shaHex)
	if err := h.objects.Put(ctx, key, body, "application/pdf"); err != nil {
		return apperror.InternalError(config.ModuleUpload, c, status.New(status.UploadInternal, err))
	}

	v := book.Version{Source: book.SourcePDF, Value: h.objects.URI(key)}
	added := !hasVersion(b.Versions, v.Value)
	if added {
		if err := h.books.AddVersion(ctx, b.ID, v); err != nil {
			return apperror.InternalError(config.ModuleUpload, c, status.New(status.UploadInternal, err))
		}
	}

	return apperror.Success(config.ModuleUpload, c, apperror.FiberSuccessMessage{
		Code:    status.OK,
		Message: "pdf uploaded",
		Data:    uploadResponse{BookID: b.ID, Version: v, SHA256: shaHex, Added: added},
	})
}

func hasVersion(versions []book.Version, value string) bool {
	for _, v := range versions {
		if v.Value == value {
			return true
		}
	}
	return false
}
