package healthcheck

import (
	"context"
	"time"

	"book-indexer/config"
	"book-indexer/pkg/apperror"

	"github.com/gofiber/fiber/v3"
)

const probeTimeout = 2 * time.Second

// Probe reports whether a dependency is reachable.
type Probe func(ctx context.Context) error

type Handler struct {
	Database Probe
	Milvus   Probe
	Keyword  Probe
}

func ApiHealthCheck(c fiber.Ctx) error {
	return c.SendString("ok")
}

func (h *Handler) DatabaseHealthCheck(c fiber.Ctx) error {
	return check(c, config.ModuleDatabase, h.Database)
}

func (h *Handler) MilvusHealthCheck(c fiber.Ctx) error {
	return check(c, config.ModuleMilvus, h.Milvus)
}

func (h *Handler) KeywordHealthCheck(c fiber.Ctx) error {
	return check(c, config.ModuleKeyword, h.Keyword)
}

func check(c fiber.Ctx, module config.Module, probe Probe) error {
	if probe == nil {
		return c.SendString("disabled")
	}
	ctx, cancel := context.WithTimeout(c.Context(), probeTimeout)
	defer cancel()
	if err := probe(ctx); err != nil {
		return apperror.InternalError(module, c, err)
	}
	return c.SendString("ok")
}
