package index

import (
	"github.com/gofiber/fiber/v3"
)

func RegisterRoutes(r fiber.Router, h *Handler) {
	grp := r.Group("/index")

	grp.Get("/chunks/:bookID", h.HandleChunks)
	grp.Post("/:kind/:bookID", h.HandleIndex)
}
