package items

import (
	"github.com/go-chi/chi/v5"

	"github.com/bizgate/bizgate/internal/shared"
)

// MountRoutes registers item routes. Writes are gated by their permission rules.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Get("/{id}", h.Show)
	r.With(h.rbac.Require(shared.EndpointCreateItem)).Post("/", h.Create)
	r.With(h.rbac.Require(shared.EndpointItemUploadImages)).Post("/{id}/images/upload", h.UploadImages)
}
