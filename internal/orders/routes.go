package orders

import (
	"github.com/go-chi/chi/v5"

	"github.com/bizgate/bizgate/internal/shared"
)

func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Get("/{id}", h.Show)
	r.With(h.rbac.Require(shared.EndpointCreateOrder)).Post("/", h.Create)
}
