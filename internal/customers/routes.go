package customers

import (
	"github.com/go-chi/chi/v5"

	"github.com/bizgate/bizgate/internal/shared"
)

func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Get("/{id}", h.Show)
	r.With(h.rbac.Require(shared.EndpointCreateCustomer)).Post("/", h.Create)
	r.With(h.rbac.Require(shared.EndpointCustomerUploadImages)).Post("/{id}/images/upload", h.UploadImages)
}
