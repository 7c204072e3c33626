package users

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/bizgate/bizgate/internal/auth"
	"github.com/bizgate/bizgate/internal/platform/httpx"
	"github.com/bizgate/bizgate/internal/rbac"
	"github.com/bizgate/bizgate/internal/shared"
)

// Handler manages user management endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
	rbac     rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New(), rbac: rbac}
}

// MountRoutes registers user routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAdmin())
		r.Get("/", h.listUsers)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireRole(shared.RoleSuperadmin))
		r.Patch("/{username}", h.updateUser)
	})
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	identities, err := h.service.ListUsers(r.Context())
	if err != nil {
		h.logger.Error("list users failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]auth.IdentityResponse, 0, len(identities))
	for i := range identities {
		out = append(out, auth.NewIdentityResponse(&identities[i]))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) updateUser(w http.ResponseWriter, r *http.Request) {
	var in UpdateInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := httpx.Validate(h.validate, in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	identity, err := h.service.UpdateUser(r.Context(), chi.URLParam(r, "username"), in)
	if err != nil {
		if status, _, _ := httpx.Classify(err); status >= http.StatusInternalServerError {
			h.logger.Error("update user failed", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, auth.NewIdentityResponse(identity))
}
