package rbac

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/bizgate/bizgate/internal/platform/httpx"
)

// MaxBulkItems bounds a single bulk upsert request.
const MaxBulkItems = 500

// PermissionsHandler exposes the permission registry to administrators.
type PermissionsHandler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
	rbac     Middleware
}

// NewPermissionsHandler builds PermissionsHandler instance.
func NewPermissionsHandler(logger *slog.Logger, service *Service, rbac Middleware) *PermissionsHandler {
	return &PermissionsHandler{logger: logger, service: service, validate: validator.New(), rbac: rbac}
}

// MountRoutes registers permission routes.
func (h *PermissionsHandler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAdmin())
		r.Post("/", h.create)
		r.Get("/", h.list)
		r.Post("/bulk", h.bulkUpsert)
		r.Get("/{endpoint}", h.get)
		r.Put("/{endpoint}", h.update)
		r.Delete("/{endpoint}", h.delete)
	})
}

type ruleResponse struct {
	ID            int64  `json:"id"`
	Module        string `json:"module"`
	EndpointName  string `json:"endpoint_name"`
	AllowedGroups string `json:"allowed_groups"`
}

type bulkRequest struct {
	Permissions []RuleInput `json:"permissions" validate:"required,min=1,dive"`
}

func toResponse(rule Rule) ruleResponse {
	return ruleResponse{
		ID:            rule.ID,
		Module:        rule.Module,
		EndpointName:  rule.EndpointName,
		AllowedGroups: rule.AllowedGroupsCSV(),
	}
}

func toResponses(rules []Rule) []ruleResponse {
	out := make([]ruleResponse, 0, len(rules))
	for _, rule := range rules {
		out = append(out, toResponse(rule))
	}
	return out
}

func (h *PermissionsHandler) create(w http.ResponseWriter, r *http.Request) {
	var in RuleInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := httpx.Validate(h.validate, in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	rule, err := h.service.Create(r.Context(), in)
	if err != nil {
		h.fail(w, "create permission", err)
		return
	}
	h.logger.Info("permission created", slog.String("endpoint", rule.EndpointName), slog.String("module", rule.Module))
	httpx.JSON(w, http.StatusCreated, toResponse(rule))
}

func (h *PermissionsHandler) list(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	rules, err := h.service.List(r.Context(), ListFilter{Module: query.Get("module"), Search: query.Get("q")})
	if err != nil {
		h.fail(w, "list permissions", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponses(rules))
}

func (h *PermissionsHandler) get(w http.ResponseWriter, r *http.Request) {
	rule, err := h.service.Get(r.Context(), chi.URLParam(r, "endpoint"))
	if err != nil {
		h.fail(w, "get permission", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(rule))
}

func (h *PermissionsHandler) update(w http.ResponseWriter, r *http.Request) {
	var upd RuleUpdate
	if err := httpx.DecodeJSON(r, &upd); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := httpx.Validate(h.validate, upd); err != nil {
		httpx.RespondError(w, err)
		return
	}
	endpoint := chi.URLParam(r, "endpoint")
	rule, err := h.service.Update(r.Context(), endpoint, upd)
	if err != nil {
		h.fail(w, "update permission", err)
		return
	}
	h.logger.Info("permission updated", slog.String("endpoint", endpoint), slog.String("new_endpoint", rule.EndpointName))
	httpx.JSON(w, http.StatusOK, toResponse(rule))
}

func (h *PermissionsHandler) delete(w http.ResponseWriter, r *http.Request) {
	endpoint := chi.URLParam(r, "endpoint")
	if err := h.service.Delete(r.Context(), endpoint); err != nil {
		h.fail(w, "delete permission", err)
		return
	}
	h.logger.Info("permission deleted", slog.String("endpoint", endpoint))
	w.WriteHeader(http.StatusNoContent)
}

func (h *PermissionsHandler) bulkUpsert(w http.ResponseWriter, r *http.Request) {
	var req bulkRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := httpx.Validate(h.validate, req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if len(req.Permissions) > MaxBulkItems {
		httpx.Problem(w, http.StatusRequestEntityTooLarge, "Too Many Items", "bulk requests are limited to 500 items")
		return
	}
	rules, err := h.service.BulkUpsert(r.Context(), req.Permissions)
	if err != nil {
		h.fail(w, "bulk upsert permissions", err)
		return
	}
	endpoints := make([]string, 0, len(rules))
	for _, rule := range rules {
		endpoints = append(endpoints, rule.EndpointName)
	}
	h.logger.Info("permissions upserted", slog.Int("count", len(rules)), slog.String("endpoints", strings.Join(endpoints, ",")))
	httpx.JSON(w, http.StatusOK, toResponses(rules))
}

func (h *PermissionsHandler) fail(w http.ResponseWriter, op string, err error) {
	if status, _, _ := httpx.Classify(err); status >= http.StatusInternalServerError {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
