package orders

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/bizgate/bizgate/internal/platform/httpx"
	"github.com/bizgate/bizgate/internal/rbac"
	"github.com/bizgate/bizgate/internal/shared"
)

type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
	rbac     rbac.Middleware
}

func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New(), rbac: rbac}
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := httpx.Validate(h.validate, req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	order, err := h.service.Create(r.Context(), req)
	if err != nil {
		h.fail(w, "create order failed", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, order)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	customerID, _ := strconv.ParseInt(query.Get("customer_id"), 10, 64)
	limit, _ := strconv.Atoi(query.Get("limit"))
	offset, _ := strconv.Atoi(query.Get("offset"))
	list, err := h.service.List(r.Context(), ListOrdersRequest{CustomerID: customerID, Limit: limit, Offset: offset})
	if err != nil {
		h.fail(w, "list orders failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, list)
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.RespondError(w, shared.ErrNotFound)
		return
	}
	order, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get order failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) fail(w http.ResponseWriter, msg string, err error) {
	if status, _, _ := httpx.Classify(err); status >= http.StatusInternalServerError {
		h.logger.Error(msg, "error", err)
	}
	httpx.RespondError(w, err)
}
