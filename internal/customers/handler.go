package customers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/bizgate/bizgate/internal/platform/httpx"
	"github.com/bizgate/bizgate/internal/platform/storage"
	"github.com/bizgate/bizgate/internal/rbac"
	"github.com/bizgate/bizgate/internal/shared"
)

type Handler struct {
	logger         *slog.Logger
	service        *Service
	validate       *validator.Validate
	rbac           rbac.Middleware
	uploadMaxBytes int64
}

func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware, uploadMaxBytes int64) *Handler {
	return &Handler{
		logger:         logger,
		service:        service,
		validate:       validator.New(),
		rbac:           rbac,
		uploadMaxBytes: uploadMaxBytes,
	}
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateCustomerRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := httpx.Validate(h.validate, req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	customer, err := h.service.Create(r.Context(), req)
	if err != nil {
		h.fail(w, "create customer failed", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, customer)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit, _ := strconv.Atoi(query.Get("limit"))
	offset, _ := strconv.Atoi(query.Get("offset"))
	customers, err := h.service.List(r.Context(), ListCustomersRequest{
		Search: query.Get("search"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		h.fail(w, "list customers failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, customers)
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	customer, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get customer failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, customer)
}

func (h *Handler) UploadImages(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	headers, err := httpx.FormFiles(w, r, "files", h.uploadMaxBytes)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	uploads, closeAll, err := storage.OpenUploads(headers)
	if err != nil {
		h.fail(w, "open uploads failed", err)
		return
	}
	defer closeAll()
	if _, err := h.service.UploadImages(r.Context(), id, uploads); err != nil {
		h.fail(w, "upload customer images failed", err)
		return
	}
	customer, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, "get customer failed", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, customer)
}

func (h *Handler) fail(w http.ResponseWriter, msg string, err error) {
	if status, _, _ := httpx.Classify(err); status >= http.StatusInternalServerError {
		h.logger.Error(msg, "error", err)
	}
	httpx.RespondError(w, err)
}

func parseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.RespondError(w, shared.ErrNotFound)
		return 0, false
	}
	return id, true
}
