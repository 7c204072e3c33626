package auth

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/bizgate/bizgate/internal/platform/httpx"
	"github.com/bizgate/bizgate/internal/shared"
)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
	session   func(http.Handler) http.Handler
}

// NewHandler constructs a Handler instance. session guards routes that need a resolved identity.
func NewHandler(logger *slog.Logger, service *Service, session func(http.Handler) http.Handler) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		validator: validator.New(),
		session:   session,
	}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/register", h.handleRegister)
	r.Post("/login", h.handleLogin)
	r.Post("/refresh-token", h.handleRefresh)
	r.Post("/logout", h.handleLogout)
	r.With(h.session).Get("/me", h.handleMe)
}

// IdentityResponse is the public view of an identity.
type IdentityResponse struct {
	ID       int64    `json:"id"`
	Username string   `json:"username"`
	Email    *string  `json:"email"`
	Role     string   `json:"role"`
	Groups   []string `json:"groups"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type"`
}

type loginForm struct {
	Username string `validate:"required"`
	Password string `validate:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// NewIdentityResponse renders an identity for API clients.
func NewIdentityResponse(identity *Identity) IdentityResponse {
	groups := identity.Groups
	if groups == nil {
		groups = []string{}
	}
	return IdentityResponse{
		ID:       identity.ID,
		Username: identity.Username,
		Email:    identity.Email,
		Role:     identity.Role,
		Groups:   groups,
	}
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var in RegisterInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := httpx.Validate(h.validator, in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	identity, err := h.service.Register(r.Context(), in)
	if err != nil {
		h.fail(w, "register", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, NewIdentityResponse(identity))
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	form, ok := h.parseCredentials(w, r)
	if !ok {
		return
	}
	pair, err := h.service.Login(r.Context(), form.Username, form.Password)
	if err != nil {
		if errors.Is(err, shared.ErrInvalidCredentials) {
			h.logger.Info("login rejected", slog.String("username", form.Username))
		}
		h.fail(w, "login", err)
		return
	}
	httpx.JSON(w, http.StatusOK, tokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    "bearer",
	})
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	raw, err := refreshTokenFromRequest(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	access, err := h.service.Refresh(r.Context(), raw)
	if err != nil {
		h.fail(w, "refresh token", err)
		return
	}
	httpx.JSON(w, http.StatusOK, tokenResponse{AccessToken: access, TokenType: "bearer"})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if raw, err := httpx.BearerToken(r); err == nil {
		identity, err := h.service.IdentityForAccessToken(r.Context(), raw)
		if err != nil {
			h.fail(w, "logout", err)
			return
		}
		if err := h.service.Logout(r.Context(), identity); err != nil {
			h.fail(w, "logout", err)
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]string{"message": "logged out"})
		return
	}
	form, ok := h.parseCredentials(w, r)
	if !ok {
		return
	}
	if err := h.service.LogoutWithCredentials(r.Context(), form.Username, form.Password); err != nil {
		h.fail(w, "logout", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	principal, ok := shared.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthenticated)
		return
	}
	identity, ok := principal.(*Identity)
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthenticated)
		return
	}
	httpx.JSON(w, http.StatusOK, NewIdentityResponse(identity))
}

func (h *Handler) parseCredentials(w http.ResponseWriter, r *http.Request) (loginForm, bool) {
	if err := r.ParseForm(); err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return loginForm{}, false
	}
	form := loginForm{
		Username: strings.TrimSpace(r.PostFormValue("username")),
		Password: r.PostFormValue("password"),
	}
	if err := httpx.Validate(h.validator, form); err != nil {
		httpx.RespondError(w, err)
		return loginForm{}, false
	}
	return form, true
}

func refreshTokenFromRequest(r *http.Request) (string, error) {
	if raw := strings.TrimSpace(r.URL.Query().Get("refresh_token")); raw != "" {
		return raw, nil
	}
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var req refreshRequest
		if err := httpx.DecodeJSON(r, &req); err != nil {
			return "", err
		}
		if raw := strings.TrimSpace(req.RefreshToken); raw != "" {
			return raw, nil
		}
		return "", errMissingRefreshToken
	}
	if err := r.ParseForm(); err == nil {
		if raw := strings.TrimSpace(r.PostFormValue("refresh_token")); raw != "" {
			return raw, nil
		}
	}
	return "", errMissingRefreshToken
}

var errMissingRefreshToken = fmt.Errorf("%w: refresh_token is required", shared.ErrValidation)

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if status, _, _ := httpx.Classify(err); status >= http.StatusInternalServerError {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
