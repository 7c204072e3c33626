// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/bizgate/bizgate/internal/shared"
	"github.com/bizgate/bizgate/internal/token"
)

// Problem types carried in the "type" member so clients can tell rejections apart.
const (
	TypeUnauthenticated         = "unauthenticated"
	TypeInvalidCredentials      = "invalid_credentials"
	TypeForbidden               = "forbidden"
	TypePermissionNotConfigured = "permission_not_configured"
	TypeNotFound                = "not_found"
	TypeDuplicateEndpoint       = "duplicate_endpoint"
	TypeUsernameExists          = "username_exists"
	TypeEmailExists             = "email_exists"
	TypeSkuExists               = "sku_exists"
	TypeValidation              = "validation"
	TypeInternal                = "internal"
)

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	status, kind, title := Classify(err)
	detail := ""
	if status != http.StatusInternalServerError {
		detail = shared.UserSafeMessage(err)
	}
	JSON(w, status, ProblemDetail{Type: kind, Title: title, Status: status, Detail: detail})
}

// Classify returns the HTTP status, problem type and title for err.
func Classify(err error) (int, string, string) {
	switch {
	case errors.Is(err, shared.ErrUnauthenticated), errors.Is(err, token.ErrInvalidToken), errors.Is(err, token.ErrExpired):
		return http.StatusUnauthorized, TypeUnauthenticated, "Unauthorized"
	case errors.Is(err, shared.ErrInvalidCredentials):
		return http.StatusUnauthorized, TypeInvalidCredentials, "Unauthorized"
	case errors.Is(err, shared.ErrForbidden):
		return http.StatusForbidden, TypeForbidden, "Forbidden"
	case errors.Is(err, shared.ErrPermissionNotConfigured):
		return http.StatusNotFound, TypePermissionNotConfigured, "Permission Not Configured"
	case errors.Is(err, shared.ErrNotFound):
		return http.StatusNotFound, TypeNotFound, "Not Found"
	case errors.Is(err, shared.ErrDuplicateEndpoint):
		return http.StatusConflict, TypeDuplicateEndpoint, "Duplicate"
	case errors.Is(err, shared.ErrUsernameExists):
		return http.StatusConflict, TypeUsernameExists, "Duplicate"
	case errors.Is(err, shared.ErrEmailExists):
		return http.StatusConflict, TypeEmailExists, "Duplicate"
	case errors.Is(err, shared.ErrSkuExists):
		return http.StatusConflict, TypeSkuExists, "Duplicate"
	case errors.Is(err, shared.ErrValidation):
		return http.StatusBadRequest, TypeValidation, "Validation Failed"
	default:
		return http.StatusInternalServerError, TypeInternal, "Internal Error"
	}
}
