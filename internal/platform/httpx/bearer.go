package httpx

import (
	"errors"
	"net/http"
	"strings"
)

const bearerPrefix = "bearer "

var (
	// ErrMissingBearer is returned when the Authorization header is absent or empty.
	ErrMissingBearer = errors.New("missing bearer token")
	// ErrBearerScheme is returned for a non-bearer Authorization scheme.
	ErrBearerScheme = errors.New("invalid authorization scheme")
)

// BearerToken extracts the token from an "Authorization: Bearer <token>" header.
func BearerToken(r *http.Request) (string, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" || strings.EqualFold(header, strings.TrimSpace(bearerPrefix)) {
		return "", ErrMissingBearer
	}
	if len(header) < len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return "", ErrBearerScheme
	}
	token := strings.TrimSpace(header[len(bearerPrefix):])
	if token == "" {
		return "", ErrMissingBearer
	}
	return token, nil
}
