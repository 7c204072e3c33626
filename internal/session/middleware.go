// Package session resolves the bearer token on each request to an authenticated identity.
package session

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/bizgate/bizgate/internal/auth"
	"github.com/bizgate/bizgate/internal/platform/httpx"
	"github.com/bizgate/bizgate/internal/shared"
)

// Resolver turns a raw access token into an identity.
type Resolver interface {
	IdentityForAccessToken(ctx context.Context, raw string) (*auth.Identity, error)
}

// Middleware authenticates requests carrying a bearer access token.
type Middleware struct {
	resolver Resolver
	logger   *slog.Logger
}

// NewMiddleware constructs the session middleware.
func NewMiddleware(resolver Resolver, logger *slog.Logger) *Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return &Middleware{resolver: resolver, logger: logger}
}

// Require rejects requests without a valid access token and stores the identity
// in the request context otherwise.
func (m *Middleware) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := httpx.BearerToken(r)
		if err != nil {
			httpx.RespondError(w, shared.ErrUnauthenticated)
			return
		}
		identity, err := m.resolver.IdentityForAccessToken(r.Context(), raw)
		if err != nil {
			if errors.Is(err, shared.ErrUnauthenticated) {
				m.logger.Debug("session rejected", slog.String("path", r.URL.Path), slog.Any("reason", err))
				httpx.RespondError(w, shared.ErrUnauthenticated)
				return
			}
			m.logger.Error("session resolve", slog.Any("error", err))
			httpx.RespondError(w, err)
			return
		}
		ctx := shared.ContextWithPrincipal(r.Context(), identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// IdentityFromContext returns the identity stored by Require.
func IdentityFromContext(ctx context.Context) (*auth.Identity, bool) {
	principal, ok := shared.PrincipalFromContext(ctx)
	if !ok {
		return nil, false
	}
	identity, ok := principal.(*auth.Identity)
	return identity, ok
}
