package rbac

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/bizgate/bizgate/internal/platform/httpx"
	"github.com/bizgate/bizgate/internal/shared"
)

// Authorization decision labels.
const (
	DecisionAllow         = "allow"
	DecisionBypass        = "bypass"
	DecisionForbidden     = "forbidden"
	DecisionNotConfigured = "not_configured"
	DecisionError         = "error"
)

// DecisionRecorder counts authorization outcomes per endpoint.
type DecisionRecorder interface {
	ObserveAuthzDecision(endpoint, decision string)
}

// Middleware wires RBAC authorization helpers for HTTP handlers.
// It expects the session middleware to have placed a principal in the request context.
type Middleware struct {
	Resolver *Resolver
	Logger   *slog.Logger
	Metrics  DecisionRecorder
}

// Require guards a handler with the rule registered for endpoint.
func (m Middleware) Require(endpoint string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := shared.PrincipalFromContext(r.Context())
			if !ok {
				httpx.RespondError(w, shared.ErrUnauthenticated)
				return
			}
			err := m.Resolver.Authorize(r.Context(), principal, endpoint)
			decision := decisionFor(principal, err)
			m.observe(endpoint, decision)
			if err != nil {
				m.logDenial(r, principal, endpoint, decision, err)
				httpx.RespondError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAdmin admits admin and superadmin principals.
func (m Middleware) RequireAdmin() func(http.Handler) http.Handler {
	return m.RequireRole(shared.RoleAdmin, shared.RoleSuperadmin)
}

// RequireRole admits principals whose role is one of roles.
func (m Middleware) RequireRole(roles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := shared.PrincipalFromContext(r.Context())
			if !ok {
				httpx.RespondError(w, shared.ErrUnauthenticated)
				return
			}
			if _, ok := allowed[principal.GetRole()]; !ok {
				if m.Logger != nil {
					m.Logger.Warn("rbac role denied",
						slog.String("user", principal.GetUsername()),
						slog.String("role", principal.GetRole()),
						slog.String("path", r.URL.Path))
				}
				httpx.RespondError(w, shared.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (m Middleware) observe(endpoint, decision string) {
	if m.Metrics != nil {
		m.Metrics.ObserveAuthzDecision(endpoint, decision)
	}
}

func (m Middleware) logDenial(r *http.Request, principal shared.Principal, endpoint, decision string, err error) {
	if m.Logger == nil {
		return
	}
	attrs := []any{
		slog.String("endpoint", endpoint),
		slog.String("user", principal.GetUsername()),
		slog.String("decision", decision),
		slog.String("path", r.URL.Path),
	}
	if decision == DecisionError {
		m.Logger.Error("rbac authorize", append(attrs, slog.Any("error", err))...)
		return
	}
	m.Logger.Warn("rbac denied", attrs...)
}

func decisionFor(principal shared.Principal, err error) string {
	switch {
	case err == nil && principal.GetRole() == shared.RoleSuperadmin:
		return DecisionBypass
	case err == nil:
		return DecisionAllow
	case errors.Is(err, shared.ErrForbidden):
		return DecisionForbidden
	case errors.Is(err, shared.ErrPermissionNotConfigured):
		return DecisionNotConfigured
	default:
		return DecisionError
	}
}
