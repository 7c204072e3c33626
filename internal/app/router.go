package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/bizgate/bizgate/internal/auth"
	"github.com/bizgate/bizgate/internal/customers"
	"github.com/bizgate/bizgate/internal/items"
	"github.com/bizgate/bizgate/internal/observability"
	"github.com/bizgate/bizgate/internal/orders"
	"github.com/bizgate/bizgate/internal/rbac"
	"github.com/bizgate/bizgate/internal/session"
	"github.com/bizgate/bizgate/internal/users"
	"github.com/bizgate/bizgate/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	Session            *session.Middleware
	AuthHandler        *auth.Handler
	PermissionsHandler *rbac.PermissionsHandler
	UsersHandler       *users.Handler
	CustomersHandler   *customers.Handler
	ItemsHandler       *items.Handler
	OrdersHandler      *orders.Handler
	JobHandler         *jobs.Handler
	Metrics            *observability.Metrics
	// AccessLog enables chi's request logger.
	AccessLog bool
}

// NewRouter constructs the chi.Router. Everything under the API prefix except
// /auth requires a bearer access token.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}
	if params.AccessLog {
		r.Use(chimw.Logger)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	prefix := "/"
	if params.Config != nil && params.Config.APIPrefix != "" {
		prefix = params.Config.APIPrefix
	}
	r.Route(prefix, func(api chi.Router) {
		api.Route("/auth", params.AuthHandler.MountRoutes)
		api.Group(func(api chi.Router) {
			api.Use(params.Session.Require)
			api.Route("/permissions", params.PermissionsHandler.MountRoutes)
			api.Route("/users", params.UsersHandler.MountRoutes)
			if params.CustomersHandler != nil {
				api.Route("/customers", params.CustomersHandler.MountRoutes)
			}
			if params.ItemsHandler != nil {
				api.Route("/items", params.ItemsHandler.MountRoutes)
			}
			if params.OrdersHandler != nil {
				api.Route("/orders", params.OrdersHandler.MountRoutes)
			}
		})
	})

	return r
}
