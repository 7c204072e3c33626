package app

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/bizgate/bizgate/internal/auth"
	"github.com/bizgate/bizgate/internal/customers"
	"github.com/bizgate/bizgate/internal/items"
	"github.com/bizgate/bizgate/internal/observability"
	"github.com/bizgate/bizgate/internal/orders"
	"github.com/bizgate/bizgate/internal/platform/storage"
	"github.com/bizgate/bizgate/internal/rbac"
	"github.com/bizgate/bizgate/internal/session"
	"github.com/bizgate/bizgate/internal/token"
	"github.com/bizgate/bizgate/internal/users"
	"github.com/bizgate/bizgate/jobs"
)

// Dependencies are the stores and clients the API is assembled from.
type Dependencies struct {
	AuthRepo     auth.Repository
	RuleRepo     rbac.Repository
	CustomerRepo customers.Repository
	ItemRepo     items.Repository
	OrderRepo    orders.Repository
	// Redis backs the permission rule cache; nil reads rules straight from RuleRepo.
	Redis     *redis.Client
	Objects   storage.ObjectStore
	Inspector *asynq.Inspector
	// Sweeper enables the admin-only manual refresh sweep trigger.
	Sweeper jobs.SweepEnqueuer
	Metrics *observability.Metrics
	// AuthOptions are passed to auth.NewService.
	AuthOptions []auth.Option
}

// Container holds the assembled services and the HTTP handler.
type Container struct {
	Tokens    *token.Service
	Auth      *auth.Service
	Rules     *rbac.Service
	RuleCache *rbac.RuleCache
	Resolver  *rbac.Resolver
	Handler   http.Handler
}

// NewContainer wires services, authorization and handlers.
func NewContainer(cfg *Config, logger *slog.Logger, deps Dependencies) (*Container, error) {
	if cfg == nil {
		return nil, errors.New("app: config is required")
	}
	if deps.AuthRepo == nil || deps.RuleRepo == nil {
		return nil, errors.New("app: auth and rule repositories are required")
	}
	if deps.Objects == nil {
		deps.Objects = storage.Disabled{}
	}

	tokens, err := token.NewService(cfg.TokenConfig())
	if err != nil {
		return nil, err
	}
	authService := auth.NewService(deps.AuthRepo, tokens, logger, deps.AuthOptions...)

	ruleCache := rbac.NewRuleCache(deps.Redis, deps.RuleRepo, cfg.PermissionCacheTTL, logger)
	ruleService := rbac.NewService(deps.RuleRepo, ruleCache, logger)
	resolver := rbac.NewResolver(authService, ruleCache)
	rbacMiddleware := rbac.Middleware{Resolver: resolver, Logger: logger}
	if deps.Metrics != nil {
		rbacMiddleware.Metrics = deps.Metrics
	}
	sessionMiddleware := session.NewMiddleware(authService, logger)
	authHandler := auth.NewHandler(logger, authService, sessionMiddleware.Require)
	jobHandler := jobs.NewHandler(deps.Inspector, logger)
	if deps.Sweeper != nil {
		jobHandler.WithRefreshSweep(deps.Sweeper, sessionMiddleware.Require, rbacMiddleware.RequireAdmin())
	}

	params := RouterParams{
		Logger:             logger,
		Config:             cfg,
		Session:            sessionMiddleware,
		AuthHandler:        authHandler,
		PermissionsHandler: rbac.NewPermissionsHandler(logger, ruleService, rbacMiddleware),
		UsersHandler:       users.NewHandler(logger, users.NewService(deps.AuthRepo, logger), rbacMiddleware),
		Metrics:            deps.Metrics,
		JobHandler:         jobHandler,
		AccessLog:          !InTestMode(),
	}
	if deps.CustomerRepo != nil {
		params.CustomersHandler = customers.NewHandler(logger, customers.NewService(deps.CustomerRepo, deps.Objects, logger), rbacMiddleware, cfg.UploadMaxBytes)
	}
	if deps.ItemRepo != nil {
		params.ItemsHandler = items.NewHandler(logger, items.NewService(deps.ItemRepo, deps.Objects, logger), rbacMiddleware, cfg.UploadMaxBytes)
	}
	if deps.OrderRepo != nil {
		params.OrdersHandler = orders.NewHandler(logger, orders.NewService(deps.OrderRepo, logger), rbacMiddleware)
	}

	return &Container{
		Tokens:    tokens,
		Auth:      authService,
		Rules:     ruleService,
		RuleCache: ruleCache,
		Resolver:  resolver,
		Handler:   NewRouter(params),
	}, nil
}
