package server

import (
	"context"

	"github.com/abduss/budgetauth/internal/auth"
	"github.com/abduss/budgetauth/internal/config"
	"github.com/abduss/budgetauth/internal/logger"
	"github.com/abduss/budgetauth/internal/metrics"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// BucketChecker is satisfied by *minio.Client.
type BucketChecker interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
}

// Dependencies groups the services required by the HTTP router.
type Dependencies struct {
	Config      config.Config
	DB          Pinger
	ObjectStore BucketChecker
	AuthService *auth.Service
	Logger      *zap.Logger
}

// NewRouter builds a Gin engine with foundational middleware and routes.
func NewRouter(deps Dependencies) *gin.Engine {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	metrics.InitMetrics()

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(logger.Middleware(deps.Logger))
	router.Use(metrics.Middleware())

	registerHealthRoutes(router, deps)
	metrics.Register(router, deps.Config.Metrics.PrometheusPath)

	api := router.Group(deps.Config.Server.APIPrefix)
	if deps.AuthService != nil {
		auth.RegisterRoutes(api, deps.AuthService, deps.Logger)
	}

	return router
}
