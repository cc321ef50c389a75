package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ospreyops/tenantd/internal/alerting"
	"github.com/ospreyops/tenantd/internal/api/handlers"
	"github.com/ospreyops/tenantd/internal/api/middleware"
	"github.com/ospreyops/tenantd/internal/config"
	"github.com/ospreyops/tenantd/internal/db"
	"github.com/ospreyops/tenantd/internal/notify"
	"github.com/ospreyops/tenantd/internal/provision"
	"github.com/ospreyops/tenantd/internal/storage/redis"
)

type Server struct {
	Router *gin.Engine
}

func NewServer(
	cfg *config.Config,
	repo *db.Repository,
	cache *redis.Client,
	orchestrator *provision.Orchestrator,
	alerts *alerting.Service,
	dispatcher *notify.Dispatcher,
	logger *zap.Logger,
) *Server {
	gin.SetMode(cfg.Server.Mode)
	router := gin.New()

	router.Use(middleware.RequestLogger(logger))
	router.Use(gin.Recovery())

	router.GET("/health", handlers.Liveness)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")

	tenantHandler := handlers.NewTenantHandler(repo, cache, orchestrator, logger)
	{
		v1.POST("/tenants", tenantHandler.Create)
		v1.GET("/tenants/:id", tenantHandler.Get)
		v1.GET("/tenants/:id/subscriptions", tenantHandler.Subscriptions)
		v1.POST("/tenants/:id/suspend", tenantHandler.Suspend)
		v1.POST("/tenants/:id/resume", tenantHandler.Resume)
		v1.POST("/tenants/:id/cancel", tenantHandler.Cancel)
		v1.POST("/tenants/:id/deploy", tenantHandler.Deploy)
		v1.GET("/tenants/:id/health", tenantHandler.HealthHistory)
		v1.GET("/tenants/:id/health/latest", tenantHandler.LatestHealth)
	}

	alertHandler := handlers.NewAlertHandler(repo, alerts, dispatcher, cfg.Alerting.MinRuleInterval, logger)
	{
		v1.GET("/alerts", alertHandler.ListActive)
		v1.POST("/alerts/:id/resolve", alertHandler.Resolve)
		v1.POST("/notifications/:id/delivered", alertHandler.ConfirmDelivery)

		v1.GET("/alert-rules", alertHandler.ListRules)
		v1.POST("/alert-rules", alertHandler.CreateRule)
		v1.GET("/alert-rules/:id", alertHandler.GetRule)
		v1.PUT("/alert-rules/:id", alertHandler.UpdateRule)
		v1.DELETE("/alert-rules/:id", alertHandler.DeleteRule)
	}

	return &Server{Router: router}
}
