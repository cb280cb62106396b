package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/willianribas/bots/internal/api/handler"
	"github.com/willianribas/bots/internal/api/middleware"
	"github.com/willianribas/bots/internal/config"
	"github.com/willianribas/bots/internal/logger"
)

// Handlers groups the route handlers.
type Handlers struct {
	Health  *handler.HealthHandler
	Auth    *handler.AuthHandler
	Monitor *handler.MonitorHandler
	Orders  *handler.OrderHandler
}

// SetupRouter configures the Gin router with all routes
func SetupRouter(h Handlers, auth *middleware.Authenticator, cfg config.ServerConfig, log *logger.Logger) *gin.Engine {
	switch cfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware(log))
	r.Use(middleware.Metrics())
	r.Use(middleware.CORS(cfg.CORS))

	r.GET("/health", h.Health.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/api/v1")
	{
		v1.POST("/auth/login", h.Auth.Login)

		secured := v1.Group("", auth.RequireAuth())
		secured.GET("/status", h.Monitor.Status)
		secured.GET("/stats", h.Monitor.Stats)
		secured.POST("/control/:action", h.Monitor.Control)

		secured.GET("/orders", h.Orders.List)
		secured.GET("/orders/:number", h.Orders.Get)
		secured.GET("/orders/:number/history", h.Orders.History)
	}

	return r
}
