package api

import (
	"net/http"

	adminHandlers "backend/api/handlers/admin"
	eventHandlers "backend/api/handlers/events"
	notificationHandlers "backend/api/handlers/notifications"
	"backend/internal/auth"
	"backend/internal/config"
	"backend/internal/infra"
	"backend/internal/metrics"
	"backend/internal/middleware"
	"backend/internal/user"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterDeps 路由依赖
type RouterDeps struct {
	Events        *eventHandlers.Handler
	Admin         *adminHandlers.Handler
	Notifications *notificationHandlers.Handler
	JWT           *auth.JWTService
	Users         *user.Service
}

// NewRouter 注册全部路由
func NewRouter(cfg *config.Config, deps *RouterDeps) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(metrics.PrometheusMiddleware())

	limiter := middleware.NewRateLimiter(nil)
	router.Use(middleware.RateLimitMiddleware(limiter))

	// 探活与指标
	router.GET("/health", func(c *gin.Context) {
		if err := infra.HealthCheck(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "down"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// WebSocket 接入自带令牌校验，不走认证中间件
	router.GET("/ws", deps.Notifications.Connect)

	authRequired := auth.AuthMiddleware(deps.JWT, deps.Users)
	assigned := auth.RequireAssigned()

	api := router.Group("/api", authRequired)
	{
		events := api.Group("/events", assigned)
		{
			events.POST("", deps.Events.Create)
			events.GET("", deps.Events.List)
			events.GET("/stats", deps.Events.Stats)
			events.GET("/:id", deps.Events.Get)
			events.PATCH("/:id", auth.RequireRole(user.RoleSupervisor, user.RoleAdmin), deps.Events.Update)
			events.POST("/:id/approve", auth.RequireRole(user.RoleSupervisor, user.RoleAdmin), deps.Events.Approve)
			events.POST("/:id/reject", auth.RequireRole(user.RoleSupervisor, user.RoleAdmin), deps.Events.Reject)
			events.DELETE("/:id", deps.Events.Delete)
		}

		admin := api.Group("/admin", auth.RequireRole(user.RoleAdmin))
		{
			admin.GET("/users", deps.Admin.ListUsers)
			admin.PATCH("/users/:id/role", deps.Admin.UpdateUserRole)
			admin.GET("/stats", deps.Admin.Stats)
		}
	}

	return router
}
