package api

import (
	adminHandlers "backend/api/handlers/admin"
	eventHandlers "backend/api/handlers/events"
	notificationHandlers "backend/api/handlers/notifications"
	"backend/internal/audit"
	"backend/internal/auth"
	"backend/internal/calendar"
	"backend/internal/config"
	"backend/internal/event"
	"backend/internal/infra/queue"
	"backend/internal/logger"
	"backend/internal/notification"
	"backend/internal/user"
	"backend/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// SetupRouter 组装依赖并返回 Gin 路由和 Worker 服务器。
// rdb 可为 nil，此时离线通知退化为进程内存储
func SetupRouter(db *gorm.DB, rdb *redis.Client, cfg *config.Config) (*gin.Engine, *worker.Server) {
	log := logger.Get()

	// 副作用链路：队列、离线存储、Hub、分发器
	queueClient := queue.NewClient(cfg.Redis)

	var offline notification.OfflineStore
	if rdb != nil {
		offline = notification.NewRedisOfflineStore(rdb, 50, 0)
	} else {
		offline = notification.NewMemoryOfflineStore(50)
	}
	hub := notification.NewWebSocketHub(
		notification.WithOfflineStore(offline),
		notification.WithHubLogger(log),
	)
	dispatcher := notification.NewDispatcher(hub, queueClient)

	// 领域服务
	jwtService := auth.NewJWTService(cfg.JWT.Secret)
	userService := user.NewService(db)
	auditRecorder := audit.NewRecorder(db, log)
	calendarClient := calendar.NewHTTPClient(&cfg.Calendar)
	eventService := event.NewService(db, calendarClient, dispatcher, auditRecorder)

	// Worker：异步邮件消费
	emailSender := notification.NewEmailSender(&cfg.SMTP)
	workerServer := worker.NewServer(cfg.Redis, emailSender, log)

	deps := &RouterDeps{
		Events:        eventHandlers.NewHandler(eventService),
		Admin:         adminHandlers.NewHandler(userService, auditRecorder, dispatcher),
		Notifications: notificationHandlers.NewHandler(hub, jwtService, userService),
		JWT:           jwtService,
		Users:         userService,
	}

	router := NewRouter(cfg, deps)
	return router, workerServer
}
