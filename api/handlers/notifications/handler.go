package notifications

import (
	"net/http"

	"backend/internal/auth"
	"backend/internal/logger"
	"backend/internal/notification"
	"backend/internal/user"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Handler 实时通知 WebSocket 接入
type Handler struct {
	hub      *notification.WebSocketHub
	jwt      *auth.JWTService
	users    *user.Service
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewHandler 创建处理器
func NewHandler(hub *notification.WebSocketHub, jwtService *auth.JWTService, users *user.Service) *Handler {
	return &Handler{
		hub:   hub,
		jwt:   jwtService,
		users: users,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: logger.Named("ws"),
	}
}

// Connect 建立 WebSocket 连接
// GET /ws?token=<jwt>
// 浏览器 WebSocket 无法自定义请求头，令牌走查询参数
func (h *Handler) Connect(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		token = auth.ExtractTokenFromBearer(c.GetHeader("Authorization"))
	}
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "缺少认证令牌"})
		return
	}

	claims, err := h.jwt.ValidateToken(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "令牌验证失败"})
		return
	}
	u, err := h.users.GetUser(c.Request.Context(), claims.UserID)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "用户不存在"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket 升级失败", zap.Error(err))
		return
	}

	h.hub.Register(u.ID, string(u.Role), conn)
	h.logger.Info("WebSocket 已连接",
		zap.String("userId", u.ID),
		zap.String("role", string(u.Role)))

	// 读循环只为感知连接关闭，客户端消息忽略
	go func() {
		defer func() {
			h.hub.Unregister(u.ID, conn)
			_ = conn.Close()
			h.logger.Info("WebSocket 已断开", zap.String("userId", u.ID))
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
