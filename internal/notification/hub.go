package notification

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"backend/internal/logger"
	"backend/internal/metrics"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type clientConn struct {
	conn *websocket.Conn
	role string
	mu   sync.Mutex
}

// WebSocketHub 管理用户的 WebSocket 连接。每个连接归属一个用户，
// 同时按用户角色加入对应的角色频道，支持按用户或按角色投递。
type WebSocketHub struct {
	mu                sync.RWMutex
	clients           map[string]map[*websocket.Conn]*clientConn
	roles             map[string]map[*websocket.Conn]*clientConn
	offline           OfflineStore
	keepAliveInterval time.Duration
	logger            *zap.Logger
}

// HubOption 配置 hub
type HubOption func(*WebSocketHub)

// WithOfflineStore 指定离线存储
func WithOfflineStore(store OfflineStore) HubOption {
	return func(h *WebSocketHub) { h.offline = store }
}

// WithKeepAliveInterval 设置心跳间隔
func WithKeepAliveInterval(interval time.Duration) HubOption {
	return func(h *WebSocketHub) { h.keepAliveInterval = interval }
}

// WithHubLogger 设置日志器
func WithHubLogger(l *zap.Logger) HubOption {
	return func(h *WebSocketHub) { h.logger = l }
}

// NewWebSocketHub 创建 Hub
func NewWebSocketHub(opts ...HubOption) *WebSocketHub {
	hub := &WebSocketHub{
		clients:           make(map[string]map[*websocket.Conn]*clientConn),
		roles:             make(map[string]map[*websocket.Conn]*clientConn),
		offline:           NewMemoryOfflineStore(50),
		keepAliveInterval: 30 * time.Second,
		logger:            logger.Get(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(hub)
		}
	}
	return hub
}

// Register 注册连接并加入用户所属角色频道，随后重放离线消息
func (h *WebSocketHub) Register(userID, role string, conn *websocket.Conn) {
	client := &clientConn{conn: conn, role: role}

	h.mu.Lock()
	if _, ok := h.clients[userID]; !ok {
		h.clients[userID] = make(map[*websocket.Conn]*clientConn)
	}
	h.clients[userID][conn] = client
	if role != "" {
		if _, ok := h.roles[role]; !ok {
			h.roles[role] = make(map[*websocket.Conn]*clientConn)
		}
		h.roles[role][conn] = client
	}
	h.mu.Unlock()

	metrics.WebSocketConnectionsGauge.Inc()
	h.replayOffline(context.Background(), userID, client)
	h.startKeepAlive(userID, client)
}

// Unregister 移除连接
func (h *WebSocketHub) Unregister(userID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	conns, ok := h.clients[userID]
	if !ok {
		return
	}
	client, ok := conns[conn]
	if !ok {
		return
	}
	delete(conns, conn)
	if len(conns) == 0 {
		delete(h.clients, userID)
	}
	if client.role != "" {
		if roleConns, ok := h.roles[client.role]; ok {
			delete(roleConns, conn)
			if len(roleConns) == 0 {
				delete(h.roles, client.role)
			}
		}
	}
	metrics.WebSocketConnectionsGauge.Dec()
}

// SendToUser 发送给指定用户的所有连接；用户不在线时转入离线存储
func (h *WebSocketHub) SendToUser(userID string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	h.mu.RLock()
	userConns := make([]*clientConn, 0, len(h.clients[userID]))
	for _, client := range h.clients[userID] {
		userConns = append(userConns, client)
	}
	h.mu.RUnlock()

	if len(userConns) == 0 {
		return h.storeOffline(context.Background(), userID, data)
	}

	var firstErr error
	for _, client := range userConns {
		if err := h.write(client, data); err != nil {
			h.Unregister(userID, client.conn)
			_ = client.conn.Close()
			_ = h.storeOffline(context.Background(), userID, data)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// SendToRole 广播给角色频道下的所有在线连接。角色广播不做离线暂存
func (h *WebSocketHub) SendToRole(role string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	h.mu.RLock()
	roleConns := make([]*clientConn, 0, len(h.roles[role]))
	for _, client := range h.roles[role] {
		roleConns = append(roleConns, client)
	}
	h.mu.RUnlock()

	var firstErr error
	for _, client := range roleConns {
		if err := h.write(client, data); err != nil {
			_ = client.conn.Close()
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// ConnectedCount 返回指定用户的连接数（用于调试/指标）
func (h *WebSocketHub) ConnectedCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// RoleCount 返回角色频道的连接数
func (h *WebSocketHub) RoleCount(role string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.roles[role])
}

func (h *WebSocketHub) write(client *clientConn, data []byte) error {
	client.mu.Lock()
	defer client.mu.Unlock()
	client.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return client.conn.WriteMessage(websocket.TextMessage, data)
}

func (h *WebSocketHub) replayOffline(ctx context.Context, userID string, client *clientConn) {
	if h.offline == nil {
		return
	}
	messages, err := h.offline.Drain(ctx, userID)
	if err != nil {
		if h.logger != nil {
			h.logger.Warn("离线消息重放失败", zap.String("userId", userID), zap.Error(err))
		}
		return
	}
	for _, msg := range messages {
		if err := h.write(client, msg); err != nil {
			if h.logger != nil {
				h.logger.Debug("推送离线消息失败", zap.Error(err))
			}
			return
		}
	}
}

func (h *WebSocketHub) storeOffline(ctx context.Context, userID string, payload []byte) error {
	if h.offline == nil {
		return nil
	}
	return h.offline.Append(ctx, userID, payload)
}

func (h *WebSocketHub) startKeepAlive(userID string, client *clientConn) {
	if h.keepAliveInterval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(h.keepAliveInterval)
		defer ticker.Stop()
		for range ticker.C {
			client.mu.Lock()
			err := client.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			client.mu.Unlock()
			if err != nil {
				h.Unregister(userID, client.conn)
				_ = client.conn.Close()
				return
			}
		}
	}()
}
