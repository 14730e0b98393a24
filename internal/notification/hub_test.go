package notification

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"backend/internal/logger"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func TestMemoryOfflineStoreLimit(t *testing.T) {
	store := NewMemoryOfflineStore(3)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, store.Append(ctx, "u1", []byte{byte('a' + i)}))
	}

	messages, err := store.Drain(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, messages, 3)
	// 超限丢弃最旧的
	require.Equal(t, []byte("c"), messages[0])
	require.Equal(t, []byte("e"), messages[2])

	// Drain 后清空
	messages, err = store.Drain(ctx, "u1")
	require.NoError(t, err)
	require.Empty(t, messages)
}

func TestHubStoresOfflineWhenUserAbsent(t *testing.T) {
	_ = logger.Init("error", "console", "stderr")
	store := NewMemoryOfflineStore(10)
	hub := NewWebSocketHub(WithOfflineStore(store))

	n := New(TypeEventRejected, "事件被拒绝", nil)
	require.NoError(t, hub.SendToUser("offline-user", n))

	messages, err := store.Drain(context.Background(), "offline-user")
	require.NoError(t, err)
	require.Len(t, messages, 1)

	var decoded Notification
	require.NoError(t, json.Unmarshal(messages[0], &decoded))
	require.Equal(t, TypeEventRejected, decoded.Type)
}

func dialTestHub(t *testing.T, hub *WebSocketHub, userID, role string) *websocket.Conn {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		hub.Register(userID, role, conn)
	}))
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readNotification(t *testing.T, conn *websocket.Conn) Notification {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var n Notification
	require.NoError(t, json.Unmarshal(data, &n))
	return n
}

func TestHubSendToUser(t *testing.T) {
	_ = logger.Init("error", "console", "stderr")
	hub := NewWebSocketHub(WithKeepAliveInterval(0))

	conn := dialTestHub(t, hub, "u1", "SUPERVISOR")
	require.Eventually(t, func() bool { return hub.ConnectedCount("u1") == 1 },
		time.Second, 10*time.Millisecond)

	require.NoError(t, hub.SendToUser("u1", New(TypeEventAutoApproved, "审批通过", map[string]any{"eventId": "e1"})))

	got := readNotification(t, conn)
	require.Equal(t, TypeEventAutoApproved, got.Type)
	require.Equal(t, "审批通过", got.Message)
	require.Equal(t, "e1", got.Data["eventId"])
}

func TestHubSendToRole(t *testing.T) {
	_ = logger.Init("error", "console", "stderr")
	hub := NewWebSocketHub(WithKeepAliveInterval(0))

	sup1 := dialTestHub(t, hub, "s1", "SUPERVISOR")
	sup2 := dialTestHub(t, hub, "s2", "SUPERVISOR")
	dialTestHub(t, hub, "c1", "COORDINATOR")
	require.Eventually(t, func() bool { return hub.RoleCount("SUPERVISOR") == 2 },
		time.Second, 10*time.Millisecond)

	require.NoError(t, hub.SendToRole("SUPERVISOR", New(TypeNewEventFromCoordinator, "新的待审批事件", nil)))

	for _, conn := range []*websocket.Conn{sup1, sup2} {
		got := readNotification(t, conn)
		require.Equal(t, TypeNewEventFromCoordinator, got.Type)
	}
}

func TestHubReplaysOfflineOnRegister(t *testing.T) {
	_ = logger.Init("error", "console", "stderr")
	store := NewMemoryOfflineStore(10)
	hub := NewWebSocketHub(WithOfflineStore(store), WithKeepAliveInterval(0))

	require.NoError(t, hub.SendToUser("u2", New(TypeEventRejected, "离线期间的通知", nil)))

	conn := dialTestHub(t, hub, "u2", "COORDINATOR")
	got := readNotification(t, conn)
	require.Equal(t, TypeEventRejected, got.Type)
}

func TestHubUnregisterLeavesRoleChannel(t *testing.T) {
	_ = logger.Init("error", "console", "stderr")
	hub := NewWebSocketHub(WithKeepAliveInterval(0))

	conn := dialTestHub(t, hub, "u3", "ADMIN")
	require.Eventually(t, func() bool { return hub.RoleCount("ADMIN") == 1 },
		time.Second, 10*time.Millisecond)

	_ = conn.Close()
	// 服务端在写失败前感知不到关闭，这里直接注销验证簿记
	hub.mu.RLock()
	var serverConn *websocket.Conn
	for c := range hub.clients["u3"] {
		serverConn = c
	}
	hub.mu.RUnlock()
	hub.Unregister("u3", serverConn)

	require.Zero(t, hub.ConnectedCount("u3"))
	require.Zero(t, hub.RoleCount("ADMIN"))
}
