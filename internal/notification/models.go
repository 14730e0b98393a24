package notification

import (
	"time"

	"github.com/google/uuid"
)

// 通知类型常量
const (
	TypeEventAutoApproved       = "EVENT_AUTO_APPROVED"
	TypeEventSelfApproved       = "EVENT_SELF_APPROVED"
	TypeEventApprovedByOther    = "EVENT_APPROVED_BY_OTHER"
	TypeEventRejected           = "EVENT_REJECTED"
	TypeNewEventFromCoordinator = "NEW_EVENT_FROM_COORDINATOR"
	TypeRoleChanged             = "ROLE_CHANGED"
)

// Notification 实时通知载荷。通知不落库，持久化（若需要）是客户端的事
type Notification struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Message   string         `json:"message"`
	Timestamp string         `json:"timestamp"`
	Read      bool           `json:"read"`
	Data      map[string]any `json:"data,omitempty"`
}

// New 构造通知
func New(typ, message string, data map[string]any) *Notification {
	return &Notification{
		ID:        uuid.New().String(),
		Type:      typ,
		Message:   message,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Read:      false,
		Data:      data,
	}
}

// Target 通知目标：指定用户或整个角色频道，二者取其一
type Target struct {
	UserID string
	Role   string
}

// TargetUser 以用户为目标
func TargetUser(userID string) Target {
	return Target{UserID: userID}
}

// TargetRole 以角色频道为目标（广播给该角色下的所有在线连接）
func TargetRole(role string) Target {
	return Target{Role: role}
}
