package events

import (
	"time"

	"backend/internal/common"
	"backend/internal/event"
)

// CreateEventRequest 创建事件请求
type CreateEventRequest struct {
	Title           string    `json:"title" binding:"required,min=3"`
	Description     string    `json:"description"`
	StartDate       time.Time `json:"startDate" binding:"required"`
	EndDate         time.Time `json:"endDate" binding:"required"`
	IsAllDay        bool      `json:"isAllDay"`
	EventType       string    `json:"eventType" binding:"required"`
	RequestedStatus string    `json:"status"`
}

// UpdateEventRequest 更新事件请求，未提供的字段不修改
type UpdateEventRequest struct {
	Title       *string    `json:"title"`
	Description *string    `json:"description"`
	StartDate   *time.Time `json:"startDate"`
	EndDate     *time.Time `json:"endDate"`
	IsAllDay    *bool      `json:"isAllDay"`
	EventType   *string    `json:"eventType"`
}

// ApproveEventRequest 审批请求
type ApproveEventRequest struct {
	NotifyCreator bool `json:"notifyCreator"`
}

// RejectEventRequest 拒绝请求
type RejectEventRequest struct {
	Reason        string `json:"reason" binding:"required"`
	NotifyCreator bool   `json:"notifyCreator"`
}

// ListEventsRequest 列表查询参数
type ListEventsRequest struct {
	Status      string `form:"status"`
	EventType   string `form:"eventType"`
	From        string `form:"from"`
	To          string `form:"to"`
	CreatedByID string `form:"createdById"`
	common.PaginationRequest
}

// EventResponse 事件响应，告警代表操作成功但某个副作用降级
type EventResponse struct {
	Event   *event.Event `json:"event"`
	Warning string       `json:"warning,omitempty"`
}

// NewEventResponse 组装事件响应
func NewEventResponse(result *event.Result) *EventResponse {
	return &EventResponse{
		Event:   result.Event,
		Warning: result.WarningText(),
	}
}
