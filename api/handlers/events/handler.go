package events

import (
	"errors"
	"io"
	"time"

	"backend/internal/auth"
	"backend/internal/common"
	"backend/internal/event"
	"backend/internal/user"

	"github.com/gin-gonic/gin"
)

// Handler 事件审批 API 处理器
type Handler struct {
	service *event.Service
}

// NewHandler 创建处理器
func NewHandler(service *event.Service) *Handler {
	return &Handler{service: service}
}

func principal(c *gin.Context) (event.Principal, bool) {
	userCtx, ok := auth.GetUserContext(c)
	if !ok {
		return event.Principal{}, false
	}
	return event.Principal{
		ID:    userCtx.UserID,
		Email: userCtx.Email,
		Role:  userCtx.Role,
	}, true
}

// respondError 将业务错误映射为统一响应
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, event.ErrValidation), errors.Is(err, event.ErrRejectReasonEmpty):
		common.ResponseError(c, common.CodeInvalidRequest, err.Error())
	case errors.Is(err, event.ErrForbidden):
		common.ResponseError(c, common.CodeForbidden, err.Error())
	case errors.Is(err, event.ErrEventNotFound):
		common.ResponseError(c, common.CodeNotFound, err.Error())
	case errors.Is(err, event.ErrNotPending):
		common.ResponseError(c, common.CodeInvalidState, err.Error())
	case errors.Is(err, event.ErrDurationExceeded):
		common.ResponseError(c, common.CodeDurationExceeded, err.Error())
	case errors.Is(err, event.ErrQuotaExceeded):
		common.ResponseError(c, common.CodeQuotaExceeded, err.Error())
	default:
		common.ResponseServerError(c, "操作失败")
	}
}

// Create 创建事件
// POST /api/events
func (h *Handler) Create(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		common.AbortWithError(c, common.CodeUnauthorized, "未认证")
		return
	}

	var req CreateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ResponseBadRequest(c, "请求参数无效: "+err.Error())
		return
	}

	result, err := h.service.CreateEvent(c.Request.Context(), p, event.CreateEventInput{
		Title:           req.Title,
		Description:     req.Description,
		StartDate:       req.StartDate,
		EndDate:         req.EndDate,
		IsAllDay:        req.IsAllDay,
		EventType:       event.Type(req.EventType),
		RequestedStatus: event.Status(req.RequestedStatus),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	common.ResponseCreated(c, NewEventResponse(result))
}

// List 范围化分页列表
// GET /api/events
func (h *Handler) List(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		common.AbortWithError(c, common.CodeUnauthorized, "未认证")
		return
	}

	var req ListEventsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		common.ResponseBadRequest(c, "请求参数无效: "+err.Error())
		return
	}

	filter := event.ListFilter{
		Status:            event.Status(req.Status),
		EventType:         event.Type(req.EventType),
		CreatedByID:       req.CreatedByID,
		PaginationRequest: req.PaginationRequest,
	}
	if req.From != "" {
		from, err := time.Parse(time.RFC3339, req.From)
		if err != nil {
			common.ResponseBadRequest(c, "无效的起始时间")
			return
		}
		filter.From = &from
	}
	if req.To != "" {
		to, err := time.Parse(time.RFC3339, req.To)
		if err != nil {
			common.ResponseBadRequest(c, "无效的结束时间")
			return
		}
		filter.To = &to
	}

	events, total, err := h.service.List(c.Request.Context(), p, filter)
	if err != nil {
		respondError(c, err)
		return
	}
	common.ResponseList(c, events, total)
}

// Get 事件详情
// GET /api/events/:id
func (h *Handler) Get(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		common.AbortWithError(c, common.CodeUnauthorized, "未认证")
		return
	}

	ev, err := h.service.Get(c.Request.Context(), p, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	common.ResponseSuccess(c, ev)
}

// Update 更新事件字段
// PATCH /api/events/:id
func (h *Handler) Update(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		common.AbortWithError(c, common.CodeUnauthorized, "未认证")
		return
	}

	var req UpdateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ResponseBadRequest(c, "请求参数无效: "+err.Error())
		return
	}

	input := event.UpdateEventInput{
		Title:       req.Title,
		Description: req.Description,
		StartDate:   req.StartDate,
		EndDate:     req.EndDate,
		IsAllDay:    req.IsAllDay,
	}
	if req.EventType != nil {
		t := event.Type(*req.EventType)
		input.EventType = &t
	}

	result, err := h.service.UpdateEvent(c.Request.Context(), p, c.Param("id"), input)
	if err != nil {
		respondError(c, err)
		return
	}
	common.ResponseSuccess(c, NewEventResponse(result))
}

// Approve 审批事件
// POST /api/events/:id/approve
func (h *Handler) Approve(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		common.AbortWithError(c, common.CodeUnauthorized, "未认证")
		return
	}

	var req ApproveEventRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		common.ResponseBadRequest(c, "请求参数无效: "+err.Error())
		return
	}

	result, err := h.service.ApproveEvent(c.Request.Context(), p, c.Param("id"), req.NotifyCreator)
	if err != nil {
		respondError(c, err)
		return
	}
	common.ResponseSuccess(c, NewEventResponse(result))
}

// Reject 拒绝事件
// POST /api/events/:id/reject
func (h *Handler) Reject(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		common.AbortWithError(c, common.CodeUnauthorized, "未认证")
		return
	}

	var req RejectEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ResponseBadRequest(c, "拒绝原因不能为空")
		return
	}

	result, err := h.service.RejectEvent(c.Request.Context(), p, c.Param("id"), req.Reason, req.NotifyCreator)
	if err != nil {
		respondError(c, err)
		return
	}
	common.ResponseSuccess(c, NewEventResponse(result))
}

// Delete 删除事件
// DELETE /api/events/:id
func (h *Handler) Delete(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		common.AbortWithError(c, common.CodeUnauthorized, "未认证")
		return
	}

	if err := h.service.DeleteEvent(c.Request.Context(), p, c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	common.ResponseSuccess(c, gin.H{"deleted": true})
}

// Stats 事件统计
// GET /api/events/stats
// SUPERVISOR/ADMIN 看全局分布，COORDINATOR 看自己的
func (h *Handler) Stats(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		common.AbortWithError(c, common.CodeUnauthorized, "未认证")
		return
	}

	var stats *event.Stats
	var err error
	if p.Role == user.RoleCoordinator {
		stats, err = h.service.CreatorStats(c.Request.Context(), p.ID)
	} else {
		stats, err = h.service.GlobalStats(c.Request.Context())
	}
	if err != nil {
		respondError(c, err)
		return
	}
	common.ResponseSuccess(c, stats)
}
