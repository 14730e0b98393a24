package admin

import (
	"errors"
	"fmt"

	"backend/internal/audit"
	"backend/internal/auth"
	"backend/internal/common"
	"backend/internal/notification"
	"backend/internal/user"

	"github.com/gin-gonic/gin"
)

// Handler 管理后台 API 处理器
type Handler struct {
	users      *user.Service
	audit      *audit.Recorder
	dispatcher *notification.Dispatcher
}

// NewHandler 创建处理器
func NewHandler(users *user.Service, recorder *audit.Recorder, dispatcher *notification.Dispatcher) *Handler {
	return &Handler{users: users, audit: recorder, dispatcher: dispatcher}
}

// UpdateRoleRequest 角色变更请求
type UpdateRoleRequest struct {
	Role string `json:"role" binding:"required"`
}

// ListUsers 用户列表
// GET /api/admin/users
func (h *Handler) ListUsers(c *gin.Context) {
	users, err := h.users.ListUsers(c.Request.Context())
	if err != nil {
		common.ResponseServerError(c, "查询用户列表失败")
		return
	}
	common.ResponseList(c, users, int64(len(users)))
}

// UpdateUserRole 变更用户角色
// PATCH /api/admin/users/:id/role
func (h *Handler) UpdateUserRole(c *gin.Context) {
	var req UpdateRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ResponseBadRequest(c, "请求参数无效: "+err.Error())
		return
	}

	u, err := h.users.UpdateRole(c.Request.Context(), c.Param("id"), user.Role(req.Role))
	if err != nil {
		switch {
		case errors.Is(err, user.ErrUserNotFound):
			common.ResponseNotFound(c, err.Error())
		case errors.Is(err, user.ErrInvalidRole), errors.Is(err, user.ErrDirectAdminPromotion):
			common.ResponseBadRequest(c, err.Error())
		default:
			common.ResponseServerError(c, "更新用户角色失败")
		}
		return
	}

	if adminCtx, ok := auth.GetUserContext(c); ok {
		h.audit.Record(c.Request.Context(), adminCtx.UserID, audit.ActionRoleChanged,
			audit.EntityTypeUser, u.ID, map[string]any{"role": string(u.Role)})
	}

	h.dispatcher.Notify(notification.TargetUser(u.ID),
		notification.TypeRoleChanged,
		fmt.Sprintf("你的角色已变更为 %s", u.Role),
		map[string]any{"role": string(u.Role)})

	common.ResponseSuccess(c, u)
}

// Stats 管理统计：用户角色分布 + 审计动作分布
// GET /api/admin/stats
func (h *Handler) Stats(c *gin.Context) {
	roleCounts, err := h.users.CountByRole(c.Request.Context())
	if err != nil {
		common.ResponseServerError(c, "统计用户角色失败")
		return
	}
	actionCounts, err := h.audit.CountByAction(c.Request.Context())
	if err != nil {
		common.ResponseServerError(c, "统计审计日志失败")
		return
	}
	common.ResponseSuccess(c, gin.H{
		"usersByRole":   roleCounts,
		"auditByAction": actionCounts,
	})
}
