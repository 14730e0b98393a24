package event

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"backend/internal/audit"
	"backend/internal/logger"
	"backend/internal/metrics"
	"backend/internal/notification"
	"backend/internal/user"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// 业务错误
var (
	ErrEventNotFound     = errors.New("事件不存在")
	ErrValidation        = errors.New("参数校验失败")
	ErrForbidden         = errors.New("没有权限执行该操作")
	ErrNotPending        = errors.New("只有待审批的事件才能被审批")
	ErrDurationExceeded  = errors.New("事件跨度超过 30 天，不允许自动审批")
	ErrQuotaExceeded     = errors.New("今日自动审批次数已达上限（5 次）")
	ErrRejectReasonEmpty = errors.New("拒绝原因不能为空")
)

// 自动审批限制
const (
	maxAutoApprovalDays  = 30
	maxDailySelfApproval = 5
)

// CalendarClient 外部日历操作。QueryBusy 对任何失败按空闲处理
type CalendarClient interface {
	Create(ctx context.Context, ev *Event) (string, error)
	Update(ctx context.Context, externalID string, ev *Event) error
	Delete(ctx context.Context, externalID string) error
	QueryBusy(ctx context.Context, start, end time.Time) bool
}

// Notifier 副作用分发：实时通知与异步邮件，失败不回传
type Notifier interface {
	Notify(target notification.Target, typ, message string, data map[string]any)
	EnqueueEmail(to, subject, templateName string, tmplCtx map[string]any)
}

// AuditRecorder 审计记录，失败只记日志
type AuditRecorder interface {
	Record(ctx context.Context, userID, action, entityType, entityID string, metadata map[string]any)
}

// Principal 已认证的请求主体
type Principal struct {
	ID    string
	Email string
	Role  user.Role
}

// Service 事件审批状态机与副作用编排
type Service struct {
	db       *gorm.DB
	calendar CalendarClient
	notifier Notifier
	audit    AuditRecorder
	logger   *zap.Logger
}

// NewService 创建事件服务
func NewService(db *gorm.DB, cal CalendarClient, notifier Notifier, recorder AuditRecorder) *Service {
	return &Service{
		db:       db,
		calendar: cal,
		notifier: notifier,
		audit:    recorder,
		logger:   logger.Named("event"),
	}
}

// CreateEventInput 创建事件入参，校验由 handler 层的 DTO 绑定完成，
// 这里只做业务级校验
type CreateEventInput struct {
	Title           string
	Description     string
	StartDate       time.Time
	EndDate         time.Time
	IsAllDay        bool
	EventType       Type
	RequestedStatus Status // 仅 SUPERVISOR/ADMIN 有意义，空值视为 PENDING
}

// Result 状态流转结果：事件加上降级告警。告警代表操作成功
// 但某个副作用打了折扣，与中止请求的错误严格区分
type Result struct {
	Event    *Event
	Warnings []string
}

// WarningText 将告警拼成单个字符串，空告警返回空串
func (r *Result) WarningText() string {
	return strings.Join(r.Warnings, "；")
}

// CreateEvent 创建事件：决定初始状态（含自动审批资格检查），
// 持久化后编排日历同步、审计与通知
func (s *Service) CreateEvent(ctx context.Context, requester Principal, input CreateEventInput) (*Result, error) {
	if err := validateCreateInput(&input); err != nil {
		return nil, err
	}
	if requester.Role == user.RolePendingAssignment {
		return nil, ErrForbidden
	}

	ev := &Event{
		Title:       input.Title,
		Description: input.Description,
		StartDate:   input.StartDate,
		EndDate:     input.EndDate,
		IsAllDay:    input.IsAllDay,
		EventType:   input.EventType,
		Status:      StatusPending,
		CreatedByID: requester.ID,
	}

	var warnings []string
	autoApproved := false

	wantApproved := input.RequestedStatus == StatusApproved &&
		(requester.Role == user.RoleSupervisor || requester.Role == user.RoleAdmin)
	if wantApproved {
		switch requester.Role {
		case user.RoleAdmin:
			autoApproved = true
		case user.RoleSupervisor:
			if err := s.checkAutoApprovalEligibility(ctx, requester.ID, ev); err != nil {
				// 创建场景降级为 PENDING，不中止请求
				warnings = append(warnings, err.Error())
			} else {
				autoApproved = true
			}
		}
	}
	if autoApproved {
		ev.Status = StatusApproved
		ev.ApprovedByID = &requester.ID
	}

	if ev.StartDate.Before(time.Now()) {
		warnings = append(warnings, "事件开始时间早于当前时间")
	}
	if s.calendar.QueryBusy(ctx, ev.StartDate, ev.EndDate) {
		warnings = append(warnings, "该时间段与外部日历中的现有日程冲突")
	}

	if err := s.db.WithContext(ctx).Create(ev).Error; err != nil {
		return nil, fmt.Errorf("创建事件失败: %w", err)
	}

	if ev.Status == StatusApproved {
		if warning := s.syncCreate(ctx, ev); warning != "" {
			warnings = append(warnings, warning)
		}
	}

	action := audit.ActionCreatePending
	if autoApproved {
		action = audit.ActionCreateAutoApproved
	}
	s.audit.Record(ctx, requester.ID, action, audit.EntityTypeEvent, ev.ID, map[string]any{
		"title":     ev.Title,
		"eventType": string(ev.EventType),
		"status":    string(ev.Status),
	})
	metrics.EventTransitionsTotal.WithLabelValues(action, string(ev.Status)).Inc()

	if autoApproved {
		s.notifier.Notify(notification.TargetUser(requester.ID),
			notification.TypeEventAutoApproved,
			fmt.Sprintf("事件「%s」已自动审批通过", ev.Title),
			map[string]any{"eventId": ev.ID})
		s.notifier.EnqueueEmail(requester.Email, "事件已自动审批通过", "event_auto_approved", map[string]any{
			"title":     ev.Title,
			"startDate": ev.StartDate.Format(time.RFC3339),
		})
	} else if requester.Role == user.RoleCoordinator {
		s.notifier.Notify(notification.TargetRole(string(user.RoleSupervisor)),
			notification.TypeNewEventFromCoordinator,
			fmt.Sprintf("协调员提交了待审批事件「%s」", ev.Title),
			map[string]any{"eventId": ev.ID, "createdById": requester.ID})
	}

	return &Result{Event: ev, Warnings: warnings}, nil
}

// ApproveEvent 审批事件。PENDING 前置条件通过状态守护更新保证：
// 并发审批同一事件时恰好一个成功，其余得到状态错误
func (s *Service) ApproveEvent(ctx context.Context, requester Principal, eventID string, notifyCreator bool) (*Result, error) {
	ev, err := s.loadEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if ev.Status != StatusPending {
		return nil, ErrNotPending
	}

	selfApproval := ev.CreatedByID == requester.ID
	if selfApproval && requester.Role != user.RoleAdmin {
		// 显式审批场景硬失败，不做降级
		if err := s.checkAutoApprovalEligibility(ctx, requester.ID, ev); err != nil {
			return nil, err
		}
	}

	var warnings []string
	if s.calendar.QueryBusy(ctx, ev.StartDate, ev.EndDate) {
		warnings = append(warnings, "该时间段与外部日历中的现有日程冲突")
	}

	res := s.db.WithContext(ctx).Model(&Event{}).
		Where("id = ? AND status = ?", ev.ID, StatusPending).
		Updates(map[string]any{
			"status":         StatusApproved,
			"approved_by_id": requester.ID,
		})
	if res.Error != nil {
		return nil, fmt.Errorf("更新事件状态失败: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotPending
	}
	ev.Status = StatusApproved
	ev.ApprovedByID = &requester.ID

	if ev.ExternalCalendarEventID != nil {
		if err := s.calendar.Update(ctx, *ev.ExternalCalendarEventID, ev); err != nil {
			metrics.CalendarSyncFailuresTotal.WithLabelValues("update").Inc()
			s.logger.Warn("外部日历更新失败", zap.String("eventId", ev.ID), zap.Error(err))
			warnings = append(warnings, "外部日历同步失败，事件状态已更新")
		}
	} else {
		if warning := s.syncCreate(ctx, ev); warning != "" {
			warnings = append(warnings, warning)
		}
	}

	action := audit.ActionApproveOther
	if selfApproval {
		action = audit.ActionApproveSelf
	}
	s.audit.Record(ctx, requester.ID, action, audit.EntityTypeEvent, ev.ID, nil)
	metrics.EventTransitionsTotal.WithLabelValues(action, string(StatusApproved)).Inc()

	if selfApproval {
		s.notifier.Notify(notification.TargetUser(requester.ID),
			notification.TypeEventSelfApproved,
			fmt.Sprintf("事件「%s」审批通过", ev.Title),
			map[string]any{"eventId": ev.ID})
	} else if notifyCreator {
		s.notifier.Notify(notification.TargetUser(ev.CreatedByID),
			notification.TypeEventApprovedByOther,
			fmt.Sprintf("你的事件「%s」已被审批通过", ev.Title),
			map[string]any{"eventId": ev.ID, "approvedById": requester.ID})
		if ev.CreatedBy != nil && ev.CreatedBy.Email != "" {
			s.notifier.EnqueueEmail(ev.CreatedBy.Email, "事件审批通过", "event_approved", map[string]any{
				"title":      ev.Title,
				"approvedBy": requester.Email,
			})
		}
	}

	return &Result{Event: ev, Warnings: warnings}, nil
}

// RejectEvent 拒绝事件。拒绝不校验当前状态（与审批的不对称是
// 既有语义，保持原样），拒绝原因以标记块追加进描述
func (s *Service) RejectEvent(ctx context.Context, requester Principal, eventID, reason string, notifyCreator bool) (*Result, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, ErrRejectReasonEmpty
	}
	ev, err := s.loadEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}

	newDescription := ev.Description
	if newDescription != "" {
		newDescription += "\n\n"
	}
	newDescription += "[REJEITADO] Motivo: " + reason

	updates := map[string]any{
		"status":         StatusRejected,
		"approved_by_id": requester.ID,
		"description":    newDescription,
	}

	hadExternalID := ev.ExternalCalendarEventID != nil
	if hadExternalID {
		if err := s.calendar.Delete(ctx, *ev.ExternalCalendarEventID); err != nil {
			metrics.CalendarSyncFailuresTotal.WithLabelValues("delete").Inc()
			s.logger.Warn("外部日历删除失败，仍清除本地引用",
				zap.String("eventId", ev.ID), zap.Error(err))
		}
		updates["external_calendar_event_id"] = nil
	}

	if err := s.db.WithContext(ctx).Model(&Event{}).Where("id = ?", ev.ID).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("更新事件状态失败: %w", err)
	}
	ev.Status = StatusRejected
	ev.ApprovedByID = &requester.ID
	ev.Description = newDescription
	ev.ExternalCalendarEventID = nil

	s.audit.Record(ctx, requester.ID, audit.ActionReject, audit.EntityTypeEvent, ev.ID, map[string]any{
		"reason": reason,
	})
	metrics.EventTransitionsTotal.WithLabelValues(audit.ActionReject, string(StatusRejected)).Inc()

	if notifyCreator {
		s.notifier.Notify(notification.TargetUser(ev.CreatedByID),
			notification.TypeEventRejected,
			fmt.Sprintf("你的事件「%s」被拒绝：%s", ev.Title, reason),
			map[string]any{"eventId": ev.ID, "reason": reason})
		if ev.CreatedBy != nil && ev.CreatedBy.Email != "" {
			s.notifier.EnqueueEmail(ev.CreatedBy.Email, "事件被拒绝", "event_rejected", map[string]any{
				"title":  ev.Title,
				"reason": reason,
			})
		}
	}

	return &Result{Event: ev}, nil
}

// UpdateEventInput 更新事件入参，nil 字段不修改
type UpdateEventInput struct {
	Title       *string
	Description *string
	StartDate   *time.Time
	EndDate     *time.Time
	IsAllDay    *bool
	EventType   *Type
}

// UpdateEvent 更新事件字段（SUPERVISOR/ADMIN）。已审批且已同步的
// 事件顺带更新外部日历，失败降级为告警
func (s *Service) UpdateEvent(ctx context.Context, requester Principal, eventID string, input UpdateEventInput) (*Result, error) {
	if requester.Role != user.RoleSupervisor && requester.Role != user.RoleAdmin {
		return nil, ErrForbidden
	}
	ev, err := s.loadEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if input.Title != nil {
		if len(strings.TrimSpace(*input.Title)) < 3 {
			return nil, fmt.Errorf("%w: 标题长度不能少于 3 个字符", ErrValidation)
		}
		updates["title"] = *input.Title
		ev.Title = *input.Title
	}
	if input.Description != nil {
		updates["description"] = *input.Description
		ev.Description = *input.Description
	}
	if input.StartDate != nil {
		updates["start_date"] = *input.StartDate
		ev.StartDate = *input.StartDate
	}
	if input.EndDate != nil {
		updates["end_date"] = *input.EndDate
		ev.EndDate = *input.EndDate
	}
	if ev.EndDate.Before(ev.StartDate) {
		return nil, fmt.Errorf("%w: 结束时间不能早于开始时间", ErrValidation)
	}
	if input.IsAllDay != nil {
		updates["is_all_day"] = *input.IsAllDay
		ev.IsAllDay = *input.IsAllDay
	}
	if input.EventType != nil {
		if !input.EventType.Valid() {
			return nil, fmt.Errorf("%w: 无效的事件类型", ErrValidation)
		}
		updates["event_type"] = *input.EventType
		ev.EventType = *input.EventType
	}
	if len(updates) == 0 {
		return &Result{Event: ev}, nil
	}

	if err := s.db.WithContext(ctx).Model(&Event{}).Where("id = ?", ev.ID).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("更新事件失败: %w", err)
	}

	var warnings []string
	if ev.Status == StatusApproved && ev.ExternalCalendarEventID != nil {
		if err := s.calendar.Update(ctx, *ev.ExternalCalendarEventID, ev); err != nil {
			metrics.CalendarSyncFailuresTotal.WithLabelValues("update").Inc()
			s.logger.Warn("外部日历更新失败", zap.String("eventId", ev.ID), zap.Error(err))
			warnings = append(warnings, "外部日历同步失败，事件已更新")
		}
	}

	return &Result{Event: ev, Warnings: warnings}, nil
}

// DeleteEvent 删除事件。权限矩阵：ADMIN 任意；SUPERVISOR 仅限
// 未审批通过的事件；创建者仅限待审批的自有事件
func (s *Service) DeleteEvent(ctx context.Context, requester Principal, eventID string) error {
	ev, err := s.loadEvent(ctx, eventID)
	if err != nil {
		return err
	}

	allowed := false
	switch {
	case requester.Role == user.RoleAdmin:
		allowed = true
	case requester.Role == user.RoleSupervisor && ev.Status != StatusApproved:
		allowed = true
	case ev.CreatedByID == requester.ID && ev.Status == StatusPending:
		allowed = true
	}
	if !allowed {
		return ErrForbidden
	}

	// 外部删除失败不阻塞本地删除，可能遗留日历残留条目
	if ev.ExternalCalendarEventID != nil {
		if err := s.calendar.Delete(ctx, *ev.ExternalCalendarEventID); err != nil {
			metrics.CalendarSyncFailuresTotal.WithLabelValues("delete").Inc()
			s.logger.Warn("外部日历删除失败，继续删除本地记录",
				zap.String("eventId", ev.ID), zap.Error(err))
		}
	}

	if err := s.db.WithContext(ctx).Delete(&Event{}, "id = ?", ev.ID).Error; err != nil {
		return fmt.Errorf("删除事件失败: %w", err)
	}
	metrics.EventTransitionsTotal.WithLabelValues("DELETE", string(ev.Status)).Inc()
	return nil
}

// checkAutoApprovalEligibility 自动审批资格：EVENTO/VISITA 豁免；
// 其余类型受 30 天跨度与每日 5 次自批配额限制。
// 配额的 count-then-write 存在并发窗口，允许小幅超限
func (s *Service) checkAutoApprovalEligibility(ctx context.Context, requesterID string, ev *Event) error {
	if ev.EventType.ExemptFromAutoApprovalLimits() {
		return nil
	}
	if ev.DurationDays() > maxAutoApprovalDays {
		return ErrDurationExceeded
	}

	now := time.Now()
	startOfToday := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	var count int64
	err := s.db.WithContext(ctx).Model(&Event{}).
		Where("approved_by_id = ? AND created_by_id = ? AND status = ? AND updated_at >= ?",
			requesterID, requesterID, StatusApproved, startOfToday).
		Count(&count).Error
	if err != nil {
		return fmt.Errorf("统计今日自动审批次数失败: %w", err)
	}
	if count >= maxDailySelfApproval {
		return ErrQuotaExceeded
	}
	return nil
}

// syncCreate 将事件同步到外部日历，失败返回告警文案
func (s *Service) syncCreate(ctx context.Context, ev *Event) string {
	externalID, err := s.calendar.Create(ctx, ev)
	if err != nil {
		metrics.CalendarSyncFailuresTotal.WithLabelValues("create").Inc()
		s.logger.Warn("外部日历创建失败", zap.String("eventId", ev.ID), zap.Error(err))
		return "外部日历同步失败，事件已保存但未同步"
	}
	if err := s.db.WithContext(ctx).Model(&Event{}).Where("id = ?", ev.ID).
		Update("external_calendar_event_id", externalID).Error; err != nil {
		s.logger.Error("保存外部日历事件 ID 失败", zap.String("eventId", ev.ID), zap.Error(err))
		return "外部日历已同步，但保存外部事件 ID 失败"
	}
	ev.ExternalCalendarEventID = &externalID
	return ""
}

func (s *Service) loadEvent(ctx context.Context, id string) (*Event, error) {
	var ev Event
	err := s.db.WithContext(ctx).Preload("CreatedBy").First(&ev, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("查询事件失败: %w", err)
	}
	return &ev, nil
}

func validateCreateInput(input *CreateEventInput) error {
	if len(strings.TrimSpace(input.Title)) < 3 {
		return fmt.Errorf("%w: 标题长度不能少于 3 个字符", ErrValidation)
	}
	if input.EndDate.Before(input.StartDate) {
		return fmt.Errorf("%w: 结束时间不能早于开始时间", ErrValidation)
	}
	if !input.EventType.Valid() {
		return fmt.Errorf("%w: 无效的事件类型", ErrValidation)
	}
	if input.RequestedStatus != "" && input.RequestedStatus != StatusPending && input.RequestedStatus != StatusApproved {
		return fmt.Errorf("%w: 无效的初始状态", ErrValidation)
	}
	return nil
}
