package event

import (
	"context"
	"errors"
	"fmt"
	"time"

	"backend/internal/common"
	"backend/internal/user"

	"gorm.io/gorm"
)

// ListFilter 列表筛选条件。筛选字段仅对 SUPERVISOR/ADMIN 生效，
// COORDINATOR 固定可见范围：自己创建的事件或任何已审批事件
type ListFilter struct {
	Status      Status
	EventType   Type
	From        *time.Time
	To          *time.Time
	CreatedByID string
	common.PaginationRequest
}

// List 范围化分页列表
func (s *Service) List(ctx context.Context, requester Principal, filter ListFilter) ([]Event, int64, error) {
	query := s.db.WithContext(ctx).Model(&Event{})

	if requester.Role == user.RoleCoordinator {
		query = query.Where("created_by_id = ? OR status = ?", requester.ID, StatusApproved)
	} else {
		if filter.Status != "" {
			query = query.Where("status = ?", filter.Status)
		}
		if filter.EventType != "" {
			query = query.Where("event_type = ?", filter.EventType)
		}
		if filter.CreatedByID != "" {
			query = query.Where("created_by_id = ?", filter.CreatedByID)
		}
	}
	if filter.From != nil {
		query = query.Where("start_date >= ?", *filter.From)
	}
	if filter.To != nil {
		query = query.Where("start_date <= ?", *filter.To)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("统计事件总数失败: %w", err)
	}

	var events []Event
	err := query.Preload("CreatedBy").
		Order("start_date DESC").
		Offset(filter.GetOffset()).
		Limit(filter.GetPageSize()).
		Find(&events).Error
	if err != nil {
		return nil, 0, fmt.Errorf("查询事件列表失败: %w", err)
	}
	return events, total, nil
}

// Get 按 ID 查询，COORDINATOR 只能看到自己的或已审批的事件
func (s *Service) Get(ctx context.Context, requester Principal, id string) (*Event, error) {
	var ev Event
	err := s.db.WithContext(ctx).Preload("CreatedBy").First(&ev, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("查询事件失败: %w", err)
	}
	if requester.Role == user.RoleCoordinator &&
		ev.CreatedByID != requester.ID && ev.Status != StatusApproved {
		return nil, ErrEventNotFound
	}
	return &ev, nil
}
