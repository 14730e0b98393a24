package event

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// StatusCount 状态维度计数
type StatusCount struct {
	Status Status `json:"status"`
	Count  int64  `json:"count"`
}

// TypeCount 类型维度计数
type TypeCount struct {
	EventType Type  `json:"eventType"`
	Count     int64 `json:"count"`
}

// Stats 全局统计（SUPERVISOR/ADMIN 仪表盘）
type Stats struct {
	Total    int64         `json:"total"`
	ByStatus []StatusCount `json:"byStatus"`
	ByType   []TypeCount   `json:"byType"`
}

// GlobalStats 统计全部事件的状态/类型分布
func (s *Service) GlobalStats(ctx context.Context) (*Stats, error) {
	return s.stats(ctx, "")
}

// CreatorStats 统计某个创建者的事件分布（COORDINATOR 自查）
func (s *Service) CreatorStats(ctx context.Context, creatorID string) (*Stats, error) {
	return s.stats(ctx, creatorID)
}

func (s *Service) stats(ctx context.Context, creatorID string) (*Stats, error) {
	base := s.db.WithContext(ctx).Model(&Event{})
	if creatorID != "" {
		base = base.Where("created_by_id = ?", creatorID)
	}

	var total int64
	if err := base.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, fmt.Errorf("统计事件总数失败: %w", err)
	}

	var byStatus []StatusCount
	if err := base.Session(&gorm.Session{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&byStatus).Error; err != nil {
		return nil, fmt.Errorf("按状态统计失败: %w", err)
	}

	var byType []TypeCount
	if err := base.Session(&gorm.Session{}).
		Select("event_type, COUNT(*) AS count").
		Group("event_type").
		Scan(&byType).Error; err != nil {
		return nil, fmt.Errorf("按类型统计失败: %w", err)
	}

	return &Stats{Total: total, ByStatus: byStatus, ByType: byType}, nil
}
