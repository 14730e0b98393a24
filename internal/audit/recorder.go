package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// 审批工作流动作常量
const (
	ActionCreatePending      = "CREATE_PENDING"
	ActionCreateAutoApproved = "CREATE_AUTO_APPROVED"
	ActionApproveSelf        = "APPROVE_SELF"
	ActionApproveOther       = "APPROVE_OTHER"
	ActionReject             = "REJECT"
	ActionRoleChanged        = "ROLE_CHANGED"
)

// 实体类型常量
const (
	EntityTypeEvent = "EVENT"
	EntityTypeUser  = "USER"
)

// Log 审计日志（只追加）
type Log struct {
	ID         string         `gorm:"type:uuid;primaryKey" json:"id"`
	UserID     string         `gorm:"type:uuid;not null;index" json:"userId"`
	Action     string         `gorm:"type:varchar(50);not null;index" json:"action"`
	EntityType string         `gorm:"type:varchar(30);not null" json:"entityType"`
	EntityID   string         `gorm:"type:varchar(64);not null;index" json:"entityId"`
	Metadata   map[string]any `gorm:"type:jsonb;serializer:json" json:"metadata,omitempty"`
	Timestamp  time.Time      `gorm:"not null;index" json:"timestamp"`
}

// BeforeCreate GORM 钩子：创建前设置 ID
func (l *Log) BeforeCreate(tx *gorm.DB) error {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	return nil
}

// TableName 指定表名
func (Log) TableName() string {
	return "audit_logs"
}

// Recorder 审计记录器。
// 审计仅为辅助性记录，写入失败只打日志，绝不让主流程失败。
type Recorder struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewRecorder 创建审计记录器
func NewRecorder(db *gorm.DB, logger *zap.Logger) *Recorder {
	return &Recorder{db: db, logger: logger}
}

// Record 追加一条审计记录，失败静默（仅日志）
func (r *Recorder) Record(ctx context.Context, userID, action, entityType, entityID string, metadata map[string]any) {
	entry := &Log{
		UserID:     userID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Metadata:   metadata,
		Timestamp:  time.Now().UTC(),
	}

	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		r.logger.Error("审计日志写入失败",
			zap.String("action", action),
			zap.String("entityId", entityID),
			zap.Error(err),
		)
	}
}

// ActionCount 动作维度统计结果
type ActionCount struct {
	Action string `json:"action"`
	Count  int64  `json:"count"`
}

// CountByAction 按动作统计审计日志（管理后台图表）
func (r *Recorder) CountByAction(ctx context.Context) ([]ActionCount, error) {
	var rows []ActionCount
	err := r.db.WithContext(ctx).Model(&Log{}).
		Select("action, COUNT(*) AS count").
		Group("action").
		Scan(&rows).Error
	return rows, err
}
