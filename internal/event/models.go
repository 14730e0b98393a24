package event

import (
	"time"

	"backend/internal/user"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Status 事件审批状态
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
)

// Valid 校验状态取值
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// Type 事件类型，决定展示颜色与外部日历的颜色映射
type Type string

const (
	TypeEvento      Type = "EVENTO"
	TypeAcaoPontual Type = "ACAO_PONTUAL"
	TypeReuniao     Type = "REUNIAO"
	TypeVisita      Type = "VISITA"
	TypeFerias      Type = "FERIAS"
	TypeFolga       Type = "FOLGA"
	TypeLicenca     Type = "LICENCA"
	TypeOutros      Type = "OUTROS"
)

// Valid 校验事件类型取值
func (t Type) Valid() bool {
	switch t {
	case TypeEvento, TypeAcaoPontual, TypeReuniao, TypeVisita,
		TypeFerias, TypeFolga, TypeLicenca, TypeOutros:
		return true
	}
	return false
}

// ExemptFromAutoApprovalLimits EVENTO 和 VISITA 类型不受
// 自动审批的时长/日配额限制
func (t Type) ExemptFromAutoApprovalLimits() bool {
	return t == TypeEvento || t == TypeVisita
}

// Event 日历事件
type Event struct {
	ID          string `gorm:"type:uuid;primaryKey" json:"id"`
	Title       string `gorm:"type:varchar(255);not null" json:"title"`
	Description string `gorm:"type:text" json:"description,omitempty"`

	StartDate time.Time `gorm:"not null;index" json:"startDate"`
	EndDate   time.Time `gorm:"not null" json:"endDate"`
	IsAllDay  bool      `gorm:"not null;default:false" json:"isAllDay"`

	EventType Type   `gorm:"type:varchar(30);not null;index" json:"eventType"`
	Status    Status `gorm:"type:varchar(20);not null;default:'PENDING';index" json:"status"`

	CreatedByID  string  `gorm:"type:uuid;not null;index" json:"createdById"`
	ApprovedByID *string `gorm:"type:uuid" json:"approvedById,omitempty"`

	// 同步到外部日历后才有值，拒绝/删除时清空
	ExternalCalendarEventID *string `gorm:"type:varchar(255)" json:"externalCalendarEventId,omitempty"`

	CreatedAt time.Time `gorm:"not null" json:"createdAt"`
	UpdatedAt time.Time `gorm:"not null;index" json:"updatedAt"`

	CreatedBy *user.User `gorm:"foreignKey:CreatedByID" json:"createdBy,omitempty"`
}

// BeforeCreate GORM 钩子：创建前设置 ID
func (e *Event) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	return nil
}

// TableName 指定表名
func (Event) TableName() string {
	return "events"
}

// DurationDays 事件跨度（天），用于自动审批时长检查
func (e *Event) DurationDays() float64 {
	return e.EndDate.Sub(e.StartDate).Hours() / 24
}
