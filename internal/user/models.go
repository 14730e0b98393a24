package user

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Role 用户角色
type Role string

const (
	// RolePendingAssignment 新注册用户，等待管理员分配角色，不允许任何写操作
	RolePendingAssignment Role = "PENDING_ASSIGNMENT"
	// RoleCoordinator 协调员，只能提交待审批事件
	RoleCoordinator Role = "COORDINATOR"
	// RoleSupervisor 主管，可审批事件，受自动审批限额约束
	RoleSupervisor Role = "SUPERVISOR"
	// RoleAdmin 管理员，不受自动审批限额约束
	RoleAdmin Role = "ADMIN"
)

// Valid 校验角色取值
func (r Role) Valid() bool {
	switch r {
	case RolePendingAssignment, RoleCoordinator, RoleSupervisor, RoleAdmin:
		return true
	}
	return false
}

// User 用户（身份由外部服务签发，这里只保存角色与展示信息）
type User struct {
	ID        string    `gorm:"type:uuid;primaryKey" json:"id"`
	Name      string    `gorm:"type:varchar(255)" json:"name"`
	Email     string    `gorm:"type:varchar(255);uniqueIndex" json:"email"`
	Avatar    string    `gorm:"type:text" json:"avatar,omitempty"`
	Role      Role      `gorm:"type:varchar(30);not null;default:'PENDING_ASSIGNMENT';index" json:"role"`
	CreatedAt time.Time `gorm:"not null" json:"createdAt"`
	UpdatedAt time.Time `gorm:"not null" json:"updatedAt"`
}

// BeforeCreate GORM 钩子：创建前设置 ID
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	return nil
}

// TableName 指定表名
func (User) TableName() string {
	return "users"
}
