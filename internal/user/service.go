package user

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

var (
	ErrUserNotFound = errors.New("用户不存在")
	ErrInvalidRole  = errors.New("无效的角色")
	// ErrDirectAdminPromotion 待分配用户不能直接晋升为管理员
	ErrDirectAdminPromotion = errors.New("待分配用户不能直接晋升为管理员，请先分配其他角色")
)

// Service 用户管理服务
type Service struct {
	db *gorm.DB
}

// NewService 创建服务
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// GetUser 按 ID 查询用户
func (s *Service) GetUser(ctx context.Context, id string) (*User, error) {
	var u User
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

// ListUsers 获取全部用户（管理后台），按姓名排序
func (s *Service) ListUsers(ctx context.Context) ([]User, error) {
	var users []User
	if err := s.db.WithContext(ctx).Order("name ASC").Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

// UpdateRole 修改用户角色。
// 待分配（PENDING_ASSIGNMENT）用户不能一步到位提升为 ADMIN。
func (s *Service) UpdateRole(ctx context.Context, userID string, role Role) (*User, error) {
	if !role.Valid() {
		return nil, ErrInvalidRole
	}

	u, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	if u.Role == RolePendingAssignment && role == RoleAdmin {
		return nil, ErrDirectAdminPromotion
	}

	if err := s.db.WithContext(ctx).Model(&User{}).
		Where("id = ?", userID).
		Update("role", role).Error; err != nil {
		return nil, err
	}

	u.Role = role
	return u, nil
}

// CountByRole 按角色统计用户数（管理后台统计图）
func (s *Service) CountByRole(ctx context.Context) (map[string]int64, error) {
	type roleCount struct {
		Role  string
		Count int64
	}
	var rows []roleCount
	if err := s.db.WithContext(ctx).Model(&User{}).
		Select("role, COUNT(*) AS count").
		Group("role").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	counts := make(map[string]int64, len(rows))
	for _, r := range rows {
		counts[r.Role] = r.Count
	}
	return counts, nil
}
