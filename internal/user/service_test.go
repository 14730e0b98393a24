package user

import (
	"context"
	"fmt"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupUserTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&User{}))
	return db
}

func TestGetUserNotFound(t *testing.T) {
	svc := NewService(setupUserTestDB(t))
	_, err := svc.GetUser(context.Background(), "missing")
	require.ErrorIs(t, err, ErrUserNotFound)
}

func TestUpdateRole(t *testing.T) {
	db := setupUserTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	u := &User{ID: "u1", Name: "Ana", Email: "ana@example.com", Role: RoleCoordinator}
	require.NoError(t, db.Create(u).Error)

	updated, err := svc.UpdateRole(ctx, "u1", RoleSupervisor)
	require.NoError(t, err)
	require.Equal(t, RoleSupervisor, updated.Role)

	var stored User
	require.NoError(t, db.First(&stored, "id = ?", "u1").Error)
	require.Equal(t, RoleSupervisor, stored.Role)
}

func TestUpdateRoleInvalid(t *testing.T) {
	svc := NewService(setupUserTestDB(t))
	_, err := svc.UpdateRole(context.Background(), "u1", Role("SUPERUSER"))
	require.ErrorIs(t, err, ErrInvalidRole)
}

func TestUpdateRoleBlocksDirectAdminPromotion(t *testing.T) {
	db := setupUserTestDB(t)
	svc := NewService(db)
	ctx := context.Background()

	u := &User{ID: "u2", Name: "Bruno", Email: "bruno@example.com", Role: RolePendingAssignment}
	require.NoError(t, db.Create(u).Error)

	_, err := svc.UpdateRole(ctx, "u2", RoleAdmin)
	require.ErrorIs(t, err, ErrDirectAdminPromotion)

	// 先分配普通角色，再晋升
	_, err = svc.UpdateRole(ctx, "u2", RoleCoordinator)
	require.NoError(t, err)
	_, err = svc.UpdateRole(ctx, "u2", RoleAdmin)
	require.NoError(t, err)
}

func TestCountByRole(t *testing.T) {
	db := setupUserTestDB(t)
	svc := NewService(db)

	seed := []User{
		{ID: "a", Name: "A", Email: "a@example.com", Role: RoleCoordinator},
		{ID: "b", Name: "B", Email: "b@example.com", Role: RoleCoordinator},
		{ID: "c", Name: "C", Email: "c@example.com", Role: RoleAdmin},
	}
	for i := range seed {
		require.NoError(t, db.Create(&seed[i]).Error)
	}

	counts, err := svc.CountByRole(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 2, counts[string(RoleCoordinator)])
	require.EqualValues(t, 1, counts[string(RoleAdmin)])
}
