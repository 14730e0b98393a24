package audit

import (
	"context"
	"fmt"
	"testing"

	"backend/internal/logger"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupRecorder(t *testing.T) (*Recorder, *gorm.DB) {
	t.Helper()
	_ = logger.Init("error", "console", "stderr")

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&Log{}))
	return NewRecorder(db, zap.NewNop()), db
}

func TestRecordWritesEntry(t *testing.T) {
	recorder, db := setupRecorder(t)
	ctx := context.Background()

	recorder.Record(ctx, "u1", ActionApproveOther, EntityTypeEvent, "e1", map[string]any{"k": "v"})

	var logs []Log
	require.NoError(t, db.Find(&logs).Error)
	require.Len(t, logs, 1)
	require.Equal(t, "u1", logs[0].UserID)
	require.Equal(t, ActionApproveOther, logs[0].Action)
	require.Equal(t, EntityTypeEvent, logs[0].EntityType)
	require.Equal(t, "e1", logs[0].EntityID)
	require.False(t, logs[0].Timestamp.IsZero())
}

// 审计失败只记日志，不影响调用方
func TestRecordSwallowsWriteFailure(t *testing.T) {
	recorder, db := setupRecorder(t)
	require.NoError(t, db.Migrator().DropTable(&Log{}))

	require.NotPanics(t, func() {
		recorder.Record(context.Background(), "u1", ActionReject, EntityTypeEvent, "e1", nil)
	})
}

func TestCountByAction(t *testing.T) {
	recorder, _ := setupRecorder(t)
	ctx := context.Background()

	recorder.Record(ctx, "u1", ActionCreatePending, EntityTypeEvent, "e1", nil)
	recorder.Record(ctx, "u1", ActionCreatePending, EntityTypeEvent, "e2", nil)
	recorder.Record(ctx, "u2", ActionReject, EntityTypeEvent, "e1", nil)

	counts, err := recorder.CountByAction(ctx)
	require.NoError(t, err)

	byAction := map[string]int64{}
	for _, c := range counts {
		byAction[c.Action] = c.Count
	}
	require.EqualValues(t, 2, byAction[ActionCreatePending])
	require.EqualValues(t, 1, byAction[ActionReject])
}
