package event

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"backend/internal/logger"
	"backend/internal/notification"
	"backend/internal/user"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeCalendar struct {
	mu        sync.Mutex
	busy      bool
	createErr error
	updateErr error
	deleteErr error
	nextID    int
	created   []string
	updated   []string
	deleted   []string
}

func (f *fakeCalendar) Create(ctx context.Context, ev *Event) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return "", f.createErr
	}
	f.nextID++
	id := fmt.Sprintf("ext-%d", f.nextID)
	f.created = append(f.created, ev.ID)
	return id, nil
}

func (f *fakeCalendar) Update(ctx context.Context, externalID string, ev *Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updated = append(f.updated, externalID)
	return f.updateErr
}

func (f *fakeCalendar) Delete(ctx context.Context, externalID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, externalID)
	return f.deleteErr
}

func (f *fakeCalendar) QueryBusy(ctx context.Context, start, end time.Time) bool {
	return f.busy
}

type sentNotification struct {
	target  notification.Target
	typ     string
	message string
}

type sentEmail struct {
	to       string
	template string
}

type fakeNotifier struct {
	mu            sync.Mutex
	notifications []sentNotification
	emails        []sentEmail
}

func (f *fakeNotifier) Notify(target notification.Target, typ, message string, data map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notifications = append(f.notifications, sentNotification{target: target, typ: typ, message: message})
}

func (f *fakeNotifier) EnqueueEmail(to, subject, templateName string, tmplCtx map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.emails = append(f.emails, sentEmail{to: to, template: templateName})
}

type recordedAction struct {
	userID string
	action string
}

type fakeAudit struct {
	mu      sync.Mutex
	actions []recordedAction
}

func (f *fakeAudit) Record(ctx context.Context, userID, action, entityType, entityID string, metadata map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions = append(f.actions, recordedAction{userID: userID, action: action})
}

func (f *fakeAudit) lastAction() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.actions) == 0 {
		return ""
	}
	return f.actions[len(f.actions)-1].action
}

type testEnv struct {
	db       *gorm.DB
	svc      *Service
	calendar *fakeCalendar
	notifier *fakeNotifier
	audit    *fakeAudit
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	_ = logger.Init("error", "console", "stderr")

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&user.User{}, &Event{}))

	seedUsers := []user.User{
		{ID: "coord", Name: "Coordenador", Email: "coord@example.com", Role: user.RoleCoordinator},
		{ID: "sup", Name: "Supervisor", Email: "sup@example.com", Role: user.RoleSupervisor},
		{ID: "adm", Name: "Admin", Email: "adm@example.com", Role: user.RoleAdmin},
		{ID: "newbie", Name: "Novo", Email: "newbie@example.com", Role: user.RolePendingAssignment},
	}
	for i := range seedUsers {
		require.NoError(t, db.Create(&seedUsers[i]).Error)
	}

	cal := &fakeCalendar{}
	notifier := &fakeNotifier{}
	recorder := &fakeAudit{}
	return &testEnv{
		db:       db,
		svc:      NewService(db, cal, notifier, recorder),
		calendar: cal,
		notifier: notifier,
		audit:    recorder,
	}
}

func coordinator() Principal {
	return Principal{ID: "coord", Email: "coord@example.com", Role: user.RoleCoordinator}
}

func supervisor() Principal {
	return Principal{ID: "sup", Email: "sup@example.com", Role: user.RoleSupervisor}
}

func admin() Principal {
	return Principal{ID: "adm", Email: "adm@example.com", Role: user.RoleAdmin}
}

func baseInput(days float64) CreateEventInput {
	start := time.Now().Add(24 * time.Hour)
	return CreateEventInput{
		Title:     "Reunião de equipe",
		StartDate: start,
		EndDate:   start.Add(time.Duration(days*24) * time.Hour),
		EventType: TypeReuniao,
	}
}

func TestCreateEventValidation(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	input := baseInput(1)
	input.Title = "ab"
	_, err := env.svc.CreateEvent(ctx, coordinator(), input)
	require.ErrorIs(t, err, ErrValidation)

	input = baseInput(1)
	input.EndDate = input.StartDate.Add(-time.Hour)
	_, err = env.svc.CreateEvent(ctx, coordinator(), input)
	require.ErrorIs(t, err, ErrValidation)

	input = baseInput(1)
	input.EventType = Type("FESTA")
	_, err = env.svc.CreateEvent(ctx, coordinator(), input)
	require.ErrorIs(t, err, ErrValidation)
}

func TestCreateEventPendingAssignmentForbidden(t *testing.T) {
	env := setupTestEnv(t)
	p := Principal{ID: "newbie", Email: "newbie@example.com", Role: user.RolePendingAssignment}
	_, err := env.svc.CreateEvent(context.Background(), p, baseInput(1))
	require.ErrorIs(t, err, ErrForbidden)
}

func TestCreateEventCoordinatorAlwaysPending(t *testing.T) {
	env := setupTestEnv(t)
	input := baseInput(1)
	input.RequestedStatus = StatusApproved // 协调员的意向被忽略

	result, err := env.svc.CreateEvent(context.Background(), coordinator(), input)
	require.NoError(t, err)
	require.Equal(t, StatusPending, result.Event.Status)
	require.Nil(t, result.Event.ApprovedByID)

	// 协调员提交后广播给主管角色频道
	require.Len(t, env.notifier.notifications, 1)
	require.Equal(t, string(user.RoleSupervisor), env.notifier.notifications[0].target.Role)
	require.Equal(t, notification.TypeNewEventFromCoordinator, env.notifier.notifications[0].typ)
}

func TestCreateEventAdminAutoApproved(t *testing.T) {
	env := setupTestEnv(t)
	input := baseInput(45) // 管理员不受跨度限制
	input.RequestedStatus = StatusApproved

	result, err := env.svc.CreateEvent(context.Background(), admin(), input)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, result.Event.Status)
	require.NotNil(t, result.Event.ApprovedByID)
	require.Equal(t, "adm", *result.Event.ApprovedByID)
	require.NotNil(t, result.Event.ExternalCalendarEventID)
	require.Equal(t, "CREATE_AUTO_APPROVED", env.audit.lastAction())
	require.Len(t, env.notifier.emails, 1)
	require.Equal(t, "event_auto_approved", env.notifier.emails[0].template)
}

func TestCreateEventSupervisorDurationDegradesToPending(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	input := baseInput(45)
	input.RequestedStatus = StatusApproved
	result, err := env.svc.CreateEvent(ctx, supervisor(), input)
	require.NoError(t, err)
	require.Equal(t, StatusPending, result.Event.Status)
	require.Contains(t, result.WarningText(), "30")

	// VISITA 豁免跨度限制
	input = baseInput(45)
	input.Title = "Visita técnica"
	input.EventType = TypeVisita
	input.RequestedStatus = StatusApproved
	result, err = env.svc.CreateEvent(ctx, supervisor(), input)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, result.Event.Status)
}

func seedSelfApprovedToday(t *testing.T, db *gorm.DB, n int) {
	t.Helper()
	sup := "sup"
	for i := 0; i < n; i++ {
		start := time.Now().Add(time.Duration(i+1) * time.Hour)
		ev := &Event{
			Title:        fmt.Sprintf("Reunião %d", i),
			StartDate:    start,
			EndDate:      start.Add(time.Hour),
			EventType:    TypeReuniao,
			Status:       StatusApproved,
			CreatedByID:  sup,
			ApprovedByID: &sup,
		}
		require.NoError(t, db.Create(ev).Error)
	}
}

func TestCreateEventQuotaDegradesToPending(t *testing.T) {
	env := setupTestEnv(t)
	seedSelfApprovedToday(t, env.db, 5)

	input := baseInput(1)
	input.RequestedStatus = StatusApproved
	result, err := env.svc.CreateEvent(context.Background(), supervisor(), input)
	require.NoError(t, err)
	require.Equal(t, StatusPending, result.Event.Status)
	require.Contains(t, result.WarningText(), "上限")
}

func TestApproveEventNotPending(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	input := baseInput(1)
	input.RequestedStatus = StatusApproved
	created, err := env.svc.CreateEvent(ctx, admin(), input)
	require.NoError(t, err)

	_, err = env.svc.ApproveEvent(ctx, supervisor(), created.Event.ID, false)
	require.ErrorIs(t, err, ErrNotPending)

	var stored Event
	require.NoError(t, env.db.First(&stored, "id = ?", created.Event.ID).Error)
	require.Equal(t, StatusApproved, stored.Status)
	require.Equal(t, "adm", *stored.ApprovedByID)
}

func TestApproveEventSequentialSecondLoses(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	created, err := env.svc.CreateEvent(ctx, coordinator(), baseInput(1))
	require.NoError(t, err)

	_, err = env.svc.ApproveEvent(ctx, supervisor(), created.Event.ID, false)
	require.NoError(t, err)
	_, err = env.svc.ApproveEvent(ctx, admin(), created.Event.ID, false)
	require.ErrorIs(t, err, ErrNotPending)

	var stored Event
	require.NoError(t, env.db.First(&stored, "id = ?", created.Event.ID).Error)
	require.Equal(t, "sup", *stored.ApprovedByID)
}

func TestApproveEventSelfQuotaHardFails(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	seedSelfApprovedToday(t, env.db, 5)

	created, err := env.svc.CreateEvent(ctx, supervisor(), baseInput(1))
	require.NoError(t, err)
	require.Equal(t, StatusPending, created.Event.Status)

	_, err = env.svc.ApproveEvent(ctx, supervisor(), created.Event.ID, false)
	require.ErrorIs(t, err, ErrQuotaExceeded)

	var stored Event
	require.NoError(t, env.db.First(&stored, "id = ?", created.Event.ID).Error)
	require.Equal(t, StatusPending, stored.Status)
}

func TestApproveEventSelfDurationHardFails(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	created, err := env.svc.CreateEvent(ctx, supervisor(), baseInput(45))
	require.NoError(t, err)

	_, err = env.svc.ApproveEvent(ctx, supervisor(), created.Event.ID, false)
	require.ErrorIs(t, err, ErrDurationExceeded)
}

func TestApproveEventOtherNotifiesCreator(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	created, err := env.svc.CreateEvent(ctx, coordinator(), baseInput(1))
	require.NoError(t, err)
	env.notifier.notifications = nil

	result, err := env.svc.ApproveEvent(ctx, supervisor(), created.Event.ID, true)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, result.Event.Status)
	require.NotNil(t, result.Event.ExternalCalendarEventID)
	require.Equal(t, "APPROVE_OTHER", env.audit.lastAction())

	require.Len(t, env.notifier.notifications, 1)
	require.Equal(t, "coord", env.notifier.notifications[0].target.UserID)
	require.Len(t, env.notifier.emails, 1)
	require.Equal(t, "coord@example.com", env.notifier.emails[0].to)
	require.Equal(t, "event_approved", env.notifier.emails[0].template)
}

func TestApproveEventCalendarFailureDegrades(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	env.calendar.createErr = errors.New("calendar down")

	created, err := env.svc.CreateEvent(ctx, coordinator(), baseInput(1))
	require.NoError(t, err)

	result, err := env.svc.ApproveEvent(ctx, supervisor(), created.Event.ID, false)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, result.Event.Status)
	require.Nil(t, result.Event.ExternalCalendarEventID)
	require.Contains(t, result.WarningText(), "日历")
}

func TestBusyCheckNeverBlocks(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	env.calendar.busy = true

	created, err := env.svc.CreateEvent(ctx, coordinator(), baseInput(1))
	require.NoError(t, err)
	require.Contains(t, created.WarningText(), "冲突")

	result, err := env.svc.ApproveEvent(ctx, supervisor(), created.Event.ID, false)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, result.Event.Status)
	require.Contains(t, result.WarningText(), "冲突")
}

func TestRejectEventRequiresReason(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	created, err := env.svc.CreateEvent(ctx, coordinator(), baseInput(1))
	require.NoError(t, err)

	_, err = env.svc.RejectEvent(ctx, supervisor(), created.Event.ID, "  ", false)
	require.ErrorIs(t, err, ErrRejectReasonEmpty)
}

func TestRejectEventAppendsReasonAndClearsExternalID(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	input := baseInput(1)
	input.Description = "Descrição original"
	input.RequestedStatus = StatusApproved
	created, err := env.svc.CreateEvent(ctx, admin(), input)
	require.NoError(t, err)
	externalID := *created.Event.ExternalCalendarEventID

	result, err := env.svc.RejectEvent(ctx, supervisor(), created.Event.ID, "conflito de agenda", true)
	require.NoError(t, err)
	require.Equal(t, StatusRejected, result.Event.Status)
	require.Contains(t, result.Event.Description, "Descrição original")
	require.Contains(t, result.Event.Description, "conflito de agenda")

	var stored Event
	require.NoError(t, env.db.First(&stored, "id = ?", created.Event.ID).Error)
	require.Nil(t, stored.ExternalCalendarEventID)
	require.Contains(t, env.calendar.deleted, externalID)
	require.Equal(t, "REJECT", env.audit.lastAction())
	require.Len(t, env.notifier.emails, 2) // 自动审批邮件 + 拒绝邮件
	require.Equal(t, "event_rejected", env.notifier.emails[1].template)
}

// 拒绝不校验当前状态，与审批的守护条件不对称
func TestRejectEventAllowedFromAnyStatus(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	input := baseInput(1)
	input.RequestedStatus = StatusApproved
	created, err := env.svc.CreateEvent(ctx, admin(), input)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, created.Event.Status)

	result, err := env.svc.RejectEvent(ctx, supervisor(), created.Event.ID, "cancelado", false)
	require.NoError(t, err)
	require.Equal(t, StatusRejected, result.Event.Status)
}

func TestDeleteEventPermissionMatrix(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	// 主管不能删除已审批事件，管理员可以
	input := baseInput(1)
	input.RequestedStatus = StatusApproved
	approved, err := env.svc.CreateEvent(ctx, admin(), input)
	require.NoError(t, err)

	err = env.svc.DeleteEvent(ctx, supervisor(), approved.Event.ID)
	require.ErrorIs(t, err, ErrForbidden)
	require.NoError(t, env.svc.DeleteEvent(ctx, admin(), approved.Event.ID))

	// 创建者可以删除自己的待审批事件
	pending, err := env.svc.CreateEvent(ctx, coordinator(), baseInput(1))
	require.NoError(t, err)
	require.NoError(t, env.svc.DeleteEvent(ctx, coordinator(), pending.Event.ID))

	// 非创建者的协调员不能删除
	other, err := env.svc.CreateEvent(ctx, supervisor(), baseInput(1))
	require.NoError(t, err)
	err = env.svc.DeleteEvent(ctx, coordinator(), other.Event.ID)
	require.ErrorIs(t, err, ErrForbidden)
}

func TestDeleteEventSwallowsCalendarFailure(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	env.calendar.deleteErr = errors.New("provider error")

	input := baseInput(1)
	input.RequestedStatus = StatusApproved
	created, err := env.svc.CreateEvent(ctx, admin(), input)
	require.NoError(t, err)

	require.NoError(t, env.svc.DeleteEvent(ctx, admin(), created.Event.ID))
	var count int64
	require.NoError(t, env.db.Model(&Event{}).Where("id = ?", created.Event.ID).Count(&count).Error)
	require.Zero(t, count)
}

func TestUpdateEventSyncsApproved(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	input := baseInput(1)
	input.RequestedStatus = StatusApproved
	created, err := env.svc.CreateEvent(ctx, admin(), input)
	require.NoError(t, err)
	externalID := *created.Event.ExternalCalendarEventID

	title := "Título atualizado"
	result, err := env.svc.UpdateEvent(ctx, supervisor(), created.Event.ID, UpdateEventInput{Title: &title})
	require.NoError(t, err)
	require.Equal(t, "Título atualizado", result.Event.Title)
	require.Contains(t, env.calendar.updated, externalID)

	_, err = env.svc.UpdateEvent(ctx, coordinator(), created.Event.ID, UpdateEventInput{Title: &title})
	require.ErrorIs(t, err, ErrForbidden)
}
