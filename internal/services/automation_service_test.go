package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"hotelops/internal/config"
	"hotelops/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newAutomationTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	// a single in-memory database shared by every goroutine in the test
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(
		&models.Hotel{},
		&models.User{},
		&models.HotelMember{},
		&models.Room{},
		&models.CleaningDispatch{},
		&models.MaintenanceOrder{},
		&models.LeaveRequest{},
		&models.OpsTask{},
		&models.Notification{},
		&models.Automation{},
		&models.AutomationHotelScope{},
		&models.AutomationRecipient{},
		&models.AutomationRun{},
	); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	if err := models.MigrateAutomationIndexes(db); err != nil {
		t.Fatalf("failed to create automation indexes: %v", err)
	}
	return db
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// testClock is 12:00 on a Monday so a daily 10:00 automation is due.
var testClock = time.Date(2026, 3, 9, 12, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T, db *gorm.DB, registry *CheckRegistry) *AutomationService {
	t.Helper()
	svc := NewAutomationService(db, quietLogger(), registry, nil, NewQueueNotifier(db, quietLogger(), ""), config.SchedulerConfig{
		Timezone:       "UTC",
		HandlerTimeout: 5 * time.Second,
		StaleRunAfter:  10 * time.Minute,
	})
	svc.now = func() time.Time { return testClock }
	return svc
}

var automationSeq int

func dueDailyAutomation(t *testing.T, db *gorm.DB, automationType string) *models.Automation {
	t.Helper()
	automationSeq++
	a := &models.Automation{
		Name:           fmt.Sprintf("test %s %d", automationType, automationSeq),
		AutomationType: automationType,
		ScheduleType:   models.ScheduleDaily,
		ScheduleTime:   "10:00",
		IsActive:       true,
		IsGlobal:       true,
	}
	if err := db.Create(a).Error; err != nil {
		t.Fatalf("failed to insert automation: %v", err)
	}
	return a
}

func countRuns(t *testing.T, db *gorm.DB, automationID uint, status string) int64 {
	t.Helper()
	var n int64
	q := db.Model(&models.AutomationRun{}).Where("automation_id = ?", automationID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if err := q.Count(&n).Error; err != nil {
		t.Fatalf("failed to count runs: %v", err)
	}
	return n
}

func TestRunNow_SuccessUpdatesRunAndAutomation(t *testing.T) {
	db := newAutomationTestDB(t)

	registry := NewCheckRegistry()
	registry.Register("noop", func(_ context.Context, _ *gorm.DB, _ *models.Automation, _ []uint) (*CheckResult, error) {
		return &CheckResult{Status: models.RunStatusSuccess, Message: "all clear"}, nil
	})
	svc := newTestEngine(t, db, registry)
	a := dueDailyAutomation(t, db, "noop")

	outcome := svc.RunNow(context.Background(), a, models.TriggerManual)
	if outcome.Status != models.RunStatusSuccess {
		t.Fatalf("expected success, got %s (%s)", outcome.Status, outcome.Message)
	}
	if outcome.Run == nil || outcome.Run.CompletedAt == nil {
		t.Fatalf("expected a completed run row")
	}
	if outcome.Run.TriggeredBy != models.TriggerManual {
		t.Fatalf("expected manual trigger, got %s", outcome.Run.TriggeredBy)
	}

	var stored models.Automation
	if err := db.First(&stored, a.ID).Error; err != nil {
		t.Fatalf("failed to reload automation: %v", err)
	}
	if stored.LastRunAt == nil || stored.LastRunStatus != models.RunStatusSuccess {
		t.Fatalf("expected last run bookkeeping, got at=%v status=%q", stored.LastRunAt, stored.LastRunStatus)
	}
	if stored.RunCount != 1 {
		t.Fatalf("expected run_count 1, got %d", stored.RunCount)
	}
	if got := countRuns(t, db, a.ID, models.RunStatusRunning); got != 0 {
		t.Fatalf("expected no running rows left, got %d", got)
	}
}

// Scenario: a daily automation already ran today. The cycle check reports
// not due and nothing is written at all.
func TestRunIfDue_NotDueCreatesNoRun(t *testing.T) {
	db := newAutomationTestDB(t)
	svc := newTestEngine(t, db, DefaultCheckRegistry())

	a := dueDailyAutomation(t, db, CheckTasksUnassigned)
	ran := testClock.Add(-time.Hour)
	if err := db.Model(a).Update("last_run_at", ran).Error; err != nil {
		t.Fatalf("failed to set last_run_at: %v", err)
	}
	a.LastRunAt = &ran

	outcome := svc.RunIfDue(context.Background(), a, models.TriggerCycle)
	if outcome.Status != OutcomeNotDue {
		t.Fatalf("expected not_due, got %s (%s)", outcome.Status, outcome.Message)
	}
	if got := countRuns(t, db, a.ID, ""); got != 0 {
		t.Fatalf("expected zero run rows, got %d", got)
	}
}

func TestRunIfDue_ConfigErrorRecordedAsErrorRun(t *testing.T) {
	db := newAutomationTestDB(t)
	svc := newTestEngine(t, db, DefaultCheckRegistry())

	a := &models.Automation{
		Name:           "broken weekly",
		AutomationType: CheckTasksUnassigned,
		ScheduleType:   models.ScheduleWeekly,
		ScheduleTime:   "09:00",
		// ScheduleDays missing
		IsActive: true,
		IsGlobal: true,
	}
	if err := db.Create(a).Error; err != nil {
		t.Fatalf("failed to insert automation: %v", err)
	}

	outcome := svc.RunIfDue(context.Background(), a, models.TriggerCycle)
	if outcome.Status != models.RunStatusError {
		t.Fatalf("expected error outcome, got %s", outcome.Status)
	}
	if !strings.Contains(outcome.Message, "schedule_days") {
		t.Fatalf("expected schedule_days in message, got %q", outcome.Message)
	}
	if got := countRuns(t, db, a.ID, models.RunStatusError); got != 1 {
		t.Fatalf("expected one error run, got %d", got)
	}

	var stored models.Automation
	if err := db.First(&stored, a.ID).Error; err != nil {
		t.Fatalf("failed to reload automation: %v", err)
	}
	if stored.LastRunStatus != models.RunStatusError || stored.RunCount != 1 {
		t.Fatalf("expected attempt to count, got status=%q count=%d", stored.LastRunStatus, stored.RunCount)
	}
}

// Scenario: the configured handler fails. The run ends as error with the
// handler's message, the cycle is unaffected, and the attempt still counts.
func TestRunNow_HandlerError(t *testing.T) {
	db := newAutomationTestDB(t)

	registry := NewCheckRegistry()
	registry.Register("failing", func(_ context.Context, _ *gorm.DB, _ *models.Automation, _ []uint) (*CheckResult, error) {
		return nil, errors.New("upstream database unavailable")
	})
	svc := newTestEngine(t, db, registry)
	a := dueDailyAutomation(t, db, "failing")

	outcome := svc.RunNow(context.Background(), a, models.TriggerManual)
	if outcome.Status != models.RunStatusError {
		t.Fatalf("expected error outcome, got %s", outcome.Status)
	}
	if outcome.Message != "upstream database unavailable" {
		t.Fatalf("unexpected message %q", outcome.Message)
	}

	var run models.AutomationRun
	if err := db.Where("automation_id = ?", a.ID).First(&run).Error; err != nil {
		t.Fatalf("failed to load run: %v", err)
	}
	if run.Status != models.RunStatusError || run.CompletedAt == nil {
		t.Fatalf("expected terminal error run, got status=%q completed=%v", run.Status, run.CompletedAt)
	}
}

func TestRunNow_HandlerPanicBecomesErrorRun(t *testing.T) {
	db := newAutomationTestDB(t)

	registry := NewCheckRegistry()
	registry.Register("panicky", func(_ context.Context, _ *gorm.DB, _ *models.Automation, _ []uint) (*CheckResult, error) {
		panic("nil map write")
	})
	svc := newTestEngine(t, db, registry)
	a := dueDailyAutomation(t, db, "panicky")

	outcome := svc.RunNow(context.Background(), a, models.TriggerManual)
	if outcome.Status != models.RunStatusError {
		t.Fatalf("expected error outcome, got %s", outcome.Status)
	}
	if !strings.Contains(outcome.Message, "handler panic") {
		t.Fatalf("expected panic message, got %q", outcome.Message)
	}
	if got := countRuns(t, db, a.ID, models.RunStatusRunning); got != 0 {
		t.Fatalf("expected no running rows after panic, got %d", got)
	}
}

// Scenario: the automation references a type no handler is registered for.
// The run fails with a clear message and nothing else happens.
func TestRunNow_UnknownAutomationType(t *testing.T) {
	db := newAutomationTestDB(t)
	svc := newTestEngine(t, db, NewCheckRegistry())
	a := dueDailyAutomation(t, db, "room_minibar_audit")

	outcome := svc.RunNow(context.Background(), a, models.TriggerManual)
	if outcome.Status != models.RunStatusError {
		t.Fatalf("expected error outcome, got %s", outcome.Status)
	}
	if outcome.Message != "unknown automation type: room_minibar_audit" {
		t.Fatalf("unexpected message %q", outcome.Message)
	}
	if got := countRuns(t, db, a.ID, models.RunStatusError); got != 1 {
		t.Fatalf("expected one error run, got %d", got)
	}
}

func TestRunNow_HandlerTimeout(t *testing.T) {
	db := newAutomationTestDB(t)

	registry := NewCheckRegistry()
	registry.Register("sleepy", func(ctx context.Context, _ *gorm.DB, _ *models.Automation, _ []uint) (*CheckResult, error) {
		select {
		case <-time.After(2 * time.Second):
			return &CheckResult{Status: models.RunStatusSuccess}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
	svc := newTestEngine(t, db, registry)
	svc.handlerTimeout = 50 * time.Millisecond
	a := dueDailyAutomation(t, db, "sleepy")

	outcome := svc.RunNow(context.Background(), a, models.TriggerManual)
	if outcome.Status != models.RunStatusError {
		t.Fatalf("expected error outcome, got %s", outcome.Status)
	}
	if outcome.Message != "timeout" {
		t.Fatalf("expected timeout message, got %q", outcome.Message)
	}
}

// Scenario: another process already holds the lock. The second attempt writes
// a terminal skipped row, runs no handler, and never touches last_run fields.
func TestRunNow_SkipsWhenAlreadyRunning(t *testing.T) {
	db := newAutomationTestDB(t)

	calls := 0
	registry := NewCheckRegistry()
	registry.Register("counted", func(_ context.Context, _ *gorm.DB, _ *models.Automation, _ []uint) (*CheckResult, error) {
		calls++
		return &CheckResult{Status: models.RunStatusSuccess}, nil
	})
	svc := newTestEngine(t, db, registry)
	a := dueDailyAutomation(t, db, "counted")

	holder := &models.AutomationRun{
		AutomationID: a.ID,
		CycleID:      "other-process",
		StartedAt:    testClock.Add(-time.Minute),
		Status:       models.RunStatusRunning,
		TriggeredBy:  models.TriggerCycle,
	}
	if err := db.Create(holder).Error; err != nil {
		t.Fatalf("failed to insert running row: %v", err)
	}

	outcome := svc.RunNow(context.Background(), a, models.TriggerManual)
	if outcome.Status != models.RunStatusSkipped {
		t.Fatalf("expected skipped, got %s (%s)", outcome.Status, outcome.Message)
	}
	if outcome.Message != "already running" {
		t.Fatalf("unexpected message %q", outcome.Message)
	}
	if calls != 0 {
		t.Fatalf("expected handler not to run, calls=%d", calls)
	}
	if got := countRuns(t, db, a.ID, models.RunStatusSkipped); got != 1 {
		t.Fatalf("expected one skipped audit row, got %d", got)
	}

	var stored models.Automation
	if err := db.First(&stored, a.ID).Error; err != nil {
		t.Fatalf("failed to reload automation: %v", err)
	}
	if stored.LastRunAt != nil || stored.RunCount != 0 {
		t.Fatalf("skip must not touch last_run fields: at=%v count=%d", stored.LastRunAt, stored.RunCount)
	}
}

// Two concurrent manual triggers for the same automation run the handler at
// most once; the loser records a skip.
func TestRunNow_ConcurrentAtMostOnce(t *testing.T) {
	db := newAutomationTestDB(t)

	var mu sync.Mutex
	calls := 0
	release := make(chan struct{})
	started := make(chan struct{})

	registry := NewCheckRegistry()
	registry.Register("blocking", func(_ context.Context, _ *gorm.DB, _ *models.Automation, _ []uint) (*CheckResult, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		close(started)
		<-release
		return &CheckResult{Status: models.RunStatusSuccess, Message: "done"}, nil
	})
	svc := newTestEngine(t, db, registry)
	a := dueDailyAutomation(t, db, "blocking")

	first := make(chan Outcome, 1)
	go func() {
		first <- svc.RunNow(context.Background(), a, models.TriggerManual)
	}()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatalf("first run never started its handler")
	}

	// the first run is inside its handler, still holding the running row
	second := svc.RunNow(context.Background(), a, models.TriggerManual)
	if second.Status != models.RunStatusSkipped {
		t.Fatalf("expected concurrent attempt to skip, got %s (%s)", second.Status, second.Message)
	}

	close(release)
	outcome := <-first
	if outcome.Status != models.RunStatusSuccess {
		t.Fatalf("expected first run to succeed, got %s (%s)", outcome.Status, outcome.Message)
	}

	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Fatalf("expected the handler to run exactly once, ran %d times", calls)
	}
}

func TestAcquireRun_FailsOverStaleRunningRow(t *testing.T) {
	db := newAutomationTestDB(t)
	svc := newTestEngine(t, db, DefaultCheckRegistry())
	a := dueDailyAutomation(t, db, CheckTasksUnassigned)

	stale := &models.AutomationRun{
		AutomationID: a.ID,
		CycleID:      "crashed-process",
		StartedAt:    testClock.Add(-time.Hour),
		Status:       models.RunStatusRunning,
		TriggeredBy:  models.TriggerCycle,
	}
	if err := db.Create(stale).Error; err != nil {
		t.Fatalf("failed to insert stale row: %v", err)
	}

	outcome := svc.RunNow(context.Background(), a, models.TriggerManual)
	if outcome.Status != models.RunStatusSuccess {
		t.Fatalf("expected stale lock to be broken, got %s (%s)", outcome.Status, outcome.Message)
	}

	var old models.AutomationRun
	if err := db.First(&old, stale.ID).Error; err != nil {
		t.Fatalf("failed to reload stale run: %v", err)
	}
	if old.Status != models.RunStatusError || old.Message != "abandoned: run never completed" {
		t.Fatalf("expected stale row failed over, got status=%q message=%q", old.Status, old.Message)
	}
}

// Between the due check and the lock another process may finish a run. The
// fresh post-lock re-check drops the provisional row instead of running twice.
func TestRunIfDue_PostLockRecheck(t *testing.T) {
	db := newAutomationTestDB(t)

	calls := 0
	registry := NewCheckRegistry()
	registry.Register("counted", func(_ context.Context, _ *gorm.DB, _ *models.Automation, _ []uint) (*CheckResult, error) {
		calls++
		return &CheckResult{Status: models.RunStatusSuccess}, nil
	})
	svc := newTestEngine(t, db, registry)
	a := dueDailyAutomation(t, db, "counted")

	// the stored row already ran today; the in-memory copy is stale
	ran := testClock.Add(-30 * time.Minute)
	if err := db.Model(&models.Automation{}).Where("id = ?", a.ID).
		Update("last_run_at", ran).Error; err != nil {
		t.Fatalf("failed to set last_run_at: %v", err)
	}
	a.LastRunAt = nil

	outcome := svc.RunIfDue(context.Background(), a, models.TriggerCycle)
	if outcome.Status != models.RunStatusSkipped || outcome.Message != "no longer due" {
		t.Fatalf("expected no-longer-due skip, got %s (%s)", outcome.Status, outcome.Message)
	}
	if calls != 0 {
		t.Fatalf("expected handler not to run, calls=%d", calls)
	}
	if got := countRuns(t, db, a.ID, ""); got != 0 {
		t.Fatalf("expected provisional row deleted, got %d rows", got)
	}
}

func TestRunCycle_IsolatesFailuresAndCounts(t *testing.T) {
	db := newAutomationTestDB(t)

	registry := NewCheckRegistry()
	registry.Register("ok", func(_ context.Context, _ *gorm.DB, _ *models.Automation, _ []uint) (*CheckResult, error) {
		return &CheckResult{Status: models.RunStatusSuccess}, nil
	})
	registry.Register("boom", func(_ context.Context, _ *gorm.DB, _ *models.Automation, _ []uint) (*CheckResult, error) {
		return nil, errors.New("boom")
	})
	svc := newTestEngine(t, db, registry)

	good := dueDailyAutomation(t, db, "ok")
	dueDailyAutomation(t, db, "boom")

	notDue := dueDailyAutomation(t, db, "ok")
	ran := testClock.Add(-time.Hour)
	if err := db.Model(notDue).Update("last_run_at", ran).Error; err != nil {
		t.Fatalf("failed to set last_run_at: %v", err)
	}

	locked := dueDailyAutomation(t, db, "ok")
	if err := db.Create(&models.AutomationRun{
		AutomationID: locked.ID,
		StartedAt:    testClock.Add(-time.Minute),
		Status:       models.RunStatusRunning,
		TriggeredBy:  models.TriggerCycle,
	}).Error; err != nil {
		t.Fatalf("failed to insert running row: %v", err)
	}

	inactive := &models.Automation{
		Name:           "disabled",
		AutomationType: "ok",
		ScheduleType:   models.ScheduleDaily,
		ScheduleTime:   "10:00",
		IsActive:       false,
	}
	if err := db.Create(inactive).Error; err != nil {
		t.Fatalf("failed to insert inactive automation: %v", err)
	}

	report := svc.RunCycle(context.Background(), models.TriggerCycle)
	if report.CycleID == "" {
		t.Fatalf("expected a cycle id")
	}
	if report.Checked != 4 {
		t.Fatalf("expected 4 active automations checked, got %d", report.Checked)
	}
	if report.Executed != 1 || report.Errored != 1 || report.Skipped != 1 {
		t.Fatalf("unexpected report: executed=%d errored=%d skipped=%d",
			report.Executed, report.Errored, report.Skipped)
	}

	// every run from this pass shares the cycle id
	var n int64
	if err := db.Model(&models.AutomationRun{}).
		Where("cycle_id = ?", report.CycleID).Count(&n).Error; err != nil {
		t.Fatalf("failed to count cycle runs: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 runs tagged with the cycle id, got %d", n)
	}

	var storedGood models.Automation
	if err := db.First(&storedGood, good.ID).Error; err != nil {
		t.Fatalf("failed to reload automation: %v", err)
	}
	if storedGood.LastRunStatus != models.RunStatusSuccess {
		t.Fatalf("expected successful automation unaffected by its neighbor, got %q", storedGood.LastRunStatus)
	}
}

func TestRunNow_NotificationsQueuedForFindings(t *testing.T) {
	db := newAutomationTestDB(t)

	hotel := &models.Hotel{Name: "Harbor View", Code: "HV", Active: true}
	if err := db.Create(hotel).Error; err != nil {
		t.Fatalf("failed to insert hotel: %v", err)
	}
	manager := &models.User{Username: "mei", Email: "mei@example.com", Name: "Mei", Role: "manager", Status: "active"}
	if err := db.Create(manager).Error; err != nil {
		t.Fatalf("failed to insert user: %v", err)
	}
	if err := db.Create(&models.HotelMember{HotelID: hotel.ID, UserID: manager.ID}).Error; err != nil {
		t.Fatalf("failed to insert membership: %v", err)
	}

	registry := NewCheckRegistry()
	registry.Register("finds", func(_ context.Context, _ *gorm.DB, _ *models.Automation, hotelIDs []uint) (*CheckResult, error) {
		result := &CheckResult{Status: models.RunStatusSuccess}
		for _, id := range hotelIDs {
			result.Findings = append(result.Findings, Finding{
				HotelID: id,
				Count:   2,
				Detail:  fmt.Sprintf("2 issues at hotel %d", id),
			})
			result.AffectedCount++
		}
		return result, nil
	})
	svc := newTestEngine(t, db, registry)
	a := dueDailyAutomation(t, db, "finds")
	if err := db.Create(&models.AutomationRecipient{
		AutomationID:   a.ID,
		RecipientType:  "role",
		RecipientValue: "manager",
		Channels:       "in_app,email",
	}).Error; err != nil {
		t.Fatalf("failed to insert recipient: %v", err)
	}

	outcome := svc.RunNow(context.Background(), a, models.TriggerManual)
	if outcome.Status != models.RunStatusSuccess {
		t.Fatalf("expected success, got %s (%s)", outcome.Status, outcome.Message)
	}
	if outcome.AffectedCount != 1 {
		t.Fatalf("expected one affected hotel, got %d", outcome.AffectedCount)
	}

	var notifications []models.Notification
	if err := db.Find(&notifications).Error; err != nil {
		t.Fatalf("failed to load notifications: %v", err)
	}
	if len(notifications) != 2 {
		t.Fatalf("expected in_app + email notifications, got %d", len(notifications))
	}
	for _, n := range notifications {
		if n.Subject != a.Name {
			t.Fatalf("expected subject %q, got %q", a.Name, n.Subject)
		}
		if n.Status != "queued" {
			t.Fatalf("expected queued status, got %q", n.Status)
		}
	}
}

func TestScopeHotelIDs(t *testing.T) {
	db := newAutomationTestDB(t)
	svc := newTestEngine(t, db, DefaultCheckRegistry())

	h1 := &models.Hotel{Name: "One", Code: "H1", Active: true}
	h2 := &models.Hotel{Name: "Two", Code: "H2", Active: true}
	h3 := &models.Hotel{Name: "Closed", Code: "H3", Active: false}
	for _, h := range []*models.Hotel{h1, h2, h3} {
		if err := db.Create(h).Error; err != nil {
			t.Fatalf("failed to insert hotel: %v", err)
		}
	}

	global := dueDailyAutomation(t, db, CheckTasksUnassigned)
	// h2 opted out of the global automation
	if err := db.Create(&models.AutomationHotelScope{
		AutomationID: global.ID, HotelID: h2.ID, IsActive: false,
	}).Error; err != nil {
		t.Fatalf("failed to insert scope: %v", err)
	}

	ids, err := svc.scopeHotelIDs(context.Background(), global)
	if err != nil {
		t.Fatalf("scopeHotelIDs error: %v", err)
	}
	if len(ids) != 1 || ids[0] != h1.ID {
		t.Fatalf("expected global scope [%d], got %v", h1.ID, ids)
	}

	scoped := &models.Automation{
		Name:           "scoped",
		AutomationType: CheckTasksUnassigned,
		ScheduleType:   models.ScheduleDaily,
		ScheduleTime:   "10:00",
		IsActive:       true,
		IsGlobal:       false,
	}
	if err := db.Create(scoped).Error; err != nil {
		t.Fatalf("failed to insert automation: %v", err)
	}
	if err := db.Create(&models.AutomationHotelScope{
		AutomationID: scoped.ID, HotelID: h2.ID, IsActive: true,
	}).Error; err != nil {
		t.Fatalf("failed to insert scope: %v", err)
	}

	ids, err = svc.scopeHotelIDs(context.Background(), scoped)
	if err != nil {
		t.Fatalf("scopeHotelIDs error: %v", err)
	}
	if len(ids) != 1 || ids[0] != h2.ID {
		t.Fatalf("expected scoped [%d], got %v", h2.ID, ids)
	}
}

func TestListRuns_NewestFirstWithLimit(t *testing.T) {
	db := newAutomationTestDB(t)
	svc := newTestEngine(t, db, DefaultCheckRegistry())
	a := dueDailyAutomation(t, db, CheckTasksUnassigned)

	for i := 0; i < 5; i++ {
		started := testClock.Add(time.Duration(i) * time.Minute)
		if err := db.Create(&models.AutomationRun{
			AutomationID: a.ID,
			StartedAt:    started,
			CompletedAt:  &started,
			Status:       models.RunStatusSuccess,
			TriggeredBy:  models.TriggerCycle,
		}).Error; err != nil {
			t.Fatalf("failed to insert run: %v", err)
		}
	}

	runs, err := svc.ListRuns(context.Background(), a.ID, 3)
	if err != nil {
		t.Fatalf("ListRuns error: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("expected limit of 3, got %d", len(runs))
	}
	for i := 1; i < len(runs); i++ {
		if runs[i].StartedAt.After(runs[i-1].StartedAt) {
			t.Fatalf("expected newest first ordering")
		}
	}
}

func TestRunAutomation_NotFound(t *testing.T) {
	db := newAutomationTestDB(t)
	svc := newTestEngine(t, db, DefaultCheckRegistry())

	_, err := svc.RunAutomation(context.Background(), 9999, models.TriggerAPI)
	if !errors.Is(err, ErrAutomationNotFound) {
		t.Fatalf("expected ErrAutomationNotFound, got %v", err)
	}
}

func TestSeedDefaultAutomations_Idempotent(t *testing.T) {
	db := newAutomationTestDB(t)
	svc := newTestEngine(t, db, DefaultCheckRegistry())

	if err := svc.SeedDefaultAutomations(context.Background()); err != nil {
		t.Fatalf("seed error: %v", err)
	}
	if err := svc.SeedDefaultAutomations(context.Background()); err != nil {
		t.Fatalf("second seed error: %v", err)
	}

	var n int64
	if err := db.Model(&models.Automation{}).Count(&n).Error; err != nil {
		t.Fatalf("failed to count automations: %v", err)
	}
	if n != 4 {
		t.Fatalf("expected 4 seeded automations, got %d", n)
	}

	// every seeded type resolves in the default registry
	var automations []models.Automation
	if err := db.Find(&automations).Error; err != nil {
		t.Fatalf("failed to load automations: %v", err)
	}
	registry := DefaultCheckRegistry()
	for _, a := range automations {
		if _, ok := registry.Lookup(a.AutomationType); !ok {
			t.Fatalf("seeded type %q has no registered check", a.AutomationType)
		}
	}
}
