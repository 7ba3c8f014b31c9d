package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"hotelops/internal/config"
	"hotelops/internal/metrics"
	"hotelops/internal/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

var (
	ErrAutomationNotFound = errors.New("automation not found")
)

// OutcomeNotDue is reported when the due check fails before any run row is
// created. It is not a run status; no audit row exists for it.
const OutcomeNotDue = "not_due"

// Outcome is the result of one execution attempt.
type Outcome struct {
	Status        string                `json:"status"`
	Message       string                `json:"message"`
	AffectedCount int                   `json:"affected_count"`
	Run           *models.AutomationRun `json:"run,omitempty"`
}

// CycleReport summarizes one pass over all active automations.
type CycleReport struct {
	CycleID   string        `json:"cycle_id"`
	Checked   int           `json:"checked"`
	Executed  int           `json:"executed"`
	Skipped   int           `json:"skipped"`
	Errored   int           `json:"errored"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// AutomationService 自动化引擎：到期判定、互斥执行、通知分发与运行审计
type AutomationService struct {
	db         *gorm.DB
	logger     *logrus.Logger
	tracer     trace.Tracer
	registry   *CheckRegistry
	recipients *RecipientService
	notifier   Notifier

	loc            *time.Location
	handlerTimeout time.Duration
	staleRunAfter  time.Duration

	// now is the engine clock in the deployment timezone; tests override it.
	now func() time.Time
}

// NewAutomationService 创建自动化引擎
func NewAutomationService(db *gorm.DB, logger *logrus.Logger, registry *CheckRegistry,
	recipients *RecipientService, notifier Notifier, cfg config.SchedulerConfig) *AutomationService {

	if logger == nil {
		logger = logrus.New()
	}
	if registry == nil {
		registry = DefaultCheckRegistry()
	}
	if recipients == nil {
		recipients = NewRecipientService(db, logger)
	}
	if notifier == nil {
		notifier = NewLogNotifier(logger)
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil || cfg.Timezone == "" {
		if cfg.Timezone != "" {
			logger.Warnf("automation: invalid timezone %q, using UTC", cfg.Timezone)
		}
		loc = time.UTC
	}
	handlerTimeout := cfg.HandlerTimeout
	if handlerTimeout <= 0 {
		handlerTimeout = 60 * time.Second
	}
	staleRunAfter := cfg.StaleRunAfter
	if staleRunAfter <= 0 {
		staleRunAfter = 10 * time.Minute
	}

	return &AutomationService{
		db:             db,
		logger:         logger,
		tracer:         otel.Tracer("hotelops.automation"),
		registry:       registry,
		recipients:     recipients,
		notifier:       notifier,
		loc:            loc,
		handlerTimeout: handlerTimeout,
		staleRunAfter:  staleRunAfter,
		now:            func() time.Time { return time.Now().In(loc) },
	}
}

// Location returns the deployment timezone all due computations use.
func (s *AutomationService) Location() *time.Location {
	return s.loc
}

// RunCycle evaluates every active automation once and executes the due ones.
// A single automation's failure never aborts the cycle.
func (s *AutomationService) RunCycle(ctx context.Context, trigger string) *CycleReport {
	ctx, span := s.tracer.Start(ctx, "automation.run_cycle")
	defer span.End()

	report := &CycleReport{CycleID: uuid.NewString(), StartedAt: s.now()}
	span.SetAttributes(attribute.String("cycle.id", report.CycleID))

	var automations []models.Automation
	if err := s.db.WithContext(ctx).Where("is_active = ?", true).Find(&automations).Error; err != nil {
		span.RecordError(err)
		s.logger.Errorf("automation: load active automations: %v", err)
		return report
	}

	for i := range automations {
		a := automations[i]
		report.Checked++
		outcome := s.safeRun(ctx, &a, trigger, report.CycleID, true)
		switch outcome.Status {
		case models.RunStatusSuccess, models.RunStatusPartial:
			report.Executed++
		case models.RunStatusError:
			report.Errored++
		case models.RunStatusSkipped:
			report.Skipped++
		}
	}

	report.Duration = time.Since(report.StartedAt)
	metrics.IncCycle()
	span.SetAttributes(
		attribute.Int("cycle.checked", report.Checked),
		attribute.Int("cycle.executed", report.Executed),
		attribute.Int("cycle.skipped", report.Skipped),
		attribute.Int("cycle.errored", report.Errored),
	)
	s.logger.Infof("automation: cycle %s done: checked=%d executed=%d skipped=%d errored=%d",
		report.CycleID, report.Checked, report.Executed, report.Skipped, report.Errored)
	return report
}

// RunIfDue executes the automation when its schedule says it is due.
func (s *AutomationService) RunIfDue(ctx context.Context, a *models.Automation, trigger string) Outcome {
	return s.safeRun(ctx, a, trigger, uuid.NewString(), true)
}

// RunNow executes the automation regardless of schedule. Manual and API
// triggers go through the exact same lock/handler/log path as cycles.
func (s *AutomationService) RunNow(ctx context.Context, a *models.Automation, trigger string) Outcome {
	return s.safeRun(ctx, a, trigger, uuid.NewString(), false)
}

// RunAutomation loads the automation by id and runs it immediately.
func (s *AutomationService) RunAutomation(ctx context.Context, id uint, trigger string) (Outcome, error) {
	var a models.Automation
	if err := s.db.WithContext(ctx).First(&a, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Outcome{}, ErrAutomationNotFound
		}
		return Outcome{}, fmt.Errorf("load automation %d: %w", id, err)
	}
	return s.RunNow(ctx, &a, trigger), nil
}

// DueNow reports whether the automation would fire at this instant. Preview
// only; nothing is executed or written.
func (s *AutomationService) DueNow(a *models.Automation) (bool, error) {
	return IsDue(a, s.now())
}

// ListAutomations 返回全部自动化配置
func (s *AutomationService) ListAutomations(ctx context.Context) ([]models.Automation, error) {
	var automations []models.Automation
	if err := s.db.WithContext(ctx).Order("id").Find(&automations).Error; err != nil {
		return nil, err
	}
	return automations, nil
}

// GetAutomation 按 ID 查询
func (s *AutomationService) GetAutomation(ctx context.Context, id uint) (*models.Automation, error) {
	var a models.Automation
	if err := s.db.WithContext(ctx).First(&a, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAutomationNotFound
		}
		return nil, err
	}
	return &a, nil
}

// ListRuns returns the newest run history entries for one automation.
func (s *AutomationService) ListRuns(ctx context.Context, automationID uint, limit int) ([]models.AutomationRun, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	var runs []models.AutomationRun
	if err := s.db.WithContext(ctx).
		Where("automation_id = ?", automationID).
		Order("started_at DESC").
		Limit(limit).
		Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}

// safeRun isolates one automation: a panic anywhere below becomes an error
// outcome instead of taking the cycle down.
func (s *AutomationService) safeRun(ctx context.Context, a *models.Automation, trigger, cycleID string, dueCheck bool) (outcome Outcome) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Errorf("automation %d (%s): panic: %v", a.ID, a.Name, r)
			outcome = Outcome{Status: models.RunStatusError, Message: fmt.Sprintf("panic: %v", r)}
		}
	}()
	return s.run(ctx, a, trigger, cycleID, dueCheck)
}

func (s *AutomationService) run(ctx context.Context, a *models.Automation, trigger, cycleID string, dueCheck bool) Outcome {
	ctx, span := s.tracer.Start(ctx, "automation.run", trace.WithAttributes(
		attribute.Int("automation.id", int(a.ID)),
		attribute.String("automation.type", a.AutomationType),
		attribute.String("run.trigger", trigger),
	))
	defer span.End()

	if dueCheck {
		due, err := IsDue(a, s.now())
		if err != nil {
			return s.recordConfigError(ctx, a, trigger, cycleID, err)
		}
		if !due {
			return Outcome{Status: OutcomeNotDue, Message: "not due"}
		}
	}

	run, acquired, err := s.acquireRun(ctx, a, trigger, cycleID)
	if err != nil {
		span.RecordError(err)
		s.logger.Errorf("automation %d (%s): acquire run: %v", a.ID, a.Name, err)
		return Outcome{Status: models.RunStatusError, Message: err.Error()}
	}
	if !acquired {
		skipRun := s.recordSkip(ctx, a, trigger, cycleID, "already running")
		metrics.IncRun(models.RunStatusSkipped)
		return Outcome{Status: models.RunStatusSkipped, Message: "already running", Run: skipRun}
	}

	if dueCheck {
		// Re-check with a fresh row now that the lock is held: another
		// process may have completed a run between the first check and
		// the insert.
		var fresh models.Automation
		if err := s.db.WithContext(ctx).First(&fresh, a.ID).Error; err == nil {
			due, derr := IsDue(&fresh, s.now())
			if derr == nil && !due {
				if err := s.db.WithContext(ctx).Delete(run).Error; err != nil {
					s.logger.Errorf("automation %d: abandon provisional run %d: %v", a.ID, run.ID, err)
				}
				metrics.IncRun(models.RunStatusSkipped)
				return Outcome{Status: models.RunStatusSkipped, Message: "no longer due"}
			}
		}
	}

	return s.execute(ctx, a, run)
}

// execute 在锁保护下调用匹配的检查、分发通知并落盘终态
func (s *AutomationService) execute(ctx context.Context, a *models.Automation, run *models.AutomationRun) Outcome {
	fn, ok := s.registry.Lookup(a.AutomationType)
	if !ok {
		return s.finish(ctx, a, run, models.RunStatusError,
			fmt.Sprintf("unknown automation type: %s", a.AutomationType), 0)
	}

	hotelIDs, err := s.scopeHotelIDs(ctx, a)
	if err != nil {
		return s.finish(ctx, a, run, models.RunStatusError,
			fmt.Sprintf("resolve hotel scope: %v", err), 0)
	}

	result, err := s.invoke(ctx, fn, a, hotelIDs)
	if err != nil {
		msg := err.Error()
		if errors.Is(err, context.DeadlineExceeded) {
			msg = "timeout"
		}
		return s.finish(ctx, a, run, models.RunStatusError, msg, 0)
	}

	status := result.Status
	switch status {
	case models.RunStatusSuccess, models.RunStatusPartial, models.RunStatusError:
	default:
		status = models.RunStatusSuccess
	}
	if len(result.Findings) > 0 {
		s.notifyFindings(ctx, a, result)
	}
	return s.finish(ctx, a, run, status, result.Message, result.AffectedCount)
}

type checkReturn struct {
	result *CheckResult
	err    error
}

// invoke bounds a single check by the handler timeout. Checks share the
// deadline through ctx and are expected to be cooperative; a check that
// ignores it keeps running in the background while the run is failed.
func (s *AutomationService) invoke(ctx context.Context, fn CheckFunc, a *models.Automation, hotelIDs []uint) (*CheckResult, error) {
	hctx, cancel := context.WithTimeout(ctx, s.handlerTimeout)
	defer cancel()

	ch := make(chan checkReturn, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- checkReturn{err: fmt.Errorf("handler panic: %v", r)}
			}
		}()
		result, err := fn(hctx, s.db, a, hotelIDs)
		if err == nil && result == nil {
			err = errors.New("handler returned no result")
		}
		ch <- checkReturn{result: result, err: err}
	}()

	select {
	case r := <-ch:
		return r.result, r.err
	case <-hctx.Done():
		return nil, hctx.Err()
	}
}

// acquireRun creates the running audit row for this automation. The partial
// unique index on (automation_id) WHERE status='running' makes the insert an
// atomic store-level lock that holds across processes.
func (s *AutomationService) acquireRun(ctx context.Context, a *models.Automation, trigger, cycleID string) (*models.AutomationRun, bool, error) {
	s.failStaleRun(ctx, a.ID)

	run := &models.AutomationRun{
		AutomationID: a.ID,
		CycleID:      cycleID,
		StartedAt:    s.now(),
		Status:       models.RunStatusRunning,
		TriggeredBy:  trigger,
	}
	if err := s.db.WithContext(ctx).Create(run).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, false, nil
		}
		// drivers without TranslateError report the index violation as a plain error
		lower := strings.ToLower(err.Error())
		if strings.Contains(lower, "unique") || strings.Contains(lower, "duplicate") {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("create run: %w", err)
	}
	return run, true, nil
}

// failStaleRun fails over a running row left behind by a crashed engine so
// the automation does not stay locked forever.
func (s *AutomationService) failStaleRun(ctx context.Context, automationID uint) {
	cutoff := s.now().Add(-s.staleRunAfter)
	completed := s.now()
	res := s.db.WithContext(ctx).Model(&models.AutomationRun{}).
		Where("automation_id = ? AND status = ? AND started_at < ?", automationID, models.RunStatusRunning, cutoff).
		Updates(map[string]interface{}{
			"status":       models.RunStatusError,
			"message":      "abandoned: run never completed",
			"completed_at": completed,
		})
	if res.Error != nil {
		s.logger.Errorf("automation %d: fail over stale run: %v", automationID, res.Error)
		return
	}
	if res.RowsAffected > 0 {
		s.logger.Warnf("automation %d: failed over %d stale running run(s)", automationID, res.RowsAffected)
	}
}

// recordSkip writes a terminal skipped run for the audit trail. No handler
// ran, no notifications were sent, last_run fields stay untouched.
func (s *AutomationService) recordSkip(ctx context.Context, a *models.Automation, trigger, cycleID, message string) *models.AutomationRun {
	now := s.now()
	run := &models.AutomationRun{
		AutomationID: a.ID,
		CycleID:      cycleID,
		StartedAt:    now,
		CompletedAt:  &now,
		Status:       models.RunStatusSkipped,
		TriggeredBy:  trigger,
		Message:      message,
	}
	if err := s.db.WithContext(ctx).Create(run).Error; err != nil {
		s.logger.Errorf("automation %d: record skipped run: %v", a.ID, err)
		return nil
	}
	return run
}

// recordConfigError handles schedule configuration errors surfaced by the due
// check: the attempt is recorded so operators see it in the run history, but
// no handler runs.
func (s *AutomationService) recordConfigError(ctx context.Context, a *models.Automation, trigger, cycleID string, cause error) Outcome {
	now := s.now()
	msg := cause.Error()
	run := &models.AutomationRun{
		AutomationID: a.ID,
		CycleID:      cycleID,
		StartedAt:    now,
		CompletedAt:  &now,
		Status:       models.RunStatusError,
		TriggeredBy:  trigger,
		Message:      msg,
	}
	if err := s.db.WithContext(ctx).Create(run).Error; err != nil {
		s.logger.Errorf("automation %d: record config error run: %v", a.ID, err)
	}
	s.updateLastRun(ctx, a, models.RunStatusError, msg)
	metrics.IncRun(models.RunStatusError)
	s.logger.Errorf("automation %d (%s): %s", a.ID, a.Name, msg)
	return Outcome{Status: models.RunStatusError, Message: msg, Run: run}
}

// finish moves the run to its terminal state and updates the automation's
// last_run bookkeeping. Attempts count, not just successes.
func (s *AutomationService) finish(ctx context.Context, a *models.Automation, run *models.AutomationRun, status, message string, affected int) Outcome {
	completed := s.now()
	duration := completed.Sub(run.StartedAt).Milliseconds()
	if err := s.db.WithContext(ctx).Model(&models.AutomationRun{}).
		Where("id = ? AND status = ?", run.ID, models.RunStatusRunning).
		Updates(map[string]interface{}{
			"status":       status,
			"message":      message,
			"completed_at": completed,
			"duration_ms":  duration,
		}).Error; err != nil {
		s.logger.Errorf("automation %d: finalize run %d: %v", a.ID, run.ID, err)
	}
	run.Status = status
	run.Message = message
	run.CompletedAt = &completed
	run.DurationMs = duration

	s.updateLastRun(ctx, a, status, message)
	metrics.IncRun(status)

	entry := s.logger.WithFields(logrus.Fields{
		"automation": a.ID,
		"type":       a.AutomationType,
		"run":        run.ID,
		"status":     status,
		"duration":   duration,
	})
	if status == models.RunStatusError {
		entry.Errorf("automation run failed: %s", message)
	} else {
		entry.Infof("automation run finished: %s", message)
	}
	return Outcome{Status: status, Message: message, Run: run, AffectedCount: affected}
}

// updateLastRun persists the per-automation fields that replace any
// in-process state: they survive restarts and are shared between instances.
func (s *AutomationService) updateLastRun(ctx context.Context, a *models.Automation, status, message string) {
	lastRunAt := s.now()
	if err := s.db.WithContext(ctx).Model(&models.Automation{}).
		Where("id = ?", a.ID).
		Updates(map[string]interface{}{
			"last_run_at":      lastRunAt,
			"last_run_status":  status,
			"last_run_message": message,
			"run_count":        gorm.Expr("run_count + 1"),
		}).Error; err != nil {
		s.logger.Errorf("automation %d: update last run fields: %v", a.ID, err)
		return
	}
	a.LastRunAt = &lastRunAt
	a.LastRunStatus = status
	a.LastRunMessage = message
	a.RunCount++
}

// scopeHotelIDs computes the hotels an automation applies to: all active
// hotels when global, minus per-hotel disables; only explicitly enabled
// hotels otherwise.
func (s *AutomationService) scopeHotelIDs(ctx context.Context, a *models.Automation) ([]uint, error) {
	var scopes []models.AutomationHotelScope
	if err := s.db.WithContext(ctx).
		Where("automation_id = ?", a.ID).
		Find(&scopes).Error; err != nil {
		return nil, fmt.Errorf("load hotel scopes: %w", err)
	}

	if !a.IsGlobal {
		var ids []uint
		for _, sc := range scopes {
			if sc.IsActive {
				ids = append(ids, sc.HotelID)
			}
		}
		return ids, nil
	}

	disabled := make(map[uint]bool)
	for _, sc := range scopes {
		if !sc.IsActive {
			disabled[sc.HotelID] = true
		}
	}
	var hotels []models.Hotel
	if err := s.db.WithContext(ctx).Where("active = ?", true).Find(&hotels).Error; err != nil {
		return nil, fmt.Errorf("load hotels: %w", err)
	}
	var ids []uint
	for _, h := range hotels {
		if !disabled[h.ID] {
			ids = append(ids, h.ID)
		}
	}
	return ids, nil
}

// notifyFindings resolves recipients per affected hotel and hands the tuples
// to the external notifier. Notification failures are logged, never fatal.
func (s *AutomationService) notifyFindings(ctx context.Context, a *models.Automation, result *CheckResult) {
	for _, f := range result.Findings {
		targets, err := s.recipients.Resolve(ctx, a, f.HotelID)
		if err != nil {
			s.logger.Errorf("automation %d: resolve recipients for hotel %d: %v", a.ID, f.HotelID, err)
			continue
		}
		if len(targets) == 0 {
			continue
		}
		if err := s.notifier.Notify(ctx, targets, a.Name, f.Detail); err != nil {
			s.logger.Errorf("automation %d: notify hotel %d: %v", a.ID, f.HotelID, err)
		}
	}
}
