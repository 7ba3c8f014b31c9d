package services

import (
	"context"
	"fmt"
	"time"

	"hotelops/internal/models"

	"gorm.io/gorm"
)

// Built-in automation types.
const (
	CheckCleaningNotDispatched = "cleaning_not_dispatched"
	CheckMaintenanceOverdue    = "maintenance_overdue"
	CheckLeaveRequestsStale    = "leave_requests_stale"
	CheckTasksUnassigned       = "tasks_unassigned"
)

// leave requests pending longer than this are reported as stale
const staleLeaveAfter = 72 * time.Hour

// Finding is one hotel-level observation produced by a check.
type Finding struct {
	HotelID uint   `json:"hotel_id"`
	Count   int    `json:"count"`
	Detail  string `json:"detail"`
}

// CheckResult is what every check returns to the coordinator. Checks never
// send notifications themselves; the coordinator combines findings with the
// recipient resolver output.
type CheckResult struct {
	Status        string    `json:"status"` // success, partial, error
	Message       string    `json:"message"`
	AffectedCount int       `json:"affected_count"`
	Findings      []Finding `json:"findings"`
}

// CheckFunc performs one domain check over the hotels in scope.
type CheckFunc func(ctx context.Context, db *gorm.DB, automation *models.Automation, hotelIDs []uint) (*CheckResult, error)

// CheckRegistry maps automation types to their checks. The map is closed:
// it is populated at construction time and an unregistered type yields a
// configuration-error outcome rather than a crash.
type CheckRegistry struct {
	checks map[string]CheckFunc
}

func NewCheckRegistry() *CheckRegistry {
	return &CheckRegistry{checks: make(map[string]CheckFunc)}
}

// DefaultCheckRegistry returns the registry with all built-in hotel checks.
func DefaultCheckRegistry() *CheckRegistry {
	r := NewCheckRegistry()
	r.Register(CheckCleaningNotDispatched, checkCleaningNotDispatched)
	r.Register(CheckMaintenanceOverdue, checkMaintenanceOverdue)
	r.Register(CheckLeaveRequestsStale, checkLeaveRequestsStale)
	r.Register(CheckTasksUnassigned, checkTasksUnassigned)
	return r
}

func (r *CheckRegistry) Register(automationType string, fn CheckFunc) {
	r.checks[automationType] = fn
}

func (r *CheckRegistry) Lookup(automationType string) (CheckFunc, bool) {
	fn, ok := r.checks[automationType]
	return fn, ok
}

// Types lists the registered automation types.
func (r *CheckRegistry) Types() []string {
	types := make([]string, 0, len(r.checks))
	for t := range r.checks {
		types = append(types, t)
	}
	return types
}

// checkCleaningNotDispatched 检查有脏房但当天没有任何清洁派单的酒店
func checkCleaningNotDispatched(ctx context.Context, db *gorm.DB, _ *models.Automation, hotelIDs []uint) (*CheckResult, error) {
	result := &CheckResult{Status: models.RunStatusSuccess}
	today := startOfDay(time.Now())

	for _, hotelID := range hotelIDs {
		var dirty int64
		if err := db.WithContext(ctx).Model(&models.Room{}).
			Where("hotel_id = ? AND clean_status = ?", hotelID, "dirty").
			Count(&dirty).Error; err != nil {
			return nil, fmt.Errorf("count dirty rooms for hotel %d: %w", hotelID, err)
		}
		if dirty == 0 {
			continue
		}
		var dispatched int64
		if err := db.WithContext(ctx).Model(&models.CleaningDispatch{}).
			Where("hotel_id = ? AND dispatch_day >= ? AND status NOT IN ?", hotelID, today, []string{"cancelled"}).
			Count(&dispatched).Error; err != nil {
			return nil, fmt.Errorf("count dispatches for hotel %d: %w", hotelID, err)
		}
		if dispatched == 0 {
			result.Findings = append(result.Findings, Finding{
				HotelID: hotelID,
				Count:   int(dirty),
				Detail:  fmt.Sprintf("%d dirty rooms with no cleaning dispatch today", dirty),
			})
			result.AffectedCount++
		}
	}

	result.Message = fmt.Sprintf("%d hotels without cleaning dispatch", result.AffectedCount)
	return result, nil
}

// checkMaintenanceOverdue 检查逾期未处理的维修工单
func checkMaintenanceOverdue(ctx context.Context, db *gorm.DB, _ *models.Automation, hotelIDs []uint) (*CheckResult, error) {
	result := &CheckResult{Status: models.RunStatusSuccess}
	now := time.Now()

	for _, hotelID := range hotelIDs {
		var overdue int64
		if err := db.WithContext(ctx).Model(&models.MaintenanceOrder{}).
			Where("hotel_id = ? AND status IN ? AND due_at IS NOT NULL AND due_at < ?",
				hotelID, []string{"open", "in_progress"}, now).
			Count(&overdue).Error; err != nil {
			return nil, fmt.Errorf("count overdue maintenance for hotel %d: %w", hotelID, err)
		}
		if overdue > 0 {
			result.Findings = append(result.Findings, Finding{
				HotelID: hotelID,
				Count:   int(overdue),
				Detail:  fmt.Sprintf("%d maintenance orders past due", overdue),
			})
			result.AffectedCount++
		}
	}

	result.Message = fmt.Sprintf("%d hotels with overdue maintenance", result.AffectedCount)
	return result, nil
}

// checkLeaveRequestsStale 检查长时间未审批的请假申请
func checkLeaveRequestsStale(ctx context.Context, db *gorm.DB, _ *models.Automation, hotelIDs []uint) (*CheckResult, error) {
	result := &CheckResult{Status: models.RunStatusSuccess}
	cutoff := time.Now().Add(-staleLeaveAfter)

	for _, hotelID := range hotelIDs {
		var stale int64
		if err := db.WithContext(ctx).Model(&models.LeaveRequest{}).
			Where("hotel_id = ? AND status = ? AND created_at < ?", hotelID, "pending", cutoff).
			Count(&stale).Error; err != nil {
			return nil, fmt.Errorf("count stale leave requests for hotel %d: %w", hotelID, err)
		}
		if stale > 0 {
			result.Findings = append(result.Findings, Finding{
				HotelID: hotelID,
				Count:   int(stale),
				Detail:  fmt.Sprintf("%d leave requests pending for over %s", stale, staleLeaveAfter),
			})
			result.AffectedCount++
		}
	}

	result.Message = fmt.Sprintf("%d hotels with stale leave requests", result.AffectedCount)
	return result, nil
}

// checkTasksUnassigned 检查无人认领的运营任务
func checkTasksUnassigned(ctx context.Context, db *gorm.DB, _ *models.Automation, hotelIDs []uint) (*CheckResult, error) {
	result := &CheckResult{Status: models.RunStatusSuccess}

	for _, hotelID := range hotelIDs {
		var unassigned int64
		if err := db.WithContext(ctx).Model(&models.OpsTask{}).
			Where("hotel_id = ? AND status = ? AND assignee_id IS NULL", hotelID, "open").
			Count(&unassigned).Error; err != nil {
			return nil, fmt.Errorf("count unassigned tasks for hotel %d: %w", hotelID, err)
		}
		if unassigned > 0 {
			result.Findings = append(result.Findings, Finding{
				HotelID: hotelID,
				Count:   int(unassigned),
				Detail:  fmt.Sprintf("%d open tasks without an assignee", unassigned),
			})
			result.AffectedCount++
		}
	}

	result.Message = fmt.Sprintf("%d hotels with unassigned tasks", result.AffectedCount)
	return result, nil
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
