package services

import (
	"context"

	"hotelops/internal/models"
)

// SeedDefaultAutomations ensures the standard operational checks exist as
// ordinary automation rows. They flow through the same due/lock/log path as
// anything the admin surface creates; there is no second scheduling
// mechanism for built-ins.
func (s *AutomationService) SeedDefaultAutomations(ctx context.Context) error {
	defaults := []models.Automation{
		{
			Name:           "Cleaning dispatch check",
			Description:    "Alerts when a hotel has dirty rooms but no cleaning dispatch for the day",
			AutomationType: CheckCleaningNotDispatched,
			ScheduleType:   models.ScheduleDaily,
			ScheduleTime:   "10:00",
			IsActive:       true,
			IsGlobal:       true,
		},
		{
			Name:                    "Overdue maintenance check",
			Description:             "Alerts on maintenance orders past their due date",
			AutomationType:          CheckMaintenanceOverdue,
			ScheduleType:            models.ScheduleInterval,
			ScheduleIntervalMinutes: 60,
			IsActive:                true,
			IsGlobal:                true,
		},
		{
			Name:           "Stale leave request check",
			Description:    "Alerts on leave requests waiting for approval too long",
			AutomationType: CheckLeaveRequestsStale,
			ScheduleType:   models.ScheduleWeekly,
			ScheduleTime:   "09:00",
			ScheduleDays:   "1,2,3,4,5",
			IsActive:       true,
			IsGlobal:       true,
		},
		{
			Name:           "Unassigned task check",
			Description:    "Alerts on open tasks without an assignee",
			AutomationType: CheckTasksUnassigned,
			ScheduleType:   models.ScheduleDaily,
			ScheduleTime:   "08:30",
			IsActive:       true,
			IsGlobal:       true,
		},
	}

	for i := range defaults {
		a := defaults[i]
		if err := s.db.WithContext(ctx).
			Where("name = ?", a.Name).
			FirstOrCreate(&a).Error; err != nil {
			return err
		}
	}
	return nil
}
