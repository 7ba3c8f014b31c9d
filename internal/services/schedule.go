package services

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"hotelops/internal/models"
)

// ErrScheduleConfig marks an automation whose schedule fields are missing or
// invalid for its schedule type. Bad rows are written by the admin surface;
// the engine reports them instead of failing the whole cycle.
var ErrScheduleConfig = errors.New("invalid schedule configuration")

// IsDue reports whether the automation should fire at now. It is pure and
// performs no writes; now must already be in the deployment timezone.
//
// daily/weekly/monthly fire at most once per calendar day, the first time the
// configured time-of-day has passed — a late evaluation still fires (catch-up).
// interval fires whenever enough time has elapsed since the last run.
func IsDue(a *models.Automation, now time.Time) (bool, error) {
	switch a.ScheduleType {
	case models.ScheduleDaily:
		return dueDaily(a, now)
	case models.ScheduleWeekly:
		days, err := parseScheduleDays(a.ScheduleDays)
		if err != nil {
			return false, err
		}
		if !days[now.Weekday()] {
			return false, nil
		}
		return dueDaily(a, now)
	case models.ScheduleMonthly:
		if a.ScheduleDayOfMonth < 1 || a.ScheduleDayOfMonth > 31 {
			return false, fmt.Errorf("%w: schedule_day_of_month %d out of range", ErrScheduleConfig, a.ScheduleDayOfMonth)
		}
		target := a.ScheduleDayOfMonth
		if last := daysInMonth(now); target > last {
			// 31 clamps to the last day of shorter months
			target = last
		}
		if now.Day() != target {
			return false, nil
		}
		return dueDaily(a, now)
	case models.ScheduleInterval:
		if a.ScheduleIntervalMinutes <= 0 {
			return false, fmt.Errorf("%w: schedule_interval_minutes must be positive", ErrScheduleConfig)
		}
		if a.LastRunAt == nil {
			return true, nil
		}
		return now.Sub(*a.LastRunAt) >= time.Duration(a.ScheduleIntervalMinutes)*time.Minute, nil
	default:
		return false, fmt.Errorf("%w: unknown schedule_type %q", ErrScheduleConfig, a.ScheduleType)
	}
}

// dueDaily applies the shared time-of-day and once-per-day conditions.
func dueDaily(a *models.Automation, now time.Time) (bool, error) {
	hour, minute, err := parseClock(a.ScheduleTime)
	if err != nil {
		return false, err
	}
	threshold := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if now.Before(threshold) {
		return false, nil
	}
	if a.LastRunAt == nil {
		return true, nil
	}
	return !sameDay(a.LastRunAt.In(now.Location()), now), nil
}

// parseClock parses a "15:04" time-of-day string.
func parseClock(s string) (hour, minute int, err error) {
	if s == "" {
		return 0, 0, fmt.Errorf("%w: schedule_time is required", ErrScheduleConfig)
	}
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("%w: schedule_time %q is not HH:MM", ErrScheduleConfig, s)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("%w: schedule_time %q has invalid hour", ErrScheduleConfig, s)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("%w: schedule_time %q has invalid minute", ErrScheduleConfig, s)
	}
	return hour, minute, nil
}

// parseScheduleDays parses a comma separated weekday list ("1,3,5", Sunday=0).
func parseScheduleDays(s string) (map[time.Weekday]bool, error) {
	days := make(map[time.Weekday]bool)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 || n > 6 {
			return nil, fmt.Errorf("%w: schedule_days entry %q is not a weekday 0-6", ErrScheduleConfig, part)
		}
		days[time.Weekday(n)] = true
	}
	if len(days) == 0 {
		return nil, fmt.Errorf("%w: schedule_days is required for weekly schedules", ErrScheduleConfig)
	}
	return days, nil
}

func daysInMonth(t time.Time) int {
	return time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, t.Location()).Day()
}

func sameDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month() && a.Day() == b.Day()
}
