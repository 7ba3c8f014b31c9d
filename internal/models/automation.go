package models

import (
	"time"

	"gorm.io/gorm"
)

// Schedule types supported by the automation engine.
const (
	ScheduleDaily    = "daily"
	ScheduleWeekly   = "weekly"
	ScheduleMonthly  = "monthly"
	ScheduleInterval = "interval"
)

// Run statuses. A run is created as running and moved to exactly one
// terminal status; terminal rows are never mutated again.
const (
	RunStatusRunning = "running"
	RunStatusSuccess = "success"
	RunStatusPartial = "partial"
	RunStatusError   = "error"
	RunStatusSkipped = "skipped"
)

// Run trigger origins.
const (
	TriggerCycle  = "cycle"
	TriggerManual = "manual"
	TriggerAPI    = "api"
)

// Automation 自动化巡检配置及其通知策略
type Automation struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	Name        string `gorm:"unique;not null" json:"name"`
	Description string `gorm:"type:text" json:"description"`

	// AutomationType selects the registered check this automation performs,
	// e.g. cleaning_not_dispatched, maintenance_overdue.
	AutomationType string `gorm:"not null;index" json:"automation_type"`

	ScheduleType            string `gorm:"not null" json:"schedule_type"` // daily, weekly, monthly, interval
	ScheduleTime            string `json:"schedule_time"`                 // "15:04", required for daily/weekly/monthly
	ScheduleDays            string `json:"schedule_days"`                 // weekday numbers 0-6, comma separated, required for weekly
	ScheduleDayOfMonth      int    `json:"schedule_day_of_month"`         // 1-31, required for monthly
	ScheduleIntervalMinutes int    `json:"schedule_interval_minutes"`     // > 0, required for interval

	IsActive bool `gorm:"default:true;index" json:"is_active"`
	IsGlobal bool `gorm:"default:true" json:"is_global"` // applies to all hotels unless scoped

	LastRunAt      *time.Time `json:"last_run_at"`
	LastRunStatus  string     `json:"last_run_status"` // success, error, partial, skipped
	LastRunMessage string     `gorm:"type:text" json:"last_run_message"`
	RunCount       int        `gorm:"default:0" json:"run_count"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	HotelScopes []AutomationHotelScope `gorm:"foreignKey:AutomationID" json:"hotel_scopes,omitempty"`
	Recipients  []AutomationRecipient  `gorm:"foreignKey:AutomationID" json:"recipients,omitempty"`
}

// AutomationHotelScope 按酒店启停的覆盖配置，全局开关之上的逐店开关
type AutomationHotelScope struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	AutomationID uint      `gorm:"uniqueIndex:idx_automation_hotel_scope_pair" json:"automation_id"`
	HotelID      uint      `gorm:"uniqueIndex:idx_automation_hotel_scope_pair;index" json:"hotel_id"`
	IsActive     bool      `gorm:"default:true" json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`

	Hotel Hotel `gorm:"foreignKey:HotelID" json:"hotel,omitempty"`
}

// AutomationRecipient 通知接收方配置
type AutomationRecipient struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	AutomationID   uint      `gorm:"index" json:"automation_id"`
	RecipientType  string    `gorm:"not null" json:"recipient_type"` // role, user, email
	RecipientValue string    `gorm:"not null" json:"recipient_value"`
	Channels       string    `gorm:"default:'in_app'" json:"channels"` // email, in_app, comma separated
	CreatedAt      time.Time `json:"created_at"`
}

// AutomationRun 执行记录用于审计。同一自动化在任意时刻至多一条 running 记录，
// 由迁移阶段创建的部分唯一索引保证（见 MigrateAutomationIndexes）。
type AutomationRun struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	AutomationID uint       `gorm:"index" json:"automation_id"`
	CycleID      string     `gorm:"index" json:"cycle_id"`
	StartedAt    time.Time  `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at"`
	DurationMs   int64      `json:"duration_ms"`
	Status       string     `gorm:"index" json:"status"`       // running, success, partial, error, skipped
	TriggeredBy  string     `gorm:"index" json:"triggered_by"` // cycle, manual, api
	Message      string     `gorm:"type:text" json:"message"`
	CreatedAt    time.Time  `json:"created_at"`

	Automation Automation `gorm:"foreignKey:AutomationID" json:"automation,omitempty"`
}

// MigrateAutomationIndexes creates the indexes AutoMigrate cannot express.
// The partial unique index is the cross-process mutual exclusion primitive:
// inserting a second running row for the same automation fails with a
// duplicate key error. Both postgres and sqlite accept this syntax.
func MigrateAutomationIndexes(db *gorm.DB) error {
	return db.Exec(
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_automation_runs_one_running
		 ON automation_runs (automation_id) WHERE status = 'running'`,
	).Error
}
