package models

import (
	"time"

	"gorm.io/gorm"
)

// 酒店模型
type Hotel struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	Name      string         `gorm:"not null" json:"name"`
	Code      string         `gorm:"unique;not null" json:"code"`
	City      string         `json:"city"`
	Timezone  string         `json:"timezone"`
	Active    bool           `gorm:"default:true" json:"active"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Rooms   []Room        `gorm:"foreignKey:HotelID" json:"rooms,omitempty"`
	Members []HotelMember `gorm:"foreignKey:HotelID" json:"members,omitempty"`
}

// 用户模型
type User struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	Username  string         `gorm:"unique;not null" json:"username"`
	Email     string         `gorm:"unique;not null" json:"email"`
	Name      string         `json:"name"`
	Phone     string         `json:"phone"`
	Role      string         `gorm:"default:'staff'" json:"role"`    // staff, housekeeping, maintenance, manager, admin
	Status    string         `gorm:"default:'active'" json:"status"` // active, inactive, suspended
	LastLogin *time.Time     `json:"last_login"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Memberships []HotelMember `gorm:"foreignKey:UserID" json:"memberships,omitempty"`
}

// HotelMember 用户与酒店的归属关系
type HotelMember struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	HotelID   uint      `gorm:"uniqueIndex:idx_hotel_members_pair" json:"hotel_id"`
	UserID    uint      `gorm:"uniqueIndex:idx_hotel_members_pair;index" json:"user_id"`
	CreatedAt time.Time `json:"created_at"`

	Hotel Hotel `gorm:"foreignKey:HotelID" json:"hotel,omitempty"`
	User  User  `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

// 房间模型
type Room struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	HotelID       uint       `gorm:"index" json:"hotel_id"`
	Number        string     `gorm:"not null" json:"number"`
	Floor         int        `json:"floor"`
	Status        string     `gorm:"default:'vacant'" json:"status"`      // vacant, occupied, out_of_order
	CleanStatus   string     `gorm:"default:'clean'" json:"clean_status"` // clean, dirty, inspecting
	LastCleanedAt *time.Time `json:"last_cleaned_at"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`

	Hotel Hotel `gorm:"foreignKey:HotelID" json:"hotel,omitempty"`
}

// CleaningDispatch 客房清洁派单
type CleaningDispatch struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	HotelID     uint       `gorm:"index" json:"hotel_id"`
	RoomID      uint       `gorm:"index" json:"room_id"`
	AssigneeID  *uint      `gorm:"index" json:"assignee_id"`
	Status      string     `gorm:"default:'pending'" json:"status"` // pending, in_progress, done, cancelled
	DispatchDay time.Time  `gorm:"index" json:"dispatch_day"`       // midnight of the day the dispatch belongs to
	CompletedAt *time.Time `json:"completed_at"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`

	Hotel    Hotel `gorm:"foreignKey:HotelID" json:"hotel,omitempty"`
	Room     Room  `gorm:"foreignKey:RoomID" json:"room,omitempty"`
	Assignee *User `gorm:"foreignKey:AssigneeID" json:"assignee,omitempty"`
}

// MaintenanceOrder 维修工单
type MaintenanceOrder struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	HotelID     uint       `gorm:"index" json:"hotel_id"`
	RoomID      *uint      `gorm:"index" json:"room_id"`
	Title       string     `gorm:"not null" json:"title"`
	Description string     `gorm:"type:text" json:"description"`
	Priority    string     `gorm:"default:'normal'" json:"priority"` // low, normal, high, urgent
	Status      string     `gorm:"default:'open'" json:"status"`     // open, in_progress, resolved, closed
	DueAt       *time.Time `gorm:"index" json:"due_at"`
	ResolvedAt  *time.Time `json:"resolved_at"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`

	Hotel Hotel `gorm:"foreignKey:HotelID" json:"hotel,omitempty"`
}

// LeaveRequest 请假申请
type LeaveRequest struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	HotelID   uint       `gorm:"index" json:"hotel_id"`
	UserID    uint       `gorm:"index" json:"user_id"`
	Type      string     `json:"type"`                            // annual, sick, unpaid
	Status    string     `gorm:"default:'pending'" json:"status"` // pending, approved, rejected, cancelled
	StartDate time.Time  `json:"start_date"`
	EndDate   time.Time  `json:"end_date"`
	DecidedAt *time.Time `json:"decided_at"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`

	User User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

// OpsTask 运营任务
type OpsTask struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	HotelID    uint       `gorm:"index" json:"hotel_id"`
	AssigneeID *uint      `gorm:"index" json:"assignee_id"`
	Title      string     `gorm:"not null" json:"title"`
	Status     string     `gorm:"default:'open'" json:"status"` // open, in_progress, done, cancelled
	DueAt      *time.Time `json:"due_at"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`

	Hotel    Hotel `gorm:"foreignKey:HotelID" json:"hotel,omitempty"`
	Assignee *User `gorm:"foreignKey:AssigneeID" json:"assignee,omitempty"`
}

// Notification 通知队列。自动化引擎只负责入队，实际投递由外部渠道完成。
type Notification struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	UserID    *uint      `gorm:"index" json:"user_id"`
	Email     string     `gorm:"index" json:"email"`
	Channel   string     `gorm:"not null" json:"channel"` // email, in_app
	Subject   string     `json:"subject"`
	Body      string     `gorm:"type:text" json:"body"`
	Status    string     `gorm:"default:'queued'" json:"status"` // queued, sent, failed
	SentAt    *time.Time `json:"sent_at"`
	CreatedAt time.Time  `json:"created_at"`

	User *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}
