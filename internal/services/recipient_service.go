package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"hotelops/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Notification channels.
const (
	ChannelEmail = "email"
	ChannelInApp = "in_app"
)

// NotificationTarget is one concrete delivery target after recipient
// expansion. Either UserID or Email is set depending on the channel source.
type NotificationTarget struct {
	Channel string `json:"channel"`
	UserID  uint   `json:"user_id,omitempty"`
	Email   string `json:"email,omitempty"`
	Name    string `json:"name,omitempty"`
}

// RecipientService 将角色/用户/邮箱的接收方配置展开为去重后的具体通知目标
type RecipientService struct {
	db     *gorm.DB
	logger *logrus.Logger
}

func NewRecipientService(db *gorm.DB, logger *logrus.Logger) *RecipientService {
	if logger == nil {
		logger = logrus.New()
	}
	return &RecipientService{db: db, logger: logger}
}

// Resolve expands the automation's recipient rules for one hotel.
// hotelID == 0 means the automation is not hotel-scoped: role rules expand to
// every active user holding the role regardless of membership.
// The output is deduplicated by (user-or-email, channel) so overlapping rules
// never produce two notifications for the same person on the same run.
func (s *RecipientService) Resolve(ctx context.Context, automation *models.Automation, hotelID uint) ([]NotificationTarget, error) {
	var recipients []models.AutomationRecipient
	if err := s.db.WithContext(ctx).
		Where("automation_id = ?", automation.ID).
		Find(&recipients).Error; err != nil {
		return nil, fmt.Errorf("load recipients: %w", err)
	}

	seen := make(map[string]bool)
	var targets []NotificationTarget

	add := func(t NotificationTarget) {
		key := t.Channel + "|"
		if t.UserID != 0 {
			key += "u:" + strconv.FormatUint(uint64(t.UserID), 10)
		} else {
			key += "e:" + strings.ToLower(t.Email)
		}
		if seen[key] {
			return
		}
		seen[key] = true
		targets = append(targets, t)
	}

	for _, r := range recipients {
		channels := parseChannels(r.Channels)
		switch r.RecipientType {
		case "role":
			users, err := s.usersByRole(ctx, r.RecipientValue, hotelID)
			if err != nil {
				return nil, err
			}
			for _, u := range users {
				for _, ch := range channels {
					add(userTarget(u, ch))
				}
			}
		case "user":
			userID, err := strconv.ParseUint(r.RecipientValue, 10, 32)
			if err != nil {
				s.logger.Warnf("recipient: invalid user id %q for automation %d", r.RecipientValue, automation.ID)
				continue
			}
			var user models.User
			if err := s.db.WithContext(ctx).First(&user, uint(userID)).Error; err != nil {
				s.logger.Warnf("recipient: user %d not found for automation %d", userID, automation.ID)
				continue
			}
			if user.Status != "active" {
				// inactive users are silently dropped
				continue
			}
			for _, ch := range channels {
				add(userTarget(user, ch))
			}
		case "email":
			// literal address, no user lookup; only the email channel makes sense here
			for _, ch := range channels {
				if ch != ChannelEmail {
					continue
				}
				add(NotificationTarget{Channel: ChannelEmail, Email: r.RecipientValue})
			}
		default:
			s.logger.Warnf("recipient: unknown recipient_type %q for automation %d", r.RecipientType, automation.ID)
		}
	}

	return targets, nil
}

// usersByRole returns active users holding the role, restricted to the
// hotel's members when hotelID is set.
func (s *RecipientService) usersByRole(ctx context.Context, role string, hotelID uint) ([]models.User, error) {
	query := s.db.WithContext(ctx).Model(&models.User{}).
		Where("users.role = ? AND users.status = ?", role, "active")
	if hotelID != 0 {
		query = query.
			Joins("JOIN hotel_members ON hotel_members.user_id = users.id").
			Where("hotel_members.hotel_id = ?", hotelID)
	}
	var users []models.User
	if err := query.Find(&users).Error; err != nil {
		return nil, fmt.Errorf("expand role %q: %w", role, err)
	}
	return users, nil
}

func userTarget(u models.User, channel string) NotificationTarget {
	t := NotificationTarget{Channel: channel, UserID: u.ID, Name: u.Name}
	if channel == ChannelEmail {
		t.Email = u.Email
	}
	return t
}

func parseChannels(s string) []string {
	var channels []string
	for _, part := range strings.Split(s, ",") {
		switch strings.TrimSpace(part) {
		case ChannelEmail:
			channels = append(channels, ChannelEmail)
		case ChannelInApp:
			channels = append(channels, ChannelInApp)
		}
	}
	if len(channels) == 0 {
		channels = []string{ChannelInApp}
	}
	return channels
}
