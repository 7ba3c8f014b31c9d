package services

import (
	"context"
	"time"

	"hotelops/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Notifier receives the (target, channel, message) tuples the coordinator
// produces. Actual email/in-app delivery lives outside this engine; a
// Notifier only accepts the request.
type Notifier interface {
	Notify(ctx context.Context, targets []NotificationTarget, subject, body string) error
}

// QueueNotifier 将通知写入 notifications 队列表，由外部投递器消费
type QueueNotifier struct {
	db     *gorm.DB
	logger *logrus.Logger
	prefix string
}

func NewQueueNotifier(db *gorm.DB, logger *logrus.Logger, subjectPrefix string) *QueueNotifier {
	if logger == nil {
		logger = logrus.New()
	}
	return &QueueNotifier{db: db, logger: logger, prefix: subjectPrefix}
}

func (n *QueueNotifier) Notify(ctx context.Context, targets []NotificationTarget, subject, body string) error {
	if len(targets) == 0 {
		return nil
	}
	if n.prefix != "" {
		subject = n.prefix + " " + subject
	}
	rows := make([]models.Notification, 0, len(targets))
	now := time.Now()
	for _, t := range targets {
		row := models.Notification{
			Channel:   t.Channel,
			Email:     t.Email,
			Subject:   subject,
			Body:      body,
			Status:    "queued",
			CreatedAt: now,
		}
		if t.UserID != 0 {
			userID := t.UserID
			row.UserID = &userID
		}
		rows = append(rows, row)
	}
	if err := n.db.WithContext(ctx).Create(&rows).Error; err != nil {
		return err
	}
	n.logger.Infof("notify: queued %d notifications: %s", len(rows), subject)
	return nil
}

// LogNotifier 仅记录日志，用于禁用通知入队或本地调试
type LogNotifier struct {
	logger *logrus.Logger
}

func NewLogNotifier(logger *logrus.Logger) *LogNotifier {
	if logger == nil {
		logger = logrus.New()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, targets []NotificationTarget, subject, _ string) error {
	n.logger.Infof("notify: %d targets: %s", len(targets), subject)
	return nil
}
