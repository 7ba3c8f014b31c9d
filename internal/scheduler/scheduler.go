package scheduler

import (
	"context"
	"time"

	"hotelops/internal/models"
	"hotelops/internal/services"

	"github.com/sirupsen/logrus"
)

// Scheduler is the thin periodic trigger for the automation engine. It owns
// no scheduling logic itself: every tick is one RunCycle, and the engine's
// store-level locking keeps overlapping ticks and concurrent instances safe.
type Scheduler struct {
	engine   *services.AutomationService
	logger   *logrus.Logger
	interval time.Duration
}

func New(engine *services.AutomationService, logger *logrus.Logger, interval time.Duration) *Scheduler {
	if logger == nil {
		logger = logrus.New()
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &Scheduler{engine: engine, logger: logger, interval: interval}
}

// Start runs the cycle loop until ctx is cancelled. Blocking; run it in a
// goroutine.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Infof("scheduler: starting, interval %s", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// fire once at startup so daily catch-up does not wait a full interval
	s.engine.RunCycle(ctx, models.TriggerCycle)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler: stopped")
			return
		case <-ticker.C:
			s.engine.RunCycle(ctx, models.TriggerCycle)
		}
	}
}
