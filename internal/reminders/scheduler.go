package reminders

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Notifier delivers a due reminder to the user.
type Notifier interface {
	NotifyReminder(ctx context.Context, r Reminder)
}

type NotifierFunc func(ctx context.Context, r Reminder)

func (f NotifierFunc) NotifyReminder(ctx context.Context, r Reminder) { f(ctx, r) }

// Scheduler polls a Store for due reminders.
type Scheduler struct {
	store    Store
	notifier Notifier
	logger   *zap.Logger
	now      func() time.Time
}

func NewScheduler(store Store, notifier Notifier, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		store:    store,
		notifier: notifier,
		logger:   logger.With(zap.String("component", "reminder_scheduler")),
		now:      time.Now,
	}
}

// Start polls every interval until ctx is done.
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Tick(ctx)
			}
		}
	}()
}

// Tick delivers every reminder that is due now and returns how many were sent.
func (s *Scheduler) Tick(ctx context.Context) int {
	due, err := s.store.TakeDue(ctx, s.now())
	if err != nil {
		s.logger.Warn("take due reminders failed", zap.Error(err))
	}
	for _, r := range due {
		s.notifier.NotifyReminder(ctx, r)
		s.logger.Info("reminder delivered", zap.String("reminder_id", r.ID), zap.String("user_id", r.UserID))
	}
	return len(due)
}

// Describe renders a confirmation line for a stored reminder.
func Describe(r Reminder, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return "Reminder set for " + r.DueAt.In(loc).Format("Mon Jan 2 15:04") + ": " + strings.TrimSpace(r.Text)
}
