package workers

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

// Sweeper re-drives notifications that were never marked sent.
type Sweeper interface {
	RetryPending(ctx context.Context, limit int) (int, error)
}

// NotificationSweeper runs the notification retry sweep on a fixed interval.
// Runs never overlap.
type NotificationSweeper struct {
	sched    gocron.Scheduler
	sweeper  Sweeper
	interval time.Duration
	batch    int
	logger   *zap.Logger
}

func NewNotificationSweeper(sweeper Sweeper, interval time.Duration, batch int, logger *zap.Logger) (*NotificationSweeper, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("sweep interval must be positive")
	}
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}
	return &NotificationSweeper{
		sched:    sched,
		sweeper:  sweeper,
		interval: interval,
		batch:    batch,
		logger:   logger,
	}, nil
}

func (w *NotificationSweeper) Start() error {
	_, err := w.sched.NewJob(
		gocron.DurationJob(w.interval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), w.interval)
			defer cancel()
			w.RunOnce(ctx)
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithName("notification_sweep"),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule notification sweep: %w", err)
	}

	w.sched.Start()
	w.logger.Info("notification_sweeper_started", zap.Duration("interval", w.interval), zap.Int("batch", w.batch))
	return nil
}

// RunOnce performs a single sweep and returns how many refs completed.
func (w *NotificationSweeper) RunOnce(ctx context.Context) int {
	sent, err := w.sweeper.RetryPending(ctx, w.batch)
	if err != nil {
		w.logger.Error("notification_sweep_failed", zap.Error(err))
		return sent
	}
	if sent > 0 {
		w.logger.Info("notification_sweep_complete", zap.Int("sent", sent))
	}
	return sent
}

func (w *NotificationSweeper) Stop() error {
	return w.sched.Shutdown()
}
