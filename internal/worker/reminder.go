package worker

import (
	"context"
	"time"

	"github.com/jwalitptl/care-scheduling/internal/model"
	"github.com/jwalitptl/care-scheduling/pkg/logger"
)

type Sweeper interface {
	Sweep(ctx context.Context) (model.SweepResult, error)
}

type ReminderWorker struct {
	sweeper  Sweeper
	interval time.Duration
	timeout  time.Duration
	logger   *logger.Logger
}

func NewReminderWorker(sweeper Sweeper, interval, timeout time.Duration, log *logger.Logger) *ReminderWorker {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if timeout <= 0 || timeout > interval {
		timeout = interval
	}
	return &ReminderWorker{
		sweeper:  sweeper,
		interval: interval,
		timeout:  timeout,
		logger:   log,
	}
}

// Start sweeps once immediately and then on every tick until ctx is done.
func (w *ReminderWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("Starting reminder worker", "interval", w.interval.String())
	w.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Shutting down reminder worker")
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *ReminderWorker) sweep(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	if _, err := w.sweeper.Sweep(ctx); err != nil && ctx.Err() == nil {
		w.logger.Error(err, "Reminder sweep failed")
	}
}
