// Package maintenance runs background sweeps that keep persisted
// notification state consistent while the API is up.
package maintenance

import (
	"context"
	"log/slog"
	"time"

	"github.com/playbuddy/playbuddy-notify/internal/notify"
)

// Config holds sweep intervals.
type Config struct {
	SweepInterval time.Duration
}

// DefaultConfig returns production sweep intervals.
func DefaultConfig() Config {
	return Config{SweepInterval: 15 * time.Minute}
}

// Start runs the maintenance loop until ctx is cancelled. Each sweep folds
// fired plan slots into history and refreshes the unread badge, so the
// history view stays correct even when no client triggers a reschedule.
// Intended to be called with `go`.
func Start(ctx context.Context, scheduler *notify.Scheduler, notifier notify.Notifier, cfg Config, logger *slog.Logger) {
	logger.Info("maintenance sweeps started", "interval", cfg.SweepInterval)
	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			sweep(ctx, scheduler, notifier, logger)
		case <-ctx.Done():
			logger.Info("maintenance sweeps stopped")
			return
		}
	}
}

func sweep(ctx context.Context, scheduler *notify.Scheduler, notifier notify.Notifier, logger *slog.Logger) {
	if err := scheduler.SyncHistory(ctx); err != nil {
		logger.Warn("history sweep failed", "error", err)
		return
	}

	unread, err := scheduler.History().UnreadCount(ctx)
	if err != nil {
		logger.Warn("unread count failed", "error", err)
		return
	}
	if err := notifier.SetBadgeCount(ctx, unread); err != nil {
		logger.Warn("badge refresh failed", "error", err)
	}
}
