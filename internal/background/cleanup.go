package background

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// ChallengePurger removes challenges that can no longer be referenced
type ChallengePurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// CleanupManager periodically purges stale OTP challenges
type CleanupManager struct {
	purger   ChallengePurger
	logger   *slog.Logger
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewCleanupManager creates a new cleanup manager
func NewCleanupManager(purger ChallengePurger, logger *slog.Logger, interval time.Duration) *CleanupManager {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &CleanupManager{
		purger:   purger,
		logger:   logger,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start runs the cleanup loop until Stop is called or ctx is cancelled
func (cm *CleanupManager) Start(ctx context.Context) {
	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	// Run immediately on startup
	cm.runCleanup(ctx)

	for {
		select {
		case <-ticker.C:
			cm.runCleanup(ctx)
		case <-cm.stopCh:
			cm.logger.Info("cleanup manager stopped")
			return
		case <-ctx.Done():
			cm.logger.Info("cleanup manager context cancelled")
			return
		}
	}
}

func (cm *CleanupManager) runCleanup(ctx context.Context) {
	cleanupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	purged, err := cm.purger.PurgeExpired(cleanupCtx)
	if err != nil {
		cm.logger.Error("failed to purge expired challenges", slog.Any("error", err))
		return
	}

	if purged > 0 {
		cm.logger.Info("expired challenge cleanup completed", slog.Int64("challenges_purged", purged))
	}
}

// Stop signals the cleanup manager to stop; calling it more than once is safe
func (cm *CleanupManager) Stop() {
	cm.stopOnce.Do(func() {
		close(cm.stopCh)
	})
}
