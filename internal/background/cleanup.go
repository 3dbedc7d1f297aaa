package background

import (
	"context"
	"log/slog"
	"time"

	"github.com/icanedev/smartcane-api/internal/services"
)

// CleanupManager periodically prunes stale login attempts from the ledger.
// Rows older than the retention horizon sit outside every lockout window, so
// deleting them never changes a lockout decision. Passcode rows are kept
// forever as an audit trail and are never touched here.
type CleanupManager struct {
	lockout  *services.LockoutService
	logger   *slog.Logger
	interval time.Duration
	stopCh   chan struct{}
}

// NewCleanupManager creates a new cleanup manager
func NewCleanupManager(lockout *services.LockoutService, logger *slog.Logger, interval time.Duration) *CleanupManager {
	return &CleanupManager{
		lockout:  lockout,
		logger:   logger,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the periodic cleanup task
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

	rowsDeleted, err := cm.lockout.PruneStale(cleanupCtx)
	if err != nil {
		cm.logger.Error("failed to prune stale login attempts", slog.Any("error", err))
		return
	}

	if rowsDeleted > 0 {
		cm.logger.Info("stale login attempts pruned", slog.Int64("rows_deleted", rowsDeleted))
	}
}

// Stop signals the cleanup manager to stop
func (cm *CleanupManager) Stop() {
	close(cm.stopCh)
}
