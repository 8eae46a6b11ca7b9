package background

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// AuditPruner deletes audit log entries created before cutoff
type AuditPruner interface {
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
}

// CleanupManager periodically prunes audit logs past their retention
type CleanupManager struct {
	pruner    AuditPruner
	logger    *slog.Logger
	interval  time.Duration
	retention time.Duration
	stopCh    chan struct{}
	stopOnce  sync.Once
	now       func() time.Time
}

// NewCleanupManager creates a new cleanup manager
func NewCleanupManager(
	pruner AuditPruner,
	logger *slog.Logger,
	interval time.Duration,
	retention time.Duration,
) *CleanupManager {
	return &CleanupManager{
		pruner:    pruner,
		logger:    logger,
		interval:  interval,
		retention: retention,
		stopCh:    make(chan struct{}),
		now:       time.Now,
	}
}

// Start begins the periodic cleanup task. It blocks until Stop is called
// or ctx is done.
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

// runCleanup removes audit logs older than the retention period
func (cm *CleanupManager) runCleanup(ctx context.Context) {
	cleanupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	cutoff := cm.now().Add(-cm.retention)

	rowsDeleted, err := cm.pruner.Prune(cleanupCtx, cutoff)
	if err != nil {
		cm.logger.Error("failed to prune audit logs", slog.Any("error", err))
		return
	}

	if rowsDeleted > 0 {
		cm.logger.Info("audit log cleanup completed",
			slog.Int64("rows_deleted", rowsDeleted),
			slog.Time("cutoff", cutoff))
	}
}

// Stop signals the cleanup manager to stop. Safe to call more than once.
func (cm *CleanupManager) Stop() {
	cm.stopOnce.Do(func() {
		close(cm.stopCh)
	})
}
