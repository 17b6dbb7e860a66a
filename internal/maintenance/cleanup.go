package maintenance

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"
)

// HistoryCleanupTask prunes old job history and settled notification rows.
type HistoryCleanupTask struct {
	db            *sql.DB
	retentionDays int
	logger        *log.Logger
	now           func() time.Time
}

// NewHistoryCleanupTask creates a history cleanup task.
func NewHistoryCleanupTask(db *sql.DB, retentionDays int, logger *log.Logger) *HistoryCleanupTask {
	if logger == nil {
		logger = log.Default()
	}
	if retentionDays <= 0 {
		retentionDays = 30
	}
	return &HistoryCleanupTask{
		db:            db,
		retentionDays: retentionDays,
		logger:        logger,
		now:           time.Now,
	}
}

// Name returns the task name
func (t *HistoryCleanupTask) Name() string {
	return "history_cleanup"
}

// Description returns the task description
func (t *HistoryCleanupTask) Description() string {
	return fmt.Sprintf("Prune job history and settled notifications older than %d days", t.retentionDays)
}

// Execute runs the cleanup. Pending notifications are never pruned so an
// in-flight retry cannot lose its log row.
func (t *HistoryCleanupTask) Execute(ctx context.Context) TaskResult {
	start := t.now()
	cutoff := start.AddDate(0, 0, -t.retentionDays)

	var total int64

	res, err := t.db.ExecContext(ctx,
		`DELETE FROM job_history WHERE scheduled_for < ?`, cutoff)
	if err != nil {
		return t.failure(start, fmt.Errorf("failed to prune job_history: %w", err))
	}
	if n, err := res.RowsAffected(); err == nil {
		total += n
	}

	res, err = t.db.ExecContext(ctx,
		`DELETE FROM notification_log WHERE created_at < ? AND status != 'pending'`, cutoff)
	if err != nil {
		return t.failure(start, fmt.Errorf("failed to prune notification_log: %w", err))
	}
	if n, err := res.RowsAffected(); err == nil {
		total += n
	}

	t.logger.Printf("[Maintenance] history_cleanup removed %d rows older than %s", total, cutoff.Format(time.RFC3339))
	return TaskResult{
		Task:             t.Name(),
		Success:          true,
		Duration:         t.now().Sub(start),
		Message:          fmt.Sprintf("removed %d rows", total),
		RecordsProcessed: total,
	}
}

func (t *HistoryCleanupTask) failure(start time.Time, err error) TaskResult {
	t.logger.Printf("[Maintenance] history_cleanup failed: %v", err)
	return TaskResult{
		Task:     t.Name(),
		Duration: t.now().Sub(start),
		Error:    err.Error(),
	}
}
