package maintenance

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"time"
)

// DatabaseMaintenanceTask handles SQLite housekeeping: WAL checkpointing,
// index statistics, and vacuuming once the file grows past a threshold.
type DatabaseMaintenanceTask struct {
	db     *sql.DB
	dbPath string
	config DatabaseConfig
	logger *log.Logger
}

// NewDatabaseMaintenanceTask creates a database maintenance task.
func NewDatabaseMaintenanceTask(db *sql.DB, dbPath string, config DatabaseConfig, logger *log.Logger) *DatabaseMaintenanceTask {
	if logger == nil {
		logger = log.Default()
	}
	return &DatabaseMaintenanceTask{
		db:     db,
		dbPath: dbPath,
		config: config,
		logger: logger,
	}
}

// Name returns the task name
func (t *DatabaseMaintenanceTask) Name() string {
	return "database_maintenance"
}

// Description returns the task description
func (t *DatabaseMaintenanceTask) Description() string {
	return "Checkpoint WAL, refresh index statistics, vacuum when oversized"
}

// Execute runs the housekeeping steps.
func (t *DatabaseMaintenanceTask) Execute(ctx context.Context) TaskResult {
	start := time.Now()
	var steps []string

	if _, err := t.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return t.failure(start, fmt.Errorf("wal checkpoint failed: %w", err))
	}
	steps = append(steps, "checkpoint")

	if t.config.OptimizeIndexes {
		if _, err := t.db.ExecContext(ctx, "ANALYZE"); err != nil {
			return t.failure(start, fmt.Errorf("analyze failed: %w", err))
		}
		steps = append(steps, "analyze")
	}

	if t.config.VacuumEnabled && t.shouldVacuum() {
		if _, err := t.db.ExecContext(ctx, "VACUUM"); err != nil {
			return t.failure(start, fmt.Errorf("vacuum failed: %w", err))
		}
		steps = append(steps, "vacuum")
	}

	t.logger.Printf("[Maintenance] database_maintenance ran: %v", steps)
	return TaskResult{
		Task:     t.Name(),
		Success:  true,
		Duration: time.Since(start),
		Message:  fmt.Sprintf("ran %v", steps),
	}
}

// shouldVacuum checks the database file size against the threshold.
func (t *DatabaseMaintenanceTask) shouldVacuum() bool {
	if t.dbPath == "" {
		return false
	}
	info, err := os.Stat(t.dbPath)
	if err != nil {
		return false
	}
	return info.Size() > t.config.VacuumThreshold*1024*1024
}

func (t *DatabaseMaintenanceTask) failure(start time.Time, err error) TaskResult {
	t.logger.Printf("[Maintenance] database_maintenance failed: %v", err)
	return TaskResult{
		Task:     t.Name(),
		Duration: time.Since(start),
		Error:    err.Error(),
	}
}
