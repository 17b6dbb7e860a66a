// Package maintenance keeps the vault database healthy: pruning old
// history rows and running SQLite housekeeping. Tasks are executed by a
// recurring scheduler job rather than an internal timer.
package maintenance

import (
	"context"
	"time"
)

// Task is one maintenance operation over the vault database.
type Task interface {
	// Name returns the name of the maintenance task
	Name() string

	// Description returns a human-readable description of what the task does
	Description() string

	// Execute runs the maintenance task
	Execute(ctx context.Context) TaskResult
}

// TaskResult represents the result of executing a maintenance task
type TaskResult struct {
	Task             string        `json:"task"`
	Success          bool          `json:"success"`
	Duration         time.Duration `json:"duration"`
	Message          string        `json:"message"`
	RecordsProcessed int64         `json:"records_processed,omitempty"`
	Error            string        `json:"error,omitempty"`
}

// Config represents maintenance configuration
type Config struct {
	Enabled bool   `json:"enabled"`
	Spec    string `json:"spec"` // cron expression, default "0 2 * * *" (daily 2 AM)

	// RetentionDays bounds how long finished job history and delivered
	// notifications are kept.
	RetentionDays int `json:"retention_days"`

	// Database maintenance configuration
	Database DatabaseConfig `json:"database"`
}

// DatabaseConfig configures database housekeeping operations
type DatabaseConfig struct {
	VacuumEnabled   bool  `json:"vacuum_enabled"`   // default true
	VacuumThreshold int64 `json:"vacuum_threshold"` // vacuum when DB > threshold MB
	OptimizeIndexes bool  `json:"optimize_indexes"` // default true
}

// DefaultConfig returns the default maintenance configuration
func DefaultConfig() Config {
	return Config{
		Enabled:       true,
		Spec:          "0 2 * * *",
		RetentionDays: 30,
		Database: DatabaseConfig{
			VacuumEnabled:   true,
			VacuumThreshold: 100,
			OptimizeIndexes: true,
		},
	}
}
