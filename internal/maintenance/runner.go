package maintenance

import (
	"context"
	"database/sql"
	"log"
	"sync"
)

// Runner executes the registered maintenance tasks in order. It is driven
// externally, typically by a recurring scheduler job.
type Runner struct {
	mu     sync.Mutex
	tasks  []Task
	last   []TaskResult
	logger *log.Logger
}

// NewRunner builds a runner with the standard task set for a vault database.
func NewRunner(db *sql.DB, dbPath string, cfg Config, logger *log.Logger) *Runner {
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{
		tasks: []Task{
			NewHistoryCleanupTask(db, cfg.RetentionDays, logger),
			NewDatabaseMaintenanceTask(db, dbPath, cfg.Database, logger),
		},
		logger: logger,
	}
}

// RegisterTask appends an extra task to the run list.
func (r *Runner) RegisterTask(task Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks = append(r.tasks, task)
}

// RunAll executes every task, continuing past failures, and returns all
// results. A single failed task does not abort the run.
func (r *Runner) RunAll(ctx context.Context) []TaskResult {
	r.mu.Lock()
	tasks := make([]Task, len(r.tasks))
	copy(tasks, r.tasks)
	r.mu.Unlock()

	results := make([]TaskResult, 0, len(tasks))
	for _, task := range tasks {
		r.logger.Printf("[Maintenance] Running task: %s", task.Name())
		results = append(results, task.Execute(ctx))
	}

	r.mu.Lock()
	r.last = results
	r.mu.Unlock()
	return results
}

// LastResults returns the results of the most recent run.
func (r *Runner) LastResults() []TaskResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]TaskResult, len(r.last))
	copy(out, r.last)
	return out
}
