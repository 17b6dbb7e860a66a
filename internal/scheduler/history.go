package scheduler

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// HistoryEntry records one execution attempt.
type HistoryEntry struct {
	JobID        string
	Name         string
	Status       Status
	ScheduledFor time.Time
	StartedAt    time.Time
	FinishedAt   time.Time
	Error        string
}

// History records job execution attempts.
type History interface {
	Record(entry HistoryEntry) error
}

// SQLHistory writes execution history to the job_history table.
type SQLHistory struct {
	db *sql.DB
}

// NewSQLHistory wraps an already-migrated database connection.
func NewSQLHistory(db *sql.DB) *SQLHistory {
	return &SQLHistory{db: db}
}

// Record inserts one history row.
func (h *SQLHistory) Record(entry HistoryEntry) error {
	_, err := h.db.Exec(`
		INSERT INTO job_history (id, job_id, name, status, scheduled_for, started_at, finished_at, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, uuid.New().String(), entry.JobID, entry.Name, string(entry.Status),
		entry.ScheduledFor, entry.StartedAt, entry.FinishedAt, entry.Error)
	if err != nil {
		return fmt.Errorf("failed to record history for job %s: %w", entry.JobID, err)
	}
	return nil
}

// Recent returns the most recent executions, newest first.
func (h *SQLHistory) Recent(limit int) ([]HistoryEntry, error) {
	rows, err := h.db.Query(`
		SELECT job_id, name, status, scheduled_for, started_at, finished_at, error
		FROM job_history ORDER BY started_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var entries []HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		var status string
		if err := rows.Scan(&e.JobID, &e.Name, &status, &e.ScheduledFor, &e.StartedAt, &e.FinishedAt, &e.Error); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		e.Status = Status(status)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
