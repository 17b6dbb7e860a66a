package database

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Migration represents a database migration
type Migration struct {
	Version int
	Name    string
	SQL     string
}

// GetMigrations returns all available migrations in order
func GetMigrations() []Migration {
	return []Migration{
		{
			Version: 1,
			Name:    "create_vault_documents_table",
			SQL: `
				CREATE TABLE IF NOT EXISTS vault_documents (
					key TEXT PRIMARY KEY,
					category TEXT NOT NULL DEFAULT '',
					content TEXT NOT NULL,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
				);

				CREATE INDEX IF NOT EXISTS idx_vault_documents_category ON vault_documents (category);
				CREATE INDEX IF NOT EXISTS idx_vault_documents_updated_at ON vault_documents (updated_at);

				-- Create a migration tracking table
				CREATE TABLE IF NOT EXISTS schema_migrations (
					version INTEGER PRIMARY KEY,
					name TEXT NOT NULL,
					applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
				);
			`,
		},
		{
			Version: 2,
			Name:    "create_notification_log_table",
			SQL: `
				-- Delivery log for outbound notifications
				CREATE TABLE IF NOT EXISTS notification_log (
					id TEXT PRIMARY KEY,
					channel TEXT NOT NULL,
					reference TEXT NOT NULL DEFAULT '',
					message TEXT NOT NULL,
					status TEXT NOT NULL DEFAULT 'pending',
					attempts INTEGER DEFAULT 0,
					last_error TEXT DEFAULT '',
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					delivered_at DATETIME
				);

				CREATE INDEX IF NOT EXISTS idx_notification_log_status ON notification_log (status);
				CREATE INDEX IF NOT EXISTS idx_notification_log_reference ON notification_log (reference);
				CREATE INDEX IF NOT EXISTS idx_notification_log_created_at ON notification_log (created_at);
			`,
		},
		{
			Version: 3,
			Name:    "create_job_history_table",
			SQL: `
				-- Execution history for scheduled jobs
				CREATE TABLE IF NOT EXISTS job_history (
					id TEXT PRIMARY KEY,
					job_id TEXT NOT NULL,
					name TEXT NOT NULL,
					status TEXT NOT NULL,
					scheduled_for DATETIME NOT NULL,
					started_at DATETIME,
					finished_at DATETIME,
					error TEXT DEFAULT ''
				);

				CREATE INDEX IF NOT EXISTS idx_job_history_job_id ON job_history (job_id);
				CREATE INDEX IF NOT EXISTS idx_job_history_status ON job_history (status);
				CREATE INDEX IF NOT EXISTS idx_job_history_scheduled_for ON job_history (scheduled_for);
			`,
		},
	}
}

// RunMigrations executes all pending migrations
func RunMigrations(db *sql.DB) error {
	// First, create the migrations table if it doesn't exist
	if err := ensureMigrationsTable(db); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	// Get current schema version
	currentVersion, err := getCurrentVersion(db)
	if err != nil {
		return fmt.Errorf("failed to get current version: %w", err)
	}

	// Run pending migrations
	migrations := GetMigrations()
	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue // Already applied
		}

		if err := runMigration(db, migration); err != nil {
			return fmt.Errorf("failed to run migration %d (%s): %w", migration.Version, migration.Name, err)
		}
	}

	return nil
}

// ensureMigrationsTable creates the schema_migrations table if it doesn't exist
func ensureMigrationsTable(db *sql.DB) error {
	sql := `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
	`
	_, err := db.Exec(sql)
	return err
}

// getCurrentVersion returns the current schema version
func getCurrentVersion(db *sql.DB) (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	if err != nil {
		// If table doesn't exist, return version 0
		if err.Error() == "SQL logic error: no such table: schema_migrations (1)" {
			return 0, nil
		}
		return 0, err
	}
	return version, nil
}

// runMigration executes a single migration
func runMigration(db *sql.DB, migration Migration) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(migration.SQL); err != nil {
		return err
	}

	// Record migration as applied
	if _, err := tx.Exec(
		"INSERT INTO schema_migrations (version, name) VALUES (?, ?)",
		migration.Version, migration.Name,
	); err != nil {
		return err
	}

	return tx.Commit()
}

// ConfigureDatabase applies SQLite optimizations and runs migrations
func ConfigureDatabase(db *sql.DB) error {
	// Configure connection pool for SQLite
	// SQLite serializes writes, so limit connections to avoid contention.
	// WAL mode allows concurrent readers, so we allow a few connections.
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(0) // Don't expire connections

	// Apply SQLite performance configurations
	pragmas := []string{
		"PRAGMA journal_mode=WAL",   // Write-ahead logging for better concurrency
		"PRAGMA busy_timeout=5000",  // Wait up to 5 seconds for locks
		"PRAGMA synchronous=NORMAL", // Safer sync mode with good performance
		"PRAGMA cache_size=10000",   // Increase cache size for better performance
		"PRAGMA foreign_keys=ON",    // Enforce foreign key constraints
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to apply pragma '%s': %w", pragma, err)
		}
	}

	// Run all pending migrations
	if err := RunMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}
