package vault

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"foreman/internal/database"
)

// SQLiteStore persists documents in the vault_documents table.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at dbPath and runs
// migrations. Use ":memory:" for an ephemeral store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := database.ConfigureDatabase(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure database: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// DB returns the underlying connection for shared use (e.g. the
// notification delivery log).
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// Put inserts or replaces a document.
func (s *SQLiteStore) Put(key, content, category string) error {
	now := time.Now().UTC()
	_, err := s.db.Exec(`
		INSERT INTO vault_documents (key, category, content, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			category = excluded.category,
			content = excluded.content,
			updated_at = excluded.updated_at
	`, key, category, content, now, now)
	if err != nil {
		return fmt.Errorf("failed to store document %s: %w", key, err)
	}
	return nil
}

// Get returns a single document by key.
func (s *SQLiteStore) Get(key string) (*Document, error) {
	var doc Document
	err := s.db.QueryRow(`
		SELECT key, category, content, created_at, updated_at
		FROM vault_documents WHERE key = ?
	`, key).Scan(&doc.Key, &doc.Category, &doc.Content, &doc.CreatedAt, &doc.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load document %s: %w", key, err)
	}
	return &doc, nil
}

// List returns documents in a category ordered by key.
func (s *SQLiteStore) List(category string) ([]Document, error) {
	query := `SELECT key, category, content, created_at, updated_at FROM vault_documents`
	args := []interface{}{}
	if category != "" {
		query += ` WHERE category = ?`
		args = append(args, category)
	}
	query += ` ORDER BY key`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var doc Document
		if err := rows.Scan(&doc.Key, &doc.Category, &doc.Content, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// Delete removes a document. Missing keys are ignored.
func (s *SQLiteStore) Delete(key string) error {
	if _, err := s.db.Exec(`DELETE FROM vault_documents WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete document %s: %w", key, err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
