// Package vault provides durable document storage for audit records and
// scheduler state. Documents are keyed strings grouped by category.
package vault

import (
	"errors"
	"time"
)

// Document is a single stored record.
type Document struct {
	Key       string    `json:"key"`
	Category  string    `json:"category"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store is the persistence interface shared by the approval gate, the
// scheduler, and anything else that needs durable documents.
type Store interface {
	// Put inserts or replaces the document under key.
	Put(key, content, category string) error

	// Get returns the document for key, or ErrDocumentNotFound.
	Get(key string) (*Document, error)

	// List returns all documents in a category ordered by key. An empty
	// category lists everything.
	List(category string) ([]Document, error)

	// Delete removes the document for key. Deleting a missing key is not
	// an error.
	Delete(key string) error

	// Close releases underlying resources.
	Close() error
}

// ErrDocumentNotFound is returned by Get for unknown keys.
var ErrDocumentNotFound = errors.New("document not found")
