package vault

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for tests and ephemeral runs.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]Document
	now  func() time.Time
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs: make(map[string]Document),
		now:  time.Now,
	}
}

// Put inserts or replaces a document.
func (s *MemoryStore) Put(key, content, category string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	doc, exists := s.docs[key]
	if !exists {
		doc = Document{Key: key, CreatedAt: now}
	}
	doc.Category = category
	doc.Content = content
	doc.UpdatedAt = now
	s.docs[key] = doc
	return nil
}

// Get returns a document by key.
func (s *MemoryStore) Get(key string) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.docs[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, key)
	}
	return &doc, nil
}

// List returns documents in a category ordered by key.
func (s *MemoryStore) List(category string) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var docs []Document
	for _, doc := range s.docs {
		if category == "" || doc.Category == category {
			docs = append(docs, doc)
		}
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].Key < docs[j].Key })
	return docs, nil
}

// Delete removes a document. Missing keys are ignored.
func (s *MemoryStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, key)
	return nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}
