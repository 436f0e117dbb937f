package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/Lllllllleong/accessibilityflow/internal/models"
)

// Ensure MemoryStore implements the interface.
var _ DocumentStore = (*MemoryStore)(nil)

// MemoryStore is a process-local DocumentStore, used for development and tests.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]models.Document
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]models.Document)}
}

func (s *MemoryStore) Create(_ context.Context, doc models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.docs[doc.ID]; exists {
		return fmt.Errorf("document %s already exists", doc.ID)
	}
	s.docs[doc.ID] = doc
	return nil
}

func (s *MemoryStore) Update(_ context.Context, doc models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.docs[doc.ID]; !exists {
		return fmt.Errorf("document %s: %w", doc.ID, models.ErrNotFound)
	}
	s.docs[doc.ID] = doc
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[id]
	if !ok {
		return models.Document{}, fmt.Errorf("document %s: %w", id, models.ErrNotFound)
	}
	return doc, nil
}

func (s *MemoryStore) FindAll(_ context.Context, pred Predicate) ([]models.Document, error) {
	s.mu.RLock()
	out := make([]models.Document, 0, len(s.docs))
	for _, doc := range s.docs {
		if pred == nil || pred(doc) {
			out = append(out, doc)
		}
	}
	s.mu.RUnlock()
	sortNewestFirst(out)
	return out, nil
}

func sortNewestFirst(docs []models.Document) {
	sort.SliceStable(docs, func(i, j int) bool {
		if docs[i].CreatedAt.Equal(docs[j].CreatedAt) {
			return docs[i].ID < docs[j].ID
		}
		return docs[i].CreatedAt.After(docs[j].CreatedAt)
	})
}
