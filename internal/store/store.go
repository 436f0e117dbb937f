// Package store persists Document snapshots and the binary artifacts they point to.
package store

import (
	"context"

	"github.com/Lllllllleong/accessibilityflow/internal/models"
)

// Predicate selects documents in FindAll.
type Predicate func(models.Document) bool

// DocumentStore holds the latest snapshot of every Document.
type DocumentStore interface {
	// Create persists a new document. Creating an existing id is an error.
	Create(ctx context.Context, doc models.Document) error
	// Update replaces the stored snapshot of doc.ID.
	Update(ctx context.Context, doc models.Document) error
	// Get returns models.ErrNotFound when id is unknown.
	Get(ctx context.Context, id string) (models.Document, error)
	// FindAll returns every document matching pred, newest first. A nil pred matches all.
	FindAll(ctx context.Context, pred Predicate) ([]models.Document, error)
}

// ArtifactStore keeps original PDFs and rendered HTML.
type ArtifactStore interface {
	// Put stores data under name and returns the path Get accepts.
	Put(ctx context.Context, name, contentType string, data []byte) (string, error)
	// Get returns models.ErrNotFound when nothing is stored at path.
	Get(ctx context.Context, path string) ([]byte, error)
}
