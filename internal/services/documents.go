package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Lllllllleong/accessibilityflow/internal/models"
	"github.com/Lllllllleong/accessibilityflow/internal/store"
)

// DocumentService answers read-only queries about processed documents.
type DocumentService struct {
	documents store.DocumentStore
	artifacts store.ArtifactStore
}

// NewDocumentService returns a query service over the given stores.
func NewDocumentService(documents store.DocumentStore, artifacts store.ArtifactStore) *DocumentService {
	return &DocumentService{documents: documents, artifacts: artifacts}
}

// IsAltered reports whether a document finished with an accessible rendition.
func IsAltered(doc models.Document) bool {
	return doc.Status.Terminal() && doc.Status != models.StatusFailed && doc.AlteredContent != ""
}

// AlteredDocuments lists documents with a finished rendition, newest first.
func (s *DocumentService) AlteredDocuments(ctx context.Context) ([]models.Document, error) {
	docs, err := s.documents.FindAll(ctx, IsAltered)
	if err != nil {
		return nil, fmt.Errorf("failed to list altered documents: %w", err)
	}
	return docs, nil
}

// Document returns the latest snapshot of id.
func (s *DocumentService) Document(ctx context.Context, id string) (models.Document, error) {
	return s.documents.Get(ctx, id)
}

// Report decodes the stored audit. A missing or unreadable report is
// reported as models.ErrNotFound.
func (s *DocumentService) Report(ctx context.Context, id string) (models.AccessibilityReport, error) {
	doc, err := s.documents.Get(ctx, id)
	if err != nil {
		return models.AccessibilityReport{}, err
	}
	if doc.ReportJSON == "" {
		return models.AccessibilityReport{}, fmt.Errorf("report for %s: %w", id, models.ErrNotFound)
	}
	var report models.AccessibilityReport
	if err := json.Unmarshal([]byte(doc.ReportJSON), &report); err != nil {
		slog.Warn("Stored report is malformed; treating as absent.", "documentId", id, "error", err)
		return models.AccessibilityReport{}, fmt.Errorf("report for %s: %w", id, models.ErrNotFound)
	}
	return report, nil
}

// AltText decodes the stored alt text results. Malformed data yields an empty list.
func (s *DocumentService) AltText(ctx context.Context, id string) ([]models.AltTextResult, error) {
	doc, err := s.documents.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	results := models.DecodeAltText(doc.AltTextJSON)
	if results == nil {
		results = []models.AltTextResult{}
	}
	return results, nil
}

// Rendition returns the accessible HTML of a document. The stored artifact
// is preferred; the copy on the document row is the fallback.
func (s *DocumentService) Rendition(ctx context.Context, id string) (models.Document, []byte, error) {
	doc, err := s.documents.Get(ctx, id)
	if err != nil {
		return models.Document{}, nil, err
	}
	if doc.AlteredPath != "" && s.artifacts != nil {
		data, err := s.artifacts.Get(ctx, doc.AlteredPath)
		if err == nil {
			return doc, data, nil
		}
		if !errors.Is(err, models.ErrNotFound) {
			slog.Warn("Could not read stored rendition; using document copy.", "documentId", id, "path", doc.AlteredPath, "error", err)
		}
	}
	if doc.AlteredContent == "" {
		return models.Document{}, nil, fmt.Errorf("rendition for %s: %w", id, models.ErrNotFound)
	}
	return doc, []byte(doc.AlteredContent), nil
}
