package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Lllllllleong/accessibilityflow/internal/models"
	"github.com/Lllllllleong/accessibilityflow/internal/store"
)

// ContentExtractor is the extraction stage.
type ContentExtractor interface {
	Extract(ctx context.Context, pdf []byte) (*Extraction, error)
}

// AltTextSource is the alt-text stage. It must return one result per image.
type AltTextSource interface {
	Generate(ctx context.Context, images []models.ImageRecord) []models.AltTextResult
}

// Pipeline runs a PDF through extraction, alt text, audit and HTML synthesis,
// committing one Document snapshot per stage.
type Pipeline struct {
	documents   store.DocumentStore
	artifacts   store.ArtifactStore
	extractor   ContentExtractor
	altText     AltTextSource
	auditor     *Auditor
	synthesizer *HTMLSynthesizer

	now   func() time.Time
	newID func() string
}

// PipelineOption customizes a Pipeline.
type PipelineOption func(*Pipeline)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) PipelineOption {
	return func(p *Pipeline) { p.now = now }
}

// WithIDGenerator overrides document id generation.
func WithIDGenerator(newID func() string) PipelineOption {
	return func(p *Pipeline) { p.newID = newID }
}

// WithSynthesizer replaces the HTML synthesizer, e.g. to swap the block classifier.
func WithSynthesizer(s *HTMLSynthesizer) PipelineOption {
	return func(p *Pipeline) { p.synthesizer = s }
}

// NewPipeline wires the stages together.
func NewPipeline(documents store.DocumentStore, artifacts store.ArtifactStore, extractor ContentExtractor, altText AltTextSource, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		documents:   documents,
		artifacts:   artifacts,
		extractor:   extractor,
		altText:     altText,
		auditor:     NewAuditor(),
		synthesizer: NewHTMLSynthesizer(),
		now:         func() time.Time { return time.Now().UTC() },
		newID:       uuid.NewString,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ValidateUpload rejects input that cannot be a PDF before anything is stored.
func ValidateUpload(filename string, pdf []byte) error {
	if len(pdf) == 0 {
		return &models.ValidationError{Reason: "file is empty"}
	}
	if !strings.EqualFold(filepath.Ext(filename), ".pdf") {
		return &models.ValidationError{Reason: fmt.Sprintf("%q is not a .pdf file", filename)}
	}
	return nil
}

// FileHash is the sha256 hex digest used to recognise re-uploads.
func FileHash(pdf []byte) string {
	sum := sha256.Sum256(pdf)
	return hex.EncodeToString(sum[:])
}

// Process runs a new document through every stage and returns its final snapshot.
func (p *Pipeline) Process(ctx context.Context, filename string, pdf []byte) (models.Document, error) {
	return p.ProcessWithID(ctx, "", filename, pdf)
}

// ProcessWithID is Process with a caller-chosen document id; an empty id
// generates one. A stage failure persists a FAILED snapshot and returns the
// cause wrapped, so errors.As reaches *models.ExtractionError and friends.
func (p *Pipeline) ProcessWithID(ctx context.Context, id, filename string, pdf []byte) (doc models.Document, err error) {
	if err := ValidateUpload(filename, pdf); err != nil {
		return models.Document{}, err
	}
	if id == "" {
		id = p.newID()
	}
	logCtx := slog.With("documentId", id, "filename", filename)
	logCtx.Info("Starting accessibility pipeline.", "bytes", len(pdf))

	originalPath, err := p.artifacts.Put(ctx, id+"/original.pdf", "application/pdf", pdf)
	if err != nil {
		return models.Document{}, fmt.Errorf("failed to store original pdf: %w", err)
	}

	current := models.NewDocument(id, filename, FileHash(pdf), originalPath, p.now())
	if err := p.documents.Create(ctx, current); err != nil {
		return models.Document{}, fmt.Errorf("failed to create document: %w", err)
	}

	defer func() {
		if r := recover(); r != nil {
			doc, err = p.fail(ctx, logCtx, current, "pipeline panicked", fmt.Errorf("panic: %v", r))
		}
	}()

	extraction, err := p.extractor.Extract(ctx, pdf)
	if err != nil {
		return p.fail(ctx, logCtx, current, "failed to extract pdf content", err)
	}
	current = current.WithExtraction(extraction.Text, extraction.PageCount, p.now())
	if err := p.commit(ctx, current); err != nil {
		return p.fail(ctx, logCtx, current, "failed to persist EXTRACTED snapshot", err)
	}
	logCtx.Info("Extraction complete.", "pageCount", extraction.PageCount, "images", len(extraction.Images), "tagged", extraction.Tagged)

	var altText []models.AltTextResult
	if len(extraction.Images) > 0 {
		altText = p.altText.Generate(ctx, extraction.Images)
		altJSON, err := json.Marshal(altText)
		if err != nil {
			return p.fail(ctx, logCtx, current, "failed to encode alt text", err)
		}
		current = current.WithAltText(string(altJSON), p.now())
		if err := p.commit(ctx, current); err != nil {
			return p.fail(ctx, logCtx, current, "failed to persist ALT_DONE snapshot", err)
		}
		logCtx.Info("Alt text generated.", "results", len(altText))
	}

	report := p.auditor.Audit(AuditInput{
		DocumentID:  id,
		Filename:    filename,
		Tagged:      extraction.Tagged,
		AltText:     altText,
		TotalImages: len(extraction.Images),
	})
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return p.fail(ctx, logCtx, current, "failed to encode report", err)
	}
	label, source := ComplianceFor(report)
	current = current.WithReport(string(reportJSON), label, source, p.now())
	if err := p.commit(ctx, current); err != nil {
		return p.fail(ctx, logCtx, current, "failed to persist report", err)
	}
	logCtx.Info("Audit complete.", "errors", report.Errors, "warnings", report.Warnings, "complianceLabel", label)

	page, err := p.synthesizer.Synthesize(strings.TrimSuffix(filename, filepath.Ext(filename)), extraction.Pages, extraction.Images, altText)
	if err != nil {
		return p.fail(ctx, logCtx, current, "failed to synthesize html", err)
	}
	alteredPath, err := p.artifacts.Put(ctx, id+"/accessible.html", "text/html; charset=utf-8", []byte(page))
	if err != nil {
		return p.fail(ctx, logCtx, current, "failed to store accessible html", err)
	}
	outcome := OutcomeFor(report)
	current = current.WithRendition(page, alteredPath, outcome, p.now())
	if err := p.commit(ctx, current); err != nil {
		return p.fail(ctx, logCtx, current, "failed to persist final snapshot", err)
	}

	logCtx.Info("Accessibility pipeline finished.", "status", outcome)
	return current, nil
}

func (p *Pipeline) commit(ctx context.Context, doc models.Document) error {
	return p.documents.Update(ctx, doc)
}

// fail persists a FAILED snapshot derived from the last committed state. The
// write ignores caller cancellation so the failure is always recorded.
func (p *Pipeline) fail(ctx context.Context, logCtx *slog.Logger, current models.Document, message string, cause error) (models.Document, error) {
	logCtx.Error(message, "error", cause)
	failed := current.WithFailure(fmt.Sprintf("%s: %v", message, cause), p.now())
	if err := p.documents.Update(context.WithoutCancel(ctx), failed); err != nil {
		logCtx.Error("CRITICAL: Failed to persist FAILED status after a processing error.", "updateError", err)
	}
	return failed, fmt.Errorf("%s: %w", message, cause)
}
