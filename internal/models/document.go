package models

import "time"

// Status is the pipeline outcome recorded on a Document.
type Status string

const (
	StatusUploaded               Status = "UPLOADED"
	StatusExtracted              Status = "EXTRACTED"
	StatusAltDone                Status = "ALT_DONE"
	StatusRemediated             Status = "REMEDIATED"
	StatusRemediatedWithWarnings Status = "REMEDIATED_WITH_WARNINGS"
	StatusNeedsReview            Status = "NEEDS_REVIEW"
	StatusFailed                 Status = "FAILED"
)

// Terminal reports whether no further transition can follow s.
func (s Status) Terminal() bool {
	switch s {
	case StatusRemediated, StatusRemediatedWithWarnings, StatusNeedsReview, StatusFailed:
		return true
	}
	return false
}

// PipelineStage is the finer-grained progress marker written alongside Status.
type PipelineStage string

const (
	StageUploaded   PipelineStage = "UPLOADED"
	StageExtracted  PipelineStage = "EXTRACTED"
	StageAltDone    PipelineStage = "ALT_DONE"
	StageReportDone PipelineStage = "REPORT_DONE"
	StageHTMLDone   PipelineStage = "HTML_DONE"
	StageFailed     PipelineStage = "FAILED"
)

// ComplianceLabel is the dataset label assigned to a processed document.
type ComplianceLabel string

const (
	LabelCompliant    ComplianceLabel = "COMPLIANT"
	LabelNonCompliant ComplianceLabel = "NONCOMPLIANT"
	LabelUnknown      ComplianceLabel = "UNKNOWN"
)

// LabelSource records where a ComplianceLabel came from.
type LabelSource string

const (
	SourceHeuristic LabelSource = "HEURISTIC"
	SourceHuman     LabelSource = "HUMAN"
)

// Document is one snapshot of a PDF processing job. Snapshots are values: the
// With* methods return modified copies and never touch the receiver, so a
// persisted snapshot is never mutated after the fact.
type Document struct {
	ID               string          `firestore:"id" json:"id"`
	OriginalFilename string          `firestore:"originalFilename" json:"originalFilename"`
	FileHash         string          `firestore:"fileHash,omitempty" json:"fileHash,omitempty"`
	OriginalContent  string          `firestore:"originalContent,omitempty" json:"originalContent,omitempty"`
	AlteredContent   string          `firestore:"alteredContent,omitempty" json:"alteredContent,omitempty"`
	OriginalPath     string          `firestore:"originalPath,omitempty" json:"originalPath,omitempty"`
	AlteredPath      string          `firestore:"alteredPath,omitempty" json:"alteredPath,omitempty"`
	AltTextJSON      string          `firestore:"altTextJson,omitempty" json:"-"`
	ReportJSON       string          `firestore:"reportJson,omitempty" json:"-"`
	Status           Status          `firestore:"status" json:"status"`
	PipelineStage    PipelineStage   `firestore:"pipelineStage" json:"pipelineStage"`
	ComplianceLabel  ComplianceLabel `firestore:"complianceLabel" json:"complianceLabel"`
	LabelSource      LabelSource     `firestore:"labelSource,omitempty" json:"labelSource,omitempty"`
	ErrorDetails     string          `firestore:"errorDetails,omitempty" json:"errorDetails,omitempty"`
	PageCount        int             `firestore:"pageCount,omitempty" json:"pageCount,omitempty"`
	CreatedAt        time.Time       `firestore:"createdAt" json:"createdAt"`
	UpdatedAt        time.Time       `firestore:"updatedAt" json:"updatedAt"`
}

// NewDocument returns the UPLOADED snapshot for a freshly received file.
func NewDocument(id, filename, fileHash, originalPath string, now time.Time) Document {
	return Document{
		ID:               id,
		OriginalFilename: filename,
		FileHash:         fileHash,
		OriginalPath:     originalPath,
		Status:           StatusUploaded,
		PipelineStage:    StageUploaded,
		ComplianceLabel:  LabelUnknown,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// WithExtraction moves the document to EXTRACTED.
func (d Document) WithExtraction(text string, pageCount int, now time.Time) Document {
	d.OriginalContent = text
	d.PageCount = pageCount
	d.Status = StatusExtracted
	d.PipelineStage = StageExtracted
	d.UpdatedAt = now
	return d
}

// WithAltText moves the document to ALT_DONE.
func (d Document) WithAltText(altTextJSON string, now time.Time) Document {
	d.AltTextJSON = altTextJSON
	d.Status = StatusAltDone
	d.PipelineStage = StageAltDone
	d.UpdatedAt = now
	return d
}

// WithReport records the audit output. Status is left untouched until the
// accessible rendition exists.
func (d Document) WithReport(reportJSON string, label ComplianceLabel, source LabelSource, now time.Time) Document {
	d.ReportJSON = reportJSON
	d.ComplianceLabel = label
	d.LabelSource = source
	d.PipelineStage = StageReportDone
	d.UpdatedAt = now
	return d
}

// WithRendition stores the accessible HTML and the terminal outcome.
func (d Document) WithRendition(html, alteredPath string, outcome Status, now time.Time) Document {
	d.AlteredContent = html
	d.AlteredPath = alteredPath
	d.Status = outcome
	d.PipelineStage = StageHTMLDone
	d.UpdatedAt = now
	return d
}

// WithFailure marks the document FAILED.
func (d Document) WithFailure(details string, now time.Time) Document {
	d.Status = StatusFailed
	d.PipelineStage = StageFailed
	d.ErrorDetails = details
	d.UpdatedAt = now
	return d
}
