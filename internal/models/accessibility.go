package models

import "encoding/json"

// Severity classifies an AccessibilityIssue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// AccessibilityIssue is a single WCAG finding.
type AccessibilityIssue struct {
	Issue           string   `json:"issue"`
	SuccessCriteria string   `json:"success_criteria"`
	Severity        Severity `json:"severity"`
	Evidence        string   `json:"evidence"`
	FixSteps        string   `json:"fix_steps"`
	PageNumber      *int     `json:"page_number,omitempty"`
	ElementID       string   `json:"element_id,omitempty"`
}

// AccessibilityReport is the WCAG-style audit of one document.
//
// TotalIssues, Errors, Warnings and Info are derived from Issues. Build reports
// with NewAccessibilityReport; decoding from JSON recomputes them as well.
type AccessibilityReport struct {
	DocumentID        string               `json:"document_id"`
	Filename          string               `json:"filename"`
	TotalIssues       int                  `json:"total_issues"`
	Errors            int                  `json:"errors"`
	Warnings          int                  `json:"warnings"`
	Info              int                  `json:"info"`
	Issues            []AccessibilityIssue `json:"issues"`
	Tagged            bool                 `json:"is_tagged"`
	HasReadingOrder   bool                 `json:"has_reading_order"`
	ImagesWithAltText int                  `json:"images_with_alt_text"`
	TotalImages       int                  `json:"total_images"`
}

// NewAccessibilityReport builds a report whose counts match issues.
func NewAccessibilityReport(documentID, filename string, issues []AccessibilityIssue) AccessibilityReport {
	r := AccessibilityReport{
		DocumentID: documentID,
		Filename:   filename,
		Issues:     issues,
	}
	r.recount()
	return r
}

func (r *AccessibilityReport) recount() {
	if r.Issues == nil {
		r.Issues = []AccessibilityIssue{}
	}
	r.TotalIssues = len(r.Issues)
	r.Errors, r.Warnings, r.Info = 0, 0, 0
	for _, issue := range r.Issues {
		switch issue.Severity {
		case SeverityError:
			r.Errors++
		case SeverityWarning:
			r.Warnings++
		case SeverityInfo:
			r.Info++
		}
	}
}

// UnmarshalJSON decodes a report and rederives its counts from the issue list,
// ignoring whatever counts the payload carried.
func (r *AccessibilityReport) UnmarshalJSON(data []byte) error {
	type plain AccessibilityReport
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*r = AccessibilityReport(p)
	r.recount()
	return nil
}
