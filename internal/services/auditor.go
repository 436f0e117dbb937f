package services

import "github.com/Lllllllleong/accessibilityflow/internal/models"

// AuditInput is everything the auditor looks at.
type AuditInput struct {
	DocumentID  string
	Filename    string
	Tagged      bool
	AltText     []models.AltTextResult
	TotalImages int
}

// Auditor applies the fixed WCAG rule set. It holds no state; Audit is pure.
type Auditor struct{}

// NewAuditor returns an Auditor.
func NewAuditor() *Auditor {
	return &Auditor{}
}

// Audit evaluates the rules in order: structure tree first, then per-image alt text.
func (a *Auditor) Audit(in AuditInput) models.AccessibilityReport {
	issues := []models.AccessibilityIssue{}

	if !in.Tagged {
		issues = append(issues,
			models.AccessibilityIssue{
				Issue:           "PDF is not tagged - missing structure tree",
				SuccessCriteria: "WCAG 1.3.1 Info and Relationships",
				Severity:        models.SeverityError,
				Evidence:        "Document structure tree is missing",
				FixSteps:        "Tag the PDF using Adobe Acrobat Pro or PDF remediation tools",
			},
			models.AccessibilityIssue{
				Issue:           "Reading order cannot be determined",
				SuccessCriteria: "WCAG 1.3.2 Meaningful Sequence",
				Severity:        models.SeverityError,
				Evidence:        "No structure tree to determine reading order",
				FixSteps:        "Add structure tree and logical reading order to PDF",
			},
		)
	}

	withAlt := 0
	for _, alt := range in.AltText {
		if alt.Decorative {
			continue
		}
		if alt.HasAlt() {
			withAlt++
			continue
		}
		issue := models.AccessibilityIssue{
			Issue:           "Image missing alt text",
			SuccessCriteria: "WCAG 1.1.1 Non-text Content",
			Severity:        models.SeverityError,
			Evidence:        "Image " + alt.ImageID + " has no alt text",
			FixSteps:        "Add descriptive alt text to image",
			ElementID:       alt.ImageID,
		}
		if page, _, ok := models.ParseImageID(alt.ImageID); ok {
			issue.PageNumber = &page
		}
		issues = append(issues, issue)
	}

	report := models.NewAccessibilityReport(in.DocumentID, in.Filename, issues)
	report.Tagged = in.Tagged
	report.HasReadingOrder = in.Tagged
	report.ImagesWithAltText = withAlt
	report.TotalImages = in.TotalImages
	return report
}

// ComplianceFor derives the dataset label of an audited document.
func ComplianceFor(report models.AccessibilityReport) (models.ComplianceLabel, models.LabelSource) {
	if report.Errors > 0 {
		return models.LabelNonCompliant, models.SourceHeuristic
	}
	return models.LabelCompliant, models.SourceHeuristic
}

// OutcomeFor picks the terminal status of a run from its report.
func OutcomeFor(report models.AccessibilityReport) models.Status {
	switch {
	case report.Errors > 0:
		return models.StatusNeedsReview
	case report.Warnings > 0:
		return models.StatusRemediatedWithWarnings
	default:
		return models.StatusRemediated
	}
}
