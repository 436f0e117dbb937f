package models

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a document, or a stage output of one, does not exist.
var ErrNotFound = errors.New("not found")

// ValidationError rejects input before any pipeline stage runs.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid input: " + e.Reason
}

// ExtractionError means the PDF as a whole could not be parsed.
type ExtractionError struct {
	Op  string
	Err error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction failed: %s: %v", e.Op, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// ExternalServiceError is a failed call to the vision model for a single image.
// The pipeline absorbs it into a placeholder result.
type ExternalServiceError struct {
	ImageID    string
	StatusCode int
	Err        error
}

func (e *ExternalServiceError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("vision model call for %s failed (status %d): %v", e.ImageID, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("vision model call for %s failed: %v", e.ImageID, e.Err)
}

func (e *ExternalServiceError) Unwrap() error { return e.Err }
