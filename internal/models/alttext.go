package models

import (
	"encoding/json"
	"fmt"
)

// ImageRecord is a raster image pulled out of a PDF page. It only lives for the
// duration of one pipeline run.
type ImageRecord struct {
	PageNumber  int
	ID          string
	Data        []byte
	Format      string
	Width       int
	Height      int
	ContextText string
}

// ImageID formats the positional id of the index-th image on page.
func ImageID(page, index int) string {
	return fmt.Sprintf("img_%d_%d", page, index)
}

// ParseImageID is the inverse of ImageID.
func ParseImageID(id string) (page, index int, ok bool) {
	if _, err := fmt.Sscanf(id, "img_%d_%d", &page, &index); err != nil {
		return 0, 0, false
	}
	return page, index, true
}

// AltTextResult is the generated description for one ImageRecord.
type AltTextResult struct {
	Decorative       bool    `json:"decorative"`
	Alt              string  `json:"alt"`
	Longdesc         string  `json:"longdesc"`
	Confidence       float64 `json:"confidence"`
	NeedsHumanReview bool    `json:"needs_human_review"`
	ImageID          string  `json:"image_id"`
}

// HasAlt reports whether a non-decorative image carries usable alt text.
func (r AltTextResult) HasAlt() bool {
	return !r.Decorative && r.Alt != ""
}

// DecodeAltText reads a persisted AltTextResult array. Malformed or empty input
// yields nil: a later stage treats it as absent rather than failing.
func DecodeAltText(raw string) []AltTextResult {
	if raw == "" {
		return nil
	}
	var results []AltTextResult
	if err := json.Unmarshal([]byte(raw), &results); err != nil {
		return nil
	}
	return results
}
