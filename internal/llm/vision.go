// Package llm provides the multimodal model adapters used to describe images.
package llm

import (
	"context"
	"fmt"
	"strings"
)

// VisionModel answers a text prompt about a single inline image.
type VisionModel interface {
	// Describe returns the model's raw text answer.
	Describe(ctx context.Context, prompt string, image []byte, mimeType string) (string, error)

	// ModelName returns the name of the model being used.
	ModelName() string
}

// StatusError is a non-success HTTP response from a model endpoint.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("model endpoint returned status %d: %s", e.StatusCode, e.Body)
}

// StripCodeFence removes a Markdown code fence wrapped around a model answer,
// e.g. "```json\n{...}\n```". Text outside the outermost braces is dropped
// once a fence was seen.
func StripCodeFence(content string) string {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "```") {
		return content
	}
	// Drop the opening fence line, including any language tag.
	if nl := strings.IndexByte(content, '\n'); nl >= 0 {
		content = content[nl+1:]
	} else {
		content = strings.TrimPrefix(content, "```")
	}
	content = strings.TrimSpace(content)
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	start := strings.IndexByte(content, '{')
	end := strings.LastIndexByte(content, '}')
	if start >= 0 && end > start {
		content = content[start : end+1]
	}
	return content
}
