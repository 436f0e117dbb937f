package llm

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/vertexai/genai"
)

// Ensure VertexVision implements the interface.
var _ VisionModel = (*VertexVision)(nil)

// VertexVision sends the image inline to a Gemini model.
type VertexVision struct {
	model *genai.GenerativeModel
	name  string
}

// NewVertexVision wraps a configured generative model.
func NewVertexVision(model *genai.GenerativeModel, name string) *VertexVision {
	return &VertexVision{model: model, name: name}
}

// Describe sends the image bytes as an inline blob followed by the prompt.
func (v *VertexVision) Describe(ctx context.Context, prompt string, image []byte, mimeType string) (string, error) {
	format := strings.TrimPrefix(mimeType, "image/")
	resp, err := v.model.GenerateContent(ctx, genai.ImageData(format, image), genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("failed to generate content from gemini: %w", err)
	}
	text := responseText(resp)
	if text == "" {
		return "", fmt.Errorf("gemini returned an empty response")
	}
	return text, nil
}

// ModelName returns the name of the model being used.
func (v *VertexVision) ModelName() string {
	return v.name
}

// responseText concatenates the text parts of the first candidate.
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		}
	}
	return strings.TrimSpace(sb.String())
}
