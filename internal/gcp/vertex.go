package gcp

import (
	"context"
	"fmt"

	"cloud.google.com/go/vertexai/genai"
)

// AltTextSystemPrompt frames every alt-text request sent to Gemini.
const AltTextSystemPrompt = "You are an accessibility expert who writes WCAG-conformant text alternatives for images extracted from PDF documents. You must output your response as a single valid JSON object."

// VertexClient holds the pre-configured generative model used for alt text.
type VertexClient struct {
	AltTextModel *genai.GenerativeModel
	modelName    string
	baseClient   *genai.Client
}

// NewVertexClient creates a new client holding the alt-text model.
func NewVertexClient(ctx context.Context, projectID, region, modelName string) (*VertexClient, error) {
	if projectID == "" || region == "" {
		return nil, fmt.Errorf("NewVertexClient: projectID and region cannot be empty")
	}
	if modelName == "" {
		modelName = "gemini-1.5-pro"
	}

	baseClient, err := genai.NewClient(ctx, projectID, region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}

	altTextModel := baseClient.GenerativeModel(modelName)
	altTextModel.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(AltTextSystemPrompt)},
	}
	altTextModel.GenerationConfig = genai.GenerationConfig{
		// Force JSON output; the response is parsed into a fixed schema.
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr[float32](0.2),
		MaxOutputTokens:  genai.Ptr[int32](500),
	}

	return &VertexClient{
		AltTextModel: altTextModel,
		modelName:    modelName,
		baseClient:   baseClient,
	}, nil
}

// ModelName returns the Gemini model id in use.
func (c *VertexClient) ModelName() string {
	return c.modelName
}

func (c *VertexClient) Close() error {
	if c.baseClient != nil {
		return c.baseClient.Close()
	}
	return nil
}
