package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/Lllllllleong/accessibilityflow/internal/llm"
	"github.com/Lllllllleong/accessibilityflow/internal/models"
)

const (
	maxPromptContextRunes  = 1500
	maxPlaceholderRunes    = 200
	defaultConfidence      = 0.5
	emptyContextPrompt     = "No surrounding text."
	imageMIMEType          = "image/png"
	placeholderAltTemplate = "Image on page %d"
)

// AltTextConfig bounds the calls made to the vision model.
type AltTextConfig struct {
	Workers           int
	RequestsPerSecond float64
	Timeout           time.Duration
}

// AltTextGenerator produces one AltTextResult per image.
type AltTextGenerator struct {
	model   llm.VisionModel
	config  AltTextConfig
	limiter *rate.Limiter
}

// NewAltTextGenerator returns a generator. A nil model runs offline: every
// image gets a placeholder and no network call is made.
func NewAltTextGenerator(model llm.VisionModel, config AltTextConfig) *AltTextGenerator {
	if config.Workers < 1 {
		config.Workers = 4
	}
	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}
	limit := rate.Inf
	if config.RequestsPerSecond > 0 {
		limit = rate.Limit(config.RequestsPerSecond)
	}
	return &AltTextGenerator{
		model:   model,
		config:  config,
		limiter: rate.NewLimiter(limit, config.Workers),
	}
}

// Generate returns exactly len(images) results in input order. Failures never
// surface as errors: the affected image gets a placeholder flagged for review.
func (g *AltTextGenerator) Generate(ctx context.Context, images []models.ImageRecord) []models.AltTextResult {
	results := make([]models.AltTextResult, len(images))
	if g.model == nil {
		for i, img := range images {
			results[i] = PlaceholderAltText(img)
		}
		return results
	}

	var eg errgroup.Group
	eg.SetLimit(g.config.Workers)
	for i, img := range images {
		eg.Go(func() error {
			results[i] = g.describe(ctx, img)
			return nil
		})
	}
	_ = eg.Wait()
	return results
}

func (g *AltTextGenerator) describe(ctx context.Context, img models.ImageRecord) models.AltTextResult {
	logCtx := slog.With("imageId", img.ID, "page", img.PageNumber)

	result, err := g.call(ctx, img)
	if err != nil {
		svcErr := &models.ExternalServiceError{ImageID: img.ID, Err: err}
		var statusErr *llm.StatusError
		if errors.As(err, &statusErr) {
			svcErr.StatusCode = statusErr.StatusCode
		}
		logCtx.Warn("Alt text generation failed; using placeholder.", "error", svcErr)
		return PlaceholderAltText(img)
	}
	return result
}

func (g *AltTextGenerator) call(ctx context.Context, img models.ImageRecord) (models.AltTextResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.config.Timeout)
	defer cancel()

	if err := g.limiter.Wait(callCtx); err != nil {
		return models.AltTextResult{}, fmt.Errorf("rate limiter: %w", err)
	}
	content, err := g.model.Describe(callCtx, BuildAltTextPrompt(img.PageNumber, img.ContextText), img.Data, imageMIMEType)
	if err != nil {
		return models.AltTextResult{}, err
	}
	return ParseAltTextResponse(content, img.ID)
}

// BuildAltTextPrompt renders the instruction sent with each image.
func BuildAltTextPrompt(page int, contextText string) string {
	ctxText := truncateRunes(contextText, maxPromptContextRunes)
	if ctxText == "" {
		ctxText = emptyContextPrompt
	}
	return fmt.Sprintf("You are an accessibility expert. Write alt text for this image taken from page %d of a PDF. "+
		"Use the document context below to describe the image accurately, without repeating text the context already contains. "+
		"Reply with a single JSON object and nothing else, using exactly these keys: "+
		"\"decorative\" (boolean), \"alt\" (string, one short sentence), "+
		"\"longdesc\" (string, an extended description for charts or diagrams, otherwise empty), "+
		"\"confidence\" (number between 0 and 1), \"needs_human_review\" (boolean). "+
		"For a purely decorative image set decorative to true and alt to an empty string.\n"+
		"Context from document:\n%s", page, ctxText)
}

// altTextPayload distinguishes absent fields from zero values.
type altTextPayload struct {
	Decorative       *bool    `json:"decorative"`
	Alt              *string  `json:"alt"`
	Longdesc         *string  `json:"longdesc"`
	Confidence       *float64 `json:"confidence"`
	NeedsHumanReview *bool    `json:"needs_human_review"`
}

// ParseAltTextResponse decodes a model answer. decorative and alt are
// required; the other fields take conservative defaults. The image id is
// always the caller's.
func ParseAltTextResponse(content, imageID string) (models.AltTextResult, error) {
	var p altTextPayload
	if err := json.Unmarshal([]byte(llm.StripCodeFence(content)), &p); err != nil {
		return models.AltTextResult{}, fmt.Errorf("failed to parse alt text JSON: %w", err)
	}
	if p.Decorative == nil {
		return models.AltTextResult{}, fmt.Errorf("alt text response missing %q", "decorative")
	}
	if p.Alt == nil {
		return models.AltTextResult{}, fmt.Errorf("alt text response missing %q", "alt")
	}

	result := models.AltTextResult{
		Decorative:       *p.Decorative,
		Alt:              *p.Alt,
		Confidence:       defaultConfidence,
		NeedsHumanReview: true,
		ImageID:          imageID,
	}
	if p.Longdesc != nil {
		result.Longdesc = *p.Longdesc
	}
	if p.Confidence != nil {
		result.Confidence = min(max(*p.Confidence, 0), 1)
	}
	if p.NeedsHumanReview != nil {
		result.NeedsHumanReview = *p.NeedsHumanReview
	}
	return result, nil
}

// PlaceholderAltText is the result used whenever no model answer is usable.
func PlaceholderAltText(img models.ImageRecord) models.AltTextResult {
	return models.AltTextResult{
		Decorative:       false,
		Alt:              fmt.Sprintf(placeholderAltTemplate, img.PageNumber),
		Longdesc:         truncateRunes(img.ContextText, maxPlaceholderRunes),
		Confidence:       defaultConfidence,
		NeedsHumanReview: true,
		ImageID:          img.ID,
	}
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
