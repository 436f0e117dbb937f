// Package finetune turns hand-labelled images from non-compliant PDFs into a
// vision fine-tuning dataset in the OpenAI chat JSONL format.
package finetune

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/Lllllllleong/accessibilityflow/internal/llm"
	"github.com/Lllllllleong/accessibilityflow/internal/models"
	"github.com/Lllllllleong/accessibilityflow/internal/services"
)

const (
	NonCompliantDir    = "non_compliant"
	LabelsFile         = "labels.json"
	LabelsTemplateFile = "labels_template.json"
	OutputFile         = "openai_training.jsonl"

	// MaxImageBytes keeps each example under the upload limit of the tuning API.
	MaxImageBytes = 8 << 20
)

// Label is one human-written description, keyed by file, page and the image's
// position in that file.
type Label struct {
	Filename   string `json:"filename"`
	Page       int    `json:"page"`
	ImageIndex int    `json:"imageIndex"`
	Alt        string `json:"alt"`
	Longdesc   string `json:"longdesc"`
	Decorative bool   `json:"decorative"`
}

func (l Label) key() string {
	return fmt.Sprintf("%s|%d|%d", l.Filename, l.Page, l.ImageIndex)
}

// Builder reads <dir>/non_compliant/*.pdf and writes its outputs into dir.
type Builder struct {
	dir       string
	extractor services.ContentExtractor
	progress  func(filename string)
}

// Option customizes a Builder.
type Option func(*Builder)

// WithProgress is called once per PDF after it has been read.
func WithProgress(fn func(filename string)) Option {
	return func(b *Builder) { b.progress = fn }
}

// WithExtractor replaces the default extractor.
func WithExtractor(e services.ContentExtractor) Option {
	return func(b *Builder) { b.extractor = e }
}

func NewBuilder(dir string, opts ...Option) *Builder {
	b := &Builder{
		dir:       dir,
		extractor: services.NewExtractor(services.ExtractorOptions{MaxImageBytes: MaxImageBytes}),
		progress:  func(string) {},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// PDFs lists the input files in name order.
func (b *Builder) PDFs() ([]string, error) {
	inputDir := filepath.Join(b.dir, NonCompliantDir)
	entries, err := os.ReadDir(inputDir)
	if err != nil {
		return nil, fmt.Errorf("missing input folder %s: %w", inputDir, err)
	}
	var pdfs []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.EqualFold(filepath.Ext(entry.Name()), ".pdf") {
			pdfs = append(pdfs, filepath.Join(inputDir, entry.Name()))
		}
	}
	if len(pdfs) == 0 {
		return nil, fmt.Errorf("no PDF files found in %s", inputDir)
	}
	return pdfs, nil
}

type example struct {
	filename   string
	imageIndex int
	image      models.ImageRecord
}

func (e example) key() string {
	return Label{Filename: e.filename, Page: e.image.PageNumber, ImageIndex: e.imageIndex}.key()
}

func (b *Builder) collect(ctx context.Context) ([]example, error) {
	pdfs, err := b.PDFs()
	if err != nil {
		return nil, err
	}
	var examples []example
	for _, path := range pdfs {
		filename := filepath.Base(path)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", filename, err)
		}
		extraction, err := b.extractor.Extract(ctx, data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filename, err)
		}
		for i, img := range extraction.Images {
			examples = append(examples, example{filename: filename, imageIndex: i, image: img})
		}
		slog.Debug("Collected images.", "filename", filename, "images", len(extraction.Images))
		b.progress(filename)
	}
	return examples, nil
}

// WriteTemplate writes an empty label for every image to labels_template.json.
func (b *Builder) WriteTemplate(ctx context.Context) (string, int, error) {
	examples, err := b.collect(ctx)
	if err != nil {
		return "", 0, err
	}
	labels := make([]Label, 0, len(examples))
	for _, ex := range examples {
		labels = append(labels, Label{Filename: ex.filename, Page: ex.image.PageNumber, ImageIndex: ex.imageIndex})
	}
	data, err := json.MarshalIndent(labels, "", "  ")
	if err != nil {
		return "", 0, err
	}
	out := filepath.Join(b.dir, LabelsTemplateFile)
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return "", 0, fmt.Errorf("failed to write %s: %w", out, err)
	}
	return out, len(labels), nil
}

// ReadLabels loads labels.json.
func (b *Builder) ReadLabels() ([]Label, error) {
	path := filepath.Join(b.dir, LabelsFile)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("missing %s: run with --template-only first, fill it in and save it as %s", path, LabelsFile)
	}
	if err != nil {
		return nil, err
	}
	var labels []Label
	if err := json.Unmarshal(data, &labels); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return labels, nil
}

// WriteTrainingSet writes one JSONL line per labelled image and returns how
// many were written. Images without a label are skipped.
func (b *Builder) WriteTrainingSet(ctx context.Context) (string, int, error) {
	labels, err := b.ReadLabels()
	if err != nil {
		return "", 0, err
	}
	byKey := make(map[string]Label, len(labels))
	for _, l := range labels {
		byKey[l.key()] = l
	}

	examples, err := b.collect(ctx)
	if err != nil {
		return "", 0, err
	}

	out := filepath.Join(b.dir, OutputFile)
	f, err := os.Create(out)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create %s: %w", out, err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetEscapeHTML(false)
	written := 0
	for _, ex := range examples {
		label, ok := byKey[ex.key()]
		if !ok {
			continue
		}
		line, err := TrainingLine(ex.image, label)
		if err != nil {
			return "", written, err
		}
		if err := enc.Encode(line); err != nil {
			return "", written, fmt.Errorf("failed to write %s: %w", out, err)
		}
		written++
	}
	if err := f.Close(); err != nil {
		return "", written, err
	}
	return out, written, nil
}

type trainingLine struct {
	Messages []message `json:"messages"`
}

type message struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

// TrainingLine builds the user/assistant exchange for one labelled image. The
// user turn is the same prompt the pipeline sends at inference time.
func TrainingLine(img models.ImageRecord, label Label) (any, error) {
	answer, err := json.Marshal(models.AltTextResult{
		Decorative:       label.Decorative,
		Alt:              label.Alt,
		Longdesc:         label.Longdesc,
		Confidence:       1.0,
		NeedsHumanReview: false,
		ImageID:          img.ID,
	})
	if err != nil {
		return nil, err
	}
	return trainingLine{Messages: []message{
		{Role: "user", Content: []contentPart{
			{Type: "text", Text: services.BuildAltTextPrompt(img.PageNumber, img.ContextText)},
			{Type: "image_url", ImageURL: &imageURL{URL: llm.DataURL("image/png", img.Data)}},
		}},
		{Role: "assistant", Content: string(answer)},
	}}, nil
}
