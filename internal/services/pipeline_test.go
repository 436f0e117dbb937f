package services

import (
	"context"
	"errors"
	"image/color"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lllllllleong/accessibilityflow/internal/models"
	"github.com/Lllllllleong/accessibilityflow/internal/pdftest"
	"github.com/Lllllllleong/accessibilityflow/internal/store"
)

// recordingStore keeps every snapshot written, in order.
type recordingStore struct {
	*store.MemoryStore

	mu        sync.Mutex
	snapshots []models.Document
	failOn    models.Status
}

func newRecordingStore() *recordingStore {
	return &recordingStore{MemoryStore: store.NewMemoryStore()}
}

func (s *recordingStore) Create(ctx context.Context, doc models.Document) error {
	s.record(doc)
	return s.MemoryStore.Create(ctx, doc)
}

func (s *recordingStore) Update(ctx context.Context, doc models.Document) error {
	if s.failOn != "" && doc.Status == s.failOn {
		return errors.New("store unavailable")
	}
	s.record(doc)
	return s.MemoryStore.Update(ctx, doc)
}

func (s *recordingStore) record(doc models.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots = append(s.snapshots, doc)
}

func (s *recordingStore) stages() []models.PipelineStage {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.PipelineStage
	for _, d := range s.snapshots {
		out = append(out, d.PipelineStage)
	}
	return out
}

type fakeExtractor struct {
	extraction *Extraction
	err        error
	panicWith  any
}

func (f fakeExtractor) Extract(context.Context, []byte) (*Extraction, error) {
	if f.panicWith != nil {
		panic(f.panicWith)
	}
	return f.extraction, f.err
}

type pipelineFixture struct {
	documents *recordingStore
	artifacts *store.LocalArtifactStore
}

func newPipelineFixture(t *testing.T) pipelineFixture {
	t.Helper()
	artifacts, err := store.NewLocalArtifactStore(t.TempDir())
	require.NoError(t, err)
	return pipelineFixture{documents: newRecordingStore(), artifacts: artifacts}
}

func (f pipelineFixture) pipeline(extractor ContentExtractor, altText AltTextSource) *Pipeline {
	clock := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	return NewPipeline(f.documents, f.artifacts, extractor, altText,
		WithClock(func() time.Time { return clock }),
		WithIDGenerator(func() string { return "doc-1" }),
	)
}

func offlineGenerator() *AltTextGenerator {
	return NewAltTextGenerator(nil, AltTextConfig{})
}

func TestPipeline_UntaggedWithImageOffline(t *testing.T) {
	f := newPipelineFixture(t)
	pdf := pdftest.Build([]pdftest.Page{
		{Lines: []string{"Annual Report", "", "Revenue grew this year."}},
		{Lines: []string{"A chart follows."}, Images: [][]byte{pdftest.JPEG(10, 10, color.Gray{Y: 128})}},
	}, pdftest.Options{})

	doc, err := f.pipeline(NewExtractor(ExtractorOptions{}), offlineGenerator()).Process(context.Background(), "report.pdf", pdf)
	require.NoError(t, err)

	assert.Equal(t, models.StatusNeedsReview, doc.Status)
	assert.Equal(t, models.StageHTMLDone, doc.PipelineStage)
	assert.Equal(t, models.LabelNonCompliant, doc.ComplianceLabel)
	assert.Equal(t, models.SourceHeuristic, doc.LabelSource)
	assert.Equal(t, 2, doc.PageCount)
	assert.Equal(t, FileHash(pdf), doc.FileHash)
	assert.Contains(t, doc.AlteredContent, `alt="Image on page 2"`)

	svc := NewDocumentService(f.documents, f.artifacts)
	report, err := svc.Report(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, report.Errors, 2)
	assert.Equal(t, 1, report.ImagesWithAltText)
	assert.Equal(t, 1, report.TotalImages)
	assert.False(t, report.Tagged)

	altText, err := svc.AltText(context.Background(), doc.ID)
	require.NoError(t, err)
	require.Len(t, altText, 1)
	assert.Equal(t, "img_2_0", altText[0].ImageID)
	assert.True(t, altText[0].NeedsHumanReview)

	assert.Equal(t, []models.PipelineStage{
		models.StageUploaded, models.StageExtracted, models.StageAltDone, models.StageReportDone, models.StageHTMLDone,
	}, f.documents.stages())

	stored, err := f.artifacts.Get(context.Background(), doc.AlteredPath)
	require.NoError(t, err)
	assert.Equal(t, doc.AlteredContent, string(stored))
	original, err := f.artifacts.Get(context.Background(), doc.OriginalPath)
	require.NoError(t, err)
	assert.Equal(t, pdf, original)
}

func TestPipeline_TaggedWithAltTextIsRemediated(t *testing.T) {
	f := newPipelineFixture(t)
	pdf := pdftest.Build([]pdftest.Page{
		{Lines: []string{"Intro"}, Images: [][]byte{pdftest.JPEG(6, 6, color.White)}},
	}, pdftest.Options{Tagged: true})
	model := &fakeVision{answer: func(context.Context, string) (string, error) {
		return `{"decorative": false, "alt": "A white square", "confidence": 0.9, "needs_human_review": false}`, nil
	}}

	doc, err := f.pipeline(NewExtractor(ExtractorOptions{}), NewAltTextGenerator(model, AltTextConfig{})).Process(context.Background(), "ok.pdf", pdf)
	require.NoError(t, err)

	assert.Equal(t, models.StatusRemediated, doc.Status)
	assert.Equal(t, models.LabelCompliant, doc.ComplianceLabel)

	report, err := NewDocumentService(f.documents, nil).Report(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Zero(t, report.TotalIssues)
	assert.True(t, report.Tagged)
	assert.Contains(t, doc.AlteredContent, `alt="A white square"`)
}

func TestPipeline_CorruptPDFFails(t *testing.T) {
	f := newPipelineFixture(t)
	doc, err := f.pipeline(NewExtractor(ExtractorOptions{}), offlineGenerator()).Process(context.Background(), "broken.pdf", []byte("%PDF-1.4 garbage"))

	require.Error(t, err)
	var extractionErr *models.ExtractionError
	assert.True(t, errors.As(err, &extractionErr))
	assert.Equal(t, models.StatusFailed, doc.Status)

	stored, getErr := f.documents.Get(context.Background(), "doc-1")
	require.NoError(t, getErr)
	assert.Equal(t, models.StatusFailed, stored.Status)
	assert.Equal(t, models.StageFailed, stored.PipelineStage)
	assert.NotEmpty(t, stored.ErrorDetails)
	assert.Empty(t, stored.AltTextJSON)
	assert.Empty(t, stored.ReportJSON)
}

func TestPipeline_ValidationPersistsNothing(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		pdf      []byte
	}{
		{name: "empty", filename: "a.pdf", pdf: nil},
		{name: "wrong extension", filename: "a.docx", pdf: []byte("%PDF-1.4")},
		{name: "no extension", filename: "pdf", pdf: []byte("%PDF-1.4")},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newPipelineFixture(t)
			_, err := f.pipeline(fakeExtractor{}, offlineGenerator()).Process(context.Background(), tc.filename, tc.pdf)
			var validationErr *models.ValidationError
			require.True(t, errors.As(err, &validationErr))
			assert.Empty(t, f.documents.snapshots)
		})
	}
}

func TestPipeline_UppercaseExtensionAccepted(t *testing.T) {
	assert.NoError(t, ValidateUpload("SCAN.PDF", []byte("x")))
}

func TestPipeline_NoImagesSkipsAltDone(t *testing.T) {
	f := newPipelineFixture(t)
	extractor := fakeExtractor{extraction: &Extraction{
		Text:      "Title",
		Pages:     []PageText{{PageNumber: 1, Text: "Title"}},
		PageCount: 1,
		Tagged:    true,
	}}

	doc, err := f.pipeline(extractor, offlineGenerator()).Process(context.Background(), "plain.pdf", []byte("%PDF-"))
	require.NoError(t, err)
	assert.Equal(t, models.StatusRemediated, doc.Status)
	assert.Empty(t, doc.AltTextJSON)
	assert.Equal(t, []models.PipelineStage{
		models.StageUploaded, models.StageExtracted, models.StageReportDone, models.StageHTMLDone,
	}, f.documents.stages())
}

func TestPipeline_SnapshotsAreIndependent(t *testing.T) {
	f := newPipelineFixture(t)
	extractor := fakeExtractor{extraction: &Extraction{Text: "x", Pages: []PageText{{PageNumber: 1, Text: "x"}}, PageCount: 1}}

	_, err := f.pipeline(extractor, offlineGenerator()).Process(context.Background(), "a.pdf", []byte("%PDF-"))
	require.NoError(t, err)

	first := f.documents.snapshots[0]
	assert.Equal(t, models.StatusUploaded, first.Status)
	assert.Empty(t, first.OriginalContent)
	assert.Empty(t, first.AlteredContent)
}

func TestPipeline_PanicBecomesFailure(t *testing.T) {
	f := newPipelineFixture(t)
	doc, err := f.pipeline(fakeExtractor{panicWith: "kaboom"}, offlineGenerator()).Process(context.Background(), "a.pdf", []byte("%PDF-"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "kaboom")
	assert.Equal(t, models.StatusFailed, doc.Status)
	stored, getErr := f.documents.Get(context.Background(), "doc-1")
	require.NoError(t, getErr)
	assert.Equal(t, models.StatusFailed, stored.Status)
}

func TestPipeline_PersistFailureMarksFailed(t *testing.T) {
	f := newPipelineFixture(t)
	f.documents.failOn = models.StatusExtracted
	extractor := fakeExtractor{extraction: &Extraction{Pages: []PageText{{PageNumber: 1}}, PageCount: 1}}

	_, err := f.pipeline(extractor, offlineGenerator()).Process(context.Background(), "a.pdf", []byte("%PDF-"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store unavailable")

	stored, getErr := f.documents.Get(context.Background(), "doc-1")
	require.NoError(t, getErr)
	assert.Equal(t, models.StatusFailed, stored.Status)
}

func TestPipeline_FailureRecordedEvenWhenCancelled(t *testing.T) {
	f := newPipelineFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	extractor := fakeExtractor{err: &models.ExtractionError{Op: "read", Err: errors.New("bad xref")}}

	cancel()
	_, err := f.pipeline(extractor, offlineGenerator()).Process(ctx, "a.pdf", []byte("%PDF-"))
	require.Error(t, err)

	stored, getErr := f.documents.Get(context.Background(), "doc-1")
	require.NoError(t, getErr)
	assert.Equal(t, models.StatusFailed, stored.Status)
	assert.Contains(t, stored.ErrorDetails, "bad xref")
}
