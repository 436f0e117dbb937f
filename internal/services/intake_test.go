package services

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lllllllleong/accessibilityflow/internal/models"
	"github.com/Lllllllleong/accessibilityflow/internal/pdftest"
	"github.com/Lllllllleong/accessibilityflow/internal/store"
)

type fakeBucket struct {
	objects map[string][]byte
	opened  []string
}

func (b *fakeBucket) open(_ context.Context, bucket, object string) (io.ReadCloser, error) {
	b.opened = append(b.opened, bucket+"/"+object)
	data, ok := b.objects[object]
	if !ok {
		return nil, models.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func newTestIntake(t *testing.T, bucket *fakeBucket) (*IntakeFunction, *store.MemoryStore) {
	t.Helper()
	documents := store.NewMemoryStore()
	artifacts, err := store.NewLocalArtifactStore(t.TempDir())
	require.NoError(t, err)
	pipeline := NewPipeline(documents, artifacts, NewExtractor(ExtractorOptions{}), offlineGenerator())
	return NewIntakeFunction(bucket.open, documents, pipeline), documents
}

func TestIntake_ProcessesPDF(t *testing.T) {
	pdf := pdftest.Build([]pdftest.Page{{Lines: []string{"Hello"}}}, pdftest.Options{Tagged: true})
	bucket := &fakeBucket{objects: map[string][]byte{"incoming/Report.PDF": pdf}}
	intake, documents := newTestIntake(t, bucket)

	require.NoError(t, intake.Process(context.Background(), models.GCSEvent{Bucket: "uploads", Name: "incoming/Report.PDF"}))

	docs, err := documents.FindAll(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "Report.PDF", docs[0].OriginalFilename)
	assert.Equal(t, FileHash(pdf), docs[0].FileHash)
	assert.Equal(t, models.StatusRemediated, docs[0].Status)
	assert.Equal(t, []string{"uploads/incoming/Report.PDF"}, bucket.opened)
}

func TestIntake_SkipsNonPDF(t *testing.T) {
	bucket := &fakeBucket{objects: map[string][]byte{"notes.txt": []byte("hi")}}
	intake, documents := newTestIntake(t, bucket)

	require.NoError(t, intake.Process(context.Background(), models.GCSEvent{Bucket: "uploads", Name: "notes.txt"}))

	assert.Empty(t, bucket.opened)
	docs, err := documents.FindAll(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestIntake_SkipsDuplicateContent(t *testing.T) {
	pdf := pdftest.Build([]pdftest.Page{{Lines: []string{"Same bytes"}}}, pdftest.Options{})
	bucket := &fakeBucket{objects: map[string][]byte{"a.pdf": pdf, "copy-of-a.pdf": pdf}}
	intake, documents := newTestIntake(t, bucket)

	require.NoError(t, intake.Process(context.Background(), models.GCSEvent{Bucket: "b", Name: "a.pdf"}))
	require.NoError(t, intake.Process(context.Background(), models.GCSEvent{Bucket: "b", Name: "copy-of-a.pdf"}))

	docs, err := documents.FindAll(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "a.pdf", docs[0].OriginalFilename)
}

func TestIntake_MissingObject(t *testing.T) {
	intake, _ := newTestIntake(t, &fakeBucket{})
	err := intake.Process(context.Background(), models.GCSEvent{Bucket: "b", Name: "gone.pdf"})
	assert.True(t, errors.Is(err, models.ErrNotFound))
}

func TestIntake_PipelineFailureIsReturned(t *testing.T) {
	bucket := &fakeBucket{objects: map[string][]byte{"broken.pdf": []byte("%PDF-1.4 nope")}}
	intake, documents := newTestIntake(t, bucket)

	err := intake.Process(context.Background(), models.GCSEvent{Bucket: "b", Name: "broken.pdf"})
	require.Error(t, err)

	docs, findErr := documents.FindAll(context.Background(), nil)
	require.NoError(t, findErr)
	require.Len(t, docs, 1)
	assert.Equal(t, models.StatusFailed, docs[0].Status)
}

type hashIndexedStore struct {
	*store.MemoryStore
	lookups int
}

func (s *hashIndexedStore) FindByHash(_ context.Context, fileHash string) (string, bool, error) {
	s.lookups++
	if fileHash == FileHash([]byte("known")) {
		return "existing", true, nil
	}
	return "", false, nil
}

func TestIntake_UsesHashIndexWhenAvailable(t *testing.T) {
	documents := &hashIndexedStore{MemoryStore: store.NewMemoryStore()}
	bucket := &fakeBucket{objects: map[string][]byte{"known.pdf": []byte("known")}}
	intake := NewIntakeFunction(bucket.open, documents, nil)

	require.NoError(t, intake.Process(context.Background(), models.GCSEvent{Bucket: "b", Name: "known.pdf"}))
	assert.Equal(t, 1, documents.lookups)
}
