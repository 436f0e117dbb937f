package services

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"

	"github.com/Lllllllleong/accessibilityflow/internal/gcp"
	"github.com/Lllllllleong/accessibilityflow/internal/models"
	"github.com/Lllllllleong/accessibilityflow/internal/store"
)

// ObjectOpener streams a bucket object.
type ObjectOpener func(ctx context.Context, bucket, object string) (io.ReadCloser, error)

// hashFinder is implemented by stores that can look up a file hash server-side.
type hashFinder interface {
	FindByHash(ctx context.Context, fileHash string) (string, bool, error)
}

// IntakeFunction runs PDFs dropped into a bucket through the pipeline.
type IntakeFunction struct {
	open      ObjectOpener
	documents store.DocumentStore
	pipeline  *Pipeline
	runtime   *Runtime
}

// NewIntake wires an intake function from the environment.
func NewIntake(ctx context.Context) (*IntakeFunction, error) {
	rt, err := NewRuntime(ctx, LoadRuntimeConfig())
	if err != nil {
		return nil, err
	}
	client, err := rt.storageClient(ctx)
	if err != nil {
		rt.Close()
		return nil, err
	}
	f := NewIntakeFunction(gcp.GCSObjectOpener(client), rt.Documents, rt.Pipeline)
	f.runtime = rt
	slog.Info("PDF intake logic initialized.", "storeBackend", rt.Config.StoreBackend)
	return f, nil
}

// NewIntakeFunction builds an intake over explicit collaborators.
func NewIntakeFunction(open ObjectOpener, documents store.DocumentStore, pipeline *Pipeline) *IntakeFunction {
	return &IntakeFunction{open: open, documents: documents, pipeline: pipeline}
}

// Process handles one object-finalized event. Non-PDF objects and files whose
// content was already processed are skipped without error.
func (f *IntakeFunction) Process(ctx context.Context, e models.GCSEvent) error {
	logCtx := slog.With("gcsBucket", e.Bucket, "gcsObject", e.Name)
	if !strings.EqualFold(path.Ext(e.Name), ".pdf") {
		logCtx.Info("SKIPPING: Object is not a PDF.")
		return nil
	}
	logCtx.Info("Processing new GCS object.")

	pdf, fileHash, err := f.download(ctx, e.Bucket, e.Name)
	if err != nil {
		logCtx.Error("Failed to download source PDF", "error", err)
		return err
	}
	logCtx = logCtx.With("fileHash", fileHash)

	isDuplicate, docID, err := f.isDuplicate(ctx, fileHash)
	if err != nil {
		logCtx.Error("Failed to check for duplicate", "error", err)
		return err
	}
	if isDuplicate {
		logCtx.Info("Duplicate file detected. Skipping.", "existingDocId", docID)
		return nil
	}

	doc, err := f.pipeline.Process(ctx, path.Base(e.Name), pdf)
	if err != nil {
		// Already logged and recorded as FAILED by the pipeline.
		return err
	}
	logCtx.Info("Intake complete.", "documentId", doc.ID, "status", doc.Status)
	return nil
}

// download reads the object into memory, hashing it on the way.
func (f *IntakeFunction) download(ctx context.Context, bucket, object string) ([]byte, string, error) {
	reader, err := f.open(ctx, bucket, object)
	if err != nil {
		return nil, "", err
	}
	defer reader.Close()

	var buf bytes.Buffer
	hash := sha256.New()
	if _, err := io.Copy(io.MultiWriter(&buf, hash), reader); err != nil {
		return nil, "", fmt.Errorf("failed to read gs://%s/%s: %w", bucket, object, err)
	}
	return buf.Bytes(), hex.EncodeToString(hash.Sum(nil)), nil
}

func (f *IntakeFunction) isDuplicate(ctx context.Context, fileHash string) (bool, string, error) {
	if finder, ok := f.documents.(hashFinder); ok {
		return finderResult(finder.FindByHash(ctx, fileHash))
	}
	docs, err := f.documents.FindAll(ctx, func(d models.Document) bool { return d.FileHash == fileHash })
	if err != nil {
		return false, "", fmt.Errorf("failed to query for duplicates: %w", err)
	}
	if len(docs) > 0 {
		return true, docs[0].ID, nil
	}
	return false, "", nil
}

func finderResult(id string, found bool, err error) (bool, string, error) {
	return found, id, err
}

// Close releases the clients opened by NewIntake.
func (f *IntakeFunction) Close() error {
	if f.runtime != nil {
		return f.runtime.Close()
	}
	return nil
}
