package gcp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"

	"github.com/Lllllllleong/accessibilityflow/internal/models"
)

// SaveToGCSAtomically writes content to a GCS object only if it doesn't already exist.
// An existing object is not a failure: artifact names are keyed by document id,
// so a second write for the same name is a replay of the same stage.
func SaveToGCSAtomically(ctx context.Context, bucket *storage.BucketHandle, objectName, contentType string, content []byte) error {
	writer := bucket.Object(objectName).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	writer.ContentType = contentType

	if _, err := io.Copy(writer, bytes.NewReader(content)); err != nil {
		_ = writer.Close()
		return fmt.Errorf("failed to write to GCS: %w", err)
	}

	if err := writer.Close(); err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed {
			slog.Info("SKIPPING: Object already exists.", "gcsObject", objectName)
			return nil
		}
		return fmt.Errorf("failed to finalize GCS write: %w", err)
	}
	return nil
}

// GCSObjectOpener returns a function that opens objects through client.
func GCSObjectOpener(client *storage.Client) func(ctx context.Context, bucket, object string) (io.ReadCloser, error) {
	return func(ctx context.Context, bucket, object string) (io.ReadCloser, error) {
		return OpenGCSObject(ctx, client, bucket, object)
	}
}

// OpenGCSObject opens a streaming reader on an object.
func OpenGCSObject(ctx context.Context, client *storage.Client, bucket, object string) (io.ReadCloser, error) {
	reader, err := client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("gs://%s/%s: %w", bucket, object, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get GCS object reader for gs://%s/%s: %w", bucket, object, err)
	}
	return reader, nil
}

// ReadGCSObject downloads an object fully into memory.
func ReadGCSObject(ctx context.Context, client *storage.Client, bucket, object string) ([]byte, error) {
	reader, err := OpenGCSObject(ctx, client, bucket, object)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read GCS object gs://%s/%s: %w", bucket, object, err)
	}
	return data, nil
}

// GCSArtifactStore keeps original PDFs and accessible renditions in a bucket.
type GCSArtifactStore struct {
	client *storage.Client
	bucket string
}

// NewGCSArtifactStore returns an artifact store writing to bucket.
func NewGCSArtifactStore(client *storage.Client, bucket string) (*GCSArtifactStore, error) {
	if bucket == "" {
		return nil, fmt.Errorf("NewGCSArtifactStore: bucket cannot be empty")
	}
	return &GCSArtifactStore{client: client, bucket: bucket}, nil
}

// Put stores data under name and returns its gs:// URI.
func (s *GCSArtifactStore) Put(ctx context.Context, name, contentType string, data []byte) (string, error) {
	if err := SaveToGCSAtomically(ctx, s.client.Bucket(s.bucket), name, contentType, data); err != nil {
		return "", err
	}
	return fmt.Sprintf("gs://%s/%s", s.bucket, name), nil
}

// Get reads back an artifact by the URI Put returned.
func (s *GCSArtifactStore) Get(ctx context.Context, path string) ([]byte, error) {
	bucket, object, err := ParseGCSURI(path)
	if err != nil {
		return nil, err
	}
	return ReadGCSObject(ctx, s.client, bucket, object)
}

// ParseGCSURI splits gs://bucket/object.
func ParseGCSURI(uri string) (bucket, object string, err error) {
	rest, ok := strings.CutPrefix(uri, "gs://")
	if !ok {
		return "", "", fmt.Errorf("not a gs:// URI: %q", uri)
	}
	bucket, object, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || object == "" {
		return "", "", fmt.Errorf("malformed gs:// URI: %q", uri)
	}
	return bucket, object, nil
}
