package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"cloud.google.com/go/storage"

	"github.com/Lllllllleong/accessibilityflow/internal/gcp"
	"github.com/Lllllllleong/accessibilityflow/internal/llm"
	"github.com/Lllllllleong/accessibilityflow/internal/store"
)

// DefaultCORSOrigins are the local development front-ends.
var DefaultCORSOrigins = []string{
	"http://localhost:3000", "http://localhost:4000", "http://localhost:5500",
	"http://127.0.0.1:3000", "http://127.0.0.1:4000", "http://127.0.0.1:5500",
}

type RuntimeConfig struct {
	ProjectID      string
	CollectionName string
	StoreBackend   string
	SQLiteDir      string
	ArtifactBucket string
	ArtifactDir    string

	AltTextProvider string
	OpenAIAPIKey    string
	OpenAIBaseURL   string
	OpenAIModel     string
	VertexRegion    string
	VertexModel     string
	AltText         AltTextConfig
	MaxImageBytes   int

	CORSOrigins []string
}

// LoadRuntimeConfig reads the configuration from the environment.
func LoadRuntimeConfig() RuntimeConfig {
	cfg := RuntimeConfig{
		ProjectID:       gcp.GetEnv("PROJECT_ID", ""),
		CollectionName:  gcp.GetEnv("FIRESTORE_COLLECTION", "documents"),
		StoreBackend:    strings.ToLower(gcp.GetEnv("STORE_BACKEND", "")),
		SQLiteDir:       gcp.GetEnv("SQLITE_DIR", "volumes/data"),
		ArtifactBucket:  gcp.GetEnv("ARTIFACT_BUCKET", ""),
		ArtifactDir:     gcp.GetEnv("ARTIFACT_DIR", "volumes/uploads"),
		AltTextProvider: strings.ToLower(gcp.GetEnv("ALT_TEXT_PROVIDER", "openai")),
		OpenAIAPIKey:    gcp.GetEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:   gcp.GetEnv("OPENAI_BASE_URL", llm.DefaultOpenAIBaseURL),
		OpenAIModel:     gcp.GetEnv("OPENAI_MODEL", llm.DefaultOpenAIModel),
		VertexRegion:    gcp.GetEnv("VERTEX_AI_REGION", "us-central1"),
		VertexModel:     gcp.GetEnv("VERTEX_MODEL", "gemini-1.5-pro"),
		AltText: AltTextConfig{
			Workers:           gcp.GetEnvInt("ALT_TEXT_WORKERS", 4),
			RequestsPerSecond: gcp.GetEnvFloat("ALT_TEXT_RPS", 2),
			Timeout:           gcp.GetEnvDuration("ALT_TEXT_TIMEOUT", llm.DefaultTimeout),
		},
		MaxImageBytes: gcp.GetEnvInt("MAX_IMAGE_BYTES", 0),
		CORSOrigins:   gcp.GetEnvList("CORS_ORIGINS", DefaultCORSOrigins),
	}
	if cfg.StoreBackend == "" {
		cfg.StoreBackend = "sqlite"
		if cfg.ProjectID != "" {
			cfg.StoreBackend = "firestore"
		}
	}
	return cfg
}

// Runtime holds the wired services of one process.
type Runtime struct {
	Config    RuntimeConfig
	Documents store.DocumentStore
	Artifacts store.ArtifactStore
	Pipeline  *Pipeline
	Queries   *DocumentService
	Storage   *storage.Client

	closers []func() error
}

// NewRuntime builds stores, the vision model and the pipeline from cfg.
func NewRuntime(ctx context.Context, cfg RuntimeConfig) (*Runtime, error) {
	rt := &Runtime{Config: cfg}

	documents, err := rt.openDocumentStore(ctx)
	if err != nil {
		rt.Close()
		return nil, err
	}
	artifacts, err := rt.openArtifactStore(ctx)
	if err != nil {
		rt.Close()
		return nil, err
	}
	model, err := rt.openVisionModel(ctx)
	if err != nil {
		rt.Close()
		return nil, err
	}

	extractor := NewExtractor(ExtractorOptions{MaxImageBytes: cfg.MaxImageBytes})
	generator := NewAltTextGenerator(model, cfg.AltText)

	rt.Documents = documents
	rt.Artifacts = artifacts
	rt.Pipeline = NewPipeline(documents, artifacts, extractor, generator)
	rt.Queries = NewDocumentService(documents, artifacts)

	modelName := "offline"
	if model != nil {
		modelName = model.ModelName()
	}
	slog.Info("Runtime initialized.", "storeBackend", cfg.StoreBackend, "artifactBucket", cfg.ArtifactBucket, "visionModel", modelName)
	return rt, nil
}

func (rt *Runtime) openDocumentStore(ctx context.Context) (store.DocumentStore, error) {
	switch rt.Config.StoreBackend {
	case "firestore":
		client, err := store.NewFirestoreClient(ctx, rt.Config.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("failed to create firestore client: %w", err)
		}
		fs := store.NewFirestoreStore(client, rt.Config.CollectionName)
		rt.closers = append(rt.closers, fs.Close)
		return fs, nil
	case "sqlite":
		s, err := store.NewSQLiteStore(rt.Config.SQLiteDir)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		rt.closers = append(rt.closers, s.Close)
		return s, nil
	case "memory":
		return store.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown STORE_BACKEND %q", rt.Config.StoreBackend)
	}
}

func (rt *Runtime) openArtifactStore(ctx context.Context) (store.ArtifactStore, error) {
	if rt.Config.ArtifactBucket == "" {
		local, err := store.NewLocalArtifactStore(rt.Config.ArtifactDir)
		if err != nil {
			return nil, fmt.Errorf("failed to open artifact dir: %w", err)
		}
		return local, nil
	}
	client, err := rt.storageClient(ctx)
	if err != nil {
		return nil, err
	}
	return gcp.NewGCSArtifactStore(client, rt.Config.ArtifactBucket)
}

// storageClient lazily creates the shared GCS client.
func (rt *Runtime) storageClient(ctx context.Context) (*storage.Client, error) {
	if rt.Storage != nil {
		return rt.Storage, nil
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Storage client: %w", err)
	}
	rt.Storage = client
	rt.closers = append(rt.closers, client.Close)
	return client, nil
}

// openVisionModel returns nil, without error, when no credential is configured.
func (rt *Runtime) openVisionModel(ctx context.Context) (llm.VisionModel, error) {
	switch rt.Config.AltTextProvider {
	case "openai", "":
		if rt.Config.OpenAIAPIKey == "" {
			slog.Warn("OPENAI_API_KEY not set; alt text will use placeholders.")
			return nil, nil
		}
		vision, err := llm.NewOpenAIVision(llm.OpenAIConfig{
			APIKey:  rt.Config.OpenAIAPIKey,
			BaseURL: rt.Config.OpenAIBaseURL,
			Model:   rt.Config.OpenAIModel,
		})
		if err != nil {
			return nil, err
		}
		return vision, nil
	case "vertex":
		if rt.Config.ProjectID == "" {
			slog.Warn("PROJECT_ID not set; alt text will use placeholders.")
			return nil, nil
		}
		client, err := gcp.NewVertexClient(ctx, rt.Config.ProjectID, rt.Config.VertexRegion, rt.Config.VertexModel)
		if err != nil {
			return nil, fmt.Errorf("failed to create vertex client: %w", err)
		}
		rt.closers = append(rt.closers, client.Close)
		return llm.NewVertexVision(client.AltTextModel, client.ModelName()), nil
	default:
		return nil, fmt.Errorf("unknown ALT_TEXT_PROVIDER %q", rt.Config.AltTextProvider)
	}
}

// Close releases every client opened by NewRuntime.
func (rt *Runtime) Close() error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}
