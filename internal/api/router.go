// Package api exposes the accessibility pipeline over HTTP.
package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/Lllllllleong/accessibilityflow/internal/models"
)

// MaxUploadBytes caps the multipart body of POST /inputDocuments.
const MaxUploadBytes = 32 << 20

// Processor runs an uploaded PDF through the pipeline.
type Processor interface {
	Process(ctx context.Context, filename string, pdf []byte) (models.Document, error)
}

// Queries answers read requests about processed documents.
type Queries interface {
	AlteredDocuments(ctx context.Context) ([]models.Document, error)
	Document(ctx context.Context, id string) (models.Document, error)
	Report(ctx context.Context, id string) (models.AccessibilityReport, error)
	AltText(ctx context.Context, id string) ([]models.AltTextResult, error)
	Rendition(ctx context.Context, id string) (models.Document, []byte, error)
}

// NewRouter returns the API handler with every route mounted.
func NewRouter(processor Processor, queries Queries, allowedOrigins []string) http.Handler {
	h := &Handler{processor: processor, queries: queries}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(CORS(allowedOrigins))

	r.Get("/health", h.Health)
	r.Post("/inputDocuments", h.Upload)

	r.Route("/alteredDocuments", func(r chi.Router) {
		r.Get("/", h.ListAltered)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.GetDocument)
			r.Get("/report", h.GetReport)
			r.Get("/alttext", h.GetAltText)
			r.Get("/download", h.Download)
		})
	})

	return r
}
