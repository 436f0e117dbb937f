package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Lllllllleong/accessibilityflow/internal/models"
)

// Handler serves the document endpoints.
type Handler struct {
	processor Processor
	queries   Queries
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// Upload handles POST /inputDocuments.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadBytes)
	if err := r.ParseMultipartForm(MaxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "file exceeds the 32 MiB upload limit")
			return
		}
		writeError(w, http.StatusBadRequest, "expected a multipart form with a file field")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	pdf, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read uploaded file")
		return
	}

	filename := filepath.Base(header.Filename)
	// A started run always reaches a terminal state, even if the client goes away.
	doc, err := h.processor.Process(context.WithoutCancel(r.Context()), filename, pdf)
	if err != nil {
		var validationErr *models.ValidationError
		if errors.As(err, &validationErr) {
			writeError(w, http.StatusBadRequest, validationErr.Error())
			return
		}
		slog.Error("Upload processing failed.", "filename", filename, "documentId", doc.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to process document")
		return
	}

	writeJSON(w, http.StatusCreated, models.UploadResponse{
		Message:    "Document processed successfully",
		DocumentID: doc.ID,
		Filename:   doc.OriginalFilename,
		Status:     doc.Status,
	})
}

// ListAltered handles GET /alteredDocuments.
func (h *Handler) ListAltered(w http.ResponseWriter, r *http.Request) {
	docs, err := h.queries.AlteredDocuments(r.Context())
	if err != nil {
		h.writeLookupError(w, "", err)
		return
	}
	writeJSON(w, http.StatusOK, docs)
}

// GetDocument handles GET /alteredDocuments/{id}.
func (h *Handler) GetDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	doc, err := h.queries.Document(r.Context(), id)
	if err != nil {
		h.writeLookupError(w, id, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// GetReport handles GET /alteredDocuments/{id}/report.
func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	report, err := h.queries.Report(r.Context(), id)
	if err != nil {
		h.writeLookupError(w, id, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// GetAltText handles GET /alteredDocuments/{id}/alttext.
func (h *Handler) GetAltText(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	results, err := h.queries.AltText(r.Context(), id)
	if err != nil {
		h.writeLookupError(w, id, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

// Download handles GET /alteredDocuments/{id}/download. Only the HTML
// rendition exists, so format=pdf is served the same file.
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	format := strings.ToLower(r.URL.Query().Get("format"))
	if format != "" && format != "html" && format != "pdf" {
		writeError(w, http.StatusBadRequest, "format must be html or pdf")
		return
	}

	doc, page, err := h.queries.Rendition(r.Context(), id)
	if err != nil {
		h.writeLookupError(w, id, err)
		return
	}

	name := strings.TrimSuffix(doc.OriginalFilename, filepath.Ext(doc.OriginalFilename)) + ".html"
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(page); err != nil {
		slog.Warn("Failed to write rendition.", "documentId", id, "error", err)
	}
}

func (h *Handler) writeLookupError(w http.ResponseWriter, id string, err error) {
	if errors.Is(err, models.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	slog.Error("Document lookup failed.", "documentId", id, "error", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Failed to encode response.", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, models.ErrorResponse{Error: message})
}
