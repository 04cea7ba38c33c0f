package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/brunobiangulo/depfacts"
	"github.com/brunobiangulo/depfacts/export"
	"github.com/brunobiangulo/depfacts/extract"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const maxUploadBytes = 100 << 20

type handler struct {
	engine *depfacts.Engine
}

// newRouter builds the HTTP API around an engine.
func newRouter(e *depfacts.Engine, apiKey string) http.Handler {
	h := &handler{engine: e}

	r := chi.NewRouter()
	r.Use(recoveryMiddleware)
	r.Use(middleware.RequestID)
	r.Use(logMiddleware)
	r.Use(authMiddleware(apiKey))

	r.Post("/extract", h.handleExtract)
	r.Get("/documents", h.handleListDocuments)
	r.Get("/documents/{id}", h.handleGetDocument)
	r.Get("/documents/{id}/triples", h.handleDocumentTriples)
	r.Delete("/documents/{id}", h.handleDeleteDocument)
	r.Get("/terms/{term}/triples", h.handleTermTriples)
	r.Get("/health", h.handleHealth)
	r.Method(http.MethodGet, "/metrics", e.Metrics().Handler())
	return r
}

// POST /extract
// Accepts a multipart file upload or JSON {"text": "...", "name": "...", "format": "..."}.
func (h *handler) handleExtract(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Minute)
	defer cancel()

	format := r.URL.Query().Get("format")
	var (
		res *depfacts.Result
		err error
	)

	if perr := r.ParseMultipartForm(maxUploadBytes); perr == nil {
		file, header, ferr := r.FormFile("file")
		if ferr != nil {
			writeError(w, http.StatusBadRequest, "multipart request needs a 'file' field")
			return
		}
		defer file.Close()
		if format == "" {
			format = r.FormValue("format")
		}
		res, err = h.extractUpload(ctx, file, header.Filename)
	} else {
		var req struct {
			Text   string `json:"text"`
			Name   string `json:"name"`
			Format string `json:"format"`
		}
		if derr := json.NewDecoder(r.Body).Decode(&req); derr != nil {
			writeError(w, http.StatusBadRequest, "invalid request: expected multipart file or JSON with 'text'")
			return
		}
		if req.Text == "" {
			writeError(w, http.StatusBadRequest, "text is required")
			return
		}
		if format == "" {
			format = req.Format
		}
		res, err = h.engine.ExtractText(ctx, req.Name, req.Text)
	}

	if err == nil && res.Skipped {
		res.Triples, err = h.engine.Triples(ctx, res.DocumentID)
	}
	if err != nil {
		slog.Error("server: extract failed", "error", err)
		writeEngineError(w, err)
		return
	}
	if format == "" {
		writeJSON(w, http.StatusOK, res)
		return
	}
	h.writeTriples(w, format, res.Triples)
}

// extractUpload stages an uploaded file in a private temp directory and
// extracts it under the key "upload:<name>", so a repeated upload of the same
// content is skipped and a new version replaces the old triples.
func (h *handler) extractUpload(ctx context.Context, file io.Reader, filename string) (*depfacts.Result, error) {
	safeName := filepath.Base(filename)

	dir, err := os.MkdirTemp("", "depfacts-upload-")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	tmpPath := filepath.Join(dir, safeName)
	dst, err := os.Create(tmpPath)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(dst, file); err != nil {
		dst.Close()
		return nil, err
	}
	if err := dst.Close(); err != nil {
		return nil, err
	}
	return h.engine.ExtractFile(ctx, tmpPath, depfacts.WithKey(uploadKey(safeName)),
		depfacts.WithMetadata(map[string]string{"upload": safeName}))
}

func uploadKey(name string) string {
	return "upload:" + name
}

// GET /documents
func (h *handler) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := h.engine.Documents(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if docs == nil {
		docs = []depfacts.Document{}
	}
	writeJSON(w, http.StatusOK, docs)
}

// GET /documents/{id}
func (h *handler) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := documentID(w, r)
	if !ok {
		return
	}
	doc, err := h.engine.Document(r.Context(), id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// GET /documents/{id}/triples?format=
func (h *handler) handleDocumentTriples(w http.ResponseWriter, r *http.Request) {
	id, ok := documentID(w, r)
	if !ok {
		return
	}
	triples, err := h.engine.Triples(r.Context(), id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	h.writeTriples(w, r.URL.Query().Get("format"), triples)
}

// DELETE /documents/{id}
func (h *handler) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := documentID(w, r)
	if !ok {
		return
	}
	if err := h.engine.Delete(r.Context(), id); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": id})
}

// GET /terms/{term}/triples?limit=&format=
func (h *handler) handleTermTriples(w http.ResponseWriter, r *http.Request) {
	term := chi.URLParam(r, "term")
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	triples, err := h.engine.TriplesForTerm(r.Context(), term, limit)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	h.writeTriples(w, r.URL.Query().Get("format"), triples)
}

// GET /health
func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats, err := h.engine.Stats(r.Context())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "stats": stats})
}

// writeTriples renders triples as a JSON array when format is empty or
// "json", otherwise with the matching export format.
func (h *handler) writeTriples(w http.ResponseWriter, format string, triples []extract.Triple) {
	if triples == nil {
		triples = []extract.Triple{}
	}
	if format == "" || format == "json" {
		writeJSON(w, http.StatusOK, triples)
		return
	}
	f, err := export.ParseFormat(format)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	info, _ := export.GetFormatInfo(f)
	w.Header().Set("Content-Type", info.MIMEType)
	w.WriteHeader(http.StatusOK)
	if err := export.WriteAll(w, f, triples, h.engine.WriterOptions()...); err != nil {
		slog.Warn("server: writing triples failed", "format", f, "error", err)
	}
}

func documentID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid document id")
		return 0, false
	}
	return id, true
}

// writeEngineError maps engine sentinel errors to HTTP status codes.
func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, depfacts.ErrDocumentNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, depfacts.ErrUnsupportedFormat):
		writeError(w, http.StatusUnsupportedMediaType, err.Error())
	case errors.Is(err, depfacts.ErrParsingFailed):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, depfacts.ErrUpstreamFailure):
		writeError(w, http.StatusBadGateway, err.Error())
	case errors.Is(err, depfacts.ErrStoreClosed):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "extraction timed out")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
