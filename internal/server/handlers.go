package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// allowedExtensions lists accepted upload types; PDFs pass the allowlist but are rejected with a setup hint
var allowedExtensions = []string{".jpg", ".jpeg", ".png", ".pdf"}

// writeJSON writes v as a JSON response with the given status
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// writeError writes {"detail": message}
func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]string{"detail": message})
}

// handleRoot describes the API
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Handwriting Extraction API",
		"version": s.version,
		"endpoints": map[string]string{
			"/upload":  "POST - Upload handwritten image for extraction",
			"/health":  "GET - Health check",
			"/cleanup": "DELETE - Remove leftover uploads",
			"/traces":  "GET - Recent extraction traces",
		},
	})
}

// handleHealth reports whether the agent is up and which providers it uses
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status":            "healthy",
		"agent_initialized": s.agent != nil,
	}
	if s.agent != nil {
		resp["providers"] = s.agent.Providers()
		resp["preprocessing_enabled"] = s.agent.PreprocessingEnabled()
		resp["tracing_enabled"] = s.agent.TracingEnabled()
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleUpload validates an uploaded image, runs the extraction and returns the result envelope
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	defer func() { recordUpload(rec.status) }()
	w = rec

	if s.agent == nil {
		writeError(w, http.StatusServiceUnavailable, "Agent not initialized. Please configure a vision provider (HF_TOKEN).")
		return
	}

	// Leave room for multipart framing around the file itself
	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadSize+(1<<20))
	if err := r.ParseMultipartForm(MaxUploadSize); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) || strings.Contains(err.Error(), "request body too large") {
			writeError(w, http.StatusBadRequest, sizeExceededMessage())
			return
		}
		slog.Error("Error parsing multipart form", "error", err)
		writeError(w, http.StatusBadRequest, "Error parsing form")
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		slog.Error("Error getting file from form", "error", err)
		writeError(w, http.StatusBadRequest, "No file provided")
		return
	}
	defer f.Close()

	filename := header.Filename
	if filename == "" {
		filename = "unknown.jpg"
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if !isAllowedExtension(ext) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("File type %s not allowed. Allowed types: %s", ext, strings.Join(allowedExtensions, ", ")))
		return
	}
	if ext == ".pdf" {
		writeError(w, http.StatusBadRequest, "PDF processing requires additional setup with poppler-utils. Please upload JPG or PNG images.")
		return
	}

	data, err := io.ReadAll(io.LimitReader(f, MaxUploadSize+1))
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", filename)
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Error processing file: %v", err))
		return
	}
	if len(data) > MaxUploadSize {
		writeError(w, http.StatusBadRequest, sizeExceededMessage())
		return
	}

	name, err := s.storage.Save(uuid.NewString()+"_"+sanitizeFilename(filename), data)
	if err != nil {
		slog.Error("Error saving upload", "error", err, "filename", filename)
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Error processing file: %v", err))
		return
	}

	start := time.Now()
	result := s.agent.ExtractHandwriting(r.Context(), s.storage.Path(name), filename)
	recordExtraction(result.Provider, result.Success, time.Since(start).Seconds())

	if err := s.storage.Delete(name); err != nil {
		slog.Warn("Failed to delete temporary file", "name", name, "error", err)
	}

	if !result.Success {
		slog.Error("Extraction failed", "filename", filename, "error", result.Error)
		detail := result.Error
		if detail == "" {
			detail = "Extraction failed"
		}
		writeError(w, http.StatusInternalServerError, detail)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleCleanup deletes every scratch file
func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	deleted, err := s.storage.Clear()
	if err != nil {
		slog.Error("Error cleaning up uploads", "deleted", deleted, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": fmt.Sprintf("Cleaned up %d files", deleted),
		"deleted": deleted,
	})
}

// handleListTraces returns the most recent extraction traces
func (s *Server) handleListTraces(w http.ResponseWriter, r *http.Request) {
	if s.agent == nil || s.agent.Traces() == nil {
		writeError(w, http.StatusNotFound, "Tracing is not enabled")
		return
	}

	traces, err := s.agent.Traces().List(50)
	if err != nil {
		slog.Error("Error listing traces", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, traces)
}

// statusRecorder remembers the status code written by a handler
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func isAllowedExtension(ext string) bool {
	for _, allowed := range allowedExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

func sizeExceededMessage() string {
	return fmt.Sprintf("File size exceeds maximum allowed size of %dMB", MaxUploadSize>>20)
}
