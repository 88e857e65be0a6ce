package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/Lllllllleong/paperanalysis/internal/models"
)

const (
	// MaxUploadBytes caps the size of an uploaded PDF.
	MaxUploadBytes = 50 << 20

	multipartMemory           = 32 << 20
	statusClientClosedRequest = 499
)

// PaperAnalysis is the core operation exposed by the transports.
type PaperAnalysis interface {
	Analyze(ctx context.Context, data []byte, filename string, maxPages int) (*models.AnalysisResult, error)
	DefaultMaxPages() int
	MaxPagesLimit() int
}

var (
	analysisIDPattern = regexp.MustCompile(`^[0-9a-f]{8}$`)
	imageNamePattern  = regexp.MustCompile(`^page_\d+(_figure_\d+)?\.[a-z0-9]+$`)
)

// ImageSource serves the stored page images and figures of past analyses.
type ImageSource interface {
	ReadImage(ctx context.Context, analysisID, name string) ([]byte, string, error)
}

// HTTPHandler accepts multipart PDF uploads and returns the analysis as JSON.
// With an ImageSource it also serves GET /images/{analysisID}/{name}, the
// URLs figure links in the analysis point at.
type HTTPHandler struct {
	analysis PaperAnalysis
	images   ImageSource
	logger   *slog.Logger
	mux      *http.ServeMux
}

func NewHTTPHandler(analysis PaperAnalysis, images ImageSource, logger *slog.Logger) *HTTPHandler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &HTTPHandler{analysis: analysis, images: images, logger: logger, mux: http.NewServeMux()}
	h.mux.HandleFunc("GET /images/{analysisID}/{name}", h.image)
	h.mux.HandleFunc("/", h.root)
	return h
}

func (h *HTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *HTTPHandler) root(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, models.ServiceInfo{
			Service:         "paper-analyzer",
			Status:          "ok",
			DefaultMaxPages: h.analysis.DefaultMaxPages(),
			MaxPagesLimit:   h.analysis.MaxPagesLimit(),
		})
	case http.MethodPost:
		h.analyze(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", r.Method)
	}
}

func (h *HTTPHandler) analyze(w http.ResponseWriter, r *http.Request) {
	maxPages, err := h.parseMaxPages(r.URL.Query().Get("max_pages"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid max_pages", err.Error())
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadBytes+multipartMemory)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "upload too large", fmt.Sprintf("limit is %d bytes", MaxUploadBytes))
			return
		}
		writeError(w, http.StatusBadRequest, "could not parse multipart form", err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing form field \"file\"", err.Error())
		return
	}
	defer file.Close()

	filename := filepath.Base(header.Filename)
	if !strings.EqualFold(filepath.Ext(filename), ".pdf") {
		writeError(w, http.StatusBadRequest, "only PDF files are supported", filename)
		return
	}
	if header.Size > MaxUploadBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "upload too large", fmt.Sprintf("limit is %d bytes", MaxUploadBytes))
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read upload", err.Error())
		return
	}

	logCtx := h.logger.With("filename", filename, "maxPages", maxPages)
	result, err := h.analysis.Analyze(r.Context(), data, filename, maxPages)
	if err != nil {
		status := StatusForError(err)
		if status >= http.StatusInternalServerError {
			logCtx.Error("Analysis request failed.", "status", status, "error", err)
		} else {
			logCtx.Warn("Analysis request rejected.", "status", status, "error", err)
		}
		writeError(w, status, http.StatusText(status), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *HTTPHandler) image(w http.ResponseWriter, r *http.Request) {
	analysisID, name := r.PathValue("analysisID"), r.PathValue("name")
	if h.images == nil || !analysisIDPattern.MatchString(analysisID) || !imageNamePattern.MatchString(name) {
		writeError(w, http.StatusNotFound, "image not found", r.URL.Path)
		return
	}

	data, contentType, err := h.images.ReadImage(r.Context(), analysisID, name)
	if err != nil {
		if errors.Is(err, models.ErrImageNotFound) {
			writeError(w, http.StatusNotFound, "image not found", r.URL.Path)
			return
		}
		h.logger.Error("Failed to read stored image.", "analysisId", analysisID, "name", name, "error", err)
		writeError(w, http.StatusInternalServerError, "could not read image", err.Error())
		return
	}

	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		h.logger.Warn("Failed to write image response.", "error", err)
	}
}

func (h *HTTPHandler) parseMaxPages(raw string) (int, error) {
	if raw == "" {
		return h.analysis.DefaultMaxPages(), nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("max_pages must be an integer, got %q", raw)
	}
	if limit := h.analysis.MaxPagesLimit(); n < 1 || n > limit {
		return 0, fmt.Errorf("max_pages must be between 1 and %d, got %d", limit, n)
	}
	return n, nil
}

// StatusForError maps pipeline errors to HTTP status codes.
func StatusForError(err error) int {
	switch {
	case errors.Is(err, models.ErrInvalidMaxPages), errors.Is(err, models.ErrInvalidDocument):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrAnalysisFailed):
		return http.StatusBadGateway
	case errors.Is(err, models.ErrCancelled):
		if errors.Is(err, context.DeadlineExceeded) {
			return http.StatusGatewayTimeout
		}
		return statusClientClosedRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("Failed to write response.", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message, detail string) {
	writeJSON(w, status, models.ErrorResponse{Error: message, Detail: detail})
}
