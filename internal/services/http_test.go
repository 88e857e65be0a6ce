package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lllllllleong/paperanalysis/internal/models"
)

type stubAnalysis struct {
	result   *models.AnalysisResult
	err      error
	calls    int
	data     []byte
	filename string
	maxPages int
}

func (s *stubAnalysis) Analyze(ctx context.Context, data []byte, filename string, maxPages int) (*models.AnalysisResult, error) {
	s.calls++
	s.data, s.filename, s.maxPages = data, filename, maxPages
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func (s *stubAnalysis) DefaultMaxPages() int { return 10 }
func (s *stubAnalysis) MaxPagesLimit() int   { return 50 }

func uploadRequest(t *testing.T, target, filename string, content []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestHTTPHandlerAnalyze(t *testing.T) {
	stub := &stubAnalysis{result: &models.AnalysisResult{
		AnalysisID:      "ab12cd34",
		MarkdownContent: "# Paper Analysis: paper.pdf",
		PDFFilename:     "paper.pdf",
		TotalPages:      3,
		ModelUsed:       "gemini-2.5-flash",
	}}
	rec := httptest.NewRecorder()

	NewHTTPHandler(stub, nil, nil).ServeHTTP(rec, uploadRequest(t, "/?max_pages=3", "paper.pdf", []byte("%PDF-1.4")))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, 3, stub.maxPages)
	assert.Equal(t, "paper.pdf", stub.filename)
	assert.Equal(t, []byte("%PDF-1.4"), stub.data)

	var got models.AnalysisResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 3, got.TotalPages)
	assert.Equal(t, "gemini-2.5-flash", got.ModelUsed)
}

func TestHTTPHandlerDefaultsMaxPages(t *testing.T) {
	stub := &stubAnalysis{result: &models.AnalysisResult{}}
	rec := httptest.NewRecorder()

	NewHTTPHandler(stub, nil, nil).ServeHTTP(rec, uploadRequest(t, "/", "Paper.PDF", []byte("%PDF")))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 10, stub.maxPages)
}

func TestHTTPHandlerRejectsBadRequests(t *testing.T) {
	tests := []struct {
		name     string
		target   string
		filename string
	}{
		{"zero max pages", "/?max_pages=0", "paper.pdf"},
		{"negative max pages", "/?max_pages=-1", "paper.pdf"},
		{"max pages over limit", "/?max_pages=51", "paper.pdf"},
		{"non-numeric max pages", "/?max_pages=ten", "paper.pdf"},
		{"not a pdf", "/", "notes.txt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &stubAnalysis{result: &models.AnalysisResult{}}
			rec := httptest.NewRecorder()

			NewHTTPHandler(stub, nil, nil).ServeHTTP(rec, uploadRequest(t, tt.target, tt.filename, []byte("%PDF")))

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Zero(t, stub.calls)
			var body models.ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.NotEmpty(t, body.Error)
		})
	}
}

func TestHTTPHandlerMissingFile(t *testing.T) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("other", "x"))
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()

	NewHTTPHandler(&stubAnalysis{}, nil, nil).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHTTPHandlerErrorStatuses(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{models.InvalidDocumentError("not a PDF", nil), http.StatusBadRequest},
		{&models.AnalysisFailedError{PageNumber: 2, Cause: fmt.Errorf("503")}, http.StatusBadGateway},
		{models.CancelledError(context.Canceled), 499},
		{models.CancelledError(context.DeadlineExceeded), http.StatusGatewayTimeout},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			rec := httptest.NewRecorder()
			NewHTTPHandler(&stubAnalysis{err: tt.err}, nil, nil).ServeHTTP(rec, uploadRequest(t, "/", "paper.pdf", []byte("%PDF")))
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestHTTPHandlerInfoAndMethods(t *testing.T) {
	h := NewHTTPHandler(&stubAnalysis{}, nil, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var info models.ServiceInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, "ok", info.Status)
	assert.Equal(t, 10, info.DefaultMaxPages)
	assert.Equal(t, 50, info.MaxPagesLimit)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

type memoryImages map[string][]byte

func (m memoryImages) ReadImage(ctx context.Context, analysisID, name string) ([]byte, string, error) {
	if analysisID == "deadbeef" {
		return nil, "", errors.New("storage unavailable")
	}
	data, ok := m[analysisID+"/"+name]
	if !ok {
		return nil, "", fmt.Errorf("%w: %s/%s", models.ErrImageNotFound, analysisID, name)
	}
	return data, "image/png", nil
}

func TestHTTPHandlerServesImages(t *testing.T) {
	images := memoryImages{
		"ab12cd34/page_2_figure_0.png": []byte("figure bytes"),
		"ab12cd34/page_1.png":          []byte("page bytes"),
	}
	h := NewHTTPHandler(&stubAnalysis{}, images, nil)

	tests := []struct {
		path     string
		wantCode int
		wantBody string
	}{
		{"/images/ab12cd34/page_2_figure_0.png", http.StatusOK, "figure bytes"},
		{"/images/ab12cd34/page_1.png", http.StatusOK, "page bytes"},
		{"/images/ab12cd34/page_9_figure_0.png", http.StatusNotFound, ""},
		{"/images/ab12cd34/ANALYSIS.md", http.StatusNotFound, ""},
		{"/images/not-an-id/page_1.png", http.StatusNotFound, ""},
		{"/images/deadbeef/page_1.png", http.StatusInternalServerError, ""},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			assert.Equal(t, tt.wantCode, rec.Code)
			if tt.wantBody != "" {
				assert.Equal(t, tt.wantBody, rec.Body.String())
				assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
			}
		})
	}
}

func TestHTTPHandlerImagesWithoutSource(t *testing.T) {
	rec := httptest.NewRecorder()
	NewHTTPHandler(&stubAnalysis{}, nil, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/images/ab12cd34/page_1.png", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
