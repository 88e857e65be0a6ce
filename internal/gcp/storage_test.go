package gcp

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/api/googleapi"

	"github.com/Lllllllleong/paperanalysis/internal/models"
)

func TestPageImageObjectName(t *testing.T) {
	assert.Equal(t, "ab12cd34/page_3.png", PageImageObjectName("ab12cd34", 3))
}

func TestFigureObjectName(t *testing.T) {
	fig := models.Figure{PageNumber: 4, Index: 2, Extension: "jpg"}
	assert.Equal(t, "ab12cd34/page_4_figure_2.jpg", FigureObjectName("ab12cd34", fig))
}

func TestObjectURL(t *testing.T) {
	assert.Equal(t, "https://storage.googleapis.com/results/ab12cd34/page_1_figure_0.png", ObjectURL("results", "ab12cd34/page_1_figure_0.png"))
}

func TestAnalysisFile(t *testing.T) {
	content := AnalysisFile(&models.AnalysisResult{
		AnalysisID:        "ab12cd34",
		MarkdownContent:   "# Paper Analysis: x.pdf\n",
		PDFFilename:       "x.pdf",
		TotalPages:        2,
		AnalysisTimestamp: "2026-10-19 09:30:00",
		ModelUsed:         "gemini-2.5-flash",
	})

	assert.True(t, strings.HasPrefix(content, "<!--\n"))
	assert.Contains(t, content, "total_pages: 2\n")
	assert.Contains(t, content, "model_used: gemini-2.5-flash\n")
	assert.True(t, strings.HasSuffix(content, "# Paper Analysis: x.pdf\n"))
}

func TestIsPreconditionFailed(t *testing.T) {
	assert.True(t, isPreconditionFailed(&googleapi.Error{Code: http.StatusPreconditionFailed}))
	assert.True(t, isPreconditionFailed(fmt.Errorf("close: %w", &googleapi.Error{Code: http.StatusPreconditionFailed})))
	assert.False(t, isPreconditionFailed(&googleapi.Error{Code: http.StatusForbidden}))
	assert.False(t, isPreconditionFailed(errors.New("boom")))
}
