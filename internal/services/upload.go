package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/Lllllllleong/paperanalysis/internal/models"
)

// ObjectReader fetches an uploaded object.
type ObjectReader interface {
	Download(ctx context.Context, bucket, object string) ([]byte, error)
}

// DuplicateFinder looks up an earlier successful analysis by file hash.
type DuplicateFinder interface {
	FindSucceeded(ctx context.Context, fileHash string) (analysisID, outputPath string, found bool, err error)
}

// UploadTrigger analyzes PDFs as they land in a bucket.
type UploadTrigger struct {
	analysis   PaperAnalysis
	reader     ObjectReader
	duplicates DuplicateFinder
	logger     *slog.Logger
}

// NewUploadTrigger creates an UploadTrigger. duplicates may be nil.
func NewUploadTrigger(analysis PaperAnalysis, reader ObjectReader, duplicates DuplicateFinder, logger *slog.Logger) *UploadTrigger {
	if logger == nil {
		logger = slog.Default()
	}
	return &UploadTrigger{analysis: analysis, reader: reader, duplicates: duplicates, logger: logger}
}

// Process handles one object-finalize event. Non-PDF objects, files that were
// already analyzed and documents that cannot be parsed are skipped without
// error so the event is not redelivered.
func (t *UploadTrigger) Process(ctx context.Context, e models.GCSEvent) error {
	logCtx := t.logger.With("bucket", e.Bucket, "object", e.Name)
	if e.Bucket == "" || e.Name == "" {
		return fmt.Errorf("event is missing bucket or object name")
	}
	if !strings.EqualFold(path.Ext(e.Name), ".pdf") {
		logCtx.Info("SKIPPING: Object is not a PDF.")
		return nil
	}

	data, err := t.reader.Download(ctx, e.Bucket, e.Name)
	if err != nil {
		logCtx.Error("Failed to download uploaded document.", "error", err)
		return err
	}

	if t.duplicates != nil {
		analysisID, outputPath, found, err := t.duplicates.FindSucceeded(ctx, fileHash(data))
		if err != nil {
			logCtx.Error("Duplicate check failed.", "error", err)
			return err
		}
		if found {
			logCtx.Info("SKIPPING: Document was already analyzed.", "analysisId", analysisID, "outputPath", outputPath)
			return nil
		}
	}

	result, err := t.analysis.Analyze(ctx, data, path.Base(e.Name), t.analysis.DefaultMaxPages())
	if err != nil {
		if errors.Is(err, models.ErrInvalidDocument) {
			logCtx.Warn("SKIPPING: Uploaded object is not a usable PDF.", "error", err)
			return nil
		}
		return fmt.Errorf("failed to analyze gs://%s/%s: %w", e.Bucket, e.Name, err)
	}

	logCtx.Info("Uploaded document analyzed.",
		"analysisId", result.AnalysisID,
		"totalPages", result.TotalPages,
		"model", result.ModelUsed,
		"outputPath", result.OutputPath)
	return nil
}
