package gcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"cloud.google.com/go/storage"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/googleapi"

	"github.com/Lllllllleong/paperanalysis/internal/models"
)

const (
	analysisObjectName = "ANALYSIS.md"
	maxConcurrentPuts  = 10
)

// ResultStore writes a copy of each finished analysis to a GCS bucket under
// "<analysisId>/": the Markdown document, one PNG per analyzed page and every
// extracted figure.
type ResultStore struct {
	storageClient *storage.Client
	bucket        string
}

// NewResultStore creates a ResultStore for bucket.
func NewResultStore(ctx context.Context, bucket string) (*ResultStore, error) {
	if bucket == "" {
		return nil, fmt.Errorf("bucket must be provided to create a result store")
	}
	storageClient, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return &ResultStore{storageClient: storageClient, bucket: bucket}, nil
}

// Save uploads the page images and figures concurrently, then the Markdown
// document, and returns the gs:// URI of the document.
func (s *ResultStore) Save(ctx context.Context, result *models.AnalysisResult, pages []models.PageRecord) (string, error) {
	logCtx := slog.With("analysisId", result.AnalysisID, "bucket", s.bucket)
	bucketHandle := s.storageClient.Bucket(s.bucket)

	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(maxConcurrentPuts)
	figures := 0
	for _, page := range pages {
		objectName := PageImageObjectName(result.AnalysisID, page.PageNumber)
		eg.Go(func() error {
			if err := SaveToGCSAtomically(gctx, bucketHandle, objectName, page.ImageMIMEType, page.ImageData); err != nil {
				return fmt.Errorf("page %d: %w", page.PageNumber, err)
			}
			return nil
		})
		for _, fig := range page.Figures {
			figures++
			objectName := FigureObjectName(result.AnalysisID, fig)
			eg.Go(func() error {
				if err := SaveToGCSAtomically(gctx, bucketHandle, objectName, fig.MIMEType, fig.Data); err != nil {
					return fmt.Errorf("page %d figure %d: %w", fig.PageNumber, fig.Index, err)
				}
				return nil
			})
		}
	}
	if err := eg.Wait(); err != nil {
		logCtx.Error("One or more page images failed to upload.", "error", err)
		return "", err
	}

	objectName := result.AnalysisID + "/" + analysisObjectName
	if err := SaveToGCSAtomically(ctx, bucketHandle, objectName, "text/markdown; charset=utf-8", []byte(AnalysisFile(result))); err != nil {
		return "", err
	}

	outputURI := fmt.Sprintf("gs://%s/%s", s.bucket, objectName)
	logCtx.Info("Analysis output saved.", "outputPath", outputURI, "pageImages", len(pages), "figures", figures)
	return outputURI, nil
}

// ReadImage returns a stored page image or figure of an analysis and its
// content type. Missing objects match models.ErrImageNotFound.
func (s *ResultStore) ReadImage(ctx context.Context, analysisID, name string) ([]byte, string, error) {
	objectName := analysisID + "/" + name
	reader, err := s.storageClient.Bucket(s.bucket).Object(objectName).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, "", fmt.Errorf("%w: %s", models.ErrImageNotFound, objectName)
		}
		return nil, "", fmt.Errorf("failed to get GCS object reader for gs://%s/%s: %w", s.bucket, objectName, err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read GCS object gs://%s/%s: %w", s.bucket, objectName, err)
	}
	return data, reader.Attrs.ContentType, nil
}

func (s *ResultStore) Close() error {
	return s.storageClient.Close()
}

// ObjectReader downloads uploaded source documents.
type ObjectReader struct {
	storageClient *storage.Client
}

func NewObjectReader(ctx context.Context) (*ObjectReader, error) {
	storageClient, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return &ObjectReader{storageClient: storageClient}, nil
}

// Download reads gs://bucket/object into memory.
func (r *ObjectReader) Download(ctx context.Context, bucket, object string) ([]byte, error) {
	reader, err := r.storageClient.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get GCS object reader for gs://%s/%s: %w", bucket, object, err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read GCS object gs://%s/%s: %w", bucket, object, err)
	}
	return data, nil
}

func (r *ObjectReader) Close() error {
	return r.storageClient.Close()
}

// PageImageObjectName is the object name of a page image, matching the
// page_N.png naming clients link to.
func PageImageObjectName(analysisID string, pageNumber int) string {
	return analysisID + "/" + models.PageImageFileName(pageNumber)
}

// FigureObjectName is the object name of an extracted figure.
func FigureObjectName(analysisID string, fig models.Figure) string {
	return analysisID + "/" + fig.FileName()
}

// ObjectURL is the HTTPS URL of an object in bucket.
func ObjectURL(bucket, objectName string) string {
	return "https://storage.googleapis.com/" + bucket + "/" + objectName
}

// Bucket is the bucket results are written to.
func (s *ResultStore) Bucket() string {
	return s.bucket
}

// AnalysisFile is the content written to ANALYSIS.md.
func AnalysisFile(result *models.AnalysisResult) string {
	var sb strings.Builder
	sb.WriteString("<!--\n")
	fmt.Fprintf(&sb, "analysis_id: %s\n", result.AnalysisID)
	fmt.Fprintf(&sb, "pdf_filename: %s\n", result.PDFFilename)
	fmt.Fprintf(&sb, "total_pages: %d\n", result.TotalPages)
	fmt.Fprintf(&sb, "analysis_timestamp: %s\n", result.AnalysisTimestamp)
	fmt.Fprintf(&sb, "model_used: %s\n", result.ModelUsed)
	sb.WriteString("-->\n\n")
	sb.WriteString(result.MarkdownContent)
	return sb.String()
}

// SaveToGCSAtomically writes content to a GCS object only if it doesn't already exist.
func SaveToGCSAtomically(ctx context.Context, bucket *storage.BucketHandle, objectName, contentType string, content []byte) error {
	writer := bucket.Object(objectName).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	writer.ContentType = contentType

	if _, err := writer.Write(content); err != nil {
		_ = writer.Close()
		if isPreconditionFailed(err) {
			slog.Info("SKIPPING: Object already exists.", "gcsObject", objectName)
			return nil
		}
		slog.Error("Failed to copy content to GCS object.", "gcsObject", objectName, "error", err)
		return fmt.Errorf("failed to write to GCS: %w", err)
	}

	if err := writer.Close(); err != nil {
		if isPreconditionFailed(err) {
			slog.Info("SKIPPING: Object already exists.", "gcsObject", objectName)
			return nil
		}
		slog.Error("Failed to close GCS writer.", "gcsObject", objectName, "error", err)
		return fmt.Errorf("failed to finalize GCS write: %w", err)
	}
	return nil
}

func isPreconditionFailed(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed
}
