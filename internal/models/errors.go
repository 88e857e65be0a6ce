package models

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidDocument means the input is not a parseable, decryptable PDF
	// with at least one page.
	ErrInvalidDocument = errors.New("invalid document")

	// ErrInvalidMaxPages means the requested page limit is zero or negative.
	ErrInvalidMaxPages = errors.New("max_pages must be at least 1")

	// ErrAnalysisFailed matches any *AnalysisFailedError via errors.Is.
	ErrAnalysisFailed = errors.New("analysis failed")

	// ErrCancelled means the caller withdrew the request before completion.
	ErrCancelled = errors.New("analysis cancelled")

	// ErrImageNotFound means no stored page image or figure has that name.
	ErrImageNotFound = errors.New("image not found")
)

// AnalysisFailedError reports the page whose model call could not be completed.
type AnalysisFailedError struct {
	PageNumber int
	Cause      error
}

func (e *AnalysisFailedError) Error() string {
	return fmt.Sprintf("analysis failed for page %d: %v", e.PageNumber, e.Cause)
}

func (e *AnalysisFailedError) Unwrap() error {
	return e.Cause
}

// Is lets errors.Is(err, ErrAnalysisFailed) match.
func (e *AnalysisFailedError) Is(target error) bool {
	return target == ErrAnalysisFailed
}

// InvalidDocumentError wraps cause so that it matches ErrInvalidDocument.
func InvalidDocumentError(message string, cause error) error {
	if cause == nil {
		return fmt.Errorf("%w: %s", ErrInvalidDocument, message)
	}
	return fmt.Errorf("%w: %s: %w", ErrInvalidDocument, message, cause)
}

// CancelledError wraps a context error so that it matches ErrCancelled.
func CancelledError(cause error) error {
	return fmt.Errorf("%w: %w", ErrCancelled, cause)
}
