package models

import "time"

// Job statuses recorded in Firestore for each analysis request.
const (
	StatusExtracting = "EXTRACTING"
	StatusAnalyzing  = "ANALYZING"
	StatusSucceeded  = "SUCCEEDED"
	StatusFailed     = "FAILED"
	StatusCancelled  = "CANCELLED"
)

// AnalysisJob is the Firestore record for a single analysis request.
// It tracks status and provenance; the analysis itself is never stored here.
type AnalysisJob struct {
	AnalysisID       string    `firestore:"analysisId,omitempty"`
	FileHash         string    `firestore:"fileHash,omitempty"`
	OriginalFilename string    `firestore:"originalFilename,omitempty"`
	Status           string    `firestore:"status,omitempty"`
	ErrorDetails     string    `firestore:"errorDetails,omitempty"`
	PageCount        int       `firestore:"pageCount,omitempty"`
	ModelUsed        string    `firestore:"modelUsed,omitempty"`
	OutputPath       string    `firestore:"outputPath,omitempty"`
	CreatedAt        time.Time `firestore:"createdAt,omitempty"`
	UpdatedAt        time.Time `firestore:"updatedAt,omitempty"`
}
