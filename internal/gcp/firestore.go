package gcp

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	"github.com/Lllllllleong/paperanalysis/internal/models"
)

// NewFirestoreClient creates and returns a new Firestore client for the given project ID.
func NewFirestoreClient(ctx context.Context, projectID string) (*firestore.Client, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID must be provided to create a firestore client")
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	return client, nil
}

// JobLedger keeps one Firestore document per analysis request, keyed by the
// analysis ID.
type JobLedger struct {
	client     *firestore.Client
	collection string
	now        func() time.Time
}

// NewJobLedger creates a ledger writing to collection in projectID.
func NewJobLedger(ctx context.Context, projectID, collection string) (*JobLedger, error) {
	if collection == "" {
		return nil, fmt.Errorf("collection must be provided to create a job ledger")
	}
	client, err := NewFirestoreClient(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return &JobLedger{client: client, collection: collection, now: time.Now}, nil
}

func (l *JobLedger) doc(analysisID string) *firestore.DocumentRef {
	return l.client.Collection(l.collection).Doc(analysisID)
}

// Create writes the initial record.
func (l *JobLedger) Create(ctx context.Context, job models.AnalysisJob) error {
	if _, err := l.doc(job.AnalysisID).Set(ctx, job); err != nil {
		return fmt.Errorf("failed to create job document: %w", err)
	}
	return nil
}

// UpdateStatus moves the record to status, with optional error details.
func (l *JobLedger) UpdateStatus(ctx context.Context, analysisID, status, errDetails string) error {
	updates := []firestore.Update{
		{Path: "status", Value: status},
		{Path: "updatedAt", Value: l.now()},
	}
	if errDetails != "" {
		updates = append(updates, firestore.Update{Path: "errorDetails", Value: errDetails})
	}
	if _, err := l.doc(analysisID).Update(ctx, updates); err != nil {
		return fmt.Errorf("failed to update job status to %s: %w", status, err)
	}
	return nil
}

// Complete marks the record SUCCEEDED and stores the result's provenance.
func (l *JobLedger) Complete(ctx context.Context, result *models.AnalysisResult) error {
	updates := []firestore.Update{
		{Path: "status", Value: models.StatusSucceeded},
		{Path: "pageCount", Value: result.TotalPages},
		{Path: "modelUsed", Value: result.ModelUsed},
		{Path: "updatedAt", Value: l.now()},
	}
	if result.OutputPath != "" {
		updates = append(updates, firestore.Update{Path: "outputPath", Value: result.OutputPath})
	}
	if _, err := l.doc(result.AnalysisID).Update(ctx, updates); err != nil {
		return fmt.Errorf("failed to mark job complete: %w", err)
	}
	return nil
}

// FindSucceeded returns the ID and output path of an earlier successful
// analysis of the same file, if there is one.
func (l *JobLedger) FindSucceeded(ctx context.Context, fileHash string) (string, string, bool, error) {
	iter := l.client.Collection(l.collection).
		Where("fileHash", "==", fileHash).
		Where("status", "==", models.StatusSucceeded).
		Limit(1).
		Documents(ctx)
	defer iter.Stop()

	snap, err := iter.Next()
	if err == iterator.Done {
		return "", "", false, nil
	}
	if err != nil {
		return "", "", false, fmt.Errorf("failed to query for duplicates: %w", err)
	}

	var job models.AnalysisJob
	if err := snap.DataTo(&job); err != nil {
		return "", "", false, fmt.Errorf("failed to decode job document %s: %w", snap.Ref.ID, err)
	}
	return snap.Ref.ID, job.OutputPath, true, nil
}

func (l *JobLedger) Close() error {
	return l.client.Close()
}
