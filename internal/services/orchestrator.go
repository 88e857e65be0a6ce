package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Lllllllleong/paperanalysis/internal/models"
	"github.com/Lllllllleong/paperanalysis/internal/pdf"
)

// PageDocument is an opened document that yields page records lazily.
type PageDocument interface {
	Pages(maxPages int) iter.Seq2[models.PageRecord, error]
	Close() error
}

// DocumentOpener opens uploaded bytes. Failures must match models.ErrInvalidDocument.
type DocumentOpener func(data []byte) (PageDocument, error)

// PDFOpener returns a DocumentOpener backed by the pdf package.
func PDFOpener(opts pdf.Options) DocumentOpener {
	return func(data []byte) (PageDocument, error) {
		doc, err := pdf.Open(data, opts)
		if err != nil {
			return nil, err
		}
		return doc, nil
	}
}

// Analyzer explains a single page.
type Analyzer interface {
	Analyze(ctx context.Context, page models.PageRecord, priorContext, model string) (models.AnalysisOutcome, error)
}

// ResultStore persists a copy of a finished analysis and returns its location.
type ResultStore interface {
	Save(ctx context.Context, result *models.AnalysisResult, pages []models.PageRecord) (string, error)
}

// JobLedger records the status of each analysis request.
type JobLedger interface {
	Create(ctx context.Context, job models.AnalysisJob) error
	UpdateStatus(ctx context.Context, analysisID, status, errDetails string) error
	Complete(ctx context.Context, result *models.AnalysisResult) error
}

// OrchestratorConfig holds the page limits and pacing of the pipeline.
type OrchestratorConfig struct {
	MaxPagesDefault int
	MaxPagesLimit   int
	InterCallDelay  time.Duration
	PrimaryModel    string
	RequestTimeout  time.Duration
}

// Orchestrator runs extraction and page analysis for one request at a time
// per call. Calls share no mutable state.
type Orchestrator struct {
	open     DocumentOpener
	analyzer Analyzer
	store    ResultStore
	ledger   JobLedger
	config   OrchestratorConfig
	logger   *slog.Logger
	now      func() time.Time
	newID    func() string
	figLink  FigureLinker
}

// FigureLinker returns the URL a figure of the given analysis is served at,
// or "" to leave its citations unlinked.
type FigureLinker func(analysisID string, fig models.Figure) string

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithResultStore persists every successful result.
func WithResultStore(store ResultStore) Option {
	return func(o *Orchestrator) { o.store = store }
}

// WithJobLedger records request status transitions.
func WithJobLedger(ledger JobLedger) Option {
	return func(o *Orchestrator) { o.ledger = ledger }
}

// WithLogger sets the base logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// WithFigureLinks links figure citations in the assembled document to the
// extracted images.
func WithFigureLinks(link FigureLinker) Option {
	return func(o *Orchestrator) { o.figLink = link }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// NewOrchestrator wires the pipeline.
func NewOrchestrator(open DocumentOpener, analyzer Analyzer, config OrchestratorConfig, opts ...Option) *Orchestrator {
	if config.MaxPagesLimit <= 0 || config.MaxPagesLimit > pdf.MaxPagesCeiling {
		config.MaxPagesLimit = pdf.MaxPagesCeiling
	}
	if config.MaxPagesDefault <= 0 {
		config.MaxPagesDefault = pdf.DefaultMaxPages
	}
	o := &Orchestrator{
		open:     open,
		analyzer: analyzer,
		config:   config,
		logger:   slog.Default(),
		now:      time.Now,
		newID:    newAnalysisID,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// DefaultMaxPages is the page limit used when a caller does not choose one.
func (o *Orchestrator) DefaultMaxPages() int {
	return o.config.MaxPagesDefault
}

// MaxPagesLimit is the largest page limit honored per request.
func (o *Orchestrator) MaxPagesLimit() int {
	return o.config.MaxPagesLimit
}

// Analyze explains the first maxPages pages of data in order and returns the
// assembled document. It is all-or-nothing: any page failure aborts the
// request. Errors match models.ErrInvalidMaxPages, models.ErrInvalidDocument,
// models.ErrAnalysisFailed or models.ErrCancelled.
func (o *Orchestrator) Analyze(ctx context.Context, data []byte, filename string, maxPages int) (*models.AnalysisResult, error) {
	if maxPages <= 0 {
		return nil, fmt.Errorf("%w: got %d", models.ErrInvalidMaxPages, maxPages)
	}
	maxPages = pdf.ClampMaxPages(maxPages, o.config.MaxPagesDefault, o.config.MaxPagesLimit)

	if o.config.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.config.RequestTimeout)
		defer cancel()
	}

	analysisID := o.newID()
	logCtx := o.logger.With("analysisId", analysisID, "filename", filename)
	logCtx.Info("Starting analysis.", "maxPages", maxPages, "bytes", len(data))

	o.createJob(ctx, logCtx, analysisID, filename, data)

	result, pages, err := o.run(ctx, logCtx, analysisID, data, filename, maxPages)
	if err != nil {
		o.failJob(ctx, logCtx, analysisID, err)
		return nil, err
	}

	if o.store != nil {
		outputPath, err := o.store.Save(ctx, result, pages)
		if err != nil {
			logCtx.Error("Failed to persist analysis output.", "error", err)
		} else {
			result.OutputPath = outputPath
		}
	}

	if o.ledger != nil {
		if err := o.ledger.Complete(ctx, result); err != nil {
			logCtx.Error("Failed to record completed analysis.", "error", err)
		}
	}

	logCtx.Info("Analysis complete.", "totalPages", result.TotalPages, "model", result.ModelUsed)
	return result, nil
}

func (o *Orchestrator) run(ctx context.Context, logCtx *slog.Logger, analysisID string, data []byte, filename string, maxPages int) (*models.AnalysisResult, []models.PageRecord, error) {
	doc, err := o.open(data)
	if err != nil {
		logCtx.Warn("Rejected document.", "error", err)
		if !errors.Is(err, models.ErrInvalidDocument) {
			err = models.InvalidDocumentError("failed to open document", err)
		}
		return nil, nil, err
	}
	defer doc.Close()

	o.updateJob(ctx, logCtx, analysisID, models.StatusAnalyzing)

	var outcomes []models.AnalysisOutcome
	var kept []models.PageRecord
	var figures []models.Figure
	var prior strings.Builder
	model := o.config.PrimaryModel
	modelUsed := o.config.PrimaryModel

	for page, err := range doc.Pages(maxPages) {
		if err != nil {
			logCtx.Error("Failed to extract page.", "error", err)
			return nil, nil, models.InvalidDocumentError("failed to extract page", err)
		}
		if err := ctx.Err(); err != nil {
			return nil, nil, o.cancelled(logCtx, page.PageNumber, err)
		}

		if len(outcomes) > 0 {
			if err := sleepCtx(ctx, o.config.InterCallDelay); err != nil {
				return nil, nil, o.cancelled(logCtx, page.PageNumber, err)
			}
		}

		outcome, err := o.analyzer.Analyze(ctx, page, prior.String(), model)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, nil, o.cancelled(logCtx, page.PageNumber, ctxErr)
			}
			if !errors.Is(err, models.ErrAnalysisFailed) {
				err = &models.AnalysisFailedError{PageNumber: page.PageNumber, Cause: err}
			}
			logCtx.Error("Aborting analysis.", "page", page.PageNumber, "error", err)
			return nil, nil, err
		}

		if outcome.Model != "" && outcome.Model != model {
			model = outcome.Model
			modelUsed = outcome.Model
		}
		outcomes = append(outcomes, outcome)
		figures = append(figures, page.Figures...)
		if o.store != nil {
			kept = append(kept, page)
		}

		if prior.Len() > 0 {
			prior.WriteString("\n\n")
		}
		fmt.Fprintf(&prior, "### Page %d\n%s", outcome.PageNumber, outcome.Explanation)
	}

	if len(outcomes) == 0 {
		return nil, nil, models.InvalidDocumentError("no pages to analyze", nil)
	}

	timestamp := o.now().Format(models.TimestampLayout)
	md := AssembleDocument(TemplateInput{
		Filename:  filename,
		Timestamp: timestamp,
		Model:     modelUsed,
		Outcomes:  outcomes,
	})
	if o.figLink != nil && len(figures) > 0 {
		md = LinkFigures(md, figures, func(fig models.Figure) string { return o.figLink(analysisID, fig) })
		logCtx.Info("Linked figure citations.", "figures", len(figures))
	}

	result := &models.AnalysisResult{
		AnalysisID:        analysisID,
		MarkdownContent:   md,
		PDFFilename:       filename,
		TotalPages:        len(outcomes),
		AnalysisTimestamp: timestamp,
		ModelUsed:         modelUsed,
	}
	return result, kept, nil
}

func (o *Orchestrator) cancelled(logCtx *slog.Logger, page int, err error) error {
	logCtx.Warn("Analysis cancelled.", "page", page, "error", err)
	return models.CancelledError(err)
}

func (o *Orchestrator) createJob(ctx context.Context, logCtx *slog.Logger, analysisID, filename string, data []byte) {
	if o.ledger == nil {
		return
	}
	now := o.now()
	job := models.AnalysisJob{
		AnalysisID:       analysisID,
		FileHash:         fileHash(data),
		OriginalFilename: filename,
		Status:           models.StatusExtracting,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := o.ledger.Create(ctx, job); err != nil {
		logCtx.Error("Failed to create analysis job record.", "error", err)
	}
}

func (o *Orchestrator) updateJob(ctx context.Context, logCtx *slog.Logger, analysisID, status string) {
	if o.ledger == nil {
		return
	}
	if err := o.ledger.UpdateStatus(ctx, analysisID, status, ""); err != nil {
		logCtx.Error("Failed to update analysis job status.", "status", status, "error", err)
	}
}

func (o *Orchestrator) failJob(ctx context.Context, logCtx *slog.Logger, analysisID string, cause error) {
	if o.ledger == nil {
		return
	}
	status := models.StatusFailed
	if errors.Is(cause, models.ErrCancelled) {
		status = models.StatusCancelled
	}
	// The request context may already be done; the record must still be written.
	if err := o.ledger.UpdateStatus(context.WithoutCancel(ctx), analysisID, status, cause.Error()); err != nil {
		logCtx.Error("CRITICAL: Failed to update job status after a processing error.", "updateError", err)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func newAnalysisID() string {
	return uuid.NewString()[:8]
}

func fileHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
