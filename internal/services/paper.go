package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Lllllllleong/paperanalysis/internal/config"
	"github.com/Lllllllleong/paperanalysis/internal/gcp"
	"github.com/Lllllllleong/paperanalysis/internal/llm"
	"github.com/Lllllllleong/paperanalysis/internal/models"
	"github.com/Lllllllleong/paperanalysis/internal/pdf"
)

// PaperAnalyzerFunction owns the clients behind one deployed function or CLI
// run. It is created once per process.
type PaperAnalyzerFunction struct {
	orchestrator *Orchestrator
	generator    llm.Generator
	store        *gcp.ResultStore
	ledger       *gcp.JobLedger
	config       config.Config
}

// NewPaperAnalyzer loads configuration from the environment and wires the pipeline.
func NewPaperAnalyzer(ctx context.Context, opts ...Option) (*PaperAnalyzerFunction, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return NewPaperAnalyzerFromConfig(ctx, cfg, opts...)
}

// NewPaperAnalyzerFromConfig wires the pipeline from an explicit configuration.
// The result store and job ledger are only created when configured. extra
// options are applied last and override the configured ones.
func NewPaperAnalyzerFromConfig(ctx context.Context, cfg config.Config, extra ...Option) (*PaperAnalyzerFunction, error) {
	generator, err := llm.NewGenerator(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s client: %w", cfg.Provider, err)
	}
	f := &PaperAnalyzerFunction{generator: generator, config: cfg}

	var opts []Option
	if cfg.OutputBucket != "" {
		f.store, err = gcp.NewResultStore(ctx, cfg.OutputBucket)
		if err != nil {
			f.Close()
			return nil, err
		}
		opts = append(opts, WithResultStore(f.store), WithFigureLinks(figureLinker(cfg.PublicBaseURL, f.store.Bucket())))
	}
	if cfg.FirestoreCollection != "" {
		f.ledger, err = gcp.NewJobLedger(ctx, cfg.ProjectID, cfg.FirestoreCollection)
		if err != nil {
			f.Close()
			return nil, err
		}
		opts = append(opts, WithJobLedger(f.ledger))
	}

	retry := llm.DefaultRetryPolicy()
	retry.MaxAttempts = cfg.RetryMaxAttempts
	retry.BaseDelay = cfg.RetryBaseDelay

	analyzer := NewPageAnalyzer(generator, AnalyzerConfig{
		PrimaryModel:  cfg.PrimaryModel,
		FallbackModel: cfg.FallbackModel,
		Retry:         retry,
	}, slog.Default())

	opener := PDFOpener(pdf.Options{
		DPI:               cfg.RenderDPI,
		TextLimit:         cfg.TextTruncateLength,
		Password:          cfg.PDFPassword,
		ExcludeReferences: cfg.ExcludeReferences,
		ExtractFigures:    cfg.ExtractFigures,
	})

	f.orchestrator = NewOrchestrator(opener, analyzer, OrchestratorConfig{
		MaxPagesDefault: cfg.MaxPagesDefault,
		MaxPagesLimit:   cfg.MaxPagesLimit,
		InterCallDelay:  cfg.InterCallDelay,
		PrimaryModel:    cfg.PrimaryModel,
		RequestTimeout:  cfg.RequestTimeout,
	}, append(opts, extra...)...)

	slog.Info("Paper analyzer initialized.",
		"provider", cfg.Provider,
		"primaryModel", cfg.PrimaryModel,
		"fallbackModel", cfg.FallbackModel,
		"outputBucket", cfg.OutputBucket,
		"firestoreCollection", cfg.FirestoreCollection,
		"extractFigures", cfg.ExtractFigures)
	return f, nil
}

// figureLinker points figure links at the image route of this service when a
// public base URL is known, and at the stored objects otherwise.
func figureLinker(publicBaseURL, bucket string) FigureLinker {
	return func(analysisID string, fig models.Figure) string {
		if publicBaseURL != "" {
			return publicBaseURL + "/images/" + analysisID + "/" + fig.FileName()
		}
		return gcp.ObjectURL(bucket, gcp.FigureObjectName(analysisID, fig))
	}
}

func (f *PaperAnalyzerFunction) Orchestrator() *Orchestrator {
	return f.orchestrator
}

// Handler returns the HTTP entry point. Stored images are served only when a
// result store is configured.
func (f *PaperAnalyzerFunction) Handler() *HTTPHandler {
	var images ImageSource
	if f.store != nil {
		images = f.store
	}
	return NewHTTPHandler(f.orchestrator, images, slog.Default())
}

// UploadTrigger returns the storage-event entry point. Duplicate uploads are
// only detected when a job ledger is configured.
func (f *PaperAnalyzerFunction) UploadTrigger(ctx context.Context) (*UploadTrigger, error) {
	reader, err := gcp.NewObjectReader(ctx)
	if err != nil {
		return nil, err
	}
	var duplicates DuplicateFinder
	if f.ledger != nil {
		duplicates = f.ledger
	}
	return NewUploadTrigger(f.orchestrator, reader, duplicates, slog.Default()), nil
}

// Close releases every client. It is safe on a partially built function.
func (f *PaperAnalyzerFunction) Close() error {
	var errs []error
	if f.generator != nil {
		errs = append(errs, f.generator.Close())
	}
	if f.store != nil {
		errs = append(errs, f.store.Close())
	}
	if f.ledger != nil {
		errs = append(errs, f.ledger.Close())
	}
	return errors.Join(errs...)
}
