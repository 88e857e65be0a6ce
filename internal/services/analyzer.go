package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Lllllllleong/paperanalysis/internal/llm"
	"github.com/Lllllllleong/paperanalysis/internal/models"
)

// AnalyzerConfig holds the model identifiers and retry policy for page analysis.
type AnalyzerConfig struct {
	PrimaryModel  string
	FallbackModel string
	Retry         llm.RetryPolicy
}

// PageAnalyzer explains one page per call. It holds no per-request state.
type PageAnalyzer struct {
	generator llm.Generator
	config    AnalyzerConfig
	logger    *slog.Logger
}

// NewPageAnalyzer creates a PageAnalyzer backed by generator.
func NewPageAnalyzer(generator llm.Generator, config AnalyzerConfig, logger *slog.Logger) *PageAnalyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &PageAnalyzer{
		generator: generator,
		config:    config,
		logger:    logger,
	}
}

const refusalScanBytes = 200

var refusalPhrases = []string{
	"i am unable to",
	"i cannot fulfill",
	"i cannot answer",
	"i cannot provide",
	"as a large language model",
}

// Analyze explains page using priorContext (the explanations of all earlier
// pages) and the target model. If the target model is unavailable the call
// is made once more against the fallback model. Failures are returned as
// *models.AnalysisFailedError, or ctx.Err() if the context ended first.
func (a *PageAnalyzer) Analyze(ctx context.Context, page models.PageRecord, priorContext, model string) (models.AnalysisOutcome, error) {
	if model == "" {
		model = a.config.PrimaryModel
	}
	logCtx := a.logger.With("page", page.PageNumber)

	req := llm.Request{
		System:        llm.ExplainerSystemPrompt,
		Prompt:        BuildPagePrompt(page, priorContext),
		Image:         page.ImageData,
		ImageMIMEType: page.ImageMIMEType,
	}

	text, err := a.generate(ctx, logCtx, model, req)
	if err != nil && llm.Classify(err) == llm.KindModelUnavailable && a.config.FallbackModel != "" && a.config.FallbackModel != model {
		logCtx.Warn("Model unavailable, falling back.", "model", model, "fallbackModel", a.config.FallbackModel, "error", err)
		model = a.config.FallbackModel
		text, err = a.generate(ctx, logCtx, model, req)
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return models.AnalysisOutcome{}, ctxErr
		}
		logCtx.Error("Page analysis failed.", "model", model, "error", err)
		return models.AnalysisOutcome{}, &models.AnalysisFailedError{PageNumber: page.PageNumber, Cause: err}
	}

	logCtx.Info("Page analyzed.", "model", model, "chars", len(text))
	return models.AnalysisOutcome{
		PageNumber:  page.PageNumber,
		Explanation: text,
		Model:       model,
	}, nil
}

func (a *PageAnalyzer) generate(ctx context.Context, logCtx *slog.Logger, model string, req llm.Request) (string, error) {
	var text string
	err := a.config.Retry.Do(ctx, logCtx.With("model", model), func(ctx context.Context) error {
		out, err := a.generator.Generate(ctx, model, req)
		if err != nil {
			return err
		}
		if isRefusal(out) {
			return &llm.CallError{Kind: llm.KindPermanent, Model: model, Err: errors.New("model response indicates refusal")}
		}
		text = out
		return nil
	})
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", &llm.CallError{Kind: llm.KindPermanent, Model: model, Err: llm.ErrEmptyResponse}
	}
	return text, nil
}

// isRefusal inspects only the opening of the answer.
func isRefusal(text string) bool {
	lower := strings.ToLower(text)
	if len(lower) > refusalScanBytes {
		lower = lower[:refusalScanBytes]
	}
	for _, phrase := range refusalPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// BuildPagePrompt combines the page text, the earlier explanations and the
// fixed instructions into the text part of a request.
func BuildPagePrompt(page models.PageRecord, priorContext string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "### Page %d\n\n", page.PageNumber)
	fmt.Fprintf(&sb, "**Extracted text:**\n%s\n\n", page.Text)
	if strings.TrimSpace(priorContext) != "" {
		fmt.Fprintf(&sb, "**Explanations of the previous pages:**\n%s\n\n", priorContext)
	}
	fmt.Fprintf(&sb, "**Page image:** attached. Check every figure, chart and formula on page %d.\n\n", page.PageNumber)
	if len(page.Figures) > 0 {
		fmt.Fprintf(&sb, "**Embedded figures:** cite them as \"Figure X (Page %d, Index I)\" using these indexes.\n", page.PageNumber)
		for _, fig := range page.Figures {
			fmt.Fprintf(&sb, "- Index %d: %dx%d px\n", fig.Index, fig.Width, fig.Height)
		}
		sb.WriteString("\n")
	}
	sb.WriteString(llm.ExplainerPageInstructions)
	return sb.String()
}
