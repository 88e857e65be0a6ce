package services

import (
	"context"
	"fmt"
	"io"
	"iter"
	"sync"

	"github.com/Lllllllleong/paperanalysis/internal/llm"
	"github.com/Lllllllleong/paperanalysis/internal/models"
)

type generateCall struct {
	Model string
	Req   llm.Request
}

// scriptedGenerator returns errs[i] for the i-th call while errs lasts, then
// answers with reply, or a per-page explanation when reply is empty.
type scriptedGenerator struct {
	mu      sync.Mutex
	calls   []generateCall
	errs    []error
	byModel map[string]error
	reply   string
}

func (g *scriptedGenerator) Generate(ctx context.Context, model string, req llm.Request) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, generateCall{Model: model, Req: req})
	if err, ok := g.byModel[model]; ok {
		return "", err
	}
	if len(g.errs) > 0 {
		err := g.errs[0]
		g.errs = g.errs[1:]
		if err != nil {
			return "", err
		}
	}
	if g.reply != "" {
		return g.reply, nil
	}
	return fmt.Sprintf("## Explained\nExplanation %d.\n\n#### Questions\nQ%d?\n\n#### Limitations\nL%d.", len(g.calls), len(g.calls), len(g.calls)), nil
}

func (g *scriptedGenerator) Close() error { return nil }

func (g *scriptedGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

func transientErr() error {
	return &llm.CallError{Kind: llm.KindTransient, Model: "m", Err: io.ErrUnexpectedEOF}
}

func authErr() error {
	return &llm.CallError{Kind: llm.KindPermanent, Model: "m", Err: fmt.Errorf("401 unauthenticated")}
}

func unavailableErr(model string) error {
	return &llm.CallError{Kind: llm.KindModelUnavailable, Model: model, Err: fmt.Errorf("404 model not found")}
}

// fakeDocument yields n synthetic pages, with figures keyed by page number.
type fakeDocument struct {
	n       int
	figures map[int][]models.Figure
	closed  bool
}

func (d *fakeDocument) Pages(maxPages int) iter.Seq2[models.PageRecord, error] {
	return func(yield func(models.PageRecord, error) bool) {
		for i := 1; i <= min(maxPages, d.n); i++ {
			page := models.PageRecord{
				PageNumber:    i,
				ImageData:     []byte{0x89, 'P', 'N', 'G'},
				ImageMIMEType: "image/png",
				Text:          fmt.Sprintf("text of page %d", i),
				Figures:       d.figures[i],
			}
			if !yield(page, nil) {
				return
			}
		}
	}
}

func (d *fakeDocument) Close() error {
	d.closed = true
	return nil
}

func fakeOpener(doc *fakeDocument, opened *int) DocumentOpener {
	return func(data []byte) (PageDocument, error) {
		if opened != nil {
			*opened++
		}
		if len(data) == 0 || doc.n == 0 {
			return nil, models.InvalidDocumentError("PDF has no pages", nil)
		}
		return doc, nil
	}
}

type memoryStore struct {
	saved   []*models.AnalysisResult
	pages   int
	figures int
	err     error
}

func (s *memoryStore) Save(ctx context.Context, result *models.AnalysisResult, pages []models.PageRecord) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.saved = append(s.saved, result)
	s.pages = len(pages)
	s.figures = 0
	for _, p := range pages {
		s.figures += len(p.Figures)
	}
	return "gs://bucket/" + result.AnalysisID + "/ANALYSIS.md", nil
}

type memoryLedger struct {
	mu       sync.Mutex
	created  []models.AnalysisJob
	statuses []string
	details  string
	done     *models.AnalysisResult
}

func (l *memoryLedger) Create(ctx context.Context, job models.AnalysisJob) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.created = append(l.created, job)
	l.statuses = append(l.statuses, job.Status)
	return nil
}

func (l *memoryLedger) UpdateStatus(ctx context.Context, analysisID, status, errDetails string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.statuses = append(l.statuses, status)
	l.details = errDetails
	return nil
}

func (l *memoryLedger) Complete(ctx context.Context, result *models.AnalysisResult) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.statuses = append(l.statuses, models.StatusSucceeded)
	l.done = result
	return nil
}
