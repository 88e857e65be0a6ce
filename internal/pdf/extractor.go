// Package pdf turns uploaded PDF bytes into page records: a rendered PNG and
// the plain text of each page, plus its embedded figures.
package pdf

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"mime"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/gen2brain/go-fitz"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/Lllllllleong/paperanalysis/internal/models"
)

const (
	DefaultMaxPages    = 10
	MaxPagesCeiling    = 50
	DefaultDPI         = 300
	DefaultTextLength  = 3000
	referenceScanChars = 500
	pageImageMIMEType  = "image/png"

	// Embedded images smaller than this are icons or decorations.
	minFigureWidth  = 100
	minFigureHeight = 50
)

var referenceHeadings = []string{
	"references",
	"bibliography",
	"works cited",
	"citations",
	"참고문헌",
	"참고 문헌",
}

// Options controls rendering and text extraction.
type Options struct {
	DPI               float64
	TextLimit         int
	Password          string
	ExcludeReferences bool
	ExtractFigures    bool
}

func (o Options) withDefaults() Options {
	if o.DPI <= 0 {
		o.DPI = DefaultDPI
	}
	if o.TextLimit <= 0 {
		o.TextLimit = DefaultTextLength
	}
	return o
}

// Document is an opened PDF ready for page extraction.
type Document struct {
	doc  *fitz.Document
	data []byte
	opts Options
}

// Open validates data with pdfcpu and opens it with MuPDF. Documents
// encrypted with a user password are decrypted with opts.Password first.
// Any failure is reported as models.ErrInvalidDocument.
func Open(data []byte, opts Options) (*Document, error) {
	if len(data) == 0 {
		return nil, models.InvalidDocumentError("file is empty", nil)
	}
	opts = opts.withDefaults()

	if opts.Password != "" {
		plain, err := decrypt(data, opts.Password)
		switch {
		case err == nil:
			data = plain
		case validate(data) == nil:
			// Not encrypted.
		default:
			return nil, models.InvalidDocumentError("failed to decrypt PDF", err)
		}
	}

	if err := validate(data); err != nil {
		return nil, models.InvalidDocumentError("failed to validate PDF", err)
	}

	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		if errors.Is(err, fitz.ErrNeedsPassword) {
			return nil, models.InvalidDocumentError("PDF is encrypted", err)
		}
		return nil, models.InvalidDocumentError("failed to open PDF", err)
	}

	if doc.NumPage() == 0 {
		doc.Close()
		return nil, models.InvalidDocumentError("PDF has no pages", nil)
	}
	return &Document{doc: doc, data: data, opts: opts}, nil
}

func relaxedConfig() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

func validate(data []byte) error {
	return api.Validate(bytes.NewReader(data), relaxedConfig())
}

// decrypt accepts either the user or the owner password.
func decrypt(data []byte, password string) ([]byte, error) {
	conf := relaxedConfig()
	conf.UserPW = password
	conf.OwnerPW = password

	var buf bytes.Buffer
	if err := api.Decrypt(bytes.NewReader(data), &buf, conf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Close releases the MuPDF document.
func (d *Document) Close() error {
	return d.doc.Close()
}

// ClampMaxPages bounds a requested page limit to [1, ceiling]. Callers reject
// non-positive limits before extraction; 0 here selects the default.
func ClampMaxPages(maxPages, defaultPages, ceiling int) int {
	if ceiling <= 0 || ceiling > MaxPagesCeiling {
		ceiling = MaxPagesCeiling
	}
	if defaultPages <= 0 {
		defaultPages = DefaultMaxPages
	}
	if maxPages <= 0 {
		maxPages = defaultPages
	}
	return min(maxPages, ceiling)
}

// PageCount is the number of pages Pages(maxPages) will yield at most.
func (d *Document) PageCount(maxPages int) int {
	return min(maxPages, d.doc.NumPage())
}

// Pages lazily yields one record per page in ascending order, up to maxPages
// or the end of the document, whichever comes first. Iteration stops after
// the first error.
func (d *Document) Pages(maxPages int) iter.Seq2[models.PageRecord, error] {
	return func(yield func(models.PageRecord, error) bool) {
		n := d.PageCount(maxPages)
		var figures map[int][]models.Figure
		if d.opts.ExtractFigures {
			figures = d.figures(n)
		}

		for i := 0; i < n; i++ {
			text, err := d.doc.Text(i)
			if err != nil {
				yield(models.PageRecord{}, fmt.Errorf("failed to extract text from page %d: %w", i+1, err))
				return
			}

			if d.opts.ExcludeReferences && i > 0 && IsReferencePage(text) {
				return
			}

			img, err := d.doc.ImagePNG(i, d.opts.DPI)
			if err != nil {
				yield(models.PageRecord{}, fmt.Errorf("failed to render page %d: %w", i+1, err))
				return
			}

			record := models.PageRecord{
				PageNumber:    i + 1,
				ImageData:     img,
				ImageMIMEType: pageImageMIMEType,
				Text:          TruncateText(text, d.opts.TextLimit),
				Figures:       figures[i+1],
			}
			if !yield(record, nil) {
				return
			}
		}
	}
}

// figures returns the embedded images of pages 1..n large enough to be
// figures, keyed by page number. Figures are optional: on failure the pages
// are still analyzed without them.
func (d *Document) figures(n int) map[int][]models.Figure {
	conf := relaxedConfig()
	conf.Cmd = model.EXTRACTIMAGES
	ctx, err := api.ReadValidateAndOptimize(bytes.NewReader(d.data), conf)
	if err != nil {
		slog.Warn("Failed to read document for image extraction.", "error", err)
		return nil
	}

	out := make(map[int][]models.Figure)
	for pageNr := 1; pageNr <= n; pageNr++ {
		figures, err := pageFigures(ctx, pageNr)
		if err != nil {
			slog.Warn("Failed to extract embedded images.", "page", pageNr, "error", err)
			continue
		}
		if len(figures) > 0 {
			out[pageNr] = figures
		}
	}
	return out
}

// pageFigures indexes a page's images by object number order. Small images
// keep their index but are not returned.
func pageFigures(ctx *model.Context, pageNr int) ([]models.Figure, error) {
	stubs, err := pdfcpu.ExtractPageImages(ctx, pageNr, true)
	if err != nil {
		return nil, err
	}

	var objNrs []int
	for objNr, stub := range stubs {
		if !stub.Thumb {
			objNrs = append(objNrs, objNr)
		}
	}
	if len(objNrs) == 0 {
		return nil, nil
	}
	slices.Sort(objNrs)

	images, err := pdfcpu.ExtractPageImages(ctx, pageNr, false)
	if err != nil {
		return nil, err
	}

	var figures []models.Figure
	for index, objNr := range objNrs {
		stub := stubs[objNr]
		if stub.Width < minFigureWidth || stub.Height < minFigureHeight {
			continue
		}
		img, ok := images[objNr]
		if !ok {
			continue
		}
		data, err := io.ReadAll(img)
		if err != nil {
			return nil, fmt.Errorf("failed to read image %d: %w", objNr, err)
		}
		figures = append(figures, models.Figure{
			PageNumber: pageNr,
			Index:      index,
			Width:      stub.Width,
			Height:     stub.Height,
			Data:       data,
			MIMEType:   figureMIMEType(img.FileType),
			Extension:  img.FileType,
		})
	}
	return figures, nil
}

func figureMIMEType(fileType string) string {
	if t := mime.TypeByExtension("." + fileType); t != "" {
		return t
	}
	return "application/octet-stream"
}

// TruncateText keeps at most limit characters of s.
func TruncateText(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit])
}

// IsReferencePage reports whether the page opens with a references heading,
// either as the first line or as a standalone line near the top.
func IsReferencePage(text string) bool {
	head := strings.ToLower(TruncateText(text, referenceScanChars))
	trimmed := strings.TrimLeft(head, " \t\r\n")
	for _, keyword := range referenceHeadings {
		if strings.HasPrefix(trimmed, keyword) {
			return true
		}
		for _, line := range strings.Split(head, "\n") {
			if strings.TrimSpace(line) == keyword {
				return true
			}
		}
	}
	return false
}
