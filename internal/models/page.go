package models

import "fmt"

// PageRecord is one rendered page of a source document. It is produced once by
// the extractor and never mutated.
type PageRecord struct {
	PageNumber    int
	ImageData     []byte
	ImageMIMEType string
	Text          string
	Figures       []Figure
}

// PageImageFileName is the name the rendered image of a page is stored and
// served under.
func PageImageFileName(pageNumber int) string {
	return fmt.Sprintf("page_%d.png", pageNumber)
}

// Figure is an image embedded in a page. Index is its position among the
// page's images, counted from 0, and is the index cited in explanations as
// "Figure X (Page N, Index I)".
type Figure struct {
	PageNumber int
	Index      int
	Width      int
	Height     int
	Data       []byte
	MIMEType   string
	Extension  string
}

// FileName is the name figures are stored and served under.
func (f Figure) FileName() string {
	return fmt.Sprintf("page_%d_figure_%d.%s", f.PageNumber, f.Index, f.Extension)
}

// AnalysisOutcome holds the model's explanation for one page.
type AnalysisOutcome struct {
	PageNumber  int
	Explanation string
	Model       string
}
