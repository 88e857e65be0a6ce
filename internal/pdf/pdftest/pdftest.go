// Package pdftest builds small, valid PDF documents for tests.
package pdftest

import (
	"bytes"
	"fmt"
	"strings"
)

// Page describes one generated page. When ImageWidth and ImageHeight are set
// the page also draws an uncompressed grayscale image of that size.
type Page struct {
	Text        string
	ImageWidth  int
	ImageHeight int
}

// Build returns a PDF with one page per entry of pageTexts. Each page shows
// its text in Helvetica.
func Build(pageTexts ...string) []byte {
	pages := make([]Page, len(pageTexts))
	for i, text := range pageTexts {
		pages[i] = Page{Text: text}
	}
	return BuildPages(pages...)
}

// BuildPages returns a PDF with the given pages.
func BuildPages(pages ...Page) []byte {
	var buf bytes.Buffer

	nextID := 4
	pageIDs := make([]int, len(pages))
	for i, p := range pages {
		pageIDs[i] = nextID
		nextID += 2
		if p.ImageWidth > 0 && p.ImageHeight > 0 {
			nextID++
		}
	}
	objects := nextID - 1
	offsets := make([]int, objects+1)

	writeObj := func(id int, body string) {
		offsets[id] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", id, body)
	}

	buf.WriteString("%PDF-1.4\n")

	kids := make([]string, len(pages))
	for i, id := range pageIDs {
		kids[i] = fmt.Sprintf("%d 0 R", id)
	}
	writeObj(1, "<< /Type /Catalog /Pages 2 0 R >>")
	writeObj(2, fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(pages)))
	writeObj(3, "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>")

	for i, p := range pages {
		pageID, contentID := pageIDs[i], pageIDs[i]+1
		hasImage := p.ImageWidth > 0 && p.ImageHeight > 0

		resources := "/Font << /F1 3 0 R >>"
		content := fmt.Sprintf("BT /F1 12 Tf 20 100 Td (%s) Tj ET", escape(p.Text))
		if hasImage {
			resources += fmt.Sprintf(" /XObject << /Im1 %d 0 R >>", contentID+1)
			content += fmt.Sprintf("\nq %d 0 0 %d 20 20 cm /Im1 Do Q", p.ImageWidth/4, p.ImageHeight/4)
		}

		writeObj(pageID, fmt.Sprintf(
			"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 300 200] /Resources << %s >> /Contents %d 0 R >>",
			resources, contentID))
		writeObj(contentID, fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content))

		if hasImage {
			pixels := strings.Repeat("\x80", p.ImageWidth*p.ImageHeight)
			writeObj(contentID+1, fmt.Sprintf(
				"<< /Type /XObject /Subtype /Image /Width %d /Height %d /ColorSpace /DeviceGray /BitsPerComponent 8 /Length %d >>\nstream\n%s\nendstream",
				p.ImageWidth, p.ImageHeight, len(pixels), pixels))
		}
	}

	xrefOffset := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", objects+1)
	buf.WriteString("0000000000 65535 f \n")
	for id := 1; id <= objects; id++ {
		fmt.Fprintf(&buf, "%010d 00000 n \n", offsets[id])
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", objects+1, xrefOffset)
	return buf.Bytes()
}

func escape(s string) string {
	r := strings.NewReplacer(`\`, `\\`, "(", `\(`, ")", `\)`)
	return r.Replace(s)
}
