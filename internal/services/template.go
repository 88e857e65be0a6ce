package services

import (
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/Lllllllleong/paperanalysis/internal/models"
)

// minHeadingLevel keeps model headings below the "### Page N" subsections.
const minHeadingLevel = 4

// TemplateInput is everything the document template needs.
type TemplateInput struct {
	Filename  string
	Timestamp string
	Model     string
	Outcomes  []models.AnalysisOutcome
}

type section struct {
	title string
	body  string
}

// AssembleDocument builds the final Markdown: an overview, one "### Page N"
// subsection per outcome in the given order, then Q&A and limitations
// collected from the per-page answers.
func AssembleDocument(in TemplateInput) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "# Paper Analysis: %s\n\n", in.Filename)
	fmt.Fprintf(&sb, "**PDF**: %s\n", in.Filename)
	fmt.Fprintf(&sb, "**Pages analyzed**: %d\n", len(in.Outcomes))
	fmt.Fprintf(&sb, "**Generated**: %s\n", in.Timestamp)
	fmt.Fprintf(&sb, "**Model**: %s\n\n", in.Model)
	sb.WriteString("---\n\n")

	sb.WriteString("## Overview\n\n")
	fmt.Fprintf(&sb, "This document walks through %s one page at a time in plain language. ", in.Filename)
	sb.WriteString("Each page section explains the text, figures and formulas on that page; ")
	sb.WriteString("the questions and limitations raised along the way are collected at the end.\n\n")

	sb.WriteString("## Page-by-Page Explanation\n\n")

	var questions, limitations []section
	for _, outcome := range in.Outcomes {
		body, q, l := splitExplanation(DemoteHeadings(outcome.Explanation, minHeadingLevel))
		label := fmt.Sprintf("Page %d", outcome.PageNumber)
		if q != "" {
			questions = append(questions, section{title: label, body: q})
		}
		if l != "" {
			limitations = append(limitations, section{title: label, body: l})
		}

		fmt.Fprintf(&sb, "### Page %d\n\n", outcome.PageNumber)
		sb.WriteString(strings.TrimSpace(body))
		sb.WriteString("\n\n")
	}

	sb.WriteString("---\n\n")
	writeCollected(&sb, "Q&A", questions, "No comprehension questions were produced.")
	writeCollected(&sb, "Limitations", limitations, "No limitations were produced.")

	return strings.TrimRight(sb.String(), "\n") + "\n"
}

func writeCollected(sb *strings.Builder, title string, sections []section, empty string) {
	fmt.Fprintf(sb, "## %s\n\n", title)
	if len(sections) == 0 {
		fmt.Fprintf(sb, "_%s_\n\n", empty)
		return
	}
	for _, s := range sections {
		fmt.Fprintf(sb, "**%s**\n\n%s\n\n", s.title, strings.TrimSpace(s.body))
	}
}

// mdBlock is a slice of the source Markdown: either a top-level heading or
// the raw text between two headings.
type mdBlock struct {
	level int
	title string
	raw   string
}

// markdownBlocks cuts md at its top-level headings. Concatenating the raw
// text of every block gives back md unchanged.
func markdownBlocks(md string) []mdBlock {
	src := []byte(md)
	doc := goldmark.DefaultParser().Parse(text.NewReader(src))

	var blocks []mdBlock
	cursor := 0
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		h, ok := n.(*ast.Heading)
		if !ok || h.Lines().Len() == 0 {
			continue
		}
		start, end := headingSpan(src, h)
		if start < cursor {
			continue
		}
		if start > cursor {
			blocks = append(blocks, mdBlock{raw: md[cursor:start]})
		}
		blocks = append(blocks, mdBlock{level: h.Level, title: headingTitle(src, h), raw: md[start:end]})
		cursor = end
	}
	if cursor < len(md) {
		blocks = append(blocks, mdBlock{raw: md[cursor:]})
	}
	return blocks
}

// headingSpan returns the byte range of the full source lines holding h,
// including the underline of a setext heading.
func headingSpan(src []byte, h *ast.Heading) (int, int) {
	lines := h.Lines()
	first, last := lines.At(0), lines.At(lines.Len()-1)

	start := bytes.LastIndexByte(src[:first.Start], '\n') + 1
	end := last.Stop
	if end > start && src[end-1] == '\n' {
		end--
	}
	end = lineEnd(src, end)
	if !bytes.HasPrefix(bytes.TrimSpace(src[start:first.Start]), []byte("#")) {
		end = lineEnd(src, end)
	}
	return start, end
}

func lineEnd(src []byte, pos int) int {
	if pos >= len(src) {
		return len(src)
	}
	i := bytes.IndexByte(src[pos:], '\n')
	if i < 0 {
		return len(src)
	}
	return pos + i + 1
}

func headingTitle(src []byte, h *ast.Heading) string {
	lines := h.Lines()
	parts := make([]string, 0, lines.Len())
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		parts = append(parts, strings.TrimSpace(string(seg.Value(src))))
	}
	return strings.Join(parts, " ")
}

// DemoteHeadings pushes every top-level Markdown heading above minLevel down
// to minLevel. Code blocks, quotes and lists are left alone.
func DemoteHeadings(md string, minLevel int) string {
	var sb strings.Builder
	for _, b := range markdownBlocks(md) {
		if b.level == 0 || b.level >= minLevel {
			sb.WriteString(b.raw)
			continue
		}
		sb.WriteString(strings.Repeat("#", minLevel) + " " + b.title)
		if strings.HasSuffix(b.raw, "\n") {
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

// splitExplanation moves the "Questions" and "Limitations" sections out of a
// page explanation. Each section runs until the next heading of the same or
// higher level.
func splitExplanation(md string) (body, questions, limitations string) {
	var bodyText, qText, lText strings.Builder

	target := &bodyText
	sectionLevel := 0
	for _, b := range markdownBlocks(md) {
		if b.level > 0 {
			if sectionLevel > 0 && b.level <= sectionLevel {
				target, sectionLevel = &bodyText, 0
			}
			if sectionLevel == 0 {
				switch headingKind(b.title) {
				case "questions":
					target, sectionLevel = &qText, b.level
					continue
				case "limitations":
					target, sectionLevel = &lText, b.level
					continue
				}
			}
		}
		target.WriteString(b.raw)
	}

	return bodyText.String(), strings.TrimSpace(qText.String()), strings.TrimSpace(lText.String())
}

func headingKind(title string) string {
	t := strings.ToLower(strings.Trim(strings.TrimSpace(title), "*_: "))
	switch {
	case strings.HasPrefix(t, "questions"), strings.HasPrefix(t, "comprehension questions"),
		strings.HasPrefix(t, "q&a"), strings.HasPrefix(t, "qna"):
		return "questions"
	case strings.HasPrefix(t, "limitations"):
		return "limitations"
	default:
		return ""
	}
}

var figureCitation = regexp.MustCompile(`Figure\s+(\d+)\.?\s*\(Page\s+(\d+),\s*Index\s+(\d+)\)`)

// LinkFigures appends an image link after every "Figure X (Page Y, Index Z)"
// citation in md that names an extracted figure. Citations of figures that
// were not extracted stay plain text.
func LinkFigures(md string, figures []models.Figure, link func(models.Figure) string) string {
	if len(figures) == 0 || link == nil {
		return md
	}
	type key struct{ page, index int }
	byKey := make(map[key]models.Figure, len(figures))
	for _, fig := range figures {
		byKey[key{fig.PageNumber, fig.Index}] = fig
	}

	return figureCitation.ReplaceAllStringFunc(md, func(citation string) string {
		m := figureCitation.FindStringSubmatch(citation)
		page, err1 := strconv.Atoi(m[2])
		index, err2 := strconv.Atoi(m[3])
		if err1 != nil || err2 != nil {
			return citation
		}
		fig, ok := byKey[key{page, index}]
		if !ok {
			return citation
		}
		url := link(fig)
		if url == "" {
			return citation
		}
		return fmt.Sprintf("%s ![Figure %s](%s)", citation, m[1], url)
	})
}
