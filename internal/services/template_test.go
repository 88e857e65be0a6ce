package services

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Lllllllleong/paperanalysis/internal/models"
)

func TestAssembleDocument(t *testing.T) {
	md := AssembleDocument(TemplateInput{
		Filename:  "conformal.pdf",
		Timestamp: "2026-10-19 09:30:00",
		Model:     "gemini-2.5-flash",
		Outcomes: []models.AnalysisOutcome{
			{PageNumber: 1, Explanation: "# Title\nA weather forecast for predictions.\n\n## Questions\n1. What? A range.\n\n## Limitations\n- Needs exchangeable data."},
			{PageNumber: 2, Explanation: "### Method\nScores measure how wrong a guess is."},
		},
	})

	assert.True(t, strings.HasPrefix(md, "# Paper Analysis: conformal.pdf\n"))
	assert.Contains(t, md, "**Pages analyzed**: 2")
	assert.Contains(t, md, "**Model**: gemini-2.5-flash")
	assert.Equal(t, []string{"1", "2"}, pageSections(md))

	overview := strings.Index(md, "## Overview")
	page1 := strings.Index(md, "### Page 1")
	page2 := strings.Index(md, "### Page 2")
	qna := strings.Index(md, "## Q&A")
	limits := strings.Index(md, "## Limitations")
	assert.True(t, overview < page1 && page1 < page2 && page2 < qna && qna < limits)

	// Model headings are pushed below the page subsections.
	assert.Contains(t, md, "#### Title")
	assert.Contains(t, md, "#### Method")
	assert.NotContains(t, md, "\n# Title")

	// Questions and limitations move to the closing sections.
	assert.Contains(t, md[qna:limits], "**Page 1**")
	assert.Contains(t, md[qna:limits], "What? A range.")
	assert.Contains(t, md[limits:], "Needs exchangeable data.")
	assert.NotContains(t, md[page1:page2], "What? A range.")
	assert.NotContains(t, md[qna:limits], "**Page 2**")
}

func TestAssembleDocumentWithoutQuestions(t *testing.T) {
	md := AssembleDocument(TemplateInput{
		Filename: "a.pdf",
		Outcomes: []models.AnalysisOutcome{{PageNumber: 1, Explanation: "Just text."}},
	})
	assert.Contains(t, md, "_No comprehension questions were produced._")
	assert.Contains(t, md, "_No limitations were produced._")
}

func TestDemoteHeadingsSkipsCodeFences(t *testing.T) {
	in := "# Top\n```\n# not a heading\n```\n##### deep"
	out := DemoteHeadings(in, 4)
	assert.Equal(t, "#### Top\n```\n# not a heading\n```\n##### deep", out)
}

func TestSplitExplanation(t *testing.T) {
	body, q, l := splitExplanation("intro\n#### **Questions:**\nq1\n##### detail\nq2\n#### Limitations\nl1\n#### Next\nrest")
	assert.Equal(t, "intro\n#### Next\nrest", body)
	assert.Equal(t, "q1\n##### detail\nq2", q)
	assert.Equal(t, "l1", l)
}

func TestSplitExplanationIgnoresTildeFences(t *testing.T) {
	in := "The algorithm:\n~~~python\n# Limitations of this loop\nfor x in xs:\n    pass\n~~~\nMore prose.\n\n## Limitations\n- Real one."
	body, q, l := splitExplanation(DemoteHeadings(in, 4))

	assert.Equal(t, "The algorithm:\n~~~python\n# Limitations of this loop\nfor x in xs:\n    pass\n~~~\nMore prose.\n\n", body)
	assert.Empty(t, q)
	assert.Equal(t, "- Real one.", l)
}

func TestAssembleDocumentKeepsFencedHeadingsInPage(t *testing.T) {
	md := AssembleDocument(TemplateInput{
		Filename: "loop.pdf",
		Outcomes: []models.AnalysisOutcome{
			{PageNumber: 1, Explanation: "Code:\n~~~\n# Limitations of this loop\n## Questions\n~~~\nAfter the code."},
			{PageNumber: 2, Explanation: "Second page."},
		},
	})

	assert.Equal(t, []string{"1", "2"}, pageSections(md))
	page1 := strings.Index(md, "### Page 1")
	page2 := strings.Index(md, "### Page 2")
	assert.Contains(t, md[page1:page2], "~~~\n# Limitations of this loop\n## Questions\n~~~\nAfter the code.")
	assert.Contains(t, md, "_No comprehension questions were produced._")
	assert.Contains(t, md, "_No limitations were produced._")
}

func TestDemoteHeadingsRewritesSetextHeadings(t *testing.T) {
	out := DemoteHeadings("Intro\n\nBig Title\n=========\ntext\n", 4)
	assert.Equal(t, "Intro\n\n#### Big Title\ntext\n", out)
}

func TestLinkFigures(t *testing.T) {
	figures := []models.Figure{
		{PageNumber: 2, Index: 0, Extension: "png"},
		{PageNumber: 3, Index: 1, Extension: "jpg"},
	}
	link := func(fig models.Figure) string { return "https://example.test/a1b2c3d4/" + fig.FileName() }

	md := "See Figure 1 (Page 2, Index 0) and Figure 4. (Page 3, Index 1). Figure 9 (Page 5, Index 0) was not extracted."
	out := LinkFigures(md, figures, link)

	assert.Contains(t, out, "Figure 1 (Page 2, Index 0) ![Figure 1](https://example.test/a1b2c3d4/page_2_figure_0.png)")
	assert.Contains(t, out, "Figure 4. (Page 3, Index 1) ![Figure 4](https://example.test/a1b2c3d4/page_3_figure_1.jpg)")
	assert.Contains(t, out, "Figure 9 (Page 5, Index 0) was not extracted.")
	assert.NotContains(t, out, "page_5_figure_0")

	assert.Equal(t, md, LinkFigures(md, nil, link))
	assert.Equal(t, md, LinkFigures(md, figures, nil))
}
