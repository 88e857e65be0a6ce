package llm

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/vertexai/genai"
)

// VertexGenerator calls Gemini models on Vertex AI.
type VertexGenerator struct {
	baseClient *genai.Client
}

// NewVertexGenerator creates a Vertex AI client for the given project and region.
func NewVertexGenerator(ctx context.Context, projectID, region string) (*VertexGenerator, error) {
	if projectID == "" || region == "" {
		return nil, fmt.Errorf("NewVertexGenerator: projectID and region cannot be empty")
	}

	baseClient, err := genai.NewClient(ctx, projectID, region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}
	return &VertexGenerator{baseClient: baseClient}, nil
}

// Generate sends the page image and prompt to the named Gemini model.
func (g *VertexGenerator) Generate(ctx context.Context, model string, req Request) (string, error) {
	m := g.baseClient.GenerativeModel(model)
	if req.System != "" {
		m.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(req.System)},
		}
	}
	m.SetTemperature(0.2)

	parts := []genai.Part{genai.Text(req.Prompt)}
	if len(req.Image) > 0 {
		parts = append(parts, genai.ImageData(imageFormat(req.ImageMIMEType), req.Image))
	}

	resp, err := m.GenerateContent(ctx, parts...)
	if err != nil {
		return "", &CallError{Kind: Classify(err), Model: model, Err: err}
	}

	text := extractVertexText(resp)
	if text == "" {
		return "", &CallError{Kind: KindPermanent, Model: model, Err: ErrEmptyResponse}
	}
	return text, nil
}

func (g *VertexGenerator) Close() error {
	if g.baseClient != nil {
		return g.baseClient.Close()
	}
	return nil
}

// extractVertexText concatenates the text parts of the first candidate.
func extractVertexText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return ""
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		}
	}
	return CleanMarkdown(sb.String())
}

// imageFormat maps "image/png" to the "png" format genai.ImageData expects.
func imageFormat(mimeType string) string {
	if format, ok := strings.CutPrefix(mimeType, "image/"); ok && format != "" {
		return format
	}
	return "png"
}

// CleanMarkdown strips the code fences models sometimes wrap answers in.
func CleanMarkdown(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```markdown")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
