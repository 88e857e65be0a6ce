package llm

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIGenerator calls any OpenAI-compatible chat completions endpoint.
type OpenAIGenerator struct {
	client *openai.Client
}

// NewOpenAIGenerator creates a client. Built-in SDK retries are disabled so
// that RetryPolicy is the only retry layer.
func NewOpenAIGenerator(apiKey, baseURL string) (*OpenAIGenerator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("NewOpenAIGenerator: apiKey cannot be empty")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	client := openai.NewClient(opts...)
	return &OpenAIGenerator{client: &client}, nil
}

// Generate sends the prompt and page image as a single user message.
func (g *OpenAIGenerator) Generate(ctx context.Context, model string, req Request) (string, error) {
	parts := []openai.ChatCompletionContentPartUnionParam{
		openai.TextContentPart(req.Prompt),
	}
	if len(req.Image) > 0 {
		mimeType := req.ImageMIMEType
		if mimeType == "" {
			mimeType = "image/png"
		}
		dataURL := "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(req.Image)
		parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
			URL: dataURL,
		}))
	}

	var messages []openai.ChatCompletionMessageParamUnion
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, openai.UserMessage(parts))

	resp, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       model,
		Messages:    messages,
		Temperature: openai.Float(0.2),
	})
	if err != nil {
		return "", &CallError{Kind: Classify(err), Model: model, Err: err}
	}
	if len(resp.Choices) == 0 {
		return "", &CallError{Kind: KindPermanent, Model: model, Err: ErrEmptyResponse}
	}

	text := CleanMarkdown(resp.Choices[0].Message.Content)
	if text == "" {
		return "", &CallError{Kind: KindPermanent, Model: model, Err: ErrEmptyResponse}
	}
	return text, nil
}

func (g *OpenAIGenerator) Close() error {
	return nil
}
