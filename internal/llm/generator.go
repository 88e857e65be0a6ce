package llm

import (
	"context"
	"fmt"

	"github.com/Lllllllleong/paperanalysis/internal/config"
)

// Request is a single stateless call to a hosted model. Multi-turn coherence
// is carried in Prompt, not in a server-side session.
type Request struct {
	System        string
	Prompt        string
	Image         []byte
	ImageMIMEType string
}

// Generator sends one request to the named model and returns its text.
type Generator interface {
	Generate(ctx context.Context, model string, req Request) (string, error)
	Close() error
}

// NewGenerator builds the backend selected by cfg.Provider.
func NewGenerator(ctx context.Context, cfg config.Config) (Generator, error) {
	switch cfg.Provider {
	case config.ProviderVertex:
		return NewVertexGenerator(ctx, cfg.ProjectID, cfg.VertexAIRegion)
	case config.ProviderOpenAI:
		return NewOpenAIGenerator(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL)
	default:
		return nil, fmt.Errorf("unsupported LLM provider %q", cfg.Provider)
	}
}
