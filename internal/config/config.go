package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/Lllllllleong/paperanalysis/internal/pdf"
)

// Supported LLM providers.
const (
	ProviderVertex = "vertex"
	ProviderOpenAI = "openai"
)

// Config is built once at process start and passed by value to the services.
type Config struct {
	Provider       string
	ProjectID      string
	VertexAIRegion string
	PrimaryModel   string
	FallbackModel  string
	OpenAIAPIKey   string
	OpenAIBaseURL  string

	MaxPagesDefault    int
	MaxPagesLimit      int
	RenderDPI          float64
	TextTruncateLength int
	ExcludeReferences  bool
	ExtractFigures     bool
	PDFPassword        string

	InterCallDelay   time.Duration
	RetryMaxAttempts int
	RetryBaseDelay   time.Duration
	RequestTimeout   time.Duration

	OutputBucket        string
	FirestoreCollection string
	PublicBaseURL       string
}

// GetEnv is a helper to read an environment variable or return a default value.
// A variable that is set but empty counts as unset.
func GetEnv(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

// Load reads the configuration from the environment. A .env file in the
// working directory is loaded first if present; real environment variables win.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Provider:            strings.ToLower(GetEnv("LLM_PROVIDER", ProviderVertex)),
		ProjectID:           GetEnv("PROJECT_ID", ""),
		VertexAIRegion:      GetEnv("VERTEX_AI_REGION", "us-central1"),
		PrimaryModel:        GetEnv("PRIMARY_MODEL", "gemini-2.5-flash"),
		FallbackModel:       GetEnv("FALLBACK_MODEL", "gemini-1.5-flash"),
		OpenAIAPIKey:        GetEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:       GetEnv("OPENAI_BASE_URL", ""),
		PDFPassword:         os.Getenv("PDF_PASSWORD"),
		OutputBucket:        GetEnv("OUTPUT_BUCKET", ""),
		FirestoreCollection: GetEnv("FIRESTORE_COLLECTION", ""),
		PublicBaseURL:       strings.TrimRight(GetEnv("PUBLIC_BASE_URL", ""), "/"),
	}

	var err error
	if cfg.MaxPagesDefault, err = envInt("MAX_PAGES_DEFAULT", pdf.DefaultMaxPages); err != nil {
		return Config{}, err
	}
	if cfg.MaxPagesLimit, err = envInt("MAX_PAGES_LIMIT", pdf.MaxPagesCeiling); err != nil {
		return Config{}, err
	}
	if cfg.TextTruncateLength, err = envInt("TEXT_TRUNCATE_LENGTH", 3000); err != nil {
		return Config{}, err
	}
	if cfg.RetryMaxAttempts, err = envInt("RETRY_MAX_ATTEMPTS", 3); err != nil {
		return Config{}, err
	}
	if cfg.RenderDPI, err = envFloat("RENDER_DPI", 300); err != nil {
		return Config{}, err
	}
	if cfg.ExcludeReferences, err = envBool("EXCLUDE_REFERENCES", false); err != nil {
		return Config{}, err
	}
	if cfg.ExtractFigures, err = envBool("EXTRACT_FIGURES", true); err != nil {
		return Config{}, err
	}
	if cfg.InterCallDelay, err = envDuration("INTER_CALL_DELAY", 2*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.RetryBaseDelay, err = envDuration("RETRY_BASE_DELAY", 2*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.RequestTimeout, err = envDuration("REQUEST_TIMEOUT", 300*time.Second); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the invariants the services rely on.
func (c Config) Validate() error {
	switch c.Provider {
	case ProviderVertex:
		if c.ProjectID == "" {
			return fmt.Errorf("PROJECT_ID environment variable must be set for the vertex provider")
		}
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY environment variable must be set for the openai provider")
		}
	default:
		return fmt.Errorf("unsupported LLM_PROVIDER %q", c.Provider)
	}
	if c.PrimaryModel == "" {
		return fmt.Errorf("PRIMARY_MODEL must not be empty")
	}
	if c.FirestoreCollection != "" && c.ProjectID == "" {
		return fmt.Errorf("PROJECT_ID must be set when FIRESTORE_COLLECTION is configured")
	}
	if c.MaxPagesLimit < 1 || c.MaxPagesLimit > pdf.MaxPagesCeiling {
		return fmt.Errorf("MAX_PAGES_LIMIT must be between 1 and %d, got %d", pdf.MaxPagesCeiling, c.MaxPagesLimit)
	}
	if c.MaxPagesDefault < 1 || c.MaxPagesDefault > c.MaxPagesLimit {
		return fmt.Errorf("MAX_PAGES_DEFAULT must be between 1 and %d, got %d", c.MaxPagesLimit, c.MaxPagesDefault)
	}
	if c.TextTruncateLength < 1 {
		return fmt.Errorf("TEXT_TRUNCATE_LENGTH must be positive, got %d", c.TextTruncateLength)
	}
	if c.RenderDPI <= 0 {
		return fmt.Errorf("RENDER_DPI must be positive, got %v", c.RenderDPI)
	}
	if c.RetryMaxAttempts < 1 {
		return fmt.Errorf("RETRY_MAX_ATTEMPTS must be at least 1, got %d", c.RetryMaxAttempts)
	}
	if c.InterCallDelay < 0 || c.RetryBaseDelay < 0 {
		return fmt.Errorf("delays must not be negative")
	}
	return nil
}

func envInt(key string, fallback int) (int, error) {
	raw := GetEnv(key, "")
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return v, nil
}

func envFloat(key string, fallback float64) (float64, error) {
	raw := GetEnv(key, "")
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return v, nil
}

func envBool(key string, fallback bool) (bool, error) {
	raw := GetEnv(key, "")
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return v, nil
}

// envDuration accepts Go duration strings ("2s") or a bare number of seconds.
func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := GetEnv(key, "")
	if raw == "" {
		return fallback, nil
	}
	if secs, err := strconv.ParseFloat(raw, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return v, nil
}
