package generator

import (
	"fmt"
	"strings"

	"github.com/openai/openai-go/v3/option"
)

// Provider names
const (
	ProviderOpenAI   = "openai"
	ProviderTemplate = "template"
)

// Config selects and configures a generator
type Config struct {
	Provider    string
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
	BaseURL     string
}

// New creates a generator from configuration. An empty provider picks
// OpenAI when an API key is present and the template generator otherwise.
func New(cfg Config) (Generator, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == "" {
		provider = ProviderTemplate
		if cfg.APIKey != "" {
			provider = ProviderOpenAI
		}
	}

	switch provider {
	case ProviderOpenAI:
		var opts []option.RequestOption
		if cfg.BaseURL != "" {
			opts = append(opts, option.WithBaseURL(cfg.BaseURL))
		}
		return NewOpenAIGenerator(cfg.APIKey, cfg.Model, cfg.MaxTokens, cfg.Temperature, opts...)
	case ProviderTemplate:
		return NewTemplateGenerator(), nil
	default:
		return nil, fmt.Errorf("unknown generator provider %q", cfg.Provider)
	}
}
