package embedder

import (
	"fmt"
	"strings"

	"github.com/openai/openai-go/v3/option"
)

// Provider names and defaults
const (
	ProviderOpenAI = "openai"
	ProviderLocal  = "local"

	DefaultOpenAIModel = "text-embedding-3-small"
	DefaultLocalModel  = "local-feature-hash"

	OpenAIDimension = 1536
	LocalDimension  = 384

	MaxBatchSize     = 100
	DefaultCacheSize = 10000
)

// Config holds embedder configuration
type Config struct {
	Provider   string
	APIKey     string
	Model      string
	Dimensions int
	CacheSize  int

	// BaseURL overrides the OpenAI endpoint
	BaseURL string
}

// New creates an embedder from configuration. An empty provider picks
// OpenAI when an API key is present and the local provider otherwise.
func New(cfg Config) (Embedder, error) {
	var cache *Cache
	if cfg.CacheSize > 0 {
		cache = NewCache(cfg.CacheSize)
	}

	switch DetectProvider(cfg) {
	case ProviderOpenAI:
		var opts []option.RequestOption
		if cfg.BaseURL != "" {
			opts = append(opts, option.WithBaseURL(cfg.BaseURL))
		}
		return NewOpenAIProvider(cfg.APIKey, cfg.Model, cfg.Dimensions, cache, opts...)
	case ProviderLocal:
		return NewLocalProvider(cfg.Dimensions, cache)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, cfg.Provider)
	}
}

// DetectProvider returns the provider New would use for cfg
func DetectProvider(cfg Config) string {
	if p := strings.ToLower(strings.TrimSpace(cfg.Provider)); p != "" {
		return p
	}
	if cfg.APIKey != "" {
		return ProviderOpenAI
	}
	return ProviderLocal
}
