package embedder

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/dshills/docsync/internal/retry"
)

// OpenAIProvider implements Embedder with the OpenAI Embeddings API
type OpenAIProvider struct {
	client    openai.Client
	model     string
	dimension int
	cache     *Cache
	retry     retry.Config
}

// NewOpenAIProvider creates an OpenAI embedder. Empty model and zero
// dimension select DefaultOpenAIModel and OpenAIDimension. Extra client
// options (base URL, HTTP client) are passed through to the SDK.
func NewOpenAIProvider(apiKey, model string, dimension int, cache *Cache, opts ...option.RequestOption) (*OpenAIProvider, error) {
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}
	if model == "" {
		model = DefaultOpenAIModel
	}
	if dimension <= 0 {
		dimension = OpenAIDimension
	}

	// Retries are handled by retry.Do so the SDK's own loop is disabled
	clientOpts := append([]option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}, opts...)

	rc := retry.DefaultConfig()
	rc.Retryable = IsRetryableAPIError

	return &OpenAIProvider{
		client:    openai.NewClient(clientOpts...),
		model:     model,
		dimension: dimension,
		cache:     cache,
		retry:     rc,
	}, nil
}

// Embed implements Embedder
func (o *OpenAIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := o.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch implements Embedder. Uncached texts go out in one request,
// so a batch may hold at most MaxBatchSize texts.
func (o *OpenAIProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) > MaxBatchSize {
		return nil, fmt.Errorf("%w: %d texts, max %d", ErrBatchTooLarge, len(texts), MaxBatchSize)
	}
	return embedThrough(ctx, o.cache, o.model, texts, func(ctx context.Context, missing []string) ([][]float32, error) {
		vecs, err := retry.Do(ctx, o.retry, func() ([][]float32, error) {
			return o.request(ctx, missing)
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("%w: %v", ErrProviderFailed, err)
		}
		return vecs, nil
	})
}

func (o *OpenAIProvider) request(ctx context.Context, texts []string) ([][]float32, error) {
	params := openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(o.model),
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
	}
	if o.dimension > 0 {
		params.Dimensions = openai.Int(int64(o.dimension))
	}

	resp, err := o.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, err
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Data))
	}

	// Place by the reported index, not response order
	vecs := make([][]float32, len(texts))
	for _, d := range resp.Data {
		i := int(d.Index)
		if i < 0 || i >= len(texts) || vecs[i] != nil {
			return nil, fmt.Errorf("bad embedding index %d", d.Index)
		}
		vec := make([]float32, len(d.Embedding))
		for k, v := range d.Embedding {
			vec[k] = float32(v)
		}
		vecs[i] = vec
	}
	return vecs, nil
}

// Dimension implements Embedder
func (o *OpenAIProvider) Dimension() int {
	return o.dimension
}

// Provider implements Embedder
func (o *OpenAIProvider) Provider() string {
	return ProviderOpenAI
}

// Model implements Embedder
func (o *OpenAIProvider) Model() string {
	return o.model
}

// Close implements Embedder
func (o *OpenAIProvider) Close() error {
	return nil
}

// IsRetryableAPIError reports whether an OpenAI call may succeed when
// repeated: rate limits, server errors and transport failures are retried,
// other API errors (auth, bad request, unknown model) are not.
func IsRetryableAPIError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}
	return true
}
