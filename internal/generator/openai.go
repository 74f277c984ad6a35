package generator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"github.com/dshills/docsync/internal/retry"
	"github.com/dshills/docsync/pkg/types"
)

// Defaults for the OpenAI generator
const (
	DefaultModel       = "gpt-4o-mini"
	DefaultMaxTokens   = 512
	DefaultTemperature = 0.2
)

// ErrAPIKeyNotSet is returned when the OpenAI generator has no API key
var ErrAPIKeyNotSet = errors.New("OpenAI API key not set")

// OpenAIGenerator writes documentation with the Chat Completions API
type OpenAIGenerator struct {
	client      openai.Client
	model       string
	maxTokens   int
	temperature float64
	retry       retry.Config
}

// NewOpenAIGenerator creates a generator. Zero values select the defaults.
func NewOpenAIGenerator(apiKey, model string, maxTokens int, temperature float64, opts ...option.RequestOption) (*OpenAIGenerator, error) {
	if apiKey == "" {
		return nil, ErrAPIKeyNotSet
	}
	if model == "" {
		model = DefaultModel
	}
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	clientOpts := append([]option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}, opts...)

	rc := retry.DefaultConfig()
	rc.Retryable = func(err error) bool {
		return Classify("", err).Retryable && !errors.Is(err, context.DeadlineExceeded)
	}

	return &OpenAIGenerator{
		client:      openai.NewClient(clientOpts...),
		model:       model,
		maxTokens:   maxTokens,
		temperature: temperature,
		retry:       rc,
	}, nil
}

// Model returns the chat model name
func (g *OpenAIGenerator) Model() string {
	return g.model
}

// Generate implements Generator. Failures are returned as
// *types.GenerationError.
func (g *OpenAIGenerator) Generate(ctx context.Context, req Request) (string, error) {
	if req.Element == nil {
		return "", &types.GenerationError{Err: errors.New("request has no element")}
	}
	elementID := req.Element.ID

	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(g.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(SystemPrompt),
			openai.UserMessage(BuildPrompt(req)),
		},
		Temperature: openai.Float(g.temperature),
		MaxTokens:   openai.Int(int64(g.maxTokens)),
	}

	text, err := retry.Do(ctx, g.retry, func() (string, error) {
		completion, err := g.client.Chat.Completions.New(ctx, params)
		if err != nil {
			return "", err
		}
		if len(completion.Choices) == 0 {
			return "", errors.New("no completion choices returned")
		}
		return completion.Choices[0].Message.Content, nil
	})
	if err != nil {
		return "", Classify(elementID, err)
	}

	text = CleanOutput(text)
	if text == "" {
		return "", &types.GenerationError{ElementID: elementID, Retryable: true, Err: errors.New("empty completion")}
	}
	return text, nil
}

// Classify maps a provider error to a GenerationError. Rate limits, server
// errors, timeouts and transport failures are retryable; quota, unknown
// model and permission errors are not.
func Classify(elementID string, err error) *types.GenerationError {
	var genErr *types.GenerationError
	if errors.As(err, &genErr) {
		return genErr
	}

	wrap := func(retryable bool, reason string) *types.GenerationError {
		return &types.GenerationError{
			ElementID: elementID,
			Retryable: retryable,
			Err:       fmt.Errorf("%s: %w", reason, err),
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return wrap(true, "timeout")
	}
	if errors.Is(err, context.Canceled) {
		return wrap(true, "cancelled")
	}

	msg := strings.ToLower(err.Error())

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		code := strings.ToLower(apiErr.Code)
		switch {
		case code == "insufficient_quota" || strings.Contains(msg, "quota"):
			return wrap(false, "quota exceeded")
		case apiErr.StatusCode == http.StatusTooManyRequests:
			return wrap(true, "rate limit exceeded")
		case apiErr.StatusCode == http.StatusNotFound || code == "model_not_found":
			return wrap(false, "model not found")
		case apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden:
			return wrap(false, "permission denied")
		case apiErr.StatusCode == http.StatusRequestTimeout:
			return wrap(true, "timeout")
		case apiErr.StatusCode >= 500:
			return wrap(true, "provider error")
		default:
			return wrap(false, "request rejected")
		}
	}

	switch {
	case strings.Contains(msg, "quota"):
		return wrap(false, "quota exceeded")
	case strings.Contains(msg, "rate limit") || strings.Contains(msg, "429"):
		return wrap(true, "rate limit exceeded")
	case strings.Contains(msg, "model not found") || strings.Contains(msg, "not found"):
		return wrap(false, "model not found")
	case strings.Contains(msg, "permission") || strings.Contains(msg, "unauthorized") || strings.Contains(msg, "forbidden"):
		return wrap(false, "permission denied")
	case strings.Contains(msg, "timeout"):
		return wrap(true, "timeout")
	default:
		return wrap(true, "generation error")
	}
}
