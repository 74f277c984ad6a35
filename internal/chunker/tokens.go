package chunker

import (
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

const (
	// DefaultEncoding is the tokenizer used for budget checks
	DefaultEncoding = "cl100k_base"

	// CharsPerToken is the heuristic for estimating tokens when no
	// tokenizer is available
	CharsPerToken = 4
)

// Counter measures and trims text in model tokens
type Counter struct {
	encoding *tiktoken.Tiktoken
}

var (
	defaultOnce    sync.Once
	defaultCounter *Counter
)

// DefaultCounter returns a process-wide tiktoken counter. Loading the
// encoding may fail (it is fetched on first use); the counter then falls
// back to the character estimate.
func DefaultCounter() *Counter {
	defaultOnce.Do(func() {
		enc, err := tiktoken.GetEncoding(DefaultEncoding)
		if err != nil {
			defaultCounter = NewEstimator()
			return
		}
		defaultCounter = &Counter{encoding: enc}
	})
	return defaultCounter
}

// NewEstimator returns a counter that never loads a tokenizer
func NewEstimator() *Counter {
	return &Counter{}
}

// Exact reports whether counts come from a real tokenizer
func (c *Counter) Exact() bool {
	return c != nil && c.encoding != nil
}

// Count returns the number of tokens in text
func (c *Counter) Count(text string) int {
	if !c.Exact() {
		return EstimateTokenCount(text)
	}
	return len(c.encoding.Encode(text, nil, nil))
}

// Truncate cuts text down to at most maxTokens tokens. A non-positive
// limit disables truncation.
func (c *Counter) Truncate(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return text
	}
	if !c.Exact() {
		limit := maxTokens * CharsPerToken
		if utf8.RuneCountInString(text) <= limit {
			return text
		}
		runes := []rune(text)
		return string(runes[:limit])
	}
	tokens := c.encoding.Encode(text, nil, nil)
	if len(tokens) <= maxTokens {
		return text
	}
	return c.encoding.Decode(tokens[:maxTokens])
}

// EstimateTokenCount estimates the number of tokens in a string
func EstimateTokenCount(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + CharsPerToken - 1) / CharsPerToken
}
