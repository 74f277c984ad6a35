package embedder

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

var (
	ErrProviderFailed      = errors.New("embedding provider failed")
	ErrUnsupportedProvider = errors.New("unsupported embedding provider")
	ErrEmptyText           = errors.New("empty text")
	ErrBatchTooLarge       = errors.New("batch too large")
	ErrNoAPIKey            = errors.New("embedding API key not set")
)

// Embedder turns record texts into fixed-size vectors
type Embedder interface {
	// Embed returns the vector for one text
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns one vector per text, in input order
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	Dimension() int
	Provider() string
	Model() string
	Close() error
}

// computeFunc produces vectors for texts that missed the cache
type computeFunc func(ctx context.Context, texts []string) ([][]float32, error)

// embedThrough serves texts from the cache and hands the misses to compute
// in a single call. A nil cache computes everything.
func embedThrough(ctx context.Context, cache *Cache, model string, texts []string, compute computeFunc) ([][]float32, error) {
	if err := checkTexts(texts); err != nil {
		return nil, err
	}

	out := make([][]float32, len(texts))
	var missing []string
	var slots []int
	for i, text := range texts {
		if vec, ok := cache.Get(model, text); ok {
			out[i] = vec
			continue
		}
		missing = append(missing, text)
		slots = append(slots, i)
	}
	if len(missing) == 0 {
		return out, nil
	}

	vecs, err := compute(ctx, missing)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missing) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", ErrProviderFailed, len(vecs), len(missing))
	}
	for j, vec := range vecs {
		out[slots[j]] = vec
		cache.Put(model, missing[j], vec)
	}
	return out, nil
}

func checkTexts(texts []string) error {
	if len(texts) == 0 {
		return fmt.Errorf("%w: no texts", ErrEmptyText)
	}
	for i, text := range texts {
		if text == "" {
			return fmt.Errorf("%w: text %d", ErrEmptyText, i)
		}
	}
	return nil
}

type cacheKey struct {
	model string
	sum   [sha256.Size]byte
}

// Cache is an LRU of vectors keyed by model and text digest. Vectors are
// copied in and out. A nil *Cache is valid and never hits.
type Cache struct {
	entries *lru.Cache[cacheKey, []float32]
}

// NewCache creates a cache holding up to size vectors
func NewCache(size int) *Cache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	entries, err := lru.New[cacheKey, []float32](size)
	if err != nil {
		entries, _ = lru.New[cacheKey, []float32](DefaultCacheSize)
	}
	return &Cache{entries: entries}
}

func (c *Cache) Get(model, text string) ([]float32, bool) {
	if c == nil {
		return nil, false
	}
	vec, ok := c.entries.Get(cacheKey{model: model, sum: sha256.Sum256([]byte(text))})
	if !ok {
		return nil, false
	}
	return append([]float32(nil), vec...), true
}

func (c *Cache) Put(model, text string, vec []float32) {
	if c == nil {
		return
	}
	c.entries.Add(cacheKey{model: model, sum: sha256.Sum256([]byte(text))}, append([]float32(nil), vec...))
}

// Len reports the number of cached vectors
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	return c.entries.Len()
}

func (c *Cache) Purge() {
	if c != nil {
		c.entries.Purge()
	}
}
