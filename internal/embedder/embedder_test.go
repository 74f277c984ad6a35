package embedder

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache(t *testing.T) {
	t.Run("keyed by model and text", func(t *testing.T) {
		cache := NewCache(4)
		cache.Put("m1", "text", []float32{1, 2})

		got, ok := cache.Get("m1", "text")
		require.True(t, ok)
		assert.Equal(t, []float32{1, 2}, got)

		_, ok = cache.Get("m2", "text")
		assert.False(t, ok)
		_, ok = cache.Get("m1", "other")
		assert.False(t, ok)
	})

	t.Run("vectors are copied", func(t *testing.T) {
		cache := NewCache(4)
		in := []float32{1, 2, 3}
		cache.Put("m", "t", in)
		in[0] = 42

		got, _ := cache.Get("m", "t")
		got[1] = 42

		again, _ := cache.Get("m", "t")
		assert.Equal(t, []float32{1, 2, 3}, again)
	})

	t.Run("evicts least recently used", func(t *testing.T) {
		cache := NewCache(2)
		cache.Put("m", "a", []float32{1})
		cache.Put("m", "b", []float32{2})
		_, _ = cache.Get("m", "a")
		cache.Put("m", "c", []float32{3})

		assert.Equal(t, 2, cache.Len())
		_, ok := cache.Get("m", "b")
		assert.False(t, ok)
		_, ok = cache.Get("m", "a")
		assert.True(t, ok)

		cache.Purge()
		assert.Equal(t, 0, cache.Len())
	})

	t.Run("nil cache never hits", func(t *testing.T) {
		var cache *Cache
		cache.Put("m", "t", []float32{1})
		_, ok := cache.Get("m", "t")
		assert.False(t, ok)
		assert.Equal(t, 0, cache.Len())
	})

	t.Run("concurrent access", func(t *testing.T) {
		cache := NewCache(100)
		var wg sync.WaitGroup
		for g := 0; g < 8; g++ {
			wg.Add(1)
			go func(g int) {
				defer wg.Done()
				for i := 0; i < 100; i++ {
					text := fmt.Sprintf("text-%d", i)
					cache.Put("m", text, []float32{float32(g)})
					_, _ = cache.Get("m", text)
				}
			}(g)
		}
		wg.Wait()
		assert.Equal(t, 100, cache.Len())
	})
}

func TestEmbedThrough(t *testing.T) {
	ctx := context.Background()
	cache := NewCache(10)
	cache.Put("m", "hit", []float32{9})

	var asked []string
	compute := func(_ context.Context, texts []string) ([][]float32, error) {
		asked = append(asked, texts...)
		out := make([][]float32, len(texts))
		for i, text := range texts {
			out[i] = []float32{float32(len(text))}
		}
		return out, nil
	}

	vecs, err := embedThrough(ctx, cache, "m", []string{"a", "hit", "ccc"}, compute)
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1}, {9}, {3}}, vecs)
	assert.Equal(t, []string{"a", "ccc"}, asked, "only misses are computed")

	asked = nil
	_, err = embedThrough(ctx, cache, "m", []string{"ccc", "a"}, compute)
	require.NoError(t, err)
	assert.Empty(t, asked)

	short := func(context.Context, []string) ([][]float32, error) { return nil, nil }
	_, err = embedThrough(ctx, nil, "m", []string{"x"}, short)
	assert.ErrorIs(t, err, ErrProviderFailed)

	for _, texts := range [][]string{nil, {"a", ""}} {
		_, err = embedThrough(ctx, cache, "m", texts, compute)
		assert.ErrorIs(t, err, ErrEmptyText)
	}
}

func TestLocalProvider(t *testing.T) {
	provider, err := NewLocalProvider(0, NewCache(10))
	require.NoError(t, err)
	defer provider.Close()
	ctx := context.Background()

	t.Run("metadata", func(t *testing.T) {
		assert.Equal(t, ProviderLocal, provider.Provider())
		assert.Equal(t, LocalDimension, provider.Dimension())
		assert.Equal(t, DefaultLocalModel, provider.Model())
	})

	t.Run("unit length and deterministic", func(t *testing.T) {
		a, err := provider.Embed(ctx, "parse the config file")
		require.NoError(t, err)
		require.Len(t, a, LocalDimension)
		assert.InDelta(t, 1.0, norm(a), 1e-5)

		fresh, err := NewLocalProvider(0, nil)
		require.NoError(t, err)
		b, err := fresh.Embed(ctx, "parse the config file")
		require.NoError(t, err)
		assert.Equal(t, a, b)
	})

	t.Run("shared words are closer", func(t *testing.T) {
		query, _ := provider.Embed(ctx, "load configuration from yaml file")
		near, _ := provider.Embed(ctx, "Loads the configuration from a YAML file.")
		far, _ := provider.Embed(ctx, "Computes the area of a square.")

		assert.Greater(t, dot(query, near), dot(query, far))
	})

	t.Run("batch keeps order", func(t *testing.T) {
		vecs, err := provider.EmbedBatch(ctx, []string{"one", "two"})
		require.NoError(t, err)
		require.Len(t, vecs, 2)

		two, _ := provider.Embed(ctx, "two")
		assert.Equal(t, two, vecs[1])
	})

	t.Run("custom dimension", func(t *testing.T) {
		small, err := NewLocalProvider(16, nil)
		require.NoError(t, err)
		vec, err := small.Embed(ctx, "x")
		require.NoError(t, err)
		assert.Len(t, vec, 16)
	})

	t.Run("empty text", func(t *testing.T) {
		_, err := provider.Embed(ctx, "")
		assert.ErrorIs(t, err, ErrEmptyText)
	})

	t.Run("context cancellation", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := provider.Embed(cctx, "uncached text")
		assert.True(t, errors.Is(err, context.Canceled))
	})
}

func TestNormalizeVector(t *testing.T) {
	assert.InDelta(t, 1.0, norm(NormalizeVector([]float32{3, 4})), 1e-6)
	assert.Equal(t, []float32{0, 0}, NormalizeVector([]float32{0, 0}))
}

func TestNewAndDetectProvider(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{"explicit local", Config{Provider: "local", APIKey: "k"}, ProviderLocal},
		{"explicit openai", Config{Provider: "OpenAI", APIKey: "k"}, ProviderOpenAI},
		{"key selects openai", Config{APIKey: "k"}, ProviderOpenAI},
		{"no key falls back to local", Config{}, ProviderLocal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectProvider(tt.cfg))

			e, err := New(tt.cfg)
			require.NoError(t, err)
			assert.Equal(t, tt.want, e.Provider())
		})
	}

	_, err := New(Config{Provider: "jina"})
	assert.ErrorIs(t, err, ErrUnsupportedProvider)

	_, err = New(Config{Provider: "openai"})
	assert.ErrorIs(t, err, ErrNoAPIKey)
}

func norm(v []float32) float64 {
	return math.Sqrt(dot(v, v))
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
