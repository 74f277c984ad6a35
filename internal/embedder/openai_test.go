package embedder

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/openai/openai-go/v3/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEmbeddings serves the embeddings endpoint. The first `fail` calls
// answer with failStatus.
func fakeEmbeddings(t *testing.T, fail int32, failStatus int) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		assert.Equal(t, "/embeddings", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")

		if n <= fail {
			w.WriteHeader(failStatus)
			_, _ = w.Write([]byte(`{"error":{"message":"try later","type":"server_error"}}`))
			return
		}

		var body struct {
			Input json.RawMessage `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		var inputs []string
		require.NoError(t, json.Unmarshal(body.Input, &inputs))

		// Answer in reverse order to exercise index mapping
		data := make([]map[string]any, 0, len(inputs))
		for i := len(inputs) - 1; i >= 0; i-- {
			data = append(data, map[string]any{
				"object":    "embedding",
				"index":     i,
				"embedding": []float64{float64(i), 1, 0},
			})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   data,
			"model":  DefaultOpenAIModel,
			"usage":  map[string]any{"prompt_tokens": 1, "total_tokens": 1},
		})
	}))
	t.Cleanup(server.Close)
	return server, &calls
}

func newTestOpenAI(t *testing.T, url string, cache *Cache) *OpenAIProvider {
	t.Helper()
	p, err := NewOpenAIProvider("test-key", "", 3, cache, option.WithBaseURL(url+"/"))
	require.NoError(t, err)
	return p
}

func TestOpenAIProvider_Batch(t *testing.T) {
	server, calls := fakeEmbeddings(t, 0, 0)
	p := newTestOpenAI(t, server.URL, NewCache(10))
	ctx := context.Background()

	vecs, err := p.EmbedBatch(ctx, []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	for i, vec := range vecs {
		assert.Equal(t, float32(i), vec[0], "vector %d placed by index", i)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))

	// Cached texts are answered locally; only "d" goes out
	vecs, err = p.EmbedBatch(ctx, []string{"b", "d"})
	require.NoError(t, err)
	assert.Equal(t, float32(1), vecs[0][0])
	assert.Equal(t, float32(0), vecs[1][0])
	assert.Equal(t, int32(2), atomic.LoadInt32(calls))

	_, err = p.Embed(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(calls))
}

func TestOpenAIProvider_RetriesServerErrors(t *testing.T) {
	server, calls := fakeEmbeddings(t, 2, http.StatusServiceUnavailable)
	p := newTestOpenAI(t, server.URL, nil)

	vec, err := p.Embed(context.Background(), "x")
	require.NoError(t, err)
	assert.Len(t, vec, 3)
	assert.Equal(t, int32(3), atomic.LoadInt32(calls))
}

func TestOpenAIProvider_DoesNotRetryAuthErrors(t *testing.T) {
	server, calls := fakeEmbeddings(t, 10, http.StatusUnauthorized)
	p := newTestOpenAI(t, server.URL, nil)

	_, err := p.Embed(context.Background(), "x")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProviderFailed)
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
}

func TestOpenAIProvider_BatchTooLarge(t *testing.T) {
	p, err := NewOpenAIProvider("k", "", 0, nil)
	require.NoError(t, err)
	assert.Equal(t, OpenAIDimension, p.Dimension())
	assert.Equal(t, DefaultOpenAIModel, p.Model())

	texts := make([]string, MaxBatchSize+1)
	for i := range texts {
		texts[i] = "t"
	}
	_, err = p.EmbedBatch(context.Background(), texts)
	assert.ErrorIs(t, err, ErrBatchTooLarge)

	_, err = NewOpenAIProvider("", "", 0, nil)
	assert.ErrorIs(t, err, ErrNoAPIKey)
}

func TestIsRetryableAPIError(t *testing.T) {
	assert.False(t, IsRetryableAPIError(nil))
	assert.False(t, IsRetryableAPIError(context.Canceled))
	assert.True(t, IsRetryableAPIError(errors.New("connection reset")))
}
