// Package embedder turns index record texts into vectors.
//
// Two providers implement Embedder:
//   - openai: the OpenAI Embeddings API through openai-go, batched up to
//     MaxBatchSize texts per call and retried with exponential backoff on
//     rate limits and server errors
//   - local: deterministic feature hashing of words and word pairs, used
//     offline and in tests
//
// # Basic Usage
//
//	emb, err := embedder.New(embedder.Config{
//	    Provider:  cfg.Embedding.Provider,
//	    APIKey:    cfg.OpenAIAPIKey,
//	    CacheSize: 10000,
//	})
//	if err != nil {
//	    return err
//	}
//	defer emb.Close()
//
//	vec, err := emb.Embed(ctx, text)
//
// With no provider configured, New picks OpenAI when an API key is present
// and falls back to the local provider otherwise.
//
// # Caching
//
// A provider may hold an LRU cache keyed by model and the SHA-256 of the
// text. EmbedBatch answers cached texts locally and sends only the misses
// to the provider.
package embedder
