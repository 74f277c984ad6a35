package embedder

import (
	"context"
	"fmt"
	"testing"

	"github.com/dshills/docsync/internal/chunker"
	"github.com/dshills/docsync/pkg/types"
)

// recordTexts composes n embedding inputs shaped like real index records
func recordTexts(n int) []string {
	c := chunker.New(chunker.NewEstimator(), 0)
	texts := make([]string, n)
	for i := range texts {
		texts[i] = c.Compose(&types.IndexRecord{
			FilePath:      fmt.Sprintf("pkg/mod%d.py", i%7),
			Kind:          types.KindFunction,
			QualifiedName: fmt.Sprintf("mod%d.handler_%d", i%7, i),
			Signature:     fmt.Sprintf("def handler_%d(request, timeout=30)", i),
			Text:          fmt.Sprintf("Handles request %d and returns the decoded response body. Raises TimeoutError after timeout seconds.", i),
		})
	}
	return texts
}

func BenchmarkLocalEmbedBatch(b *testing.B) {
	ctx := context.Background()
	for _, n := range []int{1, 10, MaxBatchSize} {
		texts := recordTexts(n)

		b.Run(fmt.Sprintf("uncached/n=%d", n), func(b *testing.B) {
			p, err := NewLocalProvider(0, nil)
			if err != nil {
				b.Fatal(err)
			}
			for i := 0; i < b.N; i++ {
				if _, err := p.EmbedBatch(ctx, texts); err != nil {
					b.Fatal(err)
				}
			}
		})

		b.Run(fmt.Sprintf("cached/n=%d", n), func(b *testing.B) {
			p, err := NewLocalProvider(0, NewCache(2*n))
			if err != nil {
				b.Fatal(err)
			}
			if _, err := p.EmbedBatch(ctx, texts); err != nil {
				b.Fatal(err)
			}
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := p.EmbedBatch(ctx, texts); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkCacheParallel(b *testing.B) {
	texts := recordTexts(500)
	vec := make([]float32, OpenAIDimension)
	cache := NewCache(len(texts) / 2)

	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			text := texts[i%len(texts)]
			if _, ok := cache.Get(DefaultOpenAIModel, text); !ok {
				cache.Put(DefaultOpenAIModel, text, vec)
			}
			i++
		}
	})
}
