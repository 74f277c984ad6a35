package parser

import (
	"context"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/docsync/pkg/types"
)

// Source is one file queued for parsing. Language is detected when empty.
type Source struct {
	Path     string
	Content  []byte
	Language string
}

// ParseAll parses sources concurrently on at most workers goroutines.
// Files without a registered adapter are skipped. Results come back sorted
// by path; a cancelled context stops the pool and returns ctx.Err().
func (r *Registry) ParseAll(ctx context.Context, sources []Source, workers int) ([]*types.ParseResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	results := make([]*types.ParseResult, len(sources))
	semaphore := make(chan struct{}, workers)

	g, gctx := errgroup.WithContext(ctx)
	for i, src := range sources {
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case semaphore <- struct{}{}:
			}
			defer func() { <-semaphore }()

			lang := src.Language
			if lang == "" {
				lang = r.DetectLanguage(src.Path, src.Content)
			}
			if lang == "" {
				return nil
			}
			res, err := r.Parse(src.Path, src.Content, lang)
			if err != nil {
				// Unsupported language: not a documentable file
				return nil
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := results[:0]
	for _, res := range results {
		if res != nil {
			out = append(out, res)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}
