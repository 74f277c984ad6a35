package searcher

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dshills/docsync/internal/embedder"
	"github.com/dshills/docsync/internal/storage"
	"github.com/dshills/docsync/pkg/types"
)

// SearchMode defines how search is performed
type SearchMode string

const (
	SearchModeHybrid  SearchMode = "hybrid"  // Vector + keyword with RRF
	SearchModeVector  SearchMode = "vector"  // Vector similarity only
	SearchModeKeyword SearchMode = "keyword" // Full-text search only
)

// Limits and defaults for requests
const (
	DefaultLimit       = 10
	MaxLimit           = 100
	DefaultRRFConstant = 60
	DefaultCacheTTL    = time.Hour
	DefaultCacheSize   = 1000
)

// ErrEmptyQuery is returned for blank queries
var ErrEmptyQuery = errors.New("query cannot be empty")

// ErrKeywordUnsupported is returned for keyword searches on stores without a
// full-text index
var ErrKeywordUnsupported = errors.New("store does not support keyword search")

// SearchRequest contains parameters for a search operation
type SearchRequest struct {
	Query       string
	Limit       int
	Mode        SearchMode
	Filter      types.Filter
	MinScore    float64 // Drop results scoring below this
	UseCache    bool
	CacheTTL    time.Duration
	RRFConstant float64 // k value for Reciprocal Rank Fusion
}

// SearchResponse contains search results and metadata
type SearchResponse struct {
	Results       []types.SearchResult
	TotalResults  int
	SearchMode    SearchMode
	Duration      time.Duration
	CacheHit      bool
	VectorResults int
	TextResults   int
}

// Searcher runs queries against a vector store. Query results are cached
// until the cache is invalidated or the entry expires.
type Searcher struct {
	store    storage.VectorStore
	embedder embedder.Embedder
	cache    *responseCache
}

// NewSearcher creates a Searcher with the default cache size
func NewSearcher(store storage.VectorStore, emb embedder.Embedder) *Searcher {
	s, err := NewSearcherWithCache(store, emb, DefaultCacheSize)
	if err != nil {
		panic(fmt.Sprintf("failed to create LRU cache: %v", err))
	}
	return s
}

// NewSearcherWithCache creates a Searcher holding at most cacheSize responses
func NewSearcherWithCache(store storage.VectorStore, emb embedder.Embedder, cacheSize int) (*Searcher, error) {
	cache, err := newResponseCache(cacheSize)
	if err != nil {
		return nil, err
	}
	return &Searcher{store: store, embedder: emb, cache: cache}, nil
}

// Search performs a search based on the request parameters
func (s *Searcher) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	start := time.Now()

	if s.embedder == nil && req.Mode != SearchModeKeyword {
		return nil, fmt.Errorf("embedder not initialized")
	}
	if err := s.validateRequest(&req); err != nil {
		return nil, fmt.Errorf("invalid search request: %w", err)
	}

	key := keyOf(req)
	if req.UseCache {
		if cached, ok := s.cache.get(key); ok {
			cached.CacheHit = true
			cached.Duration = time.Since(start)
			return cached, nil
		}
	}

	var response *SearchResponse
	var err error
	switch req.Mode {
	case SearchModeHybrid:
		response, err = s.hybridSearch(ctx, req)
	case SearchModeVector:
		response, err = s.vectorSearch(ctx, req)
	case SearchModeKeyword:
		response, err = s.keywordSearch(ctx, req)
	default:
		return nil, fmt.Errorf("unsupported search mode: %s", req.Mode)
	}
	if err != nil {
		return nil, err
	}

	response.SearchMode = req.Mode
	response.Results = applyMinScore(response.Results, req.MinScore)
	response.TotalResults = len(response.Results)
	response.Duration = time.Since(start)

	if req.UseCache && len(response.Results) > 0 {
		s.cache.put(key, response, req.CacheTTL)
	}
	return response, nil
}

// searchResult holds the outcome of one leg of a hybrid search
type searchResult struct {
	matches []storage.Match
	err     error
}

func (s *Searcher) runVectorSearch(ctx context.Context, req SearchRequest, limit int, out chan<- searchResult) {
	var res searchResult
	vec, err := s.embedder.Embed(ctx, req.Query)
	if err != nil {
		res.err = fmt.Errorf("failed to generate query embedding: %w", err)
	} else {
		res.matches, res.err = s.store.Search(ctx, vec, req.Filter, limit)
	}
	select {
	case out <- res:
	case <-ctx.Done():
	}
}

func (s *Searcher) runTextSearch(ctx context.Context, ks storage.KeywordSearcher, req SearchRequest, limit int, out chan<- searchResult) {
	var res searchResult
	res.matches, res.err = ks.SearchText(ctx, req.Query, req.Filter, limit)
	select {
	case out <- res:
	case <-ctx.Done():
	}
}

// hybridSearch combines vector and keyword search using Reciprocal Rank
// Fusion. Stores without keyword search fall back to vector results.
func (s *Searcher) hybridSearch(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	ks, ok := s.store.(storage.KeywordSearcher)
	if !ok {
		return s.vectorSearch(ctx, req)
	}

	vectorChan := make(chan searchResult, 1)
	textChan := make(chan searchResult, 1)
	go s.runVectorSearch(ctx, req, req.Limit*2, vectorChan)
	go s.runTextSearch(ctx, ks, req, req.Limit*2, textChan)

	var vectorRes, textRes searchResult
	var vectorDone, textDone bool
	for !vectorDone || !textDone {
		select {
		case vectorRes = <-vectorChan:
			vectorDone = true
		case textRes = <-textChan:
			textDone = true
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	// One leg may fail
	if vectorRes.err != nil && textRes.err != nil {
		return nil, fmt.Errorf("both searches failed: vector=%w, text=%v", vectorRes.err, textRes.err)
	}

	fused := applyRRF(vectorRes.matches, textRes.matches, req.RRFConstant)
	return &SearchResponse{
		Results:       toResults(fused, req.Limit),
		VectorResults: len(vectorRes.matches),
		TextResults:   len(textRes.matches),
	}, nil
}

// vectorSearch performs only vector similarity search
func (s *Searcher) vectorSearch(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	vec, err := s.embedder.Embed(ctx, req.Query)
	if err != nil {
		return nil, fmt.Errorf("failed to generate query embedding: %w", err)
	}
	matches, err := s.store.Search(ctx, vec, req.Filter, req.Limit)
	if err != nil {
		return nil, err
	}

	// Cosine similarity is in [-1, 1]
	ranked := make([]rankedResult, len(matches))
	for i, m := range matches {
		ranked[i] = rankedResult{record: m.Record, score: clamp01((m.Score + 1) / 2)}
	}
	return &SearchResponse{
		Results:       toResults(ranked, req.Limit),
		VectorResults: len(matches),
	}, nil
}

// keywordSearch performs only full-text search
func (s *Searcher) keywordSearch(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	ks, ok := s.store.(storage.KeywordSearcher)
	if !ok {
		return nil, ErrKeywordUnsupported
	}
	matches, err := ks.SearchText(ctx, req.Query, req.Filter, req.Limit)
	if err != nil {
		return nil, err
	}

	ranked := make([]rankedResult, len(matches))
	for i, m := range matches {
		ranked[i] = rankedResult{record: m.Record, score: clamp01(m.Score)}
	}
	return &SearchResponse{
		Results:     toResults(ranked, req.Limit),
		TextResults: len(matches),
	}, nil
}

// rankedResult is a record with its relevance score
type rankedResult struct {
	record *types.IndexRecord
	score  float64
}

// applyRRF merges two ranked lists: RRF(d) = sum of 1/(k + rank(d)). Scores
// are divided by the best possible score 2/(k+1), so a record ranked first
// in both lists scores 1.
func applyRRF(vectorMatches, textMatches []storage.Match, k float64) []rankedResult {
	if k <= 0 {
		k = DefaultRRFConstant
	}

	scores := make(map[types.RecordKey]float64)
	records := make(map[types.RecordKey]*types.IndexRecord)
	for _, list := range [][]storage.Match{vectorMatches, textMatches} {
		for rank, m := range list {
			key := m.Record.Key()
			scores[key] += 1.0 / (k + float64(rank+1))
			records[key] = m.Record
		}
	}

	best := 2.0 / (k + 1)
	results := make([]rankedResult, 0, len(scores))
	for key, score := range scores {
		results = append(results, rankedResult{record: records[key], score: score / best})
	}
	sortRankedResults(results)
	return results
}

// toResults assigns 1-based ranks to the first limit results
func toResults(ranked []rankedResult, limit int) []types.SearchResult {
	if limit > len(ranked) {
		limit = len(ranked)
	}
	results := make([]types.SearchResult, limit)
	for i := 0; i < limit; i++ {
		results[i] = types.SearchResult{
			Rank:           i + 1,
			RelevanceScore: ranked[i].score,
			Record:         ranked[i].record,
		}
	}
	return results
}

func applyMinScore(results []types.SearchResult, minScore float64) []types.SearchResult {
	if minScore <= 0 {
		return results
	}
	kept := results[:0]
	for _, r := range results {
		if r.RelevanceScore >= minScore {
			r.Rank = len(kept) + 1
			kept = append(kept, r)
		}
	}
	return kept
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

// validateRequest applies defaults and bounds to the request
func (s *Searcher) validateRequest(req *SearchRequest) error {
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		return ErrEmptyQuery
	}
	if req.Limit <= 0 {
		req.Limit = DefaultLimit
	}
	if req.Limit > MaxLimit {
		req.Limit = MaxLimit
	}
	if req.Mode == "" {
		req.Mode = SearchModeHybrid
	}
	if req.RRFConstant == 0 {
		req.RRFConstant = DefaultRRFConstant
	}
	if req.CacheTTL == 0 {
		req.CacheTTL = DefaultCacheTTL
	}
	return nil
}

// sortRankedResults sorts by score, breaking ties by key
func sortRankedResults(results []rankedResult) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].score != results[j].score {
			return results[i].score > results[j].score
		}
		return results[i].record.Key().String() < results[j].record.Key().String()
	})
}
