// Package searcher queries the documentation index.
//
// The searcher provides three search modes:
//   - Hybrid: vector + keyword search merged with Reciprocal Rank Fusion
//     (default; stores without a keyword index fall back to vector)
//   - Vector: semantic search using the query embedding
//   - Keyword: full-text search only, no embedding required
//
// # Basic Usage
//
//	s := searcher.NewSearcher(store, emb)
//
//	resp, err := s.Search(ctx, searcher.SearchRequest{
//	    Query:  "parse configuration file",
//	    Limit:  10,
//	    Filter: types.Filter{VersionTag: types.Tag("v2"), Kind: types.KindFunction},
//	})
//
//	for _, r := range resp.Results {
//	    fmt.Printf("[%d] %.2f %s\n", r.Rank, r.RelevanceScore, r.Record.QualifiedName)
//	}
//
// # Reciprocal Rank Fusion (RRF)
//
//	rrf(d) = sum over lists of 1 / (k + rank(d))
//
// with k = 60. Fused scores are divided by 2/(k+1) so they fall in (0, 1].
//
// # Relevance Scoring
//
// Scores are normalized to [0, 1]. Vector scores map cosine similarity
// from [-1, 1]; keyword scores come from the store's normalized rank.
// MinScore drops weaker results after ranking.
//
// # Caching
//
// Responses are cached by query, mode, limit and filter in an LRU with a TTL
// (one hour by default). Callers that change the store call InvalidateCache.
package searcher
