package searcher

import (
	"fmt"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dshills/docsync/pkg/types"
)

// queryKey identifies a normalized request. Every field that changes the
// result set is part of the key.
type queryKey struct {
	query    string
	mode     SearchMode
	limit    int
	minScore float64
	rrfK     float64

	elementID string
	tagSet    bool
	tag       string
	language  string
	kind      types.ElementKind
	filePath  string
	prefix    string
}

func keyOf(req SearchRequest) queryKey {
	f := req.Filter
	k := queryKey{
		query:     req.Query,
		mode:      req.Mode,
		limit:     req.Limit,
		minScore:  req.MinScore,
		rrfK:      req.RRFConstant,
		elementID: f.ElementID,
		language:  f.Language,
		kind:      f.Kind,
		filePath:  f.FilePath,
		prefix:    strings.Join(f.HierarchyPrefix, "\x1f"),
	}
	if f.VersionTag != nil {
		k.tagSet = true
		k.tag = *f.VersionTag
	}
	return k
}

type cachedResponse struct {
	resp    *SearchResponse
	expires time.Time
}

// responseCache is an LRU of search responses with a per-entry deadline
type responseCache struct {
	mu      sync.Mutex
	entries *lru.Cache[queryKey, cachedResponse]
	now     func() time.Time
}

func newResponseCache(size int) (*responseCache, error) {
	entries, err := lru.New[queryKey, cachedResponse](size)
	if err != nil {
		return nil, err
	}
	return &responseCache{entries: entries, now: time.Now}, nil
}

// get returns a private copy of a live entry. Expired entries are dropped.
func (c *responseCache) get(k queryKey) (*SearchResponse, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries.Get(k)
	if !ok {
		return nil, false
	}
	if !c.now().Before(e.expires) {
		c.entries.Remove(k)
		return nil, false
	}
	return cloneResponse(e.resp), true
}

func (c *responseCache) put(k queryKey, resp *SearchResponse, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Add(k, cachedResponse{resp: cloneResponse(resp), expires: c.now().Add(ttl)})
}

func (c *responseCache) purge() {
	c.mu.Lock()
	c.entries.Purge()
	c.mu.Unlock()
}

func (c *responseCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}

func (c *responseCache) resize(n int) error {
	if n <= 0 {
		return fmt.Errorf("cache size must be positive, got %d", n)
	}
	c.mu.Lock()
	c.entries.Resize(n)
	c.mu.Unlock()
	return nil
}

func cloneResponse(src *SearchResponse) *SearchResponse {
	dst := *src
	dst.Results = make([]types.SearchResult, len(src.Results))
	for i, r := range src.Results {
		if r.Record != nil {
			rec := *r.Record
			rec.HierarchyPath = append([]string(nil), rec.HierarchyPath...)
			r.Record = &rec
		}
		dst.Results[i] = r
	}
	return &dst
}

// InvalidateCache drops every cached response. Runs that write to the store
// call it.
func (s *Searcher) InvalidateCache() {
	s.cache.purge()
}

// CacheLen returns the number of cached responses
func (s *Searcher) CacheLen() int {
	return s.cache.len()
}

// ResizeCache changes the cache capacity, dropping the least recently used
// responses that no longer fit
func (s *Searcher) ResizeCache(n int) error {
	return s.cache.resize(n)
}
