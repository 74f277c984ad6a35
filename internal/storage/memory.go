package storage

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/dshills/docsync/pkg/types"
)

type memoryEntry struct {
	record *types.IndexRecord
	vector []float32
}

// MemoryStore keeps records in process memory. It is used for dry runs and
// tests.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[types.RecordKey]memoryEntry
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[types.RecordKey]memoryEntry)}
}

func (m *MemoryStore) Upsert(ctx context.Context, rec *types.IndexRecord, vector []float32) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateUpsert(rec, vector); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[rec.Key()] = memoryEntry{
		record: cloneRecord(rec),
		vector: append([]float32(nil), vector...),
	}
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, filter types.Filter) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if filter.IsEmpty() {
		return 0, ErrEmptyFilter
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for key, e := range m.entries {
		if filter.Matches(e.record) {
			delete(m.entries, key)
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) ExistsWithHash(ctx context.Context, key types.RecordKey, hash string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[key]
	return ok && e.record.RecordHash == hash, nil
}

func (m *MemoryStore) Get(ctx context.Context, key types.RecordKey) (*types.IndexRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[key]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneRecord(e.record), nil
}

func (m *MemoryStore) Query(ctx context.Context, filter types.Filter, limit int) ([]*types.IndexRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	var out []*types.IndexRecord
	for _, e := range m.entries {
		if filter.Matches(e.record) {
			out = append(out, cloneRecord(e.record))
		}
	}
	m.mu.RUnlock()

	sortRecords(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) Search(ctx context.Context, vector []float32, filter types.Filter, limit int) ([]Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	var matches []Match
	for _, e := range m.entries {
		if !filter.Matches(e.record) || len(e.vector) != len(vector) {
			continue
		}
		matches = append(matches, Match{Record: cloneRecord(e.record), Score: cosineSimilarity(vector, e.vector)})
	}
	m.mu.RUnlock()

	sortMatches(matches)
	return truncateMatches(matches, limit), nil
}

// SearchText scores records by the share of query terms found in their text,
// qualified name or signature
func (m *MemoryStore) SearchText(ctx context.Context, query string, filter types.Filter, limit int) ([]Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return nil, nil
	}

	m.mu.RLock()
	var matches []Match
	for _, e := range m.entries {
		if !filter.Matches(e.record) {
			continue
		}
		haystack := strings.ToLower(e.record.Text + " " + e.record.QualifiedName + " " + e.record.Signature)
		hits := 0
		for _, term := range terms {
			if strings.Contains(haystack, term) {
				hits++
			}
		}
		if hits > 0 {
			matches = append(matches, Match{Record: cloneRecord(e.record), Score: float64(hits) / float64(len(terms))})
		}
	}
	m.mu.RUnlock()

	sortMatches(matches)
	return truncateMatches(matches, limit), nil
}

func (m *MemoryStore) Stats(ctx context.Context) (*Stats, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	stats := newStats(TypeMemory)
	for _, e := range m.entries {
		stats.add(e.record)
	}
	return stats, nil
}

func (m *MemoryStore) Close() error {
	return nil
}

// sortRecords orders records by file, qualified name, then key
func sortRecords(recs []*types.IndexRecord) {
	sort.Slice(recs, func(i, j int) bool {
		a, b := recs[i], recs[j]
		if a.FilePath != b.FilePath {
			return a.FilePath < b.FilePath
		}
		if a.QualifiedName != b.QualifiedName {
			return a.QualifiedName < b.QualifiedName
		}
		if a.ElementID != b.ElementID {
			return a.ElementID < b.ElementID
		}
		return a.VersionTag < b.VersionTag
	})
}

// sortMatches orders matches by score, breaking ties by key for stable output
func sortMatches(matches []Match) {
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Record.Key().String() < matches[j].Record.Key().String()
	})
}

func truncateMatches(matches []Match, limit int) []Match {
	if limit > 0 && len(matches) > limit {
		return matches[:limit]
	}
	return matches
}
