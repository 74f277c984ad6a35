package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dshills/docsync/pkg/types"
)

var (
	// ErrNotFound is returned when a requested record doesn't exist
	ErrNotFound = types.ErrNotFound
	// ErrEmptyFilter guards against deleting the whole index by accident
	ErrEmptyFilter = errors.New("delete requires a non-empty filter")
	// ErrUnsupportedStore is returned by Open for unknown store types
	ErrUnsupportedStore = errors.New("unsupported store type")
	// ErrDimensionMismatch is returned when a vector does not fit the store
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)

// Store types understood by Open
const (
	TypeSQLite   = "sqlite"
	TypePostgres = "postgres"
	TypeMemory   = "memory"
)

// VectorStore persists index records together with their embeddings. Records
// are keyed by (element ID, version tag); an upsert replaces the record and
// its vector in one step.
type VectorStore interface {
	Upsert(ctx context.Context, rec *types.IndexRecord, vector []float32) error
	Delete(ctx context.Context, filter types.Filter) (int, error)
	ExistsWithHash(ctx context.Context, key types.RecordKey, hash string) (bool, error)
	Get(ctx context.Context, key types.RecordKey) (*types.IndexRecord, error)
	Query(ctx context.Context, filter types.Filter, limit int) ([]*types.IndexRecord, error)
	Search(ctx context.Context, vector []float32, filter types.Filter, limit int) ([]Match, error)
	Stats(ctx context.Context) (*Stats, error)
	Close() error
}

// KeywordSearcher is implemented by stores with full-text search over record
// text
type KeywordSearcher interface {
	SearchText(ctx context.Context, query string, filter types.Filter, limit int) ([]Match, error)
}

// Match is a record returned by a search, with its score. Vector searches
// score by cosine similarity; keyword searches by a normalized rank in (0, 1].
type Match struct {
	Record *types.IndexRecord
	Score  float64
}

// Stats describes the contents of a store
type Stats struct {
	Records     int
	ByTag       map[string]int
	ByLanguage  map[string]int
	ByKind      map[string]int
	LastUpdated time.Time
	Backend     string
}

// Tags returns the version tags present in the store, sorted
func (s *Stats) Tags() []string {
	out := make([]string, 0, len(s.ByTag))
	for tag := range s.ByTag {
		out = append(out, tag)
	}
	sort.Strings(out)
	return out
}

func newStats(backend string) *Stats {
	return &Stats{
		ByTag:      make(map[string]int),
		ByLanguage: make(map[string]int),
		ByKind:     make(map[string]int),
		Backend:    backend,
	}
}

func (s *Stats) add(rec *types.IndexRecord) {
	s.Records++
	s.ByTag[rec.VersionTag]++
	s.ByLanguage[rec.Language]++
	s.ByKind[string(rec.Kind)]++
	if rec.UpdatedAt.After(s.LastUpdated) {
		s.LastUpdated = rec.UpdatedAt
	}
}

// Config selects and configures a store backend
type Config struct {
	Type       string // sqlite (default), postgres or memory
	Path       string // SQLite database file
	DSN        string // Postgres connection string
	Table      string // Postgres table name
	Dimensions int    // Embedding dimension, required by postgres
}

// Open creates the store described by cfg
func Open(ctx context.Context, cfg Config) (VectorStore, error) {
	switch strings.ToLower(cfg.Type) {
	case "", TypeSQLite:
		path := cfg.Path
		if path == "" {
			path = ":memory:"
		}
		return NewSQLiteStore(ctx, path)
	case TypePostgres:
		return NewPostgresStore(ctx, cfg.DSN, cfg.Table, cfg.Dimensions)
	case TypeMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedStore, cfg.Type)
	}
}

// validateUpsert checks a record before it is written
func validateUpsert(rec *types.IndexRecord, vector []float32) error {
	if rec == nil {
		return types.ErrMissingRecord
	}
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("invalid record %s: %w", rec.Key(), err)
	}
	if len(vector) == 0 {
		return fmt.Errorf("record %s: empty vector", rec.Key())
	}
	return nil
}

// cloneRecord copies a record so callers cannot alias stored state
func cloneRecord(rec *types.IndexRecord) *types.IndexRecord {
	cp := *rec
	cp.HierarchyPath = append([]string(nil), rec.HierarchyPath...)
	return &cp
}
