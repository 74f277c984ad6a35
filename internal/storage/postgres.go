package storage

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/dshills/docsync/pkg/types"
)

// DefaultPostgresTable is the table used when none is configured
const DefaultPostgresTable = "docsync_records"

var tableNameRe = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

// PostgresStore implements VectorStore on PostgreSQL with the pgvector
// extension. Similarity is computed in the database with the cosine
// distance operator.
type PostgresStore struct {
	pool      *pgxpool.Pool
	table     string
	dimension int
}

// postgresMigrations returns the schema statements for one table. Each
// version is a list of statements run in order.
func postgresMigrations(table string, dimension int) []struct {
	Version    string
	Statements []string
} {
	return []struct {
		Version    string
		Statements []string
	}{
		{
			Version: "1.0.0",
			Statements: []string{
				`CREATE EXTENSION IF NOT EXISTS vector`,
				fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
					element_id TEXT NOT NULL,
					version_tag TEXT NOT NULL DEFAULT '',
					text TEXT NOT NULL,
					file_path TEXT NOT NULL,
					language TEXT NOT NULL,
					kind TEXT NOT NULL,
					name TEXT NOT NULL,
					qualified_name TEXT NOT NULL,
					signature TEXT NOT NULL DEFAULT '',
					hierarchy_path TEXT[] NOT NULL DEFAULT '{}',
					hierarchy_key TEXT NOT NULL DEFAULT '',
					content_hash TEXT NOT NULL,
					record_hash TEXT NOT NULL,
					git_sha TEXT NOT NULL DEFAULT '',
					updated_at TIMESTAMPTZ NOT NULL,
					embedding vector(%d) NOT NULL,
					PRIMARY KEY (element_id, version_tag)
				)`, table, dimension),
				fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_tag_idx ON %s (version_tag)`, table, table),
				fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_file_idx ON %s (file_path)`, table, table),
				fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_hierarchy_idx ON %s (hierarchy_key text_pattern_ops)`, table, table),
				fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_embedding_idx ON %s USING hnsw (embedding vector_cosine_ops)`, table, table),
			},
		},
		{
			Version: "1.1.0",
			Statements: []string{
				fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_fts_idx ON %s USING gin (to_tsvector('simple', text || ' ' || qualified_name))`, table, table),
			},
		},
	}
}

// NewPostgresStore connects to dsn and migrates the record table
func NewPostgresStore(ctx context.Context, dsn, table string, dimension int) (*PostgresStore, error) {
	if dsn == "" {
		return nil, errors.New("postgres store requires a DSN")
	}
	if table == "" {
		table = DefaultPostgresTable
	}
	if !tableNameRe.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	if dimension <= 0 {
		return nil, fmt.Errorf("postgres store requires a positive embedding dimension, got %d", dimension)
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &PostgresStore{pool: pool, table: table, dimension: dimension}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	versionTable := s.table + "_schema_version"
	if _, err := s.pool.Exec(ctx, fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %s (version TEXT PRIMARY KEY, applied_at TIMESTAMPTZ NOT NULL DEFAULT now())`,
		versionTable)); err != nil {
		return err
	}

	rows, err := s.pool.Query(ctx, fmt.Sprintf(`SELECT version FROM %s`, versionTable))
	if err != nil {
		return err
	}
	applied, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return err
	}

	migrations := postgresMigrations(s.table, s.dimension)
	all := make([]Migration, len(migrations))
	byVersion := make(map[string][]string, len(migrations))
	for i, m := range migrations {
		all[i] = Migration{Version: m.Version}
		byVersion[m.Version] = m.Statements
	}

	current := ""
	if len(applied) > 0 {
		current = newestVersion(applied)
	}
	pending, err := PendingMigrations(current, all)
	if err != nil {
		return err
	}

	for _, m := range pending {
		tx, err := s.pool.Begin(ctx)
		if err != nil {
			return err
		}
		for _, stmt := range byVersion[m.Version] {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				_ = tx.Rollback(ctx)
				return fmt.Errorf("migration %s: %w", m.Version, err)
			}
		}
		if _, err := tx.Exec(ctx, fmt.Sprintf(`INSERT INTO %s (version) VALUES ($1)`, versionTable), m.Version); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("failed to record migration %s: %w", m.Version, err)
		}
		if err := tx.Commit(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the connection pool
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) Upsert(ctx context.Context, rec *types.IndexRecord, vector []float32) error {
	if err := validateUpsert(rec, vector); err != nil {
		return err
	}
	if len(vector) != s.dimension {
		return fmt.Errorf("%w: got %d, store holds %d", ErrDimensionMismatch, len(vector), s.dimension)
	}
	hierarchy := rec.HierarchyPath
	if hierarchy == nil {
		hierarchy = []string{}
	}

	_, err := s.pool.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (element_id, version_tag, text, file_path, language, kind, name,
			qualified_name, signature, hierarchy_path, hierarchy_key, content_hash, record_hash, git_sha, updated_at, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (element_id, version_tag) DO UPDATE SET
			text = EXCLUDED.text,
			file_path = EXCLUDED.file_path,
			language = EXCLUDED.language,
			kind = EXCLUDED.kind,
			name = EXCLUDED.name,
			qualified_name = EXCLUDED.qualified_name,
			signature = EXCLUDED.signature,
			hierarchy_path = EXCLUDED.hierarchy_path,
			hierarchy_key = EXCLUDED.hierarchy_key,
			content_hash = EXCLUDED.content_hash,
			record_hash = EXCLUDED.record_hash,
			git_sha = EXCLUDED.git_sha,
			updated_at = EXCLUDED.updated_at,
			embedding = EXCLUDED.embedding
	`, s.table),
		rec.ElementID, rec.VersionTag, rec.Text, rec.FilePath, rec.Language, string(rec.Kind), rec.Name,
		rec.QualifiedName, rec.Signature, hierarchy, hierarchyKey(rec.HierarchyPath),
		rec.ContentHash, rec.RecordHash, rec.GitSHA, rec.UpdatedAt.UTC(), pgvector.NewVector(vector))
	if err != nil {
		return fmt.Errorf("failed to upsert record: %w", err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, filter types.Filter) (int, error) {
	if filter.IsEmpty() {
		return 0, ErrEmptyFilter
	}
	b := newFilterBuilder(postgresDialect, "").apply(filter)
	tag, err := s.pool.Exec(ctx, "DELETE FROM "+s.table+b.where(), b.args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete records: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) ExistsWithHash(ctx context.Context, key types.RecordKey, hash string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, fmt.Sprintf(
		`SELECT EXISTS (SELECT 1 FROM %s WHERE element_id = $1 AND version_tag = $2 AND record_hash = $3)`, s.table),
		key.ElementID, key.VersionTag, hash).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check record hash: %w", err)
	}
	return exists, nil
}

const pgRecordColumns = `element_id, version_tag, text, file_path, language, kind, name,
	qualified_name, signature, hierarchy_path, content_hash, record_hash, git_sha, updated_at`

func scanPgRecord(row pgx.Row, extra ...any) (*types.IndexRecord, error) {
	var rec types.IndexRecord
	var kind string
	var updated time.Time
	dest := append([]any{
		&rec.ElementID, &rec.VersionTag, &rec.Text, &rec.FilePath, &rec.Language, &kind, &rec.Name,
		&rec.QualifiedName, &rec.Signature, &rec.HierarchyPath, &rec.ContentHash, &rec.RecordHash, &rec.GitSHA, &updated,
	}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	rec.Kind = types.ElementKind(kind)
	rec.UpdatedAt = updated.UTC()
	if len(rec.HierarchyPath) == 0 {
		rec.HierarchyPath = nil
	}
	return &rec, nil
}

func (s *PostgresStore) Get(ctx context.Context, key types.RecordKey) (*types.IndexRecord, error) {
	row := s.pool.QueryRow(ctx, fmt.Sprintf(
		`SELECT %s FROM %s WHERE element_id = $1 AND version_tag = $2`, pgRecordColumns, s.table),
		key.ElementID, key.VersionTag)
	rec, err := scanPgRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) Query(ctx context.Context, filter types.Filter, limit int) ([]*types.IndexRecord, error) {
	b := newFilterBuilder(postgresDialect, "").apply(filter)
	query := "SELECT " + pgRecordColumns + " FROM " + s.table + b.where() +
		" ORDER BY file_path, qualified_name, element_id, version_tag"
	if limit > 0 {
		query += " LIMIT " + b.arg(limit)
	}
	return s.collect(ctx, query, b.args, nil)
}

// Search orders by cosine distance in the database
func (s *PostgresStore) Search(ctx context.Context, vector []float32, filter types.Filter, limit int) ([]Match, error) {
	if len(vector) != s.dimension {
		return nil, fmt.Errorf("%w: got %d, store holds %d", ErrDimensionMismatch, len(vector), s.dimension)
	}
	b := newFilterBuilder(postgresDialect, "")
	q := b.arg(pgvector.NewVector(vector))
	b.apply(filter)
	query := fmt.Sprintf("SELECT %s, 1 - (embedding <=> %s) AS score FROM %s%s ORDER BY embedding <=> %s, element_id, version_tag",
		pgRecordColumns, q, s.table, b.where(), q)
	if limit > 0 {
		query += " LIMIT " + b.arg(limit)
	}

	var matches []Match
	_, err := s.collect(ctx, query, b.args, func(rec *types.IndexRecord, score float64) {
		matches = append(matches, Match{Record: rec, Score: score})
	})
	return matches, err
}

// SearchText ranks records with PostgreSQL full-text search. ts_rank is
// squashed into (0, 1).
func (s *PostgresStore) SearchText(ctx context.Context, query string, filter types.Filter, limit int) ([]Match, error) {
	words := ftsTokenRe.FindAllString(query, -1)
	if len(words) == 0 {
		return nil, nil
	}
	tsquery := ""
	for i, w := range words {
		if i > 0 {
			tsquery += " | "
		}
		tsquery += w
	}

	b := newFilterBuilder(postgresDialect, "")
	q := b.arg(tsquery)
	doc := "to_tsvector('simple', text || ' ' || qualified_name)"
	b.cond(doc + " @@ to_tsquery('simple', " + q + ")")
	b.apply(filter)
	sqlQuery := fmt.Sprintf("SELECT %s, ts_rank(%s, to_tsquery('simple', %s)) AS score FROM %s%s ORDER BY score DESC, element_id, version_tag",
		pgRecordColumns, doc, q, s.table, b.where())
	if limit > 0 {
		sqlQuery += " LIMIT " + b.arg(limit)
	}

	var matches []Match
	_, err := s.collect(ctx, sqlQuery, b.args, func(rec *types.IndexRecord, score float64) {
		matches = append(matches, Match{Record: rec, Score: score / (1 + score)})
	})
	return matches, err
}

// collect runs a record query. With a score callback the query must select
// one extra float column after the record columns.
func (s *PostgresStore) collect(ctx context.Context, query string, args []any, scored func(*types.IndexRecord, float64)) ([]*types.IndexRecord, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var out []*types.IndexRecord
	for rows.Next() {
		var score float64
		var extra []any
		if scored != nil {
			extra = append(extra, &score)
		}
		rec, err := scanPgRecord(rows, extra...)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		if scored != nil {
			scored(rec, score)
		} else {
			out = append(out, rec)
		}
	}
	return out, rows.Err()
}

func (s *PostgresStore) Stats(ctx context.Context) (*Stats, error) {
	stats := newStats(TypePostgres)
	rows, err := s.pool.Query(ctx, fmt.Sprintf(
		`SELECT version_tag, language, kind, COUNT(*), MAX(updated_at) FROM %s GROUP BY version_tag, language, kind`, s.table))
	if err != nil {
		return nil, fmt.Errorf("failed to count records: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var tag, lang, kind string
		var n int
		var last time.Time
		if err := rows.Scan(&tag, &lang, &kind, &n, &last); err != nil {
			return nil, err
		}
		stats.Records += n
		stats.ByTag[tag] += n
		stats.ByLanguage[lang] += n
		stats.ByKind[kind] += n
		if last.After(stats.LastUpdated) {
			stats.LastUpdated = last.UTC()
		}
	}
	return stats, rows.Err()
}

// newestVersion picks the highest semantic version from a list
func newestVersion(versions []string) string {
	pending, err := PendingMigrations("", versionsToMigrations(versions))
	if err != nil || len(pending) == 0 {
		return ""
	}
	return pending[len(pending)-1].Version
}

func versionsToMigrations(versions []string) []Migration {
	out := make([]Migration, len(versions))
	for i, v := range versions {
		out[i] = Migration{Version: v}
	}
	return out
}
