package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dshills/docsync/pkg/types"
)

// SQLiteStore implements VectorStore on SQLite. Vectors are stored as
// little-endian float32 blobs and ranked in Go.
type SQLiteStore struct {
	db *sql.DB
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite benefits from single writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// NewSQLiteStore opens (or creates) the database at dbPath and migrates it
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ApplyMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const recordColumns = `element_id, version_tag, text, file_path, language, kind, name,
	qualified_name, signature, hierarchy_path, content_hash, record_hash, git_sha, updated_at`

// rowScanner is implemented by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

// scanRecord reads the recordColumns, followed by any extra columns
func scanRecord(row rowScanner, extra ...any) (*types.IndexRecord, error) {
	var rec types.IndexRecord
	var kind, path, updated string
	dest := append([]any{
		&rec.ElementID, &rec.VersionTag, &rec.Text, &rec.FilePath, &rec.Language, &kind, &rec.Name,
		&rec.QualifiedName, &rec.Signature, &path, &rec.ContentHash, &rec.RecordHash, &rec.GitSHA, &updated,
	}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	rec.Kind = types.ElementKind(kind)
	if err := json.Unmarshal([]byte(path), &rec.HierarchyPath); err != nil {
		return nil, fmt.Errorf("invalid hierarchy path for %s: %w", rec.ElementID, err)
	}
	if len(rec.HierarchyPath) == 0 {
		rec.HierarchyPath = nil
	}
	rec.UpdatedAt = parseTimestamp(updated)
	return &rec, nil
}

// Upsert writes a record and its vector in one transaction
func (s *SQLiteStore) Upsert(ctx context.Context, rec *types.IndexRecord, vector []float32) error {
	if err := validateUpsert(rec, vector); err != nil {
		return err
	}
	hierarchy := rec.HierarchyPath
	if hierarchy == nil {
		hierarchy = []string{}
	}
	path, err := json.Marshal(hierarchy)
	if err != nil {
		return fmt.Errorf("failed to encode hierarchy path: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO records (element_id, version_tag, text, file_path, language, kind, name,
			qualified_name, signature, hierarchy_path, hierarchy_key, content_hash, record_hash, git_sha, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(element_id, version_tag) DO UPDATE SET
			text = excluded.text,
			file_path = excluded.file_path,
			language = excluded.language,
			kind = excluded.kind,
			name = excluded.name,
			qualified_name = excluded.qualified_name,
			signature = excluded.signature,
			hierarchy_path = excluded.hierarchy_path,
			hierarchy_key = excluded.hierarchy_key,
			content_hash = excluded.content_hash,
			record_hash = excluded.record_hash,
			git_sha = excluded.git_sha,
			updated_at = excluded.updated_at
	`,
		rec.ElementID, rec.VersionTag, rec.Text, rec.FilePath, rec.Language, string(rec.Kind), rec.Name,
		rec.QualifiedName, rec.Signature, string(path), hierarchyKey(rec.HierarchyPath),
		rec.ContentHash, rec.RecordHash, rec.GitSHA, formatTimestamp(rec.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to upsert record: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO embeddings (element_id, version_tag, vector, dimension)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(element_id, version_tag) DO UPDATE SET
			vector = excluded.vector,
			dimension = excluded.dimension
	`, rec.ElementID, rec.VersionTag, serializeVector(vector), len(vector))
	if err != nil {
		return fmt.Errorf("failed to upsert embedding: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit upsert: %w", err)
	}
	return nil
}

// Delete removes the records matching filter. Embeddings cascade.
func (s *SQLiteStore) Delete(ctx context.Context, filter types.Filter) (int, error) {
	if filter.IsEmpty() {
		return 0, ErrEmptyFilter
	}
	b := newFilterBuilder(sqliteDialect, "").apply(filter)
	result, err := s.db.ExecContext(ctx, "DELETE FROM records"+b.where(), b.args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete records: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (s *SQLiteStore) ExistsWithHash(ctx context.Context, key types.RecordKey, hash string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		"SELECT 1 FROM records WHERE element_id = ? AND version_tag = ? AND record_hash = ?",
		key.ElementID, key.VersionTag, hash).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check record hash: %w", err)
	}
	return true, nil
}

func (s *SQLiteStore) Get(ctx context.Context, key types.RecordKey) (*types.IndexRecord, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+recordColumns+" FROM records WHERE element_id = ? AND version_tag = ?",
		key.ElementID, key.VersionTag)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	return rec, nil
}

func (s *SQLiteStore) Query(ctx context.Context, filter types.Filter, limit int) ([]*types.IndexRecord, error) {
	b := newFilterBuilder(sqliteDialect, "").apply(filter)
	query := "SELECT " + recordColumns + " FROM records" + b.where() +
		" ORDER BY file_path, qualified_name, element_id, version_tag"
	if limit > 0 {
		query += " LIMIT " + b.arg(limit)
	}

	rows, err := s.db.QueryContext(ctx, query, b.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*types.IndexRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Search ranks the filtered records by cosine similarity to vector
func (s *SQLiteStore) Search(ctx context.Context, vector []float32, filter types.Filter, limit int) ([]Match, error) {
	b := newFilterBuilder(sqliteDialect, "r").apply(filter)
	b.cond("e.dimension = " + b.arg(len(vector)))
	query := "SELECT " + prefixed("r", recordColumns) + ", e.vector FROM records r" +
		" INNER JOIN embeddings e ON e.element_id = r.element_id AND e.version_tag = r.version_tag" +
		b.where()

	rows, err := s.db.QueryContext(ctx, query, b.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query embeddings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var matches []Match
	for rows.Next() {
		var blob []byte
		rec, err := scanRecord(rows, &blob)
		if err != nil {
			return nil, fmt.Errorf("failed to scan embedding: %w", err)
		}
		matches = append(matches, Match{Record: rec, Score: cosineSimilarity(vector, deserializeVector(blob))})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sortMatches(matches)
	return truncateMatches(matches, limit), nil
}

// SearchText runs a BM25 full-text search over record text, qualified name
// and signature
func (s *SQLiteStore) SearchText(ctx context.Context, query string, filter types.Filter, limit int) ([]Match, error) {
	match := sanitizeFTSQuery(query)
	if match == "" {
		return nil, nil
	}

	b := newFilterBuilder(sqliteDialect, "r")
	b.cond("records_fts MATCH " + b.arg(match))
	b.apply(filter)

	sqlQuery := "SELECT " + prefixed("r", recordColumns) + ", bm25(records_fts) AS score" +
		" FROM records_fts INNER JOIN records r ON r.rowid = records_fts.rowid" +
		b.where() + " ORDER BY score"
	if limit > 0 {
		sqlQuery += " LIMIT " + b.arg(limit)
	}

	rows, err := s.db.QueryContext(ctx, sqlQuery, b.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute FTS search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var matches []Match
	for rows.Next() {
		var score float64
		rec, err := scanRecord(rows, &score)
		if err != nil {
			return nil, fmt.Errorf("failed to scan FTS result: %w", err)
		}
		matches = append(matches, Match{Record: rec, Score: normalizeBM25(score)})
	}
	return matches, rows.Err()
}

func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	stats := newStats(TypeSQLite + "/" + BuildMode)

	rows, err := s.db.QueryContext(ctx,
		"SELECT version_tag, language, kind, COUNT(*), MAX(updated_at) FROM records GROUP BY version_tag, language, kind")
	if err != nil {
		return nil, fmt.Errorf("failed to count records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var tag, lang, kind, last string
		var n int
		if err := rows.Scan(&tag, &lang, &kind, &n, &last); err != nil {
			return nil, err
		}
		stats.Records += n
		stats.ByTag[tag] += n
		stats.ByLanguage[lang] += n
		stats.ByKind[kind] += n
		if t := parseTimestamp(last); t.After(stats.LastUpdated) {
			stats.LastUpdated = t
		}
	}
	return stats, rows.Err()
}
