package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Masterminds/semver/v3"
)

const (
	// CurrentSchemaVersion tracks the SQLite schema version
	CurrentSchemaVersion = "1.1.0"
)

// Migration represents a database schema migration
type Migration struct {
	Version string
	Up      string
	Down    string
}

// AllMigrations contains all SQLite migrations in order
var AllMigrations = []Migration{
	{
		Version: "1.0.0",
		Up:      migrationV1Up,
		Down:    migrationV1Down,
	},
	{
		Version: "1.1.0",
		Up:      migrationV11Up,
		Down:    migrationV11Down,
	},
}

const migrationV1Up = `
-- Schema version tracking
CREATE TABLE IF NOT EXISTS schema_version (
    version TEXT PRIMARY KEY,
    applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

-- One row per (element, version tag)
CREATE TABLE IF NOT EXISTS records (
    element_id TEXT NOT NULL,
    version_tag TEXT NOT NULL DEFAULT '',
    text TEXT NOT NULL,
    file_path TEXT NOT NULL,
    language TEXT NOT NULL,
    kind TEXT NOT NULL,
    name TEXT NOT NULL,
    qualified_name TEXT NOT NULL,
    signature TEXT NOT NULL DEFAULT '',
    hierarchy_path TEXT NOT NULL DEFAULT '[]',
    hierarchy_key TEXT NOT NULL DEFAULT '',
    content_hash TEXT NOT NULL,
    record_hash TEXT NOT NULL,
    git_sha TEXT NOT NULL DEFAULT '',
    updated_at TEXT NOT NULL,
    PRIMARY KEY (element_id, version_tag)
);

CREATE INDEX IF NOT EXISTS idx_records_tag ON records(version_tag);
CREATE INDEX IF NOT EXISTS idx_records_file ON records(file_path);
CREATE INDEX IF NOT EXISTS idx_records_lang_kind ON records(language, kind);
CREATE INDEX IF NOT EXISTS idx_records_hierarchy ON records(hierarchy_key);

-- Embeddings, replaced together with their record
CREATE TABLE IF NOT EXISTS embeddings (
    element_id TEXT NOT NULL,
    version_tag TEXT NOT NULL,
    vector BLOB NOT NULL,
    dimension INTEGER NOT NULL,
    PRIMARY KEY (element_id, version_tag),
    FOREIGN KEY (element_id, version_tag) REFERENCES records(element_id, version_tag) ON DELETE CASCADE
);
`

const migrationV1Down = `
DROP TABLE IF EXISTS embeddings;
DROP TABLE IF EXISTS records;
DROP TABLE IF EXISTS schema_version;
`

const migrationV11Up = `
-- Full-text search on record text
CREATE VIRTUAL TABLE IF NOT EXISTS records_fts USING fts5(
    text, qualified_name, signature,
    content='records',
    content_rowid='rowid'
);

INSERT INTO records_fts(rowid, text, qualified_name, signature)
SELECT rowid, text, qualified_name, signature FROM records;

-- Triggers to keep FTS in sync
CREATE TRIGGER IF NOT EXISTS records_ai AFTER INSERT ON records BEGIN
    INSERT INTO records_fts(rowid, text, qualified_name, signature)
    VALUES (new.rowid, new.text, new.qualified_name, new.signature);
END;

CREATE TRIGGER IF NOT EXISTS records_ad AFTER DELETE ON records BEGIN
    INSERT INTO records_fts(records_fts, rowid, text, qualified_name, signature)
    VALUES ('delete', old.rowid, old.text, old.qualified_name, old.signature);
END;

CREATE TRIGGER IF NOT EXISTS records_au AFTER UPDATE ON records BEGIN
    INSERT INTO records_fts(records_fts, rowid, text, qualified_name, signature)
    VALUES ('delete', old.rowid, old.text, old.qualified_name, old.signature);
    INSERT INTO records_fts(rowid, text, qualified_name, signature)
    VALUES (new.rowid, new.text, new.qualified_name, new.signature);
END;
`

const migrationV11Down = `
DROP TRIGGER IF EXISTS records_au;
DROP TRIGGER IF EXISTS records_ad;
DROP TRIGGER IF EXISTS records_ai;
DROP TABLE IF EXISTS records_fts;
`

// PendingMigrations returns the migrations newer than current, in order.
// An empty current version means nothing has been applied.
func PendingMigrations(current string, all []Migration) ([]Migration, error) {
	if current == "" {
		current = "0.0.0"
	}
	currentVersion, err := semver.NewVersion(current)
	if err != nil {
		return nil, fmt.Errorf("invalid current schema version %s: %w", current, err)
	}

	var pending []Migration
	for _, migration := range all {
		migrationVersion, err := semver.NewVersion(migration.Version)
		if err != nil {
			return nil, fmt.Errorf("invalid migration version %s: %w", migration.Version, err)
		}
		if !currentVersion.LessThan(migrationVersion) {
			continue // Already applied
		}
		pending = append(pending, migration)
		currentVersion = migrationVersion
	}
	return pending, nil
}

// SchemaVersion returns the newest applied migration, or "" for a fresh database
func SchemaVersion(ctx context.Context, db *sql.DB) (string, error) {
	var tableName string
	err := db.QueryRowContext(ctx, "SELECT name FROM sqlite_master WHERE type='table' AND name='schema_version'").Scan(&tableName)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to check schema_version table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_version")
	if err != nil {
		return "", fmt.Errorf("failed to read schema_version: %w", err)
	}
	defer func() { _ = rows.Close() }()

	// applied_at has second resolution, so order by semver instead
	var newest *semver.Version
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return "", err
		}
		parsed, err := semver.NewVersion(v)
		if err != nil {
			return "", fmt.Errorf("invalid schema version %s: %w", v, err)
		}
		if newest == nil || parsed.GreaterThan(newest) {
			newest = parsed
		}
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	if newest == nil {
		return "", nil
	}
	return newest.Original(), nil
}

// ApplyMigrations runs all pending migrations
func ApplyMigrations(ctx context.Context, db *sql.DB) error {
	current, err := SchemaVersion(ctx, db)
	if err != nil {
		return err
	}
	pending, err := PendingMigrations(current, AllMigrations)
	if err != nil {
		return err
	}

	for _, migration := range pending {
		if _, err := db.ExecContext(ctx, migration.Up); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", migration.Version, err)
		}
		if _, err := db.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", migration.Version); err != nil {
			return fmt.Errorf("failed to record migration %s: %w", migration.Version, err)
		}
	}

	return nil
}

// RollbackMigration rolls back the most recent migration
func RollbackMigration(ctx context.Context, db *sql.DB) error {
	currentVersion, err := SchemaVersion(ctx, db)
	if err != nil {
		return err
	}
	if currentVersion == "" {
		return errors.New("no migrations to rollback")
	}

	var migration *Migration
	for i := range AllMigrations {
		if AllMigrations[i].Version == currentVersion {
			migration = &AllMigrations[i]
			break
		}
	}

	if migration == nil {
		return fmt.Errorf("migration %s not found", currentVersion)
	}

	// The first migration drops schema_version itself
	if currentVersion != AllMigrations[0].Version {
		if _, err := db.ExecContext(ctx, "DELETE FROM schema_version WHERE version = ?", currentVersion); err != nil {
			return fmt.Errorf("failed to remove migration record %s: %w", currentVersion, err)
		}
	}

	if _, err := db.ExecContext(ctx, migration.Down); err != nil {
		return fmt.Errorf("failed to rollback migration %s: %w", currentVersion, err)
	}

	return nil
}
