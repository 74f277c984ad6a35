// Package storage persists index records and their embeddings.
//
// Every backend implements VectorStore. A record is keyed by element ID and
// version tag, so the same element can be indexed under several tags at once.
// Upsert replaces a record and its vector together. Delete and Query take a
// types.Filter whose zero fields match everything. Delete refuses an empty
// filter.
//
// # Backends
//
//   - sqlite: records and embeddings tables, FTS5 keyword index, cosine
//     ranking in Go over little-endian float32 blobs
//   - postgres: one table per index with a pgvector column, cosine distance
//     computed in the database
//   - memory: maps guarded by a RWMutex, for dry runs and tests
//
// Open picks a backend from Config:
//
//	store, err := storage.Open(ctx, storage.Config{Type: "sqlite", Path: ".docsync/index.db"})
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	ok, err := store.ExistsWithHash(ctx, rec.Key(), rec.RecordHash)
//	if err == nil && !ok {
//	    err = store.Upsert(ctx, rec, vector)
//	}
//
// # Hierarchy filters
//
// Filter.HierarchyPrefix matches whole path segments. SQL backends store an
// encoded hierarchy_key in which every segment is terminated, so a string
// prefix test on the key is a segment prefix test on the path.
//
// # Migrations
//
// Schemas are versioned with semantic versions. SQLite tracks them in
// schema_version; Postgres in <table>_schema_version. Pending migrations run
// on open.
//
// # Build Tags
//
// The SQLite driver is chosen at build time:
//
//	go build                    # modernc.org/sqlite, no C compiler needed
//	go build -tags sqlite_cgo   # github.com/mattn/go-sqlite3, requires CGO
//
// The cgo build needs the fts5 tag as well for keyword search:
//
//	CGO_ENABLED=1 go build -tags "sqlite_cgo sqlite_fts5"
package storage
