//go:build !sqlite_cgo

package storage

// Default build: a pure Go SQLite implementation, no C compiler required.
// FTS5 is compiled in.
//
// Driver used: modernc.org/sqlite

import (
	_ "modernc.org/sqlite"
)

const (
	// DriverName is the SQLite driver to use
	DriverName = "sqlite"

	// BuildMode describes the current build configuration
	BuildMode = "purego"
)
