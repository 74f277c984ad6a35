// Package mcp exposes a repository's documentation index as a Model Context
// Protocol server.
//
// The server speaks JSON-RPC 2.0 over stdin/stdout. Stdout carries protocol
// messages only; all logging goes to the configured slog handler, which the
// CLI points at stderr.
//
// # Tools
//
// sync_docs runs one indexing pass and returns the run summary:
//
//	{
//	  "mode": "sync",            // sync, init, doc-pr or update-db
//	  "version_tag": "v2",       // optional
//	  "freeze": false,           // never call the generator
//	  "from": "abc123",          // sync only, default last synced ref
//	  "to": "HEAD",              // sync only
//	  "worktree": false,         // sync only
//	  "sha": "def456"            // required for doc-pr
//	}
//
// Partial failures (one file failing to parse, one element failing to
// generate) are reported in the result with success=false. Invalid
// parameters and concurrent runs surface as protocol errors.
//
// search_docs searches stored documentation records:
//
//	{
//	  "query": "parse configuration file",
//	  "limit": 10,
//	  "search_mode": "hybrid",   // hybrid, vector or keyword
//	  "filters": {
//	    "version_tag": "v2",     // omit to search every tag
//	    "language": "python",
//	    "kind": "function",
//	    "file_path": "pkg/config.py",
//	    "hierarchy_prefix": ["config"],
//	    "min_relevance": 0.3
//	  }
//	}
//
// get_status reports per-tag sync state, the last run and store statistics.
//
// # Errors
//
//	-32602  invalid parameters
//	-32603  internal error
//	-32002  another run holds the index lock
//	-32004  empty search query
package mcp
