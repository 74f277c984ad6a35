// Package indexer runs documentation syncs over a repository.
//
// A run discovers or diffs source files, parses them into an element model,
// reconciles each element's documentation against the index and applies the
// resulting upserts and deletes to the vector store.
//
// # Basic Usage
//
//	idx, err := indexer.Open(ctx, repoRoot, cfg, logger)
//	if err != nil {
//	    return err
//	}
//	defer idx.Close()
//
//	summary, err := idx.Sync(ctx, indexer.RunOptions{VersionTag: "v2"})
//	fmt.Println(summary)
//
// # Modes
//
//   - Init: full pass over the source paths, pruning records of elements
//     that no longer exist
//   - Sync: incremental pass over the git diff between two refs, defaulting
//     to the last synced ref and HEAD
//   - DocPR: Sync over a single commit
//   - UpdateDB: full pass in freeze mode, harvesting existing docs only
//
// # Run State
//
// Each version tag keeps its last synced ref and the files that failed in
// <repo>/.docsync/state.json. Failed files are fed back into the next
// incremental run. The last ref only advances when a run completes; a
// cancelled run leaves it in place so the next run picks up what was
// missed.
//
// # Discovery
//
// Files are taken from the configured source paths. .gitignore,
// .docsyncignore and the configured patterns exclude files, as do hidden
// directories and vendored code detected by go-enry.
//
// # Concurrency
//
// One run at a time per Indexer; a second call returns
// ErrIndexingInProgress. Parsing, generation and store writes each fan out
// on bounded worker pools.
package indexer
