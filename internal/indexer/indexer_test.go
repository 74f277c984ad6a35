package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/docsync/internal/chunker"
	"github.com/dshills/docsync/internal/config"
	"github.com/dshills/docsync/internal/embedder"
	"github.com/dshills/docsync/internal/generator"
	"github.com/dshills/docsync/internal/logger"
	"github.com/dshills/docsync/internal/searcher"
	"github.com/dshills/docsync/internal/storage"
	"github.com/dshills/docsync/pkg/types"
)

const (
	fOriginal   = "def f(x):\n    return x + 1\n"
	fWhitespace = "def f(x):\n    return x+1\n"
	fLogic      = "def f(x):\n    return x * 2\n"
)

// fixture is a git repository with an indexer over a memory store
type fixture struct {
	t     *testing.T
	dir   string
	repo  *git.Repository
	wt    *git.Worktree
	store *storage.MemoryStore
	gen   *generator.Mock
	cfg   *config.Config
	idx   *Indexer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	wt, err := repo.Worktree()
	require.NoError(t, err)

	var n atomic.Int32
	cfg := config.Default()
	cfg.LLM.RateLimit.RequestsPerSecond = 0
	cfg.Parse.Workers = 2

	f := &fixture{
		t:     t,
		dir:   dir,
		repo:  repo,
		wt:    wt,
		store: storage.NewMemoryStore(),
		cfg:   cfg,
		gen: &generator.Mock{Func: func(req generator.Request) (string, error) {
			return fmt.Sprintf("doc %d for %s", n.Add(1), req.Element.QualifiedName), nil
		}},
	}
	f.write(".gitignore", "build/\n.docsync/\n")
	return f
}

// indexer opens the indexer lazily so tests can commit first
func (f *fixture) indexer() *Indexer {
	f.t.Helper()
	if f.idx != nil {
		return f.idx
	}
	emb, err := embedder.NewLocalProvider(32, nil)
	require.NoError(f.t, err)
	f.idx, err = New(f.dir, f.cfg, f.store, emb, f.gen,
		WithLogger(logger.Discard()),
		WithCounter(chunker.NewEstimator()),
	)
	require.NoError(f.t, err)
	return f.idx
}

func (f *fixture) write(path, content string) {
	f.t.Helper()
	full := filepath.Join(f.dir, path)
	require.NoError(f.t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(f.t, os.WriteFile(full, []byte(content), 0o644))
}

func (f *fixture) remove(path string) {
	f.t.Helper()
	require.NoError(f.t, os.Remove(filepath.Join(f.dir, path)))
}

func (f *fixture) commit(msg string) string {
	f.t.Helper()
	require.NoError(f.t, f.wt.AddWithOptions(&git.AddOptions{All: true}))
	hash, err := f.wt.Commit(msg, &git.CommitOptions{
		All:    true,
		Author: &object.Signature{Name: "Test", Email: "test@example.com", When: time.Now()},
	})
	require.NoError(f.t, err)
	return hash.String()
}

// function returns the stored record of the function in path, or nil
func (f *fixture) function(path, tag string) *types.IndexRecord {
	f.t.Helper()
	recs, err := f.store.Query(context.Background(), types.Filter{
		FilePath:   path,
		Kind:       types.KindFunction,
		VersionTag: types.Tag(tag),
	}, 0)
	require.NoError(f.t, err)
	require.LessOrEqual(f.t, len(recs), 1)
	if len(recs) == 0 {
		return nil
	}
	return recs[0]
}

func (f *fixture) records(tag string) int {
	f.t.Helper()
	recs, err := f.store.Query(context.Background(), types.Filter{VersionTag: types.Tag(tag)}, 0)
	require.NoError(f.t, err)
	return len(recs)
}

// recordsUnder counts the stored records of one file
func (f *fixture) recordsUnder(path, tag string) int {
	f.t.Helper()
	recs, err := f.store.Query(context.Background(), types.Filter{FilePath: path, VersionTag: types.Tag(tag)}, 0)
	require.NoError(f.t, err)
	return len(recs)
}

func TestScenario_APy(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.write("a.py", fOriginal)
	f.commit("add a.py")
	idx := f.indexer()

	summary, err := idx.Init(ctx, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Generated, "module and function")
	assert.Equal(t, 2, summary.UpsertsWritten)
	assert.False(t, summary.HasFailures())
	rec := f.function("a.py", "")
	require.NotNil(t, rec)
	original := *rec

	// Whitespace only
	f.write("a.py", fWhitespace)
	f.commit("reformat")
	f.gen.Reset()
	summary, err = idx.Sync(ctx, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, f.gen.CallCount())
	assert.Equal(t, 0, summary.UpsertsWritten)
	rec = f.function("a.py", "")
	require.NotNil(t, rec)
	assert.Equal(t, original.ContentHash, rec.ContentHash)
	assert.Equal(t, original.Text, rec.Text)

	// Logic change
	f.write("a.py", fLogic)
	f.commit("change logic")
	summary, err = idx.Sync(ctx, RunOptions{})
	require.NoError(t, err)
	require.Equal(t, 1, f.gen.CallCount())
	assert.Equal(t, types.KindFunction, f.gen.Calls()[0].Element.Kind)
	assert.Equal(t, original.Text, f.gen.Calls()[0].PriorDoc)
	assert.Equal(t, 1, summary.Refreshed)
	assert.Equal(t, 1, summary.UpsertsWritten)
	rec = f.function("a.py", "")
	require.NotNil(t, rec)
	assert.Equal(t, original.ElementID, rec.ElementID)
	assert.NotEqual(t, original.Text, rec.Text)
	assert.NotEqual(t, original.ContentHash, rec.ContentHash)

	// Delete
	f.remove("a.py")
	f.commit("delete a.py")
	f.gen.Reset()
	summary, err = idx.Sync(ctx, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, f.gen.CallCount())
	assert.Equal(t, 2, summary.Removed)
	assert.Equal(t, 2, summary.Deletes)
	assert.Nil(t, f.function("a.py", ""))
	assert.Equal(t, 0, f.records(""))
}

func TestInit_Idempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.write("a.py", fOriginal)
	f.write("pkg/b.py", "class B:\n    def m(self):\n        pass\n")
	f.commit("init")
	idx := f.indexer()

	first, err := idx.Init(ctx, RunOptions{})
	require.NoError(t, err)
	assert.Positive(t, first.UpsertsWritten)

	f.gen.Reset()
	second, err := idx.Init(ctx, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, f.gen.CallCount())
	assert.Equal(t, 0, second.UpsertsWritten)
	assert.Equal(t, 0, second.Deletes)
	assert.Equal(t, first.UpsertsWritten, second.UpsertsSkipped)

	third, err := idx.Sync(ctx, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, third.UpsertsWritten+third.UpsertsSkipped+third.Deletes)
}

func TestInit_PreservesHandWrittenDocs(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.write("a.py", `"""Module doc."""


def f(x):
    """Add one to x."""
    return x + 1
`)
	f.commit("init")

	summary, err := f.indexer().Init(ctx, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, f.gen.CallCount())
	assert.Equal(t, 2, summary.Preserved)
	rec := f.function("a.py", "")
	require.NotNil(t, rec)
	assert.Contains(t, rec.Text, "Add one to x.")
}

func TestUpdateDB_FreezeNeverGenerates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.write("a.py", "def documented():\n    \"\"\"Has a doc.\"\"\"\n    return 1\n\n\ndef bare():\n    return 2\n")
	f.commit("init")

	summary, err := f.indexer().UpdateDB(ctx, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, f.gen.CallCount())
	assert.Equal(t, 0, summary.Generated)
	assert.Equal(t, 3, summary.Extracted)
	assert.Equal(t, 1, summary.UpsertsWritten, "only the documented function has text")

	state, err := LoadState(filepath.Join(f.dir, config.StateDir, StateFile))
	require.NoError(t, err)
	assert.Equal(t, ModeUpdateDB, state.LastRun.Mode)
}

func TestVersionTagsCoexist(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.write("a.py", fOriginal)
	f.commit("init")
	idx := f.indexer()

	_, err := idx.Init(ctx, RunOptions{VersionTag: "v1"})
	require.NoError(t, err)
	_, err = idx.Init(ctx, RunOptions{VersionTag: "v2"})
	require.NoError(t, err)

	v1 := f.function("a.py", "v1")
	v2 := f.function("a.py", "v2")
	require.NotNil(t, v1)
	require.NotNil(t, v2)
	assert.Equal(t, v1.ElementID, v2.ElementID)

	// Removing the file under v1 leaves v2 intact
	f.remove("a.py")
	f.commit("delete")
	_, err = idx.Sync(ctx, RunOptions{VersionTag: "v1"})
	require.NoError(t, err)
	assert.Nil(t, f.function("a.py", "v1"))
	assert.NotNil(t, f.function("a.py", "v2"))

	state, err := LoadState(filepath.Join(f.dir, config.StateDir, StateFile))
	require.NoError(t, err)
	assert.Equal(t, []string{"v1", "v2"}, state.TagNames())
	assert.NotEqual(t, state.Tags["v1"].LastRef, state.Tags["v2"].LastRef)
}

func TestInit_PrunesRemovedElements(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.write("a.py", fOriginal)
	f.write("b.py", "def g():\n    return 0\n")
	f.commit("init")
	idx := f.indexer()

	_, err := idx.Init(ctx, RunOptions{})
	require.NoError(t, err)
	require.Equal(t, 4, f.records(""))

	f.remove("b.py")
	summary, err := idx.Init(ctx, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Removed)
	assert.Equal(t, 2, f.records(""))
	assert.Nil(t, f.function("b.py", ""))
}

func TestInit_ParseFailureKeepsRecords(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.write("a.py", fOriginal)
	f.commit("init")
	idx := f.indexer()

	_, err := idx.Init(ctx, RunOptions{})
	require.NoError(t, err)

	f.write("a.py", "def f(x):\n    return \"\"\"unterminated\n")
	summary, err := idx.Init(ctx, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.ParseErrors)
	assert.Equal(t, []string{"a.py"}, summary.FailedFiles)
	assert.Equal(t, 0, summary.Removed)
	assert.True(t, summary.HasFailures())
	assert.NotNil(t, f.function("a.py", ""))
}

func TestSync_RetriesFailedFiles(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.write("a.py", fOriginal)
	f.write("b.py", "def g():\n    return 0\n")
	f.commit("init")
	f.gen.Fail = map[string]error{"a.f": errors.New("model overloaded")}
	idx := f.indexer()

	summary, err := idx.Init(ctx, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, []string{"a.py"}, summary.FailedFiles)
	assert.Nil(t, f.function("a.py", ""))

	state, err := LoadState(filepath.Join(f.dir, config.StateDir, StateFile))
	require.NoError(t, err)
	assert.Equal(t, []string{"a.py"}, state.Tag("").FailedPaths)

	// Nothing changed in git, but a.py is retried
	f.gen.Fail = nil
	f.gen.Reset()
	summary, err = idx.Sync(ctx, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, f.gen.CallCount())
	assert.Equal(t, 1, summary.Generated)
	assert.NotNil(t, f.function("a.py", ""))
	assert.Empty(t, summary.FailedFiles)

	state, err = LoadState(filepath.Join(f.dir, config.StateDir, StateFile))
	require.NoError(t, err)
	assert.Empty(t, state.Tag("").FailedPaths)
}

func TestSync_DeletingUnparsableFileRemovesRecords(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.write("a.py", fOriginal)
	f.commit("add a.py")
	idx := f.indexer()

	_, err := idx.Init(ctx, RunOptions{})
	require.NoError(t, err)
	require.Equal(t, 2, f.recordsUnder("a.py", ""))

	f.write("a.py", "def f(x):\n    return \"\"\"unterminated\n")
	f.commit("break a.py")
	summary, err := idx.Sync(ctx, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.ParseErrors)
	assert.Equal(t, 2, f.recordsUnder("a.py", ""), "records of an unparsable file are kept")

	// The prior content does not parse either; the store knows what to drop
	f.remove("a.py")
	f.commit("delete a.py")
	summary, err = idx.Sync(ctx, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Removed)
	assert.Equal(t, 2, summary.Deletes)
	assert.Zero(t, f.recordsUnder("a.py", ""))
	assert.False(t, summary.HasFailures())
}

func TestSync_RenameLeavesNoRecordsUnderOldPath(t *testing.T) {
	const funcs = "def f(x):\n    return x + 1\n\n\ndef g(x):\n    return x - 1\n\n\n" +
		"def h(x):\n    return x * 3\n\n\ndef k(x):\n    return x // 4\n"

	t.Run("freeze without docs", func(t *testing.T) {
		ctx := context.Background()
		f := newFixture(t)
		f.write("a.py", fOriginal)
		f.commit("add a.py")
		idx := f.indexer()

		_, err := idx.Init(ctx, RunOptions{})
		require.NoError(t, err)
		require.Equal(t, 2, f.recordsUnder("a.py", ""))

		f.remove("a.py")
		f.write("b.py", fOriginal)
		f.commit("rename a.py")
		f.gen.Reset()
		summary, err := idx.Sync(ctx, RunOptions{Freeze: true})
		require.NoError(t, err)
		assert.Equal(t, 0, f.gen.CallCount())
		assert.Equal(t, 2, summary.Deletes)
		assert.Zero(t, f.recordsUnder("a.py", ""))
		assert.Zero(t, f.recordsUnder("b.py", ""), "freeze mode indexes documented elements only")
	})

	t.Run("generation failed", func(t *testing.T) {
		ctx := context.Background()
		f := newFixture(t)
		f.write("a.py", funcs)
		f.commit("add a.py")
		idx := f.indexer()

		_, err := idx.Init(ctx, RunOptions{})
		require.NoError(t, err)
		require.Equal(t, 5, f.recordsUnder("a.py", ""))

		f.remove("a.py")
		f.write("b.py", strings.Replace(funcs, "x + 1", "x * 2", 1))
		f.commit("rename a.py and change f")
		f.gen.Fail = map[string]error{"b.f": errors.New("model overloaded")}
		summary, err := idx.Sync(ctx, RunOptions{})
		require.NoError(t, err)
		assert.Equal(t, 1, summary.Failed)
		assert.Equal(t, []string{"b.py"}, summary.FailedFiles)
		assert.Zero(t, f.recordsUnder("a.py", ""))
		assert.Equal(t, 4, f.recordsUnder("b.py", ""))
	})
}

func TestSync_WorktreeAndIgnores(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.write("a.py", fOriginal)
	first := f.commit("init")
	idx := f.indexer()

	_, err := idx.Init(ctx, RunOptions{})
	require.NoError(t, err)

	f.write("c.py", "def h():\n    return 3\n")
	f.write("build/gen.py", "def generated():\n    return 4\n")
	f.write(".hidden/x.py", "def hidden():\n    return 5\n")

	summary, err := idx.Sync(ctx, RunOptions{Worktree: true})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Generated)
	assert.NotNil(t, f.function("c.py", ""))
	assert.Nil(t, f.function("build/gen.py", ""))
	assert.Nil(t, f.function(".hidden/x.py", ""))

	state, err := LoadState(filepath.Join(f.dir, config.StateDir, StateFile))
	require.NoError(t, err)
	assert.Equal(t, first, state.Tag("").LastRef, "worktree runs record HEAD")
}

func TestDocPR(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.write("a.py", fOriginal)
	root := f.commit("init")
	f.write("b.py", "def g():\n    return 0\n")
	second := f.commit("add b")
	idx := f.indexer()

	summary, err := idx.DocPR(ctx, second, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Generated, "only b.py is in the commit")
	assert.Nil(t, f.function("a.py", ""))
	assert.NotNil(t, f.function("b.py", ""))

	summary, err = idx.DocPR(ctx, root, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Generated, "root commit diffs against nothing")
	assert.NotNil(t, f.function("a.py", ""))

	state, err := LoadState(filepath.Join(f.dir, config.StateDir, StateFile))
	require.NoError(t, err)
	assert.Empty(t, state.Tag("").LastRef)

	_, err = idx.DocPR(ctx, "", RunOptions{})
	assert.Error(t, err)
	_, err = idx.DocPR(ctx, "no-such-ref", RunOptions{})
	assert.Error(t, err)
}

func TestRunLock(t *testing.T) {
	f := newFixture(t)
	f.write("a.py", fOriginal)
	f.commit("init")
	idx := f.indexer()

	require.True(t, idx.lock.TryAcquire())
	_, err := idx.Init(context.Background(), RunOptions{})
	assert.ErrorIs(t, err, ErrIndexingInProgress)
	_, err = idx.Sync(context.Background(), RunOptions{})
	assert.ErrorIs(t, err, ErrIndexingInProgress)

	st, err := idx.Status(context.Background())
	require.NoError(t, err)
	assert.True(t, st.Running)
	idx.lock.Release()

	_, err = idx.Init(context.Background(), RunOptions{})
	assert.NoError(t, err)
}

func TestCancelledRunKeepsLastRef(t *testing.T) {
	f := newFixture(t)
	f.write("a.py", fOriginal)
	f.commit("init")
	idx := f.indexer()

	_, err := idx.Init(context.Background(), RunOptions{})
	require.NoError(t, err)
	state, err := LoadState(filepath.Join(f.dir, config.StateDir, StateFile))
	require.NoError(t, err)
	lastRef := state.Tag("").LastRef

	f.write("a.py", fLogic)
	f.commit("change")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	summary, err := idx.Sync(ctx, RunOptions{})
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, summary)

	state, err = LoadState(filepath.Join(f.dir, config.StateDir, StateFile))
	require.NoError(t, err)
	assert.Equal(t, lastRef, state.Tag("").LastRef)
	assert.True(t, state.LastRun.Cancelled)
}

func TestSync_OutsideRepository(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.py"), []byte(fOriginal), 0o644))
	emb, err := embedder.NewLocalProvider(16, nil)
	require.NoError(t, err)

	idx, err := New(dir, config.Default(), storage.NewMemoryStore(), emb, &generator.Mock{},
		WithLogger(logger.Discard()), WithCounter(chunker.NewEstimator()))
	require.NoError(t, err)

	_, err = idx.Sync(context.Background(), RunOptions{})
	assert.ErrorIs(t, err, ErrNoRepository)

	// Full runs work without git
	summary, err := idx.Init(context.Background(), RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Generated)
}

func TestStatusAndSearch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.write("README.md", "# Demo\n\nA demo project.\n")
	f.write("a.py", fOriginal)
	head := f.commit("init")
	idx := f.indexer()

	_, err := idx.Init(ctx, RunOptions{VersionTag: "v1"})
	require.NoError(t, err)

	st, err := idx.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, head, st.Head)
	assert.False(t, st.Running)
	assert.Equal(t, 2, st.Store.Records)
	assert.Equal(t, head, st.Tags["v1"].LastRef)
	require.NotNil(t, st.LastRun)
	assert.Equal(t, ModeInit, st.LastRun.Mode)
	assert.Equal(t, 2, st.LastRun.Summary.Generated)

	resp, err := idx.Search(ctx, searcher.SearchRequest{
		Query:  "a.f",
		Mode:   searcher.SearchModeVector,
		Filter: types.Filter{VersionTag: types.Tag("v1")},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Results)
}
