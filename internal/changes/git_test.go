package changes

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testRepo is a throwaway git repository in a temp dir
type testRepo struct {
	t    *testing.T
	dir  string
	repo *git.Repository
	wt   *git.Worktree
}

func newTestRepo(t *testing.T) *testRepo {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	wt, err := repo.Worktree()
	require.NoError(t, err)
	return &testRepo{t: t, dir: dir, repo: repo, wt: wt}
}

func (r *testRepo) write(path, content string) {
	r.t.Helper()
	full := filepath.Join(r.dir, path)
	require.NoError(r.t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(r.t, os.WriteFile(full, []byte(content), 0o644))
}

func (r *testRepo) remove(path string) {
	r.t.Helper()
	_, err := r.wt.Remove(path)
	require.NoError(r.t, err)
}

func (r *testRepo) commit(msg string) string {
	r.t.Helper()
	require.NoError(r.t, r.wt.AddWithOptions(&git.AddOptions{All: true}))
	hash, err := r.wt.Commit(msg, &git.CommitOptions{
		Author: &object.Signature{Name: "Test", Email: "test@example.com", When: time.Now()},
	})
	require.NoError(r.t, err)
	return hash.String()
}

func (r *testRepo) open() *Repository {
	r.t.Helper()
	repo, err := Open(r.dir, 0)
	require.NoError(r.t, err)
	return repo
}

func kinds(diffs []FileDiff) map[string]FileChangeKind {
	out := make(map[string]FileChangeKind, len(diffs))
	for _, d := range diffs {
		out[d.Path] = d.Kind
	}
	return out
}

const moduleBody = `def one():
    return 1


def two():
    return 2


def three():
    return 3


def four():
    return 4
`

func TestRepository_DiffCommits(t *testing.T) {
	tr := newTestRepo(t)
	tr.write("a.py", "def f():\n    return 1\n")
	tr.write("b.py", "def g():\n    return 2\n")
	first := tr.commit("first")

	tr.write("a.py", "def f():\n    return 10\n")
	tr.remove("b.py")
	tr.write("c.py", "def h():\n    return 3\n")
	second := tr.commit("second")

	repo := tr.open()
	diffs, err := repo.Diff(context.Background(), first, second)
	require.NoError(t, err)

	assert.Equal(t, map[string]FileChangeKind{
		"a.py": FileModified,
		"b.py": FileDeleted,
		"c.py": FileAdded,
	}, kinds(diffs))

	for _, d := range diffs {
		switch d.Kind {
		case FileModified:
			assert.Contains(t, string(d.OldContent), "return 1")
			assert.Contains(t, string(d.NewContent), "return 10")
		case FileDeleted:
			assert.Nil(t, d.NewContent)
			assert.NotEmpty(t, d.OldContent)
		case FileAdded:
			assert.Nil(t, d.OldContent)
		}
	}
}

func TestRepository_DiffDetectsRenames(t *testing.T) {
	tr := newTestRepo(t)
	tr.write("pkg/old.py", moduleBody)
	first := tr.commit("first")

	tr.remove("pkg/old.py")
	tr.write("pkg/new.py", moduleBody)
	second := tr.commit("rename")

	diffs, err := tr.open().Diff(context.Background(), first, second)
	require.NoError(t, err)
	require.Len(t, diffs, 1)
	assert.Equal(t, FileRenamed, diffs[0].Kind)
	assert.Equal(t, "pkg/new.py", diffs[0].Path)
	assert.Equal(t, "pkg/old.py", diffs[0].OldPath)
	assert.Equal(t, "pkg/old.py", diffs[0].PriorPath())
}

func TestRepository_DiffWithoutPriorState(t *testing.T) {
	tr := newTestRepo(t)
	tr.write("a.py", "x = 1\n")
	tr.write("lib/b.py", "y = 2\n")
	head := tr.commit("first")

	diffs, err := tr.open().Diff(context.Background(), "", head)
	require.NoError(t, err)
	assert.Equal(t, map[string]FileChangeKind{"a.py": FileAdded, "lib/b.py": FileAdded}, kinds(diffs))
}

func TestRepository_DiffWorktree(t *testing.T) {
	tr := newTestRepo(t)
	tr.write("a.py", "def f():\n    return 1\n")
	tr.write("b.py", "def g():\n    return 2\n")
	tr.write("old.py", moduleBody)
	tr.commit("first")

	tr.write("a.py", "def f():\n    return 2\n")
	tr.remove("b.py")
	tr.write("untracked.py", "def u():\n    pass\n")
	tr.remove("old.py")
	tr.write("renamed.py", moduleBody+"\n\ndef five():\n    return 5\n")

	diffs, err := tr.open().Diff(context.Background(), "HEAD", "")
	require.NoError(t, err)

	assert.Equal(t, map[string]FileChangeKind{
		"a.py":         FileModified,
		"b.py":         FileDeleted,
		"untracked.py": FileAdded,
		"renamed.py":   FileRenamed,
	}, kinds(diffs))

	for _, d := range diffs {
		if d.Kind == FileRenamed {
			assert.Equal(t, "old.py", d.OldPath)
		}
	}
}

func TestRepository_DiffWorktreeClean(t *testing.T) {
	tr := newTestRepo(t)
	tr.write("a.py", "x = 1\n")
	tr.commit("first")

	diffs, err := tr.open().Diff(context.Background(), "HEAD", "")
	require.NoError(t, err)
	assert.Empty(t, diffs)
}

func TestRepository_DiffWorktreeAcrossCommits(t *testing.T) {
	tr := newTestRepo(t)
	tr.write("a.py", "x = 1\n")
	first := tr.commit("first")
	tr.write("b.py", "y = 1\n")
	tr.commit("second")
	tr.write("c.py", "z = 1\n")

	diffs, err := tr.open().Diff(context.Background(), first, "")
	require.NoError(t, err)
	assert.Equal(t, map[string]FileChangeKind{"b.py": FileAdded, "c.py": FileAdded}, kinds(diffs))
}

func TestRepository_Resolve(t *testing.T) {
	tr := newTestRepo(t)
	tr.write("a.py", "x = 1\n")
	first := tr.commit("first")
	tr.write("a.py", "x = 2\n")
	second := tr.commit("second")

	repo := tr.open()
	assert.Equal(t, second, repo.Head())

	for ref, want := range map[string]string{
		"HEAD":       second,
		"HEAD^":      first,
		"HEAD~1":     first,
		second + "^": first,
		first:        first,
		"master":     second,
	} {
		got, err := repo.Resolve(ref)
		require.NoError(t, err, ref)
		assert.Equal(t, want, got.String(), ref)
	}

	_, err := repo.Resolve("no-such-branch")
	assert.Error(t, err)
	_, err = repo.Resolve("")
	assert.Error(t, err)
}

func TestRepository_FileAt(t *testing.T) {
	tr := newTestRepo(t)
	tr.write("pkg/a.py", "x = 1\n")
	first := tr.commit("first")
	tr.write("pkg/a.py", "x = 2\n")

	repo := tr.open()

	data, ok, err := repo.FileAt(first, "pkg/a.py")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "x = 1\n", string(data))

	data, ok, err = repo.FileAt("", "pkg/a.py")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "x = 2\n", string(data))

	_, ok, err = repo.FileAt(first, "pkg/missing.py")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = repo.FileAt("", "pkg/missing.py")
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = repo.FileAt("no-such-branch", "pkg/a.py")
	assert.Error(t, err)
}

func TestOpen_NotRepository(t *testing.T) {
	_, err := Open(t.TempDir(), 0)
	assert.ErrorIs(t, err, ErrNotRepository)
}

func TestSimilarity(t *testing.T) {
	assert.Equal(t, 100, Similarity([]byte("a\nb\nc\n"), []byte("a\nb\nc\n")))
	assert.Equal(t, 0, Similarity([]byte("a\nb\n"), []byte("c\nd\n")))
	assert.Equal(t, 50, Similarity([]byte("a\nb\n"), []byte("a\nc\n")))
	assert.Equal(t, 0, Similarity(nil, []byte("a\n")))
	assert.Equal(t, 100, Similarity(nil, nil))
}

func TestPairRenames(t *testing.T) {
	diffs := []FileDiff{
		{Path: "gone.py", Kind: FileDeleted, OldContent: []byte("a\nb\nc\nd\n")},
		{Path: "moved.py", Kind: FileAdded, NewContent: []byte("a\nb\nc\ne\n")},
		{Path: "fresh.py", Kind: FileAdded, NewContent: []byte("x\ny\n")},
	}

	out := pairRenames(diffs, DefaultRenameThreshold)
	assert.Equal(t, map[string]FileChangeKind{"moved.py": FileRenamed, "fresh.py": FileAdded}, kinds(out))
	for _, d := range out {
		if d.Path == "moved.py" {
			assert.Equal(t, "gone.py", d.OldPath)
			assert.Equal(t, "a\nb\nc\nd\n", string(d.OldContent))
		}
	}

	below := pairRenames([]FileDiff{
		{Path: "gone.py", Kind: FileDeleted, OldContent: []byte("a\nb\nc\nd\n")},
		{Path: "other.py", Kind: FileAdded, NewContent: []byte("a\nx\ny\nz\n")},
	}, DefaultRenameThreshold)
	assert.Len(t, below, 2)
}
