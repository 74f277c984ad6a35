package changes

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/utils/merkletrie"
	giturls "github.com/whilp/git-urls"
)

// DefaultRenameThreshold is the minimum similarity, in percent, for a
// deleted/added file pair to count as a rename
const DefaultRenameThreshold = 60

// ErrNotRepository is returned when the path is not inside a git repository
var ErrNotRepository = errors.New("not a git repository")

// FileChangeKind classifies a file-level change
type FileChangeKind string

const (
	FileAdded    FileChangeKind = "added"
	FileModified FileChangeKind = "modified"
	FileDeleted  FileChangeKind = "deleted"
	FileRenamed  FileChangeKind = "renamed"
)

// FileDiff is one changed file between two snapshots. OldPath is set for
// renames; content is nil on the side where the file does not exist.
type FileDiff struct {
	Path       string
	OldPath    string
	Kind       FileChangeKind
	OldContent []byte
	NewContent []byte
}

// PriorPath returns the path the file had in the old snapshot
func (d FileDiff) PriorPath() string {
	if d.OldPath != "" {
		return d.OldPath
	}
	return d.Path
}

// Repository wraps a go-git repository opened on a working directory
type Repository struct {
	repo            *git.Repository
	root            string
	renameThreshold int
}

// Open opens the repository containing path
func Open(path string, renameThreshold int) (*Repository, error) {
	repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return nil, fmt.Errorf("%w: %s", ErrNotRepository, path)
		}
		return nil, fmt.Errorf("failed to open repository: %w", err)
	}

	wt, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("failed to get worktree: %w", err)
	}

	if renameThreshold <= 0 || renameThreshold > 100 {
		renameThreshold = DefaultRenameThreshold
	}

	return &Repository{
		repo:            repo,
		root:            wt.Filesystem.Root(),
		renameThreshold: renameThreshold,
	}, nil
}

// Root returns the working tree directory
func (r *Repository) Root() string {
	return r.root
}

// Resolve turns a ref into a commit hash. Branches, remote branches of
// origin, tags, HEAD, revision expressions such as "abc123^" and full or
// abbreviated hashes are accepted.
func (r *Repository) Resolve(ref string) (plumbing.Hash, error) {
	if ref == "" {
		return plumbing.ZeroHash, errors.New("empty ref")
	}

	if b, err := r.repo.Reference(plumbing.NewBranchReferenceName(ref), true); err == nil {
		return b.Hash(), nil
	}
	if rb, err := r.repo.Reference(plumbing.NewRemoteReferenceName("origin", ref), true); err == nil {
		return rb.Hash(), nil
	}
	if t, err := r.repo.Reference(plumbing.NewTagReferenceName(ref), true); err == nil {
		// Annotated tags point at a tag object
		if tag, err := r.repo.TagObject(t.Hash()); err == nil {
			if c, err := tag.Commit(); err == nil {
				return c.Hash, nil
			}
		}
		return t.Hash(), nil
	}

	h, err := r.repo.ResolveRevision(plumbing.Revision(ref))
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("failed to resolve ref %q: %w", ref, err)
	}
	return *h, nil
}

// Head returns the hash of the current HEAD commit, or "" for a repository
// without commits
func (r *Repository) Head() string {
	head, err := r.repo.Head()
	if err != nil {
		return ""
	}
	return head.Hash().String()
}

// RemoteName derives a project name from the origin remote URL, for
// example "github.com/org/repo" becomes "repo". It returns "" when there
// is no usable origin.
func (r *Repository) RemoteName() string {
	remote, err := r.repo.Remote("origin")
	if err != nil || len(remote.Config().URLs) == 0 {
		return ""
	}
	u, err := giturls.Parse(remote.Config().URLs[0])
	if err != nil {
		return ""
	}
	name := strings.TrimSuffix(filepath.Base(strings.TrimSuffix(u.Path, "/")), ".git")
	if name == "." || name == "/" {
		return ""
	}
	return name
}

// Diff lists changed files between two snapshots. An empty oldRef means no
// prior state, so every file of the new snapshot is added; an empty newRef
// means the working tree.
func (r *Repository) Diff(ctx context.Context, oldRef, newRef string) ([]FileDiff, error) {
	var oldTree *object.Tree
	if oldRef != "" {
		t, err := r.tree(oldRef)
		if err != nil {
			return nil, err
		}
		oldTree = t
	}

	if newRef == "" {
		return r.diffWorktree(ctx, oldTree)
	}

	newTree, err := r.tree(newRef)
	if err != nil {
		return nil, err
	}
	if oldTree == nil {
		return allAdded(ctx, newTree)
	}
	return r.diffTrees(ctx, oldTree, newTree)
}

// FileAt returns the content of path at ref, or on disk when ref is empty.
// The boolean is false when the file does not exist there.
func (r *Repository) FileAt(ref, path string) ([]byte, bool, error) {
	if ref == "" {
		data, err := os.ReadFile(filepath.Join(r.root, filepath.FromSlash(path)))
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		if err != nil {
			return nil, false, fmt.Errorf("failed to read %s: %w", path, err)
		}
		return data, true, nil
	}

	t, err := r.tree(ref)
	if err != nil {
		return nil, false, err
	}
	f, err := t.File(path)
	if errors.Is(err, object.ErrFileNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to find %s: %w", path, err)
	}
	data, err := fileContents(f)
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (r *Repository) tree(ref string) (*object.Tree, error) {
	hash, err := r.Resolve(ref)
	if err != nil {
		return nil, err
	}
	commit, err := r.repo.CommitObject(hash)
	if err != nil {
		return nil, fmt.Errorf("failed to get commit object: %w", err)
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("failed to get tree: %w", err)
	}
	return tree, nil
}

func (r *Repository) diffTrees(ctx context.Context, oldTree, newTree *object.Tree) ([]FileDiff, error) {
	changes, err := object.DiffTreeWithOptions(ctx, oldTree, newTree, &object.DiffTreeOptions{
		DetectRenames: true,
		RenameScore:   uint(r.renameThreshold),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to diff trees: %w", err)
	}

	diffs := make([]FileDiff, 0, len(changes))
	for _, change := range changes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		action, err := change.Action()
		if err != nil {
			return nil, fmt.Errorf("failed to classify change: %w", err)
		}
		from, to, err := change.Files()
		if err != nil {
			return nil, fmt.Errorf("failed to read change files: %w", err)
		}

		d := FileDiff{}
		switch action {
		case merkletrie.Insert:
			d.Kind, d.Path = FileAdded, change.To.Name
		case merkletrie.Delete:
			d.Kind, d.Path = FileDeleted, change.From.Name
		case merkletrie.Modify:
			d.Kind, d.Path = FileModified, change.To.Name
			if change.From.Name != change.To.Name {
				d.Kind, d.OldPath = FileRenamed, change.From.Name
			}
		}

		if d.OldContent, err = fileContents(from); err != nil {
			return nil, err
		}
		if d.NewContent, err = fileContents(to); err != nil {
			return nil, err
		}
		diffs = append(diffs, d)
	}

	sortDiffs(diffs)
	return diffs, nil
}

// diffWorktree compares a tree (nil for none) to the files on disk. Paths
// come from the commit delta between the tree and HEAD plus the worktree
// status, so unchanged files are never read.
func (r *Repository) diffWorktree(ctx context.Context, oldTree *object.Tree) ([]FileDiff, error) {
	wt, err := r.repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("failed to get worktree: %w", err)
	}
	status, err := wt.Status()
	if err != nil {
		return nil, fmt.Errorf("failed to get worktree status: %w", err)
	}

	candidates := make(map[string]bool)
	for path, st := range status {
		if st.Worktree == git.Unmodified && st.Staging == git.Unmodified {
			continue
		}
		candidates[path] = true
		if st.Staging == git.Renamed && st.Extra != "" {
			candidates[st.Extra] = true
		}
	}

	headTree, headErr := r.tree("HEAD")
	switch {
	case oldTree == nil && headErr == nil:
		if err := headTree.Files().ForEach(func(f *object.File) error {
			candidates[f.Name] = true
			return nil
		}); err != nil {
			return nil, fmt.Errorf("failed to list files: %w", err)
		}
	case oldTree != nil && headErr == nil:
		delta, err := object.DiffTreeWithOptions(ctx, oldTree, headTree, &object.DiffTreeOptions{})
		if err != nil {
			return nil, fmt.Errorf("failed to diff trees: %w", err)
		}
		for _, c := range delta {
			if c.From.Name != "" {
				candidates[c.From.Name] = true
			}
			if c.To.Name != "" {
				candidates[c.To.Name] = true
			}
		}
	}

	paths := make([]string, 0, len(candidates))
	for p := range candidates {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var diffs []FileDiff
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var oldContent []byte
		if oldTree != nil {
			if f, err := oldTree.File(path); err == nil {
				if oldContent, err = fileContents(f); err != nil {
					return nil, err
				}
			}
		}

		newContent, err := os.ReadFile(filepath.Join(r.root, filepath.FromSlash(path)))
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		exists := err == nil

		switch {
		case oldContent == nil && exists:
			diffs = append(diffs, FileDiff{Path: path, Kind: FileAdded, NewContent: newContent})
		case oldContent != nil && !exists:
			diffs = append(diffs, FileDiff{Path: path, Kind: FileDeleted, OldContent: oldContent})
		case oldContent != nil && string(oldContent) != string(newContent):
			diffs = append(diffs, FileDiff{Path: path, Kind: FileModified, OldContent: oldContent, NewContent: newContent})
		}
	}

	diffs = pairRenames(diffs, r.renameThreshold)
	sortDiffs(diffs)
	return diffs, nil
}

// allAdded lists every file of a tree as added
func allAdded(ctx context.Context, tree *object.Tree) ([]FileDiff, error) {
	var diffs []FileDiff
	err := tree.Files().ForEach(func(f *object.File) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		content, err := fileContents(f)
		if err != nil {
			return err
		}
		diffs = append(diffs, FileDiff{Path: f.Name, Kind: FileAdded, NewContent: content})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortDiffs(diffs)
	return diffs, nil
}

// pairRenames matches deleted and added files whose line similarity reaches
// threshold percent. Each file takes part in at most one pair; the most
// similar pairs are matched first.
func pairRenames(diffs []FileDiff, threshold int) []FileDiff {
	var deleted, added []int
	for i, d := range diffs {
		switch d.Kind {
		case FileDeleted:
			deleted = append(deleted, i)
		case FileAdded:
			added = append(added, i)
		}
	}
	if len(deleted) == 0 || len(added) == 0 {
		return diffs
	}

	type pair struct{ del, add, score int }
	var pairs []pair
	for _, di := range deleted {
		for _, ai := range added {
			score := Similarity(diffs[di].OldContent, diffs[ai].NewContent)
			if score >= threshold {
				pairs = append(pairs, pair{di, ai, score})
			}
		}
	}
	sort.SliceStable(pairs, func(i, j int) bool { return pairs[i].score > pairs[j].score })

	used := make(map[int]bool)
	for _, p := range pairs {
		if used[p.del] || used[p.add] {
			continue
		}
		used[p.del], used[p.add] = true, true
		diffs[p.add].Kind = FileRenamed
		diffs[p.add].OldPath = diffs[p.del].Path
		diffs[p.add].OldContent = diffs[p.del].OldContent
	}

	out := diffs[:0]
	for i, d := range diffs {
		if d.Kind == FileDeleted && used[i] {
			continue
		}
		out = append(out, d)
	}
	return out
}

// Similarity scores two contents from 0 to 100 by the share of lines they
// have in common
func Similarity(a, b []byte) int {
	la := strings.Split(strings.TrimRight(string(a), "\n"), "\n")
	lb := strings.Split(strings.TrimRight(string(b), "\n"), "\n")
	if len(a) == 0 && len(b) == 0 {
		return 100
	}
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	counts := make(map[string]int, len(la))
	for _, l := range la {
		counts[strings.TrimSpace(l)]++
	}
	common := 0
	for _, l := range lb {
		key := strings.TrimSpace(l)
		if counts[key] > 0 {
			counts[key]--
			common++
		}
	}
	return 200 * common / (len(la) + len(lb))
}

func fileContents(f *object.File) ([]byte, error) {
	if f == nil {
		return nil, nil
	}
	content, err := f.Contents()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", f.Name, err)
	}
	return []byte(content), nil
}

func sortDiffs(diffs []FileDiff) {
	sort.SliceStable(diffs, func(i, j int) bool { return diffs[i].Path < diffs[j].Path })
}
