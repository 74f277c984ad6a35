package indexer

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-enry/go-enry/v2"
	gitignore "github.com/sabhiram/go-gitignore"

	"github.com/dshills/docsync/internal/parser"
)

// Ignore files read from the repository root
const (
	GitIgnoreFile     = ".gitignore"
	DocsyncIgnoreFile = ".docsyncignore"
)

// defaultIgnores are skipped in every repository
var defaultIgnores = []string{
	".git/",
	".docsync/",
	"node_modules/",
	"__pycache__/",
	"*.min.js",
}

// Discoverer decides which files of a repository are documented
type Discoverer struct {
	root        string
	sourcePaths []string
	ignore      *gitignore.GitIgnore
	registry    *parser.Registry
}

// NewDiscoverer reads the ignore files under root and compiles them together
// with the default and configured patterns. Source paths are relative to
// root; "." covers the whole repository.
func NewDiscoverer(root string, sourcePaths, patterns []string, registry *parser.Registry) (*Discoverer, error) {
	lines := append([]string(nil), defaultIgnores...)
	for _, name := range []string{GitIgnoreFile, DocsyncIgnoreFile} {
		fileLines, err := readIgnoreFile(filepath.Join(root, name))
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", name, err)
		}
		lines = append(lines, fileLines...)
	}
	lines = append(lines, patterns...)

	paths := make([]string, 0, len(sourcePaths))
	for _, p := range sourcePaths {
		paths = append(paths, path.Clean(filepath.ToSlash(p)))
	}
	if len(paths) == 0 {
		paths = []string{"."}
	}

	return &Discoverer{
		root:        root,
		sourcePaths: paths,
		ignore:      gitignore.CompileIgnoreLines(lines...),
		registry:    registry,
	}, nil
}

func readIgnoreFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var lines []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	return lines, nil
}

// Eligible reports whether a slash separated path relative to the root lies
// under a source path and is not ignored. Language support is not checked.
func (d *Discoverer) Eligible(rel string) bool {
	if !d.underSourcePath(rel) {
		return false
	}
	if d.ignore.MatchesPath(rel) || enry.IsVendor(rel) {
		return false
	}
	for _, part := range strings.Split(path.Dir(rel), "/") {
		if strings.HasPrefix(part, ".") && part != "." {
			return false
		}
	}
	return true
}

func (d *Discoverer) underSourcePath(rel string) bool {
	for _, sp := range d.sourcePaths {
		if sp == "." || rel == sp || strings.HasPrefix(rel, sp+"/") {
			return true
		}
	}
	return false
}

// Discover walks the source paths and returns every eligible file with a
// registered language, sorted by path
func (d *Discoverer) Discover(ctx context.Context) ([]parser.Source, error) {
	seen := make(map[string]bool)
	var sources []parser.Source

	for _, sp := range d.sourcePaths {
		start := filepath.Join(d.root, filepath.FromSlash(sp))
		if _, err := os.Stat(start); os.IsNotExist(err) {
			continue
		}

		err := filepath.WalkDir(start, func(p string, entry fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if err := ctx.Err(); err != nil {
				return err
			}

			rel, err := filepath.Rel(d.root, p)
			if err != nil {
				return err
			}
			rel = filepath.ToSlash(rel)

			if entry.IsDir() {
				if rel == "." || p == start {
					return nil
				}
				if strings.HasPrefix(entry.Name(), ".") || d.ignore.MatchesPath(rel+"/") || enry.IsVendor(rel+"/") {
					return filepath.SkipDir
				}
				return nil
			}

			if !entry.Type().IsRegular() || seen[rel] || !d.Eligible(rel) {
				return nil
			}
			lang := d.registry.DetectLanguage(rel, nil)
			if lang == "" {
				return nil
			}

			content, err := os.ReadFile(p)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", rel, err)
			}
			seen[rel] = true
			sources = append(sources, parser.Source{Path: rel, Content: content, Language: lang})
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to walk %s: %w", sp, err)
		}
	}

	sort.Slice(sources, func(i, j int) bool { return sources[i].Path < sources[j].Path })
	return sources, nil
}
