package changes

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/dshills/docsync/internal/model"
	"github.com/dshills/docsync/internal/parser"
	"github.com/dshills/docsync/pkg/types"
)

// Status classifies an element between two snapshots
type Status string

const (
	StatusAdded     Status = "added"
	StatusChanged   Status = "changed"
	StatusRemoved   Status = "removed"
	StatusUnchanged Status = "unchanged"
	StatusMoved     Status = "moved"
)

// ElementChange is the classification of one element. Element is the
// current element (nil when removed) and Old the prior one (nil when added).
type ElementChange struct {
	Status  Status
	Element *types.CodeElement
	Old     *types.CodeElement
}

// ID returns the current element ID, or the old one for removed elements
func (c ElementChange) ID() string {
	if c.Element != nil {
		return c.Element.ID
	}
	if c.Old != nil {
		return c.Old.ID
	}
	return ""
}

// ContentChanged reports whether a moved element's body differs from its
// prior version
func (c ElementChange) ContentChanged() bool {
	return c.Element != nil && c.Old != nil && c.Element.ContentHash != c.Old.ContentHash
}

// ChangeSet is the result of change detection over a set of file diffs
type ChangeSet struct {
	Changes []ElementChange

	// Current holds the new versions of touched files, Previous the old ones
	Current  *model.Model
	Previous *model.Model

	// ParseErrors are files that could not be parsed on the new side. Their
	// elements are left untouched so the next run retries them.
	ParseErrors []types.ParseError
	FailedPaths []string
}

// StatusOf returns the status recorded for a current or removed element ID
func (cs *ChangeSet) StatusOf(id string) (Status, bool) {
	for _, c := range cs.Changes {
		if c.ID() == id {
			return c.Status, true
		}
	}
	return "", false
}

// ByStatus returns the changes with the given status
func (cs *ChangeSet) ByStatus(s Status) []ElementChange {
	var out []ElementChange
	for _, c := range cs.Changes {
		if c.Status == s {
			out = append(out, c)
		}
	}
	return out
}

// Counts tallies changes by status
func (cs *ChangeSet) Counts() map[Status]int {
	counts := make(map[Status]int)
	for _, c := range cs.Changes {
		counts[c.Status]++
	}
	return counts
}

// Detector parses both sides of a diff and classifies elements
type Detector struct {
	registry *parser.Registry
	builder  *model.Builder
	workers  int
	logger   *slog.Logger
}

// Option configures a Detector
type Option func(*Detector)

// WithWorkers bounds the number of concurrent parses
func WithWorkers(n int) Option {
	return func(d *Detector) { d.workers = n }
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(d *Detector) { d.logger = l }
}

// NewDetector creates a change detector over the given parser registry
func NewDetector(registry *parser.Registry, opts ...Option) *Detector {
	d := &Detector{
		registry: registry,
		builder:  model.NewBuilder(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Detect classifies the elements of every diffed file. Only files in diffs
// are parsed. Element identity is path based, so elements of a renamed file
// are paired by qualified name (relative to the module) and kind and
// reported as moved.
func (d *Detector) Detect(ctx context.Context, diffs []FileDiff) (*ChangeSet, error) {
	var oldSources, newSources []parser.Source
	for _, fd := range diffs {
		if fd.Kind != FileAdded && fd.OldContent != nil {
			oldSources = append(oldSources, parser.Source{Path: fd.PriorPath(), Content: fd.OldContent})
		}
		if fd.Kind != FileDeleted && fd.NewContent != nil {
			newSources = append(newSources, parser.Source{Path: fd.Path, Content: fd.NewContent})
		}
	}

	oldResults, err := d.registry.ParseAll(ctx, oldSources, d.workers)
	if err != nil {
		return nil, err
	}
	newResults, err := d.registry.ParseAll(ctx, newSources, d.workers)
	if err != nil {
		return nil, err
	}

	cs := &ChangeSet{}
	failed := make(map[string]bool)
	for _, r := range newResults {
		if r.HasErrors() {
			failed[r.Path] = true
			cs.FailedPaths = append(cs.FailedPaths, r.Path)
			cs.ParseErrors = append(cs.ParseErrors, r.Errors...)
			d.logger.Warn("parse failed", slog.String("file", r.Path), slog.String("error", r.Errors[0].Message))
		}
	}

	previous, err := d.builder.Build(oldResults...)
	if err != nil {
		return nil, fmt.Errorf("failed to build prior model: %w", err)
	}
	current, err := d.builder.Build(newResults...)
	if err != nil {
		return nil, fmt.Errorf("failed to build current model: %w", err)
	}
	cs.Current, cs.Previous = current, previous

	for _, fd := range diffs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if failed[fd.Path] {
			continue
		}
		cs.Changes = append(cs.Changes, classifyFile(fd, previous, current)...)
	}

	sort.SliceStable(cs.Changes, func(i, j int) bool {
		return changeOrder(cs.Changes[i]) < changeOrder(cs.Changes[j])
	})
	return cs, nil
}

// changeOrder sorts changes by file path, then by line
func changeOrder(c ElementChange) string {
	el := c.Element
	if el == nil {
		el = c.Old
	}
	return fmt.Sprintf("%s\x00%08d\x00%s", el.FilePath(), el.Span.StartLine, el.QualifiedName)
}

func classifyFile(fd FileDiff, previous, current *model.Model) []ElementChange {
	oldEls := previous.ByFile(fd.PriorPath())
	newEls := current.ByFile(fd.Path)

	if fd.Kind == FileDeleted {
		out := make([]ElementChange, 0, len(oldEls))
		for _, el := range oldEls {
			out = append(out, ElementChange{Status: StatusRemoved, Old: el})
		}
		return out
	}

	matched := make(map[string]bool, len(oldEls))
	var out []ElementChange

	if fd.Kind == FileRenamed {
		byName := make(map[string]*types.CodeElement, len(oldEls))
		for _, el := range oldEls {
			byName[relativeKey(el)] = el
		}
		for _, el := range newEls {
			if old, ok := byName[relativeKey(el)]; ok && !matched[old.ID] {
				matched[old.ID] = true
				out = append(out, ElementChange{Status: StatusMoved, Element: el, Old: old})
				continue
			}
			out = append(out, ElementChange{Status: StatusAdded, Element: el})
		}
	} else {
		for _, el := range newEls {
			old, ok := previous.Get(el.ID)
			switch {
			case !ok:
				out = append(out, ElementChange{Status: StatusAdded, Element: el})
			case old.ContentHash != el.ContentHash:
				matched[old.ID] = true
				out = append(out, ElementChange{Status: StatusChanged, Element: el, Old: old})
			default:
				matched[old.ID] = true
				out = append(out, ElementChange{Status: StatusUnchanged, Element: el, Old: old})
			}
		}
	}

	for _, el := range oldEls {
		if !matched[el.ID] {
			out = append(out, ElementChange{Status: StatusRemoved, Old: el})
		}
	}
	return out
}

// relativeKey identifies an element within its file independent of the
// module name, which follows the file name for most languages
func relativeKey(el *types.CodeElement) string {
	rel := el.QualifiedName
	if el.Kind == types.KindModule {
		rel = ""
	} else if i := strings.IndexByte(rel, '.'); i >= 0 {
		rel = rel[i+1:]
	}
	return string(el.Kind) + "\x00" + rel
}

// FullScan reports every element of m as added. Full-mode runs use it in
// place of a diff; the reconciler then compares each element against the
// store.
func FullScan(m *model.Model) *ChangeSet {
	cs := &ChangeSet{Current: m, Previous: model.Empty()}
	for _, el := range m.Elements() {
		cs.Changes = append(cs.Changes, ElementChange{Status: StatusAdded, Element: el})
	}
	return cs
}
