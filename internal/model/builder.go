package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/dshills/docsync/internal/lexer"
	"github.com/dshills/docsync/pkg/types"
)

// Namespace is the UUIDv5 namespace element IDs are derived under
var Namespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/dshills/docsync/elements"))

// ElementID derives the stable identity of an element from its file path,
// qualified name and kind. Line positions do not take part.
func ElementID(path, qualifiedName string, kind types.ElementKind) string {
	name := path + "\x00" + qualifiedName + "\x00" + string(kind)
	return uuid.NewSHA1(Namespace, []byte(name)).String()
}

// Builder turns parse results into a Model
type Builder struct{}

// NewBuilder creates a model builder
func NewBuilder() *Builder {
	return &Builder{}
}

// Build merges per-file results into one model. Results are processed in
// path order and elements in declaration order, so identical input always
// yields identical IDs and ordering. Results that carry parse errors
// contribute nothing. A hierarchy edge pointing outside its file returns a
// *types.ModelIntegrityError.
func (b *Builder) Build(results ...*types.ParseResult) (*Model, error) {
	sorted := make([]*types.ParseResult, 0, len(results))
	for _, r := range results {
		if r != nil && !r.HasErrors() && len(r.Elements) > 0 {
			sorted = append(sorted, r)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Path < sorted[j].Path
	})

	m := newModel()
	for i, r := range sorted {
		if i > 0 && sorted[i-1].Path == r.Path {
			return nil, &types.ModelIntegrityError{File: r.Path, Reason: "file parsed twice"}
		}
		elements, err := buildFile(r)
		if err != nil {
			return nil, err
		}
		for _, el := range elements {
			if _, dup := m.elements[el.ID]; dup {
				return nil, &types.ModelIntegrityError{File: r.Path, Element: el.QualifiedName, Reason: "duplicate element ID"}
			}
			m.add(el)
		}
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Build is a shorthand for NewBuilder().Build
func Build(results ...*types.ParseResult) (*Model, error) {
	return NewBuilder().Build(results...)
}

// fileBuilder resolves one parse result
type fileBuilder struct {
	r       *types.ParseResult
	parents []int
	qnames  []string
	state   []int // 0 unvisited, 1 in progress, 2 done
	taken   map[string]int
}

func buildFile(r *types.ParseResult) ([]*types.CodeElement, error) {
	fb := &fileBuilder{
		r:       r,
		parents: make([]int, len(r.Elements)),
		qnames:  make([]string, len(r.Elements)),
		state:   make([]int, len(r.Elements)),
		taken:   make(map[string]int),
	}
	for i := range fb.parents {
		fb.parents[i] = -1
	}
	for _, e := range r.Edges {
		if e.Child < 0 || e.Child >= len(r.Elements) {
			return nil, &types.ModelIntegrityError{File: r.Path, ParentKey: e.Parent,
				Reason: fmt.Sprintf("edge references unknown child %d", e.Child)}
		}
		if e.Parent < 0 || e.Parent >= len(r.Elements) {
			return nil, &types.ModelIntegrityError{File: r.Path, Element: r.Elements[e.Child].Name, ParentKey: e.Parent}
		}
		if fb.parents[e.Child] >= 0 && fb.parents[e.Child] != e.Parent {
			return nil, &types.ModelIntegrityError{File: r.Path, Element: r.Elements[e.Child].Name, ParentKey: e.Parent,
				Reason: "element has two parents"}
		}
		fb.parents[e.Child] = e.Parent
	}

	for i, el := range r.Elements {
		if fb.parents[i] < 0 && el.Kind != types.KindModule {
			return nil, &types.ModelIntegrityError{File: r.Path, Element: el.Name, ParentKey: -1,
				Reason: "non-module element has no parent"}
		}
	}

	for i := range r.Elements {
		if _, err := fb.qualify(i); err != nil {
			return nil, err
		}
	}

	syn, known := lexer.ForLanguage(r.Language)
	lines := strings.Split(string(r.Source), "\n")

	children := make([][]int, len(r.Elements))
	for i, p := range fb.parents {
		if p >= 0 {
			children[p] = append(children[p], i)
		}
	}

	ids := make([]string, len(r.Elements))
	for i, raw := range r.Elements {
		ids[i] = ElementID(r.Path, fb.qnames[i], raw.Kind)
	}

	out := make([]*types.CodeElement, 0, len(r.Elements))
	for i, raw := range r.Elements {
		span := raw.Span
		span.Path = r.Path

		el := &types.CodeElement{
			ID:            ids[i],
			Kind:          raw.Kind,
			Name:          raw.Name,
			QualifiedName: fb.qnames[i],
			Language:      r.Language,
			Span:          span,
			Signature:     raw.Signature,
			Source:        sliceLines(lines, span.StartLine, span.EndLine),
			ExistingDoc:   raw.Doc,
		}
		if p := fb.parents[i]; p >= 0 {
			el.ParentID = ids[p]
		}
		if el.ExistingDoc != nil {
			doc := *el.ExistingDoc
			doc.Span.Path = r.Path
			el.ExistingDoc = &doc
		}

		body := hashBody(lines, raw, r.Elements, children[i])
		if known {
			body = lexer.Normalize(body, syn)
		} else {
			body = strings.Join(strings.Fields(body), " ")
		}
		el.ContentHash = HashContent(body)

		out = append(out, el)
	}
	return out, nil
}

// qualify computes the dotted qualified name of element i. Names that would
// collide with an earlier element of the same kind get a ~N suffix.
func (fb *fileBuilder) qualify(i int) (string, error) {
	switch fb.state[i] {
	case 2:
		return fb.qnames[i], nil
	case 1:
		return "", &types.ModelIntegrityError{File: fb.r.Path, Element: fb.r.Elements[i].Name, ParentKey: fb.parents[i],
			Reason: "hierarchy cycle"}
	}
	fb.state[i] = 1

	el := fb.r.Elements[i]
	qname := el.Name
	if p := fb.parents[i]; p >= 0 {
		prefix, err := fb.qualify(p)
		if err != nil {
			return "", err
		}
		qname = prefix + "." + el.Name
	}

	key := string(el.Kind) + "\x00" + qname
	if n := fb.taken[key]; n > 0 {
		fb.taken[key] = n + 1
		qname = fmt.Sprintf("%s~%d", qname, n+1)
		key = string(el.Kind) + "\x00" + qname
	}
	fb.taken[key]++

	fb.qnames[i] = qname
	fb.state[i] = 2
	return qname, nil
}

// hashBody returns the element's source lines minus its own doc block and
// the spans of its direct children. The declaration line is kept even when
// a child starts on it.
func hashBody(lines []string, el types.RawElement, all []types.RawElement, children []int) string {
	skip := func(line int) bool {
		if el.Doc != nil && line >= el.Doc.Span.StartLine && line <= el.Doc.Span.EndLine {
			return true
		}
		if line == el.Span.StartLine {
			return false
		}
		for _, c := range children {
			if all[c].Span.Contains(line) {
				return true
			}
		}
		return false
	}

	var b strings.Builder
	for line := el.Span.StartLine; line <= el.Span.EndLine && line <= len(lines); line++ {
		if line < 1 || skip(line) {
			continue
		}
		b.WriteString(strings.TrimSuffix(lines[line-1], "\r"))
		b.WriteByte('\n')
	}
	return b.String()
}

// HashContent returns the hex SHA-256 of normalized content
func HashContent(normalized string) string {
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

func sliceLines(lines []string, start, end int) string {
	if start < 1 {
		start = 1
	}
	if end > len(lines) {
		end = len(lines)
	}
	if start > end {
		return ""
	}
	return strings.Join(lines[start-1:end], "\n")
}
