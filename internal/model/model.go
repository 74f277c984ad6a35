// Package model merges per-file parse results into an arena of code
// elements keyed by stable ID.
package model

import (
	"fmt"
	"sort"

	"github.com/dshills/docsync/pkg/types"
)

// Model is an immutable forest of code elements, one module root per file.
// Elements are addressed by ID; children, roots and files keep declaration
// order.
type Model struct {
	elements map[string]*types.CodeElement
	order    []string
	children map[string][]string
	files    map[string][]string
	paths    []string
}

func newModel() *Model {
	return &Model{
		elements: make(map[string]*types.CodeElement),
		children: make(map[string][]string),
		files:    make(map[string][]string),
	}
}

// Empty returns a model without elements
func Empty() *Model {
	return newModel()
}

func (m *Model) add(el *types.CodeElement) {
	m.elements[el.ID] = el
	m.order = append(m.order, el.ID)
	path := el.FilePath()
	if _, ok := m.files[path]; !ok {
		m.paths = append(m.paths, path)
	}
	m.files[path] = append(m.files[path], el.ID)
	if el.ParentID != "" {
		m.children[el.ParentID] = append(m.children[el.ParentID], el.ID)
	}
}

// Len returns the number of elements
func (m *Model) Len() int {
	return len(m.order)
}

// Get returns the element with the given ID
func (m *Model) Get(id string) (*types.CodeElement, bool) {
	el, ok := m.elements[id]
	return el, ok
}

// Children returns the direct children of an element in declaration order
func (m *Model) Children(id string) []*types.CodeElement {
	ids := m.children[id]
	out := make([]*types.CodeElement, 0, len(ids))
	for _, cid := range ids {
		out = append(out, m.elements[cid])
	}
	return out
}

// Roots returns the module elements, ordered by file path
func (m *Model) Roots() []*types.CodeElement {
	var out []*types.CodeElement
	for _, id := range m.order {
		if el := m.elements[id]; el.IsRoot() {
			out = append(out, el)
		}
	}
	return out
}

// Ancestors returns the chain of enclosing elements, outermost first
func (m *Model) Ancestors(id string) []*types.CodeElement {
	el, ok := m.elements[id]
	if !ok {
		return nil
	}
	var chain []*types.CodeElement
	seen := map[string]bool{id: true}
	for pid := el.ParentID; pid != ""; {
		parent, ok := m.elements[pid]
		if !ok || seen[pid] {
			break
		}
		seen[pid] = true
		chain = append(chain, parent)
		pid = parent.ParentID
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}

// HierarchyPath returns the qualified names of the element's ancestors,
// ordered from the module root. A root has an empty path.
func (m *Model) HierarchyPath(id string) []string {
	ancestors := m.Ancestors(id)
	path := make([]string, 0, len(ancestors))
	for _, a := range ancestors {
		path = append(path, a.QualifiedName)
	}
	return path
}

// ByFile returns the elements declared in one file in declaration order
func (m *Model) ByFile(path string) []*types.CodeElement {
	ids := m.files[path]
	out := make([]*types.CodeElement, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.elements[id])
	}
	return out
}

// Files returns the file paths present in the model, sorted
func (m *Model) Files() []string {
	out := append([]string(nil), m.paths...)
	sort.Strings(out)
	return out
}

// Elements returns every element ordered by file path, then declaration order
func (m *Model) Elements() []*types.CodeElement {
	out := make([]*types.CodeElement, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.elements[id])
	}
	return out
}

// Lookup finds an element of a file by qualified name and kind
func (m *Model) Lookup(path, qualifiedName string, kind types.ElementKind) (*types.CodeElement, bool) {
	for _, id := range m.files[path] {
		el := m.elements[id]
		if el.QualifiedName == qualifiedName && el.Kind == kind {
			return el, true
		}
	}
	return nil, false
}

// Validate checks hierarchy integrity: every element is valid, parents
// resolve within the model and live in the same file, and no element is its
// own ancestor.
func (m *Model) Validate() error {
	for _, id := range m.order {
		el := m.elements[id]
		if err := el.Validate(); err != nil {
			return &types.ModelIntegrityError{File: el.FilePath(), Element: el.QualifiedName, Reason: err.Error()}
		}
		if el.IsRoot() {
			continue
		}

		parent, ok := m.elements[el.ParentID]
		if !ok {
			return &types.ModelIntegrityError{File: el.FilePath(), Element: el.QualifiedName, ParentKey: -1,
				Reason: fmt.Sprintf("parent %s not in model", el.ParentID)}
		}
		if parent.FilePath() != el.FilePath() {
			return &types.ModelIntegrityError{File: el.FilePath(), Element: el.QualifiedName,
				Reason: "parent declared in another file"}
		}

		seen := map[string]bool{id: true}
		for pid := el.ParentID; pid != ""; pid = m.elements[pid].ParentID {
			if seen[pid] {
				return &types.ModelIntegrityError{File: el.FilePath(), Element: el.QualifiedName,
					Reason: "element is its own ancestor"}
			}
			seen[pid] = true
			if _, ok := m.elements[pid]; !ok {
				break
			}
		}
	}
	return nil
}
