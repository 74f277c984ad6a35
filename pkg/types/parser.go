package types

import "fmt"

// ParseResult represents the output of parsing one source file
type ParseResult struct {
	Path     string
	Language string
	Source   []byte

	// Extracted data, in declaration order
	Elements []RawElement
	Edges    []HierarchyEdge

	// Errors encountered during parsing
	Errors []ParseError
}

// RawElement is an element as seen by a language adapter, before the model
// builder assigns identities and qualified names. Key is the element's index
// in ParseResult.Elements.
type RawElement struct {
	Key       int
	Kind      ElementKind
	Name      string
	Span      Span
	Signature string
	Doc       *DocBlock
}

// HierarchyEdge links a child element to its enclosing element by local key
type HierarchyEdge struct {
	Child  int
	Parent int
}

// ParseError represents an error that occurred during parsing
type ParseError struct {
	File    string
	Line    int
	Column  int
	Message string
}

// Error implements the error interface
func (pe *ParseError) Error() string {
	if pe.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", pe.File, pe.Line, pe.Message)
	}
	return fmt.Sprintf("%s: %s", pe.File, pe.Message)
}

// HasErrors returns true if any parsing errors occurred
func (pr *ParseResult) HasErrors() bool {
	return len(pr.Errors) > 0
}

// AddError adds a parsing error to the result
func (pr *ParseResult) AddError(file string, line, col int, msg string) {
	pr.Errors = append(pr.Errors, ParseError{
		File:    file,
		Line:    line,
		Column:  col,
		Message: msg,
	})
}

// Add appends an element and returns its key
func (pr *ParseResult) Add(el RawElement) int {
	el.Key = len(pr.Elements)
	pr.Elements = append(pr.Elements, el)
	return el.Key
}

// Link records that child is nested directly inside parent
func (pr *ParseResult) Link(child, parent int) {
	pr.Edges = append(pr.Edges, HierarchyEdge{Child: child, Parent: parent})
}

// Discard drops all extracted elements, keeping errors. Adapters call it when
// a file turns out to be malformed so no partial model leaks out.
func (pr *ParseResult) Discard() {
	pr.Elements = nil
	pr.Edges = nil
}
