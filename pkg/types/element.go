package types

import (
	"errors"
	"strings"
)

// ElementKind represents the kind of a documentable code element
type ElementKind string

const (
	KindModule   ElementKind = "module"
	KindClass    ElementKind = "class"
	KindFunction ElementKind = "function"
	KindMethod   ElementKind = "method"
)

// Language tags understood by the parser registry
const (
	LangGo         = "go"
	LangPython     = "python"
	LangJavaScript = "javascript"
	LangTypeScript = "typescript"
	LangJava       = "java"
)

// Span is a line-based location in a source file. Byte offsets are optional.
type Span struct {
	Path      string
	StartLine int
	EndLine   int
	StartByte int
	EndByte   int
}

// Contains reports whether line falls inside the span
func (s Span) Contains(line int) bool {
	return line >= s.StartLine && line <= s.EndLine
}

// DocBlock is documentation text found in source together with its location
type DocBlock struct {
	Text string
	Span Span
}

// CodeElement is a documentable unit: a module, class, function or method.
// Elements are rebuilt from source on every run and addressed by ID.
type CodeElement struct {
	// Identification
	ID            string
	Kind          ElementKind
	Name          string
	QualifiedName string
	Language      string

	// Location
	Span Span

	// Hierarchy
	ParentID string // Empty for module roots

	// Content
	Signature   string
	Source      string // Raw source of the element, including nested children
	ExistingDoc *DocBlock
	ContentHash string
}

// FilePath returns the path of the file that declares the element
func (e *CodeElement) FilePath() string {
	return e.Span.Path
}

// HasDoc returns true if the element carries non-empty documentation in source
func (e *CodeElement) HasDoc() bool {
	return e.ExistingDoc != nil && strings.TrimSpace(e.ExistingDoc.Text) != ""
}

// DocText returns the existing documentation text or an empty string
func (e *CodeElement) DocText() string {
	if !e.HasDoc() {
		return ""
	}
	return e.ExistingDoc.Text
}

// IsRoot returns true for elements without a parent
func (e *CodeElement) IsRoot() bool {
	return e.ParentID == ""
}

// ValidateKind checks if the element kind is valid
func ValidateKind(k ElementKind) error {
	switch k {
	case KindModule, KindClass, KindFunction, KindMethod:
		return nil
	default:
		return errors.New("invalid element kind")
	}
}

// Validate performs validation of the element
func (e *CodeElement) Validate() error {
	if e.ID == "" {
		return errors.New("element ID is required")
	}

	if e.Name == "" {
		return errors.New("element name is required")
	}

	if err := ValidateKind(e.Kind); err != nil {
		return err
	}

	if e.Span.Path == "" {
		return errors.New("element path is required")
	}

	if e.Span.StartLine <= 0 || e.Span.EndLine <= 0 {
		return errors.New("invalid span: line numbers must be positive")
	}

	if e.Span.StartLine > e.Span.EndLine {
		return errors.New("invalid span: start line must be before or equal to end line")
	}

	// Only module roots may omit a parent
	if e.Kind != KindModule && e.ParentID == "" {
		return errors.New("non-module elements must have a parent")
	}

	return nil
}
