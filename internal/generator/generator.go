package generator

import (
	"context"
	"fmt"
	"strings"

	"github.com/dshills/docsync/internal/project"
	"github.com/dshills/docsync/pkg/types"
)

// Documentation styles
const (
	StyleGoogle = "google"
	StyleNumPy  = "numpy"
	StyleJSDoc  = "jsdoc"
	StyleGoDoc  = "godoc"
)

// Styles lists the accepted documentation styles
var Styles = []string{StyleGoogle, StyleNumPy, StyleJSDoc, StyleGoDoc}

// Generator produces documentation text for one element
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// Ancestor is one enclosing element, outermost first
type Ancestor struct {
	Kind          types.ElementKind
	QualifiedName string
	Summary       string // first line of the ancestor's documentation
}

// Request carries the element and its surrounding context
type Request struct {
	Element   *types.CodeElement
	Ancestors []Ancestor
	Project   project.Context
	Style     string

	// PriorDoc is the documentation being refreshed, empty for new elements
	PriorDoc string

	// Source is the element source, already cut to the context budget
	Source string
}

// HierarchyContext renders one line per level, most general first:
// the project, then each documented ancestor.
func HierarchyContext(req Request) string {
	var lines []string
	if s := req.Project.Summary(); s != "" {
		lines = append(lines, "Package: "+s)
	}
	for _, a := range req.Ancestors {
		if a.Summary == "" {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s: %s", kindLabel(a.Kind), a.Summary))
	}
	return strings.Join(lines, "\n")
}

// styleHints describes the expected layout for each style
var styleHints = map[string]string{
	StyleGoogle: "Use Google style: a summary line, then Args, Returns and Raises sections where they apply.",
	StyleNumPy:  "Use NumPy style: a summary line, then Parameters, Returns and Raises sections underlined with dashes.",
	StyleJSDoc:  "Use JSDoc style: a summary line, then @param, @returns and @throws tags.",
	StyleGoDoc:  "Use Go doc comment style: complete sentences starting with the element name.",
}

// SystemPrompt is sent as the system message with every request
const SystemPrompt = "You are a documentation expert. Generate clear and concise documentation."

// BuildPrompt renders the user message for a request
func BuildPrompt(req Request) string {
	el := req.Element
	var b strings.Builder

	if hc := HierarchyContext(req); hc != "" {
		b.WriteString("Hierarchy context:\n")
		b.WriteString(hc)
		b.WriteString("\n\n")
	}

	fmt.Fprintf(&b, "Generate documentation for a %s named '%s'", el.Kind, el.Name)
	if n := len(req.Ancestors); n > 0 && el.Kind != types.KindModule {
		parent := req.Ancestors[n-1]
		fmt.Fprintf(&b, " in %s '%s'", parent.Kind, parent.QualifiedName)
	}
	if el.Language != "" {
		fmt.Fprintf(&b, " (%s)", el.Language)
	}

	style := req.Style
	if style == "" {
		style = StyleGoogle
	}
	fmt.Fprintf(&b, "\nDocumentation style: %s", style)
	if hint, ok := styleHints[style]; ok {
		b.WriteString("\n")
		b.WriteString(hint)
	}

	if req.Project.Description != "" {
		fmt.Fprintf(&b, "\nProject description: %s", req.Project.Description)
	}
	if req.Project.Architecture != "" {
		fmt.Fprintf(&b, "\nArchitecture context: %s", req.Project.Architecture)
	}
	if req.Project.Purpose != "" {
		fmt.Fprintf(&b, "\nProject purpose: %s", req.Project.Purpose)
	}

	if el.Signature != "" {
		fmt.Fprintf(&b, "\n\nSignature:\n%s", el.Signature)
	}
	if req.Source != "" {
		fmt.Fprintf(&b, "\n\nSource:\n%s", req.Source)
	}
	if req.PriorDoc != "" {
		fmt.Fprintf(&b, "\n\nThe code changed. Previous documentation, to update rather than rewrite from scratch:\n%s", req.PriorDoc)
	}

	b.WriteString("\n\nReturn only the documentation text, without comment delimiters or code fences.")
	b.WriteString(" Provide a clear and concise description of what this code element does, with at least one example of usage.")
	return b.String()
}

// CleanOutput strips wrappers models tend to add around documentation:
// code fences, docstring quotes and block comment delimiters.
func CleanOutput(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```") {
		if nl := strings.Index(text, "\n"); nl >= 0 {
			text = text[nl+1:]
		} else {
			text = strings.TrimPrefix(text, "```")
		}
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
		text = strings.TrimSpace(text)
	}

	for _, q := range []string{`"""`, `'''`} {
		if strings.HasPrefix(text, q) && strings.HasSuffix(text, q) && len(text) >= 2*len(q) {
			text = strings.TrimSpace(text[len(q) : len(text)-len(q)])
		}
	}

	if strings.HasPrefix(text, "/**") && strings.HasSuffix(text, "*/") {
		inner := strings.TrimSuffix(strings.TrimPrefix(text, "/**"), "*/")
		lines := strings.Split(inner, "\n")
		for i, line := range lines {
			line = strings.TrimSpace(line)
			line = strings.TrimPrefix(line, "*")
			lines[i] = strings.TrimPrefix(line, " ")
		}
		text = strings.TrimSpace(strings.Join(lines, "\n"))
	}

	return text
}

func kindLabel(k types.ElementKind) string {
	s := string(k)
	if s == "" {
		return ""
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
