package parser

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/dshills/docsync/internal/lexer"
	"github.com/dshills/docsync/pkg/types"
)

var (
	pyDefRe       = regexp.MustCompile(`^(?:async\s+)?def\s+([A-Za-z_]\w*)`)
	pyClassRe     = regexp.MustCompile(`^class\s+([A-Za-z_]\w*)`)
	pyDocstringRe = regexp.MustCompile(`^[rRbBuU]{0,2}("""|'''|"|')\s*("""|'''|"|')$`)
)

// PythonAdapter extracts modules, classes, functions and methods from Python
// source with an indentation-aware scanner. Documentation is the docstring:
// a string literal that is the first statement of the module or body.
type PythonAdapter struct {
	opts Options
}

// NewPythonAdapter creates a Python adapter
func NewPythonAdapter(opts Options) *PythonAdapter {
	return &PythonAdapter{opts: opts}
}

// Language implements Adapter
func (a *PythonAdapter) Language() string {
	return types.LangPython
}

// logicalLine is one Python statement line after joining bracket, backslash
// and multi-line string continuations. Lines are 1-based.
type logicalLine struct {
	Start  int
	End    int
	Indent int
	Code   string // masked code, continuation lines joined by spaces
}

type pyScope struct {
	key          int
	kind         types.ElementKind
	headerIndent int
	lastLine     int
	awaitingDoc  bool
}

// Parse implements Adapter
func (a *PythonAdapter) Parse(path string, content []byte) *types.ParseResult {
	result := newResult(path, types.LangPython, content)

	masked, err := lexer.Mask(content, lexer.Python)
	if err != nil {
		result.AddError(path, 0, 0, fmt.Sprintf("syntax error: %v", err))
		return result
	}

	raw := splitLines(content)
	lines, err := pythonLogicalLines(raw, masked)
	if err != nil {
		result.AddError(path, 0, 0, fmt.Sprintf("syntax error: %v", err))
		return result
	}

	if err := a.extract(path, raw, masked, lines, result); err != nil {
		result.Discard()
		var pe *types.ParseError
		if errors.As(err, &pe) {
			result.AddError(path, pe.Line, 0, pe.Message)
		} else {
			result.AddError(path, 0, 0, err.Error())
		}
	}
	return result
}

func (a *PythonAdapter) extract(path string, raw []string, masked *lexer.Masked, lines []logicalLine, result *types.ParseResult) error {
	module := result.Add(types.RawElement{
		Kind:      types.KindModule,
		Name:      moduleName(path),
		Span:      types.Span{Path: path, StartLine: 1, EndLine: lineCount(result.Source)},
		Signature: "module " + moduleName(path),
	})

	indents := []int{0}
	expectIndent := false
	var scopes []*pyScope
	decoratorStart := 0

	closeScopes := func(indent int) {
		for len(scopes) > 0 && scopes[len(scopes)-1].headerIndent >= indent {
			s := scopes[len(scopes)-1]
			result.Elements[s.key].Span.EndLine = s.lastLine
			scopes = scopes[:len(scopes)-1]
		}
	}

	for i, ll := range lines {
		top := indents[len(indents)-1]
		switch {
		case expectIndent:
			if ll.Indent <= top {
				return &types.ParseError{File: path, Line: ll.Start, Message: "syntax error: expected an indented block"}
			}
			indents = append(indents, ll.Indent)
			expectIndent = false
		case ll.Indent > top:
			return &types.ParseError{File: path, Line: ll.Start, Message: "syntax error: unexpected indent"}
		case ll.Indent < top:
			for len(indents) > 1 && indents[len(indents)-1] > ll.Indent {
				indents = indents[:len(indents)-1]
			}
			if indents[len(indents)-1] != ll.Indent {
				return &types.ParseError{File: path, Line: ll.Start, Message: "syntax error: unindent does not match any outer indentation level"}
			}
		}

		closeScopes(ll.Indent)

		code := strings.TrimSpace(ll.Code)

		// Docstrings: module docstring is the first statement of the file,
		// element docstrings the first statement of their body
		if doc := docstringOf(path, ll, code, masked); doc != nil {
			if i == 0 && ll.Indent == 0 {
				result.Elements[module].Doc = doc
			} else if len(scopes) > 0 && scopes[len(scopes)-1].awaitingDoc {
				result.Elements[scopes[len(scopes)-1].key].Doc = doc
			}
		}
		for _, s := range scopes {
			s.lastLine = ll.End
			s.awaitingDoc = false
		}

		if strings.HasSuffix(code, ":") {
			expectIndent = true
		}

		if strings.HasPrefix(code, "@") {
			if decoratorStart == 0 {
				decoratorStart = ll.Start
			}
			continue
		}
		start := ll.Start
		if decoratorStart > 0 {
			start = decoratorStart
			decoratorStart = 0
		}

		kind, name := pythonDecl(code)
		if kind == "" {
			continue
		}

		parent := module
		if len(scopes) > 0 {
			enclosing := scopes[len(scopes)-1]
			if enclosing.kind != types.KindClass {
				// Definitions nested in functions are implementation details
				continue
			}
			parent = enclosing.key
			if kind == types.KindFunction {
				kind = types.KindMethod
			}
		}

		key := result.Add(types.RawElement{
			Kind:      kind,
			Name:      name,
			Span:      types.Span{Path: path, StartLine: start, EndLine: ll.End},
			Signature: pythonSignature(raw, ll),
		})
		result.Link(key, parent)

		if expectIndent {
			scopes = append(scopes, &pyScope{
				key:          key,
				kind:         kind,
				headerIndent: ll.Indent,
				lastLine:     ll.End,
				awaitingDoc:  true,
			})
		}
	}

	if expectIndent {
		last := lines[len(lines)-1]
		return &types.ParseError{File: path, Line: last.End, Message: "syntax error: expected an indented block"}
	}
	closeScopes(0)
	return nil
}

// pythonDecl classifies a logical line as a def or class header
func pythonDecl(code string) (types.ElementKind, string) {
	if m := pyDefRe.FindStringSubmatch(code); m != nil {
		return types.KindFunction, m[1]
	}
	if m := pyClassRe.FindStringSubmatch(code); m != nil {
		return types.KindClass, m[1]
	}
	return "", ""
}

// docstringOf returns the doc block when the logical line consists of a
// single string literal
func docstringOf(path string, ll logicalLine, code string, masked *lexer.Masked) *types.DocBlock {
	if !pyDocstringRe.MatchString(code) {
		return nil
	}
	lit := masked.LiteralAt(ll.Start)
	if lit == nil || lit.EndLine != ll.End {
		return nil
	}
	text := cleanDocstring(lit.Text)
	if text == "" {
		return nil
	}
	return &types.DocBlock{
		Text: text,
		Span: types.Span{Path: path, StartLine: ll.Start, EndLine: ll.End},
	}
}

// pythonSignature renders a def or class header on one line
func pythonSignature(raw []string, ll logicalLine) string {
	parts := make([]string, 0, ll.End-ll.Start+1)
	for line := ll.Start; line <= ll.End && line <= len(raw); line++ {
		parts = append(parts, strings.TrimSpace(raw[line-1]))
	}
	sig := strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
	if idx := strings.LastIndex(sig, ":"); idx > 0 && idx == len(sig)-1 {
		sig = sig[:idx]
	}
	return sig
}

// pythonLogicalLines joins physical lines into statements
func pythonLogicalLines(raw []string, masked *lexer.Masked) ([]logicalLine, error) {
	code := masked.Lines()

	// Multi-line string literals keep their statement open until they close
	literalEnd := make(map[int]int)
	for _, lit := range masked.Literals {
		if lit.EndLine > literalEnd[lit.StartLine] {
			literalEnd[lit.StartLine] = lit.EndLine
		}
	}

	var out []logicalLine
	for i := 0; i < len(code); i++ {
		if strings.TrimSpace(code[i]) == "" {
			continue
		}

		ll := logicalLine{Start: i + 1, Indent: indentWidth(raw[i])}
		depth := 0
		var joined []string
		j := i
		for ; j < len(code); j++ {
			line := code[j]
			joined = append(joined, strings.TrimSpace(line))
			depth += bracketDelta(line)
			if depth < 0 {
				return nil, fmt.Errorf("line %d: unmatched closing bracket", j+1)
			}

			extend := literalEnd[j+1]
			if extend > j+1 {
				for k := j + 1; k < extend-1 && k < len(code); k++ {
					depth += bracketDelta(code[k])
				}
				j = extend - 2
				continue
			}
			if depth > 0 || strings.HasSuffix(strings.TrimRight(line, " \t"), "\\") {
				continue
			}
			break
		}
		if j >= len(code) {
			if depth > 0 {
				return nil, fmt.Errorf("line %d: unclosed bracket", ll.Start)
			}
			j = len(code) - 1
		}

		ll.End = j + 1
		ll.Code = strings.Join(joined, " ")
		out = append(out, ll)
		i = j
	}
	return out, nil
}

func bracketDelta(line string) int {
	d := 0
	for i := 0; i < len(line); i++ {
		switch line[i] {
		case '(', '[', '{':
			d++
		case ')', ']', '}':
			d--
		}
	}
	return d
}

// indentWidth measures leading whitespace, expanding tabs to multiples of 8
func indentWidth(line string) int {
	w := 0
	for _, c := range line {
		switch c {
		case ' ':
			w++
		case '\t':
			w += 8 - w%8
		default:
			return w
		}
	}
	return w
}
