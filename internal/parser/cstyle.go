package parser

import (
	"fmt"
	"strings"

	"github.com/dshills/docsync/internal/lexer"
	"github.com/dshills/docsync/pkg/types"
)

// braceDecl is a declaration recognized on a line of a brace-delimited language
type braceDecl struct {
	kind      types.ElementKind
	name      string
	container bool // class-like: members are declared directly in its body
}

// braceContext tells a matcher where a candidate line sits
type braceContext struct {
	topLevel  bool
	inClass   bool
	className string
}

// braceMatcher recognizes a declaration from a trimmed, masked line
type braceMatcher func(ctx braceContext, line string) (braceDecl, bool)

type braceFrame struct {
	key       int // -1 for blocks that do not belong to an element
	container bool
	className string
}

type pendingDecl struct {
	key       int
	depth     int
	container bool
	name      string
}

// scanBraces walks masked source, recognizing declarations at the top level
// and directly inside class bodies. Element spans run from the declaration
// (or its leading annotations) to the matching closing brace, or to the
// terminating semicolon for body-less declarations.
func scanBraces(path string, masked *lexer.Masked, docs *docFinder, module int, match braceMatcher, result *types.ParseResult) error {
	lines := masked.Lines()

	var stack []braceFrame
	var pending *pendingDecl
	parens := 0
	lastCode := 0

	closePending := func(end int) {
		if pending == nil {
			return
		}
		if end < result.Elements[pending.key].Span.StartLine {
			end = result.Elements[pending.key].Span.StartLine
		}
		result.Elements[pending.key].Span.EndLine = end
		pending = nil
	}

	for i, line := range lines {
		lineNo := i + 1
		trimmed := strings.TrimSpace(line)

		if trimmed != "" && parens == 0 {
			depth := len(stack)
			ctx := braceContext{topLevel: depth == 0}
			if depth > 0 {
				top := stack[depth-1]
				ctx.inClass = top.key >= 0 && top.container
				ctx.className = top.className
			}

			if ctx.topLevel || ctx.inClass {
				if decl, ok := match(ctx, trimmed); ok {
					if pending != nil && pending.depth == depth {
						closePending(lastCode)
					}

					start := annotationStart(lines, lineNo)
					key := result.Add(types.RawElement{
						Kind:      decl.kind,
						Name:      decl.name,
						Span:      types.Span{Path: path, StartLine: start, EndLine: lineNo},
						Signature: braceSignature(trimmed),
						Doc:       docs.before(start),
					})
					parent := module
					if ctx.inClass {
						parent = stack[depth-1].key
					}
					result.Link(key, parent)
					pending = &pendingDecl{key: key, depth: depth, container: decl.container, name: decl.name}
				}
			}
		}

		for j := 0; j < len(line); j++ {
			switch line[j] {
			case '(':
				parens++
			case ')':
				if parens > 0 {
					parens--
				}
			case '{':
				frame := braceFrame{key: -1}
				if pending != nil && pending.depth == len(stack) {
					frame = braceFrame{key: pending.key, container: pending.container, className: pending.name}
					pending = nil
				}
				stack = append(stack, frame)
			case '}':
				if len(stack) == 0 {
					return &types.ParseError{File: path, Line: lineNo, Message: "syntax error: unmatched closing brace"}
				}
				frame := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				if frame.key >= 0 {
					result.Elements[frame.key].Span.EndLine = lineNo
				}
			case ';':
				if pending != nil && pending.depth == len(stack) && parens == 0 {
					closePending(lineNo)
				}
			}
		}

		if trimmed != "" {
			lastCode = lineNo
		}
	}

	if len(stack) > 0 {
		return &types.ParseError{File: path, Line: lastCode, Message: fmt.Sprintf("syntax error: %d unclosed brace(s)", len(stack))}
	}
	closePending(lastCode)
	return nil
}

// annotationStart walks back over annotation or decorator lines directly
// above a declaration
func annotationStart(lines []string, declLine int) int {
	start := declLine
	for l := declLine - 1; l >= 1; l-- {
		t := strings.TrimSpace(lines[l-1])
		if !strings.HasPrefix(t, "@") || strings.HasPrefix(t, "@interface") {
			break
		}
		start = l
	}
	return start
}

// braceSignature trims the body opener from a declaration line
func braceSignature(line string) string {
	if idx := strings.Index(line, "{"); idx > 0 {
		line = line[:idx]
	}
	line = strings.TrimSuffix(strings.TrimSpace(line), ";")
	return strings.Join(strings.Fields(line), " ")
}

// parseBraceLanguage is the shared driver for JavaScript, TypeScript and Java
func parseBraceLanguage(path, lang string, content []byte, syn lexer.Syntax, gap int, match braceMatcher) *types.ParseResult {
	result := newResult(path, lang, content)

	masked, err := lexer.Mask(content, syn)
	if err != nil {
		result.AddError(path, 0, 0, fmt.Sprintf("syntax error: %v", err))
		return result
	}

	raw := splitLines(content)
	docs := newDocFinder(path, masked, raw, gap, func(c lexer.Comment) bool { return c.Doc })

	module := result.Add(types.RawElement{
		Kind:      types.KindModule,
		Name:      moduleName(path),
		Span:      types.Span{Path: path, StartLine: 1, EndLine: lineCount(content)},
		Signature: "module " + moduleName(path),
		Doc:       docs.leading(),
	})

	if err := scanBraces(path, masked, docs, module, match, result); err != nil {
		result.Discard()
		if pe, ok := err.(*types.ParseError); ok {
			result.AddError(path, pe.Line, 0, pe.Message)
		} else {
			result.AddError(path, 0, 0, err.Error())
		}
	}
	return result
}
