package parser

import (
	"regexp"

	"github.com/dshills/docsync/internal/lexer"
	"github.com/dshills/docsync/pkg/types"
)

var (
	jsFunctionRe = regexp.MustCompile(`^(?:export\s+)?(?:default\s+)?(?:declare\s+)?(?:async\s+)?function\s*\*?\s*([A-Za-z_$][\w$]*)?\s*[(<]`)
	jsClassRe    = regexp.MustCompile(`^(?:export\s+)?(?:default\s+)?(?:declare\s+)?(?:abstract\s+)?(class|interface)\s+([A-Za-z_$][\w$]*)`)
	jsArrowRe    = regexp.MustCompile(`^(?:export\s+)?(?:const|let|var)\s+([A-Za-z_$][\w$]*)\s*(?::[^=]+)?=\s*(?:async\s+)?(?:function\b|(?:\([^)]*\)|[A-Za-z_$][\w$]*)\s*(?::\s*[^=]+?)?\s*=>)`)
	jsMethodRe   = regexp.MustCompile(`^(?:(?:public|private|protected|static|async|readonly|override|abstract|declare|get|set)\s+)*\*?\s*(#?[A-Za-z_$][\w$]*)\s*\??\s*(?:<[^>]*>)?\s*\(`)
	jsFieldFnRe  = regexp.MustCompile(`^(?:(?:public|private|protected|static|readonly)\s+)*(#?[A-Za-z_$][\w$]*)\s*(?::[^=]+)?=\s*(?:async\s+)?(?:function\b|(?:\([^)]*\)|[A-Za-z_$][\w$]*)\s*=>)`)
)

// jsReserved are words that look like method calls at the start of a line
var jsReserved = map[string]bool{
	"if": true, "for": true, "while": true, "switch": true, "catch": true,
	"return": true, "function": true, "new": true, "typeof": true, "await": true,
	"super": true, "this": true, "do": true, "with": true,
}

// JavaScriptAdapter handles JavaScript and TypeScript sources. Functions,
// classes (and TypeScript interfaces), class methods and functions bound to
// const/let/var declarations are recognized; documentation is the JSDoc block
// (/** ... */) preceding the declaration.
type JavaScriptAdapter struct {
	lang string
	opts Options
}

// NewJavaScriptAdapter creates an adapter registered under lang, which is
// either "javascript" or "typescript"
func NewJavaScriptAdapter(lang string, opts Options) *JavaScriptAdapter {
	return &JavaScriptAdapter{lang: lang, opts: opts}
}

// Language implements Adapter
func (a *JavaScriptAdapter) Language() string {
	return a.lang
}

// Parse implements Adapter
func (a *JavaScriptAdapter) Parse(path string, content []byte) *types.ParseResult {
	return parseBraceLanguage(path, a.lang, content, lexer.JavaScript, a.opts.DocGapLines, matchJavaScript)
}

func matchJavaScript(ctx braceContext, line string) (braceDecl, bool) {
	if ctx.topLevel {
		if m := jsClassRe.FindStringSubmatch(line); m != nil {
			return braceDecl{kind: types.KindClass, name: m[2], container: true}, true
		}
		if m := jsFunctionRe.FindStringSubmatch(line); m != nil {
			name := m[1]
			if name == "" {
				name = "default"
			}
			return braceDecl{kind: types.KindFunction, name: name}, true
		}
		if m := jsArrowRe.FindStringSubmatch(line); m != nil {
			return braceDecl{kind: types.KindFunction, name: m[1]}, true
		}
		return braceDecl{}, false
	}

	if m := jsFieldFnRe.FindStringSubmatch(line); m != nil {
		return braceDecl{kind: types.KindMethod, name: m[1]}, true
	}
	if m := jsMethodRe.FindStringSubmatch(line); m != nil && !jsReserved[m[1]] {
		return braceDecl{kind: types.KindMethod, name: m[1]}, true
	}
	return braceDecl{}, false
}
