package parser

import (
	"regexp"

	"github.com/dshills/docsync/internal/lexer"
	"github.com/dshills/docsync/pkg/types"
)

var (
	javaTypeRe   = regexp.MustCompile(`^(?:(?:public|protected|private|abstract|final|static|sealed|non-sealed|strictfp)\s+)*(?:class|interface|enum|record|@interface)\s+([A-Za-z_$][\w$]*)`)
	javaMethodRe = regexp.MustCompile(`^(?:(?:public|protected|private|abstract|final|static|synchronized|native|default|strictfp)\s+)*(?:<[^>]*>\s*)?[\w$.<>\[\]?,\s]+?\s+([A-Za-z_$][\w$]*)\s*\(`)
	javaCtorRe   = regexp.MustCompile(`^(?:(?:public|protected|private)\s+)*(?:<[^>]*>\s*)?([A-Za-z_$][\w$]*)\s*\(`)
)

var javaReserved = map[string]bool{
	"if": true, "for": true, "while": true, "switch": true, "catch": true,
	"return": true, "new": true, "throw": true, "synchronized": true, "try": true,
}

// JavaAdapter recognizes classes, interfaces, enums and records, and the
// methods and constructors declared directly in their bodies. Documentation
// is the Javadoc block preceding the declaration and its annotations.
type JavaAdapter struct {
	opts Options
}

// NewJavaAdapter creates a Java adapter
func NewJavaAdapter(opts Options) *JavaAdapter {
	return &JavaAdapter{opts: opts}
}

// Language implements Adapter
func (a *JavaAdapter) Language() string {
	return types.LangJava
}

// Parse implements Adapter
func (a *JavaAdapter) Parse(path string, content []byte) *types.ParseResult {
	return parseBraceLanguage(path, types.LangJava, content, lexer.Java, a.opts.DocGapLines, matchJava)
}

func matchJava(ctx braceContext, line string) (braceDecl, bool) {
	if m := javaTypeRe.FindStringSubmatch(line); m != nil {
		return braceDecl{kind: types.KindClass, name: m[1], container: true}, true
	}
	if !ctx.inClass {
		return braceDecl{}, false
	}
	if m := javaCtorRe.FindStringSubmatch(line); m != nil && m[1] == ctx.className {
		return braceDecl{kind: types.KindMethod, name: m[1]}, true
	}
	if m := javaMethodRe.FindStringSubmatch(line); m != nil && !javaReserved[m[1]] {
		return braceDecl{kind: types.KindMethod, name: m[1]}, true
	}
	return braceDecl{}, false
}
