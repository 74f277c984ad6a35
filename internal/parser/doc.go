// Package parser extracts documentable code elements from source files.
//
// Each supported language has an Adapter that turns one file into a flat
// list of raw elements (modules, classes, functions, methods) plus hierarchy
// edges between them. The model builder later assigns identities and
// qualified names; adapters only report what the file declares.
//
// # Basic Usage
//
//	reg := parser.NewRegistry(parser.DefaultOptions())
//	lang := reg.DetectLanguage("pkg/a.py", content)
//	result, err := reg.Parse("pkg/a.py", content, lang)
//	if err != nil {
//	    // unsupported language
//	}
//	if result.HasErrors() {
//	    // malformed file: result.Elements is empty
//	}
//
// # Languages
//
// Go is parsed with go/ast. Python, JavaScript, TypeScript and Java are
// scanned over lexer-masked source so that braces, colons and quotes inside
// strings and comments never affect structure:
//   - Python: indentation scopes, docstrings, decorators
//   - JavaScript/TypeScript: functions, classes, interfaces, methods and
//     functions bound to const/let/var, JSDoc blocks
//   - Java: classes, interfaces, enums, records, methods, constructors,
//     Javadoc blocks and annotations
//
// # Documentation Attachment
//
// A doc block belongs to the declaration that follows it when at most
// Options.DocGapLines blank lines separate the two. Python docstrings are
// the first statement of the documented body.
//
// # Error Handling
//
// Adapters never fail a run. A malformed file produces a ParseResult with
// no elements and one ParseError; the caller skips the file and reports it.
package parser
