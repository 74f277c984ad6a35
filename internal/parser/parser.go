package parser

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-enry/go-enry/v2"

	"github.com/dshills/docsync/pkg/types"
)

// DefaultDocGapLines is the number of blank lines allowed between a doc block
// and the declaration it documents.
const DefaultDocGapLines = 1

// ErrUnsupportedLanguage is returned when no adapter is registered for a language
var ErrUnsupportedLanguage = errors.New("unsupported language")

// Adapter turns one source file into a flat list of elements plus hierarchy
// edges. Adapters are total: malformed input yields a result with no elements
// and a recorded ParseError, never a panic or an aborted run.
type Adapter interface {
	Language() string
	Parse(path string, content []byte) *types.ParseResult
}

// Options configures the built-in adapters
type Options struct {
	// DocGapLines is how many blank lines may separate a doc block from its
	// declaration. Negative means any number.
	DocGapLines int
}

// DefaultOptions returns the default adapter options
func DefaultOptions() Options {
	return Options{DocGapLines: DefaultDocGapLines}
}

// DefaultExtensions maps file extensions to language tags
var DefaultExtensions = map[string]string{
	".go":   types.LangGo,
	".py":   types.LangPython,
	".pyi":  types.LangPython,
	".js":   types.LangJavaScript,
	".jsx":  types.LangJavaScript,
	".mjs":  types.LangJavaScript,
	".cjs":  types.LangJavaScript,
	".ts":   types.LangTypeScript,
	".tsx":  types.LangTypeScript,
	".java": types.LangJava,
}

// enryLanguages maps linguist language names to our tags
var enryLanguages = map[string]string{
	"Go":         types.LangGo,
	"Python":     types.LangPython,
	"JavaScript": types.LangJavaScript,
	"JSX":        types.LangJavaScript,
	"TypeScript": types.LangTypeScript,
	"TSX":        types.LangTypeScript,
	"Java":       types.LangJava,
}

// Registry selects a parser adapter by language tag
type Registry struct {
	adapters   map[string]Adapter
	extensions map[string]string
}

// NewRegistry creates a registry with all built-in adapters registered
func NewRegistry(opts Options) *Registry {
	r := &Registry{
		adapters:   make(map[string]Adapter),
		extensions: make(map[string]string, len(DefaultExtensions)),
	}
	for ext, lang := range DefaultExtensions {
		r.extensions[ext] = lang
	}

	r.Register(NewGoAdapter(opts))
	r.Register(NewPythonAdapter(opts))
	r.Register(NewJavaScriptAdapter(types.LangJavaScript, opts))
	r.Register(NewJavaScriptAdapter(types.LangTypeScript, opts))
	r.Register(NewJavaAdapter(opts))
	return r
}

// Register adds or replaces the adapter for its language
func (r *Registry) Register(a Adapter) {
	r.adapters[a.Language()] = a
}

// Lookup returns the adapter for a language tag
func (r *Registry) Lookup(lang string) (Adapter, bool) {
	a, ok := r.adapters[lang]
	return a, ok
}

// Languages returns the registered language tags in sorted order
func (r *Registry) Languages() []string {
	langs := make([]string, 0, len(r.adapters))
	for l := range r.adapters {
		langs = append(langs, l)
	}
	sort.Strings(langs)
	return langs
}

// Restrict drops every adapter whose language is not in langs. An empty list
// keeps all adapters.
func (r *Registry) Restrict(langs []string) {
	if len(langs) == 0 {
		return
	}
	keep := make(map[string]bool, len(langs))
	for _, l := range langs {
		keep[strings.ToLower(l)] = true
	}
	// "javascript" in configuration covers TypeScript sources too
	if keep[types.LangJavaScript] {
		keep[types.LangTypeScript] = true
	}
	for l := range r.adapters {
		if !keep[l] {
			delete(r.adapters, l)
		}
	}
}

// SetExtension maps a file extension to a language tag
func (r *Registry) SetExtension(ext, lang string) {
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	r.extensions[strings.ToLower(ext)] = lang
}

// DetectLanguage returns the language tag for a file, or "" when no
// registered adapter can handle it. The extension map is consulted first,
// then go-enry's content-based detection.
func (r *Registry) DetectLanguage(path string, content []byte) string {
	ext := strings.ToLower(filepath.Ext(path))
	if lang, ok := r.extensions[ext]; ok {
		if _, registered := r.adapters[lang]; registered {
			return lang
		}
		return ""
	}

	if content == nil {
		return ""
	}
	lang, ok := enryLanguages[enry.GetLanguage(filepath.Base(path), content)]
	if !ok {
		return ""
	}
	if _, registered := r.adapters[lang]; !registered {
		return ""
	}
	return lang
}

// Parse runs the adapter registered for lang over one file
func (r *Registry) Parse(path string, content []byte, lang string) (result *types.ParseResult, err error) {
	a, ok := r.adapters[lang]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedLanguage, lang)
	}

	defer func() {
		if p := recover(); p != nil {
			result = &types.ParseResult{Path: path, Language: lang, Source: content}
			result.AddError(path, 0, 0, fmt.Sprintf("adapter panic: %v", p))
		}
	}()

	result = a.Parse(path, content)
	result.Path = path
	result.Language = lang
	result.Source = content
	return result, nil
}

// newResult starts a parse result for a file
func newResult(path, lang string, content []byte) *types.ParseResult {
	return &types.ParseResult{Path: path, Language: lang, Source: content}
}

// moduleName derives a module name from a file path: the base name without
// its extension.
func moduleName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// lineCount returns the number of lines in content, counting a final
// unterminated line.
func lineCount(content []byte) int {
	if len(content) == 0 {
		return 1
	}
	n := strings.Count(string(content), "\n")
	if content[len(content)-1] != '\n' {
		n++
	}
	return n
}
