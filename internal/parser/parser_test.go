package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/docsync/pkg/types"
)

// findElement returns the first element with the given name
func findElement(t *testing.T, res *types.ParseResult, name string) types.RawElement {
	t.Helper()
	for _, el := range res.Elements {
		if el.Name == name {
			return el
		}
	}
	require.Failf(t, "element not found", "no element named %q", name)
	return types.RawElement{}
}

// parentOf returns the parent key of an element, or -1 for roots
func parentOf(res *types.ParseResult, key int) int {
	for _, e := range res.Edges {
		if e.Child == key {
			return e.Parent
		}
	}
	return -1
}

func names(res *types.ParseResult) []string {
	out := make([]string, 0, len(res.Elements))
	for _, el := range res.Elements {
		out = append(out, el.Name)
	}
	return out
}

func TestRegistry_Languages(t *testing.T) {
	reg := NewRegistry(DefaultOptions())
	assert.Equal(t, []string{"go", "java", "javascript", "python", "typescript"}, reg.Languages())
}

func TestRegistry_DetectLanguage(t *testing.T) {
	reg := NewRegistry(DefaultOptions())

	tests := []struct {
		path    string
		content []byte
		want    string
	}{
		{"main.go", nil, types.LangGo},
		{"pkg/a.py", nil, types.LangPython},
		{"web/app.jsx", nil, types.LangJavaScript},
		{"web/app.tsx", nil, types.LangTypeScript},
		{"src/Main.java", nil, types.LangJava},
		{"README.md", nil, ""},
		{"Makefile", nil, ""},
		{"bin/tool", []byte("#!/usr/bin/env python\nprint('hi')\n"), types.LangPython},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, reg.DetectLanguage(tt.path, tt.content))
		})
	}
}

func TestRegistry_Restrict(t *testing.T) {
	t.Run("single language", func(t *testing.T) {
		reg := NewRegistry(DefaultOptions())
		reg.Restrict([]string{"Python"})
		assert.Equal(t, []string{"python"}, reg.Languages())
		assert.Equal(t, "", reg.DetectLanguage("main.go", nil))
	})

	t.Run("javascript covers typescript", func(t *testing.T) {
		reg := NewRegistry(DefaultOptions())
		reg.Restrict([]string{"javascript"})
		assert.Equal(t, []string{"javascript", "typescript"}, reg.Languages())
	})

	t.Run("empty keeps all", func(t *testing.T) {
		reg := NewRegistry(DefaultOptions())
		reg.Restrict(nil)
		assert.Len(t, reg.Languages(), 5)
	})
}

func TestRegistry_SetExtension(t *testing.T) {
	reg := NewRegistry(DefaultOptions())
	reg.SetExtension("pyw", types.LangPython)
	assert.Equal(t, types.LangPython, reg.DetectLanguage("gui.pyw", nil))
}

func TestRegistry_ParseUnsupported(t *testing.T) {
	reg := NewRegistry(DefaultOptions())
	_, err := reg.Parse("a.rb", []byte("puts 1"), "ruby")
	assert.ErrorIs(t, err, ErrUnsupportedLanguage)
}

type panicAdapter struct{}

func (panicAdapter) Language() string { return "boom" }

func (panicAdapter) Parse(string, []byte) *types.ParseResult {
	panic("adapter exploded")
}

func TestRegistry_ParseRecoversPanic(t *testing.T) {
	reg := NewRegistry(DefaultOptions())
	reg.Register(panicAdapter{})

	res, err := reg.Parse("x.boom", []byte("x"), "boom")
	require.NoError(t, err)
	require.True(t, res.HasErrors())
	assert.Empty(t, res.Elements)
	assert.Contains(t, res.Errors[0].Message, "adapter exploded")
}

func TestRegistry_ParseFillsResult(t *testing.T) {
	reg := NewRegistry(DefaultOptions())
	content := []byte("def f():\n    return 1\n")

	res, err := reg.Parse("pkg/a.py", content, types.LangPython)
	require.NoError(t, err)
	assert.Equal(t, "pkg/a.py", res.Path)
	assert.Equal(t, types.LangPython, res.Language)
	assert.Equal(t, content, res.Source)
}

func TestModuleName(t *testing.T) {
	assert.Equal(t, "a", moduleName("pkg/a.py"))
	assert.Equal(t, "App.test", moduleName("src/App.test.tsx"))
	assert.Equal(t, "Makefile", moduleName("Makefile"))
}

func TestLineCount(t *testing.T) {
	assert.Equal(t, 1, lineCount(nil))
	assert.Equal(t, 2, lineCount([]byte("a\nb")))
	assert.Equal(t, 2, lineCount([]byte("a\nb\n")))
}

func TestCleanBlockComment(t *testing.T) {
	in := "/**\n * Adds numbers.\n *\n * @param a first\n */"
	assert.Equal(t, "Adds numbers.\n\n@param a first", cleanBlockComment(in))
	assert.Equal(t, "One liner.", cleanBlockComment("/** One liner. */"))
}

func TestCleanDocstring(t *testing.T) {
	in := "\"\"\"Summary line.\n\n    Details here.\n      Indented more.\n    \"\"\""
	assert.Equal(t, "Summary line.\n\nDetails here.\n  Indented more.", cleanDocstring(in))
	assert.Equal(t, "Short.", cleanDocstring(`r'Short.'`))
}
