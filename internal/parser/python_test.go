package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/docsync/pkg/types"
)

const pySource = `"""Module doc."""

import os


class Greeter:
    """Greets people."""

    def __init__(self, name):
        self.name = name

    @staticmethod
    def hello(who):
        """Say hello."""
        def inner():
            return 1
        return "hi: " + who


def top(a,
        b):
    return a + b
`

func TestPythonAdapter_Extract(t *testing.T) {
	res := NewPythonAdapter(DefaultOptions()).Parse("pkg/greet.py", []byte(pySource))
	require.False(t, res.HasErrors(), "%v", res.Errors)

	assert.Equal(t, []string{"greet", "Greeter", "__init__", "hello", "top"}, names(res))

	module := res.Elements[0]
	require.NotNil(t, module.Doc)
	assert.Equal(t, "Module doc.", module.Doc.Text)

	greeter := findElement(t, res, "Greeter")
	assert.Equal(t, types.KindClass, greeter.Kind)
	assert.Equal(t, 6, greeter.Span.StartLine)
	assert.Equal(t, 17, greeter.Span.EndLine)
	require.NotNil(t, greeter.Doc)
	assert.Equal(t, "Greets people.", greeter.Doc.Text)

	initFn := findElement(t, res, "__init__")
	assert.Equal(t, types.KindMethod, initFn.Kind)
	assert.Equal(t, greeter.Key, parentOf(res, initFn.Key))
	assert.Equal(t, 10, initFn.Span.EndLine)
	assert.Nil(t, initFn.Doc)

	hello := findElement(t, res, "hello")
	assert.Equal(t, 12, hello.Span.StartLine, "decorators belong to the span")
	require.NotNil(t, hello.Doc)
	assert.Equal(t, "Say hello.", hello.Doc.Text)

	top := findElement(t, res, "top")
	assert.Equal(t, types.KindFunction, top.Kind)
	assert.Equal(t, "def top(a, b)", top.Signature)
	assert.Equal(t, 20, top.Span.StartLine)
	assert.Equal(t, 22, top.Span.EndLine)
	assert.Equal(t, res.Elements[0].Key, parentOf(res, top.Key))
}

func TestPythonAdapter_ColonInString(t *testing.T) {
	src := []byte("def f():\n    x = \"a: {b}\"\n    return x\n\n\ndef g():\n    pass\n")
	res := NewPythonAdapter(DefaultOptions()).Parse("m.py", src)
	require.False(t, res.HasErrors(), "%v", res.Errors)
	assert.Equal(t, []string{"m", "f", "g"}, names(res))
	assert.Equal(t, 3, findElement(t, res, "f").Span.EndLine)
}

func TestPythonAdapter_Malformed(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"unclosed bracket", "def broken(:\n    pass\n"},
		{"unexpected indent", "x = 1\n    y = 2\n"},
		{"missing block", "def f():\nreturn 1\n"},
		{"unterminated string", "x = \"\"\"never closed\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := NewPythonAdapter(DefaultOptions()).Parse("bad.py", []byte(tt.src))
			assert.True(t, res.HasErrors())
			assert.Empty(t, res.Elements)
		})
	}
}
