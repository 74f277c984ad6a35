package parser

import (
	"strings"

	"github.com/dshills/docsync/internal/lexer"
	"github.com/dshills/docsync/pkg/types"
)

// docFinder attaches doc comments to declarations. A comment belongs to the
// declaration that follows it when only blank lines or other comments lie in
// between, and no more than gap of those lines are blank.
type docFinder struct {
	path     string
	comments []lexer.Comment
	raw      []string
	masked   []string
	gap      int
	accept   func(lexer.Comment) bool
	claimed  map[int]bool
}

func newDocFinder(path string, m *lexer.Masked, raw []string, gap int, accept func(lexer.Comment) bool) *docFinder {
	return &docFinder{
		path:     path,
		comments: m.Comments,
		raw:      raw,
		masked:   m.Lines(),
		gap:      gap,
		accept:   accept,
		claimed:  make(map[int]bool),
	}
}

// before returns the doc block for a declaration starting on declLine and
// marks it as used. Lines are 1-based.
func (f *docFinder) before(declLine int) *types.DocBlock {
	idx := -1
	for i := len(f.comments) - 1; i >= 0; i-- {
		c := f.comments[i]
		if c.EndLine >= declLine {
			continue
		}
		if !f.accept(c) {
			continue
		}
		idx = i
		break
	}
	if idx < 0 || f.claimed[idx] {
		return nil
	}

	c := f.comments[idx]
	if c.Trailing || f.hasCode(c.EndLine) {
		return nil
	}

	blank := 0
	for line := c.EndLine + 1; line < declLine; line++ {
		if f.hasCode(line) {
			return nil
		}
		if strings.TrimSpace(f.rawLine(line)) == "" {
			blank++
		}
	}
	if f.gap >= 0 && blank > f.gap {
		return nil
	}

	f.claimed[idx] = true
	return &types.DocBlock{
		Text: cleanBlockComment(c.Text),
		Span: types.Span{Path: f.path, StartLine: c.StartLine, EndLine: c.EndLine},
	}
}

// leading returns the first doc comment of the file when it opens the file
// and is followed by a blank line, so that it documents the module rather
// than the first declaration.
func (f *docFinder) leading() *types.DocBlock {
	for i, c := range f.comments {
		if !f.accept(c) {
			// License headers and shebang-style comments may precede the module doc
			if c.Block || c.StartLine <= 2 {
				continue
			}
			return nil
		}
		for line := 1; line < c.StartLine; line++ {
			if f.hasCode(line) {
				return nil
			}
		}
		if c.Trailing || f.hasCode(c.EndLine) {
			return nil
		}
		next := c.EndLine + 1
		if next <= len(f.raw) && strings.TrimSpace(f.rawLine(next)) != "" && !f.isCommentLine(next) {
			return nil
		}
		f.claimed[i] = true
		return &types.DocBlock{
			Text: cleanBlockComment(c.Text),
			Span: types.Span{Path: f.path, StartLine: c.StartLine, EndLine: c.EndLine},
		}
	}
	return nil
}

func (f *docFinder) hasCode(line int) bool {
	if line < 1 || line > len(f.masked) {
		return false
	}
	return strings.TrimSpace(f.masked[line-1]) != ""
}

func (f *docFinder) rawLine(line int) string {
	if line < 1 || line > len(f.raw) {
		return ""
	}
	return f.raw[line-1]
}

func (f *docFinder) isCommentLine(line int) bool {
	return strings.TrimSpace(f.rawLine(line)) != "" && !f.hasCode(line)
}

// cleanBlockComment strips comment delimiters and leading asterisks
func cleanBlockComment(text string) string {
	text = strings.TrimSpace(text)
	switch {
	case strings.HasPrefix(text, "/**"):
		text = strings.TrimPrefix(text, "/**")
		text = strings.TrimSuffix(text, "*/")
	case strings.HasPrefix(text, "/*"):
		text = strings.TrimPrefix(text, "/*")
		text = strings.TrimSuffix(text, "*/")
	}

	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		l = strings.TrimSpace(l)
		l = strings.TrimPrefix(l, "//")
		if strings.HasPrefix(l, "*") {
			l = strings.TrimPrefix(l, "*")
		}
		out = append(out, strings.TrimRight(strings.TrimPrefix(l, " "), " \t"))
	}
	return trimBlankLines(out)
}

// cleanDocstring removes quotes and common indentation from a Python string
// literal, mirroring inspect.cleandoc.
func cleanDocstring(literal string) string {
	s := strings.TrimLeft(literal, "rRbBuUfF")
	for _, q := range []string{`"""`, `'''`, `"`, `'`} {
		if strings.HasPrefix(s, q) && strings.HasSuffix(s, q) && len(s) >= 2*len(q) {
			s = s[len(q) : len(s)-len(q)]
			break
		}
	}

	lines := strings.Split(strings.ReplaceAll(s, "\t", "    "), "\n")
	indent := -1
	for _, l := range lines[1:] {
		stripped := strings.TrimLeft(l, " ")
		if stripped == "" {
			continue
		}
		if n := len(l) - len(stripped); indent < 0 || n < indent {
			indent = n
		}
	}

	out := make([]string, 0, len(lines))
	out = append(out, strings.TrimSpace(lines[0]))
	for _, l := range lines[1:] {
		if indent > 0 && len(l) >= indent {
			l = l[indent:]
		}
		out = append(out, strings.TrimRight(l, " "))
	}
	return trimBlankLines(out)
}

func trimBlankLines(lines []string) string {
	start, end := 0, len(lines)
	for start < end && strings.TrimSpace(lines[start]) == "" {
		start++
	}
	for end > start && strings.TrimSpace(lines[end-1]) == "" {
		end--
	}
	return strings.Join(lines[start:end], "\n")
}

// splitLines splits content into lines without trailing carriage returns
func splitLines(content []byte) []string {
	lines := strings.Split(string(content), "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}
