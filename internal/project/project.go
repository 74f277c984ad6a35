// Package project reads repository-level context for documentation prompts
// from the README.
package project

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// readmeNames are tried in order
var readmeNames = []string{"README.md", "Readme.md", "readme.md"}

// Context is the project description handed to the documentation generator
type Context struct {
	Name         string
	Title        string
	Description  string
	Architecture string
	Purpose      string
}

// IsEmpty reports whether no context was found
func (c Context) IsEmpty() bool {
	return c.Title == "" && c.Description == "" && c.Architecture == "" && c.Purpose == ""
}

// Summary returns the first line of the purpose, or of the description when
// no purpose section exists
func (c Context) Summary() string {
	text := c.Purpose
	if text == "" {
		text = c.Description
	}
	return FirstLine(text)
}

// Load reads the README under root. A missing README yields an empty context.
func Load(root string) (Context, error) {
	for _, name := range readmeNames {
		data, err := os.ReadFile(filepath.Join(root, name))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return Context{}, fmt.Errorf("read %s: %w", name, err)
		}
		return Parse(data), nil
	}
	return Context{}, nil
}

// Parse extracts the title, the description between the title and the first
// second-level heading, and the "Architecture" and "Purpose" sections.
func Parse(content []byte) Context {
	var ctx Context
	lines := strings.Split(strings.ReplaceAll(string(content), "\r\n", "\n"), "\n")

	section := ""
	seenTitle := false
	var body []string
	flush := func() {
		text := strings.TrimSpace(strings.Join(body, "\n"))
		switch section {
		case "description":
			ctx.Description = text
		case "architecture":
			ctx.Architecture = text
		case "purpose":
			ctx.Purpose = text
		}
		body = body[:0]
	}

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		switch {
		case !seenTitle && strings.HasPrefix(trimmed, "# "):
			ctx.Title = strings.TrimSpace(trimmed[2:])
			seenTitle = true
			section = "description"
		case strings.HasPrefix(trimmed, "## "):
			flush()
			switch strings.ToLower(strings.TrimSpace(trimmed[3:])) {
			case "architecture":
				section = "architecture"
			case "purpose":
				section = "purpose"
			default:
				section = ""
			}
		default:
			body = append(body, line)
		}
	}
	flush()

	return ctx
}

// FirstLine returns the first non-blank line of text, trimmed
func FirstLine(text string) string {
	for _, line := range strings.Split(text, "\n") {
		if t := strings.TrimSpace(line); t != "" {
			return t
		}
	}
	return ""
}
