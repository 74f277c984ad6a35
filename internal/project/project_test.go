package project

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const readme = `# Shapes

Geometry helpers for the drawing service.
Second line of the description.

## Installation

pip install shapes

## Architecture

Pure functions grouped by shape.

## Purpose

Compute areas and perimeters.
`

func TestParse(t *testing.T) {
	ctx := Parse([]byte(readme))

	assert.Equal(t, "Shapes", ctx.Title)
	assert.Equal(t, "Geometry helpers for the drawing service.\nSecond line of the description.", ctx.Description)
	assert.Equal(t, "Pure functions grouped by shape.", ctx.Architecture)
	assert.Equal(t, "Compute areas and perimeters.", ctx.Purpose)
	assert.Equal(t, "Compute areas and perimeters.", ctx.Summary())
	assert.False(t, ctx.IsEmpty())
}

func TestParse_NoSections(t *testing.T) {
	ctx := Parse([]byte("# Tool\r\n\r\nDoes things.\r\n"))

	assert.Equal(t, "Tool", ctx.Title)
	assert.Equal(t, "Does things.", ctx.Description)
	assert.Empty(t, ctx.Architecture)
	assert.Equal(t, "Does things.", ctx.Summary(), "falls back to the description")
}

func TestParse_SectionsMatchCaseInsensitively(t *testing.T) {
	ctx := Parse([]byte("# T\n\n## ARCHITECTURE\n\nLayers.\n"))
	assert.Equal(t, "Layers.", ctx.Architecture)
	assert.Empty(t, ctx.Description)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	ctx, err := Load(dir)
	require.NoError(t, err)
	assert.True(t, ctx.IsEmpty())

	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte(readme), 0644))
	ctx, err = Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "Shapes", ctx.Title)
}

func TestFirstLine(t *testing.T) {
	assert.Equal(t, "first", FirstLine("\n  first  \nsecond"))
	assert.Empty(t, FirstLine("   \n"))
}
