package jsonstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteThenReadMarkdown(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, writeMarkdown(dir, "TASK-001", "# My Title\n\nbody text"))

	body, title, err := readMarkdown(dir, "TASK-001")
	require.NoError(t, err)
	assert.Equal(t, "My Title", title)
	assert.Contains(t, body, "body text")
}

func TestReadMarkdownMissingFileIsNotError(t *testing.T) {
	body, title, err := readMarkdown(t.TempDir(), "TASK-404")
	require.NoError(t, err)
	assert.Empty(t, body)
	assert.Empty(t, title)
}

func TestWriteMarkdownEmptyBodyRemovesFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, writeMarkdown(dir, "TASK-001", "content"))
	require.NoError(t, writeMarkdown(dir, "TASK-001", ""))

	_, err := os.Stat(filepath.Join(dir, "TASK-001.md"))
	assert.True(t, os.IsNotExist(err))
}
