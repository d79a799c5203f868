package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanupEmptyDirectories(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "a", "b"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "d"), 0755))
	writeTestFile(t, filepath.Join(root, "c", "keep.jpg"), "x")

	removed, err := cleanupEmptyDirectories(root)
	require.NoError(t, err)
	assert.Equal(t, 3, removed, "nested empties disappear across passes")

	assert.NoDirExists(t, filepath.Join(root, "a"))
	assert.NoDirExists(t, filepath.Join(root, "d"))
	assert.DirExists(t, filepath.Join(root, "c"))
	assert.DirExists(t, root, "the base path itself is never removed")
}

func TestCleanupLeavesPopulatedTreeAlone(t *testing.T) {
	root := t.TempDir()
	writeTestFile(t, filepath.Join(root, "a", "b", "keep.jpg"), "x")

	removed, err := cleanupEmptyDirectories(root)
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
	assert.FileExists(t, filepath.Join(root, "a", "b", "keep.jpg"))
}
