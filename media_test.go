package main

import (
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProvider(t *testing.T) *FileProvider {
	t.Helper()
	log, _ := test.NewNullLogger()
	return NewFileProvider(DefaultSettings(), log)
}

func TestListFilesFiltersByMediaType(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, filepath.Join(dir, "b.jpg"), "x")
	writeTestFile(t, filepath.Join(dir, "a.PNG"), "x")
	writeTestFile(t, filepath.Join(dir, "clip.mp4"), "x")
	writeTestFile(t, filepath.Join(dir, "notes.txt"), "x")
	writeTestFile(t, filepath.Join(dir, "nested", "c.jpg"), "x")

	fp := newTestProvider(t)

	pictures, err := fp.ListFiles(dir, Pictures, true)
	require.NoError(t, err)
	require.Len(t, pictures, 2, "top level only, media extensions only")
	assert.Equal(t, "a.PNG", pictures[0].Name, "sorted by name")
	assert.Equal(t, ".png", pictures[0].Extension, "extension lower-cased")
	assert.Equal(t, "b.jpg", pictures[1].Name)

	videos, err := fp.ListFiles(dir, Videos, true)
	require.NoError(t, err)
	require.Len(t, videos, 1)
	assert.Equal(t, "clip.mp4", videos[0].Name)

	all, err := fp.ListFiles(dir, AllMedia, true)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestListFilesRecursiveSkipsBookkeepingFolders(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, filepath.Join(dir, "a.jpg"), "x")
	writeTestFile(t, filepath.Join(dir, "sub", "b.jpg"), "x")
	writeTestFile(t, filepath.Join(dir, ".rundata", "20200101-000000.json"), "{}")
	writeTestFile(t, filepath.Join(dir, ".rundata", "stray.jpg"), "x")
	writeTestFile(t, filepath.Join(dir, "reports", "stray.jpg"), "x")

	fp := newTestProvider(t)
	items, err := fp.ListFilesRecursive(dir, Pictures, true)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "sub", items[1].Dir)
}

func TestSubDirectoriesSkipsBookkeepingFolders(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, filepath.Join(dir, "2020-01", "a.jpg"), "x")
	writeTestFile(t, filepath.Join(dir, "2020-02", "b.jpg"), "x")
	writeTestFile(t, filepath.Join(dir, ".rundata", "snap.json"), "{}")
	writeTestFile(t, filepath.Join(dir, "reports", "r.csv"), "")

	fp := newTestProvider(t)
	dirs, err := fp.SubDirectories(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "2020-01"),
		filepath.Join(dir, "2020-02"),
	}, dirs)
}
