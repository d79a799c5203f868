package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTracker(t *testing.T) *RunDataTracker {
	t.Helper()
	log, _ := test.NewNullLogger()
	return NewRunDataTracker(DefaultSettings(), log)
}

func TestRunDataAddIsAUnion(t *testing.T) {
	rt := newTestTracker(t)
	rt.Add([]MediaItem{{Path: "/src/a.jpg"}, {Path: "/src/b.jpg"}}, "/src", Pictures)
	rt.Add([]MediaItem{{Path: "/src/c.mp4"}}, "/src", Videos)
	rt.Add([]MediaItem{{Path: "/src/a.jpg"}}, "/src", Pictures)

	assert.Equal(t, 3, rt.FileCount(), "re-adding the same path must not double count")
}

func TestRunDataRoundTrip(t *testing.T) {
	target := t.TempDir()
	rt := newTestTracker(t)
	rt.Add([]MediaItem{
		{Path: "/src/a.jpg", Name: "a.jpg", Size: 10},
		{Path: "/src/b.jpg", Name: "b.jpg", Size: 20},
	}, "/src", Pictures)
	rt.Add([]MediaItem{{Path: "/other/c.mp4", Name: "c.mp4", Size: 30}}, "/other", Videos)

	path, err := rt.WriteToDisk(target)
	require.NoError(t, err)
	assert.FileExists(t, path)
	assert.Equal(t, filepath.Join(target, rt.settings.MetadataFolderName), filepath.Dir(path))

	reader := newTestTracker(t)
	skip, err := reader.ReadFromDisk(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, skip, 3)
	assert.Contains(t, skip, "/src/a.jpg")
	assert.Contains(t, skip, "/other/c.mp4")
}

func TestReadFromDiskPicksMostRecentSnapshot(t *testing.T) {
	metaDir := t.TempDir()
	writeSnapshot := func(name, path string) string {
		run := RunMetadata{Folders: map[string]*ManifestFolder{
			"/src": {Name: "src", FullName: "/src", Files: map[string]MediaItem{path: {Path: path}}},
		}}
		data, err := json.Marshal(run)
		require.NoError(t, err)
		full := filepath.Join(metaDir, name)
		require.NoError(t, os.WriteFile(full, data, 0644))
		return full
	}
	olderPath := writeSnapshot("20200101-120000.json", "/src/old.jpg")
	newerPath := writeSnapshot("20200202-120000.json", "/src/new.jpg")

	// Selection goes by modification time, not by file name.
	now := time.Now()
	require.NoError(t, os.Chtimes(olderPath, now.Add(-time.Hour), now.Add(-time.Hour)))
	require.NoError(t, os.Chtimes(newerPath, now, now))

	skip, err := newTestTracker(t).ReadFromDisk(metaDir)
	require.NoError(t, err)
	assert.Contains(t, skip, "/src/new.jpg")
	assert.NotContains(t, skip, "/src/old.jpg")
}

func TestReadFromDiskWithoutSnapshotFails(t *testing.T) {
	rt := newTestTracker(t)

	_, err := rt.ReadFromDisk(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)

	empty := t.TempDir()
	_, err = rt.ReadFromDisk(empty)
	assert.Error(t, err, "an empty metadata folder has no snapshot to delta against")
}

func TestSkipListExcludesProcessedFiles(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, filepath.Join(dir, "seen.jpg"), "x")
	writeTestFile(t, filepath.Join(dir, "fresh.jpg"), "y")

	log, _ := test.NewNullLogger()
	provider := NewFileProvider(DefaultSettings(), log)
	provider.SetSkipList(map[string]struct{}{filepath.Join(dir, "seen.jpg"): {}})

	items, err := provider.ListFiles(dir, Pictures, false)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "fresh.jpg", items[0].Name)

	// Passes that need the whole tree can opt back in.
	items, err = provider.ListFiles(dir, Pictures, true)
	require.NoError(t, err)
	assert.Len(t, items, 2)
}
