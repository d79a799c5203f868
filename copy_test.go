package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCopier(t *testing.T, fake *fakeMetaStore) (*MediaCopier, *RunDataTracker) {
	t.Helper()
	log, _ := test.NewNullLogger()
	settings := DefaultSettings()
	provider := NewFileProvider(settings, log)
	resolver := NewDateResolver(settings, log)
	resolver.now = func() time.Time { return time.Date(2022, 6, 1, 0, 0, 0, 0, time.UTC) }
	namer := NewFileNamer(settings, log)
	runData := NewRunDataTracker(settings, log)
	copier := NewMediaCopier(settings, log, provider, resolver, namer, fake, fake, NewLimiter(4), runData)
	return copier, runData
}

func TestCopyRoutesMediaIntoBuckets(t *testing.T) {
	src := t.TempDir()
	target := t.TempDir()
	writeTestFile(t, filepath.Join(src, "trip", "20200105_120000.jpg"), "named date")
	writeTestFile(t, filepath.Join(src, "trip", "embed.jpg"), "embedded date")
	writeTestFile(t, filepath.Join(src, "trip", "corrupt.jpg"), "garbage")
	writeTestFile(t, filepath.Join(src, "trip", "actually-video.jpg"), "video bytes")
	writeTestFile(t, filepath.Join(src, "trip", "IMG-20200110-WA0007.jpg"), "forwarded")
	writeTestFile(t, filepath.Join(src, "vid", "holiday.mp4"), "a video")

	fake := newFakeMetaStore()
	fake.dates["embed.jpg"] = time.Date(2019, 3, 2, 10, 0, 0, 0, time.UTC)
	fake.states["corrupt.jpg"] = MetaInvalidFormat
	fake.states["actually-video.jpg"] = MetaNotAnImage

	copier, runData := newTestCopier(t, fake)
	stats, err := copier.Copy(context.Background(), src, target)
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Pictures)
	assert.Equal(t, 2, stats.Videos)
	assert.Equal(t, 1, stats.WhatsApp)
	assert.Equal(t, 1, stats.Invalid)
	assert.Equal(t, 0, stats.Failed)

	assert.FileExists(t, filepath.Join(target, "Pictures", "2020-01", "trip 20200105_120000.jpg"))
	assert.FileExists(t, filepath.Join(target, "Pictures", "2019-03", "trip embed.jpg"))
	assert.FileExists(t, filepath.Join(target, "InvalidMedia", "trip corrupt.jpg"))
	assert.FileExists(t, filepath.Join(target, "Videos", "unknown", "trip actually-video.jpg"))
	assert.FileExists(t, filepath.Join(target, "WhatsAppImport", "2020-01", "trip IMG-20200110-WA0007.jpg"))
	assert.FileExists(t, filepath.Join(target, "Videos", "unknown", "vid holiday.mp4"))

	assert.Equal(t, 6, runData.FileCount())
}

func TestCopyWritesInferredDateIntoCopy(t *testing.T) {
	src := t.TempDir()
	target := t.TempDir()
	writeTestFile(t, filepath.Join(src, "trip", "20200105_120000.jpg"), "named date")
	writeTestFile(t, filepath.Join(src, "trip", "embed.jpg"), "embedded date")

	fake := newFakeMetaStore()
	embedded := time.Date(2019, 3, 2, 10, 0, 0, 0, time.UTC)
	fake.dates["embed.jpg"] = embedded

	copier, _ := newTestCopier(t, fake)
	_, err := copier.Copy(context.Background(), src, target)
	require.NoError(t, err)

	// Name-derived dates are persisted into the copy's tag.
	inferredDest := filepath.Join(target, "Pictures", "2020-01", "trip 20200105_120000.jpg")
	got, ok := fake.setDates[inferredDest]
	require.True(t, ok, "expected a tag write for the name-dated file")
	assert.True(t, time.Date(2020, 1, 5, 12, 0, 0, 0, time.UTC).Equal(got))

	// Files that already carry a tag are left alone.
	embeddedDest := filepath.Join(target, "Pictures", "2019-03", "trip embed.jpg")
	_, ok = fake.setDates[embeddedDest]
	assert.False(t, ok)
}

func TestCopyDryRunTouchesNothing(t *testing.T) {
	src := t.TempDir()
	target := filepath.Join(t.TempDir(), "library")
	writeTestFile(t, filepath.Join(src, "trip", "20200105_120000.jpg"), "named date")

	fake := newFakeMetaStore()
	copier, _ := newTestCopier(t, fake)
	copier.DryRun = true
	stats, err := copier.Copy(context.Background(), src, target)
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Pictures)
	assert.NoDirExists(t, target)
	assert.Empty(t, fake.setDates)
}

func TestCopyPreservesModTime(t *testing.T) {
	src := t.TempDir()
	target := t.TempDir()
	srcFile := filepath.Join(src, "trip", "20200105_120000.jpg")
	writeTestFile(t, srcFile, "named date")
	stamp := time.Date(2020, 1, 5, 12, 0, 0, 0, time.UTC)
	require.NoError(t, os.Chtimes(srcFile, stamp, stamp))

	copier, _ := newTestCopier(t, newFakeMetaStore())
	_, err := copier.Copy(context.Background(), src, target)
	require.NoError(t, err)

	dest := filepath.Join(target, "Pictures", "2020-01", "trip 20200105_120000.jpg")
	info, err := os.Stat(dest)
	require.NoError(t, err)
	assert.True(t, stamp.Equal(info.ModTime().UTC()))
}
