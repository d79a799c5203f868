package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSettingsOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	config := `{
  "source_dirs": ["/media/import"],
  "library_start_year": 1990,
  "delete_duplicates": true
}`
	require.NoError(t, os.WriteFile(path, []byte(config), 0644))

	s, err := LoadSettings(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"/media/import"}, s.SourceDirs)
	assert.Equal(t, 1990, s.LibraryStartYear)
	assert.True(t, s.DeleteDuplicates)
	// Untouched keys keep their defaults.
	assert.Equal(t, "Pictures", s.PicturesFolderName)
	assert.NotEmpty(t, s.KnownNameFormats)
}

func TestLoadSettingsEmptyPathIsDefaults(t *testing.T) {
	s, err := LoadSettings("")
	require.NoError(t, err)
	assert.Equal(t, DefaultSettings().PicturesFolderName, s.PicturesFolderName)
}

func TestLoadSettingsBadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))
	_, err := LoadSettings(path)
	assert.Error(t, err)
}
