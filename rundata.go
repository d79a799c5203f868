package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// ManifestFolder is the per-directory slice of a run manifest.
type ManifestFolder struct {
	Name     string               `json:"name"`
	FullName string               `json:"full_name"`
	Type     string               `json:"type"`
	Files    map[string]MediaItem `json:"files"`
}

// RunMetadata is the snapshot persisted at the end of a run: which files
// were processed, per directory, between which timestamps.
type RunMetadata struct {
	ID        uuid.UUID                  `json:"id"`
	StartTime time.Time                  `json:"start_time"`
	EndTime   time.Time                  `json:"end_time"`
	Folders   map[string]*ManifestFolder `json:"folders"`
}

// RunDataTracker accumulates the manifest during a run and round-trips it
// through snapshot files. Add races with the parallel copy pipeline
// across directories, so the folder map is mutex-guarded; everything else
// happens before or after the fan-out.
type RunDataTracker struct {
	settings Settings
	log      *logrus.Logger

	mu  sync.Mutex
	run RunMetadata
}

// NewRunDataTracker starts an empty manifest for a fresh run.
func NewRunDataTracker(settings Settings, log *logrus.Logger) *RunDataTracker {
	return &RunDataTracker{
		settings: settings,
		log:      log,
		run: RunMetadata{
			ID:        uuid.New(),
			StartTime: time.Now(),
			Folders:   map[string]*ManifestFolder{},
		},
	}
}

// Add merges the processed files into the directory's manifest entry.
// Union, not replace: a directory visited by both the picture and the
// video pass keeps the files of both.
func (rt *RunDataTracker) Add(files []MediaItem, dir string, mediaType MediaType) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	folder, ok := rt.run.Folders[dir]
	if !ok {
		folder = &ManifestFolder{
			Name:     filepath.Base(dir),
			FullName: dir,
			Type:     mediaType.String(),
			Files:    map[string]MediaItem{},
		}
		rt.run.Folders[dir] = folder
	}
	for _, file := range files {
		folder.Files[file.Path] = file
	}
}

// FileCount returns the number of files recorded so far.
func (rt *RunDataTracker) FileCount() int {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	count := 0
	for _, folder := range rt.run.Folders {
		count += len(folder.Files)
	}
	return count
}

// WriteToDisk stamps the run's end time and persists the manifest as a
// snapshot named by that timestamp under the target's metadata folder.
func (rt *RunDataTracker) WriteToDisk(targetRoot string) (string, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	rt.run.EndTime = time.Now()
	dir := filepath.Join(targetRoot, rt.settings.MetadataFolderName)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", errors.Wrapf(err, "creating %s", dir)
	}
	path := filepath.Join(dir, rt.run.EndTime.Format("20060102-150405")+".json")

	data, err := json.MarshalIndent(rt.run, "", "  ")
	if err != nil {
		return "", errors.Wrap(err, "serializing run metadata")
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", errors.Wrapf(err, "writing %s", path)
	}
	rt.log.WithField("file", path).Info("Saved run metadata")
	return path, nil
}

// ReadFromDisk loads the most recently modified snapshot in metadataRoot
// and returns the flattened set of every file path it recorded, for use
// as the delta-run exclusion set. No snapshot at all is an error; delta
// mode cannot determine "new since when" without one.
func (rt *RunDataTracker) ReadFromDisk(metadataRoot string) (map[string]struct{}, error) {
	entries, err := os.ReadDir(metadataRoot)
	if err != nil {
		return nil, errors.Wrapf(err, "listing %s", metadataRoot)
	}

	var latest string
	var latestMod time.Time
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if latest == "" || info.ModTime().After(latestMod) {
			latest = filepath.Join(metadataRoot, entry.Name())
			latestMod = info.ModTime()
		}
	}
	if latest == "" {
		return nil, errors.Errorf("no snapshot file found in %s", metadataRoot)
	}

	data, err := os.ReadFile(latest)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", latest)
	}
	var previous RunMetadata
	if err := json.Unmarshal(data, &previous); err != nil {
		return nil, errors.Wrapf(err, "parsing %s", latest)
	}

	skip := map[string]struct{}{}
	for _, folder := range previous.Folders {
		for path := range folder.Files {
			skip[path] = struct{}{}
		}
	}
	rt.log.WithFields(logrus.Fields{
		"snapshot": filepath.Base(latest),
		"files":    len(skip),
	}).Info("Loaded previous run snapshot")
	return skip, nil
}
