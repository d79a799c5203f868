package main

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// MediaType selects which extension set a discovery pass cares about.
type MediaType int

const (
	AllMedia MediaType = iota
	Pictures
	Videos
)

func (m MediaType) String() string {
	switch m {
	case Pictures:
		return "pictures"
	case Videos:
		return "videos"
	default:
		return "all-media"
	}
}

// MediaItem is one physical file at discovery time. Identity is the
// absolute source path; the rest is captured once and never re-read.
type MediaItem struct {
	Path      string    `json:"full_name"`
	Name      string    `json:"name"`
	Extension string    `json:"extension"`
	Size      int64     `json:"length"`
	ModTime   time.Time `json:"last_write_time_utc"`
	Dir       string    `json:"-"`
}

// newMediaItem builds a MediaItem from a path and its stat result.
func newMediaItem(path string, info os.FileInfo) MediaItem {
	return MediaItem{
		Path:      path,
		Name:      info.Name(),
		Extension: strings.ToLower(filepath.Ext(path)),
		Size:      info.Size(),
		ModTime:   info.ModTime().UTC(),
		Dir:       filepath.Base(filepath.Dir(path)),
	}
}

// FileProvider lists media files, honouring the delta-run exclusion set.
type FileProvider struct {
	settings Settings
	log      *logrus.Logger
	skip     map[string]struct{}
}

// NewFileProvider creates a file provider with an empty exclusion set.
func NewFileProvider(settings Settings, log *logrus.Logger) *FileProvider {
	return &FileProvider{settings: settings, log: log, skip: map[string]struct{}{}}
}

// SetSkipList installs the set of paths a previous run already processed.
// Subsequent listings silently omit them unless asked not to.
func (fp *FileProvider) SetSkipList(paths map[string]struct{}) {
	fp.log.WithField("count", len(paths)).Info("Adding files to the exclusion list")
	fp.skip = paths
}

// matches reports whether ext belongs to the requested media type.
func (fp *FileProvider) matches(ext string, mediaType MediaType) bool {
	switch mediaType {
	case Pictures:
		return containsString(fp.settings.PictureExtensions, ext)
	case Videos:
		return containsString(fp.settings.VideoExtensions, ext)
	default:
		return containsString(fp.settings.PictureExtensions, ext) ||
			containsString(fp.settings.VideoExtensions, ext)
	}
}

// ListFiles returns the media files directly inside dir (no recursion),
// sorted by name so callers see a stable order.
func (fp *FileProvider) ListFiles(dir string, mediaType MediaType, includeAlreadyProcessed bool) ([]MediaItem, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "listing %s", dir)
	}
	var items []MediaItem
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if !includeAlreadyProcessed {
			if _, skipped := fp.skip[path]; skipped {
				continue
			}
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if !fp.matches(ext, mediaType) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			fp.log.WithError(err).WithField("file", path).Warn("Unable to stat file")
			continue
		}
		items = append(items, newMediaItem(path, info))
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	return items, nil
}

// ListFilesRecursive walks dir depth-first and returns every matching
// media file under it, honouring the exclusion set.
func (fp *FileProvider) ListFilesRecursive(dir string, mediaType MediaType, includeAlreadyProcessed bool) ([]MediaItem, error) {
	var items []MediaItem
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			// Never descend into our own bookkeeping folders.
			name := info.Name()
			if name == fp.settings.MetadataFolderName || name == fp.settings.ReportsFolderName {
				return filepath.SkipDir
			}
			return nil
		}
		if !includeAlreadyProcessed {
			if _, skipped := fp.skip[path]; skipped {
				return nil
			}
		}
		ext := strings.ToLower(filepath.Ext(path))
		if fp.matches(ext, mediaType) {
			items = append(items, newMediaItem(path, info))
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "walking %s", dir)
	}
	return items, nil
}

// SubDirectories returns the immediate child directories of dir, skipping
// bookkeeping folders.
func (fp *FileProvider) SubDirectories(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "listing %s", dir)
	}
	var dirs []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		if name == fp.settings.MetadataFolderName || name == fp.settings.ReportsFolderName {
			continue
		}
		dirs = append(dirs, filepath.Join(dir, name))
	}
	sort.Strings(dirs)
	return dirs, nil
}

// isPicture reports whether path has a configured picture extension.
func (fp *FileProvider) isPicture(path string) bool {
	return containsString(fp.settings.PictureExtensions, strings.ToLower(filepath.Ext(path)))
}

// isVideo reports whether path has a configured video extension.
func (fp *FileProvider) isVideo(path string) bool {
	return containsString(fp.settings.VideoExtensions, strings.ToLower(filepath.Ext(path)))
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
