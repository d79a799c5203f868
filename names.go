package main

import (
	"encoding/csv"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// DirectoryReplace is one substitution applied while cleaning names,
// loaded from the operator's clean-dir CSV (original,replace_with).
type DirectoryReplace struct {
	Original    string
	ReplaceWith string
}

// FileNamer cleans source names and builds destination file names. Device
// export tools produce folder junk ("Camera Roll", vendor prefixes) that
// the clean list rewrites, and some tools name files with bare UUIDs that
// carry no meaning; those get a short numeric surrogate instead.
type FileNamer struct {
	settings Settings
	log      *logrus.Logger
	replaces []DirectoryReplace
}

// NewFileNamer creates a namer with an empty replace list.
func NewFileNamer(settings Settings, log *logrus.Logger) *FileNamer {
	return &FileNamer{settings: settings, log: log}
}

// LoadCleanDirList reads the replace list CSV. A missing file is logged
// and ignored; cleaning then degrades to UUID handling only.
func (n *FileNamer) LoadCleanDirList(path string) error {
	f, err := os.Open(path)
	if err != nil {
		n.log.WithField("file", path).Warn("Unable to find clean-dir list")
		return nil
	}
	defer f.Close()

	reader := csv.NewReader(f)
	rows, err := reader.ReadAll()
	if err != nil {
		return errors.Wrapf(err, "parsing %s", path)
	}
	n.replaces = n.replaces[:0]
	for i, row := range rows {
		if i == 0 && strings.EqualFold(row[0], "original") {
			continue // header
		}
		if len(row) < 2 {
			continue
		}
		n.replaces = append(n.replaces, DirectoryReplace{Original: row[0], ReplaceWith: row[1]})
	}
	n.log.WithFields(logrus.Fields{"count": len(n.replaces), "file": filepath.Base(path)}).
		Debug("Loaded clean-dir entries")
	return nil
}

// MakeDirectoryName maps a resolved capture date to its year-month
// bucket, or to the unknown-date folder when the date is absent or
// precedes the library start year.
func (n *FileNamer) MakeDirectoryName(t time.Time) string {
	if t.IsZero() || t.Year() < n.settings.LibraryStartYear {
		return n.settings.UnknownDateFolderName
	}
	return t.Format(n.settings.SubFolderFormat)
}

// CleanName applies the replace list to a name, and swaps a bare-UUID
// base name for a short numeric surrogate so destination names stay
// human-scannable.
func (n *FileNamer) CleanName(input string) string {
	if input == "" {
		return input
	}
	ext := filepath.Ext(input)
	output := strings.TrimSuffix(input, ext)
	if isUUIDName(output) {
		surrogate := uuidSurrogate(output)
		n.log.WithFields(logrus.Fields{"file": input, "new_name": surrogate}).
			Debug("Found UUID name, renaming")
		return surrogate + ext
	}
	for _, r := range n.replaces {
		output = strings.ReplaceAll(output, r.Original, r.ReplaceWith)
	}
	return output + ext
}

// DestinationFileName builds the copied file's name: the cleaned parent
// directory name prefixed to the cleaned file name, with underscore runs
// squashed. This keeps the original folder context visible once files
// from many sources land in the same month bucket.
func (n *FileNamer) DestinationFileName(item MediaItem) string {
	dirName := n.CleanName(item.Dir)
	if dirName != "" {
		dirName += " "
	}
	result := strings.ReplaceAll(dirName+n.CleanName(item.Name), "__", "_")
	result = strings.TrimPrefix(result, "_")
	if result == "" {
		result = uuidSurrogate(item.Path) + item.Extension
	}
	return result
}

// uuidSurrogate hashes a meaningless identifier into a short stable
// numeric name.
func uuidSurrogate(s string) string {
	h := fnv.New32a()
	h.Write([]byte(s))
	return fmt.Sprintf("%d", h.Sum32())
}
