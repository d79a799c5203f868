package main

import (
	"encoding/json"
	"os"
	"runtime"

	"github.com/pkg/errors"
)

// Settings holds every knob the pipeline needs. It is built once in main,
// optionally overlaid from a JSON config file, and passed by value into
// every component constructor. Nothing reads it ambiently.
type Settings struct {
	// Source and target trees.
	SourceDirs []string `json:"source_dirs"`
	TargetDir  string   `json:"target_dir"`

	// Extension sets, lower-case with leading dot.
	PictureExtensions []string `json:"picture_extensions"`
	VideoExtensions   []string `json:"video_extensions"`

	// Top-level destination buckets under the target root.
	PicturesFolderName string `json:"pictures_folder_name"`
	VideosFolderName   string `json:"videos_folder_name"`
	InvalidFolderName  string `json:"invalid_folder_name"`
	WhatsAppFolderName string `json:"whatsapp_folder_name"`

	// Folder names for special destinations.
	UnknownDateFolderName string `json:"unknown_date_folder_name"`
	DuplicatesFolderName  string `json:"duplicates_folder_name"`
	MetadataFolderName    string `json:"metadata_folder_name"`
	ReportsFolderName     string `json:"reports_folder_name"`
	InputBackupFolderName string `json:"input_backup_folder_name"`

	// Date resolution.
	LibraryStartYear int      `json:"library_start_year"`
	KnownNameFormats []string `json:"known_name_formats"` // Go time layouts
	ScannedDirHint   string   `json:"scanned_dir_hint"`   // parent dirs containing this carry untrustworthy embedded dates
	SubFolderFormat  string   `json:"sub_folder_format"`  // layout for the year-month bucket

	// Auxiliary input files (may be empty).
	TimelineFile       string `json:"timeline_file"`
	KnownLocationsFile string `json:"known_locations_file"`
	CleanDirListFile   string `json:"clean_dir_list_file"`

	// Duplicate handling.
	DeleteDuplicates bool `json:"delete_duplicates"`

	// Words never written as keyword tags (bucket names, camera prefixes).
	TagSkipWords []string `json:"tag_skip_words"`

	// Concurrency cap for per-file operations across the whole run.
	MaxParallel int64 `json:"max_parallel"`
}

// DefaultSettings returns the settings the original library was curated
// with. The known name formats are ordered most-specific first; order is
// significant because the first layout that parses wins.
func DefaultSettings() Settings {
	return Settings{
		PictureExtensions: []string{".jpeg", ".jpg", ".png", ".bmp", ".tiff", ".tif", ".heic"},
		VideoExtensions:   []string{".avi", ".mpg", ".mpeg", ".mp4", ".mov", ".wmv", ".mkv", ".3gp"},

		PicturesFolderName: "Pictures",
		VideosFolderName:   "Videos",
		InvalidFolderName:  "InvalidMedia",
		WhatsAppFolderName: "WhatsAppImport",

		UnknownDateFolderName: "unknown",
		DuplicatesFolderName:  "duplicates",
		MetadataFolderName:    ".rundata",
		ReportsFolderName:     "reports",
		InputBackupFolderName: "input-backup",

		LibraryStartYear: 1970,
		KnownNameFormats: []string{
			"2006-01-02-15-04-05",
			"2006-01-02_15-04-05",
			"20060102_150405-",
			"200601021504",
			"20060102_150405",
			"20060102",
			"0102061504",
			"_2006-01-02-15-04-05",
			"_20060102_150405",
			"_20060102",
			"-20060102",
		},
		ScannedDirHint:  "scan",
		SubFolderFormat: "2006-01",

		DeleteDuplicates: false,
		TagSkipWords: []string{
			"img", "image", "pic", "vid", "photo", "photos", "screenshot",
			"pictures", "videos", "invalidmedia", "whatsappimport",
			"unknown", "duplicates",
		},
		MaxParallel: int64(runtime.NumCPU()),
	}
}

// LoadSettings overlays a JSON config file on top of the defaults.
func LoadSettings(path string) (Settings, error) {
	s := DefaultSettings()
	if path == "" {
		return s, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return s, errors.Wrapf(err, "reading config %s", path)
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return s, errors.Wrapf(err, "parsing config %s", path)
	}
	if s.MaxParallel < 1 {
		s.MaxParallel = 1
	}
	return s, nil
}
