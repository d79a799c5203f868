package main

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rwcarlsen/goexif/exif"
	"github.com/sirupsen/logrus"
)

// MetaStatus classifies the outcome of a metadata read. Corrupt or
// misnamed files are routing decisions here, never errors that abort a
// directory.
type MetaStatus int

const (
	MetaOK MetaStatus = iota
	MetaNoData
	MetaInvalidFormat // extension claims a picture but the bytes are garbage
	MetaNotAnImage    // the bytes are a video container
)

func (s MetaStatus) String() string {
	switch s {
	case MetaOK:
		return "ok"
	case MetaNoData:
		return "no-data"
	case MetaInvalidFormat:
		return "invalid-format"
	case MetaNotAnImage:
		return "not-an-image"
	default:
		return "unknown"
	}
}

// MetaReader reads capture dates, coordinates and keywords from media
// files.
type MetaReader interface {
	CapturedDate(path string) (time.Time, MetaStatus)
	Coordinates(path string) (lat, lon float64, status MetaStatus)
	Keywords(path string) ([]string, MetaStatus)
}

// MetaWriter writes capture dates, coordinates and keywords back into
// media files.
type MetaWriter interface {
	SetCoordinates(path string, lat, lon float64) error
	SetCapturedDate(path string, t time.Time) error
	SetKeywords(path string, keywords []string) error
}

// ExifMetadata reads tags with goexif and writes them by shelling out to
// exiftool, which handles far more container formats than any native
// library.
type ExifMetadata struct {
	log *logrus.Logger
}

// NewExifMetadata creates the exif reader/writer.
func NewExifMetadata(log *logrus.Logger) *ExifMetadata {
	return &ExifMetadata{log: log}
}

// sniffKind looks at the leading bytes to decide what the file really is,
// regardless of its extension.
func sniffKind(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	header := make([]byte, 12)
	n, err := f.Read(header)
	if err != nil || n < 4 {
		return "", fmt.Errorf("short read")
	}
	header = header[:n]

	switch {
	case bytes.HasPrefix(header, []byte{0xFF, 0xD8, 0xFF}):
		return "jpeg", nil
	case bytes.HasPrefix(header, []byte{0x89, 'P', 'N', 'G'}):
		return "png", nil
	case bytes.HasPrefix(header, []byte("II*\x00")) || bytes.HasPrefix(header, []byte("MM\x00*")):
		return "tiff", nil
	case bytes.HasPrefix(header, []byte("BM")):
		return "bmp", nil
	case len(header) >= 12 && bytes.Equal(header[4:8], []byte("ftyp")):
		// ISO base media: mp4/mov/heic all live here.
		if bytes.HasPrefix(header[8:12], []byte("hei")) || bytes.HasPrefix(header[8:12], []byte("mif")) {
			return "heic", nil
		}
		return "video", nil
	case bytes.HasPrefix(header, []byte("RIFF")):
		return "video", nil
	case bytes.HasPrefix(header, []byte{0x1A, 0x45, 0xDF, 0xA3}):
		return "video", nil // matroska/webm
	default:
		return "unknown", nil
	}
}

// classify maps a sniffed kind to the routing status for a file whose
// extension claims a picture.
func classify(kind string) MetaStatus {
	switch kind {
	case "jpeg", "png", "tiff", "bmp", "heic":
		return MetaOK
	case "video":
		return MetaNotAnImage
	default:
		return MetaInvalidFormat
	}
}

// decode opens the file and parses its exif block. Any decode failure on
// a structurally valid image degrades to "no data".
func (m *ExifMetadata) decode(path string) (*exif.Exif, MetaStatus) {
	kind, err := sniffKind(path)
	if err != nil {
		m.log.WithError(err).WithField("file", path).Warn("Unable to read file header")
		return nil, MetaNoData
	}
	if status := classify(kind); status != MetaOK {
		return nil, status
	}

	f, err := os.Open(path)
	if err != nil {
		m.log.WithError(err).WithField("file", path).Warn("Unable to open file")
		return nil, MetaNoData
	}
	defer f.Close()

	x, err := exif.Decode(f)
	if err != nil {
		// Valid image, no usable exif block.
		return nil, MetaNoData
	}
	return x, MetaOK
}

// CapturedDate returns the embedded capture timestamp, when one exists.
func (m *ExifMetadata) CapturedDate(path string) (time.Time, MetaStatus) {
	x, status := m.decode(path)
	if status != MetaOK {
		return time.Time{}, status
	}
	t, err := x.DateTime()
	if err != nil {
		return time.Time{}, MetaNoData
	}
	return t, MetaOK
}

// Coordinates returns the embedded GPS position, when one exists. The
// null-island position is treated as absent since a legitimate capture at
// exactly 0,0 is vanishingly unlikely.
func (m *ExifMetadata) Coordinates(path string) (lat, lon float64, status MetaStatus) {
	x, decodeStatus := m.decode(path)
	if decodeStatus != MetaOK {
		return 0, 0, decodeStatus
	}
	lat, lon, err := x.LatLong()
	if err != nil {
		return 0, 0, MetaNoData
	}
	if lat == 0 && lon == 0 {
		return 0, 0, MetaNoData
	}
	if err := validateCoordinates(lat, lon); err != nil {
		m.log.WithError(err).WithField("file", path).Warn("Discarding out-of-range coordinates")
		return 0, 0, MetaNoData
	}
	return lat, lon, MetaOK
}

// SetCoordinates writes a GPS position into the file via exiftool.
func (m *ExifMetadata) SetCoordinates(path string, lat, lon float64) error {
	if err := validateCoordinates(lat, lon); err != nil {
		return err
	}
	latRef, lonRef := "N", "E"
	if lat < 0 {
		latRef = "S"
	}
	if lon < 0 {
		lonRef = "W"
	}
	args := []string{
		fmt.Sprintf("-GPSLatitude=%f", abs(lat)),
		"-GPSLatitudeRef=" + latRef,
		fmt.Sprintf("-GPSLongitude=%f", abs(lon)),
		"-GPSLongitudeRef=" + lonRef,
		"-overwrite_original",
		path,
	}
	return runExifTool(args)
}

// SetCapturedDate writes DateTimeOriginal into the file via exiftool.
func (m *ExifMetadata) SetCapturedDate(path string, t time.Time) error {
	args := []string{
		"-DateTimeOriginal=" + t.Format("2006:01:02 15:04:05"),
		"-overwrite_original",
		path,
	}
	return runExifTool(args)
}

// Keywords returns the file's keyword list via exiftool. goexif does not
// surface the keyword tags, so reads go through the same tool as writes.
func (m *ExifMetadata) Keywords(path string) ([]string, MetaStatus) {
	out, err := readExifTool([]string{"-s3", "-sep", ";", "-Keywords", path})
	if err != nil {
		m.log.WithError(err).WithField("file", path).Warn("Unable to read keywords")
		return nil, MetaNoData
	}
	if out == "" {
		return nil, MetaNoData
	}
	return strings.Split(out, ";"), MetaOK
}

// SetKeywords replaces the file's keyword list via exiftool.
func (m *ExifMetadata) SetKeywords(path string, keywords []string) error {
	args := []string{
		"-sep", ";",
		"-Keywords=" + strings.Join(keywords, ";"),
		"-overwrite_original",
		path,
	}
	return runExifTool(args)
}

// runExifTool invokes exiftool and folds its output into the error.
func runExifTool(args []string) error {
	cmd := exec.Command("exiftool", args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return errors.Wrapf(err, "exiftool failed: %s", bytes.TrimSpace(output))
	}
	return nil
}

// readExifTool invokes exiftool and returns its trimmed stdout.
func readExifTool(args []string) (string, error) {
	cmd := exec.Command("exiftool", args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", errors.Wrapf(err, "exiftool failed: %s", bytes.TrimSpace(stderr.Bytes()))
	}
	return strings.TrimSpace(stdout.String()), nil
}

// validateCoordinates rejects positions outside the WGS84 envelope.
func validateCoordinates(lat, lon float64) error {
	if lat < -90.0 || lat > 90.0 {
		return fmt.Errorf("latitude %f out of valid range [-90, 90]", lat)
	}
	if lon < -180.0 || lon > 180.0 {
		return fmt.Errorf("longitude %f out of valid range [-180, 180]", lon)
	}
	return nil
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
