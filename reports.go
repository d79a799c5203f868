package main

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// ReportWriter serializes pass results as CSV under the target's reports
// folder. File names carry the directory and pass name so "before" and
// "after" passes never overwrite each other.
type ReportWriter struct {
	settings   Settings
	log        *logrus.Logger
	targetRoot string
}

// NewReportWriter creates a writer rooted at the target tree.
func NewReportWriter(settings Settings, log *logrus.Logger, targetRoot string) *ReportWriter {
	return &ReportWriter{settings: settings, log: log, targetRoot: targetRoot}
}

func (rw *ReportWriter) reportPath(dir, passName, kind string) string {
	name := fmt.Sprintf("%s_%s_%s.csv", filepath.Base(dir), passName, kind)
	return filepath.Join(rw.targetRoot, rw.settings.ReportsFolderName, name)
}

// writeCSV writes header+rows to path, creating the reports folder on
// first use.
func (rw *ReportWriter) writeCSV(path string, header []string, rows [][]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrapf(err, "creating %s", filepath.Dir(path))
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "creating %s", path)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return err
	}
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// WriteLocationDetail writes one directory's records sorted by capture
// date.
func (rw *ReportWriter) WriteLocationDetail(dir, passName string, records []*LocationRecord) error {
	sorted := make([]*LocationRecord, len(records))
	copy(sorted, records)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Taken.Before(sorted[j].Taken) })

	rows := make([][]string, 0, len(sorted))
	for _, record := range sorted {
		lat, lon := "", ""
		if record.HasCoords {
			lat = strconv.FormatFloat(record.Latitude, 'f', 6, 64)
			lon = strconv.FormatFloat(record.Longitude, 'f', 6, 64)
		}
		taken := ""
		if !record.Taken.IsZero() {
			taken = record.Taken.Format("2006-01-02 15:04:05")
		}
		rows = append(rows, []string{record.Path, taken, lat, lon})
	}
	return rw.writeCSV(
		rw.reportPath(dir, passName, "detail"),
		[]string{"full_file_name", "date_time", "latitude", "longitude"},
		rows,
	)
}

// WriteMissingRanges writes the gap intervals still lacking coordinates.
func (rw *ReportWriter) WriteMissingRanges(dir, passName string, ranges []MissingRange) error {
	rows := make([][]string, 0, len(ranges))
	for _, r := range ranges {
		rows = append(rows, []string{
			r.Start.Format("2006-01-02 15:04:05"),
			r.End.Format("2006-01-02 15:04:05"),
		})
	}
	return rw.writeCSV(
		rw.reportPath(dir, passName, "missing-locations"),
		[]string{"start", "end"},
		rows,
	)
}

// WriteDuplicates writes the resolved duplicate pairs, sorted by the
// kept path for stable output.
func (rw *ReportWriter) WriteDuplicates(records []DuplicateRecord) error {
	sorted := make([]DuplicateRecord, len(records))
	copy(sorted, records)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Kept < sorted[j].Kept })

	rows := make([][]string, 0, len(sorted))
	for _, record := range sorted {
		rows = append(rows, []string{
			record.Kept,
			record.Loser,
			strconv.FormatInt(record.Size, 10),
			record.Hash,
			strconv.FormatBool(record.Deleted),
		})
	}
	path := filepath.Join(rw.targetRoot, rw.settings.ReportsFolderName, "reportDuplicates.csv")
	return rw.writeCSV(path, []string{"kept", "removed", "size", "hash", "deleted"}, rows)
}
