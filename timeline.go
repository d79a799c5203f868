package main

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// TimelineInterval is one operator-curated span of time spent at a fixed
// position.
type TimelineInterval struct {
	Start     time.Time
	End       time.Time
	Latitude  float64
	Longitude float64
}

// Contains reports whether t falls inside the interval, bounds included.
func (i TimelineInterval) Contains(t time.Time) bool {
	return !t.Before(i.Start) && !t.After(i.End)
}

// KnownLocation maps a filename substring to a fixed position.
type KnownLocation struct {
	NameInFile string
	Latitude   float64
	Longitude  float64
	Display    string
}

// Timeline holds the curated interval list and known-location table used
// to back-fill coordinates.
type Timeline struct {
	log       *logrus.Logger
	intervals []TimelineInterval
	known     []KnownLocation
}

// NewTimeline creates an empty timeline.
func NewTimeline(log *logrus.Logger) *Timeline {
	return &Timeline{log: log}
}

// Intervals returns the loaded interval list.
func (tl *Timeline) Intervals() []TimelineInterval {
	return tl.intervals
}

// KnownLocations returns the loaded known-location table.
func (tl *Timeline) KnownLocations() []KnownLocation {
	return tl.known
}

// timeFormats accepted in the timeline CSV.
var timelineTimeFormats = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func parseTimelineTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timelineTimeFormats {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.Errorf("unrecognized time %q", s)
}

// LoadTimeline reads the interval CSV (start,end,latitude,longitude),
// sorts it by start and verifies it.
func (tl *Timeline) LoadTimeline(path string) error {
	rows, err := readCSV(path)
	if err != nil {
		return err
	}
	tl.intervals = tl.intervals[:0]
	for i, row := range rows {
		if i == 0 && strings.EqualFold(strings.TrimSpace(row[0]), "start") {
			continue
		}
		if len(row) < 4 {
			tl.log.WithField("row", i+1).Warn("Skipping short timeline row")
			continue
		}
		start, err := parseTimelineTime(row[0])
		if err != nil {
			return errors.Wrapf(err, "%s row %d", filepath.Base(path), i+1)
		}
		end, err := parseTimelineTime(row[1])
		if err != nil {
			return errors.Wrapf(err, "%s row %d", filepath.Base(path), i+1)
		}
		lat, err := strconv.ParseFloat(strings.TrimSpace(row[2]), 64)
		if err != nil {
			return errors.Wrapf(err, "%s row %d latitude", filepath.Base(path), i+1)
		}
		lon, err := strconv.ParseFloat(strings.TrimSpace(row[3]), 64)
		if err != nil {
			return errors.Wrapf(err, "%s row %d longitude", filepath.Base(path), i+1)
		}
		tl.intervals = append(tl.intervals, TimelineInterval{
			Start: start, End: end, Latitude: lat, Longitude: lon,
		})
	}
	sort.Slice(tl.intervals, func(a, b int) bool {
		return tl.intervals[a].Start.Before(tl.intervals[b].Start)
	})
	tl.Verify()
	tl.log.WithField("count", len(tl.intervals)).Debug("Loaded timeline")
	return nil
}

// Verify flags intervals whose start precedes the prior interval's end.
// Overlaps are a data-integrity problem in the curated file; they are
// reported but not rejected, and lookups over them refuse to guess.
func (tl *Timeline) Verify() {
	var lastEnd time.Time
	for _, interval := range tl.intervals {
		if !lastEnd.IsZero() && interval.Start.Before(lastEnd) {
			tl.log.WithFields(logrus.Fields{
				"start":    interval.Start.Format("2006-01-02 15:04:05"),
				"last_end": lastEnd.Format("2006-01-02 15:04:05"),
			}).Error("Unexpected timeline element starting before the previous one ended")
		}
		lastEnd = interval.End
	}
	tl.log.Debug("Done verifying timeline")
}

// Lookup returns the intervals bounding t. Callers apply coordinates only
// when exactly one interval matches.
func (tl *Timeline) Lookup(t time.Time) []TimelineInterval {
	var matches []TimelineInterval
	for _, interval := range tl.intervals {
		if interval.Contains(t) {
			matches = append(matches, interval)
		}
	}
	return matches
}

// LoadKnownLocations reads the known-location CSV
// (name_in_file,latitude,longitude,display_name).
func (tl *Timeline) LoadKnownLocations(path string) error {
	rows, err := readCSV(path)
	if err != nil {
		return err
	}
	tl.known = tl.known[:0]
	for i, row := range rows {
		if i == 0 && strings.EqualFold(strings.TrimSpace(row[0]), "name_in_file") {
			continue
		}
		if len(row) < 3 {
			tl.log.WithField("row", i+1).Warn("Skipping short known-location row")
			continue
		}
		lat, err := strconv.ParseFloat(strings.TrimSpace(row[1]), 64)
		if err != nil {
			return errors.Wrapf(err, "%s row %d latitude", filepath.Base(path), i+1)
		}
		lon, err := strconv.ParseFloat(strings.TrimSpace(row[2]), 64)
		if err != nil {
			return errors.Wrapf(err, "%s row %d longitude", filepath.Base(path), i+1)
		}
		loc := KnownLocation{NameInFile: row[0], Latitude: lat, Longitude: lon}
		if len(row) > 3 {
			loc.Display = row[3]
		}
		tl.known = append(tl.known, loc)
	}
	tl.log.WithField("count", len(tl.known)).Debug("Loaded known locations")
	return nil
}

// readCSV loads all rows of a CSV file with relaxed field counts.
func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, errors.Wrapf(err, "parsing %s", path)
	}
	return rows, nil
}
