package main

import (
	"context"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// LocationRecord is one picture's position state during a reconciliation
// pass. Coordinates live on the record as well as on disk so that a
// writer's decision is immediately visible to the writers that follow.
type LocationRecord struct {
	Path      string
	Taken     time.Time
	Latitude  float64
	Longitude float64
	HasCoords bool
}

// Complete reports whether both coordinates are present.
func (r *LocationRecord) Complete() bool {
	return r.HasCoords
}

// sameDay reports whether two times fall on the same calendar date.
func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// LocationReport maps each directory to the records of its own files
// (no child aggregation; children have their own entries).
type LocationReport map[string][]*LocationRecord

// LocationWriter is one coordinate back-fill strategy. Implementations
// select only incomplete records, which makes re-running a no-op, and
// return how many records they completed.
type LocationWriter interface {
	Name() string
	Fill(ctx context.Context, report LocationReport) (int, error)
}

// LocationReconciler builds the per-directory missing-location report and
// runs back-fill strategies over it.
type LocationReconciler struct {
	settings Settings
	log      *logrus.Logger
	provider *FileProvider
	reader   MetaReader
	writer   MetaWriter
	resolver *DateResolver
	timeline *Timeline
	limiter  *Limiter
	reports  *ReportWriter
}

// NewLocationReconciler wires the reconciler.
func NewLocationReconciler(settings Settings, log *logrus.Logger, provider *FileProvider,
	reader MetaReader, writer MetaWriter, resolver *DateResolver, timeline *Timeline,
	limiter *Limiter, reports *ReportWriter) *LocationReconciler {
	return &LocationReconciler{
		settings: settings,
		log:      log,
		provider: provider,
		reader:   reader,
		writer:   writer,
		resolver: resolver,
		timeline: timeline,
		limiter:  limiter,
		reports:  reports,
	}
}

// BuildReport walks dir depth-first, building a record for every picture
// directly inside each directory. The second return value maps every
// visited directory to its combined subtree records; the entry for dir
// itself covers the whole tree.
func (lr *LocationReconciler) BuildReport(ctx context.Context, dir string) (LocationReport, map[string][]*LocationRecord, error) {
	report := LocationReport{}
	combos := map[string][]*LocationRecord{}
	if _, err := lr.buildReportInto(ctx, dir, report, combos); err != nil {
		return nil, nil, err
	}
	return report, combos, nil
}

func (lr *LocationReconciler) buildReportInto(ctx context.Context, dir string, report LocationReport, combos map[string][]*LocationRecord) ([]*LocationRecord, error) {
	lr.log.WithField("directory", dir).Debug("About to create location report")

	pictures, err := lr.provider.ListFiles(dir, Pictures, true)
	if err != nil {
		return nil, err
	}

	records := make([]*LocationRecord, len(pictures))
	var wg sync.WaitGroup
	for i, item := range pictures {
		i, item := i, item
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := lr.limiter.Acquire(ctx); err != nil {
				records[i] = &LocationRecord{Path: item.Path}
				return
			}
			defer lr.limiter.Release()
			records[i] = lr.recordFor(item)
		}()
	}
	wg.Wait()

	if len(records) > 0 {
		report[dir] = records
	}

	combo := append([]*LocationRecord{}, records...)
	subDirs, err := lr.provider.SubDirectories(dir)
	if err != nil {
		return nil, err
	}
	for _, subDir := range subDirs {
		childRecords, err := lr.buildReportInto(ctx, subDir, report, combos)
		if err != nil {
			return nil, err
		}
		combo = append(combo, childRecords...)
	}
	combos[dir] = combo
	return combo, nil
}

// recordFor captures a picture's current date and position. Files in the
// invalid-media folder get an empty record: nothing useful can be read
// from them.
func (lr *LocationReconciler) recordFor(item MediaItem) *LocationRecord {
	record := &LocationRecord{Path: item.Path}
	if item.Dir == lr.settings.InvalidFolderName {
		return record
	}
	if t, status := lr.reader.CapturedDate(item.Path); status == MetaOK {
		record.Taken = t
	}
	if lat, lon, status := lr.reader.Coordinates(item.Path); status == MetaOK {
		record.Latitude, record.Longitude = lat, lon
		record.HasCoords = true
	}
	return record
}

// ReportMissing builds the report for dir, writes the per-directory
// detail and missing-gap CSVs under the configured pass name, and returns
// the report for the writers to consume. Every directory level gets its
// own gap report covering its combined subtree, so the operator can zoom
// from the whole library down to one month bucket.
func (lr *LocationReconciler) ReportMissing(ctx context.Context, dir, passName string, writeToDisk bool) (LocationReport, error) {
	report, combos, err := lr.BuildReport(ctx, dir)
	if err != nil {
		return nil, err
	}
	if !writeToDisk {
		return report, nil
	}
	for recordDir, records := range report {
		if err := lr.reports.WriteLocationDetail(recordDir, passName, records); err != nil {
			lr.log.WithError(err).WithField("directory", recordDir).Warn("Unable to write detail report")
		}
	}
	for comboDir, combo := range combos {
		if len(combo) == 0 {
			continue
		}
		gaps := ComputeMissingRanges(combo)
		if err := lr.reports.WriteMissingRanges(comboDir, passName, gaps); err != nil {
			lr.log.WithError(err).WithField("directory", comboDir).Warn("Unable to write missing-location report")
		}
	}
	return report, nil
}

// applyCoordinates writes the position to disk and mirrors it onto the
// record so later strategies see this file as complete. Files parked in
// the invalid-media and unknown-date folders await manual review and are
// never written to, whichever strategy asked.
func (lr *LocationReconciler) applyCoordinates(record *LocationRecord, lat, lon float64) bool {
	parent := filepath.Base(filepath.Dir(record.Path))
	if parent == lr.settings.InvalidFolderName || parent == lr.settings.UnknownDateFolderName {
		lr.log.WithField("file", record.Path).Trace("Not writing coordinates into a parked file")
		return false
	}
	if err := lr.writer.SetCoordinates(record.Path, lat, lon); err != nil {
		lr.log.WithError(err).WithField("file", record.Path).Warn("Unable to add coordinates")
		return false
	}
	record.Latitude, record.Longitude = lat, lon
	record.HasCoords = true
	return true
}

// FromFileName fills coordinates for files whose path contains a known
// location's match substring.
type fromFileNameWriter struct {
	lr *LocationReconciler
}

// FromClosestSameDay propagates coordinates from the nearest-in-time
// sibling taken on the same calendar day.
type fromClosestSameDayWriter struct {
	lr *LocationReconciler
}

// FromTimeline fills coordinates from the curated timeline interval
// bounding the capture date.
type fromTimelineWriter struct {
	lr *LocationReconciler
}

// Writers returns the strategies in the order the pipeline runs them.
func (lr *LocationReconciler) Writers() []LocationWriter {
	return []LocationWriter{
		&fromFileNameWriter{lr},
		&fromClosestSameDayWriter{lr},
		&fromTimelineWriter{lr},
	}
}

func (w *fromFileNameWriter) Name() string { return "FromFileName" }

func (w *fromFileNameWriter) Fill(ctx context.Context, report LocationReport) (int, error) {
	lr := w.lr
	total := 0
	for dir, records := range report {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		// WhatsApp exports carry sender context in their names, not
		// capture context; matching place names inside them misleads.
		if strings.Contains(strings.ToLower(dir), strings.ToLower(lr.settings.WhatsAppFolderName)) {
			lr.log.WithField("directory", dir).Debug("Not applying filename locations")
			continue
		}
		count := 0
		for _, record := range records {
			if record.Complete() {
				continue
			}
			for _, known := range lr.timeline.KnownLocations() {
				if strings.Contains(record.Path, known.NameInFile) {
					lr.log.WithFields(logrus.Fields{
						"from": known.Display, "to": record.Path,
					}).Trace("Writing location from known place name")
					if lr.applyCoordinates(record, known.Latitude, known.Longitude) {
						count++
					}
					break
				}
			}
		}
		lr.log.WithFields(logrus.Fields{"count": count, "directory": dir}).
			Info("Added locations using FileName")
		total += count
	}
	return total, nil
}

func (w *fromClosestSameDayWriter) Name() string { return "FromClosestSameDay" }

func (w *fromClosestSameDayWriter) Fill(ctx context.Context, report LocationReport) (int, error) {
	lr := w.lr
	total := 0
	for dir, records := range report {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		count := 0
		for _, record := range records {
			if record.Complete() || record.Taken.IsZero() {
				continue
			}
			donor := closestSameDayDonor(record, records)
			if donor == nil {
				lr.log.WithField("date", record.Taken.Format("2006-01-02")).
					Debug("Unable to find a picture with location taken on that day")
				continue
			}
			lr.log.WithFields(logrus.Fields{
				"from": donor.Path, "to": record.Path,
			}).Trace("Copying location from same-day neighbour")
			if lr.applyCoordinates(record, donor.Latitude, donor.Longitude) {
				count++
			}
		}
		lr.log.WithFields(logrus.Fields{"count": count, "directory": dir}).
			Info("Added locations using ClosestSameDay")
		total += count
	}
	return total, nil
}

// closestSameDayDonor picks the complete same-directory record on the
// same calendar day with minimal absolute capture-time distance. The
// search never leaves the record's own directory: records are bucketed by
// month and cross-bucket inference is unreliable.
func closestSameDayDonor(record *LocationRecord, siblings []*LocationRecord) *LocationRecord {
	var donor *LocationRecord
	var best time.Duration
	for _, sibling := range siblings {
		if !sibling.Complete() || sibling.Taken.IsZero() {
			continue
		}
		if !sameDay(sibling.Taken, record.Taken) {
			continue
		}
		distance := sibling.Taken.Sub(record.Taken)
		if distance < 0 {
			distance = -distance
		}
		if donor == nil || distance < best {
			donor, best = sibling, distance
		}
	}
	return donor
}

func (w *fromTimelineWriter) Name() string { return "FromTimeline" }

func (w *fromTimelineWriter) Fill(ctx context.Context, report LocationReport) (int, error) {
	lr := w.lr
	total := 0
	for dir, records := range report {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		base := filepath.Base(dir)
		if base == lr.settings.InvalidFolderName || base == lr.settings.UnknownDateFolderName {
			continue
		}
		count := 0
		for _, record := range records {
			if record.Complete() || !lr.resolver.Valid(record.Taken) {
				continue
			}
			matches := lr.timeline.Lookup(record.Taken)
			switch {
			case len(matches) == 0:
				lr.log.WithField("date", record.Taken.Format("2006-01-02 15:04:05")).
					Warn("No location found on the provided timeline")
			case len(matches) > 1:
				// Overlapping intervals are a timeline integrity problem;
				// guessing between them would write fiction into the files.
				lr.log.WithFields(logrus.Fields{
					"count": len(matches),
					"date":  record.Taken.Format("2006-01-02 15:04:05"),
				}).Warn("Multiple locations found on the provided timeline")
			default:
				if lr.applyCoordinates(record, matches[0].Latitude, matches[0].Longitude) {
					count++
				}
			}
		}
		lr.log.WithFields(logrus.Fields{"count": count, "directory": dir}).
			Info("Added locations using Timeline")
		total += count
	}
	return total, nil
}

// MissingRange is one contiguous run of calendar dates that still lack
// coordinates, bounded by the surrounding known positions.
type MissingRange struct {
	Start time.Time
	End   time.Time
}

// ComputeMissingRanges run-length-encodes the date-sorted incomplete
// flags into contiguous gap intervals for the missing-location report.
func ComputeMissingRanges(records []*LocationRecord) []MissingRange {
	type dayState struct {
		day     time.Time
		missing bool
	}
	byDay := map[time.Time]*dayState{}
	for _, record := range records {
		if record.Taken.IsZero() {
			continue
		}
		y, m, d := record.Taken.Date()
		day := time.Date(y, m, d, 0, 0, 0, 0, record.Taken.Location())
		state, ok := byDay[day]
		if !ok {
			state = &dayState{day: day}
			byDay[day] = state
		}
		if !record.Complete() {
			state.missing = true
		}
	}

	days := make([]*dayState, 0, len(byDay))
	for _, state := range byDay {
		days = append(days, state)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].day.Before(days[j].day) })

	var ranges []MissingRange
	var open *MissingRange
	for _, state := range days {
		if state.missing {
			if open == nil {
				ranges = append(ranges, MissingRange{Start: state.day})
				open = &ranges[len(ranges)-1]
			}
			open.End = state.day.Add(24*time.Hour - time.Second)
		} else {
			open = nil
		}
	}
	return ranges
}
