package main

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readCSVFile(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestWriteLocationDetail(t *testing.T) {
	target := t.TempDir()
	log, _ := test.NewNullLogger()
	rw := NewReportWriter(DefaultSettings(), log, target)

	records := []*LocationRecord{
		{Path: "/lib/2020-01/b.jpg", Taken: day(2020, 1, 2, 10, 0)},
		{Path: "/lib/2020-01/a.jpg", Taken: day(2020, 1, 1, 10, 0),
			Latitude: 48.85, Longitude: 2.35, HasCoords: true},
	}
	require.NoError(t, rw.WriteLocationDetail("/lib/2020-01", "before", records))

	rows := readCSVFile(t, filepath.Join(target, "reports", "2020-01_before_detail.csv"))
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"full_file_name", "date_time", "latitude", "longitude"}, rows[0])
	// Sorted by capture date; coordinates blank when absent.
	assert.Equal(t, "/lib/2020-01/a.jpg", rows[1][0])
	assert.Equal(t, "48.850000", rows[1][2])
	assert.Equal(t, "/lib/2020-01/b.jpg", rows[2][0])
	assert.Empty(t, rows[2][2])
}

func TestWriteMissingRanges(t *testing.T) {
	target := t.TempDir()
	log, _ := test.NewNullLogger()
	rw := NewReportWriter(DefaultSettings(), log, target)

	ranges := []MissingRange{{
		Start: day(2020, 1, 2, 0, 0),
		End:   time.Date(2020, 1, 3, 23, 59, 59, 0, time.UTC),
	}}
	require.NoError(t, rw.WriteMissingRanges("/lib", "after", ranges))

	rows := readCSVFile(t, filepath.Join(target, "reports", "lib_after_missing-locations.csv"))
	require.Len(t, rows, 2)
	assert.Equal(t, "2020-01-02 00:00:00", rows[1][0])
	assert.Equal(t, "2020-01-03 23:59:59", rows[1][1])
}

func TestWriteDuplicates(t *testing.T) {
	target := t.TempDir()
	log, _ := test.NewNullLogger()
	rw := NewReportWriter(DefaultSettings(), log, target)

	records := []DuplicateRecord{
		{Kept: "/lib/b.jpg", Loser: "/lib/b2.jpg", Size: 10, Hash: "beef", Deleted: true},
		{Kept: "/lib/a.jpg", Loser: "/lib/a2.jpg", Size: 20, Hash: "cafe"},
	}
	require.NoError(t, rw.WriteDuplicates(records))

	rows := readCSVFile(t, filepath.Join(target, "reports", "reportDuplicates.csv"))
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"kept", "removed", "size", "hash", "deleted"}, rows[0])
	assert.Equal(t, "/lib/a.jpg", rows[1][0], "sorted by kept path")
	assert.Equal(t, "false", rows[1][4])
	assert.Equal(t, "/lib/b.jpg", rows[2][0])
	assert.Equal(t, "true", rows[2][4])
}
