package journal

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	rows, err := csv.NewReader(strings.NewReader(string(data))).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestCSVJournalHeaders(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	runsPath := filepath.Join(dir, "runs.csv")
	tradesPath := filepath.Join(dir, "trades.csv")

	j, err := NewCSV(runsPath, tradesPath)
	require.NoError(t, err)
	assert.NoError(t, j.Close())

	assert.Equal(t, [][]string{runsHeader}, readCSV(t, runsPath))
	assert.Equal(t, [][]string{tradesHeader}, readCSV(t, tradesPath))
}

func TestCSVJournalRecordRunAndTrade(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	runsPath := filepath.Join(dir, "runs.csv")
	tradesPath := filepath.Join(dir, "trades.csv")

	j, err := NewCSV(runsPath, tradesPath)
	require.NoError(t, err)

	created := time.Date(2025, 5, 2, 8, 0, 0, 0, time.UTC)
	require.NoError(t, j.RecordRun(testRun("R1", created)))

	open := time.Date(2025, 5, 1, 13, 34, 0, 0, time.UTC)
	closeT := time.Date(2025, 5, 1, 13, 35, 0, 0, time.UTC)
	err = j.RecordTrade(TradeRecord{
		TradeID:    "T1",
		RunID:      "R1",
		Direction:  "long",
		EntryPrice: 5600.25,
		ExitPrice:  5603.25,
		Profit:     3,
		OpenTime:   open,
		CloseTime:  closeT,
		Reason:     "take-profit",
	})
	require.NoError(t, err)
	assert.NoError(t, j.Close())

	runs := readCSV(t, runsPath)
	require.Len(t, runs, 2)
	run := runs[1]
	assert.Equal(t, "R1", run[0])
	assert.Equal(t, "2025-05-02T08:00:00Z", run[1])
	assert.Equal(t, "412", run[6])
	assert.Equal(t, "50.000000", run[11])
	assert.Equal(t, "-50.00", run[15])

	trades := readCSV(t, tradesPath)
	require.Len(t, trades, 2)
	want := []string{
		"T1",
		"R1",
		"long",
		"5600.250000",
		"5603.250000",
		"3.000000",
		open.Format(time.RFC3339Nano),
		closeT.Format(time.RFC3339Nano),
		"take-profit",
	}
	assert.Equal(t, want, trades[1])
}

func TestNewCSVBadPath(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	_, err := NewCSV(filepath.Join(dir, "missing", "runs.csv"), filepath.Join(dir, "trades.csv"))
	assert.Error(t, err)
}
