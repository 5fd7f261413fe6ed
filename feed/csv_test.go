package feed

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/cvdtrader/market"
)

func TestParseTradeRow(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		row     []string
		wantErr bool
		check   func(t *testing.T, tr market.Trade)
	}{
		{
			name: "valid row",
			row:  []string{"2025-05-01T13:30:00Z", "5600.25", "3", "B"},
			check: func(t *testing.T, tr market.Trade) {
				assert.Equal(t, "5600.25", tr.Price.String())
				assert.Equal(t, int64(3), tr.Size)
				assert.Equal(t, market.SideBuy, tr.Side)
				assert.Equal(t, int64(3), tr.Delta())
			},
		},
		{
			name: "nano timestamp with whitespace",
			row:  []string{" 2025-05-01T13:30:00.123456789Z ", " 5600.5 ", " 2 ", " A "},
			check: func(t *testing.T, tr market.Trade) {
				assert.Equal(t, 123456789, tr.Time.Nanosecond())
				assert.Equal(t, int64(-2), tr.Delta())
			},
		},
		{
			name: "epoch millis",
			row:  []string{"1746106200000", "5600", "1", "N"},
			check: func(t *testing.T, tr market.Trade) {
				assert.Equal(t, time.Date(2025, 5, 1, 13, 30, 0, 0, time.UTC), tr.Time)
				assert.Equal(t, int64(0), tr.Delta())
			},
		},
		{name: "too few columns", row: []string{"2025-05-01T13:30:00Z", "5600", "1"}, wantErr: true},
		{name: "bad time", row: []string{"yesterday", "5600", "1", "B"}, wantErr: true},
		{name: "bad price", row: []string{"2025-05-01T13:30:00Z", "abc", "1", "B"}, wantErr: true},
		{name: "zero price", row: []string{"2025-05-01T13:30:00Z", "0", "1", "B"}, wantErr: true},
		{name: "negative size", row: []string{"2025-05-01T13:30:00Z", "5600", "-1", "B"}, wantErr: true},
		{name: "bad side", row: []string{"2025-05-01T13:30:00Z", "5600", "1", "X"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, err := parseTradeRow(tt.row)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.check != nil {
				tt.check(t, tr)
			}
		})
	}
}

func drainTrades(t *testing.T, f market.TradeFeed) []market.Trade {
	t.Helper()
	var out []market.Trade
	for {
		tr, ok, err := f.Next(context.Background())
		require.NoError(t, err)
		if !ok {
			return out
		}
		out = append(out, tr)
	}
}

func TestCSVTradesSkipsBadRows(t *testing.T) {
	t.Parallel()

	data := strings.Join([]string{
		"time,price,size,side",
		"2025-05-01T13:30:00Z,5600.00,2,B",
		"2025-05-01T13:30:01Z,not-a-price,1,A",
		"",
		"2025-05-01T13:30:02Z,5600.25,1,A",
		"2025-05-01T13:29:59Z,5599.75,1,A",
		"2025-05-01T13:30:03Z,5600.50,4,N",
	}, "\n")

	f := NewCSVTrades(strings.NewReader(data))
	trades := drainTrades(t, f)

	require.Len(t, trades, 3)
	assert.Equal(t, 2, f.Skipped())
	assert.Equal(t, "5600.25", trades[1].Price.String())
	assert.Equal(t, market.SideNone, trades[2].Side)
	assert.NoError(t, f.Close())
}

func TestCSVTradesRange(t *testing.T) {
	t.Parallel()

	data := "2025-05-01T13:30:00Z,1,1,B\n2025-05-01T13:31:00Z,2,1,B\n2025-05-01T13:32:00Z,3,1,B\n"
	from := time.Date(2025, 5, 1, 13, 31, 0, 0, time.UTC)
	to := time.Date(2025, 5, 1, 13, 32, 0, 0, time.UTC)

	trades := drainTrades(t, NewCSVTrades(strings.NewReader(data), WithRange(from, to)))
	require.Len(t, trades, 1)
	assert.Equal(t, "2", trades[0].Price.String())
}

func TestOpenCSVTradesFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "trades.csv")
	require.NoError(t, os.WriteFile(path, []byte("ts_event,price,size,side\n1746106200000,5600,1,B\n"), 0o644))

	f, err := OpenCSVTrades(path)
	require.NoError(t, err)
	assert.Len(t, drainTrades(t, f), 1)
	require.NoError(t, f.Close())

	_, err = OpenCSVTrades(filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)
}

func TestCSVTradesCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := NewCSVTrades(strings.NewReader("2025-05-01T13:30:00Z,1,1,B\n")).Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCSVBars(t *testing.T) {
	t.Parallel()

	data := strings.Join([]string{
		"timestamp,open,high,low,close,volume,delta,cvd_close",
		"2025-05-01T13:30:00Z,100,101,99,100.5,10,4,4",
		"2025-05-01T13:31:00Z,100.5,103,100,102,12,3,7",
		"2025-05-01T13:32:00Z,102,102,98,98.5,9,-5,2",
		"2025-05-01T13:33:00Z,bad,1,1,1,1,1,1",
		"2025-05-01T13:34:00Z,98.5,99,98,98.75,5,0,2.0",
	}, "\n")

	f := NewCSVBars(strings.NewReader(data))
	var bars []market.Bar
	for {
		b, ok, err := f.Next(context.Background())
		require.NoError(t, err)
		if !ok {
			break
		}
		bars = append(bars, b)
	}

	require.Len(t, bars, 4)
	assert.Equal(t, 1, f.Skipped())

	assert.Equal(t, int64(7), bars[1].CVD)
	assert.Equal(t, bars[1].CVD, bars[1].CVDRunning)
	assert.Equal(t, market.Up, bars[0].Color)
	assert.Equal(t, market.Up, bars[1].Color)
	assert.Equal(t, market.Down, bars[2].Color)
	// inside the previous range, close above open
	assert.Equal(t, market.Up, bars[3].Color)
	assert.Equal(t, int64(2), bars[3].CVD)
}

func TestCSVBarsMissingColumn(t *testing.T) {
	t.Parallel()

	f := NewCSVBars(strings.NewReader("time,open,high,low,close\n2025-05-01T13:30:00Z,1,1,1,1\n"))
	_, _, err := f.Next(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"cvd"`)
}

func TestCSVBarsEmpty(t *testing.T) {
	t.Parallel()

	_, ok, err := NewCSVBars(strings.NewReader("")).Next(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestParseTime(t *testing.T) {
	t.Parallel()

	want := time.Date(2025, 5, 1, 13, 30, 0, 0, time.UTC)
	for _, s := range []string{"2025-05-01T13:30:00Z", "2025-05-01T09:30:00-04:00", "2025-05-01 13:30:00", "1746106200000", "1746106200000000000"} {
		got, err := parseTime(s)
		require.NoError(t, err, s)
		assert.True(t, want.Equal(got), "%s -> %s", s, got)
	}

	_, err := parseTime("")
	assert.Error(t, err)
}
