package feed

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/rustyeddy/cvdtrader/market"
	"github.com/rustyeddy/cvdtrader/metrics"
)

var barColumns = map[string]string{
	"timestamp": "time",
	"time":      "time",
	"ts":        "time",
	"open":      "open",
	"high":      "high",
	"low":       "low",
	"close":     "close",
	"volume":    "volume",
	"delta":     "delta",
	"cvd":       "cvd",
	"cvd_close": "cvd",
}

// CSVBars reads pre-aggregated bars. The first row must be a header naming
// at least time, open, high, low, close and cvd; volume and delta are
// optional. Colors are recomputed from consecutive bars.
type CSVBars struct {
	c    io.Closer
	r    *csv.Reader
	opts options
	log  zerolog.Logger

	cols    map[string]int
	line    int
	prev    *market.Bar
	skipped int
}

func OpenCSVBars(path string, opts ...Option) (*CSVBars, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return NewCSVBars(f, opts...), nil
}

func NewCSVBars(r io.Reader, opts ...Option) *CSVBars {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	o := buildOptions(opts)
	f := &CSVBars{r: cr, opts: o, log: o.log.With().Str("source", "csv_bars").Logger()}
	if c, ok := r.(io.Closer); ok {
		f.c = c
	}
	return f
}

func (f *CSVBars) Close() error {
	if f.c != nil {
		return f.c.Close()
	}
	return nil
}

func (f *CSVBars) Skipped() int { return f.skipped }

func (f *CSVBars) readHeader() error {
	row, err := f.r.Read()
	if err == io.EOF {
		return io.EOF
	}
	if err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	f.line++

	f.cols = make(map[string]int, len(row))
	for i, name := range row {
		if col, ok := barColumns[strings.ToLower(strings.TrimSpace(name))]; ok {
			f.cols[col] = i
		}
	}
	for _, req := range []string{"time", "open", "high", "low", "close", "cvd"} {
		if _, ok := f.cols[req]; !ok {
			return fmt.Errorf("bar header missing %q column", req)
		}
	}
	return nil
}

func (f *CSVBars) Next(ctx context.Context) (market.Bar, bool, error) {
	if f.cols == nil {
		if err := f.readHeader(); err != nil {
			if err == io.EOF {
				return market.Bar{}, false, nil
			}
			return market.Bar{}, false, err
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			return market.Bar{}, false, err
		}

		row, err := f.r.Read()
		if err == io.EOF {
			return market.Bar{}, false, nil
		}
		f.line++
		if err != nil {
			if _, ok := err.(*csv.ParseError); ok {
				f.skip(err)
				continue
			}
			return market.Bar{}, false, err
		}

		b, err := f.parseRow(row)
		if err != nil {
			f.skip(err)
			continue
		}
		if f.prev != nil && !b.Time.After(f.prev.Time) {
			f.skip(fmt.Errorf("out of order bar at %s", b.Key))
			continue
		}
		if !inRange(b.Time, f.opts.from, f.opts.to) {
			continue
		}

		b.Color = market.ColorOf(f.prev, b)
		f.prev = &b
		return b, true, nil
	}
}

func (f *CSVBars) skip(err error) {
	f.skipped++
	metrics.RowsSkipped.WithLabelValues("csv_bars").Inc()
	f.log.Warn().Err(err).Int("line", f.line).Msg("skipping row")
}

func (f *CSVBars) field(row []string, col string) (string, bool) {
	i, ok := f.cols[col]
	if !ok || i >= len(row) {
		return "", false
	}
	return strings.TrimSpace(row[i]), true
}

func (f *CSVBars) floatField(row []string, col string) (float64, error) {
	s, ok := f.field(row, col)
	if !ok {
		return 0, fmt.Errorf("missing %s", col)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("bad %s %q: %w", col, s, err)
	}
	return v, nil
}

func (f *CSVBars) intField(row []string, col string, required bool) (int64, error) {
	s, ok := f.field(row, col)
	if !ok || s == "" {
		if required {
			return 0, fmt.Errorf("missing %s", col)
		}
		return 0, nil
	}
	// accept "12.0" from tools that write every column as float
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("bad %s %q: %w", col, s, err)
	}
	return int64(v), nil
}

func (f *CSVBars) parseRow(row []string) (market.Bar, error) {
	ts, ok := f.field(row, "time")
	if !ok {
		return market.Bar{}, fmt.Errorf("missing time")
	}
	t, err := parseTime(ts)
	if err != nil {
		return market.Bar{}, err
	}

	var b market.Bar
	b.Time = t
	b.Key = t.Format(time.RFC3339Nano)

	if b.Open, err = f.floatField(row, "open"); err != nil {
		return market.Bar{}, err
	}
	if b.High, err = f.floatField(row, "high"); err != nil {
		return market.Bar{}, err
	}
	if b.Low, err = f.floatField(row, "low"); err != nil {
		return market.Bar{}, err
	}
	if b.Close, err = f.floatField(row, "close"); err != nil {
		return market.Bar{}, err
	}
	if b.High < b.Low {
		return market.Bar{}, fmt.Errorf("high %v below low %v", b.High, b.Low)
	}

	if b.CVD, err = f.intField(row, "cvd", true); err != nil {
		return market.Bar{}, err
	}
	b.CVDRunning = b.CVD
	if b.Volume, err = f.intField(row, "volume", false); err != nil {
		return market.Bar{}, err
	}
	if b.Delta, err = f.intField(row, "delta", false); err != nil {
		return market.Bar{}, err
	}
	return b, nil
}
