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
	"github.com/shopspring/decimal"

	"github.com/rustyeddy/cvdtrader/market"
	"github.com/rustyeddy/cvdtrader/metrics"
)

// CSVTrades reads trade prints from CSV rows:
//
//	time,price,size,side
//
// time is RFC3339(Nano) or epoch milliseconds; side is B, A or N.
// A single header row is allowed. Malformed and out-of-order rows are
// skipped with a warning.
type CSVTrades struct {
	c    io.Closer
	r    *csv.Reader
	opts options
	log  zerolog.Logger

	line     int
	last     time.Time
	sawFirst bool
	skipped  int
}

func OpenCSVTrades(path string, opts ...Option) (*CSVTrades, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return NewCSVTrades(f, opts...), nil
}

// NewCSVTrades reads from r, closing it on Close when it is an io.Closer.
func NewCSVTrades(r io.Reader, opts ...Option) *CSVTrades {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	o := buildOptions(opts)
	f := &CSVTrades{r: cr, opts: o, log: o.log.With().Str("source", "csv_trades").Logger()}
	if c, ok := r.(io.Closer); ok {
		f.c = c
	}
	return f
}

func (f *CSVTrades) Close() error {
	if f.c != nil {
		return f.c.Close()
	}
	return nil
}

// Skipped is the number of rows dropped so far.
func (f *CSVTrades) Skipped() int { return f.skipped }

func (f *CSVTrades) Next(ctx context.Context) (market.Trade, bool, error) {
	for {
		if err := ctx.Err(); err != nil {
			return market.Trade{}, false, err
		}

		row, err := f.r.Read()
		if err == io.EOF {
			return market.Trade{}, false, nil
		}
		f.line++
		if err != nil {
			if _, ok := err.(*csv.ParseError); ok {
				f.skip(err)
				continue
			}
			return market.Trade{}, false, err
		}
		if len(row) == 0 || (len(row) == 1 && strings.TrimSpace(row[0]) == "") {
			continue
		}

		if !f.sawFirst {
			f.sawFirst = true
			if isHeader(row[0]) {
				continue
			}
		}

		t, err := parseTradeRow(row)
		if err != nil {
			f.skip(err)
			continue
		}
		if t.Time.Before(f.last) {
			f.skip(fmt.Errorf("out of order: %s before %s", t.Time.Format(time.RFC3339Nano), f.last.Format(time.RFC3339Nano)))
			continue
		}
		if !inRange(t.Time, f.opts.from, f.opts.to) {
			continue
		}
		f.last = t.Time
		return t, true, nil
	}
}

func (f *CSVTrades) skip(err error) {
	f.skipped++
	metrics.RowsSkipped.WithLabelValues("csv_trades").Inc()
	f.log.Warn().Err(err).Int("line", f.line).Msg("skipping row")
}

func isHeader(first string) bool {
	switch strings.ToLower(strings.TrimSpace(first)) {
	case "time", "timestamp", "ts", "ts_event":
		return true
	}
	return false
}

func parseTradeRow(row []string) (market.Trade, error) {
	if len(row) < 4 {
		return market.Trade{}, fmt.Errorf("need 4 columns time,price,size,side, got %d", len(row))
	}

	ts, err := parseTime(row[0])
	if err != nil {
		return market.Trade{}, err
	}

	px, err := decimal.NewFromString(strings.TrimSpace(row[1]))
	if err != nil {
		return market.Trade{}, fmt.Errorf("bad price %q: %w", row[1], err)
	}
	if !px.IsPositive() {
		return market.Trade{}, fmt.Errorf("bad price %q: must be positive", row[1])
	}

	size, err := strconv.ParseInt(strings.TrimSpace(row[2]), 10, 64)
	if err != nil {
		return market.Trade{}, fmt.Errorf("bad size %q: %w", row[2], err)
	}
	if size < 0 {
		return market.Trade{}, fmt.Errorf("bad size %q: negative", row[2])
	}

	side, err := market.ParseSide(row[3])
	if err != nil {
		return market.Trade{}, err
	}

	return market.Trade{Time: ts, Price: px, Size: size, Side: side}, nil
}
