// Package feed provides trade and bar sources for backtest sessions: CSV
// files, the Databento historical API and a ClickHouse tick table.
package feed

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type options struct {
	log  zerolog.Logger
	from time.Time
	to   time.Time
}

type Option func(*options)

func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithRange keeps only records with time in [from, to). Zero bounds are open.
func WithRange(from, to time.Time) Option {
	return func(o *options) {
		o.from = from
		o.to = to
	}
}

func buildOptions(opts []Option) options {
	o := options{log: zerolog.Nop()}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

func inRange(t, from, to time.Time) bool {
	if !from.IsZero() && t.Before(from) {
		return false
	}
	if !to.IsZero() && !t.Before(to) {
		return false
	}
	return true
}

// parseTime accepts RFC3339, RFC3339Nano, "2006-01-02 15:04:05" (UTC) or a
// Unix epoch in milliseconds (nanoseconds when the number is too large to
// be milliseconds).
func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty time")
	}

	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n > 1e14 {
			return time.Unix(0, n).UTC(), nil
		}
		return time.UnixMilli(n).UTC(), nil
	}

	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, time.DateTime} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("bad time %q", s)
}
