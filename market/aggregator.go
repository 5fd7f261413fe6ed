package market

import (
	"context"
	"errors"
	"fmt"
	"time"
)

type BarMode int

const (
	// TimeBars close when a trade falls into the next Duration bucket.
	TimeBars BarMode = iota
	// CountBars close after every Ticks trades.
	CountBars
)

func (m BarMode) String() string {
	if m == CountBars {
		return "count"
	}
	return "time"
}

// ParseBarMode maps the config spelling onto a BarMode.
func ParseBarMode(s string) (BarMode, error) {
	switch s {
	case "", "time":
		return TimeBars, nil
	case "count", "tick", "ticks":
		return CountBars, nil
	}
	return TimeBars, fmt.Errorf("unknown bar mode %q", s)
}

type BarConfig struct {
	Mode     BarMode
	Duration time.Duration
	Ticks    int
}

func (c BarConfig) Validate() error {
	switch c.Mode {
	case TimeBars:
		if c.Duration <= 0 {
			return errors.New("bar duration must be positive")
		}
	case CountBars:
		if c.Ticks <= 0 {
			return errors.New("bar tick count must be positive")
		}
	default:
		return fmt.Errorf("unknown bar mode %d", c.Mode)
	}
	return nil
}

// Aggregator groups a TradeFeed into Bars. It implements BarFeed.
type Aggregator struct {
	feed TradeFeed
	cfg  BarConfig

	cur     Bar
	curKey  time.Time
	open    bool
	cvd     int64
	prev    *Bar
	drained bool
}

func NewAggregator(feed TradeFeed, cfg BarConfig) (*Aggregator, error) {
	if feed == nil {
		return nil, errors.New("nil trade feed")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Aggregator{feed: feed, cfg: cfg}, nil
}

// Next returns the next closed bar. The partially filled bar is flushed once
// the trade feed is exhausted. Errors from the trade feed are returned as is
// and leave the bar under construction intact.
func (a *Aggregator) Next(ctx context.Context) (Bar, bool, error) {
	for {
		if a.drained {
			return Bar{}, false, nil
		}

		t, ok, err := a.feed.Next(ctx)
		if err != nil {
			return Bar{}, false, err
		}
		if !ok {
			a.drained = true
			if a.open {
				return a.finish(), true, nil
			}
			return Bar{}, false, nil
		}

		switch a.cfg.Mode {
		case CountBars:
			if !a.open {
				a.start(t, t.Time)
			} else {
				a.add(t)
			}
			if a.cur.Ticks >= a.cfg.Ticks {
				return a.finish(), true, nil
			}

		default:
			key := floorTime(t.Time, a.cfg.Duration)
			if a.open && !key.Equal(a.curKey) {
				out := a.finish()
				a.start(t, key)
				return out, true, nil
			}
			if !a.open {
				a.start(t, key)
			} else {
				a.add(t)
			}
		}
	}
}

func (a *Aggregator) Close() error {
	return a.feed.Close()
}

func (a *Aggregator) start(t Trade, key time.Time) {
	px := t.PriceFloat()
	a.curKey = key
	a.cur = Bar{
		Key:  key.UTC().Format(time.RFC3339Nano),
		Time: key.UTC(),
		Open: px,
		High: px,
		Low:  px,
	}
	a.open = true
	a.add(t)
}

func (a *Aggregator) add(t Trade) {
	px := t.PriceFloat()
	if px > a.cur.High {
		a.cur.High = px
	}
	if px < a.cur.Low {
		a.cur.Low = px
	}
	a.cur.Close = px
	a.cur.Volume += t.Size

	d := t.Delta()
	a.cur.Delta += d
	a.cvd += d
	a.cur.CVDRunning = a.cvd
	a.cur.Ticks++
}

func (a *Aggregator) finish() Bar {
	b := a.cur
	b.CVD = b.CVDRunning
	b.Color = ColorOf(a.prev, b)

	p := b
	a.prev = &p
	a.open = false
	a.cur = Bar{}
	return b
}

// floorTime truncates t to a multiple of d measured from the Unix epoch.
func floorTime(t time.Time, d time.Duration) time.Time {
	ns := t.UnixNano()
	rem := ns % int64(d)
	if rem < 0 {
		rem += int64(d)
	}
	return time.Unix(0, ns-rem).UTC()
}
