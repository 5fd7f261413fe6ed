package market

import "time"

type Color int8

const (
	Neutral Color = iota
	Up
	Down
)

func (c Color) String() string {
	switch c {
	case Up:
		return "up"
	case Down:
		return "down"
	}
	return "neutral"
}

// Bar is an OHLC bar with volume and cumulative volume delta.
//
// CVDRunning is the running delta sum since the start of the stream
// (never reset between bars); CVD is its value when the bar closed.
type Bar struct {
	Key        string
	Time       time.Time
	Open       float64
	High       float64
	Low        float64
	Close      float64
	Volume     int64
	Delta      int64
	CVDRunning int64
	CVD        int64
	Color      Color
	Ticks      int
}

// ColorOf classifies b against the previously closed bar. A close above the
// previous high is Up, below the previous low is Down, otherwise the bar's
// own close versus open decides. prev may be nil for the first bar.
func ColorOf(prev *Bar, b Bar) Color {
	if prev != nil {
		if b.Close > prev.High {
			return Up
		}
		if b.Close < prev.Low {
			return Down
		}
	}
	switch {
	case b.Close > b.Open:
		return Up
	case b.Close < b.Open:
		return Down
	}
	return Neutral
}
