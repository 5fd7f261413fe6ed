package market

import (
	"context"
	"math"
)

// HeikinAshi smooths raw bars into Heikin-Ashi candles. Volume, delta and
// CVD fields pass through untouched.
type HeikinAshi struct {
	prevOpen  float64
	prevClose float64
	seeded    bool
}

func (h *HeikinAshi) Next(b Bar) Bar {
	haClose := (b.Open + b.High + b.Low + b.Close) / 4

	haOpen := (b.Open + b.Close) / 2
	if h.seeded {
		haOpen = (h.prevOpen + h.prevClose) / 2
	}

	out := b
	out.Open = haOpen
	out.Close = haClose
	out.High = math.Max(b.High, math.Max(haOpen, haClose))
	out.Low = math.Min(b.Low, math.Min(haOpen, haClose))

	h.prevOpen = haOpen
	h.prevClose = haClose
	h.seeded = true
	return out
}

func (h *HeikinAshi) Reset() {
	*h = HeikinAshi{}
}

// HeikinAshiFeed wraps a BarFeed and recolors the smoothed bars.
type HeikinAshiFeed struct {
	src  BarFeed
	ha   HeikinAshi
	prev *Bar
}

func NewHeikinAshiFeed(src BarFeed) *HeikinAshiFeed {
	return &HeikinAshiFeed{src: src}
}

func (f *HeikinAshiFeed) Next(ctx context.Context) (Bar, bool, error) {
	b, ok, err := f.src.Next(ctx)
	if err != nil || !ok {
		return b, ok, err
	}

	out := f.ha.Next(b)
	out.Color = ColorOf(f.prev, out)

	p := out
	f.prev = &p
	return out, true, nil
}

func (f *HeikinAshiFeed) Close() error {
	return f.src.Close()
}
