package trendline

import (
	"math"

	"github.com/rs/zerolog"

	"github.com/rustyeddy/cvdtrader/metrics"
)

type Breakout int8

const (
	None Breakout = iota
	Bullish
	Bearish
)

func (b Breakout) String() string {
	switch b {
	case Bullish:
		return "bullish"
	case Bearish:
		return "bearish"
	}
	return "none"
}

// Result holds both fitted lines over the window and the breakout call.
type Result struct {
	Support      []float64
	Resist       []float64
	SupportSlope float64
	ResistSlope  float64
	Breakout     Breakout
	BailedOut    bool
}

// Fitter fits support and resistance lines to CVD windows.
type Fitter struct {
	tolerance float64
	log       zerolog.Logger
}

type Option func(*Fitter)

func WithLogger(l zerolog.Logger) Option {
	return func(f *Fitter) { f.log = l }
}

// NewFitter returns a Fitter classifying breakouts within tolerance, a
// fraction of the line value (0.001 is 0.1%).
func NewFitter(tolerance float64, opts ...Option) *Fitter {
	f := &Fitter{tolerance: tolerance, log: zerolog.Nop()}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Fit is NewFitter(tolerance).Fit(y).
func Fit(y []float64, tolerance float64) Result {
	return NewFitter(tolerance).Fit(y)
}

// Fit anchors a support line at the lowest OLS residual and a resistance line
// at the highest, refines each slope, and classifies the final value of y.
// Windows shorter than 3 points never break out.
func (f *Fitter) Fit(y []float64) Result {
	n := len(y)
	if n < 3 {
		return Result{Breakout: None}
	}

	slope, residuals := Regress(y)
	hiPiv := argmax(residuals)
	loPiv := argmin(residuals)

	sup := optimizeSlope(support, loPiv, slope, y)
	res := optimizeSlope(resistance, hiPiv, slope, y)

	for _, r := range []struct {
		kind lineKind
		sr   searchResult
	}{{support, sup}, {resistance, res}} {
		if !r.sr.bailedOut {
			continue
		}
		metrics.OptimizerBailouts.Inc()
		f.log.Warn().
			Str("line", r.kind.String()).
			Int("iters", r.sr.iters).
			Int("no_improve", r.sr.noImprove).
			Int("window", n).
			Msg("trendline search bailed out")
	}

	out := Result{
		Support:      make([]float64, n),
		Resist:       make([]float64, n),
		SupportSlope: sup.slope,
		ResistSlope:  res.slope,
		BailedOut:    sup.bailedOut || res.bailedOut,
	}
	for i := range y {
		x := float64(i)
		out.Support[i] = sup.slope*x + sup.intercept
		out.Resist[i] = res.slope*x + res.intercept
	}

	out.Breakout = f.classify(y[n-1], out.Support[n-1], out.Resist[n-1])
	return out
}

func (f *Fitter) classify(last, sup, res float64) Breakout {
	if last >= res-math.Abs(res)*f.tolerance {
		return Bullish
	}
	if last <= sup+math.Abs(sup)*f.tolerance {
		return Bearish
	}
	return None
}
