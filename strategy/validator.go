package strategy

import (
	"github.com/rs/zerolog"

	"github.com/rustyeddy/cvdtrader/market"
	"github.com/rustyeddy/cvdtrader/market/indicators"
	"github.com/rustyeddy/cvdtrader/metrics"
	"github.com/rustyeddy/cvdtrader/trendline"
)

// ADXFilter requires ADX(Period) >= Threshold before a signal passes.
type ADXFilter struct {
	Period    int
	Threshold float64
}

// FilterConfig selects the optional filters. A false EMA or nil ADX
// removes that filter from the chain.
type FilterConfig struct {
	EMA bool
	ADX *ADXFilter
}

// Inputs is everything the filter chain looks at for the current bar.
// Closes and Volumes hold the rolling window with the current bar last.
type Inputs struct {
	Fit     trendline.Result
	Bar     market.Bar
	Closes  []float64
	Volumes []int64

	PrevBar    *market.Bar
	PrevEMA    float64
	HasPrevEMA bool

	// ADX history, oldest first.
	Highs     []float64
	Lows      []float64
	ADXCloses []float64
}

// Decision is the outcome of Validate. Filter names the first filter that
// rejected the breakout; it is empty for accepted signals and for None.
type Decision struct {
	Signal trendline.Breakout
	Filter string
}

func (d Decision) Accepted() bool { return d.Signal != trendline.None }

type filter struct {
	name string
	pass func(v *Validator, sig trendline.Breakout, in Inputs) bool
}

// Validator turns raw breakouts into trade signals through an ordered,
// short-circuiting filter chain: reversal, slope, price, volume, ema, adx.
type Validator struct {
	cfg     FilterConfig
	adx     indicators.ADXCalculator
	last    trendline.Breakout
	filters []filter
	log     zerolog.Logger
}

type Option func(*Validator)

func WithLogger(l zerolog.Logger) Option {
	return func(v *Validator) { v.log = l }
}

// WithADXCalculator swaps the ADX implementation used by the adx filter.
func WithADXCalculator(c indicators.ADXCalculator) Option {
	return func(v *Validator) { v.adx = c }
}

func NewValidator(cfg FilterConfig, opts ...Option) *Validator {
	v := &Validator{
		cfg: cfg,
		adx: indicators.WilderADX{},
		log: zerolog.Nop(),
	}
	for _, o := range opts {
		o(v)
	}

	v.filters = []filter{
		{"reversal", passReversal},
		{"slope", passSlope},
		{"price", passPrice},
		{"volume", passVolume},
	}
	if cfg.EMA {
		v.filters = append(v.filters, filter{"ema", passEMA})
	}
	if cfg.ADX != nil {
		v.filters = append(v.filters, filter{"adx", passADX})
	}
	return v
}

// Last returns the most recently accepted signal.
func (v *Validator) Last() trendline.Breakout { return v.last }

// Reset forgets the last accepted signal.
func (v *Validator) Reset() { v.last = trendline.None }

// Validate runs the breakout in in.Fit through the chain. An accepted signal
// becomes the new reference for the reversal filter.
func (v *Validator) Validate(in Inputs) Decision {
	sig := in.Fit.Breakout
	if sig == trendline.None {
		return Decision{Signal: trendline.None}
	}

	for _, f := range v.filters {
		if f.pass(v, sig, in) {
			continue
		}
		metrics.SignalsTotal.WithLabelValues("suppressed").Inc()
		metrics.FilteredTotal.WithLabelValues(f.name).Inc()
		v.log.Debug().
			Str("bar", in.Bar.Key).
			Str("signal", sig.String()).
			Str("filter", f.name).
			Msg("signal suppressed")
		return Decision{Signal: trendline.None, Filter: f.name}
	}

	metrics.SignalsTotal.WithLabelValues("accepted").Inc()
	v.last = sig
	return Decision{Signal: sig}
}

func passReversal(v *Validator, sig trendline.Breakout, _ Inputs) bool {
	return sig != v.last
}

func passSlope(_ *Validator, sig trendline.Breakout, in Inputs) bool {
	if sig == trendline.Bullish {
		return in.Fit.ResistSlope > 0
	}
	return in.Fit.SupportSlope < 0
}

func passPrice(_ *Validator, sig trendline.Breakout, in Inputs) bool {
	n := len(in.Closes)
	if n < 2 {
		return false
	}
	prior := in.Closes[:n-1]
	cur := in.Closes[n-1]

	if sig == trendline.Bullish {
		hi := prior[0]
		for _, c := range prior[1:] {
			if c > hi {
				hi = c
			}
		}
		return cur > hi
	}

	lo := prior[0]
	for _, c := range prior[1:] {
		if c < lo {
			lo = c
		}
	}
	return cur < lo
}

func passVolume(_ *Validator, _ trendline.Breakout, in Inputs) bool {
	n := len(in.Volumes)
	if n < 2 {
		return false
	}
	var sum int64
	for _, vol := range in.Volumes[:n-1] {
		sum += vol
	}
	avg := float64(sum) / float64(n-1)
	return float64(in.Volumes[n-1]) > avg
}

func passEMA(_ *Validator, sig trendline.Breakout, in Inputs) bool {
	if in.PrevBar == nil || !in.HasPrevEMA {
		return false
	}
	if sig == trendline.Bullish {
		return in.PrevBar.Low >= in.PrevEMA && in.Bar.Close > in.PrevBar.Close
	}
	return in.PrevBar.High <= in.PrevEMA && in.Bar.Close < in.PrevBar.Close
}

func passADX(v *Validator, _ trendline.Breakout, in Inputs) bool {
	val, ok := v.adx.ComputeADX(in.Highs, in.Lows, in.ADXCloses, v.cfg.ADX.Period)
	if !ok {
		return false
	}
	return val >= v.cfg.ADX.Threshold
}
