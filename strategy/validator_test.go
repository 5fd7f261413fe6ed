package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/cvdtrader/market"
	"github.com/rustyeddy/cvdtrader/trendline"
)

type fakeADX struct {
	value  float64
	ok     bool
	calls  int
	period int
}

func (f *fakeADX) ComputeADX(highs, lows, closes []float64, period int) (float64, bool) {
	f.calls++
	f.period = period
	return f.value, f.ok
}

// bullish returns inputs that pass every filter for a bullish breakout.
func bullish() Inputs {
	return Inputs{
		Fit:        trendline.Result{Breakout: trendline.Bullish, ResistSlope: 2, SupportSlope: 1},
		Bar:        market.Bar{Key: "b5", High: 106, Low: 103, Close: 105},
		Closes:     []float64{100, 101, 102, 103, 105},
		Volumes:    []int64{10, 10, 10, 10, 20},
		PrevBar:    &market.Bar{High: 104, Low: 101, Close: 103},
		PrevEMA:    100,
		HasPrevEMA: true,
	}
}

func bearish() Inputs {
	return Inputs{
		Fit:        trendline.Result{Breakout: trendline.Bearish, ResistSlope: -1, SupportSlope: -2},
		Bar:        market.Bar{Key: "b5", High: 97, Low: 94, Close: 95},
		Closes:     []float64{100, 99, 98, 97, 95},
		Volumes:    []int64{10, 10, 10, 10, 20},
		PrevBar:    &market.Bar{High: 98, Low: 96, Close: 97},
		PrevEMA:    99,
		HasPrevEMA: true,
	}
}

func TestValidatorAcceptsCleanSignals(t *testing.T) {
	for _, in := range []Inputs{bullish(), bearish()} {
		v := NewValidator(FilterConfig{EMA: true})
		d := v.Validate(in)
		assert.True(t, d.Accepted())
		assert.Equal(t, in.Fit.Breakout, d.Signal)
		assert.Empty(t, d.Filter)
		assert.Equal(t, in.Fit.Breakout, v.Last())
	}
}

func TestValidatorNoneShortCircuits(t *testing.T) {
	adx := &fakeADX{}
	v := NewValidator(FilterConfig{EMA: true, ADX: &ADXFilter{Period: 14, Threshold: 14}}, WithADXCalculator(adx))

	in := bullish()
	in.Fit.Breakout = trendline.None
	d := v.Validate(in)

	assert.Equal(t, trendline.None, d.Signal)
	assert.Empty(t, d.Filter)
	assert.Equal(t, 0, adx.calls)
}

func TestValidatorFilters(t *testing.T) {
	tests := []struct {
		name   string
		cfg    FilterConfig
		adx    *fakeADX
		mutate func(*Inputs)
		filter string
	}{
		{
			name:   "bullish needs rising resistance",
			mutate: func(in *Inputs) { in.Fit.ResistSlope = 0 },
			filter: "slope",
		},
		{
			name:   "bearish needs falling support",
			mutate: func(in *Inputs) { *in = bearish(); in.Fit.SupportSlope = 0.5 },
			filter: "slope",
		},
		{
			name:   "bullish close must clear prior closes",
			mutate: func(in *Inputs) { in.Closes = []float64{100, 106, 102, 103, 105} },
			filter: "price",
		},
		{
			name:   "bearish close must undercut prior closes",
			mutate: func(in *Inputs) { *in = bearish(); in.Closes = []float64{100, 94, 98, 97, 95} },
			filter: "price",
		},
		{
			name:   "equal to prior high is not a break",
			mutate: func(in *Inputs) { in.Closes = []float64{100, 105, 102, 103, 105} },
			filter: "price",
		},
		{
			name:   "volume must beat the prior average",
			mutate: func(in *Inputs) { in.Volumes = []int64{10, 30, 10, 10, 15} },
			filter: "volume",
		},
		{
			name:   "volume equal to average fails",
			mutate: func(in *Inputs) { in.Volumes = []int64{10, 10, 10, 10, 10} },
			filter: "volume",
		},
		{
			name:   "ema needs a previous bar",
			cfg:    FilterConfig{EMA: true},
			mutate: func(in *Inputs) { in.PrevBar = nil },
			filter: "ema",
		},
		{
			name:   "ema needs a previous value",
			cfg:    FilterConfig{EMA: true},
			mutate: func(in *Inputs) { in.HasPrevEMA = false },
			filter: "ema",
		},
		{
			name:   "bullish previous low under ema",
			cfg:    FilterConfig{EMA: true},
			mutate: func(in *Inputs) { in.PrevEMA = 102 },
			filter: "ema",
		},
		{
			name:   "bullish close must beat previous close",
			cfg:    FilterConfig{EMA: true},
			mutate: func(in *Inputs) { in.PrevBar.Close = 105 },
			filter: "ema",
		},
		{
			name:   "bearish previous high over ema",
			cfg:    FilterConfig{EMA: true},
			mutate: func(in *Inputs) { *in = bearish(); in.PrevEMA = 97 },
			filter: "ema",
		},
		{
			name:   "adx unavailable",
			cfg:    FilterConfig{ADX: &ADXFilter{Period: 14, Threshold: 14}},
			adx:    &fakeADX{ok: false},
			filter: "adx",
		},
		{
			name:   "adx below threshold",
			cfg:    FilterConfig{ADX: &ADXFilter{Period: 14, Threshold: 14}},
			adx:    &fakeADX{value: 13.9, ok: true},
			filter: "adx",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var opts []Option
			if tt.adx != nil {
				opts = append(opts, WithADXCalculator(tt.adx))
			}
			v := NewValidator(tt.cfg, opts...)

			in := bullish()
			if tt.mutate != nil {
				tt.mutate(&in)
			}

			d := v.Validate(in)
			assert.False(t, d.Accepted())
			assert.Equal(t, tt.filter, d.Filter)
			assert.Equal(t, trendline.None, v.Last())
		})
	}
}

func TestValidatorDisabledFiltersPass(t *testing.T) {
	v := NewValidator(FilterConfig{})

	in := bullish()
	in.PrevBar = nil
	in.HasPrevEMA = false

	assert.True(t, v.Validate(in).Accepted())
}

func TestValidatorADXAtThresholdPasses(t *testing.T) {
	adx := &fakeADX{value: 14, ok: true}
	v := NewValidator(FilterConfig{ADX: &ADXFilter{Period: 10, Threshold: 14}}, WithADXCalculator(adx))

	assert.True(t, v.Validate(bullish()).Accepted())
	assert.Equal(t, 1, adx.calls)
	assert.Equal(t, 10, adx.period)
}

func TestValidatorReversal(t *testing.T) {
	v := NewValidator(FilterConfig{})

	require.True(t, v.Validate(bullish()).Accepted())

	d := v.Validate(bullish())
	assert.False(t, d.Accepted())
	assert.Equal(t, "reversal", d.Filter)

	require.True(t, v.Validate(bearish()).Accepted())
	assert.Equal(t, trendline.Bearish, v.Last())

	v.Reset()
	assert.True(t, v.Validate(bearish()).Accepted())
}

func TestValidatorWithWilderADX(t *testing.T) {
	v := NewValidator(FilterConfig{ADX: &ADXFilter{Period: 3, Threshold: 20}})

	in := bullish()
	for i := 0; i < 9; i++ {
		p := 100 + float64(i)
		in.Highs = append(in.Highs, p+0.5)
		in.Lows = append(in.Lows, p-0.5)
		in.ADXCloses = append(in.ADXCloses, p)
	}
	assert.True(t, v.Validate(in).Accepted())

	short := bullish()
	short.Highs, short.Lows, short.ADXCloses = in.Highs[:3], in.Lows[:3], in.ADXCloses[:3]
	v.Reset()
	d := v.Validate(short)
	assert.Equal(t, "adx", d.Filter)
}
