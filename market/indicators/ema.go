package indicators

import "fmt"

// EMA is an exponential moving average over bar closes, seeded with the
// first price it sees.
//
// A period <= 0 yields a disabled EMA whose Update always reports the value
// as unavailable.
type EMA struct {
	n     int
	alpha float64

	seen  int
	value float64

	name string
}

func NewEMA(period int) *EMA {
	e := &EMA{n: period, name: fmt.Sprintf("EMA(%d)", period)}
	if period > 0 {
		e.alpha = 2.0 / float64(period+1)
	}
	return e
}

func (e *EMA) Name() string   { return e.name }
func (e *EMA) Enabled() bool  { return e.n > 0 }
func (e *EMA) Warmup() int    { return e.n }
func (e *EMA) Ready() bool    { return e.Enabled() && e.seen >= e.n }
func (e *EMA) Alpha() float64 { return e.alpha }

// Value returns the last EMA value, or false when the EMA is disabled or has
// not been updated yet.
func (e *EMA) Value() (float64, bool) {
	if !e.Enabled() || e.seen == 0 {
		return 0, false
	}
	return e.value, true
}

func (e *EMA) Reset() {
	e.seen = 0
	e.value = 0
}

// Update folds price into the average and returns the new value.
func (e *EMA) Update(price float64) (float64, bool) {
	if !e.Enabled() {
		return 0, false
	}

	e.seen++
	if e.seen == 1 {
		e.value = price
	} else {
		e.value = (price-e.value)*e.alpha + e.value
	}
	return e.value, true
}
