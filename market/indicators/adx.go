package indicators

import (
	"fmt"
	"math"
)

// ADXCalculator computes the current ADX value over aligned high/low/close
// windows. It returns false when the windows are too short for period.
type ADXCalculator interface {
	ComputeADX(highs, lows, closes []float64, period int) (float64, bool)
}

// WilderADX is the default ADXCalculator. It replays the windows through a
// fresh streaming ADX on every call.
type WilderADX struct{}

func (WilderADX) ComputeADX(highs, lows, closes []float64, period int) (float64, bool) {
	if period <= 0 {
		return 0, false
	}
	n := len(closes)
	if len(highs) != n || len(lows) != n {
		return 0, false
	}

	a := NewADX(period)
	for i := 0; i < n; i++ {
		a.Update(highs[i], lows[i], closes[i])
	}
	if !a.Ready() {
		return 0, false
	}
	return a.Float64(), true
}

// ADX computes the Average Directional Index (Wilder).
//
// Readiness / warmup:
//   - N periods to build the initial smoothed TR/+DM/-DM
//   - N DX values to seed the initial ADX (average of the first N DX)
//
// One period is the difference between two bars, so the first value is
// available after 2N bars.
type ADX struct {
	n    int
	name string

	prevH, prevL, prevC float64
	hasPrev             bool
	ready               bool
	adx                 float64
	plusDI              float64
	minusDI             float64
	lastDX              float64
	periods             int

	// initial accumulation for first N periods
	sumTR      float64
	sumPlusDM  float64
	sumMinusDM float64

	// Wilder smoothed values after initialization
	smTR      float64
	smPlusDM  float64
	smMinusDM float64

	dxSum   float64
	dxCount int
}

func NewADX(period int) *ADX {
	if period <= 0 {
		panic("ADX period must be > 0")
	}
	return &ADX{
		n:    period,
		name: fmt.Sprintf("ADX(%d)", period),
	}
}

func (a *ADX) Name() string     { return a.name }
func (a *ADX) Warmup() int      { return 2 * a.n }
func (a *ADX) Ready() bool      { return a.ready }
func (a *ADX) Float64() float64 { return a.adx }

func (a *ADX) Reset() {
	*a = ADX{n: a.n, name: a.name}
}

// Update consumes the next closed bar.
func (a *ADX) Update(h, l, c float64) {
	if !a.hasPrev {
		a.prevH, a.prevL, a.prevC = h, l, c
		a.hasPrev = true
		return
	}

	tr := max3(h-l, math.Abs(h-a.prevC), math.Abs(l-a.prevC))

	upMove := h - a.prevH
	downMove := a.prevL - l

	var plusDM, minusDM float64
	if upMove > downMove && upMove > 0 {
		plusDM = upMove
	}
	if downMove > upMove && downMove > 0 {
		minusDM = downMove
	}

	a.prevH, a.prevL, a.prevC = h, l, c
	a.periods++

	if a.periods <= a.n {
		a.sumTR += tr
		a.sumPlusDM += plusDM
		a.sumMinusDM += minusDM

		if a.periods == a.n {
			a.smTR = a.sumTR
			a.smPlusDM = a.sumPlusDM
			a.smMinusDM = a.sumMinusDM

			a.plusDI, a.minusDI = di(a.smPlusDM, a.smMinusDM, a.smTR)
			a.lastDX = dx(a.plusDI, a.minusDI)
			a.dxSum = a.lastDX
			a.dxCount = 1
			a.seed()
		}
		return
	}

	// smoothed = prior - prior/N + current
	nf := float64(a.n)
	a.smTR = a.smTR - (a.smTR / nf) + tr
	a.smPlusDM = a.smPlusDM - (a.smPlusDM / nf) + plusDM
	a.smMinusDM = a.smMinusDM - (a.smMinusDM / nf) + minusDM

	a.plusDI, a.minusDI = di(a.smPlusDM, a.smMinusDM, a.smTR)
	a.lastDX = dx(a.plusDI, a.minusDI)

	if !a.ready {
		a.dxSum += a.lastDX
		a.dxCount++
		a.seed()
		return
	}
	a.adx = (a.adx*(nf-1.0) + a.lastDX) / nf
}

func (a *ADX) seed() {
	if a.dxCount >= a.n {
		a.adx = a.dxSum / float64(a.n)
		a.ready = true
	}
}

func (a *ADX) PlusDI() float64  { return a.plusDI }
func (a *ADX) MinusDI() float64 { return a.minusDI }
func (a *ADX) DX() float64      { return a.lastDX }

func di(smPlusDM, smMinusDM, smTR float64) (plusDI, minusDI float64) {
	if smTR <= 0 {
		return 0, 0
	}
	plusDI = 100.0 * (smPlusDM / smTR)
	minusDI = 100.0 * (smMinusDM / smTR)
	return plusDI, minusDI
}

func dx(plusDI, minusDI float64) float64 {
	den := plusDI + minusDI
	if den <= 0 {
		return 0
	}
	return 100.0 * (math.Abs(plusDI-minusDI) / den)
}

func max3(a, b, c float64) float64 {
	if a >= b && a >= c {
		return a
	}
	if b >= a && b >= c {
		return b
	}
	return c
}
