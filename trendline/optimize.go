package trendline

const (
	// MinStep ends the search and sizes the derivative probe.
	MinStep = 1e-4
	// Feasibility slack for a line touching the points.
	Epsilon = 1e-5

	maxItersPerPoint     = 20
	maxNoImprovePerPoint = 5
)

type lineKind int

const (
	support lineKind = iota
	resistance
)

func (k lineKind) String() string {
	if k == support {
		return "support"
	}
	return "resistance"
}

// checkLine scores a line of the given slope pinned through y[pivot].
// It returns -1 when the line crosses the points on the wrong side
// (support above any point, resistance below any point), otherwise the sum
// of squared differences.
func checkLine(kind lineKind, pivot int, slope float64, y []float64) float64 {
	intercept := -slope*float64(pivot) + y[pivot]

	var sum float64
	for i, v := range y {
		d := slope*float64(i) + intercept - v
		if kind == support && d > Epsilon {
			return -1
		}
		if kind == resistance && d < -Epsilon {
			return -1
		}
		sum += d * d
	}
	return sum
}

type searchResult struct {
	slope     float64
	intercept float64
	iters     int
	noImprove int
	bailedOut bool
}

// optimizeSlope walks the slope of a pivot-anchored line downhill on
// checkLine, halving the step on every failed trial.
func optimizeSlope(kind lineKind, pivot int, initSlope float64, y []float64) searchResult {
	n := len(y)
	lo, hi := bounds(y)
	unit := (hi - lo) / float64(n)

	step := 1.0
	best := initSlope
	bestErr := checkLine(kind, pivot, initSlope, y)

	maxIters := n * maxItersPerPoint
	maxNoImprove := n * maxNoImprovePerPoint

	var derivative float64
	var iters, noImprove int
	needDeriv := true
	bailedOut := false

	for step > MinStep {
		iters++
		if iters >= maxIters || noImprove >= maxNoImprove {
			bailedOut = true
			break
		}

		if needDeriv {
			probe := best + unit*MinStep
			probeErr := checkLine(kind, pivot, probe, y)
			if probeErr < 0 {
				probe = best - unit*MinStep
				probeErr = checkLine(kind, pivot, probe, y)
			}
			derivative = probeErr - bestErr
			needDeriv = false
		}

		trial := best + unit*step
		if derivative > 0 {
			trial = best - unit*step
		}

		trialErr := checkLine(kind, pivot, trial, y)
		if trialErr < 0 || trialErr >= bestErr {
			step *= 0.5
			noImprove++
			continue
		}

		best = trial
		bestErr = trialErr
		needDeriv = true
		noImprove = 0
	}

	return searchResult{
		slope:     best,
		intercept: -best*float64(pivot) + y[pivot],
		iters:     iters,
		noImprove: noImprove,
		bailedOut: bailedOut,
	}
}
