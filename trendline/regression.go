package trendline

// Regress fits y against the indices 0..N-1 by ordinary least squares and
// returns the slope and the residuals y[i] - slope*i.
func Regress(y []float64) (slope float64, residuals []float64) {
	n := len(y)
	if n == 0 {
		return 0, nil
	}

	meanX := float64(n-1) / 2
	var meanY float64
	for _, v := range y {
		meanY += v
	}
	meanY /= float64(n)

	var cov, varX float64
	for i, v := range y {
		dx := float64(i) - meanX
		cov += dx * (v - meanY)
		varX += dx * dx
	}
	if varX > 0 {
		slope = cov / varX
	}

	residuals = make([]float64, n)
	for i, v := range y {
		residuals[i] = v - slope*float64(i)
	}
	return slope, residuals
}

func argmax(xs []float64) int {
	best := 0
	for i, v := range xs {
		if v > xs[best] {
			best = i
		}
	}
	return best
}

func argmin(xs []float64) int {
	best := 0
	for i, v := range xs {
		if v < xs[best] {
			best = i
		}
	}
	return best
}

func bounds(xs []float64) (lo, hi float64) {
	lo, hi = xs[0], xs[0]
	for _, v := range xs[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}
