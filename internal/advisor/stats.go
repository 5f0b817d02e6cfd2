package advisor

import "math"

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// stdDev is the population standard deviation.
func stdDev(values []float64, m float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sumSquares := 0.0
	for _, v := range values {
		sumSquares += (v - m) * (v - m)
	}
	return math.Sqrt(sumSquares / float64(len(values)))
}

// linearFit is an ordinary least squares fit of values against their index.
type linearFit struct {
	n         int
	slope     float64
	intercept float64
	xMean     float64
	sxx       float64
	sse       float64
}

func fitLine(values []float64) linearFit {
	n := len(values)
	f := linearFit{n: n}
	if n == 0 {
		return f
	}
	f.xMean = float64(n-1) / 2
	yMean := mean(values)

	var sxy float64
	for i, y := range values {
		dx := float64(i) - f.xMean
		sxy += dx * (y - yMean)
		f.sxx += dx * dx
	}
	if f.sxx > 0 {
		f.slope = sxy / f.sxx
	}
	f.intercept = yMean - f.slope*f.xMean

	for i, y := range values {
		r := y - f.at(float64(i))
		f.sse += r * r
	}
	return f
}

func (f linearFit) at(x float64) float64 { return f.intercept + f.slope*x }

// stdErr is the residual standard error. Zero with fewer than three points.
func (f linearFit) stdErr() float64 {
	if f.n < 3 {
		return 0
	}
	return math.Sqrt(f.sse / float64(f.n-2))
}

// predictionHalfWidth is the half width of the prediction interval at x0.
func (f linearFit) predictionHalfWidth(x0, z float64) float64 {
	if f.n == 0 || f.sxx == 0 {
		return 0
	}
	dx := x0 - f.xMean
	return z * f.stdErr() * math.Sqrt(1+1/float64(f.n)+dx*dx/f.sxx)
}

// pearson returns the correlation coefficient of x and y over their common
// length. ok is false when either series has zero variance.
func pearson(x, y []float64) (r float64, ok bool) {
	n := len(x)
	if len(y) < n {
		n = len(y)
	}
	if n == 0 {
		return 0, false
	}
	x, y = x[:n], y[:n]
	meanX, meanY := mean(x), mean(y)

	numerator := 0.0
	denomX, denomY := 0.0, 0.0
	for i := range x {
		dx := x[i] - meanX
		dy := y[i] - meanY
		numerator += dx * dy
		denomX += dx * dx
		denomY += dy * dy
	}
	if denomX == 0 || denomY == 0 {
		return 0, false
	}
	r = numerator / (math.Sqrt(denomX) * math.Sqrt(denomY))
	// rounding can push a perfect fit just past 1
	return math.Max(-1, math.Min(1, r)), true
}
