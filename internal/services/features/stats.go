package features

import (
	"math"

	talib "github.com/markcheno/go-talib"
)

// Mean of xs; 0 for an empty slice.
func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	s := 0.0
	for _, x := range xs {
		s += x
	}
	return s / float64(len(xs))
}

// StdDev is the sample standard deviation of xs; 0 below two points or when
// the spread is lost in rounding noise of the mean.
func StdDev(xs []float64) float64 {
	n := len(xs)
	if n < 2 {
		return 0
	}
	sd := Sanitize(talib.StdDev(xs, n, 1)[n-1], 0)
	if sd <= flatTolerance*math.Abs(Mean(xs)) {
		return 0
	}
	return sd * math.Sqrt(float64(n)/float64(n-1))
}

// flatTolerance is the relative spread below which a series counts as flat.
// talib computes variance as E[x²]-E[x]², so a constant series can carry
// noise of about sqrt(eps)·|mean|.
const flatTolerance = 1e-7

// ZScore of the last element of xs against the whole slice.
func ZScore(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	sd := StdDev(xs)
	if sd == 0 {
		return 0
	}
	return (xs[len(xs)-1] - Mean(xs)) / sd
}

// Pearson returns the correlation of the aligned tails of a and b.
// Zero variance in either series yields 0.
func Pearson(a, b []float64) float64 {
	n := min(len(a), len(b))
	if n < 2 {
		return 0
	}
	a, b = a[len(a)-n:], b[len(b)-n:]
	if StdDev(a) == 0 || StdDev(b) == 0 {
		return 0
	}
	r := talib.Correl(a, b, n)[n-1]
	return Clamp(Sanitize(r, 0), -1, 1)
}

// LinearSlope is the least-squares slope of xs against its index.
func LinearSlope(xs []float64) float64 {
	n := len(xs)
	if n < 2 {
		return 0
	}
	return Sanitize(talib.LinearRegSlope(xs, n)[n-1], 0)
}

// Tail returns the last n elements of xs (all of xs if shorter).
func Tail(xs []float64, n int) []float64 {
	if n >= len(xs) || n < 0 {
		return xs
	}
	return xs[len(xs)-n:]
}

// Clamp bounds x to [lo, hi].
func Clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// Clamp01 bounds x to [0, 1], mapping NaN to 0.
func Clamp01(x float64) float64 {
	return Clamp(Sanitize(x, 0), 0, 1)
}

// Sanitize replaces NaN and ±Inf with def.
func Sanitize(x, def float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return def
	}
	return x
}

// Finite reports whether x is neither NaN nor infinite.
func Finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
