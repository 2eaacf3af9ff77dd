package nkn

import "math"

const (
	activationSpline  = "spline"
	activationSigmoid = "sigmoid"
)

// knots of the hidden-layer activation: a monotone cubic Hermite spline on
// [-2, 2], odd-symmetric, unit slope at the origin and flat at both ends.
// Inputs outside the range are clamped.
var knots = [5]struct{ x, y, m float64 }{
	{-2, -1, 0},
	{-1, -0.8, 0.5},
	{0, 0, 1},
	{1, 0.8, 0.5},
	{2, 1, 0},
}

func segment(x float64) (int, float64) {
	i := int(math.Floor(x)) + 2
	if i > 3 {
		i = 3
	}
	return i, x - knots[i].x
}

func spline(x float64) float64 {
	if x <= knots[0].x {
		return knots[0].y
	}
	if x >= knots[4].x {
		return knots[4].y
	}
	i, t := segment(x)
	k0, k1 := knots[i], knots[i+1]
	t2, t3 := t*t, t*t*t
	return (2*t3-3*t2+1)*k0.y + (t3-2*t2+t)*k0.m + (-2*t3+3*t2)*k1.y + (t3-t2)*k1.m
}

func splineDeriv(x float64) float64 {
	if x <= knots[0].x || x >= knots[4].x {
		return 0
	}
	i, t := segment(x)
	k0, k1 := knots[i], knots[i+1]
	t2 := t * t
	return (6*t2-6*t)*k0.y + (3*t2-4*t+1)*k0.m + (-6*t2+6*t)*k1.y + (3*t2-2*t)*k1.m
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}
