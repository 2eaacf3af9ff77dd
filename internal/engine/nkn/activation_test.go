package nkn

import (
	"math"
	"math/rand"
	"testing"
)

func TestSplineShape(t *testing.T) {
	if spline(0) != 0 {
		t.Fatalf("spline(0)=%v", spline(0))
	}
	for _, k := range knots {
		if math.Abs(spline(k.x)-k.y) > 1e-12 {
			t.Fatalf("spline(%v)=%v want %v", k.x, spline(k.x), k.y)
		}
	}
	if spline(-10) != -1 || spline(10) != 1 {
		t.Fatalf("spline not clamped outside range")
	}
	prev := spline(-2.5)
	for x := -2.5; x <= 2.5; x += 0.01 {
		y := spline(x)
		if y < prev-1e-12 {
			t.Fatalf("spline not monotone at %v: %v < %v", x, y, prev)
		}
		if math.Abs(spline(-x)+y) > 1e-9 {
			t.Fatalf("spline not odd at %v", x)
		}
		prev = y
	}
}

func TestSplineDerivativeMatchesNumeric(t *testing.T) {
	const h = 1e-6
	for _, x := range []float64{-1.7, -0.9, -0.3, 0.2, 0.75, 1.5} {
		num := (spline(x+h) - spline(x-h)) / (2 * h)
		if math.Abs(num-splineDeriv(x)) > 1e-5 {
			t.Fatalf("deriv at %v: analytic %v numeric %v", x, splineDeriv(x), num)
		}
	}
}

func TestBackpropMatchesNumericGradient(t *testing.T) {
	cfg := DefaultConfig().WithOverrides(WithNetwork(2, 4))
	rng := rand.New(rand.NewSource(3))
	net := newNetwork([]int{3, cfg.HiddenSize, cfg.HiddenSize, 1}, rng)
	x := []float64{0.3, -0.4, 0.2}
	target := 0.8

	g := net.zeroGradients()
	net.backprop(x, target, &g)

	loss := func() float64 {
		d := net.predict(x) - target
		return 0.5 * d * d
	}
	const h = 1e-6
	for l := range net.layers {
		w := &net.layers[l].w[0][0]
		orig := *w
		*w = orig + h
		up := loss()
		*w = orig - h
		down := loss()
		*w = orig
		num := (up - down) / (2 * h)
		if math.Abs(num-g.w[l][0][0]) > 1e-6 {
			t.Fatalf("layer %d grad: analytic %v numeric %v", l, g.w[l][0][0], num)
		}
	}
}
