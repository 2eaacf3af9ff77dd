package nkn

import (
	"math"
	"math/rand"

	"FinFusion/internal/domain/models"
)

type layer struct {
	w   [][]float64 // [out][in]
	b   []float64
	act string
}

// network is a dense feed-forward net: spline hidden layers, one sigmoid output.
// It is not safe for concurrent mutation; committed networks are never mutated.
type network struct {
	layers []layer
}

// newNetwork builds a net with Xavier-uniform weights and zero biases.
// sizes lists every layer width including input and output.
func newNetwork(sizes []int, rng *rand.Rand) *network {
	n := &network{layers: make([]layer, len(sizes)-1)}
	for l := range n.layers {
		in, out := sizes[l], sizes[l+1]
		limit := math.Sqrt(6 / float64(in+out))
		ly := layer{w: make([][]float64, out), b: make([]float64, out), act: activationSpline}
		if l == len(n.layers)-1 {
			ly.act = activationSigmoid
		}
		for j := range ly.w {
			ly.w[j] = make([]float64, in)
			for k := range ly.w[j] {
				ly.w[j][k] = (rng.Float64()*2 - 1) * limit
			}
		}
		n.layers[l] = ly
	}
	return n
}

func layerSizes(inputs int, cfg Config) []int {
	sizes := []int{inputs}
	for i := 0; i < cfg.NetworkDepth; i++ {
		sizes = append(sizes, cfg.HiddenSize)
	}
	return append(sizes, 1)
}

func activate(act string, z float64) float64 {
	if act == activationSigmoid {
		return sigmoid(z)
	}
	return spline(z)
}

// forward returns per-layer activations (acts[0] is the input) and pre-activations.
func (n *network) forward(x []float64) (acts, pre [][]float64) {
	acts = make([][]float64, len(n.layers)+1)
	pre = make([][]float64, len(n.layers))
	acts[0] = x
	for l, ly := range n.layers {
		z := make([]float64, len(ly.w))
		a := make([]float64, len(ly.w))
		for j, row := range ly.w {
			s := ly.b[j]
			for k, w := range row {
				s += w * acts[l][k]
			}
			z[j] = s
			a[j] = activate(ly.act, s)
		}
		pre[l] = z
		acts[l+1] = a
	}
	return acts, pre
}

func (n *network) predict(x []float64) float64 {
	acts, _ := n.forward(x)
	return acts[len(acts)-1][0]
}

type gradients struct {
	w [][][]float64
	b [][]float64
}

func (n *network) zeroGradients() gradients {
	g := gradients{w: make([][][]float64, len(n.layers)), b: make([][]float64, len(n.layers))}
	for l, ly := range n.layers {
		g.w[l] = make([][]float64, len(ly.w))
		for j := range ly.w {
			g.w[l][j] = make([]float64, len(ly.w[j]))
		}
		g.b[l] = make([]float64, len(ly.b))
	}
	return g
}

// backprop accumulates the squared-error gradient of one sample through every
// layer and returns the sample's squared error.
func (n *network) backprop(x []float64, target float64, g *gradients) float64 {
	acts, pre := n.forward(x)
	y := acts[len(acts)-1][0]
	diff := y - target

	last := len(n.layers) - 1
	delta := []float64{diff * y * (1 - y)}
	for l := last; l >= 0; l-- {
		ly := n.layers[l]
		for j := range ly.w {
			for k := range ly.w[j] {
				g.w[l][j][k] += delta[j] * acts[l][k]
			}
			g.b[l][j] += delta[j]
		}
		if l == 0 {
			break
		}
		prev := make([]float64, len(acts[l]))
		for k := range prev {
			s := 0.0
			for j := range ly.w {
				s += ly.w[j][k] * delta[j]
			}
			prev[k] = s * splineDeriv(pre[l-1][k])
		}
		delta = prev
	}
	return diff * diff
}

// apply takes one gradient-descent step with the batch-averaged gradient.
func (n *network) apply(g gradients, lr float64, batch int) {
	scale := lr / float64(batch)
	for l := range n.layers {
		ly := &n.layers[l]
		for j := range ly.w {
			for k := range ly.w[j] {
				ly.w[j][k] -= scale * g.w[l][j][k]
			}
			ly.b[j] -= scale * g.b[l][j]
		}
	}
}

func (n *network) clone() *network {
	c := &network{layers: make([]layer, len(n.layers))}
	for l, ly := range n.layers {
		nl := layer{w: make([][]float64, len(ly.w)), b: append([]float64(nil), ly.b...), act: ly.act}
		for j := range ly.w {
			nl.w[j] = append([]float64(nil), ly.w[j]...)
		}
		c.layers[l] = nl
	}
	return c
}

func (n *network) shape() []int {
	if len(n.layers) == 0 {
		return nil
	}
	sizes := []int{len(n.layers[0].w[0])}
	for _, ly := range n.layers {
		sizes = append(sizes, len(ly.w))
	}
	return sizes
}

func (n *network) layerStates() []models.LayerState {
	c := n.clone()
	out := make([]models.LayerState, len(c.layers))
	for l, ly := range c.layers {
		out[l] = models.LayerState{Weights: ly.w, Biases: ly.b, Activation: ly.act}
	}
	return out
}
