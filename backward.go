package fpalgo

import (
	"fmt"
)

// Gradients holds the loss gradient for every weight and bias, laid
// out like the Params they were computed from.  Update consumes a
// Gradients once.
type Gradients struct {
	DW       []Matrix
	DB       []Vector
	consumed bool
}

// Backward computes the gradient of the cross-entropy loss with
// respect to every weight and bias in p, given the target, the
// predicted output and the cache from the Forward call that produced
// it.  The cache must come from p, p must not have been updated
// since, and the cache must not have been used before.
//
// The output layer's error signal is predicted - target, which is
// what normalize and cross-entropy reduce to together.  Each hidden
// layer's error signal is the next layer's carried back through its
// weights and scaled by the squash derivative.
func Backward(target, predicted Vector, cache *Cache, p *Params) (g *Gradients, err error) {
	if cache.params != p || cache.version != p.version {
		return nil, ErrStaleCache
	}
	if cache.consumed {
		return nil, fmt.Errorf("cache: %w", ErrConsumed)
	}
	L := p.Layers()
	if cache.Layers() != L {
		return nil, mismatch("cache layers", L, cache.Layers())
	}
	if len(predicted) != p.OutputCount() {
		return nil, mismatch("predicted", p.OutputCount(), len(predicted))
	}

	delta, err := Sub(predicted, target)
	if err != nil {
		return nil, fmt.Errorf("output delta: %w", err)
	}

	g = &Gradients{
		DW: make([]Matrix, L),
		DB: make([]Vector, L),
	}
	for l := L - 1; l >= 0; l-- {
		aPrev := cache.prev(l)
		g.DW[l] = Outer(delta, aPrev)
		g.DB[l] = delta
		if l == 0 {
			break
		}
		// delta for layer l-1, from this layer's delta before it
		// gets replaced
		back, err := TransposeMul(p.Weights[l], delta)
		if err != nil {
			return nil, fmt.Errorf("layer %d: %w", l, err)
		}
		delta, err = Hadamard(back, SquashD1(aPrev))
		if err != nil {
			return nil, fmt.Errorf("layer %d: %w", l-1, err)
		}
	}
	cache.consumed = true
	return
}

// NewGradients returns a zeroed gradient set shaped like p.
func NewGradients(p *Params) (g *Gradients) {
	g = &Gradients{
		DW: make([]Matrix, p.Layers()),
		DB: make([]Vector, p.Layers()),
	}
	for l, w := range p.Weights {
		g.DW[l] = make(Matrix, len(w))
		for i, row := range w {
			g.DW[l][i] = make(Vector, len(row))
		}
		g.DB[l] = make(Vector, len(p.Biases[l]))
	}
	return
}

// Add accumulates other into g.  Both must have the same shape.
func (g *Gradients) Add(other *Gradients) error {
	if len(g.DW) != len(other.DW) || len(g.DB) != len(other.DB) {
		return mismatch("gradient layers", len(g.DW), len(other.DW))
	}
	for l := range g.DW {
		if len(g.DW[l]) != len(other.DW[l]) {
			return mismatch(fmt.Sprintf("layer %d gradient rows", l), len(g.DW[l]), len(other.DW[l]))
		}
		for i := range g.DW[l] {
			if len(g.DW[l][i]) != len(other.DW[l][i]) {
				return mismatch(fmt.Sprintf("layer %d gradient row %d", l, i), len(g.DW[l][i]), len(other.DW[l][i]))
			}
			for j := range g.DW[l][i] {
				g.DW[l][i][j] += other.DW[l][i][j]
			}
		}
		if len(g.DB[l]) != len(other.DB[l]) {
			return mismatch(fmt.Sprintf("layer %d bias gradient", l), len(g.DB[l]), len(other.DB[l]))
		}
		for i := range g.DB[l] {
			g.DB[l][i] += other.DB[l][i]
		}
	}
	return nil
}

// Scale multiplies every gradient in g by s.
func (g *Gradients) Scale(s float64) {
	for l := range g.DW {
		for _, row := range g.DW[l] {
			for j := range row {
				row[j] *= s
			}
		}
		for i := range g.DB[l] {
			g.DB[l][i] *= s
		}
	}
}
