package fpalgo

import (
	"fmt"
	"math"
)

// Update applies one gradient-descent step to p in place:
//
//	W = W - rate * dW
//	b = b - rate * db
//
// rate must not be negative or NaN.  A rate of 0 leaves p unchanged,
// even for non-finite gradients, and does not stale existing caches.
// Otherwise every cache produced from p before the call becomes stale.
func Update(p *Params, g *Gradients, rate float64) error {
	if math.IsNaN(rate) || rate < 0 {
		return fmt.Errorf("%w: %v", ErrRate, rate)
	}
	if g.consumed {
		return fmt.Errorf("gradients: %w", ErrConsumed)
	}
	if err := checkGradients(p, g); err != nil {
		return err
	}
	// 0 * Inf is NaN, so a zero step must not touch p at all
	if rate == 0 {
		g.consumed = true
		return nil
	}
	for l, w := range p.Weights {
		for i, row := range w {
			dw := g.DW[l][i]
			for j := range row {
				row[j] -= rate * dw[j]
			}
		}
		b := p.Biases[l]
		for i := range b {
			b[i] -= rate * g.DB[l][i]
		}
	}
	g.consumed = true
	p.version++
	return nil
}

// checkGradients verifies g is shaped like p before anything is
// modified, so a bad gradient set never leaves p half-updated.
func checkGradients(p *Params, g *Gradients) error {
	L := p.Layers()
	if len(g.DW) != L || len(g.DB) != L {
		return mismatch("gradient layers", L, len(g.DW))
	}
	for l, w := range p.Weights {
		if len(g.DW[l]) != len(w) {
			return mismatch(fmt.Sprintf("layer %d gradient rows", l), len(w), len(g.DW[l]))
		}
		for i, row := range w {
			if len(g.DW[l][i]) != len(row) {
				return mismatch(fmt.Sprintf("layer %d gradient row %d", l, i), len(row), len(g.DW[l][i]))
			}
		}
		if len(g.DB[l]) != len(p.Biases[l]) {
			return mismatch(fmt.Sprintf("layer %d bias gradient", l), len(p.Biases[l]), len(g.DB[l]))
		}
	}
	return nil
}
