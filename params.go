package fpalgo

import (
	"fmt"
	"math/rand"

	. "github.com/stevegt/goadapt"
)

// Params holds the weights and biases of every layer.  Layer l owns
// Weights[l] and Biases[l]; all layers but the last squash, the last
// normalizes.  Only Update changes a Params.
type Params struct {
	Weights []Matrix
	Biases  []Vector
	// version is bumped by every Update so that a Cache can tell
	// whether the params it was computed from are still current.
	version uint64
}

// NewParams creates params for a network with inputCount inputs and
// one layer per entry in layerSizes, with weights and biases drawn
// uniformly from [-1, 1).  If rng is nil the global source is used.
func NewParams(rng *rand.Rand, inputCount int, layerSizes ...int) (p *Params) {
	Assert(inputCount > 0, "input count must be positive")
	Assert(len(layerSizes) > 0, "no layers")
	p = &Params{
		Weights: make([]Matrix, len(layerSizes)),
		Biases:  make([]Vector, len(layerSizes)),
	}
	cols := inputCount
	for l, rows := range layerSizes {
		Assert(rows > 0, "layer %d has no nodes", l)
		w := make(Matrix, rows)
		for i := range w {
			w[i] = make(Vector, cols)
		}
		p.Weights[l] = w
		p.Biases[l] = make(Vector, rows)
		cols = rows
	}
	p.Randomize(rng)
	return
}

// Layers returns the layer count L.
func (p *Params) Layers() int {
	return len(p.Weights)
}

// InputCount returns the length of the input vector expected by layer 0.
func (p *Params) InputCount() int {
	if len(p.Weights) == 0 {
		return 0
	}
	return p.Weights[0].Cols()
}

// OutputCount returns the neuron count of the last layer.
func (p *Params) OutputCount() int {
	if len(p.Biases) == 0 {
		return 0
	}
	return len(p.Biases[len(p.Biases)-1])
}

// LayerSizes returns the neuron count of each layer.
func (p *Params) LayerSizes() (sizes []int) {
	for _, b := range p.Biases {
		sizes = append(sizes, len(b))
	}
	return
}

// Check verifies that every weight matrix and bias vector agrees with
// its neighbors.
func (p *Params) Check() error {
	if len(p.Weights) == 0 {
		return fmt.Errorf("%w: no layers", ErrShapeMismatch)
	}
	if len(p.Biases) != len(p.Weights) {
		return mismatch("bias layers", len(p.Weights), len(p.Biases))
	}
	cols := p.InputCount()
	if cols == 0 {
		return fmt.Errorf("%w: layer 0 has no inputs", ErrShapeMismatch)
	}
	for l, w := range p.Weights {
		if len(w) == 0 {
			return fmt.Errorf("%w: layer %d has no nodes", ErrShapeMismatch, l)
		}
		if len(p.Biases[l]) != len(w) {
			return mismatch(Spf("layer %d biases", l), len(w), len(p.Biases[l]))
		}
		for i, row := range w {
			if len(row) != cols {
				return mismatch(Spf("layer %d row %d", l, i), cols, len(row))
			}
		}
		cols = len(w)
	}
	return nil
}

// Randomize sets every weight and bias to a random value in [-1, 1).
// If rng is nil the global source is used.
func (p *Params) Randomize(rng *rand.Rand) {
	f := rand.Float64
	if rng != nil {
		f = rng.Float64
	}
	for l, w := range p.Weights {
		for _, row := range w {
			for j := range row {
				row[j] = f()*2 - 1
			}
		}
		for i := range p.Biases[l] {
			p.Biases[l][i] = f()*2 - 1
		}
	}
	p.version++
}

// Zero sets every weight and bias to zero.
func (p *Params) Zero() {
	for l, w := range p.Weights {
		for _, row := range w {
			for j := range row {
				row[j] = 0
			}
		}
		for i := range p.Biases[l] {
			p.Biases[l][i] = 0
		}
	}
	p.version++
}

// Clone returns a deep copy of p.  The copy shares no memory with p,
// so caches made from one are stale for the other.
func (p *Params) Clone() (clone *Params) {
	clone = &Params{
		Weights: make([]Matrix, len(p.Weights)),
		Biases:  make([]Vector, len(p.Biases)),
	}
	for l := range p.Weights {
		clone.Weights[l] = p.Weights[l].Clone()
	}
	for l := range p.Biases {
		clone.Biases[l] = p.Biases[l].Clone()
	}
	return
}
