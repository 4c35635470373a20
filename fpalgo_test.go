package fpalgo

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"
)

// tinyParams is the single-layer net of the worked example: two
// inputs, two normalized outputs.
func tinyParams() *Params {
	return &Params{
		Weights: []Matrix{{{0.1, 0.2}, {0.3, 0.4}}},
		Biases:  []Vector{{0.0, 0.0}},
	}
}

func TestWorkedExample(t *testing.T) {
	p := tinyParams()
	x := Vector{1.0, 2.0}
	y := Vector{1.0, 0.0}

	out, cache, err := Forward(x, p)
	require.NoError(t, err)
	// z = [0.5, 1.1]
	e0, e1 := math.Exp(0.5), math.Exp(1.1)
	assert.InDeltaSlice(t, []float64{e0 / (e0 + e1), e1 / (e0 + e1)}, out, 1e-12)
	assert.InDeltaSlice(t, []float64{0.3543, 0.6457}, out, 1e-4)

	loss, err := CrossEntropy(out, y)
	require.NoError(t, err)
	assert.InDelta(t, -math.Log(out[0]), loss, 1e-12)
	assert.InDelta(t, 1.0375, loss, 1e-4)

	g, err := Backward(y, out, cache, p)
	require.NoError(t, err)
	require.Len(t, g.DW, 1)
	require.Len(t, g.DB, 1)
	d := out[1]
	assert.InDeltaSlice(t, []float64{-d, d}, g.DB[0], 1e-12)
	assert.InDeltaSlice(t, []float64{-0.6457, -1.2914}, g.DW[0][0], 1e-4)
	assert.InDeltaSlice(t, []float64{0.6457, 1.2914}, g.DW[0][1], 1e-4)

	before := p.Clone()
	require.NoError(t, Update(p, g, 0.1))
	for i := range p.Weights[0] {
		for j := range p.Weights[0][i] {
			assert.InDelta(t, before.Weights[0][i][j]-0.1*g.DW[0][i][j], p.Weights[0][i][j], 1e-12)
		}
		assert.InDelta(t, before.Biases[0][i]-0.1*g.DB[0][i], p.Biases[0][i], 1e-12)
	}
	assert.InDeltaSlice(t, []float64{0.16457, 0.32914}, p.Weights[0][0], 1e-4)
	assert.InDeltaSlice(t, []float64{0.23543, 0.27086}, p.Weights[0][1], 1e-4)
	assert.InDeltaSlice(t, []float64{0.06457, -0.06457}, p.Biases[0], 1e-4)
}

func TestForwardDeterministic(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	p := NewParams(rng, 3, 5, 4, 4, 4, 4, 4, 3)
	before := p.Clone()
	x := Vector{0.2, -0.7, 1.3}

	out1, c1, err := Forward(x, p)
	require.NoError(t, err)
	out2, c2, err := Forward(x, p)
	require.NoError(t, err)

	assert.Equal(t, out1, out2)
	assert.Equal(t, c1.Input, c2.Input)
	assert.Equal(t, c1.Activations, c2.Activations)
	require.Equal(t, 7, c1.Layers())
	assert.Equal(t, out1, c1.Activations[6])
	assert.InDelta(t, 1.0, floats.Sum(out1), 1e-9)
	for l := 0; l < 6; l++ {
		assert.Len(t, c1.Activations[l], len(p.Biases[l]))
		for _, a := range c1.Activations[l] {
			assert.True(t, a > -1 && a < 1, "layer %d activation %v", l, a)
		}
	}

	// params untouched
	assert.Equal(t, before.Weights, p.Weights)
	assert.Equal(t, before.Biases, p.Biases)

	// the cache keeps its own copy of the input
	x[0] = 99
	assert.Equal(t, 0.2, c1.Input[0])
}

func TestForwardShapeMismatch(t *testing.T) {
	p := tinyParams()
	_, _, err := Forward(Vector{1, 2, 3}, p)
	assert.ErrorIs(t, err, ErrShapeMismatch)

	_, _, err = Forward(Vector{1, 2}, &Params{})
	assert.ErrorIs(t, err, ErrShapeMismatch)

	p.Biases = append(p.Biases, Vector{0})
	_, _, err = Forward(Vector{1, 2}, p)
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestCrossEntropy(t *testing.T) {
	loss, err := CrossEntropy(Vector{0.25, 0.75}, Vector{0, 1})
	require.NoError(t, err)
	assert.InDelta(t, -math.Log(0.75), loss, 1e-12)

	// zero probability is guarded by epsilon
	loss, err = CrossEntropy(Vector{0, 1}, Vector{1, 0})
	require.NoError(t, err)
	assert.InDelta(t, -math.Log(Epsilon), loss, 1e-9)
	assert.False(t, math.IsInf(loss, 0))

	// soft targets
	loss, err = CrossEntropy(Vector{0.5, 0.5}, Vector{0.5, 0.5})
	require.NoError(t, err)
	assert.InDelta(t, math.Ln2, loss, 1e-12)

	_, err = CrossEntropy(Vector{0.5, 0.5}, Vector{1})
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

// flatWeights returns every weight of p in layer, row, column order.
func flatWeights(p *Params) (flat []float64) {
	for _, w := range p.Weights {
		for _, row := range w {
			flat = append(flat, row...)
		}
	}
	return
}

// setFlatWeights is the inverse of flatWeights.
func setFlatWeights(p *Params, flat []float64) {
	k := 0
	for _, w := range p.Weights {
		for _, row := range w {
			k += copy(row, flat[k:k+len(row)])
		}
	}
}

// checkGradient compares Backward's weight and bias gradients with
// central finite differences of the loss.
func checkGradient(t *testing.T, p *Params, x, y Vector) {
	out, cache, err := Forward(x, p)
	require.NoError(t, err)
	g, err := Backward(y, out, cache, p)
	require.NoError(t, err)

	var analytic []float64
	for _, dw := range g.DW {
		for _, row := range dw {
			analytic = append(analytic, row...)
		}
	}

	settings := &fd.Settings{Formula: fd.Central, Step: 1e-5}
	shifted := p.Clone()
	lossAt := func(w []float64) float64 {
		setFlatWeights(shifted, w)
		out, _, err := Forward(x, shifted)
		require.NoError(t, err)
		loss, err := CrossEntropy(out, y)
		require.NoError(t, err)
		return loss
	}
	numeric := fd.Gradient(nil, lossAt, flatWeights(p), settings)
	require.Len(t, numeric, len(analytic))
	for i := range numeric {
		assert.InDelta(t, numeric[i], analytic[i], 1e-4, "weight %d", i)
	}

	// biases, one layer at a time
	for l := range p.Biases {
		shifted := p.Clone()
		lossAt := func(b []float64) float64 {
			copy(shifted.Biases[l], b)
			out, _, err := Forward(x, shifted)
			require.NoError(t, err)
			loss, err := CrossEntropy(out, y)
			require.NoError(t, err)
			return loss
		}
		numeric := fd.Gradient(nil, lossAt, p.Biases[l].Clone(), settings)
		assert.True(t, floats.EqualApprox(numeric, g.DB[l], 1e-4), "layer %d: %v vs %v", l, numeric, g.DB[l])
	}
}

func TestGradientSingleLayer(t *testing.T) {
	checkGradient(t, tinyParams(), Vector{1, 2}, Vector{1, 0})
}

func TestGradientHidden(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	p := NewParams(rng, 3, 4, 3)
	checkGradient(t, p, Vector{0.5, -1, 0.25}, Vector{0, 0, 1})
}

func TestGradientDeep(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	p := NewParams(rng, 2, 3, 3, 3, 3, 3, 3, 2)
	checkGradient(t, p, Vector{0.3, -0.6}, Vector{0, 1})
}

func TestBackwardShapes(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	sizes := []int{6, 5, 4, 3, 4, 5, 2}
	p := NewParams(rng, 3, sizes...)
	before := p.Clone()
	out, cache, err := Forward(Vector{1, 0, -1}, p)
	require.NoError(t, err)
	acts := make([]Vector, len(cache.Activations))
	for l, a := range cache.Activations {
		acts[l] = a.Clone()
	}

	g, err := Backward(Vector{1, 0}, out, cache, p)
	require.NoError(t, err)
	require.Len(t, g.DW, len(sizes))
	require.Len(t, g.DB, len(sizes))
	for l := range sizes {
		require.Len(t, g.DW[l], len(p.Weights[l]))
		for i := range g.DW[l] {
			assert.Len(t, g.DW[l][i], len(p.Weights[l][i]))
		}
		assert.Len(t, g.DB[l], len(p.Biases[l]))
	}
	// neither params nor cache were touched
	assert.Equal(t, before.Weights, p.Weights)
	assert.Equal(t, before.Biases, p.Biases)
	assert.Equal(t, acts, cache.Activations)
}

func TestBackwardErrors(t *testing.T) {
	p := tinyParams()
	x, y := Vector{1, 2}, Vector{1, 0}

	// target of the wrong length
	out, cache, err := Forward(x, p)
	require.NoError(t, err)
	_, err = Backward(Vector{1, 0, 0}, out, cache, p)
	assert.ErrorIs(t, err, ErrShapeMismatch)

	// a cache feeds one backward pass
	out, cache, err = Forward(x, p)
	require.NoError(t, err)
	_, err = Backward(y, out, cache, p)
	require.NoError(t, err)
	_, err = Backward(y, out, cache, p)
	assert.ErrorIs(t, err, ErrConsumed)

	// a cache from other params is stale
	out, cache, err = Forward(x, p)
	require.NoError(t, err)
	_, err = Backward(y, out, cache, p.Clone())
	assert.ErrorIs(t, err, ErrStaleCache)

	// so is a cache from before an update
	out, cache, err = Forward(x, p)
	require.NoError(t, err)
	out2, cache2, err := Forward(x, p)
	require.NoError(t, err)
	g, err := Backward(y, out2, cache2, p)
	require.NoError(t, err)
	require.NoError(t, Update(p, g, 0.1))
	_, err = Backward(y, out, cache, p)
	assert.ErrorIs(t, err, ErrStaleCache)
}

func TestUpdateZeroRate(t *testing.T) {
	rng := rand.New(rand.NewSource(6))
	p := NewParams(rng, 2, 3, 2)
	before := p.Clone()
	g := NewGradients(p)
	for _, dw := range g.DW {
		for _, row := range dw {
			for j := range row {
				row[j] = rng.Float64()*10 - 5
			}
		}
	}
	for _, db := range g.DB {
		for i := range db {
			db[i] = rng.Float64()*10 - 5
		}
	}
	require.NoError(t, Update(p, g, 0.0))
	assert.Equal(t, before.Weights, p.Weights)
	assert.Equal(t, before.Biases, p.Biases)
}

func TestUpdateZeroRateNonFinite(t *testing.T) {
	p := tinyParams()
	before := p.Clone()
	g := NewGradients(p)
	g.DW[0][0][0] = math.Inf(1)
	g.DW[0][1][1] = math.NaN()
	g.DB[0][0] = math.Inf(-1)
	require.NoError(t, Update(p, g, 0))
	assert.Equal(t, before.Weights, p.Weights)
	assert.Equal(t, before.Biases, p.Biases)
	assert.ErrorIs(t, Update(p, g, 0), ErrConsumed)

	// caches stay usable after a zero step
	out, cache, err := Forward(Vector{1, 2}, p)
	require.NoError(t, err)
	require.NoError(t, Update(p, NewGradients(p), 0))
	_, err = Backward(Vector{1, 0}, out, cache, p)
	assert.NoError(t, err)
}

func TestUpdateErrors(t *testing.T) {
	p := tinyParams()
	before := p.Clone()

	assert.ErrorIs(t, Update(p, NewGradients(p), -0.1), ErrRate)
	assert.ErrorIs(t, Update(p, NewGradients(p), math.NaN()), ErrRate)

	g := NewGradients(p)
	require.NoError(t, Update(p, g, 0.1))
	assert.ErrorIs(t, Update(p, g, 0.1), ErrConsumed)

	// wrong shape leaves params alone
	bad := NewGradients(p)
	bad.DW[0][1] = Vector{1}
	assert.ErrorIs(t, Update(p, bad, 0.1), ErrShapeMismatch)
	bad = NewGradients(p)
	bad.DB[0] = Vector{1, 2, 3}
	assert.ErrorIs(t, Update(p, bad, 0.1), ErrShapeMismatch)
	bad = NewGradients(NewParams(nil, 2, 2, 2))
	assert.ErrorIs(t, Update(p, bad, 0.1), ErrShapeMismatch)
	assert.Equal(t, before.Weights, p.Weights)
	assert.Equal(t, before.Biases, p.Biases)
}

func TestGradientsAddScale(t *testing.T) {
	p := tinyParams()
	g := NewGradients(p)
	h := NewGradients(p)
	h.DW[0][0][1] = 2
	h.DB[0][1] = -4
	require.NoError(t, g.Add(h))
	require.NoError(t, g.Add(h))
	g.Scale(0.5)
	assert.Equal(t, 2.0, g.DW[0][0][1])
	assert.Equal(t, -4.0, g.DB[0][1])
	assert.Equal(t, 0.0, g.DW[0][1][0])

	other := NewGradients(NewParams(nil, 3, 2))
	assert.ErrorIs(t, g.Add(other), ErrShapeMismatch)
}

func TestParams(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	p := NewParams(rng, 4, 3, 2)
	require.NoError(t, p.Check())
	assert.Equal(t, 2, p.Layers())
	assert.Equal(t, 4, p.InputCount())
	assert.Equal(t, 2, p.OutputCount())
	assert.Equal(t, []int{3, 2}, p.LayerSizes())
	for _, w := range flatWeights(p) {
		assert.True(t, w >= -1 && w < 1, w)
	}

	c := p.Clone()
	c.Weights[0][0][0] = 42
	assert.NotEqual(t, 42.0, p.Weights[0][0][0])

	p.Zero()
	for _, w := range flatWeights(p) {
		assert.Equal(t, 0.0, w)
	}

	bad := &Params{Weights: []Matrix{{{1, 2}, {3}}}, Biases: []Vector{{0, 0}}}
	assert.ErrorIs(t, bad.Check(), ErrShapeMismatch)
	bad = &Params{Weights: []Matrix{{{1, 2}}, {{1, 2}}}, Biases: []Vector{{0}, {0}}}
	assert.ErrorIs(t, bad.Check(), ErrShapeMismatch)
	assert.ErrorIs(t, (&Params{}).Check(), ErrShapeMismatch)
}

func xorSet() (ts *TrainingSet) {
	ts = NewTrainingSet()
	ts.Add(Vector{0, 0}, Vector{1, 0})
	ts.Add(Vector{0, 1}, Vector{0, 1})
	ts.Add(Vector{1, 0}, Vector{0, 1})
	ts.Add(Vector{1, 1}, Vector{1, 0})
	return
}

// meanLoss evaluates p over ts without the worker pool.
func meanLoss(t *testing.T, p *Params, ts *TrainingSet) (mean float64) {
	for _, tc := range ts.Cases {
		out, _, err := Forward(tc.Inputs, p)
		require.NoError(t, err)
		loss, err := CrossEntropy(out, tc.Targets)
		require.NoError(t, err)
		mean += loss
	}
	return mean / float64(len(ts.Cases))
}

func TestTrainingLoopConverges(t *testing.T) {
	rng := rand.New(rand.NewSource(8))
	p := NewParams(rng, 2, 4, 2)
	ts := xorSet()

	start := meanLoss(t, p, ts)
	for step := 0; step < 100; step++ {
		for _, tc := range ts.Cases {
			out, cache, err := Forward(tc.Inputs, p)
			require.NoError(t, err)
			_, err = CrossEntropy(out, tc.Targets)
			require.NoError(t, err)
			g, err := Backward(tc.Targets, out, cache, p)
			require.NoError(t, err)
			require.NoError(t, Update(p, g, 0.1))
		}
	}
	end := meanLoss(t, p, ts)
	assert.Less(t, end, start)
}
