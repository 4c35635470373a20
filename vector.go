package fpalgo

import (
	"errors"
	"fmt"
)

var (
	// ErrShapeMismatch is returned when vector or matrix lengths
	// don't line up.
	ErrShapeMismatch = errors.New("shape mismatch")
	// ErrStaleCache is returned when a cache is used with params
	// other than the ones that produced it, or after those params
	// have been updated.
	ErrStaleCache = errors.New("stale cache")
	// ErrConsumed is returned when a cache or gradient set is used
	// a second time.
	ErrConsumed = errors.New("already consumed")
	// ErrRate is returned for a negative or NaN learning rate.
	ErrRate = errors.New("invalid learning rate")
)

// Vector is an ordered sequence of reals: an input, an activation, a
// pre-activation, or the biases of one layer.
type Vector []float64

// Matrix is a weight set.  Row i holds the weights feeding neuron i.
type Matrix []Vector

// mismatch wraps ErrShapeMismatch with a description of the
// offending lengths.
func mismatch(op string, want, got int) error {
	return fmt.Errorf("%w: %s: want %d, got %d", ErrShapeMismatch, op, want, got)
}

// Clone returns a copy of v.
func (v Vector) Clone() (out Vector) {
	if v == nil {
		return nil
	}
	out = make(Vector, len(v))
	copy(out, v)
	return
}

// Clone returns a deep copy of m.
func (m Matrix) Clone() (out Matrix) {
	if m == nil {
		return nil
	}
	out = make(Matrix, len(m))
	for i, row := range m {
		out[i] = row.Clone()
	}
	return
}

// Cols returns the length of the rows of m, or 0 for an empty matrix.
func (m Matrix) Cols() int {
	if len(m) == 0 {
		return 0
	}
	return len(m[0])
}

// Dot returns sum(a[i] * b[i]).
func Dot(a, b Vector) (sum float64, err error) {
	if len(a) != len(b) {
		return 0, mismatch("dot", len(a), len(b))
	}
	for i := range a {
		sum += a[i] * b[i]
	}
	return
}

// Affine computes the pre-activation w·x + b of one layer.  Every row
// of w must be as long as x, and b must have one entry per row.
func Affine(x Vector, w Matrix, b Vector) (z Vector, err error) {
	if len(b) != len(w) {
		return nil, mismatch("affine bias", len(w), len(b))
	}
	z = make(Vector, len(w))
	for i, row := range w {
		z[i], err = Dot(row, x)
		if err != nil {
			return nil, fmt.Errorf("affine row %d: %w", i, err)
		}
		z[i] += b[i]
	}
	return
}

// Sub returns a - b element-wise.
func Sub(a, b Vector) (out Vector, err error) {
	if len(a) != len(b) {
		return nil, mismatch("sub", len(a), len(b))
	}
	out = make(Vector, len(a))
	for i := range a {
		out[i] = a[i] - b[i]
	}
	return
}

// Hadamard returns the element-wise product of a and b.
func Hadamard(a, b Vector) (out Vector, err error) {
	if len(a) != len(b) {
		return nil, mismatch("hadamard", len(a), len(b))
	}
	out = make(Vector, len(a))
	for i := range a {
		out[i] = a[i] * b[i]
	}
	return
}

// Outer returns the matrix m[i][j] = a[i] * b[j].
func Outer(a, b Vector) (m Matrix) {
	m = make(Matrix, len(a))
	for i, ai := range a {
		row := make(Vector, len(b))
		for j, bj := range b {
			row[j] = ai * bj
		}
		m[i] = row
	}
	return
}

// TransposeMul returns wᵀ·d: for each column j of w, the sum over rows
// i of w[i][j] * d[i].  It carries an error signal backward along the
// same connections Affine uses forward.
func TransposeMul(w Matrix, d Vector) (out Vector, err error) {
	if len(w) != len(d) {
		return nil, mismatch("transpose-mul rows", len(w), len(d))
	}
	cols := w.Cols()
	out = make(Vector, cols)
	for i, row := range w {
		if len(row) != cols {
			return nil, mismatch(fmt.Sprintf("transpose-mul row %d", i), cols, len(row))
		}
		for j, wij := range row {
			out[j] += wij * d[i]
		}
	}
	return
}
