package fpalgo

import (
	"math"
)

// Exp returns e**x.  Large positive x overflows to +Inf.
func Exp(x float64) float64 {
	return math.Exp(x)
}

// squash activation function
//
//	(e^z - e^-z) / (e^z + e^-z)
//
// Numerator and denominator are divided by e^|z| so the exponent
// never goes positive; the result is the same for every finite z and
// squash(-z) == -squash(z) exactly.
func squash(z float64) float64 {
	if z == 0 {
		return 0
	}
	en := Exp(-2 * math.Abs(z))
	a := (1 - en) / (1 + en)
	if z < 0 {
		return -a
	}
	return a
}

// squash derivative, given the squashed output rather than z
func squashD1(a float64) float64 {
	return 1 - a*a
}

// Squash applies the hyperbolic-tangent squashing function
// element-wise.  Outputs lie in (-1, 1).
func Squash(z Vector) (a Vector) {
	a = make(Vector, len(z))
	for i, zi := range z {
		a[i] = squash(zi)
	}
	return
}

// SquashD1 returns the derivative of Squash expressed in terms of its
// output: 1 - a² for each a = Squash(z).
func SquashD1(a Vector) (d Vector) {
	d = make(Vector, len(a))
	for i, ai := range a {
		d[i] = squashD1(ai)
	}
	return
}

// Normalize returns e^zi / sum(e^zj) for each element of z, a
// probability distribution over the entries of z.
//
// The max of z is not subtracted first, so pre-activations beyond
// roughly 709 overflow to NaN.
func Normalize(z Vector) (p Vector) {
	p = make(Vector, len(z))
	total := 0.0
	for i, zi := range z {
		p[i] = Exp(zi)
		total += p[i]
	}
	for i := range p {
		p[i] /= total
	}
	return
}
