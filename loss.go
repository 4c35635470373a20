package fpalgo

import (
	"math"
)

// Epsilon keeps CrossEntropy away from ln(0).
const Epsilon = 1e-15

// CrossEntropy returns -sum(target[i] * ln(predicted[i] + Epsilon)).
// target is usually one-hot but any distribution works.
//
// Backward never differentiates this directly: paired with Normalize
// its gradient at the output pre-activation is predicted - target.
func CrossEntropy(predicted, target Vector) (loss float64, err error) {
	if len(predicted) != len(target) {
		return 0, mismatch("cross-entropy", len(target), len(predicted))
	}
	for i, t := range target {
		loss += t * math.Log(predicted[i]+Epsilon)
	}
	return -loss, nil
}
