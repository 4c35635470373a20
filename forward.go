package fpalgo

import (
	"fmt"
)

// Cache records what one forward pass produced and what the matching
// backward pass needs: the original input and every layer's
// activation.  A Cache is tied to the Params that produced it and
// can be fed to Backward once.
type Cache struct {
	Input       Vector
	Activations []Vector
	params      *Params
	version     uint64
	consumed    bool
}

// Forward propagates input through every layer of p and returns the
// output distribution along with the cache for Backward.  Hidden
// layers squash, the last layer normalizes.  Forward does not modify
// p.
func Forward(input Vector, p *Params) (output Vector, cache *Cache, err error) {
	L := p.Layers()
	if L == 0 {
		return nil, nil, fmt.Errorf("%w: no layers", ErrShapeMismatch)
	}
	if len(p.Biases) != L {
		return nil, nil, mismatch("bias layers", L, len(p.Biases))
	}
	cache = &Cache{
		Input:       input.Clone(),
		Activations: make([]Vector, L),
		params:      p,
		version:     p.version,
	}
	a := cache.Input
	for l := 0; l < L; l++ {
		z, err := Affine(a, p.Weights[l], p.Biases[l])
		if err != nil {
			return nil, nil, fmt.Errorf("layer %d: %w", l, err)
		}
		if l < L-1 {
			a = Squash(z)
		} else {
			a = Normalize(z)
		}
		cache.Activations[l] = a
	}
	output = a.Clone()
	return
}

// Layers returns the number of layer activations in the cache.
func (c *Cache) Layers() int {
	return len(c.Activations)
}

// prev returns the activation feeding layer l.
func (c *Cache) prev(l int) Vector {
	if l == 0 {
		return c.Input
	}
	return c.Activations[l-1]
}
