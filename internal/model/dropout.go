// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package model

import (
	"math/rand/v2"

	"github.com/born-ml/born/tensor"
)

// Dropout zeroes a fraction of activations during training and rescales
// the survivors by 1/(1-rate). Outside training it is the identity.
//
// The mask is drawn from the supplied generator, so a seeded generator
// gives reproducible masks.
type Dropout[B tensor.Backend] struct {
	rate float32
	rng  *rand.Rand
}

// NewDropout creates a dropout layer. rate must be in [0, 1).
func NewDropout[B tensor.Backend](rate float32, rng *rand.Rand) *Dropout[B] {
	return &Dropout[B]{rate: rate, rng: rng}
}

// Forward applies dropout when train is set.
func (d *Dropout[B]) Forward(x *tensor.Tensor[float32, B], train bool) *tensor.Tensor[float32, B] {
	if !train || d.rate == 0 {
		return x
	}

	keep := 1 - d.rate
	scale := 1 / keep
	mask := make([]float32, x.NumElements())
	for i := range mask {
		if d.rng.Float32() < keep {
			mask[i] = scale
		}
	}

	m, err := tensor.FromSlice(mask, x.Shape(), x.Backend())
	if err != nil {
		panic(err)
	}
	return x.Mul(m)
}

// Rate returns the drop probability.
func (d *Dropout[B]) Rate() float32 {
	return d.rate
}
