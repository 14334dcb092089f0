// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package train

import (
	"github.com/born-ml/born/nn"
	"github.com/born-ml/born/optim"
	"github.com/born-ml/born/tensor"
)

// AdamW is Adam with decoupled weight decay.
//
// Each step first shrinks every parameter that received a gradient by
// (1 - lr*weightDecay), then applies the plain Adam update. The remaining
// optim.Optimizer methods, including optimizer state export and import,
// are those of the embedded Adam.
type AdamW[B tensor.Backend] struct {
	*optim.Adam[B]
	params      []*nn.Parameter[B]
	weightDecay float32
}

var _ optim.Optimizer = (*AdamW[tensor.Backend])(nil)

// NewAdamW creates an AdamW optimizer over params with betas (0.9, 0.999)
// and epsilon 1e-8.
func NewAdamW[B tensor.Backend](params []*nn.Parameter[B], lr, weightDecay float32, backend B) *AdamW[B] {
	return &AdamW[B]{
		Adam: optim.NewAdam(params, optim.AdamConfig{
			LR:    lr,
			Betas: [2]float32{0.9, 0.999},
			Eps:   1e-8,
		}, backend),
		params:      params,
		weightDecay: weightDecay,
	}
}

// Step applies one update from grads, as returned by autodiff.Backward.
func (o *AdamW[B]) Step(grads map[*tensor.RawTensor]*tensor.RawTensor) {
	if o.weightDecay > 0 {
		shrink := 1 - o.GetLR()*o.weightDecay
		for _, p := range o.params {
			raw := p.Tensor().Raw()
			if _, ok := grads[raw]; !ok {
				continue
			}
			data := raw.AsFloat32()
			for i := range data {
				data[i] *= shrink
			}
		}
	}
	o.Adam.Step(grads)
}

// WeightDecay returns the decay factor.
func (o *AdamW[B]) WeightDecay() float32 {
	return o.weightDecay
}
