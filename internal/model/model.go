// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package model defines the convolutional digit classifier.
//
// The layer graph is fixed; its sizes come from Config. Parameters are
// named the same way in memory and in checkpoints:
//
//	c1.weight  c1.bias    first convolution
//	c2.weight  c2.bias    second convolution
//	fc1.weight fc1.bias   hidden fully-connected layer
//	fc2.weight fc2.bias   output layer
package model

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"

	"github.com/born-ml/born/nn"
	"github.com/born-ml/born/tensor"
)

// ErrShapeMismatch reports parameters that do not fit the model structure.
var ErrShapeMismatch = errors.New("parameter shape mismatch")

// Model is the two-stage convolutional network.
type Model[B tensor.Backend] struct {
	cfg Config

	conv1   *nn.Conv2D[B]
	pool1   *nn.MaxPool2D[B]
	conv2   *nn.Conv2D[B]
	pool2   *nn.MaxPool2D[B]
	fc1     *nn.Linear[B]
	relu    *nn.ReLU[B]
	dropout *Dropout[B]
	fc2     *nn.Linear[B]
}

// New builds a model on backend. Weights are drawn from rng with Xavier
// initialization and biases start at zero, so equal seeds give equal
// models. rng also drives dropout.
func New[B tensor.Backend](cfg Config, backend B, rng *rand.Rand) (*Model[B], error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("model config: %w", err)
	}
	k := cfg.KernelSize
	m := &Model[B]{
		cfg:     cfg,
		conv1:   nn.NewConv2D(cfg.InChannels, cfg.Conv1Channels, k, k, 1, 0, true, backend),
		pool1:   nn.NewMaxPool2D(cfg.PoolSize, cfg.PoolSize, backend),
		conv2:   nn.NewConv2D(cfg.Conv1Channels, cfg.Conv2Channels, k, k, 1, 0, true, backend),
		pool2:   nn.NewMaxPool2D(cfg.PoolSize, cfg.PoolSize, backend),
		fc1:     nn.NewLinear(cfg.FlattenSize(), cfg.Hidden, backend),
		relu:    nn.NewReLU[B](),
		dropout: NewDropout[B](cfg.DropoutRate, rng),
		fc2:     nn.NewLinear(cfg.Hidden, cfg.NumClasses, backend),
	}
	m.initWeights(rng)
	return m, nil
}

// initWeights overwrites the weights with Xavier-uniform values from rng,
// using the same fan-in/fan-out the layers use themselves.
func (m *Model[B]) initWeights(rng *rand.Rand) {
	k2 := m.cfg.KernelSize * m.cfg.KernelSize
	fans := map[string][2]int{
		"c1.weight":  {m.cfg.InChannels * k2, m.cfg.Conv1Channels * k2},
		"c2.weight":  {m.cfg.Conv1Channels * k2, m.cfg.Conv2Channels * k2},
		"fc1.weight": {m.cfg.FlattenSize(), m.cfg.Hidden},
		"fc2.weight": {m.cfg.Hidden, m.cfg.NumClasses},
	}
	for _, p := range m.named() {
		fan, ok := fans[p.name]
		if !ok {
			continue
		}
		bound := math.Sqrt(6.0 / float64(fan[0]+fan[1]))
		data := p.param.Tensor().Data()
		for i := range data {
			data[i] = float32((rng.Float64()*2.0 - 1.0) * bound)
		}
	}
}

// Config returns the structural configuration.
func (m *Model[B]) Config() Config {
	return m.cfg
}

// Forward computes class scores for a batch of flattened images.
//
// xs has shape [batch, InputSize]; the result has shape [batch, NumClasses]
// and holds unnormalized logits. train enables dropout. Any other input
// shape panics.
func (m *Model[B]) Forward(xs *tensor.Tensor[float32, B], train bool) *tensor.Tensor[float32, B] {
	shape := xs.Shape()
	if len(shape) != 2 || shape[1] != m.cfg.InputSize() {
		panic(fmt.Sprintf("model: expected input [batch, %d], got %v", m.cfg.InputSize(), shape))
	}
	batch := shape[0]

	x := xs.Reshape(batch, m.cfg.InChannels, m.cfg.ImageSize, m.cfg.ImageSize)
	x = m.conv1.Forward(x)
	x = m.pool1.Forward(x)
	x = m.conv2.Forward(x)
	x = m.pool2.Forward(x)
	x = x.Reshape(batch, m.cfg.FlattenSize())
	x = m.fc1.Forward(x)
	x = m.relu.Forward(x)
	x = m.dropout.Forward(x, train)
	return m.fc2.Forward(x)
}

// Inference returns a view of m satisfying nn.Module with dropout
// disabled. It shares parameters with m.
func (m *Model[B]) Inference() nn.Module[B] {
	return inference[B]{m}
}

type inference[B tensor.Backend] struct {
	*Model[B]
}

var _ nn.Module[tensor.Backend] = inference[tensor.Backend]{}

func (v inference[B]) Forward(xs *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	return v.Model.Forward(xs, false)
}

// Parameters returns all trainable parameters in checkpoint order.
func (m *Model[B]) Parameters() []*nn.Parameter[B] {
	named := m.named()
	params := make([]*nn.Parameter[B], len(named))
	for i, p := range named {
		params[i] = p.param
	}
	return params
}

// ParameterNames returns the checkpoint names of Parameters, in order.
func (m *Model[B]) ParameterNames() []string {
	named := m.named()
	names := make([]string, len(named))
	for i, p := range named {
		names[i] = p.name
	}
	return names
}

// NumParameters returns the total number of scalar parameters.
func (m *Model[B]) NumParameters() int {
	total := 0
	for _, p := range m.Parameters() {
		total += p.Tensor().NumElements()
	}
	return total
}

// StateDict returns the named parameter collection. The tensors are shared
// with the model, not copied.
func (m *Model[B]) StateDict() map[string]*tensor.RawTensor {
	sd := make(map[string]*tensor.RawTensor, 8)
	for _, p := range m.named() {
		sd[p.name] = p.param.Tensor().Raw()
	}
	return sd
}

// LoadStateDict copies stateDict into the model's parameters.
//
// Every parameter must be present with exactly the expected shape and
// float32 dtype, and no unknown names are allowed. Otherwise an error
// wrapping ErrShapeMismatch is returned and the model is left unchanged.
func (m *Model[B]) LoadStateDict(stateDict map[string]*tensor.RawTensor) error {
	named := m.named()
	for _, p := range named {
		raw, ok := stateDict[p.name]
		if !ok {
			return fmt.Errorf("%w: missing %s", ErrShapeMismatch, p.name)
		}
		want := p.param.Tensor().Shape()
		if !raw.Shape().Equal(want) {
			return fmt.Errorf("%w: %s: expected %v, got %v", ErrShapeMismatch, p.name, want, raw.Shape())
		}
		if raw.DType() != tensor.Float32 {
			return fmt.Errorf("%w: %s: expected float32, got %v", ErrShapeMismatch, p.name, raw.DType())
		}
	}
	if len(stateDict) != len(named) {
		known := m.ParameterNames()
		for name := range stateDict {
			if !slices.Contains(known, name) {
				return fmt.Errorf("%w: unexpected %s", ErrShapeMismatch, name)
			}
		}
	}

	for _, p := range named {
		copy(p.param.Tensor().Data(), stateDict[p.name].AsFloat32())
	}
	return nil
}

// String returns a representation of the model architecture.
func (m *Model[B]) String() string {
	return fmt.Sprintf(`ConvNet(
  %s
  %s
  %s
  %s
  Linear(in=%d, out=%d)
  ReLU()
  Dropout(p=%g)
  Linear(in=%d, out=%d)
)`,
		m.conv1.String(), m.pool1.String(),
		m.conv2.String(), m.pool2.String(),
		m.cfg.FlattenSize(), m.cfg.Hidden,
		m.dropout.Rate(),
		m.cfg.Hidden, m.cfg.NumClasses)
}

type namedParam[B tensor.Backend] struct {
	name  string
	param *nn.Parameter[B]
}

func (m *Model[B]) named() []namedParam[B] {
	c1, c2 := m.conv1.Parameters(), m.conv2.Parameters()
	return []namedParam[B]{
		{"c1.weight", c1[0]},
		{"c1.bias", c1[1]},
		{"c2.weight", c2[0]},
		{"c2.bias", c2[1]},
		{"fc1.weight", m.fc1.Weight()},
		{"fc1.bias", m.fc1.Bias()},
		{"fc2.weight", m.fc2.Weight()},
		{"fc2.bias", m.fc2.Bias()},
	}
}

// Predictions returns the arg-max class of each row of logits.
func Predictions[B tensor.Backend](logits *tensor.Tensor[float32, B]) []int {
	shape := logits.Shape()
	if len(shape) != 2 {
		panic(fmt.Sprintf("model: expected logits [batch, classes], got %v", shape))
	}
	rows, classes := shape[0], shape[1]
	data := logits.Data()

	preds := make([]int, rows)
	for r := 0; r < rows; r++ {
		row := data[r*classes : (r+1)*classes]
		best := 0
		for c := 1; c < classes; c++ {
			if row[c] > row[best] {
				best = c
			}
		}
		preds[r] = best
	}
	return preds
}
