// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package model

import (
	"math/rand/v2"
	"testing"

	"github.com/born-ml/born/autodiff"
	"github.com/born-ml/born/backend/cpu"
	"github.com/born-ml/born/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type Backend = *autodiff.Backend[*cpu.Backend]

// smallConfig keeps the graph shape of DefaultConfig at a size that runs
// quickly on the CPU backend: 14x14 -> 12 -> 6 -> 4 -> 2, flatten 3*2*2.
func smallConfig() Config {
	return Config{
		ImageSize:     14,
		InChannels:    1,
		Conv1Channels: 2,
		Conv2Channels: 3,
		KernelSize:    3,
		PoolSize:      2,
		Hidden:        8,
		NumClasses:    10,
		DropoutRate:   0.5,
	}
}

func newRNG(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, 0))
}

func newModel(t *testing.T, cfg Config, seed uint64) (*Model[Backend], Backend) {
	t.Helper()
	backend := autodiff.New(cpu.New())
	m, err := New(cfg, backend, newRNG(seed))
	require.NoError(t, err)
	return m, backend
}

func randomInput(t *testing.T, backend Backend, batch, size int, seed uint64) *tensor.Tensor[float32, Backend] {
	t.Helper()
	rng := newRNG(seed)
	data := make([]float32, batch*size)
	for i := range data {
		data[i] = rng.Float32()
	}
	x, err := tensor.FromSlice(data, tensor.Shape{batch, size}, backend)
	require.NoError(t, err)
	return x
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 784, cfg.InputSize())
	assert.Equal(t, 1024, cfg.FlattenSize())
	assert.Contains(t, cfg.String(), "fc(1024->1024)")
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		errMsg string
	}{
		{"zero hidden", func(c *Config) { c.Hidden = 0 }, "hidden must be > 0"},
		{"negative kernel", func(c *Config) { c.KernelSize = -1 }, "kernel_size must be > 0"},
		{"dropout one", func(c *Config) { c.DropoutRate = 1 }, "dropout_rate"},
		{"image too small", func(c *Config) { c.ImageSize = 4 }, "too small"},
		{"second stage too small", func(c *Config) { c.ImageSize = 8 }, "second stage"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := smallConfig()
			tt.modify(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := smallConfig()
	cfg.NumClasses = 0
	_, err := New(cfg, autodiff.New(cpu.New()), newRNG(1))
	assert.Error(t, err)
}

func TestModel_ParameterShapes(t *testing.T) {
	m, _ := newModel(t, DefaultConfig(), 1)

	want := map[string]tensor.Shape{
		"c1.weight":  {32, 1, 5, 5},
		"c1.bias":    {32},
		"c2.weight":  {64, 32, 5, 5},
		"c2.bias":    {64},
		"fc1.weight": {1024, 1024},
		"fc1.bias":   {1024},
		"fc2.weight": {10, 1024},
		"fc2.bias":   {10},
	}

	sd := m.StateDict()
	require.Len(t, sd, len(want))
	for name, shape := range want {
		raw, ok := sd[name]
		require.True(t, ok, "missing %s", name)
		assert.True(t, raw.Shape().Equal(shape), "%s: expected %v, got %v", name, shape, raw.Shape())
	}
	assert.Len(t, m.Parameters(), 8)
	assert.Equal(t, []string{"c1.weight", "c1.bias", "c2.weight", "c2.bias",
		"fc1.weight", "fc1.bias", "fc2.weight", "fc2.bias"}, m.ParameterNames())
}

func TestModel_ForwardShape(t *testing.T) {
	cfg := smallConfig()
	m, backend := newModel(t, cfg, 1)
	x := randomInput(t, backend, 5, cfg.InputSize(), 2)

	for _, train := range []bool{false, true} {
		logits := m.Forward(x, train)
		assert.Equal(t, []int{5, 10}, []int(logits.Shape()))
	}
}

func TestModel_ForwardBadShapePanics(t *testing.T) {
	cfg := smallConfig()
	m, backend := newModel(t, cfg, 1)
	x := randomInput(t, backend, 2, cfg.InputSize()+1, 2)

	assert.Panics(t, func() { m.Forward(x, false) })
}

func TestModel_SeedDeterminism(t *testing.T) {
	a, _ := newModel(t, smallConfig(), 7)
	b, _ := newModel(t, smallConfig(), 7)
	c, _ := newModel(t, smallConfig(), 8)

	for name, raw := range a.StateDict() {
		assert.Equal(t, raw.AsFloat32(), b.StateDict()[name].AsFloat32(), name)
	}
	assert.NotEqual(t, a.StateDict()["fc1.weight"].AsFloat32(), c.StateDict()["fc1.weight"].AsFloat32())

	// Biases start at zero.
	for _, v := range a.StateDict()["fc2.bias"].AsFloat32() {
		assert.Zero(t, v)
	}
}

func TestModel_InferenceIsDeterministic(t *testing.T) {
	cfg := smallConfig()
	m, backend := newModel(t, cfg, 3)
	x := randomInput(t, backend, 4, cfg.InputSize(), 4)

	first := append([]float32(nil), m.Forward(x, false).Data()...)
	second := m.Inference().Forward(x).Data()
	assert.Equal(t, first, second)
}

func TestModel_LoadStateDict(t *testing.T) {
	src, backend := newModel(t, smallConfig(), 1)
	dst, _ := newModel(t, smallConfig(), 2)

	require.NoError(t, dst.LoadStateDict(src.StateDict()))

	x := randomInput(t, backend, 3, smallConfig().InputSize(), 9)
	assert.Equal(t, src.Forward(x, false).Data(), dst.Forward(x, false).Data())
}

func TestModel_LoadStateDictMismatch(t *testing.T) {
	other := smallConfig()
	other.Hidden = 16
	wrong, _ := newModel(t, other, 1)

	tests := []struct {
		name string
		sd   func() map[string]*tensor.RawTensor
		msg  string
	}{
		{"wrong shapes", wrong.StateDict, "fc1.weight: expected [8 12], got [16 12]"},
		{"missing", func() map[string]*tensor.RawTensor {
			m, _ := newModel(t, smallConfig(), 1)
			sd := m.StateDict()
			delete(sd, "c2.bias")
			return sd
		}, "missing c2.bias"},
		{"unexpected", func() map[string]*tensor.RawTensor {
			m, _ := newModel(t, smallConfig(), 1)
			sd := m.StateDict()
			sd["fc3.weight"] = sd["fc2.weight"]
			return sd
		}, "unexpected fc3.weight"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dst, _ := newModel(t, smallConfig(), 5)
			before := append([]float32(nil), dst.StateDict()["c1.weight"].AsFloat32()...)

			err := dst.LoadStateDict(tt.sd())
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrShapeMismatch)
			assert.Contains(t, err.Error(), tt.msg)
			assert.Equal(t, before, dst.StateDict()["c1.weight"].AsFloat32(), "model modified by failed load")
		})
	}
}

func TestPredictions(t *testing.T) {
	backend := autodiff.New(cpu.New())
	logits, err := tensor.FromSlice([]float32{
		0.1, 0.9, 0.0,
		2.0, -1.0, 1.9,
		-3.0, -2.0, -1.0,
	}, tensor.Shape{3, 3}, backend)
	require.NoError(t, err)

	assert.Equal(t, []int{1, 0, 2}, Predictions(logits))
}

func TestDropout(t *testing.T) {
	backend := autodiff.New(cpu.New())
	x := tensor.Ones[float32](tensor.Shape{100, 50}, backend)

	d := NewDropout[Backend](0.5, newRNG(1))
	assert.Same(t, x, d.Forward(x, false))

	out := d.Forward(x, true).Data()
	zeros := 0
	for _, v := range out {
		if v == 0 {
			zeros++
			continue
		}
		require.InDelta(t, 2.0, v, 1e-6)
	}
	assert.InDelta(t, 0.5, float64(zeros)/float64(len(out)), 0.05)

	none := NewDropout[Backend](0, newRNG(1))
	assert.Same(t, x, none.Forward(x, true))
}
