// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package device selects the compute backend used for training and
// inference.
//
// Every backend is wrapped with autodiff so the same model code runs with
// the gradient tape recording (training) or stopped (inference).
package device

import (
	"errors"
	"fmt"

	"github.com/born-ml/born/autodiff"
	"github.com/born-ml/born/backend/cpu"
	"github.com/born-ml/born/tensor"
	"k8s.io/klog/v2"
)

// ErrUnavailable reports that the requested accelerator is not present.
var ErrUnavailable = errors.New("compute device unavailable")

// Kind names a compute device.
type Kind string

// Supported device kinds.
const (
	Auto   Kind = "auto"   // WebGPU when available, CPU otherwise
	CPU    Kind = "cpu"    // pure Go CPU backend
	WebGPU Kind = "webgpu" // GPU through WebGPU
)

// Backend is the autodiff-wrapped backend handed to models and trainers.
type Backend = autodiff.Backend[tensor.Backend]

// ParseKind converts a flag value into a Kind.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case Auto, CPU, WebGPU:
		return k, nil
	default:
		return "", fmt.Errorf("unknown device %q (want auto, cpu or webgpu)", s)
	}
}

// New creates the backend for kind. The returned release function frees
// device resources and must be called once the backend is no longer used.
//
// An explicit WebGPU request fails with ErrUnavailable when no adapter is
// found; Auto falls back to the CPU.
func New(kind Kind) (*Backend, func(), error) {
	switch kind {
	case CPU:
		return wrap(cpu.New(), func() {})
	case WebGPU:
		gpu, release, err := newWebGPU()
		if err != nil {
			return nil, nil, err
		}
		return wrap(gpu, release)
	case Auto:
		gpu, release, err := newWebGPU()
		if err != nil {
			klog.V(1).Infof("webgpu not usable, falling back to cpu: %v", err)
			return wrap(cpu.New(), func() {})
		}
		return wrap(gpu, release)
	default:
		return nil, nil, fmt.Errorf("unknown device %q", kind)
	}
}

func wrap(inner tensor.Backend, release func()) (*Backend, func(), error) {
	b := autodiff.New(inner)
	klog.V(1).Infof("compute backend: %s", b.Name())
	return b, release, nil
}
