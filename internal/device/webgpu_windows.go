//go:build windows

// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package device

import (
	"fmt"

	"github.com/born-ml/born/backend/webgpu"
	"github.com/born-ml/born/tensor"
)

func newWebGPU() (tensor.Backend, func(), error) {
	if !webgpu.IsAvailable() {
		return nil, nil, fmt.Errorf("%w: no webgpu adapter", ErrUnavailable)
	}
	gpu, err := webgpu.New()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return gpu, gpu.Release, nil
}
