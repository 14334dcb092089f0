//go:build !windows

// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package device

import (
	"fmt"
	"runtime"

	"github.com/born-ml/born/tensor"
)

func newWebGPU() (tensor.Backend, func(), error) {
	return nil, nil, fmt.Errorf("%w: webgpu backend is not built for %s", ErrUnavailable, runtime.GOOS)
}
