// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package model

import "fmt"

// Config holds the structural constants of the network.
type Config struct {
	ImageSize     int     // input images are ImageSize x ImageSize
	InChannels    int     // input channels (1 for grayscale)
	Conv1Channels int     // output channels of the first convolution
	Conv2Channels int     // output channels of the second convolution
	KernelSize    int     // square convolution kernel
	PoolSize      int     // square max-pool window, also its stride
	Hidden        int     // width of the hidden fully-connected layer
	NumClasses    int     // number of output scores
	DropoutRate   float32 // fraction of hidden activations zeroed in training
}

// DefaultConfig returns the MNIST network:
//
//	Input: [batch, 784] -> [batch, 1, 28, 28]
//	Conv1: 1 -> 32 channels, 5x5 kernel -> [batch, 32, 24, 24]
//	MaxPool: 2x2 -> [batch, 32, 12, 12]
//	Conv2: 32 -> 64 channels, 5x5 kernel -> [batch, 64, 8, 8]
//	MaxPool: 2x2 -> [batch, 64, 4, 4]
//	Flatten -> [batch, 1024]
//	FC1: 1024 -> 1024, ReLU, Dropout(0.5)
//	FC2: 1024 -> 10
func DefaultConfig() Config {
	return Config{
		ImageSize:     28,
		InChannels:    1,
		Conv1Channels: 32,
		Conv2Channels: 64,
		KernelSize:    5,
		PoolSize:      2,
		Hidden:        1024,
		NumClasses:    10,
		DropoutRate:   0.5,
	}
}

// InputSize returns the number of values per flattened input image.
func (c Config) InputSize() int {
	return c.InChannels * c.ImageSize * c.ImageSize
}

// spatial returns the side length after each conv+pool stage.
func (c Config) spatial() (afterStage1, afterStage2 int) {
	conv1 := c.ImageSize - c.KernelSize + 1
	pool1 := (conv1-c.PoolSize)/c.PoolSize + 1
	conv2 := pool1 - c.KernelSize + 1
	pool2 := (conv2-c.PoolSize)/c.PoolSize + 1
	return pool1, pool2
}

// FlattenSize returns the number of features entering the first
// fully-connected layer.
func (c Config) FlattenSize() int {
	_, side := c.spatial()
	return c.Conv2Channels * side * side
}

// Validate verifies the config describes a buildable network.
func (c Config) Validate() error {
	positive := []struct {
		name string
		v    int
	}{
		{"image_size", c.ImageSize},
		{"in_channels", c.InChannels},
		{"conv1_channels", c.Conv1Channels},
		{"conv2_channels", c.Conv2Channels},
		{"kernel_size", c.KernelSize},
		{"pool_size", c.PoolSize},
		{"hidden", c.Hidden},
		{"num_classes", c.NumClasses},
	}
	for _, p := range positive {
		if p.v <= 0 {
			return fmt.Errorf("%s must be > 0 (got %d)", p.name, p.v)
		}
	}
	if c.DropoutRate < 0 || c.DropoutRate >= 1 {
		return fmt.Errorf("dropout_rate must be in [0, 1) (got %g)", c.DropoutRate)
	}

	conv1 := c.ImageSize - c.KernelSize + 1
	if conv1 < c.PoolSize {
		return fmt.Errorf("image_size %d too small for kernel %d and pool %d", c.ImageSize, c.KernelSize, c.PoolSize)
	}
	pool1, _ := c.spatial()
	if pool1-c.KernelSize+1 < c.PoolSize {
		return fmt.Errorf("second stage input %dx%d too small for kernel %d and pool %d",
			pool1, pool1, c.KernelSize, c.PoolSize)
	}
	return nil
}

// String returns a short description of the layer graph.
func (c Config) String() string {
	return fmt.Sprintf("conv(%d->%d,k%d) pool%d conv(%d->%d,k%d) pool%d fc(%d->%d) relu dropout(%g) fc(%d->%d)",
		c.InChannels, c.Conv1Channels, c.KernelSize, c.PoolSize,
		c.Conv1Channels, c.Conv2Channels, c.KernelSize, c.PoolSize,
		c.FlattenSize(), c.Hidden, c.DropoutRate, c.Hidden, c.NumClasses)
}
