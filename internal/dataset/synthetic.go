// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package dataset

import "math/rand/v2"

// Synthetic builds a deterministic stand-in for MNIST with side×side images.
//
// Example i has label i%10. Each class lights a horizontal band whose
// position depends on the label, on top of low-amplitude noise. This is NOT
// realistic MNIST data; it exists to exercise the pipeline without the real
// files.
func Synthetic(trainN, testN, side int, seed uint64) *Dataset {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	return &Dataset{
		Train: syntheticSplit(trainN, side, rng),
		Test:  syntheticSplit(testN, side, rng),
		Rows:  side,
		Cols:  side,
	}
}

func syntheticSplit(n, side int, rng *rand.Rand) Split {
	dim := side * side
	images := make([]float32, n*dim)
	labels := make([]uint8, n)

	band := max(1, side/NumClasses)
	for i := 0; i < n; i++ {
		label := i % NumClasses
		labels[i] = uint8(label)

		img := images[i*dim : (i+1)*dim]
		for j := range img {
			img[j] = rng.Float32() * 0.1
		}
		start := label * side / NumClasses
		for row := start; row < start+band && row < side; row++ {
			for col := side / 5; col < side-side/5; col++ {
				img[row*side+col] = 0.8 + rng.Float32()*0.2
			}
		}
	}

	return Split{Images: images, Labels: labels, Dim: dim}
}
