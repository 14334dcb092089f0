// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package dataset

import (
	"fmt"

	"github.com/born-ml/born/tensor"
)

// Batch is a contiguous slice of a split, resident on a backend.
type Batch[B tensor.Backend] struct {
	Images *tensor.Tensor[float32, B] // [Size, Dim]
	Labels *tensor.Tensor[int32, B]   // [Size]
	Size   int
	Offset int // index of the first example in the split
}

// NumBatches returns how many full batches of batchSize fit in n examples.
// The remainder is never used.
func NumBatches(n, batchSize int) int {
	if batchSize <= 0 {
		return 0
	}
	return n / batchSize
}

// Batches copies every full batch of s onto backend. Batch i covers
// examples [i*batchSize, (i+1)*batchSize); trailing examples that do not
// fill a batch are dropped.
func Batches[B tensor.Backend](s Split, batchSize int, backend B) ([]*Batch[B], error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("batch size must be > 0 (got %d)", batchSize)
	}
	n := NumBatches(s.Len(), batchSize)
	batches := make([]*Batch[B], 0, n)
	for i := 0; i < n; i++ {
		b, err := newBatch(s, i*batchSize, batchSize, backend)
		if err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}
	return batches, nil
}

// Chunks splits s into batches of at most size examples covering every
// example; the last chunk may be smaller.
func Chunks[B tensor.Backend](s Split, size int, backend B) ([]*Batch[B], error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be > 0 (got %d)", size)
	}
	chunks := make([]*Batch[B], 0, (s.Len()+size-1)/size)
	for start := 0; start < s.Len(); start += size {
		b, err := newBatch(s, start, min(size, s.Len()-start), backend)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, b)
	}
	return chunks, nil
}

func newBatch[B tensor.Backend](s Split, start, size int, backend B) (*Batch[B], error) {
	images, err := tensor.FromSlice(s.Images[start*s.Dim:(start+size)*s.Dim], tensor.Shape{size, s.Dim}, backend)
	if err != nil {
		return nil, fmt.Errorf("images tensor at %d: %w", start, err)
	}

	labels := make([]int32, size)
	for i, l := range s.Labels[start : start+size] {
		labels[i] = int32(l)
	}
	labelsTensor, err := tensor.FromSlice(labels, tensor.Shape{size}, backend)
	if err != nil {
		return nil, fmt.Errorf("labels tensor at %d: %w", start, err)
	}

	return &Batch[B]{
		Images: images,
		Labels: labelsTensor,
		Size:   size,
		Offset: start,
	}, nil
}
