// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package predict classifies a few test images with a saved checkpoint.
package predict

import (
	"fmt"
	"io"
	"math/rand/v2"

	"github.com/born-ml/born/tensor"
	"k8s.io/klog/v2"

	"github.com/born-ml/mnist-cnn/internal/checkpoint"
	"github.com/born-ml/mnist-cnn/internal/dataset"
	"github.com/born-ml/mnist-cnn/internal/model"
)

// Count is the number of leading test images classified by the pred
// command.
const Count = 10

// Predict builds a fresh model from cfg, loads the checkpoint at path into
// it and returns the arg-max class of every image in images. The result is
// also printed to w as "Predictions: [...]".
func Predict[B tensor.Backend](path string, images dataset.Split, cfg model.Config, backend B, w io.Writer) ([]int, error) {
	if images.Len() == 0 {
		return nil, fmt.Errorf("no images to classify")
	}
	if images.Dim != cfg.InputSize() {
		return nil, fmt.Errorf("images have %d values, model expects %d", images.Dim, cfg.InputSize())
	}

	// Initial weights are replaced by the checkpoint.
	m, err := model.New(cfg, backend, rand.New(rand.NewPCG(0, 0)))
	if err != nil {
		return nil, err
	}
	meta, err := checkpoint.Load(path, backend, m)
	if err != nil {
		return nil, err
	}
	klog.V(1).Infof("Predicting %d images with run %s", images.Len(), meta.RunID)

	xs, err := tensor.FromSlice(images.Images, tensor.Shape{images.Len(), images.Dim}, backend)
	if err != nil {
		return nil, fmt.Errorf("images tensor: %w", err)
	}
	preds := model.Predictions(m.Forward(xs, false))
	fmt.Fprintf(w, "Predictions: %v\n", preds)
	return preds, nil
}
