// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package checkpoint persists model parameters as .born files.
package checkpoint

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/born-ml/born/nn"
	"github.com/born-ml/born/tensor"
	"k8s.io/klog/v2"

	"github.com/born-ml/mnist-cnn/internal/model"
)

// ModelType is recorded in the file header.
const ModelType = "ConvNet"

// Metadata keys.
const (
	KeyRunID  = "run_id"
	KeyEpochs = "epochs"
	KeyConfig = "config"
)

// ErrIO reports a checkpoint that could not be written or read.
var ErrIO = errors.New("checkpoint i/o")

// Meta describes the run that produced a checkpoint.
type Meta struct {
	RunID  string
	Epochs int
	Config string
}

func (m Meta) encode() map[string]string {
	return map[string]string{
		KeyRunID:  m.RunID,
		KeyEpochs: strconv.Itoa(m.Epochs),
		KeyConfig: m.Config,
	}
}

func decodeMeta(md map[string]string) Meta {
	epochs, _ := strconv.Atoi(md[KeyEpochs])
	return Meta{
		RunID:  md[KeyRunID],
		Epochs: epochs,
		Config: md[KeyConfig],
	}
}

// Save writes the parameters of m to path.
func Save[B tensor.Backend](path string, m *model.Model[B], meta Meta) error {
	if meta.Config == "" {
		meta.Config = m.Config().String()
	}
	if err := nn.Save(m.Inference(), path, ModelType, meta.encode()); err != nil {
		return fmt.Errorf("%w: save %s: %w", ErrIO, path, err)
	}
	klog.V(1).Infof("Saved checkpoint %s (run %s, %d parameters)", path, meta.RunID, m.NumParameters())
	return nil
}

// Load reads path into m, replacing all of its parameters.
//
// Parameters that do not fit m return an error wrapping
// model.ErrShapeMismatch; any other failure wraps ErrIO. m is unchanged on
// error.
func Load[B tensor.Backend](path string, backend B, m *model.Model[B]) (Meta, error) {
	if _, err := os.Stat(path); err != nil {
		return Meta{}, fmt.Errorf("%w: %w", ErrIO, err)
	}

	header, err := nn.Load(path, backend, m.Inference())
	if err != nil {
		if errors.Is(err, model.ErrShapeMismatch) {
			return Meta{}, fmt.Errorf("load %s: %w", path, err)
		}
		return Meta{}, fmt.Errorf("%w: load %s: %w", ErrIO, path, err)
	}
	if header.ModelType != ModelType {
		klog.Warningf("Checkpoint %s has model type %q, expected %q", path, header.ModelType, ModelType)
	}

	meta := decodeMeta(header.Metadata)
	klog.V(1).Infof("Loaded checkpoint %s (run %s, %d epochs)", path, meta.RunID, meta.Epochs)
	return meta, nil
}
