// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package predict

import (
	"bytes"
	"context"
	"math/rand/v2"
	"path/filepath"
	"testing"

	"github.com/born-ml/born/autodiff"
	"github.com/born-ml/born/backend/cpu"
	"github.com/born-ml/born/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/mnist-cnn/internal/checkpoint"
	"github.com/born-ml/mnist-cnn/internal/dataset"
	"github.com/born-ml/mnist-cnn/internal/model"
	"github.com/born-ml/mnist-cnn/internal/train"
)

const side = 14

func testConfig() model.Config {
	return model.Config{
		ImageSize:     side,
		InChannels:    1,
		Conv1Channels: 2,
		Conv2Channels: 3,
		KernelSize:    3,
		PoolSize:      2,
		Hidden:        8,
		NumClasses:    dataset.NumClasses,
		DropoutRate:   0.5,
	}
}

type backend = *autodiff.Backend[*cpu.Backend]

func saveModel(t *testing.T, seed uint64) (string, *model.Model[backend], backend) {
	t.Helper()
	b := autodiff.New(cpu.New())
	m, err := model.New(testConfig(), b, rand.New(rand.NewPCG(seed, 0)))
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "model.born")
	require.NoError(t, checkpoint.Save(path, m, checkpoint.Meta{RunID: "test"}))
	return path, m, b
}

func TestPredict(t *testing.T) {
	path, saved, savedBackend := saveModel(t, 3)
	images := dataset.Synthetic(0, 20, side, 1).Test.Head(Count)

	var out bytes.Buffer
	b := autodiff.New(cpu.New())
	preds, err := Predict(path, images, testConfig(), b, &out)
	require.NoError(t, err)
	require.Len(t, preds, Count)
	for _, p := range preds {
		assert.GreaterOrEqual(t, p, 0)
		assert.Less(t, p, dataset.NumClasses)
	}

	assert.Regexp(t, `^Predictions: \[(\d )+\d\]\n$`, out.String())

	// The saved model in memory gives the same answers.
	xs, err := tensor.FromSlice(images.Images, tensor.Shape{images.Len(), images.Dim}, savedBackend)
	require.NoError(t, err)
	assert.Equal(t, model.Predictions(saved.Forward(xs, false)), preds)
}

func TestPredict_ShapeMismatch(t *testing.T) {
	path, _, _ := saveModel(t, 1)
	images := dataset.Synthetic(0, 10, side, 1).Test

	cfg := testConfig()
	cfg.Conv2Channels = 5
	_, err := Predict(path, images, cfg, autodiff.New(cpu.New()), &bytes.Buffer{})
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrShapeMismatch)
}

func TestPredict_MissingCheckpoint(t *testing.T) {
	images := dataset.Synthetic(0, 10, side, 1).Test
	var out bytes.Buffer

	_, err := Predict(filepath.Join(t.TempDir(), "nope.born"), images, testConfig(), autodiff.New(cpu.New()), &out)
	require.Error(t, err)
	assert.ErrorIs(t, err, checkpoint.ErrIO)
	assert.Empty(t, out.String())
}

func TestPredict_WrongImageSize(t *testing.T) {
	path, _, _ := saveModel(t, 1)
	images := dataset.Synthetic(0, 10, side+2, 1).Test

	_, err := Predict(path, images, testConfig(), autodiff.New(cpu.New()), &bytes.Buffer{})
	assert.Error(t, err)
}

func TestPredict_UntrainedCheckpointNearChance(t *testing.T) {
	ds := dataset.Synthetic(16, 100, side, 1)
	args := train.DefaultArgs()
	args.Epochs = 0
	args.BatchSize = 16

	const seeds = 10
	var total float64
	for seed := uint64(1); seed <= seeds; seed++ {
		b := autodiff.New(cpu.New())
		rng := train.NewRand(seed)
		m, err := model.New(testConfig(), b, rng)
		require.NoError(t, err)

		args.SavePath = filepath.Join(t.TempDir(), "untrained.born")
		tr, err := train.New(m, b, ds, args, rng, &bytes.Buffer{})
		require.NoError(t, err)
		_, err = tr.Fit(context.Background())
		require.NoError(t, err)

		preds, err := Predict(args.SavePath, ds.Test, testConfig(), autodiff.New(cpu.New()), &bytes.Buffer{})
		require.NoError(t, err)
		correct := 0
		for i, label := range ds.Test.LabelInts() {
			if preds[i] == label {
				correct++
			}
		}
		total += float64(correct) / float64(ds.Test.Len())
	}
	assert.Less(t, total/seeds, 0.35)
}
