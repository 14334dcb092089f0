// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package train runs mini-batch training of the digit classifier.
//
// The training split is cut once into contiguous batches. Each epoch visits
// every batch once in an order drawn from a seeded generator, then scores
// the model on the whole test split:
//
//	trainer, err := train.New(m, backend, ds, args, rng, os.Stdout)
//	history, err := trainer.Fit(ctx)
package train

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"time"

	"github.com/born-ml/born/autodiff"
	"github.com/born-ml/born/nn"
	"github.com/google/uuid"
	"k8s.io/klog/v2"

	"github.com/born-ml/mnist-cnn/internal/checkpoint"
	"github.com/born-ml/mnist-cnn/internal/dataset"
	"github.com/born-ml/mnist-cnn/internal/model"
)

// EpochStats summarizes one epoch.
type EpochStats struct {
	Epoch    int
	Loss     float32 // mean training loss over all batches
	Accuracy float64 // fraction of test examples classified correctly
	Duration time.Duration
}

// NewRand returns the generator used for initialization, dropout and batch
// order.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed))
}

// Trainer owns a training run. The model's parameters are written only by
// the trainer's optimizer.
type Trainer[B autodiff.BackwardCapable] struct {
	args    Args
	model   *model.Model[B]
	backend B
	rng     *rand.Rand
	out     io.Writer
	runID   string

	loss      *nn.CrossEntropyLoss[B]
	optimizer *AdamW[B]
	batches   []*dataset.Batch[B]
	test      []*dataset.Batch[B]
	order     []int
}

// New prepares a run: it validates args, copies the training batches and
// test chunks onto backend, and builds the optimizer. rng drives batch
// order. Epoch lines are written to out.
func New[B autodiff.BackwardCapable](
	m *model.Model[B],
	backend B,
	ds *dataset.Dataset,
	args Args,
	rng *rand.Rand,
	out io.Writer,
) (*Trainer[B], error) {
	if err := args.Validate(); err != nil {
		return nil, fmt.Errorf("training args: %w", err)
	}
	if ds.Train.Dim != m.Config().InputSize() {
		return nil, fmt.Errorf("train images have %d values, model expects %d", ds.Train.Dim, m.Config().InputSize())
	}

	batches, err := dataset.Batches(ds.Train, args.BatchSize, backend)
	if err != nil {
		return nil, fmt.Errorf("train batches: %w", err)
	}
	if len(batches) == 0 {
		return nil, fmt.Errorf("no full batch of %d in %d training examples", args.BatchSize, ds.Train.Len())
	}
	test, err := dataset.Chunks(ds.Test, args.EvalChunk, backend)
	if err != nil {
		return nil, fmt.Errorf("test chunks: %w", err)
	}

	order := make([]int, len(batches))
	for i := range order {
		order[i] = i
	}

	t := &Trainer[B]{
		args:      args,
		model:     m,
		backend:   backend,
		rng:       rng,
		out:       out,
		runID:     uuid.NewString(),
		loss:      nn.NewCrossEntropyLoss(backend),
		optimizer: NewAdamW(m.Parameters(), args.LearningRate, args.WeightDecay, backend),
		batches:   batches,
		test:      test,
		order:     order,
	}
	klog.V(1).Infof("Run %s: %d batches of %d (%d examples unused), %d test chunks, seed %d",
		t.runID, len(batches), args.BatchSize, ds.Train.Len()-len(batches)*args.BatchSize, len(test), args.Seed)
	return t, nil
}

// RunID identifies this run in logs and checkpoint metadata.
func (t *Trainer[B]) RunID() string {
	return t.runID
}

// NumBatches returns the number of training batches per epoch.
func (t *Trainer[B]) NumBatches() int {
	return len(t.batches)
}

// Fit trains for args.Epochs epochs and returns the per-epoch history.
// When configured, the checkpoint and the training curve are written
// after the last epoch. ctx is checked between batches.
func (t *Trainer[B]) Fit(ctx context.Context) ([]EpochStats, error) {
	history := make([]EpochStats, 0, t.args.Epochs)
	for epoch := 1; epoch <= t.args.Epochs; epoch++ {
		stats, err := t.epoch(ctx, epoch)
		if err != nil {
			return history, err
		}
		history = append(history, stats)
		fmt.Fprintf(t.out, "Epoch: %d, Loss: %f, Accuracy: %f\n", stats.Epoch, stats.Loss, stats.Accuracy)
	}

	if t.args.SavePath != "" {
		meta := checkpoint.Meta{RunID: t.runID, Epochs: t.args.Epochs}
		if err := checkpoint.Save(t.args.SavePath, t.model, meta); err != nil {
			return history, err
		}
	}
	if t.args.PlotPath != "" && len(history) > 0 {
		if err := PlotHistory(history, t.args.PlotPath); err != nil {
			return history, err
		}
		klog.V(1).Infof("Wrote training curve to %s", t.args.PlotPath)
	}
	return history, nil
}

func (t *Trainer[B]) epoch(ctx context.Context, epoch int) (EpochStats, error) {
	start := time.Now()
	tape := t.backend.GetTape()
	defer func() {
		tape.StopRecording()
		tape.Clear()
	}()

	t.rng.Shuffle(len(t.order), func(i, j int) {
		t.order[i], t.order[j] = t.order[j], t.order[i]
	})

	var total float32
	for step, idx := range t.order {
		if err := ctx.Err(); err != nil {
			return EpochStats{}, fmt.Errorf("epoch %d interrupted at batch %d: %w", epoch, step, err)
		}
		batch := t.batches[idx]

		tape.StartRecording()
		logits := t.model.Forward(batch.Images, true)
		loss := t.loss.Forward(logits, batch.Labels)
		grads := autodiff.Backward(loss, t.backend)
		t.optimizer.Step(grads)
		tape.Clear()

		value := loss.Data()[0]
		total += value
		if (step+1)%100 == 0 {
			klog.V(2).Infof("epoch %d batch %d/%d loss %.4f", epoch, step+1, len(t.order), value)
		}
	}

	acc := t.Evaluate()
	return EpochStats{
		Epoch:    epoch,
		Loss:     total / float32(len(t.batches)),
		Accuracy: acc,
		Duration: time.Since(start),
	}, nil
}

// Evaluate returns the test accuracy with dropout disabled. Nothing is
// recorded for differentiation.
func (t *Trainer[B]) Evaluate() float64 {
	tape := t.backend.GetTape()
	if tape.IsRecording() {
		tape.StopRecording()
		defer tape.StartRecording()
	}

	correct, seen := 0, 0
	for _, chunk := range t.test {
		preds := model.Predictions(t.model.Forward(chunk.Images, false))
		for i, label := range chunk.Labels.Data() {
			if preds[i] == int(label) {
				correct++
			}
		}
		seen += chunk.Size
	}
	if seen == 0 {
		return 0
	}
	return float64(correct) / float64(seen)
}
