// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package train

import "fmt"

// Args configures a training run. It is not modified once Fit starts.
type Args struct {
	Epochs       int     // passes over the training batches; 0 trains nothing
	BatchSize    int     // examples per batch
	LearningRate float32 // Adam step size
	WeightDecay  float32 // decoupled weight decay factor
	SavePath     string  // checkpoint written after the last epoch, if set
	Seed         uint64  // seeds batch-order shuffling
	EvalChunk    int     // test examples per evaluation forward pass
	PlotPath     string  // training curve written after the last epoch, if set
}

// DefaultArgs returns the settings used by the command line.
func DefaultArgs() Args {
	return Args{
		Epochs:       1,
		BatchSize:    64,
		LearningRate: 0.001,
		WeightDecay:  0.01,
		Seed:         1,
		EvalChunk:    500,
	}
}

// Validate checks the arguments before any work is done.
func (a Args) Validate() error {
	if a.Epochs < 0 {
		return fmt.Errorf("epochs must be >= 0 (got %d)", a.Epochs)
	}
	if a.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be > 0 (got %d)", a.BatchSize)
	}
	if a.LearningRate <= 0 {
		return fmt.Errorf("learning_rate must be > 0 (got %g)", a.LearningRate)
	}
	if a.WeightDecay < 0 {
		return fmt.Errorf("weight_decay must be >= 0 (got %g)", a.WeightDecay)
	}
	if a.EvalChunk <= 0 {
		return fmt.Errorf("eval_chunk must be > 0 (got %d)", a.EvalChunk)
	}
	return nil
}
