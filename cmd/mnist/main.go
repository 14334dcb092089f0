// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Command mnist trains the convolutional digit classifier and runs
// predictions from a saved checkpoint.
//
// Usage:
//
//	mnist [klog flags] train --epochs N [--save path] [--data dir] [--device auto|cpu|webgpu] [--seed n] [--plot path] [--synthetic]
//	mnist [klog flags] pred --model path [--data dir] [--device auto|cpu|webgpu] [--synthetic]
//	mnist version
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"

	"k8s.io/klog/v2"

	"github.com/born-ml/mnist-cnn/internal/dataset"
	"github.com/born-ml/mnist-cnn/internal/device"
	"github.com/born-ml/mnist-cnn/internal/model"
	"github.com/born-ml/mnist-cnn/internal/predict"
	"github.com/born-ml/mnist-cnn/internal/train"
)

const version = "v0.1.0"

// Synthetic dataset used by --synthetic. The seed is fixed so train and
// pred see the same images.
const (
	syntheticTrain = 1280
	syntheticTest  = 256
	syntheticSeed  = 2024
)

// errUsage marks command-line mistakes, reported with exit status 2.
var errUsage = errors.New("usage")

func main() {
	err := run(os.Args[1:], os.Stdout, os.Stderr)
	klog.Flush()
	switch {
	case err == nil, errors.Is(err, flag.ErrHelp):
	case errors.Is(err, errUsage):
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	default:
		klog.ErrorS(err, "mnist failed")
		klog.Flush()
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("mnist", flag.ContinueOnError)
	fs.SetOutput(stderr)
	klog.InitFlags(fs)
	fs.Usage = func() {
		fmt.Fprintln(stderr, "Usage: mnist [flags] <train|pred|version> [options]")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return fmt.Errorf("%w: missing command", errUsage)
	}

	cmd, rest := fs.Arg(0), fs.Args()[1:]
	switch cmd {
	case "train":
		return runTrain(rest, stdout, stderr)
	case "pred":
		return runPred(rest, stdout, stderr)
	case "version":
		fmt.Fprintf(stdout, "mnist %s\n", version)
		return nil
	default:
		fs.Usage()
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}
}

// common holds the flags shared by train and pred.
type common struct {
	data      string
	device    string
	synthetic bool
}

func (c *common) register(fs *flag.FlagSet) {
	fs.StringVar(&c.data, "data", "data", "directory holding the MNIST IDX files (plain or .gz)")
	fs.StringVar(&c.device, "device", string(device.Auto), "compute device: auto, cpu or webgpu")
	fs.BoolVar(&c.synthetic, "synthetic", false, "use a generated dataset instead of the MNIST files")
}

func (c *common) setup() (*device.Backend, func(), *dataset.Dataset, error) {
	kind, err := device.ParseKind(c.device)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%w: %w", errUsage, err)
	}

	var ds *dataset.Dataset
	if c.synthetic {
		side := model.DefaultConfig().ImageSize
		ds = dataset.Synthetic(syntheticTrain, syntheticTest, side, syntheticSeed)
		klog.V(1).Infof("Using synthetic dataset (%d train, %d test)", syntheticTrain, syntheticTest)
	} else {
		ds, err = dataset.Load(c.data)
		if err != nil {
			return nil, nil, nil, err
		}
		klog.V(1).Infof("Loaded MNIST from %s", c.data)
	}

	backend, release, err := device.New(kind)
	if err != nil {
		return nil, nil, nil, err
	}
	return backend, release, ds, nil
}

func parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return fmt.Errorf("%w: %w", errUsage, err)
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("%w: unexpected arguments %v", errUsage, fs.Args())
	}
	return nil
}

func runTrain(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("train", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var c common
	c.register(fs)
	targs := train.DefaultArgs()
	fs.IntVar(&targs.Epochs, "epochs", 0, "number of training epochs (required, >= 1)")
	fs.StringVar(&targs.SavePath, "save", "", "write the trained parameters to this .born file")
	fs.Uint64Var(&targs.Seed, "seed", targs.Seed, "seed for weight initialization, dropout and batch order")
	fs.StringVar(&targs.PlotPath, "plot", "", "write a loss/accuracy chart to this file (.svg, .png, .pdf)")
	if err := parse(fs, args); err != nil {
		return err
	}
	if targs.Epochs < 1 {
		return fmt.Errorf("%w: --epochs must be >= 1 (got %d)", errUsage, targs.Epochs)
	}

	backend, release, ds, err := c.setup()
	if err != nil {
		return err
	}
	defer release()
	ds.WriteShapes(stdout)

	rng := train.NewRand(targs.Seed)
	m, err := model.New(model.DefaultConfig(), backend, rng)
	if err != nil {
		return err
	}
	klog.V(1).Infof("Model %s, %d parameters", m.Config(), m.NumParameters())

	trainer, err := train.New(m, backend, ds, targs, rng, stdout)
	if err != nil {
		return err
	}
	klog.Infof("Training run %s: %d epochs, %d batches per epoch", trainer.RunID(), targs.Epochs, trainer.NumBatches())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if _, err := trainer.Fit(ctx); err != nil {
		return err
	}
	if targs.SavePath != "" {
		klog.Infof("Saved parameters to %s", targs.SavePath)
	}
	return nil
}

func runPred(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("pred", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var c common
	c.register(fs)
	path := fs.String("model", "", "checkpoint written by train --save (required)")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *path == "" {
		return fmt.Errorf("%w: --model is required", errUsage)
	}

	backend, release, ds, err := c.setup()
	if err != nil {
		return err
	}
	defer release()

	images := ds.Test.Head(predict.Count)
	if _, err := predict.Predict(*path, images, model.DefaultConfig(), backend, stdout); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Labels: %v\n", images.LabelInts())
	return nil
}
