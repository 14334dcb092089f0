// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package dataset loads the MNIST handwritten-digit dataset.
//
// Images are stored as one flat row-major float32 slice per split with pixel
// intensities normalised to [0, 1]; labels are class indices in [0, 9].
// A Dataset is read-only once loaded.
package dataset

import (
	"bufio"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// NumClasses is the number of digit classes.
const NumClasses = 10

// ErrUnavailable reports a missing or corrupt dataset.
var ErrUnavailable = errors.New("dataset unavailable")

// Standard MNIST file names. Each may also be present with a .gz suffix.
const (
	TrainImagesFile = "train-images-idx3-ubyte"
	TrainLabelsFile = "train-labels-idx1-ubyte"
	TestImagesFile  = "t10k-images-idx3-ubyte"
	TestLabelsFile  = "t10k-labels-idx1-ubyte"
)

// Split is one partition (train or test) of the dataset.
type Split struct {
	Images []float32 // [N, Dim], row-major
	Labels []uint8   // [N]
	Dim    int       // pixels per image
}

// Len returns the number of examples.
func (s Split) Len() int {
	return len(s.Labels)
}

// ImageShape returns [N, Dim].
func (s Split) ImageShape() []int {
	return []int{s.Len(), s.Dim}
}

// LabelShape returns [N].
func (s Split) LabelShape() []int {
	return []int{s.Len()}
}

// Image returns the pixels of example i.
func (s Split) Image(i int) []float32 {
	return s.Images[i*s.Dim : (i+1)*s.Dim]
}

// Head returns the first n examples. The result shares memory with s.
func (s Split) Head(n int) Split {
	if n > s.Len() {
		n = s.Len()
	}
	return Split{
		Images: s.Images[:n*s.Dim],
		Labels: s.Labels[:n],
		Dim:    s.Dim,
	}
}

// LabelInts returns the labels as ints.
func (s Split) LabelInts() []int {
	out := make([]int, len(s.Labels))
	for i, l := range s.Labels {
		out[i] = int(l)
	}
	return out
}

func (s Split) validate() error {
	if s.Dim <= 0 {
		return fmt.Errorf("image size must be > 0 (got %d)", s.Dim)
	}
	if len(s.Images) != s.Len()*s.Dim {
		return fmt.Errorf("image count (%d) != label count (%d)", len(s.Images)/s.Dim, s.Len())
	}
	for i, l := range s.Labels {
		if int(l) >= NumClasses {
			return fmt.Errorf("label %d out of range: %d", i, l)
		}
	}
	return nil
}

// Dataset holds the train and test splits.
type Dataset struct {
	Train Split
	Test  Split
	Rows  int
	Cols  int
}

// Load reads the four MNIST IDX files from dir.
//
// Expected files in dir (plain or gzip-compressed with a .gz suffix):
//   - train-images-idx3-ubyte, train-labels-idx1-ubyte
//   - t10k-images-idx3-ubyte, t10k-labels-idx1-ubyte
//
// Any missing, truncated or inconsistent file yields an error wrapping
// ErrUnavailable.
func Load(dir string) (*Dataset, error) {
	train, rows, cols, err := loadSplit(filepath.Join(dir, TrainImagesFile), filepath.Join(dir, TrainLabelsFile))
	if err != nil {
		return nil, fmt.Errorf("%w: train split: %w", ErrUnavailable, err)
	}
	test, testRows, testCols, err := loadSplit(filepath.Join(dir, TestImagesFile), filepath.Join(dir, TestLabelsFile))
	if err != nil {
		return nil, fmt.Errorf("%w: test split: %w", ErrUnavailable, err)
	}
	if rows != testRows || cols != testCols {
		return nil, fmt.Errorf("%w: train images are %dx%d, test images are %dx%d",
			ErrUnavailable, rows, cols, testRows, testCols)
	}

	return &Dataset{Train: train, Test: test, Rows: rows, Cols: cols}, nil
}

func loadSplit(imagePath, labelPath string) (Split, int, int, error) {
	imgFile, err := openIDX(imagePath)
	if err != nil {
		return Split{}, 0, 0, err
	}
	defer imgFile.Close()

	pixels, count, rows, cols, err := readIDXImages(bufio.NewReader(imgFile))
	if err != nil {
		return Split{}, 0, 0, fmt.Errorf("%s: %w", imagePath, err)
	}

	lblFile, err := openIDX(labelPath)
	if err != nil {
		return Split{}, 0, 0, err
	}
	defer lblFile.Close()

	labels, err := readIDXLabels(bufio.NewReader(lblFile))
	if err != nil {
		return Split{}, 0, 0, fmt.Errorf("%s: %w", labelPath, err)
	}

	if count != len(labels) {
		return Split{}, 0, 0, fmt.Errorf("image count (%d) != label count (%d)", count, len(labels))
	}

	// Each pixel is 0-255, normalise to [0, 1].
	images := make([]float32, len(pixels))
	for i, p := range pixels {
		images[i] = float32(p) / 255.0
	}

	s := Split{Images: images, Labels: labels, Dim: rows * cols}
	if err := s.validate(); err != nil {
		return Split{}, 0, 0, err
	}
	return s, rows, cols, nil
}

// WriteShapes prints the shape of each of the four arrays.
func (d *Dataset) WriteShapes(w io.Writer) {
	fmt.Fprintf(w, "train-images: %v\n", d.Train.ImageShape())
	fmt.Fprintf(w, "train-labels: %v\n", d.Train.LabelShape())
	fmt.Fprintf(w, "test-images: %v\n", d.Test.ImageShape())
	fmt.Fprintf(w, "test-labels: %v\n", d.Test.LabelShape())
}

// WriteIDX stores the dataset in dir using the standard MNIST file names.
// Pixel intensities are quantised back to bytes. With compress set, each
// file is gzip-compressed and gets a .gz suffix.
func (d *Dataset) WriteIDX(dir string, compress bool) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	splits := []struct {
		split      Split
		imgs, lbls string
	}{
		{d.Train, TrainImagesFile, TrainLabelsFile},
		{d.Test, TestImagesFile, TestLabelsFile},
	}
	for _, s := range splits {
		pixels := make([]byte, len(s.split.Images))
		for i, v := range s.split.Images {
			pixels[i] = byte(v*255.0 + 0.5)
		}
		err := writeFile(filepath.Join(dir, s.imgs), compress, func(w io.Writer) error {
			return writeIDXImages(w, pixels, s.split.Len(), d.Rows, d.Cols)
		})
		if err != nil {
			return err
		}
		err = writeFile(filepath.Join(dir, s.lbls), compress, func(w io.Writer) error {
			return writeIDXLabels(w, s.split.Labels)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func writeFile(path string, compress bool, write func(io.Writer) error) error {
	if compress {
		path += ".gz"
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	bw := bufio.NewWriter(f)
	var w io.Writer = bw
	var zw *gzip.Writer
	if compress {
		zw = gzip.NewWriter(bw)
		w = zw
	}
	if err := write(w); err != nil {
		return err
	}
	if zw != nil {
		if err := zw.Close(); err != nil {
			return err
		}
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	return f.Close()
}
