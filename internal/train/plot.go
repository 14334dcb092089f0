// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package train

import (
	"errors"
	"fmt"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// PlotHistory draws mean loss and test accuracy per epoch. The image
// format follows the extension of path (.svg, .png, .pdf, ...).
func PlotHistory(history []EpochStats, path string) error {
	if len(history) == 0 {
		return errors.New("plot: empty history")
	}

	p := plot.New()
	p.Title.Text = "Training"
	p.X.Label.Text = "epoch"
	p.X.Min = 1
	p.Y.Min = 0
	p.Legend.Top = true
	p.Add(plotter.NewGrid())

	loss := make(plotter.XYs, len(history))
	acc := make(plotter.XYs, len(history))
	for i, s := range history {
		loss[i].X, loss[i].Y = float64(s.Epoch), float64(s.Loss)
		acc[i].X, acc[i].Y = float64(s.Epoch), s.Accuracy
	}

	for ix, series := range []struct {
		name string
		pts  plotter.XYs
	}{
		{"loss", loss},
		{"accuracy", acc},
	} {
		l, err := plotter.NewLine(series.pts)
		if err != nil {
			return fmt.Errorf("plot %s: %w", series.name, err)
		}
		l.Width = 2
		l.Color = plotutil.Color(ix)
		p.Add(l)
		p.Legend.Add(series.name, l)
	}

	if err := p.Save(6*vg.Inch, 4*vg.Inch, path); err != nil {
		return fmt.Errorf("plot: %w", err)
	}
	return nil
}
