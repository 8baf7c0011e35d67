// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package dlpipe

import (
	"bytes"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/grailbio/base/data"
	"github.com/grailbio/cas/astore"
	"github.com/grailbio/cas/casimage"
	"github.com/grailbio/cas/deeplearn"
)

// A Report describes a completed (possibly partial) run.
type Report struct {
	// Name is the spec's name.
	Name string
	// Started and Elapsed bound the run.
	Started time.Time
	Elapsed time.Duration
	// Stages records each executed stage and its duration, in order.
	Stages []StageTiming
	// Images summarizes the loaded image table.
	Images casimage.Summary
	// Samples is the path of the sample sheet, if one was written.
	Samples string
	// Models reports each trained model in spec order.
	Models []ModelReport
	// Best names the exported model.
	Best string
	// Artifact describes the saved artifact, nil unless the export
	// stage ran.
	Artifact *Artifact
}

// StageTiming records one executed stage.
type StageTiming struct {
	Stage   string
	Elapsed time.Duration
}

// ModelReport reports one trained and scored model.
type ModelReport struct {
	Name       string
	Arch       Arch
	Layers     int64
	Parameters int64
	// Pretrained reports whether training started from imported
	// weights.
	Pretrained bool
	Train      *deeplearn.TrainResult
	Score      *deeplearn.ScoreResult
}

// Artifact describes the saved astore artifact.
type Artifact struct {
	Path  string
	Bytes int64
	Info  astore.Info
}

// String renders the report as with WriteTo.
func (r *Report) String() string {
	var b bytes.Buffer
	_, _ = r.WriteTo(&b)
	return b.String()
}

// WriteTo writes a human-readable summary of the run into w.
func (r *Report) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}
	var tw tabwriter.Writer
	tw.Init(cw, 4, 4, 1, ' ', 0)
	fmt.Fprintf(&tw, "pipeline %s: %d images, %d models, %s\n",
		r.Name, r.Images.Images, len(r.Models), r.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(&tw, "images: %d labels, %dx%d to %dx%d\n",
		len(r.Images.Labels),
		r.Images.MinWidth, r.Images.MinHeight,
		r.Images.MaxWidth, r.Images.MaxHeight)
	for _, label := range r.Images.Labels {
		fmt.Fprintf(&tw, "\t%s\t%d\n", label.Label, label.Count)
	}
	if r.Samples != "" {
		fmt.Fprintf(&tw, "samples: %s\n", r.Samples)
	}
	fmt.Fprintln(&tw, "stages:")
	for _, s := range r.Stages {
		fmt.Fprintf(&tw, "\t%s\t%s\n", s.Stage, s.Elapsed.Round(time.Millisecond))
	}
	if len(r.Models) > 0 {
		fmt.Fprintln(&tw, "models:")
		fmt.Fprintln(&tw, "\tname\tarch\tparameters\tepochs\tloss\tfit%\tvalid%\tmisclassified")
		for _, m := range r.Models {
			arch := string(m.Arch)
			if m.Pretrained {
				arch += " (pretrained)"
			}
			fmt.Fprintf(&tw, "\t%s\t%s\t%d\t%d\t%.4f\t%.2f\t%.2f\t%d/%d (%.2f%%)\n",
				m.Name, arch, m.Parameters,
				m.Train.Epochs, m.Train.Loss, m.Train.FitError, m.Train.ValidError,
				m.Score.Misclassified, m.Score.Rows, m.Score.ErrorPct)
		}
	}
	if r.Best != "" {
		fmt.Fprintf(&tw, "best: %s\n", r.Best)
	}
	if a := r.Artifact; a != nil {
		fmt.Fprintf(&tw, "artifact: %s (%s), model %s, %d classes\n",
			a.Path, data.Size(a.Bytes), a.Info.Model, a.Info.Classes)
	}
	err := tw.Flush()
	return cw.n, err
}

// countingWriter sums the bytes written through it.
type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
