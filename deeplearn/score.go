// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package deeplearn

import (
	"context"
	"fmt"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/cas"
)

// ScoreParams configures Score.
type ScoreParams struct {
	// Table is the data to score. Its Where restriction applies.
	Table cas.Table
	// Weights is the trained weights table to score with.
	Weights cas.Table
	// Out optionally names a table to receive per-row predictions:
	// the copied columns, the truth, _DL_PredName_, and _DL_PredP_.
	Out cas.Table
	// CopyVars names input columns copied into Out.
	CopyVars []string
	// Target is the truth column. Empty means the column the weights
	// were trained against.
	Target string
}

// ClassError is one class's share of scoring error.
type ClassError struct {
	Label         string
	N             int64
	Misclassified int64
	ErrorPct      float64
}

// ScoreResult reports a scoring pass.
type ScoreResult struct {
	// Rows is the number of rows scored.
	Rows int64
	// Misclassified is the number of rows whose prediction missed.
	Misclassified int64
	// ErrorPct is the realized misclassification rate in percent.
	ErrorPct float64
	// Loss is the model's final training loss.
	Loss float64
	// ByClass breaks the error down per label, sorted by label.
	ByClass []ClassError
	// Out is the per-row prediction table, zero if none was
	// requested.
	Out cas.Table
}

// Score scores the table with trained weights via deepLearn.dlScore.
func Score(ctx context.Context, sess *cas.Session, p ScoreParams) (*ScoreResult, error) {
	if p.Weights.IsZero() {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("score %s: no weights table", p.Table))
	}
	params := cas.Values{
		"table":       p.Table,
		"initWeights": p.Weights,
	}
	if !p.Out.IsZero() {
		params["casOut"] = p.Out
	}
	if len(p.CopyVars) > 0 {
		params["copyVars"] = p.CopyVars
	}
	if p.Target != "" {
		params["target"] = p.Target
	}
	res, err := sess.Do(ctx, "deepLearn.dlScore", params)
	if err != nil {
		return nil, err
	}
	sr := &ScoreResult{
		Rows:          res.Int("nObs"),
		Misclassified: res.Int("misclassified"),
		ErrorPct:      res.Float("errorPct"),
		Loss:          res.Float("loss"),
		Out:           p.Out,
	}
	if tab := res.Table("ByClass"); tab != nil {
		sr.ByClass = make([]ClassError, tab.NumRows())
		for i := range sr.ByClass {
			sr.ByClass[i] = ClassError{
				Label:         tab.Str(i, "Label"),
				N:             tab.Int(i, "N"),
				Misclassified: tab.Int(i, "Misclassified"),
				ErrorPct:      tab.Float(i, "ErrorPct"),
			}
		}
	}
	return sr, nil
}

// Format identifies a pretrained weight interchange format.
type Format string

const (
	ONNX  Format = "ONNX"
	Caffe Format = "CAFFE"
	Keras Format = "KERAS"
)

// ImportParams configures ImportWeights.
type ImportParams struct {
	// Model is the model table the weights bind to.
	Model cas.Table
	// Caslib and Path locate the weight file server side.
	Caslib string
	Path   string
	// Format overrides format detection by file extension.
	Format Format
	// Out names the imported weights table.
	Out cas.Table
}

// ImportResult reports an import.
type ImportResult struct {
	// Table is the imported weights table, usable as InitWeights.
	Table cas.Table
	// Matched is the number of model layers bound to imported
	// weights; Skipped counts parameterless layers.
	Matched int64
	Skipped int64
}

// ImportWeights binds a pretrained weight file to the model's layers
// via deepLearn.dlImportModelWeights. Training from the imported
// table starts warm, which converges in fewer epochs than random
// initialization.
func ImportWeights(ctx context.Context, sess *cas.Session, p ImportParams) (*ImportResult, error) {
	if p.Out.IsZero() {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("import weights for %s: no output table", p.Model))
	}
	params := cas.Values{
		"modelTable": p.Model,
		"caslib":     p.Caslib,
		"path":       p.Path,
		"casOut":     p.Out,
	}
	if p.Format != "" {
		params["format"] = string(p.Format)
	}
	res, err := sess.Do(ctx, "deepLearn.dlImportModelWeights", params)
	if err != nil {
		return nil, err
	}
	return &ImportResult{
		Table:   p.Out,
		Matched: res.Int("layersMatched"),
		Skipped: res.Int("layersSkipped"),
	}, nil
}

// ExportResult reports an export.
type ExportResult struct {
	// Table is the astore table holding the serialized model.
	Table cas.Table
	// Bytes is the size of the serialized state.
	Bytes int64
}

// Export serializes trained weights into an astore table via
// deepLearn.dlExportModel. The astore action set can then describe,
// score with, and download the artifact independently of the model
// and weights tables it came from.
func Export(ctx context.Context, sess *cas.Session, weights, out cas.Table) (*ExportResult, error) {
	if weights.IsZero() || out.IsZero() {
		return nil, errors.E(errors.Invalid, "export model: weights and output tables are required")
	}
	res, err := sess.Do(ctx, "deepLearn.dlExportModel", cas.Values{
		"initWeights": weights,
		"casOut":      out,
	})
	if err != nil {
		return nil, err
	}
	return &ExportResult{Table: out, Bytes: res.Int("bytes")}, nil
}
