// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package deeplearn

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/retry"
	"github.com/grailbio/cas"
)

// trainPollPolicy paces training job polls. Training epochs on real
// engines take seconds, so a short first interval only costs one
// cheap extra poll.
var trainPollPolicy = retry.Backoff(100*time.Millisecond, 2*time.Second, 1.5)

// TrainParams configures Train.
type TrainParams struct {
	// Model is the model table to train.
	Model cas.Table
	// Table is the training data. Its Where restriction applies, so a
	// partition indicator can carve the training split out of a
	// larger table.
	Table cas.Table
	// Target is the label column. Empty means _label_.
	Target string
	// Inputs optionally names the input columns.
	Inputs []string
	// InitWeights optionally seeds training from imported or
	// previously trained weights.
	InitWeights cas.Table
	// Weights names the output weights table. Required.
	Weights cas.Table
	// BestWeights optionally captures the best epoch's weights
	// separately from the final ones.
	BestWeights cas.Table
	// ValidTable optionally holds held-out validation rows.
	ValidTable cas.Table
	// Seed fixes the run. Zero means the engine default.
	Seed int64
	// MaxEpochs is the number of training epochs. Required.
	MaxEpochs int
	// MiniBatchSize is the optimizer's batch size. Zero means the
	// engine default.
	MiniBatchSize int
	// Method names the optimization method, e.g. "momentum" or
	// "adam". Empty means the engine default.
	Method string
	// LearningRate sets the initial learning rate. Zero means the
	// engine's default schedule.
	LearningRate float64
	// Momentum sets the momentum coefficient, for methods that take
	// one.
	Momentum float64
	// Progress, if set, receives a snapshot after each status poll
	// that reports one.
	Progress func(Progress)
}

// Progress is a point-in-time view of a running training job.
type Progress struct {
	Epoch     int
	MaxEpochs int
	Loss      float64
}

// An Epoch is one row of a training run's optimization history.
type Epoch struct {
	Epoch        int64
	LearningRate float64
	Loss         float64
	FitError     float64
	ValidLoss    float64
	ValidError   float64
}

// TrainResult reports a completed training run.
type TrainResult struct {
	// Weights is the trained weights table.
	Weights cas.Table
	// Epochs is the number of epochs run.
	Epochs int64
	// Loss, FitError, and ValidError are the final epoch's values.
	Loss       float64
	FitError   float64
	ValidError float64
	// History is the per-epoch optimization history.
	History []Epoch
}

// Train runs deepLearn.dlTrain asynchronously and waits for it,
// reporting progress through the session status and the optional
// Progress callback. Parameter problems surface at submission, not at
// the first poll. If the context is canceled mid-run, Train asks the
// engine to abort the job before returning.
func Train(ctx context.Context, sess *cas.Session, p TrainParams) (*TrainResult, error) {
	if p.MaxEpochs <= 0 {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("train %s: maxEpochs must be positive, got %d", p.Model, p.MaxEpochs))
	}
	if p.Weights.IsZero() {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("train %s: no output weights table", p.Model))
	}
	optimizer := cas.Values{"maxEpochs": p.MaxEpochs}
	if p.MiniBatchSize > 0 {
		optimizer["miniBatchSize"] = p.MiniBatchSize
	}
	if p.Method != "" {
		optimizer["method"] = p.Method
	}
	if p.LearningRate > 0 {
		optimizer["learningRate"] = p.LearningRate
	}
	if p.Momentum > 0 {
		optimizer["momentum"] = p.Momentum
	}
	params := cas.Values{
		"modelTable":   p.Model,
		"table":        p.Table,
		"modelWeights": p.Weights,
		"optimizer":    optimizer,
	}
	if p.Target != "" {
		params["target"] = p.Target
	}
	if len(p.Inputs) > 0 {
		params["inputs"] = p.Inputs
	}
	if !p.InitWeights.IsZero() {
		params["initWeights"] = p.InitWeights
	}
	if !p.BestWeights.IsZero() {
		params["bestWeights"] = p.BestWeights
	}
	if !p.ValidTable.IsZero() {
		params["validTable"] = p.ValidTable
	}
	if p.Seed != 0 {
		params["seed"] = p.Seed
	}
	job, err := sess.Submit(ctx, "deepLearn.dlTrain", params)
	if err != nil {
		return nil, err
	}
	var res *cas.Results
	if p.Progress == nil {
		res, err = job.Wait(ctx)
	} else {
		res, err = waitWithProgress(ctx, job, p.Progress)
	}
	if err != nil {
		if ctx.Err() != nil {
			abort(job)
		}
		return nil, err
	}
	return trainResult(p.Weights, res), nil
}

// waitWithProgress polls the job, forwarding reported progress to the
// callback between polls.
func waitWithProgress(ctx context.Context, job *cas.Job, cb func(Progress)) (*cas.Results, error) {
	for retries := 0; ; retries++ {
		state, res, err := job.Poll(ctx)
		if err != nil {
			return nil, err
		}
		if state.Done() {
			return res, nil
		}
		if len(state.Progress) > 0 {
			cb(Progress{
				Epoch:     int(asInt(state.Progress["epoch"])),
				MaxEpochs: int(asInt(state.Progress["maxEpochs"])),
				Loss:      asFloat(state.Progress["loss"]),
			})
		}
		if err := retry.Wait(ctx, trainPollPolicy, retries); err != nil {
			return nil, errors.E(fmt.Sprintf("waiting for job %s", job.ID()), err)
		}
	}
}

// abort cancels the job on a fresh context; the caller's is already
// done.
func abort(job *cas.Job) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := job.Cancel(ctx); err != nil {
		log.Error.Printf("cas/deeplearn: canceling job %s: %v", job.ID(), err)
	}
}

func trainResult(weights cas.Table, res *cas.Results) *TrainResult {
	tr := &TrainResult{
		Weights:    weights,
		Epochs:     res.Int("epochs"),
		Loss:       res.Float("loss"),
		FitError:   res.Float("fitError"),
		ValidError: res.Float("validError"),
	}
	if tab := res.Table("OptIterHistory"); tab != nil {
		tr.History = make([]Epoch, tab.NumRows())
		for i := range tr.History {
			tr.History[i] = Epoch{
				Epoch:        tab.Int(i, "Epoch"),
				LearningRate: tab.Float(i, "LearningRate"),
				Loss:         tab.Float(i, "Loss"),
				FitError:     tab.Float(i, "FitError"),
				ValidLoss:    tab.Float(i, "ValidLoss"),
				ValidError:   tab.Float(i, "ValidError"),
			}
		}
	}
	return tr
}

func asInt(v interface{}) int64 {
	switch v := v.(type) {
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n
		}
		if f, err := v.Float64(); err == nil {
			return int64(f)
		}
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	}
	return 0
}

func asFloat(v interface{}) float64 {
	switch v := v.(type) {
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return f
		}
	case float64:
		return v
	case int64:
		return float64(v)
	case int:
		return float64(v)
	}
	return 0
}
