// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package dlpipe runs the image classification workflow end to end:
// load labeled images from a caslib, prepare and augment them, train
// the spec's models, score each against a held-out validation split,
// and export the winner as a deployable astore artifact. The
// workflow is described by a YAML Spec and produces a Report.
//
// Every substantive operation runs inside the engine; the pipeline
// sequences actions, names intermediate tables, and cleans up after
// itself on success and failure alike.
package dlpipe

import (
	"context"
	"fmt"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/grailbio/base/data"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/cas"
	"github.com/grailbio/cas/astore"
	"github.com/grailbio/cas/casimage"
	"github.com/grailbio/cas/deeplearn"
	"github.com/grailbio/cas/sampling"
	"github.com/grailbio/cas/table"
)

// crossCheckTolerance bounds how far the exported astore's error
// rate may drift from dlScore's before the artifact is rejected.
const crossCheckTolerance = 1e-6

// actionSets are loaded into every pipeline session.
var actionSets = []string{"sampling", "image", "deepLearn", "astore"}

// A Stage is one phase of the pipeline. Stages execute in order; a
// partial run stops after its final stage.
type Stage int

const (
	// StageLoad binds the caslib, loads the image table, and
	// summarizes it.
	StageLoad Stage = iota
	// StageSamples renders a contact sheet of sample images into the
	// spec's samples directory.
	StageSamples
	// StageResize rescales every image to the spec's dimensions.
	StageResize
	// StageSplit shuffles the table and carves out the validation
	// partition.
	StageSplit
	// StageAugment expands the training partition with flipped and
	// cropped variants.
	StageAugment
	// StageTrain builds, trains, and scores every model.
	StageTrain
	// StageExport exports the chosen model's astore, saves the
	// artifact, and validates it against the engine's scoring.
	StageExport
)

var stageNames = [...]string{"load", "samples", "resize", "split", "augment", "train", "export"}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return fmt.Sprintf("stage(%d)", int(s))
	}
	return stageNames[s]
}

// ParseStage maps a stage name, as printed by Stage.String, back to
// its Stage.
func ParseStage(name string) (Stage, error) {
	for i, n := range stageNames {
		if n == name {
			return Stage(i), nil
		}
	}
	return 0, errors.E(errors.Invalid, fmt.Sprintf("unknown stage %q", name))
}

// An Option adjusts how a run executes.
type Option func(*runner)

// Keep prevents the run from dropping its intermediate tables and
// caslib on completion, so a failed run can be inspected.
func Keep() Option {
	return func(r *runner) { r.keep = true }
}

// Quiet suppresses the run's progress logging.
func Quiet() Option {
	return func(r *runner) { r.quiet = true }
}

// FromTable starts the run from an existing image table instead of
// binding the caslib and loading one. The table is left in place on
// cleanup.
func FromTable(tbl cas.Table) Option {
	return func(r *runner) { r.from = tbl }
}

// trained carries one model's outcome between the train and export
// stages.
type trained struct {
	spec    *ModelSpec
	weights cas.Table
	score   *deeplearn.ScoreResult
}

type runner struct {
	sess *cas.Session
	spec *Spec

	keep  bool
	quiet bool
	from  cas.Table

	report   *Report
	drops    []cas.Table
	libAdded bool

	// Carried between stages.
	images  cas.Table
	summary *casimage.Summary
	train   cas.Table
	valid   cas.Table
	trained []trained
}

// Run executes every stage of the spec in a fresh session on the
// client and reports on the run. The session, intermediate tables,
// and any caslib the run created are cleaned up on all paths.
func Run(ctx context.Context, client *cas.Client, spec *Spec, opts ...Option) (*Report, error) {
	return RunStages(ctx, client, spec, StageExport, opts...)
}

// RunStages executes the pipeline through the given final stage, so
// commands can stop early: through StageLoad only loads and
// summarizes, through StageTrain trains and scores but exports
// nothing. Combined with FromTable, a run can also skip the load.
func RunStages(ctx context.Context, client *cas.Client, spec *Spec, through Stage, opts ...Option) (*Report, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	sess, err := client.NewSession(ctx, spec.Name)
	if err != nil {
		return nil, err
	}
	r := &runner{
		sess: sess,
		spec: spec,
		report: &Report{
			Name:    spec.Name,
			Started: time.Now(),
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	defer func() {
		// Teardown still talks to the engine, so a canceled run gets
		// its own brief window.
		cctx := ctx
		if cctx.Err() != nil {
			var cancel context.CancelFunc
			cctx, cancel = context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
		}
		r.cleanup(cctx)
		if cerr := sess.Close(cctx); cerr != nil {
			log.Error.Printf("dlpipe %s: close session: %v", spec.Name, cerr)
		}
	}()
	for _, set := range actionSets {
		if err := sess.LoadActionSet(ctx, set); err != nil {
			return nil, err
		}
	}
	if err := r.run(ctx, through); err != nil {
		return nil, err
	}
	r.report.Elapsed = time.Since(r.report.Started)
	return r.report, nil
}

func (r *runner) run(ctx context.Context, through Stage) error {
	stages := []struct {
		stage Stage
		skip  bool
		f     func(context.Context) error
	}{
		{StageLoad, false, r.load},
		{StageSamples, r.spec.SamplesDir == "", r.samples},
		{StageResize, r.spec.Resize == nil, r.resize},
		{StageSplit, false, r.split},
		{StageAugment, r.spec.Augment == nil, r.augment},
		{StageTrain, false, r.trainModels},
		{StageExport, false, r.export},
	}
	for _, s := range stages {
		if s.stage > through {
			break
		}
		if s.skip {
			continue
		}
		begin := time.Now()
		if err := s.f(ctx); err != nil {
			return errors.E(fmt.Sprintf("dlpipe %s: %s", r.spec.Name, s.stage), err)
		}
		r.report.Stages = append(r.report.Stages, StageTiming{
			Stage:   s.stage.String(),
			Elapsed: time.Since(begin),
		})
	}
	return nil
}

// load binds the caslib, loads the images, and summarizes them. With
// FromTable the load itself is skipped and only the summary runs.
func (r *runner) load(ctx context.Context) error {
	if !r.from.IsZero() {
		r.images = r.from
	} else {
		lib := r.spec.Caslib
		err := r.sess.AddCaslib(ctx, lib.Name, lib.Path, lib.Subdirs)
		switch {
		case err == nil:
			r.libAdded = true
		case errors.Is(errors.Exists, err):
			// The caslib predates the run and is not ours to drop.
		default:
			return err
		}
		out := r.table("images")
		res, err := casimage.Load(ctx, r.sess, casimage.LoadParams{
			Caslib: lib.Name,
			Path:   r.spec.Images.Path,
			Out:    out,
		})
		if err != nil {
			return err
		}
		r.drop(out)
		if res.Images == 0 {
			return errors.E(errors.NotExist, fmt.Sprintf("no images in caslib %s path %q", lib.Name, r.spec.Images.Path))
		}
		r.images = res.Table
	}
	summary, err := casimage.Summarize(ctx, r.sess, r.images)
	if err != nil {
		return err
	}
	r.summary = summary
	r.report.Images = *summary
	r.logf("loaded %d images, %d labels, %dx%d to %dx%d",
		summary.Images, len(summary.Labels),
		summary.MinWidth, summary.MinHeight, summary.MaxWidth, summary.MaxHeight)
	return nil
}

// samples renders a contact sheet of the first images into the
// samples directory.
func (r *runner) samples(ctx context.Context) error {
	samples, err := casimage.FetchSample(ctx, r.sess, r.images, r.spec.Images.SampleCount)
	if err != nil {
		return err
	}
	sheet := casimage.ContactSheet(samples, 0, 0)
	path := joinPath(r.spec.SamplesDir, "samples.png")
	if err := ensureDir(r.spec.SamplesDir); err != nil {
		return err
	}
	f, err := file.Create(ctx, path)
	if err != nil {
		return err
	}
	if err := png.Encode(f.Writer(ctx), sheet); err != nil {
		f.Close(ctx)
		return errors.E("encode "+path, err)
	}
	if err := f.Close(ctx); err != nil {
		return err
	}
	r.report.Samples = path
	r.logf("wrote %d sample images to %s", len(samples), path)
	return nil
}

func (r *runner) resize(ctx context.Context) error {
	w, h := r.spec.Resize.Width, r.spec.Resize.Height
	out := r.table("resized")
	res, err := casimage.Resize(ctx, r.sess, r.images, w, h, out)
	if err != nil {
		return err
	}
	r.drop(out)
	r.images = res.Table
	r.logf("resized %d images to %dx%d", res.Images, w, h)
	return nil
}

// split shuffles the images and draws the validation partition. The
// training and validation sides are the same table restricted by the
// partition indicator.
func (r *runner) split(ctx context.Context) error {
	shuffled := r.table("shuffled")
	if err := table.Shuffle(ctx, r.sess, r.images, shuffled); err != nil {
		return err
	}
	r.drop(shuffled)
	split := r.table("split")
	res, err := sampling.SRS(ctx, r.sess, sampling.SRSParams{
		Table:     shuffled,
		Percent:   r.spec.Split.Percent,
		Seed:      r.spec.Split.Seed,
		Partition: true,
		Out:       split,
	})
	if err != nil {
		return err
	}
	r.drop(split)
	r.train = split.WithWhere(sampling.PartIndCol + " == 0")
	r.valid = split.WithWhere(sampling.PartIndCol + " == 1")
	r.logf("split %d rows: %d training, %d validation",
		res.Total, res.Total-res.Sampled, res.Sampled)
	return nil
}

func (r *runner) augment(ctx context.Context) error {
	a := r.spec.Augment
	out := r.table("train_aug")
	res, err := casimage.Augment(ctx, r.sess, casimage.AugmentParams{
		Table:      r.train,
		Out:        out,
		Flip:       a.Flip,
		CropWidth:  a.CropWidth,
		CropHeight: a.CropHeight,
		Crops:      a.Crops,
	})
	if err != nil {
		return err
	}
	r.drop(out)
	r.train = res.Table
	r.logf("augmented training partition to %d images (factor %d)", res.Images, res.Factor)
	return nil
}

// trainModels builds, trains, and scores each model in spec order.
func (r *runner) trainModels(ctx context.Context) error {
	for i := range r.spec.Models {
		if err := r.trainModel(ctx, &r.spec.Models[i]); err != nil {
			return errors.E("model "+r.spec.Models[i].Name, err)
		}
	}
	return nil
}

func (r *runner) trainModel(ctx context.Context, ms *ModelSpec) error {
	modelTbl := r.table(ms.Name)
	var (
		model *deeplearn.Model
		err   error
	)
	switch ms.Arch {
	case LeNet5:
		model, err = deeplearn.LeNet5(ctx, r.sess, modelTbl)
	case VGG16:
		model, err = deeplearn.VGG16(ctx, r.sess, modelTbl, len(r.summary.Labels))
	default:
		err = errors.E(errors.Invalid, fmt.Sprintf("unknown arch %q", ms.Arch))
	}
	if err != nil {
		return err
	}
	r.drop(modelTbl)
	info, err := model.Info(ctx)
	if err != nil {
		return err
	}
	r.logf("model %s: built %s: %d layers, %d parameters", ms.Name, ms.Arch, info.Layers, info.Parameters)
	var init cas.Table
	if w := ms.Weights; w != nil {
		out := r.table(ms.Name + "_pretrained")
		imp, err := deeplearn.ImportWeights(ctx, r.sess, deeplearn.ImportParams{
			Model:  modelTbl,
			Caslib: w.Caslib,
			Path:   w.Path,
			Format: w.format(),
			Out:    out,
		})
		if err != nil {
			return err
		}
		r.drop(out)
		init = imp.Table
		r.logf("model %s: imported %s: %d layers matched, %d skipped",
			ms.Name, w.Path, imp.Matched, imp.Skipped)
	}
	weights := r.table(ms.Name + "_weights")
	r.drop(weights)
	tr, err := deeplearn.Train(ctx, r.sess, deeplearn.TrainParams{
		Model:         modelTbl,
		Table:         r.train,
		ValidTable:    r.valid,
		InitWeights:   init,
		Weights:       weights,
		Seed:          ms.Train.Seed,
		MaxEpochs:     ms.Train.Epochs,
		MiniBatchSize: ms.Train.MiniBatch,
		Method:        ms.Train.Optimizer.Method,
		LearningRate:  ms.Train.Optimizer.LearningRate,
		Momentum:      ms.Train.Optimizer.Momentum,
		Progress: func(p deeplearn.Progress) {
			r.logf("model %s: epoch %d/%d, loss %.4f", ms.Name, p.Epoch, p.MaxEpochs, p.Loss)
		},
	})
	if err != nil {
		return err
	}
	r.logf("model %s: trained %d epochs: loss %.4f, fit error %.2f%%, validation error %.2f%%",
		ms.Name, tr.Epochs, tr.Loss, tr.FitError, tr.ValidError)
	score, err := deeplearn.Score(ctx, r.sess, deeplearn.ScoreParams{
		Table:   r.valid,
		Weights: tr.Weights,
	})
	if err != nil {
		return err
	}
	r.logf("model %s: validation: %d of %d misclassified (%.2f%%)",
		ms.Name, score.Misclassified, score.Rows, score.ErrorPct)
	r.trained = append(r.trained, trained{spec: ms, weights: tr.Weights, score: score})
	r.report.Models = append(r.report.Models, ModelReport{
		Name:       ms.Name,
		Arch:       ms.Arch,
		Layers:     info.Layers,
		Parameters: info.Parameters,
		Pretrained: ms.Weights != nil,
		Train:      tr,
		Score:      score,
	})
	return nil
}

// export picks the spec's export model, saves its astore artifact,
// and cross-checks the artifact's scoring against dlScore's.
func (r *runner) export(ctx context.Context) error {
	chosen := r.choose()
	r.report.Best = chosen.spec.Name
	store := r.table(chosen.spec.Name + "_astore")
	if _, err := deeplearn.Export(ctx, r.sess, chosen.weights, store); err != nil {
		return err
	}
	r.drop(store)
	path := r.spec.Export.Path
	if err := ensureDir(parentDir(path)); err != nil {
		return err
	}
	n, err := astore.Save(ctx, r.sess, store, path)
	if err != nil {
		return err
	}
	info, err := astore.Describe(ctx, r.sess, store)
	if err != nil {
		return err
	}
	check, err := astore.Score(ctx, r.sess, astore.ScoreParams{
		Store: store,
		Table: r.valid,
	})
	if err != nil {
		return err
	}
	if check.Misclassified != chosen.score.Misclassified ||
		math.Abs(check.ErrorPct-chosen.score.ErrorPct) > crossCheckTolerance {
		return errors.E(errors.Integrity, fmt.Sprintf(
			"artifact scoring disagrees with dlScore: %d misclassified (%.4f%%) vs %d (%.4f%%)",
			check.Misclassified, check.ErrorPct,
			chosen.score.Misclassified, chosen.score.ErrorPct))
	}
	r.report.Artifact = &Artifact{Path: path, Bytes: n, Info: *info}
	r.logf("exported %s to %s (%s)", chosen.spec.Name, path, data.Size(n))
	return nil
}

// choose returns the trained model the export stage ships: the named
// one, or the one with the fewest misclassifications, earliest spec
// order winning ties.
func (r *runner) choose() trained {
	if r.spec.Export.Model != "best" {
		for _, t := range r.trained {
			if t.spec.Name == r.spec.Export.Model {
				return t
			}
		}
	}
	best := r.trained[0]
	for _, t := range r.trained[1:] {
		if t.score.Misclassified < best.score.Misclassified {
			best = t
		}
	}
	return best
}

// cleanup drops the run's intermediate tables, newest first, and any
// caslib the run created.
func (r *runner) cleanup(ctx context.Context) {
	if r.keep {
		return
	}
	for i := len(r.drops) - 1; i >= 0; i-- {
		if err := table.DropIfExists(ctx, r.sess, r.drops[i]); err != nil {
			log.Error.Printf("dlpipe %s: drop %s: %v", r.spec.Name, r.drops[i], err)
		}
	}
	if r.libAdded {
		if err := r.sess.DropCaslib(ctx, r.spec.Caslib.Name); err != nil {
			log.Error.Printf("dlpipe %s: drop caslib %s: %v", r.spec.Name, r.spec.Caslib.Name, err)
		}
	}
}

// table names an intermediate table for this run.
func (r *runner) table(suffix string) cas.Table {
	return cas.Tbl("", r.spec.Name+"_"+suffix)
}

func (r *runner) drop(tbl cas.Table) {
	r.drops = append(r.drops, tbl)
}

func (r *runner) logf(format string, args ...interface{}) {
	if r.quiet {
		return
	}
	log.Printf("dlpipe %s: %s", r.spec.Name, fmt.Sprintf(format, args...))
}

// joinPath joins a directory, local or URL, with a file name.
func joinPath(dir, name string) string {
	if strings.Contains(dir, "://") {
		return strings.TrimSuffix(dir, "/") + "/" + name
	}
	return filepath.Join(dir, name)
}

// parentDir returns the directory that must exist for path to be
// creatable.
func parentDir(path string) string {
	if strings.Contains(path, "://") {
		return path[:strings.LastIndex(path, "/")+1]
	}
	return filepath.Dir(path)
}

// ensureDir creates a local directory if needed. Non-local schemes
// have no directories to create.
func ensureDir(dir string) error {
	if dir == "" || strings.Contains(dir, "://") {
		return nil
	}
	return os.MkdirAll(dir, 0777)
}
