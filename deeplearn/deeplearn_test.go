// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package deeplearn_test

import (
	"context"
	"fmt"
	"reflect"
	"testing"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/cas"
	"github.com/grailbio/cas/castest"
	"github.com/grailbio/cas/deeplearn"
	"github.com/grailbio/cas/table"
)

// trainTable uploads n rows per label so training and scoring have a
// two-class table with a _label_ column.
func trainTable(t *testing.T, sess *cas.Session, n int) cas.Table {
	t.Helper()
	var files []table.File
	for _, label := range []string{"cat", "dog"} {
		for i := 0; i < n; i++ {
			files = append(files, table.File{
				Path:  fmt.Sprintf("%s/%03d.png", label, i),
				Label: label,
				Data:  []byte{byte(i)},
			})
		}
	}
	res, err := table.UploadFiles(context.Background(), sess, cas.Tbl("", "animals"), files)
	if err != nil {
		t.Fatalf("upload training rows: %v", err)
	}
	return res.Table
}

// tinyModel assembles a five-layer network small enough to verify
// parameter counts by hand.
func tinyModel(t *testing.T, sess *cas.Session) *deeplearn.Model {
	t.Helper()
	ctx := context.Background()
	m, err := deeplearn.Build(ctx, sess, cas.Tbl("", "tiny"), deeplearn.CNN)
	if err != nil {
		t.Fatalf("build model: %v", err)
	}
	for _, layer := range []deeplearn.Layer{
		deeplearn.Input("data", 8, 8, 1),
		deeplearn.Conv("conv1", 2, 3, 1),
		deeplearn.Pool("pool1", 2, 2),
		deeplearn.FC("fc1", 4),
		deeplearn.Output("out", 2),
	} {
		if err := m.AddLayer(ctx, layer); err != nil {
			t.Fatalf("add layer %s: %v", layer.Name, err)
		}
	}
	return m
}

func TestBuildInfo(t *testing.T) {
	sess, _ := castest.StartSession(t, "deepLearn")
	m := tinyModel(t, sess)
	info, err := m.Info(context.Background())
	if err != nil {
		t.Fatalf("info: %v", err)
	}
	if got, want := info.Name, "tiny"; got != want {
		t.Errorf("got name %q, want %q", got, want)
	}
	if got, want := info.Type, "CNN"; got != want {
		t.Errorf("got type %q, want %q", got, want)
	}
	if got, want := info.Layers, int64(5); got != want {
		t.Errorf("got %d layers, want %d", got, want)
	}
	// conv1 3x3x1x2+2, fc1 32x4+4, out 4x2+2.
	if got, want := info.Parameters, int64(20+132+10); got != want {
		t.Errorf("got %d parameters, want %d", got, want)
	}
	var outputs []string
	for _, ls := range info.Shapes {
		outputs = append(outputs, ls.Output)
	}
	want := []string{"8x8x1", "8x8x2", "4x4x2", "4", "2"}
	if !reflect.DeepEqual(outputs, want) {
		t.Errorf("got shapes %v, want %v", outputs, want)
	}
}

func TestBuildExists(t *testing.T) {
	sess, _ := castest.StartSession(t, "deepLearn")
	tinyModel(t, sess)
	_, err := deeplearn.Build(context.Background(), sess, cas.Tbl("", "tiny"), deeplearn.CNN)
	if !errors.Is(errors.Exists, err) {
		t.Errorf("got %v, want Exists", err)
	}
}

func TestAddLayerUnknownSource(t *testing.T) {
	sess, _ := castest.StartSession(t, "deepLearn")
	m := tinyModel(t, sess)
	ctx := context.Background()
	if err := m.AddLayer(ctx, deeplearn.FC("orphan", 3), "nosuch"); err != nil {
		t.Fatalf("add layer: %v", err)
	}
	// The broken source surfaces when shapes are resolved.
	if _, err := m.Info(ctx); !errors.Is(errors.Invalid, err) {
		t.Errorf("got %v, want Invalid", err)
	}
}

func TestLeNet5(t *testing.T) {
	sess, _ := castest.StartSession(t, "deepLearn")
	m, err := deeplearn.LeNet5(context.Background(), sess, cas.Tbl("", "lenet"))
	if err != nil {
		t.Fatalf("build lenet: %v", err)
	}
	info, err := m.Info(context.Background())
	if err != nil {
		t.Fatalf("info: %v", err)
	}
	if got, want := info.Layers, int64(7); got != want {
		t.Errorf("got %d layers, want %d", got, want)
	}
	if got, want := info.Parameters, int64(1256080); got != want {
		t.Errorf("got %d parameters, want %d", got, want)
	}
	if got, want := info.Shapes[1].Output, "28x28x20"; got != want {
		t.Errorf("conv1 output %q, want %q", got, want)
	}
	if got, want := info.Shapes[4].Output, "7x7x50"; got != want {
		t.Errorf("pool2 output %q, want %q", got, want)
	}
}

func TestVGG16(t *testing.T) {
	sess, _ := castest.StartSession(t, "deepLearn")
	m, err := deeplearn.VGG16(context.Background(), sess, cas.Tbl("", "vgg"), 1000)
	if err != nil {
		t.Fatalf("build vgg: %v", err)
	}
	info, err := m.Info(context.Background())
	if err != nil {
		t.Fatalf("info: %v", err)
	}
	if got, want := info.Layers, int64(22); got != want {
		t.Errorf("got %d layers, want %d", got, want)
	}
	if got, want := info.Parameters, int64(138357544); got != want {
		t.Errorf("got %d parameters, want %d", got, want)
	}
	last := info.Shapes[len(info.Shapes)-4]
	if got, want := last.Output, "7x7x512"; got != want {
		t.Errorf("final pool output %q, want %q", got, want)
	}
}

func TestTrain(t *testing.T) {
	sess, _ := castest.StartSession(t, "deepLearn")
	m := tinyModel(t, sess)
	tbl := trainTable(t, sess, 6)
	ctx := context.Background()
	res, err := deeplearn.Train(ctx, sess, deeplearn.TrainParams{
		Model:     m.Table,
		Table:     tbl,
		Weights:   cas.Tbl("", "weights"),
		Seed:      7,
		MaxEpochs: 4,
	})
	if err != nil {
		t.Fatalf("train: %v", err)
	}
	if got, want := res.Epochs, int64(4); got != want {
		t.Errorf("got %d epochs, want %d", got, want)
	}
	if got, want := len(res.History), 4; got != want {
		t.Fatalf("got %d history rows, want %d", got, want)
	}
	for i := 1; i < len(res.History); i++ {
		if res.History[i].Loss >= res.History[i-1].Loss {
			t.Errorf("loss did not decrease at epoch %d: %v -> %v",
				i+1, res.History[i-1].Loss, res.History[i].Loss)
		}
	}
	if got, want := res.Loss, res.History[3].Loss; got != want {
		t.Errorf("final loss %v differs from last history row %v", got, want)
	}
	// One weights row per layer.
	info, err := table.Info(ctx, sess, res.Weights)
	if err != nil {
		t.Fatalf("weights info: %v", err)
	}
	if got, want := info.Rows, int64(5); got != want {
		t.Errorf("weights table has %d rows, want %d", got, want)
	}
}

func TestTrainDeterministic(t *testing.T) {
	sess, _ := castest.StartSession(t, "deepLearn")
	m := tinyModel(t, sess)
	tbl := trainTable(t, sess, 4)
	ctx := context.Background()
	run := func(out string) *deeplearn.TrainResult {
		res, err := deeplearn.Train(ctx, sess, deeplearn.TrainParams{
			Model:     m.Table,
			Table:     tbl,
			Weights:   cas.Tbl("", out),
			Seed:      99,
			MaxEpochs: 3,
		})
		if err != nil {
			t.Fatalf("train into %s: %v", out, err)
		}
		return res
	}
	first, second := run("w1"), run("w2")
	if first.Loss != second.Loss {
		t.Errorf("same seed, different loss: %v vs %v", first.Loss, second.Loss)
	}
	if first.ValidError != second.ValidError {
		t.Errorf("same seed, different validation error: %v vs %v", first.ValidError, second.ValidError)
	}
}

func TestTrainPretrained(t *testing.T) {
	sess, srv := castest.StartSession(t, "deepLearn")
	m := tinyModel(t, sess)
	tbl := trainTable(t, sess, 4)
	srv.AddFile("models", "tiny.onnx", []byte("pretend pretrained weights"))
	ctx := context.Background()
	imp, err := deeplearn.ImportWeights(ctx, sess, deeplearn.ImportParams{
		Model:  m.Table,
		Caslib: "models",
		Path:   "tiny.onnx",
		Out:    cas.Tbl("", "init"),
	})
	if err != nil {
		t.Fatalf("import weights: %v", err)
	}
	// conv, fc, and output carry parameters; input and pool do not.
	if got, want := imp.Matched, int64(3); got != want {
		t.Errorf("got %d matched layers, want %d", got, want)
	}
	if got, want := imp.Skipped, int64(2); got != want {
		t.Errorf("got %d skipped layers, want %d", got, want)
	}
	train := func(init cas.Table, out string) float64 {
		res, err := deeplearn.Train(ctx, sess, deeplearn.TrainParams{
			Model:       m.Table,
			Table:       tbl,
			InitWeights: init,
			Weights:     cas.Tbl("", out),
			Seed:        5,
			MaxEpochs:   4,
		})
		if err != nil {
			t.Fatalf("train into %s: %v", out, err)
		}
		return res.Loss
	}
	scratch := train(cas.Table{}, "cold")
	warm := train(imp.Table, "warm")
	if warm >= scratch {
		t.Errorf("pretrained loss %v not below scratch loss %v", warm, scratch)
	}
}

func TestTrainProgress(t *testing.T) {
	srv := castest.Start(t, castest.WithEpochsPerPoll(1))
	sess := castest.Dial(t, srv, "deepLearn")
	m := tinyModel(t, sess)
	tbl := trainTable(t, sess, 4)
	var epochs []int
	res, err := deeplearn.Train(context.Background(), sess, deeplearn.TrainParams{
		Model:     m.Table,
		Table:     tbl,
		Weights:   cas.Tbl("", "weights"),
		Seed:      1,
		MaxEpochs: 3,
		Progress: func(p deeplearn.Progress) {
			epochs = append(epochs, p.Epoch)
			if p.MaxEpochs != 3 {
				t.Errorf("progress reported maxEpochs %d, want 3", p.MaxEpochs)
			}
			if p.Loss <= 0 {
				t.Errorf("progress at epoch %d reported loss %v", p.Epoch, p.Loss)
			}
		},
	})
	if err != nil {
		t.Fatalf("train: %v", err)
	}
	if got, want := res.Epochs, int64(3); got != want {
		t.Errorf("got %d epochs, want %d", got, want)
	}
	// The final poll observes the terminal state, so progress stops
	// one epoch short.
	if want := []int{1, 2}; !reflect.DeepEqual(epochs, want) {
		t.Errorf("got progress epochs %v, want %v", epochs, want)
	}
}

func TestTrainBadParams(t *testing.T) {
	sess, _ := castest.StartSession(t, "deepLearn")
	ctx := context.Background()
	_, err := deeplearn.Train(ctx, sess, deeplearn.TrainParams{
		Model:   cas.Tbl("", "tiny"),
		Table:   cas.Tbl("", "animals"),
		Weights: cas.Tbl("", "weights"),
	})
	if !errors.Is(errors.Invalid, err) {
		t.Errorf("zero maxEpochs: got %v, want Invalid", err)
	}
	_, err = deeplearn.Train(ctx, sess, deeplearn.TrainParams{
		Model:     cas.Tbl("", "tiny"),
		Table:     cas.Tbl("", "animals"),
		MaxEpochs: 2,
	})
	if !errors.Is(errors.Invalid, err) {
		t.Errorf("no weights: got %v, want Invalid", err)
	}
}

func TestTrainMissingTarget(t *testing.T) {
	sess, _ := castest.StartSession(t, "deepLearn")
	m := tinyModel(t, sess)
	tbl := trainTable(t, sess, 2)
	_, err := deeplearn.Train(context.Background(), sess, deeplearn.TrainParams{
		Model:     m.Table,
		Table:     tbl,
		Target:    "nosuch",
		Weights:   cas.Tbl("", "weights"),
		MaxEpochs: 2,
	})
	if !errors.Is(errors.Invalid, err) {
		t.Errorf("got %v, want Invalid", err)
	}
}

func TestScore(t *testing.T) {
	sess, _ := castest.StartSession(t, "deepLearn")
	m := tinyModel(t, sess)
	tbl := trainTable(t, sess, 6)
	ctx := context.Background()
	tr, err := deeplearn.Train(ctx, sess, deeplearn.TrainParams{
		Model:     m.Table,
		Table:     tbl,
		Weights:   cas.Tbl("", "weights"),
		Seed:      7,
		MaxEpochs: 4,
	})
	if err != nil {
		t.Fatalf("train: %v", err)
	}
	res, err := deeplearn.Score(ctx, sess, deeplearn.ScoreParams{
		Table:    tbl,
		Weights:  tr.Weights,
		Out:      cas.Tbl("", "scored"),
		CopyVars: []string{"_path_"},
	})
	if err != nil {
		t.Fatalf("score: %v", err)
	}
	if got, want := res.Rows, int64(12); got != want {
		t.Errorf("got %d rows, want %d", got, want)
	}
	if got, want := len(res.ByClass), 2; got != want {
		t.Fatalf("got %d classes, want %d", got, want)
	}
	var byClass int64
	for _, c := range res.ByClass {
		byClass += c.Misclassified
	}
	if byClass != res.Misclassified {
		t.Errorf("per-class misses %d do not sum to %d", byClass, res.Misclassified)
	}
	labels := []string{res.ByClass[0].Label, res.ByClass[1].Label}
	if want := []string{"cat", "dog"}; !reflect.DeepEqual(labels, want) {
		t.Errorf("got class labels %v, want %v", labels, want)
	}
	tab, err := table.Fetch(ctx, sess, res.Out)
	if err != nil {
		t.Fatalf("fetch scored table: %v", err)
	}
	if got, want := tab.NumRows(), 12; got != want {
		t.Errorf("scored table has %d rows, want %d", got, want)
	}
	for _, col := range []string{"_path_", "_label_", "_DL_PredName_", "_DL_PredP_"} {
		if tab.Col(col) < 0 {
			t.Errorf("scored table is missing column %s", col)
		}
	}
}

func TestScoreDeterministic(t *testing.T) {
	sess, _ := castest.StartSession(t, "deepLearn")
	m := tinyModel(t, sess)
	tbl := trainTable(t, sess, 5)
	ctx := context.Background()
	tr, err := deeplearn.Train(ctx, sess, deeplearn.TrainParams{
		Model:     m.Table,
		Table:     tbl,
		Weights:   cas.Tbl("", "weights"),
		Seed:      3,
		MaxEpochs: 5,
	})
	if err != nil {
		t.Fatalf("train: %v", err)
	}
	score := func() *deeplearn.ScoreResult {
		res, err := deeplearn.Score(ctx, sess, deeplearn.ScoreParams{Table: tbl, Weights: tr.Weights})
		if err != nil {
			t.Fatalf("score: %v", err)
		}
		return res
	}
	first, second := score(), score()
	if first.ErrorPct != second.ErrorPct || first.Misclassified != second.Misclassified {
		t.Errorf("rescoring disagreed: %+v vs %+v", first, second)
	}
}

func TestExport(t *testing.T) {
	sess, _ := castest.StartSession(t, "deepLearn")
	m := tinyModel(t, sess)
	tbl := trainTable(t, sess, 4)
	ctx := context.Background()
	tr, err := deeplearn.Train(ctx, sess, deeplearn.TrainParams{
		Model:     m.Table,
		Table:     tbl,
		Weights:   cas.Tbl("", "weights"),
		Seed:      2,
		MaxEpochs: 3,
	})
	if err != nil {
		t.Fatalf("train: %v", err)
	}
	exp, err := deeplearn.Export(ctx, sess, tr.Weights, cas.Tbl("", "store"))
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if exp.Bytes <= 0 {
		t.Errorf("exported %d bytes", exp.Bytes)
	}
	info, err := table.Info(ctx, sess, exp.Table)
	if err != nil {
		t.Fatalf("info: %v", err)
	}
	if got, want := info.Rows, int64(1); got != want {
		t.Errorf("astore table has %d rows, want %d", got, want)
	}
}
