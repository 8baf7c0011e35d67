// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package astore_test

import (
	"context"
	"fmt"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/cas"
	"github.com/grailbio/cas/astore"
	"github.com/grailbio/cas/castest"
	"github.com/grailbio/cas/deeplearn"
	"github.com/grailbio/cas/table"
)

// exportedStore trains a small model and exports it, returning the
// astore table, the weights it came from, and the training table.
func exportedStore(t *testing.T, sess *cas.Session) (store, weights, data cas.Table) {
	t.Helper()
	ctx := context.Background()
	var files []table.File
	for _, label := range []string{"cat", "dog"} {
		for i := 0; i < 5; i++ {
			files = append(files, table.File{
				Path:  fmt.Sprintf("%s/%03d.png", label, i),
				Label: label,
				Data:  []byte{byte(i)},
			})
		}
	}
	up, err := table.UploadFiles(ctx, sess, cas.Tbl("", "animals"), files)
	if err != nil {
		t.Fatalf("upload rows: %v", err)
	}
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
	tr, err := deeplearn.Train(ctx, sess, deeplearn.TrainParams{
		Model:     m.Table,
		Table:     up.Table,
		Weights:   cas.Tbl("", "weights"),
		Seed:      11,
		MaxEpochs: 4,
	})
	if err != nil {
		t.Fatalf("train: %v", err)
	}
	exp, err := deeplearn.Export(ctx, sess, tr.Weights, cas.Tbl("", "store"))
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	return exp.Table, tr.Weights, up.Table
}

func TestDescribe(t *testing.T) {
	sess, _ := castest.StartSession(t, "deepLearn", "astore")
	store, _, _ := exportedStore(t, sess)
	info, err := astore.Describe(context.Background(), sess, store)
	if err != nil {
		t.Fatalf("describe: %v", err)
	}
	if got, want := info.Model, "tiny"; got != want {
		t.Errorf("got model %q, want %q", got, want)
	}
	if got, want := info.Classes, int64(2); got != want {
		t.Errorf("got %d classes, want %d", got, want)
	}
	if info.Bytes <= 0 {
		t.Errorf("got %d bytes", info.Bytes)
	}
	if info.Created.IsZero() {
		t.Error("created time not set")
	}
	if want := []astore.Variable{{Name: "_image_", Type: "varbinary"}}; !reflect.DeepEqual(info.Inputs, want) {
		t.Errorf("got inputs %+v, want %+v", info.Inputs, want)
	}
	var outputs []string
	for _, v := range info.Outputs {
		outputs = append(outputs, v.Name)
	}
	if want := []string{"_label_", "_DL_PredName_", "_DL_PredP_"}; !reflect.DeepEqual(outputs, want) {
		t.Errorf("got outputs %v, want %v", outputs, want)
	}
}

func TestScoreMatchesWeights(t *testing.T) {
	sess, _ := castest.StartSession(t, "deepLearn", "astore")
	store, weights, data := exportedStore(t, sess)
	ctx := context.Background()
	direct, err := deeplearn.Score(ctx, sess, deeplearn.ScoreParams{Table: data, Weights: weights})
	if err != nil {
		t.Fatalf("score with weights: %v", err)
	}
	viaStore, err := astore.Score(ctx, sess, astore.ScoreParams{Store: store, Table: data})
	if err != nil {
		t.Fatalf("score with astore: %v", err)
	}
	if direct.ErrorPct != viaStore.ErrorPct {
		t.Errorf("error rates differ: weights %v, astore %v", direct.ErrorPct, viaStore.ErrorPct)
	}
	if direct.Misclassified != viaStore.Misclassified {
		t.Errorf("miss counts differ: weights %d, astore %d", direct.Misclassified, viaStore.Misclassified)
	}
	if !reflect.DeepEqual(direct.ByClass, viaStore.ByClass) {
		t.Errorf("per-class errors differ:\nweights %+v\nastore  %+v", direct.ByClass, viaStore.ByClass)
	}
}

func TestSaveUploadRoundtrip(t *testing.T) {
	sess, _ := castest.StartSession(t, "deepLearn", "astore")
	store, _, data := exportedStore(t, sess)
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "model.astore")
	n, err := astore.Save(ctx, sess, store, path)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	info, err := astore.Describe(ctx, sess, store)
	if err != nil {
		t.Fatalf("describe: %v", err)
	}
	if n != info.Bytes {
		t.Errorf("saved %d bytes, astore reports %d", n, info.Bytes)
	}
	back, err := astore.UploadFile(ctx, sess, path, cas.Tbl("", "restored"))
	if err != nil {
		t.Fatalf("upload file: %v", err)
	}
	restored, err := astore.Describe(ctx, sess, back)
	if err != nil {
		t.Fatalf("describe restored: %v", err)
	}
	if restored.Model != info.Model || restored.Classes != info.Classes {
		t.Errorf("restored astore describes %q/%d, want %q/%d",
			restored.Model, restored.Classes, info.Model, info.Classes)
	}
	orig, err := astore.Score(ctx, sess, astore.ScoreParams{Store: store, Table: data})
	if err != nil {
		t.Fatalf("score original: %v", err)
	}
	again, err := astore.Score(ctx, sess, astore.ScoreParams{Store: back, Table: data})
	if err != nil {
		t.Fatalf("score restored: %v", err)
	}
	if orig.ErrorPct != again.ErrorPct {
		t.Errorf("restored astore scores %v, original %v", again.ErrorPct, orig.ErrorPct)
	}
}

func TestUploadGarbage(t *testing.T) {
	sess, _ := castest.StartSession(t, "astore")
	_, err := astore.Upload(context.Background(), sess, []byte("not an astore"), cas.Tbl("", "bogus"))
	if !errors.Is(errors.Invalid, err) {
		t.Errorf("got %v, want Invalid", err)
	}
}

func TestDownloadMissing(t *testing.T) {
	sess, _ := castest.StartSession(t, "astore")
	_, err := astore.Download(context.Background(), sess, cas.Tbl("", "nosuch"))
	if !errors.Is(errors.NotExist, err) {
		t.Errorf("got %v, want NotExist", err)
	}
}
