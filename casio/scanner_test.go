// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package casio_test

import (
	"bytes"
	"context"
	"reflect"
	"testing"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/cas"
	"github.com/grailbio/cas/casio"
	"github.com/grailbio/cas/castest"
)

// animalSession opens a session with 3 cats and 3 dogs loaded into a
// table named animals.
func animalSession(t *testing.T) *cas.Session {
	t.Helper()
	ctx := context.Background()
	srv := castest.Start(t)
	srv.AddImageDir("imagelib", "/data/animals", []string{"cat", "dog"}, 3)
	sess := castest.Dial(t, srv, "image")
	if _, err := sess.Do(ctx, "image.loadImages", cas.Values{
		"caslib": "imagelib",
		"casOut": cas.Table{Name: "animals"},
	}); err != nil {
		t.Fatal(err)
	}
	return sess
}

func TestScan(t *testing.T) {
	ctx := context.Background()
	sess := animalSession(t)
	scan := casio.NewScanner(sess, cas.Table{Name: "animals"},
		casio.Columns("_path_", "_label_"),
		casio.SortBy("_path_"),
	)
	var (
		paths  []string
		labels []string
	)
	var path, label string
	for scan.Scan(ctx, &path, &label) {
		paths = append(paths, path)
		labels = append(labels, label)
	}
	if err := scan.Err(); err != nil {
		t.Fatal(err)
	}
	wantPaths := []string{
		"cat/img000.png", "cat/img001.png", "cat/img002.png",
		"dog/img000.png", "dog/img001.png", "dog/img002.png",
	}
	if got := paths; !reflect.DeepEqual(got, wantPaths) {
		t.Errorf("got paths %v, want %v", got, wantPaths)
	}
	wantLabels := []string{"cat", "cat", "cat", "dog", "dog", "dog"}
	if got := labels; !reflect.DeepEqual(got, wantLabels) {
		t.Errorf("got labels %v, want %v", got, wantLabels)
	}
}

func TestScanPaging(t *testing.T) {
	ctx := context.Background()
	sess := animalSession(t)
	before := sess.Client().Stats()["actions.table"]
	scan := casio.NewScanner(sess, cas.Table{Name: "animals"},
		casio.Columns("_label_"),
		casio.PageSize(2),
	)
	n := 0
	var label string
	for scan.Scan(ctx, &label) {
		n++
	}
	if err := scan.Err(); err != nil {
		t.Fatal(err)
	}
	if got, want := n, 6; got != want {
		t.Errorf("got %d rows, want %d", got, want)
	}
	// Three full windows plus the empty one that detects the end.
	fetches := sess.Client().Stats()["actions.table"] - before
	if got, want := fetches, int64(4); got != want {
		t.Errorf("got %d fetches, want %d", got, want)
	}
}

func TestScanMaxRows(t *testing.T) {
	ctx := context.Background()
	sess := animalSession(t)
	scan := casio.NewScanner(sess, cas.Table{Name: "animals"},
		casio.Columns("_path_"),
		casio.PageSize(3),
		casio.MaxRows(4),
	)
	n := 0
	var path string
	for scan.Scan(ctx, &path) {
		n++
	}
	if err := scan.Err(); err != nil {
		t.Fatal(err)
	}
	if got, want := n, 4; got != want {
		t.Errorf("got %d rows, want %d", got, want)
	}
}

func TestScanWhere(t *testing.T) {
	ctx := context.Background()
	sess := animalSession(t)
	scan := casio.NewScanner(sess, cas.Table{Name: "animals"},
		casio.Columns("_label_"),
		casio.Where(`_label_ == "dog"`),
	)
	n := 0
	var label string
	for scan.Scan(ctx, &label) {
		if label != "dog" {
			t.Errorf("got label %q, want dog", label)
		}
		n++
	}
	if err := scan.Err(); err != nil {
		t.Fatal(err)
	}
	if got, want := n, 3; got != want {
		t.Errorf("got %d rows, want %d", got, want)
	}
}

func TestScanTypes(t *testing.T) {
	ctx := context.Background()
	srv := castest.Start(t)
	srv.AddFile("files", "metrics.csv", []byte("id,score,name\n1,0.5,a\n2,0.75,b\n"))
	sess := castest.Dial(t, srv)
	if _, err := sess.Do(ctx, "table.loadTable", cas.Values{
		"caslib": "files",
		"path":   "metrics.csv",
		"casOut": cas.Table{Name: "metrics"},
	}); err != nil {
		t.Fatal(err)
	}
	scan := casio.NewScanner(sess, cas.Table{Name: "metrics"}, casio.SortBy("id"))
	var (
		id    int64
		score float64
		name  string
	)
	if !scan.Scan(ctx, &id, &score, &name) {
		t.Fatalf("scan failed: %v", scan.Err())
	}
	if id != 1 || score != 0.5 || name != "a" {
		t.Errorf("got (%d, %v, %q), want (1, 0.5, a)", id, score, name)
	}

	// An integer cell does not scan into a bool.
	bad := casio.NewScanner(sess, cas.Table{Name: "metrics"}, casio.Columns("id"))
	var flag bool
	if bad.Scan(ctx, &flag) {
		t.Error("scan into bool succeeded, want failure")
	}
	if err := bad.Err(); !errors.Is(errors.Invalid, err) {
		t.Errorf("got %v, want Invalid", err)
	}
}

func TestScanBlob(t *testing.T) {
	ctx := context.Background()
	sess := animalSession(t)
	scan := casio.NewScanner(sess, cas.Table{Name: "animals"},
		casio.Columns("_image_", "_width_"),
		casio.MaxRows(1),
	)
	var (
		img   []byte
		width int64
	)
	if !scan.Scan(ctx, &img, &width) {
		t.Fatalf("scan failed: %v", scan.Err())
	}
	if !bytes.HasPrefix(img, []byte("\x89PNG")) {
		t.Errorf("blob does not look like a PNG (%d bytes)", len(img))
	}
	if got, want := width, int64(64); got != want {
		t.Errorf("got width %d, want %d", got, want)
	}
}

func TestScanWrongArity(t *testing.T) {
	ctx := context.Background()
	sess := animalSession(t)
	scan := casio.NewScanner(sess, cas.Table{Name: "animals"},
		casio.Columns("_path_", "_label_"),
	)
	var a, b, c string
	if scan.Scan(ctx, &a, &b, &c) {
		t.Error("scan with wrong arity succeeded, want failure")
	}
	if err := scan.Err(); !errors.Is(errors.Invalid, err) {
		t.Errorf("got %v, want Invalid", err)
	}
}

func TestScanEmptyTable(t *testing.T) {
	ctx := context.Background()
	srv := castest.Start(t)
	sess := castest.Dial(t, srv)
	if _, err := sess.Do(ctx, "table.upload", cas.Values{
		"casOut": cas.Table{Name: "empty"},
		"files":  []cas.Values{},
	}); err != nil {
		t.Fatal(err)
	}
	scan := casio.NewScanner(sess, cas.Table{Name: "empty"}, casio.Columns("_path_"))
	var path string
	if scan.Scan(ctx, &path) {
		t.Error("scan of empty table returned a row")
	}
	if err := scan.Err(); err != nil {
		t.Errorf("got %v, want nil after clean end", err)
	}
}

func TestScanMissingTable(t *testing.T) {
	ctx := context.Background()
	srv := castest.Start(t)
	sess := castest.Dial(t, srv)
	scan := casio.NewScanner(sess, cas.Table{Name: "nonesuch"})
	var v string
	if scan.Scan(ctx, &v) {
		t.Error("scan of missing table returned a row")
	}
	if err := scan.Err(); !errors.Is(errors.NotExist, err) {
		t.Errorf("got %v, want NotExist", err)
	}
}

func TestScanAll(t *testing.T) {
	ctx := context.Background()
	sess := animalSession(t)
	scan := casio.NewScanner(sess, cas.Table{Name: "animals"},
		casio.Columns("_path_", "_label_", "_width_"),
		casio.SortBy("_path_"),
	)
	var (
		paths  []string
		labels []string
		widths []int64
	)
	if err := casio.ScanAll(ctx, scan, &paths, &labels, &widths); err != nil {
		t.Fatal(err)
	}
	if got, want := len(paths), 6; got != want {
		t.Fatalf("got %d rows, want %d", got, want)
	}
	if got, want := paths[0], "cat/img000.png"; got != want {
		t.Errorf("got first path %q, want %q", got, want)
	}
	for i, w := range widths {
		if w != 64 {
			t.Errorf("row %d: got width %d, want 64", i, w)
		}
	}
}
