// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package sampling_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/cas"
	"github.com/grailbio/cas/castest"
	"github.com/grailbio/cas/sampling"
	"github.com/grailbio/cas/table"
)

// seedRows uploads n single-column rows so the sample size is easy to
// reason about.
func seedRows(t *testing.T, sess *cas.Session, n int) cas.Table {
	t.Helper()
	files := make([]table.File, n)
	for i := range files {
		files[i] = table.File{Path: fmt.Sprintf("r/%03d", i), Label: "r", Data: []byte{byte(i)}}
	}
	res, err := table.UploadFiles(context.Background(), sess, cas.Tbl("", "rows"), files)
	if err != nil {
		t.Fatalf("seed rows: %v", err)
	}
	return res.Table
}

func TestSRS(t *testing.T) {
	sess, _ := castest.StartSession(t, "sampling")
	tbl := seedRows(t, sess, 40)
	ctx := context.Background()
	res, err := sampling.SRS(ctx, sess, sampling.SRSParams{
		Table:   tbl,
		Percent: 25,
		Seed:    7,
		Out:     cas.Tbl("", "sample"),
	})
	if err != nil {
		t.Fatalf("srs: %v", err)
	}
	if got, want := res.Total, int64(40); got != want {
		t.Errorf("got %d total rows, want %d", got, want)
	}
	if got, want := res.Sampled, int64(10); got != want {
		t.Errorf("got %d sampled rows, want %d", got, want)
	}
	info, err := table.Info(ctx, sess, res.Table)
	if err != nil {
		t.Fatalf("info: %v", err)
	}
	if got, want := info.Rows, int64(10); got != want {
		t.Errorf("output has %d rows, want %d", got, want)
	}
}

func TestSRSSeeded(t *testing.T) {
	sess, _ := castest.StartSession(t, "sampling")
	tbl := seedRows(t, sess, 20)
	ctx := context.Background()
	draw := func(out string) []int64 {
		_, err := sampling.SRS(ctx, sess, sampling.SRSParams{
			Table:   tbl,
			Percent: 50,
			Seed:    3,
			Out:     cas.Tbl("", out),
		})
		if err != nil {
			t.Fatalf("srs into %s: %v", out, err)
		}
		tab, err := table.Fetch(ctx, sess, cas.Tbl("", out), table.SortBy("_id_"))
		if err != nil {
			t.Fatalf("fetch %s: %v", out, err)
		}
		ids := make([]int64, tab.NumRows())
		for i := range ids {
			ids[i] = tab.Int(i, "_id_")
		}
		return ids
	}
	first, second := draw("a"), draw("b")
	if len(first) != 10 {
		t.Fatalf("got %d rows, want 10", len(first))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("same seed drew different rows: %v vs %v", first, second)
		}
	}
}

func TestSRSPartition(t *testing.T) {
	sess, _ := castest.StartSession(t, "sampling")
	tbl := seedRows(t, sess, 30)
	ctx := context.Background()
	res, err := sampling.SRS(ctx, sess, sampling.SRSParams{
		Table:     tbl,
		Percent:   20,
		Seed:      1,
		Partition: true,
		Out:       cas.Tbl("", "split"),
	})
	if err != nil {
		t.Fatalf("srs: %v", err)
	}
	info, err := table.Info(ctx, sess, res.Table)
	if err != nil {
		t.Fatalf("info: %v", err)
	}
	if got, want := info.Rows, int64(30); got != want {
		t.Errorf("partitioned output has %d rows, want %d", got, want)
	}
	count := func(where string) int {
		tab, err := table.Fetch(ctx, sess, res.Table.WithWhere(where))
		if err != nil {
			t.Fatalf("fetch %q: %v", where, err)
		}
		return tab.NumRows()
	}
	sampled := count(sampling.PartIndCol + " == 1")
	rest := count(sampling.PartIndCol + " == 0")
	if got, want := sampled, 6; got != want {
		t.Errorf("got %d sampled rows, want %d", got, want)
	}
	if got, want := sampled+rest, 30; got != want {
		t.Errorf("indicator covers %d rows, want %d", got, want)
	}
}

func TestSRSBadPercent(t *testing.T) {
	sess, _ := castest.StartSession(t, "sampling")
	for _, pct := range []float64{0, -5, 150} {
		_, err := sampling.SRS(context.Background(), sess, sampling.SRSParams{
			Table:   cas.Tbl("", "rows"),
			Percent: pct,
			Out:     cas.Tbl("", "sample"),
		})
		if !errors.Is(errors.Invalid, err) {
			t.Errorf("percent %v: got %v, want Invalid", pct, err)
		}
	}
}
