// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package cas

import (
	"reflect"
	"testing"
)

const scoreResults = `{
	"ScoreInfo": {
		"_type": "table",
		"name": "ScoreInfo",
		"label": "Score information",
		"columns": [
			{"name": "Descr", "type": "string"},
			{"name": "Value", "type": "double"}
		],
		"rows": [
			["Number of Observations Used", 10000],
			["Misclassification Error (%)", 1.25]
		]
	},
	"epochs": 20,
	"loss": 0.0375,
	"converged": true,
	"Model": {"name": "lenet5", "parameters": 431080}
}`

func TestDecodeResults(t *testing.T) {
	res, err := decodeResults([]byte(scoreResults))
	if err != nil {
		t.Fatal(err)
	}
	if got, want := res.Int("epochs"), int64(20); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := res.Float("loss"), 0.0375; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := res.Bool("converged"), true; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := res.Sub("Model").Str("name"), "lenet5"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := res.Sub("Model").Int("parameters"), int64(431080); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	tab := res.Table("ScoreInfo")
	if tab == nil {
		t.Fatal("missing ScoreInfo table")
	}
	if got, want := tab.Label, "Score information"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := tab.NumRows(), 2; got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
	if got, want := tab.Str(0, "Descr"), "Number of Observations Used"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := tab.Int(0, "Value"), int64(10000); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := tab.Float(1, "value"), 1.25; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := res.Tables(), []string{"ScoreInfo"}; !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

// Result keys are matched case insensitively, the way engine clients
// traditionally treat them.
func TestLookupFold(t *testing.T) {
	res, err := decodeResults([]byte(`{"TableInfo": {"rowCount": 3}}`))
	if err != nil {
		t.Fatal(err)
	}
	if got, want := res.Sub("tableinfo").Int("ROWCOUNT"), int64(3); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if res.Has("nosuch") {
		t.Error("lookup invented a key")
	}
}

func TestMissingKeys(t *testing.T) {
	res, err := decodeResults([]byte(`{}`))
	if err != nil {
		t.Fatal(err)
	}
	if got, want := res.Str("x"), ""; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	if _, ok := res.IntOK("x"); ok {
		t.Error("IntOK reported a missing key present")
	}
	if res.Table("x") != nil {
		t.Error("Table invented a table")
	}
	// Chained access through missing subtrees is safe.
	if got, want := res.Sub("a").Sub("b").Int("c"), int64(0); got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestDecodeEmpty(t *testing.T) {
	for _, raw := range []string{"", "null"} {
		res, err := decodeResults([]byte(raw))
		if err != nil {
			t.Fatal(err)
		}
		if got, want := len(res.Keys()), 0; got != want {
			t.Errorf("got %v, want %v", got, want)
		}
	}
}

func TestDecodeMalformed(t *testing.T) {
	for _, raw := range []string{"[1, 2]", `"scalar"`, "{bad"} {
		if _, err := decodeResults([]byte(raw)); err == nil {
			t.Errorf("decode of %q did not fail", raw)
		}
	}
}

func TestTableCol(t *testing.T) {
	tab := &ResultTable{
		Columns: []Column{{Name: "_id_"}, {Name: "_label_"}},
		Rows:    [][]interface{}{{"0", "cat"}},
	}
	if got, want := tab.Col("_LABEL_"), 1; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := tab.Col("missing"), -1; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := tab.Str(0, "_label_"), "cat"; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := tab.Str(5, "_label_"), ""; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
