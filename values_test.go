// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package cas

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"
	"time"

	fuzz "github.com/google/gofuzz"
)

func TestNormalize(t *testing.T) {
	v := Values{
		"table":   Table{Name: "faces", Caslib: "imagelib"},
		"height":  224,
		"flip":    true,
		"drop":    nil,
		"empty":   Values{},
		"nested":  Values{"seed": 42, "none": nil},
		"timeout": 30 * time.Second,
		"cols":    []string{"_id_", "_label_"},
	}
	m, err := v.normalize()
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := m["drop"]; ok {
		t.Error("nil entry survived normalization")
	}
	if _, ok := m["empty"]; ok {
		t.Error("empty nested values survived normalization")
	}
	wantTable := map[string]interface{}{"name": "faces", "caslib": "imagelib"}
	if got := m["table"]; !reflect.DeepEqual(got, wantTable) {
		t.Errorf("got %v, want %v", got, wantTable)
	}
	if got, want := m["timeout"], 30.0; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	nested, ok := m["nested"].(map[string]interface{})
	if !ok {
		t.Fatalf("nested values have type %T", m["nested"])
	}
	if _, ok := nested["none"]; ok {
		t.Error("nil nested entry survived normalization")
	}
	if got, want := nested["seed"], 42; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestNormalizeEmpty(t *testing.T) {
	for _, v := range []Values{nil, {}} {
		m, err := v.normalize()
		if err != nil {
			t.Fatal(err)
		}
		b, err := json.Marshal(m)
		if err != nil {
			t.Fatal(err)
		}
		if got, want := string(b), "{}"; got != want {
			t.Errorf("got %v, want %v", got, want)
		}
	}
}

// Integer parameters must survive encoding as integers: engines
// distinguish 500 from 500.0 for parameters like numNeurons.
func TestNormalizeIntegers(t *testing.T) {
	m, err := Values{"nFilters": 20, "width": int64(5)}.normalize()
	if err != nil {
		t.Fatal(err)
	}
	b, err := json.Marshal(m)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{`"nFilters":20`, `"width":5`} {
		if !strings.Contains(string(b), want) {
			t.Errorf("marshaled parameters %s do not contain %s", b, want)
		}
	}
}

func TestNormalizeTableList(t *testing.T) {
	v := Values{
		"model": []Values{
			{"table": Table{Name: "lenet5"}},
			{"table": Table{Name: "vgg16", Caslib: "models"}},
		},
	}
	m, err := v.normalize()
	if err != nil {
		t.Fatal(err)
	}
	list, ok := m["model"].([]interface{})
	if !ok {
		t.Fatalf("model has type %T", m["model"])
	}
	if got, want := len(list), 2; got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestNormalizeBadValue(t *testing.T) {
	_, err := Values{"ch": make(chan int)}.normalize()
	if err == nil {
		t.Fatal("expected error for unsupported parameter type")
	}
}

// Normalization is idempotent and does not mutate its receiver.
func TestNormalizeFuzz(t *testing.T) {
	const N = 50
	fz := fuzz.New()
	fz.NilChance(0)
	fz.NumElements(N, N)
	var (
		strs map[string]string
		nums map[string]float64
		ints map[string]int64
	)
	fz.Fuzz(&strs)
	fz.Fuzz(&nums)
	fz.Fuzz(&ints)
	v := make(Values)
	for k, val := range strs {
		if k != "" {
			v[k] = val
		}
	}
	for k, val := range nums {
		if k != "" {
			v["f"+k] = val
		}
	}
	for k, val := range ints {
		if k != "" {
			v["i"+k] = val
		}
	}
	orig := make(Values, len(v))
	for k, val := range v {
		orig[k] = val
	}
	m1, err := v.normalize()
	if err != nil {
		t.Fatal(err)
	}
	m2, err := v.normalize()
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(m1, m2) {
		t.Error("normalization is not deterministic")
	}
	if !reflect.DeepEqual(v, orig) {
		t.Error("normalization mutated its receiver")
	}
}

func TestMerged(t *testing.T) {
	base := Values{"height": 224, "width": 224}
	v := base.Merged(Values{"width": 112, "channels": 3})
	if got, want := v["height"], 224; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := v["width"], 112; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := base["width"], 224; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestTableString(t *testing.T) {
	for _, c := range []struct {
		tbl  Table
		want string
	}{
		{Table{Name: "faces"}, "faces"},
		{Table{Name: "faces", Caslib: "imagelib"}, "imagelib.faces"},
		{Table{Name: "faces", Caslib: "imagelib", Where: `_label_="cat"`}, `imagelib.faces[_label_="cat"]`},
	} {
		if got, want := c.tbl.String(), c.want; got != want {
			t.Errorf("got %v, want %v", got, want)
		}
	}
}
