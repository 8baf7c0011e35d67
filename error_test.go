// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package cas

import (
	"testing"

	"github.com/grailbio/base/errors"
)

func TestDispositionErr(t *testing.T) {
	for _, c := range []struct {
		reason string
		kind   errors.Kind
	}{
		{"notFound", errors.NotExist},
		{"exists", errors.Exists},
		{"invalidParameter", errors.Invalid},
		{"typeMismatch", errors.Invalid},
		{"failedPrecondition", errors.Invalid},
		{"notAuthorized", errors.NotAllowed},
		{"notLoaded", errors.NotSupported},
		{"unknownAction", errors.NotSupported},
		{"resourceLimit", errors.OOM},
		{"aborted", errors.Canceled},
		{"somethingNew", errors.Other},
	} {
		d := Disposition{Severity: 2, Reason: c.reason, Status: "bad"}
		err := d.Err("image.loadImages")
		if err == nil {
			t.Fatalf("%s: no error", c.reason)
		}
		if !errors.Is(c.kind, err) {
			t.Errorf("%s: error %v does not have kind %v", c.reason, err, c.kind)
		}
	}
}

func TestDispositionOK(t *testing.T) {
	for _, d := range []Disposition{
		{},
		{Severity: 1, Reason: "warnings", Status: "completed with warnings"},
	} {
		if !d.OK() {
			t.Errorf("disposition %v not OK", d)
		}
		if err := d.Err("table.tableInfo"); err != nil {
			t.Errorf("disposition %v produced error %v", d, err)
		}
	}
}

func TestDispositionFatal(t *testing.T) {
	d := Disposition{Severity: 2, Reason: "aborted", Status: "session terminated", Fatal: true}
	err := d.Err("deepLearn.dlTrain")
	if err == nil {
		t.Fatal("no error")
	}
	if got, want := errors.Recover(err).Severity, errors.Fatal; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

// Fatal errors are not retriable, no matter their kind.
func TestFatalNotTemporary(t *testing.T) {
	d := Disposition{Severity: 2, Reason: "network", Status: "node lost", Fatal: true}
	if errors.IsTemporary(d.Err("table.loadTable")) {
		t.Error("fatal error reported temporary")
	}
}
