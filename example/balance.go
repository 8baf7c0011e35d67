// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package example

import (
	"context"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/cas"
	"github.com/grailbio/cas/casimage"
)

// LabelBalance reports the ratio between the largest and smallest
// label counts of an image table. A balanced table scores 1. We use
// this trivial helper to illustrate testing against the engine
// double; see balance_test.go.
func LabelBalance(ctx context.Context, sess *cas.Session, tbl cas.Table) (float64, error) {
	sum, err := casimage.Summarize(ctx, sess, tbl)
	if err != nil {
		return 0, err
	}
	if len(sum.Labels) == 0 {
		return 0, errors.E(errors.Invalid, "table "+tbl.String()+" has no labels")
	}
	min, max := sum.Labels[0].Count, sum.Labels[0].Count
	for _, lc := range sum.Labels[1:] {
		if lc.Count < min {
			min = lc.Count
		}
		if lc.Count > max {
			max = lc.Count
		}
	}
	return float64(max) / float64(min), nil
}
