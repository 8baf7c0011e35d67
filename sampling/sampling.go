// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package sampling wraps the engine's sampling action set. Simple
// random sampling is the usual way to carve a validation split out of
// a training table.
package sampling

import (
	"context"
	"fmt"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/cas"
)

// PartIndCol is the partition indicator column written by SRS when
// Partition is set: 1 marks sampled rows, 0 the rest. Filter
// expressions must spell it exactly; the engine matches filter
// columns case sensitively.
const PartIndCol = "_PartInd_"

// SRSParams configures a simple random sample.
type SRSParams struct {
	// Table is the input.
	Table cas.Table
	// Percent is the sample size as a percentage of the input rows,
	// in (0, 100].
	Percent float64
	// Seed fixes the sample. Zero means seed 1.
	Seed int64
	// Partition keeps every input row and appends the PartIndCol
	// indicator instead of subsetting.
	Partition bool
	// Out names the output table.
	Out cas.Table
}

// SRSResult reports the realized sample.
type SRSResult struct {
	// Table is the output table.
	Table cas.Table
	// Sampled is the number of rows drawn.
	Sampled int64
	// Total is the number of input rows considered.
	Total int64
}

// SRS draws a seeded simple random sample of the input table via
// sampling.srs. With Partition set, the output holds all input rows
// plus the indicator column, so the draw can serve as a train and
// validation split of a single table.
func SRS(ctx context.Context, sess *cas.Session, p SRSParams) (*SRSResult, error) {
	if p.Percent <= 0 || p.Percent > 100 {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("srs %s: percent %v outside (0, 100]", p.Table, p.Percent))
	}
	if p.Out.IsZero() {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("srs %s: no output table", p.Table))
	}
	params := cas.Values{
		"table":   p.Table,
		"samppct": p.Percent,
		"casOut":  p.Out,
	}
	if p.Seed != 0 {
		params["seed"] = p.Seed
	}
	if p.Partition {
		params["partind"] = true
	}
	res, err := sess.Do(ctx, "sampling.srs", params)
	if err != nil {
		return nil, err
	}
	return &SRSResult{
		Table:   p.Out,
		Sampled: res.Int("NSample"),
		Total:   res.Int("NObs"),
	}, nil
}
