// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package castest

import (
	"github.com/google/cel-go/cel"
)

// filterRows applies a where clause to t's rows and returns the
// matching rows. The double evaluates where clauses as CEL
// expressions over the table's columns, each column bound as a
// variable, so tests write clauses like `_label_ == "cat"` or
// `_width_ >= 64`. An empty clause matches everything.
func filterRows(t *table, where string) ([][]interface{}, *reply) {
	if where == "" {
		return t.rows, nil
	}
	opts := make([]cel.EnvOption, len(t.cols))
	for i, c := range t.cols {
		opts[i] = cel.Variable(c.name, cel.DynType)
	}
	env, err := cel.NewEnv(opts...)
	if err != nil {
		return nil, fail("invalidParameter", "where clause: %v", err)
	}
	ast, issues := env.Compile(where)
	if issues != nil && issues.Err() != nil {
		return nil, fail("invalidParameter", "where clause %q: %v", where, issues.Err())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fail("invalidParameter", "where clause %q: %v", where, err)
	}
	var rows [][]interface{}
	activation := make(map[string]interface{}, len(t.cols))
	for _, row := range t.rows {
		for i, c := range t.cols {
			activation[c.name] = row[i]
		}
		out, _, err := prg.Eval(activation)
		if err != nil {
			return nil, fail("invalidParameter", "where clause %q: %v", where, err)
		}
		keep, isBool := out.Value().(bool)
		if !isBool {
			return nil, fail("typeMismatch", "where clause %q is not boolean", where)
		}
		if keep {
			rows = append(rows, row)
		}
	}
	return rows, nil
}
