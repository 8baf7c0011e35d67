// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package castest

import (
	"bytes"
	"encoding/json"
)

// astoreOf resolves an action's store parameter to its decoded state.
func astoreOf(e *engine, s *session, p params) (*table, astoreState, *reply) {
	ref, given := p.tableRef("store")
	if !given || ref.name == "" {
		return nil, astoreState{}, fail("invalidParameter", "store parameter is required")
	}
	t, found := e.resolve(s, ref)
	if !found {
		return nil, astoreState{}, fail("notFound", "astore table %s not found", ref)
	}
	state, r := decodeAstore(t)
	if r != nil {
		return nil, astoreState{}, r
	}
	return t, state, nil
}

func decodeAstore(t *table) (astoreState, *reply) {
	if t.blob == nil || !bytes.HasPrefix(t.blob, []byte(astoreMagic)) {
		return astoreState{}, fail("typeMismatch", "table %s is not an astore table", t.name)
	}
	var state astoreState
	if err := json.Unmarshal(t.blob[len(astoreMagic):], &state); err != nil {
		return astoreState{}, fail("typeMismatch", "astore table %s is corrupt: %v", t.name, err)
	}
	return state, nil
}

func actionAstoreDescribe(e *engine, s *session, p params) *reply {
	t, state, r := astoreOf(e, s, p)
	if r != nil {
		return r
	}
	inputRows := make([][]interface{}, len(state.Inputs))
	for i, name := range state.Inputs {
		inputRows[i] = []interface{}{name, typeBlob}
	}
	outputRows := [][]interface{}{
		{state.Target, typeString},
		{"_DL_PredName_", typeString},
		{"_DL_PredP_", typeDouble},
	}
	varCols := []column{{"Name", typeString}, {"Type", typeString}}
	return ok(map[string]interface{}{
		"InputVariables":  resultTable("InputVariables", "Input Variables", varCols, inputRows),
		"OutputVariables": resultTable("OutputVariables", "Output Variables", varCols, outputRows),
		"model":           state.Model,
		"classes":         int64(state.Classes),
		"bytes":           int64(len(t.blob)),
		"created":         state.Created,
	})
}

func actionAstoreScore(e *engine, s *session, p params) *reply {
	t, state, r := astoreOf(e, s, p)
	if r != nil {
		return r
	}
	// Scoring through the astore uses the same metadata the weights
	// carried at export time.
	return scoreWith(e, s, p, t.meta, map[string]string{
		"model":  state.Model,
		"target": state.Target,
	})
}

func actionAstoreDownload(e *engine, s *session, p params) *reply {
	t, _, r := astoreOf(e, s, p)
	if r != nil {
		return r
	}
	return ok(map[string]interface{}{
		"blob":  t.blob,
		"bytes": int64(len(t.blob)),
	})
}

func actionAstoreUpload(e *engine, s *session, p params) *reply {
	out, given := p.tableRef("casOut")
	if !given || out.name == "" {
		return fail("invalidParameter", "casOut parameter is required")
	}
	blob := p.blob("blob")
	if len(blob) == 0 {
		return fail("invalidParameter", "blob parameter is required")
	}
	if !bytes.HasPrefix(blob, []byte(astoreMagic)) {
		return fail("typeMismatch", "blob is not an astore")
	}
	var state astoreState
	if err := json.Unmarshal(blob[len(astoreMagic):], &state); err != nil {
		return fail("typeMismatch", "astore blob is corrupt: %v", err)
	}
	t := &table{
		cols: []column{{"_state_", typeBlob}},
		rows: [][]interface{}{{blob}},
		blob: blob,
	}
	t.meta = map[string]float64{
		"loss":       state.Loss,
		"validError": state.ValidError,
		"classes":    float64(state.Classes),
	}
	t.attrs = map[string]string{"model": state.Model, "target": state.Target}
	e.put(s, out, t)
	r2 := ok(map[string]interface{}{
		"tableName": out.name,
		"bytes":     int64(len(blob)),
	})
	return r2.notef("uploaded astore %s (%d bytes)", out, len(blob))
}
