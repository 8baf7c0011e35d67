// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package cas

import (
	"bytes"
	"encoding/json"
	"sort"
	"strconv"
	"strings"

	"github.com/grailbio/base/errors"
)

// Results holds an action's decoded results: a tree of scalars,
// nested Results, and result tables. Numbers are held as json.Number
// so that integer results survive the trip undamaged. Lookups are
// case insensitive, matching the engine's treatment of result keys;
// missing keys yield zero values, with OK variants for callers that
// need to distinguish absence.
type Results struct {
	elems map[string]interface{}
}

// decodeResults decodes the results portion of an action response
// envelope.
func decodeResults(raw json.RawMessage) (*Results, error) {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return &Results{}, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, errors.E(errors.Invalid, "decoding action results", err)
	}
	m, ok := v.(map[string]interface{})
	if !ok {
		return nil, errors.E(errors.Invalid, "action results are not an object")
	}
	r, ok := buildValue(m).(*Results)
	if !ok {
		// A top-level object carrying "_type": "table" is wrapped so
		// that callers always receive a Results tree.
		return &Results{elems: map[string]interface{}{"table": buildValue(m)}}, nil
	}
	return r, nil
}

// buildValue converts a decoded JSON value into its Results form,
// recognizing result tables by their "_type" marker.
func buildValue(v interface{}) interface{} {
	switch v := v.(type) {
	case map[string]interface{}:
		if t, ok := v["_type"].(string); ok && t == "table" {
			return buildTable(v)
		}
		elems := make(map[string]interface{}, len(v))
		for key, val := range v {
			elems[key] = buildValue(val)
		}
		return &Results{elems: elems}
	case []interface{}:
		for i := range v {
			v[i] = buildValue(v[i])
		}
		return v
	default:
		return v
	}
}

// Keys returns the result keys in sorted order.
func (r *Results) Keys() []string {
	if r == nil {
		return nil
	}
	keys := make([]string, 0, len(r.elems))
	for k := range r.elems {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Has tells whether the named result is present.
func (r *Results) Has(name string) bool {
	_, ok := r.lookup(name)
	return ok
}

// lookup finds a result by name, trying an exact match before
// falling back to a case-insensitive scan.
func (r *Results) lookup(name string) (interface{}, bool) {
	if r == nil || r.elems == nil {
		return nil, false
	}
	if v, ok := r.elems[name]; ok {
		return v, true
	}
	for k, v := range r.elems {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return nil, false
}

// Sub returns the named nested results. Missing or mistyped entries
// yield an empty Results, never nil, so access chains are safe.
func (r *Results) Sub(name string) *Results {
	if v, ok := r.lookup(name); ok {
		if sub, ok := v.(*Results); ok {
			return sub
		}
	}
	return &Results{}
}

// Table returns the named result table, or nil if it is absent.
func (r *Results) Table(name string) *ResultTable {
	if v, ok := r.lookup(name); ok {
		if t, ok := v.(*ResultTable); ok {
			return t
		}
	}
	return nil
}

// Tables returns the names of all result tables, sorted.
func (r *Results) Tables() []string {
	if r == nil {
		return nil
	}
	var names []string
	for k, v := range r.elems {
		if _, ok := v.(*ResultTable); ok {
			names = append(names, k)
		}
	}
	sort.Strings(names)
	return names
}

// Str returns the named string result, or "" if absent.
func (r *Results) Str(name string) string {
	s, _ := r.StrOK(name)
	return s
}

// StrOK returns the named string result and whether it was present.
func (r *Results) StrOK(name string) (string, bool) {
	v, ok := r.lookup(name)
	if !ok {
		return "", false
	}
	switch v := v.(type) {
	case string:
		return v, true
	case json.Number:
		return v.String(), true
	}
	return "", false
}

// Int returns the named integer result, or 0 if absent.
func (r *Results) Int(name string) int64 {
	n, _ := r.IntOK(name)
	return n
}

// IntOK returns the named integer result and whether it was present.
// Engine counts sometimes arrive as floats; those are truncated.
func (r *Results) IntOK(name string) (int64, bool) {
	v, ok := r.lookup(name)
	if !ok {
		return 0, false
	}
	return asInt(v)
}

// Float returns the named float result, or 0 if absent.
func (r *Results) Float(name string) float64 {
	f, _ := r.FloatOK(name)
	return f
}

// FloatOK returns the named float result and whether it was present.
func (r *Results) FloatOK(name string) (float64, bool) {
	v, ok := r.lookup(name)
	if !ok {
		return 0, false
	}
	return asFloat(v)
}

// Bool returns the named boolean result, or false if absent.
func (r *Results) Bool(name string) bool {
	b, _ := r.BoolOK(name)
	return b
}

// BoolOK returns the named boolean result and whether it was present.
func (r *Results) BoolOK(name string) (bool, bool) {
	v, ok := r.lookup(name)
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

// Column describes one column of a result table.
type Column struct {
	Name  string `json:"name"`
	Label string `json:"label,omitempty"`
	Type  string `json:"type,omitempty"`
}

// ResultTable is a tabular action result. Cells hold strings, bools,
// json.Number values, and nils.
type ResultTable struct {
	Name    string
	Label   string
	Columns []Column
	Rows    [][]interface{}
}

// buildTable decodes a result object marked "_type": "table".
func buildTable(m map[string]interface{}) *ResultTable {
	t := new(ResultTable)
	t.Name, _ = m["name"].(string)
	t.Label, _ = m["label"].(string)
	if cols, ok := m["columns"].([]interface{}); ok {
		t.Columns = make([]Column, 0, len(cols))
		for _, c := range cols {
			cm, ok := c.(map[string]interface{})
			if !ok {
				continue
			}
			var col Column
			col.Name, _ = cm["name"].(string)
			col.Label, _ = cm["label"].(string)
			col.Type, _ = cm["type"].(string)
			t.Columns = append(t.Columns, col)
		}
	}
	if rows, ok := m["rows"].([]interface{}); ok {
		t.Rows = make([][]interface{}, 0, len(rows))
		for _, r := range rows {
			cells, ok := r.([]interface{})
			if !ok {
				continue
			}
			t.Rows = append(t.Rows, cells)
		}
	}
	return t
}

// NumRows returns the number of rows in the table.
func (t *ResultTable) NumRows() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Col returns the index of the named column, matching case
// insensitively, or -1 if the table has no such column.
func (t *ResultTable) Col(name string) int {
	if t == nil {
		return -1
	}
	for i, c := range t.Columns {
		if strings.EqualFold(c.Name, name) {
			return i
		}
	}
	return -1
}

// cell returns the raw cell at (row, col), or nil when out of range.
func (t *ResultTable) cell(row int, col string) interface{} {
	i := t.Col(col)
	if i < 0 || row < 0 || row >= t.NumRows() || i >= len(t.Rows[row]) {
		return nil
	}
	return t.Rows[row][i]
}

// Str returns the cell at (row, col) as a string.
func (t *ResultTable) Str(row int, col string) string {
	switch v := t.cell(row, col).(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	}
	return ""
}

// Int returns the cell at (row, col) as an int64, truncating floats.
func (t *ResultTable) Int(row int, col string) int64 {
	n, _ := asInt(t.cell(row, col))
	return n
}

// Float returns the cell at (row, col) as a float64.
func (t *ResultTable) Float(row int, col string) float64 {
	f, _ := asFloat(t.cell(row, col))
	return f
}

// asInt coerces a decoded JSON value to an int64.
func asInt(v interface{}) (int64, bool) {
	switch v := v.(type) {
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n, true
		}
		if f, err := v.Float64(); err == nil {
			return int64(f), true
		}
	case string:
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n, true
		}
	}
	return 0, false
}

// asFloat coerces a decoded JSON value to a float64.
func asFloat(v interface{}) (float64, bool) {
	switch v := v.(type) {
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return f, true
		}
	case string:
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f, true
		}
	}
	return 0, false
}
