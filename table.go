// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package cas

// Table names an in-memory table held by the server. A Table is a
// reference, not data: operations that accept a Table put only its
// coordinates (caslib, name, and any row or column restriction) on
// the wire. Tables are created by load and ingest operations and
// consumed as action parameters.
type Table struct {
	// Name is the table's name within its caslib.
	Name string
	// Caslib is the caslib holding the table. Empty means the
	// session's active caslib.
	Caslib string
	// Where optionally restricts the rows seen by actions that
	// accept a filtered table reference.
	Where string
	// Vars optionally restricts the columns seen by actions that
	// accept a projected table reference.
	Vars []string
}

// Tbl returns a reference to the named table in the given caslib.
// It is shorthand for constructing a Table literal.
func Tbl(caslib, name string) Table {
	return Table{Name: name, Caslib: caslib}
}

// IsZero tells whether t is the zero reference.
func (t Table) IsZero() bool {
	return t.Name == "" && t.Caslib == "" && t.Where == "" && len(t.Vars) == 0
}

// WithWhere returns a copy of t restricted by the given filter
// expression.
func (t Table) WithWhere(where string) Table {
	t.Where = where
	return t
}

// WithVars returns a copy of t projected to the given columns.
func (t Table) WithVars(vars ...string) Table {
	t.Vars = vars
	return t
}

// String renders t as caslib.name[where] for logs and status lines.
func (t Table) String() string {
	s := t.Name
	if t.Caslib != "" {
		s = t.Caslib + "." + s
	}
	if t.Where != "" {
		s += "[" + t.Where + "]"
	}
	return s
}

// wire returns the parameter tree form of the reference.
func (t Table) wire() map[string]interface{} {
	m := map[string]interface{}{"name": t.Name}
	if t.Caslib != "" {
		m["caslib"] = t.Caslib
	}
	if t.Where != "" {
		m["where"] = t.Where
	}
	if len(t.Vars) > 0 {
		m["vars"] = t.Vars
	}
	return m
}
