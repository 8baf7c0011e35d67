// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package table wraps the engine's table action set: loading files
// into server tables, inspecting and dropping them, one-shot row
// fetches, and bulk upload of local files. Package casio provides the
// streaming form of readback.
package table

import (
	"context"
	"fmt"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/cas"
)

// LoadParams names a server-side file to load into a table.
type LoadParams struct {
	// Caslib is the data source library holding the file.
	Caslib string
	// Path is the file's path relative to the caslib root.
	Path string
	// Out names the output table. If empty, the engine derives the
	// name from the file name.
	Out cas.Table
	// Promote makes the output table visible to all sessions.
	Promote bool
}

// Load loads a server-side file into a table via table.loadTable.
func Load(ctx context.Context, sess *cas.Session, p LoadParams) (cas.Table, error) {
	params := cas.Values{
		"caslib": p.Caslib,
		"path":   p.Path,
	}
	if !p.Out.IsZero() {
		params["casOut"] = p.Out
	}
	if p.Promote {
		params["promote"] = true
	}
	res, err := sess.Do(ctx, "table.loadTable", params)
	if err != nil {
		return cas.Table{}, err
	}
	name, ok := res.StrOK("tableName")
	if !ok {
		return cas.Table{}, errors.E(errors.Invalid, "table.loadTable: no tableName in results")
	}
	return cas.Table{Name: name, Caslib: p.Out.Caslib}, nil
}

// TableInfo describes a server table.
type TableInfo struct {
	Name    string
	Rows    int64
	Columns int64
	Bytes   int64
	Global  bool
}

// Info returns the table's row count, column count, and size.
func Info(ctx context.Context, sess *cas.Session, tbl cas.Table) (TableInfo, error) {
	res, err := sess.Do(ctx, "table.tableInfo", cas.Values{"table": tbl})
	if err != nil {
		return TableInfo{}, err
	}
	tab := res.Table("TableInfo")
	if tab == nil || tab.NumRows() == 0 {
		return TableInfo{}, errors.E(errors.Invalid, fmt.Sprintf("table info %s: no TableInfo table in results", tbl))
	}
	return TableInfo{
		Name:    tab.Str(0, "Name"),
		Rows:    tab.Int(0, "Rows"),
		Columns: tab.Int(0, "Columns"),
		Bytes:   tab.Int(0, "Bytes"),
		Global:  tab.Int(0, "Global") != 0,
	}, nil
}

// ColumnInfo describes one column of a server table.
type ColumnInfo struct {
	Name  string
	Type  string
	Width int64
}

// Columns returns the table's column layout.
func Columns(ctx context.Context, sess *cas.Session, tbl cas.Table) ([]ColumnInfo, error) {
	res, err := sess.Do(ctx, "table.columnInfo", cas.Values{"table": tbl})
	if err != nil {
		return nil, err
	}
	tab := res.Table("ColumnInfo")
	if tab == nil {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("column info %s: no ColumnInfo table in results", tbl))
	}
	cols := make([]ColumnInfo, tab.NumRows())
	for i := range cols {
		cols[i] = ColumnInfo{
			Name:  tab.Str(i, "Column"),
			Type:  tab.Str(i, "Type"),
			Width: tab.Int(i, "RawLength"),
		}
	}
	return cols, nil
}

// Drop removes a server table. Dropping a missing table is a
// NotExist error.
func Drop(ctx context.Context, sess *cas.Session, tbl cas.Table) error {
	params := cas.Values{"name": tbl.Name}
	if tbl.Caslib != "" {
		params["caslib"] = tbl.Caslib
	}
	_, err := sess.Do(ctx, "table.dropTable", params)
	return err
}

// DropIfExists removes a server table, tolerating its absence.
func DropIfExists(ctx context.Context, sess *cas.Session, tbl cas.Table) error {
	err := Drop(ctx, sess, tbl)
	if err != nil && errors.Is(errors.NotExist, err) {
		return nil
	}
	return err
}

// A FetchOpt adjusts a one-shot Fetch.
type FetchOpt func(cas.Values)

// From sets the 1-based first row of the fetch window.
func From(n int) FetchOpt {
	return func(p cas.Values) { p["from"] = n }
}

// To sets the 1-based last row (inclusive) of the fetch window.
func To(n int) FetchOpt {
	return func(p cas.Values) { p["to"] = n }
}

// SortBy orders fetched rows by the named columns, ascending.
func SortBy(cols ...string) FetchOpt {
	return func(p cas.Values) { p["sortBy"] = cols }
}

// Fetch retrieves a window of rows in one call. Restriction and
// projection ride on the table reference (Where, Vars); use
// casio.Scanner to stream tables larger than one window.
func Fetch(ctx context.Context, sess *cas.Session, tbl cas.Table, opts ...FetchOpt) (*cas.ResultTable, error) {
	params := cas.Values{"table": tbl}
	for _, opt := range opts {
		opt(params)
	}
	res, err := sess.Do(ctx, "table.fetch", params)
	if err != nil {
		return nil, err
	}
	tab := res.Table("Fetch")
	if tab == nil {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("fetch %s: no Fetch table in results", tbl))
	}
	return tab, nil
}

// Shuffle randomly redistributes the table's rows into out. The
// output row count equals the input's.
func Shuffle(ctx context.Context, sess *cas.Session, tbl, out cas.Table) error {
	_, err := sess.Do(ctx, "table.shuffle", cas.Values{
		"table":  tbl,
		"casOut": out,
	})
	return err
}
