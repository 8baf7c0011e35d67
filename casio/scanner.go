// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package casio provides streaming readback of server tables.
// It hides the engine's windowed fetch convention behind a
// row-at-a-time scanner.
package casio

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"reflect"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/cas"
)

// defaultPageSize is the fetch window used when the caller does not
// choose one. Row payloads are small (paths, labels, metrics);
// images are the exception, and callers that scan image blobs
// typically shrink the page.
const defaultPageSize = 1000

// A Scanner provides a convenient interface for reading rows back
// from a server table. Successive calls to Scan return the next row.
// Rows are fetched in pages through the engine's table.fetch action;
// the scanner issues the next fetch only when the current page is
// exhausted. Scanning stops when no more rows are available or if an
// error is encountered. Scan returns true while it's safe to
// continue scanning. When scanning is complete, the user should
// inspect the scanner's error to see if scanning stopped at the end
// of the table or because an RPC failed.
type Scanner struct {
	sess *cas.Session
	tbl  cas.Table

	cols     []string
	sortBy   []string
	pageSize int
	maxRows  int

	err     error
	started bool
	done    bool
	page    *cas.ResultTable
	row     int // next row within page
	scanned int // rows returned so far
	from    int // next window start, 1-based
}

// An Option configures a Scanner.
type Option func(*Scanner)

// Columns restricts the scan to the named columns, in the given
// order. Scan destinations bind to columns by position.
func Columns(cols ...string) Option {
	return func(s *Scanner) {
		s.cols = cols
	}
}

// Where restricts the scan to rows matching the given filter
// expression.
func Where(where string) Option {
	return func(s *Scanner) {
		s.tbl.Where = where
	}
}

// SortBy orders the scan by the named columns, ascending. Unsorted
// scans return rows in engine order, which is stable for a given
// table but otherwise unspecified.
func SortBy(cols ...string) Option {
	return func(s *Scanner) {
		s.sortBy = cols
	}
}

// PageSize sets the number of rows fetched per RPC.
func PageSize(n int) Option {
	if n <= 0 {
		panic("casio.PageSize: n <= 0")
	}
	return func(s *Scanner) {
		s.pageSize = n
	}
}

// MaxRows bounds the total number of rows scanned. The scanner never
// fetches past the bound.
func MaxRows(n int) Option {
	if n <= 0 {
		panic("casio.MaxRows: n <= 0")
	}
	return func(s *Scanner) {
		s.maxRows = n
	}
}

// NewScanner returns a scanner that reads rows from the given table
// in the given session.
func NewScanner(sess *cas.Session, tbl cas.Table, opts ...Option) *Scanner {
	s := &Scanner{
		sess:     sess,
		tbl:      tbl,
		pageSize: defaultPageSize,
		from:     1,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scan reads the next row into the provided destinations, bound to
// the scanned columns by position. Destinations must be pointers of
// type *string, *int64, *float64, *bool, or *[]byte; blob cells
// arrive base64-coded and are decoded into *[]byte destinations.
// Scan returns true while no errors are encountered and there remain
// rows to be scanned.
func (s *Scanner) Scan(ctx context.Context, out ...interface{}) bool {
	if s.err != nil {
		return false
	}
	if s.maxRows > 0 && s.scanned >= s.maxRows {
		return false
	}
	if !s.started {
		s.started = true
		if len(s.cols) > 0 {
			s.tbl.Vars = s.cols
		}
	}
	for s.page == nil || s.row >= s.page.NumRows() {
		if s.done {
			return false
		}
		if !s.fetch(ctx) {
			return false
		}
	}
	ncol := len(s.page.Columns)
	if len(out) != ncol {
		s.err = errors.E(errors.Invalid,
			fmt.Sprintf("scan %s: wrong arity: table has %d columns, got %d destinations", s.tbl, ncol, len(out)))
		return false
	}
	for i, dst := range out {
		if err := assign(dst, s.page.Rows[s.row][i]); err != nil {
			s.err = errors.E(fmt.Sprintf("scan %s: column %s", s.tbl, s.page.Columns[i].Name), err)
			return false
		}
	}
	s.row++
	s.scanned++
	return true
}

// fetch retrieves the next window of rows. It reports whether any
// rows were fetched.
func (s *Scanner) fetch(ctx context.Context) bool {
	to := s.from + s.pageSize - 1
	if s.maxRows > 0 && to > s.maxRows {
		to = s.maxRows
	}
	if to < s.from {
		s.done = true
		return false
	}
	params := cas.Values{
		"table": s.tbl,
		"from":  s.from,
		"to":    to,
	}
	if len(s.sortBy) > 0 {
		params["sortBy"] = s.sortBy
	}
	res, err := s.sess.Do(ctx, "table.fetch", params)
	if err != nil {
		s.err = err
		return false
	}
	page := res.Table("Fetch")
	if page == nil {
		s.err = errors.E(errors.Invalid, fmt.Sprintf("scan %s: no Fetch table in results", s.tbl))
		return false
	}
	s.page = page
	s.row = 0
	if page.NumRows() < to-s.from+1 {
		// Short window: the table is exhausted.
		s.done = true
	}
	s.from = to + 1
	if page.NumRows() == 0 {
		s.done = true
		return false
	}
	return true
}

// Err returns any error that occurred while scanning. Err returns
// nil when scanning stopped at the end of the table.
func (s *Scanner) Err() error {
	return s.err
}

// Close marks the scanner exhausted. It never disturbs a scan error
// already recorded. Fetches are stateless on the engine, so there is
// nothing to release server-side.
func (s *Scanner) Close() error {
	s.done = true
	s.page = nil
	return s.err
}

// assign stores a fetched cell into a scan destination.
func assign(dst interface{}, cell interface{}) error {
	switch d := dst.(type) {
	case *string:
		if cell == nil {
			*d = ""
			return nil
		}
		*d = fmt.Sprint(cell)
	case *int64:
		n, ok := cellInt(cell)
		if !ok {
			return errors.E(errors.Invalid, fmt.Sprintf("cell %v is not an integer", cell))
		}
		*d = n
	case *float64:
		f, ok := cellFloat(cell)
		if !ok {
			return errors.E(errors.Invalid, fmt.Sprintf("cell %v is not a number", cell))
		}
		*d = f
	case *bool:
		b, ok := cell.(bool)
		if !ok {
			return errors.E(errors.Invalid, fmt.Sprintf("cell %v is not a boolean", cell))
		}
		*d = b
	case *[]byte:
		if cell == nil {
			*d = nil
			return nil
		}
		enc, ok := cell.(string)
		if !ok {
			return errors.E(errors.Invalid, fmt.Sprintf("blob cell has type %T", cell))
		}
		b, err := base64.StdEncoding.DecodeString(enc)
		if err != nil {
			return errors.E(errors.Invalid, "bad blob cell", err)
		}
		*d = b
	default:
		return errors.E(errors.Invalid, fmt.Sprintf("unsupported destination type %T", dst))
	}
	return nil
}

// cellInt coerces a fetched cell to an integer. Numeric cells arrive
// as json.Number; a float-typed cell qualifies only when it carries
// an integral value.
func cellInt(cell interface{}) (int64, bool) {
	switch c := cell.(type) {
	case json.Number:
		if n, err := c.Int64(); err == nil {
			return n, true
		}
		if f, err := c.Float64(); err == nil && f == math.Trunc(f) {
			return int64(f), true
		}
	case int64:
		return c, true
	case float64:
		if c == math.Trunc(c) {
			return int64(c), true
		}
	}
	return 0, false
}

func cellFloat(cell interface{}) (float64, bool) {
	switch c := cell.(type) {
	case json.Number:
		if f, err := c.Float64(); err == nil {
			return f, true
		}
	case float64:
		return c, true
	case int64:
		return float64(c), true
	}
	return 0, false
}

// ScanAll scans all remaining rows into the provided columns, which
// must be pointers to slices of supported destination types. For
// example, to read back a table of labeled paths:
//
//	var (
//		paths  []string
//		labels []string
//	)
//	err := casio.ScanAll(ctx, scan, &paths, &labels)
func ScanAll(ctx context.Context, scan *Scanner, cols ...interface{}) error {
	vs := make([]reflect.Value, len(cols))
	elemTypes := make([]reflect.Type, len(cols))
	for i := range vs {
		vs[i] = reflect.Indirect(reflect.ValueOf(cols[i]))
		vs[i].Set(vs[i].Slice(0, 0))
		elemTypes[i] = vs[i].Type().Elem()
	}
	args := make([]interface{}, len(cols))
	for n := 0; ; n++ {
		for i := range vs {
			vs[i].Set(reflect.Append(vs[i], reflect.Zero(elemTypes[i])))
			args[i] = vs[i].Index(n).Addr().Interface()
		}
		if !scan.Scan(ctx, args...) {
			for i := range vs {
				vs[i].Set(vs[i].Slice(0, n))
			}
			break
		}
	}
	return scan.Err()
}
