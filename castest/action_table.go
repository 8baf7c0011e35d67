// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package castest

import (
	"encoding/csv"
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/spaolacci/murmur3"
)

// knownSets are the action sets loadActionSet accepts.
var knownSets = map[string]string{
	"builtins":  "builtins",
	"session":   "session",
	"table":     "table",
	"sampling":  "sampling",
	"image":     "image",
	"deeplearn": "deepLearn",
	"astore":    "astore",
}

func actionLoadActionSet(e *engine, s *session, p params) *reply {
	name := p.str("actionSet", "")
	if name == "" {
		return fail("invalidParameter", "actionSet parameter is required")
	}
	canonical, known := knownSets[strings.ToLower(name)]
	if !known {
		return fail("notFound", "action set %q not found", name)
	}
	s.sets[strings.ToLower(name)] = true
	r := ok(map[string]interface{}{"actionset": canonical})
	return r.notef("added action set %q", canonical)
}

func actionListSessions(e *engine, s *session, p params) *reply {
	ids := make([]string, 0, len(e.sessions))
	for id := range e.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	rows := make([][]interface{}, len(ids))
	for i, id := range ids {
		sess := e.sessions[id]
		rows[i] = []interface{}{sess.id, sess.name, "connected"}
	}
	cols := []column{
		{"Uuid", typeString},
		{"Name", typeString},
		{"State", typeString},
	}
	return ok(map[string]interface{}{
		"Sessions": resultTable("Sessions", "Session List", cols, rows),
	})
}

func actionAddCaslib(e *engine, s *session, p params) *reply {
	name := p.str("name", "")
	dir := p.str("path", "")
	if name == "" || dir == "" {
		return fail("invalidParameter", "name and path parameters are required")
	}
	if _, exists := e.caslibs[strings.ToLower(name)]; exists {
		return fail("exists", "caslib %q already exists", name)
	}
	e.caslibs[strings.ToLower(name)] = &caslib{
		name:    name,
		path:    dir,
		subdirs: p.boolean("subdirectories", false),
	}
	if e.files[dir] == nil {
		e.files[dir] = make(map[string][]byte)
	}
	r := ok(map[string]interface{}{"caslib": name})
	return r.notef("added caslib %q", name)
}

func actionDropCaslib(e *engine, s *session, p params) *reply {
	name := p.str("caslib", p.str("name", ""))
	if name == "" {
		return fail("invalidParameter", "caslib parameter is required")
	}
	if _, exists := e.caslibs[strings.ToLower(name)]; !exists {
		return fail("notFound", "caslib %q not found", name)
	}
	delete(e.caslibs, strings.ToLower(name))
	return ok(map[string]interface{}{"caslib": name})
}

func actionCaslibInfo(e *engine, s *session, p params) *reply {
	filter := strings.ToLower(p.str("caslib", ""))
	names := make([]string, 0, len(e.caslibs))
	for name := range e.caslibs {
		if filter != "" && name != filter {
			continue
		}
		names = append(names, name)
	}
	if filter != "" && len(names) == 0 {
		return fail("notFound", "caslib %q not found", p.str("caslib", ""))
	}
	sort.Strings(names)
	rows := make([][]interface{}, len(names))
	for i, name := range names {
		lib := e.caslibs[name]
		subdirs := int64(0)
		if lib.subdirs {
			subdirs = 1
		}
		rows[i] = []interface{}{lib.name, lib.path, subdirs}
	}
	cols := []column{
		{"Name", typeString},
		{"Path", typeString},
		{"Subdirs", typeInt},
	}
	return ok(map[string]interface{}{
		"CASLibInfo": resultTable("CASLibInfo", "CASLib Information", cols, rows),
	})
}

func actionLoadTable(e *engine, s *session, p params) *reply {
	lib, found := e.lib(p.str("caslib", ""))
	if !found {
		return fail("notFound", "caslib %q not found", p.str("caslib", ""))
	}
	rel := p.str("path", "")
	if rel == "" {
		return fail("invalidParameter", "path parameter is required")
	}
	data, found := e.files[lib.path][rel]
	if !found {
		return fail("notFound", "file %q not found in caslib %q", rel, lib.name)
	}
	if !strings.EqualFold(path.Ext(rel), ".csv") {
		return fail("typeMismatch", "cannot load %q: only CSV files are supported", rel)
	}
	t, err := parseCSV(data)
	if err != nil {
		return fail("typeMismatch", "cannot parse %q: %v", rel, err)
	}
	out, given := p.tableRef("casOut")
	if !given || out.name == "" {
		base := path.Base(rel)
		out = tableRef{name: strings.TrimSuffix(base, path.Ext(base))}
	}
	if p.boolean("promote", false) {
		out.promote = true
	}
	e.put(s, out, t)
	r := ok(map[string]interface{}{
		"tableName":  out.name,
		"rowsLoaded": int64(len(t.rows)),
	})
	return r.notef("loaded %d rows from %q into %s", len(t.rows), rel, out)
}

// parseCSV builds a table from CSV bytes. Column types are inferred
// from the first data row: int64, then double, then varchar.
func parseCSV(data []byte) (*table, error) {
	records, err := csv.NewReader(strings.NewReader(string(data))).ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("empty file")
	}
	header, records := records[0], records[1:]
	cols := make([]column, len(header))
	for i, name := range header {
		cols[i] = column{name: name, typ: typeString}
		if len(records) > 0 {
			cell := records[0][i]
			if _, err := strconv.ParseInt(cell, 10, 64); err == nil {
				cols[i].typ = typeInt
			} else if _, err := strconv.ParseFloat(cell, 64); err == nil {
				cols[i].typ = typeDouble
			}
		}
	}
	rows := make([][]interface{}, len(records))
	for i, record := range records {
		row := make([]interface{}, len(cols))
		for j, cell := range record {
			switch cols[j].typ {
			case typeInt:
				v, err := strconv.ParseInt(cell, 10, 64)
				if err != nil {
					return nil, fmt.Errorf("row %d: bad int %q", i+1, cell)
				}
				row[j] = v
			case typeDouble:
				v, err := strconv.ParseFloat(cell, 64)
				if err != nil {
					return nil, fmt.Errorf("row %d: bad number %q", i+1, cell)
				}
				row[j] = v
			default:
				row[j] = cell
			}
		}
		rows[i] = row
	}
	return &table{cols: cols, rows: rows}, nil
}

func actionTableInfo(e *engine, s *session, p params) *reply {
	ref, given := p.tableRef("table")
	if !given {
		return fail("invalidParameter", "table parameter is required")
	}
	t, found := e.resolve(s, ref)
	if !found {
		return fail("notFound", "table %s not found", ref)
	}
	global := int64(0)
	if t.global {
		global = 1
	}
	infoCols := []column{
		{"Name", typeString},
		{"Rows", typeInt},
		{"Columns", typeInt},
		{"Bytes", typeInt},
		{"Global", typeInt},
	}
	infoRows := [][]interface{}{{
		t.name, int64(len(t.rows)), int64(len(t.cols)), t.bytes(), global,
	}}
	perNode := make([]int64, e.nodes)
	for _, node := range t.part {
		perNode[node]++
	}
	nodeRows := make([][]interface{}, e.nodes)
	for i, n := range perNode {
		nodeRows[i] = []interface{}{int64(i), n}
	}
	nodeCols := []column{{"Node", typeInt}, {"Rows", typeInt}}
	return ok(map[string]interface{}{
		"TableInfo":  resultTable("TableInfo", "Table Information", infoCols, infoRows),
		"NodeCounts": resultTable("NodeCounts", "Rows by Node", nodeCols, nodeRows),
	})
}

func actionColumnInfo(e *engine, s *session, p params) *reply {
	ref, given := p.tableRef("table")
	if !given {
		return fail("invalidParameter", "table parameter is required")
	}
	t, found := e.resolve(s, ref)
	if !found {
		return fail("notFound", "table %s not found", ref)
	}
	rows := make([][]interface{}, len(t.cols))
	for i, c := range t.cols {
		width := int64(8)
		if c.typ == typeString || c.typ == typeBlob {
			width = 0
			for _, row := range t.rows {
				switch cell := row[i].(type) {
				case string:
					if int64(len(cell)) > width {
						width = int64(len(cell))
					}
				case []byte:
					if int64(len(cell)) > width {
						width = int64(len(cell))
					}
				}
			}
		}
		rows[i] = []interface{}{c.name, c.typ, width}
	}
	cols := []column{
		{"Column", typeString},
		{"Type", typeString},
		{"RawLength", typeInt},
	}
	return ok(map[string]interface{}{
		"ColumnInfo": resultTable("ColumnInfo", "Column Information", cols, rows),
	})
}

func actionDropTable(e *engine, s *session, p params) *reply {
	name := p.str("name", "")
	if name == "" {
		if ref, given := p.tableRef("table"); given {
			name = ref.name
		}
	}
	if name == "" {
		return fail("invalidParameter", "name parameter is required")
	}
	ref := tableRef{name: name, caslib: p.str("caslib", "")}
	if !e.drop(s, ref) {
		if p.boolean("quiet", false) {
			return ok(nil).notef("table %s not found; nothing dropped", ref)
		}
		return fail("notFound", "table %s not found", ref)
	}
	return ok(map[string]interface{}{"tableName": name})
}

func actionFetch(e *engine, s *session, p params) *reply {
	ref, given := p.tableRef("table")
	if !given {
		return fail("invalidParameter", "table parameter is required")
	}
	t, found := e.resolve(s, ref)
	if !found {
		return fail("notFound", "table %s not found", ref)
	}
	rows, r := filterRows(t, ref.where)
	if r != nil {
		return r
	}
	cols := t.cols
	if len(ref.vars) > 0 {
		idx := make([]int, len(ref.vars))
		cols = make([]column, len(ref.vars))
		for i, name := range ref.vars {
			j := t.col(name)
			if j < 0 {
				return fail("invalidParameter", "no column %q in table %s", name, ref)
			}
			idx[i] = j
			cols[i] = t.cols[j]
		}
		projected := make([][]interface{}, len(rows))
		for i, row := range rows {
			out := make([]interface{}, len(idx))
			for k, j := range idx {
				out[k] = row[j]
			}
			projected[i] = out
		}
		rows = projected
	}
	if by := p.strs("sortBy"); len(by) > 0 {
		rows = sortRows(cols, rows, by)
	}
	from := p.integer("from", 1)
	to := p.integer("to", len(rows))
	if from < 1 {
		from = 1
	}
	if to > len(rows) {
		to = len(rows)
	}
	window := [][]interface{}{}
	if from <= to {
		window = rows[from-1 : to]
	}
	return ok(map[string]interface{}{
		"Fetch": resultTable("Fetch", "Selected Rows from "+t.name, cols, window),
	})
}

func actionShuffle(e *engine, s *session, p params) *reply {
	ref, given := p.tableRef("table")
	if !given {
		return fail("invalidParameter", "table parameter is required")
	}
	t, found := e.resolve(s, ref)
	if !found {
		return fail("notFound", "table %s not found", ref)
	}
	out, given := p.tableRef("casOut")
	if !given || out.name == "" {
		return fail("invalidParameter", "casOut parameter is required")
	}
	shuffled := t.clone()
	// Deterministic permutation keyed by the output name.
	keys := make([]uint64, len(shuffled.rows))
	order := make([]int, len(shuffled.rows))
	for i := range shuffled.rows {
		keys[i] = murmur3.Sum64([]byte(fmt.Sprintf("%s:%d", out.name, i)))
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return keys[order[a]] < keys[order[b]] })
	rows := make([][]interface{}, len(order))
	for i, j := range order {
		rows[i] = shuffled.rows[j]
	}
	shuffled.rows = rows
	e.put(s, out, shuffled)
	return ok(map[string]interface{}{
		"tableName": out.name,
		"rows":      int64(len(rows)),
	})
}

func actionUpload(e *engine, s *session, p params) *reply {
	out, given := p.tableRef("casOut")
	if !given || out.name == "" {
		return fail("invalidParameter", "casOut parameter is required")
	}
	files, _ := p[lookupKey(p, "files")].([]interface{})
	cols := []column{
		{"_id_", typeInt},
		{"_path_", typeString},
		{"_label_", typeString},
		{"_data_", typeBlob},
		{"_size_", typeInt},
	}
	rows := make([][]interface{}, 0, len(files))
	for _, elem := range files {
		file, castOK := elem.(map[string]interface{})
		if !castOK {
			return fail("typeMismatch", "files entries must be objects")
		}
		fp := params(file)
		data := fp.blob("data")
		rows = append(rows, []interface{}{
			int64(len(rows) + 1),
			fp.str("path", ""),
			fp.str("label", ""),
			data,
			int64(len(data)),
		})
	}
	var t *table
	if existing, found := e.resolve(s, out); found && p.boolean("append", false) {
		t = existing
		for _, row := range rows {
			row[0] = int64(len(t.rows) + 1)
			t.rows = append(t.rows, row)
		}
		t.repartition(e.nodes)
	} else {
		t = &table{cols: cols, rows: rows}
		e.put(s, out, t)
	}
	r := ok(map[string]interface{}{
		"tableName": out.name,
		"files":     int64(len(files)),
		"rows":      int64(len(t.rows)),
	})
	return r.notef("uploaded %d files into %s", len(files), out)
}

func actionSRS(e *engine, s *session, p params) *reply {
	ref, given := p.tableRef("table")
	if !given {
		return fail("invalidParameter", "table parameter is required")
	}
	t, found := e.resolve(s, ref)
	if !found {
		return fail("notFound", "table %s not found", ref)
	}
	pct := p.num("samppct", 0)
	if pct <= 0 || pct > 100 {
		return fail("invalidParameter", "samppct must be in (0, 100], got %v", pct)
	}
	rows, r := filterRows(t, ref.where)
	if r != nil {
		return r
	}
	out, given := p.tableRef("casOut")
	if !given || out.name == "" {
		return fail("invalidParameter", "casOut parameter is required")
	}
	seed := int64(p.num("seed", 1))
	n := len(rows)
	k := int(float64(n)*pct/100 + 0.5)
	if k > n {
		k = n
	}
	// Rank rows by a seeded hash and take the k smallest.
	order := make([]int, n)
	keys := make([]uint64, n)
	for i := range rows {
		keys[i] = murmur3.Sum64([]byte(fmt.Sprintf("%s:%d:%d", strings.ToLower(t.name), seed, i)))
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return keys[order[a]] < keys[order[b]] })
	selected := make(map[int]bool, k)
	for _, i := range order[:k] {
		selected[i] = true
	}
	var sampled *table
	if p.boolean("partind", false) {
		sampled = &table{cols: append(append([]column{}, t.cols...), column{"_PartInd_", typeInt})}
		sampled.rows = make([][]interface{}, n)
		for i, row := range rows {
			ind := int64(0)
			if selected[i] {
				ind = 1
			}
			sampled.rows[i] = append(append([]interface{}{}, row...), ind)
		}
	} else {
		sampled = &table{cols: append([]column{}, t.cols...)}
		for i, row := range rows {
			if selected[i] {
				sampled.rows = append(sampled.rows, append([]interface{}{}, row...))
			}
		}
	}
	e.put(s, out, sampled)
	r2 := ok(map[string]interface{}{
		"NObs":    int64(n),
		"NSample": int64(k),
	})
	return r2.notef("sampled %d of %d rows into %s", k, n, out)
}
