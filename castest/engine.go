// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package castest

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/grailbio/cas/stats"
	"github.com/spaolacci/murmur3"
)

// Column types reported by the double.
const (
	typeInt    = "int64"
	typeDouble = "double"
	typeString = "varchar"
	typeBlob   = "varbinary"
)

// column describes one column of an engine table.
type column struct {
	name string
	typ  string
}

// table is an in-memory engine table. Rows are cell slices aligned
// with cols; part assigns each row to a fake worker node. Tables
// created by model and training actions carry extra state: the layer
// graph for model tables, curve metadata for weights tables, and the
// serialized payload for astore tables.
type table struct {
	name   string
	caslib string
	cols   []column
	rows   [][]interface{}
	part   []int
	global bool

	model *modelDef
	meta  map[string]float64
	attrs map[string]string
	blob  []byte
}

func (t *table) col(name string) int {
	for i, c := range t.cols {
		if strings.EqualFold(c.name, name) {
			return i
		}
	}
	return -1
}

// clone returns a deep-enough copy of t for derive-style actions:
// fresh row and partition slices over the same immutable cells.
func (t *table) clone() *table {
	n := &table{
		name:   t.name,
		caslib: t.caslib,
		cols:   append([]column{}, t.cols...),
		rows:   make([][]interface{}, len(t.rows)),
		part:   append([]int{}, t.part...),
	}
	for i, r := range t.rows {
		n.rows[i] = append([]interface{}{}, r...)
	}
	if t.meta != nil {
		n.meta = make(map[string]float64, len(t.meta))
		for k, v := range t.meta {
			n.meta[k] = v
		}
	}
	if t.attrs != nil {
		n.attrs = make(map[string]string, len(t.attrs))
		for k, v := range t.attrs {
			n.attrs[k] = v
		}
	}
	return n
}

// bytes estimates the table's in-memory size the way tableInfo
// reports it.
func (t *table) bytes() int64 {
	var n int64
	for _, row := range t.rows {
		for _, cell := range row {
			switch c := cell.(type) {
			case string:
				n += int64(len(c))
			case []byte:
				n += int64(len(c))
			default:
				n += 8
			}
		}
	}
	return n
}

// repartition assigns rows to nodes by hashing the row key. The
// assignment is stable for a given table name and row count.
func (t *table) repartition(nodes int) {
	t.part = make([]int, len(t.rows))
	for i := range t.rows {
		key := fmt.Sprintf("%s:%d", strings.ToLower(t.name), i)
		t.part[i] = int(murmur3.Sum32([]byte(key)) % uint32(nodes))
	}
}

// tableRef names a table in action parameters.
type tableRef struct {
	name    string
	caslib  string
	where   string
	vars    []string
	promote bool
}

func (r tableRef) String() string {
	if r.caslib == "" {
		return r.name
	}
	return r.caslib + "." + r.name
}

// caslib is a named binding to a directory of the double's fake
// filesystem.
type caslib struct {
	name    string
	path    string
	subdirs bool
}

// session holds per-session engine state.
type session struct {
	id      string
	name    string
	created time.Time
	sets    map[string]bool
	tables  map[string]*table
	jobs    map[string]*job
	counts  *stats.Map
}

// engine is the double's core: registries guarded by one lock. The
// engine serializes all action execution, which matches the protocol
// contract that a session's actions are serialized server-side.
type engine struct {
	mu      sync.Mutex
	version string
	nodes   int
	token   string
	started time.Time

	// epochsPerPoll controls how many training epochs elapse per job
	// poll after the first. Tests that watch per-epoch progress set
	// it to 1; the default completes training on the second poll.
	epochsPerPoll int

	sessions map[string]*session
	globals  map[string]*table
	caslibs  map[string]*caslib
	files    map[string]map[string][]byte
	counts   *stats.Map
}

func newEngine() *engine {
	return &engine{
		version:  "castest 0.1",
		nodes:    4,
		started:  time.Now(),
		sessions: make(map[string]*session),
		globals:  make(map[string]*table),
		caslibs:  make(map[string]*caslib),
		files:    make(map[string]map[string][]byte),
		counts:   stats.NewMap(),
	}
}

func (e *engine) newSession(name string) *session {
	s := &session{
		id:      uuid.New().String(),
		name:    name,
		created: time.Now(),
		sets:    make(map[string]bool),
		tables:  make(map[string]*table),
		jobs:    make(map[string]*job),
		counts:  stats.NewMap(),
	}
	e.sessions[s.id] = s
	return s
}

// snapshot aggregates the engine's action counters with every
// session's, giving tests one view of everything that ran.
func (e *engine) snapshot() stats.Values {
	e.mu.Lock()
	defer e.mu.Unlock()
	vals := make(stats.Values)
	e.counts.AddAll(vals)
	for _, s := range e.sessions {
		s.counts.AddAll(vals)
	}
	return vals
}

// tableKey builds the case-insensitive registry key for a table
// reference. An empty caslib means the session-local default.
func tableKey(caslib, name string) string {
	if caslib == "" {
		caslib = "casuser"
	}
	return strings.ToLower(caslib) + "." + strings.ToLower(name)
}

// resolve finds the table named by ref, searching session tables
// first and promoted tables second.
func (e *engine) resolve(s *session, ref tableRef) (*table, bool) {
	key := tableKey(ref.caslib, ref.name)
	if t, ok := s.tables[key]; ok {
		return t, true
	}
	if t, ok := e.globals[key]; ok {
		return t, true
	}
	return nil, false
}

// put registers a table under its reference, honoring promotion.
// Creating a table over an existing name replaces it, matching how
// casOut references behave engine-side.
func (e *engine) put(s *session, ref tableRef, t *table) {
	t.name = ref.name
	t.caslib = ref.caslib
	t.global = ref.promote
	t.repartition(e.nodes)
	key := tableKey(ref.caslib, ref.name)
	if ref.promote {
		delete(s.tables, key)
		e.globals[key] = t
	} else {
		s.tables[key] = t
	}
}

// drop removes the table named by ref. It reports whether a table
// was removed.
func (e *engine) drop(s *session, ref tableRef) bool {
	key := tableKey(ref.caslib, ref.name)
	if _, ok := s.tables[key]; ok {
		delete(s.tables, key)
		return true
	}
	if _, ok := e.globals[key]; ok {
		delete(e.globals, key)
		return true
	}
	return false
}

// lib resolves a caslib by name, falling back to the builtin default.
func (e *engine) lib(name string) (*caslib, bool) {
	if name == "" {
		name = "casuser"
	}
	c, ok := e.caslibs[strings.ToLower(name)]
	return c, ok
}

// reply is an action's outcome before rendering to the wire.
type reply struct {
	results  map[string]interface{}
	messages []string
	severity int
	reason   string
	status   string
	fatal    bool
}

func ok(results map[string]interface{}) *reply {
	return &reply{results: results}
}

func (r *reply) notef(format string, args ...interface{}) *reply {
	r.messages = append(r.messages, "NOTE: "+fmt.Sprintf(format, args...))
	return r
}

func (r *reply) warnf(format string, args ...interface{}) *reply {
	r.messages = append(r.messages, "WARNING: "+fmt.Sprintf(format, args...))
	if r.severity < 1 {
		r.severity = 1
	}
	return r
}

// fail produces a failed reply with the given engine reason.
func fail(reason, format string, args ...interface{}) *reply {
	msg := fmt.Sprintf(format, args...)
	return &reply{
		messages: []string{"ERROR: " + msg},
		severity: 2,
		reason:   reason,
		status:   msg,
	}
}

// resultTable renders columns and rows into the wire form of a
// result table.
func resultTable(name, label string, cols []column, rows [][]interface{}) map[string]interface{} {
	wcols := make([]map[string]interface{}, len(cols))
	for i, c := range cols {
		wcols[i] = map[string]interface{}{"name": c.name, "type": c.typ}
	}
	wrows := make([]interface{}, len(rows))
	for i, r := range rows {
		wrows[i] = r
	}
	return map[string]interface{}{
		"_type":   "table",
		"name":    name,
		"label":   label,
		"columns": wcols,
		"rows":    wrows,
	}
}

// params is a decoded action parameter tree.
type params map[string]interface{}

func (p params) str(key, def string) string {
	if v, ok := p[lookupKey(p, key)].(string); ok {
		return v
	}
	return def
}

func (p params) num(key string, def float64) float64 {
	switch v := p[lookupKey(p, key)].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return def
}

func (p params) integer(key string, def int) int {
	if v, ok := p[lookupKey(p, key)].(float64); ok {
		return int(v)
	}
	return def
}

func (p params) boolean(key string, def bool) bool {
	if v, ok := p[lookupKey(p, key)].(bool); ok {
		return v
	}
	return def
}

func (p params) strs(key string) []string {
	v, ok := p[lookupKey(p, key)].([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(v))
	for _, elem := range v {
		if s, ok := elem.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func (p params) sub(key string) params {
	if v, ok := p[lookupKey(p, key)].(map[string]interface{}); ok {
		return params(v)
	}
	return nil
}

func (p params) has(key string) bool {
	_, ok := p[lookupKey(p, key)]
	return ok
}

// tableRef decodes a table reference parameter. The second return
// tells whether the parameter was present.
func (p params) tableRef(key string) (tableRef, bool) {
	m := p.sub(key)
	if m == nil {
		// A bare string is accepted as a name-only reference.
		if s, ok := p[lookupKey(p, key)].(string); ok && s != "" {
			return tableRef{name: s}, true
		}
		return tableRef{}, false
	}
	return tableRef{
		name:    m.str("name", ""),
		caslib:  m.str("caslib", ""),
		where:   m.str("where", ""),
		vars:    m.strs("vars"),
		promote: m.boolean("promote", false),
	}, true
}

// lookupKey finds the stored key matching key case-insensitively,
// mirroring the engine's parameter matching.
func lookupKey(p params, key string) string {
	if _, ok := p[key]; ok {
		return key
	}
	for k := range p {
		if strings.EqualFold(k, key) {
			return k
		}
	}
	return key
}

// actionFunc executes one action against the engine. The engine lock
// is held for the duration of the call.
type actionFunc func(e *engine, s *session, p params) *reply

// actions dispatches set.action names. Sets beyond the preloaded
// ones must be loaded with builtins.loadActionSet first.
var actions = map[string]actionFunc{
	"builtins.loadActionSet": actionLoadActionSet,

	"session.listSessions": actionListSessions,

	"table.addCaslib":   actionAddCaslib,
	"table.dropCaslib":  actionDropCaslib,
	"table.caslibInfo":  actionCaslibInfo,
	"table.loadTable":   actionLoadTable,
	"table.tableInfo":   actionTableInfo,
	"table.columnInfo":  actionColumnInfo,
	"table.dropTable":   actionDropTable,
	"table.fetch":       actionFetch,
	"table.shuffle":     actionShuffle,
	"table.upload":      actionUpload,

	"sampling.srs": actionSRS,

	"image.loadImages":      actionLoadImages,
	"image.saveImages":      actionSaveImages,
	"image.processImages":   actionProcessImages,
	"image.augmentImages":   actionAugmentImages,
	"image.summarizeImages": actionSummarizeImages,

	"deepLearn.buildModel":           actionBuildModel,
	"deepLearn.addLayer":             actionAddLayer,
	"deepLearn.modelInfo":            actionModelInfo,
	"deepLearn.dlTrain":              actionTrain,
	"deepLearn.dlScore":              actionScore,
	"deepLearn.dlImportModelWeights": actionImportWeights,
	"deepLearn.dlExportModel":        actionExportModel,

	"astore.describe": actionAstoreDescribe,
	"astore.score":    actionAstoreScore,
	"astore.download": actionAstoreDownload,
	"astore.upload":   actionAstoreUpload,
}

// preloaded are the action sets available to every fresh session.
var preloaded = map[string]bool{
	"builtins": true,
	"session":  true,
	"table":    true,
}

// dispatch executes the named action for the session. The engine's
// lock must be held.
func (e *engine) dispatch(s *session, name string, p params) *reply {
	set := name
	if i := strings.IndexByte(name, '.'); i > 0 {
		set = name[:i]
	}
	s.counts.Int("actions." + set).Add(1)
	fn, known := actions[name]
	if !known {
		return fail("unknownAction", "unknown action %q", name)
	}
	if !preloaded[set] && !s.sets[strings.ToLower(set)] {
		return fail("notLoaded", "action set %q is not loaded", set)
	}
	return fn(e, s, p)
}

// sortRows orders rows by the named columns, ascending, without
// disturbing the input slice.
func sortRows(cols []column, rows [][]interface{}, by []string) [][]interface{} {
	idx := make([]int, 0, len(by))
	for _, name := range by {
		for i, c := range cols {
			if strings.EqualFold(c.name, name) {
				idx = append(idx, i)
				break
			}
		}
	}
	sorted := append([][]interface{}{}, rows...)
	sort.SliceStable(sorted, func(a, b int) bool {
		for _, i := range idx {
			c := compareCells(sorted[a][i], sorted[b][i])
			if c != 0 {
				return c < 0
			}
		}
		return false
	})
	return sorted
}

func compareCells(a, b interface{}) int {
	switch av := a.(type) {
	case int64:
		bv, ok := b.(int64)
		if !ok {
			break
		}
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		}
		return 0
	case float64:
		bv, ok := b.(float64)
		if !ok {
			break
		}
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		}
		return 0
	case string:
		bv, ok := b.(string)
		if !ok {
			break
		}
		return strings.Compare(av, bv)
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}
