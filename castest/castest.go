// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package castest provides an in-process double of a CAS analytics
// engine for tests. The double speaks the engine's HTTP rendering
// faithfully enough to exercise every client package against it:
// sessions, synchronous and asynchronous actions, job polling,
// caslibs bound to a fake filesystem, and the table, sampling,
// image, deepLearn, and astore action sets.
//
// The double is deterministic. Image files are synthesized from
// their label, training curves are seeded by hashing the model and
// table names, and scores derive from the trained weights, so tests
// can assert on exact values.
package castest

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/grailbio/cas/stats"
)

// Server is an in-process CAS engine double backed by httptest.
type Server struct {
	engine *engine
	http   *httptest.Server
}

// Option configures a Server.
type Option func(*engine)

// WithToken requires every request to carry the given bearer token.
func WithToken(token string) Option {
	return func(e *engine) {
		e.token = token
	}
}

// WithNodes sets the number of fake worker nodes tables are
// partitioned over.
func WithNodes(n int) Option {
	if n <= 0 {
		panic("castest.WithNodes: n <= 0")
	}
	return func(e *engine) {
		e.nodes = n
	}
}

// WithEpochsPerPoll makes training jobs advance n epochs per status
// poll instead of completing on the second poll. Tests that assert
// on per-epoch progress use this.
func WithEpochsPerPoll(n int) Option {
	if n <= 0 {
		panic("castest.WithEpochsPerPoll: n <= 0")
	}
	return func(e *engine) {
		e.epochsPerPoll = n
	}
}

// New starts a double with the given options. The caller must Close
// it.
func New(opts ...Option) *Server {
	e := newEngine()
	for _, opt := range opts {
		opt(e)
	}
	srv := &Server{engine: e}
	srv.http = httptest.NewServer(srv.router())
	return srv
}

// Start starts a double whose lifetime is bound to the test.
func Start(t testing.TB, opts ...Option) *Server {
	t.Helper()
	srv := New(opts...)
	t.Cleanup(srv.Close)
	return srv
}

// URL returns the double's base address, suitable for cas.Dial.
func (srv *Server) URL() string {
	return srv.http.URL
}

// Close shuts the double down.
func (srv *Server) Close() {
	srv.http.Close()
}

// ListenAndServe serves the double's HTTP surface on addr, blocking
// until the listener fails. The address serves the same engine as
// URL, so a command can seed a double and expose it to other
// processes.
func (srv *Server) ListenAndServe(addr string) error {
	return http.ListenAndServe(addr, srv.router())
}

// Counts returns the double's action counters, aggregated across all
// sessions. Keys are "actions.<set>" plus "sessions" and "jobs".
func (srv *Server) Counts() stats.Values {
	return srv.engine.snapshot()
}

// AddImageDir creates a caslib named name rooted at dir and seeds it
// with n synthetic PNG images per label, laid out one directory per
// label. Images are 64x64 and derived from their label, so loading
// and rescoring them is reproducible.
func (srv *Server) AddImageDir(name, dir string, labels []string, n int) {
	e := srv.engine
	e.mu.Lock()
	defer e.mu.Unlock()
	e.caslibs[strings.ToLower(name)] = &caslib{name: name, path: dir, subdirs: true}
	dirFiles := e.files[dir]
	if dirFiles == nil {
		dirFiles = make(map[string][]byte)
		e.files[dir] = dirFiles
	}
	for _, label := range labels {
		for i := 0; i < n; i++ {
			rel := fmt.Sprintf("%s/img%03d.png", label, i)
			dirFiles[rel] = synthPNG(pathSeed(rel), 64, 64)
		}
	}
}

// AddFile places data at rel under the named caslib's directory,
// creating the caslib if needed.
func (srv *Server) AddFile(name, rel string, data []byte) {
	e := srv.engine
	e.mu.Lock()
	defer e.mu.Unlock()
	lib, ok := e.caslibs[strings.ToLower(name)]
	if !ok {
		lib = &caslib{name: name, path: "/" + strings.ToLower(name), subdirs: true}
		e.caslibs[strings.ToLower(name)] = lib
	}
	dirFiles := e.files[lib.path]
	if dirFiles == nil {
		dirFiles = make(map[string][]byte)
		e.files[lib.path] = dirFiles
	}
	dirFiles[rel] = append([]byte{}, data...)
}

// File returns the contents of rel under the named caslib, as written
// by saveImages or astore downloads. It reports whether the file
// exists.
func (srv *Server) File(name, rel string) ([]byte, bool) {
	e := srv.engine
	e.mu.Lock()
	defer e.mu.Unlock()
	lib, ok := e.caslibs[strings.ToLower(name)]
	if !ok {
		return nil, false
	}
	data, ok := e.files[lib.path][rel]
	return data, ok
}

func (srv *Server) router() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), srv.auth)
	r.GET("/cas", srv.getInfo)
	r.POST("/cas/sessions", srv.createSession)
	r.GET("/cas/sessions/:id", srv.getSession)
	r.DELETE("/cas/sessions/:id", srv.deleteSession)
	r.POST("/cas/sessions/:id/actions/:action", srv.runAction)
	r.GET("/cas/sessions/:id/jobs/:job", srv.pollJob)
	r.DELETE("/cas/sessions/:id/jobs/:job", srv.cancelJob)
	return r
}

func (srv *Server) auth(c *gin.Context) {
	token := srv.engine.token
	if token == "" {
		c.Next()
		return
	}
	if c.GetHeader("Authorization") != "Bearer "+token {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	c.Next()
}

func (srv *Server) getInfo(c *gin.Context) {
	e := srv.engine
	e.mu.Lock()
	defer e.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{
		"version": e.version,
		"nodes":   e.nodes,
		"uptime":  time.Since(e.started).Seconds(),
	})
}

func (srv *Server) createSession(c *gin.Context) {
	var body struct {
		Name string `json:"name"`
	}
	// An empty body is allowed; the engine names the session itself.
	_ = c.ShouldBindJSON(&body)
	if body.Name == "" {
		body.Name = "anonymous"
	}
	e := srv.engine
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.newSession(body.Name)
	e.counts.Int("sessions").Add(1)
	c.JSON(http.StatusOK, gin.H{"session": s.id})
}

func (srv *Server) getSession(c *gin.Context) {
	e := srv.engine
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sessions[c.Param("id")]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no such session"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session": s.id,
		"name":    s.name,
		"state":   "connected",
		"uptime":  time.Since(s.created).Seconds(),
	})
}

func (srv *Server) deleteSession(c *gin.Context) {
	e := srv.engine
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sessions[c.Param("id")]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no such session"})
		return
	}
	delete(e.sessions, s.id)
	// Fold the dead session's counters into the engine's so Counts
	// never loses them.
	vals := make(stats.Values)
	s.counts.AddAll(vals)
	for k, v := range vals {
		e.counts.Int(k).Add(v)
	}
	c.JSON(http.StatusOK, gin.H{"session": s.id})
}

func (srv *Server) runAction(c *gin.Context) {
	name := c.Param("action")
	var p params
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed JSON body"})
		return
	}
	e := srv.engine
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sessions[c.Param("id")]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no such session"})
		return
	}
	if c.Query("async") == "1" {
		srv.submitJob(c, s, name, p)
		return
	}
	begin := time.Now()
	r := e.dispatch(s, name, p)
	renderEnvelope(c, http.StatusOK, r, time.Since(begin))
}

// submitJob validates and enqueues an asynchronous action. Parameter
// errors surface immediately in the submit reply rather than at the
// first poll.
func (srv *Server) submitJob(c *gin.Context, s *session, name string, p params) {
	e := srv.engine
	begin := time.Now()
	j, r := e.startJob(s, name, p)
	if r != nil {
		renderEnvelope(c, http.StatusOK, r, time.Since(begin))
		return
	}
	e.counts.Int("jobs").Add(1)
	c.JSON(http.StatusAccepted, gin.H{"job": j.id})
}

func (srv *Server) pollJob(c *gin.Context) {
	e := srv.engine
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sessions[c.Param("id")]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no such session"})
		return
	}
	j, ok := s.jobs[c.Param("job")]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no such job"})
		return
	}
	e.advance(j)
	body := gin.H{
		"job":   j.id,
		"state": j.state,
	}
	if j.state == "pending" || j.state == "running" {
		body["progress"] = j.progress()
		c.JSON(http.StatusOK, body)
		return
	}
	r := j.reply
	body["results"] = resultsOrEmpty(r)
	body["messages"] = r.messages
	body["disposition"] = wireDisposition(r)
	c.JSON(http.StatusOK, body)
}

func (srv *Server) cancelJob(c *gin.Context) {
	e := srv.engine
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sessions[c.Param("id")]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no such session"})
		return
	}
	j, ok := s.jobs[c.Param("job")]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no such job"})
		return
	}
	if j.state == "pending" || j.state == "running" {
		j.state = "failed"
		j.reply = fail("aborted", "job %s canceled", j.id)
	}
	c.JSON(http.StatusOK, gin.H{"job": j.id, "state": j.state})
}

func renderEnvelope(c *gin.Context, code int, r *reply, elapsed time.Duration) {
	c.JSON(code, gin.H{
		"results":     resultsOrEmpty(r),
		"messages":    r.messages,
		"disposition": wireDisposition(r),
		"elapsed":     elapsed.Seconds(),
	})
}

func resultsOrEmpty(r *reply) map[string]interface{} {
	if r.results == nil {
		return map[string]interface{}{}
	}
	return r.results
}

func wireDisposition(r *reply) gin.H {
	d := gin.H{
		"severity":   r.severity,
		"reason":     r.reason,
		"status":     r.status,
		"statusCode": reasonCode(r.reason),
	}
	if r.fatal {
		d["fatal"] = true
		d["debug"] = "0x8a1f: worker dump follows"
	}
	return d
}

// reasonCode maps engine reasons to the numeric codes carried on the
// wire. The values are stable so tests can assert on them.
func reasonCode(reason string) int {
	switch reason {
	case "":
		return 0
	case "notFound":
		return 2422
	case "exists":
		return 2402
	case "invalidParameter":
		return 2718
	case "typeMismatch":
		return 2717
	case "notAuthorized":
		return 2601
	case "notLoaded":
		return 2112
	case "unknownAction":
		return 2110
	case "resourceLimit":
		return 2806
	case "aborted":
		return 2901
	case "failedPrecondition":
		return 2720
	default:
		return 2999
	}
}

// blob decodes a base64 parameter, as produced by the client's byte
// slice encoding.
func (p params) blob(key string) []byte {
	s := p.str(key, "")
	if s == "" {
		return nil
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil
	}
	return data
}
