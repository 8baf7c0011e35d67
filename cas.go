// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package cas

import (
	"context"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/eventlog"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/retry"
	"github.com/grailbio/base/status"
	"github.com/grailbio/cas/stats"
	"golang.org/x/sync/errgroup"
)

// defaultRetryPolicy is the policy used for retrying failed RPCs
// when the client is not configured with its own. It is capped so
// that calls against a dead server fail instead of backing off
// forever.
var defaultRetryPolicy = retry.MaxRetries(retry.Backoff(time.Second, 5*time.Second, 1.5), 5)

// A Client is a handle on one engine endpoint. It carries the
// endpoint's address and credentials, the HTTP transport used to
// reach it, and bookkeeping shared by the sessions created from it:
// RPC counters, the action tracer, and status reporting. Clients are
// safe for concurrent use.
type Client struct {
	addr   string
	http   *http.Client
	policy retry.Policy

	token      string
	user, pass string

	status    *status.Status
	group     *status.Group
	eventer   eventlog.Eventer
	tracer    *tracer
	tracePath string

	stats *stats.Map
	info  ServerInfo

	mu       sync.Mutex
	closed   bool
	sessions map[*Session]struct{}
}

// ServerInfo describes the engine behind an endpoint, as reported
// when the client dials it.
type ServerInfo struct {
	// Version is the engine's release string.
	Version string `json:"version"`
	// Nodes is the number of worker nodes backing the endpoint.
	Nodes int `json:"nodes"`
	// Uptime is the server's uptime in seconds.
	Uptime float64 `json:"uptime"`
}

// An Option represents a client configuration parameter value.
type Option func(c *Client)

// Token configures the client to authenticate with a bearer token.
func Token(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// UserPass configures the client to authenticate with a username
// and password pair.
func UserPass(user, pass string) Option {
	return func(c *Client) {
		c.user, c.pass = user, pass
	}
}

// HTTPClient configures the client to issue requests through the
// provided HTTP client instead of http.DefaultClient.
func HTTPClient(h *http.Client) Option {
	if h == nil {
		panic("cas.HTTPClient: nil client")
	}
	return func(c *Client) {
		c.http = h
	}
}

// RetryPolicy configures the policy used to retry RPCs that fail
// with transport errors.
func RetryPolicy(policy retry.Policy) Option {
	return func(c *Client) {
		c.policy = policy
	}
}

// TracePath configures the path to which a trace event file for the
// client's action invocations is written on Close. The file is in
// Chrome's tracing format and can be visualized with
// chrome://tracing.
func TracePath(path string) Option {
	return func(c *Client) {
		c.tracePath = path
	}
}

// Eventer configures the client with an Eventer that will be used to
// log client events (for analytics).
func Eventer(e eventlog.Eventer) Option {
	return func(c *Client) {
		c.eventer = e
	}
}

// Status configures the client with a status object to which session
// and long-running action statuses are reported.
func Status(s *status.Status) Option {
	return func(c *Client) {
		c.status = s
	}
}

// Dial connects to the engine endpoint at addr, configuring the
// returned client according to the provided options. The address may
// omit its scheme, in which case http is assumed. Dial validates the
// endpoint by fetching its server info; it returns an error of kind
// Net if the endpoint cannot be reached.
func Dial(ctx context.Context, addr string, opts ...Option) (*Client, error) {
	if addr == "" {
		return nil, errors.E(errors.Invalid, "dial: no server address")
	}
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	u, err := url.Parse(addr)
	if err != nil {
		return nil, errors.E(errors.Invalid, "dial "+addr, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.E(errors.Invalid, "dial "+addr+": unsupported scheme "+u.Scheme)
	}
	c := &Client{
		addr:     strings.TrimSuffix(u.String(), "/"),
		http:     http.DefaultClient,
		policy:   defaultRetryPolicy,
		eventer:  eventlog.Nop{},
		tracer:   newTracer(),
		stats:    stats.NewMap(),
		sessions: make(map[*Session]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if err := c.get(ctx, "/cas", &c.info); err != nil {
		return nil, errors.E("dial "+addr, err)
	}
	if c.status != nil {
		c.group = c.status.Group("cas " + u.Host)
	}
	c.eventer.Event("cas:dial",
		"addr", c.addr,
		"version", c.info.Version,
		"nodes", c.info.Nodes)
	log.Debug.Printf("cas: dialed %s: version %s, %d nodes", c.addr, c.info.Version, c.info.Nodes)
	return c, nil
}

// Addr returns the address the client was dialed with.
func (c *Client) Addr() string {
	return c.addr
}

// Info returns the server info fetched when the client was dialed.
func (c *Client) Info() ServerInfo {
	return c.info
}

// Stats returns a snapshot of the client's RPC counters: requests,
// retries, bytes transferred, and per-set action counts.
func (c *Client) Stats() stats.Values {
	return c.stats.Snapshot()
}

// Close closes the client, ending any sessions that are still live
// and, if the client was configured with a trace path, writing the
// action trace. Close is idempotent. The provided context bounds the
// session teardown RPCs.
func (c *Client) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	sessions := make([]*Session, 0, len(c.sessions))
	for s := range c.sessions {
		sessions = append(sessions, s)
	}
	c.mu.Unlock()
	// Sessions are independent; tear them down concurrently, but
	// don't let one failure abandon the others.
	g, _ := errgroup.WithContext(ctx)
	for _, s := range sessions {
		s := s
		g.Go(func() error { return s.Close(ctx) })
	}
	err := g.Wait()
	if c.tracePath != "" {
		writeTraceFile(c.tracer, c.tracePath)
	}
	c.eventer.Event("cas:close", "addr", c.addr)
	return err
}

// forget removes a closed session from the client's bookkeeping.
func (c *Client) forget(s *Session) {
	c.mu.Lock()
	delete(c.sessions, s)
	c.mu.Unlock()
}

func writeTraceFile(tracer *tracer, path string) {
	w, err := os.Create(path)
	if err != nil {
		log.Error.Printf("error creating trace file at %q: %v", path, err)
		return
	}
	defer func() {
		if closeErr := w.Close(); closeErr != nil {
			log.Error.Printf("error closing trace file at %q: %v", path, closeErr)
			return
		}
	}()
	err = tracer.Marshal(w)
	if err != nil {
		log.Error.Printf("error marshaling to trace file at %q: %v", path, err)
		return
	}
}
