// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package cas

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/status"
)

// A Session is a server-side session in which actions run. Sessions
// own the tables they create (unless promoted to global scope) and
// are reaped by the engine when closed or expired. Sessions are safe
// for concurrent use; the engine serializes the actions of a single
// session.
type Session struct {
	client *Client
	id     string
	name   string
	task   *status.Task

	mu     sync.Mutex
	closed bool
}

// NewSession creates a new session on the engine. The name is a
// human-readable label carried in engine logs and status displays;
// it need not be unique.
func (c *Client) NewSession(ctx context.Context, name string) (*Session, error) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return nil, errors.E(errors.Invalid, "new session: client is closed")
	}
	if name == "" {
		name = "cas-go"
	}
	body, err := json.Marshal(map[string]string{"name": name})
	if err != nil {
		return nil, err
	}
	var reply struct {
		Session string `json:"session"`
	}
	if err := c.post(ctx, "/cas/sessions", body, &reply); err != nil {
		return nil, errors.E("creating session "+name, err)
	}
	if reply.Session == "" {
		return nil, errors.E(errors.Invalid, "creating session "+name+": no session in reply")
	}
	s := &Session{client: c, id: reply.Session, name: name}
	if c.group != nil {
		s.task = c.group.Start(s.String())
		s.task.Print("idle")
	}
	c.mu.Lock()
	c.sessions[s] = struct{}{}
	c.mu.Unlock()
	c.eventer.Event("cas:sessionStart", "session", s.id, "name", name)
	log.Debug.Printf("cas: created session %s", s)
	return s, nil
}

// ID returns the engine-assigned session identifier.
func (s *Session) ID() string { return s.id }

// Name returns the label the session was created with.
func (s *Session) Name() string { return s.name }

// Client returns the client the session was created from.
func (s *Session) Client() *Client { return s.client }

// String returns a short form of the session for logs and status
// lines.
func (s *Session) String() string {
	return fmt.Sprintf("%s(%s)", s.name, shortID(s.id))
}

// Ping verifies that the session is still live on the engine.
// Expired or killed sessions yield an error of kind NotExist.
func (s *Session) Ping(ctx context.Context) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return errors.E(errors.Invalid, "ping: session "+s.id+" is closed")
	}
	var reply struct {
		Session string `json:"session"`
		State   string `json:"state"`
	}
	if err := s.client.get(ctx, "/cas/sessions/"+s.id, &reply); err != nil {
		return errors.E("ping session "+s.id, err)
	}
	return nil
}

// Do invokes a named action with the given parameters, returning its
// decoded results. Action names take the form set.action, e.g.
// "image.loadImages"; malformed names are rejected without an RPC.
// Messages produced by the action are forwarded to the logger.
// Failed dispositions are returned as errors whose kind reflects the
// engine's reason (see Disposition).
func (s *Session) Do(ctx context.Context, action string, params Values) (*Results, error) {
	env, err := s.invoke(ctx, action, params, false)
	if err != nil {
		return nil, err
	}
	return decodeResults(env.Results)
}

// Submit invokes a named action asynchronously, returning a Job that
// tracks its progress. The engine queues the action and reports a
// job ID immediately; results are fetched by polling the job. Only
// long-running actions (such as deepLearn.dlTrain) support
// asynchronous submission.
func (s *Session) Submit(ctx context.Context, action string, params Values) (*Job, error) {
	env, err := s.invoke(ctx, action, params, true)
	if err != nil {
		return nil, err
	}
	if env.Job == "" {
		return nil, errors.E(errors.Invalid, action+": no job in reply")
	}
	log.Debug.Printf("cas: submitted %s as job %s on %s", action, shortID(env.Job), s)
	return &Job{session: s, id: env.Job, action: action}, nil
}

// LoadActionSet loads the named action set into the session. Engines
// load action sets lazily; actions from sets that have not been
// loaded fail with kind NotSupported.
func (s *Session) LoadActionSet(ctx context.Context, name string) error {
	_, err := s.Do(ctx, "builtins.loadActionSet", Values{"actionSet": name})
	return err
}

// Close ends the session, releasing its tables on the engine. Close
// is idempotent, and closing a session the engine has already reaped
// is not an error.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	s.client.forget(s)
	if s.task != nil {
		s.task.Print("closed")
		s.task.Done()
	}
	err := s.client.del(ctx, "/cas/sessions/"+s.id)
	if err != nil && errors.Is(errors.NotExist, err) {
		// The engine reaped the session before we closed it.
		err = nil
	}
	s.client.eventer.Event("cas:sessionEnd", "session", s.id)
	return err
}

// EndSession terminates the session with the given UUID, releasing
// its tables on the engine. Unlike Session.Close it acts on any
// session, including ones owned by other clients; ending a session
// that does not exist fails with kind NotExist.
func (c *Client) EndSession(ctx context.Context, id string) error {
	if err := c.del(ctx, "/cas/sessions/"+id); err != nil {
		return err
	}
	c.eventer.Event("cas:sessionEnd", "session", id)
	return nil
}

// invoke issues one action invocation and returns the raw response
// envelope. It implements both Do and Submit.
func (s *Session) invoke(ctx context.Context, action string, params Values, async bool) (*envelope, error) {
	set, err := parseAction(action)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, errors.E(errors.Invalid, action+": session "+s.id+" is closed")
	}
	wire, err := params.normalize()
	if err != nil {
		return nil, errors.E(action, err)
	}
	body, err := json.Marshal(wire)
	if err != nil {
		return nil, errors.E(errors.Invalid, action, err)
	}
	path := "/cas/sessions/" + s.id + "/actions/" + action
	if async {
		path += "?async=1"
	}
	c := s.client
	c.stats.Int("actions." + set).Add(1)
	if s.task != nil {
		s.task.Print(action)
	}
	tc := c.tracer.begin(s.String(), action, "action", "session", s.id)
	var env envelope
	err = c.post(ctx, path, body, &env)
	outcome := "ok"
	if err != nil || !env.Disposition.OK() {
		outcome = "error"
	}
	c.tracer.end(tc, "outcome", outcome, "elapsed", env.Elapsed)
	if s.task != nil {
		s.task.Print("idle")
	}
	if err != nil {
		if errors.Is(errors.NotExist, err) {
			return nil, errors.E(action+": session "+s.id+" not found on server", err)
		}
		return nil, err
	}
	forwardMessages(action, env.Messages)
	if err := env.Disposition.Err(action); err != nil {
		return nil, err
	}
	return &env, nil
}

// parseAction validates an action name of the form set.action,
// returning the set.
func parseAction(action string) (string, error) {
	i := strings.IndexByte(action, '.')
	if i <= 0 || i == len(action)-1 || strings.IndexByte(action[i+1:], '.') >= 0 {
		return "", errors.E(errors.Invalid, fmt.Sprintf("invalid action name %q: must be set.action", action))
	}
	return action[:i], nil
}

// forwardMessages relays engine messages to the logger, mapping the
// engine's message severities onto log levels.
func forwardMessages(action string, messages []string) {
	for _, m := range messages {
		switch {
		case strings.HasPrefix(m, "ERROR"):
			log.Error.Printf("%s: %s", action, m)
		case strings.HasPrefix(m, "WARNING"):
			log.Printf("%s: %s", action, m)
		default:
			log.Debug.Printf("%s: %s", action, m)
		}
	}
}

// shortID abbreviates an engine UUID for logs and status lines.
func shortID(id string) string {
	if i := strings.IndexByte(id, '-'); i > 0 {
		return id[:i]
	}
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
