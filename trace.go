// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package cas

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"
)

// traceEvent is an event in the Chrome tracing format. The fields are
// mirrored exactly. For more details, see:
//	https://docs.google.com/document/d/1CvAClvFfyA5R-PhYUmn5OOQtYMH4h6I0nSsKchNAySU/preview
type traceEvent struct {
	Pid  int                    `json:"pid"`
	Tid  int                    `json:"tid"`
	Ts   int64                  `json:"ts"`
	Ph   string                 `json:"ph"`
	Dur  int64                  `json:"dur,omitempty"`
	Name string                 `json:"name"`
	Cat  string                 `json:"cat,omitempty"`
	Args map[string]interface{} `json:"args"`
}

// A tracer tracks action invocations for later visualization using
// Chrome's trace viewer (chrome://tracing). Each session is
// represented as a Chrome "process", and individual action and job
// events are tracked by the session they ran on.
//
// To produce easier to interpret visualizations, tracer assigns
// generated virtual "thread IDs" to events so that concurrent
// invocations on one session render on separate rows. Begin and end
// pairs are coalesced into "complete events" (X) when the invocation
// ends, so a marshaled trace holds no partial state for finished
// calls.
type tracer struct {
	mu sync.Mutex

	events      []traceEvent
	sessionPids map[string]int
	tidPools    map[int]tidPool

	// firstEvent is used to store the time of the first observed
	// event so that the offsets in the trace are meaningful.
	firstEvent time.Time
}

// tidPool is a pool of (virtual) thread IDs that we use to assign
// Tids to events. The length of the pool is the maximum number of
// concurrent invocations seen on the session. The indexes of the
// slice are the Tids we allocate, their corresponding value
// indicating whether the Tid is available for allocation.
type tidPool []bool

// traceCall carries a pending invocation event between begin and end.
type traceCall struct {
	tracer *tracer
	event  traceEvent
}

func newTracer() *tracer {
	return &tracer{
		sessionPids: make(map[string]int),
		tidPools:    make(map[int]tidPool),
	}
}

// begin logs the start of an invocation with the given name and
// category on the named session. Arguments is a list of interleaved
// key-value pairs attached as event metadata; args must be of even
// length. The returned call must be completed with end.
//
// begin on a nil tracer returns nil, and end of a nil call is a
// no-op, so tracing may be left unconfigured.
func (t *tracer) begin(session, name, cat string, args ...interface{}) *traceCall {
	if t == nil {
		return nil
	}
	if len(args)%2 != 0 {
		panic("trace: invalid arguments")
	}
	var event traceEvent
	event.Args = make(map[string]interface{}, len(args)/2)
	for i := 0; i < len(args); i += 2 {
		event.Args[fmt.Sprint(args[i])] = args[i+1]
	}
	event.Name = name
	event.Cat = cat
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.firstEvent.IsZero() {
		t.firstEvent = time.Now()
		event.Ts = 0
	} else {
		event.Ts = time.Since(t.firstEvent).Nanoseconds() / 1e3
	}
	pid, ok := t.sessionPids[session]
	if !ok {
		pid = len(t.sessionPids) + 1 // pid=0 is reserved for client events
		t.sessionPids[session] = pid
		// Attach "process" name metadata so we can identify which
		// session an invocation ran on.
		t.events = append(t.events, traceEvent{
			Pid:  pid,
			Ts:   event.Ts,
			Ph:   "M",
			Name: "process_name",
			Args: map[string]interface{}{
				"name": session,
			},
		})
	}
	event.Pid = pid
	pool := t.tidPools[pid]
	event.Tid = pool.Acquire()
	t.tidPools[pid] = pool
	return &traceCall{tracer: t, event: event}
}

// end completes a pending invocation event, recording its duration
// and merging in any additional metadata.
func (t *tracer) end(c *traceCall, args ...interface{}) {
	if t == nil || c == nil {
		return
	}
	if len(args)%2 != 0 {
		panic("trace: invalid arguments")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	event := c.event
	event.Ph = "X"
	event.Dur = time.Since(t.firstEvent).Nanoseconds()/1e3 - event.Ts
	if event.Dur == 0 {
		event.Dur = 1
	}
	for i := 0; i < len(args); i += 2 {
		key := fmt.Sprint(args[i])
		if _, ok := event.Args[key]; !ok {
			event.Args[key] = args[i+1]
		}
	}
	t.events = append(t.events, event)
	t.tidPools[event.Pid].Release(event.Tid)
}

// Marshal writes the trace captured by t into the writer w in
// Chrome's event tracing format.
func (t *tracer) Marshal(w io.Writer) error {
	t.mu.Lock()
	events := make([]traceEvent, len(t.events))
	copy(events, t.events)
	t.mu.Unlock()

	envelope := struct {
		TraceEvents []traceEvent `json:"traceEvents"`
	}{events}
	enc := json.NewEncoder(w)
	return enc.Encode(envelope)
}

// Acquire acquires an available thread ID from pool p. Thread IDs are
// sequential and 1-indexed, preserving 0 for events without
// meaningful thread IDs.
func (p *tidPool) Acquire() int {
	for tid, available := range *p {
		if available {
			(*p)[tid] = false
			return tid + 1
		}
	}
	// Nothing available in the pool, so grow it.
	tid := len(*p)
	*p = append(*p, false)
	return tid + 1
}

// Release releases a tid, a thread ID previously acquired in Acquire.
// This makes it available to be returned from a future call to
// Acquire.
func (p tidPool) Release(tid int) {
	if p[tid-1] {
		panic("releasing unallocated tid")
	}
	p[tid-1] = true
}
