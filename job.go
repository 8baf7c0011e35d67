// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package cas

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/retry"
)

// Job states reported by the engine.
const (
	JobPending = "pending"
	JobRunning = "running"
	JobDone    = "done"
	JobFailed  = "failed"
)

// pollPolicy paces job polling. It is uncapped in retries: polling
// continues until the job reaches a terminal state or the context is
// done.
var pollPolicy = retry.Backoff(500*time.Millisecond, 5*time.Second, 1.5)

// A Job tracks an asynchronously submitted action. Jobs are created
// by Session.Submit and live until their session is closed.
type Job struct {
	session *Session
	id      string
	action  string
}

// JobState is a point-in-time view of a job: its state and whatever
// progress the action has reported (for training actions, the
// current epoch and loss).
type JobState struct {
	State    string
	Progress Values
}

// Done tells whether the state is terminal.
func (s JobState) Done() bool {
	return s.State == JobDone || s.State == JobFailed
}

// ID returns the engine-assigned job identifier.
func (j *Job) ID() string { return j.id }

// Action returns the name of the action the job is running.
func (j *Job) Action() string { return j.action }

// Poll fetches the job's current state. For terminal states it also
// returns the action's results (or its failure, converted exactly as
// in Do). A nil *Results with a nil error means the job is still
// running.
func (j *Job) Poll(ctx context.Context) (JobState, *Results, error) {
	var reply struct {
		Job         string          `json:"job"`
		State       string          `json:"state"`
		Progress    Values          `json:"progress,omitempty"`
		Results     json.RawMessage `json:"results,omitempty"`
		Messages    []string        `json:"messages,omitempty"`
		Disposition Disposition     `json:"disposition"`
	}
	path := fmt.Sprintf("/cas/sessions/%s/jobs/%s", j.session.id, j.id)
	if err := j.session.client.get(ctx, path, &reply); err != nil {
		return JobState{}, nil, errors.E(fmt.Sprintf("%s: polling job %s", j.action, j.id), err)
	}
	state := JobState{State: reply.State, Progress: reply.Progress}
	switch reply.State {
	case JobPending, JobRunning:
		return state, nil, nil
	case JobDone, JobFailed:
		forwardMessages(j.action, reply.Messages)
		if err := reply.Disposition.Err(j.action); err != nil {
			return state, nil, err
		}
		res, err := decodeResults(reply.Results)
		return state, res, err
	}
	return state, nil, errors.E(errors.Invalid,
		fmt.Sprintf("%s: job %s reported unknown state %q", j.action, j.id, reply.State))
}

// Wait polls the job until it reaches a terminal state, returning
// the action's results. Progress reported by the engine is rendered
// to the session's status task so that long-running actions show
// live progress.
func (j *Job) Wait(ctx context.Context) (*Results, error) {
	c := j.session.client
	tc := c.tracer.begin(j.session.String(), j.action, "job", "job", j.id)
	for retries := 0; ; retries++ {
		state, res, err := j.Poll(ctx)
		if err != nil {
			c.tracer.end(tc, "outcome", "error")
			return nil, err
		}
		if state.Done() {
			c.tracer.end(tc, "outcome", "ok")
			return res, nil
		}
		if t := j.session.task; t != nil {
			if len(state.Progress) > 0 {
				t.Printf("%s: %s", j.action, progressLine(state.Progress))
			} else {
				t.Print(j.action)
			}
		}
		if err := retry.Wait(ctx, pollPolicy, retries); err != nil {
			c.tracer.end(tc, "outcome", "canceled")
			return nil, errors.E(fmt.Sprintf("%s: waiting for job %s", j.action, j.id), err)
		}
	}
}

// Cancel asks the engine to abort the job. Waiters observe the
// aborted disposition (kind Canceled) on their next poll.
func (j *Job) Cancel(ctx context.Context) error {
	path := fmt.Sprintf("/cas/sessions/%s/jobs/%s", j.session.id, j.id)
	if err := j.session.client.del(ctx, path); err != nil {
		return errors.E(fmt.Sprintf("%s: canceling job %s", j.action, j.id), err)
	}
	return nil
}

// progressLine renders reported progress compactly, keys sorted.
func progressLine(p Values) string {
	parts := make([]string, 0, len(p))
	for _, k := range p.Keys() {
		parts = append(parts, fmt.Sprintf("%s=%v", k, p[k]))
	}
	return strings.Join(parts, " ")
}
