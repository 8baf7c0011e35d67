// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package cas

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/retry"
)

// envelope is the wire form of an action response. Engines reply
// with the action's results, any log messages it produced, and a
// disposition describing its outcome. Asynchronous submissions carry
// a job ID instead of results.
type envelope struct {
	Results     json.RawMessage `json:"results,omitempty"`
	Messages    []string        `json:"messages,omitempty"`
	Disposition Disposition     `json:"disposition"`
	Elapsed     float64         `json:"elapsed,omitempty"`
	Job         string          `json:"job,omitempty"`
}

// get issues a GET against the given path, decoding the response
// into out. GETs are idempotent and are retried per the client's
// retry policy.
func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	return c.call(ctx, http.MethodGet, path, nil, out)
}

// post issues a POST with the given JSON body, decoding the response
// into out. The body is replayed on retry; POSTs are retried only on
// connection errors and gateway unavailability, where the engine
// cannot have begun the action.
func (c *Client) post(ctx context.Context, path string, body []byte, out interface{}) error {
	return c.call(ctx, http.MethodPost, path, body, out)
}

// del issues a DELETE against the given path.
func (c *Client) del(ctx context.Context, path string) error {
	return c.call(ctx, http.MethodDelete, path, nil, nil)
}

// call issues one HTTP request with retries. Only failures that the
// engine cannot have observed (connection errors, 502/503 gateway
// responses) are retried; anything the engine answered is returned
// to the caller as-is.
func (c *Client) call(ctx context.Context, method, path string, body []byte, out interface{}) error {
	for retries := 0; ; retries++ {
		done, err := c.call1(ctx, method, path, body, out)
		if done {
			return err
		}
		log.Debug.Printf("cas: %s %s: %v; retrying", method, path, err)
		c.stats.Int("retries").Add(1)
		if waitErr := retry.Wait(ctx, c.policy, retries); waitErr != nil {
			if err == nil {
				err = waitErr
			}
			return err
		}
	}
}

// call1 issues a single HTTP request. The first return value tells
// whether the call is done: false means the failure is retryable.
func (c *Client) call1(ctx context.Context, method, path string, body []byte, out interface{}) (bool, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.addr+path, rd)
	if err != nil {
		return true, errors.E(errors.Invalid, method+" "+path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	switch {
	case c.token != "":
		req.Header.Set("Authorization", "Bearer "+c.token)
	case c.user != "":
		req.SetBasicAuth(c.user, c.pass)
	}
	c.stats.Int("requests").Add(1)
	c.stats.Int("bytes.sent").Add(int64(len(body)))
	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return true, errors.E(errors.Canceled, method+" "+path, ctx.Err())
		}
		return false, errors.E(errors.Net, errors.Temporary, method+" "+path, err)
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, errors.E(errors.Net, errors.Temporary, method+" "+path, err)
	}
	c.stats.Int("bytes.recv").Add(int64(len(b)))
	switch resp.StatusCode {
	case http.StatusBadGateway, http.StatusServiceUnavailable:
		return false, errors.E(errors.Net, errors.Temporary,
			fmt.Sprintf("%s %s: %s", method, path, resp.Status))
	}
	if resp.StatusCode >= 400 {
		return true, httpError(method, path, resp.StatusCode, b)
	}
	if out != nil && len(b) > 0 {
		dec := json.NewDecoder(bytes.NewReader(b))
		dec.UseNumber()
		if err := dec.Decode(out); err != nil {
			return true, errors.E(errors.Invalid,
				fmt.Sprintf("%s %s: undecodable response", method, path), err)
		}
	}
	return true, nil
}

// httpError converts a non-2xx response that the engine answered
// into an error of the appropriate kind.
func httpError(method, path string, code int, body []byte) error {
	msg := fmt.Sprintf("%s %s: %s", method, path, http.StatusText(code))
	var detail struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &detail); err == nil && detail.Error != "" {
		msg += ": " + detail.Error
	}
	var kind errors.Kind
	switch code {
	case http.StatusBadRequest:
		kind = errors.Invalid
	case http.StatusUnauthorized, http.StatusForbidden:
		kind = errors.NotAllowed
	case http.StatusNotFound:
		kind = errors.NotExist
	case http.StatusConflict:
		kind = errors.Exists
	case http.StatusRequestEntityTooLarge:
		kind = errors.OOM
	default:
		kind = errors.Remote
	}
	return errors.E(kind, msg)
}
