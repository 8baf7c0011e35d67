// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package castest

import (
	"context"
	"testing"

	"github.com/grailbio/cas"
)

// StartSession starts a double and opens a session on it with the
// given action sets loaded. Everything is torn down when the test
// finishes.
func StartSession(t testing.TB, sets ...string) (*cas.Session, *Server) {
	t.Helper()
	srv := Start(t)
	return Dial(t, srv, sets...), srv
}

// Dial connects a client to srv and opens a session with the given
// action sets loaded. The client is closed when the test finishes.
func Dial(t testing.TB, srv *Server, sets ...string) *cas.Session {
	t.Helper()
	ctx := context.Background()
	client, err := cas.Dial(ctx, srv.URL())
	if err != nil {
		t.Fatalf("dial %s: %v", srv.URL(), err)
	}
	t.Cleanup(func() {
		if err := client.Close(context.Background()); err != nil {
			t.Errorf("close client: %v", err)
		}
	})
	sess, err := client.NewSession(ctx, t.Name())
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	for _, set := range sets {
		if err := sess.LoadActionSet(ctx, set); err != nil {
			t.Fatalf("load action set %s: %v", set, err)
		}
	}
	return sess
}
