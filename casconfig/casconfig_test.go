// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package casconfig_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/grailbio/base/config"
	"github.com/grailbio/cas"
	_ "github.com/grailbio/cas/casconfig"
	"github.com/grailbio/cas/castest"
)

// instantiate loads a profile from its text form and constructs the
// cas client it describes.
func instantiate(t *testing.T, profile string) (*cas.Client, error) {
	t.Helper()
	p := config.New()
	if err := p.Parse(strings.NewReader(profile)); err != nil {
		t.Fatalf("parse profile: %v", err)
	}
	var client *cas.Client
	err := p.Instance("cas", &client)
	return client, err
}

func TestProfile(t *testing.T) {
	srv := castest.Start(t)
	client, err := instantiate(t, fmt.Sprintf("param cas addr = %q\n", srv.URL()))
	if err != nil {
		t.Fatalf("instance cas: %v", err)
	}
	defer client.Close(context.Background())
	if got, want := client.Addr(), srv.URL(); got != want {
		t.Errorf("got addr %v, want %v", got, want)
	}
	if client.Info().Version == "" {
		t.Error("no server version")
	}
}

func TestProfileToken(t *testing.T) {
	srv := castest.Start(t, castest.WithToken("hunter2"))
	if _, err := instantiate(t, fmt.Sprintf("param cas addr = %q\n", srv.URL())); err == nil {
		t.Fatal("dial without token succeeded")
	}
	client, err := instantiate(t, fmt.Sprintf(
		"param cas addr = %q\nparam cas token = \"hunter2\"\n", srv.URL()))
	if err != nil {
		t.Fatalf("instance cas: %v", err)
	}
	defer client.Close(context.Background())
	ctx := context.Background()
	sess, err := client.NewSession(ctx, "casconfig-test")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if err := sess.Ping(ctx); err != nil {
		t.Errorf("ping: %v", err)
	}
}

func TestProfileTracePath(t *testing.T) {
	srv := castest.Start(t)
	path := filepath.Join(t.TempDir(), "trace.json")
	client, err := instantiate(t, fmt.Sprintf(
		"param cas addr = %q\nparam cas trace-path = %q\n", srv.URL(), path))
	if err != nil {
		t.Fatalf("instance cas: %v", err)
	}
	ctx := context.Background()
	sess, err := client.NewSession(ctx, "casconfig-test")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if err := sess.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if err := client.Close(ctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read trace: %v", err)
	}
	if !strings.Contains(string(b), "traceEvents") {
		t.Errorf("trace file %s is not a chrome trace", path)
	}
}

func TestProfileBadTimeout(t *testing.T) {
	srv := castest.Start(t)
	_, err := instantiate(t, fmt.Sprintf(
		"param cas addr = %q\nparam cas timeout = \"soon\"\n", srv.URL()))
	if err == nil {
		t.Fatal("bad timeout accepted")
	}
	if !strings.Contains(err.Error(), "timeout") {
		t.Errorf("error %v does not name the timeout parameter", err)
	}
}
