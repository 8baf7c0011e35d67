// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Casdl trains and ships image classification models on a CAS
// engine. It reads pipeline specs (see package dlpipe) and exposes
// the individual steps as commands for ad hoc work against tables
// left in place by earlier runs.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/grailbio/base/log"
	"github.com/grailbio/base/must"
	"github.com/grailbio/cas"
	"github.com/grailbio/cas/casconfig"
)

func usage() {
	fmt.Fprintf(os.Stderr, `Casdl trains and ships image classification models on a CAS engine.

Usage:

	casdl <command> [arguments]

The commands are:

	run       run a pipeline spec end to end
	load      load a caslib's images into a global table
	samples   render a contact sheet from an image table
	train     train and score models from a pipeline spec
	score     score an image table with trained weights or an astore
	export    export trained weights and save the astore artifact
	info      show server or table information
	sessions  list engine sessions

The engine address and credentials are read from the profile at
%s; -set overrides individual parameters, for
example -set cas.addr=cas01:5570.
`, casconfig.Path)
	os.Exit(2)
}

func main() {
	log.AddFlags()
	log.SetFlags(0)
	log.SetPrefix("casdl: ")
	must.Func = func(_ int, v ...interface{}) { log.Fatal(v...) }
	flag.Usage = usage
	client, shutdown := casconfig.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
	}

	ctx := context.Background()
	cmd, args := flag.Arg(0), flag.Args()[1:]
	var err error
	switch cmd {
	default:
		fmt.Fprintf(os.Stderr, "unknown command %s\n", cmd)
		flag.Usage()
	case "run":
		err = runCmd(ctx, client, args)
	case "load":
		err = loadCmd(ctx, client, args)
	case "samples":
		err = samplesCmd(ctx, client, args)
	case "train":
		err = trainCmd(ctx, client, args)
	case "score":
		err = scoreCmd(ctx, client, args)
	case "export":
		err = exportCmd(ctx, client, args)
	case "info":
		err = infoCmd(ctx, client, args)
	case "sessions":
		err = sessionsCmd(ctx, client, args)
	}
	shutdown()
	must.Nil(err, cmd)
}

// dialSession opens a session for one command's work, with the given
// action sets loaded.
func dialSession(ctx context.Context, client *cas.Client, sets ...string) (*cas.Session, error) {
	sess, err := client.NewSession(ctx, "casdl")
	if err != nil {
		return nil, err
	}
	for _, set := range sets {
		if err := sess.LoadActionSet(ctx, set); err != nil {
			closeSession(ctx, sess)
			return nil, err
		}
	}
	return sess, nil
}

func closeSession(ctx context.Context, sess *cas.Session) {
	if err := sess.Close(ctx); err != nil {
		log.Error.Printf("close session %s: %v", sess, err)
	}
}
