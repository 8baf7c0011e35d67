// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/cas"
	"github.com/grailbio/cas/table"
)

func infoCmd(ctx context.Context, client *cas.Client, args []string) error {
	flags := flag.NewFlagSet("casdl info", flag.ExitOnError)
	tbl := flags.String("table", "", "describe this global table instead of the server")
	flags.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: casdl info [-table table]\n")
		flags.PrintDefaults()
		os.Exit(2)
	}
	flags.Parse(args)
	if flags.NArg() != 0 {
		flags.Usage()
	}
	if *tbl == "" {
		info := client.Info()
		uptime := time.Duration(info.Uptime * float64(time.Second)).Round(time.Second)
		fmt.Printf("%s: version %s, %d nodes, up %s\n",
			client.Addr(), info.Version, info.Nodes, uptime)
		return nil
	}
	sess, err := dialSession(ctx, client)
	if err != nil {
		return err
	}
	defer closeSession(ctx, sess)
	ref := cas.Tbl("", *tbl)
	ti, err := table.Info(ctx, sess, ref)
	if err != nil {
		return err
	}
	cols, err := table.Columns(ctx, sess, ref)
	if err != nil {
		return err
	}
	scope := "session"
	if ti.Global {
		scope = "global"
	}
	fmt.Printf("%s: %d rows, %d columns, %d bytes, %s\n",
		ti.Name, ti.Rows, ti.Columns, ti.Bytes, scope)
	var tw tabwriter.Writer
	tw.Init(os.Stdout, 4, 4, 1, ' ', 0)
	for _, c := range cols {
		fmt.Fprintf(&tw, "\t%s\t%s\t%d\n", c.Name, c.Type, c.Width)
	}
	return tw.Flush()
}

func sessionsCmd(ctx context.Context, client *cas.Client, args []string) error {
	flags := flag.NewFlagSet("casdl sessions", flag.ExitOnError)
	kill := flags.String("kill", "", "end the session with this uuid")
	flags.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: casdl sessions [-kill uuid]\n")
		flags.PrintDefaults()
		os.Exit(2)
	}
	flags.Parse(args)
	if flags.NArg() != 0 {
		flags.Usage()
	}
	if *kill != "" {
		if err := client.EndSession(ctx, *kill); err != nil {
			return err
		}
		log.Printf("ended session %s", *kill)
		return nil
	}
	sess, err := dialSession(ctx, client)
	if err != nil {
		return err
	}
	defer closeSession(ctx, sess)
	res, err := sess.Do(ctx, "session.listSessions", nil)
	if err != nil {
		return err
	}
	t := res.Table("Sessions")
	if t == nil {
		return errors.E(errors.Invalid, "session.listSessions: no Sessions table in results")
	}
	var tw tabwriter.Writer
	tw.Init(os.Stdout, 4, 4, 1, ' ', 0)
	fmt.Fprintf(&tw, "uuid\tname\tstate\n")
	for i := 0; i < t.NumRows(); i++ {
		fmt.Fprintf(&tw, "%s\t%s\t%s\n", t.Str(i, "Uuid"), t.Str(i, "Name"), t.Str(i, "State"))
	}
	return tw.Flush()
}
