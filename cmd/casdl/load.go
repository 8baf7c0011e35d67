// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"flag"
	"fmt"
	"image/png"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/cas"
	"github.com/grailbio/cas/casimage"
)

func loadCmd(ctx context.Context, client *cas.Client, args []string) error {
	flags := flag.NewFlagSet("casdl load", flag.ExitOnError)
	var (
		caslib  = flags.String("caslib", "", "caslib to load from; name=path binds it first")
		subdirs = flags.Bool("subdirs", false, "expose subdirectories when binding the caslib")
		sub     = flags.String("path", "", "load only this subdirectory of the caslib")
		out     = flags.String("out", "", "name of the loaded table")
	)
	flags.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: casdl load -caslib name[=path] -out table [-path subdir] [-subdirs]\n")
		flags.PrintDefaults()
		os.Exit(2)
	}
	flags.Parse(args)
	if *caslib == "" || *out == "" || flags.NArg() != 0 {
		flags.Usage()
	}
	sess, err := dialSession(ctx, client, "image")
	if err != nil {
		return err
	}
	defer closeSession(ctx, sess)
	name := *caslib
	if i := strings.IndexByte(name, '='); i >= 0 {
		path := name[i+1:]
		name = name[:i]
		err := sess.AddCaslib(ctx, name, path, *subdirs)
		if err != nil && !errors.Is(errors.Exists, err) {
			return err
		}
	}
	// The table outlives this command's session, so later commands
	// and runs can use it.
	res, err := casimage.Load(ctx, sess, casimage.LoadParams{
		Caslib:  name,
		Path:    *sub,
		Out:     cas.Tbl("", *out),
		Promote: true,
	})
	if err != nil {
		return err
	}
	if res.Images == 0 {
		return errors.E(errors.NotExist, fmt.Sprintf("no images in caslib %s path %q", name, *sub))
	}
	sum, err := casimage.Summarize(ctx, sess, res.Table)
	if err != nil {
		return err
	}
	fmt.Printf("%s: %d images, %d labels, %dx%d to %dx%d\n",
		res.Table, sum.Images, len(sum.Labels),
		sum.MinWidth, sum.MinHeight, sum.MaxWidth, sum.MaxHeight)
	var tw tabwriter.Writer
	tw.Init(os.Stdout, 4, 4, 1, ' ', 0)
	for _, lc := range sum.Labels {
		fmt.Fprintf(&tw, "\t%s\t%d\n", lc.Label, lc.Count)
	}
	return tw.Flush()
}

func samplesCmd(ctx context.Context, client *cas.Client, args []string) error {
	flags := flag.NewFlagSet("casdl samples", flag.ExitOnError)
	var (
		tbl  = flags.String("table", "", "global image table to sample")
		n    = flags.Int("n", 8, "number of images on the sheet")
		cols = flags.Int("cols", 4, "images per row")
		cell = flags.Int("cell", 64, "cell size in pixels")
		out  = flags.String("o", "samples.png", "output file, local or s3")
	)
	flags.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: casdl samples -table table [-n 8] [-cols 4] [-cell 64] [-o samples.png]\n")
		flags.PrintDefaults()
		os.Exit(2)
	}
	flags.Parse(args)
	if *tbl == "" || flags.NArg() != 0 {
		flags.Usage()
	}
	sess, err := dialSession(ctx, client, "image")
	if err != nil {
		return err
	}
	defer closeSession(ctx, sess)
	samples, err := casimage.FetchSample(ctx, sess, cas.Tbl("", *tbl), *n)
	if err != nil {
		return err
	}
	if len(samples) == 0 {
		return errors.E(errors.NotExist, fmt.Sprintf("table %s has no images", *tbl))
	}
	sheet := casimage.ContactSheet(samples, *cols, *cell)
	f, err := file.Create(ctx, *out)
	if err != nil {
		return err
	}
	if err := png.Encode(f.Writer(ctx), sheet); err != nil {
		f.Close(ctx)
		return errors.E("encode "+*out, err)
	}
	if err := f.Close(ctx); err != nil {
		return err
	}
	log.Printf("wrote %d samples to %s", len(samples), *out)
	return nil
}
