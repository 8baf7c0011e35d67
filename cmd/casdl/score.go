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

	"github.com/grailbio/base/data"
	"github.com/grailbio/base/log"
	"github.com/grailbio/cas"
	"github.com/grailbio/cas/astore"
	"github.com/grailbio/cas/deeplearn"
)

func scoreCmd(ctx context.Context, client *cas.Client, args []string) error {
	flags := flag.NewFlagSet("casdl score", flag.ExitOnError)
	var (
		tbl     = flags.String("table", "", "global image table to score")
		weights = flags.String("weights", "", "global weights table from a kept run")
		art     = flags.String("astore", "", "astore artifact file to score with instead of weights")
		out     = flags.String("out", "", "write per-row predictions to this table")
	)
	flags.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: casdl score -table table {-weights table | -astore file} [-out table]\n")
		flags.PrintDefaults()
		os.Exit(2)
	}
	flags.Parse(args)
	if *tbl == "" || (*weights == "") == (*art == "") || flags.NArg() != 0 {
		flags.Usage()
	}
	sess, err := dialSession(ctx, client, "deepLearn", "astore")
	if err != nil {
		return err
	}
	defer closeSession(ctx, sess)
	var res *deeplearn.ScoreResult
	if *weights != "" {
		res, err = deeplearn.Score(ctx, sess, deeplearn.ScoreParams{
			Table:   cas.Tbl("", *tbl),
			Weights: cas.Tbl("", *weights),
			Out:     cas.Tbl("", *out),
		})
	} else {
		store, uerr := astore.UploadFile(ctx, sess, *art, cas.Tbl("", "casdl_score"))
		if uerr != nil {
			return uerr
		}
		res, err = astore.Score(ctx, sess, astore.ScoreParams{
			Store: store,
			Table: cas.Tbl("", *tbl),
			Out:   cas.Tbl("", *out),
		})
	}
	if err != nil {
		return err
	}
	fmt.Printf("scored %d rows: %d misclassified (%.2f%%), loss %.4f\n",
		res.Rows, res.Misclassified, res.ErrorPct, res.Loss)
	var tw tabwriter.Writer
	tw.Init(os.Stdout, 4, 4, 1, ' ', 0)
	fmt.Fprintf(&tw, "\tclass\trows\tmisclassified\terror%%\n")
	for _, c := range res.ByClass {
		fmt.Fprintf(&tw, "\t%s\t%d\t%d\t%.2f\n", c.Label, c.N, c.Misclassified, c.ErrorPct)
	}
	return tw.Flush()
}

func exportCmd(ctx context.Context, client *cas.Client, args []string) error {
	flags := flag.NewFlagSet("casdl export", flag.ExitOnError)
	var (
		weights = flags.String("weights", "", "global weights table from a kept run")
		out     = flags.String("o", "", "artifact destination, local or s3")
	)
	flags.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: casdl export -weights table -o model.astore\n")
		flags.PrintDefaults()
		os.Exit(2)
	}
	flags.Parse(args)
	if *weights == "" || *out == "" || flags.NArg() != 0 {
		flags.Usage()
	}
	sess, err := dialSession(ctx, client, "deepLearn", "astore")
	if err != nil {
		return err
	}
	defer closeSession(ctx, sess)
	store := cas.Tbl("", *weights+"_astore")
	if _, err := deeplearn.Export(ctx, sess, cas.Tbl("", *weights), store); err != nil {
		return err
	}
	n, err := astore.Save(ctx, sess, store, *out)
	if err != nil {
		return err
	}
	info, err := astore.Describe(ctx, sess, store)
	if err != nil {
		return err
	}
	log.Printf("exported %s: model %s, %d classes, %s",
		*out, info.Model, info.Classes, data.Size(n))
	return nil
}
