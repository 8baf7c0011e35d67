// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/cas"
	"github.com/grailbio/cas/dlpipe"
)

func runCmd(ctx context.Context, client *cas.Client, args []string) error {
	flags := flag.NewFlagSet("casdl run", flag.ExitOnError)
	var (
		keep    = flags.Bool("keep", false, "keep intermediate tables and any created caslib")
		quiet   = flags.Bool("quiet", false, "suppress per-stage progress logging")
		through = flags.String("through", dlpipe.StageExport.String(), "last stage to run")
		from    = flags.String("from", "", "start from this global image table instead of loading")
	)
	flags.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: casdl run [-keep] [-quiet] [-through stage] [-from table] pipeline.yaml\n")
		flags.PrintDefaults()
		os.Exit(2)
	}
	flags.Parse(args)
	if flags.NArg() != 1 {
		flags.Usage()
	}
	stage, err := dlpipe.ParseStage(*through)
	if err != nil {
		return err
	}
	spec, err := dlpipe.Load(ctx, flags.Arg(0))
	if err != nil {
		return err
	}
	report, err := dlpipe.RunStages(ctx, client, spec, stage, runOpts(*keep, *quiet, *from)...)
	if err != nil {
		return err
	}
	_, err = report.WriteTo(os.Stdout)
	return err
}

func trainCmd(ctx context.Context, client *cas.Client, args []string) error {
	flags := flag.NewFlagSet("casdl train", flag.ExitOnError)
	var (
		model = flags.String("model", "", "train only the named model from the spec")
		keep  = flags.Bool("keep", false, "keep the trained weights tables")
		quiet = flags.Bool("quiet", false, "suppress per-stage progress logging")
		from  = flags.String("from", "", "start from this global image table instead of loading")
	)
	flags.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: casdl train [-model name] [-keep] [-quiet] [-from table] pipeline.yaml\n")
		flags.PrintDefaults()
		os.Exit(2)
	}
	flags.Parse(args)
	if flags.NArg() != 1 {
		flags.Usage()
	}
	spec, err := dlpipe.Load(ctx, flags.Arg(0))
	if err != nil {
		return err
	}
	if *model != "" {
		var kept []dlpipe.ModelSpec
		for _, ms := range spec.Models {
			if ms.Name == *model {
				kept = append(kept, ms)
			}
		}
		if len(kept) == 0 {
			return errors.E(errors.NotExist, fmt.Sprintf("no model %q in %s", *model, flags.Arg(0)))
		}
		spec.Models = kept
	}
	// The export stage does not run, so the chosen model's only job
	// is to validate.
	spec.Export.Model = "best"
	report, err := dlpipe.RunStages(ctx, client, spec, dlpipe.StageTrain, runOpts(*keep, *quiet, *from)...)
	if err != nil {
		return err
	}
	_, err = report.WriteTo(os.Stdout)
	return err
}

func runOpts(keep, quiet bool, from string) []dlpipe.Option {
	var opts []dlpipe.Option
	if keep {
		opts = append(opts, dlpipe.Keep())
	}
	if quiet {
		opts = append(opts, dlpipe.Quiet())
	}
	if from != "" {
		opts = append(opts, dlpipe.FromTable(cas.Tbl("", from)))
	}
	return opts
}
