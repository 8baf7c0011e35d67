// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package casconfig creates cas clients from a shared configuration.
// Casconfig uses the configuration mechanism in package
// github.com/grailbio/base/config, and reads a default profile from
// $HOME/.cas/config. A minimal profile names the engine endpoint and
// its credentials:
//
//	param cas addr = "analytics.corp.example.com:5570"
//	param cas token = "..."
//
// Programs call Parse from main to obtain a client configured by the
// profile and by any -set flags given on the command line:
//
//	client, shutdown := casconfig.Parse()
//	defer shutdown()
//
// Casconfig also registers the s3 file implementation so that caslib
// paths and astore artifact paths may name s3:// URLs directly.
package casconfig

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/grailbio/base/config"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/file/s3file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/must"
	"github.com/grailbio/cas"
)

// Path determines the location of the cas profile read by Parse.
var Path = os.ExpandEnv("$HOME/.cas/config")

// s3Retries is the retry budget given to the AWS SDK. Astore blobs
// move in single large requests, which see throttling more often
// than the SDK's default budget tolerates.
const s3Retries = 10

func init() {
	file.RegisterImplementation("s3", func() file.Implementation {
		return s3file.NewImplementation(
			s3file.NewDefaultProvider(aws.NewConfig().WithMaxRetries(s3Retries)),
			s3file.Options{},
		)
	})
	config.Register("cas", func(constr *config.Constructor[any]) {
		var (
			addr      string
			token     string
			username  string
			password  string
			timeout   string
			tracePath string
		)
		constr.StringVar(&addr, "addr", "localhost:5570", "address of the engine endpoint")
		constr.StringVar(&token, "token", "", "bearer token presented to the engine; takes precedence over username")
		constr.StringVar(&username, "username", "", "basic-auth username")
		constr.StringVar(&password, "password", "", "basic-auth password")
		constr.StringVar(&timeout, "timeout", "1m", "bound on dialing and validating the endpoint")
		constr.StringVar(&tracePath, "trace-path", "", "path to which an action trace is written on close")
		constr.Doc = "cas configures the client used to reach a cas engine"
		constr.New = func() (interface{}, error) {
			d, err := time.ParseDuration(timeout)
			if err != nil {
				return nil, errors.E(errors.Invalid, "cas.timeout: "+timeout, err)
			}
			var opts []cas.Option
			switch {
			case token != "":
				opts = append(opts, cas.Token(token))
			case username != "":
				opts = append(opts, cas.UserPass(username, password))
			}
			if tracePath != "" {
				opts = append(opts, cas.TracePath(tracePath))
			}
			ctx, cancel := context.WithTimeout(context.Background(), d)
			defer cancel()
			return cas.Dial(ctx, addr, opts...)
		}
	})
}

// Parse registers configuration flags and calls flag.Parse. It reads
// the cas configuration from Path defined in this package. Parse
// returns a client dialed per the configuration and any flags
// provided, together with a shutdown function that closes it. Parse
// panics if the client cannot be created.
func Parse() (client *cas.Client, shutdown func()) {
	config.RegisterFlags("", Path)
	flag.Parse()
	must.Nil(config.ProcessFlags())
	config.Must("cas", &client)
	return client, func() {
		if err := client.Close(context.Background()); err != nil {
			log.Error.Printf("cas: close %s: %v", client.Addr(), err)
		}
	}
}
