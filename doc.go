// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

/*
	Package cas implements a client for CAS, an in-memory, server-hosted
	analytics engine. CAS performs all substantive computation server
	side; clients drive it through sessions in which named actions
	("set.action", e.g. image.loadImages or deepLearn.dlTrain) are
	invoked with a tree of parameters and return a tree of results.
	This package owns the driver side of that contract: connections,
	session lifecycle, the action calling convention, parameter
	encoding, result decoding, error classification, and retries.

	A typical exchange:

		client, err := cas.Dial(ctx, "https://cas.corp:8777", cas.Token(token))
		...
		sess, err := client.NewSession(ctx, "training")
		...
		defer sess.Close(ctx)
		res, err := sess.Do(ctx, "table.tableInfo", cas.Values{
			"table": cas.Table{Name: "digits"},
		})

	Action sets build typed wrappers on top of Do: see packages table,
	sampling, casimage, deeplearn, and astore. Package dlpipe sequences
	them into the full image classification workflow, and package
	castest provides a hermetic in-process engine double for tests.

	Tables and caslibs

	Data on a CAS server lives in named in-memory tables, scoped to the
	session that created them unless promoted to global scope. Tables
	are referenced by Table values, which may carry a where clause and
	a column projection; the engine evaluates both. Caslibs name
	server-side data locations (directories, object stores) from which
	tables and images are loaded and into which artifacts are saved.

	Errors

	All errors returned by this package are
	github.com/grailbio/base/errors errors. Engine dispositions are
	mapped onto error kinds (e.g., a "notFound" disposition has kind
	errors.NotExist), so callers can match on semantics rather than
	message text. Transport failures have kind errors.Net and are
	retried according to the client's retry policy.
*/
package cas
