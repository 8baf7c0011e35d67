// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Casfake serves the castest engine double on a real address, so
// casdl and pipeline specs can be exercised without an engine
// license. The double is deterministic; see package castest for what
// it does and does not emulate.
//
// Seeded caslibs are described as name=label1,label2:n, which binds
// a caslib at /name holding n synthetic images per label:
//
//	casfake -addr :5570 -images photos=cat,dog:25
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/grailbio/base/log"
	"github.com/grailbio/base/must"
	"github.com/grailbio/cas/castest"
)

func main() {
	log.AddFlags()
	log.SetFlags(0)
	log.SetPrefix("casfake: ")
	must.Func = func(_ int, v ...interface{}) { log.Fatal(v...) }
	var (
		addr   = flag.String("addr", ":5570", "address to listen on")
		token  = flag.String("token", "", "require this bearer token")
		nodes  = flag.Int("nodes", 0, "number of fake worker nodes (0 for the default)")
		images = flag.String("images", "", "seed caslibs: name=label1,label2:n, semicolon separated")
	)
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: casfake [-addr :5570] [-token secret] [-nodes n] [-images photos=cat,dog:25]\n")
		flag.PrintDefaults()
		os.Exit(2)
	}
	flag.Parse()
	if flag.NArg() != 0 {
		flag.Usage()
	}

	var opts []castest.Option
	if *token != "" {
		opts = append(opts, castest.WithToken(*token))
	}
	if *nodes > 0 {
		opts = append(opts, castest.WithNodes(*nodes))
	}
	srv := castest.New(opts...)
	defer srv.Close()
	for _, spec := range strings.Split(*images, ";") {
		if spec == "" {
			continue
		}
		name, labels, n, err := parseImageSpec(spec)
		must.Nil(err, "-images")
		srv.AddImageDir(name, "/"+name, labels, n)
		log.Printf("seeded caslib %s with %d images per label %v", name, n, labels)
	}
	log.Printf("serving engine double on %s", *addr)
	err := srv.ListenAndServe(*addr)
	if err != nil && err != http.ErrServerClosed {
		log.Fatal(err)
	}
}

// parseImageSpec splits name=label1,label2:n.
func parseImageSpec(spec string) (name string, labels []string, n int, err error) {
	eq := strings.IndexByte(spec, '=')
	colon := strings.LastIndexByte(spec, ':')
	if eq <= 0 || colon <= eq {
		return "", nil, 0, fmt.Errorf("malformed image spec %q", spec)
	}
	name = spec[:eq]
	labels = strings.Split(spec[eq+1:colon], ",")
	n, err = strconv.Atoi(spec[colon+1:])
	if err != nil || n <= 0 {
		return "", nil, 0, fmt.Errorf("malformed image count in %q", spec)
	}
	return name, labels, n, nil
}
