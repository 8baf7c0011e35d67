// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package example

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"testing"

	"github.com/grailbio/cas"
	"github.com/grailbio/cas/casimage"
	"github.com/grailbio/cas/castest"
)

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewNRGBA(image.Rect(0, 0, 8, 8))); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestLabelBalance(t *testing.T) {
	ctx := context.Background()
	sess, srv := castest.StartSession(t, "image")
	srv.AddImageDir("photos", "/photos", []string{"cat", "dog"}, 4)
	// Skew the tree: twice as many dogs as cats.
	for _, rel := range []string{"dog/e1.png", "dog/e2.png", "dog/e3.png", "dog/e4.png"} {
		srv.AddFile("photos", rel, pngBytes(t))
	}
	res, err := casimage.Load(ctx, sess, casimage.LoadParams{
		Caslib: "photos",
		Out:    cas.Tbl("", "photos"),
	})
	if err != nil {
		t.Fatalf("load images: %v", err)
	}
	got, err := LabelBalance(ctx, sess, res.Table)
	if err != nil {
		t.Fatal(err)
	}
	if want := 2.0; got != want {
		t.Errorf("got balance %v, want %v", got, want)
	}
}
