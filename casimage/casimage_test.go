// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package casimage_test

import (
	"archive/tar"
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"io/ioutil"
	"reflect"
	"testing"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/cas"
	"github.com/grailbio/cas/casimage"
	"github.com/grailbio/cas/castest"
	"github.com/grailbio/cas/table"
)

// loadPhotos seeds a two-label image tree and loads it into a session
// table named "photos".
func loadPhotos(t *testing.T, sess *cas.Session, srv *castest.Server) cas.Table {
	t.Helper()
	srv.AddImageDir("photos", "/photos", []string{"cat", "dog"}, 3)
	res, err := casimage.Load(context.Background(), sess, casimage.LoadParams{
		Caslib: "photos",
		Out:    cas.Tbl("", "photos"),
	})
	if err != nil {
		t.Fatalf("load images: %v", err)
	}
	if got, want := res.Images, int64(6); got != want {
		t.Fatalf("loaded %d images, want %d", got, want)
	}
	return res.Table
}

func TestLoadSummarize(t *testing.T) {
	sess, srv := castest.StartSession(t, "image")
	tbl := loadPhotos(t, sess, srv)
	sum, err := casimage.Summarize(context.Background(), sess, tbl)
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if got, want := sum.Images, int64(6); got != want {
		t.Errorf("got %d images, want %d", got, want)
	}
	if sum.MinWidth != 64 || sum.MaxWidth != 64 || sum.MinHeight != 64 || sum.MaxHeight != 64 {
		t.Errorf("got dimensions %dx%d..%dx%d, want uniform 64x64",
			sum.MinWidth, sum.MinHeight, sum.MaxWidth, sum.MaxHeight)
	}
	want := []casimage.LabelCount{{Label: "cat", Count: 3}, {Label: "dog", Count: 3}}
	if !reflect.DeepEqual(sum.Labels, want) {
		t.Errorf("got labels %+v, want %+v", sum.Labels, want)
	}
}

func TestLoadSubdir(t *testing.T) {
	sess, srv := castest.StartSession(t, "image")
	srv.AddImageDir("photos", "/photos", []string{"cat", "dog"}, 3)
	res, err := casimage.Load(context.Background(), sess, casimage.LoadParams{
		Caslib: "photos",
		Path:   "dog",
		Out:    cas.Tbl("", "dogs"),
	})
	if err != nil {
		t.Fatalf("load images: %v", err)
	}
	if got, want := res.Images, int64(3); got != want {
		t.Errorf("loaded %d images, want %d", got, want)
	}
}

func TestLoadPromote(t *testing.T) {
	ctx := context.Background()
	sess, srv := castest.StartSession(t, "image")
	srv.AddImageDir("photos", "/photos", []string{"cat", "dog"}, 3)
	res, err := casimage.Load(ctx, sess, casimage.LoadParams{
		Caslib:  "photos",
		Out:     cas.Tbl("", "photos_global"),
		Promote: true,
	})
	if err != nil {
		t.Fatalf("load images: %v", err)
	}
	if _, err := casimage.Load(ctx, sess, casimage.LoadParams{
		Caslib: "photos",
		Out:    cas.Tbl("", "photos_local"),
	}); err != nil {
		t.Fatalf("load images: %v", err)
	}
	other := castest.Dial(t, srv, "image")
	sum, err := casimage.Summarize(ctx, other, res.Table)
	if err != nil {
		t.Fatalf("summarize promoted table: %v", err)
	}
	if got, want := sum.Images, int64(6); got != want {
		t.Errorf("got %d images, want %d", got, want)
	}
	_, err = casimage.Summarize(ctx, other, cas.Tbl("", "photos_local"))
	if !errors.Is(errors.NotExist, err) {
		t.Errorf("got %v, want NotExist for session table in another session", err)
	}
}

func TestResize(t *testing.T) {
	sess, srv := castest.StartSession(t, "image")
	tbl := loadPhotos(t, sess, srv)
	ctx := context.Background()
	res, err := casimage.Resize(ctx, sess, tbl, 28, 28, cas.Tbl("", "small"))
	if err != nil {
		t.Fatalf("resize: %v", err)
	}
	if got, want := res.Images, int64(6); got != want {
		t.Errorf("resized %d images, want %d", got, want)
	}
	sum, err := casimage.Summarize(ctx, sess, res.Table)
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if sum.MinWidth != 28 || sum.MaxHeight != 28 {
		t.Errorf("got dimensions %dx%d..%dx%d, want uniform 28x28",
			sum.MinWidth, sum.MinHeight, sum.MaxWidth, sum.MaxHeight)
	}
}

func TestResizeBadDims(t *testing.T) {
	sess, _ := castest.StartSession(t, "image")
	for _, dims := range [][2]int{{0, 28}, {28, 0}, {-1, -1}} {
		_, err := casimage.Resize(context.Background(), sess, cas.Tbl("", "photos"),
			dims[0], dims[1], cas.Tbl("", "small"))
		if !errors.Is(errors.Invalid, err) {
			t.Errorf("resize %dx%d: got %v, want Invalid", dims[0], dims[1], err)
		}
	}
}

func TestAugment(t *testing.T) {
	sess, srv := castest.StartSession(t, "image")
	tbl := loadPhotos(t, sess, srv)
	ctx := context.Background()
	res, err := casimage.Augment(ctx, sess, casimage.AugmentParams{
		Table:      tbl,
		Out:        cas.Tbl("", "augmented"),
		Flip:       casimage.FlipH,
		CropWidth:  24,
		CropHeight: 24,
		Crops:      2,
	})
	if err != nil {
		t.Fatalf("augment: %v", err)
	}
	if got, want := res.Factor, int64(4); got != want {
		t.Errorf("got factor %d, want %d", got, want)
	}
	if got, want := res.Images, int64(24); got != want {
		t.Errorf("got %d images, want %d", got, want)
	}
	sum, err := casimage.Summarize(ctx, sess, res.Table)
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if sum.MinWidth != 24 || sum.MaxWidth != 24 {
		t.Errorf("got crop width %d..%d, want 24", sum.MinWidth, sum.MaxWidth)
	}
	want := []casimage.LabelCount{{Label: "cat", Count: 12}, {Label: "dog", Count: 12}}
	if !reflect.DeepEqual(sum.Labels, want) {
		t.Errorf("got labels %+v, want %+v", sum.Labels, want)
	}
}

func TestSave(t *testing.T) {
	sess, srv := castest.StartSession(t, "image")
	tbl := loadPhotos(t, sess, srv)
	n, err := casimage.Save(context.Background(), sess, casimage.SaveParams{
		Table:  tbl,
		Caslib: "photos",
		Path:   "out",
		Prefix: "pic",
	})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if got, want := n, int64(6); got != want {
		t.Errorf("saved %d images, want %d", got, want)
	}
	data, ok := srv.File("photos", "out/pic1.png")
	if !ok {
		t.Fatal("out/pic1.png not written")
	}
	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode saved image: %v", err)
	}
	if cfg.Width != 64 || cfg.Height != 64 {
		t.Errorf("saved image is %dx%d, want 64x64", cfg.Width, cfg.Height)
	}
}

func TestFetchSample(t *testing.T) {
	sess, srv := castest.StartSession(t, "image")
	tbl := loadPhotos(t, sess, srv)
	samples, err := casimage.FetchSample(context.Background(), sess, tbl, 4)
	if err != nil {
		t.Fatalf("fetch sample: %v", err)
	}
	if got, want := len(samples), 4; got != want {
		t.Fatalf("got %d samples, want %d", got, want)
	}
	// Path order puts the three cat images first.
	if got, want := samples[0].Path, "cat/img000.png"; got != want {
		t.Errorf("got first sample %q, want %q", got, want)
	}
	if got, want := samples[3].Label, "dog"; got != want {
		t.Errorf("got fourth label %q, want %q", got, want)
	}
	for _, s := range samples {
		b := s.Image.Bounds()
		if b.Dx() != 64 || b.Dy() != 64 {
			t.Errorf("sample %s decoded to %dx%d, want 64x64", s.Path, b.Dx(), b.Dy())
		}
	}
}

func TestFetchSampleWhere(t *testing.T) {
	sess, srv := castest.StartSession(t, "image")
	tbl := loadPhotos(t, sess, srv)
	samples, err := casimage.FetchSample(context.Background(), sess,
		tbl.WithWhere(`_label_ == "dog"`), 10)
	if err != nil {
		t.Fatalf("fetch sample: %v", err)
	}
	if got, want := len(samples), 3; got != want {
		t.Fatalf("got %d samples, want %d", got, want)
	}
	for _, s := range samples {
		if s.Label != "dog" {
			t.Errorf("sample %s has label %q, want dog", s.Path, s.Label)
		}
	}
}

func TestContactSheet(t *testing.T) {
	flat := func(w, h int, c color.NRGBA) image.Image {
		img := image.NewNRGBA(image.Rect(0, 0, w, h))
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				img.SetNRGBA(x, y, c)
			}
		}
		return img
	}
	samples := []casimage.Sample{
		{Path: "a", Image: flat(64, 64, color.NRGBA{R: 255, A: 255})},
		{Path: "b", Image: flat(32, 64, color.NRGBA{G: 255, A: 255})},
		{Path: "c", Image: flat(64, 32, color.NRGBA{B: 255, A: 255})},
	}
	sheet := casimage.ContactSheet(samples, 2, 32)
	if got, want := sheet.Bounds(), image.Rect(0, 0, 64, 64); got != want {
		t.Fatalf("got sheet bounds %v, want %v", got, want)
	}
	// The first cell is filled edge to edge by the square sample.
	if got := sheet.NRGBAAt(16, 16); got.R != 255 {
		t.Errorf("first cell center is %v, want red", got)
	}
	// The tall sample fills the cell's height but only half its
	// width, so the cell's left edge stays blank.
	if got := sheet.NRGBAAt(33, 16); got.G != 0 {
		t.Errorf("second cell left edge is %v, want blank", got)
	}
	if got := sheet.NRGBAAt(48, 16); got.G != 255 {
		t.Errorf("second cell center is %v, want green", got)
	}
}

func TestUploadTar(t *testing.T) {
	sess, _ := castest.StartSession(t)
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for _, entry := range []struct {
		name string
		body []byte
	}{
		{"cat/a.png", []byte("aaa")},
		{"dog/b.png", []byte("bbbb")},
	} {
		if err := tw.WriteHeader(&tar.Header{
			Name:     entry.name,
			Typeflag: tar.TypeReg,
			Mode:     0644,
			Size:     int64(len(entry.body)),
		}); err != nil {
			t.Fatal(err)
		}
		if _, err := tw.Write(entry.body); err != nil {
			t.Fatal(err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	archive := func() (io.ReadCloser, error) {
		return ioutil.NopCloser(bytes.NewReader(buf.Bytes())), nil
	}
	ctx := context.Background()
	res, err := casimage.UploadTar(ctx, sess, cas.Tbl("", "tarred"), archive)
	if err != nil {
		t.Fatalf("upload tar: %v", err)
	}
	if got, want := res.Files, 2; got != want {
		t.Errorf("got %d files, want %d", got, want)
	}
	tab, err := table.Fetch(ctx, sess, res.Table, table.SortBy("_path_"))
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if got, want := tab.Str(0, "_label_"), "cat"; got != want {
		t.Errorf("got first label %q, want %q", got, want)
	}
	if got, want := tab.Int(1, "_size_"), int64(4); got != want {
		t.Errorf("got second size %d, want %d", got, want)
	}
}
