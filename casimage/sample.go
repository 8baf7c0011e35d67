// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package casimage

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/png"

	"golang.org/x/image/draw"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/cas"
	"github.com/grailbio/cas/casio"
)

// A Sample is one decoded image pulled from an image table.
type Sample struct {
	Path  string
	Label string
	Image image.Image
}

// FetchSample pulls up to n decoded images from the table, in path
// order. Rows whose blobs do not decode are skipped with a logged
// warning; restrict or relabel with the table reference's Where as
// usual.
func FetchSample(ctx context.Context, sess *cas.Session, tbl cas.Table, n int) ([]Sample, error) {
	if n <= 0 {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("fetch sample %s: n must be positive, got %d", tbl, n))
	}
	scan := casio.NewScanner(sess, tbl,
		casio.Columns("_path_", "_label_", "_image_"),
		casio.SortBy("_path_"),
		casio.MaxRows(n),
	)
	defer scan.Close()
	var samples []Sample
	var (
		path  string
		label string
		blob  []byte
	)
	for scan.Scan(ctx, &path, &label, &blob) {
		img, _, err := image.Decode(bytes.NewReader(blob))
		if err != nil {
			log.Error.Printf("cas/casimage: skipping %s: %v", path, err)
			continue
		}
		samples = append(samples, Sample{Path: path, Label: label, Image: img})
	}
	if err := scan.Err(); err != nil {
		return nil, err
	}
	return samples, nil
}

// ContactSheet lays the samples out on a grid of cols columns with
// square cells of the given pixel size, scaling each image to fit its
// cell with aspect preserved. Nonpositive cols or cell fall back to 4
// and 64.
func ContactSheet(samples []Sample, cols, cell int) *image.NRGBA {
	if cols < 1 {
		cols = 4
	}
	if cell < 1 {
		cell = 64
	}
	rows := (len(samples) + cols - 1) / cols
	if rows < 1 {
		rows = 1
	}
	sheet := image.NewNRGBA(image.Rect(0, 0, cols*cell, rows*cell))
	for i, sample := range samples {
		cx := (i % cols) * cell
		cy := (i / cols) * cell
		b := sample.Image.Bounds()
		if b.Dx() == 0 || b.Dy() == 0 {
			continue
		}
		// Fit inside the cell, centered.
		w, h := cell, cell
		if b.Dx() >= b.Dy() {
			h = b.Dy() * cell / b.Dx()
		} else {
			w = b.Dx() * cell / b.Dy()
		}
		dst := image.Rect(0, 0, w, h).Add(image.Pt(cx+(cell-w)/2, cy+(cell-h)/2))
		draw.ApproxBiLinear.Scale(sheet, dst, sample.Image, b, draw.Src, nil)
	}
	return sheet
}
