// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package casimage wraps the engine's image action set: loading
// directory trees of labeled images into tables, resizing and
// augmenting them, writing them back out, and pulling decoded samples
// down for inspection. Image tables use the engine's fixed schema
// (_id_, _path_, _label_, _image_, _width_, _height_, _channels_);
// the label of an image is the base name of its parent directory.
package casimage

import (
	"context"
	"fmt"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/cas"
)

// LoadParams configures Load.
type LoadParams struct {
	// Caslib is the data source library holding the images.
	Caslib string
	// Path restricts the load to a subdirectory of the caslib. Empty
	// loads the whole tree.
	Path string
	// Out names the output table.
	Out cas.Table
	// Promote makes the output table global, visible to every
	// session, instead of scoped to this one.
	Promote bool
}

// LoadResult reports a completed load.
type LoadResult struct {
	// Table is the output table.
	Table cas.Table
	// Images is the number of images loaded.
	Images int64
}

// Load recursively loads the caslib's images into a table via
// image.loadImages. Loading an empty tree succeeds with a zero count
// and a server warning.
func Load(ctx context.Context, sess *cas.Session, p LoadParams) (*LoadResult, error) {
	if p.Out.IsZero() {
		return nil, errors.E(errors.Invalid, "load images: no output table")
	}
	params := cas.Values{
		"caslib": p.Caslib,
		"casOut": p.Out,
	}
	if p.Path != "" {
		params["path"] = p.Path
	}
	if p.Promote {
		params["promote"] = true
	}
	res, err := sess.Do(ctx, "image.loadImages", params)
	if err != nil {
		return nil, err
	}
	return &LoadResult{Table: p.Out, Images: res.Int("imagesLoaded")}, nil
}

// SaveParams configures Save.
type SaveParams struct {
	// Table is the image table to write out.
	Table cas.Table
	// Caslib is the destination library.
	Caslib string
	// Path is the destination subdirectory within the caslib.
	Path string
	// Prefix names the written files Prefix<id>.png. Empty means
	// "img".
	Prefix string
}

// Save writes the table's images into a caslib as PNG files via
// image.saveImages. It returns the number of images written.
func Save(ctx context.Context, sess *cas.Session, p SaveParams) (int64, error) {
	params := cas.Values{
		"table":  p.Table,
		"caslib": p.Caslib,
	}
	if p.Path != "" {
		params["path"] = p.Path
	}
	if p.Prefix != "" {
		params["prefix"] = p.Prefix
	}
	res, err := sess.Do(ctx, "image.saveImages", params)
	if err != nil {
		return 0, err
	}
	return res.Int("imagesSaved"), nil
}

// Resize rescales every image in the table to width by height pixels
// via image.processImages, writing the result to out. Model inputs
// expect a uniform size, so a resize typically precedes training.
func Resize(ctx context.Context, sess *cas.Session, tbl cas.Table, width, height int, out cas.Table) (*LoadResult, error) {
	if width <= 0 || height <= 0 {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("resize %s: dimensions %dx%d must be positive", tbl, width, height))
	}
	res, err := sess.Do(ctx, "image.processImages", cas.Values{
		"table":  tbl,
		"width":  width,
		"height": height,
		"casOut": out,
	})
	if err != nil {
		return nil, err
	}
	return &LoadResult{Table: out, Images: res.Int("imagesProcessed")}, nil
}

// Flip selects the mirror variants generated by Augment.
type Flip string

const (
	FlipNone Flip = "none"
	FlipH    Flip = "h"
	FlipV    Flip = "v"
	FlipHV   Flip = "hv"
)

// AugmentParams configures Augment.
type AugmentParams struct {
	// Table is the input image table.
	Table cas.Table
	// Out names the output table.
	Out cas.Table
	// Flip selects mirror variants. The zero value means none.
	Flip Flip
	// CropWidth and CropHeight give the size of random crops. Both
	// must be set together.
	CropWidth  int
	CropHeight int
	// Crops is the number of crop variants per image. Values above
	// one multiply the output.
	Crops int
}

// AugmentResult reports a completed augmentation.
type AugmentResult struct {
	// Table is the output table.
	Table cas.Table
	// Images is the number of output images.
	Images int64
	// Factor is the multiplication factor applied to the input rows.
	Factor int64
}

// Augment expands the table with flipped and cropped variants of each
// image via image.augmentImages. Every input row appears in the
// output with its original label; variants carry derived paths.
func Augment(ctx context.Context, sess *cas.Session, p AugmentParams) (*AugmentResult, error) {
	params := cas.Values{
		"table":  p.Table,
		"casOut": p.Out,
	}
	if p.Flip != "" {
		params["randomFlip"] = string(p.Flip)
	}
	if p.CropWidth > 0 || p.CropHeight > 0 {
		params["cropWidth"] = p.CropWidth
		params["cropHeight"] = p.CropHeight
	}
	if p.Crops > 0 {
		params["nCrops"] = p.Crops
	}
	res, err := sess.Do(ctx, "image.augmentImages", params)
	if err != nil {
		return nil, err
	}
	return &AugmentResult{
		Table:  p.Out,
		Images: res.Int("imagesCreated"),
		Factor: res.Int("factor"),
	}, nil
}

// LabelCount is one row of a label frequency summary.
type LabelCount struct {
	Label string
	Count int64
}

// Summary describes an image table's size distribution and label mix.
type Summary struct {
	Images     int64
	MinWidth   int64
	MaxWidth   int64
	MinHeight  int64
	MaxHeight  int64
	MeanWidth  float64
	MeanHeight float64
	// Labels holds per-label image counts, sorted by label.
	Labels []LabelCount
}

// Summarize reports the table's image dimensions and label counts via
// image.summarizeImages.
func Summarize(ctx context.Context, sess *cas.Session, tbl cas.Table) (*Summary, error) {
	res, err := sess.Do(ctx, "image.summarizeImages", cas.Values{"table": tbl})
	if err != nil {
		return nil, err
	}
	tab := res.Table("ImageSummary")
	if tab == nil || tab.NumRows() == 0 {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("summarize %s: no ImageSummary table in results", tbl))
	}
	sum := &Summary{
		Images:     tab.Int(0, "Images"),
		MinWidth:   tab.Int(0, "MinWidth"),
		MaxWidth:   tab.Int(0, "MaxWidth"),
		MinHeight:  tab.Int(0, "MinHeight"),
		MaxHeight:  tab.Int(0, "MaxHeight"),
		MeanWidth:  tab.Float(0, "MeanWidth"),
		MeanHeight: tab.Float(0, "MeanHeight"),
	}
	if freq := res.Table("LabelFrequency"); freq != nil {
		sum.Labels = make([]LabelCount, freq.NumRows())
		for i := range sum.Labels {
			sum.Labels[i] = LabelCount{
				Label: freq.Str(i, "Label"),
				Count: freq.Int(i, "Frequency"),
			}
		}
	}
	return sum, nil
}
