// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package castest

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"path"
	"sort"
	"strings"

	"github.com/spaolacci/murmur3"
)

// imageCols is the schema of tables produced by loadImages.
var imageCols = []column{
	{"_id_", typeInt},
	{"_path_", typeString},
	{"_label_", typeString},
	{"_image_", typeBlob},
	{"_width_", typeInt},
	{"_height_", typeInt},
	{"_channels_", typeInt},
}

// pathSeed derives the deterministic pixel seed for an image path.
// Resize and augmentation resynthesize pixels from the same seed, so
// derived images of one source stay recognizably related.
func pathSeed(p string) uint64 {
	return murmur3.Sum64([]byte(p))
}

// synthPNG renders a deterministic w by h PNG for the given seed: a
// solid background with two seed-placed rectangles. The content only
// matters insofar as it is stable and varies by seed.
func synthPNG(seed uint64, w, h int) []byte {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	bg := color.NRGBA{
		R: byte(seed),
		G: byte(seed >> 8),
		B: byte(seed >> 16),
		A: 255,
	}
	fg := color.NRGBA{
		R: byte(seed >> 24),
		G: byte(seed >> 32),
		B: byte(seed >> 40),
		A: 255,
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, bg)
		}
	}
	// Two rectangles, placed and sized by the seed, both clipped to
	// the image bounds.
	for r := 0; r < 2; r++ {
		shift := uint(16 * r)
		x0 := int(seed>>shift) % w
		y0 := int(seed>>(shift+4)) % h
		rw := 1 + int(seed>>(shift+8))%(w/2+1)
		rh := 1 + int(seed>>(shift+12))%(h/2+1)
		for y := y0; y < y0+rh && y < h; y++ {
			for x := x0; x < x0+rw && x < w; x++ {
				img.SetNRGBA(x, y, fg)
			}
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

func actionLoadImages(e *engine, s *session, p params) *reply {
	lib, found := e.lib(p.str("caslib", ""))
	if !found {
		return fail("notFound", "caslib %q not found", p.str("caslib", ""))
	}
	out, given := p.tableRef("casOut")
	if !given || out.name == "" {
		return fail("invalidParameter", "casOut parameter is required")
	}
	if p.boolean("promote", false) {
		out.promote = true
	}
	prefix := strings.Trim(p.str("path", ""), "/")
	var rels []string
	for rel := range e.files[lib.path] {
		if !strings.EqualFold(path.Ext(rel), ".png") {
			continue
		}
		if prefix != "" && prefix != "." && rel != prefix && !strings.HasPrefix(rel, prefix+"/") {
			continue
		}
		rels = append(rels, rel)
	}
	sort.Strings(rels)
	rows := make([][]interface{}, 0, len(rels))
	for _, rel := range rels {
		data := e.files[lib.path][rel]
		cfg, err := png.DecodeConfig(bytes.NewReader(data))
		if err != nil {
			return fail("typeMismatch", "cannot decode %q: %v", rel, err)
		}
		label := ""
		if dir := path.Dir(rel); dir != "." {
			label = path.Base(dir)
		}
		rows = append(rows, []interface{}{
			int64(len(rows) + 1),
			rel,
			label,
			append([]byte{}, data...),
			int64(cfg.Width),
			int64(cfg.Height),
			int64(3),
		})
	}
	t := &table{cols: append([]column{}, imageCols...), rows: rows}
	e.put(s, out, t)
	r := ok(map[string]interface{}{
		"imagesLoaded": int64(len(rows)),
		"tableName":    out.name,
	})
	if len(rows) == 0 {
		return r.warnf("no images found under %q in caslib %q", p.str("path", ""), lib.name)
	}
	return r.notef("loaded %d images into %s", len(rows), out)
}

func actionSaveImages(e *engine, s *session, p params) *reply {
	t, r := imageTable(e, s, p)
	if r != nil {
		return r
	}
	lib, found := e.lib(p.str("caslib", ""))
	if !found {
		return fail("notFound", "caslib %q not found", p.str("caslib", ""))
	}
	dir := strings.Trim(p.str("path", ""), "/")
	prefix := p.str("prefix", "img")
	dirFiles := e.files[lib.path]
	if dirFiles == nil {
		dirFiles = make(map[string][]byte)
		e.files[lib.path] = dirFiles
	}
	id, img := t.col("_id_"), t.col("_image_")
	for _, row := range t.rows {
		name := fmt.Sprintf("%s%d.png", prefix, row[id].(int64))
		if dir != "" {
			name = path.Join(dir, name)
		}
		data, _ := row[img].([]byte)
		dirFiles[name] = append([]byte{}, data...)
	}
	r2 := ok(map[string]interface{}{"imagesSaved": int64(len(t.rows))})
	return r2.notef("saved %d images to caslib %q", len(t.rows), lib.name)
}

func actionProcessImages(e *engine, s *session, p params) *reply {
	t, r := imageTable(e, s, p)
	if r != nil {
		return r
	}
	w := p.integer("width", 0)
	h := p.integer("height", 0)
	if w <= 0 || h <= 0 {
		return fail("invalidParameter", "width and height must be positive, got %dx%d", w, h)
	}
	out, given := p.tableRef("casOut")
	if !given || out.name == "" {
		return fail("invalidParameter", "casOut parameter is required")
	}
	resized := &table{cols: append([]column{}, imageCols...)}
	pathIdx := t.col("_path_")
	labelIdx := t.col("_label_")
	for i, row := range t.rows {
		rel := row[pathIdx].(string)
		resized.rows = append(resized.rows, []interface{}{
			int64(i + 1),
			rel,
			row[labelIdx],
			synthPNG(pathSeed(rel), w, h),
			int64(w),
			int64(h),
			int64(3),
		})
	}
	e.put(s, out, resized)
	r2 := ok(map[string]interface{}{
		"imagesProcessed": int64(len(resized.rows)),
		"tableName":       out.name,
	})
	return r2.notef("resized %d images to %dx%d", len(resized.rows), w, h)
}

func actionAugmentImages(e *engine, s *session, p params) *reply {
	t, r := imageTable(e, s, p)
	if r != nil {
		return r
	}
	out, given := p.tableRef("casOut")
	if !given || out.name == "" {
		return fail("invalidParameter", "casOut parameter is required")
	}
	flip := strings.ToLower(p.str("randomFlip", "none"))
	flipFactor := 0
	switch flip {
	case "none":
		flipFactor = 1
	case "h", "v":
		flipFactor = 2
	case "hv":
		flipFactor = 4
	default:
		return fail("invalidParameter", "randomFlip must be none, h, v, or hv, got %q", flip)
	}
	cropW := p.integer("cropWidth", 0)
	cropH := p.integer("cropHeight", 0)
	if (cropW > 0) != (cropH > 0) {
		return fail("invalidParameter", "cropWidth and cropHeight must be given together")
	}
	nCrops := p.integer("nCrops", 0)
	if nCrops > 0 && cropW <= 0 {
		return fail("invalidParameter", "nCrops requires cropWidth and cropHeight")
	}
	factor := flipFactor
	if nCrops > 1 {
		factor *= nCrops
	}
	pathIdx := t.col("_path_")
	labelIdx := t.col("_label_")
	wIdx, hIdx := t.col("_width_"), t.col("_height_")
	augmented := &table{cols: append([]column{}, imageCols...)}
	for _, row := range t.rows {
		rel := row[pathIdx].(string)
		w, h := int(row[wIdx].(int64)), int(row[hIdx].(int64))
		if cropW > 0 {
			w, h = cropW, cropH
		}
		for k := 0; k < factor; k++ {
			variant := rel
			if k > 0 {
				variant = fmt.Sprintf("%s#aug%d", rel, k)
			}
			augmented.rows = append(augmented.rows, []interface{}{
				int64(len(augmented.rows) + 1),
				variant,
				row[labelIdx],
				synthPNG(pathSeed(variant), w, h),
				int64(w),
				int64(h),
				int64(3),
			})
		}
	}
	e.put(s, out, augmented)
	r2 := ok(map[string]interface{}{
		"imagesCreated": int64(len(augmented.rows)),
		"factor":        int64(factor),
		"tableName":     out.name,
	})
	return r2.notef("augmented %d images into %d", len(t.rows), len(augmented.rows))
}

func actionSummarizeImages(e *engine, s *session, p params) *reply {
	t, r := imageTable(e, s, p)
	if r != nil {
		return r
	}
	wIdx, hIdx := t.col("_width_"), t.col("_height_")
	labelIdx := t.col("_label_")
	var (
		minW, maxW, minH, maxH int64
		sumW, sumH             int64
	)
	freq := make(map[string]int64)
	for i, row := range t.rows {
		w, h := row[wIdx].(int64), row[hIdx].(int64)
		if i == 0 || w < minW {
			minW = w
		}
		if w > maxW {
			maxW = w
		}
		if i == 0 || h < minH {
			minH = h
		}
		if h > maxH {
			maxH = h
		}
		sumW += w
		sumH += h
		freq[row[labelIdx].(string)]++
	}
	n := int64(len(t.rows))
	meanW, meanH := 0.0, 0.0
	if n > 0 {
		meanW = float64(sumW) / float64(n)
		meanH = float64(sumH) / float64(n)
	}
	summaryCols := []column{
		{"Images", typeInt},
		{"MinWidth", typeInt},
		{"MaxWidth", typeInt},
		{"MinHeight", typeInt},
		{"MaxHeight", typeInt},
		{"MeanWidth", typeDouble},
		{"MeanHeight", typeDouble},
	}
	summaryRows := [][]interface{}{{n, minW, maxW, minH, maxH, meanW, meanH}}
	labels := make([]string, 0, len(freq))
	for label := range freq {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	freqRows := make([][]interface{}, len(labels))
	for i, label := range labels {
		freqRows[i] = []interface{}{label, freq[label]}
	}
	freqCols := []column{{"Label", typeString}, {"Frequency", typeInt}}
	return ok(map[string]interface{}{
		"images":         n,
		"ImageSummary":   resultTable("ImageSummary", "Image Summary", summaryCols, summaryRows),
		"LabelFrequency": resultTable("LabelFrequency", "Images per Label", freqCols, freqRows),
	})
}

// imageTable resolves the action's table parameter and checks that
// it has the image schema.
func imageTable(e *engine, s *session, p params) (*table, *reply) {
	ref, given := p.tableRef("table")
	if !given {
		return nil, fail("invalidParameter", "table parameter is required")
	}
	t, found := e.resolve(s, ref)
	if !found {
		return nil, fail("notFound", "table %s not found", ref)
	}
	if t.col("_image_") < 0 || t.col("_path_") < 0 {
		return nil, fail("typeMismatch", "table %s is not an image table", ref)
	}
	if ref.where != "" {
		rows, r := filterRows(t, ref.where)
		if r != nil {
			return nil, r
		}
		filtered := &table{name: t.name, caslib: t.caslib, cols: t.cols, rows: rows}
		return filtered, nil
	}
	return t, nil
}
