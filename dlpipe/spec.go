// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package dlpipe

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/cas/casimage"
	"github.com/grailbio/cas/deeplearn"
	"gopkg.in/yaml.v3"
)

// An Arch names a network architecture the pipeline knows how to
// build.
type Arch string

const (
	// LeNet5 is built layer by layer.
	LeNet5 Arch = "lenet5"
	// VGG16 is built from the standard configuration, sized to the
	// data's label count, usually with imported pretrained weights.
	VGG16 Arch = "vgg16"
)

// A Spec describes one end-to-end run: where the labeled images
// live, how they are prepared and split, the models to train against
// them, and where the winning artifact goes. Specs are written as
// YAML and read with Load.
type Spec struct {
	// Name identifies the run and prefixes every table it creates.
	Name string `yaml:"name"`
	// Caslib is the data source the images are loaded from.
	Caslib CaslibSpec `yaml:"caslib"`
	// Images selects and samples the input images.
	Images ImagesSpec `yaml:"images"`
	// Resize, if present, rescales every image before training.
	Resize *ResizeSpec `yaml:"resize"`
	// Split carves the held-out validation partition.
	Split SplitSpec `yaml:"split"`
	// Augment, if present, expands the training partition with
	// flipped and cropped variants.
	Augment *AugmentSpec `yaml:"augment"`
	// Models are trained and scored in order.
	Models []ModelSpec `yaml:"models"`
	// Export names the model whose artifact is kept.
	Export ExportSpec `yaml:"export"`
	// SamplesDir, if set, receives a contact sheet of sample images.
	SamplesDir string `yaml:"samplesDir"`
}

// CaslibSpec binds a caslib name to a server-side path.
type CaslibSpec struct {
	Name    string `yaml:"name"`
	Path    string `yaml:"path"`
	Subdirs bool   `yaml:"subdirs"`
}

// ImagesSpec selects the images within the caslib.
type ImagesSpec struct {
	// Path restricts the load to a subdirectory. "." and "" load the
	// whole tree.
	Path string `yaml:"path"`
	// LabelLevels is the number of directory levels that carry the
	// label. Only the parent directory is supported.
	LabelLevels int `yaml:"labelLevels"`
	// SampleCount is the number of images on the sample sheet.
	SampleCount int `yaml:"sampleCount"`
}

// ResizeSpec rescales images to a fixed size.
type ResizeSpec struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// SplitSpec carves out the validation partition.
type SplitSpec struct {
	// Percent of rows held out for validation, in (0, 100).
	Percent float64 `yaml:"percent"`
	// Seed fixes the draw. Zero means the engine default.
	Seed int64 `yaml:"seed"`
}

// AugmentSpec expands the training partition.
type AugmentSpec struct {
	Flip       casimage.Flip `yaml:"flip"`
	Crops      int           `yaml:"crops"`
	CropWidth  int           `yaml:"cropWidth"`
	CropHeight int           `yaml:"cropHeight"`
}

// ModelSpec names one model to build and train.
type ModelSpec struct {
	Name string `yaml:"name"`
	Arch Arch   `yaml:"arch"`
	// Weights, if present, seeds training from a pretrained weight
	// file in a caslib.
	Weights *WeightsSpec `yaml:"weights"`
	Train   TrainSpec    `yaml:"train"`
}

// WeightsSpec locates a pretrained weight file.
type WeightsSpec struct {
	// Caslib holding the file. Empty means the spec's image caslib.
	Caslib string `yaml:"caslib"`
	Path   string `yaml:"path"`
	// Format is onnx, caffe, or keras. Empty detects by extension.
	Format string `yaml:"format"`
}

// TrainSpec sets one model's training run.
type TrainSpec struct {
	Epochs    int           `yaml:"epochs"`
	MiniBatch int           `yaml:"miniBatch"`
	Optimizer OptimizerSpec `yaml:"optimizer"`
	Seed      int64         `yaml:"seed"`
}

// OptimizerSpec sets the optimization method and its knobs. Zero
// values defer to the engine's defaults.
type OptimizerSpec struct {
	Method       string  `yaml:"method"`
	LearningRate float64 `yaml:"learningRate"`
	Momentum     float64 `yaml:"momentum"`
}

// ExportSpec names the exported artifact.
type ExportSpec struct {
	// Model is a model name, or "best" for the one with the fewest
	// misclassifications.
	Model string `yaml:"model"`
	// Path is where the artifact is written, local or s3.
	Path string `yaml:"path"`
}

// Load reads and validates a pipeline spec. The path is resolved
// through grailbio file, so s3:// URLs work.
func Load(ctx context.Context, path string) (*Spec, error) {
	f, err := file.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer f.Close(ctx)
	spec, err := Parse(f.Reader(ctx))
	if err != nil {
		return nil, errors.E("load "+path, err)
	}
	return spec, nil
}

// Parse decodes and validates a YAML pipeline spec. Unknown fields
// are rejected so that typos surface here instead of as silently
// defaulted behavior.
func Parse(r io.Reader) (*Spec, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var spec Spec
	if err := dec.Decode(&spec); err != nil {
		return nil, errors.E(errors.Invalid, "parse pipeline spec", err)
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	return &spec, nil
}

// Validate applies defaults and checks the spec for consistency.
// Specs assembled in code must validate before they run.
func (s *Spec) Validate() error {
	if s.Name == "" {
		return errors.E(errors.Invalid, "pipeline spec: no name")
	}
	if s.Caslib.Name == "" || s.Caslib.Path == "" {
		return s.errf("caslib needs a name and a path")
	}
	if s.Images.Path == "." {
		s.Images.Path = ""
	}
	if s.Images.LabelLevels == 0 {
		s.Images.LabelLevels = 1
	}
	if s.Images.LabelLevels != 1 {
		return s.errf("labelLevels %d: labels come from the parent directory only", s.Images.LabelLevels)
	}
	if s.Images.SampleCount == 0 {
		s.Images.SampleCount = 8
	}
	if s.Images.SampleCount < 0 {
		return s.errf("sampleCount %d: must be positive", s.Images.SampleCount)
	}
	if s.Resize != nil && (s.Resize.Width <= 0 || s.Resize.Height <= 0) {
		return s.errf("resize %dx%d: dimensions must be positive", s.Resize.Width, s.Resize.Height)
	}
	if s.Split.Percent <= 0 || s.Split.Percent >= 100 {
		return s.errf("split percent %v: must be in (0, 100)", s.Split.Percent)
	}
	if a := s.Augment; a != nil {
		switch a.Flip {
		case "", casimage.FlipNone, casimage.FlipH, casimage.FlipV, casimage.FlipHV:
		default:
			return s.errf("augment flip %q: must be none, h, v, or hv", a.Flip)
		}
		if a.Crops < 0 {
			return s.errf("augment crops %d: must not be negative", a.Crops)
		}
		if (a.CropWidth > 0) != (a.CropHeight > 0) {
			return s.errf("augment crop %dx%d: width and height must be set together", a.CropWidth, a.CropHeight)
		}
		if a.Crops > 1 && a.CropWidth <= 0 {
			return s.errf("augment crops %d: no crop size", a.Crops)
		}
	}
	if len(s.Models) == 0 {
		return s.errf("no models")
	}
	names := make(map[string]bool)
	for i := range s.Models {
		m := &s.Models[i]
		if m.Name == "" {
			return s.errf("model %d: no name", i)
		}
		if names[m.Name] {
			return s.errf("model %q: duplicate name", m.Name)
		}
		names[m.Name] = true
		switch m.Arch {
		case LeNet5, VGG16:
		default:
			return s.errf("model %q: unknown arch %q", m.Name, m.Arch)
		}
		if m.Train.Epochs <= 0 {
			return s.errf("model %q: train epochs must be positive", m.Name)
		}
		if m.Train.MiniBatch < 0 {
			return s.errf("model %q: miniBatch %d: must not be negative", m.Name, m.Train.MiniBatch)
		}
		if w := m.Weights; w != nil {
			if w.Path == "" {
				return s.errf("model %q: weights need a path", m.Name)
			}
			if w.Caslib == "" {
				w.Caslib = s.Caslib.Name
			}
			w.Format = strings.ToLower(w.Format)
			switch w.Format {
			case "", "onnx", "caffe", "keras":
			default:
				return s.errf("model %q: unknown weight format %q", m.Name, w.Format)
			}
		}
	}
	if s.Export.Model == "" {
		s.Export.Model = "best"
	}
	if s.Export.Model != "best" && !names[s.Export.Model] {
		return s.errf("export model %q: no such model", s.Export.Model)
	}
	if s.Export.Path == "" {
		return s.errf("no export path")
	}
	return nil
}

func (s *Spec) errf(format string, args ...interface{}) error {
	return errors.E(errors.Invalid,
		fmt.Sprintf("pipeline %s: ", s.Name)+fmt.Sprintf(format, args...))
}

// format maps the spec's weight format to the engine's.
func (w *WeightsSpec) format() deeplearn.Format {
	switch w.Format {
	case "onnx":
		return deeplearn.ONNX
	case "caffe":
		return deeplearn.Caffe
	case "keras":
		return deeplearn.Keras
	}
	return ""
}
