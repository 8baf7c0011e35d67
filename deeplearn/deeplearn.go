// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package deeplearn wraps the engine's deepLearn action set: building
// convolutional network graphs layer by layer, importing pretrained
// weights, training, scoring, and exporting trained models for
// portable scoring through the astore action set.
//
// A model lives server side as a model table. The Model type is a
// client handle on that table; layer constructors (Input, Conv, Pool,
// FC, Output) build the wire form of each layer, and the zoo
// functions assemble well-known architectures in one call.
package deeplearn

import (
	"context"
	"fmt"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/cas"
)

// ModelType selects the network family of a model table.
type ModelType string

const (
	CNN ModelType = "CNN"
	DNN ModelType = "DNN"
)

// Model is a handle on a server-side model table.
type Model struct {
	sess *cas.Session
	// Table is the model table holding the layer graph.
	Table cas.Table
}

// Build creates an empty model table via deepLearn.buildModel.
// Building over an existing table is an Exists error; drop it first.
func Build(ctx context.Context, sess *cas.Session, tbl cas.Table, typ ModelType) (*Model, error) {
	if typ == "" {
		typ = CNN
	}
	_, err := sess.Do(ctx, "deepLearn.buildModel", cas.Values{
		"model": tbl,
		"type":  string(typ),
	})
	if err != nil {
		return nil, err
	}
	return &Model{sess: sess, Table: tbl}, nil
}

// Open returns a handle on an existing model table without touching
// the server. Operations on the handle fail with NotExist if the
// table is gone.
func Open(sess *cas.Session, tbl cas.Table) *Model {
	return &Model{sess: sess, Table: tbl}
}

// A Layer is one layer definition, ready to add to a model. Use the
// constructors below rather than filling in Params by hand.
type Layer struct {
	// Name identifies the layer within its model.
	Name string
	// Params is the wire form of the layer definition, including its
	// "type" key.
	Params cas.Values
}

// Input returns the network's input layer definition.
func Input(name string, width, height, channels int) Layer {
	return Layer{Name: name, Params: cas.Values{
		"type":      "input",
		"width":     width,
		"height":    height,
		"nChannels": channels,
	}}
}

// Conv returns a same-padded convolution layer with square kernels
// and ReLU activation. The output is ceil(in/stride) in each spatial
// dimension with nFilters channels.
func Conv(name string, nFilters, kernel, stride int) Layer {
	return Layer{Name: name, Params: cas.Values{
		"type":     "convo",
		"nFilters": nFilters,
		"width":    kernel,
		"height":   kernel,
		"stride":   stride,
		"act":      "relu",
	}}
}

// Pool returns a max pooling layer with a square window. A zero
// stride means the window size, giving non-overlapping pooling.
func Pool(name string, window, stride int) Layer {
	p := cas.Values{
		"type":  "pool",
		"width": window,
		"pool":  "max",
	}
	if stride > 0 {
		p["stride"] = stride
	}
	return Layer{Name: name, Params: p}
}

// FC returns a fully connected layer of n units with ReLU activation.
func FC(name string, n int) Layer {
	return Layer{Name: name, Params: cas.Values{
		"type": "fc",
		"n":    n,
		"act":  "relu",
	}}
}

// Output returns the softmax output layer with n units, one per
// target class.
func Output(name string, n int) Layer {
	return Layer{Name: name, Params: cas.Values{
		"type": "output",
		"n":    n,
		"act":  "softmax",
	}}
}

// AddLayer appends a layer to the model via deepLearn.addLayer. With
// no sources the layer follows the previously added one; adding a
// layer whose name is already taken is an Exists error.
func (m *Model) AddLayer(ctx context.Context, layer Layer, src ...string) error {
	return m.addLayer(ctx, layer, false, src)
}

// ReplaceLayer redefines an existing layer in place, keeping its
// position in the graph.
func (m *Model) ReplaceLayer(ctx context.Context, layer Layer, src ...string) error {
	return m.addLayer(ctx, layer, true, src)
}

func (m *Model) addLayer(ctx context.Context, layer Layer, replace bool, src []string) error {
	if layer.Name == "" {
		return errors.E(errors.Invalid, fmt.Sprintf("add layer to %s: layer has no name", m.Table))
	}
	params := cas.Values{
		"model": m.Table,
		"name":  layer.Name,
		"layer": layer.Params,
	}
	if len(src) > 0 {
		params["srcLayers"] = src
	}
	if replace {
		params["replace"] = true
	}
	_, err := m.sess.Do(ctx, "deepLearn.addLayer", params)
	return err
}

// LayerShape is one layer's resolved geometry in a model summary.
type LayerShape struct {
	Layer string
	Type  string
	// Output is the layer's output shape, WxHxC for spatial layers
	// and a plain unit count otherwise.
	Output     string
	Parameters int64
}

// Info summarizes a model's layer graph.
type Info struct {
	Name       string
	Type       string
	Layers     int64
	Parameters int64
	Shapes     []LayerShape
}

// Info resolves the model's layer shapes and parameter counts via
// deepLearn.modelInfo. A model with no input layer is an Invalid
// error.
func (m *Model) Info(ctx context.Context) (*Info, error) {
	res, err := m.sess.Do(ctx, "deepLearn.modelInfo", cas.Values{"modelTable": m.Table})
	if err != nil {
		return nil, err
	}
	info := &Info{
		Layers:     res.Int("layers"),
		Parameters: res.Int("parameters"),
	}
	if tab := res.Table("ModelInfo"); tab != nil {
		for i := 0; i < tab.NumRows(); i++ {
			switch tab.Str(i, "Descr") {
			case "Model Name":
				info.Name = tab.Str(i, "Value")
			case "Model Type":
				info.Type = tab.Str(i, "Value")
			}
		}
	}
	tab := res.Table("LayerInfo")
	if tab == nil {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("model info %s: no LayerInfo table in results", m.Table))
	}
	info.Shapes = make([]LayerShape, tab.NumRows())
	for i := range info.Shapes {
		info.Shapes[i] = LayerShape{
			Layer:      tab.Str(i, "Layer"),
			Type:       tab.Str(i, "Type"),
			Output:     tab.Str(i, "Output"),
			Parameters: tab.Int(i, "Parameters"),
		}
	}
	return info, nil
}
