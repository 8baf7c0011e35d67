// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package deeplearn

import (
	"context"
	"fmt"

	"github.com/grailbio/cas"
)

// LeNet5 builds the classic LeNet-5 digit recognition network:
// 28x28 grayscale input, two convolution and pooling stages, a
// 500-unit fully connected layer, and a 10-way output. The assembled
// model has 1,256,080 parameters.
func LeNet5(ctx context.Context, sess *cas.Session, tbl cas.Table) (*Model, error) {
	m, err := Build(ctx, sess, tbl, CNN)
	if err != nil {
		return nil, err
	}
	layers := []Layer{
		Input("data", 28, 28, 1),
		Conv("conv1", 20, 5, 1),
		Pool("pool1", 2, 2),
		Conv("conv2", 50, 5, 1),
		Pool("pool2", 2, 2),
		FC("ip1", 500),
		Output("ip2", 10),
	}
	if err := m.addAll(ctx, layers); err != nil {
		return nil, err
	}
	return m, nil
}

// VGG16 builds the 16-layer VGG network for 224x224 RGB input:
// thirteen 3x3 convolutions in five pooled blocks, two 4096-unit
// fully connected layers, and an output over the given number of
// classes. With the canonical 1000 classes the model has 138,357,544
// parameters.
func VGG16(ctx context.Context, sess *cas.Session, tbl cas.Table, classes int) (*Model, error) {
	if classes <= 0 {
		classes = 1000
	}
	m, err := Build(ctx, sess, tbl, CNN)
	if err != nil {
		return nil, err
	}
	layers := []Layer{Input("data", 224, 224, 3)}
	block := 0
	for _, width := range []struct{ convs, filters int }{
		{2, 64}, {2, 128}, {3, 256}, {3, 512}, {3, 512},
	} {
		block++
		for i := 1; i <= width.convs; i++ {
			layers = append(layers, Conv(fmt.Sprintf("conv%d_%d", block, i), width.filters, 3, 1))
		}
		layers = append(layers, Pool(fmt.Sprintf("pool%d", block), 2, 2))
	}
	layers = append(layers,
		FC("fc6", 4096),
		FC("fc7", 4096),
		Output("fc8", classes),
	)
	if err := m.addAll(ctx, layers); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Model) addAll(ctx context.Context, layers []Layer) error {
	for _, layer := range layers {
		if err := m.AddLayer(ctx, layer); err != nil {
			return err
		}
	}
	return nil
}
