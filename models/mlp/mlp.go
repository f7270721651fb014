// Package mlp - Pure Go dense-network backend evaluated with gorgonia.
package mlp

import (
	"context"
	"fmt"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/braintumor/models/model"
	"github.com/nvr-ai/braintumor/zlog"
)

// Model is a compiled gorgonia graph over the layers of a weights file. The graph and its
// tape machine are shared, so Forward calls are serialized.
type Model struct {
	mu      sync.Mutex
	graph   *G.ExprGraph
	input   *G.Node
	output  *G.Node
	vm      G.VM
	size    int
	options model.BaseModel
}

// NewModel loads the weights file at args.Path and builds the graph.
//
// Arguments:
//   - args: The load arguments. args.Metadata must be set.
//
// Returns:
//   - *Model: The compiled model.
//   - error: An error if the weights are unreadable or do not fit the metadata shapes.
func NewModel(args model.NewModelArgs) (*Model, error) {
	if args.Metadata == nil {
		return nil, errors.New("mlp model requires metadata")
	}
	w, err := LoadWeights(args.Path)
	if err != nil {
		return nil, err
	}
	m, err := Build(w, args.Metadata)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to build %s", args.Path)
	}
	m.options.Path = args.Path
	m.options.Version = args.Version

	zlog.Info("mlp model loaded",
		zap.String("path", args.Path),
		zap.Int("layers", len(w.Layers)),
		zap.Int("input_size", m.size))
	return m, nil
}

// Build compiles weights into a graph whose input matches meta.InputShape and whose
// output has one value per class.
func Build(w *Weights, meta *model.Metadata) (*Model, error) {
	inputSize := int(meta.InputSize())
	if err := w.Validate(inputSize, len(meta.Classes)); err != nil {
		return nil, err
	}

	g := G.NewGraph()
	x := G.NewMatrix(g, tensor.Float32, G.WithShape(1, inputSize), G.WithName("input"))

	cur := x
	for i, l := range w.Layers {
		weights := G.NewMatrix(g, tensor.Float32,
			G.WithShape(l.In, l.Out),
			G.WithName(fmt.Sprintf("w%d", i)),
			G.WithValue(tensor.New(tensor.WithShape(l.In, l.Out), tensor.WithBacking(l.Weights))))
		bias := G.NewMatrix(g, tensor.Float32,
			G.WithShape(1, l.Out),
			G.WithName(fmt.Sprintf("b%d", i)),
			G.WithValue(tensor.New(tensor.WithShape(1, l.Out), tensor.WithBacking(l.Bias))))

		mul, err := G.Mul(cur, weights)
		if err != nil {
			return nil, errors.Wrapf(err, "layer %d matmul", i)
		}
		if cur, err = G.Add(mul, bias); err != nil {
			return nil, errors.Wrapf(err, "layer %d bias", i)
		}
		if l.Activation == ActivationReLU {
			if cur, err = G.Rectify(cur); err != nil {
				return nil, errors.Wrapf(err, "layer %d relu", i)
			}
		}
	}

	return &Model{
		graph:  g,
		input:  x,
		output: cur,
		vm:     G.NewTapeMachine(g),
		size:   inputSize,
		options: model.BaseModel{
			Name:       model.ModelNameMLP,
			Device:     "cpu",
			Classes:    meta.Classes,
			InputShape: meta.InputShape,
		},
	}, nil
}

// Options describes the loaded model.
func (m *Model) Options() model.BaseModel {
	return m.options
}

// Forward binds input to the graph, runs the tape machine and returns the output scores.
func (m *Model) Forward(ctx context.Context, input []float32) ([]float32, error) {
	if len(input) != m.size {
		return nil, fmt.Errorf("input has %d values, model expects %d", len(input), m.size)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.vm == nil {
		return nil, errors.New("model is closed")
	}
	defer m.vm.Reset()

	backing := make([]float32, len(input))
	copy(backing, input)
	if err := G.Let(m.input, tensor.New(tensor.WithShape(1, m.size), tensor.WithBacking(backing))); err != nil {
		return nil, errors.Wrap(err, "can't bind input")
	}
	if err := m.vm.RunAll(); err != nil {
		return nil, errors.Wrap(err, "can't run tape machine")
	}

	data, ok := m.output.Value().Data().([]float32)
	if !ok {
		return nil, fmt.Errorf("unexpected output type %T", m.output.Value().Data())
	}
	scores := make([]float32, len(data))
	copy(scores, data)
	return scores, nil
}

// Close releases the tape machine.
func (m *Model) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.vm == nil {
		return nil
	}
	err := m.vm.Close()
	m.vm = nil
	return err
}
