// Package onnxnet - Classification backend running an ONNX graph through onnxruntime.
package onnxnet

import (
	"context"
	"fmt"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/nvr-ai/braintumor/inference/providers"
	"github.com/nvr-ai/braintumor/models/model"
	"github.com/nvr-ai/braintumor/zlog"
)

// Model runs one ONNX session. The session's tensors are shared, so Forward calls are
// serialized.
type Model struct {
	mu      sync.Mutex
	session *providers.Session
	meta    *model.Metadata
	options model.BaseModel
}

// NewModel loads the ONNX graph at args.Path.
//
// Arguments:
//   - args: The load arguments. args.Metadata must be set.
//
// Returns:
//   - *Model: The loaded model.
//   - error: An error if the runtime, the device or the graph cannot be loaded.
func NewModel(args model.NewModelArgs) (*Model, error) {
	if args.Metadata == nil {
		return nil, errors.New("onnx model requires metadata")
	}
	device, err := providers.ParseDevice(args.Device)
	if err != nil {
		return nil, err
	}
	if err := providers.InitEnvironment(args.LibraryPath); err != nil {
		return nil, err
	}

	cfg := providers.DefaultConfig(device)
	cfg.IntraOpThreads = args.IntraOpThreads
	cfg.InterOpThreads = args.InterOpThreads

	meta := args.Metadata
	session, err := providers.NewSession(providers.NewSessionArgs{
		ModelPath:   args.Path,
		InputName:   meta.InputName,
		OutputName:  meta.OutputName,
		InputShape:  meta.InputShape,
		OutputShape: meta.OutputShape,
		Provider:    cfg,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load %s", args.Path)
	}

	zlog.Info("onnx model loaded",
		zap.String("path", args.Path),
		zap.String("device", string(session.Device)),
		zap.Int64s("input_shape", meta.InputShape))

	return &Model{
		session: session,
		meta:    meta,
		options: model.BaseModel{
			Name:       model.ModelNameONNX,
			Path:       args.Path,
			Version:    args.Version,
			Device:     string(session.Device),
			Classes:    meta.Classes,
			InputShape: meta.InputShape,
		},
	}, nil
}

// Options describes the loaded model.
func (m *Model) Options() model.BaseModel {
	return m.options
}

// Forward copies input into the bound tensor, runs the graph and returns a copy of the
// raw class scores.
func (m *Model) Forward(ctx context.Context, input []float32) ([]float32, error) {
	if int64(len(input)) != m.meta.InputSize() {
		return nil, fmt.Errorf("input has %d values, model expects %d", len(input), m.meta.InputSize())
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.session == nil {
		return nil, errors.New("model is closed")
	}

	copy(m.session.Input.GetData(), input)
	if err := m.session.Run(); err != nil {
		return nil, errors.Wrap(err, "onnx run failed")
	}

	out := m.session.Output.GetData()
	scores := make([]float32, len(out))
	copy(scores, out)
	return scores, nil
}

// Close releases the session. Forward fails afterwards.
func (m *Model) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return nil
	}
	err := m.session.Close()
	m.session = nil
	return err
}
