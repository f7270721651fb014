package mlp

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/braintumor/models/model"
)

// planeSumLayer maps a 3x2x2 tensor to 4 outputs: the sum of each channel plane and a
// constant fourth output from the bias.
func planeSumLayer() Layer {
	l := Layer{In: 12, Out: 4, Weights: make([]float32, 48), Bias: []float32{0, 0, 0, 0.5}, Activation: ActivationLinear}
	for i := 0; i < 12; i++ {
		l.Weights[i*4+i/4] = 1
	}
	return l
}

func writeWeights(t *testing.T, w *Weights) string {
	t.Helper()
	raw, err := json.Marshal(w)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "weights.json")
	require.NoError(t, os.WriteFile(path, raw, 0o600))
	return path
}

func TestForwardLinear(t *testing.T) {
	path := writeWeights(t, &Weights{Layers: []Layer{planeSumLayer()}})
	m, err := NewModel(model.NewModelArgs{Path: path, Version: "0.1.0", Metadata: model.DefaultMetadata(2)})
	require.NoError(t, err)
	defer m.Close()

	input := []float32{1, 1, 1, 1, 2, 2, 2, 2, -1, -1, -1, -1}
	scores, err := m.Forward(context.Background(), input)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float32{4, 8, -4, 0.5}, scores, 1e-5)

	// A second run resets the tape and gives the same answer.
	again, err := m.Forward(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, scores, again)

	opts := m.Options()
	assert.Equal(t, model.ModelNameMLP, opts.Name)
	assert.Equal(t, path, opts.Path)
	assert.Equal(t, "0.1.0", opts.Version)
}

func TestForwardReLU(t *testing.T) {
	first := planeSumLayer()
	first.Activation = ActivationReLU
	identity := Layer{In: 4, Out: 4, Bias: make([]float32, 4), Weights: []float32{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}}

	m, err := Build(&Weights{Layers: []Layer{first, identity}}, model.DefaultMetadata(2))
	require.NoError(t, err)
	defer m.Close()

	scores, err := m.Forward(context.Background(), []float32{1, 1, 1, 1, 2, 2, 2, 2, -1, -1, -1, -1})
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float32{4, 8, 0, 0.5}, scores, 1e-5)
}

func TestForwardErrors(t *testing.T) {
	m, err := Build(&Weights{Layers: []Layer{planeSumLayer()}}, model.DefaultMetadata(2))
	require.NoError(t, err)

	_, err = m.Forward(context.Background(), []float32{1})
	assert.Error(t, err)

	require.NoError(t, m.Close())
	_, err = m.Forward(context.Background(), make([]float32, 12))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	good := planeSumLayer()

	tests := map[string]*Weights{
		"no layers":      {},
		"wrong input":    {Layers: []Layer{{In: 10, Out: 4, Weights: make([]float32, 40), Bias: make([]float32, 4)}}},
		"short weights":  {Layers: []Layer{{In: 12, Out: 4, Weights: make([]float32, 47), Bias: make([]float32, 4)}}},
		"short bias":     {Layers: []Layer{{In: 12, Out: 4, Weights: make([]float32, 48), Bias: make([]float32, 3)}}},
		"wrong output":   {Layers: []Layer{{In: 12, Out: 5, Weights: make([]float32, 60), Bias: make([]float32, 5)}}},
		"bad activation": {Layers: []Layer{{In: 12, Out: 4, Weights: make([]float32, 48), Bias: make([]float32, 4), Activation: "tanh"}}},
	}
	for name, w := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, w.Validate(12, 4))
		})
	}

	assert.NoError(t, (&Weights{Layers: []Layer{good}}).Validate(12, 4))
}

func TestNewModelMissingFile(t *testing.T) {
	_, err := NewModel(model.NewModelArgs{Path: filepath.Join(t.TempDir(), "nope.json"), Metadata: model.DefaultMetadata(2)})
	assert.Error(t, err)

	_, err = NewModel(model.NewModelArgs{Path: "x"})
	assert.Error(t, err)
}
