package mlp

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/pkg/errors"
)

// Activation is applied to a layer's output.
type Activation string

const (
	// ActivationLinear leaves the layer output unchanged.
	ActivationLinear Activation = "linear"
	// ActivationReLU clamps negative outputs to zero.
	ActivationReLU Activation = "relu"
)

// Layer is one dense layer: out = activation(in x W + b).
type Layer struct {
	In  int `json:"in"`
	Out int `json:"out"`
	// Weights holds In*Out values in row-major order, one row per input.
	Weights    []float32  `json:"weights"`
	Bias       []float32  `json:"bias"`
	Activation Activation `json:"activation"`
}

// Weights is the JSON file the mlp backend loads.
type Weights struct {
	Layers []Layer `json:"layers"`
}

// LoadWeights reads and parses a weights file.
func LoadWeights(path string) (*Weights, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read weights")
	}
	var w Weights
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, errors.Wrap(err, "failed to parse weights")
	}
	return &w, nil
}

// Validate checks the layers chain from inputSize to outputSize.
func (w *Weights) Validate(inputSize, outputSize int) error {
	if len(w.Layers) == 0 {
		return errors.New("weights have no layers")
	}
	prev := inputSize
	for i, l := range w.Layers {
		if l.In != prev {
			return fmt.Errorf("layer %d expects %d inputs, previous layer gives %d", i, l.In, prev)
		}
		if l.Out <= 0 {
			return fmt.Errorf("layer %d has no outputs", i)
		}
		if len(l.Weights) != l.In*l.Out {
			return fmt.Errorf("layer %d has %d weights, want %d", i, len(l.Weights), l.In*l.Out)
		}
		if len(l.Bias) != l.Out {
			return fmt.Errorf("layer %d has %d biases, want %d", i, len(l.Bias), l.Out)
		}
		switch l.Activation {
		case "", ActivationLinear, ActivationReLU:
		default:
			return fmt.Errorf("layer %d has unknown activation %q", i, l.Activation)
		}
		prev = l.Out
	}
	if prev != outputSize {
		return fmt.Errorf("last layer gives %d outputs, want %d", prev, outputSize)
	}
	return nil
}
