// Package fake - Deterministic classification backend that needs no weights file.
package fake

import (
	"context"
	"fmt"

	"github.com/chewxy/math32"

	"github.com/nvr-ai/braintumor/models/model"
)

// Model derives class scores from simple statistics of the input tensor, so the same
// image always yields the same scores and different images usually differ.
type Model struct {
	options model.BaseModel
	size    int64
	// Scores, when set, is returned for every input instead of computed statistics.
	Scores []float32
	// Err, when set, is returned by every Forward call.
	Err error
}

// NewModel builds a fake model for args.Metadata.
func NewModel(args model.NewModelArgs) (*Model, error) {
	meta := args.Metadata
	if meta == nil {
		meta = model.DefaultMetadata(args.ImageSize)
	}
	version := args.Version
	if version == "" {
		version = "fake"
	}
	return &Model{
		size: meta.InputSize(),
		options: model.BaseModel{
			Name:       model.ModelNameFake,
			Path:       args.Path,
			Version:    version,
			Device:     "cpu",
			Classes:    meta.Classes,
			InputShape: meta.InputShape,
		},
	}, nil
}

// NewFixed returns a fake model that always answers with scores.
func NewFixed(scores ...float32) *Model {
	m, _ := NewModel(model.NewModelArgs{})
	m.Scores = scores
	return m
}

// Options describes the fake model.
func (m *Model) Options() model.BaseModel {
	return m.options
}

// Forward returns one score per class: the mean of each of the three channel planes and
// the standard deviation of the whole tensor, each scaled by 4.
func (m *Model) Forward(ctx context.Context, input []float32) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.Err != nil {
		return nil, m.Err
	}
	if m.Scores != nil {
		return append([]float32(nil), m.Scores...), nil
	}
	if int64(len(input)) != m.size {
		return nil, fmt.Errorf("input has %d values, model expects %d", len(input), m.size)
	}

	plane := len(input) / 3
	scores := make([]float32, len(m.options.Classes))

	var total float32
	for c := 0; c < 3; c++ {
		var sum float32
		for _, v := range input[c*plane : (c+1)*plane] {
			sum += v
		}
		total += sum
		if c < len(scores) {
			scores[c] = 4 * sum / float32(plane)
		}
	}

	mean := total / float32(len(input))
	var variance float32
	for _, v := range input {
		d := v - mean
		variance += d * d
	}
	if len(scores) > 3 {
		scores[3] = 4 * math32.Sqrt(variance/float32(len(input)))
	}
	return scores, nil
}

// Close is a no-op.
func (m *Model) Close() error {
	return nil
}
