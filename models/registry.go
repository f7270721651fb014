// Package models - Registry over the classification backends and their class labels.
package models

import (
	"fmt"
	"os"

	"github.com/pkg/errors"

	"github.com/nvr-ai/braintumor/models/fake"
	"github.com/nvr-ai/braintumor/models/mlp"
	"github.com/nvr-ai/braintumor/models/model"
	"github.com/nvr-ai/braintumor/models/onnxnet"
)

// NewModel creates a classification model instance based on the requested backend.
//
// Metadata is resolved first, from args.Metadata or the sidecar at args.MetadataPath, and
// its version wins over args.Version when it carries one. Backends that read an artifact
// require it to exist as a regular file.
//
// Arguments:
//   - args: Configuration parameters specifying the backend and artifact location.
//
// Returns:
//   - model.Model: A loaded model implementing the Model interface.
//   - error: An error if the metadata is invalid, the artifact is missing, the backend is
//     unsupported or loading fails.
func NewModel(args model.NewModelArgs) (model.Model, error) {
	meta := args.Metadata
	if meta == nil {
		var err error
		if meta, err = model.LoadMetadata(args.MetadataPath, args.ImageSize); err != nil {
			return nil, err
		}
	} else if err := meta.Validate(); err != nil {
		return nil, err
	}
	args.Metadata = meta
	if meta.Version != "" {
		args.Version = meta.Version
	}

	switch args.Name {
	case model.ModelNameONNX, model.ModelNameMLP:
		if err := checkArtifact(args.Path); err != nil {
			return nil, err
		}
	}

	switch args.Name {
	case model.ModelNameONNX:
		m, err := onnxnet.NewModel(args)
		if err != nil {
			return nil, err
		}
		return m, nil
	case model.ModelNameMLP:
		m, err := mlp.NewModel(args)
		if err != nil {
			return nil, err
		}
		return m, nil
	case model.ModelNameFake:
		m, err := fake.NewModel(args)
		if err != nil {
			return nil, err
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unsupported model name: %s", args.Name)
	}
}

func checkArtifact(path string) error {
	if path == "" {
		return errors.New("model path is empty")
	}
	info, err := os.Stat(path)
	if err != nil {
		return errors.Wrapf(err, "model file not found at %s", path)
	}
	if info.IsDir() {
		return fmt.Errorf("model path %s is a directory", path)
	}
	return nil
}
