// Package model - Contract shared by every classification backend.
package model

import "context"

// Name is the unique identifier of a backend.
type Name string

const (
	// ModelNameONNX runs an ONNX graph through onnxruntime.
	ModelNameONNX Name = "onnx"
	// ModelNameMLP runs a dense network defined in a JSON weights file on gorgonia.
	ModelNameMLP Name = "mlp"
	// ModelNameFake produces deterministic scores without a weights file.
	ModelNameFake Name = "fake"
)

// BaseModel describes a loaded model.
type BaseModel struct {
	Name       Name
	Path       string
	Version    string
	Device     string
	Classes    []string
	InputShape []int64
}

// Model is a loaded network that turns a preprocessed CHW tensor into one raw score per
// class. Implementations must be safe for concurrent calls to Forward.
type Model interface {
	Options() BaseModel
	Forward(ctx context.Context, input []float32) ([]float32, error)
	Close() error
}

// NewModelArgs is the arguments for creating a new model.
type NewModelArgs struct {
	Name         Name   `json:"name" yaml:"name"`
	Path         string `json:"path" yaml:"path"`
	MetadataPath string `json:"metadata_path" yaml:"metadata_path"`
	Version      string `json:"version" yaml:"version"`
	Device       string `json:"device" yaml:"device"`
	ImageSize    int    `json:"image_size" yaml:"image_size"`
	// MaxPixels bounds width*height of an input image before it is decoded.
	MaxPixels int64 `json:"max_pixels" yaml:"max_pixels"`
	// LibraryPath is the onnxruntime shared library, only used by the onnx backend.
	LibraryPath    string `json:"library_path" yaml:"library_path"`
	IntraOpThreads int    `json:"intra_op_threads" yaml:"intra_op_threads"`
	InterOpThreads int    `json:"inter_op_threads" yaml:"inter_op_threads"`
	// Metadata is filled by the registry before a backend constructor runs.
	Metadata *Metadata `json:"-" yaml:"-"`
}
