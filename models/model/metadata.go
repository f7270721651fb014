package model

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/pkg/errors"
)

// DefaultClasses are the labels the service reports, in model output order.
var DefaultClasses = []string{"glioma", "meningioma", "no_tumor", "pituitary"}

// ImageNet statistics the network was trained with, on 0..1 scaled channels.
var (
	DefaultMean = []float32{0.485, 0.456, 0.406}
	DefaultStd  = []float32{0.229, 0.224, 0.225}
)

// DefaultImageSize is the square input resolution.
const DefaultImageSize = 224

// Pixel scaling applied after the image is resized.
const (
	// NormalizationStandardize scales to 0..1 then applies (x - mean) / std per channel.
	NormalizationStandardize = "standardize"
	// NormalizationZeroToOne scales to 0..1.
	NormalizationZeroToOne = "zero_to_one"
	// NormalizationMinusOneToOne scales to -1..1.
	NormalizationMinusOneToOne = "minus_one_to_one"
	// NormalizationNone keeps 0..255.
	NormalizationNone = "none"
)

// Tensor layouts.
const (
	ChannelOrderCHW = "chw"
	ChannelOrderHWC = "hwc"
)

// Color modes.
const (
	ColorModeRGB       = "rgb"
	ColorModeBGR       = "bgr"
	ColorModeGrayscale = "grayscale"
)

// Metadata is the optional JSON sidecar shipped next to a model artifact.
type Metadata struct {
	Classes     []string  `json:"classes"`
	InputShape  []int64   `json:"input_shape"`
	OutputShape []int64   `json:"output_shape"`
	ImageSize   int       `json:"image_size"`
	Version     string    `json:"version"`
	InputName   string    `json:"input_name"`
	OutputName  string    `json:"output_name"`
	Mean        []float32 `json:"mean"`
	Std         []float32 `json:"std"`
	// Normalization is one of the Normalization* constants.
	Normalization string `json:"normalization"`
	// ChannelOrder is chw or hwc; it decides where the channel axis sits in InputShape.
	ChannelOrder string `json:"channel_order"`
	// ColorMode is rgb, bgr or grayscale. Grayscale inputs have one channel.
	ColorMode string `json:"color_mode"`
}

// DefaultMetadata returns the metadata used when no sidecar is present.
func DefaultMetadata(imageSize int) *Metadata {
	if imageSize <= 0 {
		imageSize = DefaultImageSize
	}
	return &Metadata{
		Classes:     append([]string(nil), DefaultClasses...),
		InputShape:  []int64{1, 3, int64(imageSize), int64(imageSize)},
		OutputShape: []int64{1, int64(len(DefaultClasses))},
		ImageSize:   imageSize,
		InputName:   "input",
		OutputName:  "output",
		Mean:        append([]float32(nil), DefaultMean...),
		Std:         append([]float32(nil), DefaultStd...),

		Normalization: NormalizationStandardize,
		ChannelOrder:  ChannelOrderCHW,
		ColorMode:     ColorModeRGB,
	}
}

// LoadMetadata reads the sidecar at path and fills anything it leaves out from the
// defaults. An empty path returns the defaults.
//
// Arguments:
//   - path: The sidecar JSON file.
//   - imageSize: The resolution used when neither the file nor its shapes give one.
//
// Returns:
//   - *Metadata: The resolved metadata.
//   - error: An error if the file cannot be read, parsed or validated.
func LoadMetadata(path string, imageSize int) (*Metadata, error) {
	meta := DefaultMetadata(imageSize)
	if path == "" {
		return meta, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read metadata")
	}

	var file Metadata
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, errors.Wrap(err, "failed to parse metadata")
	}

	if len(file.Classes) > 0 {
		meta.Classes = file.Classes
	}
	if file.Normalization != "" {
		meta.Normalization = file.Normalization
	}
	if file.ChannelOrder != "" {
		meta.ChannelOrder = file.ChannelOrder
	}
	if file.ColorMode != "" {
		meta.ColorMode = file.ColorMode
	}
	if file.ImageSize > 0 {
		meta.ImageSize = file.ImageSize
	}
	if len(file.InputShape) > 0 {
		meta.InputShape = file.InputShape
		if file.ImageSize == 0 {
			meta.ImageSize = meta.Width()
		}
	} else {
		meta.InputShape = meta.shapeFor(meta.ImageSize, meta.ImageSize)
	}
	meta.OutputShape = []int64{1, int64(len(meta.Classes))}
	if len(file.OutputShape) > 0 {
		meta.OutputShape = file.OutputShape
	}
	if file.Version != "" {
		meta.Version = file.Version
	}
	if file.InputName != "" {
		meta.InputName = file.InputName
	}
	if file.OutputName != "" {
		meta.OutputName = file.OutputName
	}
	if len(file.Mean) > 0 {
		meta.Mean = file.Mean
	}
	if len(file.Std) > 0 {
		meta.Std = file.Std
	}

	if err := meta.Validate(); err != nil {
		return nil, err
	}
	return meta, nil
}

// Validate checks the shapes agree with each other and with the fixed class set.
func (m *Metadata) Validate() error {
	if len(m.Classes) != len(DefaultClasses) {
		return fmt.Errorf("expected %d classes, got %d", len(DefaultClasses), len(m.Classes))
	}
	seen := make(map[string]bool, len(m.Classes))
	for _, c := range m.Classes {
		if c == "" || seen[c] {
			return fmt.Errorf("class labels must be unique and non-empty: %v", m.Classes)
		}
		seen[c] = true
	}
	switch m.Normalization {
	case NormalizationStandardize, NormalizationZeroToOne, NormalizationMinusOneToOne, NormalizationNone:
	default:
		return fmt.Errorf("unknown normalization %q", m.Normalization)
	}
	switch m.ChannelOrder {
	case ChannelOrderCHW, ChannelOrderHWC:
	default:
		return fmt.Errorf("unknown channel order %q", m.ChannelOrder)
	}
	channels := 3
	switch m.ColorMode {
	case ColorModeRGB, ColorModeBGR:
	case ColorModeGrayscale:
		channels = 1
	default:
		return fmt.Errorf("unknown color mode %q", m.ColorMode)
	}

	if len(m.InputShape) != 4 || m.InputShape[0] != 1 || m.Channels() != channels {
		return fmt.Errorf("input shape %v must hold %d channels in %s order with batch 1",
			m.InputShape, channels, m.ChannelOrder)
	}
	if m.Height() <= 0 || m.Width() <= 0 {
		return fmt.Errorf("input shape must have positive spatial dimensions, got %v", m.InputShape)
	}
	if m.OutputSize() != int64(len(m.Classes)) {
		return fmt.Errorf("output shape %v does not match %d classes", m.OutputShape, len(m.Classes))
	}
	if m.Normalization == NormalizationStandardize {
		if len(m.Mean) != channels || len(m.Std) != channels {
			return fmt.Errorf("mean and std need %d channels, got %d and %d", channels, len(m.Mean), len(m.Std))
		}
		for _, s := range m.Std {
			if s == 0 {
				return errors.New("std values must be non-zero")
			}
		}
	}
	return nil
}

// Channels is the channel dimension of InputShape.
func (m *Metadata) Channels() int {
	return m.dim(1, 3)
}

// Height is the row dimension of InputShape.
func (m *Metadata) Height() int {
	return m.dim(2, 1)
}

// Width is the column dimension of InputShape.
func (m *Metadata) Width() int {
	return m.dim(3, 2)
}

// dim reads InputShape at chw for CHW layouts and at hwc for HWC layouts.
func (m *Metadata) dim(chw, hwc int) int {
	if len(m.InputShape) != 4 {
		return 0
	}
	if m.ChannelOrder == ChannelOrderHWC {
		return int(m.InputShape[hwc])
	}
	return int(m.InputShape[chw])
}

// shapeFor builds the input shape for an h x w image in the metadata's layout.
func (m *Metadata) shapeFor(h, w int) []int64 {
	c := int64(3)
	if m.ColorMode == ColorModeGrayscale {
		c = 1
	}
	if m.ChannelOrder == ChannelOrderHWC {
		return []int64{1, int64(h), int64(w), c}
	}
	return []int64{1, c, int64(h), int64(w)}
}

// InputSize is the number of float32 values in one input tensor.
func (m *Metadata) InputSize() int64 {
	return product(m.InputShape)
}

// OutputSize is the number of float32 values in one output tensor.
func (m *Metadata) OutputSize() int64 {
	return product(m.OutputShape)
}

func product(shape []int64) int64 {
	if len(shape) == 0 {
		return 0
	}
	n := int64(1)
	for _, d := range shape {
		n *= d
	}
	return n
}
