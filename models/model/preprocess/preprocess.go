// Package preprocess - Converts uploaded image bytes into the tensor a classifier expects.
package preprocess

import (
	"fmt"
	"image"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/nvr-ai/braintumor/images"
	"github.com/nvr-ai/braintumor/models/model"
	"github.com/nvr-ai/braintumor/zlog"
)

// ErrInvalidImage is returned when the input bytes are not a decodable image.
var ErrInvalidImage = errors.New("invalid image")

// ErrImageTooLarge is returned when the image header declares more pixels than
// ModelConfig.MaxPixels allows. The pixels are never decoded.
var ErrImageTooLarge = errors.New("image too large")

// ModelConfig defines preprocessing configuration for a specific model.
type ModelConfig struct {
	// Name of the model for debugging purposes.
	Name string
	// InputWidth is the expected width of the model input.
	InputWidth int
	// InputHeight is the expected height of the model input.
	InputHeight int
	// InputChannels is the number of channels (1 for grayscale, 3 for RGB).
	InputChannels int
	// NormalizationType defines how to normalize pixel values.
	NormalizationType NormalizationType
	// MeanValues for standardization, on 0..1 scaled channels.
	MeanValues []float32
	// StdValues for standardization, on 0..1 scaled channels.
	StdValues []float32
	// ChannelOrder defines the channel ordering (CHW or HWC).
	ChannelOrder ChannelOrder
	// ColorMode defines the color space (RGB, BGR, Grayscale).
	ColorMode ColorMode
	// MaxPixels bounds width*height of an input before decoding; zero uses
	// images.DefaultMaxPixels.
	MaxPixels int64
}

// NormalizationType defines how pixel values are normalized.
type NormalizationType int

const (
	// NormalizeNone keeps pixel values as 0-255.
	NormalizeNone NormalizationType = iota
	// NormalizeZeroToOne scales pixel values to [0, 1].
	NormalizeZeroToOne
	// NormalizeMinusOneToOne scales pixel values to [-1, 1].
	NormalizeMinusOneToOne
	// NormalizeStandardize scales to [0, 1] then applies per-channel (x - mean) / std.
	NormalizeStandardize
)

// ChannelOrder defines the ordering of image channels.
type ChannelOrder int

const (
	// ChannelOrderCHW is Channel-Height-Width ordering (common for ONNX).
	ChannelOrderCHW ChannelOrder = iota
	// ChannelOrderHWC is Height-Width-Channel ordering.
	ChannelOrderHWC
)

// ColorMode defines the color space of the image.
type ColorMode int

const (
	// ColorModeRGB is standard RGB color mode.
	ColorModeRGB ColorMode = iota
	// ColorModeBGR is BGR color mode (common for OpenCV models).
	ColorModeBGR
	// ColorModeGrayscale is single channel grayscale.
	ColorModeGrayscale
)

// PreprocessingResult contains the preprocessed image data and metadata.
type PreprocessingResult struct {
	// Data is the preprocessed float32 tensor data.
	Data []float32
	// Shape is the tensor shape including the batch dimension, e.g. [1, 3, H, W].
	Shape []int64
	// Format is the decoder that accepted the input.
	Format images.Format
	// OriginalWidth is the image width before preprocessing.
	OriginalWidth int
	// OriginalHeight is the image height before preprocessing.
	OriginalHeight int
}

// Preprocessor handles image preprocessing for classification models. It holds no
// mutable state and is safe for concurrent use.
type Preprocessor struct {
	config *ModelConfig
}

// NewPreprocessor creates a new preprocessor with the given configuration.
//
// Arguments:
//   - config: The model-specific preprocessing configuration.
//
// Returns:
//   - *Preprocessor: A configured Preprocessor instance.
//   - error: An error if the configuration is unusable.
func NewPreprocessor(config *ModelConfig) (*Preprocessor, error) {
	if config == nil {
		return nil, errors.New("preprocess config is nil")
	}
	if config.InputWidth <= 0 || config.InputHeight <= 0 {
		return nil, fmt.Errorf("invalid input dimensions: %dx%d", config.InputWidth, config.InputHeight)
	}
	if config.InputChannels != 1 && config.InputChannels != 3 {
		return nil, fmt.Errorf("input channels must be 1 or 3, got %d", config.InputChannels)
	}
	if (config.ColorMode == ColorModeGrayscale) != (config.InputChannels == 1) {
		return nil, fmt.Errorf("color mode %d does not match %d input channels", config.ColorMode, config.InputChannels)
	}
	if config.NormalizationType == NormalizeStandardize {
		if len(config.MeanValues) != config.InputChannels || len(config.StdValues) != config.InputChannels {
			return nil, fmt.Errorf("standardization needs %d mean and std values", config.InputChannels)
		}
		for _, s := range config.StdValues {
			if s == 0 {
				return nil, errors.New("std values must be non-zero")
			}
		}
	}
	return &Preprocessor{config: config}, nil
}

// Config returns the configuration the preprocessor was built with.
func (p *Preprocessor) Config() ModelConfig {
	return *p.config
}

// Preprocess performs all necessary preprocessing steps on the raw image bytes.
//
// Arguments:
//   - data: The encoded image.
//
// Returns:
//   - *PreprocessingResult: The preprocessed tensor and metadata.
//   - error: ErrImageTooLarge (wrapped) above the pixel limit, ErrInvalidImage (wrapped)
//     if the bytes do not decode.
func (p *Preprocessor) Preprocess(data []byte) (*PreprocessingResult, error) {
	decoded, err := images.DecodeLimited(data, p.config.MaxPixels)
	if err != nil {
		if errors.Is(err, images.ErrTooManyPixels) {
			return nil, errors.Wrap(ErrImageTooLarge, err.Error())
		}
		return nil, errors.Wrap(ErrInvalidImage, err.Error())
	}

	zlog.Debug("decoded image",
		zap.String("model", p.config.Name),
		zap.String("format", string(decoded.Format)),
		zap.Int("width", decoded.Width),
		zap.Int("height", decoded.Height))

	return p.PreprocessImage(decoded.Pixels, decoded.Format)
}

// PreprocessImage runs the resize, tensor conversion and normalization steps on an
// already decoded image.
func (p *Preprocessor) PreprocessImage(img image.Image, format images.Format) (*PreprocessingResult, error) {
	bounds := img.Bounds()

	resized, err := images.Resize(img, p.config.InputWidth, p.config.InputHeight)
	if err != nil {
		return nil, errors.Wrap(err, "resize failed")
	}

	tensor := p.imageToTensor(resized)
	p.normalize(tensor)

	var shape []int64
	if p.config.ChannelOrder == ChannelOrderCHW {
		shape = []int64{1, int64(p.config.InputChannels), int64(p.config.InputHeight), int64(p.config.InputWidth)}
	} else {
		shape = []int64{1, int64(p.config.InputHeight), int64(p.config.InputWidth), int64(p.config.InputChannels)}
	}

	return &PreprocessingResult{
		Data:           tensor,
		Shape:          shape,
		Format:         format,
		OriginalWidth:  bounds.Dx(),
		OriginalHeight: bounds.Dy(),
	}, nil
}

// imageToTensor converts an image to a float32 tensor with values in 0..255. Alpha is
// dropped without compositing.
func (p *Preprocessor) imageToTensor(img *image.NRGBA) []float32 {
	width := img.Rect.Dx()
	height := img.Rect.Dy()
	plane := width * height

	tensor := make([]float32, plane*p.config.InputChannels)

	idx := 0
	for y := 0; y < height; y++ {
		row := img.Pix[y*img.Stride:]
		for x := 0; x < width; x++ {
			r8, g8, b8 := row[x*4], row[x*4+1], row[x*4+2]

			if p.config.InputChannels == 1 {
				gray := 0.299*float32(r8) + 0.587*float32(g8) + 0.114*float32(b8)
				tensor[y*width+x] = gray
				continue
			}

			var ch0, ch1, ch2 float32
			if p.config.ColorMode == ColorModeBGR {
				ch0, ch1, ch2 = float32(b8), float32(g8), float32(r8)
			} else {
				ch0, ch1, ch2 = float32(r8), float32(g8), float32(b8)
			}

			if p.config.ChannelOrder == ChannelOrderCHW {
				tensor[y*width+x] = ch0
				tensor[plane+y*width+x] = ch1
				tensor[2*plane+y*width+x] = ch2
			} else {
				tensor[idx] = ch0
				tensor[idx+1] = ch1
				tensor[idx+2] = ch2
				idx += 3
			}
		}
	}

	return tensor
}

// normalize applies normalization to the tensor in place.
func (p *Preprocessor) normalize(tensor []float32) {
	switch p.config.NormalizationType {
	case NormalizeZeroToOne:
		for i := range tensor {
			tensor[i] /= 255.0
		}
	case NormalizeMinusOneToOne:
		for i := range tensor {
			tensor[i] = (tensor[i] / 127.5) - 1.0
		}
	case NormalizeStandardize:
		channels := p.config.InputChannels
		pixelsPerChannel := len(tensor) / channels
		for c := 0; c < channels; c++ {
			mean := p.config.MeanValues[c]
			std := p.config.StdValues[c]

			if p.config.ChannelOrder == ChannelOrderCHW {
				offset := c * pixelsPerChannel
				for i := 0; i < pixelsPerChannel; i++ {
					tensor[offset+i] = (tensor[offset+i]/255.0 - mean) / std
				}
			} else {
				for i := c; i < len(tensor); i += channels {
					tensor[i] = (tensor[i]/255.0 - mean) / std
				}
			}
		}
	}
}

// GetClassifierConfig returns the configuration described by a model's metadata: input
// size, channel layout, color mode and normalization. Unknown names fall back to the
// ImageNet defaults (standardized RGB in CHW order); Metadata.Validate rejects them first.
//
// Arguments:
//   - meta: The validated model metadata.
//
// Returns:
//   - *ModelConfig: The preprocessing configuration.
func GetClassifierConfig(meta *model.Metadata) *ModelConfig {
	cfg := &ModelConfig{
		Name:              "classifier",
		InputWidth:        meta.Width(),
		InputHeight:       meta.Height(),
		InputChannels:     meta.Channels(),
		NormalizationType: NormalizeStandardize,
		MeanValues:        meta.Mean,
		StdValues:         meta.Std,
		ChannelOrder:      ChannelOrderCHW,
		ColorMode:         ColorModeRGB,
	}

	switch meta.Normalization {
	case model.NormalizationZeroToOne:
		cfg.NormalizationType = NormalizeZeroToOne
	case model.NormalizationMinusOneToOne:
		cfg.NormalizationType = NormalizeMinusOneToOne
	case model.NormalizationNone:
		cfg.NormalizationType = NormalizeNone
	}
	if meta.ChannelOrder == model.ChannelOrderHWC {
		cfg.ChannelOrder = ChannelOrderHWC
	}
	switch meta.ColorMode {
	case model.ColorModeBGR:
		cfg.ColorMode = ColorModeBGR
	case model.ColorModeGrayscale:
		cfg.ColorMode = ColorModeGrayscale
	}
	return cfg
}

// BatchPreprocess processes multiple uploads in parallel. Failures are reported per item
// so one bad file does not discard the rest.
//
// Arguments:
//   - inputs: The encoded images.
//   - maxConcurrency: Maximum number of images to process concurrently.
//
// Returns:
//   - []*PreprocessingResult: One result per input, nil where it failed.
//   - []error: One error per input, nil where it succeeded.
func (p *Preprocessor) BatchPreprocess(inputs [][]byte, maxConcurrency int) ([]*PreprocessingResult, []error) {
	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}

	results := make([]*PreprocessingResult, len(inputs))
	errs := make([]error, len(inputs))

	sem := make(chan struct{}, maxConcurrency)
	var wg sync.WaitGroup

	for i, data := range inputs {
		wg.Add(1)
		go func(idx int, data []byte) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			result, err := p.Preprocess(data)
			if err != nil {
				errs[idx] = errors.Wrapf(err, "failed to preprocess image %d", idx)
				return
			}
			results[idx] = result
		}(i, data)
	}

	wg.Wait()

	return results, errs
}
