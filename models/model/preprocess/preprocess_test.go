package preprocess

// Test coverage for the classifier preprocessing pipeline: decoding, resizing, channel
// layout, normalization and the batch helper.

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/braintumor/models/model"
)

// createTestPNGImage encodes a uniform PNG, which round-trips pixel values exactly.
func createTestPNGImage(t *testing.T, width, height int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// createTestJPEGImage encodes a gradient JPEG.
func createTestJPEGImage(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}))
	return buf.Bytes()
}

func newClassifierPreprocessor(t *testing.T, size int) *Preprocessor {
	t.Helper()
	meta := model.DefaultMetadata(size)
	p, err := NewPreprocessor(GetClassifierConfig(meta))
	require.NoError(t, err)
	return p
}

// TestPreprocessClassifier validates the full pipeline for the default 224x224 classifier
// configuration, from raw JPEG bytes to a standardized CHW tensor.
func TestPreprocessClassifier(t *testing.T) {
	p := newClassifierPreprocessor(t, 224)
	assert.Equal(t, 224, p.Config().InputWidth)

	result, err := p.Preprocess(createTestJPEGImage(t, 800, 600))
	require.NoError(t, err)

	assert.Equal(t, []int64{1, 3, 224, 224}, result.Shape)
	assert.Len(t, result.Data, 3*224*224)
	assert.Equal(t, 800, result.OriginalWidth)
	assert.Equal(t, 600, result.OriginalHeight)
	assert.Equal(t, "jpeg", string(result.Format))

	// ImageNet standardization keeps values within [(0-0.485)/0.229, (1-0.406)/0.225].
	for _, v := range result.Data {
		assert.GreaterOrEqual(t, v, float32(-2.2))
		assert.LessOrEqual(t, v, float32(2.7))
	}
}

// TestPreprocessStandardizesPerChannel checks exact values on a uniform image so the
// channel planes and the mean/std arithmetic can be verified directly.
func TestPreprocessStandardizesPerChannel(t *testing.T) {
	p := newClassifierPreprocessor(t, 8)

	result, err := p.Preprocess(createTestPNGImage(t, 16, 16, color.RGBA{R: 255, G: 0, B: 128, A: 255}))
	require.NoError(t, err)

	plane := 8 * 8
	wantR := (1.0 - 0.485) / 0.229
	wantG := (0.0 - 0.456) / 0.224
	wantB := (128.0/255.0 - 0.406) / 0.225

	for i := 0; i < plane; i++ {
		assert.InDelta(t, wantR, result.Data[i], 1e-4)
		assert.InDelta(t, wantG, result.Data[plane+i], 1e-4)
		assert.InDelta(t, wantB, result.Data[2*plane+i], 1e-4)
	}
}

// TestPreprocessInvalidImage ensures undecodable input is reported as ErrInvalidImage so
// callers can answer with a client error.
func TestPreprocessInvalidImage(t *testing.T) {
	p := newClassifierPreprocessor(t, 224)

	for name, data := range map[string][]byte{
		"empty":  nil,
		"text":   []byte("definitely not an image"),
		"header": createTestPNGImage(t, 4, 4, color.Black)[:16],
	} {
		t.Run(name, func(t *testing.T) {
			result, err := p.Preprocess(data)
			assert.Nil(t, result)
			assert.True(t, errors.Is(err, ErrInvalidImage))
		})
	}
}

// TestPreprocessDeterministic verifies identical bytes produce bit-identical tensors.
func TestPreprocessDeterministic(t *testing.T) {
	p := newClassifierPreprocessor(t, 32)
	data := createTestJPEGImage(t, 120, 90)

	a, err := p.Preprocess(data)
	require.NoError(t, err)
	b, err := p.Preprocess(data)
	require.NoError(t, err)

	assert.Equal(t, a.Data, b.Data)
}

// TestMetadataLayouts builds preprocessors from model metadata for every supported
// normalization, channel order and color mode.
func TestMetadataLayouts(t *testing.T) {
	data := createTestPNGImage(t, 4, 4, color.RGBA{R: 255, G: 51, B: 0, A: 255})

	tests := []struct {
		name          string
		normalization string
		order         string
		colorMode     string
		shape         []int64
		first         []float32
	}{
		{
			name:          "none hwc",
			normalization: model.NormalizationNone,
			order:         model.ChannelOrderHWC,
			colorMode:     model.ColorModeRGB,
			shape:         []int64{1, 2, 2, 3},
			first:         []float32{255, 51, 0},
		},
		{
			name:          "zero to one hwc",
			normalization: model.NormalizationZeroToOne,
			order:         model.ChannelOrderHWC,
			colorMode:     model.ColorModeRGB,
			shape:         []int64{1, 2, 2, 3},
			first:         []float32{1, 0.2, 0},
		},
		{
			name:          "minus one to one bgr hwc",
			normalization: model.NormalizationMinusOneToOne,
			order:         model.ChannelOrderHWC,
			colorMode:     model.ColorModeBGR,
			shape:         []int64{1, 2, 2, 3},
			first:         []float32{-1, 51/127.5 - 1, 1},
		},
		{
			name:          "zero to one bgr chw",
			normalization: model.NormalizationZeroToOne,
			order:         model.ChannelOrderCHW,
			colorMode:     model.ColorModeBGR,
			shape:         []int64{1, 3, 2, 2},
			first:         []float32{0, 0, 0, 0, 0.2},
		},
		{
			name:          "grayscale",
			normalization: model.NormalizationNone,
			order:         model.ChannelOrderCHW,
			colorMode:     model.ColorModeGrayscale,
			shape:         []int64{1, 1, 2, 2},
			first:         []float32{0.299*255 + 0.587*51},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meta := model.DefaultMetadata(2)
			meta.Normalization = tt.normalization
			meta.ChannelOrder = tt.order
			meta.ColorMode = tt.colorMode
			meta.InputShape = tt.shape
			require.NoError(t, meta.Validate())

			p, err := NewPreprocessor(GetClassifierConfig(meta))
			require.NoError(t, err)

			result, err := p.Preprocess(data)
			require.NoError(t, err)
			assert.Equal(t, tt.shape, result.Shape)
			require.Len(t, result.Data, 4*meta.Channels())
			for i, want := range tt.first {
				assert.InDelta(t, want, result.Data[i], 1e-3)
			}
		})
	}
}

// TestPreprocessPixelLimit rejects images whose header exceeds MaxPixels.
func TestPreprocessPixelLimit(t *testing.T) {
	cfg := GetClassifierConfig(model.DefaultMetadata(8))
	cfg.MaxPixels = 100
	p, err := NewPreprocessor(cfg)
	require.NoError(t, err)

	_, err = p.Preprocess(createTestPNGImage(t, 20, 20, color.White))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrImageTooLarge))
	assert.False(t, errors.Is(err, ErrInvalidImage))

	result, err := p.Preprocess(createTestPNGImage(t, 10, 10, color.White))
	require.NoError(t, err)
	assert.Equal(t, 10, result.OriginalWidth)
}

// TestNewPreprocessorValidation rejects configurations that cannot produce a tensor.
func TestNewPreprocessorValidation(t *testing.T) {
	tests := map[string]*ModelConfig{
		"nil":             nil,
		"zero width":      {InputWidth: 0, InputHeight: 10, InputChannels: 3},
		"four channels":   {InputWidth: 10, InputHeight: 10, InputChannels: 4},
		"one channel rgb": {InputWidth: 10, InputHeight: 10, InputChannels: 1},
		"gray three ch":   {InputWidth: 10, InputHeight: 10, InputChannels: 3, ColorMode: ColorModeGrayscale},
		"missing std":     {InputWidth: 10, InputHeight: 10, InputChannels: 3, NormalizationType: NormalizeStandardize, MeanValues: []float32{0, 0, 0}},
		"zero std value":  {InputWidth: 10, InputHeight: 10, InputChannels: 3, NormalizationType: NormalizeStandardize, MeanValues: []float32{0, 0, 0}, StdValues: []float32{1, 0, 1}},
	}
	for name, cfg := range tests {
		t.Run(name, func(t *testing.T) {
			p, err := NewPreprocessor(cfg)
			assert.Error(t, err)
			assert.Nil(t, p)
		})
	}
}

// TestBatchPreprocess checks a bad item fails alone.
func TestBatchPreprocess(t *testing.T) {
	p := newClassifierPreprocessor(t, 16)

	inputs := [][]byte{
		createTestJPEGImage(t, 50, 50),
		[]byte("garbage"),
		createTestPNGImage(t, 20, 10, color.White),
	}

	results, errs := p.BatchPreprocess(inputs, 2)
	require.Len(t, results, 3)
	require.Len(t, errs, 3)

	assert.NoError(t, errs[0])
	assert.NotNil(t, results[0])
	assert.True(t, errors.Is(errs[1], ErrInvalidImage))
	assert.Nil(t, results[1])
	assert.NoError(t, errs[2])
	assert.Equal(t, 20, results[2].OriginalWidth)
}
