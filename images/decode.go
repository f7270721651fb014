package images

import (
	"bytes"
	"image"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/pkg/errors"
)

// ErrUndecodable is returned when bytes do not decode as any supported image.
var ErrUndecodable = errors.New("bytes do not decode as a supported image")

// ErrTooManyPixels is returned when the header declares more pixels than allowed.
var ErrTooManyPixels = errors.New("image dimensions exceed the pixel limit")

// DefaultMaxPixels bounds width*height of an upload before its pixels are decoded.
const DefaultMaxPixels = 50_000_000

// Sniff returns the media type detected from the content of data, ignoring whatever the
// client declared.
//
// Arguments:
//   - data: The raw upload.
//
// Returns:
//   - string: The detected media type without parameters, e.g. "image/png".
func Sniff(data []byte) string {
	mt := mimetype.Detect(data).String()
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = mt[:i]
	}
	return mt
}

// IsImageMIME reports whether mt names an image media type.
func IsImageMIME(mt string) bool {
	mt = strings.ToLower(strings.TrimSpace(mt))
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	return strings.HasPrefix(mt, "image/")
}

// Decode decodes data with the registered decoders, refusing images above
// DefaultMaxPixels.
//
// Arguments:
//   - data: The raw upload.
//
// Returns:
//   - *Image: The decoded image with its format and dimensions.
//   - error: ErrUndecodable or ErrTooManyPixels (wrapped).
func Decode(data []byte) (*Image, error) {
	return DecodeLimited(data, DefaultMaxPixels)
}

// DecodeLimited reads the image header first and only decodes the pixels when
// width*height is at most maxPixels. A non-positive maxPixels uses DefaultMaxPixels.
//
// Arguments:
//   - data: The raw upload.
//   - maxPixels: The largest accepted width*height.
//
// Returns:
//   - *Image: The decoded image with its format and dimensions.
//   - error: ErrUndecodable or ErrTooManyPixels (wrapped).
func DecodeLimited(data []byte, maxPixels int64) (*Image, error) {
	if len(data) == 0 {
		return nil, errors.Wrap(ErrUndecodable, "image data is empty")
	}
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrapf(ErrUndecodable, "decode config: %v", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, errors.Wrapf(ErrUndecodable, "invalid image dimensions: %dx%d", cfg.Width, cfg.Height)
	}
	if int64(cfg.Width)*int64(cfg.Height) > maxPixels {
		return nil, errors.Wrapf(ErrTooManyPixels, "%dx%d is more than %d pixels", cfg.Width, cfg.Height, maxPixels)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrapf(ErrUndecodable, "decode: %v", err)
	}

	bounds := img.Bounds()
	if bounds.Dx() <= 0 || bounds.Dy() <= 0 {
		return nil, errors.Wrapf(ErrUndecodable, "invalid image dimensions: %dx%d", bounds.Dx(), bounds.Dy())
	}

	return &Image{
		Format: Format(format),
		MIME:   Sniff(data),
		Pixels: img,
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
	}, nil
}
