package images

import (
	"fmt"
	"image"
	"image/draw"

	"github.com/nfnt/resize"
)

// Resize scales img to exactly width x height without preserving the aspect ratio.
//
// Arguments:
//   - img: The source image.
//   - width: The target width.
//   - height: The target height.
//
// Returns:
//   - *image.NRGBA: The resized image with straight (non-premultiplied) alpha.
//   - error: An error if the target dimensions are not positive.
func Resize(img image.Image, width, height int) (*image.NRGBA, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid target dimensions: %dx%d", width, height)
	}
	src := ToNRGBA(img)
	if src.Bounds().Dx() == width && src.Bounds().Dy() == height {
		return src, nil
	}
	return ToNRGBA(resize.Resize(uint(width), uint(height), src, resize.Bilinear)), nil
}

// ToNRGBA converts img to an *image.NRGBA anchored at the origin. Alpha is kept but not
// applied to the colour channels, so dropping it later yields the stored RGB values.
func ToNRGBA(img image.Image) *image.NRGBA {
	if n, ok := img.(*image.NRGBA); ok && n.Rect.Min == (image.Point{}) {
		return n
	}
	b := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}
