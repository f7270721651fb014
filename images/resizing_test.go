package images

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getTestImage(w, h int, c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestResize(t *testing.T) {
	tests := []struct {
		name       string
		srcW, srcH int
		targetW    int
		targetH    int
		shouldFail bool
	}{
		{name: "downscale", srcW: 640, srcH: 480, targetW: 224, targetH: 224},
		{name: "upscale", srcW: 32, srcH: 16, targetW: 224, targetH: 224},
		{name: "same size", srcW: 224, srcH: 224, targetW: 224, targetH: 224},
		{name: "non square target", srcW: 100, srcH: 100, targetW: 64, targetH: 32},
		{name: "zero dimensions", srcW: 100, srcH: 100, targetW: 0, targetH: 0, shouldFail: true},
		{name: "negative dimensions", srcW: 100, srcH: 100, targetW: -10, targetH: 50, shouldFail: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := getTestImage(tt.srcW, tt.srcH, color.RGBA{R: 200, G: 100, B: 50, A: 255})

			img, err := Resize(src, tt.targetW, tt.targetH)

			if tt.shouldFail {
				assert.Error(t, err)
				assert.Nil(t, img)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.targetW, img.Bounds().Dx())
			assert.Equal(t, tt.targetH, img.Bounds().Dy())

			// A uniform image stays uniform through bilinear resampling.
			c := img.NRGBAAt(tt.targetW/2, tt.targetH/2)
			assert.InDelta(t, 200, int(c.R), 1)
			assert.InDelta(t, 100, int(c.G), 1)
			assert.InDelta(t, 50, int(c.B), 1)
		})
	}
}

func TestToNRGBAKeepsStraightColour(t *testing.T) {
	src := image.NewNRGBA(image.Rect(10, 10, 12, 12))
	src.SetNRGBA(10, 10, color.NRGBA{R: 200, G: 40, B: 10, A: 128})

	dst := ToNRGBA(src)

	assert.Equal(t, image.Rect(0, 0, 2, 2), dst.Bounds())
	got := dst.NRGBAAt(0, 0)
	assert.Equal(t, uint8(200), got.R)
	assert.Equal(t, uint8(40), got.G)
	assert.Equal(t, uint8(128), got.A)
}
