package main

import (
	"bytes"
	"image"
	stdcolor "image/color"
	"image/draw"
	"image/jpeg"
)

// grayJPEG encodes a uniform mid-gray square.
func grayJPEG(size int) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: stdcolor.Gray{Y: 128}}, image.Point{}, draw.Src)
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
