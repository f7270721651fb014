// Package images - Decoding, sniffing and resizing of uploaded images.
package images

import "image"

// Image is a decoded upload together with what was learned while decoding it.
type Image struct {
	// Format is the decoder that accepted the bytes.
	Format Format `json:"format" yaml:"format"`
	// MIME is the sniffed media type of the raw bytes.
	MIME string `json:"mime" yaml:"mime"`
	// Pixels is the decoded pixel grid.
	Pixels image.Image `json:"-" yaml:"-"`
	// Width of the decoded image.
	Width int `json:"width" yaml:"width"`
	// Height of the decoded image.
	Height int `json:"height" yaml:"height"`
}
