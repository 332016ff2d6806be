package webp_converter

import (
	"bytes"
	"fmt"
	"image"

	"github.com/chai2010/webp"
)

type Converter struct{}

// FromImage encodes a decoded image as webp. PNG sources get lossless-grade
// quality since they tend to be graphics; everything else gets photo quality.
func (Converter) FromImage(img image.Image, ext string) ([]byte, error) {
	var q float32 = 75
	if ext == ".png" {
		q = 100
	}

	var buf bytes.Buffer
	if err := webp.Encode(&buf, img, &webp.Options{Quality: q}); err != nil {
		return nil, fmt.Errorf("error encoding to webp: %v", err)
	}

	return buf.Bytes(), nil
}
