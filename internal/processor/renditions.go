package processor

import (
	"bytes"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
)

// RenditionBuilder decodes an original upload once and derives the scaled
// variants the worker publishes next to it.
type RenditionBuilder struct {
	img image.Image
}

// Load decodes the original by extension. The extension comes from mime
// sniffing at upload time, not from the filename.
func (b *RenditionBuilder) Load(r io.Reader, ext string) error {
	var (
		img image.Image
		err error
	)
	switch ext {
	case ".png":
		img, err = png.Decode(r)
	case ".jpg", ".jpeg":
		img, err = jpeg.Decode(r)
	case ".webp":
		img, err = webp.Decode(r)
	case ".gif":
		img, err = gif.Decode(r)
	default:
		return fmt.Errorf("unsupported image extension: %s", ext)
	}
	if err != nil {
		return fmt.Errorf("decode %s: %w", ext, err)
	}
	b.img = img
	return nil
}

// Bounds returns the original's width and height.
func (b *RenditionBuilder) Bounds() (int, int) {
	return b.img.Bounds().Size().X, b.img.Bounds().Size().Y
}

// Thumbnail scales the image down so its longest edge is maxEdge, keeping the
// aspect ratio. Images already small enough come back untouched.
func (b *RenditionBuilder) Thumbnail(maxEdge int) image.Image {
	w := float64(b.img.Bounds().Dx())
	h := float64(b.img.Bounds().Dy())

	if w == 0 || h == 0 || maxEdge <= 0 {
		return b.img
	}

	ratio := w / float64(maxEdge)
	if hRatio := h / float64(maxEdge); hRatio > ratio {
		ratio = hRatio
	}

	// Never upscale
	if ratio <= 1 {
		return b.img
	}

	return imaging.Resize(b.img, int(w/ratio), int(h/ratio), imaging.Lanczos)
}

// EncodeJPEG renders any image as a JPEG payload.
func EncodeJPEG(img image.Image) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: 90}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// Image returns the decoded original.
func (b *RenditionBuilder) Image() image.Image {
	return b.img
}
