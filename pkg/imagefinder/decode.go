package imagefinder

import (
	"bytes"
	"image"

	// Screenshot and reference formats.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// Decode decodes PNG, JPEG, GIF, BMP or WebP image data.
func Decode(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	return img, err
}
