package matcher

import (
	"image"
	"image/color"
	"math/rand"

	"golang.org/x/image/draw"
)

// noise returns a uniformly random gray image.
func noise(seed int64, w, h int) *image.Gray {
	rng := rand.New(rand.NewSource(seed))
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = uint8(rng.Intn(256))
	}
	return img
}

// noiseRGBA returns a uniformly random opaque color image.
func noiseRGBA(seed int64, w, h int) *image.RGBA {
	rng := rand.New(rand.NewSource(seed))
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{
				R: uint8(rng.Intn(256)),
				G: uint8(rng.Intn(256)),
				B: uint8(rng.Intn(256)),
				A: 255,
			})
		}
	}
	return img
}

// solid returns a single-color gray image.
func solid(w, h int, v uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = v
	}
	return img
}

// plant copies src into dst with its top-left corner at (x, y).
func plant(dst draw.Image, src image.Image, x, y int) {
	b := src.Bounds()
	draw.Draw(dst, image.Rect(x, y, x+b.Dx(), y+b.Dy()), src, b.Min, draw.Src)
}

// corruptBottom replaces the bottom half of img's rows with fresh noise.
func corruptBottom(img *image.Gray, seed int64) *image.Gray {
	out := image.NewGray(img.Rect)
	copy(out.Pix, img.Pix)
	rng := rand.New(rand.NewSource(seed))
	h := img.Rect.Dy()
	for y := h / 2; y < h; y++ {
		for x := 0; x < img.Rect.Dx(); x++ {
			out.Pix[y*out.Stride+x] = uint8(rng.Intn(256))
		}
	}
	return out
}

// checkerSplit is a one-pixel checkerboard (+-60) over a left/right
// brightness split (+-18). invert flips the split only.
func checkerSplit(w, h int, invert bool) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := 128
			if (x+y)%2 == 0 {
				v += 60
			} else {
				v -= 60
			}
			right := x >= w/2
			if right != invert {
				v += 18
			} else {
				v -= 18
			}
			img.Pix[y*img.Stride+x] = uint8(v)
		}
	}
	return img
}

// bars draws dark two-pixel strokes of varying length on a light background.
func bars(w, h int) *image.Gray {
	img := solid(w, h, 230)
	for y := 2; y+2 <= h; y += 5 {
		length := w/2 + (y*7)%(w/2)
		for yy := y; yy < y+2; yy++ {
			for x := 1; x < length; x++ {
				img.Pix[yy*img.Stride+x] = 20
			}
		}
	}
	return img
}

// gradient ramps brightness along both axes.
func gradient(w, h int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Pix[y*img.Stride+x] = uint8(40 + 4*x + 2*y)
		}
	}
	return img
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
