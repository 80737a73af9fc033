package matcher

import (
	"image"
	"math"

	"golang.org/x/image/draw"
)

// plane is a single-channel image. Pixels hold integer luma sums so the
// summed-area tables below stay exact in float64.
type plane struct {
	w, h int
	pix  []float64
	peak float64 // largest possible pixel value
}

// toGray returns img as 8-bit gray with its origin at (0, 0).
func toGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok && g.Rect.Min == (image.Point{}) {
		return g
	}
	b := img.Bounds()
	g := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(g, g.Bounds(), img, b.Min, draw.Src)
	return g
}

// lumaPlane converts any image to 8-bit luma.
func lumaPlane(img image.Image) *plane {
	b := img.Bounds()
	gray := toGray(img)

	p := &plane{w: b.Dx(), h: b.Dy(), pix: make([]float64, b.Dx()*b.Dy()), peak: 255}
	for y := 0; y < p.h; y++ {
		row := gray.Pix[y*gray.Stride : y*gray.Stride+p.w]
		for x, v := range row {
			p.pix[y*p.w+x] = float64(v)
		}
	}
	return p
}

// downsample sums k*k blocks starting at offset (px, py).
func (p *plane) downsample(k, px, py int) *plane {
	w := (p.w - px) / k
	h := (p.h - py) / k
	if w < 0 {
		w = 0
	}
	if h < 0 {
		h = 0
	}
	out := &plane{w: w, h: h, pix: make([]float64, w*h), peak: p.peak * float64(k*k)}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var s float64
			for j := 0; j < k; j++ {
				base := (py+y*k+j)*p.w + px + x*k
				for i := 0; i < k; i++ {
					s += p.pix[base+i]
				}
			}
			out.pix[y*w+x] = s
		}
	}
	return out
}

// integral is a summed-area table over a plane and its squares.
type integral struct {
	stride int
	sum    []float64
	sq     []float64
}

func newIntegral(p *plane) *integral {
	stride := p.w + 1
	it := &integral{
		stride: stride,
		sum:    make([]float64, stride*(p.h+1)),
		sq:     make([]float64, stride*(p.h+1)),
	}
	for y := 0; y < p.h; y++ {
		var rowSum, rowSq float64
		for x := 0; x < p.w; x++ {
			v := p.pix[y*p.w+x]
			rowSum += v
			rowSq += v * v
			idx := (y+1)*stride + x + 1
			it.sum[idx] = it.sum[idx-stride] + rowSum
			it.sq[idx] = it.sq[idx-stride] + rowSq
		}
	}
	return it
}

// window returns the pixel sum and squared sum of a w*h window at (x, y).
func (it *integral) window(x, y, w, h int) (float64, float64) {
	a := y*it.stride + x
	b := a + w
	c := (y+h)*it.stride + x
	d := c + w
	return it.sum[d] - it.sum[b] - it.sum[c] + it.sum[a],
		it.sq[d] - it.sq[b] - it.sq[c] + it.sq[a]
}

// template is a reference plane with precomputed zero-mean statistics.
type template struct {
	p    *plane
	dev  []float64 // pixel minus mean
	n    float64
	mean float64
	norm float64 // sqrt of the summed squared deviation
	flat bool
}

func newTemplate(p *plane) *template {
	t := &template{p: p, dev: make([]float64, len(p.pix)), n: float64(len(p.pix))}
	var sum float64
	for _, v := range p.pix {
		sum += v
	}
	t.mean = sum / t.n
	var ss float64
	for i, v := range p.pix {
		d := v - t.mean
		t.dev[i] = d
		ss += d * d
	}
	t.norm = math.Sqrt(ss)
	t.flat = ss <= flatLimit(t.n, p.peak)
	return t
}

// flatVariance is the per-pixel variance, on the 8-bit scale, below which a
// region counts as a solid color.
const flatVariance = 1e-3

// flatLimit is the summed squared deviation of n pixels below which a region
// is flat, scaled for planes whose pixels are block sums.
func flatLimit(n, peak float64) float64 {
	r := peak / 255
	return flatVariance * n * r * r
}
