package matcher

import (
	"fmt"
	"image"
	"math"
	"runtime"

	"github.com/nfnt/resize"
	"golang.org/x/sync/errgroup"

	"github.com/devicelab-dev/imagefinder/pkg/core"
)

// DefaultCoarseMargin is how far below the threshold a coarse candidate may
// score and still be refined at full resolution.
const DefaultCoarseMargin = 0.15

// Options configures the NCC matcher. The zero value is usable.
type Options struct {
	// Scales lists reference scale factors to try (default [1.0]).
	// Useful when references were captured on a different screen density.
	Scales []float64

	// Pyramid is the block size of an optional coarse pass. 0 and 1 scan
	// every position at full resolution. Larger values trade recall for
	// speed: block averaging hides fine texture, so MatchAll may miss
	// matches. Match falls back to a full scan when the coarse pass finds
	// nothing.
	Pyramid int

	// CoarseMargin overrides DefaultCoarseMargin when > 0.
	CoarseMargin float64

	// Workers bounds the number of row bands scanned concurrently
	// (default GOMAXPROCS).
	Workers int
}

// NCC matches by zero-mean normalized cross-correlation of luma.
type NCC struct {
	opts Options
}

var _ Matcher = (*NCC)(nil)

// NewNCC creates an NCC matcher.
func NewNCC(opts Options) (*NCC, error) {
	for _, s := range opts.Scales {
		if !(s > 0) || math.IsInf(s, 0) {
			return nil, core.ErrInvalidConfig.WithMessage(fmt.Sprintf("invalid reference scale %v", s))
		}
	}
	if opts.Pyramid < 0 {
		return nil, core.ErrInvalidConfig.WithMessage(fmt.Sprintf("invalid pyramid size %d", opts.Pyramid))
	}
	if opts.CoarseMargin < 0 || opts.CoarseMargin > 1 {
		return nil, core.ErrInvalidConfig.WithMessage(fmt.Sprintf("invalid coarse margin %v", opts.CoarseMargin))
	}
	if opts.Workers < 0 {
		return nil, core.ErrInvalidConfig.WithMessage(fmt.Sprintf("invalid worker count %d", opts.Workers))
	}
	return &NCC{opts: opts}, nil
}

// Default returns an NCC matcher with default options.
func Default() *NCC {
	return &NCC{}
}

// Match implements Matcher.
func (n *NCC) Match(screen, ref image.Image, minSimilarity float64) (*Match, error) {
	matches, err := n.find(screen, ref, minSimilarity, false)
	if err != nil || len(matches) == 0 {
		return nil, err
	}
	m := matches[0]
	return &m, nil
}

// MatchAll implements Matcher.
func (n *NCC) MatchAll(screen, ref image.Image, minSimilarity float64) ([]Match, error) {
	return n.find(screen, ref, minSimilarity, true)
}

func (n *NCC) find(screen, ref image.Image, minSimilarity float64, all bool) ([]Match, error) {
	if err := core.ValidateSimilarity(minSimilarity); err != nil {
		return nil, err
	}
	if screen == nil || ref == nil {
		return nil, fmt.Errorf("matcher: nil image")
	}

	sp := lumaPlane(screen)
	sInt := newIntegral(sp)

	var candidates []Match
	for _, scale := range n.scales() {
		scaled := scaleReference(ref, scale)
		if scaled == nil {
			continue
		}
		tp := lumaPlane(scaled)
		if tp.w == 0 || tp.h == 0 || tp.w > sp.w || tp.h > sp.h {
			continue
		}
		for _, h := range n.search(sp, sInt, tp, minSimilarity, all) {
			candidates = append(candidates, Match{
				Bounds: core.Bounds{X: h.x, Y: h.y, Width: tp.w, Height: tp.h},
				Score:  h.score,
				Scale:  scale,
			})
		}
	}

	if all {
		return suppress(candidates), nil
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	best := candidates[0]
	for _, c := range candidates[1:] {
		if better(c, best) {
			best = c
		}
	}
	return []Match{best}, nil
}

func (n *NCC) scales() []float64 {
	if len(n.opts.Scales) == 0 {
		return []float64{1}
	}
	return n.opts.Scales
}

func (n *NCC) margin() float64 {
	if n.opts.CoarseMargin > 0 {
		return n.opts.CoarseMargin
	}
	return DefaultCoarseMargin
}

func (n *NCC) workers() int {
	if n.opts.Workers > 0 {
		return n.opts.Workers
	}
	return runtime.GOMAXPROCS(0)
}

// pyramidFor picks the coarse block size for a reference plane.
func (n *NCC) pyramidFor(tp *plane) int {
	side := min(tp.w, tp.h)
	k := n.opts.Pyramid
	for k > 1 && side/k < 4 {
		k /= 2
	}
	if k < 1 {
		return 1
	}
	return k
}

// hit is a scored template position.
type hit struct {
	x, y  int
	score float64
}

func hitBetter(a, b hit) bool {
	qa, qb := quantize(a.score), quantize(b.score)
	if qa != qb {
		return qa > qb
	}
	if a.y != b.y {
		return a.y < b.y
	}
	return a.x < b.x
}

func bestHit(hits []hit) []hit {
	if len(hits) <= 1 {
		return hits
	}
	best := hits[0]
	for _, h := range hits[1:] {
		if hitBetter(h, best) {
			best = h
		}
	}
	return []hit{best}
}

func (n *NCC) search(sp *plane, sInt *integral, tp *plane, minSimilarity float64, all bool) []hit {
	tmpl := newTemplate(tp)
	k := n.pyramidFor(tp)
	if k <= 1 {
		return n.scanPlane(sp, sInt, tmpl, minSimilarity, all)
	}
	return n.coarseToFine(sp, sInt, tmpl, k, minSimilarity, all)
}

// scanPlane scores every position of t over p. Rows are interleaved across
// workers. With all=false only the best qualifying hit is returned.
func (n *NCC) scanPlane(p *plane, it *integral, t *template, minSimilarity float64, all bool) []hit {
	maxX := p.w - t.p.w
	maxY := p.h - t.p.h
	if maxX < 0 || maxY < 0 {
		return nil
	}

	workers := n.workers()
	if workers > maxY+1 {
		workers = maxY + 1
	}
	bands := make([][]hit, workers)

	var g errgroup.Group
	for b := 0; b < workers; b++ {
		b := b
		g.Go(func() error {
			var best hit
			found := false
			for y := b; y <= maxY; y += workers {
				for x := 0; x <= maxX; x++ {
					s := score(p, it, t, x, y)
					if s+scoreTolerance < minSimilarity {
						continue
					}
					h := hit{x: x, y: y, score: s}
					if all {
						bands[b] = append(bands[b], h)
					} else if !found || hitBetter(h, best) {
						best, found = h, true
					}
				}
			}
			if !all && found {
				bands[b] = []hit{best}
			}
			return nil
		})
	}
	_ = g.Wait()

	var out []hit
	for _, band := range bands {
		out = append(out, band...)
	}
	if !all {
		return bestHit(out)
	}
	return out
}

// coarseToFine scores block-summed planes for every block phase, then
// rescores the neighbourhood of each coarse candidate at full resolution.
// A best-match search that refines nothing is repeated at full resolution.
func (n *NCC) coarseToFine(sp *plane, sInt *integral, tmpl *template, k int, minSimilarity float64, all bool) []hit {
	ct := newTemplate(tmpl.p.downsample(k, 0, 0))
	coarseMin := math.Max(0, minSimilarity-n.margin())

	maxX := sp.w - tmpl.p.w
	maxY := sp.h - tmpl.p.h
	if maxX < 0 || maxY < 0 {
		return nil
	}
	cols := maxX + 1
	visited := make([]bool, cols*(maxY+1))
	r := k / 2

	var out []hit
	for py := 0; py < k; py++ {
		for px := 0; px < k; px++ {
			cp := sp.downsample(k, px, py)
			if cp.w < ct.p.w || cp.h < ct.p.h {
				continue
			}
			for _, c := range n.scanPlane(cp, newIntegral(cp), ct, coarseMin, true) {
				fx, fy := c.x*k+px, c.y*k+py
				for y := fy - r; y <= fy+r; y++ {
					if y < 0 || y > maxY {
						continue
					}
					for x := fx - r; x <= fx+r; x++ {
						if x < 0 || x > maxX || visited[y*cols+x] {
							continue
						}
						visited[y*cols+x] = true
						s := score(sp, sInt, tmpl, x, y)
						if s+scoreTolerance < minSimilarity {
							continue
						}
						out = append(out, hit{x: x, y: y, score: s})
					}
				}
			}
		}
	}

	if !all {
		if len(out) == 0 {
			return n.scanPlane(sp, sInt, tmpl, minSimilarity, false)
		}
		return bestHit(out)
	}
	return out
}

// score is the NCC of t against the window of p at (x, y), clamped to [0, 1].
// Two flat regions score by mean difference; flat against textured scores 0.
func score(p *plane, it *integral, t *template, x, y int) float64 {
	sum, sq := it.window(x, y, t.p.w, t.p.h)
	mean := sum / t.n
	ss := sq - sum*mean

	flat := ss <= flatLimit(t.n, p.peak)
	if flat || t.flat {
		if flat && t.flat {
			return clamp(1 - math.Abs(mean-t.mean)/p.peak)
		}
		return 0
	}

	var num float64
	tw := t.p.w
	for j := 0; j < t.p.h; j++ {
		off := (y+j)*p.w + x
		row := p.pix[off : off+tw]
		dev := t.dev[j*tw : (j+1)*tw]
		for i, d := range dev {
			num += row[i] * d
		}
	}
	return clamp(num / (math.Sqrt(ss) * t.norm))
}

func clamp(s float64) float64 {
	switch {
	case s < 0 || math.IsNaN(s):
		return 0
	case s > 1:
		return 1
	}
	return s
}

// scaleReference resizes ref by scale, nil when it would vanish.
func scaleReference(ref image.Image, scale float64) image.Image {
	if scale == 1 {
		return ref
	}
	b := ref.Bounds()
	w := int(math.Round(float64(b.Dx()) * scale))
	h := int(math.Round(float64(b.Dy()) * scale))
	if w < 1 || h < 1 {
		return nil
	}
	return resize.Resize(uint(w), uint(h), ref, resize.Bilinear)
}
