//go:build gocv

package matcher

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"github.com/devicelab-dev/imagefinder/pkg/core"
)

// OpenCVAvailable reports whether the binary was built with -tags gocv.
const OpenCVAvailable = true

// OpenCV matches with OpenCV's TM_CCOEFF_NORMED template matching. Scores
// and ordering follow the NCC matcher, so the two are interchangeable.
type OpenCV struct {
	scales []float64
}

var _ Matcher = (*OpenCV)(nil)

// NewOpenCV creates an OpenCV matcher. Only Options.Scales applies.
func NewOpenCV(opts Options) (*OpenCV, error) {
	if _, err := NewNCC(Options{Scales: opts.Scales}); err != nil {
		return nil, err
	}
	return &OpenCV{scales: opts.Scales}, nil
}

// Match implements Matcher.
func (o *OpenCV) Match(screen, ref image.Image, minSimilarity float64) (*Match, error) {
	matches, err := o.find(screen, ref, minSimilarity, false)
	if err != nil || len(matches) == 0 {
		return nil, err
	}
	m := matches[0]
	return &m, nil
}

// MatchAll implements Matcher.
func (o *OpenCV) MatchAll(screen, ref image.Image, minSimilarity float64) ([]Match, error) {
	return o.find(screen, ref, minSimilarity, true)
}

func (o *OpenCV) find(screen, ref image.Image, minSimilarity float64, all bool) ([]Match, error) {
	if err := core.ValidateSimilarity(minSimilarity); err != nil {
		return nil, err
	}
	if screen == nil || ref == nil {
		return nil, fmt.Errorf("matcher: nil image")
	}

	sm, err := grayMat(screen)
	if err != nil {
		return nil, err
	}
	defer sm.Close()

	scales := o.scales
	if len(scales) == 0 {
		scales = []float64{1}
	}

	var candidates []Match
	var best *Match
	for _, scale := range scales {
		scaled := scaleReference(ref, scale)
		if scaled == nil {
			continue
		}
		b := scaled.Bounds()
		if b.Dx() == 0 || b.Dy() == 0 || b.Dx() > sm.Cols() || b.Dy() > sm.Rows() {
			continue
		}
		hits, err := matchTemplate(sm, scaled, minSimilarity)
		if err != nil {
			return nil, err
		}
		for _, h := range hits {
			m := Match{
				Bounds: core.Bounds{X: h.x, Y: h.y, Width: b.Dx(), Height: b.Dy()},
				Score:  h.score,
				Scale:  scale,
			}
			if all {
				candidates = append(candidates, m)
			} else if best == nil || better(m, *best) {
				best = &m
			}
		}
	}

	if all {
		return suppress(candidates), nil
	}
	if best == nil {
		return nil, nil
	}
	return []Match{*best}, nil
}

// matchTemplate returns every position of ref over screen scoring at least
// minSimilarity.
func matchTemplate(screen gocv.Mat, ref image.Image, minSimilarity float64) ([]hit, error) {
	tm, err := grayMat(ref)
	if err != nil {
		return nil, err
	}
	defer tm.Close()

	result := gocv.NewMat()
	defer result.Close()
	mask := gocv.NewMat()
	defer mask.Close()

	gocv.MatchTemplate(screen, tm, &result, gocv.TmCcoeffNormed, mask)

	var hits []hit
	for y := 0; y < result.Rows(); y++ {
		for x := 0; x < result.Cols(); x++ {
			s := clamp(float64(result.GetFloatAt(y, x)))
			if s+scoreTolerance < minSimilarity {
				continue
			}
			hits = append(hits, hit{x: x, y: y, score: s})
		}
	}
	return hits, nil
}

// grayMat converts img to a single-channel 8-bit Mat.
func grayMat(img image.Image) (gocv.Mat, error) {
	g := toGray(img)
	if g.Stride != g.Rect.Dx() {
		compact := image.NewGray(g.Rect)
		for y := 0; y < g.Rect.Dy(); y++ {
			copy(compact.Pix[y*compact.Stride:], g.Pix[y*g.Stride:y*g.Stride+g.Rect.Dx()])
		}
		g = compact
	}
	return gocv.ImageGrayToMatGray(g)
}
