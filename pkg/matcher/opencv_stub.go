//go:build !gocv

package matcher

import (
	"image"

	"github.com/devicelab-dev/imagefinder/pkg/core"
)

// OpenCVAvailable reports whether the binary was built with -tags gocv.
const OpenCVAvailable = false

// OpenCV is only functional in binaries built with -tags gocv.
type OpenCV struct{}

var _ Matcher = (*OpenCV)(nil)

// NewOpenCV fails: this binary was built without OpenCV.
func NewOpenCV(opts Options) (*OpenCV, error) {
	return nil, core.ErrInvalidConfig.WithMessage("opencv matcher requires a build with -tags gocv")
}

// Match implements Matcher.
func (o *OpenCV) Match(screen, ref image.Image, minSimilarity float64) (*Match, error) {
	return nil, core.ErrInvalidConfig.WithMessage("opencv matcher requires a build with -tags gocv")
}

// MatchAll implements Matcher.
func (o *OpenCV) MatchAll(screen, ref image.Image, minSimilarity float64) ([]Match, error) {
	return nil, core.ErrInvalidConfig.WithMessage("opencv matcher requires a build with -tags gocv")
}
