// Package matcher locates a reference image inside a screenshot.
package matcher

import (
	"image"
	"math"
	"sort"

	"github.com/devicelab-dev/imagefinder/pkg/core"
)

// Match is a screen region that resembles the reference image.
type Match struct {
	Bounds core.Bounds `json:"bounds"`
	Score  float64     `json:"score"` // Similarity in [0, 1]
	Scale  float64     `json:"scale"` // Reference scale that produced the match
}

// Center returns the center point of the match region.
func (m Match) Center() core.Point {
	return m.Bounds.CenterPoint()
}

// Matcher finds a reference image in a screenshot.
// minSimilarity must be in [0, 1]; regions scoring below it never match.
type Matcher interface {
	// Match returns the best qualifying match, or nil if none qualifies.
	Match(screen, ref image.Image, minSimilarity float64) (*Match, error)

	// MatchAll returns every qualifying, mutually non-overlapping match,
	// best score first; equal scores are ordered top-to-bottom, left-to-right.
	MatchAll(screen, ref image.Image, minSimilarity float64) ([]Match, error)
}

// scoreTolerance absorbs float rounding when comparing scores to thresholds.
const scoreTolerance = 1e-6

// quantize reduces a score to the tie-break resolution.
func quantize(score float64) int64 {
	return int64(math.Round(score / scoreTolerance))
}

// better orders matches by score, then scan order.
func better(a, b Match) bool {
	qa, qb := quantize(a.Score), quantize(b.Score)
	if qa != qb {
		return qa > qb
	}
	if a.Bounds.Y != b.Bounds.Y {
		return a.Bounds.Y < b.Bounds.Y
	}
	if a.Bounds.X != b.Bounds.X {
		return a.Bounds.X < b.Bounds.X
	}
	// Same origin at different scales: prefer the scale closest to 1.
	return math.Abs(a.Scale-1) < math.Abs(b.Scale-1)
}

// suppress sorts candidates and drops any that overlap a better one.
func suppress(candidates []Match) []Match {
	sort.Slice(candidates, func(i, j int) bool {
		return better(candidates[i], candidates[j])
	})

	var kept []Match
	for _, c := range candidates {
		overlaps := false
		for _, k := range kept {
			if c.Bounds.Overlaps(k.Bounds) {
				overlaps = true
				break
			}
		}
		if !overlaps {
			kept = append(kept, c)
		}
	}
	return kept
}
