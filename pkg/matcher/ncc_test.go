package matcher

import (
	"errors"
	"image"
	"testing"

	"github.com/nfnt/resize"

	"github.com/devicelab-dev/imagefinder/pkg/core"
)

func TestNCC_Match_ExactCopy(t *testing.T) {
	screen := noiseRGBA(1, 200, 150)
	ref := noiseRGBA(2, 20, 16)
	plant(screen, ref, 37, 81)

	m, err := Default().Match(screen, ref, 0.8)
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}
	if m == nil {
		t.Fatal("expected a match")
	}
	if m.Bounds != (core.Bounds{X: 37, Y: 81, Width: 20, Height: 16}) {
		t.Errorf("Bounds = %+v, want {37 81 20 16}", m.Bounds)
	}
	if m.Score < 0.99 {
		t.Errorf("Score = %v, want ~1", m.Score)
	}
	if c := m.Center(); c != (core.Point{X: 47, Y: 89}) {
		t.Errorf("Center() = %+v, want {47 89}", c)
	}
}

func TestNCC_Match_NotPresent(t *testing.T) {
	screen := noise(3, 200, 150)
	ref := noise(4, 20, 16)

	m, err := Default().Match(screen, ref, 0.8)
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}
	if m != nil {
		t.Errorf("expected no match, got %+v", m)
	}
}

func TestNCC_Match_AnyThresholdFindsExactCopy(t *testing.T) {
	screen := noise(5, 160, 120)
	ref := noise(6, 18, 18)
	plant(screen, ref, 90, 12)
	box := core.Bounds{X: 90, Y: 12, Width: 18, Height: 18}

	for _, threshold := range []float64{0, 0.25, 0.5, 0.8, 0.95, 1} {
		m, err := Default().Match(screen, ref, threshold)
		if err != nil {
			t.Fatalf("Match(%v) failed: %v", threshold, err)
		}
		if m == nil {
			t.Fatalf("Match(%v) found nothing", threshold)
		}
		c := m.Center()
		if !box.Contains(c.X, c.Y) {
			t.Errorf("Match(%v) center %+v outside planted box %+v", threshold, c, box)
		}
	}
}

func TestNCC_Match_ThresholdAbovePlantedSimilarity(t *testing.T) {
	screen := noise(7, 200, 150)
	ref := noise(8, 20, 20)
	// Half the rows agree with the reference, so its true similarity is
	// roughly 0.5.
	plant(screen, corruptBottom(ref, 9), 60, 70)
	n, _ := NewNCC(Options{Pyramid: 1})

	m, err := n.Match(screen, ref, 0.3)
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}
	if m == nil {
		t.Fatal("expected a match at similarity 0.3")
	}
	if m.Bounds.X != 60 || m.Bounds.Y != 70 {
		t.Errorf("Bounds = %+v, want origin (60, 70)", m.Bounds)
	}
	if m.Score > 0.8 {
		t.Errorf("Score = %v, expected a partial match", m.Score)
	}

	m, err = n.Match(screen, ref, 0.8)
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}
	if m != nil {
		t.Errorf("expected no match at similarity 0.8, got %+v", m)
	}
}

func TestNCC_MatchAll_PlantedCopies(t *testing.T) {
	screen := noiseRGBA(10, 300, 200)
	ref := noiseRGBA(11, 18, 18)
	origins := []image.Point{{10, 10}, {100, 40}, {200, 150}, {50, 170}}
	for _, o := range origins {
		plant(screen, ref, o.X, o.Y)
	}

	matches, err := Default().MatchAll(screen, ref, 0.8)
	if err != nil {
		t.Fatalf("MatchAll failed: %v", err)
	}
	if len(matches) != len(origins) {
		t.Fatalf("MatchAll returned %d matches, want %d: %+v", len(matches), len(origins), matches)
	}

	// Equal scores come back in scan order.
	for i, o := range origins {
		c := matches[i].Center()
		wantX, wantY := o.X+9, o.Y+9
		if abs(c.X-wantX) > 1 || abs(c.Y-wantY) > 1 {
			t.Errorf("match %d center = %+v, want (%d, %d) ±1", i, c, wantX, wantY)
		}
	}
}

func TestNCC_MatchAll_NonOverlapping(t *testing.T) {
	screen := noise(12, 80, 60)
	ref := noise(13, 10, 10)
	plant(screen, ref, 30, 20)

	matches, err := Default().MatchAll(screen, ref, 0)
	if err != nil {
		t.Fatalf("MatchAll failed: %v", err)
	}
	if len(matches) == 0 {
		t.Fatal("expected matches at similarity 0")
	}
	if matches[0].Bounds.X != 30 || matches[0].Bounds.Y != 20 {
		t.Errorf("best match = %+v, want origin (30, 20)", matches[0].Bounds)
	}
	for i := range matches {
		for j := i + 1; j < len(matches); j++ {
			if matches[i].Bounds.Overlaps(matches[j].Bounds) {
				t.Fatalf("matches %d and %d overlap: %+v %+v", i, j, matches[i].Bounds, matches[j].Bounds)
			}
		}
		if i > 0 && matches[i].Score > matches[i-1].Score+scoreTolerance {
			t.Errorf("matches not sorted by score at %d", i)
		}
	}
}

func TestNCC_Match_FlatRegions(t *testing.T) {
	screen := solid(100, 100, 200)
	ref := solid(10, 10, 50)
	plant(screen, ref, 30, 40)

	m, err := Default().Match(screen, ref, 0.8)
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}
	if m == nil {
		t.Fatal("expected a match")
	}
	if m.Bounds.X != 30 || m.Bounds.Y != 40 {
		t.Errorf("Bounds = %+v, want origin (30, 40)", m.Bounds)
	}

	matches, err := Default().MatchAll(screen, ref, 0.8)
	if err != nil {
		t.Fatalf("MatchAll failed: %v", err)
	}
	if len(matches) != 1 {
		t.Errorf("MatchAll returned %d matches, want 1", len(matches))
	}
}

func TestNCC_Match_Pyramid(t *testing.T) {
	screen := noise(14, 320, 240)
	ref := noise(15, 48, 48)
	plant(screen, ref, 101, 57)

	coarse, _ := NewNCC(Options{Pyramid: 4})
	if k := coarse.pyramidFor(lumaPlane(ref)); k != 4 {
		t.Fatalf("pyramidFor(48x48) = %d, want 4", k)
	}

	m, err := coarse.Match(screen, ref, 0.8)
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}
	if m == nil {
		t.Fatal("expected a match")
	}
	if m.Bounds.X != 101 || m.Bounds.Y != 57 {
		t.Errorf("Bounds = %+v, want origin (101, 57)", m.Bounds)
	}

	exhaustive, _ := NewNCC(Options{Pyramid: 1})
	e, err := exhaustive.Match(screen, ref, 0.8)
	if err != nil || e == nil {
		t.Fatalf("exhaustive Match = %v, %v", e, err)
	}
	if e.Bounds != m.Bounds {
		t.Errorf("pyramid %+v and exhaustive %+v disagree", m.Bounds, e.Bounds)
	}
}

func TestNCC_MatchAll_Pyramid(t *testing.T) {
	screen := noise(16, 320, 240)
	ref := noise(17, 48, 48)
	plant(screen, ref, 3, 5)
	plant(screen, ref, 200, 130)

	coarse, _ := NewNCC(Options{Pyramid: 4})
	matches, err := coarse.MatchAll(screen, ref, 0.8)
	if err != nil {
		t.Fatalf("MatchAll failed: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("MatchAll returned %d matches, want 2", len(matches))
	}
	if matches[0].Bounds.X != 3 || matches[1].Bounds.X != 200 {
		t.Errorf("matches = %+v", matches)
	}
}

func TestNCC_Match_Scales(t *testing.T) {
	screen := noise(18, 200, 160)
	ref := noise(19, 20, 20)
	plant(screen, resize.Resize(40, 40, ref, resize.Bilinear), 70, 90)

	n, err := NewNCC(Options{Scales: []float64{1, 2}})
	if err != nil {
		t.Fatalf("NewNCC failed: %v", err)
	}
	m, err := n.Match(screen, ref, 0.9)
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}
	if m == nil {
		t.Fatal("expected a match at scale 2")
	}
	if m.Scale != 2 {
		t.Errorf("Scale = %v, want 2", m.Scale)
	}
	if m.Bounds != (core.Bounds{X: 70, Y: 90, Width: 40, Height: 40}) {
		t.Errorf("Bounds = %+v, want {70 90 40 40}", m.Bounds)
	}

	m, _ = Default().Match(screen, ref, 0.9)
	if m != nil {
		t.Errorf("unscaled matcher should not match, got %+v", m)
	}
}

func TestNCC_Match_ReferenceLargerThanScreen(t *testing.T) {
	m, err := Default().Match(noise(20, 30, 30), noise(21, 40, 10), 0.5)
	if err != nil {
		t.Fatalf("Match failed: %v", err)
	}
	if m != nil {
		t.Errorf("expected no match, got %+v", m)
	}
}

func TestNCC_Match_SubImageCoordinates(t *testing.T) {
	full := noise(22, 120, 120)
	ref := noise(23, 12, 12)
	plant(full, ref, 70, 60)
	sub := full.SubImage(image.Rect(50, 50, 120, 120))

	m, err := Default().Match(sub, ref, 0.9)
	if err != nil || m == nil {
		t.Fatalf("Match = %v, %v", m, err)
	}
	// Coordinates are relative to the screen's top-left corner.
	if m.Bounds.X != 20 || m.Bounds.Y != 10 {
		t.Errorf("Bounds = %+v, want origin (20, 10)", m.Bounds)
	}
}

func TestNCC_InvalidSimilarity(t *testing.T) {
	screen := noise(24, 20, 20)
	for _, s := range []float64{-0.1, 1.5} {
		if _, err := Default().Match(screen, screen, s); !errors.Is(err, core.ErrInvalidSimilarity) {
			t.Errorf("Match(%v) error = %v, want ErrInvalidSimilarity", s, err)
		}
		if _, err := Default().MatchAll(screen, screen, s); !errors.Is(err, core.ErrInvalidSimilarity) {
			t.Errorf("MatchAll(%v) error = %v, want ErrInvalidSimilarity", s, err)
		}
	}
}

func TestNCC_NilImage(t *testing.T) {
	if _, err := Default().Match(nil, noise(25, 5, 5), 0.5); err == nil {
		t.Error("expected error for nil screen")
	}
}

func TestNewNCC_InvalidOptions(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{"zero scale", Options{Scales: []float64{1, 0}}},
		{"negative scale", Options{Scales: []float64{-1}}},
		{"negative pyramid", Options{Pyramid: -2}},
		{"margin above one", Options{CoarseMargin: 1.5}},
		{"negative workers", Options{Workers: -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewNCC(tt.opts)
			if !errors.Is(err, core.ErrInvalidConfig) {
				t.Errorf("NewNCC() error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestNCC_PyramidFor(t *testing.T) {
	tests := []struct {
		pyramid int
		w, h    int
		want    int
	}{
		{0, 20, 20, 1},
		{0, 48, 60, 1},
		{0, 200, 96, 1},
		{1, 200, 200, 1},
		{2, 24, 30, 2},
		{4, 40, 40, 4},
		{8, 20, 20, 4},
	}

	for _, tt := range tests {
		n := &NCC{opts: Options{Pyramid: tt.pyramid}}
		p := &plane{w: tt.w, h: tt.h}
		if got := n.pyramidFor(p); got != tt.want {
			t.Errorf("pyramidFor(pyramid=%d, %dx%d) = %d, want %d", tt.pyramid, tt.w, tt.h, got, tt.want)
		}
	}
}

func TestNCC_Match_StructuredReferences(t *testing.T) {
	tests := []struct {
		name       string
		ref        image.Image
		planted    image.Image
		similarity float64
	}{
		// Block averaging cancels the checkerboard and leaves only the
		// inverted split, while the full-resolution score is 0.835.
		{"checkerboard with inverted split", checkerSplit(64, 64, false), checkerSplit(64, 64, true), 0.8},
		{"text-like bars", bars(40, 24), bars(40, 24), 0.95},
		{"gradient", gradient(32, 32), gradient(32, 32), 0.9},
	}

	exhaustive, _ := NewNCC(Options{Pyramid: 1})
	coarse, _ := NewNCC(Options{Pyramid: 4})

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			screen := noise(40, 200, 160)
			plant(screen, tt.planted, 50, 70)

			want, err := exhaustive.Match(screen, tt.ref, tt.similarity)
			if err != nil || want == nil {
				t.Fatalf("exhaustive Match = %v, %v, want a match", want, err)
			}
			if want.Bounds.X != 50 || want.Bounds.Y != 70 {
				t.Errorf("exhaustive Bounds = %+v, want origin (50, 70)", want.Bounds)
			}

			got, err := Default().Match(screen, tt.ref, tt.similarity)
			if err != nil {
				t.Fatalf("Default Match failed: %v", err)
			}
			if got == nil || got.Bounds != want.Bounds || quantize(got.Score) != quantize(want.Score) {
				t.Errorf("Default Match = %+v, want %+v", got, want)
			}

			c, err := coarse.Match(screen, tt.ref, tt.similarity)
			if err != nil {
				t.Fatalf("coarse Match failed: %v", err)
			}
			if c == nil || c.Score+scoreTolerance < tt.similarity {
				t.Errorf("coarse Match = %+v, want a match scoring >= %v", c, tt.similarity)
			}
		})
	}
}
