//go:build gocv

package matcher

import "testing"

func TestOpenCV_MatchesLikeNCC(t *testing.T) {
	screen := noise(50, 200, 160)
	ref := noise(51, 24, 20)
	plant(screen, ref, 31, 77)
	plant(screen, ref, 150, 12)

	o, err := NewOpenCV(Options{})
	if err != nil {
		t.Fatalf("NewOpenCV() error = %v", err)
	}

	m, err := o.Match(screen, ref, 0.9)
	if err != nil || m == nil {
		t.Fatalf("Match = %v, %v, want a match", m, err)
	}
	if m.Score < 0.999 {
		t.Errorf("Score = %v, want ~1", m.Score)
	}

	all, err := o.MatchAll(screen, ref, 0.9)
	if err != nil {
		t.Fatalf("MatchAll failed: %v", err)
	}
	want, _ := Default().MatchAll(screen, ref, 0.9)
	if len(all) != len(want) || len(all) != 2 {
		t.Fatalf("MatchAll returned %d matches, NCC %d, want 2", len(all), len(want))
	}
	for i := range want {
		if all[i].Bounds != want[i].Bounds {
			t.Errorf("match %d = %+v, NCC %+v", i, all[i].Bounds, want[i].Bounds)
		}
	}
}

func TestOpenCV_NotPresent(t *testing.T) {
	o, _ := NewOpenCV(Options{})
	m, err := o.Match(noise(52, 120, 90), noise(53, 16, 16), 0.8)
	if err != nil || m != nil {
		t.Errorf("Match = %v, %v, want nil, nil", m, err)
	}
}
