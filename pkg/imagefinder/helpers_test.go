package imagefinder

import (
	"image"
	"image/png"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/image/draw"

	"github.com/devicelab-dev/imagefinder/pkg/driver/mock"
)

func noise(seed int64, w, h int) *image.Gray {
	r := rand.New(rand.NewSource(seed))
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = uint8(r.Intn(256))
	}
	return img
}

// plant returns a copy of screen with ref drawn at (x, y).
func plant(screen *image.Gray, ref image.Image, x, y int) *image.Gray {
	out := image.NewGray(screen.Rect)
	copy(out.Pix, screen.Pix)
	b := ref.Bounds()
	draw.Draw(out, image.Rect(x, y, x+b.Dx(), y+b.Dy()), ref, b.Min, draw.Src)
	return out
}

func writePNG(t *testing.T, dir, name string, img image.Image) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encode %s: %v", path, err)
	}
	return path
}

// fixture is a screen with one planted reference written to a temp dir.
type fixture struct {
	dir    string
	ref    string // file name relative to dir
	refImg *image.Gray
	screen *image.Gray
	blank  *image.Gray // same screen without the reference
}

const (
	plantX = 37
	plantY = 81
)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	blank := noise(1, 200, 150)
	ref := noise(2, 20, 16)
	writePNG(t, dir, "button.png", ref)
	return &fixture{
		dir:    dir,
		ref:    "button.png",
		refImg: ref,
		screen: plant(blank, ref, plantX, plantY),
		blank:  blank,
	}
}

func (fx *fixture) finder(t *testing.T, dev *mock.Device, cfg Config) *Finder {
	t.Helper()
	cfg.ImageDir = fx.dir
	f, err := New(dev, nil, cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return f
}
