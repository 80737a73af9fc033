package executor

import (
	"image"
	"image/png"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/image/draw"

	"github.com/devicelab-dev/imagefinder/pkg/driver/mock"
	"github.com/devicelab-dev/imagefinder/pkg/flow"
	"github.com/devicelab-dev/imagefinder/pkg/imagefinder"
)

func noise(seed int64, w, h int) *image.Gray {
	r := rand.New(rand.NewSource(seed))
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = uint8(r.Intn(256))
	}
	return img
}

// workspace holds a flow directory with images/button.png and a screen that
// shows the button at (37, 81).
type workspace struct {
	dir    string
	screen *image.Gray
	blank  *image.Gray
}

func newWorkspace(t *testing.T) *workspace {
	t.Helper()
	dir := t.TempDir()
	blank := noise(1, 200, 150)
	ref := noise(2, 20, 16)

	if err := os.MkdirAll(filepath.Join(dir, "images"), 0o755); err != nil {
		t.Fatal(err)
	}
	f, err := os.Create(filepath.Join(dir, "images", "button.png"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, ref); err != nil {
		t.Fatal(err)
	}

	screen := image.NewGray(blank.Rect)
	copy(screen.Pix, blank.Pix)
	draw.Draw(screen, image.Rect(37, 81, 57, 97), ref, image.Point{}, draw.Src)

	return &workspace{dir: dir, screen: screen, blank: blank}
}

// parse parses a flow as if it lived in the workspace directory.
func (ws *workspace) parse(t *testing.T, content string) *flow.Flow {
	t.Helper()
	f, err := flow.Parse([]byte(content), filepath.Join(ws.dir, "flow.yaml"))
	if err != nil {
		t.Fatalf("flow.Parse() error = %v", err)
	}
	return f
}

func newFinder(t *testing.T, dev *mock.Device) *imagefinder.Finder {
	t.Helper()
	f, err := imagefinder.New(dev, nil, imagefinder.Config{
		PollInterval:   10 * time.Millisecond,
		SettleInterval: 5 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("imagefinder.New() error = %v", err)
	}
	return f
}
