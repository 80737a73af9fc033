// Package mock provides a synthetic device for testing without a real device.
package mock

import (
	"bytes"
	"errors"
	"image"
	"image/png"
	"sync"
	"time"

	"github.com/devicelab-dev/imagefinder/pkg/core"
)

// GestureKind identifies a recorded gesture.
type GestureKind string

const (
	GestureTap       GestureKind = "tap"
	GestureLongPress GestureKind = "longPress"
)

// Gesture is a touch gesture sent to the mock device.
type Gesture struct {
	Kind     GestureKind
	X, Y     int
	Duration time.Duration // zero for taps
}

// FrameFunc produces the screen for the n-th screenshot (0-indexed).
type FrameFunc func(n int) image.Image

// Config configures mock device behavior.
type Config struct {
	// Frames are served in order, one per screenshot; the last one repeats.
	Frames []image.Image
	// FrameFunc overrides Frames when set.
	FrameFunc FrameFunc
	// Raw is returned verbatim as screenshot bytes when non-nil.
	Raw []byte
	// ScreenshotErr fails every screenshot.
	ScreenshotErr error
	// GestureErr fails every gesture (gestures are still recorded).
	GestureErr error
	// Width and Height of the gesture coordinate space. Zero disables
	// ScreenSize reporting.
	Width, Height int
	// Platform info to report
	Platform string
	DeviceID string
}

// Device is a mock implementation of core.Device for testing.
type Device struct {
	cfg Config

	mu          sync.Mutex
	screenshots int
	gestures    []Gesture
}

var (
	_ core.Device           = (*Device)(nil)
	_ core.ScreenSizer      = (*Device)(nil)
	_ core.PlatformReporter = (*Device)(nil)
)

// New creates a new mock device.
func New(cfg Config) *Device {
	if cfg.Platform == "" {
		cfg.Platform = "mock"
	}
	if cfg.DeviceID == "" {
		cfg.DeviceID = "mock-device"
	}
	return &Device{cfg: cfg}
}

// WithFrames creates a mock device serving the given frames.
func WithFrames(frames ...image.Image) *Device {
	return New(Config{Frames: frames})
}

// Screenshot encodes the current frame as PNG.
func (d *Device) Screenshot() ([]byte, error) {
	d.mu.Lock()
	n := d.screenshots
	d.screenshots++
	d.mu.Unlock()

	if d.cfg.ScreenshotErr != nil {
		return nil, d.cfg.ScreenshotErr
	}
	if d.cfg.Raw != nil {
		return d.cfg.Raw, nil
	}

	frame := d.frame(n)
	if frame == nil {
		return nil, errors.New("mock device has no frames")
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, frame); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (d *Device) frame(n int) image.Image {
	if d.cfg.FrameFunc != nil {
		return d.cfg.FrameFunc(n)
	}
	if len(d.cfg.Frames) == 0 {
		return nil
	}
	if n >= len(d.cfg.Frames) {
		n = len(d.cfg.Frames) - 1
	}
	return d.cfg.Frames[n]
}

// Tap records a tap.
func (d *Device) Tap(x, y int) error {
	d.record(Gesture{Kind: GestureTap, X: x, Y: y})
	return d.cfg.GestureErr
}

// LongPress records a long press.
func (d *Device) LongPress(x, y int, duration time.Duration) error {
	d.record(Gesture{Kind: GestureLongPress, X: x, Y: y, Duration: duration})
	return d.cfg.GestureErr
}

func (d *Device) record(g Gesture) {
	d.mu.Lock()
	d.gestures = append(d.gestures, g)
	d.mu.Unlock()
}

// ScreenSize implements core.ScreenSizer.
func (d *Device) ScreenSize() (int, int) {
	return d.cfg.Width, d.cfg.Height
}

// Gestures returns a copy of the recorded gestures.
func (d *Device) Gestures() []Gesture {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Gesture, len(d.gestures))
	copy(out, d.gestures)
	return out
}

// ScreenshotCount returns the number of screenshots taken so far.
func (d *Device) ScreenshotCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.screenshots
}

// GetPlatformInfo returns mock platform info.
func (d *Device) GetPlatformInfo() *core.PlatformInfo {
	return &core.PlatformInfo{
		Platform:     d.cfg.Platform,
		DeviceID:     d.cfg.DeviceID,
		DeviceName:   "Mock Device",
		ScreenWidth:  d.cfg.Width,
		ScreenHeight: d.cfg.Height,
	}
}
