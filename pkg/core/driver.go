package core

import (
	"time"
)

// ScreenshotSource captures the current device screen as encoded image bytes
// (PNG for every bundled driver).
type ScreenshotSource interface {
	Screenshot() ([]byte, error)
}

// GestureSink sends touch gestures to the device.
// Coordinates are in the sink's own coordinate space (see ScreenSizer).
type GestureSink interface {
	Tap(x, y int) error
	LongPress(x, y int, duration time.Duration) error
}

// Device is everything the image finder needs from a device driver.
// Implementations: Appium, ADB, mock.
type Device interface {
	ScreenshotSource
	GestureSink
}

// ScreenSizer is implemented by drivers whose gesture coordinate space may
// differ from screenshot pixels (iOS reports points, screenshots are pixels).
// A zero size means unknown and disables scaling.
type ScreenSizer interface {
	ScreenSize() (width, height int)
}

// Point is a screen coordinate. NotFound marks a failed lookup.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// NotFound is the coordinate returned when no match qualifies.
var NotFound = Point{X: -1, Y: -1}

// Found returns true if the point is a valid coordinate.
func (p Point) Found() bool {
	return p.X >= 0 && p.Y >= 0
}

// Bounds represents a match region position and size
type Bounds struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Center returns the center point of the bounds
func (b Bounds) Center() (int, int) {
	return b.X + b.Width/2, b.Y + b.Height/2
}

// CenterPoint returns Center as a Point.
func (b Bounds) CenterPoint() Point {
	x, y := b.Center()
	return Point{X: x, Y: y}
}

// Contains checks if a point is within the bounds
func (b Bounds) Contains(x, y int) bool {
	return x >= b.X && x < b.X+b.Width && y >= b.Y && y < b.Y+b.Height
}

// Overlaps reports whether the two regions share at least one pixel.
func (b Bounds) Overlaps(o Bounds) bool {
	return b.X < o.X+o.Width && o.X < b.X+b.Width &&
		b.Y < o.Y+o.Height && o.Y < b.Y+b.Height
}

// PlatformInfo contains device and platform details
type PlatformInfo struct {
	Platform     string `json:"platform"`               // ios, android
	DeviceName   string `json:"deviceName,omitempty"`   // e.g., "Pixel 8"
	DeviceID     string `json:"deviceId,omitempty"`     // Unique device identifier
	ScreenWidth  int    `json:"screenWidth,omitempty"`  // Gesture space width
	ScreenHeight int    `json:"screenHeight,omitempty"` // Gesture space height
}

// PlatformReporter is implemented by devices that can describe themselves.
type PlatformReporter interface {
	GetPlatformInfo() *PlatformInfo
}
