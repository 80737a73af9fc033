// Package imagefinder locates on-screen elements by matching a reference
// image against a live device screenshot, then taps or long-presses them.
//
// Reference images are file paths; relative paths resolve against
// Config.ImageDir. Similarity thresholds are per call and never shared
// between calls, so a Finder is safe for concurrent use as long as its
// device is.
package imagefinder

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"time"

	"github.com/devicelab-dev/imagefinder/pkg/core"
	"github.com/devicelab-dev/imagefinder/pkg/logger"
	"github.com/devicelab-dev/imagefinder/pkg/matcher"
)

// Defaults applied to zero Config fields.
const (
	DefaultSimilarity        = 0.8
	DefaultPollInterval      = 500 * time.Millisecond
	DefaultLongPressDuration = time.Second
	DefaultSettleInterval    = 250 * time.Millisecond
)

// Config configures a Finder.
type Config struct {
	// Similarity is the threshold used by calls that take none.
	// Zero selects DefaultSimilarity; use the WithSimilarity variants to
	// match at zero.
	Similarity float64

	// PollInterval is the wait between checks in the Wait* operations.
	PollInterval time.Duration

	// LongPressDuration is used by LongPress.
	LongPressDuration time.Duration

	// ImageDir is prepended to relative reference paths.
	ImageDir string

	// SettleThreshold is the perceptual hash distance at or below which two
	// consecutive screenshots count as the same screen.
	SettleThreshold int

	// SettleInterval is the wait between screenshots in WaitForScreenToSettle.
	SettleInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.Similarity == 0 {
		c.Similarity = DefaultSimilarity
	}
	if c.PollInterval == 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.LongPressDuration == 0 {
		c.LongPressDuration = DefaultLongPressDuration
	}
	if c.SettleInterval == 0 {
		c.SettleInterval = DefaultSettleInterval
	}
	return c
}

func (c Config) validate() error {
	if err := core.ValidateSimilarity(c.Similarity); err != nil {
		return err
	}
	if c.PollInterval < 0 || c.LongPressDuration < 0 || c.SettleInterval < 0 {
		return core.ErrInvalidConfig.WithMessage("durations must not be negative")
	}
	if c.SettleThreshold < 0 {
		return core.ErrInvalidConfig.WithMessage("settle threshold must not be negative")
	}
	return nil
}

// Finder finds reference images on a device screen.
type Finder struct {
	dev     core.Device
	matcher matcher.Matcher
	cfg     Config
}

// New creates a Finder. A nil matcher selects matcher.Default().
func New(dev core.Device, m matcher.Matcher, cfg Config) (*Finder, error) {
	if dev == nil {
		return nil, core.ErrInvalidConfig.WithMessage("device is required")
	}
	if m == nil {
		m = matcher.Default()
	}
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Finder{dev: dev, matcher: m, cfg: cfg}, nil
}

// Config returns the effective configuration.
func (f *Finder) Config() Config {
	return f.cfg
}

// Platform describes the device, or returns nil when it cannot.
func (f *Finder) Platform() *core.PlatformInfo {
	if r, ok := f.dev.(core.PlatformReporter); ok {
		return r.GetPlatformInfo()
	}
	return nil
}

// ResolvePath returns the file path a reference resolves to.
func (f *Finder) ResolvePath(ref string) string {
	if f.cfg.ImageDir == "" || filepath.IsAbs(ref) {
		return ref
	}
	return filepath.Join(f.cfg.ImageDir, ref)
}

// CaptureScreenshot takes and decodes a screenshot.
func (f *Finder) CaptureScreenshot() (image.Image, error) {
	data, err := f.dev.Screenshot()
	if err != nil {
		return nil, core.ErrScreenshotUnavailable.WithCause(err)
	}
	img, err := Decode(data)
	if err != nil {
		return nil, core.ErrScreenshotUnavailable.WithCause(err)
	}
	return img, nil
}

// LoadReference reads and decodes a reference image.
func (f *Finder) LoadReference(ref string) (image.Image, error) {
	path := f.ResolvePath(ref)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, core.ErrReferenceUnreadable.WithCause(err).WithDetails(map[string]interface{}{"path": path})
	}
	img, err := Decode(data)
	if err != nil {
		return nil, core.ErrReferenceUnreadable.WithCause(err).WithDetails(map[string]interface{}{"path": path})
	}
	return img, nil
}

// Locate returns the best match of ref on screen, or nil if none reaches
// similarity.
func (f *Finder) Locate(screen image.Image, ref string, similarity float64) (*matcher.Match, error) {
	if err := core.ValidateSimilarity(similarity); err != nil {
		return nil, err
	}
	refImg, err := f.LoadReference(ref)
	if err != nil {
		return nil, err
	}
	m, err := f.matcher.Match(screen, refImg, similarity)
	if err != nil {
		return nil, err
	}
	if m == nil {
		logger.Debug("image not found: %s (similarity %.2f)", ref, similarity)
		return nil, nil
	}
	logger.Debug("image found: %s (similarity %.2f) score=%.4f at %+v scale=%.2f",
		ref, similarity, m.Score, m.Bounds, m.Scale)
	return m, nil
}

// FindFirst returns the center of the best match at the default similarity,
// or core.NotFound.
func (f *Finder) FindFirst(screen image.Image, ref string) (core.Point, error) {
	return f.FindFirstWithSimilarity(screen, ref, f.cfg.Similarity)
}

// FindFirstWithSimilarity is FindFirst with an explicit threshold.
func (f *Finder) FindFirstWithSimilarity(screen image.Image, ref string, similarity float64) (core.Point, error) {
	m, err := f.Locate(screen, ref, similarity)
	if err != nil {
		return core.NotFound, err
	}
	if m == nil {
		return core.NotFound, nil
	}
	return m.Center(), nil
}

// FindAll returns the center of every match on a fresh screenshot, best
// first.
func (f *Finder) FindAll(ref string) ([]core.Point, error) {
	return f.FindAllWithSimilarity(ref, f.cfg.Similarity)
}

// FindAllWithSimilarity is FindAll with an explicit threshold.
func (f *Finder) FindAllWithSimilarity(ref string, similarity float64) ([]core.Point, error) {
	matches, err := f.LocateAll(ref, similarity)
	if err != nil {
		return nil, err
	}
	points := make([]core.Point, len(matches))
	for i, m := range matches {
		points[i] = m.Center()
	}
	return points, nil
}

// LocateAll returns every match on a fresh screenshot.
func (f *Finder) LocateAll(ref string, similarity float64) ([]matcher.Match, error) {
	if err := core.ValidateSimilarity(similarity); err != nil {
		return nil, err
	}
	refImg, err := f.LoadReference(ref)
	if err != nil {
		return nil, err
	}
	screen, err := f.CaptureScreenshot()
	if err != nil {
		return nil, err
	}
	matches, err := f.matcher.MatchAll(screen, refImg, similarity)
	if err != nil {
		return nil, err
	}
	logger.Debug("found %d matches of %s (similarity %.2f)", len(matches), ref, similarity)
	return matches, nil
}

// Exists reports whether ref is on a fresh screenshot at the default
// similarity.
func (f *Finder) Exists(ref string) (bool, error) {
	p, err := f.lookup(ref, f.cfg.Similarity)
	if err != nil {
		return false, err
	}
	return p.Found(), nil
}

// Tap taps the center of ref on a fresh screenshot.
func (f *Finder) Tap(ref string) (core.Point, error) {
	return f.TapWithSimilarity(ref, f.cfg.Similarity)
}

// TapWithSimilarity is Tap with an explicit threshold. It returns the
// screenshot coordinate that was tapped.
func (f *Finder) TapWithSimilarity(ref string, similarity float64) (core.Point, error) {
	screen, p, err := f.lookupOnScreen(ref, similarity)
	if err != nil {
		return core.NotFound, err
	}
	if !p.Found() {
		return core.NotFound, notFound(ref, similarity)
	}
	x, y := f.gesturePoint(p, screen.Bounds())
	logger.Info("tap %s at (%d, %d)", ref, x, y)
	if err := f.dev.Tap(x, y); err != nil {
		return p, fmt.Errorf("tap %s: %w", ref, err)
	}
	return p, nil
}

// LongPress long-presses ref for the configured duration.
func (f *Finder) LongPress(ref string) (core.Point, error) {
	return f.LongPressFor(ref, f.cfg.LongPressDuration)
}

// LongPressFor long-presses ref for the given duration.
func (f *Finder) LongPressFor(ref string, duration time.Duration) (core.Point, error) {
	return f.LongPressWithSimilarity(ref, duration, f.cfg.Similarity)
}

// LongPressWithSimilarity is LongPressFor with an explicit threshold.
func (f *Finder) LongPressWithSimilarity(ref string, duration time.Duration, similarity float64) (core.Point, error) {
	if duration < 0 {
		return core.NotFound, core.ErrInvalidConfig.WithMessage("long press duration must not be negative")
	}
	screen, p, err := f.lookupOnScreen(ref, similarity)
	if err != nil {
		return core.NotFound, err
	}
	if !p.Found() {
		return core.NotFound, notFound(ref, similarity)
	}
	x, y := f.gesturePoint(p, screen.Bounds())
	logger.Info("long press %s at (%d, %d) for %v", ref, x, y, duration)
	if err := f.dev.LongPress(x, y, duration); err != nil {
		return p, fmt.Errorf("long press %s: %w", ref, err)
	}
	return p, nil
}

func (f *Finder) lookup(ref string, similarity float64) (core.Point, error) {
	_, p, err := f.lookupOnScreen(ref, similarity)
	return p, err
}

func (f *Finder) lookupOnScreen(ref string, similarity float64) (image.Image, core.Point, error) {
	// Validate before taking a screenshot.
	if err := core.ValidateSimilarity(similarity); err != nil {
		return nil, core.NotFound, err
	}
	screen, err := f.CaptureScreenshot()
	if err != nil {
		return nil, core.NotFound, err
	}
	p, err := f.FindFirstWithSimilarity(screen, ref, similarity)
	return screen, p, err
}

// gesturePoint maps a screenshot coordinate into the device's gesture
// coordinate space.
func (f *Finder) gesturePoint(p core.Point, screen image.Rectangle) (int, int) {
	sizer, ok := f.dev.(core.ScreenSizer)
	if !ok {
		return p.X, p.Y
	}
	w, h := sizer.ScreenSize()
	return scalePoint(p, screen.Dx(), screen.Dy(), w, h)
}

// scalePoint maps p from a fromW x fromH screenshot into a toW x toH gesture
// space. A size reported in the other orientation is rotated to match.
func scalePoint(p core.Point, fromW, fromH, toW, toH int) (int, int) {
	if (fromW > fromH && toW < toH) || (fromW < fromH && toW > toH) {
		toW, toH = toH, toW
	}
	if fromW <= 0 || fromH <= 0 || toW <= 0 || toH <= 0 || (fromW == toW && fromH == toH) {
		return p.X, p.Y
	}
	x := p.X * toW / fromW
	y := p.Y * toH / fromH
	return x, y
}

func notFound(ref string, similarity float64) error {
	return core.ErrElementNotFound.
		WithMessage(fmt.Sprintf("image not found: %s", ref)).
		WithDetails(map[string]interface{}{"image": ref, "similarity": similarity})
}
