package flow

import "fmt"

// StepType represents the type of step.
type StepType string

// Step type constants.
const (
	// Image interaction
	StepTapOnImage       StepType = "tapOnImage"
	StepLongPressOnImage StepType = "longPressOnImage"

	// Assertions
	StepAssertImageVisible    StepType = "assertImageVisible"
	StepAssertImageNotVisible StepType = "assertImageNotVisible"

	// Other
	StepWaitForAnimationToEnd StepType = "waitForAnimationToEnd"
	StepTakeScreenshot        StepType = "takeScreenshot"
	StepWait                  StepType = "wait"
)

// Step is the interface for all flow steps.
type Step interface {
	Type() StepType
	IsOptional() bool
	Label() string
	Describe() string
}

// ImageStep is a step that looks up a reference image.
type ImageStep interface {
	Step
	ImagePath() string
	// SimilarityOverride returns the step's threshold, or nil for the
	// flow default.
	SimilarityOverride() *float64
}

// BaseStep contains common fields for all steps.
type BaseStep struct {
	StepType  StepType `yaml:"-"`
	Optional  bool     `yaml:"optional"`
	StepLabel string   `yaml:"label"`
	TimeoutMs int      `yaml:"timeout"`
}

// Type returns the step type.
func (b *BaseStep) Type() StepType { return b.StepType }

// IsOptional returns whether the step is optional.
func (b *BaseStep) IsOptional() bool { return b.Optional }

// Label returns the step label.
func (b *BaseStep) Label() string { return b.StepLabel }

// Describe returns a human-readable description.
func (b *BaseStep) Describe() string { return string(b.StepType) }

// ImageTarget holds the reference image of an image step.
type ImageTarget struct {
	Image      string   `yaml:"image"`
	Similarity *float64 `yaml:"similarity"`
}

// ImagePath returns the reference image path as written in the flow.
func (t *ImageTarget) ImagePath() string { return t.Image }

// SimilarityOverride returns the per-step threshold, if any.
func (t *ImageTarget) SimilarityOverride() *float64 { return t.Similarity }

// TapOnImageStep taps the center of a reference image.
type TapOnImageStep struct {
	BaseStep    `yaml:",inline"`
	ImageTarget `yaml:",inline"`
	// WaitUntilVisible polls for the image up to the step timeout before
	// tapping. Defaults to true.
	WaitUntilVisible *bool `yaml:"waitUntilVisible"`
}

// Describe returns a human-readable description.
func (s *TapOnImageStep) Describe() string {
	return fmt.Sprintf("tapOnImage %q", s.Image)
}

// ShouldWait reports whether the step waits for the image first.
func (s *TapOnImageStep) ShouldWait() bool {
	return s.WaitUntilVisible == nil || *s.WaitUntilVisible
}

// LongPressOnImageStep long-presses the center of a reference image.
type LongPressOnImageStep struct {
	BaseStep    `yaml:",inline"`
	ImageTarget `yaml:",inline"`
	DurationMs  int `yaml:"duration"` // 0 = finder default
}

// Describe returns a human-readable description.
func (s *LongPressOnImageStep) Describe() string {
	if s.DurationMs > 0 {
		return fmt.Sprintf("longPressOnImage %q for %dms", s.Image, s.DurationMs)
	}
	return fmt.Sprintf("longPressOnImage %q", s.Image)
}

// AssertImageVisibleStep waits until a reference image is on screen.
type AssertImageVisibleStep struct {
	BaseStep    `yaml:",inline"`
	ImageTarget `yaml:",inline"`
}

// Describe returns a human-readable description.
func (s *AssertImageVisibleStep) Describe() string {
	return fmt.Sprintf("assertImageVisible %q", s.Image)
}

// AssertImageNotVisibleStep waits until a reference image is gone.
type AssertImageNotVisibleStep struct {
	BaseStep    `yaml:",inline"`
	ImageTarget `yaml:",inline"`
}

// Describe returns a human-readable description.
func (s *AssertImageNotVisibleStep) Describe() string {
	return fmt.Sprintf("assertImageNotVisible %q", s.Image)
}

// WaitForAnimationToEndStep waits until consecutive screenshots match.
type WaitForAnimationToEndStep struct {
	BaseStep `yaml:",inline"`
}

// TakeScreenshotStep saves a screenshot to the output directory.
type TakeScreenshotStep struct {
	BaseStep `yaml:",inline"`
	Path     string `yaml:"path"`
}

// Describe returns a human-readable description.
func (s *TakeScreenshotStep) Describe() string {
	return fmt.Sprintf("takeScreenshot %q", s.Path)
}

// WaitStep sleeps for a fixed time.
type WaitStep struct {
	BaseStep   `yaml:",inline"`
	DurationMs int `yaml:"duration"`
}

// Describe returns a human-readable description.
func (s *WaitStep) Describe() string {
	return fmt.Sprintf("wait %dms", s.DurationMs)
}

var (
	_ ImageStep = (*TapOnImageStep)(nil)
	_ ImageStep = (*LongPressOnImageStep)(nil)
	_ ImageStep = (*AssertImageVisibleStep)(nil)
	_ ImageStep = (*AssertImageNotVisibleStep)(nil)
)
