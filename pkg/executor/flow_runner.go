package executor

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/devicelab-dev/imagefinder/pkg/core"
	"github.com/devicelab-dev/imagefinder/pkg/flow"
	"github.com/devicelab-dev/imagefinder/pkg/imagefinder"
	"github.com/devicelab-dev/imagefinder/pkg/logger"
)

// flowRunner executes a single flow.
type flowRunner struct {
	ctx    context.Context
	flow   *flow.Flow
	finder *imagefinder.Finder
	config RunnerConfig
}

// stepOutcome is what a step handler reports back.
type stepOutcome struct {
	point      *core.Point
	message    string
	screenshot string
	// warn marks a non-fatal problem on an otherwise successful step.
	warn bool
}

func (fr *flowRunner) run() core.FlowResult {
	result := core.FlowResult{
		Name:      fr.flow.DisplayName(),
		FilePath:  fr.flow.SourcePath,
		Tags:      fr.flow.Config.Tags,
		StartTime: time.Now(),
	}
	logger.Info("flow %s: %d step(s)", result.Name, len(fr.flow.Steps))

	failed := false
	for i, step := range fr.flow.Steps {
		if failed {
			result.Steps = append(result.Steps, skippedStep(i, step))
			continue
		}
		if fr.ctx.Err() != nil {
			result.Steps = append(result.Steps, skippedStep(i, step))
			if result.Error == "" {
				result.Error = "execution cancelled"
			}
			continue
		}

		sr := fr.executeStep(i, step)
		result.Steps = append(result.Steps, sr)

		if fr.config.OnStepComplete != nil {
			fr.config.OnStepComplete(i, sr.Label, sr.Status, sr.Duration, sr.Error)
		}

		if sr.Status == core.StatusFailed || sr.Status == core.StatusErrored {
			failed = true
			result.Error = fmt.Sprintf("step %d (%s): %s", i+1, sr.Label, sr.Error)
		}
	}

	result.Duration = time.Since(result.StartTime)
	result.ComputeSummary()
	result.Status = result.AggregateStatus()
	if result.Status.IsSuccess() && result.Error != "" {
		// Cancelled before every step ran.
		result.Status = core.StatusSkipped
	}
	logger.Info("flow %s: %s", result.Name, result.Status)
	return result
}

func (fr *flowRunner) executeStep(idx int, step flow.Step) core.StepResult {
	sr := core.StepResult{
		Index:     idx,
		Command:   string(step.Type()),
		Label:     stepLabel(step),
		StartTime: time.Now(),
	}
	if img, ok := step.(flow.ImageStep); ok {
		sr.Image = img.ImagePath()
	}
	logger.Debug("step %d: %s", idx+1, sr.Label)

	out, err := fr.dispatch(step)
	sr.Duration = time.Since(sr.StartTime)
	sr.Point = out.point
	sr.Message = out.message
	sr.Screenshot = out.screenshot

	switch {
	case err == nil && out.warn:
		sr.Status = core.StatusWarned
	case err == nil:
		sr.Status = core.StatusPassed
	default:
		sr.Error = err.Error()
		sr.Category = core.CategoryOf(err)
		sr.Status = statusFor(sr.Category)
		if step.IsOptional() {
			logger.Warn("optional step %d failed: %v", idx+1, err)
			sr.Status = core.StatusWarned
		} else {
			logger.Error("step %d failed: %v", idx+1, err)
		}
	}
	return sr
}

// statusFor maps assertion and timeout failures to failed and everything
// else (device, images, config) to errored.
func statusFor(category core.ErrorCategory) core.StepStatus {
	switch category {
	case core.ErrCategoryAssertion, core.ErrCategoryTimeout:
		return core.StatusFailed
	default:
		return core.StatusErrored
	}
}

func (fr *flowRunner) dispatch(step flow.Step) (stepOutcome, error) {
	switch s := step.(type) {
	case *flow.TapOnImageStep:
		return fr.tapOnImage(s)
	case *flow.LongPressOnImageStep:
		return fr.longPressOnImage(s)
	case *flow.AssertImageVisibleStep:
		ref, sim := fr.target(s)
		p, err := fr.finder.WaitUntilExistsWithSimilarity(fr.ctx, ref, fr.timeout(s.TimeoutMs), sim)
		if err != nil {
			return stepOutcome{}, err
		}
		return stepOutcome{point: &p, message: fmt.Sprintf("visible at (%d, %d)", p.X, p.Y)}, nil
	case *flow.AssertImageNotVisibleStep:
		ref, sim := fr.target(s)
		return stepOutcome{}, fr.finder.WaitUntilGoneWithSimilarity(fr.ctx, ref, fr.timeout(s.TimeoutMs), sim)
	case *flow.WaitForAnimationToEndStep:
		return fr.waitForAnimationToEnd(s)
	case *flow.TakeScreenshotStep:
		return fr.takeScreenshot(s)
	case *flow.WaitStep:
		return stepOutcome{}, sleep(fr.ctx, time.Duration(s.DurationMs)*time.Millisecond)
	default:
		return stepOutcome{}, core.ErrInvalidConfig.WithMessage(fmt.Sprintf("unsupported step type: %s", step.Type()))
	}
}

func (fr *flowRunner) tapOnImage(s *flow.TapOnImageStep) (stepOutcome, error) {
	ref, sim := fr.target(s)
	if s.ShouldWait() {
		if _, err := fr.finder.WaitUntilExistsWithSimilarity(fr.ctx, ref, fr.timeout(s.TimeoutMs), sim); err != nil {
			return stepOutcome{}, err
		}
	}
	p, err := fr.finder.TapWithSimilarity(ref, sim)
	if err != nil {
		return stepOutcome{}, err
	}
	return stepOutcome{point: &p, message: fmt.Sprintf("tapped (%d, %d)", p.X, p.Y)}, nil
}

func (fr *flowRunner) longPressOnImage(s *flow.LongPressOnImageStep) (stepOutcome, error) {
	ref, sim := fr.target(s)
	// Only waits when the step asks for it.
	if s.TimeoutMs > 0 {
		if _, err := fr.finder.WaitUntilExistsWithSimilarity(fr.ctx, ref, fr.timeout(s.TimeoutMs), sim); err != nil {
			return stepOutcome{}, err
		}
	}
	duration := fr.finder.Config().LongPressDuration
	if s.DurationMs > 0 {
		duration = time.Duration(s.DurationMs) * time.Millisecond
	}
	p, err := fr.finder.LongPressWithSimilarity(ref, duration, sim)
	if err != nil {
		return stepOutcome{}, err
	}
	return stepOutcome{point: &p, message: fmt.Sprintf("long-pressed (%d, %d) for %v", p.X, p.Y, duration)}, nil
}

func (fr *flowRunner) waitForAnimationToEnd(s *flow.WaitForAnimationToEndStep) (stepOutcome, error) {
	err := fr.finder.WaitForScreenToSettle(fr.ctx, fr.timeout(s.TimeoutMs))
	if errors.Is(err, core.ErrScreenNotSettled) {
		// A screen that keeps moving does not fail the flow.
		return stepOutcome{message: err.Error(), warn: true}, nil
	}
	return stepOutcome{}, err
}

func (fr *flowRunner) takeScreenshot(s *flow.TakeScreenshotStep) (stepOutcome, error) {
	screen, err := fr.finder.CaptureScreenshot()
	if err != nil {
		return stepOutcome{}, err
	}

	path := s.Path
	if filepath.Ext(path) == "" {
		path += ".png"
	}
	if fr.config.OutputDir != "" && !filepath.IsAbs(path) {
		path = filepath.Join(fr.config.OutputDir, path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return stepOutcome{}, fmt.Errorf("create screenshot dir: %w", err)
	}

	file, err := os.Create(path) //#nosec G304 -- path comes from the flow file
	if err != nil {
		return stepOutcome{}, fmt.Errorf("create screenshot: %w", err)
	}
	if err := encodePNG(file, screen); err != nil {
		return stepOutcome{}, err
	}
	return stepOutcome{screenshot: path, message: "saved " + path}, nil
}

// encodePNG writes img to w and closes it.
func encodePNG(w io.WriteCloser, img image.Image) error {
	if err := png.Encode(w, img); err != nil {
		w.Close()
		return fmt.Errorf("encode screenshot: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close screenshot: %w", err)
	}
	return nil
}

// target resolves a step's reference path and similarity. Similarity comes
// from the step, then the flow config, then the finder default.
func (fr *flowRunner) target(s flow.ImageStep) (string, float64) {
	similarity := fr.finder.Config().Similarity
	if fr.flow.Config.Similarity != nil {
		similarity = *fr.flow.Config.Similarity
	}
	if s.SimilarityOverride() != nil {
		similarity = *s.SimilarityOverride()
	}

	return fr.flow.ResolveImage(s.ImagePath()), similarity
}

// timeout picks the step timeout, then the flow timeout, then the runner
// default.
func (fr *flowRunner) timeout(stepMs int) time.Duration {
	if stepMs > 0 {
		return time.Duration(stepMs) * time.Millisecond
	}
	if fr.flow.Config.Timeout > 0 {
		return time.Duration(fr.flow.Config.Timeout) * time.Millisecond
	}
	return fr.config.DefaultTimeout
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func stepLabel(step flow.Step) string {
	if label := step.Label(); label != "" {
		return label
	}
	return step.Describe()
}

func skippedStep(idx int, step flow.Step) core.StepResult {
	sr := core.StepResult{
		Index:   idx,
		Command: string(step.Type()),
		Label:   stepLabel(step),
		Status:  core.StatusSkipped,
	}
	if img, ok := step.(flow.ImageStep); ok {
		sr.Image = img.ImagePath()
	}
	return sr
}
