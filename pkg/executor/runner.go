// Package executor runs parsed image flows against an ImageFinder.
package executor

import (
	"context"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/devicelab-dev/imagefinder/pkg/core"
	"github.com/devicelab-dev/imagefinder/pkg/flow"
	"github.com/devicelab-dev/imagefinder/pkg/imagefinder"
	"github.com/devicelab-dev/imagefinder/pkg/logger"
)

// DefaultStepTimeout bounds waiting steps when neither the step, the flow
// nor the runner sets a timeout.
const DefaultStepTimeout = 10 * time.Second

// RunnerConfig configures the flow runner.
type RunnerConfig struct {
	OutputDir      string        // Screenshots and report.json; "" writes nothing
	DefaultTimeout time.Duration // Wait timeout for steps without one (0 = DefaultStepTimeout)

	// Live progress callbacks
	OnFlowStart    func(flowIdx, totalFlows int, name, file string)
	OnStepComplete func(idx int, desc string, status core.StepStatus, duration time.Duration, err string)
	OnFlowEnd      func(name string, status core.StepStatus, duration time.Duration)
}

// Runner orchestrates flow execution.
type Runner struct {
	config RunnerConfig
	finder *imagefinder.Finder
}

// New creates a new Runner.
func New(finder *imagefinder.Finder, cfg RunnerConfig) *Runner {
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = DefaultStepTimeout
	}
	return &Runner{
		config: cfg,
		finder: finder,
	}
}

// Run executes flows one after another and writes report.json when an
// output directory is configured. The returned error only reports a failure
// to write the report; flow failures are in the result.
func (r *Runner) Run(ctx context.Context, flows []*flow.Flow) (*core.SuiteResult, error) {
	suite := &core.SuiteResult{
		RunID:     uuid.NewString(),
		StartTime: time.Now(),
		Flows:     make([]core.FlowResult, 0, len(flows)),
		Device:    r.finder.Platform(),
	}
	logger.Info("run %s: %d flow(s)", suite.RunID, len(flows))
	if d := suite.Device; d != nil {
		logger.Info("device: %s %s (%dx%d)", d.Platform, d.DeviceID, d.ScreenWidth, d.ScreenHeight)
	}

	for i, f := range flows {
		if ctx.Err() != nil {
			// Context cancelled, skip remaining
			suite.Flows = append(suite.Flows, skippedFlow(f, "run cancelled"))
			continue
		}
		if r.config.OnFlowStart != nil {
			r.config.OnFlowStart(i, len(flows), f.DisplayName(), filepath.Base(f.SourcePath))
		}

		fr := &flowRunner{
			ctx:    ctx,
			flow:   f,
			finder: r.finder,
			config: r.config,
		}
		result := fr.run()
		suite.Flows = append(suite.Flows, result)

		if r.config.OnFlowEnd != nil {
			r.config.OnFlowEnd(result.Name, result.Status, result.Duration)
		}
	}

	suite.Duration = time.Since(suite.StartTime)
	suite.ComputeSummary()
	logger.Info("run %s finished: %d passed, %d failed", suite.RunID, suite.PassedFlows, suite.FailedFlows)

	if r.config.OutputDir != "" {
		if err := writeReport(r.config.OutputDir, suite); err != nil {
			return suite, err
		}
	}
	return suite, nil
}

func skippedFlow(f *flow.Flow, reason string) core.FlowResult {
	result := core.FlowResult{
		Name:     f.DisplayName(),
		FilePath: f.SourcePath,
		Tags:     f.Config.Tags,
		Status:   core.StatusSkipped,
		Error:    reason,
	}
	for i, step := range f.Steps {
		result.Steps = append(result.Steps, skippedStep(i, step))
	}
	result.ComputeSummary()
	return result
}
