package core

import (
	"time"
)

// StepResult captures the outcome of executing a single flow step
type StepResult struct {
	// Identity
	Index   int    `json:"index"`           // 0-based position in flow
	Command string `json:"command"`         // tapOnImage, assertImageVisible, ...
	Label   string `json:"label,omitempty"` // Step label or description
	Image   string `json:"image,omitempty"` // Reference image path, if any

	// Status
	Status   StepStatus    `json:"status"`
	Category ErrorCategory `json:"errorCategory,omitempty"`

	// Timing
	StartTime time.Time     `json:"startTime"`
	Duration  time.Duration `json:"duration"`

	// Output
	Message string `json:"message,omitempty"` // Human-readable explanation
	Point   *Point `json:"point,omitempty"`   // Where the image was found / tapped
	Error   string `json:"error,omitempty"`   // Technical error message

	// Artifacts
	Screenshot string `json:"screenshot,omitempty"` // Saved screenshot path
}

// FlowResult captures the complete outcome of executing a flow
type FlowResult struct {
	// Identity
	Name     string   `json:"name"`
	FilePath string   `json:"filePath"`
	Tags     []string `json:"tags,omitempty"`

	// Status (aggregated from steps)
	Status StepStatus `json:"status"`

	// Timing
	StartTime time.Time     `json:"startTime"`
	Duration  time.Duration `json:"duration"`

	// Results
	Steps []StepResult `json:"steps"`

	// Summary (computed)
	TotalSteps   int `json:"totalSteps"`
	PassedSteps  int `json:"passedSteps"`
	FailedSteps  int `json:"failedSteps"`
	SkippedSteps int `json:"skippedSteps"`
	WarnedSteps  int `json:"warnedSteps"`

	// Error info (if flow failed)
	Error string `json:"error,omitempty"`
}

// ComputeSummary calculates step counts from the Steps slice
func (f *FlowResult) ComputeSummary() {
	f.TotalSteps = len(f.Steps)
	f.PassedSteps = 0
	f.FailedSteps = 0
	f.SkippedSteps = 0
	f.WarnedSteps = 0

	for _, step := range f.Steps {
		switch step.Status {
		case StatusPassed:
			f.PassedSteps++
		case StatusFailed, StatusErrored:
			f.FailedSteps++
		case StatusSkipped:
			f.SkippedSteps++
		case StatusWarned:
			f.WarnedSteps++
		}
	}
}

// AggregateStatus determines the flow status from step results
// Rules:
// - Any failed/errored step → StatusFailed
// - All passed (with optional warned) → StatusPassed or StatusWarned
func (f *FlowResult) AggregateStatus() StepStatus {
	warned := false
	for _, step := range f.Steps {
		switch step.Status {
		case StatusFailed, StatusErrored:
			return StatusFailed
		case StatusWarned:
			warned = true
		}
	}
	if warned {
		return StatusWarned
	}
	return StatusPassed
}

// SuiteResult captures the complete outcome of executing multiple flows
type SuiteResult struct {
	RunID  string        `json:"runId"`
	Device *PlatformInfo `json:"device,omitempty"`

	// Timing
	StartTime time.Time     `json:"startTime"`
	Duration  time.Duration `json:"duration"`

	// Results
	Flows []FlowResult `json:"flows"`

	// Summary
	TotalFlows  int `json:"totalFlows"`
	PassedFlows int `json:"passedFlows"`
	FailedFlows int `json:"failedFlows"`
}

// ComputeSummary calculates flow counts from the Flows slice
func (s *SuiteResult) ComputeSummary() {
	s.TotalFlows = len(s.Flows)
	s.PassedFlows = 0
	s.FailedFlows = 0

	for _, flow := range s.Flows {
		if flow.Status.IsSuccess() {
			s.PassedFlows++
		} else {
			s.FailedFlows++
		}
	}
}

// Success returns true if all flows passed (including warned)
func (s *SuiteResult) Success() bool {
	for _, flow := range s.Flows {
		if !flow.Status.IsSuccess() {
			return false
		}
	}
	return len(s.Flows) > 0
}
