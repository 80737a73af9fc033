package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/imagefinder/pkg/core"
	"github.com/devicelab-dev/imagefinder/pkg/executor"
	"github.com/devicelab-dev/imagefinder/pkg/logger"
	"github.com/devicelab-dev/imagefinder/pkg/validator"
)

var runCommand = &cli.Command{
	Name:      "run",
	Usage:     "Run image flows on a device",
	ArgsUsage: "<flow-file-or-folder>...",
	Description: `Run one or more image flow files on a connected device.

Reports are generated in the output directory:
  - Default: <home>/reports/<timestamp>/
  - With --output: <output>/<timestamp>/
  - With --output and --flatten: <output>/ (no timestamp subfolder)

Examples:
  imagefinder run flow.yaml
  imagefinder run --include-tags smoke flows/
  imagefinder --driver adb run --output ./reports --flatten game.yaml`,
	Flags: []cli.Flag{
		// Tag filtering
		&cli.StringSliceFlag{
			Name:  "include-tags",
			Usage: "Only include flows with these tags",
		},
		&cli.StringSliceFlag{
			Name:  "exclude-tags",
			Usage: "Exclude flows with these tags",
		},

		// Output directory
		&cli.StringFlag{
			Name:  "output",
			Usage: "Output directory for reports (default: <home>/reports)",
		},
		&cli.BoolFlag{
			Name:  "flatten",
			Usage: "Don't create timestamp subfolder (requires --output)",
		},
	},
	Action: runFlows,
}

func runFlows(c *cli.Context) error {
	if c.NArg() == 0 {
		return fmt.Errorf("at least one flow file or folder is required")
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	outputDir, err := resolveOutputDir(c.String("output"), cfg.ReportsDir(), c.Bool("flatten"))
	if err != nil {
		return err
	}

	// Parse every flow and check its reference images before touching the device.
	v := validator.New(cfg.ImageDir, c.StringSlice("include-tags"), c.StringSlice("exclude-tags"))
	validation := v.Validate(c.Args().Slice()...)
	if !validation.IsValid() {
		for _, verr := range validation.Errors {
			fmt.Fprintf(c.App.ErrWriter, "  %s✗%s %v\n", color(colorRed), color(colorReset), verr)
		}
		return fmt.Errorf("%d validation error(s)", len(validation.Errors))
	}
	flows := validation.Flows
	if len(flows) == 0 {
		return fmt.Errorf("no flows to run")
	}

	s, err := newSession(cfg, "")
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, stop := signalContext(c.Context)
	defer stop()

	out := &progress{w: c.App.Writer}
	runner := executor.New(s.finder, executor.RunnerConfig{
		OutputDir:      outputDir,
		DefaultTimeout: s.cfg.Timeout.Std(),
		OnFlowStart:    out.flowStart,
		OnStepComplete: out.stepComplete,
		OnFlowEnd:      out.flowEnd,
	})

	result, err := runner.Run(ctx, flows)
	if err != nil {
		return err
	}
	out.summary(result)
	fmt.Fprintf(c.App.Writer, "\n  Report: %s\n", filepath.Join(outputDir, executor.ReportFile))
	logger.Info("report written to %s", outputDir)

	if !result.Success() {
		return cli.Exit("", 1)
	}
	return nil
}

// resolveOutputDir determines the output directory based on flags.
// - No --output: <reportsDir>/<timestamp>/
// - --output given: <output>/<timestamp>/
// - --output + --flatten: <output>/ (error if --output not given)
func resolveOutputDir(output, reportsDir string, flatten bool) (string, error) {
	if flatten && output == "" {
		return "", fmt.Errorf("--flatten requires --output to be specified")
	}

	baseDir := output
	if baseDir == "" {
		baseDir = reportsDir
	}

	if flatten {
		return filepath.Clean(baseDir), nil
	}

	// Create timestamp-based subfolder
	timestamp := time.Now().Format("2006-01-02_15-04-05")
	return filepath.Join(baseDir, timestamp), nil
}

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorBold   = "\033[1m"
	colorGreen  = "\033[32m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
)

// Slow step threshold
const slowThreshold = 5 * time.Second

// colorsEnabled determines if ANSI colors should be used
var colorsEnabled = true

func init() {
	// Respect NO_COLOR environment variable
	if os.Getenv("NO_COLOR") != "" {
		colorsEnabled = false
		return
	}
	// Check if stdout is a terminal
	if fileInfo, err := os.Stdout.Stat(); err == nil {
		if (fileInfo.Mode() & os.ModeCharDevice) == 0 {
			colorsEnabled = false
		}
	}
}

// color returns the color code if colors are enabled, empty string otherwise
func color(c string) string {
	if colorsEnabled {
		return c
	}
	return ""
}

// progress prints live run output.
type progress struct {
	w io.Writer
}

func (p *progress) flowStart(flowIdx, totalFlows int, name, file string) {
	fmt.Fprintf(p.w, "\n  %s[%d/%d]%s %s%s%s (%s)\n",
		color(colorCyan), flowIdx+1, totalFlows, color(colorReset),
		color(colorBold), name, color(colorReset), file)
	fmt.Fprintln(p.w, strings.Repeat("─", 60))
}

func (p *progress) stepComplete(idx int, desc string, status core.StepStatus, d time.Duration, errMsg string) {
	durStr := formatDuration(d)

	switch status {
	case core.StatusPassed:
		symbol, symbolColor, durColor := "✓", color(colorGreen), ""
		if d >= slowThreshold {
			symbol, symbolColor, durColor = "⚠", color(colorYellow), color(colorYellow)
		}
		fmt.Fprintf(p.w, "    %s%s%s %s %s(%s)%s\n",
			symbolColor, symbol, color(colorReset), desc, durColor, durStr, color(colorReset))
	case core.StatusWarned:
		fmt.Fprintf(p.w, "    %s⚠%s %s (%s)\n", color(colorYellow), color(colorReset), desc, durStr)
		if errMsg != "" {
			fmt.Fprintf(p.w, "      %s╰─%s %s\n", color(colorGray), color(colorReset), errMsg)
		}
	default:
		fmt.Fprintf(p.w, "    %s✗%s %s (%s)\n", color(colorRed), color(colorReset), desc, durStr)
		if errMsg != "" {
			fmt.Fprintf(p.w, "      %s╰─%s %s\n", color(colorGray), color(colorReset), errMsg)
		}
	}
}

func (p *progress) flowEnd(name string, status core.StepStatus, d time.Duration) {
	if status.IsSuccess() {
		fmt.Fprintf(p.w, "%s✓ %s%s %s%s%s\n",
			color(colorGreen), color(colorReset), name, color(colorGray), formatDuration(d), color(colorReset))
	} else {
		fmt.Fprintf(p.w, "%s✗ %s%s %s%s (%s)%s\n",
			color(colorRed), color(colorReset), name, color(colorGray), formatDuration(d), status, color(colorReset))
	}
}

func (p *progress) summary(result *core.SuiteResult) {
	steps, passed, failed, skipped := 0, 0, 0, 0
	for _, fr := range result.Flows {
		steps += fr.TotalSteps
		passed += fr.PassedSteps + fr.WarnedSteps
		failed += fr.FailedSteps
		skipped += fr.SkippedSteps
	}

	statusColor, statusText := color(colorGreen), "PASSED"
	if !result.Success() {
		statusColor, statusText = color(colorRed), "FAILED"
	}

	fmt.Fprintln(p.w)
	fmt.Fprintln(p.w, strings.Repeat("═", 60))
	fmt.Fprintf(p.w, "  %s%s%s  %d/%d flows passed in %s\n",
		statusColor, statusText, color(colorReset),
		result.PassedFlows, result.TotalFlows, formatDuration(result.Duration))
	fmt.Fprintf(p.w, "  Steps: %d total, %d passed, %d failed, %d skipped\n", steps, passed, failed, skipped)
	fmt.Fprintln(p.w, strings.Repeat("═", 60))
}

func formatDuration(d time.Duration) string {
	ms := d.Milliseconds()
	if ms < 1000 {
		return fmt.Sprintf("%dms", ms)
	}
	if ms < 60000 {
		return fmt.Sprintf("%.1fs", float64(ms)/1000)
	}
	mins := ms / 60000
	secs := (ms % 60000) / 1000
	return fmt.Sprintf("%dm %ds", mins, secs)
}
